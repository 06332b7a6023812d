// Package presentation serves stored question sets and their rendered reports over a read-only HTTP API.
package presentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Caia-Tech/caia-quizcheck/internal/report"
	"github.com/Caia-Tech/caia-quizcheck/internal/storage"
	"github.com/Caia-Tech/caia-quizcheck/pkg/export"
	"github.com/Caia-Tech/caia-quizcheck/pkg/gql"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// API provides HTTP endpoints for stored question sets
type API struct {
	renderer *Renderer
	storage  SetReader
	query    *gql.Executor
	config   *APIConfig
	server   *http.Server
}

// APIConfig configures the presentation API
type APIConfig struct {
	Port       int    `json:"port"`
	Host       string `json:"host"`
	BasePath   string `json:"base_path"`
	EnableCORS bool   `json:"enable_cors"`
	// RequestTimeout bounds each storage lookup
	RequestTimeout time.Duration `json:"request_timeout"`
}

// DefaultAPIConfig returns the settings used when none are given
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Port:           8090,
		Host:           "0.0.0.0",
		BasePath:       "/api/v1",
		EnableCORS:     true,
		RequestTimeout: 10 * time.Second,
	}
}

// NewAPI creates a new presentation API
func NewAPI(renderer *Renderer, storage SetReader, config *APIConfig) *API {
	if config == nil {
		config = DefaultAPIConfig()
	}
	if renderer == nil {
		renderer = NewRenderer(nil)
	}

	return &API{
		renderer: renderer,
		storage:  storage,
		query:    gql.NewExecutor(storage),
		config:   config,
	}
}

// Handler returns the routed handler with middleware applied
func (api *API) Handler() http.Handler {
	return api.addMiddleware(api.setupRoutes())
}

// Start serves the API until Shutdown is called
func (api *API) Start() error {
	addr := fmt.Sprintf("%s:%d", api.config.Host, api.config.Port)
	api.server = &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("address", addr).Msg("Starting presentation API")

	if err := api.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops a started server
func (api *API) Shutdown(ctx context.Context) error {
	if api.server == nil {
		return nil
	}
	return api.server.Shutdown(ctx)
}

// setupRoutes configures API routes
func (api *API) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	base := router.PathPrefix(api.config.BasePath).Subrouter()

	// Question set endpoints
	base.HandleFunc("/sets", api.listSets).Methods("GET")
	base.HandleFunc("/sets/query", api.querySets).Methods("GET")
	base.HandleFunc("/sets/{id}", api.getSet).Methods("GET")
	base.HandleFunc("/sets/{id}/report", api.getReport).Methods("GET")
	base.HandleFunc("/sets/{id}/export", api.exportSet).Methods("GET")

	// Health check
	base.HandleFunc("/health", api.healthCheck).Methods("GET")

	return router
}

// addMiddleware adds middleware to the router
func (api *API) addMiddleware(router http.Handler) http.Handler {
	if api.config.EnableCORS {
		router = api.corsMiddleware(router)
	}
	return api.loggingMiddleware(router)
}

// Handler implementations

func (api *API) listSets(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	pageSize, _ := strconv.Atoi(params.Get("page_size"))
	pageNumber, _ := strconv.Atoi(params.Get("page"))

	options := &CollectionOptions{
		PageSize:       pageSize,
		PageNumber:     pageNumber,
		Provider:       params.Get("provider"),
		ShowStatistics: params.Get("statistics") == "true",
	}
	if status := params.Get("status"); status != "" {
		switch report.Status(status) {
		case report.StatusValid, report.StatusWarning, report.StatusError:
			options.Status = report.Status(status)
		default:
			api.sendError(w, http.StatusBadRequest, "Invalid status filter", fmt.Errorf("unknown status %q", status))
			return
		}
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	summaries, err := api.storage.List(ctx)
	if err != nil {
		api.sendError(w, http.StatusInternalServerError, "Failed to list question sets", err)
		return
	}

	api.sendJSON(w, api.renderer.RenderCollection(summaries, options))
}

// querySets runs a query such as q=SELECT FROM sets WHERE status = warning LIMIT 10
func (api *API) querySets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		api.sendError(w, http.StatusBadRequest, "Missing query", fmt.Errorf("the q parameter is required"))
		return
	}

	parsed, err := gql.NewParser().Parse(q)
	if err != nil {
		api.sendError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}

	ctx, cancel := api.requestContext(r)
	defer cancel()

	result, err := api.query.Run(ctx, parsed)
	if err != nil {
		api.sendError(w, http.StatusUnprocessableEntity, "Query failed", err)
		return
	}
	api.sendJSON(w, result)
}

func (api *API) getSet(w http.ResponseWriter, r *http.Request) {
	rec, ok := api.loadRecord(w, r)
	if !ok {
		return
	}

	api.sendJSON(w, map[string]interface{}{
		"summary": rec.Summary,
		"set":     rec.Set,
	})
}

func (api *API) getReport(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	format, ok := ParseOutputFormat(params.Get("format"), FormatJSON)
	if !ok {
		api.sendError(w, http.StatusBadRequest, "Invalid report format", fmt.Errorf("unknown format %q", params.Get("format")))
		return
	}

	rec, ok := api.loadRecord(w, r)
	if !ok {
		return
	}

	rendered, err := api.renderer.RenderReport(rec, &RenderOptions{
		Format:           format,
		OnlyProblems:     params.Get("problems") == "true",
		MaxContextLength: api.renderer.config.MaxContextLength,
	})
	if err != nil {
		api.sendError(w, http.StatusUnprocessableEntity, "Failed to render report", err)
		return
	}

	switch format {
	case FormatText, FormatMarkdown:
		w.Header().Set("Content-Type", format.ContentType())
		w.Write([]byte(rendered.Content))
	default:
		api.sendJSON(w, rendered)
	}
}

func (api *API) exportSet(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		api.sendError(w, http.StatusBadRequest, "Invalid export format", err)
		return
	}

	rec, ok := api.loadRecord(w, r)
	if !ok {
		return
	}

	data, err := api.renderer.ExportSet(rec, format)
	if err != nil {
		api.sendError(w, http.StatusUnprocessableEntity, "Failed to export question set", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s%s\"", rec.ID, format.Extension()))
	w.Write(data)
}

func (api *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := api.requestContext(r)
	defer cancel()

	status := "healthy"
	storageStatus := "operational"
	if err := api.storage.Health(ctx); err != nil {
		status = "degraded"
		storageStatus = err.Error()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	health := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now(),
		"services": map[string]string{
			"renderer": "operational",
			"storage":  storageStatus,
		},
	}

	api.sendJSON(w, health)
}

// Helper methods

func (api *API) loadRecord(w http.ResponseWriter, r *http.Request) (*storage.Record, bool) {
	id := mux.Vars(r)["id"]

	ctx, cancel := api.requestContext(r)
	defer cancel()

	rec, err := api.storage.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			api.sendError(w, http.StatusNotFound, "Question set not found", err)
		} else {
			api.sendError(w, http.StatusInternalServerError, "Failed to get question set", err)
		}
		return nil, false
	}
	return rec, true
}

func (api *API) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if api.config.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), api.config.RequestTimeout)
}

func (api *API) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (api *API) sendError(w http.ResponseWriter, status int, message string, err error) {
	log.Error().Err(err).Str("message", message).Int("status", status).Msg("API error")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}

// Middleware implementations

func (api *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (api *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("API request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
