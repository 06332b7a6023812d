package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultSubscriptionBuffer = 16
	handlerTimeout            = 5 * time.Second
)

// EventHandler is a function that handles run events
type EventHandler func(ctx context.Context, event *RunEvent) error

// EventFilter narrows a subscription beyond its event types
type EventFilter func(event *RunEvent) bool

// ForProvider matches events of runs that used the given provider
func ForProvider(provider string) EventFilter {
	return func(event *RunEvent) bool {
		return event.Result != nil && strings.EqualFold(event.Result.Provider, provider)
	}
}

// ForStage matches events of runs that ended at the given stage
func ForStage(stage Stage) EventFilter {
	return func(event *RunEvent) bool {
		return event.Result != nil && event.Result.Stage == stage
	}
}

// Subscription owns a queue of matching events. Its handler sees one event at a time.
type Subscription struct {
	ID         string
	EventTypes []EventType
	Handler    EventHandler
	BufferSize int

	filters   []EventFilter
	queue     chan *RunEvent
	done      chan struct{}
	closeOnce sync.Once

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// SubscriptionStats counts what happened to the events routed to one subscription
type SubscriptionStats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Queued    int   `json:"queued"`
}

// Stats returns the counters of the subscription
func (s *Subscription) Stats() SubscriptionStats {
	return SubscriptionStats{
		Delivered: s.delivered.Load(),
		Failed:    s.failed.Load(),
		Dropped:   s.dropped.Load(),
		Queued:    len(s.queue),
	}
}

func (s *Subscription) matches(event *RunEvent) bool {
	typeMatch := false
	for _, t := range s.EventTypes {
		if t == event.Type {
			typeMatch = true
			break
		}
	}
	if !typeMatch {
		return false
	}
	for _, f := range s.filters {
		if !f(event) {
			return false
		}
	}
	return true
}

// run feeds queued events to the handler until the queue is closed and drained
func (s *Subscription) run(bus *EventBus) {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		err := s.Handler(ctx, event)
		cancel()

		if err != nil {
			s.failed.Add(1)
			bus.failed.Add(1)
			log.Error().
				Err(err).
				Str("subscription_id", s.ID).
				Str("event_id", event.ID).
				Str("run_id", event.RunID).
				Msg("Event handler failed")
			continue
		}
		s.delivered.Add(1)
		bus.delivered.Add(1)
	}
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.queue) })
}

// EventBus routes run events from a shared buffer to subscription queues
type EventBus struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	eventBuffer   chan *RunEvent
	workers       int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// EventBusStats tracks event bus statistics
type EventBusStats struct {
	EventsPublished   int64 `json:"events_published"`
	EventsDelivered   int64 `json:"events_delivered"`
	EventsFailed      int64 `json:"events_failed"`
	EventsDropped     int64 `json:"events_dropped"`
	ActiveSubscribers int64 `json:"active_subscribers"`
	EventsInBuffer    int64 `json:"events_in_buffer"`
}

// NewEventBus creates a bus whose workers route events from a buffer of bufferSize
func NewEventBus(bufferSize, workers int) *EventBus {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	eb := &EventBus{
		subscriptions: make(map[string]*Subscription),
		eventBuffer:   make(chan *RunEvent, bufferSize),
		workers:       workers,
		ctx:           ctx,
		cancel:        cancel,
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.route(i)
	}

	log.Debug().
		Int("buffer_size", bufferSize).
		Int("workers", workers).
		Msg("Event bus started")

	return eb
}

// Publish queues an event without blocking. A full buffer drops the event.
func (eb *EventBus) Publish(event *RunEvent) error {
	if eb.ctx.Err() != nil {
		return fmt.Errorf("event bus is shutting down")
	}

	select {
	case eb.eventBuffer <- event:
		eb.published.Add(1)
		return nil
	default:
		eb.dropped.Add(1)
		log.Warn().
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Str("run_id", event.RunID).
			Msg("Event dropped due to full buffer")
		return fmt.Errorf("event buffer is full")
	}
}

// Subscribe registers handler for the given event types. Filters further restrict which events it sees.
func (eb *EventBus) Subscribe(eventTypes []EventType, handler EventHandler, bufferSize int, filters ...EventFilter) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("subscription handler is required")
	}
	if len(eventTypes) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}
	if eb.ctx.Err() != nil {
		return nil, fmt.Errorf("event bus is shutting down")
	}
	if bufferSize <= 0 {
		bufferSize = defaultSubscriptionBuffer
	}

	sub := &Subscription{
		ID:         "sub_" + uuid.NewString(),
		EventTypes: eventTypes,
		Handler:    handler,
		BufferSize: bufferSize,
		filters:    filters,
		queue:      make(chan *RunEvent, bufferSize),
		done:       make(chan struct{}),
	}
	go sub.run(eb)

	eb.mu.Lock()
	eb.subscriptions[sub.ID] = sub
	eb.mu.Unlock()

	log.Debug().
		Str("subscription_id", sub.ID).
		Interface("event_types", eventTypes).
		Int("filters", len(filters)).
		Msg("New subscription created")

	return sub, nil
}

// Unsubscribe removes a subscription. Events already queued for it are still handled.
func (eb *EventBus) Unsubscribe(subscriptionID string) error {
	eb.mu.Lock()
	sub, exists := eb.subscriptions[subscriptionID]
	if exists {
		delete(eb.subscriptions, subscriptionID)
		sub.close()
	}
	eb.mu.Unlock()

	if !exists {
		return fmt.Errorf("subscription not found: %s", subscriptionID)
	}
	log.Debug().Str("subscription_id", subscriptionID).Msg("Subscription removed")
	return nil
}

// Close stops routing and waits until every subscription has drained its queue
func (eb *EventBus) Close() {
	eb.cancel()
	eb.wg.Wait()

	eb.mu.Lock()
	subs := make([]*Subscription, 0, len(eb.subscriptions))
	for id, sub := range eb.subscriptions {
		sub.close()
		subs = append(subs, sub)
		delete(eb.subscriptions, id)
	}
	eb.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
	log.Debug().Msg("Event bus shut down")
}

// GetStats returns current event bus statistics
func (eb *EventBus) GetStats() EventBusStats {
	eb.mu.RLock()
	active := int64(len(eb.subscriptions))
	eb.mu.RUnlock()

	return EventBusStats{
		EventsPublished:   eb.published.Load(),
		EventsDelivered:   eb.delivered.Load(),
		EventsFailed:      eb.failed.Load(),
		EventsDropped:     eb.dropped.Load(),
		ActiveSubscribers: active,
		EventsInBuffer:    int64(len(eb.eventBuffer)),
	}
}

// route moves events from the shared buffer into matching subscription queues
func (eb *EventBus) route(workerID int) {
	defer eb.wg.Done()

	for {
		select {
		case event := <-eb.eventBuffer:
			eb.fanOut(event)
		case <-eb.ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("Event bus worker stopping")
			return
		}
	}
}

func (eb *EventBus) fanOut(event *RunEvent) {
	// queues are only closed under the write lock
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscriptions {
		if !sub.matches(event) {
			continue
		}
		select {
		case sub.queue <- event:
		default:
			sub.dropped.Add(1)
			eb.dropped.Add(1)
			log.Warn().
				Str("subscription_id", sub.ID).
				Str("event_id", event.ID).
				Msg("Subscription queue full, event dropped")
		}
	}
}
