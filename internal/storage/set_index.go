package storage

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SetIndex maps set IDs to their directories so lookups skip the filesystem walk
type SetIndex struct {
	mu      sync.RWMutex
	paths   map[string]string // setID -> directory relative to the repository
	summary map[string]Summary
}

// NewSetIndex creates an empty index
func NewSetIndex() *SetIndex {
	return &SetIndex{
		paths:   make(map[string]string),
		summary: make(map[string]Summary),
	}
}

// Add indexes a set directory
func (si *SetIndex) Add(dir string, s Summary) {
	si.mu.Lock()
	defer si.mu.Unlock()

	si.paths[s.ID] = dir
	si.summary[s.ID] = s
}

// Get returns the directory of a set
func (si *SetIndex) Get(id string) (string, bool) {
	si.mu.RLock()
	defer si.mu.RUnlock()

	dir, ok := si.paths[id]
	return dir, ok
}

// Size returns the number of indexed sets
func (si *SetIndex) Size() int {
	si.mu.RLock()
	defer si.mu.RUnlock()

	return len(si.paths)
}

// Summaries returns every indexed summary, newest first
func (si *SetIndex) Summaries() []Summary {
	si.mu.RLock()
	defer si.mu.RUnlock()

	out := make([]Summary, 0, len(si.summary))
	for _, s := range si.summary {
		out = append(out, s)
	}
	sortSummaries(out)
	return out
}

func sortSummaries(out []Summary) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

// setIDFromPath extracts the set ID from sets/{YYYY}/{MM}/{id}/metadata.json
func setIDFromPath(path string) string {
	path = filepath.ToSlash(path)
	if !strings.HasSuffix(path, "/metadata.json") {
		return ""
	}
	dir := strings.TrimSuffix(path, "/metadata.json")
	parts := strings.Split(dir, "/")
	return parts[len(parts)-1]
}
