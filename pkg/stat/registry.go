package stat

import (
	"sort"
	"sync"
)

// Registry maps a token source key to its statistics. The zero value is not usable, use NewRegistry.
type Registry struct {
	m sync.Map // key -> *ServiceStats
	// mu serializes construction only, readers go straight to m.
	mu sync.Mutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// GetOrCreate returns the statistics for key, creating them on first use.
// Concurrent first calls for the same key all receive the same instance.
func (r *Registry) GetOrCreate(key string) *ServiceStats {
	if v, ok := r.m.Load(key); ok {
		return v.(*ServiceStats)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.m.Load(key); ok {
		return v.(*ServiceStats)
	}
	s := NewServiceStats()
	r.m.Store(key, s)
	return s
}

// Snapshot returns a live read-only view of the registry.
func (r *Registry) Snapshot() View {
	return View{r: r}
}

// View is a read-only window on a Registry. Entries created after the view was
// taken are visible through it, and it exposes the registry's own instances.
type View struct {
	r *Registry
}

// Get value by key
func (v View) Get(key string) (*ServiceStats, bool) {
	if v.r == nil {
		return nil, false
	}
	s, ok := v.r.m.Load(key)
	if !ok {
		return nil, false
	}
	return s.(*ServiceStats), true
}

// Range calls f for every entry until f returns false.
func (v View) Range(f func(key string, s *ServiceStats) bool) {
	if v.r == nil {
		return
	}
	v.r.m.Range(func(key, value any) bool {
		return f(key.(string), value.(*ServiceStats))
	})
}

// Keys returns all keys in sorted order.
func (v View) Keys() []string {
	keys := make([]string, 0)
	v.Range(func(key string, _ *ServiceStats) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
// Note: Due to the nature of sync.Map, this operation is O(n) complex
func (v View) Len() int {
	n := 0
	v.Range(func(string, *ServiceStats) bool {
		n++
		return true
	})
	return n
}
