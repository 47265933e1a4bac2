package gatekeep

import (
	"sync"
	"sync/atomic"
)

// DefaultHistoryDepth is the number of prior snapshots a registry keeps
// for rollback when no explicit depth is configured.
const DefaultHistoryDepth = 8

// Registry owns the configuration lifecycle for one namespace. The active
// snapshot sits behind an atomic pointer: readers acquire it lock-free and
// keep evaluating against it even while a writer installs a replacement,
// so no evaluation ever observes a half-updated configuration. Writers
// (Load, Rollback) serialize with each other; last writer wins.
type Registry struct {
	namespace string
	current   atomic.Pointer[Configuration]
	disabled  atomic.Bool
	hook      Hook

	// mu guards history; only writers touch it.
	mu      sync.Mutex
	history []*Configuration
	depth   int
}

// RegistryOption configures a Registry at construction.
type RegistryOption func(*Registry)

// WithHistoryDepth bounds the rollback history. Depths below 1 fall back
// to DefaultHistoryDepth.
func WithHistoryDepth(depth int) RegistryOption {
	return func(r *Registry) {
		if depth >= 1 {
			r.depth = depth
		}
	}
}

// WithHook installs an observer for load, rollback, and evaluation events.
func WithHook(hook Hook) RegistryOption {
	return func(r *Registry) {
		if hook != nil {
			r.hook = hook
		}
	}
}

// NewRegistry creates a registry for the given namespace with an empty
// active configuration.
func NewRegistry(namespace string, opts ...RegistryOption) *Registry {
	r := &Registry{
		namespace: namespace,
		hook:      NopHook{},
		depth:     DefaultHistoryDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(EmptyConfiguration())
	return r
}

// Namespace returns the isolation boundary this registry serves.
func (r *Registry) Namespace() string {
	return r.namespace
}

// Current returns the active snapshot. The call is lock-free and the
// returned configuration is immutable, so callers may hold it for the
// span of an evaluation regardless of concurrent loads.
func (r *Registry) Current() *Configuration {
	return r.current.Load()
}

// Load atomically installs cfg as the active snapshot and pushes the
// previous one onto the bounded rollback history, evicting the oldest
// entry when the history is full.
func (r *Registry) Load(cfg *Configuration) {
	if cfg == nil {
		cfg = EmptyConfiguration()
	}

	r.mu.Lock()
	previous := r.current.Swap(cfg)
	r.history = append(r.history, previous)
	if len(r.history) > r.depth {
		r.history = r.history[len(r.history)-r.depth:]
	}
	r.mu.Unlock()

	r.hook.ConfigLoad(ConfigLoadEvent{
		Namespace:    r.namespace,
		FeatureCount: cfg.Len(),
		Version:      cfg.Metadata().Version,
	})
}

// Rollback pops steps entries from the history and installs the oldest
// popped snapshot as active. It reports false without changing anything
// when steps is below 1 or exceeds the history depth.
func (r *Registry) Rollback(steps int) bool {
	success := r.rollback(steps)
	r.hook.ConfigRollback(ConfigRollbackEvent{
		Namespace: r.namespace,
		Steps:     steps,
		Success:   success,
	})
	return success
}

func (r *Registry) rollback(steps int) bool {
	if steps < 1 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if steps > len(r.history) {
		return false
	}

	target := r.history[len(r.history)-steps]
	r.history = r.history[:len(r.history)-steps]
	r.current.Store(target)
	return true
}

// HistoryLen returns the number of snapshots available for rollback.
func (r *Registry) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// DisableAll sets the kill switch: every evaluation returns the flag's
// default until EnableAll. Stored configurations and history are left
// untouched.
func (r *Registry) DisableAll() {
	r.disabled.Store(true)
}

// EnableAll clears the kill switch.
func (r *Registry) EnableAll() {
	r.disabled.Store(false)
}

// Disabled reports whether the kill switch is set.
func (r *Registry) Disabled() bool {
	return r.disabled.Load()
}
