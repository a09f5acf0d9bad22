// Package state provides the explicit keyed pub/sub store shared by the
// editor and run views. Components receive a *Store by reference instead
// of reaching into process-wide singletons; subscription is the only way
// to observe changes.
package state

import (
	"sync"
	"sync/atomic"
)

// Well-known keys published by the editor and run components.
const (
	KeyWarnings      = "warnings"       // []string, ordered validator output
	KeyDirty         = "dirty"          // bool, unsaved-changes flag
	KeyGraphRevision = "graph_revision" // int, bumped on every mutation
	KeyBusy          = "busy"           // bool, a resource operation is in flight
	KeyNotice        = "notice"         // string, blocking user notification
	KeyAuthRequired  = "auth_required"  // bool, session refresh failed
	KeyRunStatus     = "run_status"     // schema.RunStatus of the watched run
)

const defaultChannelBuffer = 64

// Change is one published state mutation.
type Change struct {
	Key   string
	Value any
}

// subscriber holds a channel and key filter for a single subscriber.
type subscriber struct {
	ch   chan Change
	keys map[string]struct{} // empty means all keys
}

// Store is an in-memory keyed value store with pub/sub fan-out.
// Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
	subs   map[uint64]*subscriber
	seq    atomic.Uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		values: make(map[string]any),
		subs:   make(map[uint64]*subscriber),
	}
}

// Set stores a value and notifies matching subscribers.
// Non-blocking: if a subscriber's channel is full the change is dropped.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if len(sub.keys) > 0 {
			if _, ok := sub.keys[key]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- Change{Key: key, Value: value}:
		default:
			// backpressure: drop change for slow subscriber
		}
	}
}

// Get returns the current value for a key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetBool returns the value for a key as a bool, false when absent or
// of another type.
func (s *Store) GetBool(key string) bool {
	v, ok := s.Get(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Subscribe registers interest in the given keys (all keys when none are
// given). Returns a receive-only change channel and an unsubscribe func.
func (s *Store) Subscribe(keys ...string) (<-chan Change, func()) {
	id := s.seq.Add(1)
	ch := make(chan Change, defaultChannelBuffer)

	filter := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		filter[k] = struct{}{}
	}

	s.mu.Lock()
	s.subs[id] = &subscriber{ch: ch, keys: filter}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}

	return ch, unsubscribe
}
