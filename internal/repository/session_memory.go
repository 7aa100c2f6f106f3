package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/internal/model"
)

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

type memorySessionRepo struct {
	mu        sync.Mutex
	sessions  map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
}

type MemoryOption func(*memorySessionRepo)

// WithMemoryTTL sets the inactivity window after which a session is gone.
// Default is DefaultSessionTTL.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(r *memorySessionRepo) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(r *memorySessionRepo) { r.now = now }
}

// NewMemorySessionRepo keeps sessions in process memory. Values are stored
// serialised so callers never share slices with the repository. Like the redis
// store, every write pushes the expiry out by ttl.
func NewMemorySessionRepo(opts ...MemoryOption) SessionRepository {
	r := &memorySessionRepo{
		sessions: make(map[string]memoryEntry),
		ttl:      DefaultSessionTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// load must be called with mu held.
func (r *memorySessionRepo) load(id string) (*model.Session, error) {
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.sessions, id)
		return nil, ErrSessionNotFound
	}

	var s model.Session
	if err := json.Unmarshal(e.raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// store must be called with mu held.
func (r *memorySessionRepo) store(id string, s *model.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	now := r.now()
	r.sessions[id] = memoryEntry{raw: raw, expiresAt: now.Add(r.ttl)}

	// drop abandoned sessions at most once per minute
	if now.Sub(r.lastSweep) >= time.Minute {
		r.lastSweep = now
		for k, e := range r.sessions {
			if !now.Before(e.expiresAt) {
				delete(r.sessions, k)
			}
		}
	}
	return nil
}

func (r *memorySessionRepo) Get(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(id)
}

func (r *memorySessionRepo) Set(_ context.Context, id string, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store(id, s)
}

func (r *memorySessionRepo) Update(_ context.Context, id string, fn func(s *model.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.load(id)
	if err != nil {
		return err
	}
	fn(s)
	return r.store(id, s)
}

func (r *memorySessionRepo) ClearCheckout(ctx context.Context, id string) error {
	return r.Update(ctx, id, func(s *model.Session) { s.ClearCheckout() })
}

func (r *memorySessionRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	return nil
}
