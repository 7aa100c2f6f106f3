package service

import (
	"context"
	"sync"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/internal/api"
	"github.com/rembon2016/cts-merchant-sub001/internal/cart"
	"github.com/rembon2016/cts-merchant-sub001/internal/catalog"
	"github.com/rembon2016/cts-merchant-sub001/internal/checkout"
	"github.com/rembon2016/cts-merchant-sub001/internal/fetch"
	"github.com/rembon2016/cts-merchant-sub001/internal/repository"

	"go.uber.org/zap"
)

// Workspace holds the stores of one merchant session.
type Workspace struct {
	SessionID string
	BranchID  int64
	Catalog   *catalog.Store
	Cart      *cart.Store
	Checkout  *checkout.Store
	Routes    *checkout.RouteRecorder

	lastUsed time.Time
}

type WorkspaceOption func(*Workspaces)

func WithBannerTTL(d time.Duration) WorkspaceOption {
	return func(w *Workspaces) { w.bannerTTL = d }
}

func WithFetchOptions(opts ...fetch.Option) WorkspaceOption {
	return func(w *Workspaces) { w.fetchOpts = append(w.fetchOpts, opts...) }
}

// Workspaces builds stores lazily per session and shares the backend client and cache between them.
type Workspaces struct {
	client    *api.Client
	cache     fetch.Cache
	sessions  repository.SessionRepository
	logger    *zap.Logger
	bannerTTL time.Duration
	fetchOpts []fetch.Option
	now       func() time.Time

	mu    sync.Mutex
	items map[string]*Workspace
}

func NewWorkspaces(client *api.Client, cache fetch.Cache, sessions repository.SessionRepository, logger *zap.Logger, opts ...WorkspaceOption) *Workspaces {
	if cache == nil {
		cache = fetch.NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Workspaces{
		client:    client,
		cache:     cache,
		sessions:  sessions,
		logger:    logger,
		bannerTTL: cart.DefaultBannerTTL,
		now:       time.Now,
		items:     make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Get returns the workspace of a session, creating it on first use. A new workspace
// restores the selection persisted in the session.
func (w *Workspaces) Get(ctx context.Context, sessionID string, branchID int64) *Workspace {
	w.mu.Lock()
	ws, ok := w.items[sessionID]
	if ok && ws.BranchID == branchID {
		ws.lastUsed = w.now()
		w.mu.Unlock()
		return ws
	}

	log := w.logger.With(zap.String("session_id", sessionID))
	routes := &checkout.RouteRecorder{}
	ws = &Workspace{
		SessionID: sessionID,
		BranchID:  branchID,
		Catalog:   catalog.NewStore(w.client, w.cache, branchID, log, w.fetchOpts...),
		Cart: cart.NewStore(w.client, w.cache, w.sessions, sessionID,
			cart.WithBannerTTL(w.bannerTTL),
			cart.WithLogger(log),
			cart.WithFetchOptions(w.fetchOpts...),
		),
		Checkout: checkout.NewStore(w.client, w.cache, w.sessions, sessionID, routes,
			checkout.WithBannerTTL(w.bannerTTL),
			checkout.WithLogger(log),
			checkout.WithFetchOptions(w.fetchOpts...),
		),
		Routes:   routes,
		lastUsed: w.now(),
	}
	w.items[sessionID] = ws
	w.mu.Unlock()

	if err := ws.Cart.RestoreSelected(ctx); err != nil {
		log.Warn("failed to restore selected cart items", zap.Error(err))
	}
	return ws
}

// OrderPlaced resets the in-memory selection and drops cached cart and transaction reads
// after a successful checkout.
func (w *Workspaces) OrderPlaced(ctx context.Context, ws *Workspace) {
	ws.Cart.SetSelected(nil)
	for _, tag := range []string{cart.TagCart, checkout.TagTransactions} {
		if err := w.cache.DeletePrefix(ctx, tag+":"); err != nil {
			w.logger.Warn("failed to invalidate cache", zap.String("tag", tag), zap.Error(err))
		}
	}
}

func (w *Workspaces) Drop(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.items, sessionID)
}

// Evict drops workspaces idle for longer than maxIdle and returns how many were removed.
func (w *Workspaces) Evict(maxIdle time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	cutoff := w.now().Add(-maxIdle)
	for id, ws := range w.items {
		if ws.lastUsed.Before(cutoff) {
			delete(w.items, id)
			n++
		}
	}
	return n
}

func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}
