// Package fetch wraps backend reads with a short-lived response cache, a
// single-flight guard, a hard timeout and user-facing error triage.
package fetch

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultTimeout      = 10 * time.Second
	DefaultErrorDisplay = 2 * time.Second

	MsgTimeout = "Request timeout - please try again"
	MsgNetwork = "Network error - please check your connection"
)

var (
	// ErrInFlight is returned when a fetch is already running on the same Fetcher.
	// Callers treat it as a no-op; nothing is queued.
	ErrInFlight   = errors.New("fetch already in progress")
	ErrTimeout    = errors.New("request timeout")
	ErrNetwork    = errors.New("network error")
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrSuperseded means a newer request cancelled this one.
	ErrSuperseded = errors.New("request superseded")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

func (e *StatusError) Unwrap() error {
	return ErrHTTPStatus
}

// Message returns the banner text for err, or "" when err should not be shown. It also
// triages raw transport errors that did not pass through a Fetcher.
func Message(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrInFlight), errors.Is(err, ErrSuperseded), errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return MsgTimeout
	case errors.Is(err, ErrNetwork), isNetwork(err):
		return MsgNetwork
	}
	return err.Error()
}

// Options describe the request. Everything serialisable is part of the cache key.
type Options struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`

	// Tag namespaces cache keys so a group of listings can be invalidated together.
	Tag string `json:"-"`
	// Select overrides which part of the response becomes Data. By default the
	// response's "data" field is used.
	Select func(body json.RawMessage) (json.RawMessage, error) `json:"-"`
}

// State is the shared view a screen renders from.
type State struct {
	Data      json.RawMessage
	Loading   bool
	Error     string
	Success   bool
	TotalData int
}

type Result struct {
	Data   json.RawMessage
	Body   json.RawMessage
	Total  int
	Cached bool
}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Fetcher)

func WithTTL(ttl time.Duration) Option {
	return func(f *Fetcher) { f.ttl = ttl }
}

func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) { f.timeout = timeout }
}

// WithErrorDisplay sets how long an error stays in State before it is cleared.
func WithErrorDisplay(d time.Duration) Option {
	return func(f *Fetcher) { f.errorDisplay = d }
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// Fetcher is owned by one store. Its guard only prevents overlap within that store.
type Fetcher struct {
	doer         Doer
	cache        Cache
	ttl          time.Duration
	timeout      time.Duration
	errorDisplay time.Duration
	now          func() time.Time
	logger       *zap.Logger

	fetching atomic.Bool

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	errTimer *time.Timer
	errGen   uint64
}

func New(doer Doer, cache Cache, opts ...Option) *Fetcher {
	if cache == nil {
		cache = NewMemoryCache()
	}
	f := &Fetcher{
		doer:         doer,
		cache:        cache,
		ttl:          DefaultTTL,
		timeout:      DefaultTimeout,
		errorDisplay: DefaultErrorDisplay,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Key serialises the request into a cache key: tag:md5(url, options).
func Key(rawURL string, opts Options) string {
	raw, _ := json.Marshal(struct {
		URL     string  `json:"url"`
		Options Options `json:"options"`
	}{rawURL, opts})
	tag := opts.Tag
	if tag == "" {
		tag = "fetch"
	}
	return fmt.Sprintf("%s:%x", tag, md5.Sum(raw))
}

// State returns a copy of the current state.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// FetchData runs Fetch for its side effects on State.
func (f *Fetcher) FetchData(ctx context.Context, rawURL string, opts Options) error {
	_, err := f.Fetch(ctx, rawURL, opts)
	return err
}

// Fetch returns cached data younger than the TTL, otherwise performs the request.
// Failures are terminal; nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	if !f.fetching.CompareAndSwap(false, true) {
		return nil, ErrInFlight
	}
	defer f.fetching.Store(false)

	key := Key(rawURL, opts)
	if entry, ok := f.cache.Get(ctx, key); ok {
		if f.now().Sub(entry.Timestamp) < f.ttl {
			data, err := selectData(entry.Data, opts)
			if err == nil {
				f.succeed(data, entry.TotalCount)
				return &Result{Data: data, Body: entry.Data, Total: entry.TotalCount, Cached: true}, nil
			}
		}
		if err := f.cache.Delete(ctx, key); err != nil {
			f.logger.Warn("failed to evict stale cache entry", zap.String("key", key), zap.Error(err))
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
	}
	f.cancel = cancel
	f.state.Loading = true
	f.state.Success = false
	f.mu.Unlock()

	res, err := f.do(reqCtx, rawURL, opts)
	if err != nil {
		return nil, f.fail(ctx, reqCtx, err)
	}

	entry := &Entry{Data: res.Body, Timestamp: f.now(), TotalCount: res.Total}
	if err := f.cache.Set(ctx, key, entry); err != nil {
		f.logger.Warn("failed to cache response", zap.String("key", key), zap.Error(err))
	}
	f.succeed(res.Data, res.Total)
	return res, nil
}

// Cancel aborts the request currently in flight, if any.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Invalidate drops every cached response stored under tag.
func (f *Fetcher) Invalidate(ctx context.Context, tag string) error {
	return f.cache.DeletePrefix(ctx, tag+":")
}

func (f *Fetcher) do(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	data, err := selectData(raw, opts)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Body: raw, Total: totalOf(raw)}, nil
}

func (f *Fetcher) succeed(data json.RawMessage, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Data = data
	f.state.TotalData = total
	f.state.Loading = false
	f.state.Success = true
	f.state.Error = ""
}

// fail maps err onto one of the user-facing messages and the matching sentinel.
func (f *Fetcher) fail(parent, reqCtx context.Context, err error) error {
	var (
		msg     string
		wrapped error
	)

	switch {
	case errors.Is(err, ErrHTTPStatus):
		msg, wrapped = err.Error(), err
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil, isTimeout(err):
		msg, wrapped = MsgTimeout, fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(reqCtx.Err(), context.Canceled):
		f.setLoading(false)
		if parent.Err() != nil {
			return parent.Err()
		}
		return ErrSuperseded
	case isNetwork(err):
		msg, wrapped = MsgNetwork, fmt.Errorf("%w: %v", ErrNetwork, err)
	default:
		msg, wrapped = err.Error(), err
	}

	f.logger.Warn("fetch failed", zap.String("error", msg), zap.Error(err))
	f.setError(msg)
	return wrapped
}

func (f *Fetcher) setLoading(loading bool) {
	f.mu.Lock()
	f.state.Loading = loading
	f.mu.Unlock()
}

// setError publishes msg and clears it again after the display period.
func (f *Fetcher) setError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state.Loading = false
	f.state.Success = false
	f.state.Error = msg
	f.errGen++
	gen := f.errGen

	if f.errTimer != nil {
		f.errTimer.Stop()
	}
	f.errTimer = time.AfterFunc(f.errorDisplay, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.errGen == gen {
			f.state.Error = ""
		}
	})
}

func selectData(raw json.RawMessage, opts Options) (json.RawMessage, error) {
	if opts.Select != nil {
		return opts.Select(raw)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return raw, nil
	}
	if data, ok := top["data"]; ok {
		return data, nil
	}
	return raw, nil
}

// totalOf looks for a pagination total in the usual places of the backend envelope.
func totalOf(raw json.RawMessage) int {
	var env struct {
		Total      *int `json:"total"`
		Pagination *struct {
			Total int `json:"total"`
		} `json:"pagination"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0
	}
	if len(env.Data) > 0 && env.Data[0] == '{' {
		if nested := totalOf(env.Data); nested > 0 {
			return nested
		}
	}
	if env.Pagination != nil {
		return env.Pagination.Total
	}
	if env.Total != nil {
		return *env.Total
	}
	return 0
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isNetwork recognises connection-level failures, by type first and by message as a fallback.
func isNetwork(err error) bool {
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "no such host", "network is unreachable", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
