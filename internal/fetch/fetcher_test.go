package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchServesFromCacheWithinTTL(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{"data":[{"id":1}]}`)

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	f := New(srv.Client(), NewMemoryCache(), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	opts := Options{Headers: map[string]string{"Authorization": "Bearer a"}}

	require.NoError(t, f.FetchData(ctx, srv.URL+"/products", opts))
	now = now.Add(4 * time.Minute)
	res, err := f.Fetch(ctx, srv.URL+"/products", opts)
	require.NoError(t, err)

	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.JSONEq(t, `[{"id":1}]`, string(f.State().Data))

	now = now.Add(time.Minute + time.Millisecond)
	res, err = f.Fetch(ctx, srv.URL+"/products", opts)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestFetchCacheKeyIncludesOptions(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{"data":[]}`)
	f := New(srv.Client(), nil)
	ctx := context.Background()

	require.NoError(t, f.FetchData(ctx, srv.URL+"/products", Options{Headers: map[string]string{"Authorization": "Bearer a"}}))
	require.NoError(t, f.FetchData(ctx, srv.URL+"/products", Options{Headers: map[string]string{"Authorization": "Bearer b"}}))

	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestFetchEvictsStaleEntryOnRead(t *testing.T) {
	srv, _ := countingServer(t, http.StatusInternalServerError, ``)
	cache := NewMemoryCache()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	f := New(srv.Client(), cache, WithClock(func() time.Time { return now }))

	key := Key(srv.URL+"/units", Options{})
	require.NoError(t, cache.Set(context.Background(), key, &Entry{Data: json.RawMessage(`{"data":[]}`), Timestamp: now.Add(-10 * time.Minute)}))

	err := f.FetchData(context.Background(), srv.URL+"/units", Options{})
	assert.ErrorIs(t, err, ErrHTTPStatus)
	assert.Equal(t, 0, cache.Len())
}

func TestFetchHTTPErrorIsTemplatedAndAutoCleared(t *testing.T) {
	srv, _ := countingServer(t, http.StatusInternalServerError, `{"message":"boom"}`)
	f := New(srv.Client(), nil, WithErrorDisplay(30*time.Millisecond))

	err := f.FetchData(context.Background(), srv.URL+"/cart", Options{})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)

	state := f.State()
	assert.Equal(t, "HTTP error! status: 500", state.Error)
	assert.False(t, state.Loading)
	assert.False(t, state.Success)

	assert.Eventually(t, func() bool { return f.State().Error == "" }, time.Second, 5*time.Millisecond)
}

func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(srv.Client(), nil, WithTimeout(50*time.Millisecond))
	err := f.FetchData(context.Background(), srv.URL+"/slow", Options{})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, MsgTimeout, f.State().Error)
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := New(http.DefaultClient, nil)
	err := f.FetchData(context.Background(), addr+"/products", Options{})

	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, MsgNetwork, f.State().Error)
}

func TestFetchSkipsWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	f := New(srv.Client(), nil)
	done := make(chan error, 1)
	go func() { done <- f.FetchData(context.Background(), srv.URL+"/a", Options{}) }()

	<-started
	assert.True(t, f.State().Loading)
	err := f.FetchData(context.Background(), srv.URL+"/b", Options{})
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.JSONEq(t, `{"ok":true}`, string(f.State().Data))
}

func TestFetchCancelReportsSuperseded(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := New(srv.Client(), nil)
	done := make(chan error, 1)
	go func() { done <- f.FetchData(context.Background(), srv.URL+"/a", Options{}) }()

	<-started
	f.Cancel()

	err := <-done
	assert.True(t, errors.Is(err, ErrSuperseded), "got %v", err)
	assert.Empty(t, f.State().Error)
	assert.False(t, f.State().Loading)
}

func TestFetchExtractsTotalAndSelect(t *testing.T) {
	srv, _ := countingServer(t, http.StatusOK, `{"data":{"data":[{"id":1}],"current_page":1,"last_page":2,"total":14}}`)
	f := New(srv.Client(), nil)

	res, err := f.Fetch(context.Background(), srv.URL+"/products", Options{})
	require.NoError(t, err)
	assert.Equal(t, 14, res.Total)
	assert.Equal(t, 14, f.State().TotalData)

	res, err = f.Fetch(context.Background(), srv.URL+"/products", Options{
		Select: func(body json.RawMessage) (json.RawMessage, error) {
			return json.RawMessage(`"override"`), nil
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, `"override"`, string(f.State().Data))
}

func TestTotalOfPaginationBlock(t *testing.T) {
	assert.Equal(t, 7, totalOf(json.RawMessage(`{"data":[],"pagination":{"total":7}}`)))
	assert.Equal(t, 3, totalOf(json.RawMessage(`{"data":{"items":[],"pagination":{"total":3}}}`)))
	assert.Equal(t, 0, totalOf(json.RawMessage(`[1,2]`)))
}

func TestInvalidateDropsTaggedEntries(t *testing.T) {
	srv, hits := countingServer(t, http.StatusOK, `{"data":[]}`)
	f := New(srv.Client(), nil)
	ctx := context.Background()

	require.NoError(t, f.FetchData(ctx, srv.URL+"/products", Options{Tag: "products"}))
	require.NoError(t, f.Invalidate(ctx, "products"))
	require.NoError(t, f.FetchData(ctx, srv.URL+"/products", Options{Tag: "products"}))

	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "", Message(ErrInFlight))
	assert.Equal(t, "", Message(ErrSuperseded))
	assert.Equal(t, MsgTimeout, Message(ErrTimeout))
	assert.Equal(t, MsgNetwork, Message(errors.Join(ErrNetwork, errors.New("dial tcp"))))
	assert.Equal(t, "HTTP error! status: 404", Message(&StatusError{Status: 404}))
}
