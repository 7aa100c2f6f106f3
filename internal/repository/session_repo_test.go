package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() *model.Session {
	return &model.Session{
		Cart: []model.SelectedCartItem{
			{ProductID: 1, Name: "Kopi", Quantity: 2, Price: decimal.NewFromInt(10000), Subtotal: decimal.NewFromInt(20000)},
		},
		Tax:          decimal.NewFromInt(11),
		BranchActive: 3,
		UserID:       7,
		AuthToken:    "tok",
	}
}

func runRepositoryContract(t *testing.T, repo SessionRepository) {
	ctx := context.Background()
	id := "5f0c7c1e-8a4b-4d4e-9b53-2f7f7b1d9a10"

	_, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, repo.Set(ctx, id, sampleSession()))
	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Cart, 1)
	assert.True(t, got.Tax.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, int64(3), got.BranchActive)

	// mutating the returned value must not leak into the repository
	got.Cart[0].Quantity = 99
	again, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Cart[0].Quantity)

	require.NoError(t, repo.Update(ctx, id, func(s *model.Session) { s.Discount = decimal.NewFromInt(500) }))
	require.NoError(t, repo.ClearCheckout(ctx, id))
	cleared, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, cleared.Cart)
	assert.True(t, cleared.Tax.IsZero())
	assert.True(t, cleared.Discount.IsZero())
	assert.Equal(t, "tok", cleared.AuthToken)
	assert.Equal(t, int64(7), cleared.UserID)

	require.NoError(t, repo.Delete(ctx, id))
	_, err = repo.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// runConcurrentUpdates races a tax writer against cart writers on one session.
// Every write must survive; a read-then-write without isolation drops some.
func runConcurrentUpdates(t *testing.T, repo SessionRepository) {
	ctx := context.Background()
	id := "0b8f5a52-3f5e-4c0e-a4f4-6f2e9a7d1c33"
	require.NoError(t, repo.Set(ctx, id, &model.Session{AuthToken: "tok"}))

	const writers = 16
	var wg sync.WaitGroup
	wg.Add(writers + 1)
	go func() {
		defer wg.Done()
		assert.NoError(t, repo.Update(ctx, id, func(s *model.Session) { s.Tax = decimal.NewFromInt(10) }))
	}()
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.Update(ctx, id, func(s *model.Session) {
				s.Cart = append(s.Cart, model.SelectedCartItem{ProductID: int64(i + 1), Quantity: 1})
			}))
		}(i)
	}
	wg.Wait()

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Cart, writers)
	assert.True(t, got.Tax.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "tok", got.AuthToken)
}

func TestMemorySessionRepo(t *testing.T) {
	runRepositoryContract(t, NewMemorySessionRepo())
}

func TestMemorySessionRepoConcurrentUpdates(t *testing.T) {
	runConcurrentUpdates(t, NewMemorySessionRepo())
}

func TestMemoryUpdateMissingSession(t *testing.T) {
	err := NewMemorySessionRepo().Update(context.Background(), "nope", func(*model.Session) {})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionRepoExpiresIdleSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := NewMemorySessionRepo(WithMemoryTTL(time.Hour), WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "s1", sampleSession()))
	now = now.Add(45 * time.Minute)
	require.NoError(t, repo.ClearCheckout(ctx, "s1"))

	// the write above pushed the expiry out by another hour
	now = now.Add(45 * time.Minute)
	_, err := repo.Get(ctx, "s1")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	err = repo.Update(ctx, "s1", func(*model.Session) {})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemorySessionRepoSweepsAbandonedSessions(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := NewMemorySessionRepo(WithMemoryTTL(time.Hour), WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "old", sampleSession()))
	now = now.Add(2 * time.Hour)
	require.NoError(t, repo.Set(ctx, "new", sampleSession()))

	assert.NotContains(t, repo.(*memorySessionRepo).sessions, "old")
	assert.Contains(t, repo.(*memorySessionRepo).sessions, "new")
}

func TestMemoryClearCheckoutMissingSession(t *testing.T) {
	err := NewMemorySessionRepo().ClearCheckout(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionRepo(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	runRepositoryContract(t, NewRedisSessionRepo(client, time.Hour))
}

func TestRedisSessionRepoConcurrentUpdates(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 32})
	defer client.Close()

	runConcurrentUpdates(t, NewRedisSessionRepo(client, time.Hour))
}

func TestRedisSessionRepoRefreshesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := NewRedisSessionRepo(client, time.Hour)
	ctx := context.Background()
	require.NoError(t, repo.Set(ctx, "s1", sampleSession()))
	assert.Equal(t, time.Hour, mr.TTL("merchant:session:s1"))

	mr.FastForward(30 * time.Minute)
	require.NoError(t, repo.ClearCheckout(ctx, "s1"))
	assert.Equal(t, time.Hour, mr.TTL("merchant:session:s1"))

	mr.FastForward(2 * time.Hour)
	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
