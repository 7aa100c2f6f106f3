package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/internal/model"

	"github.com/go-redis/redis/v8"
)

const DefaultSessionTTL = 12 * time.Hour

// maxUpdateRetries bounds optimistic WATCH retries for one Update call.
const maxUpdateRetries = 32

type redisSessionRepo struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSessionRepo stores each session as a JSON value that expires after ttl
// of inactivity. Every write refreshes the expiry.
func NewRedisSessionRepo(client *redis.Client, ttl time.Duration) SessionRepository {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &redisSessionRepo{client: client, prefix: "merchant:session:", ttl: ttl}
}

func (r *redisSessionRepo) key(id string) string {
	return r.prefix + id
}

func (r *redisSessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	raw, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return &s, nil
}

func (r *redisSessionRepo) Set(ctx context.Context, id string, s *model.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(id), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Update runs a WATCH/MULTI transaction on the session key and retries when
// another writer touched the key in between.
func (r *redisSessionRepo) Update(ctx context.Context, id string, fn func(s *model.Session)) error {
	key := r.key(id)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}

		var s model.Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("corrupt session %s: %w", id, err)
		}
		fn(&s)
		out, err := json.Marshal(&s)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrSessionConflict
}

func (r *redisSessionRepo) ClearCheckout(ctx context.Context, id string) error {
	return r.Update(ctx, id, func(s *model.Session) { s.ClearCheckout() })
}

func (r *redisSessionRepo) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
