package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rembon2016/cts-merchant-sub001/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session changed concurrently, retries exhausted")
)

// SessionRepository replaces the browser session storage keys (cart, tax,
// discount, branchActive, userId, authToken, authPosToken) with one typed record.
type SessionRepository interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Set(ctx context.Context, id string, s *model.Session) error
	// Update applies fn to the stored session atomically per id. fn may run more
	// than once when the backend retries, so it must only assign fields.
	Update(ctx context.Context, id string, fn func(s *model.Session)) error
	ClearCheckout(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type sessionRepo struct {
	db *gorm.DB
}

// NewSessionRepo stores sessions in postgres, one JSON payload per row.
func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db}
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*model.Session, error) {
	sid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	var record model.SessionRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", sid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var s model.Session
	if err := json.Unmarshal([]byte(record.Payload), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Set(ctx context.Context, id string, s *model.Session) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}

	record := model.SessionRecord{Payload: string(payload)}
	record.ID = sid
	return r.db.WithContext(ctx).Save(&record).Error
}

// Update locks the row with SELECT ... FOR UPDATE for the length of the transaction.
func (r *sessionRepo) Update(ctx context.Context, id string, fn func(s *model.Session)) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return ErrSessionNotFound
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record model.SessionRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&record, "id = ?", sid).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var s model.Session
		if err := json.Unmarshal([]byte(record.Payload), &s); err != nil {
			return err
		}
		fn(&s)
		payload, err := json.Marshal(&s)
		if err != nil {
			return err
		}
		return tx.Model(&record).Update("payload", string(payload)).Error
	})
}

func (r *sessionRepo) ClearCheckout(ctx context.Context, id string) error {
	return r.Update(ctx, id, func(s *model.Session) { s.ClearCheckout() })
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	sid, err := uuid.Parse(id)
	if err != nil {
		return ErrSessionNotFound
	}
	return r.db.WithContext(ctx).Unscoped().Delete(&model.SessionRecord{}, "id = ?", sid).Error
}
