// Package checkout turns the session's selected cart into an order and submits it.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/internal/api"
	"github.com/rembon2016/cts-merchant-sub001/internal/fetch"
	"github.com/rembon2016/cts-merchant-sub001/internal/model"
	"github.com/rembon2016/cts-merchant-sub001/internal/repository"
	"github.com/rembon2016/cts-merchant-sub001/pkg/validator"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	TagTransactions = "transactions"
	TagSettings     = "settings"

	DefaultBannerTTL = 3 * time.Second

	MsgOrderSaved  = "Order saved"
	MsgOrderFailed = "Failed to save order, please try again"
)

var (
	ErrEmptyCart           = errors.New("no items selected for checkout")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// SaveOrderInput is what the payment screen contributes to an order. A zero
// PaymentAmount means exact payment.
type SaveOrderInput struct {
	PaymentMethodID int64           `json:"payment_method_id" validate:"required,gt=0"`
	PaymentAmount   decimal.Decimal `json:"payment_amount"`
}

// OrderResult is a saved order and the route the client moves to.
type OrderResult struct {
	Transaction *model.Transaction `json:"transaction"`
	Route       string             `json:"route"`
}

type State struct {
	PaymentMethods []model.PaymentMethod `json:"payment_methods"`
	Settings       *model.PosSettings    `json:"settings"`
	IsLoading      bool                  `json:"is_loading"`
	Error          string                `json:"error,omitempty"`
	Success        bool                  `json:"success"`
	Message        string                `json:"message,omitempty"`
}

type Option func(*Store)

func WithBannerTTL(d time.Duration) Option {
	return func(s *Store) { s.bannerTTL = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithFetchOptions(opts ...fetch.Option) Option {
	return func(s *Store) { s.fetchOpts = append(s.fetchOpts, opts...) }
}

// Store reads the session only as a snapshot taken when an order is submitted.
type Store struct {
	client    *api.Client
	sessions  repository.SessionRepository
	sessionID string
	nav       Navigator
	bannerTTL time.Duration
	logger    *zap.Logger
	fetchOpts []fetch.Option

	methods  *fetch.Fetcher
	settings *fetch.Fetcher
	detail   *fetch.Fetcher
	banner   *fetch.Banner

	mu             sync.Mutex
	saving         bool
	paymentMethods []model.PaymentMethod
	posSettings    *model.PosSettings
}

func NewStore(client *api.Client, cache fetch.Cache, sessions repository.SessionRepository, sessionID string, nav Navigator, opts ...Option) *Store {
	s := &Store{
		client:    client,
		sessions:  sessions,
		sessionID: sessionID,
		nav:       nav,
		bannerTTL: DefaultBannerTTL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.nav == nil {
		s.nav = &RouteRecorder{}
	}
	fopts := append([]fetch.Option{fetch.WithLogger(s.logger)}, s.fetchOpts...)
	s.methods = fetch.New(client.HTTPClient(), cache, fopts...)
	s.settings = fetch.New(client.HTTPClient(), cache, fopts...)
	s.detail = fetch.New(client.HTTPClient(), cache, fopts...)
	s.banner = fetch.NewBanner(s.bannerTTL)
	return s
}

func (s *Store) State() State {
	bs := s.banner.State()
	loading := s.methods.State().Loading || s.settings.State().Loading || s.detail.State().Loading

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		PaymentMethods: append([]model.PaymentMethod(nil), s.paymentMethods...),
		Settings:       s.posSettings,
		IsLoading:      loading || s.saving,
		Error:          bs.Error,
		Success:        bs.Success,
		Message:        bs.Message,
	}
}

// GetPaymentMethods loads the list once per checkout session.
func (s *Store) GetPaymentMethods(ctx context.Context) ([]model.PaymentMethod, error) {
	s.mu.Lock()
	if s.paymentMethods != nil {
		out := append([]model.PaymentMethod(nil), s.paymentMethods...)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	res, err := s.methods.Fetch(ctx, s.client.URL("/payment-methods", nil), fetch.Options{
		Headers: s.client.Headers(ctx),
		Tag:     TagSettings,
	})
	if err != nil {
		return nil, err
	}
	methods := []model.PaymentMethod{}
	if err := json.Unmarshal(res.Data, &methods); err != nil {
		return nil, fmt.Errorf("decode payment methods: %w", err)
	}

	s.mu.Lock()
	s.paymentMethods = methods
	s.mu.Unlock()
	return append([]model.PaymentMethod(nil), methods...), nil
}

// GetPosSettings loads the branch settings and stores the tax percentage in the session.
func (s *Store) GetPosSettings(ctx context.Context) (*model.PosSettings, error) {
	res, err := s.settings.Fetch(ctx, s.client.URL("/pos-settings", nil), fetch.Options{
		Headers: s.client.Headers(ctx),
		Tag:     TagSettings,
	})
	if err != nil {
		return nil, err
	}
	var settings model.PosSettings
	if err := json.Unmarshal(res.Data, &settings); err != nil {
		return nil, fmt.Errorf("decode pos settings: %w", err)
	}

	if err := s.sessions.Update(ctx, s.sessionID, func(sess *model.Session) {
		sess.Tax = settings.Tax
	}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.posSettings = &settings
	s.mu.Unlock()
	return &settings, nil
}

// Preview computes the totals of the current session snapshot.
func (s *Store) Preview(ctx context.Context) (Totals, error) {
	sess, err := s.sessions.Get(ctx, s.sessionID)
	if err != nil {
		return Totals{}, err
	}
	return ComputeTotals(SelectedSubtotal(sess.Cart), sess.Tax), nil
}

// SaveOrder submits the order built from the session snapshot. On success the session's
// cart, tax and discount are cleared and the client is sent to the order route. On failure
// the session is left as it was so the user can retry.
func (s *Store) SaveOrder(ctx context.Context, in SaveOrderInput) (*OrderResult, error) {
	// 1. Snapshot
	sess, err := s.sessions.Get(ctx, s.sessionID)
	if err != nil {
		return nil, err
	}
	if len(sess.Cart) == 0 {
		s.banner.Error(ErrEmptyCart.Error())
		return nil, ErrEmptyCart
	}

	// 2. Build & validate
	payload := BuildPayload(sess, in)
	if err := validator.Check(&payload); err != nil {
		s.banner.Error(err.Error())
		return nil, err
	}

	// 3. Submit
	s.mu.Lock()
	s.saving = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.saving = false
		s.mu.Unlock()
	}()

	var tx model.Transaction
	if _, err := s.client.Post(ctx, "/checkout", payload, &tx); err != nil {
		s.logger.Warn("checkout failed", zap.String("session_id", s.sessionID), zap.Error(err))
		s.banner.Error(failureMessage(err))
		return nil, err
	}

	// 4. Clear session & navigate
	if err := s.sessions.ClearCheckout(ctx, s.sessionID); err != nil {
		s.logger.Error("failed to clear session after checkout", zap.String("session_id", s.sessionID), zap.Error(err))
	}
	route := OrderRoute(tx.ID)
	s.nav.Navigate(route)
	s.banner.Success(MsgOrderSaved)

	s.logger.Info("order saved",
		zap.String("session_id", s.sessionID),
		zap.Int64("transaction_id", tx.ID),
		zap.String("sub_total", payload.SubTotal.String()),
		zap.String("tax_amount", payload.TaxAmount.String()),
	)
	return &OrderResult{Transaction: &tx, Route: route}, nil
}

func (s *Store) GetTransactionDetail(ctx context.Context, id int64) (*model.Transaction, error) {
	res, err := s.detail.Fetch(ctx, s.client.URL(fmt.Sprintf("/transactions/%d", id), nil), fetch.Options{
		Headers: s.client.Headers(ctx),
		Tag:     TagTransactions,
	})
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == 404 {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	var tx model.Transaction
	if err := json.Unmarshal(res.Data, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction %d: %w", id, err)
	}
	return &tx, nil
}

// failureMessage shows the backend's own message verbatim and a generic text otherwise.
func failureMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := fetch.Message(err); msg != "" && !errors.As(err, &apiErr) {
		return msg
	}
	return MsgOrderFailed
}
