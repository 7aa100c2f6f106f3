// Package cart keeps the server cart and the locally selected subset that goes to checkout.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
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
	TagCart = "cart"

	DefaultBannerTTL = 3 * time.Second

	MsgVoucherRequired = "Voucher code is required"
	MsgVoucherValid    = "Voucher applied"
)

var (
	ErrVoucherRequired = errors.New("voucher code is required")
	ErrItemNotFound    = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// AddItem is the body of an add-to-cart call.
type AddItem struct {
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	ProductSkuID *int64 `json:"product_sku_id,omitempty"`
	Quantity     int64  `json:"quantity" validate:"required,gt=0"`
}

type State struct {
	Cart             *model.Cart              `json:"cart"`
	Selected         []model.SelectedCartItem `json:"selected"`
	SelectedSubtotal decimal.Decimal          `json:"selected_subtotal"`
	IsLoading        bool                     `json:"is_loading"`
	Error            string                   `json:"error,omitempty"`
	Success          bool                     `json:"success"`
	Message          string                   `json:"message,omitempty"`
}

type Option func(*Store)

// WithBannerTTL sets how long voucher success and error banners stay visible.
func WithBannerTTL(d time.Duration) Option {
	return func(s *Store) { s.bannerTTL = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithFetchOptions configures the fetcher used for cart reads.
func WithFetchOptions(opts ...fetch.Option) Option {
	return func(s *Store) { s.fetchOpts = append(s.fetchOpts, opts...) }
}

// Store is the sole mutator of one session's cart state. The selected subset is never
// synced with the server cart behind the caller's back.
type Store struct {
	client    *api.Client
	cache     fetch.Cache
	sessions  repository.SessionRepository
	sessionID string
	bannerTTL time.Duration
	logger    *zap.Logger
	fetchOpts []fetch.Option

	fetcher *fetch.Fetcher
	banner  *fetch.Banner

	mu       sync.Mutex
	cart     *model.Cart
	selected []model.SelectedCartItem
	loading  bool
}

func NewStore(client *api.Client, cache fetch.Cache, sessions repository.SessionRepository, sessionID string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		cache:     cache,
		sessions:  sessions,
		sessionID: sessionID,
		bannerTTL: DefaultBannerTTL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.fetcher = fetch.New(client.HTTPClient(), cache, append([]fetch.Option{fetch.WithLogger(s.logger)}, s.fetchOpts...)...)
	s.banner = fetch.NewBanner(s.bannerTTL)
	return s
}

func (s *Store) State() State {
	fs := s.fetcher.State()
	bs := s.banner.State()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Selected:         append([]model.SelectedCartItem(nil), s.selected...),
		SelectedSubtotal: subtotal(s.selected),
		IsLoading:        s.loading || fs.Loading,
		Error:            bs.Error,
		Success:          bs.Success,
		Message:          bs.Message,
	}
	if st.Error == "" {
		st.Error = fs.Error
	}
	if s.cart != nil {
		c := *s.cart
		c.Items = append([]model.CartItem(nil), s.cart.Items...)
		st.Cart = &c
	}
	return st
}

// GetCart loads the server cart and replaces the local shadow with it.
func (s *Store) GetCart(ctx context.Context) (*model.Cart, error) {
	res, err := s.fetcher.Fetch(ctx, s.client.URL("/cart", nil), fetch.Options{
		Headers: s.client.Headers(ctx),
		Tag:     TagCart,
	})
	if err != nil {
		return nil, err
	}

	var c model.Cart
	if len(res.Data) > 0 && string(res.Data) != "null" {
		if err := json.Unmarshal(res.Data, &c); err != nil {
			return nil, fmt.Errorf("decode cart: %w", err)
		}
	}

	s.mu.Lock()
	s.cart = &c
	s.mu.Unlock()
	return &c, nil
}

func (s *Store) AddToCart(ctx context.Context, item AddItem) (*model.Cart, error) {
	if err := validator.Check(&item); err != nil {
		return nil, err
	}
	if _, err := s.client.Post(ctx, "/cart", item, nil); err != nil {
		return nil, s.fail(err)
	}
	s.invalidate(ctx)
	return s.GetCart(ctx)
}

// DeleteCartItems removes one cart line on the server and from the local shadow.
func (s *Store) DeleteCartItems(ctx context.Context, cartItemID int64) error {
	if _, err := s.client.Delete(ctx, fmt.Sprintf("/cart/%d", cartItemID), nil); err != nil {
		return s.fail(err)
	}
	s.invalidate(ctx)

	s.mu.Lock()
	if s.cart != nil {
		kept := s.cart.Items[:0:0]
		for _, it := range s.cart.Items {
			if it.ID != cartItemID {
				kept = append(kept, it)
			}
		}
		s.cart.Items = kept
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	if _, err := s.client.Delete(ctx, fmt.Sprintf("/cart/clear/%d", cartID), nil); err != nil {
		return s.fail(err)
	}
	s.invalidate(ctx)

	s.mu.Lock()
	if s.cart != nil {
		s.cart.Items = nil
	}
	s.mu.Unlock()
	return nil
}

// UpdateLocalCartItem changes a quantity without calling the server. The matching
// selected entry, keyed by product, gets subtotal price*qty and is created if missing.
func (s *Store) UpdateLocalCartItem(cartItemID, qty int64) (model.SelectedCartItem, error) {
	if qty < 1 {
		return model.SelectedCartItem{}, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cart == nil {
		return model.SelectedCartItem{}, ErrItemNotFound
	}
	idx := -1
	for i := range s.cart.Items {
		if s.cart.Items[i].ID == cartItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.SelectedCartItem{}, ErrItemNotFound
	}

	item := &s.cart.Items[idx]
	item.Quantity = qty
	item.Subtotal = item.Price.Mul(decimal.NewFromInt(qty))

	sel := item.Select()
	s.selected = upsert(s.selected, sel)
	return sel, nil
}

// CheckVoucherDiscount validates a voucher code with the backend. The discount itself is
// not applied; checkout always submits a zero discount.
func (s *Store) CheckVoucherDiscount(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		s.banner.Error(MsgVoucherRequired)
		return ErrVoucherRequired
	}

	s.banner.Clear()
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	env, err := s.client.Post(ctx, "/voucher/check", map[string]string{"code": code}, nil)

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()

	if err != nil {
		s.banner.Error(errorMessage(err))
		return err
	}
	msg := MsgVoucherValid
	if env != nil && env.Message != "" {
		msg = env.Message
	}
	s.banner.Success(msg)
	return nil
}

func (s *Store) Selected() []model.SelectedCartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SelectedCartItem(nil), s.selected...)
}

// SetSelected replaces the selected set. Later entries for the same product win but keep
// the position of the first one.
func (s *Store) SetSelected(items []model.SelectedCartItem) {
	var out []model.SelectedCartItem
	for _, it := range items {
		it.Subtotal = it.Price.Mul(decimal.NewFromInt(it.Quantity))
		out = upsert(out, it)
	}
	s.mu.Lock()
	s.selected = out
	s.mu.Unlock()
}

// ToggleSelected adds or removes the product of a cart line from the selected set.
func (s *Store) ToggleSelected(item model.CartItem, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.selected = upsert(s.selected, item.Select())
		return
	}
	kept := s.selected[:0:0]
	for _, it := range s.selected {
		if it.ProductID != item.ProductID {
			kept = append(kept, it)
		}
	}
	s.selected = kept
}

// ToggleSelectedByID is ToggleSelected for a line of the loaded cart.
func (s *Store) ToggleSelectedByID(cartItemID int64, on bool) error {
	s.mu.Lock()
	var (
		item  model.CartItem
		found bool
	)
	if s.cart != nil {
		for _, it := range s.cart.Items {
			if it.ID == cartItemID {
				item, found = it, true
				break
			}
		}
	}
	s.mu.Unlock()

	if !found {
		return ErrItemNotFound
	}
	s.ToggleSelected(item, on)
	return nil
}

func (s *Store) SelectedSubtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return subtotal(s.selected)
}

// OnRouteChange drops the selection once the user leaves the cart and checkout screens.
func (s *Store) OnRouteChange(path string) {
	switch strings.TrimSuffix(path, "/") {
	case "/cart", "/checkout":
		return
	}
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
}

// PersistSelected writes the selected set to the session. Checkout reads this snapshot,
// so changes made after the call are not seen by an order already being submitted.
func (s *Store) PersistSelected(ctx context.Context) error {
	items := s.Selected()
	return s.sessions.Update(ctx, s.sessionID, func(sess *model.Session) {
		sess.Cart = items
	})
}

// RestoreSelected loads the selection last persisted for the session.
func (s *Store) RestoreSelected(ctx context.Context) error {
	sess, err := s.sessions.Get(ctx, s.sessionID)
	if err != nil {
		return err
	}
	s.SetSelected(sess.Cart)
	return nil
}

func (s *Store) invalidate(ctx context.Context) {
	if err := s.fetcher.Invalidate(ctx, TagCart); err != nil {
		s.logger.Warn("failed to invalidate cart cache", zap.Error(err))
	}
}

func (s *Store) fail(err error) error {
	s.banner.Error(errorMessage(err))
	return err
}

func errorMessage(err error) string {
	if msg := fetch.Message(err); msg != "" {
		return msg
	}
	return "Something went wrong, please try again"
}

func upsert(items []model.SelectedCartItem, item model.SelectedCartItem) []model.SelectedCartItem {
	for i := range items {
		if items[i].ProductID == item.ProductID {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func subtotal(items []model.SelectedCartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}
