// Package catalog lists products and categories page by page and derives branch
// scoped stock and price for them.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/rembon2016/cts-merchant-sub001/internal/api"
	"github.com/rembon2016/cts-merchant-sub001/internal/fetch"
	"github.com/rembon2016/cts-merchant-sub001/internal/model"
	"github.com/rembon2016/cts-merchant-sub001/pkg/validator"

	"go.uber.org/zap"
)

const (
	TagProducts   = "products"
	TagCategories = "categories"
	TagReferences = "references"

	DefaultPerPage = 10
)

var ErrProductNotFound = errors.New("product not found")

// Params filter a product listing. Reset replaces the loaded list instead of appending.
type Params struct {
	Page       int    `query:"page"`
	PerPage    int    `query:"per_page"`
	CategoryID *int64 `query:"category_id"`
	Search     string `query:"search"`
	Reset      bool   `query:"reset"`
}

func (p Params) withDefaults() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	return p
}

func (p Params) query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("per_page", strconv.Itoa(p.PerPage))
	if p.CategoryID != nil {
		q.Set("category_id", strconv.FormatInt(*p.CategoryID, 10))
	}
	if p.Search != "" {
		q.Set("search", p.Search)
	}
	return q
}

// State is what a product grid renders from.
type State struct {
	Products        []model.Product `json:"products"`
	CurrentPage     int             `json:"current_page"`
	HasMoreProducts bool            `json:"has_more_products"`
	Total           int             `json:"total"`
	IsLoading       bool            `json:"is_loading"`
	Error           string          `json:"error,omitempty"`
}

type Store struct {
	client  *api.Client
	cache   fetch.Cache
	deriver Deriver
	logger  *zap.Logger
	opts    []fetch.Option

	products *fetch.Fetcher
	detail   *fetch.Fetcher

	mu     sync.Mutex
	state  State
	params Params
	refs   map[string]*fetch.Fetcher
}

func NewStore(client *api.Client, cache fetch.Cache, branchID int64, logger *zap.Logger, opts ...fetch.Option) *Store {
	if cache == nil {
		cache = fetch.NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]fetch.Option{fetch.WithLogger(logger)}, opts...)
	return &Store{
		client:   client,
		cache:    cache,
		deriver:  NewDeriver(branchID),
		logger:   logger,
		opts:     opts,
		products: fetch.New(client.HTTPClient(), cache, opts...),
		detail:   fetch.New(client.HTTPClient(), cache, opts...),
		refs:     make(map[string]*fetch.Fetcher),
	}
}

func (s *Store) Deriver() Deriver {
	return s.deriver
}

// State returns a snapshot. Loading and the auto-clearing error come from the listing fetcher.
func (s *Store) State() State {
	fs := s.products.State()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Products = append([]model.Product(nil), s.state.Products...)
	st.IsLoading = fs.Loading
	st.Error = fs.Error
	return st
}

// GetProducts loads one page. It appends to the loaded products unless p.Reset is set.
// A call made while another listing request is running returns fetch.ErrInFlight.
func (s *Store) GetProducts(ctx context.Context, p Params) error {
	p = p.withDefaults()

	res, err := s.products.Fetch(ctx, s.client.URL("/products", p.query()), fetch.Options{
		Headers: s.client.Headers(ctx),
		Tag:     TagProducts,
	})
	if err != nil {
		return err
	}

	var page model.Page[model.Product]
	if err := json.Unmarshal(res.Data, &page); err != nil {
		return fmt.Errorf("decode products page: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Reset {
		s.state.Products = page.Data
	} else {
		s.state.Products = append(s.state.Products, page.Data...)
	}
	s.state.CurrentPage = page.CurrentPage
	s.state.HasMoreProducts = page.CurrentPage < page.LastPage
	s.state.Total = page.Total
	if s.state.Total == 0 {
		s.state.Total = res.Total
	}
	s.params = p
	return nil
}

// LoadMoreProducts advances to the next page with the filters of p. It does nothing
// when the last page is already loaded or a listing request is running.
func (s *Store) LoadMoreProducts(ctx context.Context, p Params) error {
	if s.products.State().Loading {
		return nil
	}

	s.mu.Lock()
	hasMore := s.state.HasMoreProducts
	p.Page = s.state.CurrentPage + 1
	if p.PerPage == 0 {
		p.PerPage = s.params.PerPage
	}
	s.mu.Unlock()

	if !hasMore {
		return nil
	}
	p.Reset = false
	err := s.GetProducts(ctx, p)
	if errors.Is(err, fetch.ErrInFlight) {
		return nil
	}
	return err
}

// CurrentParams returns the filters of the last successful listing.
func (s *Store) CurrentParams() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *Store) GetProductDetail(ctx context.Context, id int64) (*model.Product, error) {
	res, err := s.detail.Fetch(ctx, s.client.URL(fmt.Sprintf("/products/%d", id), nil), fetch.Options{
		Headers: s.client.Headers(ctx),
		Tag:     TagProducts,
	})
	if err != nil {
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == 404 {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	var p model.Product
	if err := json.Unmarshal(res.Data, &p); err != nil {
		return nil, fmt.Errorf("decode product %d: %w", id, err)
	}
	return &p, nil
}

func (s *Store) GetCategories(ctx context.Context) ([]model.Category, error) {
	raw, err := s.reference(ctx, "/categories", TagCategories)
	if err != nil {
		return nil, err
	}
	return decodeList[model.Category](raw)
}

func (s *Store) GetBrands(ctx context.Context) ([]model.Reference, error) {
	return s.references(ctx, "/brands")
}

func (s *Store) GetUnits(ctx context.Context) ([]model.Reference, error) {
	return s.references(ctx, "/units")
}

func (s *Store) GetTypeProducts(ctx context.Context) ([]model.Reference, error) {
	return s.references(ctx, "/type-products")
}

func (s *Store) references(ctx context.Context, path string) ([]model.Reference, error) {
	raw, err := s.reference(ctx, path, TagReferences)
	if err != nil {
		return nil, err
	}
	return decodeList[model.Reference](raw)
}

// reference loads a lookup list through a fetcher of its own, so lookups for a form can
// run side by side.
func (s *Store) reference(ctx context.Context, path, tag string) (json.RawMessage, error) {
	s.mu.Lock()
	f, ok := s.refs[path]
	if !ok {
		f = fetch.New(s.client.HTTPClient(), s.cache, s.opts...)
		s.refs[path] = f
	}
	s.mu.Unlock()

	res, err := f.Fetch(ctx, s.client.URL(path, nil), fetch.Options{
		Headers: s.client.Headers(ctx),
		Tag:     tag,
	})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// decodeList accepts both a bare array and a paginator as the data field.
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	var list []T
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var page model.Page[T]
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, err
	}
	return page.Data, nil
}

func (s *Store) AddProduct(ctx context.Context, in *ProductInput) (*model.Product, error) {
	in.Normalize()
	if err := validator.Check(in); err != nil {
		return nil, err
	}

	var out model.Product
	if _, err := s.client.Post(ctx, "/products", in, &out); err != nil {
		return nil, err
	}
	s.invalidate(ctx, TagProducts)
	return &out, nil
}

// EditProduct goes out as POST with _method=PUT when the form carries an image and the
// client has method override enabled.
func (s *Store) EditProduct(ctx context.Context, id int64, in *ProductInput) (*model.Product, error) {
	in.Normalize()
	if err := validator.Check(in); err != nil {
		return nil, err
	}

	var out model.Product
	if _, err := s.client.Put(ctx, fmt.Sprintf("/products/%d", id), in, &out); err != nil {
		return nil, err
	}
	s.invalidate(ctx, TagProducts)
	return &out, nil
}

func (s *Store) RemoveProduct(ctx context.Context, id int64) error {
	if _, err := s.client.Delete(ctx, fmt.Sprintf("/products/%d", id), nil); err != nil {
		return err
	}
	s.invalidate(ctx, TagProducts)

	s.mu.Lock()
	kept := s.state.Products[:0:0]
	for _, p := range s.state.Products {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if removed := len(s.state.Products) - len(kept); removed > 0 && s.state.Total >= removed {
		s.state.Total -= removed
	}
	s.state.Products = kept
	s.mu.Unlock()
	return nil
}

func (s *Store) AddCategory(ctx context.Context, in *CategoryInput) (*model.Category, error) {
	in.Normalize()
	if err := validator.Check(in); err != nil {
		return nil, err
	}

	var out model.Category
	if _, err := s.client.Post(ctx, "/categories", in, &out); err != nil {
		return nil, err
	}
	s.invalidate(ctx, TagCategories)
	return &out, nil
}

func (s *Store) EditCategory(ctx context.Context, id int64, in *CategoryInput) (*model.Category, error) {
	in.Normalize()
	if err := validator.Check(in); err != nil {
		return nil, err
	}

	var out model.Category
	if _, err := s.client.Put(ctx, fmt.Sprintf("/categories/%d", id), in, &out); err != nil {
		return nil, err
	}
	s.invalidate(ctx, TagCategories)
	return &out, nil
}

func (s *Store) RemoveCategory(ctx context.Context, id int64) error {
	if _, err := s.client.Delete(ctx, fmt.Sprintf("/categories/%d", id), nil); err != nil {
		return err
	}
	s.invalidate(ctx, TagCategories)
	return nil
}

func (s *Store) invalidate(ctx context.Context, tag string) {
	if err := s.products.Invalidate(ctx, tag); err != nil {
		s.logger.Warn("failed to invalidate cached listings", zap.String("tag", tag), zap.Error(err))
	}
}
