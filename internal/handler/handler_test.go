package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rembon2016/cts-merchant-sub001/internal/api"
	"github.com/rembon2016/cts-merchant-sub001/internal/fetch"
	"github.com/rembon2016/cts-merchant-sub001/internal/repository"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"
	"github.com/rembon2016/cts-merchant-sub001/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cartBody = `{"success":true,"data":{"id":3,"items":[
	{"id":10,"cart_id":3,"product_id":1,"name":"Kopi","quantity":2,"price":"15000","subtotal":"30000"}
]}}`

type backend struct {
	mux *http.ServeMux
	srv *httptest.Server

	mu       sync.Mutex
	auth     []string
	checkout map[string]any
	failNext bool
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{mux: http.NewServeMux()}
	b.mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"success":true,"data":{"id":99,"name":"Baru"}}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":{"data":[
			{"id":1,"name":"Kopi","price_product":"9000","product_stocks":[{"branch_id":1,"product_id":1,"qty":4},{"branch_id":2,"product_id":1,"qty":9}],
			 "product_prices":[{"branch_id":1,"product_id":1,"price":"15000"}]}
		],"current_page":1,"last_page":2,"per_page":1,"total":2}}`))
	})
	b.mux.HandleFunc("/api/units", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":3,"name":"pcs"}]}`))
	})
	b.mux.HandleFunc("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		b.record(r)
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"success":true,"message":"Added"}`))
			return
		}
		w.Write([]byte(cartBody))
	})
	b.mux.HandleFunc("/api/pos-settings", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"id":1,"branch_id":1,"tax":"10","is_tax":1}}`))
	})
	b.mux.HandleFunc("/api/checkout", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failNext {
			b.failNext = false
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"success":false,"message":"Stok produk Kopi tidak mencukupi"}`))
			return
		}
		json.NewDecoder(r.Body).Decode(&b.checkout)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"success":true,"data":{"id":55,"invoice":"INV-55","status":"paid"}}`))
	})
	b.srv = httptest.NewServer(b.mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) record(r *http.Request) {
	b.mu.Lock()
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	b.mu.Unlock()
}

type recordingConn struct {
	mu     sync.Mutex
	events []ws.Event
}

func (c *recordingConn) WriteMessage(_ int, data []byte) error {
	var ev ws.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ev := range c.events {
		out = append(out, ev.Type+"/"+ev.Action)
	}
	return out
}

type testEnv struct {
	app     *fiber.App
	backend *backend
	hub     *ws.Hub
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	b := newBackend(t)
	client, err := api.NewClient(api.Config{BaseURL: b.srv.URL + "/api", HTTPClient: b.srv.Client()}, nil)
	require.NoError(t, err)

	repo := repository.NewMemorySessionRepo()
	workspaces := service.NewWorkspaces(client, fetch.NewMemoryCache(), repo, nil)
	sessions := service.NewSessionService(repo, jwt.NewManager("secret", time.Hour), workspaces, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(nil)
	go hub.Run(ctx)

	app := fiber.New()
	SetupRoutes(app, Deps{Sessions: sessions, Workspaces: workspaces, Hub: hub})
	return &testEnv{app: app, backend: b, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != fiber.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (e *testEnv) open(t *testing.T, branchID int64) string {
	t.Helper()
	status, body := e.do(t, "POST", "/api/v1/session", "", map[string]any{
		"auth_token": "backend-tok",
		"branch_id":  branchID,
		"user_id":    7,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	return body["token"].(string)
}

func TestOpenSessionRequiresCredentials(t *testing.T) {
	env := setupEnv(t)
	status, body := env.do(t, "POST", "/api/v1/session", "", map[string]any{"branch_id": 1})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "AuthToken")
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	env := setupEnv(t)
	status, body := env.do(t, "GET", "/api/v1/cart", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, jwt.ErrMissingToken.Error(), body["error"])
}

func TestProductListingResolvesBranch(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)

	status, body := env.do(t, "GET", "/api/v1/catalog/products?per_page=1", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["has_more_products"])
	assert.Equal(t, float64(2), body["total"])

	data := body["data"].([]any)
	require.Len(t, data, 1)
	p := data[0].(map[string]any)
	assert.Equal(t, float64(4), p["stock"])
	assert.Equal(t, "15000", p["price"])
	assert.Equal(t, true, p["available"])

	env.backend.mu.Lock()
	assert.Contains(t, env.backend.auth, "Bearer backend-tok")
	env.backend.mu.Unlock()
}

func TestReferenceLists(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)

	status, body := env.do(t, "GET", "/api/v1/catalog/units", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Len(t, body["data"], 1)

	status, _ = env.do(t, "GET", "/api/v1/catalog/colors", token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestCreateProductMultipart(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("payload", `{"name":"Es Teh","price":"Rp 5.000"}`))
	fw, err := mw.CreateFormFile("image", "teh.jpg")
	require.NoError(t, err)
	fw.Write([]byte("jpg"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/v1/catalog/products", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := env.app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestCreateProductValidation(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)

	status, body := env.do(t, "POST", "/api/v1/catalog/products", token, map[string]any{"name": "Tanpa Harga"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "Price")
}

func TestCartToOrderFlow(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)

	status, body := env.do(t, "POST", "/api/v1/cart", token, map[string]any{"product_id": 1, "quantity": 2})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, body = env.do(t, "GET", "/api/v1/cart", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = env.do(t, "PATCH", "/api/v1/cart/items/10", token, map[string]any{"selected": true})
	require.Equal(t, fiber.StatusOK, status, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "30000", data["selected_subtotal"])

	status, body = env.do(t, "GET", "/api/v1/checkout/settings", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = env.do(t, "GET", "/api/v1/checkout/preview", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	totals := body["data"].(map[string]any)
	assert.Equal(t, "3000", totals["tax"])
	assert.Equal(t, "33000", totals["total"])

	conn := &recordingConn{}
	env.hub.Register <- &ws.Client{SessionID: sessionIDOf(t, token), Conn: conn}

	status, body = env.do(t, "POST", "/api/v1/checkout", token, map[string]any{"payment_method_id": 1})
	require.Equal(t, fiber.StatusCreated, status, body)
	res := body["data"].(map[string]any)
	assert.Equal(t, "/order/55", res["route"])

	env.backend.mu.Lock()
	assert.Equal(t, 30000.0, env.backend.checkout["sub_total"])
	assert.Equal(t, 3000.0, env.backend.checkout["tax_amount"])
	assert.Equal(t, 33000.0, env.backend.checkout["payment_amount"])
	env.backend.mu.Unlock()

	assert.Eventually(t, func() bool {
		for _, tp := range conn.types() {
			if tp == ws.TypeOrder+"/created" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// the selection is gone once the order went through
	status, body = env.do(t, "GET", "/api/v1/checkout/preview", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "0", body["data"].(map[string]any)["total"])

	status, body = env.do(t, "POST", "/api/v1/checkout", token, map[string]any{"payment_method_id": 1})
	assert.Equal(t, fiber.StatusBadRequest, status, body)
}

func TestCheckoutBackendRejection(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)

	env.do(t, "GET", "/api/v1/cart", token, nil)
	env.do(t, "PATCH", "/api/v1/cart/items/10", token, map[string]any{"selected": true})

	env.backend.mu.Lock()
	env.backend.failNext = true
	env.backend.mu.Unlock()

	status, body := env.do(t, "POST", "/api/v1/checkout", token, map[string]any{"payment_method_id": 1})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "Stok produk Kopi tidak mencukupi", body["error"])

	// still selected, so the user can retry
	status, body = env.do(t, "GET", "/api/v1/checkout/preview", token, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "30000", body["data"].(map[string]any)["total"])
}

func TestVoucherAndRouteChange(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)

	status, body := env.do(t, "POST", "/api/v1/cart/voucher", token, map[string]any{"code": " "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "voucher code is required", body["error"])

	env.do(t, "GET", "/api/v1/cart", token, nil)
	env.do(t, "PATCH", "/api/v1/cart/items/10", token, map[string]any{"selected": true})

	status, _ = env.do(t, "POST", "/api/v1/route", token, map[string]any{"path": "/checkout/"})
	require.Equal(t, fiber.StatusNoContent, status)
	_, body = env.do(t, "GET", "/api/v1/checkout/preview", token, nil)
	assert.Equal(t, "30000", body["data"].(map[string]any)["subtotal"])

	status, _ = env.do(t, "POST", "/api/v1/route", token, map[string]any{"path": "/products"})
	require.Equal(t, fiber.StatusNoContent, status)
	_, body = env.do(t, "GET", "/api/v1/checkout/preview", token, nil)
	assert.Equal(t, "0", body["data"].(map[string]any)["subtotal"])
}

func TestUpdateItemErrors(t *testing.T) {
	env := setupEnv(t)
	token := env.open(t, 1)
	env.do(t, "GET", "/api/v1/cart", token, nil)

	status, _ := env.do(t, "PATCH", "/api/v1/cart/items/10", token, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, "PATCH", "/api/v1/cart/items/999", token, map[string]any{"quantity": 1})
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = env.do(t, "PATCH", "/api/v1/cart/items/10", token, map[string]any{"quantity": 0})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := env.do(t, "PATCH", "/api/v1/cart/items/10", token, map[string]any{"quantity": 3})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "45000", body["data"].(map[string]any)["selected_subtotal"])
}

func sessionIDOf(t *testing.T, token string) string {
	t.Helper()
	claims, err := jwt.NewManager("secret", time.Hour).ValidateToken(token)
	require.NoError(t, err)
	return claims.SessionID.String()
}
