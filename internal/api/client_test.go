package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rembon2016/cts-merchant-sub001/pkg/formenc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, override bool) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:                       srv.URL + "/api",
		HTTPClient:                    srv.Client(),
		UseMethodOverrideForMultipart: override,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestClientSendsBearerTokenAndDecodesData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/categories", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"Minuman"}]}`))
	}, false)

	var out []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	ctx := WithToken(context.Background(), "tok-123")
	_, err := c.Get(ctx, "/categories", url.Values{"page": {"2"}}, &out)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Minuman", out[0].Name)
}

func TestClientSurfacesBackendMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"message":"Stok tidak mencukupi","errors":{"qty":["too many"]}}`))
	}, false)

	_, err := c.Post(context.Background(), "/checkout", map[string]any{"x": 1}, nil)
	require.Error(t, err)
	assert.Equal(t, "Stok tidak mencukupi", err.Error())
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"too many"}, apiErr.Errors["qty"])
}

func TestClientTemplatedMessageWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, false)

	_, err := c.Get(context.Background(), "/cart", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "HTTP error! status: 502", err.Error())
}

func TestClientMethodOverrideForMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "PUT", r.FormValue("_method"))
		assert.Equal(t, "Es Teh", r.FormValue("name"))
		w.Write([]byte(`{"success":true,"data":{"id":9}}`))
	}, true)

	var out struct {
		ID int64 `json:"id"`
	}
	_, err := c.Put(context.Background(), "/products/9", map[string]any{
		"name":  "Es Teh",
		"image": &formenc.File{Name: "teh.jpg", Data: []byte("jpg")},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(9), out.ID)
}

func TestClientKeepsPutForJSONBodies(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "_method")
		w.Write([]byte(`{"success":true}`))
	}, true)

	_, err := c.Put(context.Background(), "/products/9", map[string]any{"name": "Es Teh"}, nil)
	require.NoError(t, err)
}

func TestClientWithoutOverrideKeepsPutMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.Write([]byte(`{"success":true}`))
	}, false)

	_, err := c.Put(context.Background(), "/categories/1", map[string]any{
		"image": formenc.File{Name: "c.png"},
	}, nil)
	require.NoError(t, err)
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "/api"}, nil)
	assert.Error(t, err)
}
