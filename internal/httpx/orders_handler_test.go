package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ariefcatur/go-order-ledger/internal/httpx"
	"github.com/ariefcatur/go-order-ledger/internal/memstore"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	alice    = "6f1c0a52-2d5e-4a8e-9a43-0d6a1b7c9e01"
	keyboard = "b7e3c1d0-5f2a-4c6b-8e91-3a4d5c6b7a01"
	mouse    = "b7e3c1d0-5f2a-4c6b-8e91-3a4d5c6b7a02"
	monitor  = "b7e3c1d0-5f2a-4c6b-8e91-3a4d5c6b7a03"
)

type memIdem struct{ keys map[string]string }

func (m *memIdem) Lookup(_ context.Context, key string) (string, error) { return m.keys[key], nil }

func (m *memIdem) Remember(_ context.Context, key, id string) error {
	if _, ok := m.keys[key]; !ok {
		m.keys[key] = id
	}
	return nil
}

func (m *memIdem) Forget(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type staticLevels map[string]int

func (s staticLevels) All(context.Context) (map[string]int, error) { return s, nil }

type env struct {
	router *chi.Mux
	store  *memstore.Store
	idem   *memIdem
}

func setup(t *testing.T) env {
	t.Helper()
	st := memstore.New()
	memstore.Seed(st)
	idem := &memIdem{keys: map[string]string{}}

	r := httpx.NewRouter(zap.NewNop())
	h := &httpx.OrdersHandler{
		Service:  orders.NewService(st),
		Idem:     idem,
		LowStock: staticLevels{monitor: 1},
		Log:      zap.NewNop(),
	}
	h.Register(r)
	return env{router: r, store: st, idem: idem}
}

func (e env) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) orders.OrderView {
	t.Helper()
	var v orders.OrderView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var m struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	return m.Message
}

func orderBody(items ...string) string {
	var b bytes.Buffer
	b.WriteString(`{"userId":"` + alice + `","items":[`)
	for i := 0; i+1 < len(items); i += 2 {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"productId":"` + items[i] + `","quantity":` + items[i+1] + `}`)
	}
	b.WriteString("]}")
	return b.String()
}

func TestCreateAndFetchOrder(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodPost, "/api/orders", orderBody(keyboard, "2", mouse, "1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeView(t, rec)
	assert.Equal(t, "/api/orders/"+created.ID, rec.Header().Get("Location"))
	assert.True(t, decimal.NewFromInt(250).Equal(created.TotalAmount))
	require.Len(t, created.Items, 2)
	assert.Equal(t, "Mechanical Keyboard", created.Items[0].ProductName)

	p, _ := e.store.Product(keyboard)
	assert.Equal(t, 8, p.StockQuantity)

	rec = e.do(t, http.MethodGet, "/api/orders/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeView(t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.True(t, created.TotalAmount.Equal(got.TotalAmount))

	rec = e.do(t, http.MethodGet, "/api/orders/user/"+alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []orders.OrderView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestCreateOrder_BadRequests(t *testing.T) {
	e := setup(t)

	cases := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"userId":`, "invalid json"},
		{"no items", `{"userId":"` + alice + `","items":[]}`, "userId and at least one item are required"},
		{"no user", `{"items":[{"productId":"` + mouse + `","quantity":1}]}`, "userId and at least one item are required"},
		{"no product id", `{"userId":"` + alice + `","items":[{"quantity":1}]}`, "productId is required"},
		{"zero quantity", orderBody(mouse, "0"), orders.ErrInvalidQuantity.Error()},
		{"unknown product", orderBody("nope", "1"), "product with id nope not found"},
		{"insufficient stock", orderBody(monitor, "4"), "available 3, requested 4"},
		{"unknown user", `{"userId":"ghost","items":[{"productId":"` + mouse + `","quantity":1}]}`, orders.ErrUserNotFound.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/orders", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, message(t, rec), tc.want)
		})
	}

	p, _ := e.store.Product(monitor)
	assert.Equal(t, 3, p.StockQuantity)
}

func TestDeleteOrder(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodPost, "/api/orders", orderBody(monitor, "3"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ID

	rec = e.do(t, http.MethodDelete, "/api/orders/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	p, _ := e.store.Product(monitor)
	assert.Equal(t, 3, p.StockQuantity)

	rec = e.do(t, http.MethodDelete, "/api/orders/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/orders/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, orders.ErrOrderNotFound.Error(), message(t, rec))
}

func TestCreateOrder_IdempotencyKeyReplays(t *testing.T) {
	e := setup(t)
	body := orderBody(mouse, "5")

	first := e.do(t, http.MethodPost, "/api/orders", body, httpx.HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, first.Code)
	id := decodeView(t, first).ID

	second := e.do(t, http.MethodPost, "/api/orders", body, httpx.HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, id, decodeView(t, second).ID)

	p, _ := e.store.Product(mouse)
	assert.Equal(t, 20, p.StockQuantity)

	// once the order is gone the key no longer replays
	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/api/orders/"+id, "").Code)
	third := e.do(t, http.MethodPost, "/api/orders", body, httpx.HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, third.Code)
	newID := decodeView(t, third).ID
	assert.NotEqual(t, id, newID)
	assert.Equal(t, newID, e.idem.keys["k1"])
}

func TestLowStockAndHealth(t *testing.T) {
	e := setup(t)

	rec := e.do(t, http.MethodGet, "/api/inventory/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"`+monitor+`":1}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type brokenService struct{ httpx.OrderService }

func (brokenService) GetOrder(context.Context, string) (orders.OrderView, error) {
	return orders.OrderView{}, &orders.PersistenceError{Op: "load order", Err: errors.New("connection refused")}
}

func TestInfrastructureErrorsAreHidden(t *testing.T) {
	r := httpx.NewRouter(zap.NewNop())
	(&httpx.OrdersHandler{Service: brokenService{}, Log: zap.NewNop()}).Register(r)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/x", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"internal error"}`, rec.Body.String())
}
