package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrderService interface {
	CreateOrder(ctx context.Context, cmd orders.CreateOrderCommand) (orders.OrderView, error)
	GetOrder(ctx context.Context, id string) (orders.OrderView, error)
	GetUserOrders(ctx context.Context, userID string) ([]orders.OrderView, error)
	DeleteOrder(ctx context.Context, id string) (bool, error)
}

type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, error)
	Remember(ctx context.Context, key, orderID string) error
	Forget(ctx context.Context, key string) error
}

type LowStockReader interface {
	All(ctx context.Context) (map[string]int, error)
}

type OrdersHandler struct {
	Service  OrderService
	Idem     IdempotencyStore // opsional
	LowStock LowStockReader   // opsional
	Log      *zap.Logger
	Timeout  time.Duration
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/user/{userId}", h.getUserOrders)
		r.Get("/{id}", h.getOrder)
		r.Delete("/{id}", h.deleteOrder)
	})
	if h.LowStock != nil {
		r.Get("/api/inventory/low-stock", h.lowStock)
	}
}

type messageResp struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, messageResp{Message: err.Error()})
	case orders.IsInvalidRequest(err):
		writeJSON(w, http.StatusBadRequest, messageResp{Message: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, messageResp{Message: "request timed out"})
	default:
		h.Log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResp{Message: "internal error"})
	}
}

func (h *OrdersHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	d := h.Timeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), d)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderCommand
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResp{Message: "invalid json"})
		return
	}
	if req.UserID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, messageResp{Message: "userId and at least one item are required"})
		return
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			writeJSON(w, http.StatusBadRequest, messageResp{Message: "productId is required"})
			return
		}
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	key := r.Header.Get(HeaderIdempotencyKey)
	if key != "" && h.Idem != nil {
		if v, ok := h.replay(ctx, key); ok {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}

	view, err := h.Service.CreateOrder(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if key != "" && h.Idem != nil {
		if err := h.Idem.Remember(ctx, key, view.ID); err != nil {
			h.Log.Warn("idempotency remember", zap.String("order_id", view.ID), zap.Error(err))
		}
	}
	w.Header().Set("Location", "/api/orders/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
}

// replay returns the order a previous request with the same key created, if it
// still exists. Redis is only a shortcut: on any error the request proceeds.
func (h *OrdersHandler) replay(ctx context.Context, key string) (orders.OrderView, bool) {
	id, err := h.Idem.Lookup(ctx, key)
	if err != nil {
		h.Log.Warn("idempotency lookup", zap.Error(err))
		return orders.OrderView{}, false
	}
	if id == "" {
		return orders.OrderView{}, false
	}
	v, err := h.Service.GetOrder(ctx, id)
	if errors.Is(err, orders.ErrOrderNotFound) {
		_ = h.Idem.Forget(ctx, key)
		return orders.OrderView{}, false
	}
	if err != nil {
		h.Log.Warn("idempotency replay", zap.String("order_id", id), zap.Error(err))
		return orders.OrderView{}, false
	}
	return v, true
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	v, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) getUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	vs, err := h.Service.GetUserOrders(ctx, chi.URLParam(r, "userId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	ok, err := h.Service.DeleteOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, messageResp{Message: orders.ErrOrderNotFound.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrdersHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	levels, err := h.LowStock.All(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}
