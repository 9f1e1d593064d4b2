package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
)

type OrderManager interface {
	CreateOrderOnce(ctx context.Context, key string, in domain.CreateOrderInput) (domain.OrderView, bool, error)
	GetOrderByID(ctx context.Context, orderID int64) (domain.OrderView, error)
	UpdateOrderStatus(ctx context.Context, in domain.UpdateStatusInput) (domain.OrderView, error)
	ApplyCoupon(ctx context.Context, in domain.ApplyCouponInput) (domain.OrderView, error)
}

type OrdersHandler struct {
	Orders OrderManager
}

type updateStatusReq struct {
	Status domain.Status `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/api/orders", h.create)
	r.Post("/api/orders/apply-coupon", h.applyCoupon)
	r.Get("/api/orders/{orderId}", h.get)
	r.Put("/api/orders/{orderId}/status", h.updateStatus)
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateOrderInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	view, replayed, err := h.Orders.CreateOrderOnce(r.Context(), r.Header.Get("Idempotency-Key"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		writeJSON(w, http.StatusOK, view)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	orderID, err := idParam(r, "orderId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.Orders.GetOrderByID(r.Context(), orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := idParam(r, "orderId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	// the status is validated by the service once the order is known to exist
	in := domain.UpdateStatusInput{OrderID: orderID, Status: req.Status}
	view, err := h.Orders.UpdateOrderStatus(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *OrdersHandler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var in domain.ApplyCouponInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.Orders.ApplyCoupon(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
