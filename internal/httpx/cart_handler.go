package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
)

type CartManager interface {
	AddToCart(ctx context.Context, in domain.AddToCartInput) (domain.CartView, error)
	FindCartByUserID(ctx context.Context, userID int64) (domain.CartView, error)
	UpdateCartItem(ctx context.Context, in domain.UpdateCartItemInput) (domain.CartView, error)
	RemoveProductFromCart(ctx context.Context, in domain.RemoveFromCartInput) (domain.CartView, error)
}

type CartHandler struct {
	Carts CartManager
}

func (h *CartHandler) Register(r chi.Router) {
	r.Post("/api/cart/add", h.add)
	r.Get("/api/cart/{userId}", h.get)
	r.Put("/api/cart/update", h.update)
	r.Delete("/api/cart/remove", h.remove)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var in domain.AddToCartInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.Carts.AddToCart(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.Carts.FindCartByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var in domain.UpdateCartItemInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.Carts.UpdateCartItem(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	var in domain.RemoveFromCartInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.Carts.RemoveProductFromCart(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
