package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-cart-orders/internal/domain"
)

type HistoryReader interface {
	GetOrdersByUserID(ctx context.Context, userID int64) ([]domain.OrderView, error)
}

type UsersHandler struct {
	History HistoryReader
}

func (h *UsersHandler) Register(r chi.Router) {
	r.Get("/api/users/{userId}/orders", h.orders)
}

func (h *UsersHandler) orders(w http.ResponseWriter, r *http.Request) {
	userID, err := idParam(r, "userId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	views, err := h.History.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}
