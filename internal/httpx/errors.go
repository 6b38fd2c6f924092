package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
)

type errorBody struct {
	Error     string        `json:"error"`
	ItemID    string        `json:"item_id,omitempty"`
	ItemName  string        `json:"item_name,omitempty"`
	Available *int          `json:"available,omitempty"`
	From      orders.Status `json:"from,omitempty"`
	To        orders.Status `json:"to,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to a status code. Infrastructure
// failures are logged and reported generically.
func writeError(ctx context.Context, log *slog.Logger, w http.ResponseWriter, err error) {
	var (
		invalid *orders.ValidationError
		short   *orders.InsufficientStockError
		illegal *orders.IllegalTransitionError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: invalid.Error()})
	case errors.As(err, &short):
		avail := short.Available
		writeJSON(w, http.StatusConflict, errorBody{
			Error: short.Error(), ItemID: short.ItemID, ItemName: short.ItemName, Available: &avail,
		})
	case errors.As(err, &illegal):
		writeJSON(w, http.StatusConflict, errorBody{Error: illegal.Error(), From: illegal.From, To: illegal.To})
	case errors.Is(err, orders.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, context.DeadlineExceeded):
		log.WarnContext(ctx, "request timed out", "err", err)
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "timeout"})
	default:
		log.ErrorContext(ctx, "request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}
