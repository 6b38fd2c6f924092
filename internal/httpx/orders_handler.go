package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-foodcourt-orders/internal/notify"
	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OrderCache is the optional cache in front of GET /orders/{id}.
type OrderCache interface {
	Get(ctx context.Context, orderID string) ([]byte, bool)
	Set(ctx context.Context, orderID string, body []byte)
	Delete(ctx context.Context, orderID string)
}

type OrdersHandler struct {
	Service *orders.Service
	Cache   OrderCache      // may be nil
	Gateway *notify.Gateway // may be nil: no websocket endpoint
	Router  *notify.Router
	Log     *slog.Logger
}

type TransitionReq struct {
	Status orders.Status `json:"status"`
}

type AdjustStockReq struct {
	Stock *int `json:"stock"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	if h.Gateway != nil {
		RegisterGateway(r, h.Gateway, h.Router)
	}
	r.Get("/shops/{shopID}/items", h.listItems)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15*time.Second), identity)

		r.Post("/orders", h.submit)
		r.Get("/orders/mine", h.myOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}/status", h.transition)
		r.Post("/orders/{id}/cancel", h.cancel)

		r.Put("/items/{itemID}/stock", h.adjustStock)
		r.Get("/shops/{shopID}/orders", h.activeForShop)
		r.Get("/shops/{shopID}/orders/history", h.historyForShop)
		r.Get("/admin/orders/active", h.allActive)
	})
}

func (h *OrdersHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req orders.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Submit(ctx, actorFrom(ctx), req)
	if err != nil {
		writeError(ctx, h.Log, w, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	actor := actorFrom(ctx)

	// 1) cache; ownership is still checked against the cached copy
	if h.Cache != nil {
		if b, ok := h.Cache.Get(ctx, id); ok {
			var o orders.Order
			if json.Unmarshal(b, &o) == nil && orders.CanView(actor, o) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(b)
				return
			}
		}
	}

	// 2) store
	o, err := h.Service.Get(ctx, actor, id)
	if err != nil {
		writeError(ctx, h.Log, w, err)
		return
	}
	h.cache(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "status is required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Transition(ctx, actorFrom(ctx), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(ctx, h.Log, w, err)
		return
	}
	h.evict(ctx, o.ID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Cancel(ctx, actorFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, h.Log, w, err)
		return
	}
	h.evict(ctx, o.ID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(ctx context.Context, a orders.Actor) ([]orders.Order, error) {
		return h.Service.ForCustomer(ctx, a)
	})
}

func (h *OrdersHandler) activeForShop(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(ctx context.Context, a orders.Actor) ([]orders.Order, error) {
		return h.Service.ActiveForShop(ctx, a, chi.URLParam(r, "shopID"))
	})
}

func (h *OrdersHandler) historyForShop(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(ctx context.Context, a orders.Actor) ([]orders.Order, error) {
		return h.Service.HistoryForShop(ctx, a, chi.URLParam(r, "shopID"))
	})
}

func (h *OrdersHandler) allActive(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.Service.AllActive)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, orders.Actor) ([]orders.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := fn(ctx, actorFrom(ctx))
	if err != nil {
		writeError(ctx, h.Log, w, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listItems(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	items, err := h.Service.Items(ctx, chi.URLParam(r, "shopID"))
	if err != nil {
		writeError(ctx, h.Log, w, err)
		return
	}
	if items == nil {
		items = []orders.CatalogItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *OrdersHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req AdjustStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stock == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "stock is required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.Service.AdjustStock(ctx, actorFrom(ctx), chi.URLParam(r, "itemID"), *req.Stock)
	if err != nil {
		writeError(ctx, h.Log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *OrdersHandler) cache(ctx context.Context, o orders.Order) {
	if h.Cache == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	h.Cache.Set(ctx, o.ID, b)
}

// evict drops the cached copy after a status change. The next read
// repopulates it from the store.
func (h *OrdersHandler) evict(ctx context.Context, orderID string) {
	if h.Cache != nil {
		h.Cache.Delete(ctx, orderID)
	}
}
