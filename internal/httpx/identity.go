package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-foodcourt-orders/internal/orders"
)

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
	HeaderShopID = "X-Shop-ID"
)

type actorKey struct{}

func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := orders.Actor{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Role:   orders.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))),
			ShopID: strings.TrimSpace(r.Header.Get(HeaderShopID)),
		}
		switch a.Role {
		case orders.RoleCustomer, orders.RoleVendor, orders.RoleOperator:
		default:
			a.Role = ""
		}
		if a.UserID == "" || a.Role == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing identity"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, a)))
	})
}

func actorFrom(ctx context.Context) orders.Actor {
	a, _ := ctx.Value(actorKey{}).(orders.Actor)
	return a
}
