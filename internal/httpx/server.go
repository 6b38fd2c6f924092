package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-foodcourt-orders/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// RegisterGateway mounts the websocket endpoint outside the request
// timeout; connections live as long as the client keeps them open.
func RegisterGateway(r *chi.Mux, gw *notify.Gateway, router *notify.Router) {
	r.With(identity).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		gw.Serve(w, r, actorFrom(r.Context()))
	})
	if router != nil {
		r.Get("/debug/notify", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, router.Stats())
		})
	}
}
