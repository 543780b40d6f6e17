package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/forPelevin/recut/internal/artifacts"
	"github.com/forPelevin/recut/internal/ledger"
)

// RunLedger is the read side of the run ledger.
type RunLedger interface {
	Get(ctx context.Context, runID string) (ledger.Run, error)
	List(ctx context.Context, limit int) ([]ledger.Run, error)
}

type App struct {
	Ledger RunLedger
	Store  *artifacts.Store
	Log    zerolog.Logger
}

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(app.Log))
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)
	r.Get("/runs", app.ListRunsHandler)
	r.Get("/runs/{runID}", app.GetRunHandler)
	r.Get("/runs/{runID}/edl", app.GetEDLHandler)

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Dur("elapsed", time.Since(start)).
				Msg("http request")
		})
	}
}
