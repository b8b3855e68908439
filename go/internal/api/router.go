package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Mount attaches extra routes, such as the WebSocket endpoints, to the router.
type Mount func(r chi.Router)

// NewRouter serves the JSON API under /api plus whatever mounts add.
func NewRouter(h *Handler, mounts ...Mount) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", h.Version)
		r.Get("/health", h.Health)
		r.Get("/times", h.Times)
		r.Get("/scores", h.Scores)
		r.Get("/cars", h.Cars)
		r.Get("/tracks", h.Tracks)
		r.Get("/usernames", h.Usernames)
		r.Post("/addtime", h.AddTime)
	})

	for _, mount := range mounts {
		mount(r)
	}
	return r
}

// StaticFiles serves dir under /static/.
func StaticFiles(dir string) Mount {
	return func(r chi.Router) {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(dir)))
		r.Get("/static/*", fs.ServeHTTP)
	}
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request served")
		}()

		next.ServeHTTP(ww, r)
	})
}
