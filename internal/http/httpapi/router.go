package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tubeautomator/internal/http/handlers"
	"tubeautomator/internal/infra"
	"tubeautomator/internal/middleware"
)

type Options struct {
	Logger          infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.CreateJob)
		r.Get("/", app.ListJobs)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", app.GetJob)
			r.Get("/thumbnail", app.JobThumbnail)
			r.Get("/bundle", app.JobBundle)
			r.Post("/upload", app.UploadJob)
			r.Post("/retry", app.RetryJob)
		})
	})

	r.Get("/v1/publications", app.ListPublications)

	r.Route("/v1/auth", func(r chi.Router) {
		r.Get("/login", app.AuthLogin)
		r.Get("/callback", app.AuthCallback)
		r.Get("/status", app.AuthStatus)
		r.Post("/logout", app.AuthLogout)
	})

	return r
}
