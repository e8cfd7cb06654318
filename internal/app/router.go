// Package app wires the HTTP surface: router, middleware and readiness.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/commentflow/internal/adapter/httpserver"
	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(30 * time.Second))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limit mutating endpoints
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))

		wr.Route("/v1/schedules", func(sr chi.Router) {
			sr.Post("/", srv.CreateScheduleHandler())
			sr.Put("/{id}", srv.UpdateScheduleHandler())
			sr.Delete("/{id}", srv.DeleteScheduleHandler())
			sr.Post("/{id}/pause", srv.PauseScheduleHandler())
			sr.Post("/{id}/resume", srv.ResumeScheduleHandler())
			sr.Post("/{id}/complete", srv.CompleteScheduleHandler())
			sr.Post("/{id}/retry-failed", srv.RetryFailedHandler())
		})

		wr.Route("/v1/accounts", func(ar chi.Router) {
			ar.Post("/", srv.CreateAccountHandler())
			ar.Delete("/{id}", srv.DeleteAccountHandler())
			ar.Post("/{id}/verify", srv.VerifyAccountHandler())
			ar.Post("/{id}/proxy", srv.AssignProxyHandler())
		})

		wr.Route("/v1/proxies", func(pr chi.Router) {
			pr.Post("/", srv.CreateProxyHandler())
			pr.Delete("/{id}", srv.DeleteProxyHandler())
			pr.Post("/{id}/check", srv.CheckProxyHandler())
		})

		wr.Route("/v1/profiles", func(pr chi.Router) {
			pr.Post("/", srv.CreateProfileHandler())
			pr.Delete("/{id}", srv.DeleteProfileHandler())
			pr.Post("/{id}/activate", srv.ActivateProfileHandler())
		})

		wr.Route("/v1/views", func(vr chi.Router) {
			vr.Post("/", srv.CreateViewPlanHandler())
			vr.Delete("/{id}", srv.DeleteViewPlanHandler())
			vr.Post("/{id}/pause", srv.PauseViewPlanHandler())
			vr.Post("/{id}/resume", srv.ResumeViewPlanHandler())
		})
	})

	// Read-only endpoints
	r.Get("/v1/schedules", srv.ListSchedulesHandler())
	r.Get("/v1/schedules/{id}", srv.GetScheduleHandler())
	r.Get("/v1/schedules/{id}/comments", srv.ListCommentsHandler())
	r.Get("/v1/accounts", srv.ListAccountsHandler())
	r.Get("/v1/accounts/{id}", srv.GetAccountHandler())
	r.Get("/v1/proxies", srv.ListProxiesHandler())
	r.Get("/v1/proxies/{id}", srv.GetProxyHandler())
	r.Get("/v1/profiles", srv.ListProfilesHandler())
	r.Get("/v1/profiles/{id}", srv.GetProfileHandler())
	r.Get("/v1/views", srv.ListViewPlansHandler())
	r.Get("/v1/views/{id}", srv.GetViewPlanHandler())

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}
