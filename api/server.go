/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request, echoed in error logs
  4. Secure:     Security response headers
  5. CORS:       Cross-origin requests for the review frontend
  6. Rate limit: Per-IP requests per minute (0 disables)

ROUTE GROUPS:
  /api/rulesets/*       Ruleset configuration
  /api/companies/*      Customers
  /api/drafts/*         Draft list, edits, generation status
  /api/overrides/*      Period total overrides
  /api/extras/*         Ad-hoc extras
  /api/watermark        Last invoiced month

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
)

// NewRouter creates a new router with all routes configured. rateLimit is
// the number of requests per minute allowed from one IP; 0 disables it.
func NewRouter(h *Handler, rateLimit int) *chi.Mux {
	r := chi.NewRouter()

	secureHeaders := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	})

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(secureHeaders.Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	if rateLimit > 0 {
		r.Use(httprate.Limit(rateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			}),
		))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/rulesets", func(r chi.Router) {
			r.Get("/", h.ListRulesets)
			r.Post("/", h.CreateRuleset)
			r.Get("/{id}", h.GetRuleset)
			r.Put("/{id}", h.UpdateRuleset)
			r.Delete("/{id}", h.DeleteRuleset)
		})

		r.Route("/companies", func(r chi.Router) {
			r.Get("/", h.ListCompanies)
			r.Post("/", h.CreateCompany)
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Get("/", h.ListDrafts)
			r.Put("/{id}/edit", h.EditDraft)
			r.Post("/{id}/status", h.UpdateDraftStatus)
		})

		r.Route("/overrides/{rulesetID}/{year}/{month}", func(r chi.Router) {
			r.Put("/", h.SetOverride)
			r.Delete("/", h.ClearOverride)
		})

		r.Route("/extras", func(r chi.Router) {
			r.Get("/", h.ListExtras)
			r.Post("/", h.CreateExtra)
			r.Put("/{id}/select", h.SelectExtra)
			r.Delete("/{id}", h.DeleteExtra)
		})

		r.Get("/watermark", h.GetWatermark)
		r.Put("/watermark", h.SetWatermark)
	})

	return r
}
