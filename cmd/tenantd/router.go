package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agencyhq/tenancy/modules/domains"
	"github.com/agencyhq/tenancy/pkg/httpserver"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

func newRouter(d *deps, app appConfig, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(tenant.Middleware(d.resolver,
		tenant.WithSkipPaths("/healthz", "/readyz", "/metrics", "/admin"),
		tenant.WithTrustForwardedHost(app.TrustForwardedHost),
		tenant.WithMiddlewareLogger(log),
	))

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, d.checks))
	r.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	r.Mount("/admin", domains.Router(domains.RouterOptions{
		Verifier: d.verifier,
		Resolver: d.resolver,
		APIKey:   app.AdminAPIKey,
		Logger:   log,
	}))

	r.Get("/", currentTenant)
	r.With(tenant.RequireOrganization(nil)).Get("/modules/{module}", moduleAccess)

	return r
}

type tenantView struct {
	ID             string          `json:"id"`
	Slug           string          `json:"slug"`
	OrganizationID string          `json:"organization_id,omitempty"`
	Default        bool            `json:"default"`
	WhiteLabeled   bool            `json:"white_labeled"`
	Enterprise     bool            `json:"enterprise"`
	Modules        []string        `json:"modules"`
	Branding       tenant.Branding `json:"branding"`
}

// currentTenant renders the resolved tenant, the data a page shell needs.
func currentTenant(w http.ResponseWriter, r *http.Request) {
	scope := tenant.MustFromContext(r.Context())
	cfg := scope.Config()

	writeJSON(w, http.StatusOK, tenantView{
		ID:             cfg.ID,
		Slug:           cfg.Slug,
		OrganizationID: scope.OrganizationID(),
		Default:        scope.IsDegraded(),
		WhiteLabeled:   scope.IsWhiteLabeled(),
		Enterprise:     scope.IsEnterprise(),
		Modules:        cfg.EnabledModules,
		Branding:       scope.Branding(),
	})
}

// moduleAccess reports whether the tenant may use a module; disabled modules
// answer 403 the way gated pages do.
func moduleAccess(w http.ResponseWriter, r *http.Request) {
	scope := tenant.MustFromContext(r.Context())
	module := chi.URLParam(r, "module")

	status := http.StatusOK
	if !scope.HasModule(module) {
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]any{
		"module":          module,
		"enabled":         status == http.StatusOK,
		"organization_id": scope.OrganizationID(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
