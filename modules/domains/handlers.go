package domains

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agencyhq/tenancy/pkg/logger"
	"github.com/agencyhq/tenancy/pkg/tenant"
)

type handlers struct {
	verifier Verifier
	resolver Resolver
	log      *slog.Logger
}

type domainRequest struct {
	Domain string `json:"domain"`
}

func (h *handlers) listDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.verifier.ListRegisteredDomains(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, domains, map[string]any{"count": len(domains)})
}

func (h *handlers) listClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.verifier.DomainClaims(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, claims, map[string]any{"count": len(claims)})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.verifier.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, stats, nil)
}

func (h *handlers) claimDomain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := decodeDomain(w, r)
	if !ok {
		return
	}

	token, err := h.verifier.ClaimDomain(r.Context(), id, req.Domain)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, tenant.PendingResult{Success: true, VerificationToken: token}, nil)
}

func (h *handlers) verifyDomain(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := decodeDomain(w, r)
	if !ok {
		return
	}

	if err := h.verifier.Verify(r.Context(), id, req.Domain); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, map[string]any{"verified": true, "instance_id": id, "domain": req.Domain}, nil)
}

func (h *handlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	identifier := strings.TrimSpace(r.URL.Query().Get("identifier"))
	if err := h.resolver.Invalidate(r.Context(), identifier); err != nil {
		h.fail(w, r, err)
		return
	}

	scope := identifier
	if scope == "" {
		scope = "all"
	}
	h.log.InfoContext(r.Context(), "tenant cache invalidated", slog.String("scope", scope))
	writeData(w, map[string]any{"invalidated": scope}, nil)
}

// resolve reports what a host resolves to, for diagnosing routing issues.
func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSpace(r.URL.Query().Get("host"))
	if host == "" {
		writeError(w, http.StatusBadRequest, "missing_host", "query parameter host is required")
		return
	}

	parsed := h.resolver.Parser().Classify(host)
	cfg := h.resolver.Resolve(r.Context(), host)
	h.log.DebugContext(r.Context(), "diagnostic resolve", logger.Host(host), logger.TenantSlug(cfg.Slug))

	writeData(w, cfg, map[string]any{
		"kind":       parsed.Kind,
		"identifier": parsed.Identifier,
		"cache_key":  parsed.CacheKey(),
		"default":    cfg.IsDefault(),
	})
}

func decodeDomain(w http.ResponseWriter, r *http.Request) (domainRequest, bool) {
	var req domainRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON with a domain field")
		return req, false
	}
	if strings.TrimSpace(req.Domain) == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_domain", "domain is required")
		return req, false
	}
	return req, true
}
