// Package api provides the HTTP handlers for the catalog and
// deployment endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/rackmarket/internal/core/apierr"
	"github.com/artpar/rackmarket/internal/core/catalog"
	coredeploy "github.com/artpar/rackmarket/internal/core/deploy"
	"github.com/artpar/rackmarket/internal/shell/currency"
	"github.com/artpar/rackmarket/internal/shell/deploy"
	"github.com/artpar/rackmarket/internal/shell/forward"
	"github.com/artpar/rackmarket/internal/shell/provider"
)

// CredentialHeader carries a caller-supplied provider credential for
// provider-scoped endpoints. It overrides the server-configured
// credential for that provider and is never stored.
const CredentialHeader = "X-Provider-Credential"

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	registry    *provider.Registry
	deployer    *deploy.Service
	rates       currency.RateSource
	forwarders  map[string]*forward.Client
	serverCreds provider.CredentialSet
	logger      *slog.Logger
}

// NewHandler creates a new API handler. serverCreds supplies the
// credentials used for catalog aggregation and as the fallback for
// provider-scoped calls without a credential header. forwarders maps
// provider name to the raw passthrough client for providers that allow
// it.
func NewHandler(registry *provider.Registry, deployer *deploy.Service, rates currency.RateSource, forwarders map[string]*forward.Client, serverCreds provider.CredentialSet, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if forwarders == nil {
		forwarders = make(map[string]*forward.Client)
	}
	if serverCreds == nil {
		serverCreds = make(provider.CredentialSet)
	}
	return &Handler{
		registry:    registry,
		deployer:    deployer,
		rates:       rates,
		forwarders:  forwarders,
		serverCreds: serverCreds,
		logger:      logger.With("component", "api"),
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", h.handleCatalog)

		r.Route("/providers/{provider}", func(r chi.Router) {
			r.Get("/offerings", h.handleProviderOfferings)
			r.Get("/storage-options", h.handleStorageOptions)
			r.HandleFunc("/forward/*", h.handleForward)
		})

		r.Post("/provision", h.handleProvision)
		r.Post("/reset", h.handleReset)
	})

	return r
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// credential resolves the credential for one provider: the caller's
// header when present, otherwise the server-configured one.
func (h *Handler) credential(r *http.Request, providerName string) provider.Credential {
	if v := r.Header.Get(CredentialHeader); v != "" {
		return provider.Credential(v)
	}
	return h.serverCreds[providerName]
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if len(h.registry.Names()) == 0 {
		checks["providers"] = "none configured"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	checks["providers"] = "ok"

	// A dead rate service degrades EUR-priced catalogs, so surface it.
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if _, err := h.rates.Rate(ctx, "EUR", "USD"); err != nil {
		checks["currency"] = "failed"
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	checks["currency"] = "ok"

	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Catalog Handlers
// =============================================================================

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	offerings := h.registry.AggregateOfferings(r.Context(), h.serverCreds)

	filter := filterFromQuery(r)
	offerings = filter.Apply(offerings)
	catalog.SortByMonthlyPrice(offerings)

	h.writeJSON(w, http.StatusOK, CatalogResponse{
		Offerings: offerings,
		Count:     len(offerings),
		Providers: h.registry.Names(),
	})
}

// filterFromQuery maps query parameters onto an offering filter.
// Unparseable numeric values are ignored.
func filterFromQuery(r *http.Request) catalog.Filter {
	q := r.URL.Query()
	f := catalog.Filter{
		Search:        q.Get("search"),
		Location:      q.Get("location"),
		OnlyAvailable: q.Get("available") == "true",
		DedicatedOnly: q.Get("dedicated") == "true",
	}
	if v, err := strconv.ParseFloat(q.Get("min_price"), 64); err == nil {
		f.MinMonthlyUSD = v
	}
	if v, err := strconv.ParseFloat(q.Get("max_price"), 64); err == nil {
		f.MaxMonthlyUSD = v
	}
	if v, err := strconv.ParseFloat(q.Get("min_ram"), 64); err == nil {
		f.MinRAMGB = v
	}
	if v, err := strconv.ParseFloat(q.Get("min_storage"), 64); err == nil {
		f.MinStorageGB = v
	}
	return f
}

func (h *Handler) handleProviderOfferings(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	adapter, err := h.registry.Lookup(name)
	if err != nil {
		h.writeClassified(w, err)
		return
	}

	offerings, err := adapter.FetchOfferings(r.Context(), h.credential(r, name))
	if err != nil {
		h.logger.Error("offerings fetch failed", "provider", name, "error", err)
		h.writeClassified(w, err)
		return
	}
	catalog.SortByMonthlyPrice(offerings)

	h.writeJSON(w, http.StatusOK, OfferingsResponse{
		Provider:  adapter.Name(),
		Offerings: offerings,
		Count:     len(offerings),
	})
}

func (h *Handler) handleStorageOptions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	adapter, err := h.registry.Lookup(name)
	if err != nil {
		h.writeClassified(w, err)
		return
	}

	sc, ok := adapter.(provider.StorageCatalog)
	if !ok {
		h.writeClassified(w, apierr.Validationf("provider %q does not offer extra storage", name))
		return
	}

	options, err := sc.FetchStorageOptions(r.Context(), h.credential(r, name))
	if err != nil {
		h.logger.Error("storage options fetch failed", "provider", name, "error", err)
		h.writeClassified(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, StorageOptionsResponse{
		Provider: adapter.Name(),
		Options:  options,
	})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", string(apierr.KindValidation))
		return
	}
	if req.Provider == "" || req.OfferingID == "" || req.OwnerTag == "" {
		h.writeError(w, http.StatusBadRequest, "provider, offering_id and owner_tag are required", string(apierr.KindValidation))
		return
	}

	machineType := catalog.MachineType(req.Type)
	if req.Type == "" {
		machineType = catalog.TypeVPS
	}
	period := catalog.Period(req.Period)
	if req.Period == "" {
		period = catalog.PeriodMonthly
	}

	result := h.deployer.Provision(r.Context(), deploy.ProvisionRequest{
		Provider:       req.Provider,
		OfferingID:     req.OfferingID,
		Type:           machineType,
		Period:         period,
		ExtraStorageGB: req.ExtraStorageGB,
		Credential:     h.credential(r, req.Provider),
		OwnerTag:       req.OwnerTag,
	})

	status := http.StatusOK
	if !result.OK && result.Error != nil {
		status = statusForKind(result.Error.Kind)
	}
	h.writeJSON(w, status, result)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", string(apierr.KindValidation))
		return
	}
	if req.Handle == "" || req.OwnerTag == "" {
		h.writeError(w, http.StatusBadRequest, "deployment_handle and owner_tag are required", string(apierr.KindValidation))
		return
	}

	providerName := ""
	if handle, err := coredeploy.ParseHandle(req.Handle); err == nil {
		providerName = handle.Provider
	}

	result := h.deployer.Reset(r.Context(), deploy.ResetRequest{
		Handle:     req.Handle,
		Credential: h.credential(r, providerName),
		OwnerTag:   req.OwnerTag,
	})

	status := http.StatusOK
	if !result.OK && result.Error != nil {
		status = statusForKind(result.Error.Kind)
	}
	h.writeJSON(w, status, result)
}

// =============================================================================
// Forward Handler
// =============================================================================

// handleForward relays an arbitrary call to a provider API, credential
// attached, and returns the raw upstream response. Only providers with a
// configured passthrough client are reachable this way.
func (h *Handler) handleForward(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	client, ok := h.forwarders[name]
	if !ok {
		h.writeClassified(w, apierr.Validationf("provider %q does not support forwarding", name))
		return
	}

	path := chi.URLParam(r, "*")
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read request body", string(apierr.KindValidation))
		return
	}

	payload, err := client.Do(r.Context(), forward.Request{
		Path:   path,
		Method: r.Method,
		Body:   body,
	}, string(h.credential(r, name)))
	if err != nil {
		var provErr *apierr.ProviderError
		if errors.As(err, &provErr) {
			// Relay the upstream status and payload untouched.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(provErr.Status)
			w.Write(provErr.Body)
			return
		}
		h.logger.Error("forward failed", "provider", name, "path", path, "error", err)
		h.writeClassified(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// =============================================================================
// Helpers
// =============================================================================

// statusForKind maps a classified error kind to an HTTP status.
func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.KindValidation:
		return http.StatusBadRequest
	case apierr.KindProviderAPI:
		return http.StatusBadGateway
	case apierr.KindCurrencyService:
		return http.StatusServiceUnavailable
	case apierr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeClassified(w http.ResponseWriter, err error) {
	classified := apierr.Classify(err)
	h.writeJSON(w, statusForKind(classified.Kind), ErrorResponse{
		Error: classified.Message,
		Code:  string(classified.Kind),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
