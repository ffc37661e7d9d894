// Package httpapi is the HTTP adapter over the authorization core. It
// owns routing, authentication, decoding, and error mapping; all policy
// lives in the domain packages.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"veridex.org/internal/aiguard"
	"veridex.org/internal/autofill"
	"veridex.org/internal/cluster"
	"veridex.org/internal/identity"
	"veridex.org/internal/obs"
	"veridex.org/internal/resolve"
	"veridex.org/internal/share"
	"veridex.org/internal/tenant"
	"veridex.org/internal/vatr"
	"veridex.org/internal/view"
)

// ReadyProbe checks backing-store readiness.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Services bundles the domain services the API fronts.
type Services struct {
	Verifier *identity.Verifier
	Views    *view.Registry
	Shares   *share.Ledger
	Resolver *resolve.Resolver
	RBAC     cluster.Policy
	Guard    *aiguard.Guard
	Autofill *autofill.Policy
	Trail    *vatr.Ledger
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        Services
	readyProbe ReadyProbe
	version    string
}

func New(svc Services, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		readyProbe: rp,
		version:    version,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// views
	a.mux.HandleFunc("/v1/views", a.handleViews)
	a.mux.HandleFunc("/v1/views/", a.handleViewResource)

	// shares
	a.mux.HandleFunc("/v1/shares", a.handleShares)
	a.mux.HandleFunc("/v1/shares/received", a.handleSharesReceived)
	a.mux.HandleFunc("/v1/shares/", a.handleShareResource)

	// effective-view resolution
	a.mux.HandleFunc("/v1/resolve", a.handleResolve)
	a.mux.HandleFunc("/v1/resolve/preference", a.handlePreference)

	// audit trail
	a.mux.HandleFunc("/v1/assets/", a.handleAssetResource)

	// cluster disclosure
	a.mux.HandleFunc("/v1/disclosure/allowed", a.handleDisclosureAllowed)
	a.mux.HandleFunc("/v1/disclosure/apply", a.handleDisclosureApply)

	// AI boundary
	a.mux.HandleFunc("/v1/ai/retrieval-check", a.handleRetrievalCheck)
	a.mux.HandleFunc("/v1/ai/shared-scope-check", a.handleSharedScopeCheck)

	// autofill
	a.mux.HandleFunc("/v1/autofill/propose", a.handleAutofillPropose)
	a.mux.HandleFunc("/v1/autofill/", a.handleAutofillResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "veridex-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "veridex-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := obs.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps domain errors onto HTTP statuses. The generic
// denial and every not-found variant share one body so responses cannot
// be used to probe for existence.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var iso *aiguard.IsolationError
	switch {
	case errors.Is(err, tenant.ErrDenied),
		errors.Is(err, view.ErrNotFound),
		errors.Is(err, share.ErrNotFound),
		errors.Is(err, autofill.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, resolve.ErrNoEffectiveView):
		writeError(w, r, http.StatusNotFound, "no effective view for resource")
	case errors.Is(err, view.ErrInvalidInput),
		errors.Is(err, share.ErrInvalidInput),
		errors.Is(err, autofill.ErrInvalidInput),
		errors.Is(err, vatr.ErrInvalidEntry):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, view.ErrConflict),
		errors.Is(err, share.ErrTerminal),
		errors.Is(err, autofill.ErrNotPending):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &iso):
		// An isolation violation is an internal filter failure, not a
		// user mistake; it surfaces loudly.
		writeError(w, r, http.StatusInternalServerError, iso.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
