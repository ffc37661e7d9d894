package httpapi

import (
	"net/http"

	"veridex.org/internal/view"
)

type setPreferenceRequest struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	ViewID string `json:"view_id"`
}

type clearPreferenceRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func resourceKeyFromQuery(r *http.Request) (view.ResourceKey, bool) {
	key := view.ResourceKey{
		Kind: view.ResourceKind(r.URL.Query().Get("kind")),
		ID:   r.URL.Query().Get("id"),
	}
	return key, key.Kind != "" && key.ID != ""
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	key, ok := resourceKeyFromQuery(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "kind and id query parameters are required")
		return
	}
	v, err := a.svc.Resolver.Effective(r.Context(), ident, key)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handlePreference(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req setPreferenceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		key := view.ResourceKey{Kind: view.ResourceKind(req.Kind), ID: req.ID}
		if err := a.svc.Resolver.SetPreference(r.Context(), ident, key, req.ViewID); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		var req clearPreferenceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		key := view.ResourceKey{Kind: view.ResourceKind(req.Kind), ID: req.ID}
		if err := a.svc.Resolver.ClearPreference(r.Context(), ident, key); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}
