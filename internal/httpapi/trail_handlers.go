package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"veridex.org/internal/vatr"
)

type verifyRequest struct {
	Current map[string]any `json:"current"`
}

func (a *API) handleAssetResource(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/assets/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	assetID := parts[0]

	switch parts[1] {
	case "trail":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		entries, err := a.svc.Trail.Trail(r.Context(), ident, assetID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	case "verify":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req verifyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		verification, err := a.svc.Trail.VerifyIntegrity(r.Context(), ident, assetID, req.Current)
		if errors.Is(err, vatr.ErrIntegrityMismatch) {
			// The verification detail says which link broke; a mismatch is
			// a conflict between the trail and the asset, not a 500.
			writeJSON(w, http.StatusConflict, verification)
			return
		}
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verification)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
