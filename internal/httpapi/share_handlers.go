package httpapi

import (
	"net/http"
	"strings"
	"time"

	"veridex.org/internal/share"
	"veridex.org/internal/view"
)

type createShareRequest struct {
	ViewID       string             `json:"view_id"`
	TargetOrgID  string             `json:"target_org_id"`
	TargetUserID string             `json:"target_user_id"`
	Permission   string             `json:"permission_level"`
	Restrictions *view.Restrictions `json:"scope_restrictions"`
	ExpiresAt    *time.Time         `json:"expires_at"`
	MaxAccesses  int                `json:"max_accesses"`
}

type revokeShareRequest struct {
	Reason string `json:"reason"`
}

func (a *API) handleShares(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createShareRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		params := share.CreateParams{
			ViewID:       req.ViewID,
			TargetOrgID:  req.TargetOrgID,
			TargetUserID: req.TargetUserID,
			Permission:   share.PermissionLevel(req.Permission),
			ExpiresAt:    req.ExpiresAt,
			MaxAccesses:  req.MaxAccesses,
		}
		if req.Restrictions != nil {
			params.Restrictions = *req.Restrictions
		}
		s, err := a.svc.Shares.Create(r.Context(), ident, params)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/shares/"+s.ID)
		writeJSON(w, http.StatusCreated, s)
	case http.MethodGet:
		shares, err := a.svc.Shares.ListCreated(r.Context(), ident)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"shares": shares})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleSharesReceived(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	shares, err := a.svc.Shares.ListReceived(r.Context(), ident)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": shares})
}

func (a *API) handleShareResource(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/shares/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	shareID := parts[0]

	switch parts[1] {
	case "revoke":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var req revokeShareRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s, err := a.svc.Shares.Revoke(r.Context(), ident, shareID, req.Reason)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	case "access":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		access, err := a.svc.Shares.Access(r.Context(), ident, shareID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if access == nil {
			// All denial modes collapse to the same not-found body.
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeJSON(w, http.StatusOK, access)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
