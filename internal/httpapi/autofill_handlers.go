package httpapi

import (
	"net/http"
	"strings"

	"veridex.org/internal/autofill"
)

type proposeRequest struct {
	AssetID  string `json:"asset_id"`
	FieldKey string `json:"field_key"`
	Category string `json:"category"`
	Query    string `json:"query"`
}

type confirmRequest struct {
	Label string `json:"label"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type confirmSensitiveRequest struct {
	Value string `json:"value"`
}

func (a *API) handleAutofillPropose(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req proposeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	d, err := a.svc.Autofill.Propose(r.Context(), ident, autofill.MatchRequest{
		AssetID:  req.AssetID,
		FieldKey: req.FieldKey,
		Category: req.Category,
		Query:    req.Query,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (a *API) handleAutofillResource(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/autofill/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	decisionID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		d, err := a.svc.Autofill.Get(r.Context(), ident, decisionID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var (
		d   autofill.Decision
		err error
	)
	switch parts[1] {
	case "confirm":
		var req confirmRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		d, err = a.svc.Autofill.Confirm(r.Context(), ident, decisionID, req.Label)
	case "reject":
		var req reasonRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		d, err = a.svc.Autofill.Reject(r.Context(), ident, decisionID, req.Reason)
	case "skip":
		d, err = a.svc.Autofill.Skip(r.Context(), ident, decisionID)
	case "override":
		var req reasonRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		d, err = a.svc.Autofill.RequestSensitiveOverride(r.Context(), ident, decisionID, req.Reason)
	case "confirm-sensitive":
		var req confirmSensitiveRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		d, err = a.svc.Autofill.ConfirmSensitive(r.Context(), ident, decisionID, req.Value)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
