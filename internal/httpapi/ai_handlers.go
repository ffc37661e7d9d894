package httpapi

import (
	"net/http"

	"veridex.org/internal/aiguard"
	"veridex.org/internal/view"
)

type retrievalCheckRequest struct {
	Items []aiguard.RetrievedItem `json:"items"`
}

type sharedScopeCheckRequest struct {
	ShareID   string   `json:"share_id"`
	Citations []string `json:"citations"`
}

func (a *API) handleRetrievalCheck(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req retrievalCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.Guard.ValidateResults(r.Context(), ident, req.Items); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSharedScopeCheck(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req sharedScopeCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	citations := make([]view.ResourceKey, 0, len(req.Citations))
	for _, raw := range req.Citations {
		key, ok := view.ParseResourceKey(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "citations must be kind:id pairs")
			return
		}
		citations = append(citations, key)
	}
	if err := a.svc.Guard.ValidateSharedScope(r.Context(), ident, req.ShareID, citations); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
