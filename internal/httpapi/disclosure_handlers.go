package httpapi

import (
	"net/http"

	"veridex.org/internal/cluster"
)

type applyDisclosureRequest struct {
	Data map[string]any `json:"data"`
	Mode string         `json:"mode"`
}

func (a *API) handleDisclosureAllowed(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":     ident.Role,
		"clusters": a.svc.RBAC.AllowedFields(ident.Role),
	})
}

func (a *API) handleDisclosureApply(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req applyDisclosureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	mode := cluster.Mode(req.Mode)
	if mode == "" {
		mode = cluster.ModeOmit
	}
	if mode != cluster.ModeOmit && mode != cluster.ModeRedact {
		writeError(w, r, http.StatusBadRequest, "mode must be omit or redact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": a.svc.RBAC.Apply(ident.Role, req.Data, mode),
	})
}
