package httpapi

import (
	"net/http"
	"strings"

	"veridex.org/internal/view"
)

type createViewRequest struct {
	Name     string         `json:"name"`
	Type     string         `json:"type"`
	Scope    view.Scope     `json:"scope"`
	Config   map[string]any `json:"config"`
	IsPublic bool           `json:"is_public"`
	CanShare bool           `json:"can_share"`
}

type updateViewRequest struct {
	Name     *string        `json:"name"`
	Scope    *view.Scope    `json:"scope"`
	Config   map[string]any `json:"config"`
	IsPublic *bool          `json:"is_public"`
	CanShare *bool          `json:"can_share"`
}

func (a *API) handleViews(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createViewRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		v, err := a.svc.Views.Create(r.Context(), ident, view.Definition{
			Name:     req.Name,
			Type:     view.Type(req.Type),
			Scope:    req.Scope,
			Config:   req.Config,
			IsPublic: req.IsPublic,
			CanShare: req.CanShare,
		})
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/views/"+v.ID)
		writeJSON(w, http.StatusCreated, v)
	case http.MethodGet:
		views, err := a.svc.Views.List(r.Context(), ident)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"views": views})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleViewResource(w http.ResponseWriter, r *http.Request) {
	ident, ok := callerIdentity(w, r)
	if !ok {
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/views/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	viewID := parts[0]

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			v, err := a.svc.Views.Get(r.Context(), ident, viewID)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, v)
		case http.MethodPatch:
			var req updateViewRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			v, err := a.svc.Views.Apply(r.Context(), ident, viewID, view.Update{
				Name:     req.Name,
				Scope:    req.Scope,
				Config:   req.Config,
				IsPublic: req.IsPublic,
				CanShare: req.CanShare,
			})
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, v)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch)
		}
	case 2:
		switch parts[1] {
		case "publish":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, http.MethodPost)
				return
			}
			v, err := a.svc.Views.Publish(r.Context(), ident, viewID)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, v)
		case "archive":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, http.MethodPost)
				return
			}
			v, err := a.svc.Views.Archive(r.Context(), ident, viewID)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, v)
		case "shares":
			if r.Method != http.MethodGet {
				methodNotAllowed(w, r, http.MethodGet)
				return
			}
			shares, err := a.svc.Shares.ListForView(r.Context(), ident, viewID)
			if err != nil {
				handleDomainError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"shares": shares})
		default:
			writeError(w, r, http.StatusNotFound, "resource not found")
		}
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}
