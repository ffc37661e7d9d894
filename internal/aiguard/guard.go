// Package aiguard enforces tenant isolation on AI retrieval pipelines.
// Retrieval backends are treated as untrusted: every batch of retrieved
// context is re-checked against the caller's access scope before it may
// reach a model prompt, and generated text is scrubbed of foreign
// organization names as a second line of defense.
package aiguard

import (
	"context"
	"fmt"
	"strings"

	"veridex.org/internal/identity"
	"veridex.org/internal/obs"
	"veridex.org/internal/share"
	"veridex.org/internal/tenant"
	"veridex.org/internal/view"
)

// IsolationError reports retrieved content that crossed a tenant
// boundary. Unlike user-facing denials this error is loud: a violation
// means an upstream filter failed and must be surfaced, not masked.
type IsolationError struct {
	ItemID string
	OrgID  string
	Detail string
}

func (e *IsolationError) Error() string {
	return fmt.Sprintf("aiguard: isolation violation: item %s from org %s: %s", e.ItemID, e.OrgID, e.Detail)
}

// RetrievedItem is one unit of context coming back from a retrieval
// backend, tagged with its provenance.
type RetrievedItem struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// ShareSource yields the caller's currently usable grants.
type ShareSource interface {
	ActiveForIdentity(ctx context.Context, ident identity.Context) ([]share.Share, error)
}

// Guard validates retrieval results and model output.
type Guard struct {
	views  view.Store
	shares ShareSource
}

// NewGuard constructs a Guard.
func NewGuard(views view.Store, shares ShareSource) (*Guard, error) {
	if views == nil || shares == nil {
		return nil, fmt.Errorf("aiguard: views and shares are required")
	}
	return &Guard{views: views, shares: shares}, nil
}

// AccessScope is everything an identity may retrieve: its own
// organization plus the projects reachable through active shares.
type AccessScope struct {
	OrgID           string
	SharedOrgs      map[string]struct{}
	SharedProjects  map[string]struct{}
	SharedDocuments map[string]struct{}
}

// AllowsItem reports whether the retrieved item falls inside the scope.
func (a AccessScope) AllowsItem(item RetrievedItem) bool {
	if item.OrgID == a.OrgID {
		return true
	}
	if _, ok := a.SharedOrgs[item.OrgID]; !ok {
		return false
	}
	if item.ProjectID == "" {
		// Foreign-org content with no project provenance is never
		// retrievable; shares grant projects, not whole organizations.
		return false
	}
	_, ok := a.SharedProjects[item.ProjectID]
	return ok
}

// ScopeFor computes the identity's access scope from its org membership
// and active shares. Each share contributes only what its restricted
// view scope still contains.
func (g *Guard) ScopeFor(ctx context.Context, ident identity.Context) (AccessScope, error) {
	scope := AccessScope{
		OrgID:           ident.OrganizationID,
		SharedOrgs:      make(map[string]struct{}),
		SharedProjects:  make(map[string]struct{}),
		SharedDocuments: make(map[string]struct{}),
	}
	grants, err := g.shares.ActiveForIdentity(ctx, ident)
	if err != nil {
		return AccessScope{}, err
	}
	for _, s := range grants {
		v, err := g.views.Get(ctx, s.ViewID)
		if err != nil {
			continue
		}
		if v.Status != view.StatusPublished {
			continue
		}
		effective := v.Scope.Restrict(s.Restrictions)
		scope.SharedOrgs[v.OrganizationID] = struct{}{}
		for _, id := range effective.ProjectIDs {
			scope.SharedProjects[id] = struct{}{}
		}
		for _, id := range effective.DocumentIDs {
			scope.SharedDocuments[id] = struct{}{}
		}
	}
	return scope, nil
}

// ValidateResults checks every retrieved item against the identity's
// access scope. The first violation aborts the batch: partial prompt
// assembly from a poisoned batch is worse than a failed request.
func (g *Guard) ValidateResults(ctx context.Context, ident identity.Context, items []RetrievedItem) error {
	scope, err := g.ScopeFor(ctx, ident)
	if err != nil {
		return err
	}
	for _, item := range items {
		if scope.AllowsItem(item) {
			continue
		}
		obs.CountDenial("aiguard")
		obs.Event(ctx, "aiguard.isolation_violation", map[string]any{
			"user_id":    ident.UserID,
			"user_org":   ident.OrganizationID,
			"item_id":    item.ID,
			"item_org":   item.OrgID,
			"project_id": item.ProjectID,
		})
		return &IsolationError{
			ItemID: item.ID,
			OrgID:  item.OrgID,
			Detail: "retrieved content outside caller access scope",
		}
	}
	return nil
}

// OrgName is a known organization the response filter can recognize.
type OrgName struct {
	ID   string
	Name string
}

// FilterResponse scrubs names of organizations outside the identity's
// access scope from generated text. It is a safety net behind
// ValidateResults, not a substitute: retrieval filtering is the primary
// control.
func (g *Guard) FilterResponse(ctx context.Context, ident identity.Context, text string, known []OrgName) (string, error) {
	scope, err := g.ScopeFor(ctx, ident)
	if err != nil {
		return "", err
	}
	filtered := text
	for _, org := range known {
		if org.ID == scope.OrgID {
			continue
		}
		if _, ok := scope.SharedOrgs[org.ID]; ok {
			continue
		}
		if org.Name == "" || !strings.Contains(filtered, org.Name) {
			continue
		}
		filtered = strings.ReplaceAll(filtered, org.Name, "[external organization]")
		obs.Event(ctx, "aiguard.response_scrubbed", map[string]any{
			"user_id": ident.UserID,
			"org_id":  org.ID,
		})
	}
	return filtered, nil
}

// ValidateSharedScope checks that every citation an AI answer relies on
// falls inside the resolved scope of the given share. Used when a
// recipient org queries shared material: the share's restrictions bound
// what the answer may cite.
func (g *Guard) ValidateSharedScope(ctx context.Context, ident identity.Context, shareID string, citations []view.ResourceKey) error {
	grants, err := g.shares.ActiveForIdentity(ctx, ident)
	if err != nil {
		return err
	}
	var s *share.Share
	for i := range grants {
		if grants[i].ID == shareID {
			s = &grants[i]
			break
		}
	}
	if s == nil {
		// Unknown, revoked, expired, and not-yours all look alike.
		return tenant.ErrDenied
	}
	v, err := g.views.Get(ctx, s.ViewID)
	if err != nil {
		return tenant.ErrDenied
	}
	effective := v.Scope.Restrict(s.Restrictions)
	for _, key := range citations {
		if effective.Contains(key) {
			continue
		}
		obs.CountDenial("aiguard")
		obs.Event(ctx, "aiguard.citation_out_of_scope", map[string]any{
			"user_id":  ident.UserID,
			"share_id": shareID,
			"citation": key.String(),
		})
		return &IsolationError{
			ItemID: key.String(),
			OrgID:  v.OrganizationID,
			Detail: "citation outside shared scope",
		}
	}
	return nil
}
