// Package resolve computes the single "effective" view for a user and
// resource: explicit user preference first, then a deterministic total
// order over every view the user can see.
package resolve

import (
	"context"
	"errors"
	"sort"
	"time"

	"veridex.org/internal/identity"
	"veridex.org/internal/share"
	"veridex.org/internal/tenant"
	"veridex.org/internal/view"
)

// ErrNoEffectiveView signals that no view covers the resource. This is a
// data-availability condition, deliberately distinct from a denial.
var ErrNoEffectiveView = errors.New("resolve: no effective view")

// ShareSource yields the caller's currently usable grants.
type ShareSource interface {
	ActiveForIdentity(ctx context.Context, ident identity.Context) ([]share.Share, error)
}

// Preference is a per-user override of which view wins for a resource.
// Owned and mutated only by its user, never by the system.
type Preference struct {
	UserID      string           `json:"user_id"`
	ResourceKey view.ResourceKey `json:"resource_key"`
	ViewID      string           `json:"view_id"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// PreferenceStore persists per-user view preferences.
type PreferenceStore interface {
	Get(ctx context.Context, userID string, key view.ResourceKey) (*Preference, error)
	Set(ctx context.Context, p Preference) error
	Clear(ctx context.Context, userID string, key view.ResourceKey) error
}

// Resolver selects effective views.
type Resolver struct {
	views  view.Store
	shares ShareSource
	prefs  PreferenceStore
	now    func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(views view.Store, shares ShareSource, prefs PreferenceStore) (*Resolver, error) {
	if views == nil || shares == nil || prefs == nil {
		return nil, errors.New("resolve: views, shares, and preference store are required")
	}
	return &Resolver{views: views, shares: shares, prefs: prefs, now: time.Now}, nil
}

// WithClock overrides the time source (tests).
func (r *Resolver) WithClock(fn func() time.Time) *Resolver {
	if fn != nil {
		r.now = fn
	}
	return r
}

// Effective returns the winning view for the identity and resource.
// Priority: the user's explicit preference if it still resolves, then the
// total order implemented by lessEffective. Repeated calls with identical
// state always return the same view.
func (r *Resolver) Effective(ctx context.Context, ident identity.Context, key view.ResourceKey) (view.View, error) {
	candidates, err := r.candidates(ctx, ident, key)
	if err != nil {
		return view.View{}, err
	}
	if len(candidates) == 0 {
		return view.View{}, ErrNoEffectiveView
	}
	if pref, err := r.prefs.Get(ctx, ident.UserID, key); err == nil && pref != nil {
		for _, c := range candidates {
			if c.ID == pref.ViewID {
				return c, nil
			}
		}
		// Preference points at a view the user can no longer resolve;
		// ignore it rather than fail.
	} else if err != nil {
		return view.View{}, err
	}
	sort.Slice(candidates, func(i, j int) bool {
		return lessEffective(candidates[i], candidates[j])
	})
	return candidates[0], nil
}

// SetPreference records the user's choice. The only gate is that the user
// can already resolve the chosen view for this resource; preferences
// select among visible views and never widen scope.
func (r *Resolver) SetPreference(ctx context.Context, ident identity.Context, key view.ResourceKey, viewID string) error {
	candidates, err := r.candidates(ctx, ident, key)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if c.ID == viewID {
			return r.prefs.Set(ctx, Preference{
				UserID:      ident.UserID,
				ResourceKey: key,
				ViewID:      viewID,
				UpdatedAt:   r.now().UTC(),
			})
		}
	}
	return tenant.ErrDenied
}

// ClearPreference removes the user's choice for the resource.
func (r *Resolver) ClearPreference(ctx context.Context, ident identity.Context, key view.ResourceKey) error {
	return r.prefs.Clear(ctx, ident.UserID, key)
}

// lessEffective is the deterministic total order: public before
// org-private, then most recently published, then lowest id. The id
// tiebreak guarantees the order is total, so resolution can never be
// ambiguous.
func lessEffective(a, b view.View) bool {
	if a.IsPublic != b.IsPublic {
		return a.IsPublic
	}
	at, bt := publishedAt(a), publishedAt(b)
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.ID < b.ID
}

func publishedAt(v view.View) time.Time {
	if v.PublishedAt == nil {
		return time.Time{}
	}
	return *v.PublishedAt
}

// candidates collects every view visible to the identity whose effective
// scope contains the resource: own-org views first, then views reachable
// through active, unexpired shares (under each share's restricted scope).
func (r *Resolver) candidates(ctx context.Context, ident identity.Context, key view.ResourceKey) ([]view.View, error) {
	seen := make(map[string]struct{})
	var out []view.View

	if ident.HasOrg() {
		own, err := r.views.ListByOrg(ctx, ident.OrganizationID)
		if err != nil {
			return nil, err
		}
		for _, v := range own {
			if !ownOrgVisible(ident, v) {
				continue
			}
			if !v.Scope.Contains(key) {
				continue
			}
			if _, ok := seen[v.ID]; ok {
				continue
			}
			seen[v.ID] = struct{}{}
			out = append(out, v)
		}
	}

	grants, err := r.shares.ActiveForIdentity(ctx, ident)
	if err != nil {
		return nil, err
	}
	for _, s := range grants {
		v, err := r.views.Get(ctx, s.ViewID)
		if errors.Is(err, view.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if v.Status != view.StatusPublished {
			continue
		}
		// A shared view only counts if the restricted scope still
		// contains the resource; the share can narrow the view away.
		if !v.Scope.Restrict(s.Restrictions).Contains(key) {
			continue
		}
		if _, ok := seen[v.ID]; ok {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// ownOrgVisible mirrors org-internal visibility: published views marked
// public are visible to the whole org, private ones to their author and
// to editing roles; drafts only to their author and editing roles.
func ownOrgVisible(ident identity.Context, v view.View) bool {
	if v.Status == view.StatusArchived {
		return false
	}
	editing := ident.Superuser || ident.Role == identity.RoleOrgAdmin || ident.Role == identity.RoleEditor
	if v.Status == view.StatusDraft {
		return v.CreatedBy == ident.UserID || editing
	}
	return v.IsPublic || v.CreatedBy == ident.UserID || editing
}
