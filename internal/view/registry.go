package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"veridex.org/internal/identity"
	"veridex.org/internal/ids"
	"veridex.org/internal/tenant"
	"veridex.org/internal/vatr"
)

// Store persists views. Implementations must scope queries by
// organization at the query level; the registry filters again on top.
type Store interface {
	Insert(ctx context.Context, v View) (View, error)
	Get(ctx context.Context, id string) (View, error)
	Update(ctx context.Context, v View) (View, error)
	ListByOrg(ctx context.Context, orgID string) ([]View, error)
}

// Definition is the caller-supplied part of a new view.
type Definition struct {
	Name     string
	Type     Type
	Scope    Scope
	Config   map[string]any
	IsPublic bool
	CanShare bool
}

// Update carries optional field changes for a draft or published view.
type Update struct {
	Name     *string
	Scope    *Scope
	Config   map[string]any
	IsPublic *bool
	CanShare *bool
}

// Registry owns view lifecycle: create as draft, publish, archive.
type Registry struct {
	store Store
	guard tenant.Guard
	audit vatr.Recorder
	now   func() time.Time
}

// NewRegistry constructs a Registry. The recorder may be nil in tests.
func NewRegistry(store Store, audit vatr.Recorder) (*Registry, error) {
	if store == nil {
		return nil, errors.New("view: store is required")
	}
	return &Registry{store: store, audit: audit, now: time.Now}, nil
}

// WithClock overrides the time source (tests).
func (r *Registry) WithClock(fn func() time.Time) *Registry {
	if fn != nil {
		r.now = fn
	}
	return r
}

func canEdit(ident identity.Context) bool {
	return ident.Superuser || ident.Role == identity.RoleOrgAdmin || ident.Role == identity.RoleEditor
}

// Create registers a new draft view owned by the caller's organization.
func (r *Registry) Create(ctx context.Context, ident identity.Context, def Definition) (View, error) {
	if !ident.HasOrg() {
		return View{}, tenant.ErrDenied
	}
	if !canEdit(ident) {
		return View{}, tenant.ErrDenied
	}
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return View{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, ok := knownTypes[def.Type]; !ok {
		return View{}, fmt.Errorf("%w: unsupported view type %q", ErrInvalidInput, def.Type)
	}
	now := r.now().UTC()
	v := View{
		ID:             ids.New(),
		OrganizationID: ident.OrganizationID,
		Name:           def.Name,
		Type:           def.Type,
		Scope:          NewScope(def.Scope),
		Config:         def.Config,
		Status:         StatusDraft,
		IsPublic:       def.IsPublic,
		CanShare:       def.CanShare,
		CreatedBy:      ident.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := r.store.Insert(ctx, v)
	if err != nil {
		return View{}, err
	}
	if err := r.record(ctx, ident, vatr.ActionCreated, View{}, created); err != nil {
		return View{}, err
	}
	return created, nil
}

// Get returns a view the identity may see. Missing and foreign views are
// indistinguishable.
func (r *Registry) Get(ctx context.Context, ident identity.Context, id string) (View, error) {
	v, err := r.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return View{}, tenant.ErrDenied
	}
	if err != nil {
		return View{}, err
	}
	if err := r.guard.ValidateOwnership(ident, v); err != nil {
		return View{}, err
	}
	return v, nil
}

// List returns the caller organization's views. The post-query filter is
// the second line of defense; stores already scope the query.
func (r *Registry) List(ctx context.Context, ident identity.Context) ([]View, error) {
	if !ident.HasOrg() && !ident.Superuser {
		return nil, tenant.ErrDenied
	}
	views, err := r.store.ListByOrg(ctx, ident.OrganizationID)
	if err != nil {
		return nil, err
	}
	return tenant.FilterByOrg(ident, views), nil
}

// Apply mutates a non-archived view owned by the caller's organization.
func (r *Registry) Apply(ctx context.Context, ident identity.Context, id string, upd Update) (View, error) {
	v, err := r.editable(ctx, ident, id)
	if err != nil {
		return View{}, err
	}
	if v.Status == StatusArchived {
		return View{}, fmt.Errorf("%w: archived views are read-only", ErrConflict)
	}
	before := v
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return View{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		v.Name = name
	}
	if upd.Scope != nil {
		v.Scope = NewScope(*upd.Scope)
	}
	if upd.Config != nil {
		v.Config = upd.Config
	}
	if upd.IsPublic != nil {
		v.IsPublic = *upd.IsPublic
	}
	if upd.CanShare != nil {
		v.CanShare = *upd.CanShare
	}
	v.UpdatedAt = r.now().UTC()
	updated, err := r.store.Update(ctx, v)
	if err != nil {
		return View{}, err
	}
	if err := r.record(ctx, ident, vatr.ActionUpdated, before, updated); err != nil {
		return View{}, err
	}
	return updated, nil
}

// Publish transitions draft → published.
func (r *Registry) Publish(ctx context.Context, ident identity.Context, id string) (View, error) {
	v, err := r.editable(ctx, ident, id)
	if err != nil {
		return View{}, err
	}
	if v.Status != StatusDraft {
		return View{}, fmt.Errorf("%w: cannot publish from %q", ErrConflict, v.Status)
	}
	before := v
	now := r.now().UTC()
	v.Status = StatusPublished
	v.PublishedAt = &now
	v.UpdatedAt = now
	updated, err := r.store.Update(ctx, v)
	if err != nil {
		return View{}, err
	}
	if err := r.record(ctx, ident, vatr.ActionUpdated, before, updated); err != nil {
		return View{}, err
	}
	return updated, nil
}

// Archive transitions published (or draft) → archived. Terminal.
func (r *Registry) Archive(ctx context.Context, ident identity.Context, id string) (View, error) {
	v, err := r.editable(ctx, ident, id)
	if err != nil {
		return View{}, err
	}
	if v.Status == StatusArchived {
		return View{}, fmt.Errorf("%w: already archived", ErrConflict)
	}
	before := v
	v.Status = StatusArchived
	v.UpdatedAt = r.now().UTC()
	updated, err := r.store.Update(ctx, v)
	if err != nil {
		return View{}, err
	}
	if err := r.record(ctx, ident, vatr.ActionUpdated, before, updated); err != nil {
		return View{}, err
	}
	return updated, nil
}

func (r *Registry) editable(ctx context.Context, ident identity.Context, id string) (View, error) {
	v, err := r.Get(ctx, ident, id)
	if err != nil {
		return View{}, err
	}
	if !canEdit(ident) {
		return View{}, tenant.ErrDenied
	}
	return v, nil
}

// record appends the audit entry strictly after the primary write
// committed; a failed primary write never produces an entry.
func (r *Registry) record(ctx context.Context, ident identity.Context, action vatr.Action, before, after View) error {
	if r.audit == nil {
		return nil
	}
	entry := vatr.Entry{
		AssetID:    after.ID,
		OrgID:      after.OrganizationID,
		Action:     action,
		ActorID:    ident.UserID,
		ActorRole:  ident.Role,
		SourceType: vatr.SourceManualEntry,
		Changes: map[string]any{
			"organization_id": after.OrganizationID,
			"status":          string(after.Status),
		},
	}
	if before.ID != "" {
		h, err := vatr.Hash(before)
		if err != nil {
			return err
		}
		entry.BeforeHash = h
	}
	h, err := vatr.Hash(after)
	if err != nil {
		return err
	}
	entry.AfterHash = h
	_, err = r.audit.Append(ctx, entry)
	return err
}
