package resolve

import (
	"context"
	"testing"
	"time"

	"veridex.org/internal/identity"
	"veridex.org/internal/share"
	"veridex.org/internal/tenant"
	"veridex.org/internal/vatr"
	"veridex.org/internal/view"
)

type harness struct {
	views    *view.InMemory
	registry *view.Registry
	shares   *share.Ledger
	resolver *Resolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	views := view.NewInMemory()
	audit, err := vatr.NewLedger(vatr.NewInMemory())
	if err != nil {
		t.Fatalf("vatr.NewLedger: %v", err)
	}
	registry, err := view.NewRegistry(views, audit)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	shares, err := share.NewLedger(share.NewInMemory(), views, audit)
	if err != nil {
		t.Fatalf("share.NewLedger: %v", err)
	}
	resolver, err := NewResolver(views, shares, NewInMemoryPreferences())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return &harness{views: views, registry: registry, shares: shares, resolver: resolver}
}

func (h *harness) published(t *testing.T, owner identity.Context, name string, scope view.Scope, public bool) view.View {
	t.Helper()
	v, err := h.registry.Create(context.Background(), owner, view.Definition{
		Name: name, Type: view.TypeDashboard, Scope: scope, IsPublic: public, CanShare: true,
	})
	if err != nil {
		t.Fatalf("Create %s: %v", name, err)
	}
	v, err = h.registry.Publish(context.Background(), owner, v.ID)
	if err != nil {
		t.Fatalf("Publish %s: %v", name, err)
	}
	return v
}

var project10 = view.ResourceKey{Kind: view.KindProject, ID: "10"}

func orgEditor(org string) identity.Context {
	return identity.Context{UserID: "ed-" + org, OrganizationID: org, Role: identity.RoleEditor}
}

func TestEffectivePrefersPublicThenRecencyThenID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := orgEditor("org-a")
	scope := view.Scope{ProjectIDs: []string{"10"}}

	private := h.published(t, owner, "private", scope, false)
	older := h.published(t, owner, "public-older", scope, true)
	newer := h.published(t, owner, "public-newer", scope, true)

	// Force a clear recency gap.
	bump := func(v view.View, d time.Duration) {
		pub := v.PublishedAt.Add(d)
		v.PublishedAt = &pub
		if _, err := h.views.Update(ctx, v); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	bump(older, -time.Hour)
	bump(newer, time.Hour)

	got, err := h.resolver.Effective(ctx, owner, project10)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("expected newest public view %s, got %s (%s)", newer.Name, got.Name, got.ID)
	}
	_ = private

	// Determinism: repeated calls agree.
	for i := 0; i < 5; i++ {
		again, err := h.resolver.Effective(ctx, owner, project10)
		if err != nil || again.ID != got.ID {
			t.Fatalf("resolution unstable: %v %v", again.ID, err)
		}
	}
}

func TestEffectiveIDTiebreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := orgEditor("org-a")
	scope := view.Scope{ProjectIDs: []string{"10"}}

	a := h.published(t, owner, "a", scope, true)
	b := h.published(t, owner, "b", scope, true)
	// Same published timestamp.
	pub := *a.PublishedAt
	b.PublishedAt = &pub
	if _, err := h.views.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := h.resolver.Effective(ctx, owner, project10)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	want := a.ID
	if b.ID < a.ID {
		want = b.ID
	}
	if got.ID != want {
		t.Fatalf("tiebreak should pick lowest id %s, got %s", want, got.ID)
	}
}

func TestPreferenceWinsAndIsClearable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := orgEditor("org-a")
	scope := view.Scope{ProjectIDs: []string{"10"}}

	preferred := h.published(t, owner, "private-preferred", scope, false)
	h.published(t, owner, "public-default", scope, true)

	if err := h.resolver.SetPreference(ctx, owner, project10, preferred.ID); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	got, err := h.resolver.Effective(ctx, owner, project10)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if got.ID != preferred.ID {
		t.Fatalf("preference ignored: got %s", got.Name)
	}

	if err := h.resolver.ClearPreference(ctx, owner, project10); err != nil {
		t.Fatalf("ClearPreference: %v", err)
	}
	got, err = h.resolver.Effective(ctx, owner, project10)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if got.ID == preferred.ID {
		t.Fatal("cleared preference still applied")
	}
}

func TestPreferenceCannotWidenScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ownerA := orgEditor("org-a")
	v := h.published(t, ownerA, "a-view", view.Scope{ProjectIDs: []string{"10"}}, true)

	// A user in org B with no share cannot prefer org A's view.
	outsider := orgEditor("org-b")
	if err := h.resolver.SetPreference(ctx, outsider, project10, v.ID); err != tenant.ErrDenied {
		t.Fatalf("expected generic denial, got %v", err)
	}
}

func TestSharedViewResolvesUnderRestrictedScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adminA := identity.Context{UserID: "admin-a", OrganizationID: "org-a", Role: identity.RoleOrgAdmin}
	recipient := identity.Context{UserID: "u-b", OrganizationID: "org-b", Role: identity.RoleAnalyst}

	v := h.published(t, adminA, "shared", view.Scope{ProjectIDs: []string{"10", "11"}}, false)
	_, err := h.shares.Create(ctx, adminA, share.CreateParams{
		ViewID:       v.ID,
		TargetOrgID:  "org-b",
		Permission:   share.PermissionViewOnly,
		Restrictions: view.Restrictions{ProjectIDs: []string{"11"}},
	})
	if err != nil {
		t.Fatalf("share.Create: %v", err)
	}

	// Project 11 is inside the restricted scope.
	got, err := h.resolver.Effective(ctx, recipient, view.ResourceKey{Kind: view.KindProject, ID: "11"})
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if got.ID != v.ID {
		t.Fatalf("expected shared view, got %s", got.ID)
	}

	// Project 10 is in the view but outside the restriction.
	if _, err := h.resolver.Effective(ctx, recipient, project10); err != ErrNoEffectiveView {
		t.Fatalf("expected ErrNoEffectiveView for restricted-out resource, got %v", err)
	}
}

func TestRevokedShareStopsResolving(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	adminA := identity.Context{UserID: "admin-a", OrganizationID: "org-a", Role: identity.RoleOrgAdmin}
	recipient := identity.Context{UserID: "u-b", OrganizationID: "org-b", Role: identity.RoleAnalyst}

	v := h.published(t, adminA, "shared", view.Scope{ProjectIDs: []string{"10"}}, false)
	s, err := h.shares.Create(ctx, adminA, share.CreateParams{ViewID: v.ID, TargetOrgID: "org-b", Permission: share.PermissionViewOnly})
	if err != nil {
		t.Fatalf("share.Create: %v", err)
	}
	if _, err := h.resolver.Effective(ctx, recipient, project10); err != nil {
		t.Fatalf("pre-revoke resolution failed: %v", err)
	}
	if _, err := h.shares.Revoke(ctx, adminA, s.ID, "done"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := h.resolver.Effective(ctx, recipient, project10); err != ErrNoEffectiveView {
		t.Fatalf("revoked share still resolves: %v", err)
	}
}

func TestNoEffectiveViewIsDistinctFromDenied(t *testing.T) {
	h := newHarness(t)
	owner := orgEditor("org-a")
	_, err := h.resolver.Effective(context.Background(), owner, view.ResourceKey{Kind: view.KindProject, ID: "nothing"})
	if err != ErrNoEffectiveView {
		t.Fatalf("expected ErrNoEffectiveView, got %v", err)
	}
	if err == tenant.ErrDenied {
		t.Fatal("no-view must not be a security denial")
	}
}

func TestLessEffectiveIsTotalOrder(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	views := []view.View{
		{ID: "b", IsPublic: true, PublishedAt: &now},
		{ID: "a", IsPublic: true, PublishedAt: &now},
		{ID: "c", IsPublic: false, PublishedAt: &now},
		{ID: "d", IsPublic: true, PublishedAt: &earlier},
		{ID: "e", IsPublic: false, PublishedAt: nil},
	}
	for _, x := range views {
		if lessEffective(x, x) {
			t.Fatalf("irreflexivity violated for %s", x.ID)
		}
		for _, y := range views {
			if x.ID == y.ID {
				continue
			}
			if lessEffective(x, y) == lessEffective(y, x) {
				t.Fatalf("order not antisymmetric for %s/%s", x.ID, y.ID)
			}
		}
	}
	if !lessEffective(views[1], views[0]) {
		t.Fatal("equal public+time must order by id")
	}
	if !lessEffective(views[0], views[2]) {
		t.Fatal("public must beat private")
	}
	if !lessEffective(views[0], views[3]) {
		t.Fatal("newer must beat older")
	}
}
