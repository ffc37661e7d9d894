package aiguard

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"veridex.org/internal/identity"
	"veridex.org/internal/share"
	"veridex.org/internal/tenant"
	"veridex.org/internal/vatr"
	"veridex.org/internal/view"
)

type fixture struct {
	views    *view.InMemory
	registry *view.Registry
	shares   *share.Ledger
	guard    *Guard
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	views := view.NewInMemory()
	audit, err := vatr.NewLedger(vatr.NewInMemory())
	require.NoError(t, err)
	registry, err := view.NewRegistry(views, audit)
	require.NoError(t, err)
	shares, err := share.NewLedger(share.NewInMemory(), views, audit)
	require.NoError(t, err)
	guard, err := NewGuard(views, shares)
	require.NoError(t, err)
	return &fixture{views: views, registry: registry, shares: shares, guard: guard}
}

func (f *fixture) sharedView(t *testing.T, owner identity.Context, scope view.Scope, p share.CreateParams) share.Share {
	t.Helper()
	ctx := context.Background()
	v, err := f.registry.Create(ctx, owner, view.Definition{
		Name: "pack", Type: view.TypeLenderPack, Scope: scope, CanShare: true,
	})
	require.NoError(t, err)
	v, err = f.registry.Publish(ctx, owner, v.ID)
	require.NoError(t, err)
	p.ViewID = v.ID
	s, err := f.shares.Create(ctx, owner, p)
	require.NoError(t, err)
	return s
}

var (
	adminA  = identity.Context{UserID: "admin-a", OrganizationID: "org-a", Role: identity.RoleOrgAdmin}
	analystB = identity.Context{UserID: "analyst-b", OrganizationID: "org-b", Role: identity.RoleAnalyst}
)

func TestValidateResultsAllowsOwnOrg(t *testing.T) {
	f := newFixture(t)
	err := f.guard.ValidateResults(context.Background(), analystB, []RetrievedItem{
		{ID: "doc-1", OrgID: "org-b", ProjectID: "55"},
		{ID: "doc-2", OrgID: "org-b"},
	})
	require.NoError(t, err)
}

func TestValidateResultsRejectsForeignOrg(t *testing.T) {
	f := newFixture(t)
	err := f.guard.ValidateResults(context.Background(), analystB, []RetrievedItem{
		{ID: "doc-1", OrgID: "org-b"},
		{ID: "leak-1", OrgID: "org-a", ProjectID: "10"},
	})
	var iso *IsolationError
	require.True(t, errors.As(err, &iso), "expected isolation error, got %v", err)
	require.Equal(t, "leak-1", iso.ItemID)
	require.Equal(t, "org-a", iso.OrgID)
}

func TestValidateResultsAllowsSharedProjects(t *testing.T) {
	f := newFixture(t)
	f.sharedView(t, adminA, view.Scope{ProjectIDs: []string{"10", "11"}}, share.CreateParams{
		TargetOrgID:  "org-b",
		Permission:   share.PermissionViewOnly,
		Restrictions: view.Restrictions{ProjectIDs: []string{"10"}},
	})

	ctx := context.Background()
	// Project 10 is inside the restricted share.
	require.NoError(t, f.guard.ValidateResults(ctx, analystB, []RetrievedItem{
		{ID: "doc-1", OrgID: "org-a", ProjectID: "10"},
	}))
	// Project 11 is in the view but restricted out of the share.
	err := f.guard.ValidateResults(ctx, analystB, []RetrievedItem{
		{ID: "doc-2", OrgID: "org-a", ProjectID: "11"},
	})
	var iso *IsolationError
	require.True(t, errors.As(err, &iso))
}

func TestValidateResultsRejectsForeignItemsWithoutProvenance(t *testing.T) {
	f := newFixture(t)
	f.sharedView(t, adminA, view.Scope{ProjectIDs: []string{"10"}}, share.CreateParams{
		TargetOrgID: "org-b",
		Permission:  share.PermissionViewOnly,
	})
	err := f.guard.ValidateResults(context.Background(), analystB, []RetrievedItem{
		{ID: "blob", OrgID: "org-a"},
	})
	var iso *IsolationError
	require.True(t, errors.As(err, &iso), "org-level share must not grant projectless items")
}

func TestRevokedShareClosesScope(t *testing.T) {
	f := newFixture(t)
	s := f.sharedView(t, adminA, view.Scope{ProjectIDs: []string{"10"}}, share.CreateParams{
		TargetOrgID: "org-b",
		Permission:  share.PermissionViewOnly,
	})
	ctx := context.Background()
	item := []RetrievedItem{{ID: "doc-1", OrgID: "org-a", ProjectID: "10"}}
	require.NoError(t, f.guard.ValidateResults(ctx, analystB, item))

	_, err := f.shares.Revoke(ctx, adminA, s.ID, "deal off")
	require.NoError(t, err)
	err = f.guard.ValidateResults(ctx, analystB, item)
	var iso *IsolationError
	require.True(t, errors.As(err, &iso), "revoked share still admits retrieval")
}

func TestFilterResponseScrubsForeignOrgNames(t *testing.T) {
	f := newFixture(t)
	known := []OrgName{
		{ID: "org-a", Name: "Alpine Energy Partners"},
		{ID: "org-b", Name: "Borealis Capital"},
		{ID: "org-c", Name: "Cascadia Infra"},
	}
	text := "Borealis Capital compared the asset with Cascadia Infra benchmarks."
	got, err := f.guard.FilterResponse(context.Background(), analystB, text, known)
	require.NoError(t, err)
	require.NotContains(t, got, "Cascadia Infra")
	require.Contains(t, got, "Borealis Capital")
	require.True(t, strings.Contains(got, "[external organization]"))
}

func TestFilterResponseKeepsSharedOrgNames(t *testing.T) {
	f := newFixture(t)
	f.sharedView(t, adminA, view.Scope{ProjectIDs: []string{"10"}}, share.CreateParams{
		TargetOrgID: "org-b",
		Permission:  share.PermissionViewOnly,
	})
	known := []OrgName{{ID: "org-a", Name: "Alpine Energy Partners"}}
	got, err := f.guard.FilterResponse(context.Background(), analystB, "Alpine Energy Partners published Q2 data.", known)
	require.NoError(t, err)
	require.Contains(t, got, "Alpine Energy Partners")
}

func TestValidateSharedScopeBoundsCitations(t *testing.T) {
	f := newFixture(t)
	s := f.sharedView(t, adminA, view.Scope{ProjectIDs: []string{"10", "11"}, DocumentIDs: []string{"d1"}}, share.CreateParams{
		TargetOrgID:  "org-b",
		Permission:   share.PermissionViewOnly,
		Restrictions: view.Restrictions{ProjectIDs: []string{"10"}},
	})
	ctx := context.Background()

	require.NoError(t, f.guard.ValidateSharedScope(ctx, analystB, s.ID, []view.ResourceKey{
		{Kind: view.KindProject, ID: "10"},
		{Kind: view.KindDocument, ID: "d1"},
	}))

	err := f.guard.ValidateSharedScope(ctx, analystB, s.ID, []view.ResourceKey{
		{Kind: view.KindProject, ID: "11"},
	})
	var iso *IsolationError
	require.True(t, errors.As(err, &iso))
	require.Equal(t, "project:11", iso.ItemID)
}

func TestValidateSharedScopeUnknownShareIsGenericDenial(t *testing.T) {
	f := newFixture(t)
	err := f.guard.ValidateSharedScope(context.Background(), analystB, "01HZZZZZZZZZZZZZZZZZZZZZZZ", nil)
	require.ErrorIs(t, err, tenant.ErrDenied)
}
