package share

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"veridex.org/internal/identity"
	"veridex.org/internal/ids"
	"veridex.org/internal/obs"
	"veridex.org/internal/tenant"
	"veridex.org/internal/vatr"
	"veridex.org/internal/view"
)

// Store persists shares. Revoke and IncrementAccess must be atomic
// conditional writes: once a revoke commits, no subsequent read may
// observe the pre-revoke state, and share-active status is never cached
// beyond a single request.
type Store interface {
	Insert(ctx context.Context, s Share) (Share, error)
	Get(ctx context.Context, id string) (Share, error)
	Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) (Share, error)
	MarkExpired(ctx context.Context, id string, at time.Time) error
	IncrementAccess(ctx context.Context, id string) (int, error)
	ListByView(ctx context.Context, viewID string) ([]Share, error)
	ListBySourceOrg(ctx context.Context, orgID string) ([]Share, error)
	ListForTarget(ctx context.Context, orgID, userID string) ([]Share, error)
}

// CreateParams describe a new grant.
type CreateParams struct {
	ViewID       string
	TargetOrgID  string
	TargetUserID string
	Permission   PermissionLevel
	Restrictions view.Restrictions
	ExpiresAt    *time.Time
	MaxAccesses  int
}

// Ledger enforces the share lifecycle.
type Ledger struct {
	shares Store
	views  view.Store
	guard  tenant.Guard
	audit  vatr.Recorder
	now    func() time.Time
}

// NewLedger constructs a Ledger. The recorder may be nil in tests.
func NewLedger(shares Store, views view.Store, audit vatr.Recorder) (*Ledger, error) {
	if shares == nil {
		return nil, errors.New("share: store is required")
	}
	if views == nil {
		return nil, errors.New("share: view store is required")
	}
	return &Ledger{shares: shares, views: views, audit: audit, now: time.Now}, nil
}

// WithClock overrides the time source (tests).
func (l *Ledger) WithClock(fn func() time.Time) *Ledger {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Create grants a view. The caller must be an org admin of the owning
// organization, or the view's owner, and the view must be published and
// marked shareable.
func (l *Ledger) Create(ctx context.Context, ident identity.Context, p CreateParams) (Share, error) {
	if !ident.HasOrg() {
		return Share{}, tenant.ErrDenied
	}
	v, err := l.views.Get(ctx, strings.TrimSpace(p.ViewID))
	if errors.Is(err, view.ErrNotFound) {
		return Share{}, tenant.ErrDenied
	}
	if err != nil {
		return Share{}, err
	}
	if err := l.guard.ValidateOwnership(ident, v); err != nil {
		return Share{}, err
	}
	if !v.CanShare {
		return Share{}, tenant.ErrDenied
	}
	if !ident.IsOrgAdmin() && v.CreatedBy != ident.UserID {
		return Share{}, tenant.ErrDenied
	}
	if v.Status != view.StatusPublished {
		return Share{}, fmt.Errorf("%w: only published views can be shared", ErrInvalidInput)
	}
	p.TargetOrgID = strings.TrimSpace(p.TargetOrgID)
	p.TargetUserID = strings.TrimSpace(p.TargetUserID)
	if (p.TargetOrgID == "") == (p.TargetUserID == "") {
		return Share{}, fmt.Errorf("%w: exactly one of target org or target user is required", ErrInvalidInput)
	}
	if _, ok := knownPermissions[p.Permission]; !ok {
		return Share{}, fmt.Errorf("%w: unsupported permission level %q", ErrInvalidInput, p.Permission)
	}
	now := l.now().UTC()
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return Share{}, fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	}
	if p.MaxAccesses < 0 {
		return Share{}, fmt.Errorf("%w: max accesses must not be negative", ErrInvalidInput)
	}
	s := Share{
		ID:           ids.New(),
		ViewID:       v.ID,
		SourceOrgID:  v.OrganizationID,
		SharedBy:     ident.UserID,
		TargetOrgID:  p.TargetOrgID,
		TargetUserID: p.TargetUserID,
		Permission:   p.Permission,
		Restrictions: p.Restrictions,
		ExpiresAt:    p.ExpiresAt,
		Status:       StatusActive,
		MaxAccesses:  p.MaxAccesses,
		CreatedAt:    now,
	}
	created, err := l.shares.Insert(ctx, s)
	if err != nil {
		return Share{}, err
	}
	if err := l.record(ctx, ident, vatr.ActionCreated, created, nil); err != nil {
		return Share{}, err
	}
	return created, nil
}

// Revoke terminates a grant immediately. Terminal: a revoked or expired
// share can never be reactivated.
func (l *Ledger) Revoke(ctx context.Context, ident identity.Context, shareID, reason string) (Share, error) {
	s, err := l.shares.Get(ctx, strings.TrimSpace(shareID))
	if errors.Is(err, ErrNotFound) {
		return Share{}, tenant.ErrDenied
	}
	if err != nil {
		return Share{}, err
	}
	if err := l.guard.ValidateOwnership(ident, s); err != nil {
		return Share{}, err
	}
	if !ident.IsOrgAdmin() && s.SharedBy != ident.UserID {
		return Share{}, tenant.ErrDenied
	}
	if s.Status != StatusActive {
		return Share{}, ErrTerminal
	}
	revoked, err := l.shares.Revoke(ctx, s.ID, ident.UserID, strings.TrimSpace(reason), l.now().UTC())
	if err != nil {
		return Share{}, err
	}
	if err := l.record(ctx, ident, vatr.ActionDeleted, revoked, map[string]any{"reason": revoked.RevokeReason}); err != nil {
		return Share{}, err
	}
	return revoked, nil
}

// Access resolves a grant for its recipient. Every failure mode (unknown
// share, share aimed at someone else, expired, revoked, access cap
// reached) returns (nil, nil) so the caller cannot learn whether the
// share ever existed. The actual reason goes to the operator log only.
func (l *Ledger) Access(ctx context.Context, ident identity.Context, shareID string) (*ScopedAccess, error) {
	s, err := l.shares.Get(ctx, strings.TrimSpace(shareID))
	if errors.Is(err, ErrNotFound) {
		return l.deny(ctx, shareID, "not found"), nil
	}
	if err != nil {
		return nil, err
	}
	if !s.TargetedAt(ident.UserID, ident.OrganizationID) {
		return l.deny(ctx, s.ID, "not targeted at caller"), nil
	}
	if s.Status != StatusActive {
		return l.deny(ctx, s.ID, "revoked or expired"), nil
	}
	now := l.now().UTC()
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		// Flip lazily; expiry is effective from the timestamp either way.
		_ = l.shares.MarkExpired(ctx, s.ID, now)
		return l.deny(ctx, s.ID, "expired"), nil
	}
	// Resolve the view first: a denial further down must not consume one
	// of a capped share's remaining accesses.
	v, err := l.views.Get(ctx, s.ViewID)
	if errors.Is(err, view.ErrNotFound) {
		return l.deny(ctx, s.ID, "view missing"), nil
	}
	if err != nil {
		return nil, err
	}
	if v.Status != view.StatusPublished {
		return l.deny(ctx, s.ID, "view not published"), nil
	}
	if _, err := l.shares.IncrementAccess(ctx, s.ID); err != nil {
		if errors.Is(err, ErrCapReached) || errors.Is(err, ErrNotFound) {
			return l.deny(ctx, s.ID, "access cap reached or no longer active"), nil
		}
		return nil, err
	}
	access := &ScopedAccess{
		ShareID:    s.ID,
		ViewID:     v.ID,
		ViewName:   v.Name,
		ViewType:   v.Type,
		Scope:      v.Scope.Restrict(s.Restrictions),
		Permission: s.Permission,
		CanExport:  s.Permission.CanExport(),
		CanCopy:    s.Permission.CanCopy(),
	}
	obs.CountShareAccess("granted")
	if l.audit != nil {
		entry := vatr.Entry{
			AssetID:    v.ID,
			OrgID:      v.OrganizationID,
			Action:     vatr.ActionViewed,
			ActorID:    ident.UserID,
			ActorRole:  ident.Role,
			SourceType: vatr.SourceAPI,
			Changes:    map[string]any{"share_id": s.ID, "target_org_id": ident.OrganizationID},
		}
		if _, err := l.audit.Append(ctx, entry); err != nil {
			return nil, err
		}
	}
	return access, nil
}

// ListForView enumerates shares the caller's org created against one of
// its own views.
func (l *Ledger) ListForView(ctx context.Context, ident identity.Context, viewID string) ([]Share, error) {
	v, err := l.views.Get(ctx, strings.TrimSpace(viewID))
	if errors.Is(err, view.ErrNotFound) {
		return nil, tenant.ErrDenied
	}
	if err != nil {
		return nil, err
	}
	if err := l.guard.ValidateOwnership(ident, v); err != nil {
		return nil, err
	}
	shares, err := l.shares.ListByView(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	return tenant.FilterByOrg(ident, shares), nil
}

// ListCreated enumerates shares the caller's org granted.
func (l *Ledger) ListCreated(ctx context.Context, ident identity.Context) ([]Share, error) {
	if !ident.HasOrg() {
		return nil, tenant.ErrDenied
	}
	shares, err := l.shares.ListBySourceOrg(ctx, ident.OrganizationID)
	if err != nil {
		return nil, err
	}
	return tenant.FilterByOrg(ident, shares), nil
}

// ListReceived enumerates active grants directed at the caller or the
// caller's org. An org can never enumerate shares between two unrelated
// third parties.
func (l *Ledger) ListReceived(ctx context.Context, ident identity.Context) ([]Share, error) {
	shares, err := l.shares.ListForTarget(ctx, ident.OrganizationID, ident.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]Share, 0, len(shares))
	for _, s := range shares {
		if s.TargetedAt(ident.UserID, ident.OrganizationID) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ActiveForIdentity returns the caller's currently usable grants; used by
// the effective-view resolver and the AI retrieval guard to build the
// accessible set.
func (l *Ledger) ActiveForIdentity(ctx context.Context, ident identity.Context) ([]Share, error) {
	shares, err := l.ListReceived(ctx, ident)
	if err != nil {
		return nil, err
	}
	now := l.now().UTC()
	out := make([]Share, 0, len(shares))
	for _, s := range shares {
		if s.Status != StatusActive {
			continue
		}
		if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (l *Ledger) deny(ctx context.Context, shareID, reason string) *ScopedAccess {
	obs.CountShareAccess("denied")
	obs.CountDenial("share")
	_ = obs.Event(ctx, "share.access_denied", map[string]any{
		"share_id": shareID,
		"reason":   reason,
	})
	return nil
}

func (l *Ledger) record(ctx context.Context, ident identity.Context, action vatr.Action, s Share, extra map[string]any) error {
	if l.audit == nil {
		return nil
	}
	changes := map[string]any{
		"view_id":        s.ViewID,
		"target_org_id":  s.TargetOrgID,
		"target_user_id": s.TargetUserID,
		"status":         string(s.Status),
	}
	for k, v := range extra {
		changes[k] = v
	}
	h, err := vatr.Hash(s)
	if err != nil {
		return err
	}
	_, err = l.audit.Append(ctx, vatr.Entry{
		AssetID:    s.ID,
		OrgID:      s.SourceOrgID,
		Action:     action,
		ActorID:    ident.UserID,
		ActorRole:  ident.Role,
		AfterHash:  h,
		Changes:    changes,
		SourceType: vatr.SourceManualEntry,
	})
	return err
}
