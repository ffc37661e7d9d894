// Package share models directed, revocable grants of a view to a target
// user or organization, and the ledger that enforces their lifecycle.
package share

import (
	"errors"
	"time"

	"veridex.org/internal/view"
)

// PermissionLevel gates what a recipient may do with the shared scope.
type PermissionLevel string

const (
	PermissionViewOnly PermissionLevel = "view_only"
	PermissionEdit     PermissionLevel = "edit"
	PermissionAdmin    PermissionLevel = "admin"
)

var knownPermissions = map[PermissionLevel]struct{}{
	PermissionViewOnly: {},
	PermissionEdit:     {},
	PermissionAdmin:    {},
}

// CanExport reports whether the level permits exporting shared data.
func (p PermissionLevel) CanExport() bool {
	return p == PermissionEdit || p == PermissionAdmin
}

// CanCopy reports whether the level permits copying shared data.
func (p PermissionLevel) CanCopy() bool {
	return p == PermissionEdit || p == PermissionAdmin
}

// Status is the share lifecycle state. Revoked and expired are terminal;
// there is no reactivation path.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

var (
	ErrNotFound     = errors.New("share: not found")
	ErrInvalidInput = errors.New("share: invalid input")
	ErrTerminal     = errors.New("share: already revoked or expired")
	// ErrCapReached is store-internal; callers of Access observe nil.
	ErrCapReached = errors.New("share: access cap reached")
)

// Share is one directed grant of a view. Exactly one of TargetOrgID or
// TargetUserID is set. Restrictions narrow the view's scope and can never
// widen it. MaxAccesses counts per share grant, globally, not per
// recipient; zero means unlimited.
type Share struct {
	ID           string            `json:"id"`
	ViewID       string            `json:"view_id"`
	SourceOrgID  string            `json:"source_org_id"`
	SharedBy     string            `json:"shared_by"`
	TargetOrgID  string            `json:"target_org_id,omitempty"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	Permission   PermissionLevel   `json:"permission_level"`
	Restrictions view.Restrictions `json:"scope_restrictions,omitempty"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Status       Status            `json:"status"`
	RevokedAt    *time.Time        `json:"revoked_at,omitempty"`
	RevokedBy    string            `json:"revoked_by,omitempty"`
	RevokeReason string            `json:"revoke_reason,omitempty"`
	AccessCount  int               `json:"access_count"`
	MaxAccesses  int               `json:"max_accesses,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// OwnerOrgID implements tenant.Owned. A share belongs to the org that
// granted it.
func (s Share) OwnerOrgID() string { return s.SourceOrgID }

// AuthorID implements tenant.Owned.
func (s Share) AuthorID() string { return s.SharedBy }

// TargetedAt reports whether the share is directed at the given principal.
func (s Share) TargetedAt(userID, orgID string) bool {
	if s.TargetUserID != "" {
		return s.TargetUserID == userID
	}
	return s.TargetOrgID != "" && s.TargetOrgID == orgID
}

// ScopedAccess is what a recipient gets back from a successful access:
// the intersection of the view's scope and the share's restrictions,
// never wider than either.
type ScopedAccess struct {
	ShareID    string          `json:"share_id"`
	ViewID     string          `json:"view_id"`
	ViewName   string          `json:"view_name"`
	ViewType   view.Type       `json:"view_type"`
	Scope      view.Scope      `json:"scope"`
	Permission PermissionLevel `json:"permission_level"`
	CanExport  bool            `json:"can_export"`
	CanCopy    bool            `json:"can_copy"`
}
