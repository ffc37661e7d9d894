package identity

import "strings"

// Known role names. Cluster RBAC keys off these; the transport adapter
// maps token claims onto them.
const (
	RoleOrgAdmin       = "org_admin"
	RoleEditor         = "editor"
	RoleAnalyst        = "analyst"
	RoleInvestorViewer = "investor_viewer"
	RoleAuditor        = "auditor"
)

// Context is an immutable snapshot of the requesting principal. It is
// attached to every request at the transport boundary and never mutated
// by the core.
type Context struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	Role           string `json:"role"`
	Superuser      bool   `json:"superuser,omitempty"`
}

// HasOrg reports whether the principal operates inside an organization.
// Principals without an active organization only reach records they
// personally authored.
func (c Context) HasOrg() bool {
	return strings.TrimSpace(c.OrganizationID) != ""
}

// IsOrgAdmin reports whether the principal administers its organization.
func (c Context) IsOrgAdmin() bool {
	return c.Role == RoleOrgAdmin
}

// Valid reports whether the snapshot carries the minimum required fields.
func (c Context) Valid() bool {
	return strings.TrimSpace(c.UserID) != "" && strings.TrimSpace(c.Role) != ""
}
