// Package tenant enforces organization-boundary invariants. Every check
// that crosses an organization line goes through Guard so the superuser
// escape hatch stays auditable in one place.
package tenant

import (
	"errors"

	"veridex.org/internal/identity"
)

// ErrDenied is the single generic boundary error. The same value covers
// "wrong organization", "no such resource", and "share no longer valid":
// callers must not be able to tell whether the target exists.
var ErrDenied = errors.New("resource not found")

// Owned is implemented by every record that belongs to an organization.
type Owned interface {
	OwnerOrgID() string
	AuthorID() string
}

// Decision is the result of an explicit scope check, with the actual
// reason reserved for the operator log channel.
type Decision struct {
	Allowed bool
	Reason  string
}

// Guard evaluates tenant-boundary rules. It holds no state; all inputs
// arrive with the request.
type Guard struct{}

// ValidateOwnership checks that the identity may touch the record.
// Superusers pass unconditionally; ordinary principals need a matching
// active organization, or authorship when they have no organization.
func (Guard) ValidateOwnership(ident identity.Context, rec Owned) error {
	if rec == nil {
		return ErrDenied
	}
	if ident.Superuser {
		return nil
	}
	if ident.HasOrg() {
		if rec.OwnerOrgID() == ident.OrganizationID {
			return nil
		}
		return ErrDenied
	}
	if rec.AuthorID() != "" && rec.AuthorID() == ident.UserID {
		return nil
	}
	return ErrDenied
}

// FilterByOrg drops records the identity may not see. It is the second
// line of defense behind query-level scoping, not a substitute for it.
func FilterByOrg[T Owned](ident identity.Context, recs []T) []T {
	if ident.Superuser {
		return recs
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		if ident.HasOrg() {
			if rec.OwnerOrgID() == ident.OrganizationID {
				out = append(out, rec)
			}
			continue
		}
		if rec.AuthorID() != "" && rec.AuthorID() == ident.UserID {
			out = append(out, rec)
		}
	}
	return out
}

// CanAccessOrg reports whether the identity may operate within orgID.
func (Guard) CanAccessOrg(ident identity.Context, orgID string) bool {
	if ident.Superuser {
		return true
	}
	return ident.HasOrg() && ident.OrganizationID == orgID
}

// EnforceScope compares the caller's organization against the requested
// one. The reason is for operators only; callers see ErrDenied.
func (Guard) EnforceScope(userOrgID, requestedOrgID string) Decision {
	if userOrgID == "" {
		return Decision{Allowed: false, Reason: "caller has no active organization"}
	}
	if requestedOrgID == "" {
		return Decision{Allowed: false, Reason: "requested organization is empty"}
	}
	if userOrgID != requestedOrgID {
		return Decision{Allowed: false, Reason: "organization mismatch"}
	}
	return Decision{Allowed: true}
}
