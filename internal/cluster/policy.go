// Package cluster implements field-cluster RBAC: role-based redaction or
// omission of sensitive data clusters, applied after view selection and
// independent of it.
package cluster

import (
	"slices"

	"veridex.org/internal/identity"
)

// Cluster is one of the six fixed sensitivity groupings.
type Cluster string

const (
	ClusterIdentity    Cluster = "identity"
	ClusterTechnical   Cluster = "technical"
	ClusterOperational Cluster = "operational"
	ClusterFinancial   Cluster = "financial"
	ClusterCompliance  Cluster = "compliance"
	ClusterCommercial  Cluster = "commercial"
)

// Clusters is the fixed set, in canonical order.
var Clusters = []Cluster{
	ClusterIdentity, ClusterTechnical, ClusterOperational,
	ClusterFinancial, ClusterCompliance, ClusterCommercial,
}

// ClusterFields pairs a cluster with the field names a role may see in it.
type ClusterFields struct {
	Cluster Cluster  `json:"cluster"`
	Fields  []string `json:"fields"`
}

// Policy maps roles to their allowed clusters and fields. It is immutable
// configuration injected at startup; tests substitute their own policies
// without global side effects.
type Policy struct {
	grants map[string]map[Cluster][]string
}

// NewPolicy builds a Policy from role grants. Unknown clusters are
// dropped; field lists are copied.
func NewPolicy(grants map[string]map[Cluster][]string) Policy {
	out := make(map[string]map[Cluster][]string, len(grants))
	for role, byCluster := range grants {
		m := make(map[Cluster][]string, len(byCluster))
		for c, fields := range byCluster {
			if !slices.Contains(Clusters, c) {
				continue
			}
			m[c] = slices.Clone(fields)
		}
		out[role] = m
	}
	return Policy{grants: out}
}

// defaultFieldCatalog is the known predicate set per cluster, the fields
// the platform can ever hold. A role's ceiling never exceeds it.
var defaultFieldCatalog = map[Cluster][]string{
	ClusterIdentity:    {"name", "legal_form", "registration_number", "address", "country", "founding_year"},
	ClusterTechnical:   {"capacity", "technology", "grid_connection", "commissioning_date", "equipment_vendor"},
	ClusterOperational: {"availability", "production_actual", "production_forecast", "maintenance_status", "operator"},
	ClusterFinancial:   {"revenue", "ebitda", "debt_service", "tariff", "opex", "capex", "valuation"},
	ClusterCompliance:  {"permits", "certifications", "litigation", "regulatory_findings", "insurance_coverage"},
	ClusterCommercial:  {"ppa_terms", "offtaker", "contract_expiry", "pricing_model", "counterparties"},
}

// DefaultPolicy returns the shipped role policy. The investor_viewer role
// is restricted to identity/technical/operational regardless of any
// view-level sensitivity flag: RBAC layers on top of scope selection and
// never substitutes for it.
func DefaultPolicy() Policy {
	all := defaultFieldCatalog
	pick := func(clusters ...Cluster) map[Cluster][]string {
		m := make(map[Cluster][]string, len(clusters))
		for _, c := range clusters {
			m[c] = all[c]
		}
		return m
	}
	return NewPolicy(map[string]map[Cluster][]string{
		identity.RoleOrgAdmin:       pick(Clusters...),
		identity.RoleEditor:         pick(Clusters...),
		identity.RoleAuditor:        pick(Clusters...),
		identity.RoleAnalyst:        pick(ClusterIdentity, ClusterTechnical, ClusterOperational, ClusterFinancial, ClusterCommercial),
		identity.RoleInvestorViewer: pick(ClusterIdentity, ClusterTechnical, ClusterOperational),
	})
}

// AllowedFields returns the clusters and fields the role may see, in
// canonical cluster order. Unknown roles get nothing.
func (p Policy) AllowedFields(role string) []ClusterFields {
	byCluster, ok := p.grants[role]
	if !ok {
		return nil
	}
	var out []ClusterFields
	for _, c := range Clusters {
		fields, ok := byCluster[c]
		if !ok {
			continue
		}
		out = append(out, ClusterFields{Cluster: c, Fields: slices.Clone(fields)})
	}
	return out
}

// Allows reports whether the role may see the given cluster field.
func (p Policy) Allows(role string, c Cluster, field string) bool {
	byCluster, ok := p.grants[role]
	if !ok {
		return false
	}
	fields, ok := byCluster[c]
	if !ok {
		return false
	}
	return slices.Contains(fields, field)
}

// FullDisclosure returns the keys a role sees in "full mode": every field
// the role's policy allows that is also actually available. The RBAC
// ceiling and data availability are independent limits; the effective
// disclosure is their intersection, never a superset of either.
func (p Policy) FullDisclosure(role string, available []string) []string {
	var out []string
	for _, key := range available {
		c, field, ok := splitKey(key)
		if !ok {
			continue
		}
		if p.Allows(role, c, field) {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}
