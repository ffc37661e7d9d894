package view

import (
	"slices"
	"strings"
)

// ResourceKind enumerates the entity kinds a scope may reference.
type ResourceKind string

const (
	KindProject          ResourceKind = "project"
	KindDocument         ResourceKind = "document"
	KindInfoItem         ResourceKind = "info_item"
	KindFact             ResourceKind = "fact"
	KindEvidenceArtifact ResourceKind = "evidence_artifact"
)

// ResourceKey addresses one scoped entity.
type ResourceKey struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

// String renders the key in its storage form, e.g. "project:10".
func (k ResourceKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// ParseResourceKey parses the storage form produced by String.
func ParseResourceKey(s string) (ResourceKey, bool) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || kind == "" || id == "" {
		return ResourceKey{}, false
	}
	return ResourceKey{Kind: ResourceKind(kind), ID: id}, true
}

// Scope is the only addressable surface a view exposes. Treat values as
// immutable: NewScope copies, sorts, and dedupes its inputs, and every
// operation returns a fresh value.
type Scope struct {
	ProjectIDs          []string `json:"project_ids,omitempty"`
	DocumentIDs         []string `json:"document_ids,omitempty"`
	InfoItemIDs         []string `json:"info_item_ids,omitempty"`
	FactIDs             []string `json:"fact_ids,omitempty"`
	EvidenceArtifactIDs []string `json:"evidence_artifact_ids,omitempty"`
	IncludeEvidence     bool     `json:"include_evidence,omitempty"`
	ExcludeSensitive    bool     `json:"exclude_sensitive,omitempty"`
}

// NewScope normalizes the given scope: ids trimmed, deduped, sorted.
func NewScope(s Scope) Scope {
	return Scope{
		ProjectIDs:          normalizeIDs(s.ProjectIDs),
		DocumentIDs:         normalizeIDs(s.DocumentIDs),
		InfoItemIDs:         normalizeIDs(s.InfoItemIDs),
		FactIDs:             normalizeIDs(s.FactIDs),
		EvidenceArtifactIDs: normalizeIDs(s.EvidenceArtifactIDs),
		IncludeEvidence:     s.IncludeEvidence,
		ExcludeSensitive:    s.ExcludeSensitive,
	}
}

// Contains reports whether the scope references the given resource.
func (s Scope) Contains(key ResourceKey) bool {
	switch key.Kind {
	case KindProject:
		return contains(s.ProjectIDs, key.ID)
	case KindDocument:
		return contains(s.DocumentIDs, key.ID)
	case KindInfoItem:
		return contains(s.InfoItemIDs, key.ID)
	case KindFact:
		return contains(s.FactIDs, key.ID)
	case KindEvidenceArtifact:
		return s.IncludeEvidence && contains(s.EvidenceArtifactIDs, key.ID)
	default:
		return false
	}
}

// IsEmpty reports whether the scope references nothing.
func (s Scope) IsEmpty() bool {
	return len(s.ProjectIDs) == 0 && len(s.DocumentIDs) == 0 &&
		len(s.InfoItemIDs) == 0 && len(s.FactIDs) == 0 &&
		len(s.EvidenceArtifactIDs) == 0
}

// IsSubsetOf reports whether every resource in s is also in other.
func (s Scope) IsSubsetOf(other Scope) bool {
	return subset(s.ProjectIDs, other.ProjectIDs) &&
		subset(s.DocumentIDs, other.DocumentIDs) &&
		subset(s.InfoItemIDs, other.InfoItemIDs) &&
		subset(s.FactIDs, other.FactIDs) &&
		subset(s.EvidenceArtifactIDs, other.EvidenceArtifactIDs) &&
		(!s.IncludeEvidence || other.IncludeEvidence)
}

// Intersect returns the strict set intersection of two scopes.
func (s Scope) Intersect(other Scope) Scope {
	return Scope{
		ProjectIDs:          intersect(s.ProjectIDs, other.ProjectIDs),
		DocumentIDs:         intersect(s.DocumentIDs, other.DocumentIDs),
		InfoItemIDs:         intersect(s.InfoItemIDs, other.InfoItemIDs),
		FactIDs:             intersect(s.FactIDs, other.FactIDs),
		EvidenceArtifactIDs: intersect(s.EvidenceArtifactIDs, other.EvidenceArtifactIDs),
		IncludeEvidence:     s.IncludeEvidence && other.IncludeEvidence,
		ExcludeSensitive:    s.ExcludeSensitive || other.ExcludeSensitive,
	}
}

// Restrictions narrows a scope along selected axes. A nil axis leaves that
// axis untouched; there is no way to express a widening.
type Restrictions struct {
	ProjectIDs          []string `json:"project_ids,omitempty"`
	DocumentIDs         []string `json:"document_ids,omitempty"`
	InfoItemIDs         []string `json:"info_item_ids,omitempty"`
	FactIDs             []string `json:"fact_ids,omitempty"`
	EvidenceArtifactIDs []string `json:"evidence_artifact_ids,omitempty"`
	ExcludeEvidence     bool     `json:"exclude_evidence,omitempty"`
	ExcludeSensitive    bool     `json:"exclude_sensitive,omitempty"`
}

// IsZero reports whether no restriction is expressed.
func (r Restrictions) IsZero() bool {
	return r.ProjectIDs == nil && r.DocumentIDs == nil && r.InfoItemIDs == nil &&
		r.FactIDs == nil && r.EvidenceArtifactIDs == nil &&
		!r.ExcludeEvidence && !r.ExcludeSensitive
}

// Restrict applies the restrictions to the scope. The result is a subset
// of the receiver by construction.
func (s Scope) Restrict(r Restrictions) Scope {
	out := Scope{
		ProjectIDs:          restrictAxis(s.ProjectIDs, r.ProjectIDs),
		DocumentIDs:         restrictAxis(s.DocumentIDs, r.DocumentIDs),
		InfoItemIDs:         restrictAxis(s.InfoItemIDs, r.InfoItemIDs),
		FactIDs:             restrictAxis(s.FactIDs, r.FactIDs),
		EvidenceArtifactIDs: restrictAxis(s.EvidenceArtifactIDs, r.EvidenceArtifactIDs),
		IncludeEvidence:     s.IncludeEvidence && !r.ExcludeEvidence,
		ExcludeSensitive:    s.ExcludeSensitive || r.ExcludeSensitive,
	}
	return out
}

func restrictAxis(base, restriction []string) []string {
	if restriction == nil {
		return slices.Clone(base)
	}
	return intersect(base, normalizeIDs(restriction))
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return out
}

func contains(ids []string, id string) bool {
	return slices.Contains(ids, id)
}

func subset(a, b []string) bool {
	for _, id := range a {
		if !slices.Contains(b, id) {
			return false
		}
	}
	return true
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := set[id]; ok {
			out = append(out, id)
		}
	}
	if out != nil {
		slices.Sort(out)
	}
	return out
}
