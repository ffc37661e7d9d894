// Package vatr implements the append-only, hash-chained audit ledger.
// VATR stands for Version, Audit, Track, Retain: every data change must be hash
// verifiable and attributable to a source (AI vs. manual).
package vatr

import (
	"errors"
	"time"
)

// Action enumerates auditable events.
type Action string

const (
	ActionCreated        Action = "created"
	ActionUpdated        Action = "updated"
	ActionViewed         Action = "viewed"
	ActionExported       Action = "exported"
	ActionVerified       Action = "verified"
	ActionManualOverride Action = "manual_override"
	ActionAIExtracted    Action = "ai_extracted"
	ActionBulkImport     Action = "bulk_import"
	ActionDeleted        Action = "deleted"
	ActionRestored       Action = "restored"
)

var knownActions = map[Action]struct{}{
	ActionCreated: {}, ActionUpdated: {}, ActionViewed: {}, ActionExported: {},
	ActionVerified: {}, ActionManualOverride: {}, ActionAIExtracted: {},
	ActionBulkImport: {}, ActionDeleted: {}, ActionRestored: {},
}

// SourceType attributes an entry to its origin. Auditors must be able to
// tell "a human asserted X" from "the system inferred X" at a glance.
type SourceType string

const (
	SourceAIExtraction SourceType = "ai_extraction"
	SourceManualEntry  SourceType = "manual_entry"
	SourceBulkImport   SourceType = "bulk_import"
	SourceAPI          SourceType = "api"
	SourceSystem       SourceType = "system"
)

var knownSources = map[SourceType]struct{}{
	SourceAIExtraction: {}, SourceManualEntry: {}, SourceBulkImport: {},
	SourceAPI: {}, SourceSystem: {},
}

var (
	ErrInvalidEntry = errors.New("vatr: invalid entry")
	// ErrIntegrityMismatch signals that live data no longer matches the
	// last logged hash. It is surfaced with full detail, never corrected.
	ErrIntegrityMismatch = errors.New("vatr: integrity mismatch")
)

// Entry is one append-only audit record. Entries are never updated or
// deleted; no such method exists on any store.
type Entry struct {
	ID               string         `json:"id"`
	AssetID          string         `json:"asset_id"`
	OrgID            string         `json:"org_id"`
	Seq              uint64         `json:"seq"`
	Action           Action         `json:"action"`
	ActorID          string         `json:"actor_id"`
	ActorRole        string         `json:"actor_role"`
	BeforeHash       string         `json:"before_hash,omitempty"`
	AfterHash        string         `json:"after_hash,omitempty"`
	Changes          map[string]any `json:"changes,omitempty"`
	IsManualOverride bool           `json:"is_manual_override,omitempty"`
	OverrideReason   string         `json:"override_reason,omitempty"`
	SourceType       SourceType     `json:"source_type"`
	Confidence       *float64       `json:"confidence,omitempty"`
	SourceDocumentID string         `json:"source_document_id,omitempty"`
	OccurredAt       time.Time      `json:"occurred_at"`
}

// Verification is the result of an integrity check.
type Verification struct {
	AssetID     string `json:"asset_id"`
	IsValid     bool   `json:"is_valid"`
	LastHash    string `json:"last_hash"`
	CurrentHash string `json:"current_hash"`
}
