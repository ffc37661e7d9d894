// Package autofill decides whether AI-extracted values may be written
// into fields automatically. Confidence gates the mechanics; a fixed
// sensitive-category list overrides confidence entirely.
package autofill

import (
	"errors"
	"time"
)

// Status is the outcome a decision record carries. Proposal outcomes come
// out of Propose; resolution outcomes are written by the explicit user
// steps. Records are immutable, so a resolution is always a new record
// pointing back at the one it resolves.
type Status string

const (
	// StatusAutoFilled means a single high-confidence match was applied.
	StatusAutoFilled Status = "auto_filled"
	// StatusNeedsSelection means the user must actively choose: several
	// candidates matched, or the best one fell below the threshold.
	StatusNeedsSelection Status = "needs_selection"
	// StatusNeedsConfirmation marks a sensitive override in progress: the
	// user asked to fill a blocked field and must now explicitly confirm.
	StatusNeedsConfirmation Status = "needs_confirmation"
	// StatusNoMatch means nothing usable was found.
	StatusNoMatch Status = "no_match"
	// StatusSensitiveBlocked means the field category never autofills,
	// regardless of confidence.
	StatusSensitiveBlocked Status = "sensitive_blocked"

	// StatusUserSelected records a user picking one of several candidates.
	StatusUserSelected Status = "user_selected"
	// StatusUserConfirmed records a user approving a single candidate or
	// completing a sensitive override.
	StatusUserConfirmed Status = "user_confirmed"
	// StatusUserRejected records a user declining every candidate.
	StatusUserRejected Status = "user_rejected"
	// StatusSkipped records a user leaving the field unfilled for now.
	StatusSkipped Status = "skipped"
)

// pendingStatuses await a user step; everything else is final.
var pendingStatuses = map[Status]struct{}{
	StatusNeedsSelection:    {},
	StatusNeedsConfirmation: {},
}

// Pending reports whether the status still awaits a user step.
func (s Status) Pending() bool {
	_, ok := pendingStatuses[s]
	return ok
}

var (
	ErrNotFound     = errors.New("autofill: decision not found")
	ErrInvalidInput = errors.New("autofill: invalid input")
	ErrNotPending   = errors.New("autofill: decision is not awaiting a user")
)

// neverAutofill lists field categories that always require a human,
// independent of match confidence. The list is fixed at compile time so
// no configuration can quietly widen automated writes into these.
var neverAutofill = map[string]struct{}{
	"bank_account":       {},
	"personal_id":        {},
	"personal_data":      {},
	"financial_covenant": {},
	"legal_binding":      {},
	"tax_id":             {},
	"password":           {},
	"ssn":                {},
	"api_key":            {},
	"secret":             {},
	"credit_card":        {},
}

// SensitiveCategory reports whether the category never autofills.
func SensitiveCategory(category string) bool {
	_, ok := neverAutofill[category]
	return ok
}

// Candidate is one possible value proposed by a match source. The value
// itself is never serialized toward clients; a pending decision exposes
// only labels and confidences.
type Candidate struct {
	Label            string  `json:"label"`
	Value            string  `json:"-"`
	Confidence       float64 `json:"confidence"`
	SourceDocumentID string  `json:"source_document_id,omitempty"`
}

// Choice is the client-visible projection of a candidate.
type Choice struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Decision is one immutable autofill record: a proposal outcome or the
// user resolution of an earlier record. Never updated or deleted; a
// resolution names its parent through ResolvesID. Value is set only once
// a fill is applied, either automatically or by explicit user action.
type Decision struct {
	ID             string    `json:"id"`
	AssetID        string    `json:"asset_id"`
	OrganizationID string    `json:"organization_id"`
	FieldKey       string    `json:"field_key"`
	Category       string    `json:"category,omitempty"`
	Status         Status    `json:"status"`
	Value          string    `json:"value,omitempty"`
	Choices        []Choice  `json:"choices,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	ResolvesID     string    `json:"resolves_id,omitempty"`
	OverrideReason string    `json:"override_reason,omitempty"`
	RequestedBy    string    `json:"requested_by"`
	ConfirmedBy    string    `json:"confirmed_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	// Candidates keeps the full proposals server-side so a later
	// confirmation can recover the chosen value. Never serialized
	// toward clients.
	Candidates []Candidate `json:"-"`
}
