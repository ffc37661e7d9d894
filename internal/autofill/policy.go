package autofill

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"veridex.org/internal/identity"
	"veridex.org/internal/ids"
	"veridex.org/internal/obs"
	"veridex.org/internal/tenant"
	"veridex.org/internal/vatr"
)

// DefaultThreshold is the confidence at or above which a single match
// fills automatically.
const DefaultThreshold = 0.80

// MinThreshold is the configurable floor. Operators may raise the
// threshold but never lower it below this.
const MinThreshold = 0.50

// MatchRequest describes the field a caller wants filled.
type MatchRequest struct {
	AssetID  string
	FieldKey string
	Category string
	Query    string
}

// MatchSource produces fill candidates, typically backed by an LLM
// extraction service. Implementations must honor ctx cancellation; the
// policy treats any source failure as "no match" rather than blocking
// the caller's workflow.
type MatchSource interface {
	Match(ctx context.Context, req MatchRequest) ([]Candidate, error)
}

// SourceFunc adapts a function to the MatchSource interface.
type SourceFunc func(ctx context.Context, req MatchRequest) ([]Candidate, error)

func (f SourceFunc) Match(ctx context.Context, req MatchRequest) ([]Candidate, error) {
	return f(ctx, req)
}

// DecisionStore persists decision records. Append-only: there is no
// update or delete; a resolution is an insert whose ResolvesID names the
// pending record it settles, and at most one resolution may exist per
// record.
type DecisionStore interface {
	Insert(ctx context.Context, d Decision) (Decision, error)
	Get(ctx context.Context, id string) (Decision, error)
	ResolutionFor(ctx context.Context, decisionID string) (Decision, error)
	ListByAsset(ctx context.Context, assetID string) ([]Decision, error)
}

// Policy applies the autofill rules.
type Policy struct {
	source    MatchSource
	store     DecisionStore
	audit     vatr.Recorder
	threshold float64
	now       func() time.Time
}

// NewPolicy constructs a Policy with the default threshold.
func NewPolicy(source MatchSource, store DecisionStore, audit vatr.Recorder) (*Policy, error) {
	if source == nil || store == nil {
		return nil, errors.New("autofill: source and store are required")
	}
	return &Policy{
		source:    source,
		store:     store,
		audit:     audit,
		threshold: DefaultThreshold,
		now:       time.Now,
	}, nil
}

// WithThreshold overrides the confidence threshold, clamped to the floor.
func (p *Policy) WithThreshold(t float64) *Policy {
	if t < MinThreshold {
		t = MinThreshold
	}
	if t > 1 {
		t = 1
	}
	p.threshold = t
	return p
}

// WithClock overrides the time source (tests).
func (p *Policy) WithClock(fn func() time.Time) *Policy {
	if fn != nil {
		p.now = fn
	}
	return p
}

// Propose runs one fill attempt and records its outcome. Sensitive
// categories are blocked before any matching happens, so a blocked
// proposal never touches the match source at all. A single candidate only
// fills automatically at or above the threshold; anything short of that
// pends as needs_selection so the user actively chooses before any value
// is revealed.
func (p *Policy) Propose(ctx context.Context, ident identity.Context, req MatchRequest) (Decision, error) {
	if !ident.HasOrg() {
		return Decision{}, tenant.ErrDenied
	}
	req.FieldKey = strings.TrimSpace(req.FieldKey)
	if req.AssetID == "" || req.FieldKey == "" {
		return Decision{}, ErrInvalidInput
	}

	if SensitiveCategory(req.Category) {
		_ = obs.Event(ctx, "autofill.sensitive_blocked", map[string]any{
			"asset_id": req.AssetID, "field": req.FieldKey, "category": req.Category,
		})
		return p.finish(ctx, ident, req, Decision{Status: StatusSensitiveBlocked}, nil)
	}

	candidates, err := p.source.Match(ctx, req)
	if err != nil {
		// Source failure, including ctx timeout, degrades to no match.
		_ = obs.Event(ctx, "autofill.source_failed", map[string]any{
			"asset_id": req.AssetID, "field": req.FieldKey, "error": err.Error(),
		})
		return p.finish(ctx, ident, req, Decision{Status: StatusNoMatch}, nil)
	}
	candidates = sanitize(candidates)

	switch {
	case len(candidates) == 0:
		return p.finish(ctx, ident, req, Decision{Status: StatusNoMatch}, nil)
	case len(candidates) == 1 && candidates[0].Confidence >= p.threshold:
		conf := candidates[0].Confidence
		return p.finish(ctx, ident, req, Decision{
			Status:     StatusAutoFilled,
			Value:      candidates[0].Value,
			Confidence: &conf,
		}, candidates)
	default:
		return p.finish(ctx, ident, req, Decision{Status: StatusNeedsSelection}, candidates)
	}
}

// Confirm settles a needs_selection record: the user picks one of the
// offered choices by label, and the stored candidate's value is applied.
// Picking among several is recorded as user_selected; approving the lone
// below-threshold candidate as user_confirmed.
func (p *Policy) Confirm(ctx context.Context, ident identity.Context, decisionID, label string) (Decision, error) {
	parent, err := p.pending(ctx, ident, decisionID, StatusNeedsSelection)
	if err != nil {
		return Decision{}, err
	}
	var chosen *Candidate
	for i := range parent.Candidates {
		if parent.Candidates[i].Label == label {
			chosen = &parent.Candidates[i]
			break
		}
	}
	if chosen == nil {
		return Decision{}, ErrInvalidInput
	}

	status := StatusUserConfirmed
	if len(parent.Candidates) > 1 {
		status = StatusUserSelected
	}
	conf := chosen.Confidence
	return p.resolve(ctx, ident, parent, Decision{
		Status:     status,
		Value:      chosen.Value,
		Confidence: &conf,
		Candidates: []Candidate{*chosen},
	}, vatr.ActionUpdated, "")
}

// Reject settles a pending record without filling: the user declined
// every candidate.
func (p *Policy) Reject(ctx context.Context, ident identity.Context, decisionID, reason string) (Decision, error) {
	parent, err := p.pending(ctx, ident, decisionID, StatusNeedsSelection, StatusNeedsConfirmation)
	if err != nil {
		return Decision{}, err
	}
	return p.resolve(ctx, ident, parent, Decision{
		Status:         StatusUserRejected,
		OverrideReason: strings.TrimSpace(reason),
	}, vatr.ActionUpdated, "")
}

// Skip settles a pending record by leaving the field unfilled for now.
func (p *Policy) Skip(ctx context.Context, ident identity.Context, decisionID string) (Decision, error) {
	parent, err := p.pending(ctx, ident, decisionID, StatusNeedsSelection, StatusNeedsConfirmation)
	if err != nil {
		return Decision{}, err
	}
	return p.resolve(ctx, ident, parent, Decision{Status: StatusSkipped}, vatr.ActionUpdated, "")
}

// RequestSensitiveOverride starts the explicit two-step override of a
// sensitive_blocked field. The reason is mandatory up front; the actual
// value arrives only in the confirmation step.
func (p *Policy) RequestSensitiveOverride(ctx context.Context, ident identity.Context, decisionID, reason string) (Decision, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Decision{}, ErrInvalidInput
	}
	parent, err := p.pending(ctx, ident, decisionID, StatusSensitiveBlocked)
	if err != nil {
		return Decision{}, err
	}
	return p.resolve(ctx, ident, parent, Decision{
		Status:         StatusNeedsConfirmation,
		OverrideReason: reason,
	}, vatr.ActionUpdated, "")
}

// ConfirmSensitive completes a sensitive override: it settles the
// needs_confirmation record produced by RequestSensitiveOverride and is
// audited as a manual override carrying the requester's reason.
func (p *Policy) ConfirmSensitive(ctx context.Context, ident identity.Context, decisionID, value string) (Decision, error) {
	if strings.TrimSpace(value) == "" {
		return Decision{}, ErrInvalidInput
	}
	parent, err := p.pending(ctx, ident, decisionID, StatusNeedsConfirmation)
	if err != nil {
		return Decision{}, err
	}
	return p.resolve(ctx, ident, parent, Decision{
		Status:         StatusUserConfirmed,
		Value:          value,
		OverrideReason: parent.OverrideReason,
	}, vatr.ActionManualOverride, parent.OverrideReason)
}

// Get returns a stored decision. Foreign-org records deny generically,
// exactly like records that do not exist.
func (p *Policy) Get(ctx context.Context, ident identity.Context, id string) (Decision, error) {
	d, err := p.store.Get(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if !p.visible(ident, d) {
		return Decision{}, tenant.ErrDenied
	}
	return d, nil
}

// ListByAsset returns the asset's decisions visible to the caller.
func (p *Policy) ListByAsset(ctx context.Context, ident identity.Context, assetID string) ([]Decision, error) {
	all, err := p.store.ListByAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	out := make([]Decision, 0, len(all))
	for _, d := range all {
		if p.visible(ident, d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (p *Policy) visible(ident identity.Context, d Decision) bool {
	return ident.Superuser || (ident.HasOrg() && d.OrganizationID == ident.OrganizationID)
}

// pending loads a record for resolution: it must be visible to the
// caller, in one of the expected states, and not already resolved.
func (p *Policy) pending(ctx context.Context, ident identity.Context, id string, want ...Status) (Decision, error) {
	d, err := p.store.Get(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if !p.visible(ident, d) {
		return Decision{}, tenant.ErrDenied
	}
	ok := false
	for _, s := range want {
		if d.Status == s {
			ok = true
			break
		}
	}
	if !ok {
		return Decision{}, ErrNotPending
	}
	if _, err := p.store.ResolutionFor(ctx, d.ID); err == nil {
		return Decision{}, ErrNotPending
	} else if !errors.Is(err, ErrNotFound) {
		return Decision{}, err
	}
	return d, nil
}

// resolve inserts the immutable resolution record and audits it. The
// parent is never touched.
func (p *Policy) resolve(ctx context.Context, ident identity.Context, parent, d Decision, action vatr.Action, overrideReason string) (Decision, error) {
	d.ID = ids.New()
	d.AssetID = parent.AssetID
	d.OrganizationID = parent.OrganizationID
	d.FieldKey = parent.FieldKey
	d.Category = parent.Category
	d.ResolvesID = parent.ID
	d.RequestedBy = parent.RequestedBy
	d.ConfirmedBy = ident.UserID
	d.CreatedAt = p.now().UTC()
	out, err := p.store.Insert(ctx, d)
	if err != nil {
		return Decision{}, err
	}
	obs.CountAutofillDecision(string(d.Status))
	if err := p.record(ctx, ident, out, action, vatr.SourceManualEntry, action == vatr.ActionManualOverride, overrideReason); err != nil {
		return Decision{}, err
	}
	return out, nil
}

// finish stamps, persists, audits, and counts a proposal outcome.
func (p *Policy) finish(ctx context.Context, ident identity.Context, req MatchRequest, d Decision, candidates []Candidate) (Decision, error) {
	d.ID = ids.New()
	d.AssetID = req.AssetID
	d.OrganizationID = ident.OrganizationID
	d.FieldKey = req.FieldKey
	d.Category = req.Category
	d.RequestedBy = ident.UserID
	d.CreatedAt = p.now().UTC()
	d.Candidates = candidates
	for _, c := range candidates {
		d.Choices = append(d.Choices, Choice{Label: c.Label, Confidence: c.Confidence})
	}
	out, err := p.store.Insert(ctx, d)
	if err != nil {
		return Decision{}, err
	}
	obs.CountAutofillDecision(string(d.Status))

	if d.Status == StatusAutoFilled {
		if err := p.record(ctx, ident, out, vatr.ActionAIExtracted, vatr.SourceAIExtraction, false, ""); err != nil {
			return Decision{}, err
		}
	} else {
		if err := p.record(ctx, ident, out, vatr.ActionCreated, vatr.SourceSystem, false, ""); err != nil {
			return Decision{}, err
		}
	}
	return out, nil
}

func (p *Policy) record(ctx context.Context, ident identity.Context, d Decision, action vatr.Action, source vatr.SourceType, override bool, reason string) error {
	if p.audit == nil {
		return nil
	}
	sourceDoc := ""
	if len(d.Candidates) == 1 {
		sourceDoc = d.Candidates[0].SourceDocumentID
	}
	_, err := p.audit.Append(ctx, vatr.Entry{
		AssetID:   d.AssetID,
		OrgID:     d.OrganizationID,
		Action:    action,
		ActorID:   ident.UserID,
		ActorRole: ident.Role,
		Changes: map[string]any{
			"field":    d.FieldKey,
			"status":   string(d.Status),
			"decision": d.ID,
		},
		IsManualOverride: override,
		OverrideReason:   reason,
		SourceType:       source,
		Confidence:       d.Confidence,
		SourceDocumentID: sourceDoc,
		OccurredAt:       p.now().UTC(),
	})
	return err
}

// sanitize drops malformed candidates and orders the rest by confidence,
// highest first, so choice lists are stable.
func sanitize(in []Candidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.Label == "" || c.Confidence < 0 || c.Confidence > 1 {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
