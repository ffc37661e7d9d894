package autofill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veridex.org/internal/identity"
	"veridex.org/internal/tenant"
	"veridex.org/internal/vatr"
)

type stubSource struct {
	candidates []Candidate
	err        error
	calls      int
}

func (s *stubSource) Match(ctx context.Context, req MatchRequest) ([]Candidate, error) {
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.candidates, s.err
}

var analyst = identity.Context{UserID: "u-1", OrganizationID: "org-a", Role: identity.RoleAnalyst}

func newPolicy(t *testing.T, source *stubSource) (*Policy, *vatr.InMemory) {
	t.Helper()
	trail := vatr.NewInMemory()
	audit, err := vatr.NewLedger(trail)
	require.NoError(t, err)
	p, err := NewPolicy(source, NewInMemory(), audit)
	require.NoError(t, err)
	return p, trail
}

func propose(t *testing.T, p *Policy, category string) Decision {
	t.Helper()
	d, err := p.Propose(context.Background(), analyst, MatchRequest{
		AssetID: "asset-1", FieldKey: "capacity", Category: category, Query: "installed capacity",
	})
	require.NoError(t, err)
	return d
}

func TestConfidenceLadder(t *testing.T) {
	cases := []struct {
		confidence float64
		want       Status
	}{
		{0.0, StatusNeedsSelection},
		{0.5, StatusNeedsSelection},
		{0.65, StatusNeedsSelection},
		{0.79, StatusNeedsSelection},
		{0.80, StatusAutoFilled},
		{0.85, StatusAutoFilled},
		{0.99, StatusAutoFilled},
		{1.0, StatusAutoFilled},
	}
	for _, tc := range cases {
		source := &stubSource{candidates: []Candidate{{Label: "12.5 MW", Value: "12.5", Confidence: tc.confidence}}}
		p, _ := newPolicy(t, source)
		d := propose(t, p, "technical")
		if d.Status != tc.want {
			t.Fatalf("confidence %.2f: got %s, want %s", tc.confidence, d.Status, tc.want)
		}
		if tc.want == StatusAutoFilled {
			assert.Equal(t, "12.5", d.Value)
			require.NotNil(t, d.Confidence)
			assert.Equal(t, tc.confidence, *d.Confidence)
		} else {
			assert.Empty(t, d.Value, "pending decision must not expose the value")
			require.Len(t, d.Choices, 1, "the user still gets the choice to confirm")
		}
	}
}

func TestMultipleCandidatesNeedSelection(t *testing.T) {
	source := &stubSource{candidates: []Candidate{
		{Label: "12.5 MW", Value: "12.5", Confidence: 0.95},
		{Label: "14 MW", Value: "14", Confidence: 0.91},
	}}
	p, _ := newPolicy(t, source)
	d := propose(t, p, "technical")
	assert.Equal(t, StatusNeedsSelection, d.Status)
	assert.Empty(t, d.Value)
	require.Len(t, d.Choices, 2)
	assert.Equal(t, "12.5 MW", d.Choices[0].Label, "choices ordered by confidence")
}

func TestNoCandidatesIsNoMatch(t *testing.T) {
	p, _ := newPolicy(t, &stubSource{})
	d := propose(t, p, "technical")
	assert.Equal(t, StatusNoMatch, d.Status)
}

func TestSourceFailureDegradesToNoMatch(t *testing.T) {
	p, _ := newPolicy(t, &stubSource{err: errors.New("upstream 503")})
	d := propose(t, p, "technical")
	assert.Equal(t, StatusNoMatch, d.Status)
}

func TestCanceledContextDegradesToNoMatch(t *testing.T) {
	p, _ := newPolicy(t, &stubSource{candidates: []Candidate{{Label: "x", Value: "x", Confidence: 1}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d, err := p.Propose(ctx, analyst, MatchRequest{AssetID: "asset-1", FieldKey: "capacity"})
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, d.Status)
}

func TestSensitiveCategoriesBlockBeforeMatching(t *testing.T) {
	for _, category := range []string{
		"bank_account", "personal_id", "personal_data", "financial_covenant",
		"legal_binding", "tax_id", "password", "ssn", "api_key", "secret", "credit_card",
	} {
		source := &stubSource{candidates: []Candidate{{Label: "x", Value: "x", Confidence: 1.0}}}
		p, _ := newPolicy(t, source)
		d := propose(t, p, category)
		if d.Status != StatusSensitiveBlocked {
			t.Fatalf("category %s: got %s", category, d.Status)
		}
		if source.calls != 0 {
			t.Fatalf("category %s: match source consulted for a blocked field", category)
		}
		assert.Empty(t, d.Value)
	}
}

func TestConfirmSingleCandidateIsUserConfirmed(t *testing.T) {
	source := &stubSource{candidates: []Candidate{
		{Label: "12.5 MW", Value: "12.5", Confidence: 0.7},
	}}
	p, trail := newPolicy(t, source)
	d := propose(t, p, "technical")
	require.Equal(t, StatusNeedsSelection, d.Status)

	got, err := p.Confirm(context.Background(), analyst, d.ID, "12.5 MW")
	require.NoError(t, err)
	assert.Equal(t, StatusUserConfirmed, got.Status)
	assert.Equal(t, "12.5", got.Value)
	assert.Equal(t, analyst.UserID, got.ConfirmedBy)
	assert.Equal(t, d.ID, got.ResolvesID)
	assert.NotEqual(t, d.ID, got.ID, "resolution is a new record")

	// The original record is untouched.
	orig, err := p.Get(context.Background(), analyst, d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsSelection, orig.Status)
	assert.Empty(t, orig.Value)

	entries, err := trail.Trail(context.Background(), "asset-1")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, vatr.SourceManualEntry, entries[0].SourceType)
}

func TestConfirmAmongSeveralIsUserSelected(t *testing.T) {
	source := &stubSource{candidates: []Candidate{
		{Label: "12.5 MW", Value: "12.5", Confidence: 0.95},
		{Label: "14 MW", Value: "14", Confidence: 0.91},
	}}
	p, _ := newPolicy(t, source)
	d := propose(t, p, "technical")

	got, err := p.Confirm(context.Background(), analyst, d.ID, "14 MW")
	require.NoError(t, err)
	assert.Equal(t, StatusUserSelected, got.Status)
	assert.Equal(t, "14", got.Value)
}

func TestConfirmRejectsUnknownLabelAndNonPending(t *testing.T) {
	source := &stubSource{candidates: []Candidate{{Label: "12.5 MW", Value: "12.5", Confidence: 0.95}}}
	p, _ := newPolicy(t, source)
	d := propose(t, p, "technical")
	require.Equal(t, StatusAutoFilled, d.Status)

	_, err := p.Confirm(context.Background(), analyst, d.ID, "12.5 MW")
	assert.ErrorIs(t, err, ErrNotPending)

	source2 := &stubSource{candidates: []Candidate{{Label: "a", Value: "1", Confidence: 0.6}}}
	p2, _ := newPolicy(t, source2)
	d2 := propose(t, p2, "technical")
	_, err = p2.Confirm(context.Background(), analyst, d2.ID, "nope")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPendingResolvesExactlyOnce(t *testing.T) {
	source := &stubSource{candidates: []Candidate{{Label: "a", Value: "1", Confidence: 0.6}}}
	p, _ := newPolicy(t, source)
	d := propose(t, p, "technical")

	_, err := p.Confirm(context.Background(), analyst, d.ID, "a")
	require.NoError(t, err)

	// Second resolution of any kind hits the same wall.
	_, err = p.Confirm(context.Background(), analyst, d.ID, "a")
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = p.Reject(context.Background(), analyst, d.ID, "changed my mind")
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = p.Skip(context.Background(), analyst, d.ID)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestRejectAndSkipProduceRecords(t *testing.T) {
	source := &stubSource{candidates: []Candidate{
		{Label: "a", Value: "1", Confidence: 0.9},
		{Label: "b", Value: "2", Confidence: 0.8},
	}}
	p, _ := newPolicy(t, source)
	d := propose(t, p, "technical")

	rejected, err := p.Reject(context.Background(), analyst, d.ID, "both wrong")
	require.NoError(t, err)
	assert.Equal(t, StatusUserRejected, rejected.Status)
	assert.Empty(t, rejected.Value)

	d2 := propose(t, p, "technical")
	skipped, err := p.Skip(context.Background(), analyst, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, skipped.Status)

	decisions, err := p.ListByAsset(context.Background(), analyst, "asset-1")
	require.NoError(t, err)
	assert.Len(t, decisions, 4, "two proposals and two resolutions, all kept")
}

func TestSensitiveOverrideIsTwoStepsAndAudited(t *testing.T) {
	p, trail := newPolicy(t, &stubSource{})
	d := propose(t, p, "bank_account")

	// The value cannot be pushed in before the override is requested.
	_, err := p.ConfirmSensitive(context.Background(), analyst, d.ID, "DE89 3704")
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = p.RequestSensitiveOverride(context.Background(), analyst, d.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput, "reason is mandatory")

	pending, err := p.RequestSensitiveOverride(context.Background(), analyst, d.ID, "verified against bank letter")
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsConfirmation, pending.Status)
	assert.Empty(t, pending.Value)

	got, err := p.ConfirmSensitive(context.Background(), analyst, pending.ID, "DE89 3704")
	require.NoError(t, err)
	assert.Equal(t, StatusUserConfirmed, got.Status)
	assert.Equal(t, "DE89 3704", got.Value)
	assert.Equal(t, "verified against bank letter", got.OverrideReason)

	entries, err := trail.Trail(context.Background(), "asset-1")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, vatr.ActionManualOverride, entries[0].Action)
	assert.True(t, entries[0].IsManualOverride)
	assert.Equal(t, "verified against bank letter", entries[0].OverrideReason)
}

func TestForeignOrgDecisionsAreInvisible(t *testing.T) {
	source := &stubSource{candidates: []Candidate{{Label: "12.5 MW", Value: "12.5", Confidence: 0.95}}}
	p, _ := newPolicy(t, source)
	d := propose(t, p, "technical")
	require.Equal(t, StatusAutoFilled, d.Status)

	outsider := identity.Context{UserID: "u-9", OrganizationID: "org-b", Role: identity.RoleAnalyst}

	_, err := p.Get(context.Background(), outsider, d.ID)
	assert.ErrorIs(t, err, tenant.ErrDenied, "foreign decisions read as not found")

	_, err = p.Confirm(context.Background(), outsider, d.ID, "12.5 MW")
	assert.ErrorIs(t, err, tenant.ErrDenied)

	decisions, err := p.ListByAsset(context.Background(), outsider, "asset-1")
	require.NoError(t, err)
	assert.Empty(t, decisions, "foreign assets list as empty")
}

func TestThresholdFloorIsClamped(t *testing.T) {
	source := &stubSource{candidates: []Candidate{{Label: "x", Value: "x", Confidence: 0.55}}}
	p, _ := newPolicy(t, source)
	p.WithThreshold(0.1) // below the floor, clamps to 0.50
	d := propose(t, p, "technical")
	assert.Equal(t, StatusAutoFilled, d.Status)

	source2 := &stubSource{candidates: []Candidate{{Label: "x", Value: "x", Confidence: 0.45}}}
	p2, _ := newPolicy(t, source2)
	p2.WithThreshold(0.1)
	d2 := propose(t, p2, "technical")
	assert.Equal(t, StatusNeedsSelection, d2.Status)
}

func TestEveryProposalIsRecorded(t *testing.T) {
	source := &stubSource{candidates: []Candidate{{Label: "x", Value: "x", Confidence: 0.9}}}
	p, _ := newPolicy(t, source)
	propose(t, p, "technical")
	propose(t, p, "bank_account")

	decisions, err := p.ListByAsset(context.Background(), analyst, "asset-1")
	require.NoError(t, err)
	assert.Len(t, decisions, 2)
}
