package vatr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"veridex.org/internal/identity"
	"veridex.org/internal/obs"
)

// Store persists audit entries. The interface is deliberately append-only:
// there is no update or delete. Appends for one asset must serialize
// through the store's native ordering (single-row sequential insert).
type Store interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Trail(ctx context.Context, assetID string) ([]Entry, error)
}

// Recorder is the narrow append-side interface other components hold.
type Recorder interface {
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Ledger validates and appends audit entries and verifies chain integrity.
type Ledger struct {
	store Store
	now   func() time.Time
}

var _ Recorder = (*Ledger)(nil)

// NewLedger constructs a Ledger.
func NewLedger(store Store) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("vatr: store is required")
	}
	return &Ledger{store: store, now: time.Now}, nil
}

// WithClock overrides the time source (tests).
func (l *Ledger) WithClock(fn func() time.Time) *Ledger {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Append validates and persists one entry. Callers invoke it strictly
// after their primary state change succeeds; a failed primary change must
// suppress the append.
func (l *Ledger) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := validate(e); err != nil {
		return Entry{}, err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now().UTC()
	}
	return l.store.Append(ctx, e)
}

func validate(e Entry) error {
	if strings.TrimSpace(e.AssetID) == "" {
		return fmt.Errorf("%w: asset id is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.OrgID) == "" {
		return fmt.Errorf("%w: owning org id is required", ErrInvalidEntry)
	}
	if _, ok := knownActions[e.Action]; !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, e.Action)
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return fmt.Errorf("%w: actor id is required", ErrInvalidEntry)
	}
	if _, ok := knownSources[e.SourceType]; !ok {
		return fmt.Errorf("%w: unknown source type %q", ErrInvalidEntry, e.SourceType)
	}
	if e.Action == ActionManualOverride {
		if strings.TrimSpace(e.OverrideReason) == "" {
			return fmt.Errorf("%w: manual_override requires an override reason", ErrInvalidEntry)
		}
		if !e.IsManualOverride {
			return fmt.Errorf("%w: manual_override entry must set is_manual_override", ErrInvalidEntry)
		}
	}
	switch e.Action {
	case ActionAIExtracted:
		if e.SourceType != SourceAIExtraction {
			return fmt.Errorf("%w: ai_extracted entry must carry source_type ai_extraction", ErrInvalidEntry)
		}
	case ActionBulkImport:
		if e.SourceType != SourceBulkImport {
			return fmt.Errorf("%w: bulk_import entry must carry source_type bulk_import", ErrInvalidEntry)
		}
	}
	if e.Confidence != nil && (*e.Confidence < 0 || *e.Confidence > 1) {
		return fmt.Errorf("%w: confidence must be within [0,1]", ErrInvalidEntry)
	}
	return nil
}

// Trail returns the asset's entries visible to the caller, most recent
// first. Entries of a foreign organization are filtered out rather than
// erroring, so a foreign asset is indistinguishable from one that has no
// history at all.
func (l *Ledger) Trail(ctx context.Context, ident identity.Context, assetID string) ([]Entry, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, fmt.Errorf("%w: asset id is required", ErrInvalidEntry)
	}
	entries, err := l.store.Trail(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if ident.Superuser {
		return entries, nil
	}
	visible := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if ident.HasOrg() && e.OrgID == ident.OrganizationID {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// VerifyIntegrity hashes the current live state and compares it against
// the most recent visible entry's after-hash. A mismatch signals an
// out-of-band mutation; it is reported via ErrIntegrityMismatch alongside
// the full detail, never silently corrected.
func (l *Ledger) VerifyIntegrity(ctx context.Context, ident identity.Context, assetID string, current any) (Verification, error) {
	trail, err := l.Trail(ctx, ident, assetID)
	if err != nil {
		return Verification{}, err
	}
	currentHash, err := Hash(current)
	if err != nil {
		return Verification{}, err
	}
	v := Verification{AssetID: assetID, CurrentHash: currentHash}
	if len(trail) == 0 {
		// No chain to verify against. Treated as invalid: an asset with
		// live data but no audit trail bypassed this core.
		v.IsValid = false
	} else {
		v.LastHash = trail[0].AfterHash
		v.IsValid = v.LastHash == currentHash
	}
	if !v.IsValid {
		obs.CountIntegrityFailure()
		_ = obs.Event(ctx, "vatr.integrity_mismatch", map[string]any{
			"asset_id":     assetID,
			"last_hash":    v.LastHash,
			"current_hash": v.CurrentHash,
		})
		return v, fmt.Errorf("asset %s: %w", assetID, ErrIntegrityMismatch)
	}
	return v, nil
}
