package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"veridex.org/internal/autofill"
)

var _ autofill.DecisionStore = (*AutofillStore)(nil)

const decisionColumns = `id, asset_id, organization_id, field_key, category, status, value, candidates, confidence, resolves_id, override_reason, requested_by, confirmed_by, created_at`

// storedCandidate is the database shape of a candidate. The JSON contract
// of autofill.Candidate hides the value from clients; the database keeps
// it so a later confirmation can apply it.
type storedCandidate struct {
	Label            string  `json:"label"`
	Value            string  `json:"value"`
	Confidence       float64 `json:"confidence"`
	SourceDocumentID string  `json:"source_document_id,omitempty"`
}

// Insert is the only write: decision records are immutable, and the
// partial unique index on resolves_id makes a second resolution of the
// same record fail here rather than silently win a race.
func (s *AutofillStore) Insert(ctx context.Context, d autofill.Decision) (autofill.Decision, error) {
	candidatesJSON, err := encodeCandidates(d.Candidates)
	if err != nil {
		return autofill.Decision{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into autofill_decisions (id, asset_id, organization_id, field_key, category, status, value, candidates, confidence, resolves_id, override_reason, requested_by, confirmed_by, created_at)
		values ($1, $2, $3, $4, nullif($5,''), $6, nullif($7,''), $8, $9, nullif($10,''), nullif($11,''), $12, nullif($13,''), $14)
	`, d.ID, d.AssetID, d.OrganizationID, d.FieldKey, d.Category, string(d.Status), d.Value,
		candidatesJSON, d.Confidence, d.ResolvesID, d.OverrideReason, d.RequestedBy,
		d.ConfirmedBy, d.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return autofill.Decision{}, autofill.ErrNotPending
		}
		return autofill.Decision{}, err
	}
	return d, nil
}

func (s *AutofillStore) Get(ctx context.Context, id string) (autofill.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+decisionColumns+` from autofill_decisions where id = $1
	`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return autofill.Decision{}, autofill.ErrNotFound
	}
	if err != nil {
		return autofill.Decision{}, err
	}
	return d, nil
}

func (s *AutofillStore) ResolutionFor(ctx context.Context, decisionID string) (autofill.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+decisionColumns+` from autofill_decisions where resolves_id = $1
	`, decisionID)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return autofill.Decision{}, autofill.ErrNotFound
	}
	if err != nil {
		return autofill.Decision{}, err
	}
	return d, nil
}

func (s *AutofillStore) ListByAsset(ctx context.Context, assetID string) ([]autofill.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+decisionColumns+` from autofill_decisions
		where asset_id = $1
		order by created_at, id
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []autofill.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanDecision(row rowScanner) (autofill.Decision, error) {
	var (
		d             autofill.Decision
		category      sql.NullString
		status        string
		value         sql.NullString
		rawCandidates []byte
		confidence    sql.NullFloat64
		resolvesID    sql.NullString
		reason        sql.NullString
		confirmedBy   sql.NullString
	)
	err := row.Scan(&d.ID, &d.AssetID, &d.OrganizationID, &d.FieldKey, &category, &status, &value,
		&rawCandidates, &confidence, &resolvesID, &reason, &d.RequestedBy, &confirmedBy, &d.CreatedAt)
	if err != nil {
		return autofill.Decision{}, err
	}
	d.Category = category.String
	d.Status = autofill.Status(status)
	d.Value = value.String
	d.ResolvesID = resolvesID.String
	d.OverrideReason = reason.String
	d.ConfirmedBy = confirmedBy.String
	if confidence.Valid {
		c := confidence.Float64
		d.Confidence = &c
	}
	if len(rawCandidates) > 0 {
		var stored []storedCandidate
		if err := json.Unmarshal(rawCandidates, &stored); err != nil {
			return autofill.Decision{}, fmt.Errorf("decode candidates: %w", err)
		}
		for _, c := range stored {
			d.Candidates = append(d.Candidates, autofill.Candidate{
				Label:            c.Label,
				Value:            c.Value,
				Confidence:       c.Confidence,
				SourceDocumentID: c.SourceDocumentID,
			})
			d.Choices = append(d.Choices, autofill.Choice{Label: c.Label, Confidence: c.Confidence})
		}
	}
	return d, nil
}

func encodeCandidates(candidates []autofill.Candidate) ([]byte, error) {
	stored := make([]storedCandidate, 0, len(candidates))
	for _, c := range candidates {
		stored = append(stored, storedCandidate{
			Label:            c.Label,
			Value:            c.Value,
			Confidence:       c.Confidence,
			SourceDocumentID: c.SourceDocumentID,
		})
	}
	bytes, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal candidates: %w", err)
	}
	return bytes, nil
}
