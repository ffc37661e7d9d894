package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"veridex.org/internal/ids"
	"veridex.org/internal/vatr"
)

var _ vatr.Store = (*TrailStore)(nil)

const trailColumns = `id, asset_id, org_id, seq, action, actor_id, actor_role, before_hash, after_hash, changes, is_manual_override, override_reason, source_type, confidence, source_document_id, occurred_at`

// Append inserts one entry with the next per-asset sequence number. The
// subselect and the (asset_id, seq) unique constraint together serialize
// appends per asset; there is no update or delete path for this table.
func (s *TrailStore) Append(ctx context.Context, e vatr.Entry) (vatr.Entry, error) {
	changesJSON := []byte("{}")
	if len(e.Changes) > 0 {
		bytes, err := json.Marshal(e.Changes)
		if err != nil {
			return vatr.Entry{}, fmt.Errorf("marshal changes: %w", err)
		}
		changesJSON = bytes
	}
	e.ID = ids.New()
	err := s.db.QueryRowContext(ctx, `
		insert into vatr_entries (id, asset_id, org_id, seq, action, actor_id, actor_role, before_hash, after_hash, changes, is_manual_override, override_reason, source_type, confidence, source_document_id, occurred_at)
		values ($1, $2, $3,
			(select coalesce(max(seq), 0) + 1 from vatr_entries where asset_id = $2),
			$4, $5, nullif($6,''), nullif($7,''), nullif($8,''), $9, $10, nullif($11,''), $12, $13, nullif($14,''), $15)
		returning seq
	`, e.ID, e.AssetID, e.OrgID, string(e.Action), e.ActorID, e.ActorRole, e.BeforeHash, e.AfterHash,
		changesJSON, e.IsManualOverride, e.OverrideReason, string(e.SourceType),
		e.Confidence, e.SourceDocumentID, e.OccurredAt).Scan(&e.Seq)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			// Concurrent append for the same asset; the caller retries.
			return vatr.Entry{}, fmt.Errorf("vatr append conflict for asset %s: %w", e.AssetID, err)
		}
		return vatr.Entry{}, err
	}
	return e, nil
}

func (s *TrailStore) Trail(ctx context.Context, assetID string) ([]vatr.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+trailColumns+` from vatr_entries
		where asset_id = $1
		order by seq desc
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []vatr.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanEntry(row rowScanner) (vatr.Entry, error) {
	var (
		e          vatr.Entry
		action     string
		actorRole  sql.NullString
		beforeHash sql.NullString
		afterHash  sql.NullString
		rawChanges []byte
		reason     sql.NullString
		sourceType string
		confidence sql.NullFloat64
		sourceDoc  sql.NullString
	)
	err := row.Scan(&e.ID, &e.AssetID, &e.OrgID, &e.Seq, &action, &e.ActorID, &actorRole, &beforeHash,
		&afterHash, &rawChanges, &e.IsManualOverride, &reason, &sourceType, &confidence,
		&sourceDoc, &e.OccurredAt)
	if err != nil {
		return vatr.Entry{}, err
	}
	e.Action = vatr.Action(action)
	e.ActorRole = actorRole.String
	e.BeforeHash = beforeHash.String
	e.AfterHash = afterHash.String
	e.OverrideReason = reason.String
	e.SourceType = vatr.SourceType(sourceType)
	e.SourceDocumentID = sourceDoc.String
	if confidence.Valid {
		c := confidence.Float64
		e.Confidence = &c
	}
	if len(rawChanges) > 0 {
		if err := json.Unmarshal(rawChanges, &e.Changes); err != nil {
			return vatr.Entry{}, fmt.Errorf("decode changes: %w", err)
		}
	}
	return e, nil
}
