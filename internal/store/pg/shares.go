package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"veridex.org/internal/share"
)

var _ share.Store = (*ShareStore)(nil)

const shareColumns = `id, view_id, source_org_id, shared_by, target_org_id, target_user_id, permission_level, restrictions, expires_at, status, revoked_at, revoked_by, revoke_reason, access_count, max_accesses, created_at`

func (s *ShareStore) Insert(ctx context.Context, sh share.Share) (share.Share, error) {
	restrictionsJSON, err := json.Marshal(sh.Restrictions)
	if err != nil {
		return share.Share{}, fmt.Errorf("marshal restrictions: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		insert into shares (id, view_id, source_org_id, shared_by, target_org_id, target_user_id, permission_level, restrictions, expires_at, status, access_count, max_accesses, created_at)
		values ($1, $2, $3, $4, nullif($5,''), nullif($6,''), $7, $8, $9, $10, $11, $12, $13)
		returning `+shareColumns+`
	`, sh.ID, sh.ViewID, sh.SourceOrgID, sh.SharedBy, sh.TargetOrgID, sh.TargetUserID,
		string(sh.Permission), restrictionsJSON, sh.ExpiresAt, string(sh.Status),
		sh.AccessCount, sh.MaxAccesses, sh.CreatedAt)
	out, err := scanShare(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return share.Share{}, share.ErrNotFound
		}
		return share.Share{}, err
	}
	return out, nil
}

func (s *ShareStore) Get(ctx context.Context, id string) (share.Share, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+shareColumns+` from shares where id = $1
	`, id)
	out, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return share.Share{}, share.ErrNotFound
	}
	if err != nil {
		return share.Share{}, err
	}
	return out, nil
}

// Revoke is a conditional update: only an active share transitions. The
// status predicate makes the terminal transition race-free even when two
// admins revoke concurrently.
func (s *ShareStore) Revoke(ctx context.Context, id, revokedBy, reason string, at time.Time) (share.Share, error) {
	row := s.db.QueryRowContext(ctx, `
		update shares
		set status = 'revoked', revoked_at = $2, revoked_by = $3, revoke_reason = nullif($4,'')
		where id = $1 and status = 'active'
		returning `+shareColumns+`
	`, id, at, revokedBy, reason)
	out, err := scanShare(row)
	if errors.Is(err, sql.ErrNoRows) {
		return share.Share{}, share.ErrNotFound
	}
	if err != nil {
		return share.Share{}, err
	}
	return out, nil
}

func (s *ShareStore) MarkExpired(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update shares
		set status = 'expired', revoked_at = $2
		where id = $1 and status = 'active'
	`, id, at)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return share.ErrNotFound
	}
	return nil
}

// IncrementAccess bumps the counter only while the share is active and
// under its cap, in one statement, so concurrent accesses can never
// exceed max_accesses.
func (s *ShareStore) IncrementAccess(ctx context.Context, id string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		update shares
		set access_count = access_count + 1
		where id = $1 and status = 'active'
		  and (max_accesses = 0 or access_count < max_accesses)
		returning access_count
	`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing share from an exhausted one.
		var exists bool
		if probeErr := s.db.QueryRowContext(ctx, `select true from shares where id = $1`, id).Scan(&exists); probeErr == nil {
			return 0, share.ErrCapReached
		}
		return 0, share.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *ShareStore) ListByView(ctx context.Context, viewID string) ([]share.Share, error) {
	return s.list(ctx, `select `+shareColumns+` from shares where view_id = $1 order by created_at, id`, viewID)
}

func (s *ShareStore) ListBySourceOrg(ctx context.Context, orgID string) ([]share.Share, error) {
	return s.list(ctx, `select `+shareColumns+` from shares where source_org_id = $1 order by created_at, id`, orgID)
}

func (s *ShareStore) ListForTarget(ctx context.Context, orgID, userID string) ([]share.Share, error) {
	return s.list(ctx, `
		select `+shareColumns+` from shares
		where target_org_id = $1 or target_user_id = $2
		order by created_at, id
	`, orgID, userID)
}

func (s *ShareStore) list(ctx context.Context, query string, args ...any) ([]share.Share, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []share.Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanShare(row rowScanner) (share.Share, error) {
	var (
		sh              share.Share
		targetOrg       sql.NullString
		targetUser      sql.NullString
		permission      string
		rawRestrictions []byte
		expiresAt       sql.NullTime
		status          string
		revokedAt       sql.NullTime
		revokedBy       sql.NullString
		revokeReason    sql.NullString
	)
	err := row.Scan(&sh.ID, &sh.ViewID, &sh.SourceOrgID, &sh.SharedBy, &targetOrg, &targetUser,
		&permission, &rawRestrictions, &expiresAt, &status, &revokedAt, &revokedBy, &revokeReason,
		&sh.AccessCount, &sh.MaxAccesses, &sh.CreatedAt)
	if err != nil {
		return share.Share{}, err
	}
	sh.TargetOrgID = targetOrg.String
	sh.TargetUserID = targetUser.String
	sh.Permission = share.PermissionLevel(permission)
	sh.Status = share.Status(status)
	sh.RevokedBy = revokedBy.String
	sh.RevokeReason = revokeReason.String
	if len(rawRestrictions) > 0 {
		if err := json.Unmarshal(rawRestrictions, &sh.Restrictions); err != nil {
			return share.Share{}, fmt.Errorf("decode restrictions: %w", err)
		}
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		sh.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sh.RevokedAt = &t
	}
	return sh, nil
}
