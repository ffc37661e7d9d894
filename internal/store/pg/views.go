package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"veridex.org/internal/view"
)

var _ view.Store = (*ViewStore)(nil)

const viewColumns = `id, organization_id, name, type, scope, config, status, is_public, can_share, created_by, created_at, updated_at, published_at`

func (s *ViewStore) Insert(ctx context.Context, v view.View) (view.View, error) {
	scopeJSON, configJSON, err := encodeViewJSON(v)
	if err != nil {
		return view.View{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into views (id, organization_id, name, type, scope, config, status, is_public, can_share, created_by, created_at, updated_at, published_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		returning `+viewColumns+`
	`, v.ID, v.OrganizationID, v.Name, string(v.Type), scopeJSON, configJSON, string(v.Status),
		v.IsPublic, v.CanShare, v.CreatedBy, v.CreatedAt, v.UpdatedAt, v.PublishedAt)
	out, err := scanView(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return view.View{}, view.ErrConflict
		}
		return view.View{}, err
	}
	return out, nil
}

func (s *ViewStore) Get(ctx context.Context, id string) (view.View, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+viewColumns+` from views where id = $1
	`, id)
	out, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return view.View{}, view.ErrNotFound
	}
	if err != nil {
		return view.View{}, err
	}
	return out, nil
}

func (s *ViewStore) Update(ctx context.Context, v view.View) (view.View, error) {
	scopeJSON, configJSON, err := encodeViewJSON(v)
	if err != nil {
		return view.View{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		update views
		set name = $2, type = $3, scope = $4, config = $5, status = $6,
		    is_public = $7, can_share = $8, updated_at = $9, published_at = $10
		where id = $1
		returning `+viewColumns+`
	`, v.ID, v.Name, string(v.Type), scopeJSON, configJSON, string(v.Status),
		v.IsPublic, v.CanShare, v.UpdatedAt, v.PublishedAt)
	out, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return view.View{}, view.ErrNotFound
	}
	if err != nil {
		return view.View{}, err
	}
	return out, nil
}

func (s *ViewStore) ListByOrg(ctx context.Context, orgID string) ([]view.View, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+viewColumns+` from views
		where organization_id = $1
		order by created_at, id
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []view.View
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanView(row rowScanner) (view.View, error) {
	var (
		v          view.View
		vType      string
		status     string
		rawScope   []byte
		rawConfig  []byte
		published  sql.NullTime
	)
	err := row.Scan(&v.ID, &v.OrganizationID, &v.Name, &vType, &rawScope, &rawConfig,
		&status, &v.IsPublic, &v.CanShare, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt, &published)
	if err != nil {
		return view.View{}, err
	}
	v.Type = view.Type(vType)
	v.Status = view.Status(status)
	if len(rawScope) > 0 {
		if err := json.Unmarshal(rawScope, &v.Scope); err != nil {
			return view.View{}, fmt.Errorf("decode scope: %w", err)
		}
	}
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &v.Config); err != nil {
			return view.View{}, fmt.Errorf("decode config: %w", err)
		}
	}
	if published.Valid {
		t := published.Time
		v.PublishedAt = &t
	}
	return v, nil
}

func encodeViewJSON(v view.View) ([]byte, []byte, error) {
	scopeJSON, err := json.Marshal(v.Scope)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal scope: %w", err)
	}
	configJSON := []byte("{}")
	if len(v.Config) > 0 {
		configJSON, err = json.Marshal(v.Config)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal config: %w", err)
		}
	}
	return scopeJSON, configJSON, nil
}
