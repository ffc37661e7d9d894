package pg

import (
	"context"
	"database/sql"
	"errors"

	"veridex.org/internal/resolve"
	"veridex.org/internal/view"
)

var _ resolve.PreferenceStore = (*PreferenceStore)(nil)

func (s *PreferenceStore) Get(ctx context.Context, userID string, key view.ResourceKey) (*resolve.Preference, error) {
	var (
		p      resolve.Preference
		rawKey string
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, resource_key, view_id, updated_at
		from view_preferences
		where user_id = $1 and resource_key = $2
	`, userID, key.String()).Scan(&p.UserID, &rawKey, &p.ViewID, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if parsed, ok := view.ParseResourceKey(rawKey); ok {
		p.ResourceKey = parsed
	}
	return &p, nil
}

func (s *PreferenceStore) Set(ctx context.Context, p resolve.Preference) error {
	_, err := s.db.ExecContext(ctx, `
		insert into view_preferences (user_id, resource_key, view_id, updated_at)
		values ($1, $2, $3, $4)
		on conflict (user_id, resource_key) do update
		set view_id = excluded.view_id, updated_at = excluded.updated_at
	`, p.UserID, p.ResourceKey.String(), p.ViewID, p.UpdatedAt)
	return err
}

func (s *PreferenceStore) Clear(ctx context.Context, userID string, key view.ResourceKey) error {
	_, err := s.db.ExecContext(ctx, `
		delete from view_preferences
		where user_id = $1 and resource_key = $2
	`, userID, key.String())
	return err
}
