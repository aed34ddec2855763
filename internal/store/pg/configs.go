package pg

import (
	"context"

	"promptdesk.dev/internal/apiconfig"
)

func (s *Store) GetConfig(ctx context.Context, userID string) (apiconfig.Config, error) {
	var cfg apiconfig.Config
	err := s.db.QueryRowContext(ctx, `
		select user_id, api_key, model, max_tokens, created_at, updated_at
		from api_configs where user_id = $1
	`, userID).Scan(&cfg.UserID, &cfg.APIKey, &cfg.Model, &cfg.MaxTokens, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return apiconfig.Config{}, notFound(err)
	}
	return cfg, nil
}

// UpsertConfig keeps one row per account; created_at survives updates.
func (s *Store) UpsertConfig(ctx context.Context, cfg apiconfig.Config) (apiconfig.Config, error) {
	var out apiconfig.Config
	err := s.db.QueryRowContext(ctx, `
		insert into api_configs (user_id, api_key, model, max_tokens)
		values ($1, $2, $3, $4)
		on conflict (user_id) do update
		set api_key = excluded.api_key,
			model = excluded.model,
			max_tokens = excluded.max_tokens,
			updated_at = now()
		returning user_id, api_key, model, max_tokens, created_at, updated_at
	`, cfg.UserID, cfg.APIKey, cfg.Model, cfg.MaxTokens).
		Scan(&out.UserID, &out.APIKey, &out.Model, &out.MaxTokens, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return apiconfig.Config{}, mapWriteError(err)
	}
	return out, nil
}
