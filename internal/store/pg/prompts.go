package pg

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"promptdesk.dev/internal/prompts"
)

const promptColumns = `id, user_id, name, description, template, category, output_format, is_favorite, is_admin_prompt, created_at, updated_at`

func scanPrompt(row rowScanner) (prompts.Prompt, error) {
	var (
		p    prompts.Prompt
		desc sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &desc, &p.Template, &p.Category,
		&p.OutputFormat, &p.IsFavorite, &p.IsAdminPrompt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return prompts.Prompt{}, err
	}
	p.Description = stringPtr(desc)
	return p, nil
}

func (s *Store) CreatePrompt(ctx context.Context, p prompts.Prompt) (prompts.Prompt, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into prompts (id, user_id, name, description, template, category, output_format, is_favorite, is_admin_prompt)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+promptColumns,
		p.ID, p.UserID, p.Name, nullIfEmpty(p.Description), p.Template, p.Category,
		p.OutputFormat, p.IsFavorite, p.IsAdminPrompt)
	created, err := scanPrompt(row)
	if err != nil {
		return prompts.Prompt{}, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) GetPrompt(ctx context.Context, id string) (prompts.Prompt, error) {
	p, err := scanPrompt(s.db.QueryRowContext(ctx, `select `+promptColumns+` from prompts where id = $1`, id))
	if err != nil {
		return prompts.Prompt{}, notFound(err)
	}
	return p, nil
}

func (s *Store) ListPrompts(ctx context.Context, f prompts.Filter) ([]prompts.Prompt, error) {
	query := `select ` + promptColumns + ` from prompts`
	var args []any
	switch {
	case f.SharedOnly:
		query += ` where is_admin_prompt`
	case f.OwnerID != "" && f.IncludeShared:
		query += ` where user_id = $1 or is_admin_prompt`
		args = append(args, f.OwnerID)
	case f.OwnerID != "":
		query += ` where user_id = $1`
		args = append(args, f.OwnerID)
	}
	query += ` order by created_at desc, id desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []prompts.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePrompt(ctx context.Context, id string, upd prompts.Update) (prompts.Prompt, error) {
	var set setClause
	if upd.Name != nil {
		set.add("name", *upd.Name)
	}
	if upd.Description != nil {
		set.add("description", nullIfEmpty(upd.Description))
	}
	if upd.Template != nil {
		set.add("template", *upd.Template)
	}
	if upd.Category != nil {
		set.add("category", *upd.Category)
	}
	if upd.OutputFormat != nil {
		set.add("output_format", *upd.OutputFormat)
	}
	if upd.IsFavorite != nil {
		set.add("is_favorite", *upd.IsFavorite)
	}
	if upd.IsAdminPrompt != nil {
		set.add("is_admin_prompt", *upd.IsAdminPrompt)
	}
	if set.empty() {
		return s.GetPrompt(ctx, id)
	}
	where := set.next(id)
	p, err := scanPrompt(s.db.QueryRowContext(ctx, `
		update prompts set `+set.String()+`, updated_at = now()
		where id = `+where+`
		returning `+promptColumns, set.args...))
	if err != nil {
		return prompts.Prompt{}, notFound(err)
	}
	return p, nil
}

// DeletePrompt leaves results in place; the schema nulls their prompt_id.
func (s *Store) DeletePrompt(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from prompts where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
