package pg

import (
	"context"
	"database/sql"

	"promptdesk.dev/internal/history"
	"promptdesk.dev/internal/ids"
)

// resultSelect joins the prompt and owner so reads can decorate results.
const resultSelect = `
	select r.id, r.user_id, r.prompt_id, r.input, r.output, r.format, r.created_at,
		p.name, p.category, p.output_format,
		a.email, a.name
	from results r
	left join prompts p on p.id = r.prompt_id
	left join accounts a on a.id = r.user_id`

func scanResult(row rowScanner) (history.Result, error) {
	var (
		r                         history.Result
		promptID                  sql.NullString
		pName, pCategory, pFormat sql.NullString
		ownerEmail, ownerName     sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &promptID, &r.Input, &r.Output, &r.Format, &r.CreatedAt,
		&pName, &pCategory, &pFormat, &ownerEmail, &ownerName); err != nil {
		return history.Result{}, err
	}
	r.PromptID = stringPtr(promptID)
	if pName.Valid {
		r.Prompt = &history.PromptRef{Name: pName.String, Category: pCategory.String, OutputFormat: pFormat.String}
	}
	if ownerEmail.Valid {
		r.User = &history.UserRef{ID: r.UserID, Email: ownerEmail.String, Name: stringPtr(ownerName)}
	}
	return r, nil
}

func (s *Store) CreateResult(ctx context.Context, r history.Result) (history.Result, error) {
	if r.ID == "" {
		r.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into results (id, user_id, prompt_id, input, output, format)
		values ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.UserID, nullIfEmpty(r.PromptID), r.Input, r.Output, r.Format)
	if err != nil {
		return history.Result{}, mapWriteError(err)
	}
	return s.GetResult(ctx, r.ID)
}

func (s *Store) GetResult(ctx context.Context, id string) (history.Result, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, resultSelect+` where r.id = $1`, id))
	if err != nil {
		return history.Result{}, notFound(err)
	}
	return r, nil
}

func (s *Store) ListResults(ctx context.Context, f history.Filter) ([]history.Result, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from results where $1 = '' or user_id = $1
	`, f.UserID).Scan(&total); err != nil {
		return nil, 0, err
	}

	var limit sql.NullInt64
	if f.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(f.Limit), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, resultSelect+`
		where $1 = '' or r.user_id = $1
		order by r.created_at desc, r.id desc
		limit $2 offset $3
	`, f.UserID, limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []history.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *Store) DeleteResult(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from results where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
