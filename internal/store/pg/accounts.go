package pg

import (
	"context"
	"database/sql"
	"strings"

	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/ids"
)

const accountColumns = `id, email, name, role, password_hash, created_at, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches s literally anywhere in the column.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, extra ...any) (auth.Account, error) {
	var (
		acc  auth.Account
		name sql.NullString
		role string
	)
	dest := append([]any{&acc.ID, &acc.Email, &name, &role, &acc.PasswordHash, &acc.CreatedAt, &acc.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return auth.Account{}, err
	}
	acc.Name = stringPtr(name)
	acc.Role = auth.Role(role)
	return acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc auth.Account) (auth.Account, error) {
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into accounts (id, email, name, role, password_hash)
		values ($1, $2, $3, $4, $5)
		returning `+accountColumns,
		acc.ID, acc.Email, nullIfEmpty(acc.Name), string(acc.Role), acc.PasswordHash)
	created, err := scanAccount(row)
	if err != nil {
		return auth.Account{}, mapWriteError(err)
	}
	return created, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (auth.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id = $1`, id)
	acc, err := scanAccount(row)
	if err != nil {
		return auth.Account{}, notFound(err)
	}
	return acc, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where email = $1`, email)
	acc, err := scanAccount(row)
	if err != nil {
		return auth.Account{}, notFound(err)
	}
	return acc, nil
}

func (s *Store) ListAccounts(ctx context.Context, f auth.AccountFilter) ([]auth.AccountSummary, int, error) {
	pattern := containsPattern(f.Search)

	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from accounts
		where $1 = '' or email ilike $2 escape '\' or name ilike $2 escape '\'
	`, f.Search, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	var limit sql.NullInt64
	if f.Limit > 0 {
		limit = sql.NullInt64{Int64: int64(f.Limit), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		select a.id, a.email, a.name, a.role, a.password_hash, a.created_at, a.updated_at,
			(select count(*) from prompts p where p.user_id = a.id),
			(select count(*) from results r where r.user_id = a.id)
		from accounts a
		where $1 = '' or a.email ilike $2 escape '\' or a.name ilike $2 escape '\'
		order by a.created_at desc, a.id desc
		limit $3 offset $4
	`, f.Search, pattern, limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []auth.AccountSummary
	for rows.Next() {
		var sum auth.AccountSummary
		acc, err := scanAccount(rows, &sum.PromptCount, &sum.ResultCount)
		if err != nil {
			return nil, 0, err
		}
		sum.Account = acc
		out = append(out, sum)
	}
	return out, total, rows.Err()
}

func (s *Store) ListAccountsByRole(ctx context.Context, role auth.Role) ([]auth.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+accountColumns+` from accounts
		where role = $1
		order by created_at asc
	`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, id string, upd auth.AccountUpdate) (auth.Account, error) {
	var set setClause
	if upd.Name != nil {
		set.add("name", nullIfEmpty(upd.Name))
	}
	if upd.Role != nil {
		set.add("role", string(*upd.Role))
	}
	if upd.PasswordHash != nil {
		set.add("password_hash", *upd.PasswordHash)
	}
	if set.empty() {
		return s.GetAccount(ctx, id)
	}
	where := set.next(id)
	row := s.db.QueryRowContext(ctx, `
		update accounts set `+set.String()+`, updated_at = now()
		where id = `+where+`
		returning `+accountColumns, set.args...)
	acc, err := scanAccount(row)
	if err != nil {
		return auth.Account{}, notFound(err)
	}
	return acc, nil
}

// DeleteAccount relies on the schema's cascades for sessions, prompts,
// results and api configs.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) CreateSession(ctx context.Context, sess auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, account_id, created_at, expires_at)
		values ($1, $2, $3, $4)
	`, sess.ID, sess.AccountID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (auth.Session, error) {
	var sess auth.Session
	err := s.db.QueryRowContext(ctx, `
		select id, account_id, created_at, expires_at from sessions where id = $1
	`, id).Scan(&sess.ID, &sess.AccountID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return auth.Session{}, notFound(err)
	}
	return sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from sessions where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteExpiredSessions purges sessions past their expiry and reports how
// many were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from sessions where expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
