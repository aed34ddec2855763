// Package memory is an in-process implementation of every store interface.
// It backs tests and local runs without DATABASE_URL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"promptdesk.dev/internal/apiconfig"
	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/history"
	"promptdesk.dev/internal/ids"
	"promptdesk.dev/internal/prompts"
)

var (
	_ auth.AccountStore = (*Store)(nil)
	_ auth.SessionStore = (*Store)(nil)
	_ prompts.Store     = (*Store)(nil)
	_ history.Store     = (*Store)(nil)
	_ apiconfig.Store   = (*Store)(nil)
)

// Store keeps everything in maps guarded by one RWMutex.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]auth.Account
	byEmail  map[string]string
	sessions map[string]auth.Session
	prompts  map[string]prompts.Prompt
	results  map[string]history.Result
	configs  map[string]apiconfig.Config
	now      func() time.Time
}

func New() *Store {
	return &Store{
		accounts: make(map[string]auth.Account),
		byEmail:  make(map[string]string),
		sessions: make(map[string]auth.Session),
		prompts:  make(map[string]prompts.Prompt),
		results:  make(map[string]history.Result),
		configs:  make(map[string]apiconfig.Config),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// --- accounts ---

func (s *Store) CreateAccount(_ context.Context, acc auth.Account) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[acc.Email]; ok {
		return auth.Account{}, auth.ErrDuplicateEmail
	}
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	now := s.now()
	acc.CreatedAt, acc.UpdatedAt = now, now
	acc.Name = cloneString(acc.Name)
	s.accounts[acc.ID] = acc
	s.byEmail[acc.Email] = acc.ID
	return copyAccount(acc), nil
}

func (s *Store) GetAccount(_ context.Context, id string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return auth.Account{}, auth.ErrNotFound
	}
	return copyAccount(acc), nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return auth.Account{}, auth.ErrNotFound
	}
	return copyAccount(s.accounts[id]), nil
}

func (s *Store) ListAccounts(_ context.Context, f auth.AccountFilter) ([]auth.AccountSummary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(f.Search)
	var matched []auth.Account
	for _, acc := range s.accounts {
		if needle != "" && !accountMatches(acc, needle) {
			continue
		}
		matched = append(matched, acc)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	matched = paginate(matched, f.Offset, f.Limit)

	out := make([]auth.AccountSummary, 0, len(matched))
	for _, acc := range matched {
		sum := auth.AccountSummary{Account: copyAccount(acc)}
		for _, p := range s.prompts {
			if p.UserID == acc.ID {
				sum.PromptCount++
			}
		}
		for _, r := range s.results {
			if r.UserID == acc.ID {
				sum.ResultCount++
			}
		}
		out = append(out, sum)
	}
	return out, total, nil
}

func (s *Store) ListAccountsByRole(_ context.Context, role auth.Role) ([]auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Account
	for _, acc := range s.accounts {
		if acc.Role == role {
			out = append(out, copyAccount(acc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateAccount(_ context.Context, id string, upd auth.AccountUpdate) (auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return auth.Account{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		if *upd.Name == "" {
			acc.Name = nil
		} else {
			acc.Name = cloneString(upd.Name)
		}
	}
	if upd.Role != nil {
		acc.Role = *upd.Role
	}
	if upd.PasswordHash != nil {
		acc.PasswordHash = *upd.PasswordHash
	}
	acc.UpdatedAt = s.now()
	s.accounts[id] = acc
	return copyAccount(acc), nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.accounts, id)
	delete(s.byEmail, acc.Email)
	delete(s.configs, id)
	for k, sess := range s.sessions {
		if sess.AccountID == id {
			delete(s.sessions, k)
		}
	}
	for k, r := range s.results {
		if r.UserID == id {
			delete(s.results, k)
		}
	}
	for k, p := range s.prompts {
		if p.UserID == id {
			s.deletePromptLocked(k)
		}
	}
	return nil
}

// --- sessions ---

func (s *Store) CreateSession(_ context.Context, sess auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[sess.AccountID]; !ok {
		return auth.ErrNotFound
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (auth.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return auth.Session{}, auth.ErrNotFound
	}
	return sess, nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// --- prompts ---

func (s *Store) CreatePrompt(_ context.Context, p prompts.Prompt) (prompts.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[p.UserID]; !ok {
		return prompts.Prompt{}, auth.ErrNotFound
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Description = cloneString(p.Description)
	s.prompts[p.ID] = p
	return copyPrompt(p), nil
}

func (s *Store) GetPrompt(_ context.Context, id string) (prompts.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	if !ok {
		return prompts.Prompt{}, auth.ErrNotFound
	}
	return copyPrompt(p), nil
}

func (s *Store) ListPrompts(_ context.Context, f prompts.Filter) ([]prompts.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []prompts.Prompt
	for _, p := range s.prompts {
		switch {
		case f.SharedOnly:
			if !p.IsAdminPrompt {
				continue
			}
		case f.OwnerID != "":
			if p.UserID != f.OwnerID && !(f.IncludeShared && p.IsAdminPrompt) {
				continue
			}
		}
		out = append(out, copyPrompt(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdatePrompt(_ context.Context, id string, upd prompts.Update) (prompts.Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prompts[id]
	if !ok {
		return prompts.Prompt{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		if *upd.Description == "" {
			p.Description = nil
		} else {
			p.Description = cloneString(upd.Description)
		}
	}
	if upd.Template != nil {
		p.Template = *upd.Template
	}
	if upd.Category != nil {
		p.Category = *upd.Category
	}
	if upd.OutputFormat != nil {
		p.OutputFormat = *upd.OutputFormat
	}
	if upd.IsFavorite != nil {
		p.IsFavorite = *upd.IsFavorite
	}
	if upd.IsAdminPrompt != nil {
		p.IsAdminPrompt = *upd.IsAdminPrompt
	}
	p.UpdatedAt = s.now()
	s.prompts[id] = p
	return copyPrompt(p), nil
}

func (s *Store) DeletePrompt(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prompts[id]; !ok {
		return auth.ErrNotFound
	}
	s.deletePromptLocked(id)
	return nil
}

// deletePromptLocked detaches results from the prompt, mirroring
// "on delete set null".
func (s *Store) deletePromptLocked(id string) {
	delete(s.prompts, id)
	for k, r := range s.results {
		if r.PromptID != nil && *r.PromptID == id {
			r.PromptID = nil
			s.results[k] = r
		}
	}
}

// --- results ---

func (s *Store) CreateResult(_ context.Context, r history.Result) (history.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[r.UserID]; !ok {
		return history.Result{}, auth.ErrNotFound
	}
	if r.PromptID != nil {
		if _, ok := s.prompts[*r.PromptID]; !ok {
			return history.Result{}, auth.ErrNotFound
		}
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	r.CreatedAt = s.now()
	r.PromptID = cloneString(r.PromptID)
	r.Prompt, r.User = nil, nil
	s.results[r.ID] = r
	return s.decorateLocked(r), nil
}

func (s *Store) GetResult(_ context.Context, id string) (history.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return history.Result{}, auth.ErrNotFound
	}
	return s.decorateLocked(r), nil
}

func (s *Store) ListResults(_ context.Context, f history.Filter) ([]history.Result, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []history.Result
	for _, r := range s.results {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	matched = paginate(matched, f.Offset, f.Limit)
	out := make([]history.Result, 0, len(matched))
	for _, r := range matched {
		out = append(out, s.decorateLocked(r))
	}
	return out, total, nil
}

func (s *Store) DeleteResult(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.results, id)
	return nil
}

func (s *Store) decorateLocked(r history.Result) history.Result {
	r.PromptID = cloneString(r.PromptID)
	if r.PromptID != nil {
		if p, ok := s.prompts[*r.PromptID]; ok {
			r.Prompt = &history.PromptRef{Name: p.Name, Category: p.Category, OutputFormat: p.OutputFormat}
		}
	}
	if acc, ok := s.accounts[r.UserID]; ok {
		r.User = &history.UserRef{ID: acc.ID, Email: acc.Email, Name: cloneString(acc.Name)}
	}
	return r
}

// --- api configs ---

func (s *Store) GetConfig(_ context.Context, userID string) (apiconfig.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return apiconfig.Config{}, auth.ErrNotFound
	}
	return cfg, nil
}

func (s *Store) UpsertConfig(_ context.Context, cfg apiconfig.Config) (apiconfig.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[cfg.UserID]; !ok {
		return apiconfig.Config{}, auth.ErrNotFound
	}
	now := s.now()
	if prev, ok := s.configs[cfg.UserID]; ok {
		cfg.CreatedAt = prev.CreatedAt
	} else {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	s.configs[cfg.UserID] = cfg
	return cfg, nil
}

// --- helpers ---

func accountMatches(acc auth.Account, needle string) bool {
	if strings.Contains(strings.ToLower(acc.Email), needle) {
		return true
	}
	return acc.Name != nil && strings.Contains(strings.ToLower(*acc.Name), needle)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyAccount(acc auth.Account) auth.Account {
	acc.Name = cloneString(acc.Name)
	return acc
}

func copyPrompt(p prompts.Prompt) prompts.Prompt {
	p.Description = cloneString(p.Description)
	return p
}
