package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptdesk.dev/internal/apiconfig"
	"promptdesk.dev/internal/auth"
	"promptdesk.dev/internal/history"
	"promptdesk.dev/internal/prompts"
)

func TestDuplicateEmail(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.CreateAccount(ctx, auth.Account{Email: "a@x.com", Role: auth.RoleUser})
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, auth.Account{Email: "a@x.com", Role: auth.RoleUser})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestDeleteAccountCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, err := s.CreateAccount(ctx, auth.Account{Email: "owner@x.com", Role: auth.RoleUser})
	require.NoError(t, err)
	other, err := s.CreateAccount(ctx, auth.Account{Email: "other@x.com", Role: auth.RoleUser})
	require.NoError(t, err)

	require.NoError(t, s.CreateSession(ctx, auth.Session{ID: "sess", AccountID: owner.ID}))
	p, err := s.CreatePrompt(ctx, prompts.Prompt{UserID: owner.ID, Name: "p", Template: "t"})
	require.NoError(t, err)
	pid := p.ID
	ownResult, err := s.CreateResult(ctx, history.Result{UserID: owner.ID, PromptID: &pid, Input: "i", Output: "o", Format: "text"})
	require.NoError(t, err)
	otherResult, err := s.CreateResult(ctx, history.Result{UserID: other.ID, PromptID: &pid, Input: "i", Output: "o", Format: "text"})
	require.NoError(t, err)
	_, err = s.UpsertConfig(ctx, apiconfig.Config{UserID: owner.ID, APIKey: "k", Model: "m", MaxTokens: 1})
	require.NoError(t, err)

	sums, total, err := s.ListAccounts(ctx, auth.AccountFilter{Search: "OWNER"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, 1, sums[0].PromptCount)
	assert.Equal(t, 1, sums[0].ResultCount)

	require.NoError(t, s.DeleteAccount(ctx, owner.ID))

	_, err = s.GetSession(ctx, "sess")
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = s.GetPrompt(ctx, p.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = s.GetResult(ctx, ownResult.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = s.GetConfig(ctx, owner.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = s.GetAccountByEmail(ctx, "owner@x.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	kept, err := s.GetResult(ctx, otherResult.ID)
	require.NoError(t, err)
	assert.Nil(t, kept.PromptID)
}

func TestForeignKeysAreChecked(t *testing.T) {
	s := New()
	ctx := context.Background()
	assert.ErrorIs(t, s.CreateSession(ctx, auth.Session{ID: "x", AccountID: "ghost"}), auth.ErrNotFound)
	_, err := s.CreatePrompt(ctx, prompts.Prompt{UserID: "ghost"})
	assert.ErrorIs(t, err, auth.ErrNotFound)
	_, err = s.UpsertConfig(ctx, apiconfig.Config{UserID: "ghost"})
	assert.ErrorIs(t, err, auth.ErrNotFound)

	acc, err := s.CreateAccount(ctx, auth.Account{Email: "a@x.com", Role: auth.RoleUser})
	require.NoError(t, err)
	missing := "nope"
	_, err = s.CreateResult(ctx, history.Result{UserID: acc.ID, PromptID: &missing})
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUpsertConfigKeepsCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	acc, err := s.CreateAccount(ctx, auth.Account{Email: "a@x.com", Role: auth.RoleUser})
	require.NoError(t, err)

	first, err := s.UpsertConfig(ctx, apiconfig.Config{UserID: acc.ID, APIKey: "k1", Model: "m", MaxTokens: 1})
	require.NoError(t, err)
	second, err := s.UpsertConfig(ctx, apiconfig.Config{UserID: acc.ID, APIKey: "k2", Model: "m", MaxTokens: 2})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := s.GetConfig(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "k2", got.APIKey)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, paginate(items, 2, 2))
	assert.Nil(t, paginate(items, 5, 2))
	assert.Equal(t, items, paginate(items, -1, 0))
}
