package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
)

func TestAccountCreateAndLookup(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	repo, err := NewAccountRepository(db)
	require.NoError(t, err)

	ctx := context.Background()
	account := &models.Account{
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Name:         "Alice",
		Role:         models.RoleUser,
	}
	require.NoError(t, repo.Create(ctx, account))
	require.NotEmpty(t, account.ID)

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, account.ID, byEmail.ID)
	require.False(t, byEmail.Verified)

	byID, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", byID.Email)
}

func TestAccountCreateDuplicateEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	repo, err := NewAccountRepository(db)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.Account{
		Email:        "dup@example.com",
		PasswordHash: "hash",
		Role:         models.RoleUser,
	}))

	err = repo.Create(ctx, &models.Account{
		Email:        "dup@example.com",
		PasswordHash: "other",
		Role:         models.RoleUser,
	})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestAccountFindMissing(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	repo, err := NewAccountRepository(db)
	require.NoError(t, err)

	_, err = repo.FindByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, ErrAccountNotFound)

	_, err = repo.FindByID(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountSetVerified(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	repo, err := NewAccountRepository(db)
	require.NoError(t, err)

	ctx := context.Background()
	account := &models.Account{
		Email:        "verify@example.com",
		PasswordHash: "hash",
		Role:         models.RoleUser,
	}
	require.NoError(t, repo.Create(ctx, account))

	require.NoError(t, repo.SetVerified(ctx, account.ID))

	updated, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, updated.Verified)

	require.ErrorIs(t, repo.SetVerified(ctx, "no-such-id"), ErrAccountNotFound)
}

func TestAccountUpdatePassword(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	repo, err := NewAccountRepository(db)
	require.NoError(t, err)

	ctx := context.Background()
	account := &models.Account{
		Email:        "pw@example.com",
		PasswordHash: "old",
		Role:         models.RoleUser,
	}
	require.NoError(t, repo.Create(ctx, account))

	require.NoError(t, repo.UpdatePassword(ctx, account.ID, "new"))

	updated, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, "new", updated.PasswordHash)
}
