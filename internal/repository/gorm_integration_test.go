package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/Tavern/internal/model"
	"github.com/Gopher0727/Tavern/internal/repository"
)

// openTestPostgres connects to TAVERN_TEST_POSTGRES_DSN and skips otherwise.
func openTestPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TAVERN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping test: TAVERN_TEST_POSTGRES_DSN not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(repository.Models()...))
	return db
}

func TestGormStore_Postgres(t *testing.T) {
	db := openTestPostgres(t)
	ctx := context.Background()
	store := repository.NewGormStore(db)

	hash, err := model.HashPassword("secret123")
	require.NoError(t, err)
	member, err := model.NewMember("gimli", uuid.NewString()+"@erebor.org", hash, "0001")
	require.NoError(t, err)
	require.NoError(t, store.Members().Create(ctx, member))

	t.Run("duplicate handle is a unique violation", func(t *testing.T) {
		dup, err := model.NewMember("gimli", "dup-"+member.Email, hash, "0001")
		require.NoError(t, err)
		err = store.Members().Create(ctx, dup)
		assert.True(t, repository.IsUniqueViolation(err), "got %v", err)
	})

	t.Run("soft delete hides memberships", func(t *testing.T) {
		tavern, err := model.NewTavern("Glittering Caves", nil, 3)
		require.NoError(t, err)
		owner, err := model.NewOwnerMembership(member.ID, tavern.ID)
		require.NoError(t, err)

		err = store.Transaction(ctx, func(tx repository.Store) error {
			if err := tx.Taverns().Create(ctx, tavern); err != nil {
				return err
			}
			return tx.Memberships().Create(ctx, owner)
		})
		require.NoError(t, err)

		count, err := store.Memberships().CountActive(ctx, tavern.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		taverns, err := store.Taverns().ListByMember(ctx, member.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, taverns)

		require.NoError(t, store.Memberships().Delete(ctx, owner))
		_, err = store.Memberships().FindByID(ctx, owner.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
