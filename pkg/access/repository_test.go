package access

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/test_utils"
	"github.com/RitoIssei/bot-mng-ns/internal/utils"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if pgContainer != nil {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			log.Errorf("failed to terminate container: %s", err)
		}
	}
	os.Exit(code)
}

func setupMemberRepository(t *testing.T) (context.Context, *MemberRepositoryImpl) {
	if pgContainer == nil {
		t.Skip("postgres container not available")
	}
	ctx := context.Background()
	db := openDb()
	t.Cleanup(func() {
		db.Close()
		require.NoError(t, pgContainer.Restore(ctx))
	})
	return ctx, NewMemberRepository(db)
}

func TestMemberRepositoryImpl(t *testing.T) {
	t.Run("should list members of one role", func(t *testing.T) {
		// given
		ctx, repo := setupMemberRepository(t)
		require.NoError(t, repo.Upsert(ctx, RoleAssistant, Member{ID: 8, Name: "Tuan"}))
		require.NoError(t, repo.Upsert(ctx, RoleAssistant, Member{ID: 7, Name: "Linh", Area: "north"}))
		require.NoError(t, repo.Upsert(ctx, RoleOperator, Member{ID: 9, Name: "Hoa"}))

		// when
		members, err := repo.FindByRole(ctx, RoleAssistant)

		// then
		require.NoError(t, err)
		assert.Equal(t, []Member{{ID: 7, Name: "Linh", Area: "north"}, {ID: 8, Name: "Tuan"}}, members)
	})

	t.Run("should rename on upsert and remove", func(t *testing.T) {
		// given
		ctx, repo := setupMemberRepository(t)
		require.NoError(t, repo.Upsert(ctx, RoleRoom, Member{ID: -100123, Name: "old"}))

		// when
		require.NoError(t, repo.Upsert(ctx, RoleRoom, Member{ID: -100123, Name: "North room"}))
		members, err := repo.FindByRole(ctx, RoleRoom)
		require.NoError(t, err)
		removed, err := repo.Remove(ctx, RoleRoom, -100123, "")
		require.NoError(t, err)
		missing, err := repo.Remove(ctx, RoleRoom, -100123, "")
		require.NoError(t, err)

		// then
		assert.Equal(t, []Member{{ID: -100123, Name: "North room"}}, members)
		assert.True(t, removed)
		assert.False(t, missing)
	})

	t.Run("should feed the authorizer", func(t *testing.T) {
		// given
		ctx, repo := setupMemberRepository(t)
		require.NoError(t, repo.Upsert(ctx, RoleAssistant, Member{ID: 7, Name: "Linh", Area: "north"}))
		authorizer := NewAuthorizer(RepositoryLoaders(repo), nil, "north", time.Minute, &utils.MockClock{FixedNow: start})

		// then
		assert.True(t, authorizer.CanApprove(ctx, 7))
		assert.False(t, authorizer.IsOperator(ctx, 7))
	})
}
