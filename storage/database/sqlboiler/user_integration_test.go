//go:build integration

package boiledrepos_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/user"
	boiledrepos "github.com/gurudigital/pelangi/storage/database/sqlboiler"
	"github.com/gurudigital/pelangi/testutil"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	db, teardown, err := testutil.PostgresDB(context.Background())
	if err != nil {
		log.Fatalf("starting postgres: %v", err)
	}
	testDB = db
	code := m.Run()
	teardown()
	os.Exit(code)
}

func TestUserRepository(t *testing.T) {
	testutil.TruncateAll(t, testDB)
	ctx := context.Background()
	repo := boiledrepos.NewUserRepository(testDB)

	admin := testutil.CreateUser(t, repo, "Siti Admin", "siti", "siti@sekolah.id", "Pelangi!2026", []string{user.RoleAdminOwner}, true)
	teacher := testutil.CreateUser(t, repo, "Pak Budi", "budi", "budi@sekolah.id", "", []string{user.RoleTeacher}, true)
	testutil.CreateUser(t, repo, "Bu Ani", "ani", "ani@sekolah.id", "", []string{user.RoleTeacherHomeroom}, false)

	t.Run("uniqueness", func(t *testing.T) {
		err := repo.CheckUsernameUniqueness(ctx, "siti", "other@sekolah.id", nil)
		assert.Equal(t, user.ErrUsernameExists, err)
		err = repo.CheckUsernameUniqueness(ctx, "other", "siti@sekolah.id", nil)
		assert.Equal(t, user.ErrEmailExists, err)
		err = repo.CheckUsernameUniqueness(ctx, "siti", "siti@sekolah.id", []user.User{admin})
		assert.NoError(t, err)
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "siti@sekolah.id"})
		require.NoError(t, err)
		assert.Equal(t, admin.ID, got.ID)
		assert.NoError(t, got.CheckPassword("Pelangi!2026"))

		_, err = repo.GetUser(ctx, user.GetFilter{ID: "nope"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("query", func(t *testing.T) {
		users, err := repo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleTeacher}}, nil)
		require.NoError(t, err)
		assert.Len(t, users, 2)

		active := true
		users, err = repo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleTeacher}, IsActive: &active}, nil)
		require.NoError(t, err)
		if assert.Len(t, users, 1) {
			assert.Equal(t, teacher.ID, users[0].ID)
		}

		users, err = repo.QueryUsers(ctx, nil, []core.DBOrdering{{Field: "username", Ascending: true}})
		require.NoError(t, err)
		if assert.Len(t, users, 3) {
			assert.Equal(t, "ani", users[0].Username)
		}
	})

	t.Run("update and delete", func(t *testing.T) {
		teacher.Name = "Pak Budi Santoso"
		got, err := repo.UpdateUser(ctx, teacher)
		require.NoError(t, err)
		assert.Equal(t, "Pak Budi Santoso", got.Name)

		cnt, err := repo.DeleteUsersByID(ctx, []string{teacher.ID, "not-a-uuid"})
		require.NoError(t, err)
		assert.Equal(t, 1, cnt)
	})
}
