package cosmos_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/cosmos-identity/cosmos"
	"github.com/meridianlabs/cosmos-identity/internal/testutil"
	"github.com/meridianlabs/cosmos-identity/model"
	"github.com/meridianlabs/cosmos-identity/protect"
)

func newTestRepository(t *testing.T) (*cosmos.Repository, *testutil.MemDatabase) {
	t.Helper()
	db := testutil.NewMemDatabase()
	return cosmos.NewRepository(db, cosmos.NewModel(nil)), db
}

func TestRepository_MutationsAreStagedUntilSave(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepository(t)
	user := model.NewUser("alice", "alice@example.com")

	repo.Add(user)
	assert.Equal(t, 1, repo.Pending())
	assert.Zero(t, db.MemContainer(cosmos.ContainerIdentity).Len(), "no I/O before SaveChanges")

	require.NoError(t, repo.SaveChanges(ctx))
	assert.Zero(t, repo.Pending())
	assert.Equal(t, 1, db.MemContainer(cosmos.ContainerIdentity).Len())
}

func TestRepository_SaveChangesBatchesOps(t *testing.T) {
	ctx := context.Background()
	repo, db := newTestRepository(t)

	user := model.NewUser("alice", "alice@example.com")
	role := model.NewRole("Admin")
	repo.Add(user)
	repo.Add(role)
	repo.Add(model.NewUserRole(user.ID, role.ID))
	require.NoError(t, repo.SaveChanges(ctx))

	assert.Equal(t, 1, db.MemContainer(cosmos.ContainerIdentity).Len())
	assert.Equal(t, 1, db.MemContainer(cosmos.ContainerRoles).Len())
	assert.Equal(t, 1, db.MemContainer(cosmos.ContainerUserRoles).Len())
}

func TestRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	user := model.NewUser("alice", "alice@example.com")
	repo.Add(user)
	require.NoError(t, repo.SaveChanges(ctx))

	got, err := cosmos.GetByID[model.User](ctx, repo, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "alice", got.UserName)
	assert.NotEmpty(t, got.ETag, "point read captures the version tag")

	_, err = cosmos.GetByID[model.User](ctx, repo, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRepository_AddDuplicateIsConflict(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	user := model.NewUser("alice", "alice@example.com")
	repo.Add(user)
	require.NoError(t, repo.SaveChanges(ctx))

	dup := model.NewUser("other", "other@example.com")
	dup.ID = user.ID
	repo.Add(dup)
	err := repo.SaveChanges(ctx)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestRepository_UpdateRefreshesConcurrencyToken(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	role := model.NewRole("Admin")
	repo.Add(role)
	require.NoError(t, repo.SaveChanges(ctx))

	loaded, err := cosmos.GetByID[model.Role](ctx, repo, role.ID)
	require.NoError(t, err)

	first := loaded.ConcurrencyStamp
	repo.Update(loaded)
	require.NoError(t, repo.SaveChanges(ctx))
	second := loaded.ConcurrencyStamp
	assert.NotEqual(t, first, second)

	repo.Update(loaded)
	require.NoError(t, repo.SaveChanges(ctx))
	assert.NotEqual(t, second, loaded.ConcurrencyStamp)
}

func TestRepository_StaleUpdateIsRejected(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	role := model.NewRole("Admin")
	repo.Add(role)
	require.NoError(t, repo.SaveChanges(ctx))

	// Two independent loads of the same document.
	copy1, err := cosmos.GetByID[model.Role](ctx, repo, role.ID)
	require.NoError(t, err)
	copy2, err := cosmos.GetByID[model.Role](ctx, repo, role.ID)
	require.NoError(t, err)

	repo.Update(copy1)
	require.NoError(t, repo.SaveChanges(ctx))

	repo.Update(copy2)
	err = repo.SaveChanges(ctx)
	assert.ErrorIs(t, err, model.ErrConcurrency)
}

func TestRepository_RemoveDeletesDocument(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	user := model.NewUser("alice", "alice@example.com")
	repo.Add(user)
	require.NoError(t, repo.SaveChanges(ctx))

	repo.Remove(user)
	require.NoError(t, repo.SaveChanges(ctx))

	_, err := cosmos.GetByID[model.User](ctx, repo, user.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRepository_Query(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	user := model.NewUser("alice", "alice@example.com")
	repo.Add(user)
	repo.Add(model.NewUserClaim(user.ID, model.Claim{Type: "scope", Value: "read"}))
	repo.Add(model.NewUserClaim(user.ID, model.Claim{Type: "scope", Value: "write"}))
	repo.Add(model.NewUserClaim("someone-else", model.Claim{Type: "scope", Value: "read"}))
	require.NoError(t, repo.SaveChanges(ctx))

	claims, err := cosmos.Query[model.UserClaim](ctx, repo,
		"SELECT * FROM c WHERE c.UserId = @userId",
		azcosmos.QueryParameter{Name: "@userId", Value: user.ID})
	require.NoError(t, err)
	assert.Len(t, claims, 2)
}

func TestRepository_QueryPartition(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	repo.Add(model.NewUserRole("u1", "r1"))
	repo.Add(model.NewUserRole("u1", "r2"))
	repo.Add(model.NewUserRole("u2", "r1"))
	require.NoError(t, repo.SaveChanges(ctx))

	edges, err := cosmos.QueryPartition[model.UserRole](ctx, repo,
		azcosmos.NewPartitionKeyString("u1"),
		"SELECT * FROM c WHERE c.UserId = @userId",
		azcosmos.QueryParameter{Name: "@userId", Value: "u1"})
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestRepository_FindOne(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	repo.Add(model.NewUser("alice", "alice@example.com"))
	require.NoError(t, repo.SaveChanges(ctx))

	got, err := cosmos.FindOne[model.User](ctx, repo,
		"SELECT * FROM c WHERE c.NormalizedEmail = @email",
		azcosmos.QueryParameter{Name: "@email", Value: "ALICE@EXAMPLE.COM"})
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserName)

	_, err = cosmos.FindOne[model.User](ctx, repo,
		"SELECT * FROM c WHERE c.NormalizedEmail = @email",
		azcosmos.QueryParameter{Name: "@email", Value: "NOBODY@EXAMPLE.COM"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRepository_FindOneAmbiguous(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	u1 := model.NewUser("alice", "shared@example.com")
	u2 := model.NewUser("bob", "shared@example.com")
	repo.Add(u1)
	repo.Add(u2)
	require.NoError(t, repo.SaveChanges(ctx))

	_, err := cosmos.FindOne[model.User](ctx, repo,
		"SELECT * FROM c WHERE c.NormalizedEmail = @email",
		azcosmos.QueryParameter{Name: "@email", Value: "SHARED@EXAMPLE.COM"})
	assert.ErrorIs(t, err, model.ErrAmbiguous)
}

func TestRepository_SaveChangesHonorsCancellation(t *testing.T) {
	repo, _ := newTestRepository(t)
	repo.Add(model.NewUser("alice", "alice@example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := repo.SaveChanges(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepository_ProtectedFieldsAreCipheredAtRest(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewMemDatabase()
	protector, err := protect.NewAES(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	m := cosmos.NewModel(protector, cosmos.WithProtectedFields(&model.User{}, "Email"))
	repo := cosmos.NewRepository(db, m)

	user := model.NewUser("alice", "alice@example.com")
	repo.Add(user)
	require.NoError(t, repo.SaveChanges(ctx))

	raw := db.MemContainer(cosmos.ContainerIdentity).RawBody(user.ID)
	require.NotNil(t, raw)
	assert.NotContains(t, string(raw), "alice@example.com")

	got, err := cosmos.GetByID[model.User](ctx, repo, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email, "store code sees plaintext")
}
