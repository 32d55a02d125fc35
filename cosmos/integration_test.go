//go:build integration

package cosmos_test

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/meridianlabs/cosmos-identity/cosmos"
	"github.com/meridianlabs/cosmos-identity/internal/testutil"
	"github.com/meridianlabs/cosmos-identity/model"
	"github.com/meridianlabs/cosmos-identity/store"
)

// Well-known emulator account key, fixed by the emulator image.
const emulatorKey = "C2y6yDjf5/R+ob0N8A7Cgv30VRDJIWEHLM+4QDU5DE2nQ9nDuVTqobD4b8mGGyPMbIZnqyMsEcaGQy67XIw/Jw=="

var endpoint string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "mcr.microsoft.com/cosmosdb/linux/azure-cosmos-emulator:latest",
			ExposedPorts: []string{"8081/tcp"},
			Env: map[string]string{
				"AZURE_COSMOS_EMULATOR_PARTITION_COUNT":         "3",
				"AZURE_COSMOS_EMULATOR_ENABLE_DATA_PERSISTENCE": "false",
			},
			WaitingFor: wait.ForListeningPort("8081/tcp").WithStartupTimeout(5 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "8081")
	if err != nil {
		panic(err)
	}
	endpoint = fmt.Sprintf("https://%s:%s", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

// newRawClient builds an SDK client that accepts the emulator's
// self-signed certificate.
func newRawClient(t *testing.T) *azcosmos.Client {
	t.Helper()
	cred, err := azcosmos.NewKeyCredential(emulatorKey)
	require.NoError(t, err)
	raw, err := azcosmos.NewClientWithKey(endpoint, cred, &azcosmos.ClientOptions{
		ClientOptions: policy.ClientOptions{
			Transport: &http.Client{
				Transport: &http.Transport{
					TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				},
			},
		},
	})
	require.NoError(t, err)
	return raw
}

func TestProvisionAndStores(t *testing.T) {
	ctx := context.Background()
	database := "IdentityTest"
	raw := newRawClient(t)

	p := cosmos.NewProvisioner(raw, database, testutil.MakeNoopLogger())
	created, err := p.CreateDatabase(ctx)
	require.NoError(t, err)
	require.True(t, created)
	t.Cleanup(func() { _, _ = p.DeleteDatabaseIfExists(context.Background()) })

	statuses, err := p.CreateRequiredContainers(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(cosmos.RequiredContainers))

	// A second run is a no-op.
	statuses, err = p.CreateRequiredContainers(ctx)
	require.NoError(t, err)
	for _, s := range statuses {
		require.False(t, s.Created)
	}

	client, err := cosmos.NewClient(raw, database)
	require.NoError(t, err)
	repo := cosmos.NewRepository(client, cosmos.NewModel(nil))
	users := store.NewUserStore(repo, testutil.MakeNoopLogger())
	roles := store.NewRoleStore(repo, testutil.MakeNoopLogger())

	t.Run("user_crud", func(t *testing.T) {
		user := model.NewUser("alice", "Alice@Example.com")
		require.NoError(t, users.Create(ctx, user))

		got, err := users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.Equal(t, "ALICE@EXAMPLE.COM", got.NormalizedEmail)

		byEmail, err := users.FindByEmail(ctx, "ALICE@EXAMPLE.COM")
		require.NoError(t, err)
		require.Equal(t, user.ID, byEmail.ID)

		got.PhoneNumber = "+15550100"
		require.NoError(t, users.Update(ctx, got))

		stale, err := users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		require.NoError(t, users.Update(ctx, stale))
		err = users.Update(ctx, got)
		require.ErrorIs(t, err, model.ErrConcurrency)
	})

	t.Run("roles_and_claims", func(t *testing.T) {
		user := model.NewUser("bob", "bob@example.com")
		require.NoError(t, users.Create(ctx, user))
		role := model.NewRole("Admin")
		require.NoError(t, roles.Create(ctx, role))

		require.NoError(t, users.AddToRole(ctx, user, "ADMIN"))
		inRole, err := users.IsInRole(ctx, user, "ADMIN")
		require.NoError(t, err)
		require.True(t, inRole)

		require.NoError(t, users.AddClaims(ctx, user, []model.Claim{{Type: "scope", Value: "read"}}))
		claims, err := users.GetClaims(ctx, user)
		require.NoError(t, err)
		require.Len(t, claims, 1)

		require.NoError(t, users.Delete(ctx, user))
		_, err = users.FindByID(ctx, user.ID)
		require.ErrorIs(t, err, model.ErrNotFound)
		members, err := users.GetUsersInRole(ctx, "ADMIN")
		require.NoError(t, err)
		require.Empty(t, members)
	})

	t.Run("logins_and_tokens", func(t *testing.T) {
		user := model.NewUser("carol", "carol@example.com")
		require.NoError(t, users.Create(ctx, user))

		require.NoError(t, users.AddLogin(ctx, user, model.UserLoginInfo{
			LoginProvider: "google", ProviderKey: "k1", ProviderDisplayName: "Google",
		}))
		found, err := users.FindByLogin(ctx, "google", "k1")
		require.NoError(t, err)
		require.Equal(t, user.ID, found.ID)

		require.NoError(t, users.SetToken(ctx, user, "google", "refresh", "v1"))
		require.NoError(t, users.SetToken(ctx, user, "google", "refresh", "v2"))
		value, err := users.GetToken(ctx, user, "google", "refresh")
		require.NoError(t, err)
		require.Equal(t, "v2", value)
	})
}
