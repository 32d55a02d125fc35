package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	u := NewUser("alice", "Alice@Example.com")

	require.NotEmpty(t, u.ID)
	assert.NotEmpty(t, u.SecurityStamp)
	assert.NotEmpty(t, u.ConcurrencyStamp)
	assert.Equal(t, "alice", u.UserName)
	assert.Equal(t, "ALICE", u.NormalizedUserName)
	assert.Equal(t, "Alice@Example.com", u.Email)
	assert.Equal(t, "ALICE@EXAMPLE.COM", u.NormalizedEmail)
}

func TestUser_SettersKeepProjectionsConsistent(t *testing.T) {
	u := NewUser("alice", "alice@example.com")

	u.SetUserName("Bob")
	assert.Equal(t, "Bob", u.UserName)
	assert.Equal(t, "BOB", u.NormalizedUserName)

	u.SetEmail("Bob@Acme.com")
	assert.Equal(t, "Bob@Acme.com", u.Email)
	assert.Equal(t, "BOB@ACME.COM", u.NormalizedEmail)
}

func TestUser_Document(t *testing.T) {
	u := NewUser("alice", "alice@example.com")

	assert.Equal(t, u.ID, u.DocumentID())
	assert.Equal(t, u.ID, u.PartitionKeyValue())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "FOO1@ACME.COM", Normalize("Foo1@acme.com"))
	assert.Equal(t, "ADMIN", Normalize("admin"))
	assert.Equal(t, "", Normalize(""))
}

func TestNewRole(t *testing.T) {
	r := NewRole("Admin")

	require.NotEmpty(t, r.ID)
	assert.Equal(t, "Admin", r.Name)
	assert.Equal(t, "ADMIN", r.NormalizedName)
}

func TestNewClaimID(t *testing.T) {
	seen := make(map[int64]bool)
	for range 100 {
		id := NewClaimID()
		assert.Positive(t, id)
		assert.Less(t, id, int64(1)<<53)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCompositeDocumentIDs(t *testing.T) {
	login := NewUserLogin("u1", UserLoginInfo{LoginProvider: "google", ProviderKey: "k1"})
	assert.Equal(t, "google|k1", login.DocumentID())
	assert.Equal(t, "k1", login.PartitionKeyValue())

	edge := NewUserRole("u1", "r1")
	assert.Equal(t, "u1|r1", edge.DocumentID())
	assert.Equal(t, "u1", edge.PartitionKeyValue())

	token := NewUserToken("u1", "google", "refresh", "v")
	assert.Equal(t, "u1|google|refresh", token.DocumentID())
	assert.Equal(t, "u1", token.PartitionKeyValue())
}
