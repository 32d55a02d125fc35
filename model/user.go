package model

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/google/uuid"
)

// UserStore defines persistence operations for users and their dependent
// records (claims, logins, role memberships, tokens).
//
// Lookup methods taking a normalized name or email expect the argument to
// already be in normalized form (see Normalize); they do not re-normalize.
// This matches the calling convention of membership managers, which always
// pass the normalized projection.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByName(ctx context.Context, normalizedName string) (*User, error)
	FindByEmail(ctx context.Context, normalizedEmail string) (*User, error)

	AddLogin(ctx context.Context, user *User, login UserLoginInfo) error
	RemoveLogin(ctx context.Context, user *User, loginProvider, providerKey string) error
	GetLogins(ctx context.Context, user *User) ([]UserLoginInfo, error)
	FindByLogin(ctx context.Context, loginProvider, providerKey string) (*User, error)

	AddToRole(ctx context.Context, user *User, normalizedRoleName string) error
	RemoveFromRole(ctx context.Context, user *User, normalizedRoleName string) error
	GetRoles(ctx context.Context, user *User) ([]string, error)
	IsInRole(ctx context.Context, user *User, normalizedRoleName string) (bool, error)
	GetUsersInRole(ctx context.Context, normalizedRoleName string) ([]*User, error)

	AddClaims(ctx context.Context, user *User, claims []Claim) error
	RemoveClaims(ctx context.Context, user *User, claims []Claim) error
	ReplaceClaim(ctx context.Context, user *User, claim, newClaim Claim) error
	GetClaims(ctx context.Context, user *User) ([]Claim, error)
	GetUsersForClaim(ctx context.Context, claim Claim) ([]*User, error)

	SetToken(ctx context.Context, user *User, loginProvider, name, value string) error
	RemoveToken(ctx context.Context, user *User, loginProvider, name string) error
	GetToken(ctx context.Context, user *User, loginProvider, name string) (string, error)
}

// User represents a membership user document. Field names match the JSON
// shape of existing documents, so they must not be renamed.
type User struct {
	ID                   string      `json:"Id"`
	UserName             string      `json:"UserName"`
	NormalizedUserName   string      `json:"NormalizedUserName"`
	Email                string      `json:"Email"`
	NormalizedEmail      string      `json:"NormalizedEmail"`
	EmailConfirmed       bool        `json:"EmailConfirmed"`
	PasswordHash         string      `json:"PasswordHash,omitempty"`
	SecurityStamp        string      `json:"SecurityStamp,omitempty"`
	ConcurrencyStamp     string      `json:"ConcurrencyStamp,omitempty"`
	PhoneNumber          string      `json:"PhoneNumber,omitempty"`
	PhoneNumberConfirmed bool        `json:"PhoneNumberConfirmed"`
	TwoFactorEnabled     bool        `json:"TwoFactorEnabled"`
	LockoutEnd           *time.Time  `json:"LockoutEnd,omitempty"`
	LockoutEnabled       bool        `json:"LockoutEnabled"`
	AccessFailedCount    int         `json:"AccessFailedCount"`
	ETag                 azcore.ETag `json:"_etag,omitempty"`
}

// NewUser creates a user with a fresh id and security stamps. UserName and
// Email are normalized immediately so the paired projections are consistent
// from the start.
func NewUser(userName, email string) *User {
	u := &User{
		ID:               uuid.NewString(),
		SecurityStamp:    uuid.NewString(),
		ConcurrencyStamp: uuid.NewString(),
	}
	u.SetUserName(userName)
	u.SetEmail(email)
	return u
}

// SetUserName sets the display user name and re-derives
// NormalizedUserName. The pair stays consistent after every call, not just
// after an Update round trip.
func (u *User) SetUserName(userName string) {
	u.UserName = userName
	u.NormalizedUserName = Normalize(userName)
}

// SetEmail sets the email address and re-derives NormalizedEmail.
func (u *User) SetEmail(email string) {
	u.Email = email
	u.NormalizedEmail = Normalize(email)
}

func (u *User) DocumentID() string { return u.ID }

func (u *User) PartitionKeyValue() any { return u.ID }

func (u *User) CurrentETag() azcore.ETag { return u.ETag }

func (u *User) SetETag(etag azcore.ETag) { u.ETag = etag }

func (u *User) RefreshConcurrencyStamp() { u.ConcurrencyStamp = uuid.NewString() }
