package model

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/google/uuid"
)

// RoleStore defines persistence operations for roles and role claims.
// FindByName expects an already-normalized name, same as UserStore lookups.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, role *Role) error
	FindByID(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, normalizedName string) (*Role, error)

	AddClaim(ctx context.Context, role *Role, claim Claim) error
	RemoveClaim(ctx context.Context, role *Role, claim Claim) error
	GetClaims(ctx context.Context, role *Role) ([]Claim, error)
}

// Role represents a membership role document.
type Role struct {
	ID               string      `json:"Id"`
	Name             string      `json:"Name"`
	NormalizedName   string      `json:"NormalizedName"`
	ConcurrencyStamp string      `json:"ConcurrencyStamp,omitempty"`
	ETag             azcore.ETag `json:"_etag,omitempty"`
}

// NewRole creates a role with a fresh id and a consistent normalized name.
func NewRole(name string) *Role {
	r := &Role{
		ID:               uuid.NewString(),
		ConcurrencyStamp: uuid.NewString(),
	}
	r.SetName(name)
	return r
}

// SetName sets the display name and re-derives NormalizedName.
func (r *Role) SetName(name string) {
	r.Name = name
	r.NormalizedName = Normalize(name)
}

func (r *Role) DocumentID() string { return r.ID }

func (r *Role) PartitionKeyValue() any { return r.ID }

func (r *Role) CurrentETag() azcore.ETag { return r.ETag }

func (r *Role) SetETag(etag azcore.ETag) { r.ETag = etag }

func (r *Role) RefreshConcurrencyStamp() { r.ConcurrencyStamp = uuid.NewString() }
