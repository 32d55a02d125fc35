package model

import (
	"encoding/binary"
	"strconv"

	"github.com/google/uuid"
)

// Claim is a type/value pair attached to a user or role.
type Claim struct {
	Type  string
	Value string
}

// UserClaim represents a claim document owned by a user. Claims have no
// natural external identity, so the store assigns a synthetic integer id
// on creation.
type UserClaim struct {
	ID         int64  `json:"Id"`
	UserID     string `json:"UserId"`
	ClaimType  string `json:"ClaimType"`
	ClaimValue string `json:"ClaimValue"`
}

// NewUserClaim creates a user claim with a generated id.
func NewUserClaim(userID string, claim Claim) *UserClaim {
	return &UserClaim{
		ID:         NewClaimID(),
		UserID:     userID,
		ClaimType:  claim.Type,
		ClaimValue: claim.Value,
	}
}

func (c *UserClaim) Claim() Claim { return Claim{Type: c.ClaimType, Value: c.ClaimValue} }

func (c *UserClaim) DocumentID() string { return strconv.FormatInt(c.ID, 10) }

func (c *UserClaim) PartitionKeyValue() any { return c.ID }

// RoleClaim represents a claim document owned by a role.
type RoleClaim struct {
	ID         int64  `json:"Id"`
	RoleID     string `json:"RoleId"`
	ClaimType  string `json:"ClaimType"`
	ClaimValue string `json:"ClaimValue"`
}

// NewRoleClaim creates a role claim with a generated id.
func NewRoleClaim(roleID string, claim Claim) *RoleClaim {
	return &RoleClaim{
		ID:         NewClaimID(),
		RoleID:     roleID,
		ClaimType:  claim.Type,
		ClaimValue: claim.Value,
	}
}

func (c *RoleClaim) Claim() Claim { return Claim{Type: c.ClaimType, Value: c.ClaimValue} }

func (c *RoleClaim) DocumentID() string { return strconv.FormatInt(c.ID, 10) }

func (c *RoleClaim) PartitionKeyValue() any { return c.ID }

// NewClaimID generates a synthetic claim id. Ids are positive and kept
// within 53 bits so they survive JSON number round trips exactly.
func NewClaimID() int64 {
	u := uuid.New()
	return int64(binary.BigEndian.Uint64(u[:8]) & (1<<53 - 1))
}
