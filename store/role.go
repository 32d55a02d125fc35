package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/google/uuid"

	"github.com/meridianlabs/cosmos-identity/cosmos"
	"github.com/meridianlabs/cosmos-identity/model"
)

// Ensure RoleStore implements the model.RoleStore interface.
var _ model.RoleStore = (*RoleStore)(nil)

// RoleStore persists roles and role claims.
type RoleStore struct {
	repo   *cosmos.Repository
	logger *slog.Logger
}

// NewRoleStore creates a role store over the given repository.
func NewRoleStore(repo *cosmos.Repository, logger *slog.Logger) *RoleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleStore{repo: repo, logger: logger}
}

// Create inserts a new role. Name is required; the normalized projection
// is re-derived before the insert.
func (s *RoleStore) Create(ctx context.Context, role *model.Role) error {
	if role == nil {
		return fmt.Errorf("%w: role is nil", model.ErrInvalid)
	}
	if role.Name == "" {
		return fmt.Errorf("%w: role name is required", model.ErrInvalid)
	}
	if role.ID == "" {
		role.ID = uuid.NewString()
	}
	role.NormalizedName = model.Normalize(role.Name)

	s.repo.Add(role)
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to create role", "role_id", role.ID, "error", err)
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// Update replaces the role document, re-deriving the normalized name. A
// stale version tag yields model.ErrConcurrency.
func (s *RoleStore) Update(ctx context.Context, role *model.Role) error {
	if role == nil {
		return fmt.Errorf("%w: role is nil", model.ErrInvalid)
	}
	role.NormalizedName = model.Normalize(role.Name)

	s.repo.Update(role)
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to update role", "role_id", role.ID, "error", err)
		return fmt.Errorf("failed to update role: %w", err)
	}
	return nil
}

// Delete removes the role document, its claims and every membership edge
// pointing at it, best-effort with accumulated errors.
func (s *RoleStore) Delete(ctx context.Context, role *model.Role) error {
	if role == nil {
		return fmt.Errorf("%w: role is nil", model.ErrInvalid)
	}

	var errs []error
	roleID := azcosmos.QueryParameter{Name: "@roleId", Value: role.ID}

	claims, err := cosmos.Query[model.RoleClaim](ctx, s.repo,
		"SELECT * FROM c WHERE c.RoleId = @roleId", roleID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list role claims: %w", err))
	} else if len(claims) > 0 {
		for _, claim := range claims {
			s.repo.Remove(claim)
		}
		if err := s.repo.SaveChanges(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete role claims: %w", err))
		}
	}

	edges, err := cosmos.Query[model.UserRole](ctx, s.repo,
		"SELECT * FROM c WHERE c.RoleId = @roleId", roleID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list role memberships: %w", err))
	} else if len(edges) > 0 {
		for _, edge := range edges {
			s.repo.Remove(edge)
		}
		if err := s.repo.SaveChanges(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete role memberships: %w", err))
		}
	}

	s.repo.Remove(role)
	if err := s.repo.SaveChanges(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete role: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("failed to delete role", "role_id", role.ID, "error", err)
		return err
	}
	return nil
}

// FindByID resolves a role by id with a single-partition point read.
func (s *RoleStore) FindByID(ctx context.Context, id string) (*model.Role, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is empty", model.ErrInvalid)
	}
	return cosmos.GetByID[model.Role](ctx, s.repo, id)
}

// FindByName resolves a role by normalized name. The argument must already
// be normalized; the store does not re-normalize on read.
func (s *RoleStore) FindByName(ctx context.Context, normalizedName string) (*model.Role, error) {
	if normalizedName == "" {
		return nil, fmt.Errorf("%w: name is empty", model.ErrInvalid)
	}
	return cosmos.FindOne[model.Role](ctx, s.repo,
		"SELECT * FROM c WHERE c.NormalizedName = @name",
		azcosmos.QueryParameter{Name: "@name", Value: normalizedName})
}

// AddClaim records a claim for the role.
func (s *RoleStore) AddClaim(ctx context.Context, role *model.Role, claim model.Claim) error {
	if role == nil {
		return fmt.Errorf("%w: role is nil", model.ErrInvalid)
	}
	s.repo.Add(model.NewRoleClaim(role.ID, claim))
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to add role claim", "role_id", role.ID, "error", err)
		return fmt.Errorf("failed to add role claim: %w", err)
	}
	return nil
}

// RemoveClaim deletes every stored claim matching the given type and
// value.
func (s *RoleStore) RemoveClaim(ctx context.Context, role *model.Role, claim model.Claim) error {
	if role == nil {
		return fmt.Errorf("%w: role is nil", model.ErrInvalid)
	}
	matches, err := cosmos.Query[model.RoleClaim](ctx, s.repo,
		"SELECT * FROM c WHERE c.RoleId = @roleId AND c.ClaimType = @type AND c.ClaimValue = @value",
		azcosmos.QueryParameter{Name: "@roleId", Value: role.ID},
		azcosmos.QueryParameter{Name: "@type", Value: claim.Type},
		azcosmos.QueryParameter{Name: "@value", Value: claim.Value})
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}
	for _, match := range matches {
		s.repo.Remove(match)
	}
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to remove role claim", "role_id", role.ID, "error", err)
		return fmt.Errorf("failed to remove role claim: %w", err)
	}
	return nil
}

// GetClaims returns all claims recorded for the role.
func (s *RoleStore) GetClaims(ctx context.Context, role *model.Role) ([]model.Claim, error) {
	if role == nil {
		return nil, fmt.Errorf("%w: role is nil", model.ErrInvalid)
	}
	stored, err := cosmos.Query[model.RoleClaim](ctx, s.repo,
		"SELECT * FROM c WHERE c.RoleId = @roleId",
		azcosmos.QueryParameter{Name: "@roleId", Value: role.ID})
	if err != nil {
		return nil, err
	}
	claims := make([]model.Claim, 0, len(stored))
	for _, c := range stored {
		claims = append(claims, c.Claim())
	}
	return claims, nil
}
