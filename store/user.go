// Package store implements the membership store contracts over the cosmos
// repository. Each method is a self-contained unit of work: it builds a
// predicate or stages mutations, saves, and maps provider failures to the
// model error taxonomy. Mutation methods never leak raw SDK errors.
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

// Ensure UserStore implements the model.UserStore interface.
var _ model.UserStore = (*UserStore)(nil)

// UserStore persists users and their dependent claims, logins, role
// memberships and tokens.
type UserStore struct {
	repo   *cosmos.Repository
	logger *slog.Logger
}

// NewUserStore creates a user store over the given repository.
func NewUserStore(repo *cosmos.Repository, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{repo: repo, logger: logger}
}

// Create inserts a new user. UserName and Email are required; both
// normalized projections are re-derived before the insert so lookups by
// normalized value are always well-defined.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	if user.UserName == "" {
		return fmt.Errorf("%w: user name is required", model.ErrInvalid)
	}
	if user.Email == "" {
		return fmt.Errorf("%w: email is required", model.ErrInvalid)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.NormalizedUserName = model.Normalize(user.UserName)
	user.NormalizedEmail = model.Normalize(user.Email)

	s.repo.Add(user)
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to create user", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update replaces the user document. Both normalized projections are
// re-derived from the display values so the create and update paths can
// never normalize differently. The write carries the version tag captured
// at read time; a stale tag yields model.ErrConcurrency.
func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	user.NormalizedUserName = model.Normalize(user.UserName)
	user.NormalizedEmail = model.Normalize(user.Email)

	s.repo.Update(user)
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to update user", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// Delete removes the user document and its dependent claims, logins, role
// memberships and tokens. There is no multi-document transaction: each
// dependent class is deleted best-effort and failures are accumulated, so
// a partial failure reports every orphaned class at once.
func (s *UserStore) Delete(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}

	var errs []error
	userID := azcosmos.QueryParameter{Name: "@userId", Value: user.ID}

	claims, err := cosmos.Query[model.UserClaim](ctx, s.repo,
		"SELECT * FROM c WHERE c.UserId = @userId", userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list claims: %w", err))
	} else {
		errs = append(errs, s.removeAll(ctx, toDocuments(claims), "claims"))
	}

	logins, err := cosmos.Query[model.UserLogin](ctx, s.repo,
		"SELECT * FROM c WHERE c.UserId = @userId", userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list logins: %w", err))
	} else {
		errs = append(errs, s.removeAll(ctx, toDocuments(logins), "logins"))
	}

	memberships, err := cosmos.QueryPartition[model.UserRole](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID),
		"SELECT * FROM c WHERE c.UserId = @userId", userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list role memberships: %w", err))
	} else {
		errs = append(errs, s.removeAll(ctx, toDocuments(memberships), "role memberships"))
	}

	tokens, err := cosmos.QueryPartition[model.UserToken](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID),
		"SELECT * FROM c WHERE c.UserId = @userId", userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list tokens: %w", err))
	} else {
		errs = append(errs, s.removeAll(ctx, toDocuments(tokens), "tokens"))
	}

	s.repo.Remove(user)
	if err := s.repo.SaveChanges(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete user: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("failed to delete user", "user_id", user.ID, "error", err)
		return err
	}
	return nil
}

func (s *UserStore) removeAll(ctx context.Context, docs []model.Document, kind string) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		s.repo.Remove(doc)
	}
	if err := s.repo.SaveChanges(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return nil
}

func toDocuments[T any, P interface {
	*T
	model.Document
}](items []*T) []model.Document {
	docs := make([]model.Document, 0, len(items))
	for _, item := range items {
		docs = append(docs, P(item))
	}
	return docs
}

// FindByID resolves a user by id with a single-partition point read.
func (s *UserStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is empty", model.ErrInvalid)
	}
	return cosmos.GetByID[model.User](ctx, s.repo, id)
}

// FindByName resolves a user by normalized user name. The argument must
// already be normalized; the store does not re-normalize on read.
func (s *UserStore) FindByName(ctx context.Context, normalizedName string) (*model.User, error) {
	if normalizedName == "" {
		return nil, fmt.Errorf("%w: name is empty", model.ErrInvalid)
	}
	return cosmos.FindOne[model.User](ctx, s.repo,
		"SELECT * FROM c WHERE c.NormalizedUserName = @name",
		azcosmos.QueryParameter{Name: "@name", Value: normalizedName})
}

// FindByEmail resolves a user by normalized email. The argument must
// already be normalized; the store does not re-normalize on read.
func (s *UserStore) FindByEmail(ctx context.Context, normalizedEmail string) (*model.User, error) {
	if normalizedEmail == "" {
		return nil, fmt.Errorf("%w: email is empty", model.ErrInvalid)
	}
	return cosmos.FindOne[model.User](ctx, s.repo,
		"SELECT * FROM c WHERE c.NormalizedEmail = @email",
		azcosmos.QueryParameter{Name: "@email", Value: normalizedEmail})
}

// AddLogin records an external login for the user.
func (s *UserStore) AddLogin(ctx context.Context, user *model.User, login model.UserLoginInfo) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	if login.LoginProvider == "" || login.ProviderKey == "" {
		return fmt.Errorf("%w: login provider and provider key are required", model.ErrInvalid)
	}
	s.repo.Add(model.NewUserLogin(user.ID, login))
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to add login", "user_id", user.ID, "provider", login.LoginProvider, "error", err)
		return fmt.Errorf("failed to add login: %w", err)
	}
	return nil
}

// RemoveLogin deletes the matching login if present; removing an absent
// login is a no-op.
func (s *UserStore) RemoveLogin(ctx context.Context, user *model.User, loginProvider, providerKey string) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	login := &model.UserLogin{LoginProvider: loginProvider, ProviderKey: providerKey}
	existing, err := cosmos.ReadItem[model.UserLogin](ctx, s.repo,
		azcosmos.NewPartitionKeyString(providerKey), login.DocumentID())
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find login: %w", err)
	}
	s.repo.Remove(existing)
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to remove login", "user_id", user.ID, "provider", loginProvider, "error", err)
		return fmt.Errorf("failed to remove login: %w", err)
	}
	return nil
}

// GetLogins returns all external logins recorded for the user.
func (s *UserStore) GetLogins(ctx context.Context, user *model.User) ([]model.UserLoginInfo, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	logins, err := cosmos.Query[model.UserLogin](ctx, s.repo,
		"SELECT * FROM c WHERE c.UserId = @userId",
		azcosmos.QueryParameter{Name: "@userId", Value: user.ID})
	if err != nil {
		return nil, err
	}
	infos := make([]model.UserLoginInfo, 0, len(logins))
	for _, l := range logins {
		infos = append(infos, l.Info())
	}
	return infos, nil
}

// FindByLogin resolves the user owning the given external login.
func (s *UserStore) FindByLogin(ctx context.Context, loginProvider, providerKey string) (*model.User, error) {
	if loginProvider == "" || providerKey == "" {
		return nil, fmt.Errorf("%w: login provider and provider key are required", model.ErrInvalid)
	}
	login := &model.UserLogin{LoginProvider: loginProvider, ProviderKey: providerKey}
	existing, err := cosmos.ReadItem[model.UserLogin](ctx, s.repo,
		azcosmos.NewPartitionKeyString(providerKey), login.DocumentID())
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, existing.UserID)
}

// AddToRole adds the user to the role with the given normalized name. The
// role must exist.
func (s *UserStore) AddToRole(ctx context.Context, user *model.User, normalizedRoleName string) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	role, err := s.resolveRole(ctx, normalizedRoleName)
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%w: role %q does not exist", model.ErrInvalid, normalizedRoleName)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve role: %w", err)
	}
	s.repo.Add(model.NewUserRole(user.ID, role.ID))
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to add user to role", "user_id", user.ID, "role", normalizedRoleName, "error", err)
		return fmt.Errorf("failed to add user to role: %w", err)
	}
	return nil
}

// RemoveFromRole deletes the membership edge if present; removing a
// missing membership is a no-op.
func (s *UserStore) RemoveFromRole(ctx context.Context, user *model.User, normalizedRoleName string) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	role, err := s.resolveRole(ctx, normalizedRoleName)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve role: %w", err)
	}
	edge := model.NewUserRole(user.ID, role.ID)
	existing, err := cosmos.ReadItem[model.UserRole](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID), edge.DocumentID())
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find role membership: %w", err)
	}
	s.repo.Remove(existing)
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to remove user from role", "user_id", user.ID, "role", normalizedRoleName, "error", err)
		return fmt.Errorf("failed to remove user from role: %w", err)
	}
	return nil
}

// GetRoles returns the display names of the roles the user belongs to.
func (s *UserStore) GetRoles(ctx context.Context, user *model.User) ([]string, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	edges, err := cosmos.QueryPartition[model.UserRole](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID),
		"SELECT * FROM c WHERE c.UserId = @userId",
		azcosmos.QueryParameter{Name: "@userId", Value: user.ID})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(edges))
	for _, edge := range edges {
		role, err := cosmos.GetByID[model.Role](ctx, s.repo, edge.RoleID)
		if errors.Is(err, model.ErrNotFound) {
			// Dangling edge, its role was deleted out from under it.
			continue
		}
		if err != nil {
			return nil, err
		}
		names = append(names, role.Name)
	}
	return names, nil
}

// IsInRole reports whether the user belongs to the role with the given
// normalized name.
func (s *UserStore) IsInRole(ctx context.Context, user *model.User, normalizedRoleName string) (bool, error) {
	if user == nil {
		return false, fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	role, err := s.resolveRole(ctx, normalizedRoleName)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to resolve role: %w", err)
	}
	edge := model.NewUserRole(user.ID, role.ID)
	_, err = cosmos.ReadItem[model.UserRole](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID), edge.DocumentID())
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetUsersInRole returns every user belonging to the role with the given
// normalized name. The role must exist.
func (s *UserStore) GetUsersInRole(ctx context.Context, normalizedRoleName string) ([]*model.User, error) {
	role, err := s.resolveRole(ctx, normalizedRoleName)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("%w: role %q does not exist", model.ErrInvalid, normalizedRoleName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve role: %w", err)
	}
	edges, err := cosmos.Query[model.UserRole](ctx, s.repo,
		"SELECT * FROM c WHERE c.RoleId = @roleId",
		azcosmos.QueryParameter{Name: "@roleId", Value: role.ID})
	if err != nil {
		return nil, err
	}
	users := make([]*model.User, 0, len(edges))
	for _, edge := range edges {
		user, err := cosmos.GetByID[model.User](ctx, s.repo, edge.UserID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// AddClaims records the given claims for the user as one batch.
func (s *UserStore) AddClaims(ctx context.Context, user *model.User, claims []model.Claim) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	if len(claims) == 0 {
		return nil
	}
	for _, claim := range claims {
		s.repo.Add(model.NewUserClaim(user.ID, claim))
	}
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to add claims", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to add claims: %w", err)
	}
	return nil
}

// RemoveClaims deletes every stored claim matching one of the given
// type/value pairs.
func (s *UserStore) RemoveClaims(ctx context.Context, user *model.User, claims []model.Claim) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	for _, claim := range claims {
		matches, err := s.findClaims(ctx, user.ID, claim)
		if err != nil {
			return err
		}
		for _, match := range matches {
			s.repo.Remove(match)
		}
	}
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to remove claims", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to remove claims: %w", err)
	}
	return nil
}

// ReplaceClaim rewrites every stored claim matching claim with newClaim's
// type and value, in place, so the claim count is unchanged.
func (s *UserStore) ReplaceClaim(ctx context.Context, user *model.User, claim, newClaim model.Claim) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	matches, err := s.findClaims(ctx, user.ID, claim)
	if err != nil {
		return err
	}
	for _, match := range matches {
		match.ClaimType = newClaim.Type
		match.ClaimValue = newClaim.Value
		s.repo.Update(match)
	}
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to replace claim", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to replace claim: %w", err)
	}
	return nil
}

// GetClaims returns all claims recorded for the user.
func (s *UserStore) GetClaims(ctx context.Context, user *model.User) ([]model.Claim, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	stored, err := cosmos.Query[model.UserClaim](ctx, s.repo,
		"SELECT * FROM c WHERE c.UserId = @userId",
		azcosmos.QueryParameter{Name: "@userId", Value: user.ID})
	if err != nil {
		return nil, err
	}
	claims := make([]model.Claim, 0, len(stored))
	for _, c := range stored {
		claims = append(claims, c.Claim())
	}
	return claims, nil
}

// GetUsersForClaim returns every user holding a claim with the given type
// and value.
func (s *UserStore) GetUsersForClaim(ctx context.Context, claim model.Claim) ([]*model.User, error) {
	stored, err := cosmos.Query[model.UserClaim](ctx, s.repo,
		"SELECT * FROM c WHERE c.ClaimType = @type AND c.ClaimValue = @value AND IS_DEFINED(c.UserId)",
		azcosmos.QueryParameter{Name: "@type", Value: claim.Type},
		azcosmos.QueryParameter{Name: "@value", Value: claim.Value})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(stored))
	users := make([]*model.User, 0, len(stored))
	for _, c := range stored {
		if seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		user, err := cosmos.GetByID[model.User](ctx, s.repo, c.UserID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

// SetToken stores a token value for (loginProvider, name), replacing any
// existing value.
func (s *UserStore) SetToken(ctx context.Context, user *model.User, loginProvider, name, value string) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	if loginProvider == "" || name == "" {
		return fmt.Errorf("%w: login provider and token name are required", model.ErrInvalid)
	}
	token := model.NewUserToken(user.ID, loginProvider, name, value)
	existing, err := cosmos.ReadItem[model.UserToken](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID), token.DocumentID())
	switch {
	case errors.Is(err, model.ErrNotFound):
		s.repo.Add(token)
	case err != nil:
		return fmt.Errorf("failed to find token: %w", err)
	default:
		existing.Value = value
		s.repo.Update(existing)
	}
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to set token", "user_id", user.ID, "provider", loginProvider, "error", err)
		return fmt.Errorf("failed to set token: %w", err)
	}
	return nil
}

// RemoveToken deletes the token if present; removing an absent token is a
// no-op.
func (s *UserStore) RemoveToken(ctx context.Context, user *model.User, loginProvider, name string) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	token := model.NewUserToken(user.ID, loginProvider, name, "")
	existing, err := cosmos.ReadItem[model.UserToken](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID), token.DocumentID())
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find token: %w", err)
	}
	s.repo.Remove(existing)
	if err := s.repo.SaveChanges(ctx); err != nil {
		s.logger.Error("failed to remove token", "user_id", user.ID, "provider", loginProvider, "error", err)
		return fmt.Errorf("failed to remove token: %w", err)
	}
	return nil
}

// GetToken returns the stored token value, or model.ErrNotFound if no such
// token exists.
func (s *UserStore) GetToken(ctx context.Context, user *model.User, loginProvider, name string) (string, error) {
	if user == nil {
		return "", fmt.Errorf("%w: user is nil", model.ErrInvalid)
	}
	token := model.NewUserToken(user.ID, loginProvider, name, "")
	existing, err := cosmos.ReadItem[model.UserToken](ctx, s.repo,
		azcosmos.NewPartitionKeyString(user.ID), token.DocumentID())
	if err != nil {
		return "", err
	}
	return existing.Value, nil
}

func (s *UserStore) resolveRole(ctx context.Context, normalizedRoleName string) (*model.Role, error) {
	if normalizedRoleName == "" {
		return nil, fmt.Errorf("%w: role name is empty", model.ErrInvalid)
	}
	return cosmos.FindOne[model.Role](ctx, s.repo,
		"SELECT * FROM c WHERE c.NormalizedName = @name",
		azcosmos.QueryParameter{Name: "@name", Value: normalizedRoleName})
}

func (s *UserStore) findClaims(ctx context.Context, userID string, claim model.Claim) ([]*model.UserClaim, error) {
	return cosmos.Query[model.UserClaim](ctx, s.repo,
		"SELECT * FROM c WHERE c.UserId = @userId AND c.ClaimType = @type AND c.ClaimValue = @value",
		azcosmos.QueryParameter{Name: "@userId", Value: userID},
		azcosmos.QueryParameter{Name: "@type", Value: claim.Type},
		azcosmos.QueryParameter{Name: "@value", Value: claim.Value})
}
