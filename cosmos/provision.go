package cosmos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/meridianlabs/cosmos-identity/model"
)

// ContainerDefinition names a container and the path of the field it is
// partitioned on.
type ContainerDefinition struct {
	Name             string
	PartitionKeyPath string
}

// RequiredContainers is the fixed set of containers the identity store
// needs. Names and partition-key paths are interop-mandated and must match
// existing deployments exactly.
var RequiredContainers = []ContainerDefinition{
	{Name: ContainerIdentity, PartitionKeyPath: "/Id"},
	{Name: ContainerLogins, PartitionKeyPath: "/ProviderKey"},
	{Name: ContainerUserRoles, PartitionKeyPath: "/UserId"},
	{Name: ContainerRoles, PartitionKeyPath: "/Id"},
	{Name: ContainerTokens, PartitionKeyPath: "/UserId"},
	{Name: ContainerDeviceFlowCodes, PartitionKeyPath: "/SessionId"},
	{Name: ContainerPersistedGrants, PartitionKeyPath: "/Key"},
}

// ContainerStatus reports the outcome of one create-if-absent call.
type ContainerStatus struct {
	ContainerDefinition
	Created bool
}

// manager is the narrow management surface the provisioner drives,
// implemented against the SDK by sdkManager.
type manager interface {
	createDatabase(ctx context.Context, name string) error
	deleteDatabase(ctx context.Context, name string) error
	createContainer(ctx context.Context, name, partitionKeyPath string) error
	deleteContainer(ctx context.Context, name string) error
}

type sdkManager struct {
	client   *azcosmos.Client
	database string
}

func (m *sdkManager) createDatabase(ctx context.Context, name string) error {
	_, err := m.client.CreateDatabase(ctx, azcosmos.DatabaseProperties{ID: name}, nil)
	return translateError(err)
}

func (m *sdkManager) deleteDatabase(ctx context.Context, name string) error {
	db, err := m.client.NewDatabase(name)
	if err != nil {
		return err
	}
	_, err = db.Delete(ctx, nil)
	return translateError(err)
}

func (m *sdkManager) createContainer(ctx context.Context, name, partitionKeyPath string) error {
	db, err := m.client.NewDatabase(m.database)
	if err != nil {
		return err
	}
	_, err = db.CreateContainer(ctx, azcosmos.ContainerProperties{
		ID: name,
		PartitionKeyDefinition: azcosmos.PartitionKeyDefinition{
			Paths: []string{partitionKeyPath},
		},
	}, nil)
	return translateError(err)
}

func (m *sdkManager) deleteContainer(ctx context.Context, name string) error {
	db, err := m.client.NewDatabase(m.database)
	if err != nil {
		return err
	}
	container, err := db.NewContainer(name)
	if err != nil {
		return err
	}
	_, err = container.Delete(ctx, nil)
	return translateError(err)
}

// Provisioner performs idempotent setup and teardown of the logical
// database and its containers. It is meant for deployment time, not the
// request path: failures other than "already exists"/"not found" are
// returned to the caller as fatal.
type Provisioner struct {
	m        manager
	database string
	logger   *slog.Logger
}

// NewProvisioner creates a provisioner for the given database using the
// raw SDK client (management operations sit above any single database).
func NewProvisioner(client *azcosmos.Client, database string, logger *slog.Logger) *Provisioner {
	return newProvisioner(&sdkManager{client: client, database: database}, database, logger)
}

func newProvisioner(m manager, database string, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{m: m, database: database, logger: logger}
}

// CreateDatabase creates the logical database if it does not exist.
// Returns true if it was created, false if it already existed.
func (p *Provisioner) CreateDatabase(ctx context.Context) (bool, error) {
	err := p.m.createDatabase(ctx, p.database)
	switch {
	case err == nil:
		p.logger.Info("database created", "database", p.database)
		return true, nil
	case errors.Is(err, model.ErrConflict):
		p.logger.Info("database already exists", "database", p.database)
		return false, nil
	default:
		return false, fmt.Errorf("failed to create database %q: %w", p.database, err)
	}
}

// CreateRequiredContainers creates every container in RequiredContainers
// if absent and reports each outcome. Partition-key paths are validated
// before any call is issued.
func (p *Provisioner) CreateRequiredContainers(ctx context.Context) ([]ContainerStatus, error) {
	return p.CreateContainers(ctx, RequiredContainers)
}

// CreateContainers creates the given containers if absent.
func (p *Provisioner) CreateContainers(ctx context.Context, defs []ContainerDefinition) ([]ContainerStatus, error) {
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: container name is empty", model.ErrInvalid)
		}
		if !strings.HasPrefix(def.PartitionKeyPath, "/") {
			return nil, fmt.Errorf("%w: partition key path %q for container %q must start with '/'",
				model.ErrInvalid, def.PartitionKeyPath, def.Name)
		}
	}

	statuses := make([]ContainerStatus, 0, len(defs))
	for _, def := range defs {
		err := p.m.createContainer(ctx, def.Name, def.PartitionKeyPath)
		switch {
		case err == nil:
			p.logger.Info("container created", "container", def.Name, "partition_key", def.PartitionKeyPath)
			statuses = append(statuses, ContainerStatus{ContainerDefinition: def, Created: true})
		case errors.Is(err, model.ErrConflict):
			p.logger.Info("container already exists", "container", def.Name)
			statuses = append(statuses, ContainerStatus{ContainerDefinition: def, Created: false})
		default:
			return statuses, fmt.Errorf("failed to create container %q: %w", def.Name, err)
		}
	}
	return statuses, nil
}

// DeleteDatabaseIfExists deletes the database, treating "not found" as
// success. Returns true if a database was actually deleted.
func (p *Provisioner) DeleteDatabaseIfExists(ctx context.Context) (bool, error) {
	err := p.m.deleteDatabase(ctx, p.database)
	switch {
	case err == nil:
		p.logger.Info("database deleted", "database", p.database)
		return true, nil
	case errors.Is(err, model.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to delete database %q: %w", p.database, err)
	}
}

// DeleteContainerIfExists deletes one container, treating "not found" as
// success. Returns true if a container was actually deleted.
func (p *Provisioner) DeleteContainerIfExists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("%w: container name is empty", model.ErrInvalid)
	}
	err := p.m.deleteContainer(ctx, name)
	switch {
	case err == nil:
		p.logger.Info("container deleted", "container", name)
		return true, nil
	case errors.Is(err, model.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to delete container %q: %w", name, err)
	}
}
