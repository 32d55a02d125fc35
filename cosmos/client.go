// Package cosmos implements the data-access layer over Azure Cosmos DB:
// a connection wrapper, the entity-to-container mapping, a staging
// repository and the container provisioning utility.
package cosmos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/meridianlabs/cosmos-identity/model"
)

// ItemContainer is the subset of container operations the repository needs.
// It is satisfied by *azcosmos.ContainerClient.
type ItemContainer interface {
	ReadItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	ReplaceItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	DeleteItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	NewQueryItemsPager(query string, partitionKey azcosmos.PartitionKey, o *azcosmos.QueryOptions) *runtime.Pager[azcosmos.QueryItemsResponse]
}

// Ensure the SDK container satisfies the repository's contract.
var _ ItemContainer = (*azcosmos.ContainerClient)(nil)

// Database resolves named containers within one logical database.
type Database interface {
	Container(name string) (ItemContainer, error)
}

// Client wraps an azcosmos client scoped to one logical database.
type Client struct {
	raw  *azcosmos.Client
	db   *azcosmos.DatabaseClient
	name string

	mu         sync.Mutex
	containers map[string]ItemContainer
}

var _ Database = (*Client)(nil)

// Connect creates a Client for the given account endpoint, account key and
// database name. The database does not need to exist yet; provisioning is
// a separate concern (see Provisioner).
func Connect(endpoint, key, database string) (*Client, error) {
	cred, err := azcosmos.NewKeyCredential(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	raw, err := azcosmos.NewClientWithKey(endpoint, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cosmos client: %w", err)
	}
	return NewClient(raw, database)
}

// NewClient wraps an existing azcosmos client, for callers that configure
// their own credentials or client options.
func NewClient(raw *azcosmos.Client, database string) (*Client, error) {
	if database == "" {
		return nil, fmt.Errorf("database name is required")
	}
	db, err := raw.NewDatabase(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", database, err)
	}
	return &Client{
		raw:        raw,
		db:         db,
		name:       database,
		containers: make(map[string]ItemContainer),
	}, nil
}

// DatabaseName returns the logical database this client is scoped to.
func (c *Client) DatabaseName() string { return c.name }

// Container resolves a container client by name. Handles are cached; the
// SDK performs no I/O until the first item operation.
func (c *Client) Container(name string) (ItemContainer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.containers[name]; ok {
		return cc, nil
	}
	cc, err := c.db.NewContainer(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open container %q: %w", name, err)
	}
	c.containers[name] = cc
	return cc, nil
}

// translateError maps provider response errors to the model sentinels.
// Anything the taxonomy does not cover (throttling, authorization,
// transport faults) passes through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return model.ErrNotFound
		case http.StatusConflict:
			return model.ErrConflict
		case http.StatusPreconditionFailed:
			return model.ErrConcurrency
		}
	}
	return err
}
