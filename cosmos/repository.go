package cosmos

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/meridianlabs/cosmos-identity/model"
)

type opKind int

const (
	opAdd opKind = iota
	opUpdate
	opDelete
)

type stagedOp struct {
	kind opKind
	doc  model.Document
}

// Repository is the single point of access to the persistence layer,
// generic over entity type. Add, Update and Remove only stage mutations;
// no I/O happens until SaveChanges flushes them in staging order, so one
// store operation can batch several logical changes into one commit point.
//
// A Repository may be shared across store instances within one logical
// scope. SaveChanges flushes everything staged on the instance, not just
// the caller's own changes.
type Repository struct {
	db    Database
	model *Model

	mu     sync.Mutex
	staged []stagedOp
}

// NewRepository creates a repository over the given database using the
// given entity model.
func NewRepository(db Database, m *Model) *Repository {
	return &Repository{db: db, model: m}
}

// Add stages an insert.
func (r *Repository) Add(doc model.Document) {
	r.stage(opAdd, doc)
}

// Update stages a replace. If the entity is versioned and was loaded from
// the store, the flush carries its version tag as a precondition.
func (r *Repository) Update(doc model.Document) {
	r.stage(opUpdate, doc)
}

// Remove stages a delete.
func (r *Repository) Remove(doc model.Document) {
	r.stage(opDelete, doc)
}

func (r *Repository) stage(kind opKind, doc model.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staged = append(r.staged, stagedOp{kind: kind, doc: doc})
}

// Pending reports the number of staged, unflushed mutations.
func (r *Repository) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staged)
}

// SaveChanges flushes staged mutations in order, stopping at the first
// failure. Staged work is drained either way: a failed flush does not
// leave half-committed operations queued for a later save.
func (r *Repository) SaveChanges(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	ops := r.staged
	r.staged = nil
	r.mu.Unlock()

	for _, op := range ops {
		if err := r.flush(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) flush(ctx context.Context, op stagedOp) error {
	mapping, err := r.model.mappingFor(op.doc)
	if err != nil {
		return err
	}
	container, err := r.db.Container(mapping.Container)
	if err != nil {
		return err
	}
	pk, err := partitionKeyFor(op.doc)
	if err != nil {
		return err
	}

	switch op.kind {
	case opAdd:
		body, err := r.model.marshal(op.doc)
		if err != nil {
			return err
		}
		resp, err := container.CreateItem(ctx, pk, body, nil)
		if err != nil {
			return fmt.Errorf("failed to create item %q: %w", op.doc.DocumentID(), translateError(err))
		}
		if v, ok := op.doc.(model.Versioned); ok {
			v.SetETag(resp.ETag)
		}
	case opUpdate:
		opts := &azcosmos.ItemOptions{}
		if v, ok := op.doc.(model.Versioned); ok {
			v.RefreshConcurrencyStamp()
			if etag := v.CurrentETag(); etag != "" {
				opts.IfMatchEtag = &etag
			}
		}
		body, err := r.model.marshal(op.doc)
		if err != nil {
			return err
		}
		resp, err := container.ReplaceItem(ctx, pk, op.doc.DocumentID(), body, opts)
		if err != nil {
			return fmt.Errorf("failed to replace item %q: %w", op.doc.DocumentID(), translateError(err))
		}
		if v, ok := op.doc.(model.Versioned); ok {
			v.SetETag(resp.ETag)
		}
	case opDelete:
		if _, err := container.DeleteItem(ctx, pk, op.doc.DocumentID(), nil); err != nil {
			return fmt.Errorf("failed to delete item %q: %w", op.doc.DocumentID(), translateError(err))
		}
	}
	return nil
}

// GetByID performs a single-partition point read for entity types whose
// partition key is their own id (users, roles). Returns model.ErrNotFound
// if the document is absent.
func GetByID[T any](ctx context.Context, r *Repository, id string) (*T, error) {
	return ReadItem[T](ctx, r, azcosmos.NewPartitionKeyString(id), id)
}

// ReadItem performs a point read within an explicit partition.
func ReadItem[T any](ctx context.Context, r *Repository, pk azcosmos.PartitionKey, id string) (*T, error) {
	container, err := containerFor[T](r)
	if err != nil {
		return nil, err
	}
	resp, err := container.ReadItem(ctx, pk, id, nil)
	if err != nil {
		if err = translateError(err); errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read item %q: %w", id, err)
	}
	return decode[T](r.model, resp.Value)
}

// Query runs a cross-partition query over the entity's container.
func Query[T any](ctx context.Context, r *Repository, query string, params ...azcosmos.QueryParameter) ([]*T, error) {
	return queryItems[T](ctx, r, azcosmos.PartitionKey{}, query, params)
}

// QueryPartition runs a query scoped to one partition.
func QueryPartition[T any](ctx context.Context, r *Repository, pk azcosmos.PartitionKey, query string, params ...azcosmos.QueryParameter) ([]*T, error) {
	return queryItems[T](ctx, r, pk, query, params)
}

// FindOne runs a query expected to match at most one entity. Zero matches
// yield model.ErrNotFound; more than one yields model.ErrAmbiguous.
func FindOne[T any](ctx context.Context, r *Repository, query string, params ...azcosmos.QueryParameter) (*T, error) {
	items, err := queryItems[T](ctx, r, azcosmos.PartitionKey{}, query, params)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, model.ErrNotFound
	case 1:
		return items[0], nil
	default:
		return nil, model.ErrAmbiguous
	}
}

func queryItems[T any](ctx context.Context, r *Repository, pk azcosmos.PartitionKey, query string, params []azcosmos.QueryParameter) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	container, err := containerFor[T](r)
	if err != nil {
		return nil, err
	}
	var opts *azcosmos.QueryOptions
	if len(params) > 0 {
		opts = &azcosmos.QueryOptions{QueryParameters: params}
	}
	var items []*T
	pager := container.NewQueryItemsPager(query, pk, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to execute query: %w", translateError(err))
		}
		for _, raw := range page.Items {
			item, err := decode[T](r.model, raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func containerFor[T any](r *Repository) (ItemContainer, error) {
	var v T
	mapping, err := r.model.mappingFor(&v)
	if err != nil {
		return nil, err
	}
	return r.db.Container(mapping.Container)
}
