package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/google/uuid"

	"github.com/meridianlabs/cosmos-identity/cosmos"
)

// MemDatabase is an in-memory cosmos.Database for unit tests. It stores
// raw documents per container and evaluates the store layer's query shapes
// (equality conditions and IS_DEFINED, joined by AND).
type MemDatabase struct {
	mu         sync.Mutex
	containers map[string]*MemContainer
}

var _ cosmos.Database = (*MemDatabase)(nil)

func NewMemDatabase() *MemDatabase {
	return &MemDatabase{containers: make(map[string]*MemContainer)}
}

func (d *MemDatabase) Container(name string) (cosmos.ItemContainer, error) {
	return d.MemContainer(name), nil
}

// MemContainer returns the named container, creating it on first use.
func (d *MemDatabase) MemContainer(name string) *MemContainer {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[name]
	if !ok {
		c = &MemContainer{items: make(map[string]memItem)}
		d.containers[name] = c
	}
	return c
}

type memItem struct {
	pk   azcosmos.PartitionKey
	body []byte
	etag azcore.ETag
}

// MemContainer is an in-memory cosmos.ItemContainer.
type MemContainer struct {
	mu    sync.Mutex
	items map[string]memItem
}

var _ cosmos.ItemContainer = (*MemContainer)(nil)

// Len reports the number of stored documents.
func (c *MemContainer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// RawBody returns the stored document body for assertions on the wire
// form, or nil if absent.
func (c *MemContainer) RawBody(id string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return nil
	}
	return item.body
}

func (c *MemContainer) ReadItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[itemID]
	if !ok || !reflect.DeepEqual(item.pk, partitionKey) {
		return azcosmos.ItemResponse{}, ResponseError(http.StatusNotFound)
	}
	body, err := withETag(item.body, item.etag)
	if err != nil {
		return azcosmos.ItemResponse{}, err
	}
	return itemResponse(body, item.etag), nil
}

func (c *MemContainer) CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	id, err := documentID(item)
	if err != nil {
		return azcosmos.ItemResponse{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; ok {
		return azcosmos.ItemResponse{}, ResponseError(http.StatusConflict)
	}
	etag := azcore.ETag(uuid.NewString())
	c.items[id] = memItem{pk: partitionKey, body: append([]byte(nil), item...), etag: etag}
	return itemResponse(nil, etag), nil
}

func (c *MemContainer) ReplaceItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.items[itemID]
	if !ok || !reflect.DeepEqual(existing.pk, partitionKey) {
		return azcosmos.ItemResponse{}, ResponseError(http.StatusNotFound)
	}
	if o != nil && o.IfMatchEtag != nil && *o.IfMatchEtag != existing.etag {
		return azcosmos.ItemResponse{}, ResponseError(http.StatusPreconditionFailed)
	}
	etag := azcore.ETag(uuid.NewString())
	c.items[itemID] = memItem{pk: partitionKey, body: append([]byte(nil), item...), etag: etag}
	return itemResponse(nil, etag), nil
}

func (c *MemContainer) DeleteItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.items[itemID]
	if !ok || !reflect.DeepEqual(existing.pk, partitionKey) {
		return azcosmos.ItemResponse{}, ResponseError(http.StatusNotFound)
	}
	delete(c.items, itemID)
	return azcosmos.ItemResponse{}, nil
}

func (c *MemContainer) NewQueryItemsPager(query string, partitionKey azcosmos.PartitionKey, o *azcosmos.QueryOptions) *runtime.Pager[azcosmos.QueryItemsResponse] {
	var params []azcosmos.QueryParameter
	if o != nil {
		params = o.QueryParameters
	}
	return runtime.NewPager(runtime.PagingHandler[azcosmos.QueryItemsResponse]{
		More: func(azcosmos.QueryItemsResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *azcosmos.QueryItemsResponse) (azcosmos.QueryItemsResponse, error) {
			items, err := c.evaluate(query, params, partitionKey)
			if err != nil {
				return azcosmos.QueryItemsResponse{}, err
			}
			return azcosmos.QueryItemsResponse{Items: items}, nil
		},
	})
}

func (c *MemContainer) evaluate(query string, params []azcosmos.QueryParameter, partitionKey azcosmos.PartitionKey) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	crossPartition := reflect.DeepEqual(partitionKey, azcosmos.PartitionKey{})
	var out [][]byte
	for _, item := range c.items {
		if !crossPartition && !reflect.DeepEqual(item.pk, partitionKey) {
			continue
		}
		body, err := withETag(item.body, item.etag)
		if err != nil {
			return nil, err
		}
		match, err := matchQuery(query, params, body)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, body)
		}
	}
	return out, nil
}

func matchQuery(query string, params []azcosmos.QueryParameter, body []byte) (bool, error) {
	_, cond, ok := strings.Cut(query, " WHERE ")
	if !ok {
		return true, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, err
	}
	for _, clause := range strings.Split(cond, " AND ") {
		clause = strings.TrimSpace(clause)
		if name, ok := strings.CutPrefix(clause, "IS_DEFINED(c."); ok {
			name = strings.TrimSuffix(name, ")")
			if _, defined := doc[name]; !defined {
				return false, nil
			}
			continue
		}
		field, param, ok := strings.Cut(clause, " = ")
		if !ok {
			return false, fmt.Errorf("unsupported query clause %q", clause)
		}
		field = strings.TrimPrefix(strings.TrimSpace(field), "c.")
		value, err := paramValue(params, strings.TrimSpace(param))
		if err != nil {
			return false, err
		}
		if !jsonEqual(doc[field], value) {
			return false, nil
		}
	}
	return true, nil
}

func paramValue(params []azcosmos.QueryParameter, name string) (any, error) {
	for _, p := range params {
		if p.Name == name {
			return p.Value, nil
		}
	}
	return nil, fmt.Errorf("query parameter %q not supplied", name)
}

func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

func documentID(body []byte) (string, error) {
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}
	if doc.ID == "" {
		return "", fmt.Errorf("document has no id property")
	}
	return doc.ID, nil
}

func withETag(body []byte, etag azcore.ETag) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	doc["_etag"] = string(etag)
	return json.Marshal(doc)
}

func itemResponse(body []byte, etag azcore.ETag) azcosmos.ItemResponse {
	return azcosmos.ItemResponse{
		Response: azcosmos.Response{ETag: etag},
		Value:    body,
	}
}

// ResponseError builds the provider error shape for the given HTTP status.
func ResponseError(status int) error {
	req, _ := http.NewRequest(http.MethodGet, "https://localhost:8081/", nil)
	return &azcore.ResponseError{
		StatusCode: status,
		ErrorCode:  http.StatusText(status),
		RawResponse: &http.Response{
			StatusCode: status,
			Request:    req,
			Header:     http.Header{},
			Body:       http.NoBody,
		},
	}
}
