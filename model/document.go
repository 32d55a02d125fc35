package model

import (
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// Document is implemented by every entity persisted as a Cosmos DB item.
// DocumentID is the value of the item's "id" system property and
// PartitionKeyValue is the value of the field the container is
// partitioned on (a string or an integer, depending on the entity).
type Document interface {
	DocumentID() string
	PartitionKeyValue() any
}

// Versioned is implemented by entities guarded by optimistic concurrency.
// CurrentETag returns the version tag captured when the entity was read,
// empty if the entity never round-tripped through the store.
type Versioned interface {
	CurrentETag() azcore.ETag
	SetETag(etag azcore.ETag)
	RefreshConcurrencyStamp()
}

// Normalize produces the case-folded projection stored next to display
// values such as UserName and Email. Every write path must use this one
// helper so create and update can never normalize differently.
func Normalize(s string) string {
	return strings.ToUpper(s)
}
