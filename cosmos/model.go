package cosmos

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/meridianlabs/cosmos-identity/model"
	"github.com/meridianlabs/cosmos-identity/protect"
)

// Container names and partition-key paths are fixed for interoperability
// with existing data and must not change.
const (
	ContainerIdentity        = "Identity"
	ContainerLogins          = "Identity_Logins"
	ContainerUserRoles       = "Identity_UserRoles"
	ContainerRoles           = "Identity_Roles"
	ContainerTokens          = "Identity_Tokens"
	ContainerDeviceFlowCodes = "Identity_DeviceFlowCodes"
	ContainerPersistedGrants = "Identity_PersistedGrant"
)

// Mapping binds one entity type to its container and partition key, plus
// the statically declared list of personal-data fields protected at rest.
type Mapping struct {
	Container        string
	PartitionKeyPath string
	Protected        []string
}

// Model is the registry of entity mappings, resolved once at construction.
type Model struct {
	protector protect.Protector
	mappings  map[reflect.Type]Mapping
}

// ModelOption customizes the default model.
type ModelOption func(*Model)

// WithProtectedFields routes the named top-level string fields of the given
// entity type through the protector. Field names are the JSON property
// names of the stored document.
func WithProtectedFields(entity model.Document, fields ...string) ModelOption {
	return func(m *Model) {
		t := structType(entity)
		mapping, ok := m.mappings[t]
		if !ok {
			return
		}
		mapping.Protected = append(mapping.Protected, fields...)
		m.mappings[t] = mapping
	}
}

// NewModel builds the mapping registry for the identity entities. A nil
// protector disables field protection.
func NewModel(protector protect.Protector, opts ...ModelOption) *Model {
	if protector == nil {
		protector = protect.Noop{}
	}
	m := &Model{
		protector: protector,
		mappings: map[reflect.Type]Mapping{
			structType(&model.User{}):      {Container: ContainerIdentity, PartitionKeyPath: "/Id"},
			structType(&model.UserClaim{}): {Container: ContainerIdentity, PartitionKeyPath: "/Id"},
			structType(&model.RoleClaim{}): {Container: ContainerIdentity, PartitionKeyPath: "/Id"},
			structType(&model.Role{}):      {Container: ContainerRoles, PartitionKeyPath: "/Id"},
			structType(&model.UserLogin{}): {Container: ContainerLogins, PartitionKeyPath: "/ProviderKey"},
			structType(&model.UserRole{}):  {Container: ContainerUserRoles, PartitionKeyPath: "/UserId"},
			structType(&model.UserToken{}): {Container: ContainerTokens, PartitionKeyPath: "/UserId"},
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func structType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func (m *Model) mappingFor(v any) (Mapping, error) {
	t := structType(v)
	mapping, ok := m.mappings[t]
	if !ok {
		return Mapping{}, fmt.Errorf("no container mapping for entity type %s", t)
	}
	return mapping, nil
}

// marshal serializes an entity into its document form: entity fields plus
// the "id" system property, with protected fields transformed.
func (m *Model) marshal(doc model.Document) ([]byte, error) {
	mapping, err := m.mappingFor(doc)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entity: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to decompose entity: %w", err)
	}
	fields["id"] = doc.DocumentID()
	// _etag is a system property; the precondition travels in the request
	// options, not in the body.
	delete(fields, "_etag")
	for _, name := range mapping.Protected {
		v, ok := fields[name].(string)
		if !ok {
			continue
		}
		protected, err := m.protector.Protect(v)
		if err != nil {
			return nil, fmt.Errorf("failed to protect field %q: %w", name, err)
		}
		fields[name] = protected
	}
	return json.Marshal(fields)
}

// decode deserializes a stored document into an entity, unprotecting any
// protected fields first.
func decode[T any](m *Model, raw []byte) (*T, error) {
	var v T
	mapping, err := m.mappingFor(&v)
	if err != nil {
		return nil, err
	}
	if len(mapping.Protected) > 0 {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("failed to decompose document: %w", err)
		}
		for _, name := range mapping.Protected {
			pv, ok := fields[name].(string)
			if !ok {
				continue
			}
			plain, err := m.protector.Unprotect(pv)
			if err != nil {
				return nil, fmt.Errorf("failed to unprotect field %q: %w", name, err)
			}
			fields[name] = plain
		}
		if raw, err = json.Marshal(fields); err != nil {
			return nil, fmt.Errorf("failed to recompose document: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &v, nil
}

// partitionKeyFor converts an entity's partition-key value to the SDK type.
func partitionKeyFor(doc model.Document) (azcosmos.PartitionKey, error) {
	return partitionKeyValue(doc.PartitionKeyValue())
}

func partitionKeyValue(v any) (azcosmos.PartitionKey, error) {
	switch pk := v.(type) {
	case string:
		return azcosmos.NewPartitionKeyString(pk), nil
	case int:
		return azcosmos.NewPartitionKeyNumber(float64(pk)), nil
	case int64:
		return azcosmos.NewPartitionKeyNumber(float64(pk)), nil
	case float64:
		return azcosmos.NewPartitionKeyNumber(pk), nil
	case bool:
		return azcosmos.NewPartitionKeyBool(pk), nil
	default:
		return azcosmos.PartitionKey{}, fmt.Errorf("unsupported partition key type %T", v)
	}
}
