package storage

import (
	"context"
	"errors"

	"implregistry/internal/models"
)

// ErrNotFound is returned by Tx lookups for absent rows. Components translate it into
// their own error kinds; it never reaches callers of the registry or factory.
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned when a write is attempted inside View
var ErrReadOnly = errors.New("write in read-only transaction")

// Store runs functions against the shared state atomically.
//
// Update applies every write made by fn if and only if fn returns nil. View never writes.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Health & Maintenance
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the view of state inside one Store call
type Tx interface {
	// Roles, scoped to the component that owns the table
	HasRole(ctx context.Context, scope models.Address, role models.Role, member models.Address) (bool, error)
	SetRole(ctx context.Context, scope models.Address, role models.Role, member models.Address, granted bool) error
	RoleMembers(ctx context.Context, scope models.Address, role models.Role) ([]models.Address, error)

	// Contract types and implementations
	ContractType(ctx context.Context, key models.TypeKey) (models.ContractType, error)
	ContractTypes(ctx context.Context) ([]models.ContractType, error)
	PutContractType(ctx context.Context, ct models.ContractType) error
	Implementation(ctx context.Context, key models.TypeKey, version uint32) (models.ImplementationRecord, error)
	Implementations(ctx context.Context, key models.TypeKey) ([]models.ImplementationRecord, error)
	InsertImplementation(ctx context.Context, rec models.ImplementationRecord) error
	CommitExists(ctx context.Context, hash models.CommitHash) (bool, error)

	// Factories and clones
	Factory(ctx context.Context, factory models.Address) (models.FactoryConfig, error)
	PutFactory(ctx context.Context, cfg models.FactoryConfig) error
	Clone(ctx context.Context, address models.Address) (models.CloneRecord, error)
	InsertClone(ctx context.Context, rec models.CloneRecord) error

	// Object storage of deployed objects
	Slot(ctx context.Context, object models.Address, key string) ([]byte, error)
	PutSlot(ctx context.Context, object models.Address, key string, value []byte) error

	// Audit log
	AppendEvent(ctx context.Context, event *models.Event) error
	Events(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}
