// Package registry tracks named contract types and the versioned implementations
// registered for each of them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"implregistry/internal/access"
	"implregistry/internal/models"
	"implregistry/internal/storage"
	"implregistry/internal/txn"

	"github.com/patrickmn/go-cache"
)

// DefaultMaxTypeNameLength bounds type names in bytes
const DefaultMaxTypeNameLength = 64

// Registry is the implementation registry living at one address
type Registry struct {
	*access.Control

	maxNameLength int
	byVersion     *cache.Cache
}

// New creates a registry. maxNameLength <= 0 selects DefaultMaxTypeNameLength.
func New(address models.Address, store storage.Store, pub txn.Publisher, maxNameLength int) *Registry {
	if maxNameLength <= 0 {
		maxNameLength = DefaultMaxTypeNameLength
	}
	return &Registry{
		Control:       access.New(address, store, pub),
		maxNameLength: maxNameLength,
		// records are immutable once written, nothing ever needs evicting
		byVersion: cache.New(cache.NoExpiration, 0),
	}
}

// initializedSlot marks, in the registry's own storage, that Bootstrap has run
const initializedSlot = "registry.initialized"

// Bootstrap grants the deployer the admin and updater roles. It works exactly once per
// registry address; later calls fail with ErrAlreadyInitialized and change nothing.
func (r *Registry) Bootstrap(ctx context.Context, deployer models.Address) error {
	return r.Run(ctx, func(call *txn.Call) error {
		_, err := call.Tx.Slot(ctx, r.Address(), initializedSlot)
		switch {
		case err == nil:
			return fmt.Errorf("%w: registry %s", models.ErrAlreadyInitialized, r.Address())
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("failed to read registry state: %w", err)
		}

		if err := call.Tx.PutSlot(ctx, r.Address(), initializedSlot, []byte{1}); err != nil {
			return fmt.Errorf("failed to store registry state: %w", err)
		}
		if err := r.Setup(ctx, call, models.AdminRole, deployer); err != nil {
			return err
		}
		if err := r.Setup(ctx, call, models.UpdaterRole, deployer); err != nil {
			return err
		}

		slog.Info("Registry: initialized", "registry", r.Address(), "admin", deployer)
		return nil
	})
}

// GetTypeHash returns the key a type name is stored under
func (r *Registry) GetTypeHash(name string) models.TypeKey {
	return models.HashTypeName(name)
}

// AddContractType registers a new, empty contract type
func (r *Registry) AddContractType(ctx context.Context, caller models.Address, name string) error {
	return r.Run(ctx, func(call *txn.Call) error {
		if err := r.RequireRole(ctx, call.Tx, models.UpdaterRole, caller); err != nil {
			return err
		}
		if name == "" || len(name) > r.maxNameLength {
			return fmt.Errorf("%w: length %d not in [1, %d]", models.ErrInvalidTypeName, len(name), r.maxNameLength)
		}

		key := r.GetTypeHash(name)
		_, err := call.Tx.ContractType(ctx, key)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %q", models.ErrTypeAlreadyExists, name)
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("failed to read contract type: %w", err)
		}

		if err := call.Tx.PutContractType(ctx, models.ContractType{Key: key, Name: name}); err != nil {
			return fmt.Errorf("failed to store contract type: %w", err)
		}

		slog.Info("Registry: contract type added", "name", name, "type_key", key)
		return call.Emit(ctx, models.EventContractTypeAdded, r.Address(), map[string]string{
			"name":     name,
			"type_key": key.String(),
		})
	})
}

// AddImplementation appends a version to an existing type
func (r *Registry) AddImplementation(ctx context.Context, caller models.Address, name string, address models.Address, version uint32, commitHash models.CommitHash) error {
	return r.Run(ctx, func(call *txn.Call) error {
		if err := r.RequireRole(ctx, call.Tx, models.UpdaterRole, caller); err != nil {
			return err
		}

		ct, err := r.contractType(ctx, call.Tx, name)
		if err != nil {
			return err
		}
		if address.IsZero() {
			return fmt.Errorf("%w: implementation is the zero address", models.ErrInvalidAddress)
		}
		if version == 0 {
			return fmt.Errorf("%w: versions start at 1", models.ErrInvalidVersion)
		}

		_, err = call.Tx.Implementation(ctx, ct.Key, version)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %q version %d", models.ErrVersionExists, name, version)
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("failed to read implementation: %w", err)
		}

		exists, err := call.Tx.CommitExists(ctx, commitHash)
		if err != nil {
			return fmt.Errorf("failed to read commit hash: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: %s", models.ErrCommitExists, commitHash)
		}

		rec := models.ImplementationRecord{
			TypeKey:    ct.Key,
			Version:    version,
			Address:    address,
			CommitHash: commitHash,
			CreatedAt:  time.Now().UTC(),
		}
		if err := call.Tx.InsertImplementation(ctx, rec); err != nil {
			return fmt.Errorf("failed to store implementation: %w", err)
		}

		if version > ct.LatestVersion {
			ct.LatestVersion = version
			if err := call.Tx.PutContractType(ctx, ct); err != nil {
				return fmt.Errorf("failed to update latest version: %w", err)
			}
		}

		slog.Info("Registry: implementation added", "name", name, "version", version, "address", address)
		return call.Emit(ctx, models.EventImplementationAdded, r.Address(), map[string]string{
			"name":        name,
			"type_key":    ct.Key.String(),
			"address":     address.String(),
			"version":     strconv.FormatUint(uint64(version), 10),
			"commit_hash": commitHash.String(),
		})
	})
}

// GetLatestImplementation returns the record with the highest version of a type
func (r *Registry) GetLatestImplementation(ctx context.Context, name string) (models.ImplementationRecord, error) {
	var rec models.ImplementationRecord
	err := r.View(ctx, func(tx storage.Tx) error {
		ct, err := r.contractType(ctx, tx, name)
		if err != nil {
			return err
		}
		if ct.LatestVersion == 0 {
			return fmt.Errorf("%w: %q", models.ErrNoImplementations, name)
		}
		rec, err = r.implementation(ctx, tx, ct, ct.LatestVersion)
		return err
	})
	return rec, err
}

// GetImplementationByVersion returns one specific version of a type
func (r *Registry) GetImplementationByVersion(ctx context.Context, name string, version uint32) (models.ImplementationRecord, error) {
	key := cacheKey(r.GetTypeHash(name), version)
	if v, ok := r.byVersion.Get(key); ok {
		return v.(models.ImplementationRecord), nil
	}

	var rec models.ImplementationRecord
	err := r.View(ctx, func(tx storage.Tx) error {
		ct, err := r.contractType(ctx, tx, name)
		if err != nil {
			return err
		}
		rec, err = r.implementation(ctx, tx, ct, version)
		return err
	})
	if err != nil {
		return models.ImplementationRecord{}, err
	}

	r.byVersion.Set(key, rec, cache.NoExpiration)
	return rec, nil
}

// ContractType returns the stored type under key
func (r *Registry) ContractType(ctx context.Context, key models.TypeKey) (models.ContractType, error) {
	var ct models.ContractType
	err := r.View(ctx, func(tx storage.Tx) error {
		var err error
		ct, err = tx.ContractType(ctx, key)
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return models.ContractType{}, fmt.Errorf("%w: %s", models.ErrTypeDoesNotExist, key)
	}
	if err != nil {
		return models.ContractType{}, fmt.Errorf("failed to read contract type: %w", err)
	}
	return ct, nil
}

// ContractTypes lists every registered type
func (r *Registry) ContractTypes(ctx context.Context) ([]models.ContractType, error) {
	var list []models.ContractType
	err := r.View(ctx, func(tx storage.Tx) error {
		var err error
		list, err = tx.ContractTypes(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contract types: %w", err)
	}
	return list, nil
}

// Versions lists every implementation of a type in ascending version order
func (r *Registry) Versions(ctx context.Context, name string) ([]models.ImplementationRecord, error) {
	var list []models.ImplementationRecord
	err := r.View(ctx, func(tx storage.Tx) error {
		ct, err := r.contractType(ctx, tx, name)
		if err != nil {
			return err
		}
		list, err = tx.Implementations(ctx, ct.Key)
		if err != nil {
			return fmt.Errorf("failed to list implementations: %w", err)
		}
		return nil
	})
	return list, err
}

func (r *Registry) contractType(ctx context.Context, tx storage.Tx, name string) (models.ContractType, error) {
	ct, err := tx.ContractType(ctx, r.GetTypeHash(name))
	if errors.Is(err, storage.ErrNotFound) {
		return models.ContractType{}, fmt.Errorf("%w: %q", models.ErrTypeDoesNotExist, name)
	}
	if err != nil {
		return models.ContractType{}, fmt.Errorf("failed to read contract type: %w", err)
	}
	return ct, nil
}

func (r *Registry) implementation(ctx context.Context, tx storage.Tx, ct models.ContractType, version uint32) (models.ImplementationRecord, error) {
	rec, err := tx.Implementation(ctx, ct.Key, version)
	if errors.Is(err, storage.ErrNotFound) {
		return models.ImplementationRecord{}, fmt.Errorf("%w: %q version %d", models.ErrVersionDoesNotExist, ct.Name, version)
	}
	if err != nil {
		return models.ImplementationRecord{}, fmt.Errorf("failed to read implementation: %w", err)
	}
	return rec, nil
}

func cacheKey(key models.TypeKey, version uint32) string {
	return key.String() + "/" + strconv.FormatUint(uint64(version), 10)
}
