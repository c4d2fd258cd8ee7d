// Package factory creates clones of template objects at deterministic, predictable
// addresses and optionally initializes them in the same atomic call.
package factory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"implregistry/internal/access"
	"implregistry/internal/contractid"
	"implregistry/internal/host"
	"implregistry/internal/models"
	"implregistry/internal/storage"
	"implregistry/internal/txn"
)

// Factory is the clone factory living at one address
type Factory struct {
	*access.Control

	host              *host.Host
	networkPassphrase string
}

// New creates a factory. Clones are invoked through h.
func New(address models.Address, networkPassphrase string, store storage.Store, pub txn.Publisher, h *host.Host) (*Factory, error) {
	if address.IsZero() {
		return nil, fmt.Errorf("%w: factory address is zero", models.ErrInvalidAddress)
	}
	if networkPassphrase == "" {
		return nil, errors.New("network passphrase is required")
	}
	return &Factory{
		Control:           access.New(address, store, pub),
		host:              h,
		networkPassphrase: networkPassphrase,
	}, nil
}

// Initialize makes admin the factory's admin and updater. It works exactly once.
func (f *Factory) Initialize(ctx context.Context, admin models.Address) error {
	return f.Run(ctx, func(call *txn.Call) error {
		cfg, err := f.config(ctx, call.Tx)
		if err != nil {
			return err
		}
		if cfg.Initialized {
			return fmt.Errorf("%w: factory %s", models.ErrAlreadyInitialized, f.Address())
		}

		cfg.Initialized = true
		if err := call.Tx.PutFactory(ctx, cfg); err != nil {
			return fmt.Errorf("failed to store factory: %w", err)
		}
		if err := f.Setup(ctx, call, models.AdminRole, admin); err != nil {
			return err
		}
		if err := f.Setup(ctx, call, models.UpdaterRole, admin); err != nil {
			return err
		}

		slog.Info("Factory: initialized", "factory", f.Address(), "admin", admin)
		return nil
	})
}

// UpdateImplementation stores the current template
func (f *Factory) UpdateImplementation(ctx context.Context, caller, address models.Address) error {
	return f.Run(ctx, func(call *txn.Call) error {
		if err := f.RequireRole(ctx, call.Tx, models.UpdaterRole, caller); err != nil {
			return err
		}
		if address.IsZero() {
			return fmt.Errorf("%w: implementation is the zero address", models.ErrInvalidAddress)
		}

		cfg, err := f.config(ctx, call.Tx)
		if err != nil {
			return err
		}
		cfg.Implementation = address
		if err := call.Tx.PutFactory(ctx, cfg); err != nil {
			return fmt.Errorf("failed to store factory: %w", err)
		}

		slog.Info("Factory: implementation stored", "factory", f.Address(), "implementation", address)
		return call.Emit(ctx, models.EventImplementationStored, f.Address(), map[string]string{
			"implementation": address.String(),
		})
	})
}

// Implementation returns the current template, the zero address if none was stored
func (f *Factory) Implementation(ctx context.Context) (models.Address, error) {
	cfg, err := f.Config(ctx)
	if err != nil {
		return models.Address{}, err
	}
	return cfg.Implementation, nil
}

// Config returns the factory's stored configuration
func (f *Factory) Config(ctx context.Context) (models.FactoryConfig, error) {
	var cfg models.FactoryConfig
	err := f.View(ctx, func(tx storage.Tx) error {
		var err error
		cfg, err = f.config(ctx, tx)
		return err
	})
	return cfg, err
}

// PredictCloneAddress returns the address Clone assigns for salt and template. It only
// fails for a zero template.
func (f *Factory) PredictCloneAddress(salt models.Salt, template models.Address) (models.Address, error) {
	return PredictAddress(f.networkPassphrase, f.Address(), salt, template)
}

// PredictAddress is PredictCloneAddress for a factory that need not be running
func PredictAddress(networkPassphrase string, factory models.Address, salt models.Salt, template models.Address) (models.Address, error) {
	if template.IsZero() {
		return models.Address{}, fmt.Errorf("%w: template is the zero address", models.ErrInvalidAddress)
	}
	return contractid.Derive(networkPassphrase, factory, CloneSalt(salt, template))
}

// CloneSalt binds a caller salt to a template, so equal salts for different templates
// never collide
func CloneSalt(salt models.Salt, template models.Address) [32]byte {
	h := sha256.New()
	h.Write(template.Key[:])
	h.Write(salt[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Clone creates a forwarding object for template at the predicted address
func (f *Factory) Clone(ctx context.Context, caller models.Address, salt models.Salt, template models.Address) (models.Address, error) {
	var clone models.Address
	err := f.Run(ctx, func(call *txn.Call) error {
		var err error
		clone, err = f.clone(ctx, call, caller, salt, template)
		return err
	})
	if err != nil {
		return models.Address{}, err
	}
	return clone, nil
}

// InitClone forwards initData as a call into clone and returns its result
func (f *Factory) InitClone(ctx context.Context, caller, clone models.Address, initData []byte) ([]byte, error) {
	var result []byte
	err := f.Run(ctx, func(call *txn.Call) error {
		var err error
		result, err = f.initClone(ctx, call, caller, clone, initData)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CloneAndInitialize clones and initializes in one atomic call. If initialization fails
// the clone is never created.
func (f *Factory) CloneAndInitialize(ctx context.Context, caller models.Address, salt models.Salt, template models.Address, initData []byte) (models.Address, []byte, error) {
	var (
		clone  models.Address
		result []byte
	)
	err := f.Run(ctx, func(call *txn.Call) error {
		var err error
		clone, err = f.clone(ctx, call, caller, salt, template)
		if err != nil {
			return err
		}
		result, err = f.initClone(ctx, call, caller, clone, initData)
		return err
	})
	if err != nil {
		return models.Address{}, nil, err
	}
	return clone, result, nil
}

// CloneRecord returns what the factory stored about a clone
func (f *Factory) CloneRecord(ctx context.Context, clone models.Address) (models.CloneRecord, bool, error) {
	var (
		rec   models.CloneRecord
		found bool
	)
	err := f.View(ctx, func(tx storage.Tx) error {
		var err error
		rec, err = tx.Clone(ctx, clone)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read clone: %w", err)
		}
		found = true
		return nil
	})
	return rec, found, err
}

func (f *Factory) clone(ctx context.Context, call *txn.Call, caller models.Address, salt models.Salt, template models.Address) (models.Address, error) {
	addr, err := f.PredictCloneAddress(salt, template)
	if err != nil {
		return models.Address{}, err
	}

	if f.host != nil && f.host.Installed(addr) {
		return models.Address{}, fmt.Errorf("%w: code installed at %s", models.ErrCloneExists, addr)
	}

	err = call.Tx.InsertClone(ctx, models.CloneRecord{
		Address:   addr,
		Factory:   f.Address(),
		Template:  template,
		Salt:      salt,
		CreatedAt: time.Now().UTC(),
	})
	if errors.Is(err, models.ErrCloneExists) {
		return models.Address{}, fmt.Errorf("%w: %s", models.ErrCloneExists, addr)
	}
	if err != nil {
		return models.Address{}, fmt.Errorf("failed to store clone: %w", err)
	}

	slog.Info("Factory: clone created", "clone", addr, "template", template, "salt", salt)
	err = call.Emit(ctx, models.EventCloneCreated, f.Address(), map[string]string{
		"clone":    addr.String(),
		"template": template.String(),
		"salt":     salt.String(),
		"caller":   caller.String(),
	})
	return addr, err
}

func (f *Factory) initClone(ctx context.Context, call *txn.Call, caller, clone models.Address, initData []byte) ([]byte, error) {
	if f.host == nil {
		return nil, fmt.Errorf("%w: factory has no execution host", models.ErrNoCode)
	}

	// the factory is the immediate caller of the clone
	result, err := f.host.Invoke(ctx, call.Tx, f.Address(), clone, initData)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize clone %s: %w", clone, err)
	}

	slog.Info("Factory: clone initialized", "clone", clone, "caller", caller)
	err = call.Emit(ctx, models.EventCloneInitialized, f.Address(), map[string]string{
		"clone":     clone.String(),
		"init_data": hex.EncodeToString(initData),
		"caller":    caller.String(),
	})
	return result, err
}

func (f *Factory) config(ctx context.Context, tx storage.Tx) (models.FactoryConfig, error) {
	cfg, err := tx.Factory(ctx, f.Address())
	if errors.Is(err, storage.ErrNotFound) {
		return models.FactoryConfig{Factory: f.Address()}, nil
	}
	if err != nil {
		return models.FactoryConfig{}, fmt.Errorf("failed to read factory: %w", err)
	}
	return cfg, nil
}
