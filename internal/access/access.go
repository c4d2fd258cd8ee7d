// Package access implements role-based authorization for one component. Every component
// owns its own role table, scoped by the component's address.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"implregistry/internal/models"
	"implregistry/internal/storage"
	"implregistry/internal/txn"
)

// Control holds the role table of one component
type Control struct {
	scope models.Address
	store storage.Store
	pub   txn.Publisher
}

// New creates the access control of the component living at scope
func New(scope models.Address, store storage.Store, pub txn.Publisher) *Control {
	return &Control{
		scope: scope,
		store: store,
		pub:   pub,
	}
}

// Address returns the component address the roles are scoped to
func (c *Control) Address() models.Address {
	return c.scope
}

// Run executes fn as one atomic call against the component's store
func (c *Control) Run(ctx context.Context, fn func(call *txn.Call) error) error {
	return txn.Run(ctx, c.store, c.pub, fn)
}

// View runs a read-only fn against the component's store
func (c *Control) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	return c.store.View(ctx, fn)
}

// HasRole reports whether identity holds role
func (c *Control) HasRole(ctx context.Context, role models.Role, identity models.Address) (bool, error) {
	var ok bool
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		ok, err = tx.HasRole(ctx, c.scope, role, identity)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to read role: %w", err)
	}
	return ok, nil
}

// Members lists every identity holding role
func (c *Control) Members(ctx context.Context, role models.Role) ([]models.Address, error) {
	var members []models.Address
	err := c.store.View(ctx, func(tx storage.Tx) error {
		var err error
		members, err = tx.RoleMembers(ctx, c.scope, role)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list role members: %w", err)
	}
	return members, nil
}

// RequireRole fails with ErrNotAuthorized unless identity holds role. Mutating operations
// call it first, inside the transaction that performs the mutation.
func (c *Control) RequireRole(ctx context.Context, tx storage.Tx, role models.Role, identity models.Address) error {
	ok, err := tx.HasRole(ctx, c.scope, role, identity)
	if err != nil {
		return fmt.Errorf("failed to read role: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s lacks %s", models.ErrNotAuthorized, identity, role)
	}
	return nil
}

// GrantRole gives role to identity. The caller must be an admin.
func (c *Control) GrantRole(ctx context.Context, caller models.Address, role models.Role, identity models.Address) error {
	return c.Run(ctx, func(call *txn.Call) error {
		if err := c.RequireRole(ctx, call.Tx, models.AdminRole, caller); err != nil {
			return err
		}
		return c.set(ctx, call, caller, role, identity, true)
	})
}

// RevokeRole takes role away from identity. The caller must be an admin.
func (c *Control) RevokeRole(ctx context.Context, caller models.Address, role models.Role, identity models.Address) error {
	return c.Run(ctx, func(call *txn.Call) error {
		if err := c.RequireRole(ctx, call.Tx, models.AdminRole, caller); err != nil {
			return err
		}
		return c.set(ctx, call, caller, role, identity, false)
	})
}

// RenounceRole drops a role the caller holds itself
func (c *Control) RenounceRole(ctx context.Context, caller models.Address, role models.Role) error {
	return c.Run(ctx, func(call *txn.Call) error {
		return c.set(ctx, call, caller, role, caller, false)
	})
}

// Setup grants role without an admin check. Used while constructing a component.
func (c *Control) Setup(ctx context.Context, call *txn.Call, role models.Role, identity models.Address) error {
	return c.set(ctx, call, c.scope, role, identity, true)
}

// set changes membership and emits an event only when membership actually changed
func (c *Control) set(ctx context.Context, call *txn.Call, sender models.Address, role models.Role, identity models.Address, granted bool) error {
	if identity.IsZero() {
		return fmt.Errorf("%w: role member is the zero address", models.ErrInvalidAddress)
	}

	has, err := call.Tx.HasRole(ctx, c.scope, role, identity)
	if err != nil {
		return fmt.Errorf("failed to read role: %w", err)
	}
	if has == granted {
		return nil
	}

	if err := call.Tx.SetRole(ctx, c.scope, role, identity, granted); err != nil {
		return fmt.Errorf("failed to store role: %w", err)
	}

	kind := models.EventRoleGranted
	if !granted {
		kind = models.EventRoleRevoked
	}
	slog.Debug("Access: role changed", "scope", c.scope, "kind", kind, "role", role, "account", identity)

	return call.Emit(ctx, kind, c.scope, map[string]string{
		"role":    string(role),
		"account": identity.String(),
		"sender":  sender.String(),
	})
}
