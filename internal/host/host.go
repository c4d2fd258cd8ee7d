// Package host executes template code on behalf of deployed objects. A clone owns no code:
// invoking it runs its template's code against the clone's own storage.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"implregistry/internal/models"
	"implregistry/internal/storage"
)

// MaxCloneDepth bounds how many clone-of-clone hops are followed to find code
const MaxCloneDepth = 8

// Code is executable template logic
type Code interface {
	Invoke(ctx context.Context, call *Call) ([]byte, error)
}

// CodeFunc adapts a function to Code
type CodeFunc func(ctx context.Context, call *Call) ([]byte, error)

func (f CodeFunc) Invoke(ctx context.Context, call *Call) ([]byte, error) {
	return f(ctx, call)
}

// Call is one invocation. Self is the invoked object, which for a clone is the clone
// itself and not the template whose code runs.
type Call struct {
	Self    models.Address
	Caller  models.Address
	Input   []byte
	Storage *Storage
}

// Storage is the slot space of one object inside the running transaction
type Storage struct {
	tx     storage.Tx
	object models.Address
}

// Get reads a slot, reporting whether it was ever written
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.tx.Slot(ctx, s.object, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read slot %q: %w", key, err)
	}
	return v, true, nil
}

// Put writes a slot
func (s *Storage) Put(ctx context.Context, key string, value []byte) error {
	if err := s.tx.PutSlot(ctx, s.object, key, value); err != nil {
		return fmt.Errorf("failed to write slot %q: %w", key, err)
	}
	return nil
}

// Host maps addresses to installed template code
type Host struct {
	mu   sync.RWMutex
	code map[models.Address]Code
}

// New creates a host with no code installed
func New() *Host {
	return &Host{code: make(map[models.Address]Code)}
}

// Install places code at address
func (h *Host) Install(address models.Address, code Code) error {
	if address.IsZero() {
		return fmt.Errorf("%w: cannot install code at the zero address", models.ErrInvalidAddress)
	}
	if code == nil {
		return fmt.Errorf("%w: nil code for %s", models.ErrNoCode, address)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.code[address]; ok {
		return fmt.Errorf("code already installed at %s", address)
	}
	h.code[address] = code
	return nil
}

// Installed reports whether address carries code of its own
func (h *Host) Installed(address models.Address) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.code[address]
	return ok
}

// Resolve finds the code that runs when target is invoked
func (h *Host) Resolve(ctx context.Context, tx storage.Tx, target models.Address) (Code, error) {
	addr := target
	for hop := 0; hop <= MaxCloneDepth; hop++ {
		h.mu.RLock()
		code, ok := h.code[addr]
		h.mu.RUnlock()
		if ok {
			return code, nil
		}

		clone, err := tx.Clone(ctx, addr)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrNoCode, target)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read clone: %w", err)
		}
		addr = clone.Template
	}
	return nil, fmt.Errorf("%w: %s exceeds clone depth %d", models.ErrNoCode, target, MaxCloneDepth)
}

// Invoke runs the code resolved for target with target's own storage, inside tx
func (h *Host) Invoke(ctx context.Context, tx storage.Tx, caller, target models.Address, input []byte) ([]byte, error) {
	code, err := h.Resolve(ctx, tx, target)
	if err != nil {
		return nil, err
	}

	return code.Invoke(ctx, &Call{
		Self:    target,
		Caller:  caller,
		Input:   input,
		Storage: &Storage{tx: tx, object: target},
	})
}
