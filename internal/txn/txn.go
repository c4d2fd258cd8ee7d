// Package txn runs a mutating call as one store transaction and delivers the events
// it emitted only after that transaction committed.
package txn

import (
	"context"

	"implregistry/internal/models"
	"implregistry/internal/storage"

	"github.com/google/uuid"
)

// Publisher receives the events of a committed call
type Publisher interface {
	Publish(ctx context.Context, events []*models.Event)
}

// Call is one atomic mutating call
type Call struct {
	Tx     storage.Tx
	ID     uuid.UUID
	events []*models.Event
}

// Emit appends an event to the audit log inside the call's transaction
func (c *Call) Emit(ctx context.Context, kind models.EventKind, emitter models.Address, attrs map[string]string) error {
	ev := models.NewEvent(c.ID, kind, emitter, attrs)
	if err := c.Tx.AppendEvent(ctx, ev); err != nil {
		return err
	}
	c.events = append(c.events, ev)
	return nil
}

// Events returns what the call emitted so far
func (c *Call) Events() []*models.Event {
	return c.events
}

// Run executes fn inside store.Update. If fn fails nothing is written and nothing is
// published; otherwise the emitted events go to pub after commit. pub may be nil.
func Run(ctx context.Context, store storage.Store, pub Publisher, fn func(c *Call) error) error {
	var call *Call
	err := store.Update(ctx, func(tx storage.Tx) error {
		call = &Call{Tx: tx, ID: uuid.New()}
		return fn(call)
	})
	if err != nil {
		return err
	}

	if pub != nil && len(call.events) > 0 {
		pub.Publish(ctx, call.events)
	}
	return nil
}
