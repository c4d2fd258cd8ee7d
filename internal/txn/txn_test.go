package txn

import (
	"context"
	"errors"
	"testing"

	"implregistry/internal/models"
	"implregistry/internal/storage"

	"github.com/stretchr/testify/require"
)

type capture struct {
	batches [][]*models.Event
}

func (c *capture) Publish(ctx context.Context, events []*models.Event) {
	c.batches = append(c.batches, events)
}

func TestRun_PublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	pub := &capture{}

	err := Run(ctx, store, pub, func(c *Call) error {
		if err := c.Emit(ctx, models.EventContractTypeAdded, models.ZeroAddress, map[string]string{"name": "A"}); err != nil {
			return err
		}
		return c.Emit(ctx, models.EventImplementationAdded, models.ZeroAddress, nil)
	})
	require.NoError(t, err)
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)
	require.Equal(t, pub.batches[0][0].TxID, pub.batches[0][1].TxID)
}

func TestRun_FailureEmitsNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	pub := &capture{}
	boom := errors.New("boom")

	err := Run(ctx, store, pub, func(c *Call) error {
		if err := c.Emit(ctx, models.EventContractTypeAdded, models.ZeroAddress, nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.batches)

	require.NoError(t, store.View(ctx, func(tx storage.Tx) error {
		events, err := tx.Events(ctx, models.EventFilter{})
		require.NoError(t, err)
		require.Empty(t, events)
		return nil
	}))
}

func TestRun_NilPublisher(t *testing.T) {
	ctx := context.Background()
	err := Run(ctx, storage.NewMemoryStore(), nil, func(c *Call) error {
		return c.Emit(ctx, models.EventRoleGranted, models.ZeroAddress, nil)
	})
	require.NoError(t, err)
}
