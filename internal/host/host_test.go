package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"implregistry/internal/models"
	"implregistry/internal/storage"

	"github.com/stretchr/testify/require"
)

func addr(b byte) models.Address {
	var key [32]byte
	key[0] = b
	key[31] = 0x42
	return models.ContractAddress(key)
}

// counter increments slot "n" of whatever object it runs for
var counter = CodeFunc(func(ctx context.Context, call *Call) ([]byte, error) {
	v, _, err := call.Storage.Get(ctx, "n")
	if err != nil {
		return nil, err
	}
	n := byte(0)
	if len(v) == 1 {
		n = v[0]
	}
	n++
	if err := call.Storage.Put(ctx, "n", []byte{n}); err != nil {
		return nil, err
	}
	return []byte{n}, nil
})

func insertClone(t *testing.T, s storage.Store, clone, template models.Address) {
	t.Helper()
	require.NoError(t, s.Update(context.Background(), func(tx storage.Tx) error {
		return tx.InsertClone(context.Background(), models.CloneRecord{
			Address:   clone,
			Factory:   addr(0xff),
			Template:  template,
			CreatedAt: time.Now().UTC(),
		})
	}))
}

func invoke(t *testing.T, s storage.Store, h *Host, target models.Address) ([]byte, error) {
	t.Helper()
	var out []byte
	err := s.Update(context.Background(), func(tx storage.Tx) error {
		var err error
		out, err = h.Invoke(context.Background(), tx, addr(0xee), target, nil)
		return err
	})
	return out, err
}

func TestInstall(t *testing.T) {
	h := New()

	require.NoError(t, h.Install(addr(1), counter))
	require.True(t, h.Installed(addr(1)))
	require.Error(t, h.Install(addr(1), counter))
	require.ErrorIs(t, h.Install(models.ZeroAddress, counter), models.ErrInvalidAddress)
	require.ErrorIs(t, h.Install(addr(2), nil), models.ErrNoCode)
}

func TestInvoke_DelegatesToTemplateWithOwnStorage(t *testing.T) {
	s := storage.NewMemoryStore()
	h := New()
	template, clone := addr(1), addr(2)
	require.NoError(t, h.Install(template, counter))
	insertClone(t, s, clone, template)

	out, err := invoke(t, s, h, clone)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, out)

	out, err = invoke(t, s, h, clone)
	require.NoError(t, err)
	require.Equal(t, []byte{2}, out)

	// the template's own storage is untouched by the clone
	out, err = invoke(t, s, h, template)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, out)
}

func TestInvoke_CloneOfClone(t *testing.T) {
	s := storage.NewMemoryStore()
	h := New()
	require.NoError(t, h.Install(addr(1), counter))
	insertClone(t, s, addr(2), addr(1))
	insertClone(t, s, addr(3), addr(2))

	out, err := invoke(t, s, h, addr(3))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, out)
}

func TestInvoke_NoCode(t *testing.T) {
	s := storage.NewMemoryStore()
	h := New()

	_, err := invoke(t, s, h, addr(9))
	require.ErrorIs(t, err, models.ErrNoCode)

	// a clone whose template has no code
	insertClone(t, s, addr(2), addr(8))
	_, err = invoke(t, s, h, addr(2))
	require.ErrorIs(t, err, models.ErrNoCode)
}

func TestInvoke_DepthBounded(t *testing.T) {
	s := storage.NewMemoryStore()
	h := New()

	// a cycle of clones never resolves
	insertClone(t, s, addr(1), addr(2))
	insertClone(t, s, addr(2), addr(1))

	_, err := invoke(t, s, h, addr(1))
	require.ErrorIs(t, err, models.ErrNoCode)
}

func TestInvoke_FailureRollsBackWrites(t *testing.T) {
	s := storage.NewMemoryStore()
	h := New()
	boom := errors.New("boom")
	require.NoError(t, h.Install(addr(1), CodeFunc(func(ctx context.Context, call *Call) ([]byte, error) {
		if err := call.Storage.Put(ctx, "k", []byte("v")); err != nil {
			return nil, err
		}
		return nil, boom
	})))

	_, err := invoke(t, s, h, addr(1))
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(context.Background(), func(tx storage.Tx) error {
		_, err := tx.Slot(context.Background(), addr(1), "k")
		require.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	}))
}
