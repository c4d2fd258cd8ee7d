package access

import (
	"context"
	"testing"

	"implregistry/internal/models"
	"implregistry/internal/storage"
	"implregistry/internal/txn"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []*models.Event
}

func (r *recorder) Publish(ctx context.Context, events []*models.Event) {
	r.events = append(r.events, events...)
}

func account(b byte) models.Address {
	var key [32]byte
	key[0] = b
	key[31] = 0x5a
	return models.AccountAddress(key)
}

func newControl(t *testing.T) (*Control, *recorder) {
	t.Helper()
	rec := &recorder{}
	var scope [32]byte
	scope[0] = 0xc0
	c := New(models.ContractAddress(scope), storage.NewMemoryStore(), rec)

	admin := account(1)
	require.NoError(t, c.Run(context.Background(), func(call *txn.Call) error {
		return c.Setup(context.Background(), call, models.AdminRole, admin)
	}))
	rec.events = nil
	return c, rec
}

func TestGrantRole(t *testing.T) {
	ctx := context.Background()
	c, rec := newControl(t)
	admin, user := account(1), account(2)

	require.NoError(t, c.GrantRole(ctx, admin, models.UpdaterRole, user))

	ok, err := c.HasRole(ctx, models.UpdaterRole, user)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, rec.events, 1)
	require.Equal(t, models.EventRoleGranted, rec.events[0].Kind)
	require.Equal(t, string(models.UpdaterRole), rec.events[0].Attrs["role"])
	require.Equal(t, user.String(), rec.events[0].Attrs["account"])
	require.Equal(t, admin.String(), rec.events[0].Attrs["sender"])
}

func TestGrantRole_Idempotent(t *testing.T) {
	ctx := context.Background()
	c, rec := newControl(t)
	admin, user := account(1), account(2)

	require.NoError(t, c.GrantRole(ctx, admin, models.UpdaterRole, user))
	require.NoError(t, c.GrantRole(ctx, admin, models.UpdaterRole, user))
	require.Len(t, rec.events, 1, "no event when membership does not change")
}

func TestGrantRole_RequiresAdmin(t *testing.T) {
	ctx := context.Background()
	c, rec := newControl(t)
	user, other := account(2), account(3)

	err := c.GrantRole(ctx, user, models.UpdaterRole, other)
	require.ErrorIs(t, err, models.ErrNotAuthorized)
	require.Empty(t, rec.events)

	ok, err := c.HasRole(ctx, models.UpdaterRole, other)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRevokeRole(t *testing.T) {
	ctx := context.Background()
	c, rec := newControl(t)
	admin, user := account(1), account(2)

	require.NoError(t, c.GrantRole(ctx, admin, models.UpdaterRole, user))
	require.NoError(t, c.RevokeRole(ctx, admin, models.UpdaterRole, user))

	ok, err := c.HasRole(ctx, models.UpdaterRole, user)
	require.NoError(t, err)
	require.False(t, ok)
	require.Len(t, rec.events, 2)
	require.Equal(t, models.EventRoleRevoked, rec.events[1].Kind)

	err = c.RevokeRole(ctx, user, models.AdminRole, admin)
	require.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestRenounceRole(t *testing.T) {
	ctx := context.Background()
	c, _ := newControl(t)
	admin := account(1)

	require.NoError(t, c.RenounceRole(ctx, admin, models.AdminRole))
	ok, err := c.HasRole(ctx, models.AdminRole, admin)
	require.NoError(t, err)
	require.False(t, ok)

	err = c.GrantRole(ctx, admin, models.UpdaterRole, account(2))
	require.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestGrantRole_ZeroAddress(t *testing.T) {
	ctx := context.Background()
	c, _ := newControl(t)

	err := c.GrantRole(ctx, account(1), models.UpdaterRole, models.ZeroAddress)
	require.ErrorIs(t, err, models.ErrInvalidAddress)
}

func TestRoles_ScopedPerComponent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	var a, b [32]byte
	a[0], b[0] = 1, 2
	first := New(models.ContractAddress(a), store, nil)
	second := New(models.ContractAddress(b), store, nil)
	admin := account(1)

	require.NoError(t, first.Run(ctx, func(call *txn.Call) error {
		return first.Setup(ctx, call, models.AdminRole, admin)
	}))

	ok, err := second.HasRole(ctx, models.AdminRole, admin)
	require.NoError(t, err)
	require.False(t, ok)

	members, err := first.Members(ctx, models.AdminRole)
	require.NoError(t, err)
	require.Equal(t, []models.Address{admin}, members)
}
