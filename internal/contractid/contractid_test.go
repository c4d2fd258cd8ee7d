package contractid

import (
	"testing"

	"implregistry/internal/models"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	deployer := models.ContractAddress(NamedSalt("factory"))
	salt := NamedSalt("salt-1")

	first, err := Derive(network.TestNetworkPassphrase, deployer, salt)
	require.NoError(t, err)
	second, err := Derive(network.TestNetworkPassphrase, deployer, salt)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.True(t, first.IsContract())
	require.False(t, first.IsZero())
}

func TestDerive_InputsChangeResult(t *testing.T) {
	deployer := models.ContractAddress(NamedSalt("factory"))
	other := models.ContractAddress(NamedSalt("other-factory"))
	salt := NamedSalt("salt-1")

	base, err := Derive(network.TestNetworkPassphrase, deployer, salt)
	require.NoError(t, err)

	tests := []struct {
		name       string
		passphrase string
		deployer   models.Address
		salt       [32]byte
	}{
		{"different salt", network.TestNetworkPassphrase, deployer, NamedSalt("salt-2")},
		{"different deployer", network.TestNetworkPassphrase, other, salt},
		{"different network", network.PublicNetworkPassphrase, deployer, salt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Derive(tt.passphrase, tt.deployer, tt.salt)
			require.NoError(t, err)
			require.NotEqual(t, base, got)
		})
	}
}

func TestDerive_AccountDeployer(t *testing.T) {
	kp := keypair.MustRandom()
	account, err := models.ParseAddress(kp.Address())
	require.NoError(t, err)

	got, err := Derive(network.TestNetworkPassphrase, account, NamedSalt("registry"))
	require.NoError(t, err)
	require.True(t, got.IsContract())

	// same key bytes under the contract kind must not collide with the account deployer
	asContract := models.ContractAddress(account.Key)
	other, err := Derive(network.TestNetworkPassphrase, asContract, NamedSalt("registry"))
	require.NoError(t, err)
	require.NotEqual(t, got, other)
}

func TestDerive_ZeroDeployer(t *testing.T) {
	_, err := Derive(network.TestNetworkPassphrase, models.ZeroAddress, NamedSalt("x"))
	require.ErrorIs(t, err, models.ErrInvalidAddress)
}
