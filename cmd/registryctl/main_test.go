package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"implregistry/internal/deploy"
	"implregistry/internal/models"
	"implregistry/internal/storage"
	"implregistry/internal/templates"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stretchr/testify/require"
)

// run executes registryctl with args against a clean environment and returns its output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "DEPLOYER_ACCOUNT", "REGISTRY_ADDRESS", "FACTORY_ADDRESS", "NETWORK_PASSPHRASE"} {
		t.Setenv(key, "")
	}

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

func TestTypehash(t *testing.T) {
	out, err := run(t, "typehash", "Token")
	require.NoError(t, err)

	resp := decode[models.TypeHashResponse](t, out)
	require.Equal(t, "Token", resp.Name)
	require.Equal(t, models.HashTypeName("Token"), resp.TypeKey)
}

func TestStrkey(t *testing.T) {
	hexID := strings.Repeat("01", 32)

	out, err := run(t, "strkey", hexID)
	require.NoError(t, err)
	contract := decode[strkeyOutput](t, out)
	require.Equal(t, "contract", contract.Kind)
	require.Equal(t, hexID, contract.Hex)
	require.True(t, strings.HasPrefix(contract.Address, "C"))

	// and back again from the strkey form
	out, err = run(t, "strkey", contract.Address)
	require.NoError(t, err)
	require.Equal(t, contract, decode[strkeyOutput](t, out))

	account := keypair.MustRandom().Address()
	out, err = run(t, "strkey", account)
	require.NoError(t, err)
	require.Equal(t, "account", decode[strkeyOutput](t, out).Kind)

	_, err = run(t, "strkey", "not-an-address")
	require.ErrorIs(t, err, models.ErrInvalidAddress)
}

func TestKeygen(t *testing.T) {
	out, err := run(t, "keygen")
	require.NoError(t, err)

	kp := decode[keygenOutput](t, out)
	full, err := keypair.ParseFull(kp.Seed)
	require.NoError(t, err)
	require.Equal(t, kp.Address, full.Address())
}

func TestPredict(t *testing.T) {
	who := keypair.MustRandom().Address()

	out, err := run(t, "predict", "--deployer", who, "--salt", "my-clone")
	require.NoError(t, err)
	resp := decode[models.PredictResponse](t, out)

	// a live deployment must clone to the same address
	deployer := models.MustParseAddress(who)
	d, err := deploy.Deploy(context.Background(), deploy.Options{
		NetworkPassphrase: network.TestNetworkPassphrase,
		Deployer:          deployer,
		Store:             storage.NewMemoryStore(),
	})
	require.NoError(t, err)

	template, ok := d.Template(templates.InitializableName)
	require.True(t, ok)
	require.Equal(t, template, resp.Template)
	require.Equal(t, d.Factory.Address(), resp.Factory)

	addr, err := d.Factory.Clone(context.Background(), deployer, deploy.CloneSalt("my-clone"), template)
	require.NoError(t, err)
	require.Equal(t, addr, resp.Address)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no factory or deployer", []string{"predict", "--salt", "s", "--template", strings.Repeat("02", 32)}},
		{"named template without deployer", []string{"predict", "--salt", "s", "--factory", strings.Repeat("03", 32)}},
		{"zero template", []string{"predict", "--salt", "s", "--factory", strings.Repeat("03", 32), "--template", strings.Repeat("00", 32)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.ErrorIs(t, err, models.ErrInvalidAddress)
		})
	}

	_, err := run(t, "predict", "--factory", strings.Repeat("03", 32))
	require.Error(t, err, "salt is required")
}

func TestSeed(t *testing.T) {
	who := keypair.MustRandom().Address()
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "seed.toml")
	journalPath := filepath.Join(dir, "contracts.out")

	require.NoError(t, os.WriteFile(manifestPath, []byte(`
[[types]]
name = "Initializable"

[[implementations]]
type = "Initializable"
template = "Initializable"
version = 1
commit = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

[factory]
implementation = "Initializable"
`), 0o644))

	out, err := run(t, "seed", "--deployer", who, "--manifest", manifestPath, "--journal", journalPath)
	require.NoError(t, err)

	resp := decode[seedOutput](t, out)
	require.Equal(t, 3, resp.Applied)
	require.Zero(t, resp.Skipped)
	require.NotZero(t, resp.LastSeq)

	journal, err := os.ReadFile(journalPath)
	require.NoError(t, err)
	require.Contains(t, string(journal), deploy.RegistryComponent+" contract deployed at: ")
}

func TestSeed_MissingManifest(t *testing.T) {
	_, err := run(t, "seed", "--manifest", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestLatest_UnknownType(t *testing.T) {
	who := keypair.MustRandom().Address()

	_, err := run(t, "latest", "Token", "--deployer", who)
	require.ErrorIs(t, err, models.ErrTypeDoesNotExist)

	_, err = run(t, "version", "Token", "zero", "--deployer", who)
	require.ErrorIs(t, err, models.ErrInvalidVersion)
}

func TestGrant(t *testing.T) {
	who := keypair.MustRandom().Address()
	member := keypair.MustRandom().Address()

	out, err := run(t, "grant", "updater", member, "--deployer", who, "--component", "factory")
	require.NoError(t, err)

	resp := decode[roleOutput](t, out)
	require.Equal(t, models.UpdaterRole, resp.Role)
	require.Contains(t, resp.Members, models.MustParseAddress(member))

	_, err = run(t, "revoke", "updater", member, "--deployer", who, "--caller", member)
	require.ErrorIs(t, err, models.ErrNotAuthorized)

	_, err = run(t, "grant", "updater", member, "--deployer", who, "--component", "host")
	require.Error(t, err)
}
