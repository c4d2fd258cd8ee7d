package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"implregistry/internal/access"
	"implregistry/internal/models"
	"implregistry/internal/storage"
	"implregistry/internal/templates"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stretchr/testify/require"
)

const seedManifest = `
[[types]]
name = "Initializable"

[[types]]
name = "Token"

[[implementations]]
type = "Initializable"
template = "Initializable"
version = 1
commit = "0x1234567890abcdef1234567890abcdef1234567890abcdef1234567890abcdef"

[factory]
implementation = "Initializable"

[[clones]]
salt = "first"
template = "Initializable"
owner = "%OWNER%"
label = "first clone"
`

func deployer(t *testing.T) models.Address {
	t.Helper()
	addr, err := models.ParseAddress(keypair.MustRandom().Address())
	require.NoError(t, err)
	return addr
}

func newDeployment(t *testing.T, store storage.Store, who models.Address) *Deployment {
	t.Helper()
	d, err := Deploy(context.Background(), Options{
		NetworkPassphrase: network.TestNetworkPassphrase,
		Deployer:          who,
		Store:             store,
	})
	require.NoError(t, err)
	return d
}

func manifest(t *testing.T, owner models.Address) *Manifest {
	t.Helper()
	m, err := ParseManifest(strings.ReplaceAll(seedManifest, "%OWNER%", owner.String()))
	require.NoError(t, err)
	return m
}

func TestDeploy(t *testing.T) {
	ctx := context.Background()
	who := deployer(t)
	d := newDeployment(t, storage.NewMemoryStore(), who)

	for _, role := range []models.Role{models.AdminRole, models.UpdaterRole} {
		ok, err := d.Registry.HasRole(ctx, role, who)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = d.Factory.HasRole(ctx, role, who)
		require.NoError(t, err)
		require.True(t, ok)
	}

	tmpl, ok := d.Template(templates.InitializableName)
	require.True(t, ok)
	require.True(t, d.Host.Installed(tmpl))
	require.NotEqual(t, d.Registry.Address(), d.Factory.Address())
	require.NotZero(t, d.LastSeq())
}

// roleTable snapshots both roles on both components
func roleTable(t *testing.T, d *Deployment) map[string][]models.Address {
	t.Helper()
	ctx := context.Background()
	table := make(map[string][]models.Address)
	for _, role := range []models.Role{models.AdminRole, models.UpdaterRole} {
		members, err := d.Registry.Members(ctx, role)
		require.NoError(t, err)
		table["registry/"+string(role)] = members

		members, err = d.Factory.Members(ctx, role)
		require.NoError(t, err)
		table["factory/"+string(role)] = members
	}
	return table
}

func TestDeploy_Restart(t *testing.T) {
	store := storage.NewMemoryStore()
	who := deployer(t)

	first := newDeployment(t, store, who)
	before := roleTable(t, first)
	second := newDeployment(t, store, who)

	require.Equal(t, first.Registry.Address(), second.Registry.Address())
	require.Equal(t, first.Factory.Address(), second.Factory.Address())
	require.Equal(t, before, roleTable(t, second))
	require.Equal(t, []models.Address{who}, before["registry/"+string(models.UpdaterRole)])
}

func TestDeploy_RestartKeepsRevokedRoles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	who := deployer(t)
	admin := deployer(t)

	first := newDeployment(t, store, who)
	for _, ctl := range []*access.Control{first.Registry.Control, first.Factory.Control} {
		require.NoError(t, ctl.GrantRole(ctx, who, models.AdminRole, admin))
		require.NoError(t, ctl.RevokeRole(ctx, admin, models.UpdaterRole, who))
		require.NoError(t, ctl.RevokeRole(ctx, admin, models.AdminRole, who))
	}
	before := roleTable(t, first)

	second := newDeployment(t, store, who)
	require.Equal(t, before, roleTable(t, second))

	for _, ctl := range []*access.Control{second.Registry.Control, second.Factory.Control} {
		for _, role := range []models.Role{models.AdminRole, models.UpdaterRole} {
			ok, err := ctl.HasRole(ctx, role, who)
			require.NoError(t, err)
			require.False(t, ok, "%s on %s", role, ctl.Address())
		}
	}
}

func TestDeploy_ExistingComponentsGrantNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	first := newDeployment(t, store, deployer(t))

	other := deployer(t)
	second, err := Deploy(ctx, Options{
		NetworkPassphrase: network.TestNetworkPassphrase,
		Deployer:          other,
		RegistryAddress:   first.Registry.Address(),
		FactoryAddress:    first.Factory.Address(),
		Store:             store,
	})
	require.NoError(t, err)

	for _, ctl := range []*access.Control{second.Registry.Control, second.Factory.Control} {
		ok, err := ctl.HasRole(ctx, models.AdminRole, other)
		require.NoError(t, err)
		require.False(t, ok)
	}
	err = second.Registry.AddContractType(ctx, other, "Token")
	require.ErrorIs(t, err, models.ErrNotAuthorized)
}

func TestDeploy_RequiresDeployer(t *testing.T) {
	_, err := Deploy(context.Background(), Options{
		NetworkPassphrase: network.TestNetworkPassphrase,
		Store:             storage.NewMemoryStore(),
	})
	require.ErrorIs(t, err, models.ErrInvalidAddress)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	who := deployer(t)
	d := newDeployment(t, storage.NewMemoryStore(), who)
	m := manifest(t, who)

	sum, err := d.Apply(ctx, m)
	require.NoError(t, err)
	require.Equal(t, Summary{Applied: 5}, sum)

	tmpl, _ := d.Template(templates.InitializableName)
	latest, err := d.Registry.GetLatestImplementation(ctx, "Initializable")
	require.NoError(t, err)
	require.Equal(t, tmpl, latest.Address)

	impl, err := d.Factory.Implementation(ctx)
	require.NoError(t, err)
	require.Equal(t, tmpl, impl)

	clone, err := d.Factory.PredictCloneAddress(CloneSalt("first"), tmpl)
	require.NoError(t, err)
	_, found, err := d.Factory.CloneRecord(ctx, clone)
	require.NoError(t, err)
	require.True(t, found)

	// a second run changes nothing
	sum, err = d.Apply(ctx, m)
	require.NoError(t, err)
	require.Equal(t, Summary{Skipped: 5}, sum)
}

func TestApply_ConflictingVersion(t *testing.T) {
	ctx := context.Background()
	who := deployer(t)
	d := newDeployment(t, storage.NewMemoryStore(), who)

	_, err := d.Apply(ctx, manifest(t, who))
	require.NoError(t, err)

	conflicting, err := ParseManifest(`
[[implementations]]
type = "Initializable"
address = "` + who.String() + `"
version = 1
commit = "0xabcdef1234567890abcdef1234567890abcdef1234567890abcdef1234567890"
`)
	require.NoError(t, err)

	_, err = d.Apply(ctx, conflicting)
	require.ErrorIs(t, err, models.ErrVersionExists)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{name: "unknown key", toml: "[[types]]\nname = \"A\"\ncolor = \"red\"\n"},
		{name: "empty type name", toml: "[[types]]\nname = \"\"\n"},
		{name: "address and template", toml: "[[implementations]]\ntype = \"A\"\naddress = \"x\"\ntemplate = \"y\"\nversion = 1\ncommit = \"" + strings.Repeat("ab", 32) + "\"\n"},
		{name: "version zero", toml: "[[implementations]]\ntype = \"A\"\ntemplate = \"y\"\nversion = 0\ncommit = \"" + strings.Repeat("ab", 32) + "\"\n"},
		{name: "bad commit", toml: "[[implementations]]\ntype = \"A\"\ntemplate = \"y\"\nversion = 1\ncommit = \"0x12\"\n"},
		{name: "clone without template", toml: "[[clones]]\nsalt = \"s\"\n"},
		{name: "not toml", toml: "[[types"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(tt.toml)
			require.Error(t, err)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[types]]\nname = \"FromFile\"\n"), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, []TypeEntry{{Name: "FromFile"}}, m.Types)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestCloneSalt(t *testing.T) {
	raw := strings.Repeat("0f", 32)
	salt := CloneSalt(raw)
	require.Equal(t, byte(0x0f), salt[0])

	require.Equal(t, CloneSalt("first"), CloneSalt("first"))
	require.NotEqual(t, CloneSalt("first"), CloneSalt("second"))
}

func TestJournal(t *testing.T) {
	who := deployer(t)
	d := newDeployment(t, storage.NewMemoryStore(), who)
	path := filepath.Join(t.TempDir(), "contracts.out")
	j := NewJournal(path)

	require.NoError(t, j.RecordDeployment(d))
	require.NoError(t, j.Record("Extra", d.Registry.Address(), 42))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "ImplementationRegistry contract deployed at: "+d.Registry.Address().String())
	require.Contains(t, lines[1], "CloneFactory contract deployed at: "+d.Factory.Address().String())
	require.Equal(t, "Extra contract deployed at: "+d.Registry.Address().String()+" - Ledger: 42", lines[3])
}
