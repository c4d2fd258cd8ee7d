package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"implregistry/internal/config"
	"implregistry/internal/deploy"
	"implregistry/internal/models"
	"implregistry/internal/services"
	"implregistry/internal/storage"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const rootLong = `Inspect and administer an implementation registry and its clone factory.

Settings come from flags, then the environment (and a .env file), then defaults.
Commands that read or change state use DATABASE_URL; without it they run
against a throwaway in-memory deployment.`

// cli carries the state shared by every subcommand
type cli struct {
	v   *viper.Viper
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}

	root := &cobra.Command{
		Use:           "registryctl",
		Short:         "Inspect and administer an implementation registry",
		Long:          rootLong,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.String("network", "", "network passphrase (env NETWORK_PASSPHRASE)")
	flags.String("database-url", "", "PostgreSQL connection string (env DATABASE_URL)")
	flags.String("deployer", "", "deployer account (env DEPLOYER_ACCOUNT)")
	flags.String("registry", "", "registry address (env REGISTRY_ADDRESS)")
	flags.String("factory", "", "factory address (env FACTORY_ADDRESS)")

	_ = c.v.BindPFlag("NETWORK_PASSPHRASE", flags.Lookup("network"))
	_ = c.v.BindPFlag("DATABASE_URL", flags.Lookup("database-url"))
	_ = c.v.BindPFlag("DEPLOYER_ACCOUNT", flags.Lookup("deployer"))
	_ = c.v.BindPFlag("REGISTRY_ADDRESS", flags.Lookup("registry"))
	_ = c.v.BindPFlag("FACTORY_ADDRESS", flags.Lookup("factory"))

	root.AddCommand(
		c.typehashCmd(),
		c.strkeyCmd(),
		c.keygenCmd(),
		c.predictCmd(),
		c.seedCmd(),
		c.latestCmd(),
		c.versionCmd(),
		c.roleCmd("grant"),
		c.roleCmd("revoke"),
	)
	return root
}

func (c *cli) config() (*config.Config, error) {
	return config.LoadFrom(c.v)
}

// openDeployment stands up the deployment described by the configuration. The returned
// close function releases the store.
func (c *cli) openDeployment(ctx context.Context) (*deploy.Deployment, func(), error) {
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var store storage.Store
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using a throwaway in-memory deployment")
		store = storage.NewMemoryStore()
	} else {
		pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		store = pg
	}

	opts := deploy.Options{
		NetworkPassphrase: cfg.NetworkPassphrase,
		MaxTypeNameLength: cfg.MaxTypeNameLength,
		Store:             store,
		Publisher:         auditLog{services.NewAuditLogService(nil)},
	}
	if opts.Deployer, err = cfg.Deployer(); err != nil {
		store.Close()
		return nil, nil, err
	}
	if opts.RegistryAddress, err = optionalAddress(cfg.RegistryAddress); err != nil {
		store.Close()
		return nil, nil, err
	}
	if opts.FactoryAddress, err = optionalAddress(cfg.FactoryAddress); err != nil {
		store.Close()
		return nil, nil, err
	}

	d, err := deploy.Deploy(ctx, opts)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return d, func() { store.Close() }, nil
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// auditLog prints the events of every committed call
type auditLog struct {
	svc *services.AuditLogService
}

func (a auditLog) Publish(ctx context.Context, events []*models.Event) {
	for _, ev := range events {
		_ = a.svc.Process(ctx, ev)
	}
	_ = a.svc.FlushCall(ctx)
}

func optionalAddress(s string) (models.Address, error) {
	if s == "" {
		return models.Address{}, nil
	}
	return models.ParseAddress(s)
}
