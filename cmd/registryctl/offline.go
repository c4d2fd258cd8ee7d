package main

import (
	"fmt"

	"implregistry/internal/deploy"
	"implregistry/internal/factory"
	"implregistry/internal/models"
	"implregistry/internal/templates"

	"github.com/spf13/cobra"
	"github.com/stellar/go/keypair"
)

func (c *cli) typehashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "typehash NAME",
		Short: "Print the storage key of a contract type name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.printJSON(models.TypeHashResponse{
				Name:    args[0],
				TypeKey: models.HashTypeName(args[0]),
			})
		},
	}
}

type strkeyOutput struct {
	Address string `json:"address"`
	Hex     string `json:"hex"`
	Kind    string `json:"kind"`
}

func (c *cli) strkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strkey ADDRESS",
		Short: "Convert an address between strkey and hex",
		Long: `Convert an address between its strkey form and raw hex.

Accepts an account (G...), a contract (C...) or 64 hex characters, which are
read as a contract id.`,
		Example: `  registryctl strkey 0101010101010101010101010101010101010101010101010101010101010101`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := models.ParseAddress(args[0])
			if err != nil {
				return err
			}
			kind := "account"
			if addr.IsContract() {
				kind = "contract"
			}
			return c.printJSON(strkeyOutput{Address: addr.String(), Hex: addr.Hex(), Kind: kind})
		},
	}
}

type keygenOutput struct {
	Address string `json:"address"`
	Seed    string `json:"seed"`
}

func (c *cli) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random account keypair for a deployer or caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := keypair.Random()
			if err != nil {
				return fmt.Errorf("failed to generate keypair: %w", err)
			}
			return c.printJSON(keygenOutput{Address: kp.Address(), Seed: kp.Seed()})
		},
	}
}

func (c *cli) predictCmd() *cobra.Command {
	var salt, template string

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the address of a clone without creating it",
		Long: `Predict the address a factory assigns to a clone of template for salt.

The factory comes from --factory (or FACTORY_ADDRESS). Without one, the factory
the deployer would create is used. --template takes an address or the name of a
built-in template; it defaults to the Initializable template.`,
		Example: `  registryctl predict --deployer $DEPLOYER_ACCOUNT --salt my-clone
  registryctl predict --factory $FACTORY_ADDRESS --template $TEMPLATE --salt release-7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}

			var deployer models.Address
			if cfg.DeployerAccount != "" {
				if deployer, err = cfg.Deployer(); err != nil {
					return err
				}
			}

			factoryAddr, err := optionalAddress(cfg.FactoryAddress)
			if err != nil {
				return err
			}
			if factoryAddr.IsZero() {
				if deployer.IsZero() {
					return fmt.Errorf("%w: --factory or --deployer is required", models.ErrInvalidAddress)
				}
				if factoryAddr, err = deploy.DeriveAddress(cfg.NetworkPassphrase, deployer, deploy.FactoryComponent); err != nil {
					return err
				}
			}

			var templateAddr models.Address
			switch {
			case template == templates.InitializableName:
				if deployer.IsZero() {
					return fmt.Errorf("%w: --deployer is required to locate template %s", models.ErrInvalidAddress, template)
				}
				if templateAddr, err = deploy.DeriveAddress(cfg.NetworkPassphrase, deployer, template); err != nil {
					return err
				}
			default:
				if templateAddr, err = models.ParseAddress(template); err != nil {
					return err
				}
			}

			s := deploy.CloneSalt(salt)
			addr, err := factory.PredictAddress(cfg.NetworkPassphrase, factoryAddr, s, templateAddr)
			if err != nil {
				return err
			}
			return c.printJSON(models.PredictResponse{
				Factory:  factoryAddr,
				Template: templateAddr,
				Salt:     s,
				Address:  addr,
			})
		},
	}

	cmd.Flags().StringVar(&salt, "salt", "", "clone salt, hex or a label hashed into one")
	cmd.Flags().StringVar(&template, "template", templates.InitializableName, "template address or built-in template name")
	_ = cmd.MarkFlagRequired("salt")
	return cmd
}
