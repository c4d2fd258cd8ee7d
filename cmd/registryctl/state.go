package main

import (
	"fmt"
	"strconv"
	"strings"

	"implregistry/internal/access"
	"implregistry/internal/deploy"
	"implregistry/internal/models"

	"github.com/spf13/cobra"
)

type seedOutput struct {
	Applied int    `json:"applied"`
	Skipped int    `json:"skipped"`
	LastSeq uint64 `json:"last_seq"`
}

func (c *cli) seedCmd() *cobra.Command {
	var manifestPath, journalPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply a TOML manifest to the deployment",
		Long: `Apply a TOML manifest of contract types, implementations, the factory
implementation and clones. Entries already in place are skipped, so a manifest
can be applied repeatedly.`,
		Example: `  registryctl seed --manifest deployments/testnet.toml --journal contracts.out`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := deploy.LoadManifest(manifestPath)
			if err != nil {
				return err
			}

			d, closeStore, err := c.openDeployment(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			sum, err := d.Apply(cmd.Context(), m)
			if err != nil {
				return err
			}
			if journalPath != "" {
				if err := deploy.NewJournal(journalPath).RecordDeployment(d); err != nil {
					return err
				}
			}
			return c.printJSON(seedOutput{Applied: sum.Applied, Skipped: sum.Skipped, LastSeq: d.LastSeq()})
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "path to the TOML manifest")
	cmd.Flags().StringVar(&journalPath, "journal", "", "append deployed addresses to this file")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func (c *cli) latestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest NAME",
		Short: "Print the latest implementation of a contract type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, closeStore, err := c.openDeployment(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := d.Registry.GetLatestImplementation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(models.NewImplementationResponse(args[0], rec))
		},
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version NAME VERSION",
		Short: "Print one implementation version of a contract type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("%w: %s", models.ErrInvalidVersion, args[1])
			}

			d, closeStore, err := c.openDeployment(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := d.Registry.GetImplementationByVersion(cmd.Context(), args[0], uint32(version))
			if err != nil {
				return err
			}
			return c.printJSON(models.NewImplementationResponse(args[0], rec))
		},
	}
}

type roleOutput struct {
	Component string           `json:"component"`
	Role      models.Role      `json:"role"`
	Members   []models.Address `json:"members"`
}

// roleCmd builds the grant and revoke commands, which differ only in the call they make
func (c *cli) roleCmd(action string) *cobra.Command {
	var caller, component string

	cmd := &cobra.Command{
		Use:   action + " ROLE ACCOUNT",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a role on the registry or the factory",
		Long: fmt.Sprintf(`%s ROLE for ACCOUNT on one component. ROLE is admin, updater or a raw role
name. The caller must hold the admin role of that component.`, strings.ToUpper(action[:1])+action[1:]),
		Example: fmt.Sprintf("  registryctl %s updater $RELEASE_ACCOUNT --caller $DEPLOYER_ACCOUNT --component factory", action),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := parseRole(args[0])
			account, err := models.ParseAddress(args[1])
			if err != nil {
				return err
			}

			d, closeStore, err := c.openDeployment(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			from := d.Deployer
			if caller != "" {
				if from, err = models.ParseAddress(caller); err != nil {
					return err
				}
			}

			var ctl *access.Control
			switch component {
			case "registry":
				ctl = d.Registry.Control
			case "factory":
				ctl = d.Factory.Control
			default:
				return fmt.Errorf("unknown component %q, want registry or factory", component)
			}

			if action == "grant" {
				err = ctl.GrantRole(cmd.Context(), from, role, account)
			} else {
				err = ctl.RevokeRole(cmd.Context(), from, role, account)
			}
			if err != nil {
				return err
			}

			members, err := ctl.Members(cmd.Context(), role)
			if err != nil {
				return err
			}
			return c.printJSON(roleOutput{Component: component, Role: role, Members: members})
		},
	}

	cmd.Flags().StringVar(&caller, "caller", "", "account making the call (defaults to the deployer)")
	cmd.Flags().StringVar(&component, "component", "registry", "registry or factory")
	return cmd
}

func parseRole(s string) models.Role {
	switch strings.ToLower(s) {
	case "admin":
		return models.AdminRole
	case "updater":
		return models.UpdaterRole
	}
	return models.Role(s)
}
