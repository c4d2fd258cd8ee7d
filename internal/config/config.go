package config

import (
	"fmt"
	"strings"
	"time"

	"implregistry/internal/models"
	"implregistry/internal/retry"

	"github.com/spf13/viper"
	"github.com/stellar/go/network"
)

type Config struct {
	// Network passphrase ( mainnet or testnet ), part of every derived contract address
	NetworkPassphrase string

	// PostgreSQL connection string ( empty keeps all state in memory )
	DatabaseURL string

	// Port the read-only HTTP API listens on
	APIPort int

	// debug, info, warn or error
	LogLevel string

	// Account that deploys the registry and factory and receives their roles
	DeployerAccount string

	// Identities of the deployed components ( empty derives them from the deployer )
	RegistryAddress string
	FactoryAddress  string

	MaxTypeNameLength int

	// TOML manifest applied at startup ( optional )
	SeedManifest string

	// Deployment log written after startup ( optional )
	DeploymentsOut string

	Retry retry.Config
}

// Load reads the configuration from defaults and the environment
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom reads the configuration through v, after registering defaults on it
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		NetworkPassphrase: v.GetString("NETWORK_PASSPHRASE"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		APIPort:           v.GetInt("API_PORT"),
		LogLevel:          strings.ToLower(v.GetString("LOG_LEVEL")),
		DeployerAccount:   v.GetString("DEPLOYER_ACCOUNT"),
		RegistryAddress:   v.GetString("REGISTRY_ADDRESS"),
		FactoryAddress:    v.GetString("FACTORY_ADDRESS"),
		MaxTypeNameLength: v.GetInt("MAX_TYPE_NAME_LENGTH"),
		SeedManifest:      v.GetString("SEED_MANIFEST"),
		DeploymentsOut:    v.GetString("DEPLOYMENTS_OUT"),
		Retry: retry.Config{
			Enabled:      v.GetBool("RETRY_ENABLED"),
			MaxRetries:   v.GetInt("RETRY_MAX_RETRIES"),
			InitialDelay: time.Duration(v.GetInt("RETRY_INITIAL_DELAY_SEC")) * time.Second,
			MaxDelay:     time.Duration(v.GetInt("RETRY_MAX_DELAY_SEC")) * time.Second,
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := retry.DefaultConfig()

	// Mainnet passphrase use: Public Global Stellar Network ; September 2015
	v.SetDefault("NETWORK_PASSPHRASE", network.TestNetworkPassphrase)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("API_PORT", 2112)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEPLOYER_ACCOUNT", "")
	v.SetDefault("REGISTRY_ADDRESS", "")
	v.SetDefault("FACTORY_ADDRESS", "")
	v.SetDefault("MAX_TYPE_NAME_LENGTH", 64)
	v.SetDefault("SEED_MANIFEST", "")
	v.SetDefault("DEPLOYMENTS_OUT", "")
	v.SetDefault("RETRY_ENABLED", defaults.Enabled)
	v.SetDefault("RETRY_MAX_RETRIES", defaults.MaxRetries)
	v.SetDefault("RETRY_INITIAL_DELAY_SEC", int(defaults.InitialDelay/time.Second))
	v.SetDefault("RETRY_MAX_DELAY_SEC", int(defaults.MaxDelay/time.Second))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.NetworkPassphrase == "" {
		return fmt.Errorf("NETWORK_PASSPHRASE is required")
	}
	if c.DeployerAccount == "" {
		return fmt.Errorf("DEPLOYER_ACCOUNT is required")
	}
	if _, err := models.ParseAddress(c.DeployerAccount); err != nil {
		return fmt.Errorf("DEPLOYER_ACCOUNT: %w", err)
	}
	for key, value := range map[string]string{
		"REGISTRY_ADDRESS": c.RegistryAddress,
		"FACTORY_ADDRESS":  c.FactoryAddress,
	} {
		if value == "" {
			continue
		}
		if _, err := models.ParseAddress(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("API_PORT %d out of range", c.APIPort)
	}
	if c.MaxTypeNameLength <= 0 {
		return fmt.Errorf("MAX_TYPE_NAME_LENGTH must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	if c.Retry.Enabled && c.Retry.MaxRetries < 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must not be negative")
	}
	return nil
}

// Deployer returns the parsed deployer account
func (c *Config) Deployer() (models.Address, error) {
	return models.ParseAddress(c.DeployerAccount)
}
