package bot

import (
	"fmt"
	"os"
	"strings"
	"time"

	coreconfig "tradebot/core/config"
	coredatabase "tradebot/core/database"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Storage modes for the participant directory.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// defaultEmailDomains is the registration allow-list applied when none is
// configured.
var defaultEmailDomains = []string{"gmail.com", "yahoo.com", "outlook.com", "mail.com"}

// OperatorsConfig lists the participant identifiers allowed to run
// operator-only commands and flows.
type OperatorsConfig struct {
	IDs []int64 `yaml:"ids" envconfig:"OPERATOR_IDS"`
}

// RegistrationConfig tunes the sign-up flow.
type RegistrationConfig struct {
	EmailDomains []string `yaml:"email_domains" envconfig:"EMAIL_DOMAINS"`
}

// DialogConfig tunes conversation session handling.
type DialogConfig struct {
	// IdleTTLMinutes auto-cancels sessions idle for this long; 0 keeps
	// them forever.
	IdleTTLMinutes int `yaml:"idle_ttl_minutes" envconfig:"DIALOG_IDLE_TTL_MINUTES"`
}

// StorageConfig selects the participant directory backend.
type StorageConfig struct {
	Mode string `yaml:"mode" envconfig:"STORAGE_MODE"`
}

// TradingConfig holds the portfolio stub defaults.
type TradingConfig struct {
	StartingBalance string `yaml:"starting_balance" envconfig:"TRADING_STARTING_BALANCE"`
}

// AssetsConfig points at static branding assets.
type AssetsConfig struct {
	LogoURL string `yaml:"logo_url" envconfig:"LOGO_URL"`
}

// Config is the full application configuration: the reusable core settings
// plus the bot's own sections.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Operators    OperatorsConfig     `yaml:"operators"`
	Registration RegistrationConfig  `yaml:"registration"`
	Dialog       DialogConfig        `yaml:"dialog"`
	Storage      StorageConfig       `yaml:"storage"`
	Database     coredatabase.Config `yaml:"database"`
	Trading      TradingConfig       `yaml:"trading"`
	Assets       AssetsConfig        `yaml:"assets"`
}

// CoreConfig exposes the embedded core configuration for the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// IdleTTL returns the configured session idle expiry as a duration.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.Dialog.IdleTTLMinutes) * time.Minute
}

// StartingBalance parses the configured portfolio seed balance.
func (c *Config) StartingBalance() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.Trading.StartingBalance)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("trading.starting_balance %q: %w", raw, err)
	}
	return d, nil
}

// LoadConfig reads the application configuration from a YAML file with
// environment overrides, then validates it.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(cfg *Config) error {
	mode := strings.ToLower(strings.TrimSpace(cfg.Storage.Mode))
	if mode == "" {
		mode = StorageMemory
	}
	switch mode {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" {
			return fmt.Errorf("database.host is required when storage.mode is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.mode %q; allowed: memory, postgres", cfg.Storage.Mode)
	}
	cfg.Storage.Mode = mode

	if cfg.Dialog.IdleTTLMinutes < 0 {
		return fmt.Errorf("dialog.idle_ttl_minutes must be >= 0")
	}

	if len(cfg.Registration.EmailDomains) == 0 {
		cfg.Registration.EmailDomains = append([]string(nil), defaultEmailDomains...)
	}
	for i, d := range cfg.Registration.EmailDomains {
		cfg.Registration.EmailDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}

	if _, err := cfg.StartingBalance(); err != nil {
		return err
	}
	return nil
}
