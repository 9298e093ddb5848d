// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers defaults, an optional YAML file and RUBYAMS_* env vars.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger providers.
const (
	LedgerEmulator   = "emulator"
	LedgerBlockfrost = "blockfrost"
)

// Signer kinds.
const (
	SignerKey    = "key"
	SignerRemote = "remote"
)

// Journal drivers.
const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Network is "testnet" or "mainnet"; it selects address prefixes.
	Network string `koanf:"network"`

	// BlueprintPath points at the compiled validator blueprint (plutus.json).
	BlueprintPath   string `koanf:"blueprint_path"`
	AuctionTitle    string `koanf:"auction_title"`
	EvaluationTitle string `koanf:"evaluation_title"`
	PolicyID        string `koanf:"policy_id"`
	AssetName       string `koanf:"asset_name"`

	// LedgerProvider selects the ledger backend: emulator or blockfrost.
	LedgerProvider      string `koanf:"ledger_provider"`
	BlockfrostURL       string `koanf:"blockfrost_url"`
	BlockfrostProjectID string `koanf:"blockfrost_project_id"`
	// EmulatorFundLovelace seeds the signer's wallet when the emulator is used.
	EmulatorFundLovelace uint64 `koanf:"emulator_fund_lovelace"`

	// Signer selects the signing capability: key or remote.
	Signer          string `koanf:"signer"`
	SignerKeyHex    string `koanf:"signer_key_hex"`
	SignerURL       string `koanf:"signer_url"`
	SignerServiceID string `koanf:"signer_service_id"`

	// Protocol and fee parameters.
	MinDepositLovelace    uint64 `koanf:"min_deposit_lovelace"`
	FeePerByte            uint64 `koanf:"fee_per_byte"`
	FeeConstant           uint64 `koanf:"fee_constant"`
	CollateralPercent     uint64 `koanf:"collateral_percent"`
	MinCollateralLovelace uint64 `koanf:"min_collateral_lovelace"`
	MinChangeLovelace     uint64 `koanf:"min_change_lovelace"`
	// PriceMem and PriceSteps are lovelace per execution unit, as decimals.
	PriceMem   string `koanf:"price_mem"`
	PriceSteps string `koanf:"price_steps"`
	// CostModelV2 overrides the built-in PlutusV2 cost model when set.
	CostModelV2 []int64 `koanf:"cost_model_v2"`

	// PollIntervalMS is the confirmation poll period.
	PollIntervalMS int `koanf:"poll_interval_ms"`
	// ConfirmTimeoutMS bounds how long a facade call waits for confirmation.
	ConfirmTimeoutMS int `koanf:"confirm_timeout_ms"`
	// SubmitRatePerSec throttles submissions to the ledger.
	SubmitRatePerSec float64 `koanf:"submit_rate_per_sec"`
	SubmitBurst      int     `koanf:"submit_burst"`

	// Tracker follows transactions that outlived ConfirmTimeoutMS.
	TrackerWorkers   int `koanf:"tracker_workers"`
	TrackerQueueSize int `koanf:"tracker_queue_size"`
	TrackerWindowMS  int `koanf:"tracker_window_ms"`
	DedupeSize       int `koanf:"dedupe_size"`

	// JournalDriver selects the activity journal: memory or postgres.
	JournalDriver string `koanf:"journal_driver"`
	JournalDSN    string `koanf:"journal_dsn"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		Network:               "testnet",
		BlueprintPath:         "plutus.json",
		AuctionTitle:          "class.class",
		EvaluationTitle:       "evaluate.evaluate",
		LedgerProvider:        LedgerEmulator,
		BlockfrostURL:         "https://cardano-preprod.blockfrost.io/api/v0",
		EmulatorFundLovelace:  1_000_000_000,
		Signer:                SignerKey,
		SignerServiceID:       "rubyams",
		MinDepositLovelace:    2_000_000,
		FeePerByte:            44,
		FeeConstant:           155_381,
		CollateralPercent:     150,
		MinCollateralLovelace: 5_000_000,
		MinChangeLovelace:     1_000_000,
		PriceMem:              "0.0577",
		PriceSteps:            "0.0000721",
		PollIntervalMS:        3_000,
		ConfirmTimeoutMS:      120_000,
		SubmitRatePerSec:      5,
		SubmitBurst:           5,
		TrackerWorkers:        4,
		TrackerQueueSize:      1_000,
		TrackerWindowMS:       600_000,
		DedupeSize:            10_000,
		JournalDriver:         JournalMemory,
	}
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// ConfirmTimeout returns ConfirmTimeoutMS as a duration.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.ConfirmTimeoutMS) * time.Millisecond
}

// TrackerWindow returns TrackerWindowMS as a duration.
func (c *Config) TrackerWindow() time.Duration {
	return time.Duration(c.TrackerWindowMS) * time.Millisecond
}

// ExUnitPrices parses PriceMem and PriceSteps.
func (c *Config) ExUnitPrices() (mem, steps decimal.Decimal, err error) {
	if mem, err = parsePrice("price_mem", c.PriceMem); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if steps, err = parsePrice("price_steps", c.PriceSteps); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return mem, steps, nil
}

func parsePrice(name, raw string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, invalid("%s %q is not a decimal", name, raw)
	}
	if p.IsNegative() {
		return decimal.Zero, invalid("%s %q must not be negative", name, raw)
	}
	return p, nil
}

// Validate checks the combination of settings.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.Network != "testnet" && c.Network != "mainnet":
		return invalid("network must be testnet or mainnet, got %q", c.Network)
	case c.BlueprintPath == "":
		return invalid("blueprint_path must not be empty")
	case c.AuctionTitle == "" || c.EvaluationTitle == "":
		return invalid("validator titles must not be empty")
	case c.MinDepositLovelace == 0:
		return invalid("min_deposit_lovelace must be positive")
	case c.PollIntervalMS <= 0:
		return invalid("poll_interval_ms must be positive")
	case c.ConfirmTimeoutMS <= 0:
		return invalid("confirm_timeout_ms must be positive")
	case c.SubmitRatePerSec <= 0:
		return invalid("submit_rate_per_sec must be positive")
	}

	if _, _, err := c.ExUnitPrices(); err != nil {
		return err
	}

	switch c.LedgerProvider {
	case LedgerEmulator:
	case LedgerBlockfrost:
		if c.BlockfrostURL == "" || c.BlockfrostProjectID == "" {
			return invalid("blockfrost ledger requires blockfrost_url and blockfrost_project_id")
		}
	default:
		return invalid("unknown ledger_provider %q", c.LedgerProvider)
	}

	switch c.Signer {
	case SignerKey:
	case SignerRemote:
		if c.SignerURL == "" {
			return invalid("remote signer requires signer_url")
		}
	default:
		return invalid("unknown signer %q", c.Signer)
	}

	switch c.JournalDriver {
	case JournalMemory:
	case JournalPostgres:
		if c.JournalDSN == "" {
			return invalid("postgres journal requires journal_dsn")
		}
	default:
		return invalid("unknown journal_driver %q", c.JournalDriver)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
