package policy

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Policy holds the regulatory and product constants governing a closure.
// Defaults match current production values; override with a YAML file for
// environments with different transfer caps.
type Policy struct {
	// DailyTransferLimit is the maximum amount a single ACH transfer may move.
	DailyTransferLimit decimal.Decimal
	// DustThreshold is the residual balance below which an account counts as empty.
	DustThreshold decimal.Decimal
	// WithdrawalCadence is the minimum spacing between capped withdrawals.
	WithdrawalCadence time.Duration
	// PartialTTL bounds the lifetime of a persisted partial-withdrawal record.
	// Wider than the cadence so an abandoned record expires instead of leaking.
	PartialTTL time.Duration
}

// Default returns the production policy: $50,000 daily ACH cap, $1.00 dust
// threshold, 24h withdrawal cadence, 72h record TTL.
func Default() Policy {
	return Policy{
		DailyTransferLimit: decimal.NewFromInt(50000),
		DustThreshold:      decimal.New(100, -2), // $1.00
		WithdrawalCadence:  24 * time.Hour,
		PartialTTL:         72 * time.Hour,
	}
}

// file is the YAML shape of a policy override.
type file struct {
	DailyTransferLimit string `yaml:"daily_transfer_limit"`
	DustThreshold      string `yaml:"dust_threshold"`
	WithdrawalCadence  string `yaml:"withdrawal_cadence"`
	PartialTTL         string `yaml:"partial_ttl"`
}

// Load reads a policy override from a YAML file. Fields left empty keep
// their defaults.
func Load(path string) (Policy, error) {
	p := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return p, fmt.Errorf("parse policy file: %w", err)
	}

	if f.DailyTransferLimit != "" {
		d, err := decimal.NewFromString(f.DailyTransferLimit)
		if err != nil {
			return p, fmt.Errorf("daily_transfer_limit: %w", err)
		}
		p.DailyTransferLimit = d
	}
	if f.DustThreshold != "" {
		d, err := decimal.NewFromString(f.DustThreshold)
		if err != nil {
			return p, fmt.Errorf("dust_threshold: %w", err)
		}
		p.DustThreshold = d
	}
	if f.WithdrawalCadence != "" {
		d, err := time.ParseDuration(f.WithdrawalCadence)
		if err != nil {
			return p, fmt.Errorf("withdrawal_cadence: %w", err)
		}
		p.WithdrawalCadence = d
	}
	if f.PartialTTL != "" {
		d, err := time.ParseDuration(f.PartialTTL)
		if err != nil {
			return p, fmt.Errorf("partial_ttl: %w", err)
		}
		p.PartialTTL = d
	}

	return p, nil
}
