package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/interstate-labs/preconf-gateway/chain"
)

// Config holds every environment-sourced knob the gateway needs to start
// (§6's "Environment variables (gateway)" list).
type Config struct {
	CommitmentPort int
	BuilderPort    int
	MetricsPort    int

	BeaconAPIURL    string
	ExecutionAPIURL string
	EngineAPIURL    string
	RelayURLs       []string

	Chain               chain.Chain
	CommitmentDeadlineMs int64
	SlotTimeSeconds      uint64

	JWTSecret [32]byte

	FeeRecipient common.Address

	KeystorePubkeysPath string
	KeystoreSecretsPath string
}

// DefaultConfig returns a Config with the reference deployment's typical
// port and timing defaults; every URL/path field must still be set from
// the environment.
func DefaultConfig() Config {
	return Config{
		CommitmentPort:       8000,
		BuilderPort:          8001,
		MetricsPort:          8002,
		CommitmentDeadlineMs: 2000,
		SlotTimeSeconds:      12,
	}
}

// LoadConfigFromEnv overlays process environment variables onto
// DefaultConfig's values.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("COMMITMENT_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("COMMITMENT_PORT: %w", err)
		}
		cfg.CommitmentPort = p
	}
	if v := os.Getenv("BUILDER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("BUILDER_PORT: %w", err)
		}
		cfg.BuilderPort = p
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = p
	}

	cfg.BeaconAPIURL = os.Getenv("BEACON_API_URL")
	cfg.ExecutionAPIURL = os.Getenv("EXECUTION_API_URL")
	cfg.EngineAPIURL = os.Getenv("ENGINE_API_URL")

	if v := os.Getenv("RELAY_URL"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				cfg.RelayURLs = append(cfg.RelayURLs, part)
			}
		}
	}

	chainName := os.Getenv("CHAIN")
	if chainName == "" {
		chainName = "mainnet"
	}
	c, err := chain.Parse(chainName)
	if err != nil {
		return cfg, err
	}
	cfg.Chain = c

	if v := os.Getenv("COMMITMENT_DEADLINE"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("COMMITMENT_DEADLINE: %w", err)
		}
		cfg.CommitmentDeadlineMs = ms
	}
	if v := os.Getenv("SLOT_TIME"); v != "" {
		s, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("SLOT_TIME: %w", err)
		}
		cfg.SlotTimeSeconds = s
	}

	if v := os.Getenv("JWT"); v != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
		if err != nil || len(raw) != 32 {
			return cfg, fmt.Errorf("JWT: expected 64 hex characters (32 bytes)")
		}
		copy(cfg.JWTSecret[:], raw)
	}

	if v := os.Getenv("FEE_RECIPIENT"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("FEE_RECIPIENT: not a valid address: %q", v)
		}
		cfg.FeeRecipient = common.HexToAddress(v)
	}

	cfg.KeystorePubkeysPath = os.Getenv("KEYSTORE_PUBKEYS_PATH")
	cfg.KeystoreSecretsPath = os.Getenv("KEYSTORE_SECRETS_PATH")

	return cfg, nil
}

// Validate checks that every field required to dial out actually has a
// value; local-signing fields (keystore paths) are optional since a
// relay-proxy-only deployment may run with no local signing keys.
func (c Config) Validate() error {
	if c.BeaconAPIURL == "" {
		return fmt.Errorf("BEACON_API_URL is required")
	}
	if c.ExecutionAPIURL == "" {
		return fmt.Errorf("EXECUTION_API_URL is required")
	}
	if c.EngineAPIURL == "" {
		return fmt.Errorf("ENGINE_API_URL is required")
	}
	if len(c.RelayURLs) == 0 {
		return fmt.Errorf("RELAY_URL is required")
	}
	if c.FeeRecipient == (common.Address{}) {
		return fmt.Errorf("FEE_RECIPIENT is required")
	}
	return nil
}

// hasLocalSigningKeys reports whether both keystore paths were configured.
func (c Config) hasLocalSigningKeys() bool {
	return c.KeystorePubkeysPath != "" && c.KeystoreSecretsPath != ""
}
