// Package config loads this module's service configuration from TOML,
// generating and persisting fresh server and time-authority signer keypairs
// on first run the way the
// teacher's validator-key bootstrap does.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"settld/internal/cryptoutil"
)

// Config is the settld service configuration.
type Config struct {
	ListenAddress             string `toml:"ListenAddress"`
	DataDir                   string `toml:"DataDir"`
	ServerSignerKeyPEM        string `toml:"ServerSignerKeyPEM"`
	TimeAuthoritySignerKeyPEM string `toml:"TimeAuthoritySignerKeyPEM"`
	PilotKillSwitchActive     bool   `toml:"PilotKillSwitchActive"`
	RealMoneyEnabled          bool   `toml:"RealMoneyEnabled"`
	StripeConnectAccountID    string `toml:"StripeConnectAccountID"`
	PayoutKillSwitchActive    bool   `toml:"PayoutKillSwitchActive"`
	PayoutPerCallCapCents     int64  `toml:"PayoutPerCallCapCents"`
	PayoutDailyCapCents       int64  `toml:"PayoutDailyCapCents"`
	NegativeBalanceMode       string `toml:"NegativeBalanceMode"`

	CapabilityIssuerKeyID        string `toml:"CapabilityIssuerKeyID"`
	CapabilityIssuerPublicKeyPEM string `toml:"CapabilityIssuerPublicKeyPEM"`
}

// Load reads the configuration at path, creating a default file with freshly
// generated signer keys if none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	changed := false
	if cfg.ServerSignerKeyPEM == "" {
		kp, err := cryptoutil.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		cfg.ServerSignerKeyPEM = kp.PrivateKeyPEM
		changed = true
	}
	if cfg.TimeAuthoritySignerKeyPEM == "" {
		kp, err := cryptoutil.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		cfg.TimeAuthoritySignerKeyPEM = kp.PrivateKeyPEM
		changed = true
	}
	if cfg.NegativeBalanceMode == "" {
		cfg.NegativeBalanceMode = "hold"
		changed = true
	}

	if changed {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	serverKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	timeKP, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:             ":8443",
		DataDir:                   "./settld-data",
		ServerSignerKeyPEM:        serverKP.PrivateKeyPEM,
		TimeAuthoritySignerKeyPEM: timeKP.PrivateKeyPEM,
		NegativeBalanceMode:       "hold",
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
