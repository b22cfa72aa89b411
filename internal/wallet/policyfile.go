package wallet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// policyFile is the on-disk YAML shape for a wallet-policy bundle: one
// entry per walletID, matching the teacher's operational-fixture style
// under its ops/seeds directory.
type policyFile struct {
	Policies map[string]policyFileEntry `yaml:"policies"`
}

type policyFileEntry struct {
	MaxAmountCents              int64    `yaml:"maxAmountCents"`
	MaxDailyAuthorizationCents  int64    `yaml:"maxDailyAuthorizationCents"`
	AllowedProviderIDs          []string `yaml:"allowedProviderIds"`
	AllowedToolIDs              []string `yaml:"allowedToolIds"`
	AllowedAgentKeyIDs          []string `yaml:"allowedAgentKeyIds"`
	AllowedCurrencies           []string `yaml:"allowedCurrencies"`
	RequireQuote                bool     `yaml:"requireQuote"`
	RequireStrictRequestBinding bool     `yaml:"requireStrictRequestBinding"`
	RequireAgentKeyMatch        bool     `yaml:"requireAgentKeyMatch"`
	MaxDelegationDepth          int      `yaml:"maxDelegationDepth"`
}

// LoadPoliciesYAML reads a wallet-policy bundle from path, keyed by
// walletID, for the deploying service to hand to the x402 gate's
// PreAuthorizeCheck. Absent from spec.md's data model; this is the
// load-bearing shape operators actually need to configure per-wallet caps
// without recompiling.
func LoadPoliciesYAML(path string) (map[string]Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read policy file %s: %w", path, err)
	}

	var doc policyFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("wallet: parse policy file %s: %w", path, err)
	}

	policies := make(map[string]Policy, len(doc.Policies))
	for walletID, entry := range doc.Policies {
		policies[walletID] = Policy{
			WalletID:                    walletID,
			MaxAmountCents:              entry.MaxAmountCents,
			MaxDailyAuthorizationCents:  entry.MaxDailyAuthorizationCents,
			AllowedProviderIDs:          entry.AllowedProviderIDs,
			AllowedToolIDs:              entry.AllowedToolIDs,
			AllowedAgentKeyIDs:          entry.AllowedAgentKeyIDs,
			AllowedCurrencies:           entry.AllowedCurrencies,
			RequireQuote:                entry.RequireQuote,
			RequireStrictRequestBinding: entry.RequireStrictRequestBinding,
			RequireAgentKeyMatch:        entry.RequireAgentKeyMatch,
			MaxDelegationDepth:          entry.MaxDelegationDepth,
		}
	}
	return policies, nil
}
