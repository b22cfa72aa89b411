// Package wallet implements the wallet policy, delegation lineage, and
// escrow-lock bookkeeping that the x402 authorization gate (spec §4.11)
// checks against before reserving and minting spend authorization.
package wallet

import (
	"fmt"
	"sort"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// Policy is a wallet's spend-authorization policy (spec §4.11 Entities).
type Policy struct {
	WalletID                    string
	MaxAmountCents              int64
	MaxDailyAuthorizationCents  int64
	AllowedProviderIDs          []string
	AllowedToolIDs              []string
	AllowedAgentKeyIDs          []string
	AllowedCurrencies           []string
	RequireQuote                bool
	RequireStrictRequestBinding bool
	RequireAgentKeyMatch        bool
	MaxDelegationDepth          int
}

// Fingerprint computes the policy's policyFingerprint: a hash over its
// canonical form, so gates can bind a decision to the exact policy
// version that produced it.
func (p Policy) Fingerprint() (string, error) {
	core := canonical.Object(
		canonical.Field("walletId", p.WalletID),
		canonical.Field("maxAmountCents", p.MaxAmountCents),
		canonical.Field("maxDailyAuthorizationCents", p.MaxDailyAuthorizationCents),
		canonical.Field("allowedProviderIds", sortedAny(p.AllowedProviderIDs)),
		canonical.Field("allowedToolIds", sortedAny(p.AllowedToolIDs)),
		canonical.Field("allowedAgentKeyIds", sortedAny(p.AllowedAgentKeyIDs)),
		canonical.Field("allowedCurrencies", sortedAny(p.AllowedCurrencies)),
		canonical.Field("requireQuote", p.RequireQuote),
		canonical.Field("requireStrictRequestBinding", p.RequireStrictRequestBinding),
		canonical.Field("requireAgentKeyMatch", p.RequireAgentKeyMatch),
		canonical.Field("maxDelegationDepth", p.MaxDelegationDepth),
	)
	return cryptoutil.HashCanonical(core)
}

func sortedAny(s []string) []any {
	sorted := append([]string{}, s...)
	sort.Strings(sorted)
	out := make([]any, 0, len(sorted))
	for _, v := range sorted {
		out = append(out, v)
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return len(list) == 0
}

// AllowsProvider reports whether providerID is in the policy's allowlist.
// An empty allowlist allows everything (spec treats absence as no
// restriction; callers combine this with other guards).
func (p Policy) AllowsProvider(providerID string) bool { return containsString(p.AllowedProviderIDs, providerID) }

// AllowsTool reports whether toolID is in the policy's allowlist.
func (p Policy) AllowsTool(toolID string) bool { return containsString(p.AllowedToolIDs, toolID) }

// AllowsAgentKey reports whether agentKeyID is in the policy's allowlist.
func (p Policy) AllowsAgentKey(agentKeyID string) bool { return containsString(p.AllowedAgentKeyIDs, agentKeyID) }

// AllowsCurrency reports whether currency is in the policy's allowlist.
func (p Policy) AllowsCurrency(currency string) bool { return containsString(p.AllowedCurrencies, currency) }

// ValidateAmount enforces the per-call and (given the caller-supplied
// running total) daily caps.
func ValidateAmount(p Policy, amountCents, dailyTotalSoFarCents int64) error {
	if amountCents > p.MaxAmountCents {
		return fmt.Errorf("X402_PILOT_AMOUNT_LIMIT_EXCEEDED: %d exceeds per-call cap %d", amountCents, p.MaxAmountCents)
	}
	projected := dailyTotalSoFarCents + amountCents
	if projected > p.MaxDailyAuthorizationCents {
		return fmt.Errorf("X402_PILOT_DAILY_LIMIT_EXCEEDED: projected %d exceeds daily cap %d", projected, p.MaxDailyAuthorizationCents)
	}
	return nil
}
