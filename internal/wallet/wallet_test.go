package wallet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func samplePolicy() Policy {
	return Policy{
		WalletID:                   "wallet_1",
		MaxAmountCents:             5000,
		MaxDailyAuthorizationCents: 20000,
		AllowedProviderIDs:         []string{"provider_a"},
		MaxDelegationDepth:         2,
	}
}

func TestPolicyFingerprintIsDeterministic(t *testing.T) {
	p := samplePolicy()
	a, err := p.Fingerprint()
	require.NoError(t, err)
	b, err := p.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestPolicyFingerprintChangesWithCaps(t *testing.T) {
	p := samplePolicy()
	a, err := p.Fingerprint()
	require.NoError(t, err)
	p.MaxAmountCents = 6000
	b, err := p.Fingerprint()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestAllowsProviderEmptyAllowlistAllowsAll(t *testing.T) {
	p := Policy{}
	require.True(t, p.AllowsProvider("anything"))
}

func TestAllowsProviderRestrictsToAllowlist(t *testing.T) {
	p := samplePolicy()
	require.True(t, p.AllowsProvider("provider_a"))
	require.False(t, p.AllowsProvider("provider_b"))
}

func TestValidateAmountRejectsOverPerCallCap(t *testing.T) {
	err := ValidateAmount(samplePolicy(), 5001, 0)
	require.ErrorContains(t, err, "X402_PILOT_AMOUNT_LIMIT_EXCEEDED")
}

func TestValidateAmountRejectsOverDailyCap(t *testing.T) {
	err := ValidateAmount(samplePolicy(), 5000, 16000)
	require.ErrorContains(t, err, "X402_PILOT_DAILY_LIMIT_EXCEEDED")
}

func TestValidateAmountAcceptsWithinCaps(t *testing.T) {
	err := ValidateAmount(samplePolicy(), 5000, 10000)
	require.NoError(t, err)
}

func TestLineageResolvesChainToRoot(t *testing.T) {
	root := Delegation{DelegationID: "d_root", ChildHash: "hash_root", Depth: 0, MaxDepth: 2}
	leaf := Delegation{DelegationID: "d_leaf", ParentHash: "hash_root", ChildHash: "hash_leaf", Depth: 1, MaxDepth: 2}
	lineage := NewLineage([]Delegation{root, leaf})

	chain, err := lineage.Resolve("hash_leaf", time.Unix(1780000000, 0))
	require.NoError(t, err)
	require.Equal(t, "d_root", Root(chain).DelegationID)
}

func TestLineageRejectsRevokedRoot(t *testing.T) {
	revokedAt := time.Unix(1779000000, 0)
	root := Delegation{DelegationID: "d_root", ChildHash: "hash_root", Depth: 0, MaxDepth: 2, RevokedAt: &revokedAt}
	lineage := NewLineage([]Delegation{root})

	_, err := lineage.Resolve("hash_root", time.Unix(1780000000, 0))
	require.ErrorContains(t, err, "X402_DELEGATION_REVOKED")
}

func TestLineageRejectsExpiredRoot(t *testing.T) {
	expiresAt := time.Unix(1779000000, 0)
	root := Delegation{DelegationID: "d_root", ChildHash: "hash_root", Depth: 0, MaxDepth: 2, ExpiresAt: &expiresAt}
	lineage := NewLineage([]Delegation{root})

	_, err := lineage.Resolve("hash_root", time.Unix(1780000000, 0))
	require.ErrorContains(t, err, "X402_DELEGATION_EXPIRED")
}

func TestLineageRejectsExcessiveDepth(t *testing.T) {
	root := Delegation{DelegationID: "d_root", ChildHash: "hash_root", Depth: 3, MaxDepth: 2}
	lineage := NewLineage([]Delegation{root})

	_, err := lineage.Resolve("hash_root", time.Unix(1780000000, 0))
	require.ErrorContains(t, err, "DELEGATION_DEPTH_EXCEEDED")
}

func TestEscrowLedgerLockAndUnlock(t *testing.T) {
	ledger := NewEscrowLedger()
	ledger.Lock("wallet_1", 5000)
	require.Equal(t, int64(5000), ledger.LockedCents("wallet_1"))

	require.NoError(t, ledger.Unlock("wallet_1", 5000))
	require.Equal(t, int64(0), ledger.LockedCents("wallet_1"))
}

func TestEscrowLedgerUnlockMoreThanLockedFails(t *testing.T) {
	ledger := NewEscrowLedger()
	ledger.Lock("wallet_1", 1000)
	err := ledger.Unlock("wallet_1", 2000)
	require.Error(t, err)
}
