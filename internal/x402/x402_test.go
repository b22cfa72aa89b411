package x402

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"settld/internal/cryptoutil"
	"settld/internal/wallet"
)

type fakeReserveAdapter struct {
	status ReserveStatus
}

func (f fakeReserveAdapter) Reserve(*Gate) (ReserveResult, error) {
	return ReserveResult{Status: f.status, ReserveID: "reserve_1"}, nil
}
func (fakeReserveAdapter) Release(*Gate) error { return nil }
func (fakeReserveAdapter) Forfeit(*Gate) error { return nil }

func samplePilot() PilotPolicy {
	return PilotPolicy{
		AllowedProviderIDs: []string{"provider_a"},
		PerCallCapCents:    5000,
		DailyCapCents:      20000,
	}
}

func samplePolicy() wallet.Policy {
	return wallet.Policy{
		WalletID:                   "wallet_1",
		MaxAmountCents:             5000,
		MaxDailyAuthorizationCents: 20000,
	}
}

func TestPreAuthorizeCheckRejectsKillSwitch(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gate.ProviderID = "provider_a"
	pilot := samplePilot()
	pilot.KillSwitchActive = true

	err := PreAuthorizeCheck(gate, pilot, samplePolicy(), 0)
	require.ErrorContains(t, err, "X402_PILOT_KILL_SWITCH_ACTIVE")
}

func TestPreAuthorizeCheckRejectsDisallowedProvider(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gate.ProviderID = "provider_b"

	err := PreAuthorizeCheck(gate, samplePilot(), samplePolicy(), 0)
	require.ErrorContains(t, err, "X402_PILOT_PROVIDER_NOT_ALLOWED")
}

func TestPreAuthorizeCheckRejectsSuspendedAgent(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gate.ProviderID = "provider_a"
	gate.Agent = AgentPassport{AgentID: "agent_1", Lifecycle: "suspended"}

	err := PreAuthorizeCheck(gate, samplePilot(), samplePolicy(), 0)
	require.ErrorContains(t, err, "X402_AGENT_SUSPENDED")
	var gerr *GuardError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, 410, gerr.HTTPStatus)
}

func TestPreAuthorizeCheckPassesWithinCaps(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gate.ProviderID = "provider_a"
	err := PreAuthorizeCheck(gate, samplePilot(), samplePolicy(), 0)
	require.NoError(t, err)
}

func TestAuthorizeHoldsReserveAndLocksEscrow(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	err := Authorize(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow)
	require.NoError(t, err)
	require.Equal(t, StateAuthorized, gate.Authorization)
	require.Equal(t, ReserveHeld, gate.Reserve)
	require.Equal(t, int64(1000), escrow.LockedCents("payer_1"))
}

func TestAuthorizeFailsClosedWhenReserveUnavailable(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	err := Authorize(gate, NoReserveAdapter{}, escrow)
	require.ErrorContains(t, err, "X402_RESERVE_UNAVAILABLE")
	require.Equal(t, StateCreated, gate.Authorization)
	require.Equal(t, int64(0), escrow.LockedCents("payer_1"))
}

func TestAuthorizeTransitionsToFailedOnReserveFailure(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	err := Authorize(gate, fakeReserveAdapter{status: ReserveStatusFailed}, escrow)
	require.Error(t, err)
	require.Equal(t, StateFailed, gate.Authorization)
	require.Equal(t, int64(0), escrow.LockedCents("payer_1"))
}

func TestRollbackReserveReleasesHoldAndUnlocksEscrow(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	require.NoError(t, Authorize(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow))

	require.NoError(t, RollbackReserve(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow))
	require.Equal(t, StateFailed, gate.Authorization)
	require.Equal(t, int64(0), escrow.LockedCents("payer_1"))
}

func TestVerifyGreenReleasesAndSettles(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	require.NoError(t, Authorize(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow))

	rates := ReleaseRates{AutoReleaseOnGreenPct: 100}
	err := Verify(gate, VerificationGreen, rates, DecisionBindings{}, time.Unix(1780000000, 0))
	require.NoError(t, err)
	require.Equal(t, StateReleased, gate.Authorization)
	require.Equal(t, int64(1000), gate.ReleasedCents)

	err = Settle(gate, fakeReserveAdapter{status: ReserveStatusHeld})
	require.NoError(t, err)
	require.Equal(t, StateSettled, gate.Authorization)
	require.Equal(t, "settled", gate.Settlement)
}

func TestVerifyAmberHolds(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	require.NoError(t, Authorize(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow))

	err := Verify(gate, VerificationAmber, ReleaseRates{}, DecisionBindings{}, time.Unix(1780000000, 0))
	require.NoError(t, err)
	require.Equal(t, StateHeld, gate.Authorization)
}

func TestPreAuthorizeCheckRejectsExpiredDelegationRoot(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gate.ProviderID = "provider_a"
	gate.DelegationRef = "leaf"

	expired := time.Unix(1700000000, 0)
	lineage := wallet.NewLineage([]wallet.Delegation{
		{DelegationID: "root", ChildHash: "leaf", Depth: 1, MaxDepth: 3, ExpiresAt: &expired},
	})

	err := PreAuthorizeCheck(gate, samplePilot(), samplePolicy(), 0, DelegationCheck{Lineage: &lineage, At: time.Unix(1780000000, 0)})
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	require.Equal(t, "X402_DELEGATION_EXPIRED", guardErr.Code)
}

func TestPreAuthorizeCheckRejectsDelegationDepthExceeded(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gate.ProviderID = "provider_a"
	gate.DelegationRef = "leaf"

	lineage := wallet.NewLineage([]wallet.Delegation{
		{DelegationID: "leaf", ChildHash: "leaf", Depth: 5, MaxDepth: 3},
	})

	err := PreAuthorizeCheck(gate, samplePilot(), samplePolicy(), 0, DelegationCheck{Lineage: &lineage, At: time.Unix(1780000000, 0)})
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	require.Equal(t, "X402_WALLET_POLICY_DELEGATION_DEPTH_EXCEEDED", guardErr.Code)
}

func TestPreAuthorizeCheckPassesWithValidDelegation(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gate.ProviderID = "provider_a"
	gate.DelegationRef = "leaf"

	future := time.Unix(1800000000, 0)
	lineage := wallet.NewLineage([]wallet.Delegation{
		{DelegationID: "root", ChildHash: "leaf", Depth: 1, MaxDepth: 3, ExpiresAt: &future},
	})

	err := PreAuthorizeCheck(gate, samplePilot(), samplePolicy(), 0, DelegationCheck{Lineage: &lineage, At: time.Unix(1780000000, 0)})
	require.NoError(t, err)
}

func sampleRealMoneyPolicy() RealMoneyPolicy {
	return RealMoneyPolicy{
		Enabled:                true,
		StripeConnectAccountID: "acct_1",
		PayoutPerCallCapCents:  5000,
		PayoutDailyCapCents:    20000,
	}
}

func TestSettleRealMoneyRejectsWhenRealMoneyDisabled(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	require.NoError(t, Authorize(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow))
	require.NoError(t, Verify(gate, VerificationGreen, ReleaseRates{AutoReleaseOnGreenPct: 100}, DecisionBindings{}, time.Unix(1780000000, 0)))

	err := SettleRealMoney(gate, fakeReserveAdapter{status: ReserveStatusHeld}, RealMoneyPolicy{}, 0)
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	require.Equal(t, "REAL_MONEY_DISABLED", guardErr.Code)
	require.Equal(t, StateReleased, gate.Authorization, "guard failure must leave gate state unchanged")
}

func TestSettleRealMoneySettlesWhenGuardsPass(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	require.NoError(t, Authorize(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow))
	require.NoError(t, Verify(gate, VerificationGreen, ReleaseRates{AutoReleaseOnGreenPct: 100}, DecisionBindings{}, time.Unix(1780000000, 0)))

	err := SettleRealMoney(gate, fakeReserveAdapter{status: ReserveStatusHeld}, sampleRealMoneyPolicy(), 0)
	require.NoError(t, err)
	require.Equal(t, StateSettled, gate.Authorization)
}

func TestSettleRealMoneyRejectsPayoutDailyCapExceeded(t *testing.T) {
	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	escrow := wallet.NewEscrowLedger()
	require.NoError(t, Authorize(gate, fakeReserveAdapter{status: ReserveStatusHeld}, escrow))
	require.NoError(t, Verify(gate, VerificationGreen, ReleaseRates{AutoReleaseOnGreenPct: 100}, DecisionBindings{}, time.Unix(1780000000, 0)))

	err := SettleRealMoney(gate, fakeReserveAdapter{status: ReserveStatusHeld}, sampleRealMoneyPolicy(), 19500)
	require.Error(t, err)
	var guardErr *GuardError
	require.ErrorAs(t, err, &guardErr)
	require.Equal(t, "PAYOUT_DAILY_LIMIT_EXCEEDED", guardErr.Code)
}

func TestMintReplaysOnSameIdempotencyKeyAndBody(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	signer := cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}
	store := NewIdempotencyStore()

	gate := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	req := MintRequest{Gate: gate, Audience: "payee_1", ExpiresAt: "2026-08-01T00:00:00.000Z", Nonce: "nonce_1", IdempotencyKey: "idem_1"}

	a, err := Mint(store, req, signer)
	require.NoError(t, err)
	b, err := Mint(store, req, signer)
	require.NoError(t, err)
	require.Equal(t, a.Signature, b.Signature)
}

func TestMintConflictsOnSameKeyDifferentBody(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	signer := cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}
	store := NewIdempotencyStore()

	gateA := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 1000)
	gateB := NewGate("gate_1", "tenant_1", "payer_1", "payee_1", "USD", 2000)

	_, err = Mint(store, MintRequest{Gate: gateA, Audience: "payee_1", ExpiresAt: "2026-08-01T00:00:00.000Z", Nonce: "n1", IdempotencyKey: "idem_1"}, signer)
	require.NoError(t, err)

	_, err = Mint(store, MintRequest{Gate: gateB, Audience: "payee_1", ExpiresAt: "2026-08-01T00:00:00.000Z", Nonce: "n1", IdempotencyKey: "idem_1"}, signer)
	require.ErrorContains(t, err, "IDEMPOTENCY_KEY_CONFLICT")
}

func TestChargebackHoldBlocksPayoutWithOutstandingExposure(t *testing.T) {
	ledger := NewChargebackLedger(NegativeBalanceHold)
	ledger.Accrue("operator_1", 500)

	_, err := ledger.CheckPayout("operator_1", 1000)
	require.ErrorContains(t, err, "NEGATIVE_BALANCE_PAYOUT_HOLD")
}

func TestChargebackNetDeductsFromPayout(t *testing.T) {
	ledger := NewChargebackLedger(NegativeBalanceNet)
	ledger.Accrue("operator_1", 300)

	outcome, err := ledger.CheckPayout("operator_1", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(700), outcome.AllowedCents)
	require.Equal(t, int64(300), outcome.RecoveredCents)
	require.Equal(t, int64(0), ledger.ExposureCents("operator_1"))
}

func TestChargebackNetPartiallyRecoversWhenPayoutSmallerThanExposure(t *testing.T) {
	ledger := NewChargebackLedger(NegativeBalanceNet)
	ledger.Accrue("operator_1", 1500)

	outcome, err := ledger.CheckPayout("operator_1", 1000)
	require.NoError(t, err)
	require.Equal(t, int64(0), outcome.AllowedCents)
	require.Equal(t, int64(1000), outcome.RecoveredCents)
	require.Equal(t, int64(500), ledger.ExposureCents("operator_1"))
}
