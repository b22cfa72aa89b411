package x402

import (
	"strings"
	"time"

	"settld/internal/wallet"
)

// Quote binds a gate to a quote id/hash and advances it to QUOTED, when
// the wallet policy requires one (spec §4.11: "CREATED -- quote --> QUOTED
// (if requireQuote)").
func Quote(gate *Gate, policy wallet.Policy, quoteID, quoteSHA256 string) error {
	if gate.Authorization != StateCreated {
		return guardError("X402_STATE_CONFLICT", "gate is not CREATED", 409)
	}
	if !policy.RequireQuote {
		return nil
	}
	if quoteID == "" || quoteSHA256 == "" {
		return guardError("X402_WALLET_ISSUER_DECISION_REQUIRED", "policy requires a quote but none was supplied", 403)
	}
	gate.QuoteID = quoteID
	gate.QuoteSHA256 = quoteSHA256
	gate.Authorization = StateQuoted
	return nil
}

// IssuerDecision records the wallet issuer's decision and advances the
// gate to AUTHORIZED_DECISION (spec §4.11: "QUOTED -- issuer decision -->
// AUTHORIZED_DECISION").
func IssuerDecision(gate *Gate, policy wallet.Policy, decided bool) error {
	if policy.RequireQuote && gate.Authorization != StateQuoted {
		return guardError("X402_STATE_CONFLICT", "gate is not QUOTED", 409)
	}
	if !policy.RequireQuote && gate.Authorization != StateCreated {
		return guardError("X402_STATE_CONFLICT", "gate is not CREATED", 409)
	}
	if !decided {
		return guardError("X402_WALLET_ISSUER_DECISION_REQUIRED", "issuer decision was not supplied", 403)
	}
	gate.Authorization = StateAuthorizedDecision
	return nil
}

// DelegationCheck binds a gate's DelegationRef to its resolved lineage for
// PreAuthorizeCheck's depth/revocation/expiry guard. Omitted (or given a
// nil Lineage) for gates that carry no delegation.
type DelegationCheck struct {
	Lineage *wallet.Lineage
	At      time.Time
}

// PreAuthorizeCheck runs every fail-closed guard that must pass before
// Authorize is allowed to reserve funds (spec §4.11 Guards), including
// wallet.ValidateAmount and delegation resolution. Callers run this, then
// Authorize.
func PreAuthorizeCheck(gate *Gate, pilot PilotPolicy, policy wallet.Policy, dailyTotalSoFarCents int64, delegation ...DelegationCheck) error {
	if err := checkPilotGuards(pilot, gate.ProviderID, gate.AmountCents, dailyTotalSoFarCents); err != nil {
		return err
	}
	if len(policy.AllowedToolIDs) > 0 && !policy.AllowsTool(gate.ToolID) {
		return guardError("X402_PILOT_PROVIDER_NOT_ALLOWED", "tool "+gate.ToolID+" is not allowed by wallet policy", 403)
	}
	if policy.RequireAgentKeyMatch && len(policy.AllowedAgentKeyIDs) > 0 {
		if err := checkAgentGuards(gate.Agent, policy.AllowedAgentKeyIDs); err != nil {
			return err
		}
	} else {
		if err := checkAgentGuards(gate.Agent, nil); err != nil {
			return err
		}
	}
	if err := wallet.ValidateAmount(policy, gate.AmountCents, dailyTotalSoFarCents); err != nil {
		return err
	}
	if gate.DelegationRef != "" && len(delegation) > 0 && delegation[0].Lineage != nil {
		if _, err := delegation[0].Lineage.Resolve(gate.DelegationRef, delegation[0].At); err != nil {
			return delegationGuardError(err)
		}
	}
	return nil
}

// delegationGuardError maps a wallet.Lineage.Resolve failure (a sentinel
// "CODE: detail" error) onto the stable X402_DELEGATION_* guard codes,
// failing closed with 403 per spec §4.11/§7.
func delegationGuardError(err error) *GuardError {
	msg := err.Error()
	code := msg
	if idx := strings.Index(msg, ":"); idx >= 0 {
		code = msg[:idx]
	}
	return guardError(code, msg, 403)
}

// ReleaseRates are the auto-release/auto-hold/auto-refund ratios a verify
// policy applies to each verificationStatus outcome (spec §4.11 Verify).
type ReleaseRates struct {
	AutoReleaseOnGreenPct int
	AutoHoldOnAmberPct    int
	AutoRefundOnRedPct    int
}

// DecisionBindings is the signed-decision metadata recorded on Verify
// (spec §4.11 Verify: "decisionRecord.bindings").
type DecisionBindings struct {
	AuthorizationRef          string
	RequestSHA256             string
	ResponseSHA256            string
	ReserveSummary            string
	PolicyDecisionFingerprint string
	SpendAuthorizationRef     string
	RootDelegationRef         string
	RootDelegationHash        string
	EffectiveDelegationRef    string
	EffectiveDelegationHash   string
}

// Verify implements spec §4.11's verify transition: AUTHORIZED plus a
// reported verificationStatus resolves to RELEASED, HELD, or REFUNDED
// according to the release-rate policy, recording the decision bindings
// on the gate's audit trail.
func Verify(gate *Gate, status VerificationStatus, rates ReleaseRates, bindings DecisionBindings, at time.Time) error {
	if gate.Authorization != StateAuthorized {
		return guardError("X402_STATE_CONFLICT", "gate is not AUTHORIZED", 409)
	}
	gate.Verification = status

	switch status {
	case VerificationGreen:
		gate.Authorization = StateReleased
		gate.ReleasedCents = pctOf(gate.AmountCents, rates.AutoReleaseOnGreenPct)
	case VerificationAmber:
		gate.Authorization = StateHeld
		gate.ReleasedCents = pctOf(gate.AmountCents, rates.AutoHoldOnAmberPct)
	case VerificationRed:
		gate.Authorization = StateRefunded
		gate.ReleasedCents = pctOf(gate.AmountCents, rates.AutoRefundOnRedPct)
	default:
		return guardError("X402_VERIFICATION_STATUS_INVALID", "unknown verificationStatus", 400)
	}

	gate.record(at, "verify", string(gate.Authorization), bindings.PolicyDecisionFingerprint)
	return nil
}

func pctOf(amountCents int64, pct int) int64 {
	return amountCents * int64(pct) / 100
}

// Settle transitions a RELEASED gate to SETTLED (spec §4.11: "RELEASED --
// settled --> SETTLED").
func Settle(gate *Gate, adapter ReserveAdapter) error {
	if gate.Authorization != StateReleased {
		return guardError("X402_STATE_CONFLICT", "gate is not RELEASED", 409)
	}
	if err := adapter.Release(gate); err != nil {
		return err
	}
	gate.Reserve = ReserveReleased
	gate.Authorization = StateSettled
	gate.Settlement = "settled"
	return nil
}

// SettleRealMoney runs the real-money/Stripe Connect/payout guards (spec
// §4.11 Guards, final row) before Settle. Gates that settle against a live
// money rail must go through this path rather than Settle directly, so
// disabling real-money mode fails closed instead of silently downgrading
// to the pilot reserve adapter (spec §7).
func SettleRealMoney(gate *Gate, adapter ReserveAdapter, rm RealMoneyPolicy, payoutDailyTotalSoFarCents int64) error {
	if err := checkRealMoneyGuards(rm, gate.Payee, gate.AmountCents, payoutDailyTotalSoFarCents); err != nil {
		return err
	}
	return Settle(gate, adapter)
}
