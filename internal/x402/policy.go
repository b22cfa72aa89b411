package x402

// PilotPolicy is the tenant-scoped pilot policy enforced before a gate may
// authorize at all (spec §4.11 Guards).
type PilotPolicy struct {
	KillSwitchActive   bool
	AllowedProviderIDs []string
	PerCallCapCents    int64
	DailyCapCents      int64
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// RealMoneyPolicy gates whether a gate may settle against a live money
// rail (spec §4.11's real-money/Stripe Connect/payout guards).
type RealMoneyPolicy struct {
	Enabled                bool
	StripeConnectAccountID string
	CounterpartyRef        string
	PayoutKillSwitchActive bool
	PayoutPerCallCapCents  int64
	PayoutDailyCapCents    int64
}

// checkPilotGuards implements the kill-switch/allowlist/cap guards that
// run before a gate may proceed to authorize (spec §4.11 Guards, rows 1-4).
func checkPilotGuards(p PilotPolicy, providerID string, amountCents, dailyTotalSoFarCents int64) error {
	if p.KillSwitchActive {
		return guardError("X402_PILOT_KILL_SWITCH_ACTIVE", "pilot kill switch is active", 409)
	}
	if len(p.AllowedProviderIDs) > 0 && !containsString(p.AllowedProviderIDs, providerID) {
		return guardError("X402_PILOT_PROVIDER_NOT_ALLOWED", "provider "+providerID+" is not in the pilot allowlist", 403)
	}
	if amountCents > p.PerCallCapCents {
		return guardError("X402_PILOT_AMOUNT_LIMIT_EXCEEDED", "amount exceeds per-call cap", 403)
	}
	if dailyTotalSoFarCents+amountCents > p.DailyCapCents {
		return guardError("X402_PILOT_DAILY_LIMIT_EXCEEDED", "projected daily exposure exceeds cap", 403)
	}
	return nil
}

// checkAgentGuards implements the signer-key/lifecycle guards (spec §4.11
// Guards, rows 9-10).
func checkAgentGuards(agent AgentPassport, allowedKeyIDs []string) error {
	if len(allowedKeyIDs) > 0 && !containsString(allowedKeyIDs, agent.SignerKeyID) {
		return guardError("X402_AGENT_SIGNER_KEY_INVALID", "reasonCode=SIGNER_KEY_NOT_ACTIVE", 403)
	}
	switch agent.Lifecycle {
	case "", "active":
		return nil
	case "suspended":
		return guardError("X402_AGENT_SUSPENDED", "agent lifecycle is suspended", 410)
	case "throttled":
		return guardError("X402_AGENT_THROTTLED", "agent lifecycle is throttled", 429)
	default:
		return guardError("X402_AGENT_SIGNER_KEY_INVALID", "unknown agent lifecycle state", 403)
	}
}

// checkRealMoneyGuards implements the real-money/Stripe Connect/payout
// guards (spec §4.11 Guards, final row).
func checkRealMoneyGuards(rm RealMoneyPolicy, counterpartyRef string, amountCents, payoutDailyTotalSoFarCents int64) error {
	if !rm.Enabled {
		return guardError("REAL_MONEY_DISABLED", "real-money execution is disabled", 409)
	}
	if rm.StripeConnectAccountID == "" {
		return guardError("STRIPE_CONNECT_ACCOUNT_REQUIRED", "payee has no linked Stripe Connect account", 403)
	}
	if rm.CounterpartyRef != "" && counterpartyRef != rm.CounterpartyRef {
		return guardError("STRIPE_CONNECT_COUNTERPARTY_MISMATCH", "counterparty reference does not match the linked account", 403)
	}
	if rm.PayoutKillSwitchActive {
		return guardError("PAYOUT_KILL_SWITCH_ACTIVE", "payout kill switch is active", 409)
	}
	if amountCents > rm.PayoutPerCallCapCents {
		return guardError("PAYOUT_AMOUNT_LIMIT_EXCEEDED", "amount exceeds payout per-call cap", 403)
	}
	if payoutDailyTotalSoFarCents+amountCents > rm.PayoutDailyCapCents {
		return guardError("PAYOUT_DAILY_LIMIT_EXCEEDED", "projected daily payout exposure exceeds cap", 403)
	}
	return nil
}
