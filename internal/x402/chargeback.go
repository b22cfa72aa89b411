package x402

import "fmt"

// NegativeBalanceMode picks how outstanding chargeback exposure is
// recovered from future payouts (spec §4.11 Chargeback policy).
type NegativeBalanceMode string

const (
	NegativeBalanceHold NegativeBalanceMode = "hold"
	NegativeBalanceNet  NegativeBalanceMode = "net"
)

// ChargebackLedger tracks per-party outstanding exposure accrued by
// reversed (HELD/REFUNDED) operations.
type ChargebackLedger struct {
	Mode     NegativeBalanceMode
	exposure map[string]int64
}

// NewChargebackLedger returns an empty ledger under the given mode.
func NewChargebackLedger(mode NegativeBalanceMode) *ChargebackLedger {
	return &ChargebackLedger{Mode: mode, exposure: map[string]int64{}}
}

// Accrue records a reversed operation's amount as outstanding exposure
// against partyID.
func (l *ChargebackLedger) Accrue(partyID string, amountCents int64) {
	l.exposure[partyID] += amountCents
}

// ExposureCents returns partyID's current outstanding exposure.
func (l *ChargebackLedger) ExposureCents(partyID string) int64 {
	return l.exposure[partyID]
}

// PayoutOutcome is what CheckPayout decides to do with a requested payout
// given outstanding exposure.
type PayoutOutcome struct {
	AllowedCents   int64
	RecoveredCents int64
}

// CheckPayout implements spec §4.11's chargeback policy: `hold` blocks any
// payout while exposure is outstanding (NEGATIVE_BALANCE_PAYOUT_HOLD);
// `net` deducts the outstanding amount from the requested payout, records
// the recovery, and zeroes exposure once fully absorbed.
func (l *ChargebackLedger) CheckPayout(partyID string, requestedCents int64) (PayoutOutcome, error) {
	outstanding := l.exposure[partyID]
	if outstanding <= 0 {
		return PayoutOutcome{AllowedCents: requestedCents}, nil
	}

	switch l.Mode {
	case NegativeBalanceHold:
		return PayoutOutcome{}, fmt.Errorf("NEGATIVE_BALANCE_PAYOUT_HOLD: party %q has %d cents outstanding", partyID, outstanding)
	case NegativeBalanceNet:
		recovered := outstanding
		if recovered > requestedCents {
			recovered = requestedCents
		}
		l.exposure[partyID] = outstanding - recovered
		return PayoutOutcome{AllowedCents: requestedCents - recovered, RecoveredCents: recovered}, nil
	default:
		return PayoutOutcome{}, fmt.Errorf("x402: unknown negativeBalanceMode %q", l.Mode)
	}
}
