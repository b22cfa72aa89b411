package wallet

import (
	"fmt"
	"sync"
)

// EscrowLedger tracks per-wallet escrow-locked cents: amounts reserved
// against a wallet's available balance while an x402 gate is pending
// authorization. A lock is released only through Unlock, which
// x402.RollbackReserve calls; settling a gate does not release it.
type EscrowLedger struct {
	mu     sync.Mutex
	locked map[string]int64
}

// NewEscrowLedger returns an empty ledger.
func NewEscrowLedger() *EscrowLedger {
	return &EscrowLedger{locked: map[string]int64{}}
}

// Lock adds amountCents to walletID's escrow-locked balance.
func (l *EscrowLedger) Lock(walletID string, amountCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked[walletID] += amountCents
}

// Unlock removes amountCents from walletID's escrow-locked balance. It is
// the inverse of Lock; x402.RollbackReserve is its caller, releasing the
// lock of an authorized gate whose reserve is rolled back.
func (l *EscrowLedger) Unlock(walletID string, amountCents int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.locked[walletID]
	if amountCents > current {
		return fmt.Errorf("wallet: cannot unlock %d cents from %q, only %d locked", amountCents, walletID, current)
	}
	l.locked[walletID] = current - amountCents
	return nil
}

// LockedCents returns walletID's current escrow-locked balance.
func (l *EscrowLedger) LockedCents(walletID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked[walletID]
}
