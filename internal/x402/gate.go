// Package x402 implements the x402 authorization gate of spec §4.11: a
// reserve/authorize/verify/settle state machine enforcing wallet-issuer
// decisions, delegation lineage, spend caps, kill switches, and request
// binding, failing closed on every guard violation.
package x402

import (
	"time"
)

// ReserveState tracks the payer-side funds reservation.
type ReserveState string

const (
	ReserveNone      ReserveState = "none"
	ReserveHeld      ReserveState = "held"
	ReserveReleased  ReserveState = "released"
	ReserveForfeited ReserveState = "forfeited"
)

// AuthorizationState is the gate's core lifecycle state.
type AuthorizationState string

const (
	StateCreated            AuthorizationState = "CREATED"
	StateQuoted             AuthorizationState = "QUOTED"
	StateAuthorizedDecision AuthorizationState = "AUTHORIZED_DECISION"
	StateAuthorized         AuthorizationState = "AUTHORIZED"
	StateFailed             AuthorizationState = "FAILED"
	StateReleased           AuthorizationState = "RELEASED"
	StateHeld               AuthorizationState = "HELD"
	StateRefunded           AuthorizationState = "REFUNDED"
	StateSettled            AuthorizationState = "SETTLED"
)

// VerificationStatus is the payee-reported outcome fed into Verify.
type VerificationStatus string

const (
	VerificationGreen VerificationStatus = "green"
	VerificationAmber VerificationStatus = "amber"
	VerificationRed   VerificationStatus = "red"
)

// AgentPassport identifies the calling agent and the signer key it
// presented, for the X402_AGENT_* guards.
type AgentPassport struct {
	AgentID     string
	SignerKeyID string
	Lifecycle   string // "active", "suspended", "throttled"
}

// Decision is one audit-trail row recorded against a gate.
type Decision struct {
	At     time.Time
	Action string
	Code   string
	Detail string
}

// Gate is the x402 gate record (spec §4.11 Entities).
type Gate struct {
	GateID      string
	TenantID    string
	Payer       string
	Payee       string
	Currency    string
	AmountCents int64

	ProviderID string
	ToolID     string
	Agent      AgentPassport

	QuoteID     string
	QuoteSHA256 string

	RequestBindingMode   string // "none" | "strict"
	RequestBindingSHA256 string

	DelegationRef string

	Reserve       ReserveState
	ReserveID     string
	Authorization AuthorizationState
	Verification  VerificationStatus
	Settlement    string // "" | "settled"
	ReleasedCents int64

	IdempotencyKey string
	Token          *Token

	AuditTrail []Decision
}

// NewGate starts a gate in CREATED state (spec §4.11 state machine:
// "(absent) -- create --> CREATED").
func NewGate(gateID, tenantID, payer, payee, currency string, amountCents int64) *Gate {
	return &Gate{
		GateID:        gateID,
		TenantID:      tenantID,
		Payer:         payer,
		Payee:         payee,
		Currency:      currency,
		AmountCents:   amountCents,
		Reserve:       ReserveNone,
		Authorization: StateCreated,
	}
}

func (g *Gate) record(at time.Time, action, code, detail string) {
	g.AuditTrail = append(g.AuditTrail, Decision{At: at, Action: action, Code: code, Detail: detail})
}

// GuardError is a fail-closed guard violation: the gate's state is left
// unchanged and the stable error code from spec §4.11/§7 is returned.
type GuardError struct {
	Code       string
	Message    string
	HTTPStatus int
}

func (e *GuardError) Error() string {
	return e.Code + ": " + e.Message
}

func guardError(code, message string, httpStatus int) *GuardError {
	return &GuardError{Code: code, Message: message, HTTPStatus: httpStatus}
}
