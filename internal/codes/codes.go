// Package codes is the stable error-code taxonomy and HTTP status mapping
// table described in spec §6-7: every error this module's boundary
// operations return carries one of these codes, and that code maps
// deterministically to an HTTP status.
package codes

import (
	"encoding/json"
	"net/http"
)

// CodedError is the shape every boundary error response takes:
// {code, details?} plus the HTTP status chosen from the stable table.
type CodedError struct {
	Code       string
	HTTPStatus int
	Message    string
	Details    map[string]any
}

func (e *CodedError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// New builds a CodedError, looking up its HTTP status from the stable
// table. Codes not present in the table default to 400, matching the
// spec's default for schema/validation failures.
func New(code, message string, details map[string]any) *CodedError {
	status, ok := statusByCode[code]
	if !ok {
		status = 400
	}
	return &CodedError{Code: code, HTTPStatus: status, Message: message, Details: details}
}

// WriteHTTP writes a CodedError as the {code, message, details} JSON body
// this module's boundary uses everywhere, at its mapped HTTP status. Gate
// middleware (gateway/middleware) uses this so auth/rate-limit rejections
// carry the same stable taxonomy as the x402 handlers instead of bare text.
func (e *CodedError) WriteHTTP(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": e.Code, "message": e.Message, "details": e.Details})
}

// Stable error codes (spec §7 taxonomy).
const (
	SchemaInvalid              = "SCHEMA_INVALID"
	CanonicalNumberInvalid     = "CANONICAL_NUMBER_INVALID"
	SignerCannotSign           = "SIGNER_CANNOT_SIGN"
	SignerProviderInvalidResp  = "SIGNER_PROVIDER_INVALID_RESPONSE"
	GovernancePolicySigReq     = "GOVERNANCE_POLICY_SIGNATURE_REQUIRED"
	GovernanceRevocationMismatch = "GOVERNANCE_POLICY_REVOCATION_REF_MISMATCH"
	RevocationListSigReq       = "REVOCATION_LIST_SIGNATURE_REQUIRED"
	InvoiceAttestationRequired = "INVOICE_ATTESTATION_REQUIRED"
	MeteringReportRequired     = "METERING_REPORT_REQUIRED"
	MeteringJobProofBinding    = "METERING_JOB_PROOF_BINDING_REQUIRED"
	JobProofEventsRequired     = "JOB_PROOF_EVENTS_REQUIRED"
	GLBatchImbalanced          = "GL_BATCH_IMBALANCED"

	OperatorActionRequired          = "OPERATOR_ACTION_REQUIRED"
	OperatorActionSignerUnknown     = "OPERATOR_ACTION_SIGNER_UNKNOWN"
	OperatorActionSignerRevoked     = "OPERATOR_ACTION_SIGNER_REVOKED"
	OperatorActionDecisionMismatch  = "OPERATOR_ACTION_DECISION_MISMATCH"
	OperatorActionTenantMismatch    = "OPERATOR_ACTION_TENANT_MISMATCH"
	OperatorActionSigSchemaMismatch = "OPERATOR_ACTION_SIGNATURE_SCHEMA_MISMATCH"
	OperatorActionRoleForbidden     = "OPERATOR_ACTION_ROLE_FORBIDDEN"

	DualControlRequired            = "DUAL_CONTROL_REQUIRED"
	DualControlDistinctOperator    = "DUAL_CONTROL_DISTINCT_OPERATOR_REQUIRED"
	DualControlDistinctSignerKey   = "DUAL_CONTROL_DISTINCT_SIGNER_KEY_REQUIRED"

	X402PilotKillSwitchActive          = "X402_PILOT_KILL_SWITCH_ACTIVE"
	X402PilotProviderNotAllowed        = "X402_PILOT_PROVIDER_NOT_ALLOWED"
	X402PilotAmountLimitExceeded       = "X402_PILOT_AMOUNT_LIMIT_EXCEEDED"
	X402PilotDailyLimitExceeded        = "X402_PILOT_DAILY_LIMIT_EXCEEDED"
	X402WalletIssuerDecisionRequired   = "X402_WALLET_ISSUER_DECISION_REQUIRED"
	X402WalletPolicyDelegationDepth    = "X402_WALLET_POLICY_DELEGATION_DEPTH_EXCEEDED"
	X402DelegationDepthExceeded        = "X402_DELEGATION_DEPTH_EXCEEDED"
	X402DelegationRevoked              = "X402_DELEGATION_REVOKED"
	X402DelegationExpired              = "X402_DELEGATION_EXPIRED"
	X402AgentSignerKeyInvalid          = "X402_AGENT_SIGNER_KEY_INVALID"
	X402AgentSuspended                 = "X402_AGENT_SUSPENDED"
	X402AgentThrottled                 = "X402_AGENT_THROTTLED"
	X402StateConflict                  = "X402_STATE_CONFLICT"
	X402VerificationStatusInvalid      = "X402_VERIFICATION_STATUS_INVALID"
	X402ReserveUnavailable             = "X402_RESERVE_UNAVAILABLE"
	X402ReserveFailed                  = "X402_RESERVE_FAILED"

	RealMoneyDisabled                = "REAL_MONEY_DISABLED"
	StripeConnectAccountRequired     = "STRIPE_CONNECT_ACCOUNT_REQUIRED"
	StripeConnectCounterpartyMismatch = "STRIPE_CONNECT_COUNTERPARTY_MISMATCH"
	PayoutKillSwitchActive           = "PAYOUT_KILL_SWITCH_ACTIVE"
	PayoutAmountLimitExceeded        = "PAYOUT_AMOUNT_LIMIT_EXCEEDED"
	PayoutDailyLimitExceeded         = "PAYOUT_DAILY_LIMIT_EXCEEDED"

	EmergencyPauseActive       = "EMERGENCY_PAUSE_ACTIVE"
	EmergencyQuarantineActive  = "EMERGENCY_QUARANTINE_ACTIVE"
	EmergencyRevokeActive      = "EMERGENCY_REVOKE_ACTIVE"
	EmergencyKillSwitchActive  = "EMERGENCY_KILL_SWITCH_ACTIVE"

	IdempotencyKeyConflict      = "IDEMPOTENCY_KEY_CONFLICT"
	StreamConcurrencyConflict  = "STREAM_CONCURRENCY_CONFLICT"
	Timeout                    = "TIMEOUT"

	AgentCardPublicAttestationRequired = "AGENT_CARD_PUBLIC_ATTESTATION_REQUIRED"
	NegativeBalancePayoutHold          = "NEGATIVE_BALANCE_PAYOUT_HOLD"
	PayoutInstructionCurrencyUnsupported = "PAYOUT_INSTRUCTION_CURRENCY_UNSUPPORTED"
	PayoutInstructionAmountInvalid      = "PAYOUT_INSTRUCTION_AMOUNT_INVALID"

	AuthTokenMissing       = "AUTH_TOKEN_MISSING"
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"
	AuthScopeInsufficient  = "AUTH_SCOPE_INSUFFICIENT"
	RateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
)

// statusByCode is the stable HTTP status table from spec §6: 400 for
// schema, 403 for authz, 409 for state conflicts including policy and
// kill-switch, 410 for agent suspended, 429 for throttled, 503 for reserve
// unavailable.
var statusByCode = map[string]int{
	SchemaInvalid:              400,
	CanonicalNumberInvalid:     400,
	PayoutInstructionCurrencyUnsupported: 400,
	PayoutInstructionAmountInvalid:       400,
	GLBatchImbalanced:          400,
	X402VerificationStatusInvalid: 400,

	SignerCannotSign:          403,
	SignerProviderInvalidResp: 403,
	GovernancePolicySigReq:    403,
	GovernanceRevocationMismatch: 403,
	RevocationListSigReq:      403,
	InvoiceAttestationRequired: 403,
	MeteringReportRequired:    403,
	MeteringJobProofBinding:   403,
	JobProofEventsRequired:    403,
	X402PilotProviderNotAllowed:      403,
	X402PilotAmountLimitExceeded:     403,
	X402PilotDailyLimitExceeded:      403,
	X402WalletIssuerDecisionRequired: 403,
	X402WalletPolicyDelegationDepth:  403,
	X402DelegationDepthExceeded:      403,
	X402DelegationRevoked:            403,
	X402DelegationExpired:            403,
	X402AgentSignerKeyInvalid:        403,
	StripeConnectAccountRequired:       403,
	StripeConnectCounterpartyMismatch:  403,
	PayoutAmountLimitExceeded:          403,
	PayoutDailyLimitExceeded:           403,
	OperatorActionRoleForbidden:        403,

	OperatorActionRequired:         409,
	OperatorActionSignerUnknown:    409,
	OperatorActionSignerRevoked:    409,
	OperatorActionDecisionMismatch: 409,
	OperatorActionTenantMismatch:   409,
	OperatorActionSigSchemaMismatch: 409,
	DualControlRequired:            409,
	DualControlDistinctOperator:    409,
	DualControlDistinctSignerKey:   409,
	X402PilotKillSwitchActive:      409,
	X402StateConflict:              409,
	RealMoneyDisabled:              409,
	PayoutKillSwitchActive:         409,
	EmergencyPauseActive:           409,
	EmergencyQuarantineActive:      409,
	EmergencyRevokeActive:          409,
	EmergencyKillSwitchActive:      409,
	IdempotencyKeyConflict:         409,
	StreamConcurrencyConflict:      409,
	NegativeBalancePayoutHold:      409,
	AgentCardPublicAttestationRequired: 409,

	X402AgentSuspended: 410,
	X402AgentThrottled: 429,
	X402ReserveUnavailable: 503,
	X402ReserveFailed:      402,

	AuthTokenMissing:      401,
	AuthTokenInvalid:      401,
	AuthScopeInsufficient: 403,
	RateLimitExceeded:     429,

	Timeout: 504,
}
