// Package jobs implements the event-sourced job reducer: a pure fold from
// an append-only, chain-hashed event stream into a job snapshot, plus the
// effective-proof resolver described in spec §4.5.
package jobs

import "time"

// AssistState is the assist-coverage sub-state machine: none, requested,
// queued, assigned, accepted, declined, timeout.
type AssistState string

const (
	AssistNone      AssistState = "none"
	AssistRequested AssistState = "requested"
	AssistQueued    AssistState = "queued"
	AssistAssigned  AssistState = "assigned"
	AssistAccepted  AssistState = "accepted"
	AssistDeclined  AssistState = "declined"
	AssistTimeout   AssistState = "timeout"
)

// AccessState is the access sub-state machine: none, planned, granted,
// denied, revoked, expired.
type AccessState string

const (
	AccessNone    AccessState = "none"
	AccessPlanned AccessState = "planned"
	AccessGranted AccessState = "granted"
	AccessDenied  AccessState = "denied"
	AccessRevoked AccessState = "revoked"
	AccessExpired AccessState = "expired"
)

// OperatorCoverageState is the operator-coverage sub-state machine: none,
// reserved, released.
type OperatorCoverageState string

const (
	OperatorCoverageNone     OperatorCoverageState = "none"
	OperatorCoverageReserved OperatorCoverageState = "reserved"
	OperatorCoverageReleased OperatorCoverageState = "released"
)

// SettlementHoldState tracks whether settlement proceeds are held,
// released, or forfeited pending dispute/evidence resolution.
type SettlementHoldState string

const (
	SettlementHoldNone      SettlementHoldState = "none"
	SettlementHoldHeld      SettlementHoldState = "held"
	SettlementHoldReleased  SettlementHoldState = "released"
	SettlementHoldForfeited SettlementHoldState = "forfeited"
)

// Booking captures the customer contract/policy fields bound by BOOKED.
type Booking struct {
	Window         string `json:"window,omitempty"`
	Zone           string `json:"zone,omitempty"`
	Tier           string `json:"tier,omitempty"`
	PolicySnapshot map[string]any `json:"policySnapshot,omitempty"`
	PolicyHash     string `json:"policyHash,omitempty"`
}

// Execution captures robot assignment and lifecycle timestamps.
type Execution struct {
	RobotID      string     `json:"robotId,omitempty"`
	DispatchedAt *time.Time `json:"dispatchedAt,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CompletedAtChainHash string `json:"completedAtChainHash,omitempty"`
}

// Reservation is the resource reservation made for the job.
type Reservation struct {
	ReservationID string     `json:"reservationId,omitempty"`
	ReservedAt    *time.Time `json:"reservedAt,omitempty"`
	ReleasedAt    *time.Time `json:"releasedAt,omitempty"`
}

// Proof records the latest PROOF_EVALUATED event's payload.
type Proof struct {
	EvaluatedAtChainHash string    `json:"evaluatedAtChainHash"`
	FactsHash            string    `json:"factsHash"`
	CustomerPolicyHash   string    `json:"customerPolicyHash,omitempty"`
	EvaluatedAt          time.Time `json:"evaluatedAt"`
	Outcome              string    `json:"outcome,omitempty"`
}

// EffectiveProofStatus is FRESH, STALE, SETTLED, or LAST_SEEN — see
// ResolveEffectiveProof.
type EffectiveProofStatus string

const (
	EffectiveProofFresh    EffectiveProofStatus = "FRESH"
	EffectiveProofStale    EffectiveProofStatus = "STALE"
	EffectiveProofSettled  EffectiveProofStatus = "SETTLED"
	EffectiveProofLastSeen EffectiveProofStatus = "LAST_SEEN"
)

// EffectiveProof is the resolved proof plus the resolver's verdict.
type EffectiveProof struct {
	Status            EffectiveProofStatus `json:"status"`
	Proof             *Proof               `json:"proof,omitempty"`
	ExpectedFactsHash string               `json:"expectedFactsHash,omitempty"`
}

// Evidence is one upserted evidence record.
type Evidence struct {
	ID         string    `json:"id"`
	Ref        string    `json:"ref"`
	CapturedAt time.Time `json:"capturedAt"`
	Expired    bool      `json:"expired"`
}

// Incident is one upserted incident record.
type Incident struct {
	ID       string    `json:"id"`
	Severity string    `json:"severity"`
	At       time.Time `json:"at"`
}

// Claim is one upserted claim record.
type Claim struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amountCents,omitempty"`
}

// Settlement holds settlement linkage, including the proof ref used once
// SETTLED.
type Settlement struct {
	SettlementID      string `json:"settlementId,omitempty"`
	SettlementProofRef string `json:"settlementProofRef,omitempty"`
	Settled           bool   `json:"settled"`
}

// SettlementHold tracks the hold sub-state and retained exposure metadata.
type SettlementHold struct {
	State         SettlementHoldState `json:"state"`
	Reason        string              `json:"reason,omitempty"`
	ExposureCents int64               `json:"exposureCents,omitempty"`
}

// Dispute tracks an open or resolved dispute on the job.
type Dispute struct {
	Open     bool   `json:"open"`
	Reason   string `json:"reason,omitempty"`
	Resolved bool   `json:"resolved"`
}

// Snapshot is the reduced job state: the pure fold of an event stream.
type Snapshot struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	TemplateID string `json:"templateId"`

	Booking   Booking   `json:"booking"`
	Execution Execution `json:"execution"`

	Assist            AssistState           `json:"assist"`
	Access            AccessState           `json:"access"`
	OperatorCoverage  OperatorCoverageState `json:"operatorCoverage"`
	Reservation       Reservation           `json:"reservation"`

	Evidence  map[string]Evidence  `json:"evidence"`
	Incidents map[string]Incident  `json:"incidents"`
	Claims    map[string]Claim     `json:"claims"`
	RiskScores []float64           `json:"riskScores,omitempty"`

	LatestProof *Proof `json:"latestProof,omitempty"`

	Settlement     Settlement     `json:"settlement"`
	SettlementHold SettlementHold `json:"settlementHold"`
	Dispute        Dispute        `json:"dispute"`

	LastChainHash string `json:"lastChainHash"`
	EventCount    int    `json:"eventCount"`
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		Assist:           AssistNone,
		Access:           AccessNone,
		OperatorCoverage: OperatorCoverageNone,
		Evidence:         map[string]Evidence{},
		Incidents:        map[string]Incident{},
		Claims:           map[string]Claim{},
		SettlementHold:   SettlementHold{State: SettlementHoldNone},
	}
}
