package jobs

import (
	"fmt"
	"time"

	"settld/internal/cryptoutil"
	"settld/internal/events"
)

// ReduceError wraps a malformed-stream failure. The reducer never recovers
// partially: a malformed event aborts the whole reduction (spec §7).
type ReduceError struct {
	Code    string
	Message string
}

func (e *ReduceError) Error() string { return e.Code + ": " + e.Message }

// Reduce folds a chain-hash-verified event stream into a job snapshot. The
// first event must be JOB_CREATED or reduction fails with
// STREAM_MISSING_JOB_CREATED. Reduce is a pure function of the event
// sequence: reducing the same stream twice yields byte-equal snapshots
// (spec invariant 4).
func Reduce(stream []events.Event) (*Snapshot, error) {
	if len(stream) == 0 {
		return nil, &ReduceError{Code: "STREAM_EMPTY", Message: "event stream has no events"}
	}
	if stream[0].Type != events.TypeJobCreated {
		return nil, &ReduceError{Code: "STREAM_MISSING_JOB_CREATED", Message: "first event must be JOB_CREATED"}
	}

	snap := newSnapshot()
	for i, e := range stream {
		if err := events.Validate(e); err != nil {
			return nil, fmt.Errorf("jobs: event %d: %w", i, err)
		}
		if err := apply(snap, e); err != nil {
			return nil, fmt.Errorf("jobs: event %d (%s): %w", i, e.Type, err)
		}
		snap.LastChainHash = e.ChainHash
		snap.EventCount++
	}
	return snap, nil
}

func apply(s *Snapshot, e events.Event) error {
	switch e.Type {
	case events.TypeJobCreated:
		s.ID = stringField(e.Payload, "id")
		s.TenantID = stringField(e.Payload, "tenantId")
		s.TemplateID = stringField(e.Payload, "templateId")

	case events.TypeBooked:
		s.Booking.Window = stringField(e.Payload, "window")
		s.Booking.Zone = orDefault(stringField(e.Payload, "zone"), s.Booking.Zone)
		s.Booking.Tier = orDefault(stringField(e.Payload, "tier"), s.Booking.Tier)
		if snapshot, ok := e.Payload["policySnapshot"].(map[string]any); ok {
			s.Booking.PolicySnapshot = snapshot
			if h, ok := e.Payload["policyHash"].(string); ok && h != "" {
				s.Booking.PolicyHash = h
			} else {
				h, err := cryptoutil.HashCanonical(snapshot)
				if err != nil {
					return err
				}
				s.Booking.PolicyHash = h
			}
		}

	case events.TypeJobRescheduled:
		// Invalidates match, reservation, operator coverage, assist,
		// accessPlan and access per spec §4.5.
		s.Reservation = Reservation{}
		s.OperatorCoverage = OperatorCoverageNone
		s.Assist = AssistNone
		s.Access = AccessNone

	case events.TypeDispatchRequested:
		s.Execution.RobotID = orDefault(stringField(e.Payload, "robotId"), s.Execution.RobotID)
		ts := timestampOrEventAt(e, "dispatchedAt")
		s.Execution.DispatchedAt = &ts

	case events.TypeExecutionStarted:
		ts := timestampOrEventAt(e, "startedAt")
		s.Execution.StartedAt = &ts

	case events.TypeExecutionComplete:
		ts := timestampOrEventAt(e, "completedAt")
		s.Execution.CompletedAt = &ts
		s.Execution.CompletedAtChainHash = e.ChainHash

	case events.TypeAssistRequested:
		s.Assist = AssistRequested
	case events.TypeAssistAssigned:
		s.Assist = AssistQueued
	case events.TypeAssistAccepted:
		s.Assist = AssistAccepted
	case events.TypeAssistDeclined:
		s.Assist = AssistDeclined
	case events.TypeAssistTimeout:
		s.Assist = AssistTimeout

	case events.TypeAccessPlanned:
		s.Access = AccessPlanned
	case events.TypeAccessGranted:
		s.Access = AccessGranted
	case events.TypeAccessDenied:
		s.Access = AccessDenied
	case events.TypeAccessRevoked:
		s.Access = AccessRevoked
	case events.TypeAccessExpired:
		s.Access = AccessExpired

	case events.TypeOperatorReserved:
		s.OperatorCoverage = OperatorCoverageReserved
		s.Reservation.ReservationID = orDefault(stringField(e.Payload, "reservationId"), s.Reservation.ReservationID)
		ts := timestampOrEventAt(e, "reservedAt")
		s.Reservation.ReservedAt = &ts
	case events.TypeOperatorReleased:
		s.OperatorCoverage = OperatorCoverageReleased
		ts := timestampOrEventAt(e, "releasedAt")
		s.Reservation.ReleasedAt = &ts

	case events.TypeProofEvaluated:
		s.LatestProof = &Proof{
			EvaluatedAtChainHash: stringField(e.Payload, "evaluatedAtChainHash"),
			FactsHash:            stringField(e.Payload, "factsHash"),
			CustomerPolicyHash:   stringField(e.Payload, "customerPolicyHash"),
			EvaluatedAt:          timestampOrEventAt(e, "evaluatedAt"),
			Outcome:              stringField(e.Payload, "outcome"),
		}

	case events.TypeIncidentReported:
		id := stringField(e.Payload, "incidentId")
		s.Incidents[id] = Incident{ID: id, Severity: stringField(e.Payload, "severity"), At: timestampOrEventAt(e, "at")}

	case events.TypeEvidenceCaptured:
		id := stringField(e.Payload, "evidenceId")
		s.Evidence[id] = Evidence{ID: id, Ref: stringField(e.Payload, "evidenceRef"), CapturedAt: timestampOrEventAt(e, "capturedAt")}

	case events.TypeEvidenceExpired:
		id := stringField(e.Payload, "evidenceId")
		// Idempotent even if the capture is missing, per spec §4.5.
		ev := s.Evidence[id]
		ev.ID = id
		ev.Expired = true
		s.Evidence[id] = ev

	case events.TypeClaimOpened:
		id := stringField(e.Payload, "claimId")
		s.Claims[id] = Claim{ID: id, Status: "open", Amount: int64Field(e.Payload, "amountCents")}
	case events.TypeClaimUpdated:
		id := stringField(e.Payload, "claimId")
		claim := s.Claims[id]
		claim.ID = id
		if status := stringField(e.Payload, "status"); status != "" {
			claim.Status = status
		}
		if amt := int64Field(e.Payload, "amountCents"); amt != 0 {
			claim.Amount = amt
		}
		s.Claims[id] = claim
	case events.TypeClaimResolved:
		id := stringField(e.Payload, "claimId")
		claim := s.Claims[id]
		claim.ID = id
		claim.Status = "resolved"
		s.Claims[id] = claim

	case events.TypeJobAdjusted:
		// Adjustments are logged as claims-like entries keyed by adjustmentId
		// so downstream artifact builders can enumerate them uniformly.
		id := stringField(e.Payload, "adjustmentId")
		s.Claims[id] = Claim{ID: id, Status: "adjustment", Amount: int64Field(e.Payload, "amountCents")}

	case events.TypeSettlementHeld:
		prevExposure := s.SettlementHold.ExposureCents
		s.SettlementHold = SettlementHold{State: SettlementHoldHeld, Reason: stringField(e.Payload, "reason"), ExposureCents: orInt64(int64Field(e.Payload, "exposureCents"), prevExposure)}
	case events.TypeSettlementReleased:
		prevExposure := s.SettlementHold.ExposureCents
		s.SettlementHold = SettlementHold{State: SettlementHoldReleased, Reason: stringField(e.Payload, "reason"), ExposureCents: prevExposure}
		s.Settlement.Settled = true
		s.Settlement.SettlementID = orDefault(stringField(e.Payload, "settlementId"), s.Settlement.SettlementID)
		s.Settlement.SettlementProofRef = orDefault(stringField(e.Payload, "settlementProofRef"), s.Settlement.SettlementProofRef)
	case events.TypeSettlementForfeited:
		prevExposure := s.SettlementHold.ExposureCents
		s.SettlementHold = SettlementHold{State: SettlementHoldForfeited, Reason: stringField(e.Payload, "reason"), ExposureCents: prevExposure}

	case events.TypeDisputeOpened:
		s.Dispute = Dispute{Open: true, Reason: stringField(e.Payload, "reason")}
	case events.TypeDisputeResolved:
		s.Dispute.Open = false
		s.Dispute.Resolved = true

	default:
		return fmt.Errorf("jobs: unknown event type %q", e.Type)
	}
	return nil
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt64(v, fallback int64) int64 {
	if v == 0 {
		return fallback
	}
	return v
}

// timestampOrEventAt reads a timestamp from payload[field] (RFC3339) if
// present, else falls back to the event's own 'at', per spec §4.5.
func timestampOrEventAt(e events.Event, field string) time.Time {
	if raw, ok := e.Payload[field].(string); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02T15:04:05.000Z", raw); err == nil {
			return t
		}
	}
	return e.At
}
