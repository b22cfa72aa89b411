package events

import "fmt"

// SchemaError reports a malformed event payload, mapping to the spec's
// SCHEMA_INVALID taxonomy entry.
type SchemaError struct {
	EventType Type
	Field     string
	Reason    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("SCHEMA_INVALID: %s.%s: %s", e.EventType, e.Field, e.Reason)
}

var assistPriorities = map[string]bool{"LOW": true, "NORMAL": true, "HIGH": true, "CRITICAL": true}

// Validate checks the per-type payload schema named in spec §4.5. It does
// not look at history (that's the reducer's job) — only the shape of this
// one event.
func Validate(e Event) error {
	if e.StreamID == "" {
		return &SchemaError{EventType: e.Type, Field: "streamId", Reason: "required"}
	}
	if e.Type == "" {
		return &SchemaError{EventType: e.Type, Field: "type", Reason: "required"}
	}
	if e.At.IsZero() {
		return &SchemaError{EventType: e.Type, Field: "at", Reason: "required"}
	}
	switch e.Type {
	case TypeJobCreated:
		return requireFields(e, "templateId", "tenantId")
	case TypeBooked:
		return requireFields(e, "window")
	case TypeAssistRequested:
		if err := requireFields(e, "jobId", "robotId", "requestedAt", "priority"); err != nil {
			return err
		}
		priority, _ := e.Payload["priority"].(string)
		if !assistPriorities[priority] {
			return &SchemaError{EventType: e.Type, Field: "priority", Reason: "must be one of LOW, NORMAL, HIGH, CRITICAL"}
		}
		return nil
	case TypeProofEvaluated:
		return requireFields(e, "evaluatedAtChainHash", "factsHash")
	case TypeSettlementHeld, TypeSettlementReleased, TypeSettlementForfeited:
		return requireFields(e, "reason")
	case TypeIncidentReported:
		return requireFields(e, "incidentId", "severity")
	case TypeEvidenceCaptured:
		return requireFields(e, "evidenceId", "evidenceRef")
	case TypeEvidenceExpired:
		return requireFields(e, "evidenceId")
	case TypeClaimOpened:
		return requireFields(e, "claimId")
	case TypeClaimUpdated, TypeClaimResolved:
		return requireFields(e, "claimId")
	case TypeJobAdjusted:
		return requireFields(e, "adjustmentId")
	default:
		return nil
	}
}

func requireFields(e Event, fields ...string) error {
	for _, f := range fields {
		v, ok := e.Payload[f]
		if !ok || v == nil || v == "" {
			return &SchemaError{EventType: e.Type, Field: f, Reason: "required"}
		}
	}
	return nil
}
