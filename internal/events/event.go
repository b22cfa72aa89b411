// Package events defines the append-only, chain-hashed event log that the
// job reducer folds into a job snapshot. Each event binds to its
// predecessor via chainHash = SHA256(prevChainHash ‖ canonical(event minus
// chainHash/signature)).
package events

import (
	"fmt"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// Type is the event type tag, e.g. JOB_CREATED, BOOKED, ASSIST_REQUESTED.
type Type string

const (
	TypeJobCreated        Type = "JOB_CREATED"
	TypeBooked            Type = "BOOKED"
	TypeJobRescheduled    Type = "JOB_RESCHEDULED"
	TypeDispatchRequested Type = "DISPATCH_REQUESTED"
	TypeAssistRequested   Type = "ASSIST_REQUESTED"
	TypeAssistAssigned    Type = "ASSIST_ASSIGNED"
	TypeAssistAccepted    Type = "ASSIST_ACCEPTED"
	TypeAssistDeclined    Type = "ASSIST_DECLINED"
	TypeAssistTimeout     Type = "ASSIST_TIMEOUT"
	TypeAccessPlanned     Type = "ACCESS_PLANNED"
	TypeAccessGranted     Type = "ACCESS_GRANTED"
	TypeAccessDenied      Type = "ACCESS_DENIED"
	TypeAccessRevoked     Type = "ACCESS_REVOKED"
	TypeAccessExpired     Type = "ACCESS_EXPIRED"
	TypeOperatorReserved  Type = "OPERATOR_RESERVED"
	TypeOperatorReleased  Type = "OPERATOR_RELEASED"
	TypeExecutionStarted  Type = "EXECUTION_STARTED"
	TypeExecutionComplete Type = "EXECUTION_COMPLETED"
	TypeProofEvaluated    Type = "PROOF_EVALUATED"
	TypeIncidentReported  Type = "INCIDENT_REPORTED"
	TypeEvidenceCaptured  Type = "EVIDENCE_CAPTURED"
	TypeEvidenceExpired   Type = "EVIDENCE_EXPIRED"
	TypeClaimOpened       Type = "CLAIM_OPENED"
	TypeClaimUpdated      Type = "CLAIM_UPDATED"
	TypeClaimResolved     Type = "CLAIM_RESOLVED"
	TypeJobAdjusted       Type = "JOB_ADJUSTED"
	TypeSettlementHeld    Type = "SETTLEMENT_HELD"
	TypeSettlementReleased Type = "SETTLEMENT_RELEASED"
	TypeSettlementForfeited Type = "SETTLEMENT_FORFEITED"
	TypeDisputeOpened     Type = "DISPUTE_OPENED"
	TypeDisputeResolved   Type = "DISPUTE_RESOLVED"
)

// Actor identifies who produced an event.
type Actor struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

// Event is one entry in a stream's append-only log.
type Event struct {
	ID          string         `json:"id,omitempty"`
	StreamID    string         `json:"streamId"`
	Type        Type           `json:"type"`
	At          time.Time      `json:"at"`
	Payload     map[string]any `json:"payload"`
	Actor       Actor          `json:"actor"`
	SignerKeyID string         `json:"signerKeyId,omitempty"`
	Signature   string         `json:"signature,omitempty"`
	ChainHash   string         `json:"chainHash"`
}

// hashedCore returns the canonicalizable value covering every field except
// chainHash and signature, per the chain-hash invariant in spec §3.
func (e Event) hashedCore() any {
	var id any = canonical.Undefined
	if e.ID != "" {
		id = e.ID
	}
	var signerKeyID any = canonical.Undefined
	if e.SignerKeyID != "" {
		signerKeyID = e.SignerKeyID
	}
	return canonical.Object(
		canonical.Field("id", id),
		canonical.Field("streamId", e.StreamID),
		canonical.Field("type", string(e.Type)),
		canonical.Field("at", formatRFC3339Milli(e.At)),
		canonical.Field("payload", e.Payload),
		canonical.Field("actor", canonical.Object(
			canonical.Field("role", e.Actor.Role),
			canonical.Field("id", e.Actor.ID),
		)),
		canonical.Field("signerKeyId", signerKeyID),
	)
}

// ComputeChainHash implements chainHash(e_i) = SHA256(chainHash(e_{i-1}) ‖
// canonical(e_i minus chainHash/signature)). The empty string is used as
// the predecessor hash for the first event in a stream.
func ComputeChainHash(prevChainHash string, e Event) (string, error) {
	core, err := canonical.Marshal(e.hashedCore())
	if err != nil {
		return "", fmt.Errorf("events: canonicalize event: %w", err)
	}
	joined := append([]byte(prevChainHash), core...)
	return cryptoutil.Sum256Hex(joined), nil
}

// Append computes and assigns e.ChainHash given the previous event's chain
// hash ("" for the first event in a stream).
func Append(prevChainHash string, e Event) (Event, error) {
	h, err := ComputeChainHash(prevChainHash, e)
	if err != nil {
		return Event{}, err
	}
	e.ChainHash = h
	return e, nil
}

// Sign signs e.ChainHash and stores Signature. Call after Append, since the
// signature binds to the chain hash. The chain hash covers signerKeyId, so
// e.SignerKeyID must already equal keyID when Append computes it; Sign
// rejects an event whose SignerKeyID differs.
func Sign(e Event, signer cryptoutil.Signer, keyID string) (Event, error) {
	if e.SignerKeyID != keyID {
		return Event{}, fmt.Errorf("events: signerKeyId %q must be set to %q before Append", e.SignerKeyID, keyID)
	}
	sig, err := cryptoutil.SignHashHex(e.ChainHash, signer, cryptoutil.PurposeServer, string(e.Type))
	if err != nil {
		return Event{}, err
	}
	e.Signature = sig
	return e, nil
}

// VerifyChain validates that every event's chainHash and (if present)
// signature is consistent with its predecessor, per invariant 3 in spec
// §8. resolveKey resolves a signerKeyId to its public key PEM.
func VerifyChain(stream []Event, resolveKey func(keyID string) (string, bool)) error {
	prev := ""
	for i, e := range stream {
		want, err := ComputeChainHash(prev, e)
		if err != nil {
			return fmt.Errorf("events: event %d: %w", i, err)
		}
		if want != e.ChainHash {
			return fmt.Errorf("events: event %d: chainHash mismatch", i)
		}
		if e.Signature != "" {
			pubPEM, ok := resolveKey(e.SignerKeyID)
			if !ok {
				return fmt.Errorf("events: event %d: unknown signer key %q", i, e.SignerKeyID)
			}
			ok2, err := cryptoutil.VerifyHashHex(e.ChainHash, e.Signature, pubPEM)
			if err != nil {
				return fmt.Errorf("events: event %d: verify signature: %w", i, err)
			}
			if !ok2 {
				return fmt.Errorf("events: event %d: signature does not verify", i)
			}
		}
		prev = e.ChainHash
	}
	return nil
}

func formatRFC3339Milli(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
