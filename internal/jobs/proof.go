package jobs

import (
	"sort"

	"settld/internal/events"
)

// RecomputeZoneCoverage recomputes the zone-coverage proof facts hash at a
// given chain hash. In production this would re-run the coverage
// evaluation against the booking's zone/policy; settld treats it as an
// injected capability so the resolver stays pure and testable.
type RecomputeZoneCoverage func(snapshot *Snapshot, atChainHash string) (factsHash string, err error)

// ResolveEffectiveProof implements spec §4.5's effective-proof resolver:
//
//   - If settlement.settled and settlementProofRef is set, the proof that
//     settled the job is authoritative (SETTLED).
//   - Else if execution is complete, recompute the zone-coverage proof at
//     the completion chain hash and compare it against the latest
//     PROOF_EVALUATED with the same (evaluatedAtChainHash, factsHash,
//     customerPolicyHash) triple: match → FRESH, else → STALE with the
//     expected facts hash surfaced for diagnostics.
//   - Otherwise, the last-seen PROOF_EVALUATED stands as-is.
func ResolveEffectiveProof(s *Snapshot, recompute RecomputeZoneCoverage) (EffectiveProof, error) {
	if s.Settlement.Settled && s.Settlement.SettlementProofRef != "" {
		return EffectiveProof{Status: EffectiveProofSettled, Proof: s.LatestProof}, nil
	}

	if s.Execution.CompletedAt != nil && s.LatestProof != nil {
		expectedFactsHash, err := recompute(s, s.Execution.CompletedAtChainHash)
		if err != nil {
			return EffectiveProof{}, err
		}
		matches := s.LatestProof.EvaluatedAtChainHash == s.Execution.CompletedAtChainHash &&
			s.LatestProof.FactsHash == expectedFactsHash &&
			s.LatestProof.CustomerPolicyHash == s.Booking.PolicyHash
		if matches {
			return EffectiveProof{Status: EffectiveProofFresh, Proof: s.LatestProof}, nil
		}
		return EffectiveProof{Status: EffectiveProofStale, Proof: s.LatestProof, ExpectedFactsHash: expectedFactsHash}, nil
	}

	if s.LatestProof != nil {
		return EffectiveProof{Status: EffectiveProofLastSeen, Proof: s.LatestProof}, nil
	}
	return EffectiveProof{Status: EffectiveProofLastSeen, Proof: nil}, nil
}

// EventProof summarizes a stream's tail for artifact binding (spec §4.6):
// lastChainHash, eventCount, and the set of distinct signer key ids among
// signed events.
type EventProof struct {
	LastChainHash string   `json:"lastChainHash"`
	EventCount    int      `json:"eventCount"`
	Signatures    SigSummary `json:"signatures"`
}

// SigSummary is the {signedEventCount, signerKeyIds} pair inside EventProof.
type SigSummary struct {
	SignedEventCount int      `json:"signedEventCount"`
	SignerKeyIDs     []string `json:"signerKeyIds"`
}

// BuildEventProof computes the deterministic eventProof summary every
// artifact builder attaches to its output.
func BuildEventProof(stream []events.Event) EventProof {
	seen := map[string]bool{}
	var keyIDs []string
	signedCount := 0
	for _, e := range stream {
		if e.Signature == "" {
			continue
		}
		signedCount++
		if e.SignerKeyID != "" && !seen[e.SignerKeyID] {
			seen[e.SignerKeyID] = true
			keyIDs = append(keyIDs, e.SignerKeyID)
		}
	}
	sort.Strings(keyIDs)
	last := ""
	if len(stream) > 0 {
		last = stream[len(stream)-1].ChainHash
	}
	return EventProof{
		LastChainHash: last,
		EventCount:    len(stream),
		Signatures:    SigSummary{SignedEventCount: signedCount, SignerKeyIDs: keyIDs},
	}
}
