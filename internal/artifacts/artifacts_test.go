package artifacts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"settld/internal/jobs"
)

func baseSnapshot() *jobs.Snapshot {
	return &jobs.Snapshot{
		ID:       "job_1",
		TenantID: "tenant_1",
		Booking: jobs.Booking{
			Window:     "2026-07-30T09:00:00Z/PT2H",
			Zone:       "zone_1",
			Tier:       "standard",
			PolicyHash: "policy_hash_1",
		},
		Assist:           jobs.AssistNone,
		Access:           jobs.AccessNone,
		OperatorCoverage: jobs.OperatorCoverageNone,
		Evidence:         map[string]jobs.Evidence{},
		Incidents:        map[string]jobs.Incident{},
		Claims:           map[string]jobs.Claim{},
		RiskScores:       []float64{0.1, 0.4},
		Settlement:       jobs.Settlement{SettlementID: "settlement_1"},
		SettlementHold:   jobs.SettlementHold{State: jobs.SettlementHoldNone},
	}
}

func sampleEventProof() jobs.EventProof {
	return jobs.EventProof{
		LastChainHash: "chain_hash_1",
		EventCount:    4,
		Signatures: jobs.SigSummary{
			SignedEventCount: 4,
			SignerKeyIDs:     []string{"key_a", "key_b"},
		},
	}
}

func TestBuildWorkCertificateSummarizesRisk(t *testing.T) {
	snap := baseSnapshot()
	cert, err := BuildWorkCertificate(snap, sampleEventProof(), jobs.EffectiveProof{Status: jobs.EffectiveProofFresh}, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, 2, cert.RiskSummary.Count)
	require.InDelta(t, 0.25, cert.RiskSummary.Average, 1e-9)
	require.InDelta(t, 0.4, cert.RiskSummary.Max, 1e-9)
	require.NotEmpty(t, cert.ArtifactHash)
}

func TestBuildProofReceiptBindsProofFields(t *testing.T) {
	snap := baseSnapshot()
	proof := jobs.Proof{
		EvaluatedAtChainHash: "chain_hash_2",
		FactsHash:            "facts_hash_1",
		Outcome:              "pass",
	}
	receipt, err := BuildProofReceipt(snap, proof, sampleEventProof(), time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, proof.FactsHash, receipt.FactsHash)
	require.Equal(t, proof.Outcome, receipt.Outcome)
}

func TestBuildIncidentPacketHashesEvidenceRefsNotRawRefs(t *testing.T) {
	snap := baseSnapshot()
	snap.Incidents["inc_1"] = jobs.Incident{ID: "inc_1", Severity: "high", At: time.Unix(100, 0)}
	snap.Evidence["ev_1"] = jobs.Evidence{ID: "ev_1", Ref: "s3://bucket/secret-key", CapturedAt: time.Unix(50, 0)}

	packet, err := BuildIncidentPacket(snap, sampleEventProof(), time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, packet.Incidents, 1)
	require.Len(t, packet.Evidence, 1)
	require.NotContains(t, packet.Evidence[0].RefHash, "secret-key")
}

func TestBuildCreditMemoComputesRecoverableCents(t *testing.T) {
	snap := baseSnapshot()
	memo, err := BuildCreditMemo(snap, sampleEventProof(), 10000, "customer_goodwill", FundingInsurerRecoverable, 60, func() string { return "receivable_1" }, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, int64(6000), memo.RecoverableCents)
	require.Equal(t, "receivable_1", memo.ReceivableRefID)
}

func TestBuildCreditMemoPlatformAbsorbedSkipsRecoverable(t *testing.T) {
	snap := baseSnapshot()
	memo, err := BuildCreditMemo(snap, sampleEventProof(), 10000, "customer_goodwill", FundingPlatformAbsorbed, 0, func() string { return "" }, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, int64(0), memo.RecoverableCents)
	require.Empty(t, memo.ReceivableRefID)
}

func TestBuildSettlementStatementReflectsHoldState(t *testing.T) {
	snap := baseSnapshot()
	snap.SettlementHold = jobs.SettlementHold{State: jobs.SettlementHoldHeld, ExposureCents: 1500}
	statement, err := BuildSettlementStatement(snap, sampleEventProof(), time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, "held", statement.HoldState)
	require.Equal(t, int64(1500), statement.ExposureCents)
}

func TestBuildCoverageCertificateReflectsOperatorCoverage(t *testing.T) {
	snap := baseSnapshot()
	snap.OperatorCoverage = jobs.OperatorCoverageReserved
	cert, err := BuildCoverageCertificate(snap, sampleEventProof(), true, time.Unix(0, 0))
	require.NoError(t, err)
	require.True(t, cert.RequiresOperatorCoverage)
	require.Equal(t, "reserved", cert.OperatorCoverage)
}

func TestArtifactHashChangesWhenBodyChanges(t *testing.T) {
	snap := baseSnapshot()
	a, err := BuildCoverageCertificate(snap, sampleEventProof(), true, time.Unix(0, 0))
	require.NoError(t, err)
	b, err := BuildCoverageCertificate(snap, sampleEventProof(), false, time.Unix(0, 0))
	require.NoError(t, err)
	require.NotEqual(t, a.ArtifactHash, b.ArtifactHash)
}
