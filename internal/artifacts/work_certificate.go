package artifacts

import (
	"time"

	"settld/internal/canonical"
	"settld/internal/jobs"
)

const schemaVersionWorkCertificate = "WorkCertificate.v1"

// WorkCertificate attests that a job's execution, effective proof, risk
// posture, and evidence are consistent as of generation time.
type WorkCertificate struct {
	Header
	EffectiveProofStatus string            `json:"effectiveProofStatus"`
	RiskSummary          RiskSummary       `json:"riskSummary"`
	Evidence             []EvidenceSummary `json:"evidence"`
	IncidentCount        int               `json:"incidentCount"`
	ClaimCount           int               `json:"claimCount"`
	ArtifactHash         string            `json:"artifactHash"`
}

// RiskSummary aggregates a job's recorded risk scores.
type RiskSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
}

func summarizeRisk(scores []float64) RiskSummary {
	if len(scores) == 0 {
		return RiskSummary{}
	}
	sum, max := 0.0, scores[0]
	for _, s := range scores {
		sum += s
		if s > max {
			max = s
		}
	}
	return RiskSummary{Count: len(scores), Average: sum / float64(len(scores)), Max: max}
}

// BuildWorkCertificate implements spec §4.6's WorkCertificate builder.
func BuildWorkCertificate(snap *jobs.Snapshot, eventProof jobs.EventProof, effective jobs.EffectiveProof, generatedAt time.Time) (*WorkCertificate, error) {
	policyHash, err := ResolvePolicyHash(snap.Booking)
	if err != nil {
		return nil, err
	}
	evidence := HashEvidenceRefs(snap.Evidence)
	risk := summarizeRisk(snap.RiskScores)

	header := Header{
		SchemaVersion: schemaVersionWorkCertificate,
		ArtifactType:  "WorkCertificate",
		ArtifactID:    "wc_" + snap.ID,
		GeneratedAt:   generatedAt,
		TenantID:      snap.TenantID,
		JobID:         snap.ID,
		JobVersion:    eventProof.EventCount,
		PolicyHash:    policyHash,
		EventProof:    eventProof,
	}

	cert := &WorkCertificate{
		Header:               header,
		EffectiveProofStatus: string(effective.Status),
		RiskSummary:          risk,
		Evidence:             evidence,
		IncidentCount:        len(snap.Incidents),
		ClaimCount:           len(snap.Claims),
	}

	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("effectiveProofStatus", cert.EffectiveProofStatus),
		canonical.Field("riskSummary", canonical.Object(
			canonical.Field("count", risk.Count),
			canonical.Field("average", risk.Average),
			canonical.Field("max", risk.Max),
		)),
		canonical.Field("evidence", evidenceSummariesToAny(evidence)),
		canonical.Field("incidentCount", cert.IncidentCount),
		canonical.Field("claimCount", cert.ClaimCount),
	})
	if err != nil {
		return nil, err
	}
	cert.ArtifactHash = hash
	return cert, nil
}
