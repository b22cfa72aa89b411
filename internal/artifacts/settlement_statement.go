package artifacts

import (
	"time"

	"settld/internal/canonical"
	"settld/internal/jobs"
)

const schemaVersionSettlementStatement = "SettlementStatement.v1"

// SettlementStatement records the final settlement outcome of a job.
type SettlementStatement struct {
	Header
	SettlementID       string `json:"settlementId"`
	SettlementProofRef string `json:"settlementProofRef,omitempty"`
	HoldState          string `json:"holdState"`
	ExposureCents      int64  `json:"exposureCents,omitempty"`
	ArtifactHash       string `json:"artifactHash"`
}

// BuildSettlementStatement implements spec §4.6's SettlementStatement
// builder.
func BuildSettlementStatement(snap *jobs.Snapshot, eventProof jobs.EventProof, generatedAt time.Time) (*SettlementStatement, error) {
	policyHash, err := ResolvePolicyHash(snap.Booking)
	if err != nil {
		return nil, err
	}
	header := Header{
		SchemaVersion: schemaVersionSettlementStatement,
		ArtifactType:  "SettlementStatement",
		ArtifactID:    "ss_" + snap.ID,
		GeneratedAt:   generatedAt,
		TenantID:      snap.TenantID,
		JobID:         snap.ID,
		JobVersion:    eventProof.EventCount,
		PolicyHash:    policyHash,
		EventProof:    eventProof,
	}
	statement := &SettlementStatement{
		Header:             header,
		SettlementID:       snap.Settlement.SettlementID,
		SettlementProofRef: snap.Settlement.SettlementProofRef,
		HoldState:          string(snap.SettlementHold.State),
		ExposureCents:      snap.SettlementHold.ExposureCents,
	}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("settlementId", statement.SettlementID),
		canonical.Field("settlementProofRef", nonEmptyOrUndefined(statement.SettlementProofRef)),
		canonical.Field("holdState", statement.HoldState),
		canonical.Field("exposureCents", int64OrUndefined(statement.ExposureCents)),
	})
	if err != nil {
		return nil, err
	}
	statement.ArtifactHash = hash
	return statement, nil
}

const schemaVersionCoverageCertificate = "CoverageCertificate.v1"

// CoverageCertificate attests that a job's operator coverage requirement
// was met (or waived) for the booking's policy.
type CoverageCertificate struct {
	Header
	RequiresOperatorCoverage bool   `json:"requiresOperatorCoverage"`
	OperatorCoverage         string `json:"operatorCoverage"`
	ArtifactHash             string `json:"artifactHash"`
}

// BuildCoverageCertificate implements spec §4.6's CoverageCertificate
// builder.
func BuildCoverageCertificate(snap *jobs.Snapshot, eventProof jobs.EventProof, requiresCoverage bool, generatedAt time.Time) (*CoverageCertificate, error) {
	policyHash, err := ResolvePolicyHash(snap.Booking)
	if err != nil {
		return nil, err
	}
	header := Header{
		SchemaVersion: schemaVersionCoverageCertificate,
		ArtifactType:  "CoverageCertificate",
		ArtifactID:    "cc_" + snap.ID,
		GeneratedAt:   generatedAt,
		TenantID:      snap.TenantID,
		JobID:         snap.ID,
		JobVersion:    eventProof.EventCount,
		PolicyHash:    policyHash,
		EventProof:    eventProof,
	}
	cert := &CoverageCertificate{
		Header:                   header,
		RequiresOperatorCoverage: requiresCoverage,
		OperatorCoverage:         string(snap.OperatorCoverage),
	}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("requiresOperatorCoverage", cert.RequiresOperatorCoverage),
		canonical.Field("operatorCoverage", cert.OperatorCoverage),
	})
	if err != nil {
		return nil, err
	}
	cert.ArtifactHash = hash
	return cert, nil
}
