package artifacts

import (
	"time"

	"settld/internal/canonical"
	"settld/internal/jobs"
)

const schemaVersionProofReceipt = "ProofReceipt.v1"

// ProofReceipt is the signed record of a single PROOF_EVALUATED event.
type ProofReceipt struct {
	Header
	EvaluatedAtChainHash string `json:"evaluatedAtChainHash"`
	FactsHash            string `json:"factsHash"`
	CustomerPolicyHash   string `json:"customerPolicyHash,omitempty"`
	Outcome              string `json:"outcome"`
	ArtifactHash         string `json:"artifactHash"`
}

// BuildProofReceipt implements spec §4.6's ProofReceipt builder.
func BuildProofReceipt(snap *jobs.Snapshot, proof jobs.Proof, eventProof jobs.EventProof, generatedAt time.Time) (*ProofReceipt, error) {
	policyHash, err := ResolvePolicyHash(snap.Booking)
	if err != nil {
		return nil, err
	}
	header := Header{
		SchemaVersion: schemaVersionProofReceipt,
		ArtifactType:  "ProofReceipt",
		ArtifactID:    "pr_" + snap.ID + "_" + proof.EvaluatedAtChainHash[:minInt(12, len(proof.EvaluatedAtChainHash))],
		GeneratedAt:   generatedAt,
		TenantID:      snap.TenantID,
		JobID:         snap.ID,
		JobVersion:    eventProof.EventCount,
		PolicyHash:    policyHash,
		EventProof:    eventProof,
	}
	receipt := &ProofReceipt{
		Header:               header,
		EvaluatedAtChainHash: proof.EvaluatedAtChainHash,
		FactsHash:            proof.FactsHash,
		CustomerPolicyHash:   proof.CustomerPolicyHash,
		Outcome:              proof.Outcome,
	}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("evaluatedAtChainHash", receipt.EvaluatedAtChainHash),
		canonical.Field("factsHash", receipt.FactsHash),
		canonical.Field("customerPolicyHash", nonEmptyOrUndefined(receipt.CustomerPolicyHash)),
		canonical.Field("outcome", receipt.Outcome),
	})
	if err != nil {
		return nil, err
	}
	receipt.ArtifactHash = hash
	return receipt, nil
}

func nonEmptyOrUndefined(s string) any {
	if s == "" {
		return canonical.Undefined
	}
	return s
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
