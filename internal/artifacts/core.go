// Package artifacts implements the content-addressed, schema-versioned
// artifact builders of spec §4.6: WorkCertificate, ProofReceipt,
// IncidentPacket, CreditMemo, SettlementStatement, CoverageCertificate,
// MonthlyStatement, PartyStatement, PayoutInstruction, GLBatch,
// JournalCsv, and the FinancePackBundle pointer.
package artifacts

import (
	"fmt"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
	"settld/internal/jobs"
)

// Header is the common envelope every artifact carries, per spec §3: schema
// version, type tag, content id, generation timestamp, tenant/job linkage,
// the resolved policy hash, and the eventProof binding. ArtifactHash is
// deliberately absent here — it is computed over the header plus body and
// never folds itself in.
type Header struct {
	SchemaVersion string          `json:"schemaVersion"`
	ArtifactType  string          `json:"artifactType"`
	ArtifactID    string          `json:"artifactId"`
	GeneratedAt   time.Time       `json:"generatedAt"`
	TenantID      string          `json:"tenantId"`
	JobID         string          `json:"jobId"`
	JobVersion    int             `json:"jobVersion"`
	PolicyHash    string          `json:"policyHash"`
	EventProof    jobs.EventProof `json:"eventProof"`
}

func (h Header) fields() []canonical.Entry {
	return []canonical.Entry{
		canonical.Field("schemaVersion", h.SchemaVersion),
		canonical.Field("artifactType", h.ArtifactType),
		canonical.Field("artifactId", h.ArtifactID),
		canonical.Field("generatedAt", formatRFC3339Milli(h.GeneratedAt)),
		canonical.Field("tenantId", h.TenantID),
		canonical.Field("jobId", h.JobID),
		canonical.Field("jobVersion", h.JobVersion),
		canonical.Field("policyHash", h.PolicyHash),
		canonical.Field("eventProof", eventProofToAny(h.EventProof)),
	}
}

func eventProofToAny(ep jobs.EventProof) any {
	ids := make([]any, 0, len(ep.Signatures.SignerKeyIDs))
	for _, id := range ep.Signatures.SignerKeyIDs {
		ids = append(ids, id)
	}
	return canonical.Object(
		canonical.Field("lastChainHash", ep.LastChainHash),
		canonical.Field("eventCount", ep.EventCount),
		canonical.Field("signatures", canonical.Object(
			canonical.Field("signedEventCount", ep.Signatures.SignedEventCount),
			canonical.Field("signerKeyIds", ids),
		)),
	)
}

// ResolvePolicyHash implements spec §4.6 rule 3: prefer the booking's
// recorded policyHash, else hash the inferred policy snapshot.
func ResolvePolicyHash(booking jobs.Booking) (string, error) {
	if booking.PolicyHash != "" {
		return booking.PolicyHash, nil
	}
	if booking.PolicySnapshot == nil {
		return "", fmt.Errorf("artifacts: no policy snapshot available to hash")
	}
	return cryptoutil.HashCanonical(booking.PolicySnapshot)
}

// HashEvidenceRefs hashes each evidenceRef string so artifact bodies never
// leak raw references (spec §4.6 rule 4), returning a sorted-by-id summary.
func HashEvidenceRefs(evidence map[string]jobs.Evidence) []EvidenceSummary {
	out := make([]EvidenceSummary, 0, len(evidence))
	for id, ev := range evidence {
		out = append(out, EvidenceSummary{
			ID:         id,
			RefHash:    cryptoutil.Sum256Hex([]byte(ev.Ref)),
			Expired:    ev.Expired,
			CapturedAt: ev.CapturedAt,
		})
	}
	sortEvidenceByID(out)
	return out
}

// EvidenceSummary is the hashed-reference form of a job's evidence record.
type EvidenceSummary struct {
	ID         string    `json:"id"`
	RefHash    string    `json:"refHash"`
	Expired    bool      `json:"expired"`
	CapturedAt time.Time `json:"capturedAt"`
}

func sortEvidenceByID(s []EvidenceSummary) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].ID > s[j].ID; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func evidenceSummariesToAny(s []EvidenceSummary) []any {
	out := make([]any, 0, len(s))
	for _, e := range s {
		out = append(out, canonical.Object(
			canonical.Field("id", e.ID),
			canonical.Field("refHash", e.RefHash),
			canonical.Field("expired", e.Expired),
			canonical.Field("capturedAt", formatRFC3339Milli(e.CapturedAt)),
		))
	}
	return out
}

// hashCore computes artifactHash = sha256(canonical(header fields ++ body
// fields)), per spec §3/§4.6 rule 2. Body must not itself contain an
// "artifactHash" key.
func hashCore(header Header, body []canonical.Entry) (string, error) {
	all := append(append([]canonical.Entry{}, header.fields()...), body...)
	core := canonical.Object(all...)
	if _, has := core["artifactHash"]; has {
		return "", fmt.Errorf("artifacts: body must not set artifactHash")
	}
	return cryptoutil.HashCanonical(core)
}

func formatRFC3339Milli(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
