package artifacts

import (
	"time"

	"settld/internal/canonical"
	"settld/internal/jobs"
)

const schemaVersionIncidentPacket = "IncidentPacket.v1"

// IncidentPacket bundles a job's incidents and related evidence for claims
// handling.
type IncidentPacket struct {
	Header
	Incidents    []IncidentEntry   `json:"incidents"`
	Evidence     []EvidenceSummary `json:"evidence"`
	ArtifactHash string            `json:"artifactHash"`
}

// IncidentEntry is one incident record surfaced in the packet.
type IncidentEntry struct {
	ID       string    `json:"id"`
	Severity string    `json:"severity"`
	At       time.Time `json:"at"`
}

// BuildIncidentPacket implements spec §4.6's IncidentPacket builder.
func BuildIncidentPacket(snap *jobs.Snapshot, eventProof jobs.EventProof, generatedAt time.Time) (*IncidentPacket, error) {
	policyHash, err := ResolvePolicyHash(snap.Booking)
	if err != nil {
		return nil, err
	}
	incidents := make([]IncidentEntry, 0, len(snap.Incidents))
	for _, inc := range snap.Incidents {
		incidents = append(incidents, IncidentEntry{ID: inc.ID, Severity: inc.Severity, At: inc.At})
	}
	sortIncidents(incidents)
	evidence := HashEvidenceRefs(snap.Evidence)

	header := Header{
		SchemaVersion: schemaVersionIncidentPacket,
		ArtifactType:  "IncidentPacket",
		ArtifactID:    "ip_" + snap.ID,
		GeneratedAt:   generatedAt,
		TenantID:      snap.TenantID,
		JobID:         snap.ID,
		JobVersion:    eventProof.EventCount,
		PolicyHash:    policyHash,
		EventProof:    eventProof,
	}
	packet := &IncidentPacket{Header: header, Incidents: incidents, Evidence: evidence}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("incidents", incidentsToAny(incidents)),
		canonical.Field("evidence", evidenceSummariesToAny(evidence)),
	})
	if err != nil {
		return nil, err
	}
	packet.ArtifactHash = hash
	return packet, nil
}

func sortIncidents(s []IncidentEntry) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].ID > s[j].ID; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func incidentsToAny(s []IncidentEntry) []any {
	out := make([]any, 0, len(s))
	for _, inc := range s {
		out = append(out, canonical.Object(
			canonical.Field("id", inc.ID),
			canonical.Field("severity", inc.Severity),
			canonical.Field("at", formatRFC3339Milli(inc.At)),
		))
	}
	return out
}
