package artifacts

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"settld/internal/canonical"
)

const schemaVersionJournalCsv = "JournalCsv.v1"

// JournalCsv renders a GLBatch's lines as a CSV export for downstream
// accounting systems, with the same deterministic line ordering and a hash
// binding the rendered bytes to the batch.
type JournalCsv struct {
	Header
	BatchArtifactHash string `json:"batchArtifactHash"`
	CSV               string `json:"csv"`
	ArtifactHash      string `json:"artifactHash"`
}

var journalCsvColumns = []string{"lineId", "entryId", "postingId", "partyId", "account", "amountCents"}

// BuildJournalCsv implements spec §4.6's JournalCsv builder.
func BuildJournalCsv(batch *GLBatch, generatedAt time.Time) (*JournalCsv, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(journalCsvColumns); err != nil {
		return nil, err
	}
	for _, l := range batch.Lines {
		record := []string{
			l.LineID,
			l.EntryID,
			l.PostingID,
			l.PartyID,
			l.Account,
			strconv.FormatInt(l.AmountCents, 10),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	rendered := buf.String()

	header := Header{
		SchemaVersion: schemaVersionJournalCsv,
		ArtifactType:  "JournalCsv",
		ArtifactID:    "jc_" + batch.ArtifactID,
		GeneratedAt:   generatedAt,
		TenantID:      batch.TenantID,
	}
	journal := &JournalCsv{
		Header:            header,
		BatchArtifactHash: batch.ArtifactHash,
		CSV:               rendered,
	}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("batchArtifactHash", journal.BatchArtifactHash),
		canonical.Field("csv", journal.CSV),
	})
	if err != nil {
		return nil, err
	}
	journal.ArtifactHash = hash
	return journal, nil
}
