package artifacts

import (
	"sort"
	"time"

	"settld/internal/canonical"
)

const schemaVersionFinancePackBundle = "FinancePackBundle.v1"

// FinancePackBundle is the pointer artifact gathering a billing period's
// finance artifacts by hash, without re-embedding their bodies.
type FinancePackBundle struct {
	Header
	Period                  string   `json:"period"`
	MonthlyStatementHash    string   `json:"monthlyStatementHash"`
	PartyStatementHashes    []string `json:"partyStatementHashes"`
	PayoutInstructionHashes []string `json:"payoutInstructionHashes"`
	GLBatchHash             string   `json:"glBatchHash"`
	JournalCsvHash          string   `json:"journalCsvHash"`
	ArtifactHash            string   `json:"artifactHash"`
}

// BuildFinancePackBundle implements spec §4.6's FinancePackBundle pointer
// builder. Party-statement and payout-instruction hash lists are sorted so
// that the same underlying set always yields the same bundle hash
// regardless of construction order.
func BuildFinancePackBundle(tenantID, period string, monthlyStatement *MonthlyStatement, partyStatements []*PartyStatement, payoutInstructions []*PayoutInstruction, glBatch *GLBatch, journal *JournalCsv, generatedAt time.Time) (*FinancePackBundle, error) {
	partyHashes := make([]string, 0, len(partyStatements))
	for _, ps := range partyStatements {
		partyHashes = append(partyHashes, ps.ArtifactHash)
	}
	sort.Strings(partyHashes)

	payoutHashes := make([]string, 0, len(payoutInstructions))
	for _, pi := range payoutInstructions {
		payoutHashes = append(payoutHashes, pi.ArtifactHash)
	}
	sort.Strings(payoutHashes)

	header := Header{
		SchemaVersion: schemaVersionFinancePackBundle,
		ArtifactType:  "FinancePackBundle",
		ArtifactID:    "fpb_" + tenantID + "_" + period,
		GeneratedAt:   generatedAt,
		TenantID:      tenantID,
	}
	bundle := &FinancePackBundle{
		Header:                  header,
		Period:                  period,
		MonthlyStatementHash:    monthlyStatement.ArtifactHash,
		PartyStatementHashes:    partyHashes,
		PayoutInstructionHashes: payoutHashes,
		GLBatchHash:             glBatch.ArtifactHash,
		JournalCsvHash:          journal.ArtifactHash,
	}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("period", bundle.Period),
		canonical.Field("monthlyStatementHash", bundle.MonthlyStatementHash),
		canonical.Field("partyStatementHashes", stringsToAnySlice(bundle.PartyStatementHashes)),
		canonical.Field("payoutInstructionHashes", stringsToAnySlice(bundle.PayoutInstructionHashes)),
		canonical.Field("glBatchHash", bundle.GLBatchHash),
		canonical.Field("journalCsvHash", bundle.JournalCsvHash),
	})
	if err != nil {
		return nil, err
	}
	bundle.ArtifactHash = hash
	return bundle, nil
}

func stringsToAnySlice(s []string) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
