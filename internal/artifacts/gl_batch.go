package artifacts

import (
	"fmt"
	"sort"
	"time"

	"settld/internal/canonical"
)

const schemaVersionGLBatch = "GLBatch.v1"

// GLBatchLine is one posting line in a GLBatch, keyed by the
// entryId:postingId:partyId convention (spec §4.6 rule 6).
type GLBatchLine struct {
	LineID      string `json:"lineId"`
	EntryID     string `json:"entryId"`
	PostingID   string `json:"postingId"`
	PartyID     string `json:"partyId"`
	Account     string `json:"account"`
	AmountCents int64  `json:"amountCents"`
}

// AccountTotal and PartyTotal are the GLBatch's per-account and per-party
// rollups.
type AccountTotal struct {
	Account    string `json:"account"`
	TotalCents int64  `json:"totalCents"`
}

type PartyTotal struct {
	PartyID    string `json:"partyId"`
	TotalCents int64  `json:"totalCents"`
}

// GLBatch is the general-ledger posting batch for a settlement run: lines
// sorted by lineId, with per-account and per-party totals. A batch whose
// lines do not net to zero is rejected with GL_BATCH_IMBALANCED.
type GLBatch struct {
	Header
	Lines         []GLBatchLine  `json:"lines"`
	AccountTotals []AccountTotal `json:"accountTotals"`
	PartyTotals   []PartyTotal   `json:"partyTotals"`
	TotalCents    int64          `json:"totalCents"`
	ArtifactHash  string         `json:"artifactHash"`
}

// BuildGLBatch implements spec §4.6's GLBatch builder.
func BuildGLBatch(tenantID, batchID string, entries []LedgerEntry, generatedAt time.Time) (*GLBatch, error) {
	lines := make([]GLBatchLine, 0, len(entries))
	accountTotals := map[string]int64{}
	partyTotals := map[string]int64{}
	total := int64(0)
	for _, e := range entries {
		lines = append(lines, GLBatchLine{
			LineID:      e.lineID(),
			EntryID:     e.EntryID,
			PostingID:   e.PostingID,
			PartyID:     e.PartyID,
			Account:     e.Account,
			AmountCents: e.AmountCents,
		})
		accountTotals[e.Account] += e.AmountCents
		partyTotals[e.PartyID] += e.AmountCents
		total += e.AmountCents
	}
	if total != 0 {
		return nil, fmt.Errorf("artifacts: GL_BATCH_IMBALANCED: lines net to %d cents, want 0", total)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineID < lines[j].LineID })

	accounts := make([]string, 0, len(accountTotals))
	for a := range accountTotals {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	accountRollup := make([]AccountTotal, 0, len(accounts))
	for _, a := range accounts {
		accountRollup = append(accountRollup, AccountTotal{Account: a, TotalCents: accountTotals[a]})
	}

	parties := make([]string, 0, len(partyTotals))
	for p := range partyTotals {
		parties = append(parties, p)
	}
	sort.Strings(parties)
	partyRollup := make([]PartyTotal, 0, len(parties))
	for _, p := range parties {
		partyRollup = append(partyRollup, PartyTotal{PartyID: p, TotalCents: partyTotals[p]})
	}

	header := Header{
		SchemaVersion: schemaVersionGLBatch,
		ArtifactType:  "GLBatch",
		ArtifactID:    "gl_" + tenantID + "_" + batchID,
		GeneratedAt:   generatedAt,
		TenantID:      tenantID,
	}
	batch := &GLBatch{
		Header:        header,
		Lines:         lines,
		AccountTotals: accountRollup,
		PartyTotals:   partyRollup,
		TotalCents:    total,
	}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("lines", glLinesToAny(lines)),
		canonical.Field("accountTotals", accountTotalsToAny(accountRollup)),
		canonical.Field("partyTotals", partyTotalsToAny(partyRollup)),
		canonical.Field("totalCents", total),
	})
	if err != nil {
		return nil, err
	}
	batch.ArtifactHash = hash
	return batch, nil
}

func glLinesToAny(lines []GLBatchLine) []any {
	out := make([]any, 0, len(lines))
	for _, l := range lines {
		out = append(out, canonical.Object(
			canonical.Field("lineId", l.LineID),
			canonical.Field("entryId", l.EntryID),
			canonical.Field("postingId", l.PostingID),
			canonical.Field("partyId", l.PartyID),
			canonical.Field("account", l.Account),
			canonical.Field("amountCents", l.AmountCents),
		))
	}
	return out
}

func accountTotalsToAny(s []AccountTotal) []any {
	out := make([]any, 0, len(s))
	for _, a := range s {
		out = append(out, canonical.Object(
			canonical.Field("account", a.Account),
			canonical.Field("totalCents", a.TotalCents),
		))
	}
	return out
}

func partyTotalsToAny(s []PartyTotal) []any {
	out := make([]any, 0, len(s))
	for _, p := range s {
		out = append(out, canonical.Object(
			canonical.Field("partyId", p.PartyID),
			canonical.Field("totalCents", p.TotalCents),
		))
	}
	return out
}
