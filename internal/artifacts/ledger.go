package artifacts

import (
	"fmt"
	"sort"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// LedgerEntry is one signed amount posted against an account/party, the
// common input shape for PartyStatement, PayoutInstruction, GLBatch and
// JournalCsv. By convention a negative amount moves money INTO
// platform-revenue / operator-payable / customer-credits-payable buckets
// (spec §4.6).
type LedgerEntry struct {
	EntryID     string `json:"entryId"`
	PostingID   string `json:"postingId"`
	PartyID     string `json:"partyId"`
	Account     string `json:"account"`
	AmountCents int64  `json:"amountCents"`
}

func (e LedgerEntry) lineID() string {
	return fmt.Sprintf("%s:%s:%s", e.EntryID, e.PostingID, e.PartyID)
}

// --- MonthlyStatement ---

const schemaVersionMonthlyStatement = "MonthlyStatement.v1"

// MonthlyStatement rolls up a tenant's ledger entries for one billing
// period.
type MonthlyStatement struct {
	Header
	Period       string `json:"period"`
	TotalCents   int64  `json:"totalCents"`
	ArtifactHash string `json:"artifactHash"`
}

// BuildMonthlyStatement implements spec §4.6's MonthlyStatement builder.
func BuildMonthlyStatement(tenantID, period string, entries []LedgerEntry, generatedAt time.Time) (*MonthlyStatement, error) {
	total := int64(0)
	for _, e := range entries {
		total += e.AmountCents
	}
	header := Header{
		SchemaVersion: schemaVersionMonthlyStatement,
		ArtifactType:  "MonthlyStatement",
		ArtifactID:    "ms_" + tenantID + "_" + period,
		GeneratedAt:   generatedAt,
		TenantID:      tenantID,
	}
	statement := &MonthlyStatement{Header: header, Period: period, TotalCents: total}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("period", period),
		canonical.Field("totalCents", total),
	})
	if err != nil {
		return nil, err
	}
	statement.ArtifactHash = hash
	return statement, nil
}

// --- PartyStatement ---

const schemaVersionPartyStatement = "PartyStatement.v1"

// PartyBucket is one rollup bucket on a PartyStatement: platform revenue,
// operator payable, or customer credits payable.
type PartyBucket struct {
	Account    string `json:"account"`
	TotalCents int64  `json:"totalCents"`
}

// PartyStatement totals a single party's ledger activity by account and
// rolls negative-signed entries into the fee/payout/credit buckets.
type PartyStatement struct {
	Header
	PartyID          string        `json:"partyId"`
	Totals           []PartyBucket `json:"totals"`
	AllocationDigest string        `json:"allocationDigest"`
	ArtifactHash     string        `json:"artifactHash"`
}

// BuildPartyStatement implements spec §4.6's PartyStatement builder: totals
// by account, with negative amounts rolling into platform-revenue /
// operator-payable / customer-credits-payable buckets, and an allocation
// digest sorted by entryId/postingId/partyId.
func BuildPartyStatement(tenantID, partyID string, entries []LedgerEntry, generatedAt time.Time) (*PartyStatement, error) {
	totalsByAccount := map[string]int64{}
	for _, e := range entries {
		if e.PartyID != partyID {
			continue
		}
		account := e.Account
		if e.AmountCents < 0 {
			switch account {
			case "fees":
				account = "platform-revenue"
			case "payout":
				account = "operator-payable"
			case "credits":
				account = "customer-credits-payable"
			}
		}
		totalsByAccount[account] += e.AmountCents
	}
	accounts := make([]string, 0, len(totalsByAccount))
	for a := range totalsByAccount {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)
	totals := make([]PartyBucket, 0, len(accounts))
	for _, a := range accounts {
		totals = append(totals, PartyBucket{Account: a, TotalCents: totalsByAccount[a]})
	}

	digest, err := allocationDigest(filterByParty(entries, partyID))
	if err != nil {
		return nil, err
	}

	header := Header{
		SchemaVersion: schemaVersionPartyStatement,
		ArtifactType:  "PartyStatement",
		ArtifactID:    "ps_" + tenantID + "_" + partyID,
		GeneratedAt:   generatedAt,
		TenantID:      tenantID,
	}
	statement := &PartyStatement{Header: header, PartyID: partyID, Totals: totals, AllocationDigest: digest}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("partyId", partyID),
		canonical.Field("totals", partyBucketsToAny(totals)),
		canonical.Field("allocationDigest", digest),
	})
	if err != nil {
		return nil, err
	}
	statement.ArtifactHash = hash
	return statement, nil
}

func filterByParty(entries []LedgerEntry, partyID string) []LedgerEntry {
	out := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		if e.PartyID == partyID {
			out = append(out, e)
		}
	}
	return out
}

func partyBucketsToAny(b []PartyBucket) []any {
	out := make([]any, 0, len(b))
	for _, bucket := range b {
		out = append(out, canonical.Object(
			canonical.Field("account", bucket.Account),
			canonical.Field("totalCents", bucket.TotalCents),
		))
	}
	return out
}

// allocationDigest hashes the canonical, sorted-by-lineId entry list — used
// by PartyStatement so the same allocation always produces the same digest
// regardless of caller-supplied ordering.
func allocationDigest(entries []LedgerEntry) (string, error) {
	sorted := append([]LedgerEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].lineID() < sorted[j].lineID() })
	rows := make([]any, 0, len(sorted))
	for _, e := range sorted {
		rows = append(rows, canonical.Object(
			canonical.Field("entryId", e.EntryID),
			canonical.Field("postingId", e.PostingID),
			canonical.Field("partyId", e.PartyID),
			canonical.Field("account", e.Account),
			canonical.Field("amountCents", e.AmountCents),
		))
	}
	return hashAnySlice(rows)
}

func hashAnySlice(rows []any) (string, error) {
	return cryptoutil.HashCanonical(rows)
}
