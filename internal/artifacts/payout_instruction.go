package artifacts

import (
	"fmt"
	"time"

	"settld/internal/canonical"
)

const schemaVersionPayoutInstruction = "PayoutInstruction.v1"

// PayoutInstruction authorizes a single payout to an operator. Per spec
// §4.6 rule 5 it is USD-only and amountCents must be a positive,
// safe-integer number of cents.
type PayoutInstruction struct {
	Header
	PartyID      string `json:"partyId"`
	Currency     string `json:"currency"`
	AmountCents  int64  `json:"amountCents"`
	Destination  string `json:"destination"`
	ArtifactHash string `json:"artifactHash"`
}

// maxSafeIntegerCents mirrors canonical's safe-integer bound (2^53 - 1).
const maxSafeIntegerCents = int64(1)<<53 - 1

// BuildPayoutInstruction implements spec §4.6's PayoutInstruction builder.
func BuildPayoutInstruction(tenantID, partyID, currency string, amountCents int64, destination string, generatedAt time.Time) (*PayoutInstruction, error) {
	if currency != "USD" {
		return nil, fmt.Errorf("artifacts: PAYOUT_INSTRUCTION_CURRENCY_UNSUPPORTED: %q", currency)
	}
	if amountCents <= 0 {
		return nil, fmt.Errorf("artifacts: PAYOUT_INSTRUCTION_AMOUNT_INVALID: amountCents must be positive, got %d", amountCents)
	}
	if amountCents > maxSafeIntegerCents {
		return nil, fmt.Errorf("artifacts: PAYOUT_INSTRUCTION_AMOUNT_INVALID: amountCents exceeds safe-integer range")
	}

	header := Header{
		SchemaVersion: schemaVersionPayoutInstruction,
		ArtifactType:  "PayoutInstruction",
		ArtifactID:    "pi_" + tenantID + "_" + partyID,
		GeneratedAt:   generatedAt,
		TenantID:      tenantID,
	}
	instruction := &PayoutInstruction{
		Header:      header,
		PartyID:     partyID,
		Currency:    currency,
		AmountCents: amountCents,
		Destination: destination,
	}
	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("partyId", partyID),
		canonical.Field("currency", currency),
		canonical.Field("amountCents", amountCents),
		canonical.Field("destination", destination),
	})
	if err != nil {
		return nil, err
	}
	instruction.ArtifactHash = hash
	return instruction, nil
}
