package artifacts

import (
	"time"

	"settld/internal/canonical"
	"settld/internal/jobs"
)

const schemaVersionCreditMemo = "CreditMemo.v1"

// FundingModel is who ultimately bears a credit memo's cost.
type FundingModel string

const (
	FundingPlatformAbsorbed  FundingModel = "platform_absorbed"
	FundingInsurerRecoverable FundingModel = "insurer_recoverable"
)

// CreditMemo records a customer credit issued against a job, with the
// funding model that determines whether it is recoverable from insurance.
type CreditMemo struct {
	Header
	AmountCents      int64        `json:"amountCents"`
	Reason           string       `json:"reason"`
	FundingModel     FundingModel `json:"fundingModel"`
	RecoverablePct   int          `json:"recoverablePct,omitempty"`
	RecoverableCents int64        `json:"recoverableCents,omitempty"`
	ReceivableRefID  string       `json:"receivableRefId,omitempty"`
	ArtifactHash     string       `json:"artifactHash"`
}

// BuildCreditMemo implements spec §4.6's CreditMemo builder. When
// fundingModel is insurer_recoverable, recoverableCents =
// floor(amountCents * recoverablePct / 100) and a receivableRefId is minted.
func BuildCreditMemo(snap *jobs.Snapshot, eventProof jobs.EventProof, amountCents int64, reason string, model FundingModel, recoverablePct int, receivableRefID func() string, generatedAt time.Time) (*CreditMemo, error) {
	policyHash, err := ResolvePolicyHash(snap.Booking)
	if err != nil {
		return nil, err
	}
	memo := &CreditMemo{
		AmountCents:  amountCents,
		Reason:       reason,
		FundingModel: model,
	}
	if model == FundingInsurerRecoverable {
		memo.RecoverablePct = recoverablePct
		memo.RecoverableCents = (amountCents * int64(recoverablePct)) / 100
		memo.ReceivableRefID = receivableRefID()
	}

	header := Header{
		SchemaVersion: schemaVersionCreditMemo,
		ArtifactType:  "CreditMemo",
		ArtifactID:    "cm_" + snap.ID,
		GeneratedAt:   generatedAt,
		TenantID:      snap.TenantID,
		JobID:         snap.ID,
		JobVersion:    eventProof.EventCount,
		PolicyHash:    policyHash,
		EventProof:    eventProof,
	}
	memo.Header = header

	hash, err := hashCore(header, []canonical.Entry{
		canonical.Field("amountCents", memo.AmountCents),
		canonical.Field("reason", memo.Reason),
		canonical.Field("fundingModel", string(memo.FundingModel)),
		canonical.Field("recoverablePct", intOrUndefined(memo.RecoverablePct)),
		canonical.Field("recoverableCents", int64OrUndefined(memo.RecoverableCents)),
		canonical.Field("receivableRefId", nonEmptyOrUndefined(memo.ReceivableRefID)),
	})
	if err != nil {
		return nil, err
	}
	memo.ArtifactHash = hash
	return memo, nil
}

func intOrUndefined(v int) any {
	if v == 0 {
		return canonical.Undefined
	}
	return v
}

func int64OrUndefined(v int64) any {
	if v == 0 {
		return canonical.Undefined
	}
	return v
}
