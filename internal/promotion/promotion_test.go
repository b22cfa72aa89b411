package promotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"settld/internal/cryptoutil"
)

func requiredSLAAndAcceptance() []RequiredReport {
	return []RequiredReport{
		{ArtifactID: "sla_report_1", SchemaVersion: "SLAEvaluation.v1", RequiredCheckIDs: []string{"uptime", "latency"}},
		{ArtifactID: "acceptance_report_1", SchemaVersion: "AcceptanceEvaluation.v1"},
	}
}

func passingReports() []Report {
	return []Report{
		{
			ArtifactID:    "sla_report_1",
			SchemaVersion: "SLAEvaluation.v1",
			Verdict:       Verdict{OK: true},
			Checks: []Check{
				{ID: "uptime", Status: "passed"},
				{ID: "latency", Status: "passed"},
			},
		},
		{
			ArtifactID:    "acceptance_report_1",
			SchemaVersion: "AcceptanceEvaluation.v1",
			Verdict:       Verdict{OK: true},
		},
	}
}

func TestEvaluatePassesWhenAllReportsPass(t *testing.T) {
	result, err := Evaluate(requiredSLAAndAcceptance(), passingReports(), nil, time.Unix(1780000000, 0))
	require.NoError(t, err)
	require.Equal(t, VerdictPass, result.Verdict)
	require.Empty(t, result.FailedReports)
}

func TestEvaluateFailsWhenRequiredCheckNotPassed(t *testing.T) {
	reports := passingReports()
	reports[0].Checks[1].Status = "failed"
	result, err := Evaluate(requiredSLAAndAcceptance(), reports, nil, time.Unix(1780000000, 0))
	require.NoError(t, err)
	require.Equal(t, VerdictFail, result.Verdict)
	require.Len(t, result.FailedReports, 1)
}

func TestEvaluateFailsWhenReportMissing(t *testing.T) {
	reports := []Report{passingReports()[0]}
	result, err := Evaluate(requiredSLAAndAcceptance(), reports, nil, time.Unix(1780000000, 0))
	require.NoError(t, err)
	require.Equal(t, VerdictFail, result.Verdict)
	require.Len(t, result.FailedReports, 1)
}

func TestEvaluateOverridePassWithValidSignedOverride(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	reports := passingReports()
	reports[0].Verdict.OK = false
	now := time.Unix(1780000000, 0)

	_, contextHash, err := buildPromotionContext(requiredSLAAndAcceptance(), reports, now)
	require.NoError(t, err)

	sig, err := cryptoutil.SignHashHex(contextHash, cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}, cryptoutil.PurposeGovernance, "promotion-override")
	require.NoError(t, err)

	override := &Override{
		AllowPromotion:         true,
		Algorithm:              "ED25519-SHA256",
		KeyID:                  kp.KeyID,
		PublicKeyPEM:           kp.PublicKeyPEM,
		IssuedAt:               now.Add(-time.Hour),
		ExpiresAt:              now.Add(time.Hour),
		PromotionContextSHA256: contextHash,
		SignatureBase64:        sig,
	}

	result, err := Evaluate(requiredSLAAndAcceptance(), reports, override, now)
	require.NoError(t, err)
	require.Equal(t, VerdictOverridePass, result.Verdict)
}

func TestEvaluateRejectsExpiredOverride(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	reports := passingReports()
	reports[0].Verdict.OK = false
	now := time.Unix(1780000000, 0)

	_, contextHash, err := buildPromotionContext(requiredSLAAndAcceptance(), reports, now)
	require.NoError(t, err)
	sig, err := cryptoutil.SignHashHex(contextHash, cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}, cryptoutil.PurposeGovernance, "promotion-override")
	require.NoError(t, err)

	override := &Override{
		AllowPromotion:         true,
		Algorithm:              "ED25519-SHA256",
		KeyID:                  kp.KeyID,
		PublicKeyPEM:           kp.PublicKeyPEM,
		IssuedAt:               now.Add(-2 * time.Hour),
		ExpiresAt:              now.Add(-time.Hour),
		PromotionContextSHA256: contextHash,
		SignatureBase64:        sig,
	}

	result, err := Evaluate(requiredSLAAndAcceptance(), reports, override, now)
	require.NoError(t, err)
	require.Equal(t, VerdictFail, result.Verdict)
	require.NotEmpty(t, result.OverrideRejection)
}

func TestEvaluateRejectsOverrideBoundToDifferentContext(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)

	reports := passingReports()
	reports[0].Verdict.OK = false
	now := time.Unix(1780000000, 0)

	sig, err := cryptoutil.SignHashHex("some_other_hash", cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}, cryptoutil.PurposeGovernance, "promotion-override")
	require.NoError(t, err)

	override := &Override{
		AllowPromotion:         true,
		Algorithm:              "ED25519-SHA256",
		KeyID:                  kp.KeyID,
		PublicKeyPEM:           kp.PublicKeyPEM,
		IssuedAt:               now.Add(-time.Hour),
		ExpiresAt:              now.Add(time.Hour),
		PromotionContextSHA256: "some_other_hash",
		SignatureBase64:        sig,
	}

	result, err := Evaluate(requiredSLAAndAcceptance(), reports, override, now)
	require.NoError(t, err)
	require.Equal(t, VerdictFail, result.Verdict)
	require.NotEmpty(t, result.OverrideRejection)
}
