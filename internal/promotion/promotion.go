// Package promotion implements the promotion guard of spec §4.10: a
// verifier that composes a set of required, schema-tagged reports into a
// canonical promotionContext, hashes it, and optionally accepts a signed
// override bound to that exact hash.
package promotion

import (
	"fmt"
	"sort"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// Report is one required input to the promotion decision: a schema-tagged
// verdict, optionally carrying a list of check results. Each check named by
// the matching RequiredReport's RequiredCheckIDs must be present and
// "passed".
type Report struct {
	ArtifactID    string
	SchemaVersion string
	Verdict       Verdict
	Checks        []Check
}

// Verdict is a report's overall pass/fail outcome.
type Verdict struct {
	OK bool `json:"ok"`
}

// Check is one named gate inside a report (e.g. a specific SLA or
// acceptance check) with its own pass/fail status.
type Check struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// RequiredReport names a report this guard demands, its expected schema
// version, and — for designated reports — the check IDs that must all be
// "passed".
type RequiredReport struct {
	ArtifactID       string
	SchemaVersion    string
	RequiredCheckIDs []string
}

// VerificationError names which required-report rule failed.
type VerificationError struct {
	ArtifactID string
	Reason     string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("promotion: report %s failed verification: %s", e.ArtifactID, e.Reason)
}

// verifyReport checks a single report against its requirement: schema
// version match, verdict.ok, and (if the requirement names check ids) that
// every named check is present and passed.
func verifyReport(req RequiredReport, report Report) error {
	if report.SchemaVersion != req.SchemaVersion {
		return &VerificationError{ArtifactID: req.ArtifactID, Reason: "schemaVersion mismatch"}
	}
	if !report.Verdict.OK {
		return &VerificationError{ArtifactID: req.ArtifactID, Reason: "verdict not ok"}
	}
	if len(req.RequiredCheckIDs) == 0 {
		return nil
	}
	statusByID := map[string]string{}
	for _, c := range report.Checks {
		statusByID[c.ID] = c.Status
	}
	for _, id := range req.RequiredCheckIDs {
		status, found := statusByID[id]
		if !found {
			return &VerificationError{ArtifactID: req.ArtifactID, Reason: fmt.Sprintf("missing required check %q", id)}
		}
		if status != "passed" {
			return &VerificationError{ArtifactID: req.ArtifactID, Reason: fmt.Sprintf("required check %q is %s, not passed", id, status)}
		}
	}
	return nil
}

// Override is a signed authorization to promote despite a failing
// verification, bound to an exact promotionContext hash.
type Override struct {
	AllowPromotion        bool
	Algorithm             string
	KeyID                 string
	PublicKeyPEM          string
	IssuedAt              time.Time
	ExpiresAt             time.Time
	PromotionContextSHA256 string
	SignatureBase64       string
}

// Verdict outcomes.
const (
	VerdictPass         = "pass"
	VerdictOverridePass = "override_pass"
	VerdictFail         = "fail"
)

// Result is the promotion guard's final decision.
type Result struct {
	Verdict           string
	PromotionContext  map[string]any
	ContextSHA256     string
	FailedReports     []*VerificationError
	OverrideRejection string
}

// Evaluate implements spec §4.10: verify every required report, build and
// hash the canonical promotionContext, and — if verification failed —
// accept a signed override only when it is fully valid and bound to the
// exact context hash computed here.
func Evaluate(required []RequiredReport, reports []Report, override *Override, now time.Time) (Result, error) {
	byID := map[string]Report{}
	for _, r := range reports {
		byID[r.ArtifactID] = r
	}

	var failures []*VerificationError
	for _, req := range required {
		report, found := byID[req.ArtifactID]
		if !found {
			failures = append(failures, &VerificationError{ArtifactID: req.ArtifactID, Reason: "report not supplied"})
			continue
		}
		if err := verifyReport(req, report); err != nil {
			var verr *VerificationError
			if e, ok := err.(*VerificationError); ok {
				verr = e
			}
			failures = append(failures, verr)
		}
	}

	context, contextHash, err := buildPromotionContext(required, reports, now)
	if err != nil {
		return Result{}, err
	}

	if len(failures) == 0 {
		return Result{Verdict: VerdictPass, PromotionContext: context, ContextSHA256: contextHash}, nil
	}

	if override == nil {
		return Result{Verdict: VerdictFail, PromotionContext: context, ContextSHA256: contextHash, FailedReports: failures}, nil
	}

	rejection := validateOverride(*override, contextHash, now)
	if rejection != "" {
		return Result{
			Verdict:           VerdictFail,
			PromotionContext:  context,
			ContextSHA256:     contextHash,
			FailedReports:     failures,
			OverrideRejection: rejection,
		}, nil
	}

	return Result{Verdict: VerdictOverridePass, PromotionContext: context, ContextSHA256: contextHash, FailedReports: failures}, nil
}

// validateOverride fails closed on any missing metadata, a future
// issuedAt, a past expiresAt, a context-hash mismatch, or a bad signature.
func validateOverride(o Override, contextHash string, now time.Time) string {
	if !o.AllowPromotion {
		return "override does not allow promotion"
	}
	if o.Algorithm == "" || o.KeyID == "" || o.PublicKeyPEM == "" || o.SignatureBase64 == "" {
		return "override missing required metadata"
	}
	if o.IssuedAt.IsZero() || o.ExpiresAt.IsZero() {
		return "override missing issuedAt/expiresAt"
	}
	if o.IssuedAt.After(now) {
		return "override issuedAt is in the future"
	}
	if o.ExpiresAt.Before(now) {
		return "override has expired"
	}
	if o.PromotionContextSHA256 != contextHash {
		return "override is not bound to this promotionContext"
	}
	ok, err := cryptoutil.VerifyHashHex(contextHash, o.SignatureBase64, o.PublicKeyPEM)
	if err != nil || !ok {
		return "override signature does not verify"
	}
	return ""
}

// buildPromotionContext renders the canonical, schema-tagged summary of
// every required report, sorted by artifact id, and returns both the
// structure and its hash.
func buildPromotionContext(required []RequiredReport, reports []Report, now time.Time) (map[string]any, string, error) {
	byID := map[string]Report{}
	for _, r := range reports {
		byID[r.ArtifactID] = r
	}

	ids := make([]string, 0, len(required))
	for _, req := range required {
		ids = append(ids, req.ArtifactID)
	}
	sort.Strings(ids)

	entries := make([]any, 0, len(ids))
	for _, id := range ids {
		report, found := byID[id]
		entry := canonical.Object(
			canonical.Field("artifactId", id),
			canonical.Field("present", found),
			canonical.Field("schemaVersion", nonEmptyOrUndefined(report.SchemaVersion)),
			canonical.Field("ok", found && report.Verdict.OK),
		)
		entries = append(entries, entry)
	}

	context := canonical.Object(
		canonical.Field("schemaVersion", "PromotionContext.v1"),
		canonical.Field("evaluatedAt", now.UTC().Format("2006-01-02T15:04:05.000Z")),
		canonical.Field("reports", entries),
	)
	hash, err := cryptoutil.HashCanonical(context)
	if err != nil {
		return nil, "", err
	}
	return context, hash, nil
}

func nonEmptyOrUndefined(s string) any {
	if s == "" {
		return canonical.Undefined
	}
	return s
}
