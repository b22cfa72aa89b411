// Package governance implements the governance-root-signed policy and
// revocation-list model: who may sign which artifact type, and the
// rotation/revocation lifecycle of signer keys.
package governance

import (
	"fmt"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

const schemaVersionPolicyV2 = "GovernancePolicy.v2"

// SubjectType is the artifact/subject kind a signer rule governs, e.g.
// "WorkCertificate", "CreditMemo", "ClosePackHeadAttestation".
type SubjectType string

// SignerRule enumerates who may sign a given subject type.
type SignerRule struct {
	AllowedScopes   []string `json:"allowedScopes"`
	AllowedKeyIDs   []string `json:"allowedKeyIds"`
	RequireGoverned bool     `json:"requireGoverned"`
	RequiredPurpose string   `json:"requiredPurpose"` // server | governance | time
}

// RevocationListRef binds a policy to the exact revocation list it trusts,
// by content hash.
type RevocationListRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// PolicyV2 is the governance-root-signed authorization contract.
type PolicyV2 struct {
	PolicyID       string                     `json:"policyId"`
	RevocationList RevocationListRef          `json:"revocationList"`
	SignerRules    map[SubjectType]SignerRule `json:"signerRules"`
	GeneratedAt    time.Time                  `json:"generatedAt"`
	SignerKeyID    string                     `json:"signerKeyId"`
	SignedAt       time.Time                  `json:"signedAt"`
	PolicyHash     string                     `json:"policyHash"`
	Signature      string                     `json:"signature,omitempty"`
}

var validPurposes = map[string]bool{"server": true, "governance": true, "time": true}

func (p *PolicyV2) hashedCore() any {
	rules := canonical.Object()
	for subject, rule := range p.SignerRules {
		rules[string(subject)] = canonical.Object(
			canonical.Field("allowedScopes", stringsToAny(rule.AllowedScopes)),
			canonical.Field("allowedKeyIds", stringsToAny(rule.AllowedKeyIDs)),
			canonical.Field("requireGoverned", rule.RequireGoverned),
			canonical.Field("requiredPurpose", rule.RequiredPurpose),
		)
	}
	return canonical.Object(
		canonical.Field("schemaVersion", schemaVersionPolicyV2),
		canonical.Field("policyId", p.PolicyID),
		canonical.Field("revocationList", canonical.Object(
			canonical.Field("path", p.RevocationList.Path),
			canonical.Field("sha256", p.RevocationList.SHA256),
		)),
		canonical.Field("signerRules", rules),
		canonical.Field("generatedAt", formatRFC3339Milli(p.GeneratedAt)),
		canonical.Field("signerKeyId", p.SignerKeyID),
		canonical.Field("signedAt", formatRFC3339Milli(p.SignedAt)),
	)
}

func stringsToAny(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

// Hash computes and stores PolicyHash over the hashed core.
func (p *PolicyV2) Hash() (string, error) {
	h, err := cryptoutil.HashCanonical(p.hashedCore())
	if err != nil {
		return "", err
	}
	p.PolicyHash = h
	return h, nil
}

// Sign hashes and signs the policy under a governance signer.
func (p *PolicyV2) Sign(signer cryptoutil.Signer) error {
	h, err := p.Hash()
	if err != nil {
		return err
	}
	sig, err := cryptoutil.SignHashHex(h, signer, cryptoutil.PurposeGovernance, p.PolicyID)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// ValidationError reports which GOVERNANCE_* invariant failed.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string { return e.Code + ": " + e.Message }

// Validate checks the structural invariants of spec §4.4: a signer key id
// and signature are present, the revocation list reference matches,
// allowedKeyIds is non-empty when requireGoverned, and requiredPurpose is
// recognized. It reads no schema version; the hashed core always carries
// GovernancePolicy.v2.
func (p *PolicyV2) Validate(revocationListSHA256 string) error {
	if p.SignerKeyID == "" || p.Signature == "" {
		return &ValidationError{Code: "GOVERNANCE_POLICY_SIGNATURE_REQUIRED", Message: "policy must be signed"}
	}
	if p.RevocationList.SHA256 != revocationListSHA256 {
		return &ValidationError{Code: "GOVERNANCE_POLICY_REVOCATION_REF_MISMATCH", Message: "revocationList.sha256 does not match the bundled list"}
	}
	for subject, rule := range p.SignerRules {
		if rule.RequireGoverned && len(rule.AllowedKeyIDs) == 0 {
			return &ValidationError{Code: "GOVERNANCE_POLICY_ALLOWED_KEYS_REQUIRED", Message: fmt.Sprintf("subject %s requires governed signers but allowedKeyIds is empty", subject)}
		}
		if !validPurposes[rule.RequiredPurpose] {
			return &ValidationError{Code: "GOVERNANCE_POLICY_PURPOSE_INVALID", Message: fmt.Sprintf("subject %s has invalid requiredPurpose %q", subject, rule.RequiredPurpose)}
		}
	}
	return nil
}

// IsGoverned reports whether a signer (by keyId+scope) is authorized to
// sign for subject, per spec §4.4: keyId in allowedKeyIds, scope in
// allowedScopes, not revoked (directly, or by falling in a revoked window),
// and not a plain revocation (rotated-with-successor keys remain valid
// signers in their own right until the rotation's effective date passes
// policy evaluation upstream).
func (p *PolicyV2) IsGoverned(list *RevocationList, subject SubjectType, keyID, scope string, at time.Time) (bool, error) {
	rule, ok := p.SignerRules[subject]
	if !ok {
		return false, fmt.Errorf("governance: no signer rule for subject %q", subject)
	}
	if !containsString(rule.AllowedKeyIDs, keyID) {
		return false, nil
	}
	if len(rule.AllowedScopes) > 0 && !containsString(rule.AllowedScopes, scope) {
		return false, nil
	}
	if rev, revoked := list.RevokedAt(keyID, at); revoked {
		if list.IsRotatedWithSuccessor(keyID) {
			// A key rotated-with-successor stays governed even when a
			// revocation entry covers it.
			_ = rev
		} else {
			return false, nil
		}
	}
	return true, nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// DefaultV1Rules returns the ungoverned default rule set used when a
// ClosePack has no governance-root-signed policy (v1 default mode, spec
// §4.4 "Otherwise v1 defaults apply"): every subject may be signed by any
// server-purpose key, unguarded by an allowlist.
func DefaultV1Rules(subjects ...SubjectType) map[SubjectType]SignerRule {
	rules := make(map[SubjectType]SignerRule, len(subjects))
	for _, s := range subjects {
		rules[s] = SignerRule{RequireGoverned: false, RequiredPurpose: "server"}
	}
	return rules
}
