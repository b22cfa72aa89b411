package bundle

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// InvoiceBundle is the embedded invoice bundle input to the ClosePack
// bundler: its files, keyed by path relative to the bundle root, plus an
// optional head attestation the bundler can cross-reference.
type InvoiceBundle struct {
	Files               map[string][]byte
	ManifestHash        string
	HeadAttestationHash string
}

// JobProofRef binds a metering report to the embedded invoice bundle's
// proof artifacts, per spec §4.8's binding invariant.
type JobProofRef struct {
	EmbeddedPath        string `json:"embeddedPath"`
	ManifestHash        string `json:"manifestHash"`
	HeadAttestationHash string `json:"headAttestationHash"`
}

// MeteringReport is the usage-metering input; JobProof must be populated or
// the bundler fails closed with METERING_JOB_PROOF_BINDING_REQUIRED.
type MeteringReport struct {
	JobProof *JobProofRef   `json:"jobProof"`
	Body     map[string]any `json:"body"`
}

// GovernanceInputs carries an optional v2-signed governance policy and
// revocation list; when absent the bundler emits v1 defaults.
type GovernanceInputs struct {
	PolicyV2       map[string]any
	RevocationList map[string]any
}

// SLAInputs carries the optional SLA definition/evaluation pair, included
// only when Enabled.
type SLAInputs struct {
	Enabled    bool
	Definition map[string]any
	Evaluation map[string]any
}

// AcceptanceInputs carries the optional acceptance criteria/evaluation
// pair, included only when Enabled.
type AcceptanceInputs struct {
	Enabled    bool
	Criteria   map[string]any
	Evaluation map[string]any
}

// ManifestSigner signs a ClosePack's manifestHash to produce the bundle
// head attestation.
type ManifestSigner interface {
	Sign(signer cryptoutil.Signer, keyID string, messageHash string) (string, error)
}

// CloseInputs is everything the ClosePack bundler needs to assemble a
// file map (spec §4.8).
type CloseInputs struct {
	TenantID                  string
	InvoiceID                 string
	Invoice                   InvoiceBundle
	Metering                  MeteringReport
	Governance                GovernanceInputs
	SLA                       SLAInputs
	Acceptance                AcceptanceInputs
	RequireInvoiceAttestation bool
	Signer                    *cryptoutil.Signer
	SignerKeyID               string
	GeneratedAt               time.Time
	// Dedup, when set, fast-paths manifest hashing with a BLAKE3
	// fingerprint cache (see dedup.go). Optional; nil hashes every file.
	Dedup *DedupCache
}

// ValidationError is a ClosePack binding-invariant failure, carrying the
// stable error code from spec §4.8/§7.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// BuildClosePack implements spec §4.8's ClosePack bundler: it assembles the
// governance, payload, evidence, SLA, acceptance, header, manifest, and
// (if a signer is supplied) head-attestation files, enforcing the metering
// job-proof binding and invoice-attestation invariants before returning.
func BuildClosePack(in CloseInputs) (map[string][]byte, Manifest, error) {
	if in.Metering.JobProof == nil ||
		in.Metering.JobProof.EmbeddedPath == "" ||
		in.Metering.JobProof.ManifestHash == "" ||
		in.Metering.JobProof.HeadAttestationHash == "" {
		return nil, Manifest{}, &ValidationError{
			Code:    "METERING_JOB_PROOF_BINDING_REQUIRED",
			Message: "metering report must carry jobProof.embeddedPath, manifestHash, and headAttestationHash",
		}
	}
	if in.RequireInvoiceAttestation && in.Invoice.HeadAttestationHash == "" {
		return nil, Manifest{}, &ValidationError{
			Code:    "INVOICE_ATTESTATION_REQUIRED",
			Message: "invoice bundle must already carry a signed head attestation",
		}
	}

	files := map[string][]byte{}

	policyJSON, revocationsJSON, err := governanceFiles(in.Governance)
	if err != nil {
		return nil, Manifest{}, err
	}
	files["governance/policy.json"] = policyJSON
	files["governance/revocations.json"] = revocationsJSON

	for name, content := range in.Invoice.Files {
		files[path.Join("payload/invoice_bundle", name)] = content
	}

	evidenceIndex, err := buildEvidenceIndex(in.Metering)
	if err != nil {
		return nil, Manifest{}, err
	}
	files["evidence/evidence_index.json"] = evidenceIndex

	if in.SLA.Enabled {
		slaDef, err := json.Marshal(in.SLA.Definition)
		if err != nil {
			return nil, Manifest{}, err
		}
		slaEval, err := json.Marshal(in.SLA.Evaluation)
		if err != nil {
			return nil, Manifest{}, err
		}
		files["sla/sla_definition.json"] = slaDef
		files["sla/sla_evaluation.json"] = slaEval
	}

	if in.Acceptance.Enabled {
		criteria, err := json.Marshal(in.Acceptance.Criteria)
		if err != nil {
			return nil, Manifest{}, err
		}
		evaluation, err := json.Marshal(in.Acceptance.Evaluation)
		if err != nil {
			return nil, Manifest{}, err
		}
		files["acceptance/acceptance_criteria.json"] = criteria
		files["acceptance/acceptance_evaluation.json"] = evaluation
	}

	header, err := buildClosePackHeader(in)
	if err != nil {
		return nil, Manifest{}, err
	}
	files["settld.json"] = header

	manifest, err := BuildManifestCached(files, in.Dedup)
	if err != nil {
		return nil, Manifest{}, err
	}
	manifestJSON, err := marshalManifest(manifest)
	if err != nil {
		return nil, Manifest{}, err
	}
	files["manifest.json"] = manifestJSON

	if in.Signer != nil {
		attestation, err := buildHeadAttestation(in, manifest)
		if err != nil {
			return nil, Manifest{}, err
		}
		files["attestation/bundle_head_attestation.json"] = attestation
	}

	return files, manifest, nil
}

func governanceFiles(g GovernanceInputs) (policyJSON, revocationsJSON []byte, err error) {
	if g.PolicyV2 != nil {
		policyJSON, err = json.Marshal(g.PolicyV2)
	} else {
		policyJSON, err = json.Marshal(map[string]any{"schemaVersion": "GovernancePolicyDefault.v1"})
	}
	if err != nil {
		return nil, nil, err
	}
	if g.RevocationList != nil {
		revocationsJSON, err = json.Marshal(g.RevocationList)
	} else {
		revocationsJSON, err = json.Marshal(map[string]any{"schemaVersion": "RevocationList.v1", "rotations": []any{}, "revocations": []any{}})
	}
	if err != nil {
		return nil, nil, err
	}
	return policyJSON, revocationsJSON, nil
}

func buildEvidenceIndex(report MeteringReport) ([]byte, error) {
	return json.Marshal(map[string]any{
		"schemaVersion": "EvidenceIndex.v1",
		"jobProof": map[string]any{
			"embeddedPath":        report.JobProof.EmbeddedPath,
			"manifestHash":        report.JobProof.ManifestHash,
			"headAttestationHash": report.JobProof.HeadAttestationHash,
		},
		"meteringReport": report.Body,
	})
}

func buildClosePackHeader(in CloseInputs) ([]byte, error) {
	return json.Marshal(map[string]any{
		"schemaVersion": "ClosePackHeader.v1",
		"tenantId":      in.TenantID,
		"invoiceId":     in.InvoiceID,
		"generatedAt":   in.GeneratedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		"inputs": map[string]any{
			"invoiceManifestHash":       in.Invoice.ManifestHash,
			"invoiceHeadAttestationHash": in.Invoice.HeadAttestationHash,
			"jobProof":                  in.Metering.JobProof,
		},
	})
}

func marshalManifest(m Manifest) ([]byte, error) {
	return json.Marshal(m)
}

// buildHeadAttestation implements the ClosePack head attestation: it signs
// the manifestHash and cross-references the embedded invoice bundle's
// manifest/attestation hashes in its `heads` block, per spec §4.8's closing
// rule ("the final ClosePack head attestation's heads block references the
// invoice's manifestHash and attestationHash").
func buildHeadAttestation(in CloseInputs, manifest Manifest) ([]byte, error) {
	core := canonical.Object(
		canonical.Field("schemaVersion", "BundleHeadAttestation.v1"),
		canonical.Field("tenantId", in.TenantID),
		canonical.Field("invoiceId", in.InvoiceID),
		canonical.Field("manifestHash", manifest.ManifestHash),
		canonical.Field("heads", canonical.Object(
			canonical.Field("invoiceManifestHash", in.Invoice.ManifestHash),
			canonical.Field("invoiceHeadAttestationHash", in.Invoice.HeadAttestationHash),
		)),
		canonical.Field("signerKeyId", in.SignerKeyID),
	)
	hash, err := cryptoutil.HashCanonical(core)
	if err != nil {
		return nil, err
	}
	sig, err := cryptoutil.SignHashHex(hash, *in.Signer, cryptoutil.PurposeServer, "closepack-head-attestation")
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"schemaVersion": "BundleHeadAttestation.v1",
		"tenantId":      in.TenantID,
		"invoiceId":     in.InvoiceID,
		"manifestHash":  manifest.ManifestHash,
		"heads": map[string]any{
			"invoiceManifestHash":        in.Invoice.ManifestHash,
			"invoiceHeadAttestationHash": in.Invoice.HeadAttestationHash,
		},
		"signerKeyId":     in.SignerKeyID,
		"attestationHash": hash,
		"signature":       sig,
	})
}
