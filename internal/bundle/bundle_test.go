package bundle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"settld/internal/cryptoutil"
)

func TestBuildManifestSortsFilesAndExcludesVerify(t *testing.T) {
	files := map[string][]byte{
		"b.json":             []byte(`{"b":1}`),
		"a.json":             []byte(`{"a":1}`),
		"verify/report.json": []byte(`{"ignored":true}`),
	}
	manifest, err := BuildManifest(files)
	require.NoError(t, err)
	require.Len(t, manifest.Files, 2)
	require.Equal(t, "a.json", manifest.Files[0].Name)
	require.Equal(t, "b.json", manifest.Files[1].Name)
	require.NotEmpty(t, manifest.ManifestHash)
}

func TestBuildManifestIsDeterministic(t *testing.T) {
	files := map[string][]byte{"x.json": []byte(`{"x":1}`), "y.json": []byte(`{"y":2}`)}
	a, err := BuildManifest(files)
	require.NoError(t, err)
	b, err := BuildManifest(files)
	require.NoError(t, err)
	require.Equal(t, a.ManifestHash, b.ManifestHash)
}

func TestWriteArchiveRoundTrips(t *testing.T) {
	files := map[string][]byte{
		"a.json": []byte(`{"a":1}`),
		"b.json": []byte(`{"b":2}`),
	}
	archive, err := WriteArchive(files)
	require.NoError(t, err)
	reopened, err := ReadArchive(archive)
	require.NoError(t, err)
	require.Equal(t, files, reopened)
}

func TestWriteArchiveIsDeterministic(t *testing.T) {
	files := map[string][]byte{"a.json": []byte(`{"a":1}`), "b.json": []byte(`{"b":2}`)}
	a, err := WriteArchive(files)
	require.NoError(t, err)
	b, err := WriteArchive(files)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func validJobProof() *JobProofRef {
	return &JobProofRef{
		EmbeddedPath:        "payload/invoice_bundle/proof.json",
		ManifestHash:        "manifest_hash_1",
		HeadAttestationHash: "head_attestation_hash_1",
	}
}

func TestBuildClosePackRequiresJobProofBinding(t *testing.T) {
	in := CloseInputs{
		TenantID:    "tenant_1",
		InvoiceID:   "invoice_1",
		Metering:    MeteringReport{},
		GeneratedAt: time.Unix(0, 0),
	}
	_, _, err := BuildClosePack(in)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "METERING_JOB_PROOF_BINDING_REQUIRED", verr.Code)
}

func TestBuildClosePackRequiresInvoiceAttestationWhenDemanded(t *testing.T) {
	in := CloseInputs{
		TenantID:                  "tenant_1",
		InvoiceID:                 "invoice_1",
		Metering:                  MeteringReport{JobProof: validJobProof()},
		RequireInvoiceAttestation: true,
		GeneratedAt:               time.Unix(0, 0),
	}
	_, _, err := BuildClosePack(in)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "INVOICE_ATTESTATION_REQUIRED", verr.Code)
}

func TestBuildClosePackProducesManifestAndSignedAttestation(t *testing.T) {
	kp, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	signer := cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}

	in := CloseInputs{
		TenantID:  "tenant_1",
		InvoiceID: "invoice_1",
		Invoice: InvoiceBundle{
			Files:               map[string][]byte{"invoice.json": []byte(`{"total":1000}`)},
			ManifestHash:        "invoice_manifest_hash",
			HeadAttestationHash: "invoice_head_attestation_hash",
		},
		Metering:    MeteringReport{JobProof: validJobProof(), Body: map[string]any{"usageUnits": 5}},
		Signer:      &signer,
		SignerKeyID: kp.KeyID,
		GeneratedAt: time.Unix(0, 0),
	}

	files, manifest, err := BuildClosePack(in)
	require.NoError(t, err)
	require.NotEmpty(t, manifest.ManifestHash)
	require.Contains(t, files, "manifest.json")
	require.Contains(t, files, "settld.json")
	require.Contains(t, files, "governance/policy.json")
	require.Contains(t, files, "governance/revocations.json")
	require.Contains(t, files, "evidence/evidence_index.json")
	require.Contains(t, files, "payload/invoice_bundle/invoice.json")
	require.Contains(t, files, "attestation/bundle_head_attestation.json")

	_, isManifested := files["manifest.json"]
	require.True(t, isManifested)

	// manifest.json is itself part of the file map but excluded nowhere, so
	// rebuilding the manifest over the returned files (minus manifest.json
	// and the head attestation, both written after the manifest was sealed)
	// must match what BuildClosePack computed.
	rebuildInput := map[string][]byte{}
	for name, content := range files {
		if name == "manifest.json" || name == "attestation/bundle_head_attestation.json" {
			continue
		}
		rebuildInput[name] = content
	}
	rebuilt, err := BuildManifest(rebuildInput)
	require.NoError(t, err)
	require.Equal(t, manifest.ManifestHash, rebuilt.ManifestHash)
}

func TestBuildClosePackIncludesSLAAndAcceptanceWhenEnabled(t *testing.T) {
	in := CloseInputs{
		TenantID:  "tenant_1",
		InvoiceID: "invoice_1",
		Metering:  MeteringReport{JobProof: validJobProof()},
		SLA: SLAInputs{
			Enabled:    true,
			Definition: map[string]any{"targetPct": 99.9},
			Evaluation: map[string]any{"achievedPct": 99.95},
		},
		Acceptance: AcceptanceInputs{
			Enabled:    true,
			Criteria:   map[string]any{"requireSignoff": true},
			Evaluation: map[string]any{"signedOff": true},
		},
		GeneratedAt: time.Unix(0, 0),
	}
	files, _, err := BuildClosePack(in)
	require.NoError(t, err)
	require.Contains(t, files, "sla/sla_definition.json")
	require.Contains(t, files, "sla/sla_evaluation.json")
	require.Contains(t, files, "acceptance/acceptance_criteria.json")
	require.Contains(t, files, "acceptance/acceptance_evaluation.json")
}
