package identity

import (
	"testing"
	"time"

	"settld/internal/cryptoutil"
)

func testSigner(t *testing.T) cryptoutil.Signer {
	t.Helper()
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	return cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}
}

// testIssuer returns a signer plus its public key PEM, for
// RequireIssuerAttestation tests that must verify against it.
func testIssuer(t *testing.T) (cryptoutil.Signer, string) {
	t.Helper()
	kp, err := cryptoutil.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	return cryptoutil.Signer{PrivateKeyPEM: kp.PrivateKeyPEM}, kp.PublicKeyPEM
}

func TestPublishAndLookupRoundTrip(t *testing.T) {
	registry := NewRegistry()
	signer := testSigner(t)

	caps := []Capability{{ToolID: "tool_a", ProviderID: "provider_a", MaxAmount: 5000}}
	card, err := registry.Publish("agent_1", "key_1", caps, time.Unix(1780000000, 0), signer)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if card.Signature == "" || card.CardHash == "" {
		t.Fatalf("expected signed, hashed card, got %+v", card)
	}

	looked, err := registry.Lookup("agent_1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if looked.CardHash != card.CardHash {
		t.Fatalf("expected lookup to return the published card")
	}
}

func TestPublishIsIdempotentForIdenticalCard(t *testing.T) {
	registry := NewRegistry()
	signer := testSigner(t)
	caps := []Capability{{ToolID: "tool_a"}}

	first, err := registry.Publish("agent_1", "key_1", caps, time.Unix(1780000000, 0), signer)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	second, err := registry.Publish("agent_1", "key_1", caps, time.Unix(1780000001, 0), signer)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if first.Signature != second.Signature {
		t.Fatalf("expected identical card to replay the existing signature instead of re-signing")
	}
}

func TestLookupReturnsErrNotFoundForUnknownAgent(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Lookup("agent_missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequireAttestedFailsClosedWithoutPublishedCard(t *testing.T) {
	registry := NewRegistry()
	err := registry.RequireAttested("agent_missing", "key_1")
	if err != ErrAttestationRequired {
		t.Fatalf("expected ErrAttestationRequired, got %v", err)
	}
}

func TestRequireAttestedFailsClosedOnSignerKeyMismatch(t *testing.T) {
	registry := NewRegistry()
	signer := testSigner(t)
	registry.Publish("agent_1", "key_1", nil, time.Unix(1780000000, 0), signer)

	err := registry.RequireAttested("agent_1", "key_2")
	if err != ErrAttestationRequired {
		t.Fatalf("expected ErrAttestationRequired, got %v", err)
	}
}

func TestRequireAttestedPassesWithMatchingSignerKey(t *testing.T) {
	registry := NewRegistry()
	signer := testSigner(t)
	registry.Publish("agent_1", "key_1", nil, time.Unix(1780000000, 0), signer)

	if err := registry.RequireAttested("agent_1", "key_1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestPublishFailsClosedWithoutAttestationWhenIssuerRequired(t *testing.T) {
	_, issuerPub := testIssuer(t)
	registry := NewRegistry(RequireIssuerAttestation("issuer_1", issuerPub))
	signer := testSigner(t)

	caps := []Capability{{ToolID: "travel.booking"}, {ToolID: "travel.search"}}
	_, err := registry.Publish("agent_1", "key_1", caps, time.Unix(1780000000, 0), signer)
	if err != ErrAttestationRequired {
		t.Fatalf("expected ErrAttestationRequired, got %v", err)
	}
}

func TestPublishSucceedsWithAttestationsFromRequiredIssuer(t *testing.T) {
	issuerSigner, issuerPub := testIssuer(t)
	registry := NewRegistry(RequireIssuerAttestation("issuer_1", issuerPub))
	signer := testSigner(t)

	caps := []Capability{{ToolID: "travel.booking"}, {ToolID: "travel.search"}}
	atts := make([]Attestation, 0, len(caps))
	for _, capability := range caps {
		att, err := SignAttestation("agent_1", capability, "issuer_1", issuerSigner)
		if err != nil {
			t.Fatalf("sign attestation: %v", err)
		}
		atts = append(atts, att)
	}

	card, err := registry.Publish("agent_1", "key_1", caps, time.Unix(1780000000, 0), signer, atts...)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if card.CardHash == "" {
		t.Fatalf("expected published card, got %+v", card)
	}
}

func TestPublishRejectsAttestationFromWrongIssuer(t *testing.T) {
	_, issuerPub := testIssuer(t)
	wrongIssuer := testSigner(t)
	registry := NewRegistry(RequireIssuerAttestation("issuer_1", issuerPub))
	signer := testSigner(t)

	caps := []Capability{{ToolID: "travel.booking"}}
	att, err := SignAttestation("agent_1", caps[0], "issuer_1", wrongIssuer)
	if err != nil {
		t.Fatalf("sign attestation: %v", err)
	}

	_, err = registry.Publish("agent_1", "key_1", caps, time.Unix(1780000000, 0), signer, att)
	if err != ErrAttestationRequired {
		t.Fatalf("expected ErrAttestationRequired for mismatched issuer key, got %v", err)
	}
}

func TestAllowsCapabilityRestrictsToDeclaredToolsAndProviders(t *testing.T) {
	registry := NewRegistry()
	signer := testSigner(t)
	caps := []Capability{{ToolID: "tool_a", ProviderID: "provider_a"}}
	registry.Publish("agent_1", "key_1", caps, time.Unix(1780000000, 0), signer)

	if !registry.AllowsCapability("agent_1", "tool_a", "provider_a") {
		t.Fatalf("expected declared capability to be allowed")
	}
	if registry.AllowsCapability("agent_1", "tool_a", "provider_b") {
		t.Fatalf("expected mismatched provider to be rejected")
	}
	if registry.AllowsCapability("agent_1", "tool_b", "") {
		t.Fatalf("expected undeclared tool to be rejected")
	}
}
