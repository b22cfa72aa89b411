// Package identity implements the capability attestation registry: agents
// must publish a signed agent card attesting their capabilities before a
// wallet policy or x402 gate may rely on their signer key. Publishing a card
// replaces the agent's prior card; republishing an identical cardHash is
// idempotent.
package identity

import (
	"errors"
	"sync"
	"time"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// ErrNotFound is returned when no agent card is registered for an agent.
var ErrNotFound = errors.New("identity: no agent card registered")

// ErrAttestationRequired is returned when an operation needs a public
// attestation that has not yet been published (spec: 409
// AGENT_CARD_PUBLIC_ATTESTATION_REQUIRED).
var ErrAttestationRequired = errors.New("AGENT_CARD_PUBLIC_ATTESTATION_REQUIRED")

// Capability is one declared capability an agent card attests to.
type Capability struct {
	ToolID      string `json:"toolId"`
	ProviderID  string `json:"providerId,omitempty"`
	MaxAmount   int64  `json:"maxAmountCents,omitempty"`
}

// Card is a signed agent card: the capability attestation an agent
// publishes before it may act through the x402 gate.
type Card struct {
	AgentID      string       `json:"agentId"`
	SignerKeyID  string       `json:"signerKeyId"`
	Capabilities []Capability `json:"capabilities"`
	PublishedAt  time.Time    `json:"publishedAt"`
	CardHash     string       `json:"cardHash"`
	Signature    string       `json:"signature"`
}

func (c Card) hash() (string, error) {
	caps := make([]any, 0, len(c.Capabilities))
	for _, capability := range c.Capabilities {
		caps = append(caps, canonical.Object(
			canonical.Field("toolId", capability.ToolID),
			canonical.Field("providerId", nonEmptyOrUndefined(capability.ProviderID)),
			canonical.Field("maxAmountCents", capability.MaxAmount),
		))
	}
	core := canonical.Object(
		canonical.Field("agentId", c.AgentID),
		canonical.Field("signerKeyId", c.SignerKeyID),
		canonical.Field("capabilities", caps),
	)
	return cryptoutil.HashCanonical(core)
}

func nonEmptyOrUndefined(s string) any {
	if s == "" {
		return canonical.Undefined
	}
	return s
}

// Attestation is an issuer-signed claim that an agent may publicly declare
// one capability on its agent card (spec §8 E5: publishing a capability
// without one is rejected; publishing with one from the required issuer
// succeeds). The issuer signs over (agentId, toolId, providerId, issuerKeyId).
type Attestation struct {
	ToolID      string `json:"toolId"`
	ProviderID  string `json:"providerId,omitempty"`
	IssuerKeyID string `json:"issuerKeyId"`
	Signature   string `json:"signature"`
}

func (a Attestation) hash(agentID string) (string, error) {
	core := canonical.Object(
		canonical.Field("agentId", agentID),
		canonical.Field("toolId", a.ToolID),
		canonical.Field("providerId", nonEmptyOrUndefined(a.ProviderID)),
		canonical.Field("issuerKeyId", a.IssuerKeyID),
	)
	return cryptoutil.HashCanonical(core)
}

// SignAttestation produces an Attestation over agentID/capability signed by
// issuerSigner under issuerKeyID, for a capability issuer to hand an agent
// before it publishes its card.
func SignAttestation(agentID string, capability Capability, issuerKeyID string, issuerSigner cryptoutil.Signer) (Attestation, error) {
	att := Attestation{ToolID: capability.ToolID, ProviderID: capability.ProviderID, IssuerKeyID: issuerKeyID}
	hash, err := att.hash(agentID)
	if err != nil {
		return Attestation{}, err
	}
	sig, err := cryptoutil.SignHashHex(hash, issuerSigner, cryptoutil.PurposeServer, "capability-attestation")
	if err != nil {
		return Attestation{}, err
	}
	att.Signature = sig
	return att, nil
}

// Registry is an in-memory capability attestation registry. Production
// deployments back it with the store package's key-value interface; this
// type holds the publish/lookup semantics that sit in front of it.
type Registry struct {
	mu    sync.Mutex
	cards map[string]Card

	requiredIssuerKeyID        string
	requiredIssuerPublicKeyPEM string
}

// RegistryOption configures optional Registry behavior at construction.
type RegistryOption func(*Registry)

// RequireIssuerAttestation gates Publish on every declared capability
// carrying a valid Attestation signed by issuerKeyID under
// issuerPublicKeyPEM (spec §8 E5). Registries built without this option
// publish unconditionally, matching the teacher's original semantics.
func RequireIssuerAttestation(issuerKeyID, issuerPublicKeyPEM string) RegistryOption {
	return func(r *Registry) {
		r.requiredIssuerKeyID = issuerKeyID
		r.requiredIssuerPublicKeyPEM = issuerPublicKeyPEM
	}
}

// NewRegistry returns an empty registry, optionally gated by
// RequireIssuerAttestation.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{cards: map[string]Card{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish signs and registers a card for agentID, replacing any prior card.
// Publication is idempotent: publishing an identical card (same cardHash)
// again returns the existing card rather than re-signing.
//
// When the registry was built with RequireIssuerAttestation, every declared
// capability must carry a matching, validly-signed Attestation from the
// required issuer or Publish fails closed with ErrAttestationRequired
// (spec §8 E5, 409 AGENT_CARD_PUBLIC_ATTESTATION_REQUIRED).
func (r *Registry) Publish(agentID, signerKeyID string, capabilities []Capability, publishedAt time.Time, signer cryptoutil.Signer, attestations ...Attestation) (Card, error) {
	if r.requiredIssuerKeyID != "" {
		if err := r.checkAttestations(agentID, capabilities, attestations); err != nil {
			return Card{}, err
		}
	}

	card := Card{
		AgentID:      agentID,
		SignerKeyID:  signerKeyID,
		Capabilities: capabilities,
		PublishedAt:  publishedAt,
	}
	hash, err := card.hash()
	if err != nil {
		return Card{}, err
	}
	card.CardHash = hash

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, found := r.cards[agentID]; found && existing.CardHash == hash {
		return existing, nil
	}

	sig, err := cryptoutil.SignHashHex(hash, signer, cryptoutil.PurposeServer, "agent-card")
	if err != nil {
		return Card{}, err
	}
	card.Signature = sig

	r.cards[agentID] = card
	return card, nil
}

// checkAttestations requires every capability to be covered by a valid
// attestation from the registry's required issuer. Fails closed on the
// first uncovered or invalid capability.
func (r *Registry) checkAttestations(agentID string, capabilities []Capability, attestations []Attestation) error {
	for _, capability := range capabilities {
		covered := false
		for _, att := range attestations {
			if att.IssuerKeyID != r.requiredIssuerKeyID || att.ToolID != capability.ToolID {
				continue
			}
			if capability.ProviderID != "" && att.ProviderID != "" && att.ProviderID != capability.ProviderID {
				continue
			}
			hash, err := att.hash(agentID)
			if err != nil {
				return err
			}
			ok, err := cryptoutil.VerifyHashHex(hash, att.Signature, r.requiredIssuerPublicKeyPEM)
			if err != nil || !ok {
				continue
			}
			covered = true
			break
		}
		if !covered {
			return ErrAttestationRequired
		}
	}
	return nil
}

// Lookup returns the published card for agentID, or ErrNotFound.
func (r *Registry) Lookup(agentID string) (Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, found := r.cards[agentID]
	if !found {
		return Card{}, ErrNotFound
	}
	return card, nil
}

// RequireAttested returns ErrAttestationRequired if agentID has not
// published a card binding signerKeyID, fail-closed.
func (r *Registry) RequireAttested(agentID, signerKeyID string) error {
	card, err := r.Lookup(agentID)
	if err != nil {
		return ErrAttestationRequired
	}
	if card.SignerKeyID != signerKeyID {
		return ErrAttestationRequired
	}
	return nil
}

// AllowsCapability reports whether agentID's published card attests to
// toolID (and, when providerID is non-empty, that specific provider).
func (r *Registry) AllowsCapability(agentID, toolID, providerID string) bool {
	card, err := r.Lookup(agentID)
	if err != nil {
		return false
	}
	for _, capability := range card.Capabilities {
		if capability.ToolID != toolID {
			continue
		}
		if providerID != "" && capability.ProviderID != "" && capability.ProviderID != providerID {
			continue
		}
		return true
	}
	return false
}
