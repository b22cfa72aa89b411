package x402

import (
	"sync"

	"settld/internal/canonical"
	"settld/internal/cryptoutil"
)

// Token is the Settld-Pay spend-authorization token minted on successful
// authorize (spec §4.11 Token minting).
type Token struct {
	GateID               string `json:"gateId"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	Payee                string `json:"payee"`
	Audience             string `json:"audience"`
	ExpiresAt            string `json:"expiresAt"`
	QuoteID              string `json:"quoteId,omitempty"`
	QuoteSHA256          string `json:"quoteSha256,omitempty"`
	RequestBindingMode   string `json:"requestBindingMode,omitempty"`
	RequestBindingSHA256 string `json:"requestBindingSha256,omitempty"`
	IdempotencyKey       string `json:"idempotencyKey"`
	Nonce                string `json:"nonce"`
	SponsorRef           string `json:"sponsorRef,omitempty"`
	AgentKeyID           string `json:"agentKeyId,omitempty"`
	DelegationRef        string `json:"delegationRef,omitempty"`
	RootDelegationRef    string `json:"rootDelegationRef,omitempty"`
	PolicyVersion        string `json:"policyVersion,omitempty"`
	PolicyFingerprint    string `json:"policyFingerprint,omitempty"`
	Signature            string `json:"signature"`
}

// MintRequest carries everything Mint needs to bind a token's claims.
type MintRequest struct {
	Gate              *Gate
	Audience          string
	ExpiresAt         string
	Nonce             string
	IdempotencyKey    string
	SponsorRef        string
	AgentKeyID        string
	DelegationRef     string
	RootDelegationRef string
	PolicyVersion     string
	PolicyFingerprint string
}

func (r MintRequest) bodyHash() (string, error) {
	core := canonical.Object(
		canonical.Field("gateId", r.Gate.GateID),
		canonical.Field("amount", r.Gate.AmountCents),
		canonical.Field("currency", r.Gate.Currency),
		canonical.Field("payee", r.Gate.Payee),
		canonical.Field("audience", r.Audience),
		canonical.Field("expiresAt", r.ExpiresAt),
		canonical.Field("quoteId", nonEmptyOrUndefined(r.Gate.QuoteID)),
		canonical.Field("quoteSha256", nonEmptyOrUndefined(r.Gate.QuoteSHA256)),
		canonical.Field("requestBindingMode", nonEmptyOrUndefined(r.Gate.RequestBindingMode)),
		canonical.Field("requestBindingSha256", nonEmptyOrUndefined(r.Gate.RequestBindingSHA256)),
		canonical.Field("idempotencyKey", r.IdempotencyKey),
		canonical.Field("nonce", r.Nonce),
		canonical.Field("sponsorRef", nonEmptyOrUndefined(r.SponsorRef)),
		canonical.Field("agentKeyId", nonEmptyOrUndefined(r.AgentKeyID)),
		canonical.Field("delegationRef", nonEmptyOrUndefined(r.DelegationRef)),
		canonical.Field("rootDelegationRef", nonEmptyOrUndefined(r.RootDelegationRef)),
		canonical.Field("policyVersion", nonEmptyOrUndefined(r.PolicyVersion)),
		canonical.Field("policyFingerprint", nonEmptyOrUndefined(r.PolicyFingerprint)),
	)
	return cryptoutil.HashCanonical(core)
}

func nonEmptyOrUndefined(s string) any {
	if s == "" {
		return canonical.Undefined
	}
	return s
}

// IdempotencyStore replays a prior mint for a given idempotency key when
// the request body hash matches, and reports IDEMPOTENCY_KEY_CONFLICT when
// it doesn't (spec §4.11 Token minting).
type IdempotencyStore struct {
	mu    sync.Mutex
	byKey map[string]mintedEntry
}

type mintedEntry struct {
	bodyHash string
	token    Token
}

// NewIdempotencyStore returns an empty store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{byKey: map[string]mintedEntry{}}
}

// Mint produces (or replays) a Settld-Pay token for the request, signing
// its bodyHash with the given server-purpose signer.
func Mint(store *IdempotencyStore, req MintRequest, signer cryptoutil.Signer) (Token, error) {
	hash, err := req.bodyHash()
	if err != nil {
		return Token{}, err
	}

	store.mu.Lock()
	if existing, found := store.byKey[req.IdempotencyKey]; found {
		store.mu.Unlock()
		if existing.bodyHash != hash {
			return Token{}, &GuardError{Code: "IDEMPOTENCY_KEY_CONFLICT", Message: "idempotency key reused with a different request body", HTTPStatus: 409}
		}
		return existing.token, nil
	}
	store.mu.Unlock()

	sig, err := cryptoutil.SignHashHex(hash, signer, cryptoutil.PurposeServer, "x402-token")
	if err != nil {
		return Token{}, err
	}

	token := Token{
		GateID:               req.Gate.GateID,
		Amount:               req.Gate.AmountCents,
		Currency:             req.Gate.Currency,
		Payee:                req.Gate.Payee,
		Audience:             req.Audience,
		ExpiresAt:            req.ExpiresAt,
		QuoteID:              req.Gate.QuoteID,
		QuoteSHA256:          req.Gate.QuoteSHA256,
		RequestBindingMode:   req.Gate.RequestBindingMode,
		RequestBindingSHA256: req.Gate.RequestBindingSHA256,
		IdempotencyKey:       req.IdempotencyKey,
		Nonce:                req.Nonce,
		SponsorRef:           req.SponsorRef,
		AgentKeyID:           req.AgentKeyID,
		DelegationRef:        req.DelegationRef,
		RootDelegationRef:    req.RootDelegationRef,
		PolicyVersion:        req.PolicyVersion,
		PolicyFingerprint:    req.PolicyFingerprint,
		Signature:            sig,
	}

	store.mu.Lock()
	store.byKey[req.IdempotencyKey] = mintedEntry{bodyHash: hash, token: token}
	store.mu.Unlock()

	req.Gate.Token = &token
	return token, nil
}
