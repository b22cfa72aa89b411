// Package httpapi wires the x402 gate routes and agent-card publication
// behind the same CORS / auth / rate-limit / observability
// middleware stack the gateway uses, routed with chi.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"settld/gateway/middleware"
	"settld/internal/codes"
	"settld/internal/cryptoutil"
	"settld/internal/identity"
	"settld/internal/wallet"
	"settld/internal/x402"
)

// Config wires the dependencies a Server needs.
type Config struct {
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig

	Reserve     x402.ReserveAdapter
	Escrow      *wallet.EscrowLedger
	Gates       *GateStore
	Pilot       x402.PilotPolicy
	Policies    map[string]wallet.Policy // walletID -> policy
	Delegations *wallet.Lineage          // optional: resolves gate.DelegationRef chains
	RealMoney   x402.RealMoneyPolicy
	Payouts     *GateStore // optional: tracks payout daily totals keyed by (tenantId, payee)

	TokenSigner cryptoutil.Signer
	Idempotency *x402.IdempotencyStore

	Identity       *identity.Registry // optional: gates public agent-card publication
	IdentitySigner cryptoutil.Signer
}

// New builds the routed HTTP handler for the settld control plane.
func New(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware("root"))
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.Idempotency == nil {
		cfg.Idempotency = x402.NewIdempotencyStore()
	}
	s := &server{cfg: cfg}

	r.Route("/x402/gates", func(gr chi.Router) {
		if cfg.RateLimiter != nil {
			gr.Use(cfg.RateLimiter.Middleware("x402"))
		}
		if cfg.Authenticator != nil {
			gr.Use(cfg.Authenticator.Middleware("x402:write"))
		}
		gr.Post("/", s.handleCreateGate)
		gr.Post("/{gateID}/authorize", s.handleAuthorize)
		gr.Post("/{gateID}/verify", s.handleVerify)
		gr.Post("/{gateID}/settle", s.handleSettle)
	})

	if cfg.Identity != nil {
		r.Route("/identity/cards", func(ir chi.Router) {
			if cfg.RateLimiter != nil {
				ir.Use(cfg.RateLimiter.Middleware("x402"))
			}
			if cfg.Authenticator != nil {
				ir.Use(cfg.Authenticator.Middleware("x402:write"))
			}
			ir.Post("/", s.handlePublishCard)
		})
	}

	return r
}

type server struct {
	cfg Config
}

type createGateRequest struct {
	GateID        string `json:"gateId"`
	TenantID      string `json:"tenantId"`
	Payer         string `json:"payer"`
	Payee         string `json:"payee"`
	Currency      string `json:"currency"`
	AmountCents   int64  `json:"amountCents"`
	ProviderID    string `json:"providerId"`
	ToolID        string `json:"toolId"`
	DelegationRef string `json:"delegationRef,omitempty"`
}

func (s *server) handleCreateGate(w http.ResponseWriter, r *http.Request) {
	var req createGateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codes.New(codes.SchemaInvalid, err.Error(), nil))
		return
	}

	gateID := req.GateID
	if gateID == "" {
		gateID = "gate_" + uuid.NewString()
	}
	gate := x402.NewGate(gateID, req.TenantID, req.Payer, req.Payee, req.Currency, req.AmountCents)
	gate.ProviderID = req.ProviderID
	gate.ToolID = req.ToolID
	gate.DelegationRef = req.DelegationRef

	policy := s.cfg.Policies[req.Payer]
	dailyTotal := s.cfg.Gates.DailyTotalCents(req.TenantID, req.Payer, time.Now())

	var delegation []x402.DelegationCheck
	if s.cfg.Delegations != nil {
		delegation = append(delegation, x402.DelegationCheck{Lineage: s.cfg.Delegations, At: time.Now()})
	}
	if err := x402.PreAuthorizeCheck(gate, s.cfg.Pilot, policy, dailyTotal, delegation...); err != nil {
		writeGuardError(w, err)
		return
	}

	s.cfg.Gates.Put(gate)
	writeJSON(w, http.StatusCreated, gate)
}

// handleAuthorize reserves funds for the gate and mints (or, given a
// replayed X-Idempotency-Key, replays) its Settld-Pay spend-authorization
// token (spec §4.11 Token minting, E2: "authorize-payment [same
// idempotency key twice] -> same token").
func (s *server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	gateID := chi.URLParam(r, "gateID")
	gate, ok := s.cfg.Gates.Get(gateID)
	if !ok {
		writeError(w, codes.New(codes.SchemaInvalid, "unknown gate", nil))
		return
	}

	idempotencyKey := r.Header.Get("X-Idempotency-Key")
	if idempotencyKey == "" {
		writeError(w, codes.New(codes.SchemaInvalid, "X-Idempotency-Key header is required", nil))
		return
	}

	if gate.Token != nil && gate.IdempotencyKey == idempotencyKey {
		writeJSON(w, http.StatusOK, map[string]any{"gate": gate, "token": *gate.Token})
		return
	}

	if err := x402.Authorize(gate, s.cfg.Reserve, s.cfg.Escrow); err != nil {
		writeGuardError(w, err)
		return
	}

	gate.IdempotencyKey = idempotencyKey
	token, err := x402.Mint(s.cfg.Idempotency, x402.MintRequest{
		Gate:           gate,
		Audience:       gate.Payee,
		ExpiresAt:      time.Now().Add(15 * time.Minute).UTC().Format("2006-01-02T15:04:05.000Z"),
		Nonce:          idempotencyKey,
		IdempotencyKey: idempotencyKey,
		AgentKeyID:     gate.Agent.SignerKeyID,
		DelegationRef:  gate.DelegationRef,
	}, s.cfg.TokenSigner)
	if err != nil {
		writeGuardError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"gate": gate, "token": token})
}

type verifyRequest struct {
	Status x402.VerificationStatus `json:"status"`
	Rates  x402.ReleaseRates       `json:"rates"`
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	gateID := chi.URLParam(r, "gateID")
	gate, ok := s.cfg.Gates.Get(gateID)
	if !ok {
		writeError(w, codes.New(codes.SchemaInvalid, "unknown gate", nil))
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codes.New(codes.SchemaInvalid, err.Error(), nil))
		return
	}

	if err := x402.Verify(gate, req.Status, req.Rates, x402.DecisionBindings{}, time.Now()); err != nil {
		writeGuardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gate)
}

type settleRequest struct {
	RealMoney bool `json:"realMoney,omitempty"`
}

// handleSettle settles a RELEASED gate. When the request asks for
// realMoney settlement, the real-money/Stripe Connect/payout guards (spec
// §4.11 Guards, final row) run first, so disabling real-money mode fails
// closed instead of silently falling back to the pilot reserve adapter.
func (s *server) handleSettle(w http.ResponseWriter, r *http.Request) {
	gateID := chi.URLParam(r, "gateID")
	gate, ok := s.cfg.Gates.Get(gateID)
	if !ok {
		writeError(w, codes.New(codes.SchemaInvalid, "unknown gate", nil))
		return
	}

	var req settleRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, codes.New(codes.SchemaInvalid, err.Error(), nil))
			return
		}
	}

	if req.RealMoney {
		payoutDailyTotal := int64(0)
		if s.cfg.Payouts != nil {
			payoutDailyTotal = s.cfg.Payouts.DailyTotalCents(gate.TenantID, gate.Payee, time.Now())
		}
		if err := x402.SettleRealMoney(gate, s.cfg.Reserve, s.cfg.RealMoney, payoutDailyTotal); err != nil {
			writeGuardError(w, err)
			return
		}
		if s.cfg.Payouts != nil {
			s.cfg.Payouts.Put(x402.NewGate(gate.GateID, gate.TenantID, gate.Payee, gate.Payee, gate.Currency, gate.AmountCents))
		}
		writeJSON(w, http.StatusOK, gate)
		return
	}

	if err := x402.Settle(gate, s.cfg.Reserve); err != nil {
		writeGuardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gate)
}

type publishCardRequest struct {
	AgentID      string                 `json:"agentId"`
	SignerKeyID  string                 `json:"signerKeyId"`
	Capabilities []identity.Capability  `json:"capabilities"`
	Attestations []identity.Attestation `json:"attestations,omitempty"`
}

// handlePublishCard publishes a public agent card for an agent's declared
// capabilities. When the registry requires issuer attestations, publishing
// without one fails closed with 409 AGENT_CARD_PUBLIC_ATTESTATION_REQUIRED
// (spec §8 E5); supplying valid attestations from the required issuer
// succeeds with 201.
func (s *server) handlePublishCard(w http.ResponseWriter, r *http.Request) {
	var req publishCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, codes.New(codes.SchemaInvalid, err.Error(), nil))
		return
	}

	card, err := s.cfg.Identity.Publish(req.AgentID, req.SignerKeyID, req.Capabilities, time.Now(), s.cfg.IdentitySigner, req.Attestations...)
	if err != nil {
		if err == identity.ErrAttestationRequired {
			writeError(w, codes.New(codes.AgentCardPublicAttestationRequired, err.Error(), nil))
			return
		}
		writeError(w, codes.New(codes.SchemaInvalid, err.Error(), nil))
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func writeGuardError(w http.ResponseWriter, err error) {
	if gerr, ok := err.(*x402.GuardError); ok {
		writeJSON(w, gerr.HTTPStatus, map[string]any{"code": gerr.Code, "message": gerr.Message})
		return
	}
	writeError(w, codes.New(codes.SchemaInvalid, err.Error(), nil))
}

func writeError(w http.ResponseWriter, err *codes.CodedError) {
	writeJSON(w, err.HTTPStatus, map[string]any{"code": err.Code, "message": err.Message, "details": err.Details})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
