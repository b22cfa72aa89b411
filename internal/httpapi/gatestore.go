package httpapi

import (
	"sync"
	"time"

	"settld/internal/x402"
)

// GateStore holds in-flight gates keyed by gate id, plus a per-tenant,
// per-payer rolling daily-authorization total used by PreAuthorizeCheck's
// daily-cap guard.
type GateStore struct {
	mu    sync.Mutex
	gates map[string]*x402.Gate
	daily map[string]dailyBucket
}

type dailyBucket struct {
	day   string
	total int64
}

// NewGateStore returns an empty store.
func NewGateStore() *GateStore {
	return &GateStore{gates: map[string]*x402.Gate{}, daily: map[string]dailyBucket{}}
}

// Put registers gate and folds its amount into today's per-tenant/payer
// daily total.
func (s *GateStore) Put(gate *x402.Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gates[gate.GateID] = gate

	key := gate.TenantID + "|" + gate.Payer
	day := time.Now().UTC().Format("2006-01-02")
	bucket := s.daily[key]
	if bucket.day != day {
		bucket = dailyBucket{day: day}
	}
	bucket.total += gate.AmountCents
	s.daily[key] = bucket
}

// Get returns the gate for gateID, if any.
func (s *GateStore) Get(gateID string) (*x402.Gate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gate, ok := s.gates[gateID]
	return gate, ok
}

// DailyTotalCents returns the running daily-authorization total for
// tenantID/payer as of at's UTC calendar day.
func (s *GateStore) DailyTotalCents(tenantID, payer string, at time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenantID + "|" + payer
	bucket, ok := s.daily[key]
	if !ok || bucket.day != at.UTC().Format("2006-01-02") {
		return 0
	}
	return bucket.total
}
