// Package metrics exposes the Prometheus counters and gauges this module's
// services emit: x402 gate transitions, artifact builds, close-pack
// bundling, and promotion guard verdicts.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SettldMetrics is the process-wide metrics registry.
type SettldMetrics struct {
	gateTransitions      *prometheus.CounterVec
	gateGuardRejections  *prometheus.CounterVec
	reserveOutcomes      *prometheus.CounterVec
	artifactsBuilt       *prometheus.CounterVec
	closePackBuilds      *prometheus.CounterVec
	closePackBuildErrors *prometheus.CounterVec
	promotionVerdicts    *prometheus.CounterVec
	escrowLockedCents    *prometheus.GaugeVec
	chargebackExposure   *prometheus.GaugeVec
}

var (
	once     sync.Once
	registry *SettldMetrics
)

// Settld returns the singleton metrics registry, registering it with the
// default Prometheus registerer on first use.
func Settld() *SettldMetrics {
	once.Do(func() {
		registry = &SettldMetrics{
			gateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settld_x402_gate_transitions_total",
				Help: "Count of x402 gate authorization-state transitions by resulting state.",
			}, []string{"state"}),
			gateGuardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settld_x402_guard_rejections_total",
				Help: "Count of x402 guard rejections by error code.",
			}, []string{"code"}),
			reserveOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settld_x402_reserve_outcomes_total",
				Help: "Count of reserve adapter outcomes by status.",
			}, []string{"status"}),
			artifactsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settld_artifacts_built_total",
				Help: "Count of content-addressed artifacts built by schema version.",
			}, []string{"schema"}),
			closePackBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settld_closepack_builds_total",
				Help: "Count of close packs successfully built.",
			}, []string{"tenant"}),
			closePackBuildErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settld_closepack_build_errors_total",
				Help: "Count of close-pack build failures by validation code.",
			}, []string{"code"}),
			promotionVerdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "settld_promotion_verdicts_total",
				Help: "Count of promotion-guard verdicts by outcome.",
			}, []string{"verdict"}),
			escrowLockedCents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "settld_escrow_locked_cents",
				Help: "Current escrow-locked cents per wallet.",
			}, []string{"wallet"}),
			chargebackExposure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "settld_chargeback_exposure_cents",
				Help: "Current outstanding chargeback exposure per party.",
			}, []string{"party"}),
		}
		prometheus.MustRegister(
			registry.gateTransitions,
			registry.gateGuardRejections,
			registry.reserveOutcomes,
			registry.artifactsBuilt,
			registry.closePackBuilds,
			registry.closePackBuildErrors,
			registry.promotionVerdicts,
			registry.escrowLockedCents,
			registry.chargebackExposure,
		)
	})
	return registry
}

func (m *SettldMetrics) ObserveGateTransition(state string) {
	if m == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.gateTransitions.WithLabelValues(state).Inc()
}

func (m *SettldMetrics) ObserveGuardRejection(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.gateGuardRejections.WithLabelValues(code).Inc()
}

func (m *SettldMetrics) ObserveReserveOutcome(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.reserveOutcomes.WithLabelValues(status).Inc()
}

func (m *SettldMetrics) ObserveArtifactBuilt(schemaVersion string) {
	if m == nil {
		return
	}
	if schemaVersion == "" {
		schemaVersion = "unknown"
	}
	m.artifactsBuilt.WithLabelValues(schemaVersion).Inc()
}

func (m *SettldMetrics) ObserveClosePackBuild(tenantID string) {
	if m == nil {
		return
	}
	if tenantID == "" {
		tenantID = "unknown"
	}
	m.closePackBuilds.WithLabelValues(tenantID).Inc()
}

func (m *SettldMetrics) ObserveClosePackBuildError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.closePackBuildErrors.WithLabelValues(code).Inc()
}

func (m *SettldMetrics) ObservePromotionVerdict(verdict string) {
	if m == nil {
		return
	}
	if verdict == "" {
		verdict = "unknown"
	}
	m.promotionVerdicts.WithLabelValues(verdict).Inc()
}

func (m *SettldMetrics) SetEscrowLockedCents(walletID string, cents int64) {
	if m == nil {
		return
	}
	m.escrowLockedCents.WithLabelValues(walletID).Set(float64(cents))
}

func (m *SettldMetrics) SetChargebackExposureCents(partyID string, cents int64) {
	if m == nil {
		return
	}
	m.chargebackExposure.WithLabelValues(partyID).Set(float64(cents))
}
