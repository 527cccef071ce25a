// Package metrics holds the Prometheus collectors updated by the cycle
// pipeline. They are registered on the default registry in init and
// served at /metrics by the status server:
//
//	botcore_cycles_total{kind,outcome}
//	botcore_violations_total{code}
//	botcore_broker_calls_total{op,retcode}
//	botcore_decision_latency_seconds{kind}
//	botcore_position_reports_total{result}
//	botcore_account_equity
//	botcore_session_phase{phase}
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botcore_cycles_total",
			Help: "Decision cycles by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	violations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botcore_violations_total",
			Help: "Safety violations by code",
		},
		[]string{"code"},
	)

	brokerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botcore_broker_calls_total",
			Help: "Broker mutations by operation and retcode (0 when the call failed in transport)",
		},
		[]string{"op", "retcode"},
	)

	decisionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botcore_decision_latency_seconds",
			Help:    "Round trip to the decision service",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"kind"},
	)

	reports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botcore_position_reports_total",
			Help: "Position reports by result (ok|error)",
		},
		[]string{"result"},
	)

	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "botcore_account_equity",
			Help: "Account equity at the last snapshot",
		},
	)

	// One series per phase; the current phase is 1, the others are absent.
	phase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "botcore_session_phase",
			Help: "Current session phase",
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(cycles, violations, brokerCalls, decisionLatency)
	prometheus.MustRegister(reports, equity, phase)
}

func IncCycle(kind, outcome string) { cycles.WithLabelValues(kind, outcome).Inc() }
func IncViolation(code string)      { violations.WithLabelValues(code).Inc() }
func SetEquity(v float64)           { equity.Set(v) }

func IncBrokerCall(op string, retcode uint32) {
	brokerCalls.WithLabelValues(op, strconv.FormatUint(uint64(retcode), 10)).Inc()
}

func ObserveDecisionLatency(kind string, d time.Duration) {
	decisionLatency.WithLabelValues(kind).Observe(d.Seconds())
}

func IncReport(err error) {
	if err != nil {
		reports.WithLabelValues("error").Inc()
		return
	}
	reports.WithLabelValues("ok").Inc()
}

func SetPhase(p string) {
	phase.Reset()
	phase.WithLabelValues(p).Set(1)
}
