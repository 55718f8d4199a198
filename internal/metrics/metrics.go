// Package metrics exposes Prometheus counters for the credential core.
// Token rejections are counted by their precise kind even though callers
// only ever see one uniform message.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the auth service and the guard report into.
type Recorder interface {
	LoginAttempt(outcome string)
	TokenIssued(kind string)
	TokenRejected(reason string)
	GuardDecision(outcome string)
}

type Collector struct {
	logins         *prometheus.CounterVec
	tokensIssued   *prometheus.CounterVec
	tokensRejected *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_issued_total",
			Help: "Signed tokens by kind.",
		}, []string{"kind"}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_tokens_rejected_total",
			Help: "Rejected tokens by failure kind.",
		}, []string{"reason"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_guard_decisions_total",
			Help: "Access guard decisions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.logins,
		c.tokensIssued,
		c.tokensRejected,
		c.guardDecisions,
	)
	return c
}

func (c *Collector) LoginAttempt(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) TokenIssued(kind string) {
	c.tokensIssued.WithLabelValues(kind).Inc()
}

func (c *Collector) TokenRejected(reason string) {
	c.tokensRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) GuardDecision(outcome string) {
	c.guardDecisions.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) LoginAttempt(string)  {}
func (Nop) TokenIssued(string)   {}
func (Nop) TokenRejected(string) {}
func (Nop) GuardDecision(string) {}
