package authorization

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	decisionAllowed = "allowed"
	decisionDenied  = "denied"
)

// DecisionMetrics counts authorization outcomes per object and action.
type DecisionMetrics struct {
	decisions *prometheus.CounterVec
}

func NewDecisionMetrics() (*DecisionMetrics, error) {
	return newDecisionMetrics(prometheus.DefaultRegisterer)
}

func newDecisionMetrics(reg prometheus.Registerer) (*DecisionMetrics, error) {
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenantry_authorization_decisions_total",
		Help: "Authorization decisions by object, action and outcome.",
	}, []string{"object", "action", "decision"})

	if err := reg.Register(decisions); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		decisions = already.ExistingCollector.(*prometheus.CounterVec)
	}
	return &DecisionMetrics{decisions: decisions}, nil
}

func (m *DecisionMetrics) observe(object, action, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(object, action, decision).Inc()
}
