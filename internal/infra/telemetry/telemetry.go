package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
)

const namespace = "gate"

// AccountMetrics exports login outcomes and status transitions.
type AccountMetrics struct {
	logins      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var _ port.AccountMetrics = (*AccountMetrics)(nil)

// NewAccountMetrics registers the account collectors on registerer, reusing
// collectors that are already registered there.
func NewAccountMetrics(registerer prometheus.Registerer) (*AccountMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	logins, err := registerCounterVec(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	transitions, err := registerCounterVec(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_status_transitions_total",
		Help:      "Account status transitions.",
	}, []string{"from", "to"}))
	if err != nil {
		return nil, err
	}

	return &AccountMetrics{logins: logins, transitions: transitions}, nil
}

// ObserveLogin counts one login attempt with the given outcome label.
func (m *AccountMetrics) ObserveLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// ObserveStatusTransition counts one status change.
func (m *AccountMetrics) ObserveStatusTransition(from, to domain.AccountStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func registerCounterVec(registerer prometheus.Registerer, collector *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return collector, nil
}
