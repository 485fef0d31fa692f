package port

import "github.com/arklim/credential-gate/internal/core/domain"

// AccountMetrics records account state machine activity.
type AccountMetrics interface {
	ObserveLogin(outcome string)
	ObserveStatusTransition(from, to domain.AccountStatus)
}
