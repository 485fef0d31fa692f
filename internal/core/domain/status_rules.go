package domain

import (
	"strings"
	"time"
)

const (
	// DefaultInactivityLimit is how long an account may go without a successful login before it is paused.
	DefaultInactivityLimit = 180 * 24 * time.Hour
	// DefaultFlagWindowDays is the number of consecutive calendar days with failures that flags a never-used account.
	DefaultFlagWindowDays = 5
	// DefaultBlockThreshold is the consecutive-failure count at which rapid failures block the account.
	DefaultBlockThreshold = 5
	// DefaultBlockWindow is the maximum gap between the last two failures for the block rule to fire.
	DefaultBlockWindow = time.Minute

	// FailureDateLayout is the calendar-date layout audit backends return for failure dates.
	FailureDateLayout = "2006-01-02"

	RuleNamePaused  = "paused"
	RuleNameFlagged = "flagged"
)

var gatedStatuses = map[AccountStatus]struct{}{
	AccountStatusBlocked:   {},
	AccountStatusPaused:    {},
	AccountStatusFlagged:   {},
	AccountStatusSuspended: {},
}

// IsGated reports whether an account in the given status must be denied before its password is checked.
func IsGated(status AccountStatus) bool {
	_, gated := gatedStatuses[status]
	return gated
}

// StatusRules holds the thresholds of the status state machine. Every method is a
// pure function of its inputs; nothing here reads a clock or touches storage.
type StatusRules struct {
	InactivityLimit time.Duration
	FlagWindowDays  int
	BlockThreshold  int
	BlockWindow     time.Duration
}

// DefaultStatusRules returns the production thresholds.
func DefaultStatusRules() StatusRules {
	return StatusRules{
		InactivityLimit: DefaultInactivityLimit,
		FlagWindowDays:  DefaultFlagWindowDays,
		BlockThreshold:  DefaultBlockThreshold,
		BlockWindow:     DefaultBlockWindow,
	}
}

// WithDefaults replaces every non-positive threshold with its default.
func (r StatusRules) WithDefaults() StatusRules {
	if r.InactivityLimit <= 0 {
		r.InactivityLimit = DefaultInactivityLimit
	}
	if r.FlagWindowDays <= 0 {
		r.FlagWindowDays = DefaultFlagWindowDays
	}
	if r.BlockThreshold <= 0 {
		r.BlockThreshold = DefaultBlockThreshold
	}
	if r.BlockWindow <= 0 {
		r.BlockWindow = DefaultBlockWindow
	}
	return r
}

// RuleInput carries the event context for pre-login evaluation.
type RuleInput struct {
	Now time.Time
	// FailureDates lists calendar dates (FailureDateLayout) with failed logins, newest first.
	FailureDates []string
}

// StatusRule is one entry of the ordered pre-login rule list.
type StatusRule struct {
	Name string
	// Claims reports whether the rule is responsible for the account. Evaluation
	// stops at the first rule that claims it, whether or not it changes the status.
	Claims func(Account) bool
	// Decide returns the next status and true when the rule is satisfied.
	Decide func(Account, RuleInput) (AccountStatus, bool)
	// UsesFailureHistory marks rules that read RuleInput.FailureDates.
	UsesFailureHistory bool
}

// PreLoginRules returns the staleness rules in evaluation order. First match wins:
// an account that has ever logged in is claimed by the paused rule, so the flagged
// rule only ever sees accounts that never authenticated successfully.
func (r StatusRules) PreLoginRules() []StatusRule {
	r = r.WithDefaults()
	return []StatusRule{
		{
			Name: RuleNamePaused,
			Claims: func(acc Account) bool {
				return acc.LastLogin.Present()
			},
			Decide: func(acc Account, in RuleInput) (AccountStatus, bool) {
				lastLogin, ok := acc.LastLogin.Time()
				if !ok {
					return "", false
				}
				if in.Now.Sub(lastLogin) > r.InactivityLimit {
					return AccountStatusPaused, true
				}
				return "", false
			},
		},
		{
			Name: RuleNameFlagged,
			Claims: func(acc Account) bool {
				return !acc.LastLogin.Present()
			},
			Decide: func(_ Account, in RuleInput) (AccountStatus, bool) {
				if HasConsecutiveFailureDays(in.FailureDates, r.FlagWindowDays, in.Now) {
					return AccountStatusFlagged, true
				}
				return "", false
			},
			UsesFailureHistory: true,
		},
	}
}

// NeedsFailureHistory reports whether pre-login evaluation of acc will consult failure dates.
func (r StatusRules) NeedsFailureHistory(acc Account) bool {
	if acc.Status == AccountStatusSuspended {
		return false
	}
	for _, rule := range r.PreLoginRules() {
		if rule.Claims(acc) {
			return rule.UsesFailureHistory
		}
	}
	return false
}

// FailureWindowStart is the earliest instant whose failures can contribute to flagging.
func (r StatusRules) FailureWindowStart(now time.Time) time.Time {
	r = r.WithDefaults()
	return startOfDay(now).AddDate(0, 0, -(r.FlagWindowDays - 1))
}

// EvaluatePreLogin applies the ordered pre-login rules and reports whether the status changed.
// Suspended accounts are left untouched: only an administrator moves them.
func (r StatusRules) EvaluatePreLogin(acc Account, in RuleInput) (Account, bool) {
	if acc.Status == AccountStatusSuspended {
		return acc, false
	}
	for _, rule := range r.PreLoginRules() {
		if !rule.Claims(acc) {
			continue
		}
		next, ok := rule.Decide(acc, in)
		if !ok || next == acc.Status {
			return acc, false
		}
		acc.Status = next
		return acc, true
	}
	return acc, false
}

// ApplyLoginSuccess resets the failure counter and activates the account.
func (r StatusRules) ApplyLoginSuccess(acc Account, now time.Time) Account {
	acc.LoginAttempts = 0
	acc.LastLogin = At(now)
	acc.Status = AccountStatusActive
	return acc
}

// ApplyLoginFailure counts a failed attempt and blocks the account when the new
// counter reaches the threshold and the previous failure happened within the
// block window. The previous LastAttempt is compared before it is overwritten.
func (r StatusRules) ApplyLoginFailure(acc Account, now time.Time) Account {
	r = r.WithDefaults()

	previous := acc.LastAttempt
	acc.LoginAttempts++
	acc.LastAttempt = At(now)

	if acc.LoginAttempts >= r.BlockThreshold && withinWindow(previous, now, r.BlockWindow) {
		acc.Status = AccountStatusBlocked
	}
	return acc
}

// OverrideStatus sets the status directly. It bypasses every rule above and exists
// only for the administrative escape hatch; callers must audit its use.
func OverrideStatus(acc Account, status AccountStatus) Account {
	acc.Status = status
	return acc
}

// HasConsecutiveFailureDays reports whether the newest `days` entries of dates are
// exactly today, yesterday, ... today-(days-1). Unparseable dates are skipped, which
// leaves too few entries and fails the check.
func HasConsecutiveFailureDays(dates []string, days int, now time.Time) bool {
	if days <= 0 || len(dates) < days {
		return false
	}

	actual := make([]time.Time, 0, days)
	for _, raw := range dates[:days] {
		d, err := time.Parse(FailureDateLayout, strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		actual = append(actual, d)
	}
	if len(actual) != days {
		return false
	}

	today := startOfDay(now)
	for i, d := range actual {
		if !d.Equal(today.AddDate(0, 0, -i)) {
			return false
		}
	}
	return true
}

func withinWindow(previous Timestamp, now time.Time, window time.Duration) bool {
	at, ok := previous.Time()
	if !ok {
		return false
	}
	gap := now.Sub(at)
	return gap >= 0 && gap <= window
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
