package maintenance

import (
	"time"

	"backupflow/internal/config"
	"backupflow/internal/state"
)

// Policy holds the scheduling knobs.
type Policy struct {
	Enabled       bool
	IntervalDays  int
	IntervalRuns  int
	DeepCheck     bool
	DeepCheckDays int
}

// PolicyFromConfig extracts the scheduling knobs from cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	m := cfg.Maintenance
	return Policy{
		Enabled:       m.Enabled,
		IntervalDays:  m.IntervalDays,
		IntervalRuns:  m.IntervalRuns,
		DeepCheck:     m.DeepCheck,
		DeepCheckDays: m.DeepCheckDays,
	}
}

// IsDue counts one evaluation and reports whether maintenance should run.
// Disabled maintenance leaves st untouched. Otherwise the counter grows on
// every call, and the result is true when no maintenance has ever been
// recorded, when IntervalDays have passed since the last one, or when the
// counter (after this call's increment) reaches IntervalRuns.
func IsDue(st *state.State, p Policy, now time.Time) bool {
	if !p.Enabled {
		return false
	}
	st.MaintenanceCounter++
	if st.LastMaintenanceAt == nil {
		return true
	}
	if p.IntervalRuns > 0 && st.MaintenanceCounter >= p.IntervalRuns {
		return true
	}
	return p.IntervalDays > 0 && daysSince(*st.LastMaintenanceAt, now) >= p.IntervalDays
}

// deepDue reports whether the next check should read all data.
func deepDue(st *state.State, p Policy, now time.Time) bool {
	if !p.DeepCheck {
		return false
	}
	if st.LastDeepMaintenanceAt == nil {
		return true
	}
	return daysSince(*st.LastDeepMaintenanceAt, now) >= p.DeepCheckDays
}

// daysSince counts whole elapsed days. A timestamp in the future counts as
// zero days.
func daysSince(then, now time.Time) int {
	elapsed := now.Sub(then)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / (24 * time.Hour))
}
