package maintenance_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"backupflow/internal/engine"
	"backupflow/internal/maintenance"
	"backupflow/internal/services"
	"backupflow/internal/state"
	"backupflow/internal/testsupport"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func TestIsDue(t *testing.T) {
	policy := maintenance.Policy{Enabled: true, IntervalDays: 30, IntervalRuns: 7}
	tests := []struct {
		name        string
		state       state.State
		policy      maintenance.Policy
		want        bool
		wantCounter int
	}{
		{"never maintained", state.State{MaintenanceCounter: 0}, policy, true, 1},
		{"never maintained ignores other fields", state.State{MaintenanceCounter: 0}, maintenance.Policy{Enabled: true, IntervalDays: 999, IntervalRuns: 999}, true, 1},
		{"recent and few runs", state.State{LastMaintenanceAt: ptr(epoch.Add(-24 * time.Hour)), MaintenanceCounter: 2}, policy, false, 3},
		{"counter reaches interval", state.State{LastMaintenanceAt: ptr(epoch.Add(-24 * time.Hour)), MaintenanceCounter: 6}, policy, true, 7},
		{"counter above interval even when recent", state.State{LastMaintenanceAt: ptr(epoch), MaintenanceCounter: 20}, policy, true, 21},
		{"days elapsed", state.State{LastMaintenanceAt: ptr(epoch.Add(-31 * 24 * time.Hour))}, policy, true, 1},
		{"disabled", state.State{MaintenanceCounter: 4}, maintenance.Policy{}, false, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.state
			if got := maintenance.IsDue(&st, tt.policy, epoch); got != tt.want {
				t.Fatalf("IsDue = %v want %v", got, tt.want)
			}
			if st.MaintenanceCounter != tt.wantCounter {
				t.Fatalf("counter = %d want %d", st.MaintenanceCounter, tt.wantCounter)
			}
		})
	}
}

type fakeEngine struct {
	calls []string
	args  map[string][]string
	fail  map[string]bool
}

func (f *fakeEngine) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	if f.args == nil {
		f.args = map[string][]string{}
	}
	f.args[name] = args
	if f.fail[name] {
		return services.Wrap(services.ErrEngineFailed, "maintenance", name, "exit status 1", nil)
	}
	return nil
}

func (f *fakeEngine) Forget(_ context.Context, _ engine.Sinks, args []string) error {
	return f.record(maintenance.StepForget, args)
}

func (f *fakeEngine) Prune(_ context.Context, _ engine.Sinks, args []string) error {
	return f.record(maintenance.StepPrune, args)
}

func (f *fakeEngine) Check(_ context.Context, _ engine.Sinks, args []string) error {
	return f.record(maintenance.StepCheck, args)
}

func (f *fakeEngine) SelfUpdate(context.Context, engine.Sinks) error {
	return f.record(maintenance.StepSelfUpdate, nil)
}

func testOptions(t *testing.T) maintenance.Options {
	t.Helper()
	opts, err := maintenance.OptionsFromConfig(testsupport.NewConfig(t))
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	return opts
}

func TestRunSuccessResetsCounter(t *testing.T) {
	eng := &fakeEngine{}
	clk := testsupport.NewFakeClock(epoch)
	st := state.State{MaintenanceCounter: 7, LastDeepMaintenanceAt: ptr(epoch.Add(-24 * time.Hour))}

	result := maintenance.NewRunner(eng, testOptions(t), clk).Run(context.Background(), &st, engine.Sinks{}, nil)
	if !result.Success || result.Deep {
		t.Fatalf("unexpected result %+v", result)
	}
	want := []string{"forget", "prune", "check", "self-update"}
	if !reflect.DeepEqual(eng.calls, want) {
		t.Fatalf("calls = %v", eng.calls)
	}
	if st.MaintenanceCounter != 0 || st.LastMaintenanceAt == nil || !st.LastMaintenanceAt.Equal(epoch) {
		t.Fatalf("state not updated: %+v", st)
	}
	if reflect.DeepEqual(eng.args["check"], []string{"--read-data"}) {
		t.Fatal("fast check should not read data")
	}
	if eng.args["forget"][0] != "--keep-daily" {
		t.Fatalf("forget args = %q", eng.args["forget"])
	}
}

func TestRunDeepCheckTimestampSetEvenWhenCheckFails(t *testing.T) {
	eng := &fakeEngine{fail: map[string]bool{maintenance.StepCheck: true}}
	clk := testsupport.NewFakeClock(epoch)
	previous := epoch.Add(-48 * time.Hour)
	st := state.State{MaintenanceCounter: 3, LastMaintenanceAt: &previous}

	result := maintenance.NewRunner(eng, testOptions(t), clk).Run(context.Background(), &st, engine.Sinks{}, nil)
	if result.Success || !result.Deep {
		t.Fatalf("unexpected result %+v", result)
	}
	if st.LastDeepMaintenanceAt == nil || !st.LastDeepMaintenanceAt.Equal(epoch) {
		t.Fatalf("deep timestamp = %v", st.LastDeepMaintenanceAt)
	}
	if st.MaintenanceCounter != 3 || !st.LastMaintenanceAt.Equal(previous) {
		t.Fatalf("failed attempt must leave scheduling state alone: %+v", st)
	}
	if got := eng.args["check"]; len(got) == 0 || got[len(got)-1] != "--read-data" {
		t.Fatalf("deep check args = %q", got)
	}
	if len(eng.calls) != 4 {
		t.Fatalf("later steps must still run, calls = %v", eng.calls)
	}
	if result.Errors() != 1 {
		t.Fatalf("errors = %d", result.Errors())
	}
}

func TestRunSkipsSelfUpdateWhenDisabled(t *testing.T) {
	eng := &fakeEngine{}
	opts := testOptions(t)
	opts.SelfUpdate = false
	st := state.Default()

	maintenance.NewRunner(eng, opts, testsupport.NewFakeClock(epoch)).Run(context.Background(), &st, engine.Sinks{}, nil)
	for _, call := range eng.calls {
		if call == maintenance.StepSelfUpdate {
			t.Fatal("self-update should be skipped")
		}
	}
}
