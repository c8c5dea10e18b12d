package connectivity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"backupflow/internal/connectivity"
	"backupflow/internal/logging"
	"backupflow/internal/testsupport"
)

type fakeRoutes struct {
	ifaces []string
	calls  int
}

func (f *fakeRoutes) DefaultInterface() (string, error) {
	idx := f.calls
	f.calls++
	if idx >= len(f.ifaces) {
		idx = len(f.ifaces) - 1
	}
	if idx < 0 {
		return "", nil
	}
	return f.ifaces[idx], nil
}

type fakeProber struct {
	results []error
	calls   int
}

func (f *fakeProber) Probe(context.Context, string) error {
	idx := f.calls
	f.calls++
	if len(f.results) == 0 {
		return nil
	}
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx]
}

type fakeMetered struct {
	metered bool
	err     error
}

func (f fakeMetered) Metered(context.Context, string) (bool, error) { return f.metered, f.err }

func newGate(routes connectivity.Routes, prober connectivity.Prober, metered connectivity.MeteredDetector, clk *testsupport.FakeClock) *connectivity.Gate {
	return &connectivity.Gate{
		Routes:       routes,
		Prober:       prober,
		Metered:      metered,
		Clock:        clk,
		Logger:       logging.NewNop(),
		AvoidMetered: true,
		Backoff:      30 * time.Second,
	}
}

func TestLocalRepositoryNeedsNoProbe(t *testing.T) {
	prober := &fakeProber{}
	routes := &fakeRoutes{ifaces: []string{"eth0"}}
	clk := testsupport.NewFakeClock(time.Now())
	gate := newGate(routes, prober, fakeMetered{}, clk)

	verdict := gate.Evaluate(context.Background(), t.TempDir(), 5)
	if !verdict.OK || verdict.Reason != connectivity.ReasonLocal {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if prober.calls != 0 || routes.calls != 0 || verdict.Probes != 0 {
		t.Fatalf("expected zero probes, prober=%d routes=%d", prober.calls, routes.calls)
	}
	if len(clk.Sleeps()) != 0 {
		t.Fatalf("expected no waits, got %v", clk.Sleeps())
	}
}

func TestDisabledGatePasses(t *testing.T) {
	prober := &fakeProber{results: []error{errors.New("down")}}
	gate := newGate(&fakeRoutes{}, prober, fakeMetered{}, testsupport.NewFakeClock(time.Now()))
	if !gate.Check(context.Background(), "b2:bucket:/", 0) {
		t.Fatal("maxAttempts 0 must pass")
	}
	if prober.calls != 0 {
		t.Fatal("disabled gate must not probe")
	}
}

func TestNoHostFailsImmediately(t *testing.T) {
	prober := &fakeProber{}
	gate := newGate(&fakeRoutes{ifaces: []string{"eth0"}}, prober, fakeMetered{}, testsupport.NewFakeClock(time.Now()))
	verdict := gate.Evaluate(context.Background(), "rclone:remote:backups", 3)
	if verdict.OK || verdict.Reason != connectivity.ReasonNoHost || prober.calls != 0 {
		t.Fatalf("unexpected verdict: %+v probes=%d", verdict, prober.calls)
	}
}

func TestRetriesUntilReachable(t *testing.T) {
	routes := &fakeRoutes{ifaces: []string{"", "wlan0"}}
	prober := &fakeProber{results: []error{errors.New("timeout"), nil}}
	clk := testsupport.NewFakeClock(time.Now())
	gate := newGate(routes, prober, fakeMetered{}, clk)

	verdict := gate.Evaluate(context.Background(), "s3:s3.amazonaws.com/bucket", 5)
	if !verdict.OK {
		t.Fatalf("expected success, got %+v", verdict)
	}
	// check 1: no route, check 2: unreachable, check 3: ok
	if verdict.Attempts != 3 || verdict.Host != "s3.amazonaws.com" || verdict.Interface != "wlan0" {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 2 || sleeps[0] != 30*time.Second {
		t.Fatalf("expected two backoff waits, got %v", sleeps)
	}
}

func TestExhaustionReportsBlockingCondition(t *testing.T) {
	clk := testsupport.NewFakeClock(time.Now())
	gate := newGate(&fakeRoutes{ifaces: []string{"wwan0"}}, &fakeProber{}, fakeMetered{metered: true}, clk)

	verdict := gate.Evaluate(context.Background(), "b2:bucket:/host", 3)
	if verdict.OK || verdict.Reason != connectivity.ReasonMetered {
		t.Fatalf("expected metered block, got %+v", verdict)
	}
	if verdict.Attempts != 3 || len(clk.Sleeps()) != 2 {
		t.Fatalf("attempts=%d sleeps=%v", verdict.Attempts, clk.Sleeps())
	}

	gate.AvoidMetered = false
	if !gate.Check(context.Background(), "b2:bucket:/host", 1) {
		t.Fatal("metered networks are allowed when avoidance is off")
	}
}

func TestUnknownMeteredStateAllowsBackup(t *testing.T) {
	gate := newGate(&fakeRoutes{ifaces: []string{"eth0"}}, &fakeProber{}, fakeMetered{err: connectivity.ErrMeteredUnknown}, testsupport.NewFakeClock(time.Now()))
	if !gate.Check(context.Background(), "gs:bucket:/", 1) {
		t.Fatal("unknown metered state should not block")
	}
}

type cancellingProber struct{ cancel context.CancelFunc }

func (p cancellingProber) Probe(context.Context, string) error {
	p.cancel()
	return errors.New("timeout")
}

func TestCancellationDuringBackoffStopsChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gate := newGate(&fakeRoutes{ifaces: []string{"eth0"}}, cancellingProber{cancel: cancel}, fakeMetered{}, testsupport.NewFakeClock(time.Now()))

	verdict := gate.Evaluate(ctx, "s3:s3.amazonaws.com/bucket", 10)
	if verdict.OK || verdict.Reason != connectivity.ReasonCancelled {
		t.Fatalf("expected cancelled verdict, got %+v", verdict)
	}
	if verdict.Probes != 1 {
		t.Fatalf("reachability checks continued after cancellation: %d", verdict.Probes)
	}
}
