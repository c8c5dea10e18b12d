// Package connectivity decides whether the repository endpoint is reachable,
// and unmetered when that is required, before a backup attempt starts.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"backupflow/internal/config"
	"backupflow/internal/logging"
)

// Reason names the condition behind a verdict.
type Reason string

const (
	ReasonOK          Reason = "ok"
	ReasonDisabled    Reason = "disabled"
	ReasonLocal       Reason = "local_repository"
	ReasonNoHost      Reason = "no_host"
	ReasonNoRoute     Reason = "no_route"
	ReasonUnreachable Reason = "unreachable"
	ReasonMetered     Reason = "metered"
	ReasonCancelled   Reason = "cancelled"
)

// Verdict is the detailed gate outcome.
type Verdict struct {
	OK        bool
	Reason    Reason
	Host      string
	Interface string
	Attempts  int
	Probes    int
}

var errNotReady = errors.New("connectivity not ready")

// Gate checks connectivity with injectable collaborators.
type Gate struct {
	Routes       Routes
	Prober       Prober
	Metered      MeteredDetector
	Clock        clock.Clock
	Logger       *slog.Logger
	AvoidMetered bool
	Backoff      time.Duration
}

// NewGate wires the Linux collaborators from configuration.
func NewGate(cfg *config.Config, clk clock.Clock, logger *slog.Logger) *Gate {
	return &Gate{
		Routes:       NetlinkRoutes{},
		Prober:       PingProber{Timeout: cfg.ProbeTimeout(), Port: cfg.Connectivity.ProbePort},
		Metered:      NetworkManagerMetered{},
		Clock:        clk,
		Logger:       logger,
		AvoidMetered: cfg.Connectivity.AvoidMetered,
		Backoff:      cfg.ConnectivityBackoff(),
	}
}

// Check reports whether the repository behind locator may be used now.
func (g *Gate) Check(ctx context.Context, locator string, maxAttempts int) bool {
	return g.Evaluate(ctx, locator, maxAttempts).OK
}

// Evaluate runs the gate and returns the detailed verdict. maxAttempts <= 0
// disables the gate. Local repositories pass without any probe.
func (g *Gate) Evaluate(ctx context.Context, locator string, maxAttempts int) Verdict {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(g.Logger, "connectivity"))
	if maxAttempts <= 0 {
		return Verdict{OK: true, Reason: ReasonDisabled}
	}
	if IsLocalPath(locator) {
		logger.Debug("local repository; connectivity check skipped",
			logging.String(logging.FieldEventType, "connectivity_local"))
		return Verdict{OK: true, Reason: ReasonLocal}
	}
	host, ok := DeriveHost(locator)
	if !ok {
		logging.ErrorWithContext(logger, "cannot derive host from repository locator", "connectivity_no_host",
			logging.String(logging.FieldErrorHint, "use a locator with a hostname or disable connectivity.attempts"),
		)
		return Verdict{Reason: ReasonNoHost}
	}

	clk := g.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	// retry.Call rejects a zero Delay.
	backoff := g.Backoff
	if backoff <= 0 {
		backoff = time.Nanosecond
	}
	verdict := Verdict{Host: host}
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			verdict.Attempts++
			verdict.Reason = g.checkOnce(ctx, logger, host, &verdict)
			switch verdict.Reason {
			case ReasonOK:
				return nil
			case ReasonCancelled:
				return context.Canceled
			}
			return errNotReady
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, errNotReady)
		},
		NotifyFunc: func(_ error, attempt int) {
			if attempt >= maxAttempts {
				return
			}
			logger.Info("connectivity not ready; waiting",
				logging.String("host", host),
				logging.String("reason", string(verdict.Reason)),
				logging.Int("check", attempt),
				logging.Int("max_checks", maxAttempts),
				logging.Duration("backoff", g.Backoff),
				logging.String(logging.FieldEventType, "connectivity_wait"),
			)
		},
		Attempts: maxAttempts,
		Delay:    backoff,
		Clock:    clk,
		Stop:     ctx.Done(),
	})
	switch {
	case err == nil:
		verdict.OK = true
		logger.Info("repository reachable",
			logging.String("host", host),
			logging.Int("checks", verdict.Attempts),
			logging.String(logging.FieldEventType, "connectivity_ok"),
		)
		return verdict
	case retry.IsRetryStopped(err) || errors.Is(err, context.Canceled):
		verdict.Reason = ReasonCancelled
		return verdict
	}

	hint := "check network connection and DNS"
	if verdict.Reason == ReasonMetered {
		hint = "connect to an unmetered network or set connectivity.avoid_metered = false"
	}
	logging.ErrorWithContext(logger, "connectivity unavailable; phase blocked", "connectivity_exhausted",
		logging.String("host", host),
		logging.String("reason", string(verdict.Reason)),
		logging.Int("checks", verdict.Attempts),
		logging.String(logging.FieldErrorHint, hint),
	)
	return verdict
}

func (g *Gate) checkOnce(ctx context.Context, logger *slog.Logger, host string, verdict *Verdict) Reason {
	if ctx.Err() != nil {
		return ReasonCancelled
	}
	iface := ""
	if g.Routes != nil {
		name, err := g.Routes.DefaultInterface()
		if err != nil {
			logger.Debug("route lookup failed", logging.Error(err))
		}
		if name == "" {
			return ReasonNoRoute
		}
		iface = name
	}
	verdict.Interface = iface

	if g.Prober != nil {
		verdict.Probes++
		if err := g.Prober.Probe(ctx, host); err != nil {
			logger.Debug("reachability probe failed", logging.String("host", host), logging.Error(err))
			return ReasonUnreachable
		}
	}

	if g.AvoidMetered && g.Metered != nil {
		metered, err := g.Metered.Metered(ctx, iface)
		switch {
		case errors.Is(err, ErrMeteredUnknown):
			logger.Debug("metered state unknown; assuming unmetered", logging.String("interface", iface))
		case err != nil:
			logger.Debug("metered detection failed; assuming unmetered", logging.Error(err))
		case metered:
			return ReasonMetered
		}
	}
	return ReasonOK
}
