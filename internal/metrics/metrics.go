// Package metrics exports the outcome of the last invocation as a
// Prometheus textfile for the node_exporter textfile collector.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "backupflow"

// Snapshot is the data exported after a run.
type Snapshot struct {
	FinishedAt      time.Time
	Duration        time.Duration
	BackupOK        bool
	MaintenanceRan  bool
	MaintenanceOK   bool
	BackupAttempts  int
	MaintAttempts   int
	FailedAttempts  int
	Counter         int
	LastMaintenance *time.Time
	LastDeepCheck   *time.Time
}

// Exporter owns a private registry so only backupflow series are written.
type Exporter struct {
	registry *prometheus.Registry

	lastRun         prometheus.Gauge
	duration        prometheus.Gauge
	success         *prometheus.GaugeVec
	attempts        *prometheus.GaugeVec
	failedAttempts  prometheus.Gauge
	counter         prometheus.Gauge
	lastMaintenance prometheus.Gauge
	lastDeepCheck   prometheus.Gauge
}

// NewExporter registers the gauges.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time the last invocation finished.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_duration_seconds",
			Help: "Wall time of the last invocation.",
		}),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "phase_success",
			Help: "1 when the phase succeeded in the last invocation.",
		}, []string{"phase"}),
		attempts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "phase_attempts",
			Help: "Attempts used by the phase in the last invocation.",
		}, []string{"phase"}),
		failedAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "failed_attempts",
			Help: "Failed attempts across both phases; also the exit status.",
		}),
		counter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "maintenance_counter",
			Help: "Backup runs counted since the last maintenance.",
		}),
		lastMaintenance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_maintenance_timestamp_seconds",
			Help: "Unix time of the last successful maintenance.",
		}),
		lastDeepCheck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_deep_check_timestamp_seconds",
			Help: "Unix time a deep check was last started.",
		}),
	}
	e.registry.MustRegister(e.lastRun, e.duration, e.success, e.attempts,
		e.failedAttempts, e.counter, e.lastMaintenance, e.lastDeepCheck)
	return e
}

// Gatherer exposes the registry.
func (e *Exporter) Gatherer() prometheus.Gatherer {
	return e.registry
}

// Observe sets every gauge from s.
func (e *Exporter) Observe(s Snapshot) {
	e.lastRun.Set(float64(s.FinishedAt.Unix()))
	e.duration.Set(s.Duration.Seconds())
	e.success.WithLabelValues("backup").Set(boolValue(s.BackupOK))
	e.attempts.WithLabelValues("backup").Set(float64(s.BackupAttempts))
	if s.MaintenanceRan {
		e.success.WithLabelValues("maintenance").Set(boolValue(s.MaintenanceOK))
		e.attempts.WithLabelValues("maintenance").Set(float64(s.MaintAttempts))
	}
	e.failedAttempts.Set(float64(s.FailedAttempts))
	e.counter.Set(float64(s.Counter))
	if s.LastMaintenance != nil {
		e.lastMaintenance.Set(float64(s.LastMaintenance.Unix()))
	}
	if s.LastDeepCheck != nil {
		e.lastDeepCheck.Set(float64(s.LastDeepCheck.Unix()))
	}
}

// WriteTextfile writes the registry to path. An empty path is a no-op.
// The parent directory must exist.
func (e *Exporter) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, e.registry)
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
