package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"backupflow/internal/config"
	"backupflow/internal/logging"
)

const userAgent = "backupflow/0.1.0"

// Severity orders reports by urgency.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Report is one message to the operator.
type Report struct {
	Subject    string
	Body       string
	Attachment string
	Severity   Severity
}

// Service delivers reports.
type Service interface {
	Send(ctx context.Context, r Report) error
}

// NewService builds a service that delivers through every configured
// channel. With no channel configured a no-op service is returned.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	logger = logging.NewComponentLogger(logger, "report")
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var channels []channel
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		channels = append(channels, channel{name: "ntfy", svc: &ntfyService{
			endpoint: topic,
			client:   &http.Client{Timeout: timeout},
		}})
	}
	if cfg.Notifications.Email.Enabled {
		channels = append(channels, channel{name: "email", svc: newEmailService(cfg.Notifications.Email, timeout)})
	}
	if len(channels) == 0 {
		return noopService{}
	}
	return &multiService{channels: channels, logger: logger}
}

type channel struct {
	name string
	svc  Service
}

// multiService tries every channel and reports the joined failures.
type multiService struct {
	channels []channel
	logger   *slog.Logger
}

func (m *multiService) Send(ctx context.Context, r Report) error {
	logger := logging.WithContext(ctx, m.logger)
	var errs []error
	for _, ch := range m.channels {
		if err := ch.svc.Send(ctx, r); err != nil {
			logging.WarnWithContext(logger, "report delivery failed", "report_failed",
				logging.String("channel", ch.name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator not notified through this channel"),
				logging.String(logging.FieldErrorHint, "check the notifications section of the configuration"),
			)
			errs = append(errs, fmt.Errorf("%s: %w", ch.name, err))
			continue
		}
		logger.Debug("report delivered",
			logging.String("channel", ch.name),
			logging.String("severity", string(r.Severity)),
		)
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Send(context.Context, Report) error { return nil }
