package report_test

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backupflow/internal/report"
	"backupflow/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenNothingConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := report.NewService(cfg, nil)
	if err := svc.Send(context.Background(), report.Report{Subject: "x"}); err != nil {
		t.Fatalf("expected noop service to return nil, got %v", err)
	}
}

func TestNtfyDeliveryHeaders(t *testing.T) {
	tests := []struct {
		name           string
		severity       report.Severity
		expectTags     string
		expectPriority string
	}{
		{"error", report.SeverityError, "backupflow,error,alert", "high"},
		{"warning", report.SeverityWarning, "backupflow,warning", ""},
		{"info", report.SeverityInfo, "backupflow,completed", "low"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title, tags, priority, body string
			}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, _ := io.ReadAll(r.Body)
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := testsupport.NewConfig(t)
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			svc := report.NewService(cfg, nil)

			err := svc.Send(context.Background(), report.Report{Subject: "Backup done", Body: "all good", Severity: tc.severity})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if captured.title != "Backup done" || captured.body != "all good" {
				t.Fatalf("unexpected request %+v", captured)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("tags = %q, want %q", captured.tags, tc.expectTags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("priority = %q, want %q", captured.priority, tc.expectPriority)
			}
		})
	}
}

func TestNtfyErrorStatusIsReturned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "topic closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	err := report.NewService(cfg, nil).Send(context.Background(), report.Report{Subject: "x"})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestSendmailReceivesMultipartAttachment(t *testing.T) {
	dir := t.TempDir()
	captured := filepath.Join(dir, "message.eml")
	sendmail := filepath.Join(dir, "sendmail")
	script := "#!/bin/sh\ncat > '" + captured + "'\n"
	if err := os.WriteFile(sendmail, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	attachment := filepath.Join(dir, "20260301T120000_backup_1.err.txt")
	if err := os.WriteFile(attachment, []byte("engine exploded\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.Email.Enabled = true
	cfg.Notifications.Email.Method = "sendmail"
	cfg.Notifications.Email.SendmailPath = sendmail
	cfg.Notifications.Email.From = "backup@example.com"
	cfg.Notifications.Email.To = []string{"ops@example.com"}

	err := report.NewService(cfg, nil).Send(context.Background(), report.Report{
		Subject:    "Backup FAILED",
		Body:       "see attachment\n",
		Attachment: attachment,
		Severity:   report.SeverityError,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	data, err := os.ReadFile(captured)
	if err != nil {
		t.Fatalf("read captured message: %v", err)
	}
	msg := string(data)
	for _, want := range []string{
		"To: ops@example.com",
		"Content-Type: multipart/mixed",
		`filename="20260301T120000_backup_1.err.txt"`,
		base64.StdEncoding.EncodeToString([]byte("engine exploded\n")),
		"see attachment",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestComposeFailureAttachesErrorLog(t *testing.T) {
	r := report.Compose(report.Summary{
		Prefix:      "nas",
		Phase:       "backup",
		Attempt:     2,
		MaxAttempts: 4,
		Success:     false,
		RunID:       "run-1",
		Duration:    90 * time.Second,
		Items:       []report.Item{{Name: "/home", Status: "failed", Detail: "exit status 1"}},
		Errors:      1,
		FreeBytes:   3 << 30,
		SuccessRate: 50,
		ErrorLog:    "/var/log/backupflow/x.err.txt",
	})
	if r.Severity != report.SeverityError || r.Attachment != "/var/log/backupflow/x.err.txt" {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Subject != "[nas] Backup FAILED (attempt 2/4)" {
		t.Fatalf("subject = %q", r.Subject)
	}
	for _, want := range []string{"Free space: 3.0 GiB", "1m30s", "exit status 1", "50%"} {
		if !strings.Contains(r.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, r.Body)
		}
	}
}

func TestComposeSuccessHasNoAttachment(t *testing.T) {
	r := report.Compose(report.Summary{Phase: "maintenance", Attempt: 1, MaxAttempts: 4, Success: true, ErrorLog: "/tmp/x", SuccessRate: -1})
	if r.Severity != report.SeverityInfo || r.Attachment != "" {
		t.Fatalf("unexpected report %+v", r)
	}
	if strings.Contains(r.Body, "Success:") {
		t.Fatal("negative success rate should be omitted")
	}
	if !strings.HasPrefix(r.Subject, "[backupflow] Maintenance succeeded") {
		t.Fatalf("subject = %q", r.Subject)
	}
}
