package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"backupflow/internal/config"
)

// sendFunc hands a finished message to a transport.
type sendFunc func(ctx context.Context, from string, to []string, message []byte) error

type emailService struct {
	from string
	to   []string
	send sendFunc
	now  func() time.Time
}

func newEmailService(cfg config.Email, timeout time.Duration) *emailService {
	svc := &emailService{from: cfg.From, to: cfg.To, now: time.Now}
	if cfg.Method == "smtp" {
		svc.send = smtpSender(cfg, timeout)
	} else {
		svc.send = sendmailSender(cfg.SendmailPath)
	}
	return svc
}

func (e *emailService) Send(ctx context.Context, r Report) error {
	message, err := e.buildMessage(r)
	if err != nil {
		return err
	}
	return e.send(ctx, e.from, e.to, message)
}

// buildMessage renders a MIME message. With an attachment the body is
// multipart/mixed: the plain-text body first, then the file base64 encoded
// in 76 character lines. An unreadable attachment is mentioned in the body
// instead of failing delivery.
func (e *emailService) buildMessage(r Report) ([]byte, error) {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", r.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	fmt.Fprintf(&msg, "X-Priority: %s\r\n", mailPriority(r.Severity))
	msg.WriteString("MIME-Version: 1.0\r\n")

	body := r.Body
	var content []byte
	if r.Attachment != "" {
		data, err := os.ReadFile(r.Attachment)
		if err != nil {
			body = fmt.Sprintf("%s\n\n(attachment %s unavailable: %v)\n", strings.TrimRight(body, "\n"), r.Attachment, err)
		} else {
			content = data
		}
	}

	if content == nil {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		msg.WriteString(crlf(body))
		return msg.Bytes(), nil
	}

	boundary := "backupflow-" + uuid.NewString()
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	msg.WriteString(crlf(body))
	msg.WriteString("\r\n")

	name := filepath.Base(r.Attachment)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8; name=\"%s\"\r\n", name)
	fmt.Fprintf(&msg, "Content-Disposition: attachment; filename=\"%s\"\r\n", name)
	msg.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	encoded := base64.StdEncoding.EncodeToString(content)
	const maxLineLength = 76
	for i := 0; i < len(encoded); i += maxLineLength {
		end := min(i+maxLineLength, len(encoded))
		msg.WriteString(encoded[i:end])
		msg.WriteString("\r\n")
	}
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes(), nil
}

func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}

func mailPriority(severity Severity) string {
	if severity == SeverityError {
		return "1 (Highest)"
	}
	return "3 (Normal)"
}

// sendmailSender pipes the message to sendmail -t -oi so recipients are
// taken from the headers.
func sendmailSender(path string) sendFunc {
	return func(ctx context.Context, _ string, _ []string, message []byte) error {
		if _, err := exec.LookPath(path); err != nil {
			return fmt.Errorf("sendmail not found at %s: %w", path, err)
		}
		cmd := exec.CommandContext(ctx, path, "-t", "-oi")
		cmd.Stdin = bytes.NewReader(message)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("sendmail: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
}

func smtpSender(cfg config.Email, timeout time.Duration) sendFunc {
	return func(ctx context.Context, from string, to []string, message []byte) error {
		addr := net.JoinHostPort(cfg.SMTPHost, strconv.Itoa(cfg.SMTPPort))
		var auth smtp.Auth
		if cfg.SMTPUsername != "" {
			auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
		}
		done := make(chan error, 1)
		go func() { done <- smtp.SendMail(addr, auth, from, to, message) }()
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("smtp %s: %w", addr, err)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(max(timeout, time.Minute)):
			return fmt.Errorf("smtp %s: timed out", addr)
		}
	}
}
