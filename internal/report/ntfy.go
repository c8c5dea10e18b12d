package report

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Send(ctx context.Context, r Report) error {
	if n == nil || n.client == nil {
		return nil
	}

	message := r.Body
	if r.Attachment != "" {
		message = fmt.Sprintf("%s\n\nError log: %s", strings.TrimRight(message, "\n"), r.Attachment)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if r.Subject != "" {
		req.Header.Set("Title", r.Subject)
	}
	req.Header.Set("Tags", strings.Join(ntfyTags(r.Severity), ","))
	if priority := ntfyPriority(r.Severity); priority != "" {
		req.Header.Set("Priority", priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func ntfyTags(severity Severity) []string {
	switch severity {
	case SeverityError:
		return []string{"backupflow", "error", "alert"}
	case SeverityWarning:
		return []string{"backupflow", "warning"}
	default:
		return []string{"backupflow", "completed"}
	}
}

func ntfyPriority(severity Severity) string {
	switch severity {
	case SeverityError:
		return "high"
	case SeverityInfo:
		return "low"
	default:
		return ""
	}
}
