package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelrecon/internal/config"
)

const userAgent = "ReelRecon-Go/0.1.0"

// Event enumerates the notification types the watcher emits.
type Event string

const (
	EventJobCompleted     Event = "job_completed"
	EventJobPartial       Event = "job_partial"
	EventJobFailed        Event = "job_failed"
	EventJobAborted       Event = "job_aborted"
	EventJobLost          Event = "job_lost"
	EventBackendDown      Event = "backend_down"
	EventBackendRecovered Event = "backend_recovered"
	EventTest             Event = "test"
)

// Payload carries event specific values such as "jobID", "label" or "error".
type Payload map[string]any

// Service publishes notification events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		cfg:      cfg.Notifications,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	cfg      config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventJobCompleted, EventJobPartial:
		return n.cfg.JobCompleted
	case EventJobFailed, EventJobAborted:
		return n.cfg.JobFailed
	case EventJobLost:
		return n.cfg.JobLost
	case EventBackendDown, EventBackendRecovered:
		return n.cfg.Backend
	default:
		return true
	}
}

func format(event Event, payload Payload) (message, bool) {
	label := payloadString(payload, "label")
	if label == "" {
		label = payloadString(payload, "jobID")
	}
	switch event {
	case EventJobCompleted:
		return message{
			title: "ReelRecon - Job Complete",
			body:  fmt.Sprintf("✅ Finished: %s", label),
			tags:  []string{"reelrecon", "job", "completed"},
		}, true
	case EventJobPartial:
		body := fmt.Sprintf("⚠️ Finished with warnings: %s", label)
		if detail := payloadString(payload, "message"); detail != "" {
			body = fmt.Sprintf("%s\n%s", body, detail)
		}
		return message{
			title: "ReelRecon - Job Partially Complete",
			body:  body,
			tags:  []string{"reelrecon", "job", "partial"},
		}, true
	case EventJobFailed:
		return message{
			title:    "ReelRecon - Job Failed",
			body:     withError(fmt.Sprintf("❌ Failed: %s", label), payload),
			tags:     []string{"reelrecon", "job", "failed"},
			priority: "high",
		}, true
	case EventJobAborted:
		return message{
			title: "ReelRecon - Job Aborted",
			body:  fmt.Sprintf("🛑 Aborted: %s", label),
			tags:  []string{"reelrecon", "job", "aborted"},
		}, true
	case EventJobLost:
		return message{
			title:    "ReelRecon - Job Lost",
			body:     fmt.Sprintf("❓ Lost track of %s; start it again", label),
			tags:     []string{"reelrecon", "job", "lost"},
			priority: "high",
		}, true
	case EventBackendDown:
		return message{
			title:    "ReelRecon - Backend Down",
			body:     withError("🔌 Backend unreachable", payload),
			tags:     []string{"reelrecon", "backend", "down"},
			priority: "high",
		}, true
	case EventBackendRecovered:
		return message{
			title: "ReelRecon - Backend Recovered",
			body:  "🔄 Backend reachable again; state reloaded",
			tags:  []string{"reelrecon", "backend", "recovered"},
		}, true
	case EventTest:
		return message{
			title:    "ReelRecon - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"reelrecon", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func withError(body string, payload Payload) string {
	if errText := payloadString(payload, "error"); errText != "" {
		return body + ": " + errText
	}
	return body
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
