package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"reelrecon/internal/config"
	"reelrecon/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{"jobID": "job-1"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "job completed",
			event:         notifications.EventJobCompleted,
			payload:       notifications.Payload{"jobID": "job-1", "label": "@creator on instagram"},
			expectTitle:   "ReelRecon - Job Complete",
			expectMessage: "✅ Finished: @creator on instagram",
			expectTags:    "reelrecon,job,completed",
		},
		{
			name:          "job partial",
			event:         notifications.EventJobPartial,
			payload:       notifications.Payload{"jobID": "job-2", "message": "3 of 10 reels failed"},
			expectTitle:   "ReelRecon - Job Partially Complete",
			expectMessage: "⚠️ Finished with warnings: job-2\n3 of 10 reels failed",
			expectTags:    "reelrecon,job,partial",
		},
		{
			name:           "job failed",
			event:          notifications.EventJobFailed,
			payload:        notifications.Payload{"jobID": "job-3", "error": errors.New("[RATE-LIMIT] slow down")},
			expectTitle:    "ReelRecon - Job Failed",
			expectMessage:  "❌ Failed: job-3: [RATE-LIMIT] slow down",
			expectTags:     "reelrecon,job,failed",
			expectPriority: "high",
		},
		{
			name:           "job lost",
			event:          notifications.EventJobLost,
			payload:        notifications.Payload{"jobID": "job-4"},
			expectTitle:    "ReelRecon - Job Lost",
			expectMessage:  "❓ Lost track of job-4; start it again",
			expectTags:     "reelrecon,job,lost",
			expectPriority: "high",
		},
		{
			name:           "backend down",
			event:          notifications.EventBackendDown,
			payload:        notifications.Payload{"error": "connection refused"},
			expectTitle:    "ReelRecon - Backend Down",
			expectMessage:  "🔌 Backend unreachable: connection refused",
			expectTags:     "reelrecon,backend,down",
			expectPriority: "high",
		},
		{
			name:          "backend recovered",
			event:         notifications.EventBackendRecovered,
			expectTitle:   "ReelRecon - Backend Recovered",
			expectMessage: "🔄 Backend reachable again; state reloaded",
			expectTags:    "reelrecon,backend,recovered",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsToggles(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.JobCompleted = false
	cfg.Notifications.Backend = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventJobCompleted,
		notifications.EventJobPartial,
		notifications.EventBackendDown,
		notifications.EventBackendRecovered,
		notifications.Event("unknown"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"jobID": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no requests, got %d", calls.Load())
	}

	if err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.Payload{"jobID": "job-9"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected failed job to be delivered, got %d requests", calls.Load())
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic gone", http.StatusGone)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil || !strings.Contains(err.Error(), "410") || !strings.Contains(err.Error(), "topic gone") {
		t.Fatalf("expected status error, got %v", err)
	}
}
