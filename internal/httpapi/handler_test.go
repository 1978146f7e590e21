package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fraudrules/fraudrules/internal/bus"
	"github.com/fraudrules/fraudrules/internal/director"
	"github.com/fraudrules/fraudrules/internal/domain"
)

func newTestServer(t *testing.T) (*Server, domain.EventBus) {
	t.Helper()
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	d := director.New(eventBus, director.Config{}, nil)
	server := NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, d, nil, eventBus, "test")
	return server, eventBus
}

func TestHandler_ProcessTransaction_Accepted(t *testing.T) {
	server, eventBus := newTestServer(t)

	var count int
	done := make(chan struct{}, 1)
	_, err := eventBus.Subscribe(context.Background(), "_global", domain.TopicRequest, func(ctx context.Context, msg *domain.Message) error {
		count++
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	server.handler.director.RefreshProfiles([]*domain.Profile{
		{UUID: "p1", Rules: []*domain.RuleConfig{{UUID: "r1", Type: domain.RuleTypeThreshold}}},
	})
	time.Sleep(10 * time.Millisecond)

	body := `{"transaction_id":"T1","sender_account":"A","amount":600}`
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for fan-out")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestHandler_ProcessTransaction_RejectsMissingID(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(`{"amount":100}`))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_RefreshProfiles(t *testing.T) {
	server, _ := newTestServer(t)

	body := `{"profiles":[{"uuid":"p1","name":"profile-1","rules":[]},{"uuid":"p2","name":"profile-2","rules":[]}]}`
	req := httptest.NewRequest(http.MethodPost, "/profiles", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["profile_count"] != 2 {
		t.Errorf("profile_count = %d, want 2", resp["profile_count"])
	}
	if got := server.handler.director.ActiveProfileCount(); got != 2 {
		t.Errorf("ActiveProfileCount() = %d, want 2", got)
	}
}

func TestHandler_Health(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandler_Ready(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
