package resultproducer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fraudrules/fraudrules/internal/bus"
	"github.com/fraudrules/fraudrules/internal/domain"
)

func TestProducer_SendJSON(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	var received []byte
	done := make(chan struct{})
	_, err := eventBus.Subscribe(context.Background(), defaultTenant, domain.TopicResponse, func(ctx context.Context, msg *domain.Message) error {
		received = msg.Payload
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	p := New(eventBus, Config{}, nil)
	result := &domain.RuleResult{TransactionID: "T1", Status: domain.StatusFraud}
	if err := p.Send(context.Background(), result); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for published result")
	}

	var decoded domain.RuleResult
	if err := json.Unmarshal(received, &decoded); err != nil {
		t.Fatalf("failed to unmarshal published payload: %v", err)
	}
	if decoded.TransactionID != "T1" || decoded.Status != domain.StatusFraud {
		t.Errorf("decoded = %+v, want TransactionID=T1 Status=FRAUD", decoded)
	}
}

func TestProducer_SendBinaryRoundTrips(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	var received []byte
	done := make(chan struct{})
	_, err := eventBus.Subscribe(context.Background(), defaultTenant, domain.TopicResponse, func(ctx context.Context, msg *domain.Message) error {
		received = msg.Payload
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	p := New(eventBus, Config{Format: FormatBinary}, nil)
	result := &domain.RuleResult{TransactionID: "T2", Status: domain.StatusNotFraud}
	if err := p.Send(context.Background(), result); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for published result")
	}

	decoded, err := Decode(FormatBinary, received)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.TransactionID != "T2" || decoded.Status != domain.StatusNotFraud {
		t.Errorf("decoded = %+v, want TransactionID=T2 Status=NOT_FRAUD", *decoded)
	}
}

func TestDecode_TruncatedBinaryPayloadErrors(t *testing.T) {
	if _, err := Decode(FormatBinary, []byte{0, 0}); err == nil {
		t.Error("expected an error for a too-short payload")
	}
}
