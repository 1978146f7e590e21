// Package resultproducer serializes RuleResult values and publishes
// them to the response topic.
package resultproducer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fraudrules/fraudrules/internal/domain"
)

const defaultTenant = "_global"

// Format selects the wire encoding used for published RuleResult
// payloads. Both must be consumable by the reporter; the choice is
// configuration-driven, not negotiated per-message.
type Format int

const (
	// FormatJSON encodes RuleResult as JSON. Default.
	FormatJSON Format = iota
	// FormatBinary encodes RuleResult as a 4-byte big-endian length
	// prefix followed by its JSON body, matching the "length-prefixed
	// binary format" option without inventing a bespoke binary schema.
	FormatBinary
)

// Producer publishes RuleResult values, following the original's
// KafkaResultProducer shape: a thin wrapper around one serialize-and-
// send call, with publish failures logged rather than propagated
// (result publication failures never block offset commit; a
// redelivered request recomputes and republishes).
type Producer struct {
	bus    domain.EventBus
	topic  string
	format Format
	log    *slog.Logger
}

type Config struct {
	ResponseTopic string
	Format        Format
}

func New(bus domain.EventBus, cfg Config, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	topic := cfg.ResponseTopic
	if topic == "" {
		topic = domain.TopicResponse
	}
	return &Producer{bus: bus, topic: topic, format: cfg.Format, log: log}
}

// Send serializes result per the configured Format and publishes it to
// the response topic. Errors are logged and returned; callers decide
// whether a publish failure should affect the caller's own commit
// discipline.
func (p *Producer) Send(ctx context.Context, result *domain.RuleResult) error {
	payload, err := p.encode(result)
	if err != nil {
		p.log.Error("failed to serialize rule result", "transaction_id", result.TransactionID, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}

	if err := p.bus.Publish(ctx, defaultTenant, p.topic, payload); err != nil {
		p.log.Error("failed to send result", "transaction_id", result.TransactionID, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}

	p.log.Info("sent result", "topic", p.topic, "transaction_id", result.TransactionID, "status", result.Status)
	return nil
}

func (p *Producer) encode(result *domain.RuleResult) ([]byte, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if p.format == FormatJSON {
		return body, nil
	}

	framed := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(framed, uint32(len(body)))
	copy(framed[4:], body)
	return framed, nil
}

// Decode reverses encode, for tests and for any in-process consumer
// that reads the response topic directly.
func Decode(format Format, payload []byte) (*domain.RuleResult, error) {
	body := payload
	if format == FormatBinary {
		if len(payload) < 4 {
			return nil, fmt.Errorf("%w: payload too short for length prefix", domain.ErrSerialization)
		}
		n := binary.BigEndian.Uint32(payload[:4])
		if len(payload) < int(4+n) {
			return nil, fmt.Errorf("%w: truncated payload", domain.ErrSerialization)
		}
		body = payload[4 : 4+n]
	}

	var result domain.RuleResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSerialization, err)
	}
	return &result, nil
}
