package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	qstashx "github.com/tanpawarit/Chative-Task-Agent/pkg/qstash"
)

// Publisher is the part of the QStash client the sink uses.
type Publisher interface {
	Publish(ctx context.Context, destination string, body []byte) (qstashx.PublishResponse, error)
}

// QStashSink publishes every tool invocation record to a QStash destination.
type QStashSink struct {
	pub         Publisher
	destination string
}

var _ contractx.AuditSink = (*QStashSink)(nil)

func NewQStashSink(pub Publisher, destination string) *QStashSink {
	return &QStashSink{pub: pub, destination: destination}
}

func (s *QStashSink) Publish(ctx context.Context, rec contractx.AuditRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	resp, err := s.pub.Publish(ctx, s.destination, body)
	if err != nil {
		return fmt.Errorf("publish audit record: %w", err)
	}
	zerolog.Ctx(ctx).Debug().
		Str("message_id", resp.MessageID).
		Str("tool", rec.Tool).
		Msg("audit record published")
	return nil
}

// Noop drops records. It is used when no audit destination is configured.
type Noop struct{}

func (Noop) Publish(context.Context, contractx.AuditRecord) error { return nil }

// FromConfig returns a QStash sink when publishing is configured and Noop otherwise.
func FromConfig(cfg qstashx.Config) (contractx.AuditSink, error) {
	if !cfg.Enabled() {
		return Noop{}, nil
	}
	client, err := qstashx.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewQStashSink(client, cfg.Destination), nil
}
