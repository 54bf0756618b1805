package contract

import (
	"context"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ToolHandler executes one tool on behalf of owner. The owner is a required
// parameter so no handler can reach the store without one.
type ToolHandler func(ctx context.Context, owner Owner, input ToolInput) (any, error)

// Adapter specializes the orchestration loop to one business domain.
type Adapter interface {
	Name() string
	Persona() string
	Greeting() string
	ToolNames() []string
	HandlerFor(name string) (ToolHandler, bool)
	ToolInfos() []*schema.ToolInfo
	Invoke(ctx context.Context, name string, owner Owner, rawInput string) ToolResult
	Clarify(result ToolResult) string
	Degraded(outcome Outcome, completed []ToolCallRecord) string
}

// History is the conversation state protocol used by the orchestrator.
type History interface {
	Resolve(ctx context.Context, owner Owner, conversationID string, adapter string) (Conversation, error)
	LoadRecent(ctx context.Context, conv Conversation, limit int) ([]Turn, error)
	Commit(ctx context.Context, conv Conversation, turns ...Turn) error
}

type RateLimiter interface {
	Allow(ctx context.Context, owner Owner) error
}

// AuditRecord is the published form of a ToolCallRecord.
type AuditRecord struct {
	Owner          string         `json:"owner"`
	ConversationID string         `json:"conversation_id"`
	Adapter        string         `json:"adapter"`
	Tool           string         `json:"tool"`
	Input          map[string]any `json:"input"`
	Status         ToolStatus     `json:"status"`
	ErrorCode      ErrorKind      `json:"error_code,omitempty"`
	At             time.Time      `json:"at"`
}

type AuditSink interface {
	Publish(ctx context.Context, rec AuditRecord) error
}

// ModelProvider returns the chat model configured for an adapter.
type ModelProvider interface {
	ModelFor(adapter string) (einomodel.ToolCallingChatModel, error)
}
