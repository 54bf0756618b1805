package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Owner is the authenticated principal every data access is scoped by.
// The zero value is not a valid owner; build one with NewOwner.
type Owner struct {
	id string
}

func NewOwner(id string) (Owner, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Owner{}, fmt.Errorf("%w: owner identity is required", ErrValidation)
	}
	return Owner{id: id}, nil
}

// MustOwner is NewOwner for identities already verified by the caller.
func MustOwner(id string) Owner {
	o, err := NewOwner(id)
	if err != nil {
		panic(err)
	}
	return o
}

func (o Owner) ID() string     { return o.id }
func (o Owner) IsZero() bool   { return o.id == "" }
func (o Owner) String() string { return o.id }

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one message of a conversation as the orchestrator sees it.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Names of the built-in adapters.
const (
	AdapterTasks   = "tasks"
	AdapterAccount = "account"
	AdapterWriting = "writing"
)

// Conversation identifies the conversation a run appends to. Version is the
// number of turns stored when it was resolved.
type Conversation struct {
	ID      string `json:"id"`
	Owner   Owner  `json:"-"`
	Adapter string `json:"adapter"`
	IsNew   bool   `json:"-"`
	Version int64  `json:"-"`
}

// ConversationSummary describes one stored conversation of an owner.
type ConversationSummary struct {
	ID        string    `json:"conversation_id"`
	Adapter   string    `json:"adapter"`
	Turns     int64     `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolResult is the structured outcome of one tool invocation.
type ToolResult struct {
	Tool      string     `json:"-"`
	Status    ToolStatus `json:"status"`
	Data      any        `json:"data,omitempty"`
	ErrorCode ErrorKind  `json:"error_code,omitempty"`
	Message   string     `json:"message,omitempty"`
}

func (r ToolResult) OK() bool { return r.Status == ToolStatusOK }

// JSON renders the result as the payload handed back to the model.
func (r ToolResult) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"status":"error","error_code":"store_error","message":"result could not be encoded"}`
	}
	return string(b)
}

// ToolCallRecord is the ephemeral record of one invocation within a run.
type ToolCallRecord struct {
	CallID string         `json:"-"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Result ToolResult     `json:"result"`
}

// ToolInput is the schema-validated argument object of a tool call.
type ToolInput map[string]any

func (in ToolInput) Has(key string) bool {
	v, ok := in[key]
	return ok && v != nil
}

func (in ToolInput) String(key string) (string, bool) {
	v, ok := in[key].(string)
	return v, ok
}

func (in ToolInput) Bool(key string) (bool, bool) {
	v, ok := in[key].(bool)
	return v, ok
}

func (in ToolInput) Int(key string) (int64, bool) {
	switch v := in[key].(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// Request is one inbound message after authentication.
type Request struct {
	Owner          Owner
	ConversationID string
	Message        string
}

type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeClarification   Outcome = "clarification"
	OutcomeRoundLimit      Outcome = "round_limit"
	OutcomeUpstreamFailure Outcome = "upstream_failure"
	OutcomeCancelled       Outcome = "cancelled"
)

// Response is returned to the inbound layer once a run reaches DONE.
type Response struct {
	ConversationID string           `json:"conversation_id"`
	Reply          string           `json:"response"`
	ToolCalls      []ToolCallRecord `json:"tool_calls"`
	Outcome        Outcome          `json:"outcome"`
	Degraded       bool             `json:"degraded,omitempty"`
	Rounds         int              `json:"rounds"`
}

var errEmptyConversationID = errors.New("conversation id is empty")

// ValidateConversationID rejects blank identifiers before they reach the store.
func ValidateConversationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %v", ErrValidation, errEmptyConversationID)
	}
	return nil
}
