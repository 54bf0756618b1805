package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

const MaxMessageLength = 4000

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
	ErrMissingAdapter = errors.New("adapter is required")
)

type GraphInput struct {
	Request contractx.Request
	Adapter contractx.Adapter
}

type GraphOutput = contractx.Response

// GraphState is rebuilt for every request and discarded once the reply is
// produced.
type GraphState struct {
	Request contractx.Request
	Adapter contractx.Adapter
	Now     time.Time

	Conversation contractx.Conversation
	History      []contractx.Turn

	Reply     string
	ToolCalls []contractx.ToolCallRecord
	Outcome   contractx.Outcome
	Rounds    int
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	if in.Adapter == nil {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrMissingAdapter)
	}
	if in.Request.Owner.IsZero() {
		return nil, fmt.Errorf("%w: owner identity is required", contractx.ErrValidation)
	}

	text := strings.TrimSpace(in.Request.Message)
	if text == "" {
		return nil, fmt.Errorf("%w: %w", contractx.ErrValidation, ErrInvalidMessage)
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return nil, fmt.Errorf("%w: %w: %d characters, limit %d", contractx.ErrValidation, ErrMessageTooLong, n, MaxMessageLength)
	}

	req := in.Request
	req.Message = text
	req.ConversationID = strings.TrimSpace(req.ConversationID)

	return &GraphState{
		Request:   req,
		Adapter:   in.Adapter,
		Now:       nowFn().UTC(),
		ToolCalls: []contractx.ToolCallRecord{},
	}, nil
}
