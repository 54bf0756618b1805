package orchestratornode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

// PersistTurns writes the user message and the reply in one transaction. It
// runs detached from the caller's cancellation so a run whose tools already
// committed is always reflected in the history.
func PersistTurns(ctx context.Context, in *GraphState, history contractx.History, timeout time.Duration) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return nil, fmt.Errorf("%w: reply is empty", contractx.ErrValidation)
	}

	pctx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(pctx, timeout)
		defer cancel()
	}

	err := history.Commit(pctx, in.Conversation,
		contractx.Turn{Role: contractx.RoleUser, Content: in.Request.Message},
		contractx.Turn{Role: contractx.RoleAgent, Content: reply},
	)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("conversation_id", in.Conversation.ID).
			Int("tool_calls", len(in.ToolCalls)).
			Msg("persist turns failed")
		return nil, err
	}
	in.Conversation.IsNew = false
	in.Conversation.Version += 2
	return in, nil
}
