package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

// LoadConversation resolves the conversation and reads its bounded history
// from storage. Nothing is carried over from earlier requests.
func LoadConversation(ctx context.Context, in *GraphState, history contractx.History, limit int) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	conv, err := history.Resolve(ctx, in.Request.Owner, in.Request.ConversationID, in.Adapter.Name())
	if err != nil {
		return nil, err
	}
	turns, err := history.LoadRecent(ctx, conv, limit)
	if err != nil {
		return nil, err
	}

	in.Conversation = conv
	in.History = turns
	return in, nil
}
