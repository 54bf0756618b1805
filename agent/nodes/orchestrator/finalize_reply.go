package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: reply is empty", contractx.ErrValidation)
	}
	return GraphOutput{
		ConversationID: in.Conversation.ID,
		Reply:          reply,
		ToolCalls:      in.ToolCalls,
		Outcome:        in.Outcome,
		Degraded:       in.Outcome == contractx.OutcomeRoundLimit || in.Outcome == contractx.OutcomeUpstreamFailure,
		Rounds:         in.Rounds,
	}, nil
}
