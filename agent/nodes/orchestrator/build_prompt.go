package orchestratornode

import (
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

// BuildPrompt seeds the model context: persona, bounded history in order,
// then the new user message.
func BuildPrompt(in *GraphState) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(in.History)+2)
	msgs = append(msgs, schema.SystemMessage(in.Adapter.Persona()))
	for _, t := range in.History {
		switch t.Role {
		case contractx.RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case contractx.RoleAgent:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}
	return append(msgs, schema.UserMessage(in.Request.Message))
}
