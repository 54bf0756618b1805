package tool

import (
	"context"
	"strings"
	"unicode/utf8"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Task-Agent/agent/store"
)

const (
	ToolWhoAmI          = "whoami"
	ToolAccountOverview = "account_overview"
	ToolCountWords      = "count_words"
)

const maxTextLength = 20000

type AccountStore interface {
	AccountOverview(ctx context.Context, ownerID string) (store.AccountOverview, error)
}

func AccountTools(s AccountStore) []Definition {
	return []Definition{
		{
			Name:        ToolWhoAmI,
			Description: "Return the identity the user is signed in as.",
			ReadOnly:    true,
			Handler: func(_ context.Context, owner contractx.Owner, _ contractx.ToolInput) (any, error) {
				return map[string]any{"owner": owner.ID(), "authenticated": true}, nil
			},
		},
		{
			Name:        ToolAccountOverview,
			Description: "Summarize the user's account: pending and completed tasks and conversations.",
			ReadOnly:    true,
			Handler: func(ctx context.Context, owner contractx.Owner, _ contractx.ToolInput) (any, error) {
				overview, err := s.AccountOverview(ctx, owner.ID())
				if err != nil {
					return nil, err
				}
				return map[string]any{"owner": owner.ID(), "overview": overview}, nil
			},
		},
	}
}

func WritingTools() []Definition {
	return []Definition{
		{
			Name:        ToolCountWords,
			Description: "Count the words and characters of a piece of text.",
			Schema: Schema{Fields: []Field{
				{Name: "text", Type: TypeString, Desc: "Text to measure", Required: true, MaxLength: maxTextLength},
			}},
			ReadOnly: true,
			Handler: func(_ context.Context, _ contractx.Owner, in contractx.ToolInput) (any, error) {
				text, _ := in.String("text")
				return map[string]any{
					"words":      len(strings.Fields(text)),
					"characters": utf8.RuneCountInString(text),
				}, nil
			},
		},
	}
}
