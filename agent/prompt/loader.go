package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

var (
	//go:embed template/tasks.txt
	tasksRaw string

	//go:embed template/account.txt
	accountRaw string

	//go:embed template/writing.txt
	writingRaw string
)

// PromptSet holds the persona of every built-in adapter.
type PromptSet struct {
	Tasks   string
	Account string
	Writing string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Tasks:   strings.TrimSpace(tasksRaw),
		Account: strings.TrimSpace(accountRaw),
		Writing: strings.TrimSpace(writingRaw),
	}
}

// Persona returns the prompt registered under an adapter name.
func (p PromptSet) Persona(adapter string) (string, error) {
	var out string
	switch adapter {
	case contractx.AdapterTasks:
		out = p.Tasks
	case contractx.AdapterAccount:
		out = p.Account
	case contractx.AdapterWriting:
		out = p.Writing
	}
	if out == "" {
		return "", fmt.Errorf("%w: persona for adapter %q", contractx.ErrPromptMissing, adapter)
	}
	return out, nil
}
