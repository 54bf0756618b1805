package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	toolx "github.com/tanpawarit/Chative-Task-Agent/agent/tool"
)

// Catalog is the tool registry an adapter draws its tools from.
type Catalog interface {
	Lookup(name string) (toolx.Definition, bool)
	ToolInfo(name string) (*schema.ToolInfo, bool)
	Invoke(ctx context.Context, name string, owner contractx.Owner, rawInput string) contractx.ToolResult
}

type Config struct {
	Name     string
	Persona  string
	Greeting string
	Tools    []string
	Catalog  Catalog
}

// Adapter binds a persona to a closed, ordered subset of the catalog.
type Adapter struct {
	name     string
	persona  string
	greeting string
	tools    []string
	handlers map[string]contractx.ToolHandler
	infos    []*schema.ToolInfo
	catalog  Catalog
}

var _ contractx.Adapter = (*Adapter)(nil)

// New checks that every advertised tool has exactly one handler. A mismatch
// is reported here so it can never surface mid-conversation.
func New(cfg Config) (*Adapter, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("adapter name is required")
	}
	if strings.TrimSpace(cfg.Persona) == "" {
		return nil, fmt.Errorf("adapter %s: %w", name, contractx.ErrPromptMissing)
	}
	if cfg.Catalog == nil && len(cfg.Tools) > 0 {
		return nil, fmt.Errorf("adapter %s: catalog is required", name)
	}

	a := &Adapter{
		name:     name,
		persona:  strings.TrimSpace(cfg.Persona),
		greeting: strings.TrimSpace(cfg.Greeting),
		tools:    make([]string, 0, len(cfg.Tools)),
		handlers: make(map[string]contractx.ToolHandler, len(cfg.Tools)),
		infos:    make([]*schema.ToolInfo, 0, len(cfg.Tools)),
		catalog:  cfg.Catalog,
	}
	for _, toolName := range cfg.Tools {
		if _, dup := a.handlers[toolName]; dup {
			return nil, fmt.Errorf("adapter %s: tool %s advertised twice", name, toolName)
		}
		def, ok := cfg.Catalog.Lookup(toolName)
		if !ok || def.Handler == nil {
			return nil, fmt.Errorf("adapter %s: tool %s has no handler", name, toolName)
		}
		info, ok := cfg.Catalog.ToolInfo(toolName)
		if !ok {
			return nil, fmt.Errorf("adapter %s: tool %s has no schema", name, toolName)
		}
		a.tools = append(a.tools, toolName)
		a.handlers[toolName] = def.Handler
		a.infos = append(a.infos, info)
	}
	return a, nil
}

func (a *Adapter) Name() string     { return a.name }
func (a *Adapter) Persona() string  { return a.persona }
func (a *Adapter) Greeting() string { return a.greeting }

func (a *Adapter) ToolNames() []string {
	return append([]string(nil), a.tools...)
}

func (a *Adapter) HandlerFor(name string) (contractx.ToolHandler, bool) {
	h, ok := a.handlers[name]
	return h, ok
}

func (a *Adapter) ToolInfos() []*schema.ToolInfo {
	return append([]*schema.ToolInfo(nil), a.infos...)
}

// Invoke runs a tool through the catalog after checking it belongs to this
// adapter. Tools outside the advertised set are a validation error.
func (a *Adapter) Invoke(ctx context.Context, name string, owner contractx.Owner, rawInput string) contractx.ToolResult {
	if _, ok := a.handlers[name]; !ok {
		return contractx.ToolResult{
			Tool:      name,
			Status:    contractx.ToolStatusError,
			ErrorCode: contractx.KindValidation,
			Message:   fmt.Sprintf("unknown tool %q; available tools are %s", name, strings.Join(a.tools, ", ")),
		}
	}
	return a.catalog.Invoke(ctx, name, owner, rawInput)
}

// Clarify turns an ambiguous result into the question put to the user.
func (a *Adapter) Clarify(result contractx.ToolResult) string {
	data, _ := result.Data.(map[string]any)
	candidates, _ := data["candidates"].([]contractx.Candidate)
	if len(candidates) == 0 {
		if result.Message != "" {
			return fmt.Sprintf("I am not sure what you meant (%s). Could you be more specific?", result.Message)
		}
		return "I am not sure what you meant. Could you be more specific?"
	}

	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, fmt.Sprintf("#%d %q", c.ID, c.Title))
	}
	query, _ := data["query"].(string)
	if query == "" {
		return fmt.Sprintf("Several items match: %s. Which one did you mean?", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("Several items match %q: %s. Which one did you mean?", query, strings.Join(parts, ", "))
}

// Degraded is the answer given when a run ends without a model reply.
func (a *Adapter) Degraded(outcome contractx.Outcome, completed []contractx.ToolCallRecord) string {
	var head string
	switch outcome {
	case contractx.OutcomeRoundLimit:
		head = "I could not complete this request."
	case contractx.OutcomeUpstreamFailure:
		head = "I am having trouble answering right now. Please try again in a moment."
	case contractx.OutcomeCancelled:
		head = "The request was cancelled."
	default:
		head = "Something went wrong. Please try again."
	}
	if done := Summarize(completed); done != "" {
		return head + " " + done
	}
	return head
}

// Summarize lists the successful operations of a run in plain words.
func Summarize(calls []contractx.ToolCallRecord) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		if c.Result.OK() {
			names = append(names, c.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "Completed operations: " + strings.Join(names, ", ") + "."
}
