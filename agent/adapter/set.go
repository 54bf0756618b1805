package adapter

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	promptx "github.com/tanpawarit/Chative-Task-Agent/agent/prompt"
	toolx "github.com/tanpawarit/Chative-Task-Agent/agent/tool"
)

const (
	NameTasks   = contractx.AdapterTasks
	NameAccount = contractx.AdapterAccount
	NameWriting = contractx.AdapterWriting
)

// Set holds the adapters a process serves, keyed by name.
type Set struct {
	byName   map[string]contractx.Adapter
	order    []string
	fallback string
}

func NewSet(defaultName string, adapters ...contractx.Adapter) (*Set, error) {
	s := &Set{byName: make(map[string]contractx.Adapter, len(adapters))}
	for _, a := range adapters {
		if _, dup := s.byName[a.Name()]; dup {
			return nil, fmt.Errorf("adapter %s registered twice", a.Name())
		}
		s.byName[a.Name()] = a
		s.order = append(s.order, a.Name())
	}
	if _, ok := s.byName[defaultName]; !ok {
		return nil, fmt.Errorf("default adapter %q is not registered", defaultName)
	}
	s.fallback = defaultName
	return s, nil
}

func (s *Set) Get(name string) (contractx.Adapter, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// Resolve returns the named adapter, or the default one when name is empty.
func (s *Set) Resolve(name string) (contractx.Adapter, error) {
	if name == "" {
		name = s.fallback
	}
	a, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown adapter %q", contractx.ErrValidation, name)
	}
	return a, nil
}

func (s *Set) Default() contractx.Adapter { return s.byName[s.fallback] }

func (s *Set) Names() []string { return append([]string(nil), s.order...) }

func NewTasks(catalog Catalog, prompts promptx.PromptSet) (*Adapter, error) {
	persona, err := prompts.Persona(NameTasks)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Name:     NameTasks,
		Persona:  persona,
		Greeting: "Hi! I can add, list, complete, rename and delete your tasks. What would you like to do?",
		Tools: []string{
			toolx.ToolAddTask, toolx.ToolListTasks, toolx.ToolCompleteTask,
			toolx.ToolUpdateTask, toolx.ToolDeleteTask,
		},
		Catalog: catalog,
	})
}

func NewAccount(catalog Catalog, prompts promptx.PromptSet) (*Adapter, error) {
	persona, err := prompts.Persona(NameAccount)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Name:     NameAccount,
		Persona:  persona,
		Greeting: "Hello. Ask me who you are signed in as or for a summary of your account.",
		Tools:    []string{toolx.ToolWhoAmI, toolx.ToolAccountOverview},
		Catalog:  catalog,
	})
}

func NewWriting(catalog Catalog, prompts promptx.PromptSet) (*Adapter, error) {
	persona, err := prompts.Persona(NameWriting)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Name:     NameWriting,
		Persona:  persona,
		Greeting: "Hi! Share what you are writing or researching and I will help. I can also note follow-ups as tasks.",
		Tools:    []string{toolx.ToolCountWords, toolx.ToolAddTask, toolx.ToolListTasks},
		Catalog:  catalog,
	})
}

// Builtin assembles the tasks, account and writing adapters.
func Builtin(catalog Catalog, prompts promptx.PromptSet, defaultName string) (*Set, error) {
	builders := []func(Catalog, promptx.PromptSet) (*Adapter, error){NewTasks, NewAccount, NewWriting}
	adapters := make([]contractx.Adapter, 0, len(builders))
	for _, build := range builders {
		a, err := build(catalog, prompts)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, a)
	}
	if defaultName == "" {
		defaultName = NameTasks
	}
	return NewSet(defaultName, adapters...)
}
