package llm

import (
	"context"
	"errors"
	"reflect"
	"testing"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

func TestOpenRouterForOverrides(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:             "k",
		Model:              "base/model",
		Temperature:        0.3,
		MaxCompletionToken: 500,
		TasksModel:         "tasks/model",
		TasksTemperature:   -1,
		AccountTemperature: 0,
		WritingTemperature: -1,
	}

	tasks := cfg.OpenRouterFor("tasks")
	if tasks.Model != "tasks/model" || tasks.Temperature != 0.3 {
		t.Fatalf("unexpected tasks config: %+v", tasks)
	}
	account := cfg.OpenRouterFor("account")
	if account.Model != "base/model" || account.Temperature != 0 {
		t.Fatalf("unexpected account config: %+v", account)
	}
	if *account.MaxCompletionToken != 500 {
		t.Fatalf("unexpected max tokens %d", *account.MaxCompletionToken)
	}

	got := cfg.ModelNames("tasks", "account", "writing")
	if !reflect.DeepEqual(got, []string{"base/model", "tasks/model"}) {
		t.Fatalf("unexpected model names: %v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := (Config{Model: "m"}).Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := (Config{APIKey: "k", Model: "m"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestModelSet(t *testing.T) {
	t.Parallel()

	cfg := Config{APIKey: "k", Model: "base/model", TasksModel: "tasks/model", TasksTemperature: -1, AccountTemperature: -1, WritingTemperature: -1}
	set, err := NewModelSet(context.Background(), cfg, "tasks", "account")
	if err != nil {
		t.Fatalf("NewModelSet() error = %v", err)
	}
	tasks, _ := set.ModelFor("tasks")
	account, _ := set.ModelFor("account")
	other, _ := set.ModelFor("unknown")
	if tasks == nil || account == nil || other == nil {
		t.Fatal("expected a model for every adapter")
	}
	if account != other {
		t.Fatal("adapters without overrides share the default model")
	}

	empty := StaticModelSet(nil)
	if _, err := empty.ModelFor("tasks"); !errors.Is(err, contractx.ErrUpstreamModel) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
