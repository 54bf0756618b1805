package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Task-Agent/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
	Preflight          bool          `envconfig:"PREFLIGHT" split_words:"true" default:"true"`

	TasksModel         string  `envconfig:"TASKS_MODEL" split_words:"true"`
	AccountModel       string  `envconfig:"ACCOUNT_MODEL" split_words:"true"`
	WritingModel       string  `envconfig:"WRITING_MODEL" split_words:"true"`
	TasksTemperature   float32 `envconfig:"TASKS_TEMPERATURE" split_words:"true" default:"-1"`
	AccountTemperature float32 `envconfig:"ACCOUNT_TEMPERATURE" split_words:"true" default:"-1"`
	WritingTemperature float32 `envconfig:"WRITING_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the model settings of one adapter. Per-adapter
// overrides fall back to the defaults; a negative temperature means unset.
func (c Config) OpenRouterFor(adapter string) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}
	switch adapter {
	case contractx.AdapterTasks:
		override(c.TasksModel, c.TasksTemperature)
	case contractx.AdapterAccount:
		override(c.AccountModel, c.AccountTemperature)
	case contractx.AdapterWriting:
		override(c.WritingModel, c.WritingTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// ModelNames returns the distinct model ids used by adapters.
func (c Config) ModelNames(adapters ...string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(adapters)+1)
	for _, a := range append([]string{""}, adapters...) {
		name := c.OpenRouterFor(a).Model
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ModelSet maps adapter names to chat models.
type ModelSet struct {
	byAdapter map[string]model.ToolCallingChatModel
	fallback  model.ToolCallingChatModel
}

var _ contractx.ModelProvider = (*ModelSet)(nil)

func NewModelSet(ctx context.Context, cfg Config, adapters ...string) (*ModelSet, error) {
	defaults := cfg.OpenRouterFor("")
	fallback, err := defaults.New(ctx)
	if err != nil {
		return nil, err
	}
	set := &ModelSet{byAdapter: make(map[string]model.ToolCallingChatModel, len(adapters)), fallback: fallback}
	for _, a := range adapters {
		orc := cfg.OpenRouterFor(a)
		if orc.Model == defaults.Model && orc.Temperature == defaults.Temperature {
			set.byAdapter[a] = fallback
			continue
		}
		m, err := orc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("model for adapter %s: %w", a, err)
		}
		set.byAdapter[a] = m
	}
	return set, nil
}

// StaticModelSet serves the same model to every adapter.
func StaticModelSet(m model.ToolCallingChatModel) *ModelSet {
	return &ModelSet{byAdapter: map[string]model.ToolCallingChatModel{}, fallback: m}
}

func (s *ModelSet) ModelFor(adapter string) (model.ToolCallingChatModel, error) {
	if m, ok := s.byAdapter[adapter]; ok {
		return m, nil
	}
	if s.fallback == nil {
		return nil, fmt.Errorf("%w: no model configured for adapter %q", contractx.ErrUpstreamModel, adapter)
	}
	return s.fallback, nil
}
