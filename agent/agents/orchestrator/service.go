package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/tanpawarit/Chative-Task-Agent/agent/audit"
	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	nodex "github.com/tanpawarit/Chative-Task-Agent/agent/nodes/orchestrator"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrMessageTooLong = nodex.ErrMessageTooLong
	ErrMissingAdapter = nodex.ErrMissingAdapter
)

const (
	DefaultMaxRounds = 6
	MaxRoundsCeiling = 8
)

type Config struct {
	MaxRounds      int           `envconfig:"MAX_ROUNDS" split_words:"true" default:"6"`
	HistoryLimit   int           `envconfig:"HISTORY_LIMIT" split_words:"true" default:"50"`
	ModelTimeout   time.Duration `envconfig:"MODEL_TIMEOUT" split_words:"true" default:"30s"`
	ModelRetries   uint64        `envconfig:"MODEL_RETRIES" split_words:"true" default:"2"`
	BackoffBase    time.Duration `envconfig:"BACKOFF_BASE" split_words:"true" default:"250ms"`
	BackoffMax     time.Duration `envconfig:"BACKOFF_MAX" split_words:"true" default:"4s"`
	ToolTimeout    time.Duration `envconfig:"TOOL_TIMEOUT" split_words:"true" default:"15s"`
	AuditTimeout   time.Duration `envconfig:"AUDIT_TIMEOUT" split_words:"true" default:"2s"`
	PersistTimeout time.Duration `envconfig:"PERSIST_TIMEOUT" split_words:"true" default:"10s"`
}

func (c Config) Validate() error {
	if c.MaxRounds < 1 || c.MaxRounds > MaxRoundsCeiling {
		return fmt.Errorf("%w: max rounds must be within 1..%d, got %d", contractx.ErrValidation, MaxRoundsCeiling, c.MaxRounds)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("%w: history limit must not be negative", contractx.ErrValidation)
	}
	if c.ModelTimeout < 0 || c.ToolTimeout < 0 || c.BackoffBase < 0 || c.BackoffMax < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", contractx.ErrValidation)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.ModelTimeout == 0 {
		c.ModelTimeout = 30 * time.Second
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = 4 * time.Second
	}
	return c
}

// Orchestrator runs one bounded tool-calling loop per request. It holds no
// conversation state; everything is loaded from History on each call.
type Orchestrator struct {
	history contractx.History
	models  contractx.ModelProvider
	limiter contractx.RateLimiter
	audit   contractx.AuditSink
	cfg     Config

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	history contractx.History,
	models contractx.ModelProvider,
	limiter contractx.RateLimiter,
	sink contractx.AuditSink,
	cfg Config,
) (*Orchestrator, error) {
	if history == nil {
		return nil, errors.New("conversation history is required")
	}
	if models == nil {
		return nil, errors.New("model provider is required")
	}
	if sink == nil {
		sink = audit.Noop{}
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		history: history,
		models:  models,
		limiter: limiter,
		audit:   sink,
		cfg:     cfg,
		now:     time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one orchestration cycle for req under adapter. Upstream
// model failures and runaway loops produce a degraded reply, not an error.
func (o *Orchestrator) HandleMessage(ctx context.Context, req contractx.Request, adapter contractx.Adapter) (contractx.Response, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		Request: req,
		Adapter: adapter,
	})
	if err != nil {
		return contractx.Response{}, err
	}
	return out, nil
}
