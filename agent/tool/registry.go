package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/kaptinlin/jsonschema"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

const CatalogVersion = "v1"

const (
	defaultReadRetries = 2
	defaultReadBackoff = 50 * time.Millisecond
)

// Definition is everything the registry needs to expose and run a tool.
type Definition struct {
	Name        string
	Description string
	Schema      Schema
	ReadOnly    bool
	Handler     contractx.ToolHandler
}

type entry struct {
	def      Definition
	compiled *jsonschema.Schema
	info     *schema.ToolInfo
}

// Registry is a versioned catalog of tools. It validates raw model input
// against each tool's schema and turns every handler outcome into a
// contract.ToolResult.
type Registry struct {
	mu          sync.RWMutex
	version     string
	tools       map[string]*entry
	readRetries uint64
	readBackoff time.Duration
}

type Option func(*Registry)

func WithVersion(v string) Option {
	return func(r *Registry) { r.version = v }
}

// WithReadRetry sets how often a read-only tool is retried after a store failure.
func WithReadRetry(retries uint64, backoff time.Duration) Option {
	return func(r *Registry) {
		r.readRetries = retries
		r.readBackoff = backoff
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		version:     CatalogVersion,
		tools:       make(map[string]*entry),
		readRetries: defaultReadRetries,
		readBackoff: defaultReadBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(def Definition) error {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return errors.New("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}
	compiled, err := def.Schema.compile()
	if err != nil {
		return fmt.Errorf("tool %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s: already registered", def.Name)
	}
	r.tools[def.Name] = &entry{
		def:      def,
		compiled: compiled,
		info: &schema.ToolInfo{
			Name:        def.Name,
			Desc:        def.Schema.toolDesc(def.Description),
			ParamsOneOf: def.Schema.params(),
		},
	}
	return nil
}

func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Version() string { return r.version }

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	e, ok := r.get(name)
	if !ok {
		return Definition{}, false
	}
	return e.def, true
}

func (r *Registry) ToolInfo(name string) (*schema.ToolInfo, bool) {
	e, ok := r.get(name)
	if !ok {
		return nil, false
	}
	return e.info, true
}

func (r *Registry) get(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// Invoke validates rawInput and runs the named tool for owner. It never
// returns a Go error: every failure is reported as a structured result.
func (r *Registry) Invoke(ctx context.Context, name string, owner contractx.Owner, rawInput string) contractx.ToolResult {
	e, ok := r.get(name)
	if !ok {
		return failure(name, contractx.KindValidation, fmt.Sprintf("unknown tool %q", name))
	}
	if owner.IsZero() {
		return failure(name, contractx.KindValidation, "owner identity is required")
	}

	input, err := decodeInput(rawInput)
	if err != nil {
		return failure(name, contractx.KindValidation, err.Error())
	}
	if res := e.compiled.Validate(map[string]any(input)); !res.Valid {
		return failure(name, contractx.KindValidation, e.def.Schema.describe(res, input))
	}

	data, err := r.run(ctx, e, owner, input)
	if err != nil {
		return r.fromError(ctx, name, err)
	}
	return contractx.ToolResult{Tool: name, Status: contractx.ToolStatusOK, Data: data}
}

func (r *Registry) run(ctx context.Context, e *entry, owner contractx.Owner, input contractx.ToolInput) (any, error) {
	if !e.def.ReadOnly || r.readRetries == 0 {
		return e.def.Handler(ctx, owner, input)
	}

	var out any
	backoff := retry.WithMaxRetries(r.readRetries, retry.NewExponential(r.readBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := e.def.Handler(ctx, owner, input)
		if err != nil {
			if errors.Is(err, contractx.ErrStore) && !contractx.IsCancellation(err) {
				zerolog.Ctx(ctx).Debug().Err(err).Str("tool", e.def.Name).Msg("retrying read-only tool")
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (r *Registry) fromError(ctx context.Context, name string, err error) contractx.ToolResult {
	kind := contractx.KindOf(err)
	switch kind {
	case contractx.KindValidation, contractx.KindNotFound:
		return failure(name, kind, publicMessage(err))
	case contractx.KindAmbiguous:
		res := failure(name, kind, publicMessage(err))
		var amb *contractx.AmbiguityError
		if errors.As(err, &amb) {
			res.Data = map[string]any{"query": amb.Query, "candidates": amb.Candidates}
		}
		return res
	default:
		zerolog.Ctx(ctx).Error().Err(err).Str("tool", name).Msg("tool failed")
		return failure(name, contractx.KindStore, "the operation could not be completed, please try again")
	}
}

func failure(name string, kind contractx.ErrorKind, msg string) contractx.ToolResult {
	return contractx.ToolResult{
		Tool:      name,
		Status:    contractx.ToolStatusError,
		ErrorCode: kind,
		Message:   msg,
	}
}

func decodeInput(raw string) (contractx.ToolInput, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return contractx.ToolInput{}, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("arguments must be a JSON object")
	}
	return contractx.ToolInput(obj), nil
}

// publicMessage strips the sentinel prefix so the model sees only the detail.
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{contractx.ErrValidation, contractx.ErrNotFound} {
		msg = strings.TrimPrefix(msg, sentinel.Error()+": ")
	}
	return msg
}
