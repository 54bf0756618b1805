package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	nodex "github.com/tanpawarit/Chative-Task-Agent/agent/nodes/orchestrator"
)

type loopState int

const (
	stateAwaitingModel loopState = iota
	stateToolDispatch
	stateDone
)

func (s loopState) String() string {
	switch s {
	case stateAwaitingModel:
		return "AWAITING_MODEL"
	case stateToolDispatch:
		return "TOOL_DISPATCH"
	default:
		return "DONE"
	}
}

// runLoop drives AWAITING_MODEL -> {TOOL_DISPATCH -> AWAITING_MODEL}* -> DONE.
// in.Rounds counts dispatch rounds and is the only loop counter.
func (o *Orchestrator) runLoop(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	logger := zerolog.Ctx(ctx).With().
		Str("owner", in.Request.Owner.ID()).
		Str("conversation_id", in.Conversation.ID).
		Str("adapter", in.Adapter.Name()).
		Logger()
	ctx = logger.WithContext(ctx)

	chat, err := o.bindTools(in.Adapter)
	if err != nil {
		logger.Error().Err(err).Msg("model unavailable")
		return o.degrade(in, contractx.OutcomeUpstreamFailure), nil
	}

	msgs := nodex.BuildPrompt(in)
	state := stateAwaitingModel
	var pending *schema.Message

	for state != stateDone {
		switch state {
		case stateAwaitingModel:
			if err := ctx.Err(); err != nil {
				return o.cancelled(ctx, in, err)
			}
			msg, err := o.generate(ctx, chat, msgs)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return o.cancelled(ctx, in, ctxErr)
				}
				logger.Error().Err(err).Int("round", in.Rounds).Msg("model call failed")
				o.degrade(in, contractx.OutcomeUpstreamFailure)
				state = stateDone
				continue
			}
			if len(msg.ToolCalls) == 0 {
				in.Reply = strings.TrimSpace(msg.Content)
				in.Outcome = contractx.OutcomeCompleted
				state = stateDone
				continue
			}
			if in.Rounds >= o.cfg.MaxRounds {
				logger.Warn().Int("rounds", in.Rounds).Msg("round bound reached")
				o.degrade(in, contractx.OutcomeRoundLimit)
				state = stateDone
				continue
			}
			in.Rounds++
			pending = msg
			state = stateToolDispatch

		case stateToolDispatch:
			batch := nodex.DispatchTools(ctx, in, pending.ToolCalls, o.audit, o.cfg.ToolTimeout, o.cfg.AuditTimeout)
			in.ToolCalls = append(in.ToolCalls, batch.Records...)
			msgs = append(msgs, pending)
			msgs = append(msgs, batch.Messages...)
			pending = nil

			if batch.Clarify != "" {
				in.Reply = batch.Clarify
				in.Outcome = contractx.OutcomeClarification
				state = stateDone
				continue
			}
			state = stateAwaitingModel
		}
	}

	logger.Info().
		Str("outcome", string(in.Outcome)).
		Int("rounds", in.Rounds).
		Int("tool_calls", len(in.ToolCalls)).
		Msg("orchestration finished")
	return in, nil
}

func (o *Orchestrator) bindTools(adapter contractx.Adapter) (einomodel.ToolCallingChatModel, error) {
	chat, err := o.models.ModelFor(adapter.Name())
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fmt.Errorf("%w: no model for adapter %s", contractx.ErrUpstreamModel, adapter.Name())
	}
	bound, err := chat.WithTools(adapter.ToolInfos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for adapter=%s: %v", contractx.ErrModelInvoke, adapter.Name(), err)
	}
	return bound, nil
}

// generate is the retry sub-state of AWAITING_MODEL: each attempt gets its own
// timeout, failures back off exponentially up to ModelRetries extra attempts.
func (o *Orchestrator) generate(ctx context.Context, chat einomodel.BaseChatModel, msgs []*schema.Message) (*schema.Message, error) {
	backoff := retry.NewExponential(o.cfg.BackoffBase)
	backoff = retry.WithCappedDuration(o.cfg.BackoffMax, backoff)
	backoff = retry.WithMaxRetries(o.cfg.ModelRetries, backoff)

	var (
		out     *schema.Message
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, o.cfg.ModelTimeout)
		defer cancel()

		msg, err := chat.Generate(actx, msgs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zerolog.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Msg("model attempt failed")
			return retry.RetryableError(fmt.Errorf("%w: %v", contractx.ErrUpstreamModel, err))
		}
		if msg == nil || (len(msg.ToolCalls) == 0 && strings.TrimSpace(msg.Content) == "") {
			zerolog.Ctx(ctx).Warn().Int("attempt", attempt).Msg("model returned an empty message")
			return retry.RetryableError(fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation))
		}
		out = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) degrade(in *nodex.GraphState, outcome contractx.Outcome) *nodex.GraphState {
	in.Outcome = outcome
	in.Reply = in.Adapter.Degraded(outcome, in.ToolCalls)
	return in
}

// cancelled ends a run whose caller went away. Turns are only written when a
// tool already committed, so the next load reflects those operations; a run
// that changed nothing leaves the conversation untouched.
func (o *Orchestrator) cancelled(ctx context.Context, in *nodex.GraphState, cause error) (*nodex.GraphState, error) {
	o.degrade(in, contractx.OutcomeCancelled)
	zerolog.Ctx(ctx).Info().Int("tool_calls", len(in.ToolCalls)).Msg("request cancelled before completion")
	if len(in.ToolCalls) > 0 {
		if _, err := nodex.PersistTurns(ctx, in, o.history, o.cfg.PersistTimeout); err != nil {
			return nil, errors.Join(cause, err)
		}
	}
	return nil, cause
}
