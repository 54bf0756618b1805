package orchestratornode

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

// DispatchResult is one resolved batch of tool calls.
type DispatchResult struct {
	Records  []contractx.ToolCallRecord
	Messages []*schema.Message
	Clarify  string
}

// DispatchTools resolves every call in the batch through the adapter, in
// order. Calls run on a context detached from the caller so a dispatched
// mutation always commits. The first ambiguous result yields the adapter's
// clarifying question; remaining calls in the batch are still resolved.
func DispatchTools(
	ctx context.Context,
	in *GraphState,
	calls []schema.ToolCall,
	audit contractx.AuditSink,
	toolTimeout time.Duration,
	auditTimeout time.Duration,
) DispatchResult {
	out := DispatchResult{
		Records:  make([]contractx.ToolCallRecord, 0, len(calls)),
		Messages: make([]*schema.Message, 0, len(calls)),
	}
	logger := zerolog.Ctx(ctx)

	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		res := invokeDetached(ctx, in, name, call.Function.Arguments, toolTimeout)

		rec := contractx.ToolCallRecord{
			CallID: call.ID,
			Name:   name,
			Input:  decodeArguments(call.Function.Arguments),
			Result: res,
		}
		out.Records = append(out.Records, rec)
		out.Messages = append(out.Messages, schema.ToolMessage(res.JSON(), call.ID))

		ev := logger.Debug()
		if !res.OK() {
			ev = logger.Info().Str("error_code", string(res.ErrorCode))
		}
		ev.Str("tool", name).Int("round", in.Rounds).Str("status", string(res.Status)).Msg("tool call resolved")

		if out.Clarify == "" && res.ErrorCode == contractx.KindAmbiguous {
			out.Clarify = in.Adapter.Clarify(res)
		}
		publishAudit(ctx, in, rec, audit, auditTimeout)
	}
	return out
}

func invokeDetached(ctx context.Context, in *GraphState, name, args string, timeout time.Duration) contractx.ToolResult {
	tctx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(tctx, timeout)
		defer cancel()
	}
	return in.Adapter.Invoke(tctx, name, in.Request.Owner, args)
}

func publishAudit(ctx context.Context, in *GraphState, rec contractx.ToolCallRecord, sink contractx.AuditSink, timeout time.Duration) {
	if sink == nil {
		return
	}
	actx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, timeout)
		defer cancel()
	}
	err := sink.Publish(actx, contractx.AuditRecord{
		Owner:          in.Request.Owner.ID(),
		ConversationID: in.Conversation.ID,
		Adapter:        in.Adapter.Name(),
		Tool:           rec.Name,
		Input:          rec.Input,
		Status:         rec.Result.Status,
		ErrorCode:      rec.Result.ErrorCode,
		At:             in.Now,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("tool", rec.Name).Msg("audit publish failed")
	}
}

// decodeArguments keeps the model's arguments for the call record. Payloads
// that are not a JSON object are kept verbatim under "raw".
func decodeArguments(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}
