package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

// CheckRateLimit consumes one unit of the owner's quota. A nil limiter
// admits everything.
func CheckRateLimit(ctx context.Context, in *GraphState, limiter contractx.RateLimiter) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if limiter == nil {
		return in, nil
	}
	if err := limiter.Allow(ctx, in.Request.Owner); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("owner", in.Request.Owner.ID()).Msg("request rejected by rate limiter")
		return nil, err
	}
	return in, nil
}
