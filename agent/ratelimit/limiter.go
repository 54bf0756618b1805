package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

type Config struct {
	Limit    int64         `split_words:"true" default:"30"`
	Period   time.Duration `split_words:"true" default:"1m"`
	RedisURL string        `envconfig:"REDIS_URL" split_words:"true"`
	Prefix   string        `split_words:"true" default:"chative:ratelimit"`
	MaxRetry int           `split_words:"true" default:"3"`
}

func (c Config) Validate() error {
	if c.Limit <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.Period <= 0 {
		return errors.New("rate limit period must be positive")
	}
	return nil
}

// Limiter enforces a per-owner request quota. The counter lives in the
// limiter store, so with Redis it is shared by every process.
type Limiter struct {
	lim *limiter.Limiter
}

var _ contractx.RateLimiter = (*Limiter)(nil)

// New builds a limiter backed by client, or by process memory when client is nil.
func New(cfg Config, client redis.UniversalClient) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := limiter.StoreOptions{
		Prefix:   strings.TrimSpace(cfg.Prefix),
		MaxRetry: cfg.MaxRetry,
	}

	var (
		store limiter.Store
		err   error
	)
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("create redis limiter store: %w", err)
		}
	} else {
		opts.CleanUpInterval = cfg.Period
		store = memory.NewStoreWithOptions(opts)
	}

	rate := limiter.Rate{Period: cfg.Period, Limit: cfg.Limit}
	return &Limiter{lim: limiter.New(store, rate)}, nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Allow counts one request for owner and reports a *contract.RateLimitError
// once the quota for the current period is spent.
func (l *Limiter) Allow(ctx context.Context, owner contractx.Owner) error {
	if owner.IsZero() {
		return fmt.Errorf("%w: owner identity is required", contractx.ErrValidation)
	}
	res, err := l.lim.Get(ctx, owner.ID())
	if err != nil {
		return fmt.Errorf("%w: rate limit lookup: %v", contractx.ErrStore, err)
	}
	if res.Reached {
		return &contractx.RateLimitError{Limit: res.Limit, Reset: time.Unix(res.Reset, 0)}
	}
	return nil
}
