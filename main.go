package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	adapterx "github.com/tanpawarit/Chative-Task-Agent/agent/adapter"
	orchestratorx "github.com/tanpawarit/Chative-Task-Agent/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Task-Agent/agent/audit"
	"github.com/tanpawarit/Chative-Task-Agent/agent/llm"
	promptx "github.com/tanpawarit/Chative-Task-Agent/agent/prompt"
	"github.com/tanpawarit/Chative-Task-Agent/agent/ratelimit"
	statex "github.com/tanpawarit/Chative-Task-Agent/agent/state"
	"github.com/tanpawarit/Chative-Task-Agent/agent/store"
	toolx "github.com/tanpawarit/Chative-Task-Agent/agent/tool"
	configx "github.com/tanpawarit/Chative-Task-Agent/pkg/config"
	_ "github.com/tanpawarit/Chative-Task-Agent/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/Chative-Task-Agent/pkg/openrouter"
	qstashx "github.com/tanpawarit/Chative-Task-Agent/pkg/qstash"
	serverx "github.com/tanpawarit/Chative-Task-Agent/pkg/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	appCfg := configx.MustNew[serverx.Config]("APP")
	authCfg := configx.MustNew[serverx.AuthConfig]("AUTH")
	llmCfg := configx.MustNew[llm.Config]("LLM")
	agentCfg := configx.MustNew[orchestratorx.Config]("AGENT")
	dbCfg := configx.MustNew[store.Config]("DB")
	limitCfg := configx.MustNew[ratelimit.Config]("RATE_LIMIT")
	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	db, err := store.Open(*dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	taskStore := store.New(db)

	catalog, err := toolx.NewCatalog(taskStore)
	if err != nil {
		return err
	}
	adapters, err := adapterx.Builtin(catalog, promptx.LoadPromptSet(), appCfg.DefaultAdapter)
	if err != nil {
		return err
	}

	models, err := llm.NewModelSet(ctx, *llmCfg, adapters.Names()...)
	if err != nil {
		return err
	}
	if llmCfg.Preflight {
		client := openrouterx.NewClient(llmCfg.OpenRouterFor(""))
		if err := openrouterx.Preflight(ctx, client, llmCfg.ModelNames(adapters.Names()...)...); err != nil {
			log.Warn().Err(err).Msg("model preflight failed")
		}
	}

	var redisClient redis.UniversalClient
	if limitCfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(limitCfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis is not reachable yet")
		}
		redisClient = client
	}
	limiter, err := ratelimit.New(*limitCfg, redisClient)
	if err != nil {
		return err
	}

	sink, err := audit.FromConfig(*qstashCfg)
	if err != nil {
		return err
	}

	manager, err := statex.NewManager(taskStore, statex.WithHistoryLimit(agentCfg.HistoryLimit))
	if err != nil {
		return err
	}
	orch, err := orchestratorx.New(manager, models, limiter, sink, *agentCfg)
	if err != nil {
		return err
	}

	handler, err := serverx.New(*appCfg, *authCfg, serverx.Deps{
		Orchestrator:  orch,
		Conversations: manager,
		Adapters:      adapters,
		Health:        taskStore.Ping,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: appCfg.Addr, Handler: handler}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", appCfg.Addr).Strs("adapters", adapters.Names()).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), appCfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
