package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

type Config struct {
	Addr            string        `envconfig:"ADDR" split_words:"true" default:":8080"`
	BasePath        string        `envconfig:"BASE_PATH" split_words:"true" default:"/v1"`
	DefaultAdapter  string        `envconfig:"DEFAULT_ADAPTER" split_words:"true" default:"tasks"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" split_words:"true" default:"2m"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"15s"`
}

// Orchestrator runs one message through an adapter.
type Orchestrator interface {
	HandleMessage(ctx context.Context, req contractx.Request, adapter contractx.Adapter) (contractx.Response, error)
}

// Conversations is the slice of the state manager the API exposes.
type Conversations interface {
	Resolve(ctx context.Context, owner contractx.Owner, conversationID string, adapter string) (contractx.Conversation, error)
	Start(ctx context.Context, owner contractx.Owner, adapter contractx.Adapter) (contractx.Conversation, []contractx.Turn, error)
	History(ctx context.Context, owner contractx.Owner, conversationID string, limit int) (contractx.Conversation, []contractx.Turn, error)
	List(ctx context.Context, owner contractx.Owner, limit int) ([]contractx.ConversationSummary, error)
}

type Adapters interface {
	Resolve(name string) (contractx.Adapter, error)
	Names() []string
	Default() contractx.Adapter
}

type Deps struct {
	Orchestrator  Orchestrator
	Conversations Conversations
	Adapters      Adapters
	// Health reports whether backing services are reachable. Optional.
	Health func(ctx context.Context) error
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"rate_limit_exceeded"`
	Message string         `json:"message" example:"too many requests"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the {"error":{code,message}} envelope returned on failure.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

var overrideErrors sync.Once

// New returns the HTTP handler of the agent API.
func New(cfg Config, auth AuthConfig, deps Deps) (http.Handler, error) {
	if deps.Orchestrator == nil || deps.Conversations == nil || deps.Adapters == nil {
		return nil, errors.New("server: orchestrator, conversations and adapters are required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	overrideErrors.Do(func() {
		huma.DefaultArrayNullable = false
		huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
			return newAPIError(status, "", msg, nil)
		}
		huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
			if status == http.StatusUnprocessableEntity {
				status = http.StatusBadRequest
			}
			var details map[string]any
			if len(errs) > 0 {
				details = map[string]any{"errors": errs}
			}
			return newAPIError(status, string(contractx.KindValidation), msg, details)
		}
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	router.Use(newAuthMiddleware(basePath, auth))

	hcfg := huma.DefaultConfig("Chative Task Agent API", "1.0.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group, deps)
	registerAdapters(group, deps)
	registerChat(group, deps)
	registerConversations(group, deps)

	return router, nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := log.Logger.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))
		logger.Info().
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the error taxonomy onto HTTP. Messages stay generic for
// server-side failures; "not found" never says whose resource it was.
func handleError(ctx context.Context, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var rl *contractx.RateLimitError
	if errors.As(err, &rl) {
		return newAPIError(http.StatusTooManyRequests, string(contractx.KindRateLimited),
			"too many requests, please slow down and try again later",
			map[string]any{"limit": rl.Limit, "reset": rl.Reset.UTC().Format(time.RFC3339)})
	}

	switch {
	case errors.Is(err, contractx.ErrValidation):
		return newAPIError(http.StatusBadRequest, string(contractx.KindValidation), publicMessage(err), nil)
	case errors.Is(err, contractx.ErrNotFound):
		return newAPIError(http.StatusNotFound, string(contractx.KindNotFound), "conversation not found", nil)
	case errors.Is(err, contractx.ErrStore):
		zerolog.Ctx(ctx).Error().Err(err).Msg("store failure")
		return newAPIError(http.StatusServiceUnavailable, string(contractx.KindStore), "the service is temporarily unavailable, please try again", nil)
	case contractx.IsCancellation(err), errors.Is(err, context.DeadlineExceeded):
		zerolog.Ctx(ctx).Warn().Err(err).Msg("request ended before completion")
		return newAPIError(http.StatusServiceUnavailable, "request_aborted", "the request did not complete, please try again", nil)
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("unhandled error")
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

func publicMessage(err error) string {
	msg := err.Error()
	return strings.TrimPrefix(msg, contractx.ErrValidation.Error()+": ")
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(contractx.KindValidation)
	case http.StatusNotFound:
		return string(contractx.KindNotFound)
	case http.StatusTooManyRequests:
		return string(contractx.KindRateLimited)
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
		if deps.Health != nil {
			if err := deps.Health(ctx); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("health check failed")
				return nil, newAPIError(http.StatusServiceUnavailable, "unavailable", "dependencies are unavailable", nil)
			}
		}
		return &HealthResponse{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAdapters(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-adapters",
		Method:      http.MethodGet,
		Path:        "/adapters",
		Summary:     "List adapters and the tools they expose",
	}, func(ctx context.Context, _ *struct{}) (*AdaptersResponse, error) {
		if _, authErr := ownerFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		out := &AdaptersResponse{}
		def := deps.Adapters.Default().Name()
		for _, name := range deps.Adapters.Names() {
			a, err := deps.Adapters.Resolve(name)
			if err != nil {
				return nil, handleError(ctx, err)
			}
			out.Body.Adapters = append(out.Body.Adapters, AdapterInfo{
				Name:    name,
				Default: name == def,
				Tools:   a.ToolNames(),
			})
		}
		return out, nil
	})
}

func registerChat(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Send a message to the agent",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *ChatRequest) (*ChatResponse, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}

		conversationID := strings.TrimSpace(input.Body.ConversationID)
		adapterName := strings.TrimSpace(input.Body.Adapter)
		if adapterName == "" && conversationID != "" {
			conv, err := deps.Conversations.Resolve(ctx, owner, conversationID, "")
			if err != nil {
				return nil, handleError(ctx, err)
			}
			adapterName = conv.Adapter
		}
		adapter, err := deps.Adapters.Resolve(adapterName)
		if err != nil {
			return nil, handleError(ctx, err)
		}

		resp, err := deps.Orchestrator.HandleMessage(ctx, contractx.Request{
			Owner:          owner,
			ConversationID: conversationID,
			Message:        input.Body.Message,
		}, adapter)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &ChatResponse{Body: resp}, nil
	})
}

func registerConversations(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-conversation",
		Method:        http.MethodPost,
		Path:          "/conversations",
		Summary:       "Start a conversation with the adapter greeting",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *StartConversationRequest) (*ConversationResponse, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		adapter, err := deps.Adapters.Resolve(strings.TrimSpace(input.Body.Adapter))
		if err != nil {
			return nil, handleError(ctx, err)
		}
		conv, turns, err := deps.Conversations.Start(ctx, owner, adapter)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &ConversationResponse{Body: ConversationBody{
			ConversationID: conv.ID,
			Adapter:        conv.Adapter,
			Messages:       turns,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-conversations",
		Method:      http.MethodGet,
		Path:        "/conversations",
		Summary:     "Conversations of the caller, most recently active first",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *ListConversationsRequest) (*ConversationsResponse, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		convs, err := deps.Conversations.List(ctx, owner, input.Limit)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		resp := &ConversationsResponse{}
		resp.Body.Conversations = convs
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/conversations/{conversation_id}/messages",
		Summary:     "Most recent messages of a conversation, oldest first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *MessagesRequest) (*ConversationResponse, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		conv, turns, err := deps.Conversations.History(ctx, owner, input.ConversationID, input.Limit)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return &ConversationResponse{Body: ConversationBody{
			ConversationID: conv.ID,
			Adapter:        conv.Adapter,
			Messages:       turns,
		}}, nil
	})
}
