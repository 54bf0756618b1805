package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET" split_words:"true" required:"true"`
	Issuer    string `envconfig:"ISSUER" split_words:"true"`
}

func (c AuthConfig) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("jwt secret is required")
	}
	return nil
}

type ownerKey struct{}

func withOwner(ctx context.Context, owner contractx.Owner) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// ownerFromContext returns the identity verified by the auth middleware.
// Handlers never read an owner from the request body.
func ownerFromContext(ctx context.Context) (contractx.Owner, huma.StatusError) {
	if o, ok := ctx.Value(ownerKey{}).(contractx.Owner); ok && !o.IsZero() {
		return o, nil
	}
	return contractx.Owner{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func authenticateJWT(token string, cfg AuthConfig) (contractx.Owner, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return contractx.Owner{}, errors.New("jwt secret not configured")
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return contractx.Owner{}, err
	}
	if !parsed.Valid {
		return contractx.Owner{}, errors.New("invalid token")
	}
	return contractx.NewOwner(claims.Subject)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	healthPath := path.Join(basePath, "health")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			token, ok := bearerToken(strings.TrimSpace(req.Header.Get("Authorization")))
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			owner, err := authenticateJWT(token, cfg)
			if err != nil {
				zerolog.Ctx(req.Context()).Debug().Err(err).Msg("rejected bearer token")
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}

			ctx := withOwner(req.Context(), owner)
			logger := zerolog.Ctx(ctx).With().Str("owner", owner.ID()).Logger()
			next.ServeHTTP(w, req.WithContext(logger.WithContext(ctx)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
