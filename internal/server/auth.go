package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"pactline/internal/engine/auth"
	"pactline/internal/logging"
)

type AuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens. When empty, tokens are only parsed for
	// their subject and the backend stays the one verifying them.
	JWTSecret string
	// AllowDevTokens registers the token minting endpoint.
	AllowDevTokens bool
}

// Principal is the authenticated caller. Token is forwarded to the backend.
type Principal struct {
	ActorID string
	Token   string
	Source  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func authenticate(token string, cfg AuthConfig) (Principal, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		sub, err := auth.Subject(token)
		if err != nil {
			return Principal{}, err
		}
		return Principal{ActorID: sub, Token: token, Source: "unverified"}, nil
	}
	claims, err := auth.Verify(token, cfg.JWTSecret)
	if err != nil {
		return Principal{}, err
	}
	return Principal{ActorID: claims.Subject, Token: token, Source: "jwt"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func publicPaths(basePath string) []string {
	return []string{
		path.Join(basePath, "health"),
		path.Join(basePath, "openapi.json"),
		path.Join(basePath, "auth/dev/token"),
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimSpace(req.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, req.WithContext(logging.WithRequestID(req.Context(), id)))
	})
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	public := map[string]bool{}
	for _, p := range publicPaths(basePath) {
		public[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			// Only enforce for API base path.
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			principal, err := authenticate(token, cfg)
			if err != nil {
				slog.DebugContext(req.Context(), "bearer token rejected", "error", err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			ctx := withPrincipal(req.Context(), principal)
			ctx = logging.WithActorID(ctx, principal.ActorID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
