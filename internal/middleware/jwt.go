package myMiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"go-voicechat/internal/auth"
	"go-voicechat/internal/logger"
	"go-voicechat/internal/metrics"
)

type contextKey string

const UserKey contextKey = "user_id"

// UserID returns the authenticated user stored by AuthMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserKey).(string)
	return id, ok && id != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserKey, userID)
}

type AuthMiddleware struct {
	verifier auth.Verifier
	log      zerolog.Logger
}

func NewAuthMiddleware(v auth.Verifier, log zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: v, log: log}
}

// TokenFromRequest looks at x-api-key, then Authorization: Bearer, then the
// token query parameter.
func TokenFromRequest(r *http.Request) string {
	if t := r.Header.Get("x-api-key"); t != "" {
		return t
	}
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

func (am *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := TokenFromRequest(r)
		if tokenString == "" {
			metrics.AuthFailures.WithLabelValues("http").Inc()
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, err := am.verifier.Verify(tokenString)
		if err != nil {
			metrics.AuthFailures.WithLabelValues("http").Inc()
			l := logger.Ctx(r.Context(), am.log)
			l.Debug().Err(err).Msg("rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := WithUserID(r.Context(), userID)
		reqLog := logger.Ctx(ctx, am.log).With().Str(logger.FieldUserID, userID).Logger()
		ctx = logger.WithLogger(ctx, reqLog)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
