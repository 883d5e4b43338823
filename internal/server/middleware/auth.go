package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/chartsync/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT токена.
// Subject токена кладётся в контекст запроса.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				writeError(w, "missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				// сам заголовок не логируем: в нём может быть секрет
				logger.Warn("Invalid Authorization header format", "path", r.URL.Path)
				writeError(w, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, strings.TrimSpace(token))
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				writeError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			logger.Debug("Request authenticated", "subject", claims.Subject)
			next.ServeHTTP(w, r.WithContext(handlers.WithSubject(r.Context(), claims.Subject)))
		})
	}
}
