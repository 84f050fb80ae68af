package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"groundedmemory/infrastructure/config"
	"groundedmemory/pkg/auth"
	"groundedmemory/pkg/common"

	"go.uber.org/zap"
)

// Default JWT configuration values for the demo shim. The HTTP surface is
// external plumbing around the governance core; this exists only to
// make the transport runnable end to end, not as part of the engine's
// contract.
const defaultIssuer = "groundedmemory"

var defaultAudience = []string{"groundedmemory-api"}

type ctxKey string

const contextKeyUserID ctxKey = "userID"

// Authenticate builds the default authentication middleware from process
// configuration, switching to the Lambda authorizer variant when running
// under API Gateway.
func Authenticate() func(next http.Handler) http.Handler {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		return AuthenticateForLambda()
	}

	jwtSecret := "development-secret-change-in-production"
	jwtIssuer := defaultIssuer
	if cfg, err := config.LoadConfig(); err == nil {
		jwtSecret = cfg.JWTSecret
		jwtIssuer = cfg.JWTIssuer
	}

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     jwtSecret,
		Issuer:        jwtIssuer,
		Audience:      defaultAudience,
	})
	if err != nil {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				respondUnauthorized(w, "authentication system misconfigured")
			})
		}
	}

	return AuthenticateWithConfig(validator, zap.NewNop())
}

// AuthenticateForLambda trusts an upstream API Gateway JWT authorizer: the
// Lambda handler copies the authorizer's claims into X-User-* headers
// before this middleware runs.
func AuthenticateForLambda() func(next http.Handler) http.Handler {
	ipLimiter := auth.NewIPRateLimiter(100)
	userLimiter := auth.NewUserRateLimiter(200)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			if allowed, _ := ipLimiter.Allow(r.Context(), clientIP); !allowed {
				respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			if r.Header.Get("X-API-Gateway-Authorized") != "true" {
				respondUnauthorized(w, "request not authorized by API Gateway")
				return
			}

			userID := r.Header.Get("X-User-ID")
			if userID == "" {
				respondUnauthorized(w, "missing user context from API Gateway")
				return
			}

			if allowed, _ := userLimiter.Allow(r.Context(), userID); !allowed {
				respondWithError(w, http.StatusTooManyRequests, "user rate limit exceeded")
				return
			}

			roles := []string{"authenticated"}
			if userRoles := r.Header.Get("X-User-Roles"); userRoles != "" {
				roles = strings.Split(userRoles, ",")
			}

			userCtx := &auth.UserContext{UserID: userID, Email: r.Header.Get("X-User-Email"), Roles: roles}
			ctx := auth.SetUserInContext(r.Context(), userCtx)
			ctx = context.WithValue(ctx, contextKeyUserID, userID)
			ctx = common.WithUserID(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthenticateWithConfig builds the middleware around a caller-supplied
// validator, layering IP and per-user rate limiting in front of bearer
// token validation.
func AuthenticateWithConfig(validator *auth.JWTValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ipLimiter := auth.NewIPRateLimiter(100)
	userLimiter := auth.NewUserRateLimiter(200)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			allowed, err := ipLimiter.Allow(r.Context(), clientIP)
			if err != nil {
				logger.Error("rate limiter error", zap.Error(err))
				respondWithError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !allowed {
				respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			token := extractToken(r)
			if token == "" {
				respondUnauthorized(w, "missing authentication token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("invalid token", zap.Error(err), zap.String("ip", clientIP), zap.String("path", r.URL.Path))
				switch err {
				case auth.ErrExpiredToken:
					respondUnauthorized(w, "token has expired")
				case auth.ErrInvalidSignature:
					respondUnauthorized(w, "invalid token signature")
				default:
					respondUnauthorized(w, "invalid token")
				}
				return
			}

			allowed, err = userLimiter.Allow(r.Context(), claims.UserID)
			if err != nil {
				logger.Error("user rate limiter error", zap.Error(err))
				respondWithError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			if !allowed {
				respondWithError(w, http.StatusTooManyRequests, "user rate limit exceeded")
				return
			}

			userCtx := &auth.UserContext{UserID: claims.UserID, Email: claims.Email, Roles: claims.Roles}
			ctx := auth.SetUserInContext(r.Context(), userCtx)
			ctx = context.WithValue(ctx, contextKeyUserID, claims.UserID)
			ctx = common.EnrichContext(ctx, claims.UserID, common.ExtractRequestID(r))
			ctx = common.WithUserRoles(ctx, claims.Roles)

			logger.Debug("request authenticated",
				zap.String("user_id", claims.UserID),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates middleware that requires one of the given roles on
// the authenticated user.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := auth.GetUserFromContext(r.Context())
			if err != nil {
				respondUnauthorized(w, "unauthorized")
				return
			}
			for _, want := range roles {
				for _, have := range user.Roles {
					if have == want {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			respondWithError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

// TokenRefreshMiddleware issues fresh tokens for the demo shim's
// /auth/refresh endpoint.
type TokenRefreshMiddleware struct {
	generator *auth.JWTGenerator
	validator *auth.JWTValidator
}

func NewTokenRefreshMiddleware(secretKey string) (*TokenRefreshMiddleware, error) {
	generator, err := auth.NewJWTGenerator(auth.JWTGeneratorConfig{
		SigningMethod: "HS256",
		SecretKey:     secretKey,
		Issuer:        defaultIssuer,
		Audience:      defaultAudience,
		ExpiryTime:    24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secretKey,
		Issuer:        defaultIssuer,
		Audience:      defaultAudience,
	})
	if err != nil {
		return nil, err
	}
	return &TokenRefreshMiddleware{generator: generator, validator: validator}, nil
}

func (m *TokenRefreshMiddleware) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		respondUnauthorized(w, "missing token")
		return
	}

	claims, err := m.validator.ValidateToken(token)
	if err != nil && err != auth.ErrExpiredToken {
		respondUnauthorized(w, "invalid token")
		return
	}

	newToken, err := m.generator.GenerateToken(claims.UserID, claims.Email, claims.Roles)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":      newToken,
		"expires_in": 86400,
	})
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return authHeader
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	respondWithError(w, http.StatusUnauthorized, message)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    code,
	})
}
