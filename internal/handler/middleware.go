package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/truliv/voice-agent/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoggingMiddleware logs every HTTP request
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Info(r.Context(), "http request",
			zap.String("method", r.Method),
			zap.String("path", r.RequestURI),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// APIKeyMiddleware validates the HS256 JWT in the X-API-Key header.
// An empty secret disables the check (local development).
func APIKeyMiddleware(secretKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secretKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			jwtToken := r.Header.Get("X-API-Key")
			if jwtToken == "" {
				logger.Warn(r.Context(), "missing api key for api request",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				writeError(w, http.StatusUnauthorized, "missing key")
				return
			}

			claims, err := parseAndValidateJWT(jwtToken, secretKey)
			if err != nil {
				logger.Warn(r.Context(), "invalid api key",
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid key")
				return
			}

			logger.Debug(r.Context(), "api key validated",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Any("subject", claims["sub"]))
			next.ServeHTTP(w, r)
		})
	}
}

// parseAndValidateJWT parses and validates a JWT token
func parseAndValidateJWT(jwtToken, secretKey string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(jwtToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		if alg, ok := token.Header["alg"].(string); !ok || alg != "HS256" {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims format")
	}
	return claims, nil
}

// RateLimitMiddleware rejects requests beyond perMinute with 429.
// perMinute <= 0 disables limiting.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn(r.Context(), "rate limit exceeded",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				writeError(w, http.StatusTooManyRequests, "Making more than allowed requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
