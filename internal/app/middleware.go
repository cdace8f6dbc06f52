package app

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/exp/slices"

	"github.com/k9trail/bridge/internal/config"
	bridge_middleware "github.com/k9trail/bridge/internal/middleware"
	"github.com/k9trail/bridge/internal/utils"
)

// bearerToken extracts the opaque bearer token from a request, if any.
func bearerToken(request *http.Request) string {
	if request == nil {
		return ""
	}
	authorization := request.Header.Get("Authorization")
	if authorization == "" {
		return ""
	}
	return strings.TrimPrefix(authorization, "Bearer ")
}

// SkipRateLimitsByToken checks if the request should bypass rate limits based on bearer token
func SkipRateLimitsByToken(request *http.Request) bool {
	token := bearerToken(request)
	if token == "" {
		return false
	}
	exist := slices.Contains(config.Config.AuthTokens, token)
	if exist {
		TokenUsageMetric.WithLabelValues(token).Inc()
		return true
	}
	return false
}

// RequireAuthToken guards mutating endpoints with the configured opaque
// bearer tokens. With no tokens configured the check is disabled (dev mode).
func RequireAuthToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if len(config.Config.AuthTokens) == 0 {
			return next(c)
		}
		token := bearerToken(c.Request())
		if token == "" || !slices.Contains(config.Config.AuthTokens, token) {
			return c.JSON(utils.HttpResError("unauthorized", http.StatusUnauthorized))
		}
		TokenUsageMetric.WithLabelValues(token).Inc()
		return next(c)
	}
}

// ConnectionsLimitMiddleware creates middleware for limiting concurrent connections
func ConnectionsLimitMiddleware(counter *bridge_middleware.ConnectionsLimiter, skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			release, err := counter.LeaseConnection(c.Request())
			if err != nil {
				return c.JSON(utils.HttpResError(err.Error(), http.StatusTooManyRequests))
			}
			defer release()
			return next(c)
		}
	}
}
