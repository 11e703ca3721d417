package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"tutorgate/internal/core"
)

// AuthMiddleware creates an Echo middleware that validates the master key.
// Paths listed in skipPaths stay public.
func AuthMiddleware(masterKey string, skipPaths []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, p := range skipPaths {
				if c.Request().URL.Path == p {
					return next(c)
				}
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return errorJSON(c, http.StatusUnauthorized, "authentication_error",
					"missing authorization header")
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return errorJSON(c, http.StatusUnauthorized, "authentication_error",
					"invalid authorization header format, expected 'Bearer <token>'")
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
				return errorJSON(c, http.StatusUnauthorized, "authentication_error",
					"invalid master key")
			}

			return next(c)
		}
	}
}

// RequestIDMiddleware attaches a request ID to the request context, taking
// the caller's X-Request-ID when present and generating one otherwise. The
// ID is echoed back in the response and flows through to usage entries and
// provider calls.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			ctx := core.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Request-ID", id)
			return next(c)
		}
	}
}
