package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parkmate/internal/logging"
	"github.com/iliyamo/parkmate/internal/utils"
)

// Context keys set by JWTAuth.
const (
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// JWTAuth validates a Bearer access token and stores the caller's id
// (uint64) and role in the echo context.  The request-scoped logger gains a
// user_id field.  Any failure answers 401 before the handler runs.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, ok := strings.Cut(auth, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, err := claims.UserID()
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token subject"})
			}

			c.Set(UserIDKey, uid)
			c.Set(RoleKey, claims.Role)

			req := c.Request()
			l := logging.WithContext(req.Context()).With().Uint64("user_id", uid).Logger()
			c.SetRequest(req.WithContext(logging.NewContext(req.Context(), l)))
			return next(c)
		}
	}
}
