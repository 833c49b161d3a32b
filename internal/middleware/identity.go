package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated caller's id.  ok is false when the
// request did not pass JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(UserIDKey).(type) {
	case uint64:
		return v, true
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Caller returns the caller identity passed to the booking service, or
// "guest" for unauthenticated requests.
func Caller(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "guest"
}
