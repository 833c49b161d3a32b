package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Version is reported by the root banner.  Overridden at link time.
var Version = "1.0.0"

// Root answers with a short service banner.
func Root(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"service": "parkmate",
		"message": "Parking management API is running",
		"version": Version,
	})
}

// Health is used by load balancers and monitoring to check the process is
// up.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
