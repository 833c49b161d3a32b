// Package router registers the HTTP routes of the service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parkmate/internal/handler"
	"github.com/iliyamo/parkmate/internal/middleware"
)

// RegisterRoutes registers the unauthenticated banner and health checks.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/", handler.Root)
	e.GET("/health", handler.Health)
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers account and token routes.  Register, login,
// refresh and logout are open; /api/auth/me needs an access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/api/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.GET("/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterParking registers the slot and history routes behind JWTAuth.
// Reads go through the response cache; book and release invalidate it.
func RegisterParking(e *echo.Echo, p *handler.ParkingHandler, jwtSecret string, rc *middleware.ResponseCache) {
	g := e.Group("/api/parking", middleware.JWTAuth(jwtSecret))

	cached := rc.Middleware()
	g.GET("/slots", p.ListSlots, cached)
	g.GET("/slots/:id", p.GetSlot, cached)
	g.GET("/records", p.ListRecords, cached)
	g.GET("/reconcile", p.Reconcile)

	invalidate := rc.InvalidateOnSuccess()
	g.POST("/slots/:id/book", p.Book, invalidate)
	g.POST("/slots/:id/release", p.Release, invalidate)
}
