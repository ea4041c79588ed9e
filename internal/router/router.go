package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/raffle-ticket-sales/internal/handler"
	"github.com/iliyamo/raffle-ticket-sales/internal/middleware"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
)

// RegisterRoutes registers routes that do not require authentication:
// liveness, readiness and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the session endpoints.  Register, login, refresh
// and logout-by-refresh-token live under /v1/auth without a JWT; /v1/me
// and /v1/logout (revoke every session) need one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleSeller, model.RoleTreasurer),
	)
	auth.GET("/me", a.Me)
	auth.POST("/logout", a.Logout)
}

// RegisterSeller registers the SELLER endpoints.  limit is applied after
// authentication so the bucket can be keyed by user.
func RegisterSeller(e *echo.Echo, s *handler.SellerHandler, p *handler.ProofHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleSeller),
		limit,
	)
	g.GET("/tickets/available", s.Available)
	g.GET("/me/tickets", s.Mine)
	g.POST("/proofs", p.Upload)
	g.POST("/reservations", s.Reserve)
}

// RegisterTreasury registers audit and report endpoints.  Seller and
// global summaries are readable by both roles; settlement, the pending
// queue and the detailed history belong to the treasury.
func RegisterTreasury(e *echo.Echo, t *handler.TreasuryHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	reports := e.Group("/v1/reports",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleSeller, model.RoleTreasurer),
		limit,
	)
	reports.GET("/sellers", t.SellerSummary)
	reports.GET("/summary", t.GlobalSummary)
	reports.GET("/history", t.History, middleware.RequireRole(model.RoleTreasurer))

	audit := e.Group("/v1/audit",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleTreasurer),
		limit,
	)
	audit.GET("/pending", t.Pending)
	audit.POST("/settlements", t.Settle)
}
