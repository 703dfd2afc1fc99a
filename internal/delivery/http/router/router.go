// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"keygate/internal/delivery/http/middleware"
	"keygate/internal/delivery/http/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// RouterParams holds the handlers and middlewares, injected by Fx.
type RouterParams struct {
	fx.In

	AuthHandler    *handler.AuthHandler
	MfaHandler     *handler.MfaHandler
	SessionHandler *handler.SessionHandler

	AuthMiddleware      *middleware.AuthMiddleware
	RateLimitMiddleware *middleware.RateLimitMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	params RouterParams
}

// NewRouter is the constructor for the router.
func NewRouter(params RouterParams) *router {
	return &router{params: params}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.HealthCheck)

	limit := r.params.RateLimitMiddleware

	// Public authentication surface. Each group carries its own ceiling.
	authGroup := e.Group("/auth")
	{
		authGroup.POST("/register", r.params.AuthHandler.Register, limit.Register())
		authGroup.POST("/verify-email", r.params.AuthHandler.VerifyEmail, limit.General())

		authGroup.POST("/login", r.params.AuthHandler.Login, limit.Login())
		authGroup.POST("/login/mfa", r.params.AuthHandler.CompleteMfaLogin, limit.Login())

		authGroup.POST("/refresh", r.params.AuthHandler.Refresh, limit.Refresh())
		authGroup.POST("/logout", r.params.AuthHandler.Logout, limit.General())

		authGroup.POST("/password/forgot", r.params.AuthHandler.ForgotPassword, limit.Reset())
		authGroup.POST("/password/reset", r.params.AuthHandler.ResetPassword, limit.Reset())

		authGroup.POST("/recovery/request", r.params.AuthHandler.RequestRecovery, limit.Reset())
		authGroup.POST("/recovery/complete", r.params.AuthHandler.CompleteRecovery, limit.Reset())
	}

	// Everything under /user requires a valid access token.
	userGroup := e.Group("/user", limit.General())
	userGroup.Use(r.params.AuthMiddleware.Authenticate)
	{
		userGroup.POST("/password", r.params.AuthHandler.ChangePassword)

		userGroup.POST("/mfa/setup", r.params.MfaHandler.Setup)
		userGroup.POST("/mfa/activate", r.params.MfaHandler.Activate)
		userGroup.POST("/mfa/disable", r.params.MfaHandler.Disable)

		userGroup.GET("/sessions", r.params.SessionHandler.List)
		userGroup.DELETE("/sessions/:id", r.params.SessionHandler.Revoke)
		userGroup.POST("/sessions/revoke-all", r.params.SessionHandler.RevokeAll)
	}
}
