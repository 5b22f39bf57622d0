// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

// Package web is the HTTP surface of the service: gin routes, session
// middleware, and the mapping from service errors to response statuses.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/parleyhq/parley/internal/auth"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/observability"
)

// SessionCookieName is the cookie carrying the session token. The same token
// is also accepted as an Authorization bearer token for non-browser clients.
const SessionCookieName = "parley_session"

// Deps are the collaborators the server routes requests to.
type Deps struct {
	Auth          *auth.Service
	Sessions      *auth.SessionManager
	Reset         *auth.PasswordResetService
	Elevation     *auth.ElevationService
	Users         auth.UserRepository
	Conversations chat.ConversationRepository
	Metrics       *observability.Metrics
	Logger        *slog.Logger
	SecureCookies bool
}

// Server serves the HTTP API.
type Server struct {
	deps       Deps
	engine     *gin.Engine
	addr       string
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server listening on addr once started.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if deps.Reset == nil {
		return nil, oops.Errorf("reset service is required")
	}
	if deps.Elevation == nil {
		return nil, oops.Errorf("elevation service is required")
	}
	if deps.Users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if deps.Conversations == nil {
		return nil, oops.Errorf("conversation repository is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		deps:   deps,
		engine: engine,
		addr:   addr,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.Use(s.requestMetrics())
	s.engine.Use(s.resolveSession())

	authGroup := s.engine.Group("/auth")
	{
		authGroup.GET("/session", s.handleSessionInfo)
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/logout", s.requireAuth(), s.handleLogout)
		authGroup.POST("/become-admin", s.requireAuth(), s.handleBecomeAdmin)
		authGroup.POST("/password/forgot", s.handleForgotPassword)
		authGroup.POST("/password/reset", s.handleResetPassword)
	}

	account := s.engine.Group("/account", s.requireAuth())
	{
		account.GET("/profile", s.handleGetProfile)
		account.PATCH("/profile", s.handlePatchProfile)
	}

	admin := s.engine.Group("/admin")
	{
		// Token-gated, not session-gated: the approver clicks a mailed link.
		admin.GET("/requests/approve/:token", s.handleElevationDecision)

		staff := admin.Group("", s.requireAuth(), s.requireStaff())
		staff.GET("/overview", s.handleAdminOverview)
		staff.GET("/requests", s.handleListElevationRequests)
	}

	convs := s.engine.Group("/conversations", s.requireAuth())
	{
		convs.GET("", s.handleListConversations)
		convs.POST("", s.handleCreateConversation)
		convs.GET("/:id", s.handleGetConversation)
		convs.PATCH("/:id", s.handlePatchConversation)
	}
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving the API. It returns an error channel that receives
// any serve error; the channel is closed on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.deps.Logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.deps.Logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.deps.Logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// setSessionCookie installs the session cookie on the response.
func (s *Server) setSessionCookie(c *gin.Context, token string, expires time.Time) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie.
func (s *Server) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
