// Package apiserver exposes the HTTP surface: session issuing, the OAuth
// authorize/callback pair, publishing, analytics and workflow dispatch.
package apiserver

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/apiserver/middleware"
	"github.com/crosspost-io/crosspost/internal/auth/jwt"
	"github.com/crosspost-io/crosspost/internal/engine"
	"github.com/crosspost-io/crosspost/internal/oauth"
	"github.com/crosspost-io/crosspost/internal/router"
	"github.com/crosspost-io/crosspost/internal/social"
	"github.com/crosspost-io/crosspost/pkg/metrics"
)

// Server wires the HTTP handlers to the service layer.
type Server struct {
	logger  *zap.Logger
	jwt     *jwt.Service
	oauth   *oauth.Manager
	social  *social.Server
	engine  *engine.Engine
	router  *router.Router
	metrics *metrics.Metrics
}

func NewServer(logger *zap.Logger, jwtService *jwt.Service, manager *oauth.Manager,
	socialServer *social.Server, eng *engine.Engine, rt *router.Router, m *metrics.Metrics) *Server {
	return &Server{
		logger:  logger.Named("api"),
		jwt:     jwtService,
		oauth:   manager,
		social:  socialServer,
		engine:  eng,
		router:  rt,
		metrics: m,
	}
}

// Handler builds the gin engine with all routes registered.
func (s *Server) Handler() *gin.Engine {
	g := gin.New()
	g.Use(gin.Recovery())
	if s.metrics != nil {
		g.Use(s.metrics.Middleware())
		g.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	g.GET("/health", s.handleHealth)
	g.POST("/api/session", s.handleSession)

	// the provider redirects here; identity rides in the state token
	g.GET("/oauth/:platform/callback", s.handleOAuthCallback)

	api := g.Group("/api", middleware.JWTAuth(s.jwt))
	{
		api.POST("/oauth/:platform/authorize", s.handleAuthorize)
		api.POST("/oauth/:platform/disconnect", s.handleDisconnect)
		api.GET("/status", s.handleStatus)
		api.GET("/platforms", s.handlePlatforms)
		api.POST("/posts", s.handlePublish)
		api.GET("/posts", s.handleRecentPosts)
		api.GET("/analytics/:platform/:post_id", s.handleAnalytics)
		api.DELETE("/posts/:platform/:post_id", s.handleDeletePost)
		api.PATCH("/posts/:platform/:post_id", s.handleUpdatePost)
		api.POST("/requests", s.handleRequest)
		api.GET("/router/metrics", s.handleRouterMetrics)
	}

	return g
}
