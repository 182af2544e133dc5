package apiserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/apiserver/middleware"
	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/engine"
	"github.com/crosspost-io/crosspost/internal/platform"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type sessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (s *Server) handleSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	token, err := s.jwt.GenerateToken(req.UserID)
	if err != nil {
		s.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type authorizeRequest struct {
	Scopes []string `json:"scopes,omitempty"`
}

func (s *Server) handleAuthorize(c *gin.Context) {
	var req authorizeRequest
	_ = c.ShouldBindJSON(&req)

	flow, err := s.oauth.InitiateFlow(c.Request.Context(), c.Param("platform"), middleware.UserID(c), req.Scopes)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, flow)
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	result := s.oauth.HandleCallback(
		c.Request.Context(),
		c.Param("platform"),
		c.Query("code"),
		c.Query("state"),
		c.Query("error"),
	)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	result := s.social.Disconnect(c.Request.Context(), middleware.UserID(c), c.Param("platform"))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}

func (s *Server) handleStatus(c *gin.Context) {
	withProfiles := c.Query("profiles") == "true"
	statuses := s.social.Status(c.Request.Context(), middleware.UserID(c), withProfiles)
	c.JSON(http.StatusOK, gin.H{"platforms": statuses})
}

func (s *Server) handlePlatforms(c *gin.Context) {
	connected := s.social.ConnectedPlatforms(c.Request.Context(), middleware.UserID(c))
	c.JSON(http.StatusOK, gin.H{"connected": connected})
}

type publishRequest struct {
	Platforms []string `json:"platforms" binding:"required,min=1"`
	Text      string   `json:"text" binding:"required"`
	Link      string   `json:"link,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func (s *Server) handlePublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "platforms and text are required"})
		return
	}

	results := s.social.PostContent(c.Request.Context(), middleware.UserID(c), req.Platforms,
		platform.Content{Text: req.Text, Link: req.Link, Tags: req.Tags})

	allOK := true
	for _, r := range results {
		if s.metrics != nil {
			s.metrics.PostPublished(r.Platform, r.Success)
		}
		if !r.Success {
			allOK = false
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusMultiStatus
	}
	c.JSON(status, gin.H{"results": results})
}

func (s *Server) handleRecentPosts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := s.social.RecentPosts(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		s.logger.Error("failed to load post history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": records})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	result := s.social.GetAnalytics(c.Request.Context(), middleware.UserID(c),
		c.Param("platform"), c.Param("post_id"))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

func (s *Server) handleDeletePost(c *gin.Context) {
	err := s.social.DeletePost(c.Request.Context(), middleware.UserID(c),
		c.Param("platform"), c.Param("post_id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type updatePostRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleUpdatePost(c *gin.Context) {
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	err := s.social.UpdatePost(c.Request.Context(), middleware.UserID(c),
		c.Param("platform"), c.Param("post_id"), platform.Content{Text: req.Text})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

type workflowRequest struct {
	Text         string   `json:"text"`
	Files        []string `json:"files,omitempty"`
	WorkflowMode string   `json:"workflow_mode,omitempty"`
	Platforms    []string `json:"platforms,omitempty"`
}

func (s *Server) handleRequest(c *gin.Context) {
	var req workflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result := s.engine.Process(c.Request.Context(), engine.Request{
		UserID:       middleware.UserID(c),
		Text:         req.Text,
		Files:        req.Files,
		WorkflowMode: req.WorkflowMode,
		Platforms:    req.Platforms,
	})
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRouterMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.Metrics())
}

// statusFor maps taxonomy errors to HTTP status codes.
func statusFor(err error) int {
	switch errorx.KindOf(err) {
	case errorx.KindConfiguration:
		return http.StatusBadRequest
	case errorx.KindAuthorization, errorx.KindTokenExpired:
		return http.StatusUnauthorized
	case errorx.KindRateLimited:
		return http.StatusTooManyRequests
	case errorx.KindPlatformAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
