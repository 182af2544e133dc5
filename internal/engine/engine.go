// Package engine dispatches classified requests to the research and social
// pipelines and merges their results for hybrid requests.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/router"
)

// Request is one user request entering the orchestration layer.
type Request struct {
	UserID       string   `json:"user_id"`
	Text         string   `json:"text"`
	Files        []string `json:"files,omitempty"`
	WorkflowMode string   `json:"workflow_mode,omitempty"`
	Platforms    []string `json:"platforms,omitempty"`
}

// StageResult is the output of one pipeline stage.
type StageResult struct {
	Summary string         `json:"summary,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Result is the merged outcome of a processed request.
type Result struct {
	Success        bool                  `json:"success"`
	Workflow       string                `json:"workflow"`
	Classification router.Classification `json:"classification"`
	Research       *StageResult          `json:"research,omitempty"`
	Social         *StageResult          `json:"social,omitempty"`
	Errors         []string              `json:"errors,omitempty"`
}

// ResearchPipeline handles the research side of a request.
type ResearchPipeline interface {
	Run(ctx context.Context, req Request) (*StageResult, error)
}

// SocialPipeline handles the social side. For hybrid requests it receives
// the research stage output so content can build on the findings.
type SocialPipeline interface {
	Run(ctx context.Context, req Request, research *StageResult) (*StageResult, error)
}

// PlatformLister reports which platforms a user has connected; feeds the
// router's platform-context bonus.
type PlatformLister interface {
	ConnectedPlatforms(ctx context.Context, userID string) []string
}

// Engine routes requests and runs the matching pipelines.
type Engine struct {
	logger    *zap.Logger
	router    *router.Router
	research  ResearchPipeline
	social    SocialPipeline
	platforms PlatformLister
}

func New(logger *zap.Logger, rt *router.Router, research ResearchPipeline, social SocialPipeline, platforms PlatformLister) *Engine {
	return &Engine{
		logger:    logger.Named("engine"),
		router:    rt,
		research:  research,
		social:    social,
		platforms: platforms,
	}
}

// Process classifies the request and runs the matching pipelines. Hybrid
// requests run research first and feed its output into the social stage.
// Pipeline failures are collected, never propagated as panics or bare
// errors; a Result always comes back.
func (e *Engine) Process(ctx context.Context, req Request) *Result {
	connected := 0
	if e.platforms != nil {
		connected = len(e.platforms.ConnectedPlatforms(ctx, req.UserID))
	}

	classification := e.router.Detect(router.Request{
		Text:               req.Text,
		Files:              req.Files,
		WorkflowMode:       req.WorkflowMode,
		ConnectedPlatforms: connected,
	})

	res := &Result{
		Workflow:       classification.Workflow,
		Classification: classification,
	}

	runResearch := classification.Workflow == router.WorkflowResearch || classification.Workflow == router.WorkflowHybrid
	runSocial := classification.Workflow == router.WorkflowSocial || classification.Workflow == router.WorkflowHybrid

	if runResearch {
		if e.research == nil {
			res.Errors = append(res.Errors, "research pipeline not configured")
		} else if out, err := e.research.Run(ctx, req); err != nil {
			e.logger.Error("research pipeline failed", zap.Error(err))
			res.Errors = append(res.Errors, "research: "+err.Error())
		} else {
			res.Research = out
		}
	}

	if runSocial {
		if e.social == nil {
			res.Errors = append(res.Errors, "social pipeline not configured")
		} else if out, err := e.social.Run(ctx, req, res.Research); err != nil {
			e.logger.Error("social pipeline failed", zap.Error(err))
			res.Errors = append(res.Errors, "social: "+err.Error())
		} else {
			res.Social = out
		}
	}

	res.Success = len(res.Errors) == 0
	return res
}
