package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/platform"
	"github.com/crosspost-io/crosspost/internal/social"
)

// SocialPublisher is the SocialPipeline backed by the social media server:
// it publishes the request text to the user's chosen platforms.
type SocialPublisher struct {
	logger *zap.Logger
	server *social.Server
}

func NewSocialPublisher(logger *zap.Logger, server *social.Server) *SocialPublisher {
	return &SocialPublisher{logger: logger.Named("publisher"), server: server}
}

func (p *SocialPublisher) Run(ctx context.Context, req Request, research *StageResult) (*StageResult, error) {
	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = p.server.ConnectedPlatforms(ctx, req.UserID)
	}
	if len(platforms) == 0 {
		return nil, fmt.Errorf("no platforms connected or requested")
	}

	text := req.Text
	if research != nil && research.Summary != "" {
		text = text + "\n\n" + research.Summary
	}

	results := p.server.PostContent(ctx, req.UserID, platforms, platform.Content{Text: text})

	succeeded := 0
	data := make(map[string]any, len(results))
	for name, r := range results {
		data[name] = r
		if r.Success {
			succeeded++
		}
	}
	if succeeded == 0 {
		return nil, fmt.Errorf("publishing failed on all platforms")
	}

	return &StageResult{
		Summary: fmt.Sprintf("published to %d of %d platforms", succeeded, len(results)),
		Data:    data,
	}, nil
}

// KeywordSummarizer is a minimal ResearchPipeline: it extracts the request's
// leading sentences as a summary. It stands in until a real analysis
// pipeline is attached.
type KeywordSummarizer struct{}

func (KeywordSummarizer) Run(ctx context.Context, req Request) (*StageResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("nothing to analyze")
	}

	sentences := strings.SplitAfterN(text, ". ", 3)
	summary := strings.TrimSpace(strings.Join(sentences[:min(2, len(sentences))], ""))

	return &StageResult{
		Summary: summary,
		Data: map[string]any{
			"files":      req.Files,
			"characters": len(text),
		},
	}, nil
}
