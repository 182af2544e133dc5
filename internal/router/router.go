// Package router classifies incoming requests into the research, social or
// hybrid workflow. Classification is deterministic: explicit mode first,
// then file-extension signals, then weighted keyword scoring.
package router

import (
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/pkg/metrics"
)

const (
	WorkflowResearch = "research"
	WorkflowSocial   = "social"
	WorkflowHybrid   = "hybrid"
)

// Weights tune the signal combination. File signals dominate keywords and
// the platform bonus only ever helps the social side.
type Weights struct {
	File             int
	Keyword          int
	MaxPlatformBonus int
}

// DefaultWeights matches the documented 3x file / 2x keyword scheme.
var DefaultWeights = Weights{File: 3, Keyword: 2, MaxPlatformBonus: 3}

// researchExtensions covers documents and source code.
var researchExtensions = map[string]bool{
	".pdf": true, ".tex": true, ".md": true, ".rst": true, ".txt": true,
	".docx": true, ".doc": true,
	".py": true, ".js": true, ".java": true, ".cpp": true, ".c": true,
	".h": true, ".hpp": true, ".cs": true, ".go": true, ".ts": true,
	".jsx": true, ".tsx": true, ".php": true, ".rb": true, ".swift": true,
	".kt": true, ".scala": true, ".r": true, ".m": true, ".ipynb": true,
	".html": true, ".css": true, ".sql": true, ".sh": true, ".bat": true,
}

// socialExtensions covers media and analytics exports.
var socialExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".svg": true, ".webp": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	".flv": true, ".wmv": true,
	".mp3": true, ".wav": true, ".ogg": true, ".m4a": true, ".flac": true,
	".csv": true, ".xlsx": true, ".xls": true, ".json": true, ".xml": true,
}

var researchKeywords = []string{
	"research paper", "implement algorithm", "code generation", "github repository",
	"academic paper", "research implementation", "algorithm implementation",
	"codebase analysis", "software development", "programming project",
	"repository", "function", "programming", "implementation", "technical",
	"development", "software", "code", "github", "algorithm", "research", "paper",
}

var socialKeywords = []string{
	"tweet", "instagram post", "linkedin post", "social media campaign",
	"hashtag strategy", "viral content", "social media management",
	"content calendar", "engagement metrics", "follower growth",
	"post", "share", "followers", "engagement", "viral", "hashtag",
	"social media", "linkedin", "twitter", "instagram", "facebook",
	"youtube", "marketing", "audience", "campaign",
}

// Request is the classifier input.
type Request struct {
	Text               string   `json:"text"`
	Files              []string `json:"files,omitempty"`
	WorkflowMode       string   `json:"workflow_mode,omitempty"`
	ConnectedPlatforms int      `json:"connected_platforms,omitempty"`
}

// Signals are the raw scores behind a classification.
type Signals struct {
	FileResearch    int `json:"file_research"`
	FileSocial      int `json:"file_social"`
	KeywordResearch int `json:"keyword_research"`
	KeywordSocial   int `json:"keyword_social"`
	PlatformBonus   int `json:"platform_bonus"`
	ResearchTotal   int `json:"research_total"`
	SocialTotal     int `json:"social_total"`
}

// Classification is the result of one routing decision.
type Classification struct {
	Workflow   string  `json:"workflow"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Signals    Signals `json:"signals"`
}

// Metrics is the running aggregate over all classifications.
type Metrics struct {
	Total         int64            `json:"total"`
	ByWorkflow    map[string]int64 `json:"by_workflow"`
	AvgConfidence float64          `json:"avg_confidence"`
}

// Router is safe for concurrent use; each classification is stateless apart
// from the metrics aggregate.
type Router struct {
	logger  *zap.Logger
	weights Weights
	metrics *metrics.Metrics

	mu            sync.Mutex
	total         int64
	byWorkflow    map[string]int64
	confidenceSum float64
}

func New(logger *zap.Logger, m *metrics.Metrics) *Router {
	return NewWithWeights(logger, m, DefaultWeights)
}

func NewWithWeights(logger *zap.Logger, m *metrics.Metrics, w Weights) *Router {
	return &Router{
		logger:     logger.Named("router"),
		weights:    w,
		metrics:    m,
		byWorkflow: make(map[string]int64),
	}
}

// Detect classifies one request.
func (r *Router) Detect(req Request) Classification {
	c := r.classify(req)

	r.mu.Lock()
	r.total++
	r.byWorkflow[c.Workflow]++
	r.confidenceSum += c.Confidence
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RouterClassified(c.Workflow)
	}

	r.logger.Debug("classified request",
		zap.String("workflow", c.Workflow),
		zap.Float64("confidence", c.Confidence),
		zap.String("reason", c.Reason))
	return c
}

func (r *Router) classify(req Request) Classification {
	// explicit mode wins unconditionally
	switch req.WorkflowMode {
	case WorkflowResearch, WorkflowSocial, WorkflowHybrid:
		return Classification{
			Workflow:   req.WorkflowMode,
			Confidence: 1.0,
			Reason:     "explicit workflow_mode",
		}
	}

	sig := Signals{}
	for _, f := range req.Files {
		ext := strings.ToLower(filepath.Ext(f))
		if ext == "" && strings.HasPrefix(f, ".") {
			ext = strings.ToLower(f)
		}
		if researchExtensions[ext] {
			sig.FileResearch++
		} else if socialExtensions[ext] {
			sig.FileSocial++
		}
	}

	// unambiguous file signal wins without keyword corroboration
	if sig.FileResearch > 0 && sig.FileSocial == 0 {
		return Classification{
			Workflow:   WorkflowResearch,
			Confidence: 0.9,
			Reason:     "research file types only",
			Signals:    sig,
		}
	}
	if sig.FileSocial > 0 && sig.FileResearch == 0 {
		return Classification{
			Workflow:   WorkflowSocial,
			Confidence: 0.9,
			Reason:     "social file types only",
			Signals:    sig,
		}
	}

	text := strings.ToLower(req.Text)
	sig.KeywordResearch = countHits(text, researchKeywords)
	sig.KeywordSocial = countHits(text, socialKeywords)

	sig.PlatformBonus = req.ConnectedPlatforms
	if sig.PlatformBonus > r.weights.MaxPlatformBonus {
		sig.PlatformBonus = r.weights.MaxPlatformBonus
	}

	sig.ResearchTotal = r.weights.File*sig.FileResearch + r.weights.Keyword*sig.KeywordResearch
	sig.SocialTotal = r.weights.File*sig.FileSocial + r.weights.Keyword*sig.KeywordSocial + sig.PlatformBonus

	workflow, reason := resolve(sig.ResearchTotal, sig.SocialTotal)
	return Classification{
		Workflow:   workflow,
		Confidence: confidence(sig.ResearchTotal, sig.SocialTotal, workflow),
		Reason:     reason,
		Signals:    sig,
	}
}

// resolve applies the documented tie-break policy: zero signal defaults to
// research, a winner over a nonzero loser means mixed intent (hybrid), a
// winner over a zero loser takes the request outright, and an exact nonzero
// tie is hybrid.
func resolve(research, social int) (string, string) {
	switch {
	case research == 0 && social == 0:
		return WorkflowResearch, "no signal, defaulting to research"
	case research > social && social == 0:
		return WorkflowResearch, "research signal only"
	case social > research && research == 0:
		return WorkflowSocial, "social signal only"
	case research == social:
		return WorkflowHybrid, "equal research and social signal"
	default:
		return WorkflowHybrid, "mixed research and social signal"
	}
}

func confidence(research, social int, workflow string) float64 {
	total := research + social
	if total == 0 {
		return 0.5
	}
	max := research
	if social > max {
		max = social
	}
	if workflow == WorkflowHybrid {
		min := research + social - max
		return 0.5 + 0.5*float64(min)/float64(max)
	}
	return float64(max) / float64(total)
}

func countHits(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// Metrics returns the running aggregate.
func (r *Router) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{
		Total:      r.total,
		ByWorkflow: make(map[string]int64, len(r.byWorkflow)),
	}
	for k, v := range r.byWorkflow {
		m.ByWorkflow[k] = v
	}
	if r.total > 0 {
		m.AvgConfidence = r.confidenceSum / float64(r.total)
	}
	return m
}
