package server

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rfplab/proposal-agent/internal/classify"
	"github.com/rfplab/proposal-agent/internal/compose"
	"github.com/rfplab/proposal-agent/internal/conversation"
	"github.com/rfplab/proposal-agent/internal/decompose"
	"github.com/rfplab/proposal-agent/internal/textgen"
)

// ClassifyRequest is the body of POST /api/v1/classify.
type ClassifyRequest struct {
	Text string `json:"text"`
}

// ClassifyResponse lists the matched categories in ranked order.
type ClassifyResponse struct {
	Matches []classify.CategoryMatch `json:"matches"`
}

// AnalyzeRequest is the body of POST /api/v1/conversation/analyze.
type AnalyzeRequest struct {
	ProjectInfo map[string]string `json:"project_info"`
	Messages    []textgen.Message `json:"messages"`
}

// AnalyzeResponse carries the turn analysis plus the merged project info.
type AnalyzeResponse struct {
	Analysis    *conversation.Analysis `json:"analysis"`
	ProjectInfo map[string]string      `json:"project_info"`
}

// ContinueRequest is the body of POST /api/v1/conversation/continue.
type ContinueRequest struct {
	ProjectInfo map[string]string `json:"project_info"`
}

// ContinueResponse reports whether elicitation should keep going.
type ContinueResponse struct {
	Continue     bool    `json:"continue"`
	Completeness float64 `json:"completeness"`
}

// QuestionRequest is the body of POST /api/v1/conversation/question.
type QuestionRequest struct {
	ProjectInfo map[string]string `json:"project_info"`
	Messages    []textgen.Message `json:"messages"`
}

// QuestionResponse carries the next follow-up question.
type QuestionResponse struct {
	Question string `json:"question"`
}

// DecomposeRequest is the body of POST /api/v1/decompose.
type DecomposeRequest struct {
	Request string `json:"request"`
}

// DecomposeResponse lists the planned tasks in execution order.
type DecomposeResponse struct {
	Tasks []decompose.Task `json:"tasks"`
}

// OutlineRequest is the body of POST /api/v1/outline.
type OutlineRequest struct {
	ProjectInfo map[string]string `json:"project_info"`
	Request     string            `json:"request"`
}

// OutlineResponse carries the composed proposal outline.
type OutlineResponse struct {
	Outline *compose.Outline `json:"outline"`
}

// SessionResponse acknowledges a session save or restore.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	SavedAt   time.Time `json:"saved_at"`
}

// ProblemDetail is the error body for failed requests.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func problemResponse(c *fiber.Ctx, status int, kind, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     kind,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
