package server

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/rfplab/proposal-agent/internal/agent"
	"github.com/rfplab/proposal-agent/internal/conversation"
	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
	"github.com/rfplab/proposal-agent/internal/health"
	"github.com/rfplab/proposal-agent/internal/memory"
	"github.com/rfplab/proposal-agent/internal/metrics"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	agent    *agent.Agent
	mem      *memory.Context
	sessions memory.SessionStore
	checker  *health.Checker
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		agent:    deps.Agent,
		mem:      deps.Memory,
		sessions: deps.Sessions,
		checker:  deps.Checker,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With().Str("component", "handlers").Logger(),
	}
}

// SaveSession handles POST /api/v1/sessions/:id/save.
func (h *Handlers) SaveSession(c *fiber.Ctx) error {
	id := c.Params("id")
	snap := h.mem.Snapshot(id)
	if err := h.sessions.Save(c.Context(), snap); err != nil {
		return h.domainError(c, "session_save", err)
	}

	h.observe("session_save", "ok")
	return c.JSON(SessionResponse{SessionID: id, SavedAt: snap.SavedAt})
}

// RestoreSession handles POST /api/v1/sessions/:id/restore.
func (h *Handlers) RestoreSession(c *fiber.Ctx) error {
	id := c.Params("id")
	snap, err := h.sessions.Load(c.Context(), id)
	if err != nil {
		return h.domainError(c, "session_restore", err)
	}
	if snap == nil {
		h.observe("session_restore", "not_found")
		return problemResponse(c, fiber.StatusNotFound,
			"session_not_found", "Not Found",
			"Session not found: "+id)
	}

	h.mem.Restore(snap)
	h.agent.ResetConversation()
	h.observe("session_restore", "ok")
	return c.JSON(SessionResponse{SessionID: id, SavedAt: snap.SavedAt})
}

// DeleteSession handles DELETE /api/v1/sessions/:id.
func (h *Handlers) DeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.sessions.Delete(c.Context(), id); err != nil {
		return h.domainError(c, "session_delete", err)
	}

	// The session is over; the next one starts with a full follow-up budget.
	h.agent.ResetConversation()
	h.observe("session_delete", "ok")
	return c.SendStatus(fiber.StatusNoContent)
}

// Classify handles POST /api/v1/classify.
func (h *Handlers) Classify(c *fiber.Ctx) error {
	var req ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}

	matches, err := h.agent.Classify(c.Context(), req.Text)
	if err != nil {
		return h.domainError(c, "classify", err)
	}

	h.observe("classify", "ok")
	for _, m := range matches {
		h.metrics.RecordClassification(m.Category)
	}
	return c.JSON(ClassifyResponse{Matches: matches})
}

// Analyze handles POST /api/v1/conversation/analyze. The returned
// project_info includes the fields extracted from this turn.
func (h *Handlers) Analyze(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}

	info := projectInfo(req.ProjectInfo)
	analysis, err := h.agent.AnalyzeTurn(c.Context(), info, req.Messages)
	if err != nil {
		return h.domainError(c, "analyze", err)
	}
	info.Merge(analysis.ExtractedInfo)

	h.observe("analyze", "ok")
	return c.JSON(AnalyzeResponse{Analysis: analysis, ProjectInfo: info})
}

// Continue handles POST /api/v1/conversation/continue.
func (h *Handlers) Continue(c *fiber.Ctx) error {
	var req ContinueRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}

	info := projectInfo(req.ProjectInfo)
	h.observe("continue", "ok")
	return c.JSON(ContinueResponse{
		Continue:     h.agent.ShouldContinue(info),
		Completeness: info.Completeness(),
	})
}

// Question handles POST /api/v1/conversation/question.
func (h *Handlers) Question(c *fiber.Ctx) error {
	var req QuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}

	question, err := h.agent.NextQuestion(c.Context(), projectInfo(req.ProjectInfo), req.Messages)
	if err != nil {
		return h.domainError(c, "question", err)
	}

	h.observe("question", "ok")
	return c.JSON(QuestionResponse{Question: question})
}

// Decompose handles POST /api/v1/decompose.
func (h *Handlers) Decompose(c *fiber.Ctx) error {
	var req DecomposeRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}

	tasks, err := h.agent.Decompose(req.Request)
	if err != nil {
		return h.domainError(c, "decompose", err)
	}

	h.observe("decompose", "ok")
	return c.JSON(DecomposeResponse{Tasks: tasks})
}

// Outline handles POST /api/v1/outline. Runs the full pipeline and
// returns the composed proposal outline.
func (h *Handlers) Outline(c *fiber.Ctx) error {
	var req OutlineRequest
	if err := c.BodyParser(&req); err != nil {
		return h.badBody(c, err)
	}

	start := time.Now()
	outline, err := h.agent.GenerateOutline(c.Context(), projectInfo(req.ProjectInfo), req.Request)
	if err != nil {
		return h.domainError(c, "outline", err)
	}

	h.observe("outline", "ok")
	h.metrics.ObserveDuration("outline", time.Since(start).Seconds())
	h.metrics.OutlineSectionsBuilt.Add(float64(len(outline.Sections)))
	return c.JSON(OutlineResponse{Outline: outline})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (h *Handlers) badBody(c *fiber.Ctx, err error) error {
	h.observe(operationFor(c.Path()), "bad_request")
	return problemResponse(c, fiber.StatusBadRequest,
		"invalid_body", "Bad Request",
		"Invalid request body: "+err.Error())
}

// domainError maps module errors to HTTP statuses. Validation and
// dependency errors are the caller's fault; generation errors mean the
// upstream text service failed; storage errors mean local state is
// unavailable.
func (h *Handlers) domainError(c *fiber.Ctx, operation string, err error) error {
	var (
		status = fiber.StatusInternalServerError
		kind   = "internal_error"
		title  = "Internal Server Error"
	)

	switch {
	case agenterrors.IsValidation(err), agenterrors.IsDependency(err):
		status, kind, title = fiber.StatusBadRequest, "invalid_request", "Bad Request"
	case agenterrors.IsGeneration(err):
		status, kind, title = fiber.StatusBadGateway, "generation_failed", "Bad Gateway"
	case agenterrors.IsStorage(err):
		status, kind, title = fiber.StatusServiceUnavailable, "storage_unavailable", "Service Unavailable"
	}

	h.logger.Error().
		Err(err).
		Str("operation", operation).
		Int("status", status).
		Msg("request failed")

	h.observe(operation, kind)
	h.metrics.RecordError(operation, kind)
	return problemResponse(c, status, kind, title, err.Error())
}

func (h *Handlers) observe(operation, status string) {
	h.metrics.RecordRequest(operation, status)
}

func projectInfo(m map[string]string) conversation.ProjectInfo {
	if m == nil {
		return conversation.ProjectInfo{}
	}
	return conversation.ProjectInfo(m)
}

func operationFor(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}
