// Package compose assembles task results and classification output into the
// final proposal outline document.
package compose

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rfplab/proposal-agent/internal/classify"
	"github.com/rfplab/proposal-agent/internal/decompose"
	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

// Outline statuses.
const (
	StatusDraft   = "draft"
	StatusPartial = "partial"
)

// TaskResult is the generated output of one decomposed task.
type TaskResult struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type"`
	Content  string `json:"content"`
	Failed   bool   `json:"failed,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Section is one heading of the outline, in document order.
type Section struct {
	Heading  string `json:"heading"`
	TaskType string `json:"task_type"`
	Content  string `json:"content"`
}

// Outline is the composed proposal document.
type Outline struct {
	Title    string         `json:"title"`
	Sections []Section      `json:"sections"`
	Metadata map[string]any `json:"metadata"`
	Status   string         `json:"status"`
}

// sectionOrder fixes document order and headings per task type.
var sectionOrder = []struct {
	taskType string
	heading  string
}{
	{decompose.TypePurpose, "사업 목적"},
	{decompose.TypeScope, "사업 범위"},
	{decompose.TypeCase, "관련 사례"},
	{decompose.TypeEvaluation, "평가 기준"},
}

// Composer builds outlines from task results.
type Composer struct {
	now    func() time.Time
	logger zerolog.Logger
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithComposerClock overrides the time source for tests.
func WithComposerClock(now func() time.Time) ComposerOption {
	return func(c *Composer) { c.now = now }
}

// WithComposerLogger sets the logger.
func WithComposerLogger(logger zerolog.Logger) ComposerOption {
	return func(c *Composer) {
		c.logger = logger.With().Str("component", "composer").Logger()
	}
}

// New builds a Composer.
func New(opts ...ComposerOption) *Composer {
	c := &Composer{now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose merges the task results into a titled, sectioned outline with
// classification metadata. Sections follow the fixed document order
// regardless of result order. A failed task yields a placeholder section and
// downgrades the outline status to partial.
func (c *Composer) Compose(projectName string, results []TaskResult, matches []classify.CategoryMatch) (*Outline, error) {
	if len(results) == 0 {
		return nil, agenterrors.NewValidationError("compose", "task results are required")
	}

	byType := make(map[string]TaskResult, len(results))
	for _, r := range results {
		if r.TaskType == "" {
			return nil, agenterrors.NewValidationError("compose", "task result %q has no task type", r.TaskID)
		}
		byType[r.TaskType] = r
	}

	outline := &Outline{
		Title:  composeTitle(projectName),
		Status: StatusDraft,
	}

	for _, s := range sectionOrder {
		r, ok := byType[s.taskType]
		if !ok {
			continue
		}
		content := r.Content
		if r.Failed || strings.TrimSpace(content) == "" {
			content = "(이 항목은 생성되지 않았습니다)"
			outline.Status = StatusPartial
		}
		outline.Sections = append(outline.Sections, Section{
			Heading:  s.heading,
			TaskType: s.taskType,
			Content:  content,
		})
	}

	if len(outline.Sections) == 0 {
		return nil, agenterrors.NewValidationError("compose", "no composable sections in task results")
	}
	if len(outline.Sections) < len(sectionOrder) {
		outline.Status = StatusPartial
	}

	outline.Metadata = c.metadata(matches)

	c.logger.Debug().Int("sections", len(outline.Sections)).Str("status", outline.Status).Msg("outline composed")
	return outline, nil
}

func composeTitle(projectName string) string {
	if strings.TrimSpace(projectName) == "" {
		return "제안요청서 초안"
	}
	return fmt.Sprintf("%s 제안요청서", projectName)
}

func (c *Composer) metadata(matches []classify.CategoryMatch) map[string]any {
	categories := make([]string, 0, len(matches))
	for _, m := range matches {
		categories = append(categories, m.Category)
	}

	meta := map[string]any{
		"created_at": c.now().UTC().Format(time.RFC3339),
		"version":    "1.0",
		"categories": categories,
	}
	if len(matches) > 0 {
		meta["primary_category"] = matches[0].Category
		meta["primary_confidence"] = matches[0].Confidence
	}
	return meta
}
