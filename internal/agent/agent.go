// Package agent wires the elicitation, classification, decomposition, and
// composition components into the outline generation pipeline.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rfplab/proposal-agent/internal/classify"
	"github.com/rfplab/proposal-agent/internal/compose"
	"github.com/rfplab/proposal-agent/internal/conversation"
	"github.com/rfplab/proposal-agent/internal/decompose"
	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
	"github.com/rfplab/proposal-agent/internal/memory"
	"github.com/rfplab/proposal-agent/internal/textgen"
)

// Agent runs the proposal pipeline for one session: elicit, classify,
// decompose, generate section text per task, compose.
type Agent struct {
	mem        *memory.Context
	tracker    *conversation.Tracker
	classifier *classify.Classifier
	decomposer *decompose.Decomposer
	composer   *compose.Composer
	gen        textgen.TextGenerator
	logger     zerolog.Logger
}

// Deps are the constructed components an Agent coordinates.
type Deps struct {
	Memory     *memory.Context
	Tracker    *conversation.Tracker
	Classifier *classify.Classifier
	Decomposer *decompose.Decomposer
	Composer   *compose.Composer
	Generator  textgen.TextGenerator
	Logger     zerolog.Logger
}

// New builds an Agent from its components.
func New(deps Deps) *Agent {
	return &Agent{
		mem:        deps.Memory,
		tracker:    deps.Tracker,
		classifier: deps.Classifier,
		decomposer: deps.Decomposer,
		composer:   deps.Composer,
		gen:        deps.Generator,
		logger:     deps.Logger.With().Str("component", "agent").Logger(),
	}
}

// AnalyzeTurn delegates to the conversation tracker.
func (a *Agent) AnalyzeTurn(ctx context.Context, info conversation.ProjectInfo, messages []textgen.Message) (*conversation.Analysis, error) {
	return a.tracker.AnalyzeTurn(ctx, info, messages)
}

// ShouldContinue delegates to the conversation tracker.
func (a *Agent) ShouldContinue(info conversation.ProjectInfo) bool {
	return a.tracker.ShouldContinue(info)
}

// NextQuestion delegates to the conversation tracker.
func (a *Agent) NextQuestion(ctx context.Context, info conversation.ProjectInfo, messages []textgen.Message) (string, error) {
	return a.tracker.NextQuestion(ctx, info, messages)
}

// ResetConversation delegates to the conversation tracker, starting a fresh
// elicitation session.
func (a *Agent) ResetConversation() {
	a.tracker.Reset()
}

// Classify delegates to the category classifier.
func (a *Agent) Classify(ctx context.Context, text string) ([]classify.CategoryMatch, error) {
	return a.classifier.Match(ctx, text)
}

// Decompose delegates to the task decomposer.
func (a *Agent) Decompose(request string) ([]decompose.Task, error) {
	return a.decomposer.Decompose(request)
}

// GenerateOutline runs the full pipeline for a request. Classification and
// decomposition errors surface directly. A section generation failure marks
// the working task failed, records the failure, and discards the partial
// outline instead of composing or caching it.
func (a *Agent) GenerateOutline(ctx context.Context, info conversation.ProjectInfo, request string) (*compose.Outline, error) {
	matches, err := a.classifier.Match(ctx, request)
	if err != nil {
		return nil, err
	}

	tasks, err := a.decomposer.Decompose(request)
	if err != nil {
		return nil, err
	}

	categories := make([]string, 0, len(matches))
	for _, m := range matches {
		categories = append(categories, m.Category)
	}

	results := make([]compose.TaskResult, 0, len(tasks))
	for i, task := range tasks {
		content, err := a.generateSection(ctx, info, task, matches)
		if err != nil {
			a.failPipeline(task, categories, err)
			return nil, err
		}
		results = append(results, compose.TaskResult{
			TaskID:   task.ID,
			TaskType: task.Type,
			Content:  content,
		})
		a.recordSuccess(task, categories)
		if err := a.mem.Working.UpdateProgress(float64(i+1) / float64(len(tasks))); err != nil {
			a.logger.Warn().Err(err).Msg("update working progress")
		}
	}

	outline, err := a.composer.Compose(info["project_name"], results, matches)
	if err != nil {
		return nil, err
	}

	for _, category := range categories {
		a.mem.LongTerm.RecordOutcome(category, true)
	}

	a.logger.Info().Int("sections", len(outline.Sections)).Str("status", outline.Status).Msg("outline generated")
	return outline, nil
}

// generateSection asks the generator for one section's body text.
func (a *Agent) generateSection(ctx context.Context, info conversation.ProjectInfo, task decompose.Task, matches []classify.CategoryMatch) (string, error) {
	raw, err := a.gen.Generate(ctx, textgen.GenerationRequest{
		Prompt: buildSectionPrompt(info, task, matches),
	})
	if err != nil {
		return "", err
	}
	fields, err := textgen.Normalize(raw)
	if err != nil {
		return "", err
	}
	if content, ok := textgen.StringField(fields, "content"); ok {
		return content, nil
	}
	return "", agenterrors.NewGenerationError(task.Type, "generator returned no content field", nil)
}

// recordSuccess archives a finished task into short-term memory, feeding
// the pattern promotion counters.
func (a *Agent) recordSuccess(task decompose.Task, categories []string) {
	rec := memory.Interaction{
		Type:     "task_execution",
		TaskType: task.Type,
		Keywords: categories,
		Success:  true,
		Payload:  map[string]any{"task_id": task.ID},
	}
	if err := a.mem.ShortTerm.AddInteraction(rec); err != nil {
		a.logger.Warn().Err(err).Str("task_id", task.ID).Msg("record task interaction")
	}
}

// failPipeline abandons the working batch and records the failed outcome.
func (a *Agent) failPipeline(task decompose.Task, categories []string, cause error) {
	if err := a.mem.Working.FailTask(cause.Error()); err != nil {
		a.logger.Warn().Err(err).Msg("fail working task")
	}

	rec := memory.Interaction{
		Type:     "task_execution",
		TaskType: task.Type,
		Keywords: categories,
		Success:  false,
		Payload:  map[string]any{"task_id": task.ID, "error": cause.Error()},
	}
	if err := a.mem.ShortTerm.AddInteraction(rec); err != nil {
		a.logger.Warn().Err(err).Msg("record failed interaction")
	}
	for _, category := range categories {
		a.mem.LongTerm.RecordOutcome(category, false)
	}

	a.logger.Error().Err(cause).Str("task_type", task.Type).Msg("outline generation failed")
}

func buildSectionPrompt(info conversation.ProjectInfo, task decompose.Task, matches []classify.CategoryMatch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "다음 작업에 해당하는 제안요청서 항목 내용을 작성해주세요:\n\n작업: %s\n", task.Description)
	if name := info["project_name"]; name != "" {
		fmt.Fprintf(&sb, "프로젝트: %s\n", name)
	}
	if goal := info["goal"]; goal != "" {
		fmt.Fprintf(&sb, "목표: %s\n", goal)
	}
	if len(matches) > 0 {
		fmt.Fprintf(&sb, "분류된 도메인: %s\n", matches[0].Category)
	}
	sb.WriteString(`
다음 형식의 JSON으로 응답하세요: {"content": "..."}`)
	return sb.String()
}
