// Package decompose breaks a proposal request into the fixed set of
// dependent analysis tasks: purpose, scope, case, and evaluation.
package decompose

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
	"github.com/rfplab/proposal-agent/internal/memory"
)

// Task type names.
const (
	TypePurpose    = "purpose"
	TypeScope      = "scope"
	TypeCase       = "case"
	TypeEvaluation = "evaluation"
)

// Task is one unit of the decomposition. Lower priority means higher
// importance.
type Task struct {
	ID           string   `json:"task_id"`
	Type         string   `json:"task_type"`
	Description  string   `json:"description"`
	Priority     int      `json:"priority"`
	Dependencies []string `json:"dependencies"`
}

type typeSpec struct {
	name        string
	priority    int
	keywords    []string
	dependsOn   []string
	description string
}

// taskCatalog fixes the task types, their base priorities, and the type-level
// dependency graph. Order matters: dependencies always point at earlier entries.
var taskCatalog = []typeSpec{
	{
		name:        TypePurpose,
		priority:    1,
		keywords:    []string{"목적", "목표", "배경", "필요성", "why", "purpose", "objective"},
		description: "제안요청서의 목적과 배경을 파악하여 정리",
	},
	{
		name:        TypeScope,
		priority:    2,
		keywords:    []string{"범위", "규모", "기간", "대상", "scope", "scale", "timeline"},
		dependsOn:   []string{TypePurpose},
		description: "프로젝트의 범위와 규모를 정의",
	},
	{
		name:        TypeCase,
		priority:    3,
		keywords:    []string{"사례", "예시", "참고", "벤치마크", "case", "example", "reference"},
		dependsOn:   []string{TypeScope},
		description: "관련 사례와 참고 자료 조사",
	},
	{
		name:        TypeEvaluation,
		priority:    4,
		keywords:    []string{"평가", "기준", "지표", "점수", "evaluation", "criteria", "metrics"},
		dependsOn:   []string{TypeScope, TypeCase},
		description: "평가 기준과 지표 설정",
	},
}

// Decomposer turns a request into a validated, priority-ordered task batch.
type Decomposer struct {
	working *memory.WorkingMemory
	rates   func(taskType string) float64
	newID   func() string
	logger  zerolog.Logger
}

// DecomposerOption configures a Decomposer.
type DecomposerOption func(*Decomposer)

// WithWorkingMemory stores each decomposed batch as the active working task.
func WithWorkingMemory(w *memory.WorkingMemory) DecomposerOption {
	return func(d *Decomposer) { d.working = w }
}

// WithSuccessRates supplies historical success rates per task type. Task
// types with poor track records get demoted (their priority number grows).
// Without rates every type counts as fully successful.
func WithSuccessRates(rates func(taskType string) float64) DecomposerOption {
	return func(d *Decomposer) { d.rates = rates }
}

// WithDecomposerLogger sets the logger.
func WithDecomposerLogger(logger zerolog.Logger) DecomposerOption {
	return func(d *Decomposer) {
		d.logger = logger.With().Str("component", "decomposer").Logger()
	}
}

// New builds a Decomposer.
func New(opts ...DecomposerOption) *Decomposer {
	d := &Decomposer{
		newID:  func() string { return uuid.NewString()[:8] },
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decompose produces one task per catalog type with request-specific
// descriptions, resolves dependencies, adjusts priorities by historical
// success, and validates the batch atomically before committing it to
// working memory.
func (d *Decomposer) Decompose(request string) ([]Task, error) {
	if strings.TrimSpace(request) == "" {
		return nil, agenterrors.NewValidationError("decompose", "request is required")
	}

	tasks := make([]Task, 0, len(taskCatalog))
	for _, spec := range taskCatalog {
		task := Task{
			ID:          d.newID(),
			Type:        spec.name,
			Description: describeTask(request, spec),
			Priority:    spec.priority,
		}
		task.Dependencies = dependenciesFor(spec, tasks)
		tasks = append(tasks, task)
	}

	d.adjustPriorities(tasks)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority < tasks[j].Priority })

	if err := ValidateTasks(tasks); err != nil {
		return nil, err
	}

	if d.working != nil {
		batch := memory.WorkingTask{
			ID:          d.newID(),
			Type:        "decomposition",
			Description: request,
			Payload:     map[string]any{"tasks": tasks, "request": request},
		}
		if err := d.working.SetCurrentTask(batch); err != nil {
			return nil, err
		}
	}

	d.logger.Debug().Int("tasks", len(tasks)).Msg("request decomposed")
	return tasks, nil
}

// ValidateTasks checks the batch as a whole: unique ids, known types, and
// every dependency resolving to an earlier task in the same batch. The first
// violation rejects the entire batch.
func ValidateTasks(tasks []Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if task.ID == "" {
			return agenterrors.NewValidationError("task", "task id is required")
		}
		if _, dup := seen[task.ID]; dup {
			return agenterrors.NewValidationError("task", "duplicate task id %q", task.ID)
		}
		if !knownType(task.Type) {
			return agenterrors.NewValidationError("task", "unknown task type %q", task.Type)
		}
		for _, dep := range task.Dependencies {
			if _, ok := seen[dep]; !ok {
				return &agenterrors.DependencyError{TaskID: task.ID, DepID: dep}
			}
		}
		seen[task.ID] = struct{}{}
	}
	return nil
}

// adjustPriorities divides each base priority by the type's historical
// success rate, truncates the quotient, and adds the dependency count,
// demoting types with poor track records and heavily dependent tasks.
// Priorities stay integers: truncation happens before the dependency count
// is added.
func (d *Decomposer) adjustPriorities(tasks []Task) {
	for i := range tasks {
		rate := 1.0
		if d.rates != nil {
			if r := d.rates(tasks[i].Type); r > 0 {
				rate = r
			}
		}
		tasks[i].Priority = int(float64(tasks[i].Priority)/rate) + len(tasks[i].Dependencies)
	}
}

// describeTask attaches sentences of the request that mention the type's
// keywords to the base description.
func describeTask(request string, spec typeSpec) string {
	var relevant []string
	for _, kw := range spec.keywords {
		re, err := regexp.Compile(`(?i)[^.]*` + regexp.QuoteMeta(kw) + `[^.]*\.`)
		if err != nil {
			continue
		}
		relevant = append(relevant, re.FindAllString(request, -1)...)
	}

	if len(relevant) == 0 {
		return spec.description
	}
	return fmt.Sprintf("%s (관련 내용: %s)", spec.description, strings.TrimSpace(strings.Join(relevant, " ")))
}

func dependenciesFor(spec typeSpec, existing []Task) []string {
	var deps []string
	for _, task := range existing {
		for _, required := range spec.dependsOn {
			if task.Type == required {
				deps = append(deps, task.ID)
			}
		}
	}
	return deps
}

func knownType(name string) bool {
	for _, spec := range taskCatalog {
		if spec.name == name {
			return true
		}
	}
	return false
}
