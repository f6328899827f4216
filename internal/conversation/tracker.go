// Package conversation tracks elicitation state across user turns: which
// project slots are filled, what to ask next, and when enough information
// exists to move on to outline generation.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rfplab/proposal-agent/internal/cache"
	"github.com/rfplab/proposal-agent/internal/memory"
	"github.com/rfplab/proposal-agent/internal/textgen"
)

// Phase is the tracker's elicitation state.
type Phase string

const (
	PhaseGathering      Phase = "gathering"
	PhaseReadyToOutline Phase = "ready_to_outline"
)

const (
	// RequiredCompleteness is the fraction of required slots that must be
	// filled before gathering stops.
	RequiredCompleteness = 0.6

	// MaxFollowUps bounds how many follow-up questions one session asks.
	MaxFollowUps = 3
)

// RequiredFields are the slots needed for a minimum viable outline.
var RequiredFields = []string{"project_name", "goal"}

// OptionalFields enrich the outline when present.
var OptionalFields = []string{"requirements", "constraints", "timeline", "budget", "stakeholders"}

// ProjectInfo maps slot names to elicited values.
type ProjectInfo map[string]string

// Merge folds extracted slot values into the info, last write wins. An empty
// extracted value never clears an already filled slot.
func (p ProjectInfo) Merge(extracted map[string]string) {
	for slot, value := range extracted {
		if strings.TrimSpace(value) == "" {
			continue
		}
		p[slot] = value
	}
}

// Completeness is the filled fraction of the required slots.
func (p ProjectInfo) Completeness() float64 {
	filled := 0
	for _, f := range RequiredFields {
		if strings.TrimSpace(p[f]) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(RequiredFields))
}

// Analysis is the structured result of one conversation turn.
type Analysis struct {
	NextTopic           string            `json:"next_topic"`
	ConversationContext string            `json:"conversation_context"`
	ExtractedInfo       map[string]string `json:"extracted_info"`
	MissingInfo         []string          `json:"missing_info"`
}

// Tracker drives the elicitation loop for one session.
type Tracker struct {
	mu        sync.Mutex
	gen       textgen.TextGenerator
	retriever textgen.DocumentRetriever
	cache     *cache.Cache
	shortTerm *memory.ShortTermMemory
	followUps int
	topic     string
	phase     Phase
	logger    zerolog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithExampleRetriever wires retrieved examples into generated questions.
func WithExampleRetriever(r textgen.DocumentRetriever) TrackerOption {
	return func(t *Tracker) { t.retriever = r }
}

// WithAnalysisCache caches turn analyses keyed by (project info, messages).
func WithAnalysisCache(c *cache.Cache) TrackerOption {
	return func(t *Tracker) { t.cache = c }
}

// WithShortTermMemory records each analysis as a short-term interaction.
func WithShortTermMemory(m *memory.ShortTermMemory) TrackerOption {
	return func(t *Tracker) { t.shortTerm = m }
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(logger zerolog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger.With().Str("component", "conversation").Logger()
	}
}

// NewTracker builds a Tracker in the gathering phase.
func NewTracker(gen textgen.TextGenerator, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		gen:    gen,
		phase:  PhaseGathering,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

const analysisCacheNamespace = "conversation_analysis"

// AnalyzeTurn extracts slot values, missing information, and a next-topic
// suggestion from the conversation so far. Identical (info, messages) turns
// are served from the cache. Generation failures propagate and are never
// cached.
func (t *Tracker) AnalyzeTurn(ctx context.Context, info ProjectInfo, messages []textgen.Message) (*Analysis, error) {
	params := cache.Params{"project_info": info, "messages": messages}

	if t.cache != nil {
		if hit, ok := t.cache.Get(analysisCacheNamespace, params); ok {
			if a, ok := hit.(*Analysis); ok {
				copied := *a
				return &copied, nil
			}
		}
	}

	raw, err := t.gen.Generate(ctx, textgen.GenerationRequest{
		System:  analysisSystemPrompt,
		Prompt:  buildAnalysisPrompt(info, messages),
		History: messages,
	})
	if err != nil {
		return nil, err
	}
	fields, err := textgen.Normalize(raw)
	if err != nil {
		return nil, err
	}

	analysis := parseAnalysis(fields)

	t.mu.Lock()
	if analysis.NextTopic != "" {
		t.topic = analysis.NextTopic
	}
	t.mu.Unlock()

	if t.shortTerm != nil {
		rec := memory.Interaction{
			Type:     "conversation_analysis",
			TaskType: "purpose",
			Keywords: analysis.MissingInfo,
			Success:  true,
			Payload:  map[string]any{"next_topic": analysis.NextTopic},
		}
		if err := t.shortTerm.AddInteraction(rec); err != nil {
			t.logger.Warn().Err(err).Msg("record analysis interaction")
		}
	}

	if t.cache != nil {
		stored := *analysis
		t.cache.Set(analysisCacheNamespace, &stored, params)
	}
	return analysis, nil
}

// ShouldContinue reports whether more elicitation is needed. Gathering stops
// once the required slots reach the completeness bar or the follow-up budget
// is spent, whichever comes first.
func (t *Tracker) ShouldContinue(info ProjectInfo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info.Completeness() >= RequiredCompleteness || t.followUps >= MaxFollowUps {
		t.phase = PhaseReadyToOutline
		return false
	}
	t.phase = PhaseGathering
	return true
}

// Reset returns the tracker to the start of a new session: follow-up budget,
// topic, and phase all clear. The budget bounds questions within one session,
// never across sessions, so callers reset whenever a session starts or is
// restored.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.followUps = 0
	t.topic = ""
	t.phase = PhaseGathering
}

// Phase returns the tracker's current elicitation phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// FollowUpCount reports how many follow-up questions have been asked.
func (t *Tracker) FollowUpCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.followUps
}

const analysisSystemPrompt = `대화 내용을 분석하여 프로젝트 정보를 추출하세요.
다음 형식의 JSON으로 응답하세요:
{"next_topic": string, "conversation_context": string, "extracted_info": object, "missing_info": [string]}`

func buildAnalysisPrompt(info ProjectInfo, messages []textgen.Message) string {
	var sb strings.Builder
	sb.WriteString("다음 대화 내용을 분석하여 프로젝트 관련 정보를 추출해주세요:\n\n대화 내용:\n")
	for _, m := range messages {
		speaker := "Assistant"
		if m.Role == textgen.RoleUser {
			speaker = "User"
		}
		fmt.Fprintf(&sb, "%s: %s\n", speaker, m.Content)
	}
	sb.WriteString("\n현재 프로젝트 정보:\n")
	slots := make([]string, 0, len(info))
	for slot := range info {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		fmt.Fprintf(&sb, "- %s: %s\n", slot, info[slot])
	}
	return sb.String()
}

func parseAnalysis(fields map[string]any) *Analysis {
	a := &Analysis{ExtractedInfo: map[string]string{}}
	a.NextTopic, _ = textgen.StringField(fields, "next_topic")
	a.ConversationContext, _ = textgen.StringField(fields, "conversation_context")

	if extracted, ok := fields["extracted_info"].(map[string]any); ok {
		for slot, v := range extracted {
			if s, ok := v.(string); ok {
				a.ExtractedInfo[slot] = s
			}
		}
	}
	if missing, ok := fields["missing_info"].([]any); ok {
		for _, v := range missing {
			if s, ok := v.(string); ok && s != "" {
				a.MissingInfo = append(a.MissingInfo, s)
			}
		}
	}
	return a
}
