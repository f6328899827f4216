package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfplab/proposal-agent/internal/cache"
	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
	"github.com/rfplab/proposal-agent/internal/textgen"
)

func analysisOutput(nextTopic string, extracted map[string]any, missing ...string) map[string]any {
	missingAny := make([]any, len(missing))
	for i, m := range missing {
		missingAny[i] = m
	}
	return map[string]any{
		"next_topic":           nextTopic,
		"conversation_context": "테스트 맥락",
		"extracted_info":       extracted,
		"missing_info":         missingAny,
	}
}

func userTurn(content string) []textgen.Message {
	return []textgen.Message{{Role: textgen.RoleUser, Content: content}}
}

func TestCompleteness(t *testing.T) {
	cases := []struct {
		name string
		info ProjectInfo
		want float64
	}{
		{"empty", ProjectInfo{}, 0.0},
		{"one required", ProjectInfo{"project_name": "X"}, 0.5},
		{"both required", ProjectInfo{"project_name": "X", "goal": "Y"}, 1.0},
		{"optional only", ProjectInfo{"budget": "1억"}, 0.0},
		{"blank does not count", ProjectInfo{"project_name": "  ", "goal": "Y"}, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.info.Completeness(), 1e-9)
		})
	}
}

func TestMerge_LastWriteWinsNeverClears(t *testing.T) {
	info := ProjectInfo{"project_name": "기존 이름", "goal": "기존 목표"}

	info.Merge(map[string]string{
		"project_name": "새 이름",
		"goal":         "",
		"budget":       "2억",
	})

	assert.Equal(t, "새 이름", info["project_name"])
	assert.Equal(t, "기존 목표", info["goal"], "empty extraction never clears a filled slot")
	assert.Equal(t, "2억", info["budget"])
}

func TestShouldContinue_CompletenessRule(t *testing.T) {
	// Both required fields present: completeness 1.0, stop immediately.
	tr := NewTracker(textgen.NewStaticGenerator())
	assert.False(t, tr.ShouldContinue(ProjectInfo{"project_name": "X", "goal": "Y"}))
	assert.Equal(t, PhaseReadyToOutline, tr.Phase())

	// One of two required fields: completeness 0.5 < 0.6, keep gathering.
	tr = NewTracker(textgen.NewStaticGenerator())
	assert.True(t, tr.ShouldContinue(ProjectInfo{"project_name": "X"}))
	assert.Equal(t, PhaseGathering, tr.Phase())

	assert.True(t, NewTracker(textgen.NewStaticGenerator()).ShouldContinue(ProjectInfo{}))
}

func TestShouldContinue_FollowUpBudget(t *testing.T) {
	gen := textgen.NewFailingGenerator(agenterrors.NewGenerationError("test", "down", nil))
	tr := NewTracker(gen)
	info := ProjectInfo{}

	for i := 0; i < MaxFollowUps; i++ {
		require.True(t, tr.ShouldContinue(info))
		_, err := tr.NextQuestion(context.Background(), info, userTurn("잘 모르겠어요"))
		require.NoError(t, err)
	}

	assert.Equal(t, MaxFollowUps, tr.FollowUpCount())
	assert.False(t, tr.ShouldContinue(info), "follow-up budget spent")
	assert.Equal(t, PhaseReadyToOutline, tr.Phase())
}

func TestReset_RestoresFollowUpBudgetForNewSession(t *testing.T) {
	gen := textgen.NewFailingGenerator(agenterrors.NewGenerationError("test", "down", nil))
	tr := NewTracker(gen)

	for i := 0; i < MaxFollowUps; i++ {
		_, err := tr.NextQuestion(context.Background(), ProjectInfo{}, userTurn("잘 모르겠어요"))
		require.NoError(t, err)
	}
	require.False(t, tr.ShouldContinue(ProjectInfo{}))

	// The budget bounds one session. A new session starts from zero and a
	// brand-new ProjectInfo must keep gathering.
	tr.Reset()
	assert.Equal(t, 0, tr.FollowUpCount())
	assert.Equal(t, PhaseGathering, tr.Phase())
	assert.True(t, tr.ShouldContinue(ProjectInfo{}))
}

func TestAnalyzeTurn_ExtractsAndMerges(t *testing.T) {
	gen := textgen.NewStaticGenerator(analysisOutput("목표",
		map[string]any{"project_name": "의료 기록 시스템"}, "goal", "budget"))
	tr := NewTracker(gen)

	info := ProjectInfo{}
	analysis, err := tr.AnalyzeTurn(context.Background(), info, userTurn("병원 기록 시스템을 만들고 싶어요"))
	require.NoError(t, err)

	assert.Equal(t, "목표", analysis.NextTopic)
	assert.Equal(t, []string{"goal", "budget"}, analysis.MissingInfo)

	info.Merge(analysis.ExtractedInfo)
	assert.Equal(t, "의료 기록 시스템", info["project_name"])
}

func TestAnalyzeTurn_CachesByInfoAndMessages(t *testing.T) {
	gen := textgen.NewStaticGenerator(analysisOutput("목표", nil, "goal"))
	tr := NewTracker(gen, WithAnalysisCache(cache.New(time.Minute)))

	info := ProjectInfo{"project_name": "X"}
	msgs := userTurn("안녕하세요")

	first, err := tr.AnalyzeTurn(context.Background(), info, msgs)
	require.NoError(t, err)
	second, err := tr.AnalyzeTurn(context.Background(), info, msgs)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.Calls(), "identical turn served from cache")

	// A different turn misses the cache.
	_, err = tr.AnalyzeTurn(context.Background(), info, userTurn("다른 메시지"))
	require.NoError(t, err)
	assert.Equal(t, 2, gen.Calls())
}

func TestAnalyzeTurn_GenerationFailureNotCached(t *testing.T) {
	c := cache.New(time.Minute)
	gen := textgen.NewFailingGenerator(agenterrors.NewGenerationError("test", "down", nil))
	tr := NewTracker(gen, WithAnalysisCache(c))

	_, err := tr.AnalyzeTurn(context.Background(), ProjectInfo{}, userTurn("hi"))
	assert.True(t, agenterrors.IsGeneration(err))
	assert.Zero(t, c.Len(), "failures are not cached")
}

func TestNextQuestion_FocusesFirstMissingSlot(t *testing.T) {
	gen := textgen.NewStaticGenerator(
		analysisOutput("예산", nil, "budget", "timeline"),
		map[string]any{"is_uncertain": false, "topic": nil, "needs_examples": false},
		map[string]any{"question": "프로젝트 예산 규모는 어느 정도로 생각하고 계신가요?"},
	)
	tr := NewTracker(gen)

	q, err := tr.NextQuestion(context.Background(), ProjectInfo{}, userTurn("병원 시스템이 필요해요"))
	require.NoError(t, err)
	assert.Equal(t, "프로젝트 예산 규모는 어느 정도로 생각하고 계신가요?", q)
	assert.Equal(t, 1, tr.FollowUpCount())
}

func TestNextQuestion_CompletionWhenNothingMissing(t *testing.T) {
	gen := textgen.NewStaticGenerator(
		analysisOutput("", map[string]any{"goal": "전산화"}),
		map[string]any{"is_uncertain": false},
	)
	tr := NewTracker(gen)

	q, err := tr.NextQuestion(context.Background(), ProjectInfo{"project_name": "X", "goal": "Y"}, userTurn("이게 전부입니다"))
	require.NoError(t, err)
	assert.Equal(t, CompletionMessage, q)
	assert.Zero(t, tr.FollowUpCount(), "completion is not a follow-up")
}

func TestNextQuestion_UncertaintyGetsExplanation(t *testing.T) {
	retriever := textgen.NewStaticRetriever(
		textgen.Document{Content: "유사 의료 프로젝트 사례", Similarity: 0.8, Category: "medical"},
	)
	gen := textgen.NewStaticGenerator(
		analysisOutput("예산", nil, "budget"),
		map[string]any{"is_uncertain": true, "topic": "예산", "needs_examples": true},
		map[string]any{"question": "비슷한 규모의 사례에서는 약 1억 원이 들었습니다. 예산 상한이 있으신가요?"},
	)
	tr := NewTracker(gen, WithExampleRetriever(retriever))

	q, err := tr.NextQuestion(context.Background(), ProjectInfo{}, userTurn("예산은 잘 모르겠어요"))
	require.NoError(t, err)
	assert.Contains(t, q, "예산 상한")
}

func TestNextQuestion_GeneratorDownFallsBack(t *testing.T) {
	gen := textgen.NewFailingGenerator(agenterrors.NewGenerationError("test", "down", nil))
	tr := NewTracker(gen)

	q, err := tr.NextQuestion(context.Background(), ProjectInfo{}, userTurn("안녕하세요"))
	require.NoError(t, err, "the loop degrades instead of failing")
	assert.Equal(t, genericQuestion, q)
	assert.Equal(t, 1, tr.FollowUpCount())
}

func TestNextQuestion_MalformedQuestionFallsBackToSlotPrompt(t *testing.T) {
	gen := textgen.NewStaticGenerator(
		analysisOutput("예산", nil, "budget"),
		map[string]any{"is_uncertain": false},
		map[string]any{"unexpected": "shape"},
	)
	tr := NewTracker(gen)

	q, err := tr.NextQuestion(context.Background(), ProjectInfo{}, userTurn("hi"))
	require.NoError(t, err)
	assert.Contains(t, q, "budget")
}
