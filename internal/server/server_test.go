package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfplab/proposal-agent/internal/agent"
	"github.com/rfplab/proposal-agent/internal/classify"
	"github.com/rfplab/proposal-agent/internal/compose"
	"github.com/rfplab/proposal-agent/internal/conversation"
	"github.com/rfplab/proposal-agent/internal/decompose"
	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
	"github.com/rfplab/proposal-agent/internal/health"
	"github.com/rfplab/proposal-agent/internal/memory"
	"github.com/rfplab/proposal-agent/internal/metrics"
	"github.com/rfplab/proposal-agent/internal/textgen"
)

// testApp builds a Fiber app backed by a static generator.
func testApp(t *testing.T, gen textgen.TextGenerator) *fiber.App {
	t.Helper()
	logger := zerolog.Nop()

	mem, err := memory.NewContext(memory.ContextConfig{
		StorageDir: t.TempDir(),
		CacheTTL:   time.Minute,
	})
	require.NoError(t, err)

	medical, err := classify.NewCategory("medical",
		[]string{"환자", "진료", "병원"},
		[]string{`의료\w*`, `진료\w*`, `환자\w*`})
	require.NoError(t, err)

	ag := agent.New(agent.Deps{
		Memory:     mem,
		Tracker:    conversation.NewTracker(gen),
		Classifier: classify.New([]classify.Category{medical}, classify.WithHistory(mem.LongTerm)),
		Decomposer: decompose.New(decompose.WithWorkingMemory(mem.Working)),
		Composer:   compose.New(),
		Generator:  gen,
		Logger:     logger,
	})

	checker := health.NewChecker(logger)
	checker.Register("storage", health.StorageCheck(t.TempDir()))

	sessions, err := memory.NewFileSessionStore(t.TempDir())
	require.NoError(t, err)

	srv := New(Config{ListenAddr: ":0"}, Deps{
		Agent:    ag,
		Memory:   mem,
		Sessions: sessions,
		Checker:  checker,
		Metrics:  metrics.New(),
		Logger:   logger,
	})
	return srv.App()
}

func postJSON(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_Healthz(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Readyz(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Classify(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	resp := postJSON(t, app, "/api/v1/classify", `{"text":"환자 진료 기록 시스템"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[ClassifyResponse](t, resp)
	require.NotEmpty(t, body.Matches)
	assert.Equal(t, "medical", body.Matches[0].Category)
}

func TestServer_Classify_EmptyText(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	resp := postJSON(t, app, "/api/v1/classify", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_request", body.Type)
	assert.Equal(t, "/api/v1/classify", body.Instance)
}

func TestServer_Analyze_MergesExtractedInfo(t *testing.T) {
	gen := textgen.NewStaticGenerator(map[string]any{
		"next_topic":           "budget",
		"conversation_context": "초기 상담",
		"extracted_info":       map[string]any{"project_name": "의료 시스템"},
		"missing_info":         []any{"goal"},
	})
	app := testApp(t, gen)

	resp := postJSON(t, app, "/api/v1/conversation/analyze",
		`{"project_info":{},"messages":[{"role":"user","content":"의료 시스템을 만들고 싶어요"}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[AnalyzeResponse](t, resp)
	require.NotNil(t, body.Analysis)
	assert.Equal(t, "budget", body.Analysis.NextTopic)
	assert.Equal(t, "의료 시스템", body.ProjectInfo["project_name"])
}

func TestServer_Continue(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	resp := postJSON(t, app, "/api/v1/conversation/continue",
		`{"project_info":{"project_name":"X","goal":"Y"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[ContinueResponse](t, resp)
	assert.False(t, body.Continue)
	assert.GreaterOrEqual(t, body.Completeness, conversation.RequiredCompleteness)
}

func TestServer_Question(t *testing.T) {
	gen := textgen.NewStaticGenerator(
		map[string]any{
			"next_topic":           "goal",
			"conversation_context": "",
			"extracted_info":       map[string]any{},
			"missing_info":         []any{"goal"},
		},
		map[string]any{"question": "목표가 무엇인가요?"},
	)
	app := testApp(t, gen)

	resp := postJSON(t, app, "/api/v1/conversation/question",
		`{"project_info":{"project_name":"X"},"messages":[{"role":"user","content":"안녕하세요"}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[QuestionResponse](t, resp)
	assert.Equal(t, "목표가 무엇인가요?", body.Question)
}

func TestServer_Decompose(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	resp := postJSON(t, app, "/api/v1/decompose", `{"request":"시스템 구축 사업"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[DecomposeResponse](t, resp)
	assert.Len(t, body.Tasks, 4)
}

func TestServer_Decompose_EmptyRequest(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	resp := postJSON(t, app, "/api/v1/decompose", `{"request":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Outline(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "섹션 본문"}))

	resp := postJSON(t, app, "/api/v1/outline",
		`{"project_info":{"project_name":"의료 기록 시스템"},"request":"환자 진료 기록 시스템 구축"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[OutlineResponse](t, resp)
	require.NotNil(t, body.Outline)
	assert.Equal(t, "의료 기록 시스템 제안요청서", body.Outline.Title)
	assert.Len(t, body.Outline.Sections, 4)
}

func TestServer_Outline_GeneratorDown(t *testing.T) {
	genErr := agenterrors.NewGenerationError("http", "service down", nil)
	app := testApp(t, textgen.NewFailingGenerator(genErr))

	resp := postJSON(t, app, "/api/v1/outline",
		`{"project_info":{},"request":"환자 진료 기록 시스템 구축"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := decodeBody[ProblemDetail](t, resp)
	assert.Equal(t, "generation_failed", body.Type)
}

func TestServer_InvalidBody(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	resp := postJSON(t, app, "/api/v1/classify", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[ProblemDetail](t, resp)
	assert.Equal(t, "invalid_body", body.Type)
}

func TestServer_SessionSaveRestoreDelete(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	resp := postJSON(t, app, "/api/v1/sessions/sess-1/save", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[SessionResponse](t, resp)
	assert.Equal(t, "sess-1", body.SessionID)

	resp = postJSON(t, app, "/api/v1/sessions/sess-1/restore", ``)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/sessions/sess-1", nil)
	delResp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)

	resp = postJSON(t, app, "/api/v1/sessions/sess-1/restore", ``)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SessionRestoreRestoresFollowUpBudget(t *testing.T) {
	gen := textgen.NewStaticGenerator(map[string]any{
		"next_topic":           "goal",
		"conversation_context": "",
		"extracted_info":       map[string]any{},
		"missing_info":         []any{"goal"},
	})
	app := testApp(t, gen)

	resp := postJSON(t, app, "/api/v1/sessions/sess-1/save", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Spend the whole follow-up budget.
	for i := 0; i < conversation.MaxFollowUps; i++ {
		resp = postJSON(t, app, "/api/v1/conversation/question",
			`{"project_info":{},"messages":[{"role":"user","content":"잘 모르겠어요"}]}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp = postJSON(t, app, "/api/v1/conversation/continue", `{"project_info":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, decodeBody[ContinueResponse](t, resp).Continue)

	// Restoring a session starts a fresh one: an empty ProjectInfo must keep
	// gathering again.
	resp = postJSON(t, app, "/api/v1/sessions/sess-1/restore", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, app, "/api/v1/conversation/continue", `{"project_info":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeBody[ContinueResponse](t, resp).Continue)
}

func TestServer_RequestIDHeader(t *testing.T) {
	app := testApp(t, textgen.NewStaticGenerator(map[string]any{"content": "x"}))

	req, _ := http.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}
