package textgen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

func TestNormalize_Map(t *testing.T) {
	in := map[string]any{"project_name": "병원 시스템"}
	out, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, "병원 시스템", out["project_name"])
}

func TestNormalize_JSONString(t *testing.T) {
	out, err := Normalize(`{"goal": "전자 차트 구축", "completeness": 0.4}`)
	require.NoError(t, err)
	assert.Equal(t, "전자 차트 구축", out["goal"])

	f, ok := FloatField(out, "completeness")
	require.True(t, ok)
	assert.InDelta(t, 0.4, f, 1e-9)
}

func TestNormalize_FencedJSON(t *testing.T) {
	for _, raw := range []string{
		"```json\n{\"goal\": \"x\"}\n```",
		"```\n{\"goal\": \"x\"}\n```",
		"  {\"goal\": \"x\"}  ",
	} {
		out, err := Normalize(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "x", out["goal"])
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for name, raw := range map[string]any{
		"nil":        nil,
		"plain text": "not json at all",
		"number":     42,
		"array":      `["a", "b"]`,
	} {
		_, err := Normalize(raw)
		assert.True(t, agenterrors.IsGeneration(err), name)
	}
}

func TestStringField(t *testing.T) {
	m := map[string]any{"a": "x", "b": "", "c": 3}

	v, ok := StringField(m, "a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = StringField(m, "b")
	assert.False(t, ok, "blank strings do not count")
	_, ok = StringField(m, "c")
	assert.False(t, ok)
	_, ok = StringField(m, "missing")
	assert.False(t, ok)
}

func TestStaticGenerator_QueueAndRepeat(t *testing.T) {
	gen := NewStaticGenerator(
		map[string]any{"n": float64(1)},
		map[string]any{"n": float64(2)},
	)

	ctx := context.Background()
	first, err := gen.Generate(ctx, GenerationRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), first.(map[string]any)["n"])

	second, err := gen.Generate(ctx, GenerationRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), second.(map[string]any)["n"])

	// Last output repeats once the queue is drained.
	third, err := gen.Generate(ctx, GenerationRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), third.(map[string]any)["n"])
	assert.Equal(t, 3, gen.Calls())
}

func TestStaticRetriever_RanksAndLimits(t *testing.T) {
	r := NewStaticRetriever(
		Document{Content: "low", Similarity: 0.2},
		Document{Content: "high", Similarity: 0.9},
		Document{Content: "mid", Similarity: 0.5},
	)

	docs, err := r.Retrieve(context.Background(), "query", 2)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "high", docs[0].Content)
	assert.Equal(t, "mid", docs[1].Content)
}

func TestHTTPGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generate", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "analyze", req.Prompt)

		json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"goal": "충전 인프라"},
		})
	}))
	defer srv.Close()

	gen := NewHTTPGenerator(srv.URL, WithAPIKey("secret"))
	raw, err := gen.Generate(context.Background(), GenerationRequest{Prompt: "analyze"})
	require.NoError(t, err)

	out, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "충전 인프라", out["goal"])
}

func TestHTTPGenerator_StringOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": `{"goal": "x"}`})
	}))
	defer srv.Close()

	raw, err := NewHTTPGenerator(srv.URL).Generate(context.Background(), GenerationRequest{Prompt: "p"})
	require.NoError(t, err)

	out, err := Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "x", out["goal"])
}

func TestHTTPGenerator_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL).Generate(context.Background(), GenerationRequest{Prompt: "p"})
	assert.True(t, agenterrors.IsGeneration(err))
}
