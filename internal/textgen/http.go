package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

const defaultGenerateTimeout = 60 * time.Second

// HTTPGenerator implements TextGenerator against a JSON generation service.
// The service accepts {prompt, system, history} and answers with
// {output: <object or string>}.
type HTTPGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// HTTPGeneratorOption configures the generator.
type HTTPGeneratorOption func(*HTTPGenerator)

// WithAPIKey sets the bearer token sent with each request.
func WithAPIKey(key string) HTTPGeneratorOption {
	return func(g *HTTPGenerator) { g.apiKey = key }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) HTTPGeneratorOption {
	return func(g *HTTPGenerator) { g.client = c }
}

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(logger zerolog.Logger) HTTPGeneratorOption {
	return func(g *HTTPGenerator) {
		g.logger = logger.With().Str("component", "textgen").Logger()
	}
}

// NewHTTPGenerator constructs a generator talking to the service at baseURL.
func NewHTTPGenerator(baseURL string, opts ...HTTPGeneratorOption) *HTTPGenerator {
	g := &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultGenerateTimeout},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type generateRequest struct {
	Prompt  string    `json:"prompt"`
	System  string    `json:"system,omitempty"`
	History []Message `json:"history,omitempty"`
}

type generateResponse struct {
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

// Generate posts the request and returns the service's raw output, either a
// decoded JSON object or the string the service produced.
func (g *HTTPGenerator) Generate(ctx context.Context, req GenerationRequest) (any, error) {
	body, err := json.Marshal(generateRequest{
		Prompt:  req.Prompt,
		System:  req.System,
		History: req.History,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, agenterrors.NewGenerationError("http", "generation request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, agenterrors.NewGenerationError("http", "read response body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, agenterrors.NewGenerationError("http",
			fmt.Sprintf("generation service returned %d", resp.StatusCode), nil)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, agenterrors.NewGenerationError("http", "unmarshal response", err)
	}
	if gr.Error != "" {
		return nil, agenterrors.NewGenerationError("http", gr.Error, nil)
	}

	g.logger.Debug().Int("output_bytes", len(gr.Output)).Msg("generation complete")
	return decodeOutput(gr.Output)
}

// decodeOutput turns the raw output field into the shape Normalize accepts.
func decodeOutput(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, agenterrors.NewGenerationError("http", "empty output", nil)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	return nil, agenterrors.NewGenerationError("http", "output is neither object nor string", nil)
}
