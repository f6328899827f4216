package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

const defaultRetrieveTimeout = 30 * time.Second

// HTTPRetriever implements DocumentRetriever against a JSON retrieval
// service. The service accepts {query, top_k} and answers with
// {documents: [{content, similarity, category}]}.
type HTTPRetriever struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  zerolog.Logger
}

// HTTPRetrieverOption configures the retriever.
type HTTPRetrieverOption func(*HTTPRetriever)

// WithRetrieverAPIKey sets the bearer token sent with each request.
func WithRetrieverAPIKey(key string) HTTPRetrieverOption {
	return func(r *HTTPRetriever) { r.apiKey = key }
}

// WithRetrieverHTTPClient overrides the HTTP client.
func WithRetrieverHTTPClient(c *http.Client) HTTPRetrieverOption {
	return func(r *HTTPRetriever) { r.client = c }
}

// WithRetrieverLogger sets the logger.
func WithRetrieverLogger(logger zerolog.Logger) HTTPRetrieverOption {
	return func(r *HTTPRetriever) {
		r.logger = logger.With().Str("component", "retriever").Logger()
	}
}

// NewHTTPRetriever constructs a retriever talking to the service at baseURL.
func NewHTTPRetriever(baseURL string, opts ...HTTPRetrieverOption) *HTTPRetriever {
	r := &HTTPRetriever{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRetrieveTimeout},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

type retrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type retrieveResponse struct {
	Documents []Document `json:"documents"`
	Error     string     `json:"error,omitempty"`
}

// Retrieve posts the query and returns the service's documents, most similar
// first.
func (r *HTTPRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	body, err := json.Marshal(retrieveRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/v1/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, agenterrors.NewGenerationError("retrieve", "retrieval request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, agenterrors.NewGenerationError("retrieve",
			fmt.Sprintf("retrieval service returned %d", resp.StatusCode), nil)
	}

	var rr retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, agenterrors.NewGenerationError("retrieve", "unmarshal response", err)
	}
	if rr.Error != "" {
		return nil, agenterrors.NewGenerationError("retrieve", rr.Error, nil)
	}

	r.logger.Debug().Str("query", query).Int("documents", len(rr.Documents)).Msg("retrieval complete")
	return rr.Documents, nil
}
