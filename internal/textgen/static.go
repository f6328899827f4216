package textgen

import (
	"context"
	"sort"
	"sync"
)

// StaticGenerator is a TextGenerator returning canned outputs in order.
// When the queue runs out it keeps returning the last output. Used in tests
// and offline runs.
type StaticGenerator struct {
	mu      sync.Mutex
	outputs []any
	err     error
	calls   int
}

// NewStaticGenerator queues the given outputs.
func NewStaticGenerator(outputs ...any) *StaticGenerator {
	return &StaticGenerator{outputs: outputs}
}

// NewFailingGenerator returns a generator whose Generate always fails with err.
func NewFailingGenerator(err error) *StaticGenerator {
	return &StaticGenerator{err: err}
}

// Generate pops the next queued output.
func (s *StaticGenerator) Generate(ctx context.Context, _ GenerationRequest) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.outputs) == 0 {
		return map[string]any{}, nil
	}
	out := s.outputs[0]
	if len(s.outputs) > 1 {
		s.outputs = s.outputs[1:]
	}
	return out, nil
}

// Calls reports how many times Generate was invoked.
func (s *StaticGenerator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// StaticRetriever is a DocumentRetriever serving a fixed corpus, ranked by
// the similarity already attached to each document.
type StaticRetriever struct {
	docs []Document
	err  error
}

// NewStaticRetriever builds a retriever over the given documents.
func NewStaticRetriever(docs ...Document) *StaticRetriever {
	return &StaticRetriever{docs: docs}
}

// NewFailingRetriever returns a retriever whose Retrieve always fails with err.
func NewFailingRetriever(err error) *StaticRetriever {
	return &StaticRetriever{err: err}
}

// Retrieve returns up to topK documents, highest similarity first.
func (s *StaticRetriever) Retrieve(ctx context.Context, _ string, topK int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}

	out := make([]Document, len(s.docs))
	copy(out, s.docs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
