package classify

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rfplab/proposal-agent/internal/cache"
	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
	"github.com/rfplab/proposal-agent/internal/textgen"
)

// DefaultConfidenceThreshold is the minimum confidence for a category to
// appear in the result.
const DefaultConfidenceThreshold = 0.5

const cacheNamespace = "classification"

// CategoryMatch is one ranked classification result. Produced fresh per
// Match call, never mutated afterwards.
type CategoryMatch struct {
	Category             string  `json:"category"`
	Confidence           float64 `json:"confidence"`
	RelevanceScore       float64 `json:"relevance_score"`
	Weight               float64 `json:"weight"`
	WeightedScore        float64 `json:"weighted_score"`
	RetrievalRelevance   float64 `json:"rag_relevance"`
	RetrievedDocCount    int     `json:"rag_doc_count"`
	RetrievalSimilarity  float64 `json:"rag_avg_similarity"`
}

// HistorySource reports the historical success rate for a category, 0.5 when
// no history exists. *memory.LongTermMemory satisfies this.
type HistorySource interface {
	CategoryHistory(category string) float64
}

// Classifier scores text against the category catalog by fusing keyword,
// pattern, semantic, history, and optional retrieval signals.
type Classifier struct {
	categories []Category
	domains    []string
	model      *tfidfModel
	history    HistorySource
	retriever  textgen.DocumentRetriever
	cache      *cache.Cache
	threshold  float64
	logger     zerolog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithThreshold overrides the confidence threshold.
func WithThreshold(t float64) ClassifierOption {
	return func(c *Classifier) { c.threshold = t }
}

// WithHistory wires the historical success rate signal.
func WithHistory(h HistorySource) ClassifierOption {
	return func(c *Classifier) { c.history = h }
}

// WithRetriever enables the retrieval-relevance signal.
func WithRetriever(r textgen.DocumentRetriever) ClassifierOption {
	return func(c *Classifier) { c.retriever = r }
}

// WithResultCache caches ranked results per input text.
func WithResultCache(rc *cache.Cache) ClassifierOption {
	return func(c *Classifier) { c.cache = rc }
}

// WithClassifierLogger sets the logger.
func WithClassifierLogger(logger zerolog.Logger) ClassifierOption {
	return func(c *Classifier) {
		c.logger = logger.With().Str("component", "classifier").Logger()
	}
}

// New builds a Classifier over the catalog. TF-IDF vectors for every
// category are precomputed here.
func New(categories []Category, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		categories: categories,
		model:      newTFIDFModel(categories),
		threshold:  DefaultConfidenceThreshold,
		logger:     zerolog.Nop(),
	}
	for _, cat := range categories {
		c.domains = append(c.domains, cat.Name)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Match ranks the catalog against the text. Only categories whose confidence
// exceeds the threshold are returned, sorted descending by weighted score.
// Signal failures degrade to neutral scores; only invalid input is an error.
func (c *Classifier) Match(ctx context.Context, text string) ([]CategoryMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, agenterrors.NewValidationError("classification", "text is required")
	}

	if c.cache != nil {
		if hit, ok := c.cache.Get(cacheNamespace, cache.Params{"text": text}); ok {
			if matches, ok := hit.([]CategoryMatch); ok {
				out := make([]CategoryMatch, len(matches))
				copy(out, matches)
				return out, nil
			}
		}
	}

	// One retriever query serves every category.
	sig := retrievalSignal(ctx, c.retriever, text, c.domains)

	var matches []CategoryMatch
	for _, cat := range c.categories {
		confidence := c.score(text, cat, sig)
		if confidence <= c.threshold {
			continue
		}
		matches = append(matches, CategoryMatch{
			Category:            cat.Name,
			Confidence:          confidence,
			RelevanceScore:      c.model.semanticScore(text, cat.Name),
			Weight:              cat.Weight,
			WeightedScore:       confidence * cat.Weight,
			RetrievalRelevance:  sig.Score,
			RetrievedDocCount:   sig.DocCount,
			RetrievalSimilarity: sig.AvgSimilarity,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].WeightedScore != matches[j].WeightedScore {
			return matches[i].WeightedScore > matches[j].WeightedScore
		}
		return matches[i].Category < matches[j].Category
	})

	if c.cache != nil {
		stored := make([]CategoryMatch, len(matches))
		copy(stored, matches)
		c.cache.Set(cacheNamespace, stored, cache.Params{"text": text})
	}

	c.logger.Debug().Int("matches", len(matches)).Msg("text classified")
	return matches, nil
}

// score fuses the per-category signals into one confidence in [0, 1].
// Weights renormalize to sum to 1; the retrieval weight participates only
// when the signal produced a score.
func (c *Classifier) score(text string, cat Category, sig RetrievalSignal) float64 {
	scores := []float64{
		keywordScore(text, cat.Keywords),
		patternScore(text, cat.Patterns),
		c.model.semanticScore(text, cat.Name),
		c.historyScore(cat.Name),
	}
	weights := []float64{
		cat.Scoring.Keyword,
		cat.Scoring.Pattern,
		cat.Scoring.Semantic,
		cat.Scoring.History,
	}

	if sig.Score > 0 {
		scores = append(scores, sig.Score)
		weights = append(weights, retrievalWeight(cat, sig))
	}

	var totalWeight, sum float64
	for _, w := range weights {
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0.0
	}
	for i, s := range scores {
		sum += s * weights[i] / totalWeight
	}

	if sum < 0 {
		sum = 0
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

// historyScore is neutral 0.5 without a configured history source.
func (c *Classifier) historyScore(category string) float64 {
	if c.history == nil {
		return 0.5
	}
	return c.history.CategoryHistory(category)
}

// patternScore is the fraction of the category's regex patterns matching the text.
func patternScore(text string, patterns []*regexp.Regexp) float64 {
	if len(patterns) == 0 {
		return 0.0
	}
	matches := 0
	for _, re := range patterns {
		if re.MatchString(text) {
			matches++
		}
	}
	score := float64(matches) / float64(len(patterns))
	if score > 1.0 {
		score = 1.0
	}
	return score
}
