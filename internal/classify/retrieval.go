package classify

import (
	"context"
	"strings"

	"github.com/rfplab/proposal-agent/internal/textgen"
)

// Retrieval signal bounds and boosts.
const (
	minRelevance      = 0.3
	maxRelevance      = 0.8
	weightMultiplier  = 1.5
	minRelevantDocs   = 3
	maxRetrievedDocs  = 10
	domainBoostFactor = 1.3
)

// RetrievalSignal summarizes one retriever query for scoring. A zero Score
// means the signal is unavailable and its weight drops out of the average.
type RetrievalSignal struct {
	Score         float64
	DocCount      int
	AvgSimilarity float64
	MaxSimilarity float64
	DomainMatch   bool
}

// retrievalSignal queries the retriever and condenses the hits into a score:
// best similarity, boosted when a majority of hits sit in a known domain,
// bonus for a well-populated result, bounded into [minRelevance, maxRelevance].
// Retriever failures degrade to a zero signal, never an error.
func retrievalSignal(ctx context.Context, retriever textgen.DocumentRetriever, text string, domains []string) RetrievalSignal {
	if retriever == nil {
		return RetrievalSignal{}
	}

	docs, err := retriever.Retrieve(ctx, text, maxRetrievedDocs)
	if err != nil || len(docs) == 0 {
		return RetrievalSignal{}
	}

	var sum, best float64
	domainHits := 0
	for _, d := range docs {
		sum += d.Similarity
		if d.Similarity > best {
			best = d.Similarity
		}
		if inDomain(d.Category, domains) {
			domainHits++
		}
	}

	sig := RetrievalSignal{
		DocCount:      len(docs),
		AvgSimilarity: sum / float64(len(docs)),
		MaxSimilarity: best,
		DomainMatch:   domainHits*2 > len(docs),
	}

	score := best
	if sig.DomainMatch {
		score *= domainBoostFactor
	}
	if sig.DocCount >= minRelevantDocs {
		score *= 1 + sig.AvgSimilarity*0.2
	}
	if score < minRelevance {
		score = minRelevance
	}
	if score > maxRelevance {
		score = maxRelevance
	}
	sig.Score = score
	return sig
}

// retrievalWeight adapts the category's retrieval weight to how strong the
// signal is: strong signals pull the weight up toward MaxWeight, weak ones
// push it down toward MinWeight.
func retrievalWeight(c Category, sig RetrievalSignal) float64 {
	t := c.Retrieval
	weight := t.BaseWeight
	if t.BoostMatch && sig.DomainMatch {
		weight *= domainBoostFactor
	}

	switch {
	case sig.Score >= t.Threshold:
		weight *= weightMultiplier
		if weight > t.MaxWeight {
			weight = t.MaxWeight
		}
	case sig.Score < t.Threshold/2:
		weight /= weightMultiplier
		if weight < t.MinWeight {
			weight = t.MinWeight
		}
	}
	return weight
}

func inDomain(docCategory string, domains []string) bool {
	if docCategory == "" {
		return false
	}
	lower := strings.ToLower(docCategory)
	for _, d := range domains {
		if strings.Contains(lower, strings.ToLower(d)) {
			return true
		}
	}
	return false
}
