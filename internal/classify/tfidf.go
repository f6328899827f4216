package classify

import (
	"math"
	"strings"
)

// koreanStopwords are particles and fillers excluded from TF-IDF vectors.
var koreanStopwords = map[string]struct{}{
	"의": {}, "가": {}, "이": {}, "은": {}, "들": {}, "는": {},
	"좀": {}, "잘": {}, "걍": {}, "과": {}, "도": {}, "를": {},
	"으로": {}, "자": {}, "에": {}, "와": {}, "한": {}, "하다": {},
}

// tfidfModel precomputes inverse document frequencies and category vectors
// over the catalog's keyword bags. The corpus is fixed at construction, so
// scoring is a pure function of the input text.
type tfidfModel struct {
	idf          map[string]float64
	categoryVecs map[string]map[string]float64
}

func newTFIDFModel(categories []Category) *tfidfModel {
	m := &tfidfModel{
		idf:          make(map[string]float64),
		categoryVecs: make(map[string]map[string]float64, len(categories)),
	}

	// Document frequency over one document per category.
	docs := make([][]string, 0, len(categories))
	for _, c := range categories {
		var terms []string
		for _, kw := range c.Keywords {
			terms = append(terms, filterTerms(tokenize(strings.ToLower(kw)))...)
		}
		docs = append(docs, terms)
	}

	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{}, len(doc))
		for _, t := range doc {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				df[t]++
			}
		}
	}

	n := float64(len(docs))
	for term, count := range df {
		// Smoothed IDF, never zero, so every catalog term contributes.
		m.idf[term] = math.Log((1+n)/(1+float64(count))) + 1
	}

	for i, c := range categories {
		m.categoryVecs[c.Name] = m.vectorize(docs[i])
	}
	return m
}

// semanticScore is the cosine similarity between the text's TF-IDF vector
// and the category's precomputed keyword-bag vector.
func (m *tfidfModel) semanticScore(text, category string) float64 {
	vec, ok := m.categoryVecs[category]
	if !ok {
		return 0.0
	}
	return cosine(m.vectorize(filterTerms(tokenize(strings.ToLower(text)))), vec)
}

// vectorize builds an l2-normalized tf-idf vector for a term list. Terms
// outside the catalog vocabulary carry no weight.
func (m *tfidfModel) vectorize(terms []string) map[string]float64 {
	tf := make(map[string]float64)
	for _, t := range terms {
		if _, ok := m.idf[t]; ok {
			tf[t]++
		}
	}

	var norm float64
	for t := range tf {
		tf[t] *= m.idf[t]
		norm += tf[t] * tf[t]
	}
	if norm == 0 {
		return tf
	}
	norm = math.Sqrt(norm)
	for t := range tf {
		tf[t] /= norm
	}
	return tf
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	var dot float64
	for t, av := range a {
		if bv, ok := b[t]; ok {
			dot += av * bv
		}
	}
	// Both vectors are l2-normalized, so the dot product is the cosine.
	if dot > 1.0 {
		dot = 1.0
	}
	return dot
}

func filterTerms(terms []string) []string {
	out := terms[:0]
	for _, t := range terms {
		if _, stop := koreanStopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}
