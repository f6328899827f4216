// Package classify ranks request text against a configured category catalog.
// Each category is scored by fusing keyword, regex pattern, TF-IDF, history,
// and optional retrieval signals into a single weighted confidence.
package classify

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

// SignalWeights are the relative weights of the scoring signals for one
// category. They are renormalized to sum to 1 at scoring time, so only their
// ratios matter.
type SignalWeights struct {
	Keyword   float64 `yaml:"keyword"`
	Pattern   float64 `yaml:"pattern"`
	Semantic  float64 `yaml:"semantic"`
	History   float64 `yaml:"history"`
	Retrieval float64 `yaml:"retrieval"`
}

// RetrievalTuning controls the dynamic retrieval-signal weight for one category.
type RetrievalTuning struct {
	BaseWeight float64 `yaml:"base_weight"`
	MinWeight  float64 `yaml:"min_weight"`
	MaxWeight  float64 `yaml:"max_weight"`
	Threshold  float64 `yaml:"threshold"`
	BoostMatch bool    `yaml:"boost_match"`
}

// Category is one entry of the catalog.
type Category struct {
	Name      string
	Keywords  []string
	Weight    float64
	Patterns  []*regexp.Regexp
	Scoring   SignalWeights
	Retrieval RetrievalTuning
}

type categoryYAML struct {
	Keywords  []string         `yaml:"keywords"`
	Weight    float64          `yaml:"weight"`
	Patterns  []string         `yaml:"patterns"`
	Scoring   *SignalWeights   `yaml:"scoring"`
	Retrieval *RetrievalTuning `yaml:"retrieval"`
}

type catalogYAML struct {
	Categories map[string]categoryYAML `yaml:"categories"`
}

func defaultSignalWeights() SignalWeights {
	return SignalWeights{Keyword: 0.4, Pattern: 0.3, Semantic: 0.2, History: 0.1, Retrieval: 0.3}
}

func defaultRetrievalTuning() RetrievalTuning {
	return RetrievalTuning{BaseWeight: 0.5, MinWeight: 0.3, MaxWeight: 0.7, Threshold: 0.5, BoostMatch: true}
}

// NewCategory builds a category with compiled patterns and default tuning.
func NewCategory(name string, keywords, patterns []string) (Category, error) {
	if name == "" {
		return Category{}, agenterrors.NewValidationError("category", "name is required")
	}
	if len(keywords) == 0 {
		return Category{}, agenterrors.NewValidationError("category", "%s: keywords are required", name)
	}

	c := Category{
		Name:      name,
		Keywords:  keywords,
		Weight:    1.0,
		Scoring:   defaultSignalWeights(),
		Retrieval: defaultRetrievalTuning(),
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return Category{}, agenterrors.NewValidationError("category", "%s: bad pattern %q: %v", name, p, err)
		}
		c.Patterns = append(c.Patterns, re)
	}
	return c, nil
}

// DefaultCatalog returns the built-in medical and finance categories.
func DefaultCatalog() []Category {
	medical, _ := NewCategory("medical",
		[]string{
			"의료", "환자", "진료", "병원", "처방", "약품", "검진",
			"진단", "치료", "보건", "건강", "의약품", "의료기기",
			"medical", "healthcare", "patient", "treatment", "diagnosis",
		},
		[]string{
			`의료\w*`, `진료\w*`, `환자\w*`, `병원\w*`,
			`처방\w*`, `진단\w*`, `치료\w*`, `보건\w*`,
		})
	finance, _ := NewCategory("finance",
		[]string{
			"금융", "투자", "보험", "은행", "증권", "대출", "예금",
			"신용", "금리", "주식", "펀드", "자산", "리스크", "규제",
			"finance", "banking", "investment", "insurance", "risk",
		},
		[]string{
			`금융\w*`, `투자\w*`, `보험\w*`, `은행\w*`,
			`증권\w*`, `대출\w*`, `신용\w*`, `자산\w*`,
		})
	return []Category{medical, finance}
}

// LoadCatalog reads a category catalog from a YAML file. Omitted weight,
// scoring, or retrieval blocks fall back to the built-in defaults.
func LoadCatalog(path string) ([]Category, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogYAML
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, agenterrors.NewValidationError("catalog", "no categories defined")
	}

	out := make([]Category, 0, len(file.Categories))
	for name, cy := range file.Categories {
		c, err := NewCategory(name, cy.Keywords, cy.Patterns)
		if err != nil {
			return nil, err
		}
		if cy.Weight > 0 {
			c.Weight = cy.Weight
		}
		if cy.Scoring != nil {
			c.Scoring = *cy.Scoring
		}
		if cy.Retrieval != nil {
			c.Retrieval = *cy.Retrieval
		}
		out = append(out, c)
	}
	sortCategories(out)
	return out, nil
}

// sortCategories orders the catalog by name so that map-backed config files
// yield a stable scoring order.
func sortCategories(cats []Category) {
	sort.Slice(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
}
