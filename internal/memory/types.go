// Package memory implements the tiered memory substrate: short-term
// interaction history with pattern counters, durable long-term pattern
// storage, and the single-slot working-task state machine. Components never
// touch the stores directly; they receive a Context and write back through it.
package memory

import (
	"sort"
	"strings"
	"time"
)

// Interaction is one recorded exchange flowing through short-term memory.
type Interaction struct {
	Type      string         `json:"type"` // "conversation_analysis", "outline_generation", ...
	TaskType  string         `json:"task_type,omitempty"`
	Keywords  []string       `json:"keywords,omitempty"`
	Success   bool           `json:"success"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Pattern is a repeatable (task type, keyword signature) combination that
// crossed the promotion threshold. Once stored, only Count and LastSuccess
// are updated.
type Pattern struct {
	Key         string    `json:"key"`
	TaskType    string    `json:"task_type"`
	Signature   string    `json:"signature"`
	Count       int       `json:"count"`
	LastSuccess time.Time `json:"last_success_ts"`
	Example     string    `json:"example,omitempty"`
}

// Outcome aggregates success and failure counts for one category.
type Outcome struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// SuccessRate returns the fraction of successful outcomes, or 0.5 when no
// outcomes are recorded (the neutral prior used by the classifier).
func (o Outcome) SuccessRate() float64 {
	total := o.Success + o.Failure
	if total == 0 {
		return 0.5
	}
	return float64(o.Success) / float64(total)
}

// Stats is the aggregate view over all stored patterns, recomputed on every save.
type Stats struct {
	TotalPatterns    int                `json:"total_patterns"`
	PatternCounts    map[string]int     `json:"pattern_counts"`
	CategoryOutcomes map[string]Outcome `json:"category_outcomes"`
	LastUpdated      time.Time          `json:"last_updated"`
}

// Signature reduces a keyword list to a stable, order-independent signature.
func Signature(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(keywords))
	norm := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		norm = append(norm, k)
	}
	sort.Strings(norm)
	return strings.Join(norm, "-")
}

// PatternKey builds the long-term storage key for a task type and keywords.
func PatternKey(taskType string, keywords []string) string {
	return taskType + "::" + Signature(keywords)
}
