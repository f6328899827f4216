package memory

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
)

// DefaultMaxHistory is the default interaction window size.
const DefaultMaxHistory = 10

// DefaultPatternThreshold is the success count at which a pattern is
// promoted into long-term memory.
const DefaultPatternThreshold = 3

// Promoter receives a pattern the first time its counter crosses the
// threshold, and again for every success after that. Implementations must be
// idempotent on the entry itself: repeated calls bump the count, they never
// create duplicates. LongTermMemory.PromotePattern satisfies this.
type Promoter interface {
	PromotePattern(p Pattern) error
}

// ShortTermMemory holds the recent interaction window and the per-pattern
// success counters that feed long-term promotion.
type ShortTermMemory struct {
	mu         sync.Mutex
	history    []Interaction
	counters   map[string]int
	maxHistory int
	threshold  int
	promoter   Promoter
	onPromoted func()
	now        func() time.Time
	logger     zerolog.Logger
}

// ShortTermOption configures a ShortTermMemory.
type ShortTermOption func(*ShortTermMemory)

// WithMaxHistory sets the interaction window size.
func WithMaxHistory(n int) ShortTermOption {
	return func(s *ShortTermMemory) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithPatternThreshold sets the promotion threshold.
func WithPatternThreshold(n int) ShortTermOption {
	return func(s *ShortTermMemory) {
		if n > 0 {
			s.threshold = n
		}
	}
}

// WithPromotionHook observes each pattern's first threshold crossing, after
// the promoter accepted it. Used to feed the promotion metric.
func WithPromotionHook(fn func()) ShortTermOption {
	return func(s *ShortTermMemory) { s.onPromoted = fn }
}

// WithShortTermClock overrides the time source for tests.
func WithShortTermClock(now func() time.Time) ShortTermOption {
	return func(s *ShortTermMemory) { s.now = now }
}

// WithShortTermLogger sets the logger.
func WithShortTermLogger(logger zerolog.Logger) ShortTermOption {
	return func(s *ShortTermMemory) {
		s.logger = logger.With().Str("component", "short_term_memory").Logger()
	}
}

// NewShortTerm creates a ShortTermMemory promoting into the given Promoter.
// A nil promoter disables promotion (counters still accumulate).
func NewShortTerm(promoter Promoter, opts ...ShortTermOption) *ShortTermMemory {
	s := &ShortTermMemory{
		counters:   make(map[string]int),
		maxHistory: DefaultMaxHistory,
		threshold:  DefaultPatternThreshold,
		promoter:   promoter,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddInteraction validates and appends a record, evicting the oldest entry
// when the window is full. Successful interactions carrying a task type bump
// the matching pattern counter; crossing the threshold forwards the pattern
// to long-term memory, and every success after that bumps the long-term count.
func (s *ShortTermMemory) AddInteraction(rec Interaction) error {
	if rec.Type == "" {
		return agenterrors.NewValidationError("interaction", "type is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, rec)
	if len(s.history) > s.maxHistory {
		s.history = s.history[1:]
	}

	if !rec.Success || rec.TaskType == "" {
		return nil
	}

	key := PatternKey(rec.TaskType, rec.Keywords)
	s.counters[key]++

	if s.counters[key] >= s.threshold && s.promoter != nil {
		p := Pattern{
			Key:         key,
			TaskType:    rec.TaskType,
			Signature:   Signature(rec.Keywords),
			Count:       s.threshold,
			LastSuccess: rec.Timestamp,
			Example:     exampleFrom(rec),
		}
		if err := s.promoter.PromotePattern(p); err != nil {
			// Promotion failure must not lose the interaction itself.
			s.logger.Warn().Err(err).Str("pattern", key).Msg("pattern promotion failed")
		} else {
			if s.counters[key] == s.threshold && s.onPromoted != nil {
				s.onPromoted()
			}
			s.logger.Debug().Str("pattern", key).Int("count", s.counters[key]).Msg("pattern promoted")
		}
	}
	return nil
}

// RecentContext returns a copy of the interaction window, oldest first.
func (s *ShortTermMemory) RecentContext() []Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Interaction, len(s.history))
	copy(out, s.history)
	return out
}

// PatternCount returns the current success counter for a pattern key.
func (s *ShortTermMemory) PatternCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

// CleanupOlderThan drops interactions older than maxAge. Cleanup is explicit
// and caller-driven; nothing ages out automatically.
func (s *ShortTermMemory) CleanupOlderThan(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxAge)
	kept := s.history[:0]
	for _, rec := range s.history {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	removed := len(s.history) - len(kept)
	s.history = kept
	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Msg("cleaned up old interactions")
	}
	return removed
}

// snapshotState returns copies of the window and counters for session persistence.
func (s *ShortTermMemory) snapshotState() ([]Interaction, map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hist := make([]Interaction, len(s.history))
	copy(hist, s.history)
	counters := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	return hist, counters
}

// restoreState replaces the window and counters from a session snapshot.
func (s *ShortTermMemory) restoreState(history []Interaction, counters map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history[:0], history...)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.counters = make(map[string]int, len(counters))
	for k, v := range counters {
		s.counters[k] = v
	}
}

func exampleFrom(rec Interaction) string {
	if v, ok := rec.Payload["request"].(string); ok {
		return v
	}
	if v, ok := rec.Payload["text"].(string); ok {
		return v
	}
	return ""
}
