package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rfplab/proposal-agent/fifo"
	agenterrors "github.com/rfplab/proposal-agent/internal/errors"
	"github.com/rfplab/proposal-agent/internal/retry"
)

// DefaultPatternCacheSize bounds the in-process pattern read cache.
const DefaultPatternCacheSize = 1000

// LongTermMemory is the durable pattern store: one JSON file per pattern key
// under <root>/patterns, aggregate statistics at <root>/stats/pattern_stats.json,
// with a bounded FIFO read cache in front. All persisted JSON is indented
// UTF-8, safe to hand-edit or delete to reset state.
//
// Writes are serialized by a single mutex; a failed disk write degrades to
// cache-only operation for that entry instead of failing the session.
type LongTermMemory struct {
	mu          sync.Mutex
	patternsDir string
	statsPath   string
	cache       *fifo.Cache[string, Pattern]
	stats       *Stats // nil until loaded
	retryCfg    retry.Config
	now         func() time.Time
	logger      zerolog.Logger
}

// LongTermOption configures a LongTermMemory.
type LongTermOption func(*LongTermMemory)

// WithPatternCacheSize sets the read cache capacity.
func WithPatternCacheSize(n int) LongTermOption {
	return func(l *LongTermMemory) {
		if n > 0 {
			l.cache = fifo.New[string, Pattern](n)
		}
	}
}

// WithLongTermClock overrides the time source for tests.
func WithLongTermClock(now func() time.Time) LongTermOption {
	return func(l *LongTermMemory) { l.now = now }
}

// WithLongTermLogger sets the logger.
func WithLongTermLogger(logger zerolog.Logger) LongTermOption {
	return func(l *LongTermMemory) {
		l.logger = logger.With().Str("component", "long_term_memory").Logger()
	}
}

// NewLongTerm creates a LongTermMemory rooted at dir, creating the patterns
// and stats directories if needed.
func NewLongTerm(dir string, opts ...LongTermOption) (*LongTermMemory, error) {
	l := &LongTermMemory{
		patternsDir: filepath.Join(dir, "patterns"),
		statsPath:   filepath.Join(dir, "stats", "pattern_stats.json"),
		cache:       fifo.New[string, Pattern](DefaultPatternCacheSize),
		retryCfg:    retry.StorageDefaults(),
		now:         time.Now,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	for _, p := range []string{l.patternsDir, filepath.Dir(l.statsPath)} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, agenterrors.NewStorageError("init", p, err)
		}
	}
	return l, nil
}

// SavePattern validates and persists a pattern, updates the read cache, and
// recomputes the aggregate statistics. A disk failure is logged and the
// pattern stays available from the cache.
func (l *LongTermMemory) SavePattern(p Pattern) error {
	if p.Key == "" {
		return agenterrors.NewValidationError("pattern", "key is required")
	}
	if p.Count < 0 {
		return agenterrors.NewValidationError("pattern", "count must not be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked(p)
}

// PromotePattern implements Promoter. The first promotion creates the entry
// with the incoming count; later promotions only bump Count and LastSuccess,
// no duplicate entries.
func (l *LongTermMemory) PromotePattern(p Pattern) error {
	if p.Key == "" {
		return agenterrors.NewValidationError("pattern", "key is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.lookupLocked(p.Key)
	if ok {
		existing.Count++
		existing.LastSuccess = p.LastSuccess
		if existing.Example == "" {
			existing.Example = p.Example
		}
		return l.saveLocked(existing)
	}
	return l.saveLocked(p)
}

// GetPattern returns the pattern for key, checking the cache before disk.
// A missing pattern returns (nil, nil).
func (l *LongTermMemory) GetPattern(key string) (*Pattern, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.lookupLocked(key); ok {
		return &p, nil
	}
	return nil, nil
}

// SearchPatterns returns up to limit patterns whose key, signature, or
// example contains query (case-insensitive). The cache is scanned first,
// then the backing directory.
func (l *LongTermMemory) SearchPatterns(query string, limit int) []Pattern {
	if limit <= 0 {
		limit = 10
	}
	query = strings.ToLower(query)

	l.mu.Lock()
	defer l.mu.Unlock()

	var results []Pattern
	seen := make(map[string]struct{})

	for _, key := range l.cache.Keys() {
		p, ok := l.cache.Get(key)
		if !ok {
			continue
		}
		if patternMatches(p, query) {
			results = append(results, p)
			seen[p.Key] = struct{}{}
			if len(results) >= limit {
				return results
			}
		}
	}

	entries, err := os.ReadDir(l.patternsDir)
	if err != nil {
		l.logger.Warn().Err(err).Msg("pattern directory scan failed, cache results only")
		return results
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(entry.Name(), ".json")
		p, err := l.readPattern(key)
		if err != nil || p == nil {
			continue
		}
		// File names are escaped; dedup on the real key stored in the file.
		if _, dup := seen[p.Key]; dup {
			continue
		}
		if patternMatches(*p, query) {
			results = append(results, *p)
			if len(results) >= limit {
				break
			}
		}
	}
	return results
}

// PatternStats returns the aggregate statistics, loading from disk on first use.
func (l *LongTermMemory) PatternStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.statsLocked()
}

// RecordOutcome updates the success/failure tally for a category. The
// classifier's history signal reads these through CategoryHistory.
func (l *LongTermMemory) RecordOutcome(category string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := l.statsLocked()
	o := stats.CategoryOutcomes[category]
	if success {
		o.Success++
	} else {
		o.Failure++
	}
	stats.CategoryOutcomes[category] = o
	stats.LastUpdated = l.now()
	l.writeStatsLocked(stats)
}

// CategoryHistory returns the historical success rate for a category,
// defaulting to the neutral 0.5 when no history exists.
func (l *LongTermMemory) CategoryHistory(category string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.statsLocked().CategoryOutcomes[category].SuccessRate()
}

// ClearCache empties the in-process read cache; the backing store is untouched.
func (l *LongTermMemory) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Clear()
	l.stats = nil
}

// --- internals (caller must hold l.mu) ---

func (l *LongTermMemory) lookupLocked(key string) (Pattern, bool) {
	if p, ok := l.cache.Get(key); ok {
		return p, true
	}
	p, err := l.readPattern(key)
	if err != nil || p == nil {
		return Pattern{}, false
	}
	l.cache.Put(key, *p)
	return *p, true
}

func (l *LongTermMemory) saveLocked(p Pattern) error {
	l.cache.Put(p.Key, p)

	path := l.patternPath(p.Key)
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pattern %s: %w", p.Key, err)
	}

	writeErr := retry.Do(context.Background(), l.retryCfg, func(context.Context) error {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return agenterrors.NewStorageError("save_pattern", path, err)
		}
		return nil
	})
	if writeErr != nil {
		// Degraded mode: the cache keeps serving this pattern for the session.
		l.logger.Error().Err(writeErr).Str("pattern", p.Key).Msg("pattern persist failed, serving from cache only")
		return nil
	}

	stats := l.statsLocked()
	stats.PatternCounts[p.Key] = p.Count
	stats.TotalPatterns = len(stats.PatternCounts)
	stats.LastUpdated = l.now()
	l.writeStatsLocked(stats)
	return nil
}

func (l *LongTermMemory) readPattern(key string) (*Pattern, error) {
	path := l.patternPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, agenterrors.NewStorageError("get_pattern", path, err)
	}
	var p Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, agenterrors.NewStorageError("get_pattern", path, err)
	}
	return &p, nil
}

func (l *LongTermMemory) statsLocked() *Stats {
	if l.stats != nil {
		return l.stats
	}
	l.stats = &Stats{
		PatternCounts:    make(map[string]int),
		CategoryOutcomes: make(map[string]Outcome),
	}
	data, err := os.ReadFile(l.statsPath)
	if err == nil {
		var loaded Stats
		if jsonErr := json.Unmarshal(data, &loaded); jsonErr == nil {
			if loaded.PatternCounts == nil {
				loaded.PatternCounts = make(map[string]int)
			}
			if loaded.CategoryOutcomes == nil {
				loaded.CategoryOutcomes = make(map[string]Outcome)
			}
			l.stats = &loaded
		}
	}
	return l.stats
}

func (l *LongTermMemory) writeStatsLocked(stats *Stats) {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		l.logger.Error().Err(err).Msg("marshal stats failed")
		return
	}
	if err := os.WriteFile(l.statsPath, data, 0o644); err != nil {
		l.logger.Error().Err(agenterrors.NewStorageError("save_stats", l.statsPath, err)).
			Msg("stats persist failed, keeping in-memory copy")
	}
}

// patternPath escapes the key into a safe file name.
func (l *LongTermMemory) patternPath(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, key)
	return filepath.Join(l.patternsDir, safe+".json")
}

func patternMatches(p Pattern, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(p.Key), lowerQuery) ||
		strings.Contains(strings.ToLower(p.Signature), lowerQuery) ||
		strings.Contains(strings.ToLower(p.Example), lowerQuery)
}
