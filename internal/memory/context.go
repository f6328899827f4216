package memory

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rfplab/proposal-agent/internal/cache"
)

// Context bundles the cache and the three memory tiers for one session.
// Every pipeline component takes a *Context at construction; lifecycle is
// caller-controlled, there are no package-level stores.
//
// LongTerm and Cache may be shared across sessions (their mutating
// operations are mutex-guarded); ShortTerm and Working are per-session.
type Context struct {
	Cache     *cache.Cache
	ShortTerm *ShortTermMemory
	LongTerm  *LongTermMemory
	Working   *WorkingMemory
}

// ContextConfig holds construction parameters for NewContext. The two
// optional hooks feed the metrics collector without the memory tiers
// depending on it.
type ContextConfig struct {
	StorageDir       string
	CacheTTL         time.Duration
	MaxHistory       int
	PatternThreshold int
	PatternCacheSize int
	OnCacheLookup    func(namespace string, hit bool)
	OnPatternPromote func()
	Logger           zerolog.Logger
}

// NewContext builds a fully wired Context: long-term memory rooted at
// cfg.StorageDir, short-term memory promoting into it, a fresh working slot,
// and a shared TTL cache.
func NewContext(cfg ContextConfig) (*Context, error) {
	longTerm, err := NewLongTerm(cfg.StorageDir,
		WithPatternCacheSize(cfg.PatternCacheSize),
		WithLongTermLogger(cfg.Logger),
	)
	if err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option{cache.WithLogger(cfg.Logger)}
	if cfg.OnCacheLookup != nil {
		cacheOpts = append(cacheOpts, cache.WithLookupHook(cfg.OnCacheLookup))
	}
	shortOpts := []ShortTermOption{
		WithMaxHistory(cfg.MaxHistory),
		WithPatternThreshold(cfg.PatternThreshold),
		WithShortTermLogger(cfg.Logger),
	}
	if cfg.OnPatternPromote != nil {
		shortOpts = append(shortOpts, WithPromotionHook(cfg.OnPatternPromote))
	}

	return &Context{
		Cache:     cache.New(cfg.CacheTTL, cacheOpts...),
		ShortTerm: NewShortTerm(longTerm, shortOpts...),
		LongTerm: longTerm,
		Working:  NewWorking(WithWorkingLogger(cfg.Logger)),
	}, nil
}

// SessionSnapshot is the persisted per-session state: the short-term window
// and counters plus the working slot. Long-term memory persists itself and
// the cache is rebuildable, so neither is part of the snapshot.
type SessionSnapshot struct {
	SessionID    string         `json:"session_id"`
	SavedAt      time.Time      `json:"saved_at"`
	Interactions []Interaction  `json:"interactions"`
	Counters     map[string]int `json:"counters"`
	WorkingTask  *WorkingTask   `json:"working_task,omitempty"`
	WorkingCtx   *TaskContext   `json:"working_ctx,omitempty"`
	TaskHistory  []ArchivedTask `json:"task_history,omitempty"`
}

// Snapshot captures the session-scoped state for persistence.
func (c *Context) Snapshot(sessionID string) *SessionSnapshot {
	history, counters := c.ShortTerm.snapshotState()

	snap := &SessionSnapshot{
		SessionID:    sessionID,
		SavedAt:      time.Now(),
		Interactions: history,
		Counters:     counters,
		TaskHistory:  c.Working.TaskHistory(),
	}

	c.Working.mu.Lock()
	if c.Working.current != nil {
		task := *c.Working.current
		taskCtx := c.Working.ctx
		snap.WorkingTask = &task
		snap.WorkingCtx = &taskCtx
	}
	c.Working.mu.Unlock()

	return snap
}

// Restore replaces the session-scoped state from a snapshot.
func (c *Context) Restore(snap *SessionSnapshot) {
	if snap == nil {
		return
	}
	c.ShortTerm.restoreState(snap.Interactions, snap.Counters)

	c.Working.mu.Lock()
	c.Working.history = append([]ArchivedTask(nil), snap.TaskHistory...)
	if snap.WorkingTask != nil && snap.WorkingCtx != nil {
		task := *snap.WorkingTask
		c.Working.current = &task
		c.Working.ctx = *snap.WorkingCtx
	} else {
		c.Working.current = nil
		c.Working.ctx = TaskContext{}
	}
	c.Working.mu.Unlock()
}
