package routing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/maestro/pkg/config"
	"github.com/kadirpekel/maestro/pkg/event"
	"github.com/kadirpekel/maestro/pkg/retry"
)

// Record is one routing outcome kept in history.
type Record struct {
	ContextHash string        `json:"context_hash"`
	Tier        Tier          `json:"tier"`
	Success     bool          `json:"success"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
}

// Decision is the outcome of a route call. Immutable.
type Decision struct {
	Tier        Tier        `json:"tier"`
	Fingerprint string      `json:"fingerprint"`
	Complexity  *Complexity `json:"complexity,omitempty"`
	Source      string      `json:"source"` // "complexity", "history", "escalation", "inherited"
	Stagnating  bool        `json:"stagnating"`
}

// FailureTracker follows consecutive failures for one fingerprint.
type FailureTracker struct {
	PatternID           string    `json:"pattern_id"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CurrentTier         Tier      `json:"current_tier"`
	LastFailureTime     time.Time `json:"last_failure_time"`
}

// pattern is the per-fingerprint routing memory.
type pattern struct {
	records     []Record
	lastTouched time.Time
	content     string

	consecutiveSuccesses int
	learnedTier          *Tier
	lastTier             Tier
}

// Controller owns all routing state behind a single lock.
type Controller struct {
	cfg    *config.RoutingConfig
	events event.Store

	mu           sync.Mutex
	patterns     map[string]*pattern
	failures     map[string]*FailureTracker
	totalRecords int
}

// NewController builds a routing controller. The event store may be nil, in
// which case decisions are not journaled.
func NewController(cfg *config.RoutingConfig, events event.Store) (*Controller, error) {
	if cfg == nil {
		cfg = &config.RoutingConfig{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, retry.Wrap(retry.KindConfig, "invalid routing config", err)
	}

	return &Controller{
		cfg:      cfg,
		events:   events,
		patterns: make(map[string]*pattern),
		failures: make(map[string]*FailureTracker),
	}, nil
}

// Route picks a tier for the task. History for the task's fingerprint wins
// over fresh complexity estimation; a trailing failure run at the current
// tier forces escalation, and at Frontier it signals stagnation instead.
func (c *Controller) Route(ctx context.Context, task TaskContext) (*Decision, error) {
	fp := Fingerprint(task)

	c.mu.Lock()
	p := c.patterns[fp]

	if p != nil && len(p.records) > 0 {
		decision := c.tierFromHistory(fp, p)
		c.mu.Unlock()
		c.journal(ctx, fp, decision)
		return decision, nil
	}

	// No history. A learned similar pattern may donate its tier.
	if inherited, ok := c.inheritedTier(task); ok {
		c.mu.Unlock()
		decision := &Decision{Tier: inherited, Fingerprint: fp, Source: "inherited"}
		c.journal(ctx, fp, decision)
		return decision, nil
	}
	costOptimize := config.BoolValue(c.cfg.CostOptimization, false)
	c.mu.Unlock()

	complexity, err := EstimateComplexity(task)
	if err != nil {
		return nil, err
	}

	tier := TierForScore(complexity.Score)
	if costOptimize && tier != TierFrontier {
		tier = tier.Downgrade()
	}

	decision := &Decision{
		Tier:        tier,
		Fingerprint: fp,
		Complexity:  complexity,
		Source:      "complexity",
	}
	c.journal(ctx, fp, decision)
	return decision, nil
}

// tierFromHistory derives a tier from the fingerprint's records. Caller
// holds the lock.
func (c *Controller) tierFromHistory(fp string, p *pattern) *Decision {
	current := p.lastTier
	run := trailingFailures(p.records, current)

	if run >= c.cfg.EscalationAfterFailures {
		next, ok := current.Escalate()
		if !ok {
			// The ladder is exhausted. Signal stagnation and surrender the
			// decision upward; no unbounded Frontier retries.
			return &Decision{
				Tier:        TierFrontier,
				Fingerprint: fp,
				Source:      "escalation",
				Stagnating:  true,
			}
		}
		return &Decision{Tier: next, Fingerprint: fp, Source: "escalation"}
	}

	if p.learnedTier != nil {
		return &Decision{Tier: *p.learnedTier, Fingerprint: fp, Source: "history"}
	}

	for i := len(p.records) - 1; i >= 0; i-- {
		if p.records[i].Success {
			return &Decision{Tier: p.records[i].Tier, Fingerprint: fp, Source: "history"}
		}
	}

	// Records exist but no success yet and no escalation pressure: stay at
	// the last attempted tier.
	return &Decision{Tier: current, Fingerprint: fp, Source: "history"}
}

// trailingFailures counts the run of failures at the given tier at the tail
// of the records.
func trailingFailures(records []Record, tier Tier) int {
	run := 0
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Success || r.Tier != tier {
			break
		}
		run++
	}
	return run
}

// inheritedTier finds a learned pattern whose content is Jaccard-similar to
// the task. Caller holds the lock.
func (c *Controller) inheritedTier(task TaskContext) (Tier, bool) {
	if task.Content == "" {
		return TierFrugal, false
	}
	for _, p := range c.patterns {
		if p.learnedTier == nil || p.content == "" {
			continue
		}
		if Similarity(task.Content, p.content) >= c.cfg.SimilarityThreshold {
			return *p.learnedTier, true
		}
	}
	return TierFrugal, false
}

// RecordResult appends a routing outcome and updates the escalation and
// downgrade trackers.
func (c *Controller) RecordResult(ctx context.Context, task TaskContext, tier Tier, success bool, duration time.Duration) {
	fp := Fingerprint(task)
	now := time.Now().UTC()

	c.mu.Lock()

	p := c.patterns[fp]
	if p == nil {
		p = &pattern{}
		c.patterns[fp] = p
	}
	p.records = append(p.records, Record{
		ContextHash: fp,
		Tier:        tier,
		Success:     success,
		Timestamp:   now,
		Duration:    duration,
	})
	p.lastTouched = now
	p.lastTier = tier
	if task.Content != "" {
		p.content = task.Content
	}
	c.totalRecords++

	if len(p.records) > c.cfg.MaxHistoryPerHash {
		drop := len(p.records) - c.cfg.MaxHistoryPerHash
		p.records = p.records[drop:]
		c.totalRecords -= drop
	}
	c.evictOverflow()

	var downgraded *Tier
	if success {
		delete(c.failures, fp)
		p.consecutiveSuccesses++
		if p.consecutiveSuccesses >= c.cfg.DowngradeThreshold && tier != TierFrugal {
			lower := tier.Downgrade()
			p.learnedTier = &lower
			p.consecutiveSuccesses = 0
			downgraded = &lower
		}
	} else {
		p.consecutiveSuccesses = 0
		c.trackFailure(fp, tier, now)
	}

	c.mu.Unlock()

	if downgraded != nil {
		slog.Info("Routing pattern downgraded",
			"fingerprint", fp,
			"from", tier,
			"to", *downgraded)
		c.append(ctx, event.New(event.TypeRoutingDowngraded, event.AggregateRouting, fp, map[string]any{
			"from": tier.String(),
			"to":   downgraded.String(),
		}))
	}
}

// RecordFailure bumps the failure tracker for a fingerprint without adding a
// history record.
func (c *Controller) RecordFailure(patternID string) {
	c.mu.Lock()
	c.trackFailure(patternID, c.currentTierLocked(patternID), time.Now().UTC())
	c.mu.Unlock()
}

func (c *Controller) currentTierLocked(fp string) Tier {
	if p, ok := c.patterns[fp]; ok {
		return p.lastTier
	}
	return TierFrugal
}

func (c *Controller) trackFailure(fp string, tier Tier, now time.Time) {
	t := c.failures[fp]
	if t == nil {
		t = &FailureTracker{PatternID: fp}
		c.failures[fp] = t
	}
	t.ConsecutiveFailures++
	t.CurrentTier = tier
	t.LastFailureTime = now
}

// FailureTrackerFor returns a copy of the tracker, if any.
func (c *Controller) FailureTrackerFor(patternID string) (FailureTracker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.failures[patternID]
	if !ok {
		return FailureTracker{}, false
	}
	return *t, true
}

// evictOverflow drops whole fingerprints, least-recently-touched first,
// until the global record bound holds. Caller holds the lock.
func (c *Controller) evictOverflow() {
	for c.totalRecords > c.cfg.MaxTotalHistory {
		var (
			oldestKey string
			oldest    time.Time
		)
		for key, p := range c.patterns {
			if oldestKey == "" || p.lastTouched.Before(oldest) {
				oldestKey = key
				oldest = p.lastTouched
			}
		}
		if oldestKey == "" {
			return
		}
		c.totalRecords -= len(c.patterns[oldestKey].records)
		delete(c.patterns, oldestKey)
		slog.Debug("Evicted routing history", "fingerprint", oldestKey)
	}
}

// journal emits the decision and, when stagnating, the stagnation signal.
func (c *Controller) journal(ctx context.Context, fp string, d *Decision) {
	data := map[string]any{
		"tier":   d.Tier.String(),
		"source": d.Source,
	}
	if d.Complexity != nil {
		data["score"] = d.Complexity.Score
	}
	c.append(ctx, event.New(event.TypeRoutingDecision, event.AggregateRouting, fp, data))

	if d.Stagnating {
		slog.Warn("Routing stagnation at frontier tier", "fingerprint", fp)
		c.append(ctx, event.New(event.TypeRoutingStagnation, event.AggregateRouting, fp, map[string]any{
			"tier": TierFrontier.String(),
		}))
	} else if d.Source == "escalation" {
		c.append(ctx, event.New(event.TypeRoutingEscalated, event.AggregateRouting, fp, map[string]any{
			"to": d.Tier.String(),
		}))
	}
}

func (c *Controller) append(ctx context.Context, e *event.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Append(ctx, e); err != nil {
		slog.Warn("Failed to journal routing event", "type", e.Type, "error", err)
	}
}

// Stats is a point-in-time view of controller state.
type Stats struct {
	Fingerprints int `json:"fingerprints"`
	TotalRecords int `json:"total_records"`
	Learned      int `json:"learned"`
}

// StatsSnapshot reports the controller's memory footprint.
func (c *Controller) StatsSnapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Fingerprints: len(c.patterns), TotalRecords: c.totalRecords}
	for _, p := range c.patterns {
		if p.learnedTier != nil {
			s.Learned++
		}
	}
	return s
}
