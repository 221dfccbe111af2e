// Package selector ranks candidate test cases for execution. Scoring is
// a pure function over case state and configured weights, so the package
// holds no state beyond its configuration.
package selector

import (
	"sort"
	"strings"
	"time"

	"github.com/gantry-io/gantry/internal/models"
)

// ExecutingScore is the sentinel for a case currently on the bench.
// Such cases never compete for selection.
const ExecutingScore = -1

// stalenessCapDays caps the influence of time-since-last-execution.
const stalenessCapDays = 30

// Weights tunes the independent contributions to a case's priority.
type Weights struct {
	NewCase       float64
	FailedCase    float64
	LongInterval  float64
	PriorityDir   float64
	ShortDuration float64
}

// DefaultWeights mirrors the shipped scheduler tuning.
func DefaultWeights() Weights {
	return Weights{
		NewCase:       1.0,
		FailedCase:    0.8,
		LongInterval:  0.6,
		PriorityDir:   0.5,
		ShortDuration: 0.3,
	}
}

// Selector ranks cases by priority.
type Selector struct {
	weights      Weights
	priorityDirs []string
	now          func() time.Time
}

func New(weights Weights, priorityDirs []string) *Selector {
	return &Selector{
		weights:      weights,
		priorityDirs: priorityDirs,
		now:          time.Now,
	}
}

// WithClock overrides the selector's time source. Used by tests.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// Score computes the priority of a single case. A case that is
// currently executing scores exactly ExecutingScore and is excluded
// from every selection result.
func (s *Selector) Score(c *models.TestCase) float64 {
	if c.Status == models.CaseStatusExecuting {
		return ExecutingScore
	}

	var score float64

	if c.Status == models.CaseStatusNotExecuted {
		score += s.weights.NewCase
	}

	if c.Status == models.CaseStatusFailed {
		score += s.weights.FailedCase
	}

	if c.LastExecutionTime != nil {
		days := s.now().Sub(*c.LastExecutionTime).Hours() / 24
		if days > 0 {
			interval := days / stalenessCapDays
			if interval > 1 {
				interval = 1
			}
			score += interval * s.weights.LongInterval
		}
	}

	// First matching prefix only, not cumulative.
	for _, dir := range s.priorityDirs {
		if strings.HasPrefix(c.RelativePath, dir) {
			score += s.weights.PriorityDir
			break
		}
	}

	if c.AvgDuration > 0 {
		score += 1.0 / (1.0 + c.AvgDuration/60) * s.weights.ShortDuration
	}

	return score
}

// Options narrows and bounds a selection.
type Options struct {
	Limit        int
	IncludePaths []string
	ExcludePaths []string
}

// Select filters the pool by path prefixes, ranks it highest priority
// first, and caps the result. Ties keep discovery order (stable sort).
func (s *Selector) Select(pool models.TestCases, opts Options) models.TestCases {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	type scored struct {
		c     *models.TestCase
		score float64
	}

	candidates := make([]scored, 0, len(pool))

	for _, c := range pool {
		if !c.IsActive {
			continue
		}
		if !matchesPaths(c.RelativePath, opts.IncludePaths, opts.ExcludePaths) {
			continue
		}
		if score := s.Score(c); score >= 0 {
			candidates = append(candidates, scored{c: c, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	selected := make(models.TestCases, len(candidates))
	for i, sc := range candidates {
		selected[i] = sc.c
	}

	return selected
}

func matchesPaths(path string, include, exclude []string) bool {
	if len(include) > 0 {
		matched := false
		for _, prefix := range include {
			if strings.HasPrefix(path, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, prefix := range exclude {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}

	return true
}
