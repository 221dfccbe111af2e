package selector

import (
	"testing"
	"time"

	"github.com/gantry-io/gantry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = func() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestSelector(dirs ...string) *Selector {
	return New(DefaultWeights(), dirs).WithClock(clock)
}

func TestScoreExecutingSentinel(t *testing.T) {
	s := newTestSelector()

	score := s.Score(&models.TestCase{Status: models.CaseStatusExecuting})
	assert.Equal(t, float64(ExecutingScore), score)
}

func TestScoreNewCase(t *testing.T) {
	s := newTestSelector()

	score := s.Score(&models.TestCase{Status: models.CaseStatusNotExecuted})
	assert.Equal(t, 1.0, score)
}

func TestScoreFailedCase(t *testing.T) {
	s := newTestSelector()

	score := s.Score(&models.TestCase{Status: models.CaseStatusFailed})
	assert.Equal(t, 0.8, score)
}

func TestScoreStalenessMonotoneAndCapped(t *testing.T) {
	s := newTestSelector()

	scoreAt := func(age time.Duration) float64 {
		last := clock().Add(-age)
		return s.Score(&models.TestCase{
			Status:            models.CaseStatusPassed,
			LastExecutionTime: &last,
		})
	}

	day := scoreAt(24 * time.Hour)
	week := scoreAt(7 * 24 * time.Hour)
	month := scoreAt(30 * 24 * time.Hour)
	year := scoreAt(365 * 24 * time.Hour)

	assert.Less(t, day, week)
	assert.Less(t, week, month)

	// Beyond 30 days the contribution saturates at the full weight.
	assert.Equal(t, 0.6, month)
	assert.Equal(t, month, year)
}

func TestScorePriorityDirFirstMatchOnly(t *testing.T) {
	s := newTestSelector("critical/", "critical/auth/")

	score := s.Score(&models.TestCase{
		Status:       models.CaseStatusPassed,
		RelativePath: "critical/auth/login_test.py",
	})

	// Both prefixes match but only one contribution applies.
	assert.Equal(t, 0.5, score)
}

func TestScoreShortDurationPreference(t *testing.T) {
	s := newTestSelector()

	quick := s.Score(&models.TestCase{Status: models.CaseStatusPassed, AvgDuration: 10})
	slow := s.Score(&models.TestCase{Status: models.CaseStatusPassed, AvgDuration: 600})

	assert.Greater(t, quick, slow)

	// avg of 60s sits exactly halfway.
	halfway := s.Score(&models.TestCase{Status: models.CaseStatusPassed, AvgDuration: 60})
	assert.InDelta(t, 0.15, halfway, 1e-9)
}

func TestSelectExcludesExecutingAndInactive(t *testing.T) {
	s := newTestSelector()

	pool := models.TestCases{
		{CaseHash: "a", Status: models.CaseStatusNotExecuted, IsActive: true},
		{CaseHash: "b", Status: models.CaseStatusExecuting, IsActive: true},
		{CaseHash: "c", Status: models.CaseStatusNotExecuted, IsActive: false},
	}

	selected := s.Select(pool, Options{})
	require.Len(t, selected, 1)
	assert.Equal(t, "a", selected[0].CaseHash)
}

func TestSelectOrdersByScoreDescending(t *testing.T) {
	s := newTestSelector()

	pool := models.TestCases{
		{CaseHash: "passed", Status: models.CaseStatusPassed, IsActive: true},
		{CaseHash: "new", Status: models.CaseStatusNotExecuted, IsActive: true},
		{CaseHash: "failed", Status: models.CaseStatusFailed, IsActive: true},
	}

	selected := s.Select(pool, Options{})
	require.Len(t, selected, 3)
	assert.Equal(t, "new", selected[0].CaseHash)
	assert.Equal(t, "failed", selected[1].CaseHash)
	assert.Equal(t, "passed", selected[2].CaseHash)
}

func TestSelectTiesKeepPoolOrder(t *testing.T) {
	s := newTestSelector()

	pool := models.TestCases{
		{CaseHash: "first", Status: models.CaseStatusNotExecuted, IsActive: true},
		{CaseHash: "second", Status: models.CaseStatusNotExecuted, IsActive: true},
		{CaseHash: "third", Status: models.CaseStatusNotExecuted, IsActive: true},
	}

	selected := s.Select(pool, Options{})
	require.Len(t, selected, 3)
	for i, want := range []string{"first", "second", "third"} {
		assert.Equal(t, want, selected[i].CaseHash)
	}
}

func TestSelectPathFilters(t *testing.T) {
	s := newTestSelector()

	pool := models.TestCases{
		{CaseHash: "a", RelativePath: "smoke/a.py", Status: models.CaseStatusNotExecuted, IsActive: true},
		{CaseHash: "b", RelativePath: "smoke/slow/b.py", Status: models.CaseStatusNotExecuted, IsActive: true},
		{CaseHash: "c", RelativePath: "regression/c.py", Status: models.CaseStatusNotExecuted, IsActive: true},
	}

	selected := s.Select(pool, Options{
		IncludePaths: []string{"smoke/"},
		ExcludePaths: []string{"smoke/slow/"},
	})

	require.Len(t, selected, 1)
	assert.Equal(t, "a", selected[0].CaseHash)
}

func TestSelectLimit(t *testing.T) {
	s := newTestSelector()

	pool := make(models.TestCases, 10)
	for i := range pool {
		pool[i] = &models.TestCase{
			CaseHash: string(rune('a' + i)),
			Status:   models.CaseStatusNotExecuted,
			IsActive: true,
		}
	}

	selected := s.Select(pool, Options{Limit: 3})
	assert.Len(t, selected, 3)
}
