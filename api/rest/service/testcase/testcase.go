// Package testcase exposes the scanned case inventory and the manual
// verification surface. A manually set status pins the case against
// scanner resets until the artifact itself changes hands again.
package testcase

import (
	"context"
	stderrors "errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/gantry-io/gantry/internal/models"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrUnknownStatus rejects a manual status outside the case lifecycle.
var ErrUnknownStatus = stderrors.New("unknown case status")

// statusPrecedence orders the default listing so cases needing
// attention surface first.
const statusPrecedence = "CASE status " +
	"WHEN 'not_executed' THEN 1 " +
	"WHEN 'failed' THEN 2 " +
	"WHEN 'executing' THEN 3 " +
	"WHEN 'passed' THEN 4 " +
	"ELSE 5 END"

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

type ListRequest struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string
	Status  string
	Path    string
	Search  string
}

func (s *Service) List(ctx context.Context, req *ListRequest) (models.TestCases, error) {
	var (
		cases = make(models.TestCases, 0)
		q     = s.db.WithContext(ctx).Where("is_active = ?", true)
	)

	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	if req.Path != "" {
		q = q.Where("relative_path LIKE ?", req.Path+"%")
	}

	if req.Search != "" {
		pattern := "%" + req.Search + "%"
		q = q.Where("name LIKE ? OR relative_path LIKE ?", pattern, pattern)
	}

	if len(req.OrderBy) == 0 {
		q = q.Order(statusPrecedence).Order("last_execution_time DESC")
	}
	for _, orderBy := range req.OrderBy {
		q = q.Order(orderBy)
	}

	if req.Limit > 0 {
		q = q.Limit(int(req.Limit))
	}

	if req.Offset > 0 {
		q = q.Offset(int(req.Offset))
	}

	return cases, q.Find(&cases).Error
}

func (s *Service) Get(ctx context.Context, hash string) (*models.TestCase, error) {
	var tc models.TestCase
	return &tc, s.db.WithContext(ctx).First(&tc, "case_hash = ?", hash).Error
}

// CategoryStats aggregates case outcomes per top-level directory.
type CategoryStats struct {
	Category    string  `json:"category"`
	Total       int     `json:"total"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	NotExecuted int     `json:"not_executed"`
	Executing   int     `json:"executing"`
	PassRate    float64 `json:"pass_rate"`
}

// Stats groups the active inventory by the first path segment. The
// aggregation happens in memory so sqlite and postgres agree on the
// grouping semantics.
func (s *Service) Stats(ctx context.Context) ([]CategoryStats, error) {
	var rows []struct {
		RelativePath string
		Status       models.CaseStatus
	}

	if err := s.db.WithContext(ctx).Model(&models.TestCase{}).
		Where("is_active = ?", true).
		Select("relative_path", "status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byCategory := map[string]*CategoryStats{}
	for _, row := range rows {
		category := row.RelativePath
		if i := strings.IndexByte(category, '/'); i >= 0 {
			category = category[:i]
		}

		stat, ok := byCategory[category]
		if !ok {
			stat = &CategoryStats{Category: category}
			byCategory[category] = stat
		}

		stat.Total++
		switch row.Status {
		case models.CaseStatusPassed:
			stat.Passed++
		case models.CaseStatusFailed:
			stat.Failed++
		case models.CaseStatusNotExecuted:
			stat.NotExecuted++
		case models.CaseStatusExecuting:
			stat.Executing++
		}
	}

	stats := make([]CategoryStats, 0, len(byCategory))
	for _, stat := range byCategory {
		if stat.Total > 0 {
			rate := float64(stat.Passed) / float64(stat.Total) * 100
			stat.PassRate = math.Round(rate*100) / 100
		}
		stats = append(stats, *stat)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].Category < stats[j].Category })
	return stats, nil
}

// UpdateRequest carries the manually editable fields. Pointers
// distinguish an absent field from its zero value.
type UpdateRequest struct {
	Status            *models.CaseStatus `json:"status,omitempty"`
	VerificationNotes *string            `json:"verification_notes,omitempty"`
	ResultDetails     *string            `json:"result_details,omitempty"`
	User              string             `json:"user,omitempty"`
}

// Update applies a manual verification. Setting a status marks the
// case manually modified, which the scanner honors on re-scan; notes
// record who verified and when.
func (s *Service) Update(ctx context.Context, hash string, req *UpdateRequest) (*models.TestCase, error) {
	tc, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}

	if req.Status != nil {
		if !validStatus(*req.Status) {
			return nil, errors.Wrapf(ErrUnknownStatus, "%q", *req.Status)
		}
		updates["status"] = *req.Status
		updates["is_manually_modified"] = true
	}

	if req.VerificationNotes != nil {
		user := req.User
		if user == "" {
			user = "unknown"
		}
		updates["verification_notes"] = *req.VerificationNotes
		updates["verified_by"] = user
		updates["verified_at"] = s.now()
	}

	if req.ResultDetails != nil {
		updates["result_details"] = *req.ResultDetails
	}

	if len(updates) == 0 {
		return tc, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.TestCase{}).
		Where("case_hash = ?", hash).
		Updates(updates).Error; err != nil {
		return nil, err
	}

	return s.Get(ctx, hash)
}

func validStatus(status models.CaseStatus) bool {
	switch status {
	case models.CaseStatusNotExecuted,
		models.CaseStatusPassed,
		models.CaseStatusFailed,
		models.CaseStatusBlocked,
		models.CaseStatusSkipped,
		models.CaseStatusExecuting:
		return true
	}
	return false
}
