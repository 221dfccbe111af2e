// Package scanner discovers test artifacts under the configured root
// and reconciles them with the case table. Case identities use the
// same normalized-path hash scheme as the selector, so a re-scan never
// changes a case's identity.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/pkg/log"
	"gorm.io/gorm"
)

var defaultPatterns = []string{"**/*.py", "**/*.java"}

// Result summarizes one reconciliation pass.
type Result struct {
	New     int `json:"new_count"`
	Changed int `json:"changed_count"`
	Deleted int `json:"deleted_count"`
}

// Scanner reconciles on-disk artifacts with the case table.
type Scanner struct {
	db       *gorm.DB
	root     string
	patterns []string
}

func New(db *gorm.DB, root string, patterns ...string) *Scanner {
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	return &Scanner{db: db, root: root, patterns: patterns}
}

// Rescan walks the root, upserts new and changed cases, and
// deactivates cases whose artifacts disappeared. A manually modified
// case status is never overwritten by a re-scan.
func (s *Scanner) Rescan(ctx context.Context) (Result, error) {
	var result Result

	seen := make(map[string]struct{})
	fsys := os.DirFS(s.root)

	for _, pattern := range s.patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return result, err
		}

		for _, rel := range matches {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			outcome, err := s.reconcile(ctx, fsys, rel)
			if err != nil {
				log.Warn("failed to reconcile artifact", "path", rel, "error", err)
				continue
			}

			seen[models.CaseHashFor(rel)] = struct{}{}

			switch outcome {
			case outcomeNew:
				result.New++
			case outcomeChanged:
				result.Changed++
			}
		}
	}

	deleted, err := s.deactivateMissing(ctx, seen)
	if err != nil {
		return result, err
	}
	result.Deleted = deleted

	return result, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeNew
	outcomeChanged
)

func (s *Scanner) reconcile(ctx context.Context, fsys fs.FS, rel string) (outcome, error) {
	info, err := fs.Stat(fsys, rel)
	if err != nil {
		return outcomeUnchanged, err
	}

	content, err := fs.ReadFile(fsys, rel)
	if err != nil {
		return outcomeUnchanged, err
	}

	sum := sha256.Sum256(content)
	contentHash := hex.EncodeToString(sum[:])
	caseHash := models.CaseHashFor(rel)
	mtime := info.ModTime()

	var existing models.TestCase
	err = s.db.WithContext(ctx).First(&existing, "case_hash = ?", caseHash).Error

	if err == gorm.ErrRecordNotFound {
		return outcomeNew, s.db.WithContext(ctx).Create(&models.TestCase{
			CaseHash:     caseHash,
			Name:         filepath.Base(rel),
			FullPath:     filepath.Join(s.root, rel),
			RelativePath: rel,
			FileSize:     info.Size(),
			FileMtime:    &mtime,
			ContentHash:  contentHash,
			Status:       models.CaseStatusNotExecuted,
			IsActive:     true,
		}).Error
	}
	if err != nil {
		return outcomeUnchanged, err
	}

	if existing.ContentHash == contentHash && existing.IsActive {
		return outcomeUnchanged, nil
	}

	updates := map[string]interface{}{
		"file_size":    info.Size(),
		"file_mtime":   &mtime,
		"content_hash": contentHash,
		"full_path":    filepath.Join(s.root, rel),
		"is_active":    true,
	}

	// A changed artifact invalidates its previous verdict, unless a
	// human pinned it.
	if existing.ContentHash != contentHash && !existing.IsManuallyModified {
		updates["status"] = models.CaseStatusNotExecuted
	}

	if err := s.db.WithContext(ctx).Model(&models.TestCase{}).
		Where("case_hash = ?", caseHash).
		Updates(updates).Error; err != nil {
		return outcomeUnchanged, err
	}

	if existing.ContentHash != contentHash {
		return outcomeChanged, nil
	}
	return outcomeUnchanged, nil
}

func (s *Scanner) deactivateMissing(ctx context.Context, seen map[string]struct{}) (int, error) {
	var active models.TestCases
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&active).Error; err != nil {
		return 0, err
	}

	deleted := 0
	for _, tc := range active {
		if _, ok := seen[tc.CaseHash]; ok {
			continue
		}

		if err := s.db.WithContext(ctx).Model(&models.TestCase{}).
			Where("case_hash = ?", tc.CaseHash).
			Update("is_active", false).Error; err != nil {
			return deleted, err
		}
		deleted++
	}

	return deleted, nil
}

