package testcase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/internal/scanner"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func seedCase(t *testing.T, db *gorm.DB, rel string, status models.CaseStatus) string {
	t.Helper()
	hash := models.CaseHashFor(rel)
	require.NoError(t, db.Create(&models.TestCase{
		CaseHash:     hash,
		Name:         filepath.Base(rel),
		FullPath:     "/cases/" + rel,
		RelativePath: rel,
		Status:       status,
		IsActive:     true,
	}).Error)
	return hash
}

func statusPtr(s models.CaseStatus) *models.CaseStatus { return &s }

func strPtr(s string) *string { return &s }

func TestUpdateMarksManualModification(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	verifiedAt := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return verifiedAt }

	hash := seedCase(t, db, "smoke/login_test.py", models.CaseStatusFailed)

	tc, err := svc.Update(context.Background(), hash, &UpdateRequest{
		Status:            statusPtr(models.CaseStatusBlocked),
		VerificationNotes: strPtr("hardware revision mismatch"),
		User:              "operator",
	})
	require.NoError(t, err)

	assert.Equal(t, models.CaseStatusBlocked, tc.Status)
	assert.True(t, tc.IsManuallyModified)
	assert.Equal(t, "operator", tc.VerifiedBy)
	require.NotNil(t, tc.VerifiedAt)
	assert.True(t, tc.VerifiedAt.Equal(verifiedAt))
	assert.Equal(t, "hardware revision mismatch", tc.VerificationNotes)
}

func TestUpdateNotesDefaultToUnknownUser(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	hash := seedCase(t, db, "a_test.py", models.CaseStatusPassed)

	tc, err := svc.Update(context.Background(), hash, &UpdateRequest{
		VerificationNotes: strPtr("reviewed"),
	})
	require.NoError(t, err)

	assert.Equal(t, "unknown", tc.VerifiedBy)
	// Notes alone do not pin the status.
	assert.False(t, tc.IsManuallyModified)
	assert.Equal(t, models.CaseStatusPassed, tc.Status)
}

func TestUpdateRejectsUnknownStatus(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	hash := seedCase(t, db, "a_test.py", models.CaseStatusPassed)

	_, err := svc.Update(context.Background(), hash, &UpdateRequest{
		Status: statusPtr(models.CaseStatus("verified")),
	})
	assert.ErrorIs(t, err, ErrUnknownStatus)

	stored, err := svc.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusPassed, stored.Status)
	assert.False(t, stored.IsManuallyModified)
}

func TestUpdateUnknownCase(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	_, err := svc.Update(context.Background(), "no-such-hash", &UpdateRequest{
		Status: statusPtr(models.CaseStatusBlocked),
	})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestManualStatusSurvivesRescan(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	root := t.TempDir()
	path := filepath.Join(root, "a_test.py")
	require.NoError(t, os.WriteFile(path, []byte("print('v1')"), 0o644))

	scan := scanner.New(db, root)
	_, err := scan.Rescan(context.Background())
	require.NoError(t, err)

	hash := models.CaseHashFor("a_test.py")
	_, err = svc.Update(context.Background(), hash, &UpdateRequest{
		Status: statusPtr(models.CaseStatusBlocked),
		User:   "operator",
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("print('v2')"), 0o644))
	_, err = scan.Rescan(context.Background())
	require.NoError(t, err)

	stored, err := svc.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, models.CaseStatusBlocked, stored.Status,
		"a manually verified status must survive artifact changes")
}

func TestListDefaultOrderSurfacesAttention(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	seedCase(t, db, "c_test.py", models.CaseStatusPassed)
	seedCase(t, db, "b_test.py", models.CaseStatusFailed)
	seedCase(t, db, "a_test.py", models.CaseStatusNotExecuted)

	cases, err := svc.List(context.Background(), &ListRequest{})
	require.NoError(t, err)
	require.Len(t, cases, 3)

	assert.Equal(t, models.CaseStatusNotExecuted, cases[0].Status)
	assert.Equal(t, models.CaseStatusFailed, cases[1].Status)
	assert.Equal(t, models.CaseStatusPassed, cases[2].Status)
}

func TestListFilters(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	seedCase(t, db, "smoke/login_test.py", models.CaseStatusPassed)
	seedCase(t, db, "smoke/logout_test.py", models.CaseStatusFailed)
	seedCase(t, db, "regression/boot_test.py", models.CaseStatusPassed)

	byPath, err := svc.List(context.Background(), &ListRequest{Path: "smoke/"})
	require.NoError(t, err)
	assert.Len(t, byPath, 2)

	byStatus, err := svc.List(context.Background(), &ListRequest{Status: "failed"})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, "smoke/logout_test.py", byStatus[0].RelativePath)

	bySearch, err := svc.List(context.Background(), &ListRequest{Search: "boot"})
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "regression/boot_test.py", bySearch[0].RelativePath)
}

func TestStatsGroupsByTopLevelDirectory(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	seedCase(t, db, "smoke/a_test.py", models.CaseStatusPassed)
	seedCase(t, db, "smoke/b_test.py", models.CaseStatusFailed)
	seedCase(t, db, "smoke/c_test.py", models.CaseStatusPassed)
	seedCase(t, db, "regression/d_test.py", models.CaseStatusNotExecuted)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "regression", stats[0].Category)
	assert.Equal(t, 1, stats[0].NotExecuted)
	assert.Zero(t, stats[0].PassRate)

	assert.Equal(t, "smoke", stats[1].Category)
	assert.Equal(t, 3, stats[1].Total)
	assert.Equal(t, 2, stats[1].Passed)
	assert.Equal(t, 1, stats[1].Failed)
	assert.InDelta(t, 66.67, stats[1].PassRate, 0.001)
}
