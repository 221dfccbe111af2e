package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gantry-io/gantry/internal/models"
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

func writeArtifact(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRescanDiscoversArtifacts(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()

	writeArtifact(t, root, "smoke/login_test.py", "print('ok')")
	writeArtifact(t, root, "regression/DeviceTest.java", "class DeviceTest {}")
	writeArtifact(t, root, "notes/readme.txt", "not a test")

	res, err := New(db, root).Rescan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.New)
	assert.Zero(t, res.Changed)
	assert.Zero(t, res.Deleted)

	var tc models.TestCase
	require.NoError(t, db.First(&tc, "relative_path = ?", "smoke/login_test.py").Error)
	assert.Equal(t, models.CaseHashFor("smoke/login_test.py"), tc.CaseHash)
	assert.Equal(t, models.CaseStatusNotExecuted, tc.Status)
	assert.True(t, tc.IsActive)
}

func TestRescanIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()
	writeArtifact(t, root, "a_test.py", "print('a')")

	scan := New(db, root)
	_, err := scan.Rescan(context.Background())
	require.NoError(t, err)

	res, err := scan.Rescan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.New)
	assert.Zero(t, res.Changed)
	assert.Zero(t, res.Deleted)
}

func TestRescanDetectsChangeAndResetsStatus(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()
	writeArtifact(t, root, "a_test.py", "print('v1')")

	scan := New(db, root)
	_, err := scan.Rescan(context.Background())
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.TestCase{}).
		Where("relative_path = ?", "a_test.py").
		Update("status", models.CaseStatusPassed).Error)

	writeArtifact(t, root, "a_test.py", "print('v2')")

	res, err := scan.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Changed)

	var tc models.TestCase
	require.NoError(t, db.First(&tc, "relative_path = ?", "a_test.py").Error)
	assert.Equal(t, models.CaseStatusNotExecuted, tc.Status)
}

func TestRescanPreservesManuallyModifiedStatus(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()
	writeArtifact(t, root, "a_test.py", "print('v1')")

	scan := New(db, root)
	_, err := scan.Rescan(context.Background())
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.TestCase{}).
		Where("relative_path = ?", "a_test.py").
		Updates(map[string]interface{}{
			"status":               models.CaseStatusBlocked,
			"is_manually_modified": true,
		}).Error)

	writeArtifact(t, root, "a_test.py", "print('v2')")

	_, err = scan.Rescan(context.Background())
	require.NoError(t, err)

	var tc models.TestCase
	require.NoError(t, db.First(&tc, "relative_path = ?", "a_test.py").Error)
	assert.Equal(t, models.CaseStatusBlocked, tc.Status)
}

func TestRescanDeactivatesMissingArtifacts(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()
	writeArtifact(t, root, "keep_test.py", "print('keep')")
	writeArtifact(t, root, "drop_test.py", "print('drop')")

	scan := New(db, root)
	_, err := scan.Rescan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "drop_test.py")))

	res, err := scan.Rescan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deleted)

	var tc models.TestCase
	require.NoError(t, db.First(&tc, "relative_path = ?", "drop_test.py").Error)
	assert.False(t, tc.IsActive)
}

func TestRescanReactivatesRestoredArtifact(t *testing.T) {
	db := openTestDB(t)
	root := t.TempDir()
	writeArtifact(t, root, "flaky_test.py", "print('here')")

	scan := New(db, root)
	_, err := scan.Rescan(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "flaky_test.py")))
	_, err = scan.Rescan(context.Background())
	require.NoError(t, err)

	writeArtifact(t, root, "flaky_test.py", "print('here')")
	_, err = scan.Rescan(context.Background())
	require.NoError(t, err)

	var tc models.TestCase
	require.NoError(t, db.First(&tc, "relative_path = ?", "flaky_test.py").Error)
	assert.True(t, tc.IsActive)
}

func TestCaseHashNormalizesSeparators(t *testing.T) {
	assert.Equal(t,
		models.CaseHashFor(`smoke\login_test.py`),
		models.CaseHashFor("smoke/login_test.py"))
}
