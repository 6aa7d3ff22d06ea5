package reliability

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/foresight/internal/database"
)

func newMaintenanceDB(t *testing.T, dir, name string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: database.ProfileArchive,
		Name:    name,
	})
	require.NoError(t, err, "opening %s database should succeed", name)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMaintenanceSweepsHealthyStores(t *testing.T) {
	dir := t.TempDir()
	db := newMaintenanceDB(t, dir, "cycles")

	_, err := db.Conn().Exec(`CREATE TABLE cycles (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := db.Conn().Exec(`INSERT INTO cycles (body) VALUES (?)`, "archived cycle payload")
		require.NoError(t, err)
	}
	_, err = db.Conn().Exec(`DELETE FROM cycles WHERE id % 2 = 0`)
	require.NoError(t, err)

	job := NewMaintenanceJob(map[string]Database{"cycles": db}, dir, zerolog.Nop())

	assert.NoError(t, job.Run(), "sweep over a healthy store should succeed")
	assert.Equal(t, "maintenance", job.Name())

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM cycles`).Scan(&count))
	assert.Equal(t, 25, count, "VACUUM must not drop surviving rows")
}

func TestMaintenanceSweepsMultipleStores(t *testing.T) {
	dir := t.TempDir()
	cycles := newMaintenanceDB(t, dir, "cycles")
	klines := newMaintenanceDB(t, dir, "klines")

	for _, db := range []*database.DB{cycles, klines} {
		_, err := db.Conn().Exec(`CREATE TABLE t (v TEXT)`)
		require.NoError(t, err)
	}

	job := NewMaintenanceJob(map[string]Database{
		"cycles": cycles,
		"klines": klines,
	}, dir, zerolog.Nop())

	assert.NoError(t, job.Run(), "sweep should cover every registered store")
}

func TestMaintenanceFailsOnMissingDataDir(t *testing.T) {
	dir := t.TempDir()
	db := newMaintenanceDB(t, dir, "cycles")

	job := NewMaintenanceJob(map[string]Database{"cycles": db}, filepath.Join(dir, "gone"), zerolog.Nop())

	err := job.Run()
	require.Error(t, err, "a data volume that cannot be statted should fail the sweep")
	assert.Contains(t, err.Error(), "failed to stat data volume")
}
