package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarkov-map/tracker/internal/api"
	"github.com/tarkov-map/tracker/internal/database"
	gormstorage "github.com/tarkov-map/tracker/internal/storage/gorm"
	"github.com/tarkov-map/tracker/internal/storage/memory"
	"github.com/tarkov-map/tracker/pkg/core"
)

func TestReportPath(t *testing.T) {
	assert.Equal(t, "a/session.png", reportPath("a/session.json.gz"))
	assert.Equal(t, "session.png", reportPath("session.json"))
}

func TestRunCLI_Unknown(t *testing.T) {
	assert.Equal(t, 2, runCLI("frobnicate", nil))
}

func TestRunCLI_MissingArgs(t *testing.T) {
	assert.Equal(t, 1, runCLI("report", nil))
	assert.Equal(t, 1, runCLI("export", []string{"-db", "missing.db"}))
}

// recordSession writes one session into a SQLite file the way the sqlite
// backend dump would.
func recordSession(t *testing.T, path string) {
	t.Helper()
	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	b := gormstorage.New(gormstorage.Dependencies{DB: db.DB, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.StartSession(&core.Session{ID: "s1", MapID: "customs", MapName: "Customs", StartedAt: now}))
	for i := 0; i < 4; i++ {
		require.NoError(t, b.RecordPosition(&core.TrackedPosition{
			MapID:     "customs",
			World:     core.Point{X: float64(i * 10), Y: 5},
			Timestamp: now.Add(time.Duration(i) * time.Second),
			State:     core.StateTracking,
			Epoch:     1,
		}))
	}
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())
	require.NoError(t, db.Close())
}

func TestExportAndReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	recordSession(t, dbPath)

	// a directory resolves to its newest dump
	m, err := openDB(dir)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	assert.Equal(t, dbPath, m.Path)

	var out bytes.Buffer
	require.NoError(t, listSessions(m.DB, &out))
	assert.Contains(t, out.String(), "s1")
	assert.Contains(t, out.String(), "customs")

	out.Reset()
	outDir := filepath.Join(dir, "export")
	require.NoError(t, exportSessions(m.DB, []string{"s1"}, outDir, true, &out))
	assert.Contains(t, out.String(), "4 positions")

	files, err := filepath.Glob(filepath.Join(outDir, "*.json.gz"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	exp, err := memory.ReadExport(files[0])
	require.NoError(t, err)
	assert.Equal(t, "Customs", exp.Session.MapName)
	assert.Len(t, exp.Positions, 4)

	out.Reset()
	png := filepath.Join(dir, "s1.png")
	require.NoError(t, cmdReport([]string{"-o", png, files[0]}, &out))
	assert.Contains(t, out.String(), "wrote "+png)
	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExportSessions_Unknown(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sessions.db")
	recordSession(t, dbPath)

	m, err := openDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	err = exportSessions(m.DB, []string{"nope"}, dir, false, &bytes.Buffer{})
	assert.ErrorContains(t, err, "nope")
}

func TestCmdMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maps.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"normalizedName": "customs", "name": "Customs"},
		{"normalizedName": "woods", "name": "Woods"}
	]`), 0644))

	var out bytes.Buffer
	require.NoError(t, cmdMaps([]string{"-maps", path}, &out))
	assert.Contains(t, out.String(), "customs")
	assert.Contains(t, out.String(), "Woods")
	assert.Contains(t, out.String(), "none")
}

func TestUploadFiles(t *testing.T) {
	var uploaded []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthcheck" {
			return
		}
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		uploaded = append(uploaded, r.FormValue("mapId")+" "+r.FormValue("duration"))
	}))
	defer server.Close()

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := memory.Export{
		Version: memory.ExportVersion,
		Session: core.Session{ID: "s1", MapID: "shoreline", StartedAt: start, EndedAt: start.Add(time.Minute)},
		Summary: memory.Summarize(nil, start, start.Add(time.Minute)),
	}
	path := filepath.Join(t.TempDir(), "s1.json.gz")
	require.NoError(t, memory.WriteExport(path, exp, true))

	var out bytes.Buffer
	require.NoError(t, uploadFiles(api.New(server.URL, "k"), []string{path}, &out))
	assert.Equal(t, []string{"shoreline 60.000000"}, uploaded)
	assert.Contains(t, out.String(), "uploaded "+path)
}
