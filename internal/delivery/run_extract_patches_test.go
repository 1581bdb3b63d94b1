package delivery

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forest-guardian/poseidon/internal/archive"
	"github.com/forest-guardian/poseidon/internal/properties"
	"github.com/forest-guardian/poseidon/internal/raster"
	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	processed []string
}

func (c *countingProcessor) Process(path string) raster.Result {
	c.processed = append(c.processed, filepath.Base(path))
	if strings.HasPrefix(filepath.Base(path), "rgb") {
		return raster.Result{Path: path, Err: &raster.BandCountError{Path: path, Have: 3, Want: 8}}
	}
	return raster.Result{Path: path, Patches: 4}
}

func testConfig(t *testing.T) properties.Config {
	t.Helper()
	root := t.TempDir()
	cfg := properties.DefaultConfig()
	cfg.InputDir = filepath.Join(root, "zips")
	cfg.WorkspaceDir = filepath.Join(root, "temp_unzip")
	cfg.OutputDir = filepath.Join(root, "water_patches")
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0755))
	return cfg
}

func writeArchive(t *testing.T, path string, members ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m)
		require.NoError(t, err)
		fmt.Fprintf(w, "raster %s", m)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func newTestPipeline(cfg properties.Config) (*Pipeline, *countingProcessor, *test.Hook) {
	logger, hook := test.NewNullLogger()
	processor := &countingProcessor{}
	p := NewPipelineWithProcessor(cfg, processor, logger)
	p.Progress = io.Discard
	return p, processor, hook
}

func TestRunSkipsCorruptArchive(t *testing.T) {
	cfg := testConfig(t)
	writeArchive(t, filepath.Join(cfg.InputDir, "a.zip"), "a1.tif", "a2.tif")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir, "b.zip"), []byte("garbage"), 0644))
	writeArchive(t, filepath.Join(cfg.InputDir, "c.ZIP"), "c1.tif")

	p, processor, hook := newTestPipeline(cfg)
	summary, err := p.Run()
	require.NoError(t, err)

	require.Len(t, summary.Archives, 3)
	assert.Equal(t, 2, summary.Processed())
	assert.Equal(t, 1, summary.Failed())
	assert.False(t, summary.AllFailed())
	assert.Equal(t, StatusCorrupt, summary.Archives[1].Status)
	assert.Equal(t, []string{"a1.tif", "a2.tif", "c1.tif"}, processor.processed)
	assert.Equal(t, 12, summary.Patches())

	corruptLogs := 0
	for _, entry := range hook.AllEntries() {
		err, _ := entry.Data[logrus.ErrorKey].(error)
		var corrupt *archive.CorruptArchiveError
		if entry.Level == logrus.ErrorLevel && errors.As(err, &corrupt) {
			corruptLogs++
		}
	}
	assert.Equal(t, 1, corruptLogs)
}

func TestRunBatchesAndWipes(t *testing.T) {
	cfg := testConfig(t)
	var members []string
	for i := 1; i <= 7; i++ {
		members = append(members, fmt.Sprintf("tile_%d.tif", i))
	}
	writeArchive(t, filepath.Join(cfg.InputDir, "scene.zip"), members...)

	p, processor, _ := newTestPipeline(cfg)
	summary, err := p.Run()
	require.NoError(t, err)

	assert.Equal(t, members, processor.processed)
	assert.Equal(t, 3, summary.Archives[0].Batches)
	// Startup wipe plus an entry and exit wipe for each of the 3 batches.
	assert.Equal(t, 7, p.Workspace().Resets())

	entries, err := os.ReadDir(cfg.WorkspaceDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunContinuesAfterBandCountError(t *testing.T) {
	cfg := testConfig(t)
	writeArchive(t, filepath.Join(cfg.InputDir, "mixed.zip"), "good_1.tif", "rgb.tif", "good_2.tif")

	p, processor, _ := newTestPipeline(cfg)
	summary, err := p.Run()
	require.NoError(t, err)

	assert.Equal(t, []string{"good_1.tif", "rgb.tif", "good_2.tif"}, processor.processed)
	assert.Equal(t, 8, summary.Patches())
	assert.Equal(t, 2, summary.Archives[0].Rasters)
	assert.Equal(t, 1, summary.Archives[0].Skipped)
}

func TestRunSetupFailures(t *testing.T) {
	t.Run("missing input directory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.InputDir = filepath.Join(cfg.InputDir, "nope")
		p, processor, _ := newTestPipeline(cfg)

		_, err := p.Run()
		var setupErr *FatalSetupError
		require.ErrorAs(t, err, &setupErr)
		assert.Equal(t, "list archives", setupErr.Op)
		assert.Empty(t, processor.processed)
	})

	t.Run("output directory blocked by a file", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.OutputDir, []byte("x"), 0644))
		writeArchive(t, filepath.Join(cfg.InputDir, "a.zip"), "a.tif")
		p, processor, _ := newTestPipeline(cfg)

		_, err := p.Run()
		var setupErr *FatalSetupError
		require.ErrorAs(t, err, &setupErr)
		assert.Equal(t, "create output directory", setupErr.Op)
		assert.Empty(t, processor.processed)
	})
}

func TestRunClearsStaleWorkspace(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.WorkspaceDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.WorkspaceDir, "stale.tif"), []byte("old"), 0644))

	p, _, _ := newTestPipeline(cfg)
	summary, err := p.Run()
	require.NoError(t, err)
	assert.Empty(t, summary.Archives)
	assert.False(t, summary.AllFailed())
	assert.NoFileExists(t, filepath.Join(cfg.WorkspaceDir, "stale.tif"))
}

func TestRunAllArchivesCorrupt(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir, "x.zip"), nil, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.InputDir, "folder.zip"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.InputDir, "notes.txt"), []byte("n"), 0644))

	p, _, _ := newTestPipeline(cfg)
	summary, err := p.Run()
	require.NoError(t, err)
	require.Len(t, summary.Archives, 1)
	assert.True(t, summary.AllFailed())
}

func TestSummaryCSV(t *testing.T) {
	summary := Summary{Archives: []ArchiveSummary{
		{Archive: "a.zip", Status: StatusProcessed, Members: 2, Batches: 1, Rasters: 2, Patches: 8},
		{Archive: "b.zip", Status: StatusCorrupt, Error: "zip: not a valid zip file"},
	}}

	var buf bytes.Buffer
	require.NoError(t, summary.WriteCSV(&buf))

	var rows []*ArchiveSummary
	require.NoError(t, gocsv.UnmarshalString(buf.String(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "a.zip", rows[0].Archive)
	assert.Equal(t, 8, rows[0].Patches)
	assert.Equal(t, StatusCorrupt, rows[1].Status)
	assert.True(t, strings.HasPrefix(buf.String(), "archive,status,members,batches,rasters_processed,rasters_skipped,patches,error"))
}

func TestSummaryPrint(t *testing.T) {
	summary := Summary{Archives: []ArchiveSummary{
		{Archive: "a.zip", Status: StatusProcessed, Members: 2, Rasters: 2, Patches: 8},
		{Archive: "b.zip", Status: StatusCorrupt, Error: "zip: not a valid zip file"},
	}}
	var buf bytes.Buffer
	summary.Print(&buf)
	assert.Contains(t, buf.String(), "a.zip: 8 patches from 2/2 rasters")
	assert.Contains(t, buf.String(), "b.zip: corrupt")
	assert.Contains(t, buf.String(), "Processed 1/2 ZIP files, generated 8 patches")
}
