package delivery

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forest-guardian/poseidon/internal/archive"
	"github.com/forest-guardian/poseidon/internal/properties"
	"github.com/forest-guardian/poseidon/internal/raster"
	"github.com/forest-guardian/poseidon/internal/sentinel"
	"github.com/forest-guardian/poseidon/internal/utils"
	"github.com/forest-guardian/poseidon/output"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// FatalSetupError means the run could not start: nothing was processed.
type FatalSetupError struct {
	Op   string
	Path string
	Err  error
}

func (e *FatalSetupError) Error() string {
	return fmt.Sprintf("setup failed: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FatalSetupError) Unwrap() error { return e.Err }

type ArchiveExtractor interface {
	Extract(archivePath string) (archive.Report, error)
}

type Pipeline struct {
	RunID    string
	Progress io.Writer

	cfg       properties.Config
	workspace *archive.Workspace
	extractor ArchiveExtractor
	log       logrus.FieldLogger
}

// NewPipeline wires the GDAL-backed raster processor into a pipeline.
func NewPipeline(cfg properties.Config, opener sentinel.RasterOpener, log logrus.FieldLogger) *Pipeline {
	runID := uuid.NewString()
	log = log.WithField("run_id", runID)
	writer := output.NewFileWriter(cfg.OutputDir, cfg.PatchFormat)
	p := NewPipelineWithProcessor(cfg, raster.NewProcessor(cfg, opener, writer, log), log)
	p.RunID = runID
	return p
}

func NewPipelineWithProcessor(cfg properties.Config, processor archive.FileProcessor, log logrus.FieldLogger) *Pipeline {
	workspace := archive.NewWorkspace(cfg.WorkspaceDir)
	return &Pipeline{
		Progress:  os.Stderr,
		cfg:       cfg,
		workspace: workspace,
		extractor: archive.NewExtractor(cfg, workspace, processor, log),
		log:       log,
	}
}

func (p *Pipeline) Workspace() *archive.Workspace {
	return p.workspace
}

func (p *Pipeline) setup() ([]string, error) {
	if err := os.MkdirAll(p.cfg.OutputDir, 0755); err != nil {
		return nil, &FatalSetupError{Op: "create output directory", Path: p.cfg.OutputDir, Err: err}
	}
	if err := p.workspace.Reset(); err != nil {
		return nil, &FatalSetupError{Op: "reset workspace", Path: p.cfg.WorkspaceDir, Err: err}
	}
	archives, err := listArchives(p.cfg.InputDir, p.cfg.ArchiveSuffix)
	if err != nil {
		return nil, &FatalSetupError{Op: "list archives", Path: p.cfg.InputDir, Err: err}
	}
	return archives, nil
}

func listArchives(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var archives []string
	for _, entry := range entries {
		if entry.IsDir() || !utils.HasAnySuffixFold(entry.Name(), []string{suffix}) {
			continue
		}
		archives = append(archives, filepath.Join(dir, entry.Name()))
	}
	return archives, nil
}

// Run processes every archive of the input directory in listing order. The
// only error it returns is a *FatalSetupError; everything else is recorded
// in the Summary.
func (p *Pipeline) Run() (Summary, error) {
	summary := Summary{RunID: p.RunID}

	archives, err := p.setup()
	if err != nil {
		return summary, err
	}
	p.log.WithField("archives", len(archives)).Infof("Total ZIP files in '%s': %d", p.cfg.InputDir, len(archives))

	progress := p.Progress
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(len(archives),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Processing ZIP files"),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(progress) }),
	)

	for i, archivePath := range archives {
		report, err := p.extractor.Extract(archivePath)
		entry := summarize(report, archivePath, err)
		summary.Archives = append(summary.Archives, entry)

		log := p.log.WithFields(logrus.Fields{
			"archive":  filepath.Base(archivePath),
			"progress": fmt.Sprintf("%d/%d", i+1, len(archives)),
			"patches":  summary.Patches(),
		})
		var corrupt *archive.CorruptArchiveError
		switch {
		case errors.As(err, &corrupt):
			log.WithError(err).Errorf("Corrupt ZIP file: %s", filepath.Base(archivePath))
		case err != nil:
			log.WithError(err).Error("Archive aborted")
		default:
			log.Info("Archive processed")
		}
		bar.Add(1)
	}
	bar.Finish()

	p.log.WithFields(logrus.Fields{
		"archives":  len(summary.Archives),
		"processed": summary.Processed(),
		"failed":    summary.Failed(),
		"patches":   summary.Patches(),
	}).Info("Run complete")
	return summary, nil
}

func summarize(report archive.Report, archivePath string, err error) ArchiveSummary {
	entry := ArchiveSummary{
		Archive: filepath.Base(archivePath),
		Status:  StatusProcessed,
		Members: len(report.Members),
		Batches: len(report.Batches),
		Patches: report.Patches(),
		Skipped: report.SkippedRasters(),
		Err:     err,
	}
	for _, result := range report.Results {
		if !result.Skipped() {
			entry.Rasters++
		}
	}
	var corrupt *archive.CorruptArchiveError
	switch {
	case errors.As(err, &corrupt):
		entry.Status = StatusCorrupt
	case err != nil:
		entry.Status = StatusFailed
	}
	if err != nil {
		entry.Error = err.Error()
	}
	return entry
}
