package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/poseidon/internal/properties"
	"github.com/forest-guardian/poseidon/internal/raster"
	"github.com/forest-guardian/poseidon/internal/utils"
	"github.com/sirupsen/logrus"
)

type CorruptArchiveError struct {
	Archive string
	Err     error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt ZIP file %s: %v", filepath.Base(e.Archive), e.Err)
}

func (e *CorruptArchiveError) Unwrap() error { return e.Err }

type MemberExtractionError struct {
	Archive string
	Member  string
	Err     error
}

func (e *MemberExtractionError) Error() string {
	return fmt.Sprintf("error extracting %s from %s: %v", e.Member, filepath.Base(e.Archive), e.Err)
}

func (e *MemberExtractionError) Unwrap() error { return e.Err }

type FileProcessor interface {
	Process(path string) raster.Result
}

// Report describes what happened to one archive.
type Report struct {
	Archive          string
	Members          []string
	Batches          [][]string
	Results          []raster.Result
	ExtractionErrors []error
	DeleteErrors     []error
	// Missing holds members whose extracted file was gone when their turn
	// came, which happens when an archive repeats a name within one batch.
	Missing []string
}

func (r Report) Patches() int {
	total := 0
	for _, result := range r.Results {
		total += result.Patches
	}
	return total
}

func (r Report) SkippedRasters() int {
	skipped := len(r.ExtractionErrors)
	for _, result := range r.Results {
		if result.Skipped() {
			skipped++
		}
	}
	return skipped
}

type Extractor struct {
	workspace *Workspace
	batchSize int
	suffixes  []string
	processor FileProcessor
	log       logrus.FieldLogger
}

func NewExtractor(cfg properties.Config, workspace *Workspace, processor FileProcessor, log logrus.FieldLogger) *Extractor {
	return &Extractor{
		workspace: workspace,
		batchSize: cfg.BatchSize,
		suffixes:  cfg.RasterSuffixes,
		processor: processor,
		log:       log,
	}
}

func memberNames(files []*zip.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

func rasterFiles(files []*zip.File, suffixes []string) []*zip.File {
	var rasters []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if utils.HasAnySuffixFold(f.Name, suffixes) {
			rasters = append(rasters, f)
		}
	}
	return rasters
}

// Extract processes every raster member of the archive, batch by batch.
// Only an unreadable archive or a workspace that cannot be wiped fails the
// whole archive; member and raster failures are collected in the Report.
func (e *Extractor) Extract(archivePath string) (Report, error) {
	report := Report{Archive: archivePath}
	log := e.log.WithField("archive", filepath.Base(archivePath))
	log.Info("Processing ZIP")

	zr, err := zip.OpenReader(archivePath)
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return report, &CorruptArchiveError{Archive: archivePath, Err: err}
	}
	defer zr.Close()

	rasters := rasterFiles(zr.File, e.suffixes)
	report.Members = memberNames(rasters)
	batches := utils.Chunk(rasters, e.batchSize)
	log.WithField("members", len(rasters)).Infof("Found %d raster files in %s", len(rasters), filepath.Base(archivePath))

	for i, batch := range batches {
		names := memberNames(batch)
		report.Batches = append(report.Batches, names)

		batchLog := log.WithFields(logrus.Fields{"batch": i + 1, "batches": len(batches)})
		batchLog.WithField("members", names).Info("Processing batch")

		err := e.workspace.Scoped(func(dir string) {
			e.runBatch(dir, archivePath, batch, &report, batchLog)
		})
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (e *Extractor) runBatch(dir, archivePath string, batch []*zip.File, report *Report, log logrus.FieldLogger) {
	extracted := make([]string, len(batch))
	for i, f := range batch {
		path, err := extractMember(f, dir)
		if err != nil {
			extractErr := &MemberExtractionError{Archive: archivePath, Member: f.Name, Err: err}
			report.ExtractionErrors = append(report.ExtractionErrors, extractErr)
			log.WithError(extractErr).Warn("Skipping member")
			continue
		}
		extracted[i] = path
		log.WithField("member", f.Name).Debug("Extracted")
	}

	for i, path := range extracted {
		if path == "" {
			continue
		}
		// A later entry with the same name overwrote this file and the
		// earlier copy already consumed and deleted it.
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			report.Missing = append(report.Missing, batch[i].Name)
			log.WithField("member", batch[i].Name).Warn("File not found")
			continue
		}
		e.processAndDelete(path, batch[i].Name, report, log)
	}
}

func (e *Extractor) processAndDelete(path, member string, report *Report, log logrus.FieldLogger) {
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			report.DeleteErrors = append(report.DeleteErrors, err)
			log.WithError(err).WithField("member", member).Warn("Could not delete extracted file")
			return
		}
		log.WithField("member", member).Debug("Deleted")
	}()
	report.Results = append(report.Results, e.processor.Process(path))
}

func extractMember(f *zip.File, dir string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(f.Name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal member path %q", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", err
	}

	src, err := f.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return "", err
	}
	return target, nil
}
