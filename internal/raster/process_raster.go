package raster

import (
	"fmt"
	"path/filepath"

	"github.com/forest-guardian/poseidon/internal/dataset"
	"github.com/forest-guardian/poseidon/internal/properties"
	"github.com/forest-guardian/poseidon/internal/sentinel"
	"github.com/forest-guardian/poseidon/output"
	"github.com/sirupsen/logrus"
)

type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("error opening %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

type BandCountError struct {
	Path string
	Have int
	Want int
}

func (e *BandCountError) Error() string {
	return fmt.Sprintf("not enough bands in %s: have %d, want at least %d", e.Path, e.Have, e.Want)
}

// Result is the outcome of processing one raster file. Err is nil, an
// *OpenError, a *BandCountError or a *dataset.PatchWriteError.
type Result struct {
	Path    string
	Base    string
	Patches int
	Err     error
}

func (r Result) Skipped() bool { return r.Err != nil }

type Processor struct {
	opener        sentinel.RasterOpener
	sampler       dataset.Sampler
	ndwiThreshold float64
	epsilon       float64
	minBands      int
	log           logrus.FieldLogger
}

func NewProcessor(cfg properties.Config, opener sentinel.RasterOpener, writer dataset.PatchWriter, log logrus.FieldLogger) *Processor {
	return &Processor{
		opener: opener,
		sampler: dataset.Sampler{
			Size:     cfg.PatchSize,
			Coverage: cfg.CoverageThreshold,
			Writer:   writer,
		},
		ndwiThreshold: cfg.NDWIThreshold,
		epsilon:       cfg.Epsilon,
		minBands:      cfg.MinBands,
		log:           log,
	}
}

// Process extracts water patches from a single raster file. Failures are
// reported in the Result and logged; they never panic or abort the caller.
func (p *Processor) Process(path string) Result {
	result := Result{Path: path, Base: output.BaseName(path)}
	log := p.log.WithField("raster", filepath.Base(path))
	log.Debug("Processing raster")

	result.Patches, result.Err = p.process(path, result.Base)
	if result.Err != nil {
		log.WithError(result.Err).WithField("patches", result.Patches).Warn("Skipping raster")
		return result
	}
	log.WithField("patches", result.Patches).Infof("Generated %d patches from %s", result.Patches, filepath.Base(path))
	return result
}

func (p *Processor) process(path, base string) (int, error) {
	r, err := p.opener.Open(path)
	if err != nil {
		return 0, &OpenError{Path: path, Err: err}
	}
	defer r.Close()

	if bands := r.BandCount(); bands < p.minBands {
		return 0, &BandCountError{Path: path, Have: bands, Want: p.minBands}
	}

	stack, err := sentinel.ReadBandStack(r)
	if err != nil {
		return 0, &OpenError{Path: path, Err: err}
	}

	ndwi, err := sentinel.NormalizedDifference(stack.Green, stack.NIR, p.epsilon)
	if err != nil {
		return 0, &OpenError{Path: path, Err: err}
	}
	mask := dataset.Mask{
		Width:  stack.Width,
		Height: stack.Height,
		Data:   sentinel.WaterMask(ndwi, p.ndwiThreshold),
	}
	composite := dataset.Composite{
		Width:  stack.Width,
		Height: stack.Height,
		R:      stack.Red,
		G:      stack.Green,
		B:      stack.Blue,
	}
	return p.sampler.Sample(base, mask, composite)
}
