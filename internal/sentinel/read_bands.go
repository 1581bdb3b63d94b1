package sentinel

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/poseidon/internal/properties"
)

// Raster is a multi-band image opened for reading. Band numbers are 1-based.
type Raster interface {
	BandCount() int
	Size() (width, height int)
	ReadBand(n int) ([]float64, error)
	Close() error
}

type RasterOpener interface {
	Open(path string) (Raster, error)
}

type BandStack struct {
	Width, Height int
	Green         []float64
	NIR           []float64
	Red           []float64
	Blue          []float64
}

// ReadBandStack reads the index pair and the visible composite bands.
// Green doubles as the composite's G channel.
func ReadBandStack(r Raster) (*BandStack, error) {
	width, height := r.Size()
	stack := &BandStack{Width: width, Height: height}

	targets := []struct {
		band int
		dst  *[]float64
	}{
		{properties.GreenBand, &stack.Green},
		{properties.NIRBand, &stack.NIR},
		{properties.RedBand, &stack.Red},
		{properties.BlueBand, &stack.Blue},
	}
	for _, target := range targets {
		data, err := r.ReadBand(target.band)
		if err != nil {
			return nil, fmt.Errorf("failed to read band %d: %w", target.band, err)
		}
		if len(data) != width*height {
			return nil, fmt.Errorf("band %d has %d pixels, expected %d", target.band, len(data), width*height)
		}
		*target.dst = data
	}
	return stack, nil
}

type GodalOpener struct{}

func (GodalOpener) Open(path string) (Raster, error) {
	ds, err := godal.Open(path, godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, err
	}
	return &godalRaster{ds: ds}, nil
}

type godalRaster struct {
	ds *godal.Dataset
}

func (g *godalRaster) BandCount() int {
	return g.ds.Structure().NBands
}

func (g *godalRaster) Size() (int, int) {
	structure := g.ds.Structure()
	return structure.SizeX, structure.SizeY
}

func (g *godalRaster) ReadBand(n int) ([]float64, error) {
	bands := g.ds.Bands()
	if n < 1 || n > len(bands) {
		return nil, fmt.Errorf("band %d out of range [1, %d]", n, len(bands))
	}
	width, height := g.Size()
	data := make([]float64, width*height)
	if err := bands[n-1].Read(0, 0, data, width, height); err != nil {
		return nil, err
	}
	return data, nil
}

func (g *godalRaster) Close() error {
	return g.ds.Close()
}
