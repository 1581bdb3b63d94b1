package dataset

import (
	"fmt"
	"image"
)

// PatchWriter persists one accepted patch under the given source base name
// and window origin.
type PatchWriter interface {
	WritePatch(base string, w Window, img image.Image) error
}

type PatchWriteError struct {
	Base   string
	Window Window
	Err    error
}

func (e *PatchWriteError) Error() string {
	return fmt.Sprintf("failed to write patch %s at (%d, %d): %v", e.Base, e.Window.X, e.Window.Y, e.Err)
}

func (e *PatchWriteError) Unwrap() error { return e.Err }

type Sampler struct {
	Size     int
	Coverage float64
	Writer   PatchWriter
}

// Sample writes one normalized patch for every window of the mask whose
// coverage passes the threshold. Windows that cannot be cropped from the
// composite are dropped. The first write failure stops sampling and is
// returned together with the number of patches written before it.
func (s Sampler) Sample(base string, mask Mask, composite Composite) (int, error) {
	count := 0
	for _, w := range Candidates(mask, s.Size, s.Coverage) {
		tile, ok := composite.Crop(w, s.Size)
		if !ok {
			continue
		}
		if err := s.Writer.WritePatch(base, w, tile.Normalize()); err != nil {
			return count, &PatchWriteError{Base: base, Window: w, Err: err}
		}
		count++
	}
	return count, nil
}
