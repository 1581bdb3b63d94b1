package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/poseidon/internal/dataset"
	"github.com/forest-guardian/poseidon/internal/properties"
)

// BaseName strips the directory and the last extension from path.
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func PatchName(base string, x, y int, format string) string {
	return fmt.Sprintf("%s_%d_%d.%s", base, x, y, format)
}

// FileWriter saves patches into Dir as JPEG or PNG.
type FileWriter struct {
	Dir    string
	Format string
}

func NewFileWriter(dir, format string) *FileWriter {
	return &FileWriter{Dir: dir, Format: format}
}

func (fw *FileWriter) WritePatch(base string, w dataset.Window, img image.Image) error {
	outputPath := filepath.Join(fw.Dir, PatchName(base, w.X, w.Y, fw.Format))
	// The temp file keeps the real extension so gg picks the right encoder.
	tmpPath := filepath.Join(fw.Dir, ".tmp_"+filepath.Base(outputPath))

	if err := fw.encode(tmpPath, img); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp patch file: %w", err)
	}
	return nil
}

func (fw *FileWriter) encode(path string, img image.Image) error {
	switch fw.Format {
	case properties.FormatPNG:
		if err := gg.SavePNG(path, img); err != nil {
			return fmt.Errorf("failed to save PNG file: %w", err)
		}
		return nil
	case properties.FormatJPEG:
		outputFile, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create JPEG file: %w", err)
		}
		if err := jpeg.Encode(outputFile, img, &jpeg.Options{Quality: 100}); err != nil {
			outputFile.Close()
			return fmt.Errorf("failed to encode JPEG file: %w", err)
		}
		return outputFile.Close()
	default:
		return fmt.Errorf("unsupported patch format %q", fw.Format)
	}
}
