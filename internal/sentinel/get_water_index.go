package sentinel

import "fmt"

// NormalizedDifference computes (a - b) / (a + b + eps) pixel by pixel.
// With a = green and b = NIR this is the NDWI.
func NormalizedDifference(a, b []float64, eps float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("band size mismatch: %d != %d", len(a), len(b))
	}
	result := make([]float64, len(a))
	for i := range a {
		result[i] = (a[i] - b[i]) / (a[i] + b[i] + eps)
	}
	return result, nil
}

// WaterMask flags pixels whose index is above threshold. NaN never passes.
func WaterMask(index []float64, threshold float64) []bool {
	mask := make([]bool, len(index))
	for i, v := range index {
		mask[i] = v > threshold
	}
	return mask
}
