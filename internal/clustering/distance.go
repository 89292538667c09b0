// Package clustering groups near-duplicate images by their perceptual hash
// distance, using a DBSCAN-over-a-precomputed-Hamming-matrix approach
// implemented natively since no DBSCAN implementation appears anywhere in
// the example corpus (see DESIGN.md).
package clustering

import (
	"sort"

	"dupligone/internal/catalog"
	"dupligone/internal/hashing"
)

// DistanceMatrix builds the symmetric n×n matrix of combined hash distances
// between every pair of images.
func DistanceMatrix(hashes []catalog.HashRecord) ([][]float64, error) {
	n := len(hashes)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist, err := hashing.CombinedDistance(hashes[i], hashes[j])
			if err != nil {
				return nil, err
			}
			d[i][j] = dist
			d[j][i] = dist
		}
	}
	return d, nil
}

// kNearestCurve returns, for each row, the k-th smallest distance (the
// k-nearest-neighbor distance), sorted ascending — the curve fed into
// elbow detection.
func kNearestCurve(d [][]float64, k int) []float64 {
	n := len(d)
	curve := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		row := append([]float64(nil), d[i]...)
		sort.Float64s(row)
		// row[0] is always 0 (self); the k-th smallest neighbor is row[k].
		idx := k
		if idx >= len(row) {
			idx = len(row) - 1
		}
		curve = append(curve, row[idx])
	}
	sort.Float64s(curve)
	return curve
}
