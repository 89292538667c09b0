package clustering

import "dupligone/internal/catalog"

// PickRepresentative picks the best image in a cluster: the highest
// quality.overall wins, ties broken by higher sharpness, then higher
// face_count, then earlier upload_time, then lexicographically smaller
// image_id. Returns the index (into images) of the winner.
func PickRepresentative(images []catalog.Image, memberIdx []int) int {
	best := memberIdx[0]
	for _, idx := range memberIdx[1:] {
		if isBetter(images[idx], images[best]) {
			best = idx
		}
	}
	return best
}

func isBetter(a, b catalog.Image) bool {
	if a.Quality.Overall != b.Quality.Overall {
		return a.Quality.Overall > b.Quality.Overall
	}
	if a.Quality.Sharpness != b.Quality.Sharpness {
		return a.Quality.Sharpness > b.Quality.Sharpness
	}
	if a.Quality.FaceCount != b.Quality.FaceCount {
		return a.Quality.FaceCount > b.Quality.FaceCount
	}
	if !a.UploadTime.Equal(b.UploadTime) {
		return a.UploadTime.Before(b.UploadTime)
	}
	return a.ImageID < b.ImageID
}

// ClusterResult is one output cluster, already resolved to its
// representative (best) member and the rest flagged for deletion.
type ClusterResult struct {
	MemberIndices []int
	BestIndex     int
}

// BuildClusters runs the full pipeline: distance matrix, radius, grouping,
// and representative selection, returning cluster results plus the
// indices left unclustered. Degenerate input (n < 2) skips clustering
// entirely.
func BuildClusters(images []catalog.Image, minSamples int) (results []ClusterResult, unclustered []int, radius float64, err error) {
	n := len(images)
	if n < 2 {
		for i := range images {
			unclustered = append(unclustered, i)
		}
		return nil, unclustered, 0, nil
	}

	hashes := make([]catalog.HashRecord, n)
	for i, img := range images {
		hashes[i] = img.Hash
	}

	d, err := DistanceMatrix(hashes)
	if err != nil {
		return nil, nil, 0, err
	}

	radius = Radius(d)
	labels := Group(d, radius, minSamples)
	clusters, singletons := Partition(labels)

	for _, members := range clusters {
		best := PickRepresentative(images, members)
		results = append(results, ClusterResult{MemberIndices: members, BestIndex: best})
	}
	return results, singletons, radius, nil
}
