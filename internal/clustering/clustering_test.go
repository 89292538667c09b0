package clustering_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dupligone/internal/catalog"
	"dupligone/internal/clustering"
)

func TestCanTransition(t *testing.T) {
	require.True(t, catalog.CanTransition(catalog.StatusUploading, catalog.StatusUploaded))
	require.True(t, catalog.CanTransition(catalog.StatusUploading, catalog.StatusFailed))
	require.False(t, catalog.CanTransition(catalog.StatusUploading, catalog.StatusProcessing))
	require.False(t, catalog.CanTransition(catalog.StatusCompleted, catalog.StatusUploading))
	require.False(t, catalog.CanTransition(catalog.StatusFailed, catalog.StatusCompleted))
}

func TestGroupFindsDenseCoreCluster(t *testing.T) {
	// Four points tightly packed around 0, one far outlier.
	d := [][]float64{
		{0, 0.1, 0.1, 0.1, 0.9},
		{0.1, 0, 0.1, 0.1, 0.9},
		{0.1, 0.1, 0, 0.1, 0.9},
		{0.1, 0.1, 0.1, 0, 0.9},
		{0.9, 0.9, 0.9, 0.9, 0},
	}
	labels := clustering.Group(d, 0.2, 2)

	require.Equal(t, labels[0], labels[1])
	require.Equal(t, labels[0], labels[2])
	require.Equal(t, labels[0], labels[3])
	require.Equal(t, -1, labels[4])
}

func TestGroupEverythingNoiseWhenEpsTooSmall(t *testing.T) {
	d := [][]float64{
		{0, 1, 1},
		{1, 0, 1},
		{1, 1, 0},
	}
	labels := clustering.Group(d, 0.01, 2)
	for _, l := range labels {
		require.Equal(t, -1, l)
	}
}

func TestPartitionSplitsClustersAndSingletons(t *testing.T) {
	labels := []int{0, 0, -1, 1}
	clusters, singletons := clustering.Partition(labels)

	require.Len(t, clusters, 1)
	require.ElementsMatch(t, []int{0, 1}, clusters[0])
	require.ElementsMatch(t, []int{2, 3}, singletons)
}

func TestRadiusTinyInputUsesFixedFallback(t *testing.T) {
	d := [][]float64{
		{0, 0.3},
		{0.3, 0},
	}
	require.Equal(t, 0.5, clustering.Radius(d))
}

func TestRadiusNonNegative(t *testing.T) {
	d := [][]float64{
		{0, 0.1, 0.2, 0.3, 0.9},
		{0.1, 0, 0.15, 0.35, 0.85},
		{0.2, 0.15, 0, 0.25, 0.95},
		{0.3, 0.35, 0.25, 0, 0.8},
		{0.9, 0.85, 0.95, 0.8, 0},
	}
	r := clustering.Radius(d)
	require.GreaterOrEqual(t, r, 0.0)
}

func makeImage(id string, overall, sharp float64, faces int, uploadedAt time.Time) catalog.Image {
	return catalog.Image{
		ImageID:    id,
		UploadTime: uploadedAt,
		Quality: catalog.Quality{
			Overall:   overall,
			Sharpness: sharp,
			FaceCount: faces,
		},
	}
}

func TestPickRepresentativeHighestOverallWins(t *testing.T) {
	now := time.Now()
	images := []catalog.Image{
		makeImage("a", 0.5, 0.5, 0, now),
		makeImage("b", 0.9, 0.1, 0, now),
		makeImage("c", 0.3, 0.9, 0, now),
	}
	best := clustering.PickRepresentative(images, []int{0, 1, 2})
	require.Equal(t, 1, best)
}

func TestPickRepresentativeTieBreaksBySharpnessThenFacesThenTimeThenID(t *testing.T) {
	earlier := time.Now()
	later := earlier.Add(time.Minute)

	bySharpness := []catalog.Image{
		makeImage("a", 0.5, 0.4, 3, earlier),
		makeImage("b", 0.5, 0.6, 0, later),
	}
	require.Equal(t, 1, clustering.PickRepresentative(bySharpness, []int{0, 1}), "higher sharpness should win when overall ties")

	byFaces := []catalog.Image{
		makeImage("a", 0.5, 0.5, 0, earlier),
		makeImage("b", 0.5, 0.5, 2, later),
	}
	require.Equal(t, 1, clustering.PickRepresentative(byFaces, []int{0, 1}), "higher face_count should win when overall/sharpness tie")

	images := []catalog.Image{
		makeImage("z", 0.5, 0.5, 1, later),
		makeImage("a", 0.5, 0.5, 1, earlier),
	}
	best := clustering.PickRepresentative(images, []int{0, 1})
	require.Equal(t, 1, best, "earlier upload_time should win when overall/sharpness/faces tie")

	images2 := []catalog.Image{
		makeImage("b", 0.5, 0.5, 1, earlier),
		makeImage("a", 0.5, 0.5, 1, earlier),
	}
	best2 := clustering.PickRepresentative(images2, []int{0, 1})
	require.Equal(t, 1, best2, "lexicographically smaller image_id should win the final tiebreak")
}

func TestBuildClustersSkipsWhenFewerThanTwoImages(t *testing.T) {
	images := []catalog.Image{makeImage("solo", 0.5, 0.5, 0, time.Now())}
	results, unclustered, radius, err := clustering.BuildClusters(images, 2)
	require.NoError(t, err)
	require.Empty(t, results)
	require.Equal(t, []int{0}, unclustered)
	require.Zero(t, radius)
}

func TestBuildClustersGroupsNearDuplicates(t *testing.T) {
	now := time.Now()
	sameHash := catalog.HashRecord{AHash: "0000000000000000", DHash: "0000000000000000", WHash: "0000000000000000"}
	differentHash := catalog.HashRecord{AHash: "ffffffffffffffff", DHash: "ffffffffffffffff", WHash: "ffffffffffffffff"}

	images := []catalog.Image{
		{ImageID: "a", Hash: sameHash, Quality: catalog.Quality{Overall: 0.9}, UploadTime: now},
		{ImageID: "b", Hash: sameHash, Quality: catalog.Quality{Overall: 0.5}, UploadTime: now},
		{ImageID: "c", Hash: differentHash, Quality: catalog.Quality{Overall: 0.1}, UploadTime: now},
	}

	results, unclustered, _, err := clustering.BuildClusters(images, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.ElementsMatch(t, []int{0, 1}, results[0].MemberIndices)
	require.Equal(t, 0, results[0].BestIndex) // "a" has the higher Overall score
	require.Equal(t, []int{2}, unclustered)
}
