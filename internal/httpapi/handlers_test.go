package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dupligone/internal/catalog"
	"dupligone/internal/pipeline"
)

func TestSessionEnvelopeIncludesDerivedCounts(t *testing.T) {
	now := time.Now().UTC()
	sess := catalog.Session{
		SessionID:                "sess-1",
		Status:                   catalog.StatusCompleted,
		CreatedAt:                now,
		UpdatedAt:                now,
		TotalImages:              5,
		ProcessedImages:          5,
		ClustersFound:            2,
		ImagesFlaggedForDeletion: 3,
	}
	env := sessionEnvelope(sess)

	require.Equal(t, "sess-1", env["session_id"])
	require.Equal(t, catalog.StatusCompleted, env["status"])
	require.Equal(t, 5, env["total_images"])
	require.Equal(t, 2, env["clusters_found"])
	require.Equal(t, 3, env["images_flagged_for_deletion"])
}

func TestResultsPayloadShapesClustersAndUniqueImages(t *testing.T) {
	best := catalog.Image{ImageID: "a"}
	toDelete := catalog.Image{ImageID: "b", DeleteRecommended: true}
	unique := catalog.Image{ImageID: "c"}

	view := pipeline.ResultsView{
		Status: catalog.StatusCompleted,
		Clusters: []pipeline.ClusterView{
			{ClusterID: "cl-1", BestImage: best, ImagesToDelete: []catalog.Image{toDelete}, AllImages: []catalog.Image{best, toDelete}},
		},
		UniqueImages:        []catalog.Image{unique},
		PotentialSpaceSaved: 1024,
	}

	payload := resultsPayload(view)
	require.Equal(t, catalog.StatusCompleted, payload["status"])
	require.Equal(t, int64(1024), payload["potential_space_saved"])

	clusters := payload["clusters"].([]map[string]any)
	require.Len(t, clusters, 1)
	require.Equal(t, "cl-1", clusters[0]["cluster_id"])

	uniqueList := payload["unique_images_list"].([]catalog.Image)
	require.Len(t, uniqueList, 1)
	require.Equal(t, "c", uniqueList[0].ImageID)
}
