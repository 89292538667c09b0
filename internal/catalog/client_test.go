package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRowToSessionRoundTrip(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := map[string]interface{}{
		"session_id":                  "sess-1",
		"token":                       "tok-1",
		"status":                      "uploaded",
		"created_at":                  float64(created.Unix()), // JSON numbers decode to float64
		"updated_at":                  float64(created.Unix()),
		"total_images":                float64(3),
		"processed_images":            float64(1),
		"clusters_found":              float64(0),
		"images_flagged_for_deletion": float64(0),
		"blob_prefix":                 "sess-1",
		"metadata":                    `{"error":""}`,
	}
	s := rowToSession(row)

	require.Equal(t, "sess-1", s.SessionID)
	require.Equal(t, "tok-1", s.Token)
	require.Equal(t, StatusUploaded, s.Status)
	require.True(t, s.CreatedAt.Equal(created))
	require.Equal(t, 3, s.TotalImages)
	require.Equal(t, 1, s.ProcessedImages)
}

func TestRowToImageRoundTrip(t *testing.T) {
	uploaded := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	deletedAt := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	row := map[string]interface{}{
		"image_id":            "img-1",
		"session_id":          "sess-1",
		"original_filename":   "a.jpg",
		"content_type":        "image/jpeg",
		"file_size":           float64(1024),
		"upload_time":         float64(uploaded.Unix()),
		"blob_name":           "sess-1/img-1.jpg",
		"blob_url":            "https://example.test/sess-1/img-1.jpg",
		"hash_a":              "aaaa",
		"hash_d":              "bbbb",
		"hash_w":              "cccc",
		"hash_p":              "",
		"quality_sharpness":   0.5,
		"quality_exposure":    0.6,
		"quality_contrast":    0.7,
		"quality_face_count":  float64(2),
		"quality_face_score":  0.8,
		"quality_overall":     0.65,
		"cluster_id":          "cl-1",
		"is_best_in_cluster":  float64(1),
		"delete_recommended":  float64(0),
		"user_modified":       float64(0),
		"deleted":             float64(1),
		"deleted_at":          float64(deletedAt.Unix()),
	}
	img := rowToImage(row)

	require.Equal(t, "img-1", img.ImageID)
	require.Equal(t, int64(1024), img.FileSize)
	require.True(t, img.UploadTime.Equal(uploaded))
	require.Equal(t, HashRecord{AHash: "aaaa", DHash: "bbbb", WHash: "cccc"}, img.Hash)
	require.InDelta(t, 0.65, img.Quality.Overall, 1e-9)
	require.True(t, img.IsBestInCluster)
	require.False(t, img.DeleteRecommended)
	require.True(t, img.Deleted)
	require.NotNil(t, img.DeletedAt)
	require.True(t, img.DeletedAt.Equal(deletedAt))
}

func TestRowToImageNilDeletedAt(t *testing.T) {
	row := map[string]interface{}{
		"image_id":    "img-2",
		"upload_time": float64(0),
		"deleted_at":  nil,
	}
	img := rowToImage(row)
	require.Nil(t, img.DeletedAt)
}

func TestRowToClusterDecodesMemberList(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	row := map[string]interface{}{
		"cluster_id":        "cl-1",
		"session_id":        "sess-1",
		"member_image_ids":  `["img-1","img-2"]`,
		"best_image_id":     "img-1",
		"similarity_radius": 0.42,
		"created_at":        float64(created.Unix()),
	}
	cl := rowToCluster(row)

	require.Equal(t, []string{"img-1", "img-2"}, cl.MemberImageIDs)
	require.Equal(t, "img-1", cl.BestImageID)
	require.InDelta(t, 0.42, cl.SimilarityRadius, 1e-9)
}

func TestRowStringTrimsAndStringifies(t *testing.T) {
	require.Equal(t, "", rowString(nil, "x"))
	require.Equal(t, "", rowString(map[string]interface{}{}, "missing"))
	require.Equal(t, "hi", rowString(map[string]interface{}{"k": "  hi  "}, "k"))
	require.Equal(t, "5", rowString(map[string]interface{}{"k": 5}, "k"))
}

func TestBoolToInt(t *testing.T) {
	require.Equal(t, 1, boolToInt(true))
	require.Equal(t, 0, boolToInt(false))
}

func TestOrDefault(t *testing.T) {
	require.Equal(t, "{}", orDefault("", "{}"))
	require.Equal(t, "{}", orDefault("   ", "{}"))
	require.Equal(t, `{"a":1}`, orDefault(`{"a":1}`, "{}"))
}
