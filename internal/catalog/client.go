package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dupligone/internal/dgerr"
	"dupligone/internal/logging"
)

// Client is a SQL-over-HTTP catalog client, generalized from the teacher's
// Cloudflare D1 client: every operation is one parameterized statement sent
// as a JSON body and answered with a JSON array of rows. Any row store that
// exposes "POST a query, get back rows" behind this shape works — Cloudflare
// D1, Turso, or a small sqlite-over-http shim in tests.
type Client struct {
	endpoint string
	database string
	authToken string
	http     *http.Client
	log      *zap.Logger
}

type queryRequest struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params"`
}

type queryResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Result []struct {
		Results []map[string]interface{} `json:"results"`
		Success bool                     `json:"success"`
	} `json:"result"`
}

func New(endpoint, database, authToken string) *Client {
	return &Client{
		endpoint:  strings.TrimRight(endpoint, "/"),
		database:  database,
		authToken: authToken,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       logging.Named("catalog"),
	}
}

func (c *Client) exec(ctx context.Context, sql string, params ...interface{}) ([]map[string]interface{}, error) {
	url := fmt.Sprintf("%s/database/%s/query", c.endpoint, c.database)
	body, err := json.Marshal(queryRequest{SQL: sql, Params: params})
	if err != nil {
		return nil, dgerr.Catalog("marshal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, dgerr.Catalog("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dgerr.Catalog("do request", err)
	}
	defer resp.Body.Close()

	var data queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, dgerr.Catalog("decode response", err)
	}
	if !data.Success {
		if len(data.Errors) > 0 {
			return nil, dgerr.Catalog("query", fmt.Errorf("%s", data.Errors[0].Message))
		}
		return nil, dgerr.Catalog("query", fmt.Errorf("unknown catalog error"))
	}
	if len(data.Result) == 0 {
		return nil, nil
	}
	return data.Result[0].Results, nil
}

func (c *Client) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			total_images INTEGER NOT NULL DEFAULT 0,
			processed_images INTEGER NOT NULL DEFAULT 0,
			clusters_found INTEGER NOT NULL DEFAULT 0,
			images_flagged_for_deletion INTEGER NOT NULL DEFAULT 0,
			blob_prefix TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS images (
			image_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			original_filename TEXT NOT NULL,
			content_type TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			upload_time INTEGER NOT NULL,
			blob_name TEXT NOT NULL,
			blob_url TEXT NOT NULL,
			hash_a TEXT NOT NULL DEFAULT '',
			hash_d TEXT NOT NULL DEFAULT '',
			hash_w TEXT NOT NULL DEFAULT '',
			hash_p TEXT NOT NULL DEFAULT '',
			quality_sharpness REAL NOT NULL DEFAULT 0,
			quality_exposure REAL NOT NULL DEFAULT 0,
			quality_contrast REAL NOT NULL DEFAULT 0,
			quality_face_count INTEGER NOT NULL DEFAULT 0,
			quality_face_score REAL NOT NULL DEFAULT 0,
			quality_overall REAL NOT NULL DEFAULT 0,
			cluster_id TEXT NOT NULL DEFAULT '',
			is_best_in_cluster INTEGER NOT NULL DEFAULT 0,
			delete_recommended INTEGER NOT NULL DEFAULT 0,
			user_modified INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			deleted_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_images_session ON images(session_id)`,
		`CREATE TABLE IF NOT EXISTS clusters (
			cluster_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			member_image_ids TEXT NOT NULL,
			best_image_id TEXT NOT NULL,
			similarity_radius REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clusters_session ON clusters(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := c.exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- Sessions ---

func (c *Client) InsertSession(ctx context.Context, s Session) error {
	_, err := c.exec(ctx, `INSERT INTO sessions (
		session_id, token, status, created_at, updated_at,
		total_images, processed_images, clusters_found, images_flagged_for_deletion,
		blob_prefix, metadata
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Token, string(s.Status), s.CreatedAt.Unix(), s.UpdatedAt.Unix(),
		s.TotalImages, s.ProcessedImages, s.ClustersFound, s.ImagesFlaggedForDeletion,
		s.BlobPrefix, orDefault(s.MetadataJSON, "{}"),
	)
	return err
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	rows, err := c.exec(ctx, `SELECT * FROM sessions WHERE session_id = ? LIMIT 1`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dgerr.NotFound("session", sessionID)
	}
	s := rowToSession(rows[0])
	return &s, nil
}

func (c *Client) GetSessionByToken(ctx context.Context, token string) (*Session, error) {
	rows, err := c.exec(ctx, `SELECT * FROM sessions WHERE token = ? LIMIT 1`, token)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dgerr.NotFound("session", token)
	}
	s := rowToSession(rows[0])
	return &s, nil
}

// UpdateSessionStatus is the one state-machine-legal write; it refuses an
// illegal transition rather than silently accepting it (spec §4.7: "any
// other attempt is an error and leaves the state unchanged").
func (c *Client) UpdateSessionStatus(ctx context.Context, sessionID string, from, to SessionStatus) error {
	if !CanTransition(from, to) {
		return dgerr.Validation("illegal session transition %s -> %s", from, to)
	}
	_, err := c.exec(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ? AND status = ?`,
		string(to), time.Now().Unix(), sessionID, string(from),
	)
	return err
}

// ForceSessionFailed moves a session into "failed" regardless of its current
// status (spec §4.7: failed is reachable from every state) and records a
// short diagnostic.
func (c *Client) ForceSessionFailed(ctx context.Context, sessionID, diagnostic string) error {
	meta, _ := json.Marshal(map[string]string{"error": diagnostic})
	_, err := c.exec(ctx,
		`UPDATE sessions SET status = ?, updated_at = ?, metadata = ? WHERE session_id = ?`,
		string(StatusFailed), time.Now().Unix(), string(meta), sessionID,
	)
	return err
}

func (c *Client) SetSessionTotals(ctx context.Context, sessionID string, totalImages int) error {
	_, err := c.exec(ctx,
		`UPDATE sessions SET total_images = ?, updated_at = ? WHERE session_id = ?`,
		totalImages, time.Now().Unix(), sessionID,
	)
	return err
}

func (c *Client) IncrementProcessedImages(ctx context.Context, sessionID string) error {
	_, err := c.exec(ctx,
		`UPDATE sessions SET processed_images = processed_images + 1, updated_at = ? WHERE session_id = ?`,
		time.Now().Unix(), sessionID,
	)
	return err
}

func (c *Client) SetClusteringResults(ctx context.Context, sessionID string, clustersFound, flaggedForDeletion int) error {
	_, err := c.exec(ctx,
		`UPDATE sessions SET clusters_found = ?, images_flagged_for_deletion = ?, updated_at = ? WHERE session_id = ?`,
		clustersFound, flaggedForDeletion, time.Now().Unix(), sessionID,
	)
	return err
}

func (c *Client) SetSessionMetadata(ctx context.Context, sessionID string, metadata map[string]interface{}) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx,
		`UPDATE sessions SET metadata = ?, updated_at = ? WHERE session_id = ?`,
		string(meta), time.Now().Unix(), sessionID,
	)
	return err
}

func (c *Client) DeleteSessionRows(ctx context.Context, sessionID string) error {
	if _, err := c.exec(ctx, `DELETE FROM clusters WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	if _, err := c.exec(ctx, `DELETE FROM images WHERE session_id = ?`, sessionID); err != nil {
		return err
	}
	_, err := c.exec(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// ListStaleSessions returns sessions whose updated_at predates the cutoff,
// for the hourly maintenance sweep (spec §5).
func (c *Client) ListStaleSessions(ctx context.Context, olderThan time.Time) ([]Session, error) {
	rows, err := c.exec(ctx, `SELECT * FROM sessions WHERE updated_at < ?`, olderThan.Unix())
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToSession(r))
	}
	return out, nil
}

// ListAllSessions returns every surviving session, used by the maintenance
// sweep's orphan-blob reclaim pass (spec §5) to enumerate the session
// prefixes it scans.
func (c *Client) ListAllSessions(ctx context.Context) ([]Session, error) {
	rows, err := c.exec(ctx, `SELECT * FROM sessions`)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToSession(r))
	}
	return out, nil
}

// --- Images ---

func (c *Client) InsertImage(ctx context.Context, img Image) error {
	var deletedAt interface{}
	if img.DeletedAt != nil {
		deletedAt = img.DeletedAt.Unix()
	}
	_, err := c.exec(ctx, `INSERT INTO images (
		image_id, session_id, original_filename, content_type, file_size, upload_time,
		blob_name, blob_url,
		hash_a, hash_d, hash_w, hash_p,
		quality_sharpness, quality_exposure, quality_contrast, quality_face_count, quality_face_score, quality_overall,
		cluster_id, is_best_in_cluster, delete_recommended, user_modified, deleted, deleted_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ImageID, img.SessionID, img.OriginalFilename, img.ContentType, img.FileSize, img.UploadTime.Unix(),
		img.BlobName, img.BlobURL,
		img.Hash.AHash, img.Hash.DHash, img.Hash.WHash, img.Hash.PHash,
		img.Quality.Sharpness, img.Quality.Exposure, img.Quality.Contrast, img.Quality.FaceCount, img.Quality.FaceScore, img.Quality.Overall,
		img.ClusterID, boolToInt(img.IsBestInCluster), boolToInt(img.DeleteRecommended), boolToInt(img.UserModified), boolToInt(img.Deleted), deletedAt,
	)
	return err
}

func (c *Client) GetImage(ctx context.Context, imageID string) (*Image, error) {
	rows, err := c.exec(ctx, `SELECT * FROM images WHERE image_id = ? LIMIT 1`, imageID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, dgerr.NotFound("image", imageID)
	}
	img := rowToImage(rows[0])
	return &img, nil
}

func (c *Client) ListImagesBySession(ctx context.Context, sessionID string) ([]Image, error) {
	rows, err := c.exec(ctx, `SELECT * FROM images WHERE session_id = ? ORDER BY upload_time ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]Image, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToImage(r))
	}
	return out, nil
}

// UpdateImageHashAndQuality writes the per-image fields produced by the
// processing phase. This is the "atomically update the image row" operation
// required by spec §4.2/§4.7.
func (c *Client) UpdateImageHashAndQuality(ctx context.Context, imageID string, hash HashRecord, quality Quality) error {
	_, err := c.exec(ctx, `UPDATE images SET
		hash_a = ?, hash_d = ?, hash_w = ?, hash_p = ?,
		quality_sharpness = ?, quality_exposure = ?, quality_contrast = ?,
		quality_face_count = ?, quality_face_score = ?, quality_overall = ?
		WHERE image_id = ?`,
		hash.AHash, hash.DHash, hash.WHash, hash.PHash,
		quality.Sharpness, quality.Exposure, quality.Contrast,
		quality.FaceCount, quality.FaceScore, quality.Overall,
		imageID,
	)
	return err
}

func (c *Client) UpdateImageClusterAssignment(ctx context.Context, imageID, clusterID string, isBest, deleteRecommended bool) error {
	_, err := c.exec(ctx, `UPDATE images SET cluster_id = ?, is_best_in_cluster = ?, delete_recommended = ? WHERE image_id = ?`,
		clusterID, boolToInt(isBest), boolToInt(deleteRecommended), imageID,
	)
	return err
}

func (c *Client) FlagImageForDeletion(ctx context.Context, imageID string, deleteRecommended bool) error {
	_, err := c.exec(ctx, `UPDATE images SET delete_recommended = ?, user_modified = 1 WHERE image_id = ?`,
		boolToInt(deleteRecommended), imageID,
	)
	return err
}

func (c *Client) MarkImageDeleted(ctx context.Context, imageID string, at time.Time) error {
	_, err := c.exec(ctx, `UPDATE images SET deleted = 1, deleted_at = ? WHERE image_id = ?`,
		at.Unix(), imageID,
	)
	return err
}

// --- Clusters ---

func (c *Client) InsertCluster(ctx context.Context, cl Cluster) error {
	members, err := json.Marshal(cl.MemberImageIDs)
	if err != nil {
		return err
	}
	_, err = c.exec(ctx, `INSERT INTO clusters (
		cluster_id, session_id, member_image_ids, best_image_id, similarity_radius, created_at
	) VALUES (?, ?, ?, ?, ?, ?)`,
		cl.ClusterID, cl.SessionID, string(members), cl.BestImageID, cl.SimilarityRadius, cl.CreatedAt.Unix(),
	)
	return err
}

func (c *Client) ListClustersBySession(ctx context.Context, sessionID string) ([]Cluster, error) {
	rows, err := c.exec(ctx, `SELECT * FROM clusters WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]Cluster, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToCluster(r))
	}
	return out, nil
}

// --- row decoding helpers ---

func rowToSession(row map[string]interface{}) Session {
	return Session{
		SessionID:                rowString(row, "session_id"),
		Token:                    rowString(row, "token"),
		Status:                   SessionStatus(rowString(row, "status")),
		CreatedAt:                time.Unix(rowInt64(row, "created_at"), 0).UTC(),
		UpdatedAt:                time.Unix(rowInt64(row, "updated_at"), 0).UTC(),
		TotalImages:              int(rowInt64(row, "total_images")),
		ProcessedImages:          int(rowInt64(row, "processed_images")),
		ClustersFound:            int(rowInt64(row, "clusters_found")),
		ImagesFlaggedForDeletion: int(rowInt64(row, "images_flagged_for_deletion")),
		BlobPrefix:               rowString(row, "blob_prefix"),
		MetadataJSON:             rowString(row, "metadata"),
	}
}

func rowToImage(row map[string]interface{}) Image {
	img := Image{
		ImageID:          rowString(row, "image_id"),
		SessionID:        rowString(row, "session_id"),
		OriginalFilename: rowString(row, "original_filename"),
		ContentType:      rowString(row, "content_type"),
		FileSize:         rowInt64(row, "file_size"),
		UploadTime:       time.Unix(rowInt64(row, "upload_time"), 0).UTC(),
		BlobName:         rowString(row, "blob_name"),
		BlobURL:          rowString(row, "blob_url"),
		Hash: HashRecord{
			AHash: rowString(row, "hash_a"),
			DHash: rowString(row, "hash_d"),
			WHash: rowString(row, "hash_w"),
			PHash: rowString(row, "hash_p"),
		},
		Quality: Quality{
			Sharpness: rowFloat64(row, "quality_sharpness"),
			Exposure:  rowFloat64(row, "quality_exposure"),
			Contrast:  rowFloat64(row, "quality_contrast"),
			FaceCount: int(rowInt64(row, "quality_face_count")),
			FaceScore: rowFloat64(row, "quality_face_score"),
			Overall:   rowFloat64(row, "quality_overall"),
		},
		ClusterID:         rowString(row, "cluster_id"),
		IsBestInCluster:   rowInt64(row, "is_best_in_cluster") != 0,
		DeleteRecommended: rowInt64(row, "delete_recommended") != 0,
		UserModified:      rowInt64(row, "user_modified") != 0,
		Deleted:           rowInt64(row, "deleted") != 0,
	}
	if v, ok := row["deleted_at"]; ok && v != nil {
		t := time.Unix(rowInt64(row, "deleted_at"), 0).UTC()
		img.DeletedAt = &t
	}
	return img
}

func rowToCluster(row map[string]interface{}) Cluster {
	var members []string
	_ = json.Unmarshal([]byte(rowString(row, "member_image_ids")), &members)
	return Cluster{
		ClusterID:        rowString(row, "cluster_id"),
		SessionID:        rowString(row, "session_id"),
		MemberImageIDs:   members,
		BestImageID:      rowString(row, "best_image_id"),
		SimilarityRadius: rowFloat64(row, "similarity_radius"),
		CreatedAt:        time.Unix(rowInt64(row, "created_at"), 0).UTC(),
	}
}

func rowString(row map[string]interface{}, key string) string {
	if row == nil {
		return ""
	}
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", x))
	}
}

func rowInt64(row map[string]interface{}, key string) int64 {
	if row == nil {
		return 0
	}
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return int64(x)
	case int64:
		return x
	case int:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	case json.Number:
		n, _ := x.Int64()
		return n
	default:
		n, _ := strconv.ParseInt(strings.TrimSpace(fmt.Sprintf("%v", x)), 10, 64)
		return n
	}
}

func rowFloat64(row map[string]interface{}, key string) float64 {
	if row == nil {
		return 0
	}
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	case json.Number:
		f, _ := x.Float64()
		return f
	default:
		f, _ := strconv.ParseFloat(strings.TrimSpace(fmt.Sprintf("%v", x)), 64)
		return f
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
