// Package catalog persists the three entity kinds — sessions, images, and
// clusters — the way the teacher's internal/database package persists a
// single gallery_images table: parameterized SQL sent over HTTP to a
// document/row store, decoded into loosely-typed rows.
package catalog

import "time"

type SessionStatus string

const (
	StatusUploading  SessionStatus = "uploading"
	StatusUploaded   SessionStatus = "uploaded"
	StatusProcessing SessionStatus = "processing"
	StatusClustering SessionStatus = "clustering"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
)

// transitions lists the only legal status→status edges, per spec §4.7.
var transitions = map[SessionStatus]map[SessionStatus]bool{
	StatusUploading: {StatusUploaded: true, StatusFailed: true},
	StatusUploaded:  {StatusProcessing: true, StatusFailed: true},
	StatusProcessing: {StatusClustering: true, StatusFailed: true},
	StatusClustering: {StatusCompleted: true, StatusFailed: true},
	StatusCompleted: {},
	StatusFailed:    {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge
// in the state graph (spec §4.7). Only forward transitions and transitions
// into "failed" are legal.
func CanTransition(from, to SessionStatus) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

type Session struct {
	SessionID                string
	Token                    string
	Status                   SessionStatus
	CreatedAt                time.Time
	UpdatedAt                time.Time
	TotalImages              int
	ProcessedImages          int
	ClustersFound            int
	ImagesFlaggedForDeletion int
	BlobPrefix               string
	MetadataJSON             string // free-form diagnostics, stored as a JSON object
}

type HashRecord struct {
	// Family A ("triple").
	AHash string
	DHash string
	WHash string
	// Family B ("pair"); only one family is populated per configuration.
	PHash string
}

func (h HashRecord) IsZero() bool {
	return h.AHash == "" && h.DHash == "" && h.WHash == "" && h.PHash == ""
}

type Quality struct {
	Sharpness float64
	Exposure  float64
	Contrast  float64
	FaceCount int
	FaceScore float64
	Overall   float64
}

type Image struct {
	ImageID          string
	SessionID        string
	OriginalFilename string
	ContentType      string
	FileSize         int64
	UploadTime       time.Time

	BlobName string
	BlobURL  string

	Hash    HashRecord
	Quality Quality

	ClusterID       string // empty means unclustered
	IsBestInCluster bool
	DeleteRecommended bool
	UserModified    bool

	Deleted   bool
	DeletedAt *time.Time
}

type Cluster struct {
	ClusterID        string
	SessionID        string
	MemberImageIDs   []string
	BestImageID      string
	SimilarityRadius float64
	CreatedAt        time.Time
}
