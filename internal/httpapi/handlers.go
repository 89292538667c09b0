package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"dupligone/internal/catalog"
	"dupligone/internal/dgerr"
	"dupligone/internal/pipeline"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := dgerr.HTTPStatus(err)
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": err.Error(),
	})
}

// --- session-ID-path surface ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.pipe.CreateSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id":  sess.SessionID,
		"token":       sess.Token,
		"upload_url":  "/sessions/" + sess.SessionID + "/upload",
		"results_url": "/sessions/" + sess.SessionID + "/results",
	})
}

func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.upload(w, r, sessionID)
}

// upload is shared between the session-ID-path and token-based surfaces,
// which behave identically.
func (s *Server) upload(w http.ResponseWriter, r *http.Request, sessionID string) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, dgerr.Validation("malformed multipart form: %v", err))
		return
	}
	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		writeError(w, dgerr.Validation("no files provided under field \"files\""))
		return
	}

	files := make([]pipeline.UploadedFile, 0, len(fileHeaders))
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			writeError(w, dgerr.Validation("cannot open uploaded file %q: %v", fh.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, dgerr.Validation("cannot read uploaded file %q: %v", fh.Filename, err))
			return
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		files = append(files, pipeline.UploadedFile{Filename: fh.Filename, ContentType: contentType, Data: data})
	}

	result, err := s.pipe.Upload(r.Context(), sessionID, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     result.SessionID,
		"uploaded_files": result.UploadedFiles,
		"total_files":    result.TotalFiles,
		"job_id":         result.JobID,
		"status":         string(catalog.StatusUploaded),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.pipe.GetSessionEnvelope(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionEnvelope(sess))
}

func sessionEnvelope(sess catalog.Session) map[string]any {
	return map[string]any{
		"session_id":                  sess.SessionID,
		"status":                      sess.Status,
		"created_at":                  sess.CreatedAt,
		"updated_at":                  sess.UpdatedAt,
		"total_images":                sess.TotalImages,
		"processed_images":            sess.ProcessedImages,
		"clusters_found":              sess.ClustersFound,
		"images_flagged_for_deletion": sess.ImagesFlaggedForDeletion,
	}
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s.writeResults(w, r, sessionID)
}

func (s *Server) writeResults(w http.ResponseWriter, r *http.Request, sessionID string) {
	view, err := s.pipe.GetResults(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsPayload(view))
}

func resultsPayload(view pipeline.ResultsView) map[string]any {
	clusters := make([]map[string]any, 0, len(view.Clusters))
	for _, cv := range view.Clusters {
		clusters = append(clusters, map[string]any{
			"cluster_id":       cv.ClusterID,
			"best_image":       cv.BestImage,
			"images_to_delete": cv.ImagesToDelete,
			"all_images":       cv.AllImages,
		})
	}
	return map[string]any{
		"status":                 view.Status,
		"clusters":               clusters,
		"unique_images_list":     view.UniqueImages,
		"potential_space_saved":  view.PotentialSpaceSaved,
	}
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	images, err := s.pipe.ListSessionImages(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	clusters, err := s.pipe.ListSessionClusters(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clusters)
}

func (s *Server) handleConfirmDeletions(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	deleted, freed, err := s.pipe.ConfirmDeletions(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted_count":     deleted,
		"space_freed_bytes": freed,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.pipe.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlagImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")
	raw := r.URL.Query().Get("delete_recommended")
	flag, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, dgerr.Validation("delete_recommended must be a boolean, got %q", raw))
		return
	}
	if err := s.pipe.FlagImage(r.Context(), imageID, flag); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	// Job status is not tracked: this handler reports PENDING for any job
	// ID, without consulting the queue or the session's state in the
	// catalog, and returns no progress counts or result.
	jobID := chi.URLParam(r, "jobID")
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"status": "PENDING",
	})
}

// --- token-based surface ---

func (s *Server) handleTokenUpload(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, dgerr.Validation("missing token"))
		return
	}
	sess, err := s.pipe.GetSessionByToken(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	s.upload(w, r, sess.SessionID)
}

func (s *Server) handleTokenGetResult(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromBearer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeResults(w, r, sess.SessionID)
}

func (s *Server) handleTokenDelete(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessionFromBearer(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		ImageIDs []string `json:"image_ids"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	if len(body.ImageIDs) == 0 {
		deleted, freed, err := s.pipe.ConfirmDeletions(r.Context(), sess.SessionID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted, "space_freed_bytes": freed})
		return
	}

	for _, imageID := range body.ImageIDs {
		if err := s.pipe.FlagImage(r.Context(), imageID, true); err != nil {
			writeError(w, err)
			return
		}
	}
	deleted, freed, err := s.pipe.ConfirmDeletions(r.Context(), sess.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted_count": deleted, "space_freed_bytes": freed})
}

func (s *Server) sessionFromBearer(r *http.Request) (catalog.Session, error) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return catalog.Session{}, dgerr.Validation("missing Authorization: Bearer <token> header")
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
	if token == "" {
		return catalog.Session{}, dgerr.Validation("empty bearer token")
	}
	return s.pipe.GetSessionByToken(r.Context(), token)
}
