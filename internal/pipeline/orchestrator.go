// Package pipeline is the session state machine — createSession, upload,
// processImages, clusterImages, confirmDeletions, deleteSession — wired
// against the Catalog, Blob Store, and Job Broker, structured the way the
// teacher's internal/gallery package wires storage.R2Client +
// database.Client behind one service type (internal/gallery/service.go).
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"dupligone/internal/blobstore"
	"dupligone/internal/catalog"
	"dupligone/internal/config"
	"dupligone/internal/dgerr"
	"dupligone/internal/hashing"
	"dupligone/internal/idgen"
	"dupligone/internal/logging"
	"dupligone/internal/quality"
	"dupligone/internal/queue"
)

const maxFilesPerUpload = 100

type Orchestrator struct {
	cfg     config.Config
	catalog *catalog.Client
	blobs   *blobstore.Store
	broker  *queue.Broker
	quality *quality.Engine
	log     *zap.Logger
}

func New(cfg config.Config, cat *catalog.Client, blobs *blobstore.Store, broker *queue.Broker, qe *quality.Engine) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		catalog: cat,
		blobs:   blobs,
		broker:  broker,
		quality: qe,
		log:     logging.Named("pipeline"),
	}
}

// CreateSession inserts a new Session row in the "uploading" state; the
// transient "created" state collapses into this one insert, since nothing
// observes the gap between the two.
func (o *Orchestrator) CreateSession(ctx context.Context) (catalog.Session, error) {
	now := time.Now().UTC()
	s := catalog.Session{
		SessionID: idgen.New(),
		Token:     idgen.Token(),
		Status:    catalog.StatusUploading,
		CreatedAt: now,
		UpdatedAt: now,
		BlobPrefix: "",
	}
	s.BlobPrefix = s.SessionID
	if err := o.catalog.InsertSession(ctx, s); err != nil {
		return catalog.Session{}, err
	}
	return s, nil
}

type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	SessionID     string
	UploadedFiles []string
	TotalFiles    int
	JobID         string
}

// Upload validates, stores, and records the files for one session. Any
// storage/catalog failure fails the session and reports which file
// tripped it; validation errors never transition state (the session stays
// "uploading").
func (o *Orchestrator) Upload(ctx context.Context, sessionID string, files []UploadedFile) (UploadResult, error) {
	sess, err := o.catalog.GetSession(ctx, sessionID)
	if err != nil {
		return UploadResult{}, err
	}

	if len(files) == 0 {
		return UploadResult{}, dgerr.Validation("no files provided")
	}
	if len(files) > maxFilesPerUpload {
		return UploadResult{}, dgerr.Validation("too many files: %d (max %d)", len(files), maxFilesPerUpload)
	}

	for _, f := range files {
		if err := o.validateFile(f); err != nil {
			return UploadResult{}, err
		}
	}

	var uploaded []string
	for _, f := range files {
		key := blobstore.Key(sessionID, f.Filename)
		if err := o.blobs.Put(ctx, key, f.Data, f.ContentType); err != nil {
			_ = o.catalog.ForceSessionFailed(ctx, sessionID, fmt.Sprintf("upload failed on %q: %v", f.Filename, err))
			return UploadResult{}, dgerr.Storage("put "+f.Filename, err)
		}

		img := catalog.Image{
			ImageID:          idgen.New(),
			SessionID:        sessionID,
			OriginalFilename: f.Filename,
			ContentType:      f.ContentType,
			FileSize:         int64(len(f.Data)),
			UploadTime:       time.Now().UTC(),
			BlobName:         key,
			BlobURL:          blobstore.PublicURL(o.cfg.BlobConnection, o.cfg.BlobContainer, key),
		}
		if err := o.catalog.InsertImage(ctx, img); err != nil {
			_ = o.catalog.ForceSessionFailed(ctx, sessionID, fmt.Sprintf("catalog insert failed on %q: %v", f.Filename, err))
			return UploadResult{}, err
		}
		uploaded = append(uploaded, img.ImageID)
	}

	if err := o.catalog.SetSessionTotals(ctx, sessionID, len(uploaded)); err != nil {
		return UploadResult{}, err
	}
	if err := o.catalog.UpdateSessionStatus(ctx, sessionID, sess.Status, catalog.StatusUploaded); err != nil {
		return UploadResult{}, err
	}

	job := queue.Job{JobID: idgen.New(), Type: queue.JobProcessImages, SessionID: sessionID, EnqueuedAt: time.Now().UTC()}
	if err := o.broker.Enqueue(ctx, job); err != nil {
		return UploadResult{}, err
	}

	return UploadResult{SessionID: sessionID, UploadedFiles: uploaded, TotalFiles: len(uploaded), JobID: job.JobID}, nil
}

func (o *Orchestrator) validateFile(f UploadedFile) error {
	if !strings.HasPrefix(f.ContentType, "image/") {
		return dgerr.Validation("file %q has non-image content-type %q", f.Filename, f.ContentType)
	}
	if int64(len(f.Data)) > o.cfg.UploadMaxSizeBytes {
		return dgerr.Validation("file %q exceeds max size of %d bytes", f.Filename, o.cfg.UploadMaxSizeBytes)
	}
	ext := strings.TrimPrefix(strings.ToLower(extOf(f.Filename)), ".")
	if !o.cfg.IsExtensionAllowed(ext) {
		return dgerr.Validation("file %q has disallowed extension %q", f.Filename, ext)
	}
	return nil
}

func extOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return filename[idx+1:]
}

// ProcessImages runs the per-image stage: bounded concurrency across
// images, hash+quality computed in parallel per image via errgroup, each
// row updated atomically, processed_images incremented, then the session
// advances to "clustering".
func (o *Orchestrator) ProcessImages(ctx context.Context, sessionID string) error {
	sess, err := o.catalog.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := o.catalog.UpdateSessionStatus(ctx, sessionID, sess.Status, catalog.StatusProcessing); err != nil {
		return err
	}

	images, err := o.catalog.ListImagesBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	pool := semaphore.NewWeighted(int64(o.cfg.MaxConcurrentProcessing))
	g, gctx := errgroup.WithContext(ctx)

	for _, img := range images {
		img := img
		g.Go(func() error {
			if err := pool.Acquire(gctx, 1); err != nil {
				return err
			}
			defer pool.Release(1)

			if err := o.processOneImage(gctx, img); err != nil {
				// Per-image errors never fail the session: log and move
				// on, leaving the row's hash/quality unset.
				o.log.Warn("skipping image after processing error",
					zap.String("image_id", img.ImageID), zap.Error(err))
				return nil
			}
			return o.catalog.IncrementProcessedImages(gctx, sessionID)
		})
	}

	if err := g.Wait(); err != nil {
		_ = o.catalog.ForceSessionFailed(ctx, sessionID, fmt.Sprintf("processing failed: %v", err))
		return err
	}

	return o.catalog.UpdateSessionStatus(ctx, sessionID, catalog.StatusProcessing, catalog.StatusClustering)
}

func (o *Orchestrator) processOneImage(ctx context.Context, img catalog.Image) error {
	data, _, err := o.blobs.Get(ctx, img.BlobName)
	if err != nil {
		return dgerr.Storage("get "+img.BlobName, err)
	}

	var hashRec catalog.HashRecord
	var qualityRec catalog.Quality

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h, err := hashing.Compute(gctx, data, hashing.Family(o.cfg.HashFamily))
		if err != nil {
			return err
		}
		hashRec = h
		return nil
	})
	g.Go(func() error {
		decoded, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return dgerr.Processing(img.ImageID, fmt.Errorf("decode: %w", err))
		}
		q, err := o.quality.Assess(gctx, decoded, o.cfg)
		if err != nil {
			return err
		}
		qualityRec = q
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return o.catalog.UpdateImageHashAndQuality(ctx, img.ImageID, hashRec, qualityRec)
}
