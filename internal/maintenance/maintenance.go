// Package maintenance runs the periodic sweep: purge completed or failed
// sessions older than CLEANUP_DAYS (sessions in any other status are left
// in place however old), then reclaim blobs no image row references. Grounded on
// the teacher's preference for a plain time.Ticker over a cron-expression
// library — no such library appears anywhere in the example corpus (see
// DESIGN.md) — driven by a ticker loop inside a goroutine started from
// main.
package maintenance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dupligone/internal/blobstore"
	"dupligone/internal/catalog"
	"dupligone/internal/config"
	"dupligone/internal/logging"
)

type Sweeper struct {
	cfg     config.Config
	catalog *catalog.Client
	blobs   *blobstore.Store
	log     *zap.Logger
}

func New(cfg config.Config, cat *catalog.Client, blobs *blobstore.Store) *Sweeper {
	return &Sweeper{cfg: cfg, catalog: cat, blobs: blobs, log: logging.Named("maintenance")}
}

// Run blocks until ctx is cancelled, sweeping every CleanupInterval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.CleanupDays)

	stale, err := s.catalog.ListStaleSessions(ctx, cutoff)
	if err != nil {
		s.log.Error("list stale sessions failed", zap.Error(err))
		return
	}

	for _, sess := range stale {
		if sess.Status != catalog.StatusCompleted && sess.Status != catalog.StatusFailed {
			continue
		}
		if err := s.purgeSession(ctx, sess); err != nil {
			s.log.Error("purge session failed", zap.String("session_id", sess.SessionID), zap.Error(err))
			continue
		}
		s.log.Info("purged stale session", zap.String("session_id", sess.SessionID))
	}

	if err := s.reclaimOrphanBlobs(ctx); err != nil {
		s.log.Error("orphan blob sweep failed", zap.Error(err))
	}
}

func (s *Sweeper) purgeSession(ctx context.Context, sess catalog.Session) error {
	if err := s.blobs.DeletePrefix(ctx, sess.BlobPrefix); err != nil {
		return err
	}
	return s.catalog.DeleteSessionRows(ctx, sess.SessionID)
}

// reclaimOrphanBlobs lists every blob under each surviving session's prefix
// and deletes keys no Image row references. Only prefixes of sessions that
// still have a row are listed; blobs under the prefix of a session whose
// row is gone are not found by this sweep.
func (s *Sweeper) reclaimOrphanBlobs(ctx context.Context) error {
	sessions, err := s.catalog.ListAllSessions(ctx)
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		images, err := s.catalog.ListImagesBySession(ctx, sess.SessionID)
		if err != nil {
			s.log.Warn("list images for orphan sweep failed", zap.String("session_id", sess.SessionID), zap.Error(err))
			continue
		}
		referenced := make(map[string]struct{}, len(images))
		for _, img := range images {
			referenced[img.BlobName] = struct{}{}
		}

		keys, err := s.blobs.List(ctx, sess.SessionID+"/")
		if err != nil {
			s.log.Warn("list blobs for orphan sweep failed", zap.String("session_id", sess.SessionID), zap.Error(err))
			continue
		}

		for _, key := range keys {
			if _, ok := referenced[key]; ok {
				continue
			}
			if err := s.blobs.Delete(ctx, key); err != nil {
				s.log.Warn("delete orphan blob failed", zap.String("key", key), zap.Error(err))
				continue
			}
			s.log.Info("reclaimed orphan blob", zap.String("key", key))
		}
	}
	return nil
}
