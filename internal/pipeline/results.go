package pipeline

import (
	"context"
	"fmt"
	"time"

	"dupligone/internal/catalog"
	"dupligone/internal/clustering"
	"dupligone/internal/dgerr"
	"dupligone/internal/idgen"
)

// ClusterImages groups every successfully-hashed image in the session into
// near-duplicate clusters and writes Cluster rows plus per-image cluster
// assignments, then advances the session to "completed". Images a prior
// processing failure left without a hash are excluded from the distance
// matrix entirely (a hash-less image can't be compared to anything) rather
// than failing the whole session; they fall through to the unique-images
// list alongside any image that simply had no near-duplicates. A session
// with fewer than two hashed images skips clustering entirely.
func (o *Orchestrator) ClusterImages(ctx context.Context, sessionID string) error {
	sess, err := o.catalog.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	images, err := o.catalog.ListImagesBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	hashed := make([]catalog.Image, 0, len(images))
	for _, img := range images {
		if img.Hash.IsZero() {
			continue
		}
		hashed = append(hashed, img)
	}

	clustersFound := 0
	flagged := 0

	if len(hashed) >= 2 {
		if sess.Status != catalog.StatusClustering {
			if err := o.catalog.UpdateSessionStatus(ctx, sessionID, sess.Status, catalog.StatusClustering); err != nil {
				return err
			}
		}

		results, _, radius, err := clustering.BuildClusters(hashed, o.cfg.ClusterMinSamples)
		if err != nil {
			_ = o.catalog.ForceSessionFailed(ctx, sessionID, fmt.Sprintf("clustering failed: %v", err))
			return err
		}

		for _, result := range results {
			memberIDs := make([]string, 0, len(result.MemberIndices))
			for _, idx := range result.MemberIndices {
				memberIDs = append(memberIDs, hashed[idx].ImageID)
			}

			cl := catalog.Cluster{
				ClusterID:        idgen.New(),
				SessionID:        sessionID,
				MemberImageIDs:   memberIDs,
				BestImageID:      hashed[result.BestIndex].ImageID,
				SimilarityRadius: radius,
				CreatedAt:        time.Now().UTC(),
			}
			if err := o.catalog.InsertCluster(ctx, cl); err != nil {
				return err
			}
			clustersFound++

			for _, idx := range result.MemberIndices {
				isBest := idx == result.BestIndex
				if err := o.catalog.UpdateImageClusterAssignment(ctx, hashed[idx].ImageID, cl.ClusterID, isBest, !isBest); err != nil {
					return err
				}
				if !isBest {
					flagged++
				}
			}
		}

		sess.Status = catalog.StatusClustering
	}

	if err := o.catalog.SetClusteringResults(ctx, sessionID, clustersFound, flagged); err != nil {
		return err
	}
	return o.catalog.UpdateSessionStatus(ctx, sessionID, sess.Status, catalog.StatusCompleted)
}

// ConfirmDeletions deletes the blob behind every flagged-but-not-yet-deleted
// image and marks it deleted. This is not a state transition.
func (o *Orchestrator) ConfirmDeletions(ctx context.Context, sessionID string) (deletedCount int, bytesFreed int64, err error) {
	images, err := o.catalog.ListImagesBySession(ctx, sessionID)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	for _, img := range images {
		if !img.DeleteRecommended || img.Deleted {
			continue
		}
		if err := o.blobs.Delete(ctx, img.BlobName); err != nil {
			var nf *dgerr.NotFoundError
			if !asNotFound(err, &nf) {
				return deletedCount, bytesFreed, err
			}
		}
		if err := o.catalog.MarkImageDeleted(ctx, img.ImageID, now); err != nil {
			return deletedCount, bytesFreed, err
		}
		deletedCount++
		bytesFreed += img.FileSize
	}
	return deletedCount, bytesFreed, nil
}

// DeleteSession purges every blob under the session's prefix, then every
// catalog row.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	sess, err := o.catalog.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := o.blobs.DeletePrefix(ctx, sess.BlobPrefix); err != nil {
		return err
	}
	return o.catalog.DeleteSessionRows(ctx, sessionID)
}

// FailSession force-transitions a session to "failed" with a short
// diagnostic. Partial progress made before the failure is retained rather
// than rolled back.
func (o *Orchestrator) FailSession(ctx context.Context, sessionID, diagnostic string) error {
	return o.catalog.ForceSessionFailed(ctx, sessionID, diagnostic)
}

// FlagImage toggles the user override behind
// PATCH /images/{id}/flag?delete_recommended=<bool>.
func (o *Orchestrator) FlagImage(ctx context.Context, imageID string, deleteRecommended bool) error {
	return o.catalog.FlagImageForDeletion(ctx, imageID, deleteRecommended)
}

// GetSessionEnvelope returns the session row with derived counts, the form
// `GET /sessions/{id}` returns.
func (o *Orchestrator) GetSessionEnvelope(ctx context.Context, sessionID string) (catalog.Session, error) {
	sess, err := o.catalog.GetSession(ctx, sessionID)
	if err != nil {
		return catalog.Session{}, err
	}
	return *sess, nil
}

func (o *Orchestrator) GetSessionByToken(ctx context.Context, token string) (catalog.Session, error) {
	sess, err := o.catalog.GetSessionByToken(ctx, token)
	if err != nil {
		return catalog.Session{}, err
	}
	return *sess, nil
}

func (o *Orchestrator) ListSessionImages(ctx context.Context, sessionID string) ([]catalog.Image, error) {
	return o.catalog.ListImagesBySession(ctx, sessionID)
}

func (o *Orchestrator) ListSessionClusters(ctx context.Context, sessionID string) ([]catalog.Cluster, error) {
	return o.catalog.ListClustersBySession(ctx, sessionID)
}

// GetResults assembles the clustered-results view: every cluster with its
// best image and its deletion candidates, plus the flat list of images
// that were never part of a cluster, plus an estimate of recoverable
// space.
func (o *Orchestrator) GetResults(ctx context.Context, sessionID string) (ResultsView, error) {
	sess, err := o.catalog.GetSession(ctx, sessionID)
	if err != nil {
		return ResultsView{}, err
	}
	images, err := o.catalog.ListImagesBySession(ctx, sessionID)
	if err != nil {
		return ResultsView{}, err
	}
	clusters, err := o.catalog.ListClustersBySession(ctx, sessionID)
	if err != nil {
		return ResultsView{}, err
	}

	byID := make(map[string]catalog.Image, len(images))
	for _, img := range images {
		byID[img.ImageID] = img
	}

	view := ResultsView{Status: sess.Status}
	var potentialSpaceSaved int64

	for _, cl := range clusters {
		cv := ClusterView{ClusterID: cl.ClusterID, SimilarityRadius: cl.SimilarityRadius}
		if best, ok := byID[cl.BestImageID]; ok {
			cv.BestImage = best
		}
		for _, memberID := range cl.MemberImageIDs {
			img, ok := byID[memberID]
			if !ok {
				continue
			}
			cv.AllImages = append(cv.AllImages, img)
			if img.DeleteRecommended && !img.Deleted {
				cv.ImagesToDelete = append(cv.ImagesToDelete, img)
				potentialSpaceSaved += img.FileSize
			}
		}
		view.Clusters = append(view.Clusters, cv)
	}

	for _, img := range images {
		if img.ClusterID == "" {
			view.UniqueImages = append(view.UniqueImages, img)
		}
	}
	view.PotentialSpaceSaved = potentialSpaceSaved

	return view, nil
}

type ClusterView struct {
	ClusterID        string
	SimilarityRadius float64
	BestImage        catalog.Image
	ImagesToDelete   []catalog.Image
	AllImages        []catalog.Image
}

type ResultsView struct {
	Status              catalog.SessionStatus
	Clusters            []ClusterView
	UniqueImages        []catalog.Image
	PotentialSpaceSaved int64
}

func asNotFound(err error, out **dgerr.NotFoundError) bool {
	nf, ok := err.(*dgerr.NotFoundError)
	if ok {
		*out = nf
	}
	return ok
}
