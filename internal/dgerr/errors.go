// Package dgerr defines the typed error kinds the pipeline surfaces across
// package boundaries: validation failures, missing entities, storage and
// catalog faults, and the per-image/per-cluster failures that must never
// fail a whole session.
package dgerr

import "fmt"

// ValidationError covers bad file type, oversized file, too many files, or a
// malformed identifier. Never transitions session state.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Code() string  { return "validation_error" }

func Validation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError covers a missing session, image, or cluster.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }
func (e *NotFoundError) Code() string  { return "not_found" }

func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// StorageError wraps a blob I/O failure. Retried by the worker a bounded
// number of times with backoff; on final failure it fails the session.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Code() string  { return "storage_error" }
func (e *StorageError) Unwrap() error { return e.Err }

func Storage(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// CatalogError wraps a catalog read/write failure. The worker retries a job
// that fails with any CatalogError; it does not distinguish idempotent reads
// and updates from non-idempotent inserts.
type CatalogError struct {
	Op  string
	Err error
}

func (e *CatalogError) Error() string { return fmt.Sprintf("catalog %s: %v", e.Op, e.Err) }
func (e *CatalogError) Code() string  { return "catalog_error" }
func (e *CatalogError) Unwrap() error { return e.Err }

func Catalog(op string, err error) *CatalogError {
	return &CatalogError{Op: op, Err: err}
}

// ProcessingError is a decode/hash/quality failure for a single image. The
// image is skipped and excluded from clustering; processing continues.
type ProcessingError struct {
	ImageID string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing image %s: %v", e.ImageID, e.Err)
}
func (e *ProcessingError) Code() string  { return "processing_error" }
func (e *ProcessingError) Unwrap() error { return e.Err }

func Processing(imageID string, err error) *ProcessingError {
	return &ProcessingError{ImageID: imageID, Err: err}
}

// ClusteringError covers malformed hash input to the distance computation
// (mismatched lengths or a non-hex digit); it is returned to the caller.
// A missing elbow is not an error: the radius selection falls back to the
// 90th percentile or the median on its own.
type ClusteringError struct {
	Msg string
}

func (e *ClusteringError) Error() string { return e.Msg }
func (e *ClusteringError) Code() string  { return "clustering_error" }

func Clustering(format string, args ...any) *ClusteringError {
	return &ClusteringError{Msg: fmt.Sprintf(format, args...)}
}

// TimeoutError marks a job that exceeded its hard time limit.
type TimeoutError struct {
	JobID string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("job %s exceeded hard time limit", e.JobID) }
func (e *TimeoutError) Code() string  { return "timeout_error" }

func Timeout(jobID string) *TimeoutError {
	return &TimeoutError{JobID: jobID}
}

// Coder is implemented by every error kind above; HTTP handlers use it to
// pick a status code without a long type switch.
type Coder interface {
	Error() string
	Code() string
}

// HTTPStatus maps a Coder to the status code named in spec §6/§7.
func HTTPStatus(err error) int {
	var c Coder
	if !asCoder(err, &c) {
		return 500
	}
	switch c.Code() {
	case "validation_error":
		return 400
	case "not_found":
		return 404
	default:
		return 500
	}
}

func asCoder(err error, out *Coder) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if c, ok := err.(Coder); ok {
			*out = c
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
