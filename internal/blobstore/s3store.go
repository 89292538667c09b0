// Package blobstore stores and serves uploaded image bytes against any
// S3-compatible endpoint, generalizing the teacher's R2-only client (which
// this package is adapted from) into a bucket-backed store keyed by
// session.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dupligone/internal/dgerr"
	"dupligone/internal/idgen"
)

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Store is the blob store adapter: put/get/list/delete against a single
// bucket, key-namespaced per session.
type Store struct {
	bucket string
	s3     *s3.Client
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Region = strings.TrimSpace(cfg.Region)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	cfg.AccessKey = strings.TrimSpace(cfg.AccessKey)
	cfg.SecretKey = strings.TrimSpace(cfg.SecretKey)

	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, dgerr.Storage("configure", fmt.Errorf("blob store config incomplete"))
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, dgerr.Storage("load aws config", err)
	}

	endpoint := cfg.Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = &endpoint
	})

	return &Store{bucket: cfg.Bucket, s3: client}, nil
}

// Key builds the `<session_id>/<unique>-<filename>` object key, keeping
// uploads within one session under a common prefix so a session can be
// wiped with one prefix listing.
func Key(sessionID, originalFilename string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, originalFilename)
	return fmt.Sprintf("%s/%s-%s", sessionID, idgen.New(), clean)
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return dgerr.Storage("put", fmt.Errorf("empty key"))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	cacheControl := "private, max-age=3600"
	_, err := s.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       &s.bucket,
		Key:          &key,
		Body:         bytes.NewReader(data),
		ContentType:  &contentType,
		CacheControl: &cacheControl,
	})
	if err != nil {
		return dgerr.Storage("put", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, "", dgerr.Storage("get", fmt.Errorf("empty key"))
	}
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, "", dgerr.Storage("get", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", dgerr.Storage("get", err)
	}
	contentType := ""
	if out.ContentType != nil {
		contentType = strings.TrimSpace(*out.ContentType)
	}
	return data, contentType, nil
}

// List returns every object key under prefix, used by DeletePrefix and by
// the maintenance sweep to find blobs under a live session's prefix that
// no image row references.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &s.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return nil, dgerr.Storage("list", err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}
	return keys, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	_, err := s.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return dgerr.Storage("delete", err)
	}
	return nil
}

// DeletePrefix removes every object under prefix; used when a whole session
// is torn down.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// PublicURL builds the URL stored alongside an image row. Real deployments
// front the bucket with a CDN or signed-URL proxy; this returns the direct
// endpoint/bucket/key form, matching the teacher's R2 client which did the
// same (no presigning).
func PublicURL(endpoint, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(endpoint, "/"), bucket, key)
}
