// Package config loads the environment-variable configuration recognized by
// the DupliGone server binary (which also hosts the worker), the way the teacher's
// package of the same name does: plain os.Getenv reads with typed
// defaulting helpers, no config file, no reflection-based binding.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// QualityFormula selects which of the two image-quality scoring weights
// the quality engine applies.
type QualityFormula string

const (
	QualityFormulaWeightedFaces    QualityFormula = "weighted_faces"
	QualityFormulaWeightedContrast QualityFormula = "weighted_contrast"
)

// HashFamily selects which set of perceptual hashes get computed and
// stored per image.
type HashFamily string

const (
	HashFamilyTriple HashFamily = "triple"
	HashFamilyPair   HashFamily = "pair"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	LogFormat  string

	// Blob store (S3-compatible; generalized from the teacher's R2Config).
	BlobConnection string
	BlobRegion     string
	BlobContainer  string
	BlobAccessKey  string
	BlobSecretKey  string

	// Catalog (SQL-over-HTTP, same shape as the teacher's D1 client).
	CatalogURL  string
	CatalogDB   string
	CatalogAuth string

	// Job broker.
	QueueURL string

	SecretKey string

	UploadMaxSizeBytes int64
	AllowedExtensions  map[string]struct{}

	SimilarityThreshold float64
	ClusterMinSamples   int

	HashFamily HashFamily

	QualityFormula     QualityFormula
	QualityWeightSharp float64
	QualityWeightExp   float64
	QualityWeightFaces float64
	QualityThreshold   float64

	MaxConcurrentProcessing int
	CleanupDays             int
	CleanupInterval         time.Duration

	JobSoftTimeout time.Duration
	JobHardTimeout time.Duration
}

func Load() Config {
	return Config{
		ListenAddr: envOrDefault("LISTEN_ADDR", ":8080"),
		LogLevel:   envOrDefault("LOG_LEVEL", "info"),
		LogFormat:  envOrDefault("LOG_FORMAT", "json"),

		BlobConnection: strings.TrimSpace(os.Getenv("BLOB_CONNECTION")),
		BlobRegion:     envOrDefault("BLOB_REGION", "auto"),
		BlobContainer:  strings.TrimSpace(os.Getenv("BLOB_CONTAINER")),
		BlobAccessKey:  strings.TrimSpace(os.Getenv("BLOB_ACCESS_KEY_ID")),
		BlobSecretKey:  strings.TrimSpace(os.Getenv("BLOB_SECRET_ACCESS_KEY")),

		CatalogURL:  strings.TrimSpace(os.Getenv("CATALOG_URL")),
		CatalogDB:   strings.TrimSpace(os.Getenv("CATALOG_DB")),
		CatalogAuth: strings.TrimSpace(os.Getenv("CATALOG_AUTH_TOKEN")),

		QueueURL: envOrDefault("QUEUE_URL", "redis://127.0.0.1:6379/0"),

		SecretKey: strings.TrimSpace(os.Getenv("SECRET_KEY")),

		UploadMaxSizeBytes: envBytes("UPLOAD_MAX_SIZE", 50<<20),
		AllowedExtensions:  parseExtSet(envOrDefault("ALLOWED_EXTENSIONS", "jpg,jpeg,png,gif,bmp,tiff,webp")),

		SimilarityThreshold: envFloat("SIMILARITY_THRESHOLD", 0.85),
		ClusterMinSamples:   envInt("CLUSTER_MIN_SAMPLES", 2),

		HashFamily: HashFamily(envOrDefault("HASH_FAMILY", string(HashFamilyTriple))),

		QualityFormula:     QualityFormula(envOrDefault("QUALITY_FORMULA", string(QualityFormulaWeightedFaces))),
		QualityWeightSharp: envFloat("QUALITY_WEIGHTS_SHARPNESS", 0.4),
		QualityWeightExp:   envFloat("QUALITY_WEIGHTS_EXPOSURE", 0.3),
		QualityWeightFaces: envFloat("QUALITY_WEIGHTS_FACES", 0.3),
		QualityThreshold:   envFloat("QUALITY_THRESHOLD", 0.5),

		MaxConcurrentProcessing: envInt("MAX_CONCURRENT_PROCESSING", 4),
		CleanupDays:             envInt("CLEANUP_DAYS", 7),
		CleanupInterval:         envDuration("CLEANUP_INTERVAL", time.Hour),

		JobSoftTimeout: envDuration("JOB_SOFT_TIMEOUT", 25*time.Minute),
		JobHardTimeout: envDuration("JOB_HARD_TIMEOUT", 30*time.Minute),
	}
}

func (c Config) HasBlobStore() bool {
	return c.BlobConnection != "" && c.BlobContainer != "" && c.BlobAccessKey != "" && c.BlobSecretKey != ""
}

func (c Config) HasCatalog() bool {
	return c.CatalogURL != "" && c.CatalogDB != ""
}

func (c Config) IsExtensionAllowed(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	_, ok := c.AllowedExtensions[ext]
	return ok
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envBytes accepts either a bare integer (bytes) or a "NNMB"/"NNKB" suffix,
// matching the shape of UPLOAD_MAX_SIZE's documented default ("50MB").
func envBytes(key string, fallback int64) int64 {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(v, "MB"):
		mult = 1 << 20
		v = strings.TrimSuffix(v, "MB")
	case strings.HasSuffix(v, "KB"):
		mult = 1 << 10
		v = strings.TrimSuffix(v, "KB")
	case strings.HasSuffix(v, "GB"):
		mult = 1 << 30
		v = strings.TrimSuffix(v, "GB")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n * mult
}

func parseExtSet(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		v := strings.ToLower(strings.TrimSpace(part))
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}

