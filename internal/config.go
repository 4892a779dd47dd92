package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	// Remote media origin. "s3" fetches media objects from the bucket under
	// MediaPrefix; "http" fetches from the web application's media endpoint.
	// Empty means the worker can only use media already on local disk.
	MediaOrigin      string
	MediaOriginURL   string
	MediaOriginToken string
	MediaPrefix      string

	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheDir      string
	CacheMaxAge   time.Duration
	CacheSweep    string // cron spec for the cache janitor
	WorkspaceRoot string

	ArtifactPrefix   string
	LocalArtifactDir string

	FontPath        string
	MaxClipDuration float64 // seconds, trim fallback when a clip has no end time
	EncodeTimeout   time.Duration
	ProbeTimeout    time.Duration

	DisableHWEncoding bool

	// "old-prefix=new-prefix" pairs, comma separated, applied to recorded
	// media paths before the local existence check.
	PathRewrites map[string]string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    os.Getenv("S3_REGION"),
		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3AccessKey: firstNonEmpty(os.Getenv("S3_ACCESS_KEY"), os.Getenv("S3_ACCESS_KEY_ID")),
		S3SecretKey: firstNonEmpty(os.Getenv("S3_SECRET_ACCESS_KEY"), os.Getenv("S3_SECRET_ACCESS_KEY_ID")),

		MediaOrigin:      os.Getenv("MEDIA_ORIGIN"),
		MediaOriginURL:   os.Getenv("MEDIA_ORIGIN_URL"),
		MediaOriginToken: os.Getenv("MEDIA_ORIGIN_TOKEN"),
		MediaPrefix:      "media/",

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		KafkaTopic:   firstNonEmpty(os.Getenv("KAFKA_TOPIC"), "compile-jobs"),
		KafkaGroupID: firstNonEmpty(os.Getenv("KAFKA_GROUP_ID"), "clip-compiler"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		CacheDir:      firstNonEmpty(os.Getenv("MEDIA_CACHE_DIR"), filepath.Join(os.TempDir(), "clip-compiler-cache")),
		CacheMaxAge:   72 * time.Hour,
		CacheSweep:    firstNonEmpty(os.Getenv("CACHE_SWEEP_SPEC"), "@hourly"),
		WorkspaceRoot: firstNonEmpty(os.Getenv("WORKSPACE_ROOT"), os.TempDir()),

		ArtifactPrefix:   firstNonEmpty(os.Getenv("ARTIFACT_PREFIX"), "compilations/"),
		LocalArtifactDir: firstNonEmpty(os.Getenv("LOCAL_ARTIFACT_DIR"), "artifacts"),

		FontPath:        firstNonEmpty(os.Getenv("OVERLAY_FONT"), "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"),
		MaxClipDuration: 60,
		EncodeTimeout:   30 * time.Minute,
		ProbeTimeout:    30 * time.Second,

		DisableHWEncoding: envBool("DISABLE_HW_ENCODING"),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
	if v := os.Getenv("CACHE_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheMaxAge = d
		}
	}
	if v := os.Getenv("MAX_CLIP_DURATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.MaxClipDuration = f
		}
	}
	if v := os.Getenv("ENCODE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.EncodeTimeout = d
		}
	}
	if v := os.Getenv("MEDIA_PATH_REWRITES"); v != "" {
		cfg.PathRewrites = parseRewrites(v)
	}

	if cfg.KafkaBrokers == "" {
		return cfg, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.RedisAddr == "" {
		return cfg, errors.New("REDIS_ADDR is required")
	}
	if cfg.S3Endpoint == "" || cfg.S3Region == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		return cfg, errors.New("S3_* env vars are required")
	}
	if cfg.MediaOrigin == "http" && cfg.MediaOriginURL == "" {
		return cfg, errors.New("MEDIA_ORIGIN_URL is required when MEDIA_ORIGIN=http")
	}
	return cfg, nil
}

func parseRewrites(v string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(v, ",") {
		from, to, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && from != "" {
			out[from] = to
		}
	}
	return out
}

func envBool(name string) bool {
	v := strings.ToLower(os.Getenv(name))
	return v == "1" || v == "true" || v == "yes"
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
