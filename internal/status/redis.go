package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"clip-compiler/internal"
	"clip-compiler/internal/model"
)

// jobTTL keeps finished job records around long enough for the web
// application to read them.
const jobTTL = 7 * 24 * time.Hour

// Tracker implements the job-tracking, project-status and usage-recording
// collaborators on Redis. The web application reads these keys.
type Tracker struct {
	rdb *redis.Client
}

func NewTracker(cfg internal.Config) *Tracker {
	return &Tracker{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
	}
}

func (t *Tracker) Close() error { return t.rdb.Close() }

// Ping verifies connectivity at startup.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

func (t *Tracker) Progress(ctx context.Context, jobID string, percent int, status string) error {
	key := jobKey(jobID)
	pipe := t.rdb.Pipeline()
	pipe.HSet(ctx, key, "progress", percent, "status", status, "updated_at", time.Now().Format(time.RFC3339))
	pipe.Expire(ctx, key, jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *Tracker) Log(ctx context.Context, jobID, line string) error {
	key := jobKey(jobID) + ":log"
	pipe := t.rdb.Pipeline()
	pipe.RPush(ctx, key, fmt.Sprintf("%s %s", time.Now().Format(time.RFC3339), line))
	pipe.Expire(ctx, key, jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *Tracker) Complete(ctx context.Context, jobID string, result *model.CompilationResult) error {
	meta, err := json.Marshal(result)
	if err != nil {
		return err
	}
	key := jobKey(jobID)
	pipe := t.rdb.Pipeline()
	pipe.HSet(ctx, key, "progress", 100, "status", "completed", "result", string(meta))
	pipe.Expire(ctx, key, jobTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (t *Tracker) Fail(ctx context.Context, jobID, message string) error {
	key := jobKey(jobID)
	pipe := t.rdb.Pipeline()
	pipe.HSet(ctx, key, "status", "failed", "error", message)
	pipe.Expire(ctx, key, jobTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (t *Tracker) Completed(ctx context.Context, projectID int64, filename string, sizeBytes int64) error {
	return t.rdb.HSet(ctx, projectKey(projectID),
		"status", "completed",
		"output_filename", filename,
		"output_size", sizeBytes,
	).Err()
}

func (t *Tracker) Failed(ctx context.Context, projectID int64, message string) error {
	return t.rdb.HSet(ctx, projectKey(projectID),
		"status", "failed",
		"error", message,
	).Err()
}

// Record accumulates rendered seconds per user. Best-effort at the caller.
func (t *Tracker) Record(ctx context.Context, userID, projectID int64, seconds float64) error {
	return t.rdb.IncrByFloat(ctx, fmt.Sprintf("usage:user:%d:render_seconds", userID), seconds).Err()
}

func jobKey(jobID string) string        { return "job:" + jobID }
func projectKey(projectID int64) string { return fmt.Sprintf("project:%d", projectID) }
