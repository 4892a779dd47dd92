package compile

import (
	"errors"
	"fmt"
)

// ErrNoProcessableContent means zero clips survived processing. Whole-job
// fatal.
var ErrNoProcessableContent = errors.New("compile: no clips could be processed")

// MediaUnresolvableError means a referenced media file could not be found
// locally or fetched remotely. Per-clip for clips, degrade-by-omission for
// intro/outro/music.
type MediaUnresolvableError struct {
	MediaID int64
	Err     error
}

func (e *MediaUnresolvableError) Error() string {
	return fmt.Sprintf("media %d unresolvable: %v", e.MediaID, e.Err)
}

func (e *MediaUnresolvableError) Unwrap() error { return e.Err }

// EncodingError means the external encoder exited non-zero. Per-item for
// clips, whole-job fatal during concatenation or audio mixing.
type EncodingError struct {
	Item string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Item, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// ConfigError means required remote-fetch configuration was absent when a
// download was actually needed. Raised immediately, never retried here.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration: %v", e.Err) }

func (e *ConfigError) Unwrap() error { return e.Err }
