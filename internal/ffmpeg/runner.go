package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"clip-compiler/internal"
	"clip-compiler/internal/logging"
)

// encodeSem limits the number of concurrent ffmpeg encodes to 1. Hardware
// encoders allow a small number of sessions and software encodes starve each
// other for threads, so workers serialize at the process boundary.
var encodeSem = make(chan struct{}, 1)

const maxStderrBytes = 8 * 1024

// Runner executes ffmpeg/ffprobe as external processes. Every invocation runs
// under a context timeout; a run that exceeds it is killed and reported as a
// normal failure.
type Runner struct {
	log         *logging.Logger
	ffmpegPath  string
	ffprobePath string

	encodeTimeout time.Duration
	probeTimeout  time.Duration
	disableHW     bool
}

func NewRunner(cfg internal.Config, log *logging.Logger) (*Runner, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Runner{
		log:           log,
		ffmpegPath:    ffmpegPath,
		ffprobePath:   ffprobePath,
		encodeTimeout: cfg.EncodeTimeout,
		probeTimeout:  cfg.ProbeTimeout,
		disableHW:     cfg.DisableHWEncoding,
	}, nil
}

// withEncodeSlot serializes fn with every other ffmpeg encode in the process,
// the trial encode of the hardware probe included.
func (r *Runner) withEncodeSlot(fn func() error) error {
	encodeSem <- struct{}{}
	defer func() { <-encodeSem }()
	return fn()
}

// Encode runs ffmpeg with the given argument vector. The -y/-hide_banner
// preamble is added here so builders emit only the job-specific arguments.
func (r *Runner) Encode(ctx context.Context, args []string) error {
	return r.withEncodeSlot(func() error {
		return r.encode(ctx, args)
	})
}

func (r *Runner) encode(ctx context.Context, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, r.encodeTimeout)
	defer cancel()

	full := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	r.log.Infof("ffmpeg: running with %d args", len(full))

	cmd := exec.CommandContext(ctx, r.ffmpegPath, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
	cmd.Stdout = io.Discard

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timed out after %s", r.encodeTimeout)
		}
		tail := strings.TrimSpace(stderr.String())
		if tail == "" {
			tail = err.Error()
		}
		return fmt.Errorf("ffmpeg failed: %s", tail)
	}
	return nil
}

// rawProbe runs ffprobe and returns its stdout (JSON).
func (r *Runner) rawProbe(ctx context.Context, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.ffprobePath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}
	out, err := cmd.Output()
	if err != nil {
		tail := strings.TrimSpace(stderr.String())
		if tail == "" {
			tail = err.Error()
		}
		return nil, fmt.Errorf("ffprobe failed: %s", tail)
	}
	return out, nil
}

// limitedWriter keeps the last thing ffmpeg said within a bounded buffer.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if l.w.Len()+n > l.limit {
		keep := l.limit / 2
		if l.w.Len() > keep {
			b := l.w.Bytes()
			tail := make([]byte, keep)
			copy(tail, b[l.w.Len()-keep:])
			l.w.Reset()
			l.w.Write(tail)
		}
		if n > l.limit-l.w.Len() {
			p = p[n-(l.limit-l.w.Len()):]
		}
	}
	l.w.Write(p)
	return n, nil
}
