package compile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"clip-compiler/internal"
	"clip-compiler/internal/ffmpeg"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/media"
	"clip-compiler/internal/model"
)

// Processor normalizes one media item per call into an intermediate file at
// the target resolution, with overlays burned in for primary clips.
type Processor struct {
	cfg      internal.Config
	run      *ffmpeg.Runner
	resolver *media.Resolver
	log      *logging.Logger
}

func NewProcessor(cfg internal.Config, run *ffmpeg.Runner, resolver *media.Resolver, log *logging.Logger) *Processor {
	return &Processor{cfg: cfg, run: run, resolver: resolver, log: log}
}

// ProcessClip encodes one primary clip. Output naming is deterministic per
// clip id so a repeated invocation within the same workspace is idempotent.
func (p *Processor) ProcessClip(ctx context.Context, workspace string, clip model.ClipSpec,
	target Resolution, enc ffmpeg.EncoderArgs, overlayEnabled bool) (model.ProcessedSegment, error) {

	input, err := p.resolveInput(ctx, clip.Media)
	if err != nil {
		return model.ProcessedSegment{}, err
	}

	overlay := &ffmpeg.OverlayConfig{
		Enabled:     overlayEnabled,
		CreatorName: clip.CreatorName,
		GameName:    clip.GameName,
		FontPath:    p.cfg.FontPath,
	}
	if overlay.Enabled && clip.AvatarURL != "" {
		if avatarPath, err := p.fetchAvatar(ctx, workspace, clip); err != nil {
			p.log.Warnf("processor: avatar for clip %d unavailable: %v", clip.ID, err)
		} else {
			overlay.AvatarPath = avatarPath
		}
	}

	output := filepath.Join(workspace, fmt.Sprintf("clip-%d.mp4", clip.ID))

	args := p.trimArgs(clip)
	args = append(args, "-i", input)
	if overlay.HasAvatar() {
		args = append(args, "-i", overlay.AvatarPath)
	}
	args = append(args, "-filter_complex", ffmpeg.BuildClipFilter(target.Width, target.Height, overlay))
	args = append(args, "-map", "[vout]")
	// Audio always comes from the primary input; the avatar input is
	// image-only and must never be picked up by stream selection.
	args = append(args, "-map", "0:a?")
	args = append(args, enc.Args()...)
	args = append(args, normalizeArgs()...)
	args = append(args, output)

	if err := p.run.Encode(ctx, args); err != nil {
		return model.ProcessedSegment{}, &EncodingError{Item: fmt.Sprintf("clip %d", clip.ID), Err: err}
	}

	return model.ProcessedSegment{
		SourceClipID: clip.ID,
		Kind:         model.SegmentClip,
		LocalPath:    output,
	}, nil
}

// ProcessStatic encodes intro/outro/transition/bumper segments: same scaling
// pipeline, no overlay, single input.
func (p *Processor) ProcessStatic(ctx context.Context, workspace string, ref model.MediaReference,
	kind model.SegmentKind, target Resolution, enc ffmpeg.EncoderArgs) (model.ProcessedSegment, error) {

	input, err := p.resolveInput(ctx, ref)
	if err != nil {
		return model.ProcessedSegment{}, err
	}

	output := filepath.Join(workspace, fmt.Sprintf("%s-%d.mp4", kind, ref.ID))

	args := []string{"-i", input}
	args = append(args, "-filter_complex", ffmpeg.BuildClipFilter(target.Width, target.Height, nil))
	args = append(args, "-map", "[vout]", "-map", "0:a?")
	args = append(args, enc.Args()...)
	args = append(args, normalizeArgs()...)
	args = append(args, output)

	if err := p.run.Encode(ctx, args); err != nil {
		return model.ProcessedSegment{}, &EncodingError{Item: fmt.Sprintf("%s %d", kind, ref.ID), Err: err}
	}

	return model.ProcessedSegment{Kind: kind, LocalPath: output}, nil
}

func (p *Processor) resolveInput(ctx context.Context, ref model.MediaReference) (string, error) {
	input, err := p.resolver.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			return "", &ConfigError{Err: err}
		}
		return "", &MediaUnresolvableError{MediaID: ref.ID, Err: err}
	}
	return input, nil
}

// trimArgs derives input trim options from explicit start/end times, falling
// back to the project-wide max clip duration.
func (p *Processor) trimArgs(clip model.ClipSpec) []string {
	var args []string
	start := 0.0
	if clip.StartTime != nil {
		start = *clip.StartTime
		args = append(args, "-ss", fmt.Sprintf("%.3f", start))
	}
	if clip.EndTime != nil {
		args = append(args, "-t", fmt.Sprintf("%.3f", *clip.EndTime-start))
	} else if p.cfg.MaxClipDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", p.cfg.MaxClipDuration))
	}
	return args
}

// normalizeArgs keeps every intermediate stream-copy compatible for the
// lossless concat step: constant frame rate and uniform audio encoding.
func normalizeArgs() []string {
	return []string{
		"-r", "30",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "44100",
		"-ac", "2",
	}
}

// fetchAvatar downloads the creator avatar into the workspace. Best-effort;
// the overlay simply omits the avatar when this fails.
func (p *Processor) fetchAvatar(ctx context.Context, workspace string, clip model.ClipSpec) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clip.AvatarURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	path := filepath.Join(workspace, fmt.Sprintf("avatar-%d.png", clip.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
