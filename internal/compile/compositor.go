package compile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"clip-compiler/internal/ffmpeg"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/model"
)

// MediaSource resolves a media reference to a guaranteed-local path.
// *media.Resolver satisfies it.
type MediaSource interface {
	Resolve(ctx context.Context, ref model.MediaReference) (string, error)
}

// Compositor concatenates the ordered timeline losslessly and, when
// background music is supplied, mixes it under the concatenated track.
type Compositor struct {
	run      Engine
	resolver MediaSource
	log      *logging.Logger
}

func NewCompositor(run Engine, resolver MediaSource, log *logging.Logger) *Compositor {
	return &Compositor{run: run, resolver: resolver, log: log}
}

// MusicOptions carries the request's music settings plus the intro/outro
// durations needed for offset computation (zero when unknown or absent).
type MusicOptions struct {
	Ref       *model.MediaReference
	Volume    float64
	StartMode model.MusicStartMode
	EndMode   model.MusicEndMode
	IntroDur  float64
	OutroDur  float64
}

// Compile produces the final artifact in the workspace. Concatenation or mix
// failures are whole-job fatal; an unresolvable music file degrades to the
// concatenation output.
func (c *Compositor) Compile(ctx context.Context, workspace string, tl model.Timeline, music MusicOptions) (string, error) {
	paths := lo.Map(tl.Segments, func(s model.ProcessedSegment, _ int) string { return s.LocalPath })

	listPath, err := ffmpeg.WriteConcatList(workspace, paths)
	if err != nil {
		return "", &EncodingError{Item: "concat list", Err: err}
	}

	concatOut := filepath.Join(workspace, "concat.mp4")
	if err := c.run.Encode(ctx, ffmpeg.ConcatArgs(listPath, concatOut)); err != nil {
		return "", &EncodingError{Item: "concatenation", Err: err}
	}

	if music.Ref == nil {
		return c.finalize(workspace, concatOut)
	}

	musicPath, err := c.resolver.Resolve(ctx, *music.Ref)
	if err != nil {
		c.log.Warnf("compositor: music %d unresolvable, continuing without music: %v", music.Ref.ID, err)
		return c.finalize(workspace, concatOut)
	}

	videoInfo, err := c.run.Probe(ctx, concatOut)
	if err != nil {
		return "", &EncodingError{Item: "concat probe", Err: err}
	}
	musicInfo, err := c.run.Probe(ctx, musicPath)
	if err != nil {
		c.log.Warnf("compositor: music probe failed, continuing without music: %v", err)
		return c.finalize(workspace, concatOut)
	}

	mix := ffmpeg.PlanMusicMix(
		videoInfo.Duration,
		music.IntroDur,
		music.OutroDur,
		musicInfo.Duration,
		music.StartMode == model.MusicStartAfterIntro,
		music.EndMode == model.MusicEndBeforeOutro,
		music.Volume,
	)
	mix.VideoHasAudio = videoInfo.HasAudio

	mixOut := filepath.Join(workspace, "final.mp4")
	if err := c.run.Encode(ctx, ffmpeg.MixArgs(concatOut, musicPath, mix, mixOut)); err != nil {
		return "", &EncodingError{Item: "music mix", Err: err}
	}
	return mixOut, nil
}

// finalize moves the concatenation output into place as the final artifact.
func (c *Compositor) finalize(workspace, concatOut string) (string, error) {
	final := filepath.Join(workspace, "final.mp4")
	if err := os.Rename(concatOut, final); err != nil {
		return "", fmt.Errorf("compositor: move final artifact: %w", err)
	}
	return final, nil
}
