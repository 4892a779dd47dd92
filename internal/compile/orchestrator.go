package compile

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"clip-compiler/internal"
	"clip-compiler/internal/ffmpeg"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/model"
)

// State is the orchestrator's current phase. Failed is reachable from any
// non-terminal state.
type State string

const (
	StateStarting           State = "starting"
	StatePreparingClips     State = "preparing_clips"
	StateProcessingClips    State = "processing_clips"
	StateAssemblingTimeline State = "assembling_timeline"
	StateCompiling          State = "compiling"
	StateUploading          State = "uploading"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Engine is the slice of the ffmpeg runner the orchestrator needs directly.
// *ffmpeg.Runner satisfies it.
type Engine interface {
	ResolveEncoder(ctx context.Context, targetHeight int) ffmpeg.EncoderArgs
	Encode(ctx context.Context, args []string) error
	Probe(ctx context.Context, path string) (ffmpeg.MediaInfo, error)
}

// SegmentProcessor produces normalized intermediate segments.
type SegmentProcessor interface {
	ProcessClip(ctx context.Context, workspace string, clip model.ClipSpec,
		target Resolution, enc ffmpeg.EncoderArgs, overlayEnabled bool) (model.ProcessedSegment, error)
	ProcessStatic(ctx context.Context, workspace string, ref model.MediaReference,
		kind model.SegmentKind, target Resolution, enc ffmpeg.EncoderArgs) (model.ProcessedSegment, error)
}

// ArtifactCompositor produces the final artifact from an assembled timeline.
type ArtifactCompositor interface {
	Compile(ctx context.Context, workspace string, tl model.Timeline, music MusicOptions) (string, error)
}

// JobTracker receives progress and the terminal job status. Implementations
// are best-effort; the orchestrator logs and continues on error.
type JobTracker interface {
	Progress(ctx context.Context, jobID string, percent int, status string) error
	Log(ctx context.Context, jobID, line string) error
	Complete(ctx context.Context, jobID string, result *model.CompilationResult) error
	Fail(ctx context.Context, jobID, message string) error
}

// ProjectStatus receives the project's terminal status.
type ProjectStatus interface {
	Completed(ctx context.Context, projectID int64, filename string, sizeBytes int64) error
	Failed(ctx context.Context, projectID int64, message string) error
}

// Uploader persists the final artifact and returns its stored identifier.
type Uploader interface {
	Upload(ctx context.Context, res *model.CompilationResult) (string, error)
}

// UsageRecorder records rendered seconds. Best-effort, failures swallowed.
type UsageRecorder interface {
	Record(ctx context.Context, userID, projectID int64, seconds float64) error
}

// Orchestrator drives one compilation run end to end.
type Orchestrator struct {
	cfg        internal.Config
	engine     Engine
	processor  SegmentProcessor
	compositor ArtifactCompositor
	tracker    JobTracker
	projects   ProjectStatus
	uploader   Uploader
	fallback   Uploader // degraded-success path when the primary upload fails
	usage      UsageRecorder
	log        *logging.Logger
	rand       *rand.Rand
}

func NewOrchestrator(cfg internal.Config, engine Engine, processor SegmentProcessor,
	compositor ArtifactCompositor, tracker JobTracker, projects ProjectStatus,
	uploader, fallback Uploader, usage UsageRecorder, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		engine:     engine,
		processor:  processor,
		compositor: compositor,
		tracker:    tracker,
		projects:   projects,
		uploader:   uploader,
		fallback:   fallback,
		usage:      usage,
		log:        log,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes one compilation. On unrecoverable failure both collaborators
// are updated and the error is returned so the queue layer records it too.
func (o *Orchestrator) Run(ctx context.Context, req model.CompilationRequest) (*model.CompilationResult, error) {
	o.progress(ctx, req.JobID, 0, StateStarting)

	workspace, err := os.MkdirTemp(o.cfg.WorkspaceRoot, "compile-"+uuid.NewString()+"-")
	if err != nil {
		return nil, o.fail(ctx, req, fmt.Errorf("create workspace: %w", err))
	}
	defer os.RemoveAll(workspace)

	selected := SelectClips(req.Clips, req.ClipIDs)
	clips := TruncateClips(selected, req.Tier.MaxClips)
	if len(clips) < len(selected) {
		o.trackLog(ctx, req.JobID, fmt.Sprintf("tier cap: using first %d of %d clips", len(clips), len(selected)))
	}
	if len(clips) == 0 {
		return nil, o.fail(ctx, req, ErrNoProcessableContent)
	}

	target := EffectiveResolution(req.OutputResolution, req.Tier.MaxResolution)
	enc := o.engine.ResolveEncoder(ctx, target.Height)
	o.log.Infof("compile: job %s target=%s encoder=%s clips=%d", req.JobID, target, enc.Codec, len(clips))

	// Statics degrade by omission: a missing intro/outro/transition is
	// logged and left out, never fatal.
	opts := o.prepareStatics(ctx, workspace, req, target, enc)
	o.progress(ctx, req.JobID, 10, StatePreparingClips)

	processed, usedIDs, err := o.processClips(ctx, workspace, req, clips, target, enc)
	if err != nil {
		return nil, o.fail(ctx, req, err)
	}
	if len(processed) == 0 {
		return nil, o.fail(ctx, req, ErrNoProcessableContent)
	}

	o.progress(ctx, req.JobID, 70, StateAssemblingTimeline)
	tl := AssembleTimeline(processed, opts)
	for i, label := range tl.Labels {
		o.log.Infof("compile: timeline[%d] %s", i, label)
	}

	o.progress(ctx, req.JobID, 80, StateCompiling)
	finalPath, err := o.compositor.Compile(ctx, workspace, tl, o.musicOptions(ctx, req, opts))
	if err != nil {
		return nil, o.fail(ctx, req, err)
	}

	// The artifact carries the job id so stored keys never collide.
	finalPath, err = o.nameArtifact(ctx, workspace, req, finalPath)
	if err != nil {
		return nil, o.fail(ctx, req, err)
	}

	result, err := o.describeResult(ctx, finalPath, processed, usedIDs)
	if err != nil {
		return nil, o.fail(ctx, req, err)
	}
	o.makeThumbnail(ctx, workspace, result)

	o.progress(ctx, req.JobID, 90, StateUploading)
	storedAt, err := o.uploader.Upload(ctx, result)
	if err != nil {
		o.log.Warnf("compile: upload failed, persisting locally: %v", err)
		o.trackLog(ctx, req.JobID, "upload failed, artifact persisted locally")
		storedAt, err = o.fallback.Upload(ctx, result)
		if err != nil {
			return nil, o.fail(ctx, req, fmt.Errorf("persist artifact: %w", err))
		}
	}
	result.StoredAt = storedAt

	if err := o.usage.Record(ctx, req.UserID, req.ProjectID, result.Duration); err != nil {
		o.log.Warnf("compile: usage recording failed: %v", err)
	}
	if err := o.tracker.Complete(ctx, req.JobID, result); err != nil {
		o.log.Warnf("compile: job tracker completion failed: %v", err)
	}
	if err := o.projects.Completed(ctx, req.ProjectID, filepath.Base(storedAt), result.FileSizeBytes); err != nil {
		o.log.Warnf("compile: project status update failed: %v", err)
	}
	o.progress(ctx, req.JobID, 100, StateCompleted)

	o.log.Infof("compile: job %s completed, %d/%d clips, %.1fs output",
		req.JobID, result.ClipsProcessed, len(clips), result.Duration)
	return result, nil
}

// processClips runs every clip sequentially, skipping per-clip failures.
// Cancellation is checked between iterations; a mid-encode cancel is handled
// by the runner killing the subprocess.
func (o *Orchestrator) processClips(ctx context.Context, workspace string, req model.CompilationRequest,
	clips []model.ClipSpec, target Resolution, enc ffmpeg.EncoderArgs) ([]model.ProcessedSegment, []int64, error) {

	o.progress(ctx, req.JobID, 10, StateProcessingClips)

	var processed []model.ProcessedSegment
	var usedIDs []int64
	for i, clip := range clips {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("compile: cancelled before clip %d: %w", clip.ID, err)
		}

		seg, err := o.processor.ProcessClip(ctx, workspace, clip, target, enc, req.OverlayEnabled)
		if err != nil {
			var cfgErr *ConfigError
			if errors.As(err, &cfgErr) {
				return nil, nil, err
			}
			o.log.Errorf("compile: clip %d failed, skipping: %v", clip.ID, err)
			o.trackLog(ctx, req.JobID, fmt.Sprintf("clip %d skipped: %v", clip.ID, err))
		} else {
			processed = append(processed, seg)
			usedIDs = append(usedIDs, clip.ID)
		}

		percent := 10 + (60*(i+1))/len(clips)
		o.progress(ctx, req.JobID, percent, StateProcessingClips)
	}
	return processed, usedIDs, nil
}

// prepareStatics processes intro/outro/bumper/transitions. Each is optional;
// failures degrade by omission.
func (o *Orchestrator) prepareStatics(ctx context.Context, workspace string, req model.CompilationRequest,
	target Resolution, enc ffmpeg.EncoderArgs) TimelineOptions {

	opts := TimelineOptions{
		BumperMode: req.BumperMode,
		Randomize:  req.RandomizeTransitions,
		Rand:       o.rand,
	}

	static := func(ref *model.MediaReference, kind model.SegmentKind) *model.ProcessedSegment {
		if ref == nil {
			return nil
		}
		seg, err := o.processor.ProcessStatic(ctx, workspace, *ref, kind, target, enc)
		if err != nil {
			o.log.Warnf("compile: %s %d unavailable, omitting: %v", kind, ref.ID, err)
			o.trackLog(ctx, req.JobID, fmt.Sprintf("%s omitted: %v", kind, err))
			return nil
		}
		return &seg
	}

	opts.Intro = static(req.Intro, model.SegmentIntro)
	opts.Outro = static(req.Outro, model.SegmentOutro)
	opts.Bumper = static(req.Bumper, model.SegmentBumper)
	for _, t := range req.Transitions {
		if seg := static(&t, model.SegmentTransition); seg != nil {
			opts.Transitions = append(opts.Transitions, *seg)
		}
	}
	return opts
}

// musicOptions carries intro/outro durations into offset computation, probing
// the processed segments when the references carry no recorded duration.
func (o *Orchestrator) musicOptions(ctx context.Context, req model.CompilationRequest, opts TimelineOptions) MusicOptions {
	m := MusicOptions{
		Ref:       req.Music,
		Volume:    req.MusicVolume,
		StartMode: req.MusicStartMode,
		EndMode:   req.MusicEndMode,
	}
	if req.Music == nil {
		return m
	}
	m.IntroDur = o.segmentDuration(ctx, req.Intro, opts.Intro)
	m.OutroDur = o.segmentDuration(ctx, req.Outro, opts.Outro)
	return m
}

func (o *Orchestrator) segmentDuration(ctx context.Context, ref *model.MediaReference, seg *model.ProcessedSegment) float64 {
	if seg == nil {
		return 0
	}
	if ref != nil && ref.Duration > 0 {
		return ref.Duration
	}
	info, err := o.engine.Probe(ctx, seg.LocalPath)
	if err != nil {
		o.log.Warnf("compile: probe %s failed: %v", seg.LocalPath, err)
		return 0
	}
	return info.Duration
}

// nameArtifact renames the compiled file after the job id. A non-mp4 output
// format is honored with a lossless remux; the codecs stay h264/aac either way.
func (o *Orchestrator) nameArtifact(ctx context.Context, workspace string,
	req model.CompilationRequest, finalPath string) (string, error) {

	named := filepath.Join(workspace, req.JobID+outputExt(req.OutputFormat))
	if filepath.Ext(named) == filepath.Ext(finalPath) {
		if err := os.Rename(finalPath, named); err != nil {
			return "", fmt.Errorf("name final artifact: %w", err)
		}
		return named, nil
	}
	if err := o.engine.Encode(ctx, []string{"-i", finalPath, "-c", "copy", named}); err != nil {
		return "", &EncodingError{Item: "container remux", Err: err}
	}
	return named, nil
}

func outputExt(format string) string {
	switch strings.ToLower(format) {
	case "mkv":
		return ".mkv"
	case "mov":
		return ".mov"
	default:
		return ".mp4"
	}
}

func (o *Orchestrator) describeResult(ctx context.Context, finalPath string,
	processed []model.ProcessedSegment, usedIDs []int64) (*model.CompilationResult, error) {

	info, err := o.engine.Probe(ctx, finalPath)
	if err != nil {
		return nil, fmt.Errorf("probe final artifact: %w", err)
	}
	stat, err := os.Stat(finalPath)
	if err != nil {
		return nil, fmt.Errorf("stat final artifact: %w", err)
	}

	clipCount := lo.CountBy(processed, func(s model.ProcessedSegment) bool { return s.Kind == model.SegmentClip })
	return &model.CompilationResult{
		OutputPath:     finalPath,
		Duration:       info.Duration,
		Width:          info.Width,
		Height:         info.Height,
		FrameRate:      info.FrameRate,
		FileSizeBytes:  stat.Size(),
		ClipsProcessed: clipCount,
		UsedClipIDs:    usedIDs,
	}, nil
}

// makeThumbnail extracts a frame at a quarter of the output's duration.
// Best-effort: a failure never fails the job.
func (o *Orchestrator) makeThumbnail(ctx context.Context, workspace string, res *model.CompilationResult) {
	thumb := filepath.Join(workspace, "thumbnail.jpg")
	at := res.Duration * 0.25
	if err := o.engine.Encode(ctx, ffmpeg.ThumbnailArgs(res.OutputPath, at, thumb)); err != nil {
		o.log.Warnf("compile: thumbnail generation failed: %v", err)
		return
	}
	res.ThumbnailPath = thumb
}

// fail updates both collaborators and returns the error for the queue layer.
func (o *Orchestrator) fail(ctx context.Context, req model.CompilationRequest, cause error) error {
	o.log.Errorf("compile: job %s failed: %v", req.JobID, cause)
	if err := o.tracker.Fail(ctx, req.JobID, cause.Error()); err != nil {
		o.log.Warnf("compile: job tracker failure update failed: %v", err)
	}
	if err := o.projects.Failed(ctx, req.ProjectID, cause.Error()); err != nil {
		o.log.Warnf("compile: project status failure update failed: %v", err)
	}
	return cause
}

func (o *Orchestrator) progress(ctx context.Context, jobID string, percent int, state State) {
	if err := o.tracker.Progress(ctx, jobID, percent, string(state)); err != nil {
		o.log.Warnf("compile: progress update failed: %v", err)
	}
}

func (o *Orchestrator) trackLog(ctx context.Context, jobID, line string) {
	if err := o.tracker.Log(ctx, jobID, line); err != nil {
		o.log.Warnf("compile: job log update failed: %v", err)
	}
}
