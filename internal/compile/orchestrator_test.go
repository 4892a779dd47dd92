package compile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"clip-compiler/internal"
	"clip-compiler/internal/ffmpeg"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/model"
)

type fakeEngine struct {
	probeInfo ffmpeg.MediaInfo
	probeErr  error
	encodeErr error
}

func (f *fakeEngine) ResolveEncoder(_ context.Context, _ int) ffmpeg.EncoderArgs {
	return ffmpeg.SoftwareProfile()
}

func (f *fakeEngine) Encode(_ context.Context, _ []string) error { return f.encodeErr }

func (f *fakeEngine) Probe(_ context.Context, _ string) (ffmpeg.MediaInfo, error) {
	return f.probeInfo, f.probeErr
}

type fakeProcessor struct {
	failClips map[int64]error
	staticErr error
	seenClips []int64
}

func (f *fakeProcessor) ProcessClip(_ context.Context, _ string, clip model.ClipSpec,
	_ Resolution, _ ffmpeg.EncoderArgs, _ bool) (model.ProcessedSegment, error) {
	f.seenClips = append(f.seenClips, clip.ID)
	if err, ok := f.failClips[clip.ID]; ok {
		return model.ProcessedSegment{}, err
	}
	return model.ProcessedSegment{
		SourceClipID: clip.ID,
		Kind:         model.SegmentClip,
		LocalPath:    fmt.Sprintf("clip-%d.mp4", clip.ID),
	}, nil
}

func (f *fakeProcessor) ProcessStatic(_ context.Context, _ string, ref model.MediaReference,
	kind model.SegmentKind, _ Resolution, _ ffmpeg.EncoderArgs) (model.ProcessedSegment, error) {
	if f.staticErr != nil {
		return model.ProcessedSegment{}, f.staticErr
	}
	return model.ProcessedSegment{SourceClipID: ref.ID, Kind: kind, LocalPath: string(kind) + ".mp4"}, nil
}

type fakeCompositor struct {
	err error
}

func (f *fakeCompositor) Compile(_ context.Context, workspace string, _ model.Timeline, _ MusicOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(workspace, "final.mp4")
	if err := os.WriteFile(path, []byte("artifact"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type fakeTracker struct {
	percents  []int
	lines     []string
	completed *model.CompilationResult
	failMsg   string
}

func (f *fakeTracker) Progress(_ context.Context, _ string, percent int, _ string) error {
	f.percents = append(f.percents, percent)
	return nil
}

func (f *fakeTracker) Log(_ context.Context, _ string, line string) error {
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeTracker) Complete(_ context.Context, _ string, result *model.CompilationResult) error {
	f.completed = result
	return nil
}

func (f *fakeTracker) Fail(_ context.Context, _ string, message string) error {
	f.failMsg = message
	return nil
}

type fakeProjects struct {
	completed bool
	failMsg   string
}

func (f *fakeProjects) Completed(_ context.Context, _ int64, _ string, _ int64) error {
	f.completed = true
	return nil
}

func (f *fakeProjects) Failed(_ context.Context, _ int64, message string) error {
	f.failMsg = message
	return nil
}

type fakeUploader struct {
	dest    string
	err     error
	calls   int
	lastRes *model.CompilationResult
}

func (f *fakeUploader) Upload(_ context.Context, res *model.CompilationResult) (string, error) {
	f.calls++
	f.lastRes = res
	if f.err != nil {
		return "", f.err
	}
	return f.dest, nil
}

type fakeUsage struct {
	seconds float64
}

func (f *fakeUsage) Record(_ context.Context, _ int64, _ int64, seconds float64) error {
	f.seconds = seconds
	return nil
}

type harness struct {
	orch     *Orchestrator
	engine   *fakeEngine
	proc     *fakeProcessor
	comp     *fakeCompositor
	tracker  *fakeTracker
	projects *fakeProjects
	uploader *fakeUploader
	fallback *fakeUploader
	usage    *fakeUsage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine:   &fakeEngine{probeInfo: ffmpeg.MediaInfo{Duration: 42, Width: 1920, Height: 1080, FrameRate: 30}},
		proc:     &fakeProcessor{failClips: map[int64]error{}},
		comp:     &fakeCompositor{},
		tracker:  &fakeTracker{},
		projects: &fakeProjects{},
		uploader: &fakeUploader{dest: "renders/final.mp4"},
		fallback: &fakeUploader{dest: "/var/artifacts/final.mp4"},
		usage:    &fakeUsage{},
	}
	cfg := internal.Config{WorkspaceRoot: t.TempDir()}
	h.orch = NewOrchestrator(cfg, h.engine, h.proc, h.comp,
		h.tracker, h.projects, h.uploader, h.fallback, h.usage, logging.NewDiscard())
	return h
}

func request(clipIDs ...int64) model.CompilationRequest {
	req := model.CompilationRequest{
		JobID:            "job-1",
		ProjectID:        77,
		UserID:           5,
		OutputResolution: "1080p",
	}
	for _, id := range clipIDs {
		req.Clips = append(req.Clips, model.ClipSpec{ID: id, Media: model.MediaReference{ID: id}})
	}
	return req
}

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t)

	result, err := h.orch.Run(context.Background(), request(1, 2, 3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ClipsProcessed != 3 {
		t.Errorf("ClipsProcessed = %d, want 3", result.ClipsProcessed)
	}
	if result.StoredAt != "renders/final.mp4" {
		t.Errorf("StoredAt = %q, want the primary upload destination", result.StoredAt)
	}
	if result.Duration != 42 {
		t.Errorf("Duration = %g, want probed 42", result.Duration)
	}
	if h.tracker.completed == nil {
		t.Errorf("job tracker never marked complete")
	}
	if !h.projects.completed {
		t.Errorf("project status never marked completed")
	}
	if base := filepath.Base(h.uploader.lastRes.OutputPath); base != "job-1.mp4" {
		t.Errorf("artifact name = %q, want the job id", base)
	}
	if h.usage.seconds != 42 {
		t.Errorf("usage seconds = %g, want 42", h.usage.seconds)
	}
	if last := h.tracker.percents[len(h.tracker.percents)-1]; last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestRunProgressCheckpoints(t *testing.T) {
	h := newHarness(t)

	if _, err := h.orch.Run(context.Background(), request(1, 2)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[int]bool{0: false, 10: false, 70: false, 80: false, 90: false, 100: false}
	prev := -1
	for _, p := range h.tracker.percents {
		if p < prev {
			t.Errorf("progress went backwards: %v", h.tracker.percents)
			break
		}
		prev = p
		if _, ok := want[p]; ok {
			want[p] = true
		}
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("checkpoint %d never reported: %v", p, h.tracker.percents)
		}
	}
}

func TestRunSkipsFailedClips(t *testing.T) {
	h := newHarness(t)
	h.proc.failClips[2] = &EncodingError{Item: "clip 2", Err: errors.New("exit status 1")}

	result, err := h.orch.Run(context.Background(), request(1, 2, 3))
	if err != nil {
		t.Fatalf("one bad clip must not fail the job: %v", err)
	}
	if result.ClipsProcessed != 2 {
		t.Errorf("ClipsProcessed = %d, want 2", result.ClipsProcessed)
	}
	if !reflect.DeepEqual(result.UsedClipIDs, []int64{1, 3}) {
		t.Errorf("UsedClipIDs = %v, want [1 3]", result.UsedClipIDs)
	}
	if h.tracker.failMsg != "" {
		t.Errorf("job must not be marked failed: %q", h.tracker.failMsg)
	}
}

func TestRunAllClipsFailed(t *testing.T) {
	h := newHarness(t)
	h.proc.failClips[1] = &MediaUnresolvableError{MediaID: 1, Err: errors.New("gone")}
	h.proc.failClips[2] = &EncodingError{Item: "clip 2", Err: errors.New("exit status 1")}

	_, err := h.orch.Run(context.Background(), request(1, 2))
	if !errors.Is(err, ErrNoProcessableContent) {
		t.Fatalf("err = %v, want ErrNoProcessableContent", err)
	}
	if h.tracker.failMsg == "" {
		t.Errorf("job tracker must record the failure")
	}
	if h.projects.failMsg == "" {
		t.Errorf("project status must record the failure")
	}
}

func TestRunNoClips(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Run(context.Background(), request())
	if !errors.Is(err, ErrNoProcessableContent) {
		t.Fatalf("err = %v, want ErrNoProcessableContent", err)
	}
}

func TestRunConfigErrorIsFatal(t *testing.T) {
	h := newHarness(t)
	h.proc.failClips[1] = &ConfigError{Err: errors.New("media origin not configured")}

	_, err := h.orch.Run(context.Background(), request(1, 2, 3))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
	if len(h.proc.seenClips) != 1 {
		t.Errorf("processing must stop at the configuration error, saw %v", h.proc.seenClips)
	}
}

func TestRunTierClipCap(t *testing.T) {
	h := newHarness(t)
	two := 2
	req := request(1, 2, 3, 4)
	req.Tier.MaxClips = &two

	result, err := h.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(h.proc.seenClips, []int64{1, 2}) {
		t.Errorf("processor saw %v, want first two clips only", h.proc.seenClips)
	}
	if result.ClipsProcessed != 2 {
		t.Errorf("ClipsProcessed = %d, want 2", result.ClipsProcessed)
	}
	found := false
	for _, line := range h.tracker.lines {
		if line == "tier cap: using first 2 of 4 clips" {
			found = true
		}
	}
	if !found {
		t.Errorf("truncation must be logged to the job, got %v", h.tracker.lines)
	}
}

func TestRunClipIDSelection(t *testing.T) {
	h := newHarness(t)
	req := request(1, 2, 3, 4)
	req.ClipIDs = []int64{4, 2}

	result, err := h.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(h.proc.seenClips, []int64{4, 2}) {
		t.Errorf("processor saw %v, want the selection in its order", h.proc.seenClips)
	}
	if !reflect.DeepEqual(result.UsedClipIDs, []int64{4, 2}) {
		t.Errorf("UsedClipIDs = %v, want [4 2]", result.UsedClipIDs)
	}
}

func TestRunClipIDSelectionBeforeTierCap(t *testing.T) {
	h := newHarness(t)
	one := 1
	req := request(1, 2, 3)
	req.ClipIDs = []int64{3, 1}
	req.Tier.MaxClips = &one

	if _, err := h.orch.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(h.proc.seenClips, []int64{3}) {
		t.Errorf("processor saw %v, want the cap applied to the selection", h.proc.seenClips)
	}
}

func TestRunUploadFallback(t *testing.T) {
	h := newHarness(t)
	h.uploader.err = errors.New("connection refused")

	result, err := h.orch.Run(context.Background(), request(1))
	if err != nil {
		t.Fatalf("failed upload with working fallback must succeed: %v", err)
	}
	if result.StoredAt != "/var/artifacts/final.mp4" {
		t.Errorf("StoredAt = %q, want the fallback destination", result.StoredAt)
	}
	if h.fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", h.fallback.calls)
	}
	if h.tracker.completed == nil {
		t.Errorf("degraded success must still mark the job complete")
	}
}

func TestRunBothUploadsFail(t *testing.T) {
	h := newHarness(t)
	h.uploader.err = errors.New("connection refused")
	h.fallback.err = errors.New("disk full")

	_, err := h.orch.Run(context.Background(), request(1))
	if err == nil {
		t.Fatalf("expected failure when both upload paths fail")
	}
	if h.tracker.failMsg == "" {
		t.Errorf("job tracker must record the failure")
	}
}

func TestRunStaticsDegradeByOmission(t *testing.T) {
	h := newHarness(t)
	h.proc.staticErr = &MediaUnresolvableError{MediaID: 9, Err: errors.New("gone")}
	req := request(1)
	req.Intro = &model.MediaReference{ID: 9}
	req.Outro = &model.MediaReference{ID: 10}

	result, err := h.orch.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("missing statics must not fail the job: %v", err)
	}
	if result.ClipsProcessed != 1 {
		t.Errorf("ClipsProcessed = %d, want 1", result.ClipsProcessed)
	}
}

func TestRunCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.Run(ctx, request(1, 2))
	if err == nil {
		t.Fatalf("cancelled context must fail the run")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in the chain", err)
	}
}
