package compile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clip-compiler/internal/ffmpeg"
	"clip-compiler/internal/logging"
	"clip-compiler/internal/model"
)

type compositorEngine struct {
	encodes   [][]string
	failOn    string // substring of the argv that makes Encode fail
	probes    map[string]ffmpeg.MediaInfo
	probeErrs map[string]error
}

func (e *compositorEngine) ResolveEncoder(_ context.Context, _ int) ffmpeg.EncoderArgs {
	return ffmpeg.SoftwareProfile()
}

func (e *compositorEngine) Encode(_ context.Context, args []string) error {
	e.encodes = append(e.encodes, args)
	joined := strings.Join(args, " ")
	if e.failOn != "" && strings.Contains(joined, e.failOn) {
		return errors.New("exit status 1")
	}
	// The output file is the last argument, like a real invocation produces.
	return os.WriteFile(args[len(args)-1], []byte("x"), 0o644)
}

func (e *compositorEngine) Probe(_ context.Context, path string) (ffmpeg.MediaInfo, error) {
	if err := e.probeErrs[path]; err != nil {
		return ffmpeg.MediaInfo{}, err
	}
	return e.probes[path], nil
}

type fakeSource struct {
	path string
	err  error
}

func (s *fakeSource) Resolve(_ context.Context, _ model.MediaReference) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.path, nil
}

func compositorTimeline() model.Timeline {
	return model.Timeline{
		Segments: []model.ProcessedSegment{
			{Kind: model.SegmentClip, SourceClipID: 1, LocalPath: "clip-1.mp4"},
			{Kind: model.SegmentClip, SourceClipID: 2, LocalPath: "clip-2.mp4"},
		},
		Labels: []string{"Clip 1", "Clip 2"},
	}
}

func TestCompileNoMusic(t *testing.T) {
	ws := t.TempDir()
	eng := &compositorEngine{}
	c := NewCompositor(eng, &fakeSource{}, logging.NewDiscard())

	final, err := c.Compile(context.Background(), ws, compositorTimeline(), MusicOptions{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if filepath.Base(final) != "final.mp4" {
		t.Errorf("final = %q, want final.mp4 in the workspace", final)
	}
	if _, err := os.Stat(final); err != nil {
		t.Errorf("final artifact missing: %v", err)
	}
	if len(eng.encodes) != 1 {
		t.Errorf("encodes = %d, want the concat invocation only", len(eng.encodes))
	}
}

func TestCompileMusicUnresolvableDegrades(t *testing.T) {
	ws := t.TempDir()
	eng := &compositorEngine{}
	src := &fakeSource{err: errors.New("gone")}
	c := NewCompositor(eng, src, logging.NewDiscard())
	music := MusicOptions{Ref: &model.MediaReference{ID: 9}, Volume: 0.3}

	final, err := c.Compile(context.Background(), ws, compositorTimeline(), music)
	if err != nil {
		t.Fatalf("unresolvable music must degrade, not fail: %v", err)
	}
	if len(eng.encodes) != 1 {
		t.Errorf("encodes = %d, want no mix invocation", len(eng.encodes))
	}
	if _, err := os.Stat(final); err != nil {
		t.Errorf("degraded artifact missing: %v", err)
	}
}

func TestCompileMusicProbeFailureDegrades(t *testing.T) {
	ws := t.TempDir()
	concatOut := filepath.Join(ws, "concat.mp4")
	eng := &compositorEngine{
		probes:    map[string]ffmpeg.MediaInfo{concatOut: {Duration: 100, HasAudio: true}},
		probeErrs: map[string]error{"/media/track.mp3": errors.New("invalid data")},
	}
	c := NewCompositor(eng, &fakeSource{path: "/media/track.mp3"}, logging.NewDiscard())
	music := MusicOptions{Ref: &model.MediaReference{ID: 9}, Volume: 0.3}

	final, err := c.Compile(context.Background(), ws, compositorTimeline(), music)
	if err != nil {
		t.Fatalf("unprobeable music must degrade, not fail: %v", err)
	}
	if len(eng.encodes) != 1 {
		t.Errorf("encodes = %d, want no mix invocation", len(eng.encodes))
	}
	if filepath.Base(final) != "final.mp4" {
		t.Errorf("final = %q, want final.mp4", final)
	}
}

func TestCompileWithMusic(t *testing.T) {
	ws := t.TempDir()
	concatOut := filepath.Join(ws, "concat.mp4")
	eng := &compositorEngine{
		probes: map[string]ffmpeg.MediaInfo{
			concatOut:          {Duration: 100, HasAudio: true},
			"/media/track.mp3": {Duration: 60},
		},
	}
	c := NewCompositor(eng, &fakeSource{path: "/media/track.mp3"}, logging.NewDiscard())
	music := MusicOptions{Ref: &model.MediaReference{ID: 9}, Volume: 0.3}

	final, err := c.Compile(context.Background(), ws, compositorTimeline(), music)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(eng.encodes) != 2 {
		t.Fatalf("encodes = %d, want concat then mix", len(eng.encodes))
	}
	mixArgs := strings.Join(eng.encodes[1], " ")
	if !strings.Contains(mixArgs, "/media/track.mp3") {
		t.Errorf("mix invocation missing the music input: %s", mixArgs)
	}
	if !strings.Contains(mixArgs, "sidechaincompress") {
		t.Errorf("video with audio must be ducked: %s", mixArgs)
	}
	if _, err := os.Stat(final); err != nil {
		t.Errorf("mixed artifact missing: %v", err)
	}
}

func TestCompileMixFailureIsFatal(t *testing.T) {
	ws := t.TempDir()
	concatOut := filepath.Join(ws, "concat.mp4")
	eng := &compositorEngine{
		failOn: "-filter_complex",
		probes: map[string]ffmpeg.MediaInfo{
			concatOut:          {Duration: 100, HasAudio: true},
			"/media/track.mp3": {Duration: 60},
		},
	}
	c := NewCompositor(eng, &fakeSource{path: "/media/track.mp3"}, logging.NewDiscard())
	music := MusicOptions{Ref: &model.MediaReference{ID: 9}, Volume: 0.3}

	_, err := c.Compile(context.Background(), ws, compositorTimeline(), music)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("err = %v, want EncodingError", err)
	}
	if encErr.Item != "music mix" {
		t.Errorf("failing item = %q, want music mix", encErr.Item)
	}
}
