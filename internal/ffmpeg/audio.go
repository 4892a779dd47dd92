package ffmpeg

import (
	"fmt"
	"math"
	"strings"
)

// musicFadeLen is the fixed fade-out applied to background music, in seconds.
const musicFadeLen = 2.0

// MusicMix is the computed plan for mixing background music under a
// concatenated video. All offsets are seconds from the start of the video.
type MusicMix struct {
	Volume        float64
	StartOffset   float64
	EndOffset     float64
	LoopCount     int // total plays of the music file needed to cover the span
	VideoHasAudio bool
}

// PlanMusicMix computes offsets, volume and looping for a music mix.
// introDur/outroDur of 0 mean unknown; the corresponding mode degrades to the
// plain start/end behavior.
func PlanMusicMix(videoDur, introDur, outroDur, musicDur float64,
	startAfterIntro, endBeforeOutro bool, volume float64) MusicMix {

	m := MusicMix{
		Volume:      ClampVolume(volume),
		StartOffset: 0,
		EndOffset:   videoDur,
		LoopCount:   1,
	}
	if startAfterIntro && introDur > 0 {
		m.StartOffset = introDur
	}
	if endBeforeOutro && outroDur > 0 {
		m.EndOffset = videoDur - outroDur
	}
	if m.EndOffset < m.StartOffset {
		m.EndOffset = m.StartOffset
	}
	if musicDur > 0 {
		m.LoopCount = LoopCount(musicDur, m.EndOffset-m.StartOffset)
	}
	return m
}

// LoopCount returns the number of times the music file must play to cover the
// needed span: loops*musicDur >= needed, minimum one play.
func LoopCount(musicDur, needed float64) int {
	if musicDur <= 0 || needed <= musicDur {
		return 1
	}
	return int(math.Ceil(needed / musicDur))
}

// ClampVolume clamps a music volume to [0.0, 1.0].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MixArgs builds the full ffmpeg invocation mixing music under the
// concatenated video. The video stream is copied unchanged and bounds the
// output duration: the music chain is already trimmed to its span, so a track
// ending before the video (before_outro) leaves the tail silent instead of
// truncating it. Input 0 is the video, input 1 the music (looped via
// -stream_loop).
func MixArgs(videoPath, musicPath string, m MusicMix, outputPath string) []string {
	args := []string{"-i", videoPath}
	if m.LoopCount > 1 {
		args = append(args, "-stream_loop", fmt.Sprintf("%d", m.LoopCount-1))
	}
	args = append(args, "-i", musicPath)
	args = append(args,
		"-filter_complex", m.FilterGraph(),
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		outputPath,
	)
	return args
}

// FilterGraph builds the audio filter graph for the mix. With video audio
// present the music is ducked under it with a sidechain compressor; without
// it the delayed, faded music is the sole track.
func (m MusicMix) FilterGraph() string {
	music := m.musicChain()

	if !m.VideoHasAudio {
		return fmt.Sprintf("[1:a]%s[aout]", music)
	}

	parts := []string{
		"[0:a]asplit=2[va][vs]",
		fmt.Sprintf("[1:a]%s[m]", music),
		"[m][vs]sidechaincompress=threshold=0.03:ratio=8:attack=100:release=400[duck]",
		"[va][duck]amix=inputs=2:duration=first:dropout_transition=2[aout]",
	}
	return strings.Join(parts, ";")
}

func (m MusicMix) musicChain() string {
	span := m.EndOffset - m.StartOffset
	fadeStart := span - musicFadeLen
	if fadeStart < 0 {
		fadeStart = 0
	}

	stages := []string{
		fmt.Sprintf("volume=%.3f", m.Volume),
		fmt.Sprintf("atrim=0:%.3f", span),
		fmt.Sprintf("afade=t=out:st=%.3f:d=%.3f", fadeStart, musicFadeLen),
	}
	if m.StartOffset > 0 {
		delayMs := int(m.StartOffset * 1000)
		stages = append(stages, fmt.Sprintf("adelay=%d|%d", delayMs, delayMs))
	}
	return strings.Join(stages, ",")
}
