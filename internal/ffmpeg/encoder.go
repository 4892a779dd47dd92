package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EncoderArgs is the resolved encoder profile for one run. Fields are typed so
// the argument vector is assembled in exactly one place.
type EncoderArgs struct {
	Hardware bool

	Codec       string
	Preset      string
	RateControl string // NVENC rate-control mode, e.g. "vbr"
	CQ          int    // NVENC constant-quality target
	CRF         int    // software constant rate factor
	Bitrate     string
	MaxRate     string
	BufSize     string
	GOPSize     int
	BFrames     int
	RCLookahead int
	SpatialAQ   bool
	TemporalAQ  bool
	PixelFormat string
}

// Args emits the encoder portion of an ffmpeg argument vector.
func (e EncoderArgs) Args() []string {
	args := []string{"-c:v", e.Codec}
	if e.Preset != "" {
		args = append(args, "-preset", e.Preset)
	}
	if e.Hardware {
		if e.RateControl != "" {
			args = append(args, "-rc", e.RateControl)
		}
		if e.CQ > 0 {
			args = append(args, "-cq", fmt.Sprintf("%d", e.CQ))
		}
		if e.Bitrate != "" {
			args = append(args, "-b:v", e.Bitrate)
		}
		if e.MaxRate != "" {
			args = append(args, "-maxrate", e.MaxRate)
		}
		if e.BufSize != "" {
			args = append(args, "-bufsize", e.BufSize)
		}
		if e.GOPSize > 0 {
			args = append(args, "-g", fmt.Sprintf("%d", e.GOPSize))
		}
		if e.BFrames > 0 {
			args = append(args, "-bf", fmt.Sprintf("%d", e.BFrames))
		}
		if e.RCLookahead > 0 {
			args = append(args, "-rc-lookahead", fmt.Sprintf("%d", e.RCLookahead))
		}
		if e.SpatialAQ {
			args = append(args, "-spatial-aq", "1")
		}
		if e.TemporalAQ {
			args = append(args, "-temporal-aq", "1")
		}
	} else if e.CRF > 0 {
		args = append(args, "-crf", fmt.Sprintf("%d", e.CRF))
	}
	if e.PixelFormat != "" {
		args = append(args, "-pix_fmt", e.PixelFormat)
	}
	return args
}

// HardwareProfile returns the NVENC argument set tuned for the target height.
func HardwareProfile(targetHeight int) EncoderArgs {
	bitrate, maxrate, bufsize := bitrateFor(targetHeight)
	return EncoderArgs{
		Hardware:    true,
		Codec:       "h264_nvenc",
		Preset:      "p5",
		RateControl: "vbr",
		CQ:          23,
		Bitrate:     bitrate,
		MaxRate:     maxrate,
		BufSize:     bufsize,
		GOPSize:     60,
		BFrames:     3,
		RCLookahead: 20,
		SpatialAQ:   true,
		TemporalAQ:  true,
		PixelFormat: "yuv420p",
	}
}

// SoftwareProfile returns the libx264 fallback.
func SoftwareProfile() EncoderArgs {
	return EncoderArgs{
		Codec:       "libx264",
		Preset:      "medium",
		CRF:         23,
		PixelFormat: "yuv420p",
	}
}

func bitrateFor(height int) (bitrate, maxrate, bufsize string) {
	switch {
	case height >= 2160:
		return "24M", "32M", "48M"
	case height >= 1440:
		return "14M", "20M", "28M"
	case height >= 1080:
		return "8M", "12M", "16M"
	default:
		return "5M", "8M", "10M"
	}
}

// hwProbe caches the hardware-capability result for the process lifetime.
var hwProbe struct {
	once   sync.Once
	usable bool
}

// ResetHardwareProbe clears the cached probe result. Tests only.
func ResetHardwareProbe() {
	hwProbe.once = sync.Once{}
	hwProbe.usable = false
}

// ResolveEncoder picks the encoder profile for a run. Any probe failure means
// hardware is unusable; that is never surfaced as an error.
func (r *Runner) ResolveEncoder(ctx context.Context, targetHeight int) EncoderArgs {
	if r.HardwareUsable(ctx) {
		return HardwareProfile(targetHeight)
	}
	return SoftwareProfile()
}

// HardwareUsable probes once per process whether NVENC encoding works: the
// encoder must be listed by ffmpeg and a short trial encode of a synthetic
// test pattern must succeed.
func (r *Runner) HardwareUsable(ctx context.Context) bool {
	hwProbe.once.Do(func() {
		if r.disableHW || envBool("DISABLE_HW_ENCODING") {
			r.log.Infof("encoder: hardware encoding disabled by configuration")
			return
		}
		if !r.encoderListed(ctx, "h264_nvenc") {
			r.log.Infof("encoder: h264_nvenc not listed, using software encoding")
			return
		}
		if err := r.trialEncode(ctx); err != nil {
			r.log.Warnf("encoder: nvenc trial encode failed, using software encoding: %v", err)
			return
		}
		r.log.Infof("encoder: nvenc usable, hardware encoding enabled")
		hwProbe.usable = true
	})
	return hwProbe.usable
}

func (r *Runner) encoderListed(ctx context.Context, name string) bool {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, r.ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), name)
}

func (r *Runner) trialEncode(ctx context.Context) error {
	return r.withEncodeSlot(func() error {
		ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		out := filepath.Join(os.TempDir(), fmt.Sprintf("nvenc-trial-%d.mp4", time.Now().UnixNano()))
		defer os.Remove(out)

		cmd := exec.CommandContext(ctx, r.ffmpegPath,
			"-y", "-hide_banner", "-loglevel", "error",
			"-f", "lavfi",
			"-i", "testsrc=duration=1:size=320x240:rate=30",
			"-c:v", "h264_nvenc",
			"-frames:v", "30",
			out,
		)
		if err := cmd.Run(); err != nil {
			return err
		}
		info, err := os.Stat(out)
		if err != nil || info.Size() == 0 {
			return fmt.Errorf("trial encode produced no output")
		}
		return nil
	})
}

func envBool(name string) bool {
	v := strings.ToLower(os.Getenv(name))
	return v == "1" || v == "true" || v == "yes"
}
