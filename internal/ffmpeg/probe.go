package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// MediaInfo is the subset of ffprobe output the pipeline cares about.
type MediaInfo struct {
	Duration  float64
	Width     int
	Height    int
	FrameRate float64
	HasAudio  bool
	SizeBytes int64
}

// Probe inspects a media file with ffprobe.
func (r *Runner) Probe(ctx context.Context, path string) (MediaInfo, error) {
	out, err := r.rawProbe(ctx, []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	})
	if err != nil {
		return MediaInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}
	return ParseProbeOutput(out), nil
}

// ParseProbeOutput extracts MediaInfo from ffprobe's JSON document.
func ParseProbeOutput(raw []byte) MediaInfo {
	doc := gjson.ParseBytes(raw)

	info := MediaInfo{
		Duration:  doc.Get("format.duration").Float(),
		SizeBytes: doc.Get("format.size").Int(),
	}

	doc.Get("streams").ForEach(func(_, stream gjson.Result) bool {
		switch stream.Get("codec_type").String() {
		case "video":
			if info.Width == 0 {
				info.Width = int(stream.Get("width").Int())
				info.Height = int(stream.Get("height").Int())
				info.FrameRate = parseFrameRate(stream.Get("r_frame_rate").String())
				if d := stream.Get("duration").Float(); info.Duration == 0 && d > 0 {
					info.Duration = d
				}
			}
		case "audio":
			info.HasAudio = true
		}
		return true
	})

	return info
}

// parseFrameRate converts ffprobe's rational rate ("30000/1001") to a float.
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
