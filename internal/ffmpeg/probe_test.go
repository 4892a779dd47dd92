package ffmpeg

import (
	"math"
	"testing"
)

const sampleProbeJSON = `{
	"streams": [
		{
			"codec_type": "video",
			"width": 1920,
			"height": 1080,
			"r_frame_rate": "30000/1001",
			"duration": "42.500000"
		},
		{
			"codec_type": "audio",
			"sample_rate": "44100"
		}
	],
	"format": {
		"duration": "42.567000",
		"size": "10485760"
	}
}`

func TestParseProbeOutput(t *testing.T) {
	info := ParseProbeOutput([]byte(sampleProbeJSON))

	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", info.Width, info.Height)
	}
	if info.Duration != 42.567 {
		t.Errorf("Duration = %g, want 42.567 (format duration wins)", info.Duration)
	}
	if !info.HasAudio {
		t.Errorf("audio stream present but HasAudio is false")
	}
	if info.SizeBytes != 10485760 {
		t.Errorf("SizeBytes = %d, want 10485760", info.SizeBytes)
	}
	if math.Abs(info.FrameRate-29.97) > 0.01 {
		t.Errorf("FrameRate = %g, want ~29.97", info.FrameRate)
	}
}

func TestParseProbeOutputVideoOnly(t *testing.T) {
	raw := `{
		"streams": [{"codec_type": "video", "width": 640, "height": 360, "r_frame_rate": "25/1", "duration": "12.0"}],
		"format": {}
	}`
	info := ParseProbeOutput([]byte(raw))

	if info.HasAudio {
		t.Errorf("no audio stream but HasAudio is true")
	}
	if info.Duration != 12.0 {
		t.Errorf("Duration = %g, want stream duration 12.0 when format has none", info.Duration)
	}
	if info.FrameRate != 25 {
		t.Errorf("FrameRate = %g, want 25", info.FrameRate)
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"60", 60},
		{"0/0", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}
}
