package ffmpeg

import (
	"fmt"
	"strings"
)

// Overlay window within each clip, in seconds.
const (
	overlayStart = 3.0
	overlayEnd   = 10.0
	avatarSize   = 96
)

// OverlayConfig describes the per-clip attribution overlay. An overlay is
// drawn only when enabled and at least one of creator/game name is set.
type OverlayConfig struct {
	Enabled     bool
	CreatorName string
	GameName    string
	FontPath    string
	AvatarPath  string // local path of the avatar image, ffmpeg input #1
}

func (o *OverlayConfig) active() bool {
	return o != nil && o.Enabled && (o.CreatorName != "" || o.GameName != "")
}

// HasAvatar reports whether the invocation needs a second (image) input.
func (o *OverlayConfig) HasAvatar() bool {
	return o.active() && o.AvatarPath != ""
}

// BuildClipFilter constructs the filter graph normalizing one input to the
// target canvas, with the attribution overlay burned in when configured.
// The graph always produces a single named video pad [vout].
func BuildClipFilter(targetW, targetH int, overlay *OverlayConfig) string {
	stages := []string{scaleFilter(targetW, targetH)}
	stages = append(stages, "setsar=1")

	if !overlay.active() {
		return fmt.Sprintf("[0:v]%s[vout]", strings.Join(stages, ","))
	}

	stages = append(stages, overlayBox(targetH))
	stages = append(stages, overlayText(targetW, targetH, overlay)...)

	if !overlay.HasAvatar() {
		return fmt.Sprintf("[0:v]%s[vout]", strings.Join(stages, ","))
	}

	// Avatar is composited over the box in the same time window.
	base := fmt.Sprintf("[0:v]%s[base]", strings.Join(stages, ","))
	av := fmt.Sprintf("[1:v]scale=%d:%d[av]", avatarSize, avatarSize)
	comp := fmt.Sprintf("[base][av]overlay=x=30:y=main_h-%d:enable='between(t,%g,%g)'[vout]",
		boxBottomMargin(targetH)+boxHeight-avatarSize-12, overlayStart, overlayEnd)
	return strings.Join([]string{base, av, comp}, ";")
}

// scaleFilter implements the asymmetric scaling policy: portrait targets are
// scaled up 1.2x and center-cropped before padding, so landscape sources fill
// a vertical canvas without large bars; landscape targets scale directly with
// lanczos resampling.
func scaleFilter(targetW, targetH int) string {
	if targetH > targetW {
		return fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=increase:flags=lanczos,"+
				"crop=%d:%d,"+
				"pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
			int(float64(targetW)*1.2), int(float64(targetH)*1.2),
			targetW, targetH,
			targetW, targetH,
		)
	}
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease:flags=lanczos,"+
			"pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black",
		targetW, targetH, targetW, targetH,
	)
}

const boxHeight = 170

func boxBottomMargin(targetH int) int {
	return targetH / 8
}

func overlayBox(targetH int) string {
	return fmt.Sprintf(
		"drawbox=x=20:y=main_h-%d:w=460:h=%d:color=black@0.5:t=fill:enable='between(t,%g,%g)'",
		boxBottomMargin(targetH)+boxHeight, boxHeight, overlayStart, overlayEnd,
	)
}

func overlayText(targetW, targetH int, overlay *OverlayConfig) []string {
	lines := []string{"clip by"}
	if overlay.CreatorName != "" {
		lines = append(lines, overlay.CreatorName)
	}
	if overlay.GameName != "" {
		lines = append(lines, overlay.GameName)
	}

	out := make([]string, 0, len(lines))
	yBase := fmt.Sprintf("main_h-%d", boxBottomMargin(targetH)+boxHeight-16)
	for i, line := range lines {
		size := 28
		if i == 0 {
			size = 20
		}
		out = append(out, fmt.Sprintf(
			"drawtext=fontfile=%s:text='%s':fontcolor=white:fontsize=%d:x=%d:y=%s+%d:enable='between(t,%g,%g)'",
			overlay.FontPath, EscapeDrawText(line), size, 140, yBase, i*48, overlayStart, overlayEnd,
		))
	}
	return out
}

// EscapeDrawText escapes the characters drawtext treats as special inside a
// quoted text value.
func EscapeDrawText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\\\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}
