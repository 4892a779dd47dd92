package compile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"clip-compiler/internal/model"
)

// Resolution is a concrete output canvas.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func (r Resolution) pixels() int { return r.Width * r.Height }

// resolutionLabels is the recognized label taxonomy. An explicit "WxH" string
// passes through unchanged.
var resolutionLabels = map[string]Resolution{
	"720p":  {1280, 720},
	"1080p": {1920, 1080},
	"1440p": {2560, 1440},
	"2k":    {2560, 1440},
	"2160p": {3840, 2160},
	"4k":    {3840, 2160},
}

// ParseResolution resolves a label or explicit WxH string.
func ParseResolution(label string) (Resolution, error) {
	norm := strings.ToLower(strings.TrimSpace(label))
	if r, ok := resolutionLabels[norm]; ok {
		return r, nil
	}
	w, h, ok := strings.Cut(norm, "x")
	if ok {
		width, err1 := strconv.Atoi(w)
		height, err2 := strconv.Atoi(h)
		if err1 == nil && err2 == nil && width > 0 && height > 0 {
			return Resolution{width, height}, nil
		}
	}
	return Resolution{}, fmt.Errorf("unknown resolution %q", label)
}

// EffectiveResolution caps the requested resolution at the tier's maximum.
// An unparsable request falls back to 1080p; an unparsable cap is ignored.
func EffectiveResolution(requested string, maxLabel *string) Resolution {
	res, err := ParseResolution(requested)
	if err != nil {
		res = resolutionLabels["1080p"]
	}
	if maxLabel == nil {
		return res
	}
	cap, err := ParseResolution(*maxLabel)
	if err != nil {
		return res
	}
	if res.pixels() > cap.pixels() {
		return cap
	}
	return res
}

// SelectClips filters the request's clips to an explicit id selection, in the
// selection's order. An empty selection means all clips; ids not present in
// the request are ignored.
func SelectClips(clips []model.ClipSpec, ids []int64) []model.ClipSpec {
	if len(ids) == 0 {
		return clips
	}
	byID := lo.KeyBy(clips, func(c model.ClipSpec) int64 { return c.ID })
	selected := make([]model.ClipSpec, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			selected = append(selected, c)
		}
	}
	return selected
}

// TruncateClips enforces the tier's clip cap, keeping the earliest clips in
// their original order.
func TruncateClips(clips []model.ClipSpec, maxClips *int) []model.ClipSpec {
	if maxClips == nil || *maxClips <= 0 || len(clips) <= *maxClips {
		return clips
	}
	return clips[:*maxClips]
}
