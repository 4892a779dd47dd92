package compile

import (
	"fmt"
	"math/rand"

	"clip-compiler/internal/model"
)

// TimelineOptions carries the processed static segments and interleaving
// rules for one assembly.
type TimelineOptions struct {
	Intro       *model.ProcessedSegment
	Outro       *model.ProcessedSegment
	Bumper      *model.ProcessedSegment
	BumperMode  model.BumperMode
	Transitions []model.ProcessedSegment
	Randomize   bool
	Rand        *rand.Rand // used only when Randomize; injectable for tests
}

// AssembleTimeline orders processed segments: intro, bumper after intro, then
// for each clip a transition (from the second clip on, when a pool exists),
// optionally a bumper between clips, the clip itself, and finally the outro.
func AssembleTimeline(clips []model.ProcessedSegment, opts TimelineOptions) model.Timeline {
	var tl model.Timeline
	add := func(seg model.ProcessedSegment, label string) {
		tl.Segments = append(tl.Segments, seg)
		tl.Labels = append(tl.Labels, label)
	}

	bumperAfterIntro := opts.BumperMode == model.BumperAfterIntro || opts.BumperMode == model.BumperBoth || opts.BumperMode == ""
	bumperBetween := opts.BumperMode == model.BumperBetweenClips || opts.BumperMode == model.BumperBoth

	if opts.Intro != nil {
		add(*opts.Intro, "Intro")
		if opts.Bumper != nil && bumperAfterIntro {
			add(*opts.Bumper, "Bumper")
		}
	}

	transitionIdx := 0
	for i, clip := range clips {
		if i > 0 && len(opts.Transitions) > 0 {
			add(pickTransition(opts, &transitionIdx), "Transition")
			transitionIdx++
		}
		if i > 0 && opts.Bumper != nil && bumperBetween {
			add(*opts.Bumper, "Bumper")
		}
		add(clip, fmt.Sprintf("Clip %d", clip.SourceClipID))
	}

	if opts.Outro != nil {
		add(*opts.Outro, "Outro")
	}

	return tl
}

// pickTransition selects uniformly at random when randomizing, otherwise
// cycles through the pool in round-robin order by insertion index.
func pickTransition(opts TimelineOptions, idx *int) model.ProcessedSegment {
	pool := opts.Transitions
	if opts.Randomize && opts.Rand != nil {
		return pool[opts.Rand.Intn(len(pool))]
	}
	return pool[*idx%len(pool)]
}
