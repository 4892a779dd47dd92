package model

// MusicStartMode controls where the background music begins on the timeline.
type MusicStartMode string

const (
	MusicStartAtBeginning MusicStartMode = "start"
	MusicStartAfterIntro  MusicStartMode = "after_intro"
)

// MusicEndMode controls where the background music stops on the timeline.
type MusicEndMode string

const (
	MusicEndAtEnd       MusicEndMode = "end"
	MusicEndBeforeOutro MusicEndMode = "before_outro"
)

// BumperMode controls where the static bumper is inserted.
type BumperMode string

const (
	BumperAfterIntro   BumperMode = "after_intro"
	BumperBetweenClips BumperMode = "between_clips"
	BumperBoth         BumperMode = "both"
)

// SegmentKind identifies the role of a processed timeline segment.
type SegmentKind string

const (
	SegmentIntro      SegmentKind = "intro"
	SegmentOutro      SegmentKind = "outro"
	SegmentTransition SegmentKind = "transition"
	SegmentClip       SegmentKind = "clip"
	SegmentBumper     SegmentKind = "static_bumper"
)

// MediaReference points at one media source (intro/outro/transition/clip/music).
// FilePath is the path recorded by the web application; it is only guaranteed
// to be local after the media resolver has run.
type MediaReference struct {
	ID       int64   `json:"id"`
	UserID   int64   `json:"user_id"`
	FilePath string  `json:"file_path"`
	Duration float64 `json:"duration,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// ClipSpec is one timeline clip. StartTime/EndTime trim the source when both
// are set; EndTime must be greater than StartTime.
type ClipSpec struct {
	ID          int64          `json:"id"`
	Media       MediaReference `json:"media"`
	StartTime   *float64       `json:"start_time,omitempty"`
	EndTime     *float64       `json:"end_time,omitempty"`
	CreatorName string         `json:"creator_name,omitempty"`
	GameName    string         `json:"game_name,omitempty"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
}

// TierLimits is the read-only policy injected by the web application. Nil
// fields mean "no cap".
type TierLimits struct {
	MaxClips      *int    `json:"max_clips,omitempty"`
	MaxResolution *string `json:"max_resolution,omitempty"`
}

// CompilationRequest is the immutable job payload, one per queue message.
type CompilationRequest struct {
	JobID     string  `json:"job_id"`
	ProjectID int64   `json:"project_id"`
	UserID    int64   `json:"user_id"`
	ClipIDs   []int64 `json:"clip_ids,omitempty"`

	Clips       []ClipSpec       `json:"clips"`
	Intro       *MediaReference  `json:"intro,omitempty"`
	Outro       *MediaReference  `json:"outro,omitempty"`
	Transitions []MediaReference `json:"transitions,omitempty"`
	Bumper      *MediaReference  `json:"static_bumper,omitempty"`
	BumperMode  BumperMode       `json:"bumper_mode,omitempty"`

	RandomizeTransitions bool `json:"randomize_transitions"`

	Music          *MediaReference `json:"background_music,omitempty"`
	MusicVolume    float64         `json:"music_volume"`
	MusicStartMode MusicStartMode  `json:"music_start_mode"`
	MusicEndMode   MusicEndMode    `json:"music_end_mode"`

	OutputResolution string     `json:"output_resolution"`
	OutputFormat     string     `json:"output_format"`
	Tier             TierLimits `json:"tier"`

	OverlayEnabled bool `json:"overlay_enabled"`
}

// ProcessedSegment is one normalized intermediate file, ready to concatenate.
type ProcessedSegment struct {
	SourceClipID int64
	Kind         SegmentKind
	LocalPath    string
}

// Timeline is the final segment ordering plus parallel human-readable labels
// for progress and audit logging.
type Timeline struct {
	Segments []ProcessedSegment
	Labels   []string
}

// CompilationResult is the terminal artifact of a successful run.
type CompilationResult struct {
	OutputPath     string  `json:"output_path"`
	ThumbnailPath  string  `json:"thumbnail_path,omitempty"`
	Duration       float64 `json:"duration"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	FrameRate      float64 `json:"framerate"`
	FileSizeBytes  int64   `json:"file_size_bytes"`
	ClipsProcessed int     `json:"clips_processed"`
	UsedClipIDs    []int64 `json:"used_clip_ids"`
	StoredAt       string  `json:"stored_at,omitempty"`
}
