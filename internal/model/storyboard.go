package model

// Phase is the orchestrator's top-level state
type Phase string

const (
	PhaseInput   Phase = "input"
	PhaseLoading Phase = "loading"
	PhaseResult  Phase = "result"
)

// Style is a visual style understood by the story backend
type Style string

const (
	StyleStorybook  Style = "storybook"
	StyleWatercolor Style = "watercolor"
	StyleComic      Style = "comic"
	StyleFilm       Style = "film"
	StyleRealistic  Style = "realistic"
	StyleAnime      Style = "anime"
)

// DefaultStyle is used when a request leaves the style empty
const DefaultStyle = StyleStorybook

var ValidStyles = []Style{
	StyleStorybook, StyleWatercolor, StyleComic, StyleFilm, StyleRealistic, StyleAnime,
}

// Frame count bounds for a single storyboard
const (
	MinFrameCount = 1
	MaxFrameCount = 15
)

// Snapshot is a read-only view of a storyboard session for presentation layers.
// Frames is always a private copy.
type Snapshot struct {
	Token               uint64  `json:"token" yaml:"-"`
	Version             uint64  `json:"version" yaml:"-"`
	Phase               Phase   `json:"phase" yaml:"phase"`
	Prompt              string  `json:"prompt" yaml:"prompt"`
	Style               string  `json:"style" yaml:"style"`
	RequestedFrameCount int     `json:"requestedFrameCount" yaml:"requestedFrameCount"`
	StoryID             string  `json:"storyId,omitempty" yaml:"storyId,omitempty"`
	Frames              []Frame `json:"frames" yaml:"frames"`
	LastError           string  `json:"lastError,omitempty" yaml:"-"`
}

// Frame returns the frame at index i, if present.
func (s Snapshot) Frame(i int) (Frame, bool) {
	if i < 0 || i >= len(s.Frames) {
		return Frame{}, false
	}
	return s.Frames[i], true
}

// CountByStatus tallies frames per animation status
func (s Snapshot) CountByStatus() map[AnimationStatus]int {
	counts := make(map[AnimationStatus]int)
	for _, f := range s.Frames {
		counts[f.AnimationStatus]++
	}
	return counts
}

// StoryboardGenerateRequest is the body of POST /api/storyboard/generate
type StoryboardGenerateRequest struct {
	Prompt     string `json:"prompt" validate:"required,max=2000"`
	Style      Style  `json:"style" validate:"omitempty,oneof=storybook watercolor comic film realistic anime"`
	FrameCount int    `json:"frameCount" validate:"required,min=1,max=15"`
}
