package model

// AnimationStatus is the per-frame animation lifecycle
type AnimationStatus string

const (
	AnimationStatic    AnimationStatus = "static"
	AnimationAnimating AnimationStatus = "animating"
	AnimationAnimated  AnimationStatus = "animated"
	AnimationFailed    AnimationStatus = "failed"
)

// CanAnimate reports whether a new animation may be requested from this status.
func (s AnimationStatus) CanAnimate() bool {
	return s == AnimationStatic || s == AnimationFailed
}

// IsValid reports whether s is a known status
func (s AnimationStatus) IsValid() bool {
	switch s {
	case AnimationStatic, AnimationAnimating, AnimationAnimated, AnimationFailed:
		return true
	}
	return false
}

// Frame is one narrated still image within a storyboard
type Frame struct {
	Index           int             `json:"index" yaml:"index"`
	Narration       string          `json:"narration" yaml:"narration"`
	ImageURL        string          `json:"imageUrl" yaml:"imageUrl"`
	AnimationStatus AnimationStatus `json:"animationStatus" yaml:"animationStatus"`
	VideoURL        string          `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	Error           string          `json:"error,omitempty" yaml:"error,omitempty"`
}
