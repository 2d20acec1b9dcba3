package storyboard

import (
	"fmt"
	"strings"

	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/model"
)

// State is the complete storyboard session. It is a value: Reduce never
// mutates its input.
type State struct {
	Phase      model.Phase
	Token      uint64
	Prompt     string
	Style      string
	FrameCount int
	StoryID    string
	Store      FrameStore
	LastError  string
}

// InitialState is an empty session in the Input phase
func InitialState() State {
	return State{Phase: model.PhaseInput}
}

// Event is an input to Reduce
type Event interface {
	Name() string
}

// GenerationRequested starts a new storyboard. The reducer assigns the token.
type GenerationRequested struct {
	Prompt     string
	Style      string
	FrameCount int
}

// GenerationSucceeded delivers the frames produced under Token
type GenerationSucceeded struct {
	Token   uint64
	StoryID string
	Frames  []model.Frame
}

// GenerationFailed reports a failed generation call issued under Token
type GenerationFailed struct {
	Token uint64
	Err   error
}

// AnimationRequested marks frame Index as animating
type AnimationRequested struct {
	Index int
}

// AnimationSucceeded completes the animation of frame Index issued under Token
type AnimationSucceeded struct {
	Token    uint64
	Index    int
	VideoURL string
}

// AnimationFailed reports a failed animation of frame Index issued under Token
type AnimationFailed struct {
	Token uint64
	Index int
	Err   error
}

// ResetRequested discards the current storyboard
type ResetRequested struct{}

// RestoreRequested re-enters Result with previously produced frames
type RestoreRequested struct {
	StoryID string
	Prompt  string
	Style   string
	Frames  []model.Frame
}

// SessionClosed tears the session down from any phase
type SessionClosed struct{}

func (GenerationRequested) Name() string { return "generation_requested" }
func (GenerationSucceeded) Name() string { return "generation_succeeded" }
func (GenerationFailed) Name() string    { return "generation_failed" }
func (AnimationRequested) Name() string  { return "animation_requested" }
func (AnimationSucceeded) Name() string  { return "animation_succeeded" }
func (AnimationFailed) Name() string     { return "animation_failed" }
func (ResetRequested) Name() string      { return "reset_requested" }
func (RestoreRequested) Name() string    { return "restore_requested" }
func (SessionClosed) Name() string       { return "session_closed" }

// Reduce applies ev to s. On error s is returned unchanged: validation
// failures are wrapped in *ValidationError, completions carrying a token
// other than the active one fail with ErrStaleResult.
func Reduce(s State, ev Event) (State, error) {
	switch ev := ev.(type) {
	case GenerationRequested:
		return reduceGenerationRequested(s, ev)

	case GenerationSucceeded:
		if ev.Token != s.Token || s.Phase != model.PhaseLoading {
			return s, ErrStaleResult
		}
		if len(ev.Frames) == 0 {
			return s, fmt.Errorf("%w: no frames", ErrInvalidFrames)
		}
		store, err := NewFrameStore(ev.Frames)
		if err != nil {
			return s, err
		}
		next := s
		next.Phase = model.PhaseResult
		next.StoryID = ev.StoryID
		next.Store = store
		next.LastError = ""
		return next, nil

	case GenerationFailed:
		if ev.Token != s.Token || s.Phase != model.PhaseLoading {
			return s, ErrStaleResult
		}
		next := s
		next.Phase = model.PhaseInput
		next.StoryID = ""
		next.Store = FrameStore{}
		next.LastError = client.Detail(ev.Err)
		return next, nil

	case AnimationRequested:
		if s.Phase != model.PhaseResult {
			return s, invalid("animate", ErrInvalidPhase)
		}
		store, err := s.Store.MarkAnimating(ev.Index)
		if err != nil {
			return s, invalid("animate", err)
		}
		next := s
		next.Store = store
		return next, nil

	case AnimationSucceeded:
		if ev.Token != s.Token || s.Phase != model.PhaseResult {
			return s, ErrStaleResult
		}
		store, err := s.Store.MarkAnimated(ev.Index, ev.VideoURL)
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrStaleResult, err)
		}
		next := s
		next.Store = store
		return next, nil

	case AnimationFailed:
		if ev.Token != s.Token || s.Phase != model.PhaseResult {
			return s, ErrStaleResult
		}
		store, err := s.Store.MarkFailed(ev.Index, client.Detail(ev.Err))
		if err != nil {
			return s, fmt.Errorf("%w: %v", ErrStaleResult, err)
		}
		next := s
		next.Store = store
		return next, nil

	case ResetRequested:
		if s.Phase != model.PhaseResult {
			return s, invalid("reset", ErrInvalidPhase)
		}
		return discard(s), nil

	case RestoreRequested:
		return reduceRestoreRequested(s, ev)

	case SessionClosed:
		return discard(s), nil
	}

	return s, fmt.Errorf("unknown event %T", ev)
}

func reduceGenerationRequested(s State, ev GenerationRequested) (State, error) {
	if s.Phase != model.PhaseInput {
		return s, invalid("generate", ErrInvalidPhase)
	}

	prompt := strings.TrimSpace(ev.Prompt)
	if prompt == "" {
		return s, invalid("generate", ErrEmptyPrompt)
	}
	if ev.FrameCount < model.MinFrameCount || ev.FrameCount > model.MaxFrameCount {
		return s, invalid("generate", fmt.Errorf("%w: %d not in [%d,%d]",
			ErrFrameCountOutOfRange, ev.FrameCount, model.MinFrameCount, model.MaxFrameCount))
	}

	style := strings.TrimSpace(ev.Style)
	if style == "" {
		style = string(model.DefaultStyle)
	}

	return State{
		Phase:      model.PhaseLoading,
		Token:      s.Token + 1,
		Prompt:     prompt,
		Style:      style,
		FrameCount: ev.FrameCount,
	}, nil
}

func reduceRestoreRequested(s State, ev RestoreRequested) (State, error) {
	if s.Phase != model.PhaseInput {
		return s, invalid("restore", ErrInvalidPhase)
	}
	if len(ev.Frames) == 0 {
		return s, invalid("restore", fmt.Errorf("%w: no frames", ErrInvalidFrames))
	}

	frames := make([]model.Frame, len(ev.Frames))
	for i, f := range ev.Frames {
		frames[i] = restoredFrame(f)
	}
	store, err := NewFrameStore(frames)
	if err != nil {
		return s, invalid("restore", err)
	}

	return State{
		Phase:      model.PhaseResult,
		Token:      s.Token + 1,
		Prompt:     ev.Prompt,
		Style:      ev.Style,
		FrameCount: store.Len(),
		StoryID:    ev.StoryID,
		Store:      store,
	}, nil
}

// restoredFrame normalises persisted animation state. Nothing can be in
// flight for a restored session, so Animating falls back to Static.
func restoredFrame(f model.Frame) model.Frame {
	switch f.AnimationStatus {
	case model.AnimationAnimated:
		if f.VideoURL == "" {
			f.AnimationStatus = model.AnimationStatic
		}
	case model.AnimationFailed:
		f.VideoURL = ""
	default:
		f.AnimationStatus = model.AnimationStatic
		f.VideoURL = ""
		f.Error = ""
	}
	return f
}

// discard returns an empty Input session under a fresh token, so every
// completion still in flight for s becomes stale.
func discard(s State) State {
	next := InitialState()
	next.Token = s.Token + 1
	return next
}

// Snapshot renders s for presentation
func (s State) Snapshot(version uint64) model.Snapshot {
	return model.Snapshot{
		Token:               s.Token,
		Version:             version,
		Phase:               s.Phase,
		Prompt:              s.Prompt,
		Style:               s.Style,
		RequestedFrameCount: s.FrameCount,
		StoryID:             s.StoryID,
		Frames:              s.Store.Frames(),
		LastError:           s.LastError,
	}
}
