package storyboard

import (
	"fmt"
	"sort"

	"github.com/cinder/storyboard/internal/model"
)

// FrameStore is an immutable, index-addressed frame sequence. Every mutation
// returns a new store that shares nothing writable with the old one, so a
// store handed out in a snapshot can never change underneath its reader.
//
// Mutations on different indices commute. Mutations on the same index are
// guarded by status preconditions: Animating may only be entered from Static
// or Failed, and only an Animating frame may complete.
type FrameStore struct {
	frames []model.Frame
}

// NewFrameStore validates frames and builds a store sorted by index.
// Indices must be exactly 0..n-1.
func NewFrameStore(frames []model.Frame) (FrameStore, error) {
	sorted := make([]model.Frame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	for i := range sorted {
		if sorted[i].Index != i {
			return FrameStore{}, fmt.Errorf("%w: got index %d at position %d", ErrInvalidFrames, sorted[i].Index, i)
		}
		if !sorted[i].AnimationStatus.IsValid() {
			sorted[i].AnimationStatus = model.AnimationStatic
		}
	}

	return FrameStore{frames: sorted}, nil
}

// Len returns the number of frames
func (s FrameStore) Len() int {
	return len(s.frames)
}

// Get returns a copy of the frame at index i
func (s FrameStore) Get(i int) (model.Frame, bool) {
	if i < 0 || i >= len(s.frames) {
		return model.Frame{}, false
	}
	return s.frames[i], true
}

// Frames returns a copy of the whole sequence
func (s FrameStore) Frames() []model.Frame {
	out := make([]model.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// MarkAnimating moves frame i to Animating and clears any previous failure.
func (s FrameStore) MarkAnimating(i int) (FrameStore, error) {
	f, ok := s.Get(i)
	if !ok {
		return s, ErrIndexOutOfRange
	}
	if !f.AnimationStatus.CanAnimate() {
		return s, ErrFrameBusy
	}
	f.AnimationStatus = model.AnimationAnimating
	f.Error = ""
	return s.with(i, f), nil
}

// MarkAnimated completes an in-flight animation on frame i
func (s FrameStore) MarkAnimated(i int, videoURL string) (FrameStore, error) {
	f, err := s.animating(i)
	if err != nil {
		return s, err
	}
	f.AnimationStatus = model.AnimationAnimated
	f.VideoURL = videoURL
	return s.with(i, f), nil
}

// MarkFailed reverts an in-flight animation on frame i. VideoURL stays unset.
func (s FrameStore) MarkFailed(i int, message string) (FrameStore, error) {
	f, err := s.animating(i)
	if err != nil {
		return s, err
	}
	f.AnimationStatus = model.AnimationFailed
	f.VideoURL = ""
	f.Error = message
	return s.with(i, f), nil
}

func (s FrameStore) animating(i int) (model.Frame, error) {
	f, ok := s.Get(i)
	if !ok {
		return model.Frame{}, ErrIndexOutOfRange
	}
	if f.AnimationStatus != model.AnimationAnimating {
		return model.Frame{}, fmt.Errorf("frame %d is %s, not animating", i, f.AnimationStatus)
	}
	return f, nil
}

// with returns a copy of s with frame i replaced
func (s FrameStore) with(i int, f model.Frame) FrameStore {
	next := make([]model.Frame, len(s.frames))
	copy(next, s.frames)
	next[i] = f
	return FrameStore{frames: next}
}
