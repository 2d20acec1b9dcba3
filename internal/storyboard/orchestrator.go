// Package storyboard drives storyboard generation and per-frame animation.
//
// The [Orchestrator] owns one storyboard session. It walks the session through
// Input -> Loading -> Result, and lets any number of frames animate at once
// while keeping each frame's lifecycle independent of the others.
//
// Key concepts:
//   - Every state change goes through [Reduce], a pure (State, Event) -> State function
//   - I/O runs in goroutines outside the lock; completions re-enter as events
//   - Each completion carries the generation token that was active when it was
//     dispatched; a mismatching token means the session was replaced and the
//     result is dropped ([ErrStaleResult])
//   - Presentation layers receive immutable snapshots through [Listener]
package storyboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/model"
)

// Generator is the backend the orchestrator talks to.
// [client.StoryClient] implements it.
type Generator = client.StoryGenerator

// Session identifies who the orchestrator works for. UserID is opaque and
// may be a guest identifier.
type Session struct {
	UserID string
}

// Listener receives a snapshot after every applied transition together with
// the event that caused it. Failure events (GenerationFailed, AnimationFailed)
// are delivered exactly once.
//
// Listeners run while the orchestrator lock is held, in transition order.
// They must not call back into the Orchestrator. Each listener gets its own
// copy of the frames.
type Listener func(snap model.Snapshot, ev Event)

// Restoration is a previously produced storyboard to re-enter Result with
type Restoration struct {
	StoryID string
	Prompt  string
	Style   string
	Frames  []model.Frame
}

// Orchestrator is the storyboard session state machine. It is safe for
// concurrent use.
type Orchestrator struct {
	session   Session
	generator Generator

	mu        sync.Mutex
	state     State
	version   uint64
	listeners map[int]Listener
	nextID    int
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator in the Input phase
func New(session Session, generator Generator) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		session:   session,
		generator: generator,
		state:     InitialState(),
		listeners: make(map[int]Listener),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Session returns the identity the orchestrator was created for
func (o *Orchestrator) Session() Session {
	return o.session
}

// StartGeneration validates the request, moves to Loading and dispatches
// exactly one generation call. It returns as soon as the call is dispatched;
// the outcome arrives through listeners.
func (o *Orchestrator) StartGeneration(prompt, style string, frameCount int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return invalid("generate", ErrClosed)
	}

	state, err := o.applyLocked(GenerationRequested{Prompt: prompt, Style: style, FrameCount: frameCount})
	if err != nil {
		return err
	}

	req := &client.GenerateStoryRequest{
		UserID:     o.session.UserID,
		Prompt:     state.Prompt,
		Style:      state.Style,
		FrameCount: state.FrameCount,
	}
	token := state.Token

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		res := client.Call(func() (*client.GenerateStoryResponse, error) {
			return o.generator.GenerateStory(o.ctx, req)
		})
		o.completeGeneration(token, res)
	}()

	return nil
}

func (o *Orchestrator) completeGeneration(token uint64, res client.Result[*client.GenerateStoryResponse]) {
	var ev Event
	if res.IsOk() {
		frames := res.Value.ToFrames()
		if len(frames) == 0 {
			ev = GenerationFailed{Token: token, Err: fmt.Errorf("%w: backend returned no frames", ErrInvalidFrames)}
		} else if _, err := NewFrameStore(frames); err != nil {
			ev = GenerationFailed{Token: token, Err: err}
		} else {
			ev = GenerationSucceeded{Token: token, StoryID: res.Value.StoryID, Frames: frames}
		}
	} else {
		log.Printf("[Orchestrator] user=%s generation failed (%s): %v", o.session.UserID, res.Kind, res.Err)
		ev = GenerationFailed{Token: token, Err: res.Err}
	}
	o.complete(ev)
}

// RequestAnimation marks frame index as Animating and dispatches its
// animation call. Frames in Animating or Animated are rejected; Failed
// frames may be retried.
func (o *Orchestrator) RequestAnimation(index int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return invalid("animate", ErrClosed)
	}

	state, err := o.applyLocked(AnimationRequested{Index: index})
	if err != nil {
		return err
	}

	frame, _ := state.Store.Get(index)
	req := &client.AnimateFrameRequest{
		ImageURL:  frame.ImageURL,
		Narration: frame.Narration,
	}
	token := state.Token

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		res := client.Call(func() (*client.AnimateFrameResponse, error) {
			return o.generator.AnimateFrame(o.ctx, req)
		})
		if res.IsOk() {
			o.complete(AnimationSucceeded{Token: token, Index: index, VideoURL: res.Value.VideoURL})
			return
		}
		log.Printf("[Orchestrator] user=%s frame %d animation failed (%s): %v", o.session.UserID, index, res.Kind, res.Err)
		o.complete(AnimationFailed{Token: token, Index: index, Err: res.Err})
	}()

	return nil
}

// ResetToInput discards the storyboard and returns to Input. Animations
// still in flight complete into the void.
func (o *Orchestrator) ResetToInput() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return invalid("reset", ErrClosed)
	}
	_, err := o.applyLocked(ResetRequested{})
	return err
}

// Restore re-enters Result with a previously produced storyboard
func (o *Orchestrator) Restore(r Restoration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return invalid("restore", ErrClosed)
	}
	_, err := o.applyLocked(RestoreRequested{
		StoryID: r.StoryID,
		Prompt:  r.Prompt,
		Style:   r.Style,
		Frames:  r.Frames,
	})
	return err
}

// Snapshot returns a copy of the current session
func (o *Orchestrator) Snapshot() model.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Snapshot(o.version)
}

// Subscribe registers l and returns a function that removes it
func (o *Orchestrator) Subscribe(l Listener) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++
	o.listeners[id] = l

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

// Wait blocks until every dispatched call has completed
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close tears the session down: in-flight results become stale, pending
// HTTP calls are cancelled, and Close waits for their goroutines to exit.
// Further intents fail with ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if _, err := o.applyLocked(SessionClosed{}); err != nil {
		log.Printf("[Orchestrator] user=%s close: %v", o.session.UserID, err)
	}
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// complete applies a completion event, dropping it if stale
func (o *Orchestrator) complete(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.applyLocked(ev); err != nil {
		if errors.Is(err, ErrStaleResult) {
			log.Printf("[Orchestrator] user=%s discarding stale %s", o.session.UserID, ev.Name())
			return
		}
		log.Printf("[Orchestrator] user=%s rejected %s: %v", o.session.UserID, ev.Name(), err)
	}
}

// applyLocked reduces ev into the current state and notifies listeners.
// o.mu must be held.
func (o *Orchestrator) applyLocked(ev Event) (State, error) {
	next, err := Reduce(o.state, ev)
	if err != nil {
		return o.state, err
	}

	o.state = next
	o.version++

	for _, l := range o.listeners {
		l(next.Snapshot(o.version), ev)
	}

	return next, nil
}
