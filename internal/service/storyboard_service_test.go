package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/storyboard"
	"github.com/cinder/storyboard/pkg/response"
)

// stubGenerator answers immediately unless hold is set
type stubGenerator struct {
	hold    chan struct{}
	failGen error
	failAni error
}

func (g *stubGenerator) GenerateStory(ctx context.Context, req *client.GenerateStoryRequest) (*client.GenerateStoryResponse, error) {
	if g.hold != nil {
		select {
		case <-g.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.failGen != nil {
		return nil, g.failGen
	}
	resp := &client.GenerateStoryResponse{Status: "ok", StoryID: req.UserID + "_story"}
	for i := 0; i < req.FrameCount; i++ {
		resp.Frames = append(resp.Frames, client.GeneratedFrame{
			Index:     i,
			Narration: fmt.Sprintf("frame %d", i),
			ImageURL:  fmt.Sprintf("https://img.test/%d.png", i),
		})
	}
	return resp, nil
}

func (g *stubGenerator) AnimateFrame(ctx context.Context, req *client.AnimateFrameRequest) (*client.AnimateFrameResponse, error) {
	if g.failAni != nil {
		return nil, g.failAni
	}
	return &client.AnimateFrameResponse{VideoURL: req.ImageURL + ".mp4"}, nil
}

type sentError struct {
	code       string
	message    string
	frameIndex *int
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events map[string][]string
	errors []sentError
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{events: make(map[string][]string)}
}

func (b *recordingBroadcaster) BroadcastSnapshot(userID, event string, snap model.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[userID] = append(b.events[userID], event)
}

func (b *recordingBroadcaster) BroadcastError(userID, code, message string, frameIndex *int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, sentError{code: code, message: message, frameIndex: frameIndex})
}

func (b *recordingBroadcaster) eventsFor(userID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events[userID]...)
}

func (b *recordingBroadcaster) sentErrors() []sentError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentError(nil), b.errors...)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) ObserveTransition(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[event]++
}

func (r *countingRecorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[event]
}

func waitPhase(t *testing.T, svc *StoryboardService, userID string, phase model.Phase) model.Snapshot {
	t.Helper()
	var snap model.Snapshot
	require.Eventually(t, func() bool {
		snap = svc.Snapshot(userID)
		return snap.Phase == phase
	}, 2*time.Second, 5*time.Millisecond)
	return snap
}

func TestStoryboardService_SessionsPerUser(t *testing.T) {
	svc := NewStoryboardService(&stubGenerator{}, nil, time.Hour)
	defer svc.Shutdown()

	_, err := svc.Generate("alice", &model.StoryboardGenerateRequest{Prompt: "a fox", FrameCount: 2})
	require.NoError(t, err)

	snap := waitPhase(t, svc, "alice", model.PhaseResult)
	assert.Equal(t, "alice_story", snap.StoryID)
	assert.Equal(t, string(model.DefaultStyle), snap.Style)

	assert.Equal(t, model.PhaseInput, svc.Snapshot("bob").Phase)
	assert.Equal(t, 2, svc.ActiveSessions())
}

func TestStoryboardService_PublishesTransitions(t *testing.T) {
	b := newRecordingBroadcaster()
	rec := &countingRecorder{}
	svc := NewStoryboardService(&stubGenerator{}, b, time.Hour).WithRecorder(rec)
	defer svc.Shutdown()

	_, err := svc.Generate("alice", &model.StoryboardGenerateRequest{Prompt: "a fox", FrameCount: 2})
	require.NoError(t, err)
	waitPhase(t, svc, "alice", model.PhaseResult)

	_, err = svc.Animate("alice", 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		f, _ := svc.Snapshot("alice").Frame(1)
		return f.AnimationStatus == model.AnimationAnimated
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{
		"generation_requested",
		"generation_succeeded",
		"animation_requested",
		"animation_succeeded",
	}, b.eventsFor("alice"))
	assert.Empty(t, b.eventsFor("bob"))
	assert.Empty(t, b.sentErrors())

	assert.Equal(t, 1, rec.count("generation_succeeded"))
	assert.Equal(t, 1, rec.count("animation_succeeded"))
}

func TestStoryboardService_PublishesFailures(t *testing.T) {
	b := newRecordingBroadcaster()
	gen := &stubGenerator{failGen: &client.ServerError{Op: "generate", Status: 503, Body: "busy"}}
	svc := NewStoryboardService(gen, b, time.Hour)
	defer svc.Shutdown()

	_, err := svc.Generate("alice", &model.StoryboardGenerateRequest{Prompt: "a fox", FrameCount: 2})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(b.sentErrors()) == 1 }, 2*time.Second, 5*time.Millisecond)
	sent := b.sentErrors()[0]
	assert.Equal(t, response.CodeGenerationFailed, sent.code)
	assert.Nil(t, sent.frameIndex)
	assert.Equal(t, svc.Snapshot("alice").LastError, sent.message)

	gen.failGen = nil
	gen.failAni = errors.New("gpu lost")

	_, err = svc.Generate("alice", &model.StoryboardGenerateRequest{Prompt: "a fox", FrameCount: 2})
	require.NoError(t, err)
	waitPhase(t, svc, "alice", model.PhaseResult)

	_, err = svc.Animate("alice", 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(b.sentErrors()) == 2 }, 2*time.Second, 5*time.Millisecond)
	sent = b.sentErrors()[1]
	assert.Equal(t, response.CodeAnimationFailed, sent.code)
	require.NotNil(t, sent.frameIndex)
	assert.Equal(t, 0, *sent.frameIndex)
	assert.Contains(t, sent.message, "gpu lost")
}

func TestStoryboardService_Rejections(t *testing.T) {
	svc := NewStoryboardService(&stubGenerator{}, nil, time.Hour)
	defer svc.Shutdown()

	_, err := svc.Animate("alice", 0)
	assert.ErrorIs(t, err, storyboard.ErrInvalidPhase)

	_, err = svc.Reset("alice")
	assert.ErrorIs(t, err, storyboard.ErrInvalidPhase)

	_, err = svc.Generate("alice", &model.StoryboardGenerateRequest{Prompt: "  ", FrameCount: 2})
	assert.True(t, storyboard.IsValidationError(err))
}

func TestStoryboardService_RestoreProject(t *testing.T) {
	svc := NewStoryboardService(&stubGenerator{}, nil, time.Hour)
	defer svc.Shutdown()

	project := &model.Project{
		StoryID: "s1",
		Prompt:  "a fox",
		Style:   "comic",
		Frames: []model.Frame{
			{Index: 0, ImageURL: "https://assets.test/0.png", AnimationStatus: model.AnimationAnimated, VideoURL: "https://cdn.test/0.mp4"},
			{Index: 1, ImageURL: "https://assets.test/1.png", AnimationStatus: model.AnimationStatic},
		},
	}

	snap, err := svc.Restore("alice", project)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseResult, snap.Phase)
	assert.Equal(t, "comic", snap.Style)
	assert.Equal(t, model.AnimationAnimated, snap.Frames[0].AnimationStatus)

	_, err = svc.Restore("alice", project)
	assert.ErrorIs(t, err, storyboard.ErrInvalidPhase)
}

func TestStoryboardService_EndSession(t *testing.T) {
	svc := NewStoryboardService(&stubGenerator{}, nil, time.Hour)
	defer svc.Shutdown()

	_, err := svc.Generate("alice", &model.StoryboardGenerateRequest{Prompt: "a fox", FrameCount: 1})
	require.NoError(t, err)
	waitPhase(t, svc, "alice", model.PhaseResult)

	svc.EndSession("alice")
	assert.Equal(t, 0, svc.ActiveSessions())

	// A later request opens a fresh session
	assert.Equal(t, model.PhaseInput, svc.Snapshot("alice").Phase)
	assert.Equal(t, 1, svc.ActiveSessions())

	svc.EndSession("nobody")
}

func TestStoryboardService_EvictIdle(t *testing.T) {
	gen := &stubGenerator{hold: make(chan struct{})}
	svc := NewStoryboardService(gen, nil, time.Minute)
	defer svc.Shutdown()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.Snapshot("idle")
	_, err := svc.Generate("busy", &model.StoryboardGenerateRequest{Prompt: "a fox", FrameCount: 1})
	require.NoError(t, err)

	assert.Equal(t, 0, svc.EvictIdle())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.EvictIdle(), "only the session without work in flight is evicted")
	assert.Equal(t, 1, svc.ActiveSessions())

	close(gen.hold)
	waitPhase(t, svc, "busy", model.PhaseResult)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.EvictIdle())
	assert.Equal(t, 0, svc.ActiveSessions())
}

func TestStoryboardService_RunStopsWithContext(t *testing.T) {
	svc := NewStoryboardService(&stubGenerator{}, nil, 20*time.Millisecond)
	defer svc.Shutdown()

	svc.Snapshot("alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.ActiveSessions() == 0 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
