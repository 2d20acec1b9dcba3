package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/storyboard"
	"github.com/cinder/storyboard/pkg/response"
)

// Broadcaster pushes storyboard updates to a user's live connections
type Broadcaster interface {
	BroadcastSnapshot(userID, event string, snap model.Snapshot)
	BroadcastError(userID, code, message string, frameIndex *int)
}

// TransitionRecorder counts applied orchestrator events
type TransitionRecorder interface {
	ObserveTransition(event string)
}

type userSession struct {
	orch     *storyboard.Orchestrator
	lastUsed time.Time
}

// StoryboardService owns one orchestrator per user. Sessions are created on
// first use and closed on logout or after idleTTL without activity.
type StoryboardService struct {
	generator   storyboard.Generator
	broadcaster Broadcaster
	recorder    TransitionRecorder
	idleTTL     time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*userSession
}

func NewStoryboardService(generator storyboard.Generator, broadcaster Broadcaster, idleTTL time.Duration) *StoryboardService {
	return &StoryboardService{
		generator:   generator,
		broadcaster: broadcaster,
		idleTTL:     idleTTL,
		now:         time.Now,
		sessions:    make(map[string]*userSession),
	}
}

// WithRecorder counts every transition of every session on r
func (s *StoryboardService) WithRecorder(r TransitionRecorder) *StoryboardService {
	s.recorder = r
	return s
}

// session returns the user's orchestrator, creating it if needed
func (s *StoryboardService) session(userID string) *storyboard.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.lastUsed = s.now()
		return sess.orch
	}

	orch := storyboard.New(storyboard.Session{UserID: userID}, s.generator)
	if s.broadcaster != nil || s.recorder != nil {
		orch.Subscribe(s.publisher(userID))
	}
	s.sessions[userID] = &userSession{orch: orch, lastUsed: s.now()}
	log.Printf("[Storyboard] session opened for user %s", userID)

	return orch
}

// publisher forwards every transition to the user's connections. It runs
// under the orchestrator lock, so it only enqueues.
func (s *StoryboardService) publisher(userID string) storyboard.Listener {
	return func(snap model.Snapshot, ev storyboard.Event) {
		if s.recorder != nil {
			s.recorder.ObserveTransition(ev.Name())
		}
		if s.broadcaster == nil {
			return
		}

		s.broadcaster.BroadcastSnapshot(userID, ev.Name(), snap)

		switch ev := ev.(type) {
		case storyboard.GenerationFailed:
			s.broadcaster.BroadcastError(userID, response.CodeGenerationFailed, snap.LastError, nil)
		case storyboard.AnimationFailed:
			index := ev.Index
			msg := ""
			if f, ok := snap.Frame(index); ok {
				msg = f.Error
			}
			s.broadcaster.BroadcastError(userID, response.CodeAnimationFailed, msg, &index)
		}
	}
}

// Snapshot returns the user's current storyboard
func (s *StoryboardService) Snapshot(userID string) model.Snapshot {
	return s.session(userID).Snapshot()
}

// Generate starts a storyboard generation for the user
func (s *StoryboardService) Generate(userID string, req *model.StoryboardGenerateRequest) (model.Snapshot, error) {
	orch := s.session(userID)
	if err := orch.StartGeneration(req.Prompt, string(req.Style), req.FrameCount); err != nil {
		return model.Snapshot{}, err
	}
	return orch.Snapshot(), nil
}

// Animate starts the animation of one frame
func (s *StoryboardService) Animate(userID string, index int) (model.Snapshot, error) {
	orch := s.session(userID)
	if err := orch.RequestAnimation(index); err != nil {
		return model.Snapshot{}, err
	}
	return orch.Snapshot(), nil
}

// Reset returns the user's session to Input
func (s *StoryboardService) Reset(userID string) (model.Snapshot, error) {
	orch := s.session(userID)
	if err := orch.ResetToInput(); err != nil {
		return model.Snapshot{}, err
	}
	return orch.Snapshot(), nil
}

// Restore loads a saved project into the user's session
func (s *StoryboardService) Restore(userID string, project *model.Project) (model.Snapshot, error) {
	orch := s.session(userID)
	err := orch.Restore(storyboard.Restoration{
		StoryID: project.StoryID,
		Prompt:  project.Prompt,
		Style:   project.Style,
		Frames:  project.Frames,
	})
	if err != nil {
		return model.Snapshot{}, err
	}
	return orch.Snapshot(), nil
}

// EndSession tears the user's orchestrator down
func (s *StoryboardService) EndSession(userID string) {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if ok {
		sess.orch.Close()
		log.Printf("[Storyboard] session closed for user %s", userID)
	}
}

// ActiveSessions returns the number of open sessions
func (s *StoryboardService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run evicts idle sessions until ctx is done
func (s *StoryboardService) Run(ctx context.Context) {
	if s.idleTTL <= 0 {
		return
	}

	interval := s.idleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				log.Printf("[Storyboard] evicted %d idle sessions", n)
			}
		}
	}
}

// EvictIdle closes sessions unused for idleTTL. Sessions with work in flight are kept.
func (s *StoryboardService) EvictIdle() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var idle []*storyboard.Orchestrator
	for userID, sess := range s.sessions {
		if sess.lastUsed.After(cutoff) || busy(sess.orch.Snapshot()) {
			continue
		}
		idle = append(idle, sess.orch)
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	for _, orch := range idle {
		orch.Close()
	}
	return len(idle)
}

// Shutdown closes every session
func (s *StoryboardService) Shutdown() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*userSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.orch.Close()
	}
}

func busy(snap model.Snapshot) bool {
	return snap.Phase == model.PhaseLoading || snap.CountByStatus()[model.AnimationAnimating] > 0
}
