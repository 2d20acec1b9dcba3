package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/model"
)

const (
	TaskTypeProjectSave = "project:save"
	ProjectQueue        = "projects"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrNothingToSave   = errors.New("no storyboard to save")
)

// TaskEnqueuer is the part of *asynq.Client the service needs
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ProjectService keeps the user's storyboard library in Redis. Frame images
// are moved to object storage by the project:save worker.
type ProjectService struct {
	redis   *redis.Client
	queue   TaskEnqueuer
	storage client.StorageClient
}

func NewProjectService(redisClient *redis.Client, queue TaskEnqueuer, storage client.StorageClient) *ProjectService {
	return &ProjectService{
		redis:   redisClient,
		queue:   queue,
		storage: storage,
	}
}

// Save records snap as a pending project and queues its asset upload
func (s *ProjectService) Save(ctx context.Context, userID, title string, snap model.Snapshot) (*model.Project, error) {
	if snap.Phase != model.PhaseResult || len(snap.Frames) == 0 {
		return nil, ErrNothingToSave
	}

	project := &model.Project{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     strings.TrimSpace(title),
		StoryID:   snap.StoryID,
		Prompt:    snap.Prompt,
		Style:     snap.Style,
		Frames:    persistableFrames(snap.Frames),
		Status:    model.ProjectStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(project)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project: %w", err)
	}

	// Record and index land together or not at all
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, projectKey(project.ID), data, 0)
		pipe.ZAdd(ctx, userIndexKey(userID), redis.Z{
			Score:  float64(project.CreatedAt.UnixNano()),
			Member: project.ID,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	task, err := newProjectSaveTask(project)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.queue.Enqueue(task,
		asynq.Queue(ProjectQueue),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		s.MarkFailed(ctx, project, "failed to queue asset upload")
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Printf("[Projects] queued save of %s (%d frames) for user %s", project.ID, len(project.Frames), userID)
	return project, nil
}

// Get returns a project owned by userID
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*model.Project, error) {
	project, err := s.getProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, ErrProjectNotFound
	}
	return project, nil
}

// List returns the user's projects, newest first
func (s *ProjectService) List(ctx context.Context, userID string) ([]model.ProjectSummary, error) {
	ids, err := s.redis.ZRevRange(ctx, userIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	summaries := make([]model.ProjectSummary, 0, len(ids))
	for _, id := range ids {
		project, err := s.getProject(ctx, id)
		if errors.Is(err, ErrProjectNotFound) {
			// Index entry outlived its record
			s.redis.ZRem(ctx, userIndexKey(userID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, project.Summary())
	}

	return summaries, nil
}

// Delete removes a project and its uploaded assets
func (s *ProjectService) Delete(ctx context.Context, userID, projectID string) error {
	project, err := s.Get(ctx, userID, projectID)
	if err != nil {
		return err
	}

	// GETDEL returns the record as it was at removal, so assets a worker
	// attached after the ownership check are still cleaned up
	pipe := s.redis.TxPipeline()
	removed := pipe.GetDel(ctx, projectKey(projectID))
	pipe.ZRem(ctx, userIndexKey(userID), projectID)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if data, err := removed.Bytes(); err == nil {
		var last model.Project
		if json.Unmarshal(data, &last) == nil {
			project = &last
		}
	}

	if s.storage != nil {
		for _, key := range project.AssetKeys {
			if err := s.storage.Delete(ctx, key); err != nil {
				log.Printf("[Projects] failed to delete asset %s: %v", key, err)
			}
		}
	}

	return nil
}

// Load returns a project regardless of owner (called by worker)
func (s *ProjectService) Load(ctx context.Context, projectID string) (*model.Project, error) {
	return s.getProject(ctx, projectID)
}

// MarkSaved stores the uploaded frames and completes the project (called by worker).
// It returns ErrProjectNotFound if the project was deleted in the meantime.
func (s *ProjectService) MarkSaved(ctx context.Context, project *model.Project, frames []model.Frame, assetKeys []string) error {
	now := time.Now().UTC()
	project.Frames = frames
	project.AssetKeys = assetKeys
	project.Status = model.ProjectStatusSaved
	project.Error = nil
	project.SavedAt = &now
	return s.updateProject(ctx, project)
}

// MarkFailed records a persistence failure (called by worker)
func (s *ProjectService) MarkFailed(ctx context.Context, project *model.Project, errMsg string) {
	project.Status = model.ProjectStatusFailed
	project.Error = &errMsg
	if err := s.updateProject(ctx, project); err != nil {
		log.Printf("[Projects] failed to mark %s failed: %v", project.ID, err)
	}
}

// persistableFrames drops transient animation state. An in-flight animation
// cannot finish into a saved copy, so it is stored as Static.
func persistableFrames(frames []model.Frame) []model.Frame {
	out := make([]model.Frame, len(frames))
	for i, f := range frames {
		if f.AnimationStatus == model.AnimationAnimating {
			f.AnimationStatus = model.AnimationStatic
		}
		out[i] = f
	}
	return out
}

// Helper methods

func projectKey(id string) string {
	return fmt.Sprintf("project:%s", id)
}

func userIndexKey(userID string) string {
	return fmt.Sprintf("projects:user:%s", userID)
}

// updateProject overwrites an existing record and never recreates a deleted one
func (s *ProjectService) updateProject(ctx context.Context, project *model.Project) error {
	data, err := json.Marshal(project)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetXX(ctx, projectKey(project.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrProjectNotFound
	}
	return nil
}

func (s *ProjectService) getProject(ctx context.Context, projectID string) (*model.Project, error) {
	data, err := s.redis.Get(ctx, projectKey(projectID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	var project model.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project: %w", err)
	}

	return &project, nil
}

func newProjectSaveTask(project *model.Project) (*asynq.Task, error) {
	data, err := json.Marshal(model.ProjectSavePayload{
		ProjectID: project.ID,
		UserID:    project.UserID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProjectSave, data), nil
}
