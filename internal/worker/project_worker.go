package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/service"
)

const defaultUploadConcurrency = 4

// ProjectNotifier reports project status changes to the owner
type ProjectNotifier interface {
	BroadcastProject(userID, projectID string, status model.ProjectStatus)
}

// SaveRecorder counts finished saves by status
type SaveRecorder interface {
	ObserveProjectSave(status string)
}

// ProjectWorker moves inline frame images of saved projects to object storage
type ProjectWorker struct {
	projects    *service.ProjectService
	storage     client.StorageClient
	notifier    ProjectNotifier
	recorder    SaveRecorder
	concurrency int
}

// NewProjectWorker creates a new project worker. A nil storage keeps images inline.
func NewProjectWorker(projects *service.ProjectService, storage client.StorageClient, notifier ProjectNotifier) *ProjectWorker {
	return &ProjectWorker{
		projects:    projects,
		storage:     storage,
		notifier:    notifier,
		concurrency: defaultUploadConcurrency,
	}
}

// WithRecorder reports every finished save to r
func (w *ProjectWorker) WithRecorder(r SaveRecorder) *ProjectWorker {
	w.recorder = r
	return w
}

// ProcessTask handles project:save tasks
func (w *ProjectWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ProjectSavePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	log.Printf("[ProjectWorker] saving project %s", payload.ProjectID)

	project, err := w.projects.Load(ctx, payload.ProjectID)
	if errors.Is(err, service.ErrProjectNotFound) {
		log.Printf("[ProjectWorker] project %s was deleted, skipping", payload.ProjectID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load project %s: %w", payload.ProjectID, err)
	}
	if project.Status == model.ProjectStatusSaved {
		return nil
	}

	frames, keys, err := w.uploadFrames(ctx, project)
	if err != nil {
		w.projects.MarkFailed(ctx, project, fmt.Sprintf("asset upload failed: %v", err))
		w.notify(project, model.ProjectStatusFailed)
		return err
	}

	err = w.projects.MarkSaved(ctx, project, frames, keys)
	if errors.Is(err, service.ErrProjectNotFound) {
		log.Printf("[ProjectWorker] project %s was deleted during upload, removing %d assets", project.ID, len(keys))
		w.discard(ctx, keys)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to complete project %s: %w", project.ID, err)
	}

	log.Printf("[ProjectWorker] project %s saved (%d assets)", project.ID, len(keys))
	w.notify(project, model.ProjectStatusSaved)
	return nil
}

// uploadFrames uploads every inline frame image in parallel and returns the
// frames rewritten to point at their stored copies.
func (w *ProjectWorker) uploadFrames(ctx context.Context, project *model.Project) ([]model.Frame, []string, error) {
	frames := make([]model.Frame, len(project.Frames))
	copy(frames, project.Frames)

	if w.storage == nil {
		return frames, nil, nil
	}

	keys := make([]string, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i := range frames {
		if !model.IsDataURI(frames[i].ImageURL) {
			continue
		}
		i := i
		g.Go(func() error {
			mediaType, data, err := model.DecodeDataURI(frames[i].ImageURL)
			if err != nil {
				return fmt.Errorf("frame %d: %w", frames[i].Index, err)
			}

			key := client.FrameAssetKey(project.UserID, project.ID, frames[i].Index, extensionFor(mediaType))
			url, err := w.storage.Upload(gctx, key, bytes.NewReader(data), mediaType)
			if err != nil {
				return fmt.Errorf("frame %d: %w", frames[i].Index, err)
			}

			frames[i].ImageURL = url
			keys[i] = key
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	uploaded := keys[:0]
	for _, k := range keys {
		if k != "" {
			uploaded = append(uploaded, k)
		}
	}
	return frames, uploaded, nil
}

// discard removes uploads that no project refers to
func (w *ProjectWorker) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := w.storage.Delete(ctx, key); err != nil {
			log.Printf("[ProjectWorker] failed to delete orphaned asset %s: %v", key, err)
		}
	}
}

func (w *ProjectWorker) notify(project *model.Project, status model.ProjectStatus) {
	if w.recorder != nil {
		w.recorder.ObserveProjectSave(string(status))
	}
	if w.notifier != nil {
		w.notifier.BroadcastProject(project.UserID, project.ID, status)
	}
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
