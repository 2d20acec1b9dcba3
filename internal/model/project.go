package model

import "time"

// ProjectStatus tracks asset persistence for a saved storyboard
type ProjectStatus string

const (
	ProjectStatusPending ProjectStatus = "pending"
	ProjectStatusSaved   ProjectStatus = "saved"
	ProjectStatusFailed  ProjectStatus = "failed"
)

// Project is a storyboard persisted to the user's library
type Project struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Title     string        `json:"title"`
	StoryID   string        `json:"storyId,omitempty"`
	Prompt    string        `json:"prompt"`
	Style     string        `json:"style"`
	Frames    []Frame       `json:"frames"`
	Status    ProjectStatus `json:"status"`
	Error     *string       `json:"error,omitempty"`
	AssetKeys []string      `json:"assetKeys,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	SavedAt   *time.Time    `json:"savedAt,omitempty"`
}

// ProjectSaveRequest is the body of POST /api/projects
type ProjectSaveRequest struct {
	Title string `json:"title" validate:"required,max=120"`
}

// ProjectSaveResponse is returned when a save has been queued
type ProjectSaveResponse struct {
	ProjectID string        `json:"projectId"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// ProjectSummary is a library entry without frame payloads
type ProjectSummary struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Style      string        `json:"style"`
	FrameCount int           `json:"frameCount"`
	CoverImage string        `json:"coverImage,omitempty"`
	Status     ProjectStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Summary builds the library view of p
func (p *Project) Summary() ProjectSummary {
	s := ProjectSummary{
		ID:         p.ID,
		Title:      p.Title,
		Style:      p.Style,
		FrameCount: len(p.Frames),
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
	}
	if len(p.Frames) > 0 && !IsDataURI(p.Frames[0].ImageURL) {
		s.CoverImage = p.Frames[0].ImageURL
	}
	return s
}

// ProjectSavePayload is the asynq payload of a project:save task
type ProjectSavePayload struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}
