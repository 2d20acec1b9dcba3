package e2e

import (
	"net/http"
	"strings"
	"testing"

	"github.com/cinder/storyboard/internal/model"
)

func saveProject(t *testing.T, ta *testApp, title string) model.ProjectSaveResponse {
	t.Helper()
	resp := mustAuthRequest(t, ta.app, http.MethodPost, "/api/projects", `{"title": "`+title+`"}`)
	assertStatus(t, resp, http.StatusAccepted)

	var saved model.ProjectSaveResponse
	decodeJSON(t, resp, &saved)
	if saved.ProjectID == "" {
		t.Fatal("expected a project id")
	}
	return saved
}

func getProject(t *testing.T, ta *testApp, id string) model.Project {
	t.Helper()
	resp := mustAuthRequest(t, ta.app, http.MethodGet, "/api/projects/"+id, "")
	assertStatus(t, resp, http.StatusOK)

	var project model.Project
	decodeJSON(t, resp, &project)
	return project
}

func TestProjects_SaveWithoutResult(t *testing.T) {
	ta := setupApp(t)

	resp := mustAuthRequest(t, ta.app, http.MethodPost, "/api/projects", `{"title": "Empty"}`)
	assertStatus(t, resp, http.StatusConflict)
	if code := errorCode(t, resp); code != "INVALID_STATE" {
		t.Errorf("expected INVALID_STATE, got %s", code)
	}
}

func TestProjects_SaveValidation(t *testing.T) {
	ta := setupApp(t)
	generateResult(t, ta, 2)

	resp := mustAuthRequest(t, ta.app, http.MethodPost, "/api/projects", `{"title": ""}`)
	assertStatus(t, resp, http.StatusBadRequest)

	resp = mustAuthRequest(t, ta.app, http.MethodPost, "/api/projects", `{"title": "`+strings.Repeat("x", 121)+`"}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestProjects_SaveUploadsFrames(t *testing.T) {
	ta := setupApp(t)
	generateResult(t, ta, 3)

	saved := saveProject(t, ta, "Neon Robot")

	project := getProject(t, ta, saved.ProjectID)
	if project.Status != model.ProjectStatusSaved {
		t.Fatalf("expected status saved, got %s", project.Status)
	}
	if project.Title != "Neon Robot" || project.Style != "anime" {
		t.Errorf("unexpected project metadata: %q %q", project.Title, project.Style)
	}
	if len(project.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(project.Frames))
	}
	for _, f := range project.Frames {
		if !strings.HasPrefix(f.ImageURL, "https://assets.test/") {
			t.Errorf("frame %d: expected stored image, got %.40q", f.Index, f.ImageURL)
		}
	}
	if got := ta.storage.count(); got != 3 {
		t.Errorf("expected 3 stored assets, got %d", got)
	}

	resp := mustAuthRequest(t, ta.app, http.MethodGet, "/api/projects", "")
	assertStatus(t, resp, http.StatusOK)
	var list struct {
		Projects []model.ProjectSummary `json:"projects"`
	}
	decodeJSON(t, resp, &list)
	if len(list.Projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(list.Projects))
	}
	summary := list.Projects[0]
	if summary.ID != saved.ProjectID || summary.FrameCount != 3 || summary.Status != model.ProjectStatusSaved {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.CoverImage != project.Frames[0].ImageURL {
		t.Errorf("expected cover %q, got %q", project.Frames[0].ImageURL, summary.CoverImage)
	}
}

func TestProjects_SaveKeepsAnimation(t *testing.T) {
	ta := setupApp(t)
	generateResult(t, ta, 2)

	resp := mustAuthRequest(t, ta.app, http.MethodPost, "/api/storyboard/frames/1/animate", "")
	assertStatus(t, resp, http.StatusAccepted)
	readBody(t, resp)
	eventually(t, "frame 1 animated", func() bool {
		return getSnapshot(t, ta).Frames[1].AnimationStatus == model.AnimationAnimated
	})

	saved := saveProject(t, ta, "Animated")
	project := getProject(t, ta, saved.ProjectID)

	if project.Frames[1].AnimationStatus != model.AnimationAnimated || project.Frames[1].VideoURL == "" {
		t.Errorf("expected frame 1 to keep its clip, got %+v", project.Frames[1])
	}
	if project.Frames[0].AnimationStatus != model.AnimationStatic {
		t.Errorf("expected frame 0 static, got %s", project.Frames[0].AnimationStatus)
	}
}

func TestProjects_Restore(t *testing.T) {
	ta := setupApp(t)
	original := generateResult(t, ta, 3)
	saved := saveProject(t, ta, "Round trip")

	// Restoring over an open storyboard is rejected
	resp := mustAuthRequest(t, ta.app, http.MethodPost, "/api/storyboard/restore/"+saved.ProjectID, "")
	assertStatus(t, resp, http.StatusConflict)

	resp = mustAuthRequest(t, ta.app, http.MethodPost, "/api/storyboard/reset", "")
	assertStatus(t, resp, http.StatusOK)
	readBody(t, resp)

	resp = mustAuthRequest(t, ta.app, http.MethodPost, "/api/storyboard/restore/"+saved.ProjectID, "")
	assertStatus(t, resp, http.StatusOK)

	var snap model.Snapshot
	decodeJSON(t, resp, &snap)
	if snap.Phase != model.PhaseResult {
		t.Fatalf("expected phase result, got %s", snap.Phase)
	}
	if snap.StoryID != original.StoryID || snap.Prompt != original.Prompt {
		t.Errorf("restored %q/%q, want %q/%q", snap.StoryID, snap.Prompt, original.StoryID, original.Prompt)
	}
	if len(snap.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(snap.Frames))
	}
	if !strings.HasPrefix(snap.Frames[0].ImageURL, "https://assets.test/") {
		t.Errorf("expected restored frames to reference stored images")
	}

	// Restored frames animate like generated ones
	resp = mustAuthRequest(t, ta.app, http.MethodPost, "/api/storyboard/frames/0/animate", "")
	assertStatus(t, resp, http.StatusAccepted)
	readBody(t, resp)
	eventually(t, "restored frame animated", func() bool {
		return getSnapshot(t, ta).Frames[0].AnimationStatus == model.AnimationAnimated
	})
}

func TestProjects_RestoreUnknown(t *testing.T) {
	ta := setupApp(t)

	resp := mustAuthRequest(t, ta.app, http.MethodPost, "/api/storyboard/restore/does-not-exist", "")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestProjects_Delete(t *testing.T) {
	ta := setupApp(t)
	generateResult(t, ta, 2)
	saved := saveProject(t, ta, "Short lived")

	if ta.storage.count() == 0 {
		t.Fatal("expected stored assets before delete")
	}

	resp := mustAuthRequest(t, ta.app, http.MethodDelete, "/api/projects/"+saved.ProjectID, "")
	assertStatus(t, resp, http.StatusNoContent)

	resp = mustAuthRequest(t, ta.app, http.MethodGet, "/api/projects/"+saved.ProjectID, "")
	assertStatus(t, resp, http.StatusNotFound)

	resp = mustAuthRequest(t, ta.app, http.MethodDelete, "/api/projects/"+saved.ProjectID, "")
	assertStatus(t, resp, http.StatusNotFound)

	if got := ta.storage.count(); got != 0 {
		t.Errorf("expected assets removed, %d left", got)
	}
}

func TestProjects_OwnerOnly(t *testing.T) {
	ta := setupApp(t)
	generateResult(t, ta, 2)
	saved := saveProject(t, ta, "Private")

	other := map[string]string{"Authorization": "Bearer " + generateToken(t, "someone-else")}

	resp, err := doRequest(ta.app, http.MethodGet, "/api/projects/"+saved.ProjectID, "", other)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)

	resp, err = doRequest(ta.app, http.MethodGet, "/api/projects", "", other)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if projects, _ := body["projects"].([]interface{}); len(projects) != 0 {
		t.Errorf("expected no projects for another user, got %d", len(projects))
	}
}
