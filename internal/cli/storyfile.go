package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/storyboard"
)

// storyFile is the on-disk form of a storyboard
type storyFile struct {
	StoryID string        `yaml:"storyId"`
	Prompt  string        `yaml:"prompt"`
	Style   string        `yaml:"style"`
	SavedAt time.Time     `yaml:"savedAt"`
	Frames  []model.Frame `yaml:"frames"`
}

// saveStoryboard writes the frames of snap to path
func saveStoryboard(path string, snap model.Snapshot) error {
	data, err := yaml.Marshal(storyFile{
		StoryID: snap.StoryID,
		Prompt:  snap.Prompt,
		Style:   snap.Style,
		SavedAt: time.Now().UTC().Truncate(time.Second),
		Frames:  snap.Frames,
	})
	if err != nil {
		return fmt.Errorf("failed to encode storyboard: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// loadStoryboard reads a storyboard written by saveStoryboard
func loadStoryboard(path string) (storyboard.Restoration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return storyboard.Restoration{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f storyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return storyboard.Restoration{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(f.Frames) == 0 {
		return storyboard.Restoration{}, fmt.Errorf("%s has no frames", path)
	}

	return storyboard.Restoration{
		StoryID: f.StoryID,
		Prompt:  f.Prompt,
		Style:   f.Style,
		Frames:  f.Frames,
	}, nil
}
