package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cinder/storyboard/internal/config"
	"github.com/cinder/storyboard/internal/model"
)

// StoryGenerator defines the story backend operations
type StoryGenerator interface {
	GenerateStory(ctx context.Context, req *GenerateStoryRequest) (*GenerateStoryResponse, error)
	AnimateFrame(ctx context.Context, req *AnimateFrameRequest) (*AnimateFrameResponse, error)
}

// StoryClient implements StoryGenerator over the backend HTTP API
type StoryClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// GenerateStoryRequest represents the body of POST /generate-story
type GenerateStoryRequest struct {
	UserID     string `json:"userId"`
	Prompt     string `json:"prompt"`
	Style      string `json:"style"`
	FrameCount int    `json:"frameCount"`
}

// GeneratedFrame is a frame as returned by the backend
type GeneratedFrame struct {
	Index     int    `json:"index"`
	Narration string `json:"narration"`
	ImageURL  string `json:"imageUrl"`
}

// GenerateStoryResponse represents the response from story generation
type GenerateStoryResponse struct {
	Status  string           `json:"status"`
	StoryID string           `json:"storyId"`
	Frames  []GeneratedFrame `json:"frames"`
}

// AnimateFrameRequest represents the body of POST /animate-frame
type AnimateFrameRequest struct {
	ImageURL  string `json:"imageUrl"`
	Narration string `json:"narration"`
}

// AnimateFrameResponse carries the clip location. Older backends only
// return a filename served under /videos.
type AnimateFrameResponse struct {
	VideoURL string `json:"videoUrl,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// NewStoryClient creates a new story backend client
func NewStoryClient(cfg *config.BackendConfig) *StoryClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	return &StoryClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
	}
}

// GenerateStory requests a complete storyboard. The frame list is all-or-nothing.
func (c *StoryClient) GenerateStory(ctx context.Context, req *GenerateStoryRequest) (*GenerateStoryResponse, error) {
	var result GenerateStoryResponse
	if err := c.post(ctx, "generate-story", "/generate-story", req, &result); err != nil {
		return nil, err
	}
	if result.Status != "" && result.Status != "success" {
		return nil, &ServerError{Op: "generate-story", Status: http.StatusOK, Body: fmt.Sprintf("backend reported status %q", result.Status)}
	}
	return &result, nil
}

// AnimateFrame converts one still frame into a narrated clip
func (c *StoryClient) AnimateFrame(ctx context.Context, req *AnimateFrameRequest) (*AnimateFrameResponse, error) {
	var result AnimateFrameResponse
	if err := c.post(ctx, "animate-frame", "/animate-frame", req, &result); err != nil {
		return nil, err
	}

	if result.VideoURL == "" {
		if result.Filename == "" {
			return nil, &ServerError{Op: "animate-frame", Status: http.StatusOK, Body: "response has neither videoUrl nor filename"}
		}
		result.VideoURL = c.VideoURL(result.Filename)
	}

	return &result, nil
}

// VideoURL resolves a backend filename to its public location
func (c *StoryClient) VideoURL(filename string) string {
	return fmt.Sprintf("%s/videos/%s", c.baseURL, url.PathEscape(filename))
}

// HealthCheck checks if the story backend is reachable
func (c *StoryClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewNetworkError("health", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("story backend unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// IsConfigured returns true if the client has a backend to talk to
func (c *StoryClient) IsConfigured() bool {
	return c.baseURL != ""
}

// post sends a POST request with JSON body and parses the response
func (c *StoryClient) post(ctx context.Context, op, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(op, req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *StoryClient) doRequest(op string, req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Story API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Story API] ✗ %s %s: request failed: %v", req.Method, req.URL.String(), err)
		return NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Story API] ✗ %s %s: failed to read response: %v", req.Method, req.URL.String(), err)
		return NewNetworkError(op, fmt.Errorf("failed to read response: %w", err))
	}

	// Frames carry inline images; only log the size.
	log.Printf("[Story API] ← %d %s %s (%d bytes)", resp.StatusCode, req.Method, req.URL.String(), len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServerError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Story API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.String(), err)
		return &ServerError{Op: op, Status: resp.StatusCode, Body: fmt.Sprintf("undecodable response: %v", err)}
	}

	return nil
}

// ToFrames converts backend frames into Static storyboard frames.
func (r *GenerateStoryResponse) ToFrames() []model.Frame {
	frames := make([]model.Frame, 0, len(r.Frames))
	for _, f := range r.Frames {
		frames = append(frames, model.Frame{
			Index:           f.Index,
			Narration:       f.Narration,
			ImageURL:        f.ImageURL,
			AnimationStatus: model.AnimationStatic,
		})
	}
	return frames
}
