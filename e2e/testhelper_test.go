package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/cinder/storyboard/internal/auth"
	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/config"
	"github.com/cinder/storyboard/internal/metrics"
	"github.com/cinder/storyboard/internal/mockbackend"
	"github.com/cinder/storyboard/internal/server"
	"github.com/cinder/storyboard/internal/service"
	ws "github.com/cinder/storyboard/internal/websocket"
	"github.com/cinder/storyboard/internal/worker"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app        *fiber.App
	backendURL string
	storage    *memoryStorage
	redis      *miniredis.Miniredis
}

// setupApp builds the gateway exactly as cmd/server does, against an
// in-process mock backend, miniredis and in-memory storage.
func setupApp(t *testing.T) *testApp {
	return setupAppWith(t, mockbackend.Options{Seed: 1})
}

func setupAppWith(t *testing.T, backendOpts mockbackend.Options) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	backendURL := serveBackend(t, backendOpts)

	cfg := &config.Config{
		Server:  config.ServerConfig{LogLevel: "info"},
		JWT:     config.JWTConfig{Secret: testJWTSecret, Expiration: 24},
		Backend: config.BackendConfig{BaseURL: backendURL, Timeout: 10},
		Auth:    config.AuthConfig{AllowGuests: true},
		// Use very high rate limits so tests don't get blocked
		RateLimit: config.RateLimitConfig{GeneratePerHour: 10000, AnimatePerHour: 10000, ProjectPerHour: 10000},
	}

	hub := ws.NewHub()
	go hub.Run()

	m := metrics.New()
	storage := newMemoryStorage()

	storyboards := service.NewStoryboardService(m.Instrument(client.NewStoryClient(&cfg.Backend)), hub, time.Hour).WithRecorder(m)
	t.Cleanup(storyboards.Shutdown)
	m.TrackSessions(storyboards.ActiveSessions)

	queue := &inlineQueue{}
	projects := service.NewProjectService(redisClient, queue, storage)
	queue.worker = worker.NewProjectWorker(projects, storage, hub).WithRecorder(m)

	app := server.New(server.Deps{
		Config:      cfg,
		Redis:       redisClient,
		Storyboards: storyboards,
		Projects:    projects,
		Hub:         hub,
		Storage:     storage,
		Metrics:     m,
	})

	return &testApp{app: app, backendURL: backendURL, storage: storage, redis: mr}
}

// serveBackend runs the mock story backend on a loopback port
func serveBackend(t *testing.T, opts mockbackend.Options) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	app := mockbackend.New(opts).App()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "http://" + ln.Addr().String()
}

// inlineQueue runs project:save tasks synchronously instead of through Redis
type inlineQueue struct {
	worker *worker.ProjectWorker
}

func (q *inlineQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if err := q.worker.ProcessTask(context.Background(), task); err != nil {
		return nil, err
	}
	return &asynq.TaskInfo{ID: uuid.NewString(), Type: task.Type()}, nil
}

// memoryStorage is an in-memory client.StorageClient
type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (s *memoryStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return s.PublicURL(key), nil
}

func (s *memoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStorage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return s.PublicURL(key) + "?signed=1", nil
}

func (s *memoryStorage) PublicURL(key string) string {
	return "https://assets.test/" + key
}

func (s *memoryStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueLegacyToken(userID, userID+"@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request as testUserID.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, testUserID),
	})
}

// mustAuthRequest is doAuthRequest that fails the test on transport errors.
func mustAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doAuthRequest(t, app, method, path, body)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// decodeJSON parses response body into v.
func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.NewDecoder(bytes.NewReader([]byte(body))).Decode(v); err != nil {
		t.Fatalf("failed to decode JSON: %v\nbody: %s", err, body)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func generateBody(prompt, style string, frames int) string {
	return fmt.Sprintf(`{"prompt": %q, "style": %q, "frameCount": %d}`, prompt, style, frames)
}
