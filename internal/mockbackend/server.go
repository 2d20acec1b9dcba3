// Package mockbackend is a stand-in for the story generation backend. It
// speaks the same HTTP contract with canned narratives and solid-colour
// frames, so the gateway and CLI can run without GPUs.
package mockbackend

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/model"
)

// ImageSize is the edge length of generated frames
const ImageSize = 512

// Options tune the mock's behaviour
type Options struct {
	// Latency is added to every generation and animation call
	Latency time.Duration
	// FailRate is the probability in [0,1] that a call answers 500
	FailRate float64
	// Seed makes failure injection reproducible; 0 uses the clock
	Seed int64
	// PublicURL, when set, makes /animate-frame answer with an absolute
	// videoUrl instead of a bare filename
	PublicURL string
}

// Server implements /generate-story and /animate-frame
type Server struct {
	opts Options

	mu  sync.Mutex
	rng *rand.Rand

	images sync.Map // frame index -> data URI
	videos sync.Map // filename -> struct{}
}

func New(opts Options) *Server {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// App builds the fiber application
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: errorHandler,
	})

	app.Get("/", s.root)
	app.Get("/health", s.health)
	app.Post("/generate-story", s.generateStory)
	app.Post("/animate-frame", s.animateFrame)
	app.Get("/videos/:filename", s.video)

	return app
}

func (s *Server) root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "storyboard mock backend",
		"status":  "running",
		"mode":    "mock",
	})
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"mock_mode": true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) generateStory(c *fiber.Ctx) error {
	var req client.GenerateStoryRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.FrameCount < model.MinFrameCount || req.FrameCount > model.MaxFrameCount {
		return detail(c, fiber.StatusBadRequest,
			fmt.Sprintf("frameCount must be between %d and %d", model.MinFrameCount, model.MaxFrameCount))
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return detail(c, fiber.StatusBadRequest, "prompt is required")
	}

	if err := s.simulate(); err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}

	log.Printf("[Mock] generating %d frames for user %s: %q (%s)", req.FrameCount, req.UserID, req.Prompt, req.Style)

	narratives := Narratives(req.Prompt)
	frames := make([]client.GeneratedFrame, req.FrameCount)
	for i := range frames {
		img, err := s.frameImage(i)
		if err != nil {
			return detail(c, fiber.StatusInternalServerError, fmt.Sprintf("failed to render frame %d: %v", i, err))
		}
		frames[i] = client.GeneratedFrame{
			Index:     i,
			Narration: narratives[i%len(narratives)],
			ImageURL:  img,
		}
	}

	return c.JSON(client.GenerateStoryResponse{
		Status:  "success",
		StoryID: fmt.Sprintf("%s_%s", req.UserID, strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		Frames:  frames,
	})
}

func (s *Server) animateFrame(c *fiber.Ctx) error {
	var req client.AnimateFrameRequest
	if err := c.BodyParser(&req); err != nil {
		return detail(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.ImageURL == "" {
		return detail(c, fiber.StatusBadRequest, "imageUrl is required")
	}

	if err := s.simulate(); err != nil {
		return detail(c, fiber.StatusInternalServerError, err.Error())
	}

	filename := uuid.NewString() + ".mp4"
	s.videos.Store(filename, struct{}{})

	resp := client.AnimateFrameResponse{Filename: filename}
	if s.opts.PublicURL != "" {
		resp.VideoURL = strings.TrimRight(s.opts.PublicURL, "/") + "/videos/" + filename
	}
	return c.JSON(resp)
}

func (s *Server) video(c *fiber.Ctx) error {
	filename := c.Params("filename")
	if _, ok := s.videos.Load(filename); !ok {
		return detail(c, fiber.StatusNotFound, "video not found")
	}
	c.Set(fiber.HeaderContentType, "video/mp4")
	return c.Send(placeholderClip)
}

// simulate applies configured latency and failure injection
func (s *Server) simulate() error {
	if s.opts.Latency > 0 {
		time.Sleep(s.opts.Latency)
	}
	if s.opts.FailRate <= 0 {
		return nil
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < s.opts.FailRate {
		return fmt.Errorf("model overloaded")
	}
	return nil
}

// frameImage returns the data URI of frame i's placeholder image: a solid
// fill with the frame number in the bottom-left corner
func (s *Server) frameImage(i int) (string, error) {
	if v, ok := s.images.Load(i); ok {
		return v.(string), nil
	}

	img := image.NewRGBA(image.Rect(0, 0, ImageSize, ImageSize))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: FrameColor(i)}, image.Point{}, draw.Src)

	label := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(16, ImageSize-16),
	}
	label.DrawString(fmt.Sprintf("FRAME %d", i+1))

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	uri := model.EncodeDataURI("image/png", buf.Bytes())
	s.images.Store(i, uri)
	return uri, nil
}

// Narratives are the canned story beats; the first one carries the prompt
func Narratives(prompt string) []string {
	return []string{
		fmt.Sprintf("Our story begins with %s. The air was filled with anticipation as the journey into the unknown woods was about to start.", prompt),
		"Deeper into the forest, the trees began to glow with a mysterious light. The path twisted and turned, leading further into the magic.",
		"Suddenly, a brilliant light caught the eye! Hidden among the ancient roots lay the object of the quest, pulsating with energy.",
		"With the treasure found, peace returned to the land. The adventure had come to a happy end, leaving memories that would last forever.",
	}
}

var palette = []color.RGBA{
	{R: 50, G: 150, B: 50, A: 255},
	{R: 40, G: 90, B: 160, A: 255},
	{R: 200, G: 140, B: 40, A: 255},
	{R: 170, G: 60, B: 90, A: 255},
	{R: 90, G: 60, B: 150, A: 255},
}

// FrameColor is the fill colour of frame i
func FrameColor(i int) color.RGBA {
	return palette[i%len(palette)]
}

// placeholderClip is served for every issued filename. It is an mp4 header only.
var placeholderClip = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")

// detail writes a FastAPI-style error body
func detail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"detail": msg})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return detail(c, code, err.Error())
}
