// Package cli implements storyctl, a terminal front end for the storyboard
// orchestrator. It drives a local orchestrator against the story backend and
// keeps storyboards in YAML files between runs.
package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/config"
	"github.com/cinder/storyboard/internal/storyboard"
)

// BackendOptions locate the story backend
type BackendOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HealthChecker is implemented by generators that can check their backend
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// App holds the dependencies shared by every command
type App struct {
	Out io.Writer
	Err io.Writer

	// NewGenerator builds the backend client once flags are parsed
	NewGenerator func(opts BackendOptions) client.StoryGenerator

	backend BackendOptions
	userID  string
	verbose bool
}

// NewApp creates an App writing to stdout/stderr and talking HTTP to the
// backend described by cfg.
func NewApp(cfg *config.BackendConfig) *App {
	return &App{
		Out: os.Stdout,
		Err: os.Stderr,
		NewGenerator: func(opts BackendOptions) client.StoryGenerator {
			return client.NewStoryClient(&config.BackendConfig{
				BaseURL: opts.BaseURL,
				APIKey:  opts.APIKey,
				Timeout: int(opts.Timeout / time.Second),
			})
		},
		backend: BackendOptions{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// NewRootCommand builds the storyctl command tree
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "storyctl",
		Short: "Generate and animate storyboards",
		Long: `storyctl generates a narrated storyboard from a prompt, animates
individual frames and keeps the result in a YAML file.

Example:
  storyctl generate "a robot in a neon city" --style anime --frames 4 --animate 0 --save robot.yaml
  storyctl animate robot.yaml 2 3
  storyctl show robot.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !app.verbose {
				log.SetOutput(io.Discard)
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.backend.BaseURL, "backend", app.backend.BaseURL, "story backend base URL")
	flags.StringVar(&app.backend.APIKey, "api-key", app.backend.APIKey, "story backend API key")
	flags.DurationVar(&app.backend.Timeout, "timeout", app.backend.Timeout, "per-call backend timeout")
	flags.StringVar(&app.userID, "user", "storyctl", "user id sent with generation requests")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "log backend traffic to stderr")

	root.AddCommand(
		newGenerateCommand(app),
		newAnimateCommand(app),
		newShowCommand(app),
		newHealthCommand(app),
	)

	return root
}

// ExecuteResult is the outcome of one CLI invocation
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// Run executes the command tree with args
func Run(app *App, args []string) ExecuteResult {
	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(app.Out)
	root.SetErr(app.Err)

	if err := root.Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		fmt.Fprintf(app.Err, "Error: %v\n", err)
		return ExecuteResult{ExitCode: ExitFailed, Err: err}
	}
	return ExecuteResult{}
}

// Execute runs storyctl with the process arguments and exits
func Execute(app *App) {
	os.Exit(Run(app, os.Args[1:]).ExitCode)
}

// newOrchestrator opens a local session and streams its transitions to Out
func (app *App) newOrchestrator() (*storyboard.Orchestrator, func()) {
	o := storyboard.New(storyboard.Session{UserID: app.userID}, app.NewGenerator(app.backend))
	r := newRenderer(app.Out)
	unsubscribe := o.Subscribe(r.Progress)

	return o, func() {
		unsubscribe()
		o.Close()
	}
}

// fail reports err and converts it into an exit code
func (app *App) fail(err error) error {
	fmt.Fprintf(app.Err, "Error: %v\n", err)
	if storyboard.IsValidationError(err) {
		return NewExitError(ExitInvalid)
	}
	return NewExitError(ExitFailed)
}
