package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/storyboard"
)

func newGenerateCommand(app *App) *cobra.Command {
	var (
		style      string
		frames     int
		animate    []int
		animateAll bool
		save       string
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate a storyboard from a prompt",
		Long: `Generate a narrated storyboard and print its frames.
Frames listed with --animate are animated once the storyboard is ready.

Example:
  storyctl generate "a lighthouse keeper's last night" --frames 6 --style watercolor --save keeper.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, closeSession := app.newOrchestrator()
			defer closeSession()

			if err := o.StartGeneration(strings.Join(args, " "), style, frames); err != nil {
				return app.fail(err)
			}
			o.Wait()

			snap := o.Snapshot()
			if snap.Phase != model.PhaseResult {
				return app.fail(errors.New(snap.LastError))
			}

			return app.finish(o, animate, animateAll, save)
		},
	}

	cmd.Flags().StringVarP(&style, "style", "s", string(model.DefaultStyle), "visual style")
	cmd.Flags().IntVarP(&frames, "frames", "n", 4, "number of frames (1-15)")
	cmd.Flags().IntSliceVarP(&animate, "animate", "a", nil, "frame indices to animate")
	cmd.Flags().BoolVar(&animateAll, "animate-all", false, "animate every frame")
	cmd.Flags().StringVarP(&save, "save", "o", "", "write the storyboard to this YAML file")

	return cmd
}

// finish animates the requested frames, prints the storyboard and saves it.
// Failed animations are reported through the exit code after saving.
func (app *App) finish(o *storyboard.Orchestrator, indices []int, all bool, save string) error {
	failed, err := animateFrames(o, indices, all)
	if err != nil {
		return app.fail(err)
	}

	snap := o.Snapshot()
	newRenderer(app.Out).Storyboard(snap)

	if save != "" {
		if err := saveStoryboard(save, snap); err != nil {
			return app.fail(err)
		}
		app.printf("saved to %s\n", save)
	}

	if failed > 0 {
		return NewExitError(ExitFailed)
	}
	return nil
}

// animateFrames requests every index concurrently and waits for all of them.
// It returns how many ended up Failed.
func animateFrames(o *storyboard.Orchestrator, indices []int, all bool) (int, error) {
	if all {
		indices = indices[:0]
		for _, f := range o.Snapshot().Frames {
			if f.AnimationStatus.CanAnimate() {
				indices = append(indices, f.Index)
			}
		}
	}
	if len(indices) == 0 {
		return 0, nil
	}

	for _, i := range indices {
		if err := o.RequestAnimation(i); err != nil {
			o.Wait()
			return 0, err
		}
	}
	o.Wait()

	snap := o.Snapshot()
	failed := 0
	for _, i := range indices {
		if f, ok := snap.Frame(i); ok && f.AnimationStatus == model.AnimationFailed {
			failed++
		}
	}
	return failed, nil
}
