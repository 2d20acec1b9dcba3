package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cinder/storyboard/internal/model"
)

func newShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Print a saved storyboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadStoryboard(args[0])
			if err != nil {
				return app.fail(err)
			}

			newRenderer(app.Out).Storyboard(model.Snapshot{
				Phase:   model.PhaseResult,
				StoryID: r.StoryID,
				Prompt:  r.Prompt,
				Style:   r.Style,
				Frames:  r.Frames,
			})
			return nil
		},
	}
}

func parseIndices(args []string) ([]int, error) {
	indices := make([]int, 0, len(args))
	for _, a := range args {
		i, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid frame index %q", a)
		}
		indices = append(indices, i)
	}
	return indices, nil
}
