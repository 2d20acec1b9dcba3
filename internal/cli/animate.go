package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newAnimateCommand(app *App) *cobra.Command {
	var (
		all bool
		out string
	)

	cmd := &cobra.Command{
		Use:   "animate <file> [index...]",
		Short: "Animate frames of a saved storyboard",
		Long: `Load a storyboard saved with --save, animate the given frames and
write the result back. Failed frames can be retried the same way.

Example:
  storyctl animate keeper.yaml 0 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			indices, err := parseIndices(args[1:])
			if err != nil {
				return app.fail(err)
			}
			if len(indices) == 0 && !all {
				return app.fail(errors.New("no frames to animate: pass indices or --all"))
			}

			restoration, err := loadStoryboard(path)
			if err != nil {
				return app.fail(err)
			}

			o, closeSession := app.newOrchestrator()
			defer closeSession()

			if err := o.Restore(restoration); err != nil {
				return app.fail(err)
			}

			if out == "" {
				out = path
			}
			return app.finish(o, indices, all, out)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "animate every frame that is not animated yet")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of overwriting the input")

	return cmd
}
