package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHealthCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the story backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checker, ok := app.NewGenerator(app.backend).(HealthChecker)
			if !ok {
				return app.fail(fmt.Errorf("backend client cannot report health"))
			}

			timeout := app.backend.Timeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := checker.HealthCheck(ctx); err != nil {
				return app.fail(err)
			}
			app.printf("backend %s is healthy\n", app.backend.BaseURL)
			return nil
		},
	}
}

func (app *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(app.Out, format, args...)
}
