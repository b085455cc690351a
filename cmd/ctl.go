package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fetchq/internal/engine"
)

// taskCommand builds a subcommand that applies one engine operation to a
// task id. Pause, resume, cancel and retry are all best-effort: calls
// against an incompatible state are quiet no-ops.
func taskCommand(use, short string, op func(*engine.Engine, uuid.UUID) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}

			return withEngine(func(eng *engine.Engine) error {
				return op(eng, id)
			})
		},
	}
}

func init() {
	RootCmd.AddCommand(
		taskCommand("pause", "Pause a downloading task", (*engine.Engine).Pause),
		taskCommand("resume", "Resume a paused task", (*engine.Engine).Resume),
		taskCommand("cancel", "Cancel a task and discard partial output", (*engine.Engine).Cancel),
		taskCommand("retry", "Retry a failed task from scratch", (*engine.Engine).Retry),
	)
}
