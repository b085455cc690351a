package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fetchq/internal/engine"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			tasks := eng.List()
			if len(tasks) == 0 {
				fmt.Println("no tasks")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tPROGRESS\tFILE")

			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\n",
					t.ID, t.Status, t.Priority, t.Progress*100, t.Filename)
			}

			return w.Flush()
		})
	},
}

func init() {
	RootCmd.AddCommand(listCmd)
}
