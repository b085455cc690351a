package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fetchq/internal/engine"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate download statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			s := eng.Stats()

			fmt.Printf("tasks: %d (pending %d, downloading %d, paused %d, completed %d, failed %d)\n",
				s.Total(), s.Pending, s.Downloading, s.Paused, s.Completed, s.Failed)
			fmt.Printf("bytes: %d of %d\n", s.DownloadedSize, s.TotalSize)
			fmt.Printf("speed: %.2f MB/s, progress of active: %.1f%%\n",
				float64(s.TotalSpeed)/(1024*1024), s.TotalProgress*100)

			return nil
		})
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
}
