package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fetchq/internal/engine"
	"github.com/NamanBalaji/fetchq/internal/task"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the queue until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(eng *engine.Engine) error {
			// Kick everything that survived the last run.
			for _, t := range eng.List() {
				if t.Status == task.StatusPaused {
					if err := eng.Resume(t.ID); err != nil {
						fmt.Printf("resume %s: %v\n", t.ID, err)
					}
				}
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					s := eng.Stats()
					fmt.Printf("\r\033[Kactive %d, pending %d, paused %d, done %d, failed %d, %.2f MB/s",
						s.Downloading, s.Pending, s.Paused, s.Completed, s.Failed,
						float64(s.TotalSpeed)/(1024*1024))

					if s.Downloading == 0 && s.Pending == 0 {
						fmt.Println("\nqueue drained")
						return nil
					}

				case sig := <-sigCh:
					fmt.Printf("\nreceived %v, shutting down\n", sig)
					return nil
				}
			}
		})
	},
}

func init() {
	RootCmd.AddCommand(runCmd)
}
