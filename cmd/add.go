package cmd

import (
	"fmt"
	"net/url"
	"path"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/fetchq/internal/engine"
	"github.com/NamanBalaji/fetchq/internal/errors"
	"github.com/NamanBalaji/fetchq/internal/task"
)

var (
	addFilename string
	addDir      string
	addPriority string
)

var addCmd = &cobra.Command{
	Use:   "add URL",
	Short: "Submit a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL := args[0]

		filename := addFilename
		if filename == "" {
			filename = filenameFromURL(rawURL)
		}

		return withEngine(func(eng *engine.Engine) error {
			id, err := eng.Add(task.Request{
				URL:      rawURL,
				Filename: filename,
				Dir:      addDir,
				Priority: task.ParsePriority(addPriority),
			})
			if errors.IsValidation(err) {
				return fmt.Errorf("rejected: %w", err)
			}
			if err != nil {
				return err
			}

			fmt.Printf("added %s\n", id)

			return nil
		})
	},
}

// filenameFromURL derives a filename from the URL path; the caller can
// always override with --filename.
func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	name := path.Base(u.Path)
	if name == "/" || name == "." {
		return ""
	}

	return name
}

func init() {
	addCmd.Flags().StringVarP(&addFilename, "filename", "f", "", "Target filename (defaults to the URL basename)")
	addCmd.Flags().StringVarP(&addDir, "dir", "d", "", "Target directory (defaults to the configured download dir)")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "normal", "Priority: high, normal or low")
	RootCmd.AddCommand(addCmd)
}
