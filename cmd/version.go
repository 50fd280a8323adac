package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/quill/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the quill version, git commit, build time, Go version and
target platform.

Examples:
  quill version                  # Show version details
  quill version --short          # Show version only
  quill version --format json    # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	info := version.Get()
	out := cmd.OutOrStdout()

	switch versionFormat {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case "text":
		if versionShort {
			fmt.Fprintln(out, info.Short())
			return nil
		}
		fmt.Fprintf(out, "quill %s\n%s\n", info.Short(), info)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
}
