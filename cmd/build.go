package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/conneroisu/quill/internal/config"
	"github.com/conneroisu/quill/internal/logging"
	"github.com/conneroisu/quill/internal/site"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Render the content directory into static HTML",
	Long: `Render every top-level markdown file of the content directory into the
output directory, together with the home document, posts.json and a copy of
content/assets.

Files with missing or invalid front matter are skipped and listed after the
summary table.

Examples:
  quill build                          # Build content/ into output/
  quill build --content posts --output public`,
	PreRunE: bindFlags,
	RunE:    runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addSiteFlags(buildCmd)
}

// addSiteFlags registers the flags shared by every command that builds.
func addSiteFlags(cmd *cobra.Command) {
	d := config.Default()
	cmd.Flags().String("content", d.Site.ContentDir, "Content directory with markdown posts")
	cmd.Flags().StringP("output", "o", d.Site.OutputDir, "Output directory")
	cmd.Flags().String("title", d.Site.Title, "Site title")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	report, err := newSiteBuilder(cfg, logger).Build(cmd.Context())
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	return printReport(cmd.OutOrStdout(), cfg.Site.OutputDir, report)
}

func newSiteBuilder(cfg *config.Config, logger logging.Logger) *site.Builder {
	return site.New(site.Options{
		Title:        cfg.Site.Title,
		ContentDir:   cfg.Site.ContentDir,
		OutputDir:    cfg.Site.OutputDir,
		HomeDocument: cfg.Server.HomeDocument,
	}, site.WithLogger(logger))
}

// printReport writes one table row per rendered post, newest first.
func printReport(w io.Writer, outputDir string, report *site.Report) error {
	table := tablewriter.NewTable(w)
	table.Header("ID", "Title", "Date", "Tags", "Page")
	for _, p := range report.Posts {
		if err := table.Append(
			fmt.Sprint(p.ID),
			p.Title,
			p.Date,
			strings.Join(p.Tags, ", "),
			p.Resource,
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nBuilt %d post(s), %d file(s) into %s in %s\n",
		len(report.Posts), len(report.Written), outputDir, report.Duration.Round(time.Millisecond))
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "Skipped %s: %s\n", s.File, s.Reason)
	}

	return nil
}
