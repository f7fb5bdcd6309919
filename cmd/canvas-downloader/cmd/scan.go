package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-canvas-download/internal/extractor"
	"go-canvas-download/internal/helpers"
	"go-canvas-download/internal/models"
)

var (
	pageURLFlag       string
	searchFlag        string
	scanJSONFlag      bool
	scanConfirmedFlag bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <page.html|url|->",
	Short: "List the presentations linked from a modules page",
	Long: `Parses a Canvas modules page and lists every linked file that looks like a
presentation. Items marked "pending" only reveal their type once resolved and
are checked again before downloading.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	addPageFlags(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSONFlag, "json", false, "Print the extraction result as JSON")
	scanCmd.Flags().BoolVar(&scanConfirmedFlag, "confirmed-only", false, "Hide candidates that still need a type check")
}

// addPageFlags registers the flags shared by commands that read a modules page.
func addPageFlags(c *cobra.Command) {
	c.Flags().StringVar(&pageURLFlag, "page-url", "", "Address a saved page was loaded from, used to resolve relative links")
	c.Flags().StringVarP(&searchFlag, "search", "s", "", "Only keep candidates whose title, filename or type contains every word")
}

func runScan(cmd *cobra.Command, args []string) error {
	client := newAPIClient()
	page, err := loadPage(cmd.Context(), client.Fetch, cmd.InOrStdin(), args[0], pageURLFlag)
	if err != nil {
		return err
	}

	res, err := selectCandidates(page, searchFlag, scanConfirmedFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if scanJSONFlag {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printCandidates(out, res.Files)
}

func printCandidates(out io.Writer, files []models.CandidateFile) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, f := range files {
		label := helpers.ChipLabel(f.Type, f.Filename)
		if label == "" {
			label = "?"
		}
		state := ""
		if f.NeedsTypeCheck {
			state = "pending"
		}
		fmt.Fprintf(tw, "%d\t[%s]\t%s\t%s\t%s\n", i+1, label, f.Title, f.Filename, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out, extractor.Summary(files))
	return err
}
