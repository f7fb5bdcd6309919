package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-canvas-download/internal/downloader"
	"go-canvas-download/internal/models"
	"go-canvas-download/internal/paths"
	"go-canvas-download/internal/resolver"
	"go-canvas-download/internal/scheduler"
	"go-canvas-download/internal/verifier"
)

var (
	downloadConcurrencyFlag   int
	downloadConfirmedOnlyFlag bool
	downloadYesFlag           bool
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <page.html|url|->",
	Short: "Download the presentations linked from a modules page",
	Long: `Finds presentations on a Canvas modules page, resolves each link to the
real file and downloads them into SavePath/PathPattern. Module items whose type
is unknown are checked with a HEAD request first and skipped when they turn out
not to be presentations.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addPageFlags(downloadCmd)
	downloadCmd.Flags().IntVarP(&downloadConcurrencyFlag, "concurrency", "c", 0, "Number of downloads per batch, 1 to 3 (0 uses config default)")
	downloadCmd.Flags().BoolVar(&downloadConfirmedOnlyFlag, "confirmed-only", false, "Skip candidates that still need a type check (overrides config)")
	downloadCmd.Flags().BoolVarP(&downloadYesFlag, "yes", "y", false, "Skip confirmation prompt before downloading (overrides config)")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := globalConfig
	client := newAPIClient()

	page, err := loadPage(ctx, client.Fetch, cmd.InOrStdin(), args[0], pageURLFlag)
	if err != nil {
		return err
	}
	res, err := selectCandidates(page, searchFlag, cfg.Download.ConfirmedOnly)
	if err != nil {
		return err
	}

	pageAddr := ""
	if page.URL != nil {
		pageAddr = page.URL.String()
	}
	dir, err := paths.SaveDir(cfg.SavePath, cfg.PathPattern, paths.CourseData(pageAddr, page.CourseName(), time.Now()))
	if err != nil {
		return fmt.Errorf("building save directory: %w", err)
	}

	if !confirmDownload(cmd.OutOrStdout(), cmd.InOrStdin(), res.Files, dir, &cfg) {
		return nil
	}

	fileDownloader := downloader.NewDownloader(&http.Client{Transport: globalHttpTransport, Timeout: 15 * time.Minute}, client, dir)

	origin := uuid.NewString()
	writer := uilive.New()
	writer.Out = cmd.ErrOrStderr()
	writer.Start()
	board := newStatusBoard(writer, origin, res.Files)

	canvasResolver := resolver.New(client)
	sched := scheduler.New(scheduler.Deps{
		Resolver:  canvasResolver,
		Filenames: canvasResolver,
		Verifier:  verifier.New(client),
		Saver:     fileDownloader,
		Sink:      board,
	}, scheduler.WithBatchWidth(cfg.Download.Concurrency), scheduler.WithContext(ctx))

	log.Debugf("Queueing %d downloads (origin %s) into %s", len(res.Files), origin, dir)
	sched.Enqueue(items(res.Files), origin)
	waitErr := sched.Wait(ctx)
	writer.Stop()
	if waitErr != nil {
		return waitErr
	}

	succeeded, failed := board.Counts()
	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d of %d file(s) into %s\n", succeeded, len(res.Files), dir)
	for _, f := range board.Failures() {
		fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s\n", f)
	}
	if failed > 0 && succeeded == 0 {
		return fmt.Errorf("all %d downloads failed", failed)
	}
	return nil
}

// confirmDownload displays the download summary and prompts the user for confirmation.
// Returns true if the user confirms, false otherwise.
func confirmDownload(out io.Writer, in io.Reader, files []models.CandidateFile, dir string, cfg *models.Config) bool {
	if len(files) == 0 {
		log.Info("No presentations found on the page.")
		return false
	}

	if err := printCandidates(out, files); err != nil {
		log.WithError(err).Warn("Could not print candidate list")
	}
	fmt.Fprintf(out, "Target directory: %s\n", dir)

	if cfg.Download.SkipConfirmation {
		log.Info("Skipping download confirmation due to --yes flag or config setting.")
		return true
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Proceed with download? (y/n): ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			log.WithError(err).Error("Error reading input, aborting download.")
			return false
		}
		input = strings.TrimSpace(strings.ToLower(input))

		if input == "y" || input == "yes" {
			return true
		} else if input == "n" || input == "no" {
			log.Info("Download cancelled by user.")
			return false
		}
		fmt.Fprintln(out, "Invalid input. Please enter 'y' or 'n'.")
		if err != nil {
			return false
		}
	}
}
