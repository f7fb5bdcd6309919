package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-canvas-download/internal/api"
	"go-canvas-download/internal/extractor"
	"go-canvas-download/internal/models"
	"go-canvas-download/internal/search"
)

// ErrLoginRequired is returned when Canvas bounced a page request to its login form.
var ErrLoginRequired = errors.New("canvas redirected to the login page (set --cookie or --token)")

// fetchFunc loads a remote page; api.Client.Fetch satisfies it.
type fetchFunc func(ctx context.Context, rawURL string) (*api.Page, error)

func isRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// loadPage reads a modules page from a URL, a saved HTML file or "-" for stdin.
// For local input pageURL supplies the address the page was saved from.
func loadPage(ctx context.Context, fetch fetchFunc, stdin io.Reader, source, pageURL string) (*extractor.Page, error) {
	if isRemote(source) {
		page, err := fetch(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", source, err)
		}
		if page.FinalURL != nil && strings.HasPrefix(page.FinalURL.Path, "/login") {
			return nil, ErrLoginRequired
		}
		if page.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: unexpected status %d", source, page.StatusCode)
		}
		final := source
		if page.FinalURL != nil {
			final = page.FinalURL.String()
		}
		log.Debugf("Fetched %s (%d bytes, %s)", final, len(page.Body), page.ContentType)
		return extractor.NewPage(bytes.NewReader(page.Body), final)
	}

	var r io.Reader = stdin
	if source != "-" {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("opening page: %w", err)
		}
		defer f.Close()
		r = f
	}
	return extractor.NewPage(r, pageURL)
}

// selectCandidates extracts candidates from page and narrows them by search
// term and, when confirmedOnly is set, drops those still needing a type check.
func selectCandidates(page *extractor.Page, term string, confirmedOnly bool) (extractor.Result, error) {
	if page.URL != nil && !page.IsModulesPage() {
		log.Warnf("%s does not look like a Canvas modules page; scanning the whole document", page.URL)
	}

	res := page.Extract()
	log.WithFields(log.Fields{
		"anchors": res.Debug.TotalAnchors,
		"matched": res.Debug.MatchedAnchors,
		"kept":    len(res.Files),
	}).Debug("Extraction finished")
	if len(res.Files) == 0 && len(res.Debug.SampleHrefs) > 0 {
		log.Debugf("Sample links on page: %v", res.Debug.SampleHrefs)
	}

	files, err := search.Filter(res.Files, term)
	if err != nil {
		return res, err
	}
	if confirmedOnly {
		kept := make([]models.CandidateFile, 0, len(files))
		for _, f := range files {
			if !f.NeedsTypeCheck {
				kept = append(kept, f)
			}
		}
		files = kept
	}
	res.Files = files
	return res, nil
}

func items(files []models.CandidateFile) []models.DownloadItem {
	out := make([]models.DownloadItem, 0, len(files))
	for _, f := range files {
		out = append(out, f.Item())
	}
	return out
}
