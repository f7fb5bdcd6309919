package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go-canvas-download/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
	ErrHTMLResponse = errors.New("server returned an HTML page instead of the file")
)

const sniffLen = 512

// RequestBuilder creates requests that carry the user's credentials.
type RequestBuilder interface {
	NewRequest(ctx context.Context, method, rawURL string) (*http.Request, error)
}

// Downloader saves files into a single directory. It is safe for concurrent use.
type Downloader struct {
	client   *http.Client
	requests RequestBuilder
	dir      string

	mu       sync.Mutex
	reserved map[string]bool
	saved    []string
}

// NewDownloader creates a new Downloader writing into dir. requests may be nil
// for anonymous downloads.
func NewDownloader(client *http.Client, requests RequestBuilder, dir string) *Downloader {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Minute,
		}
	}
	return &Downloader{
		client:   client,
		requests: requests,
		dir:      dir,
		reserved: make(map[string]bool),
	}
}

// Saved lists the paths written so far, in completion order.
func (d *Downloader) Saved() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.saved...)
}

// Save downloads url into the target directory. filename is a hint; when it
// is empty the server's Content-Disposition or the URL decides. Existing
// files are never overwritten.
func (d *Downloader) Save(ctx context.Context, url, filename string) error {
	if !helpers.CheckAndMakeDir(d.dir) {
		return fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, d.dir)
	}

	req, err := d.createHTTPRequest(ctx, url)
	if err != nil {
		return err
	}

	log.Debugf("Attempting to download from URL: %s", url)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, url)
	}
	if isHTML(resp.Header.Get("Content-Type")) {
		return fmt.Errorf("%w: %s", ErrHTMLResponse, url)
	}

	name := helpers.SanitizeFilename(filename)
	if name == "" {
		name = helpers.SanitizeFilename(extractFilenameFromResponse(resp))
	}
	if name == "" {
		if seg := helpers.NormalizeFilenameFromURL(resp.Request.URL.String()); seg != "download" {
			name = helpers.SanitizeFilename(seg)
		}
	}
	if name == "" || strings.Trim(name, ".") == "" {
		name = "download"
	}

	tempFile, err := os.CreateTemp(d.dir, ".canvas-download-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file in %s: %w", ErrFileSystem, d.dir, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	head, err := downloadToTemp(resp, tempFile, name)
	if err != nil {
		return err
	}

	sniffed := http.DetectContentType(head)
	if isHTML(sniffed) {
		return fmt.Errorf("%w: %s", ErrHTMLResponse, url)
	}
	if !helpers.HasKnownExtension(name) {
		name += extensionFor(resp.Header.Get("Content-Type"), sniffed)
	}

	finalPath, err := d.moveIntoPlace(tempFile.Name(), name)
	if err != nil {
		return err
	}
	shouldCleanupTemp = false

	log.Infof("Saved %s", finalPath)
	return nil
}

// createHTTPRequest creates and configures an HTTP request for downloading
func (d *Downloader) createHTTPRequest(ctx context.Context, url string) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if d.requests != nil {
		req, err = d.requests.NewRequest(ctx, http.MethodGet, url)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, url, err)
	}
	return req, nil
}

// extractFilenameFromResponse extracts filename from Content-Disposition header
func extractFilenameFromResponse(resp *http.Response) string {
	contentDisposition := resp.Header.Get("Content-Disposition")
	if contentDisposition == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(contentDisposition)
	if err == nil && params["filename"] != "" {
		log.Debugf("Received filename from Content-Disposition: %s", params["filename"])
		return params["filename"]
	}
	// Canvas occasionally sends unquoted names with spaces that mime rejects.
	return helpers.ParseContentDisposition(contentDisposition)
}

// downloadToTemp copies the body into tempFile and returns its first bytes for sniffing.
func downloadToTemp(resp *http.Response, tempFile *os.File, name string) ([]byte, error) {
	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)

	counter := &helpers.CounterWriter{
		Writer: tempFile,
		Total:  0,
	}
	head := &prefixWriter{limit: sniffLen}

	log.Debugf("Downloading %s (Size: %s)...", name, helpers.BytesToSize(size))

	_, err := io.Copy(io.MultiWriter(counter, head), resp.Body)
	if err != nil {
		_ = tempFile.Close()
		return nil, fmt.Errorf("writing to temporary file %s: %w", tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}

	log.Debugf("Finished writing %s (%s).", name, helpers.BytesToSize(counter.Total))
	return head.Bytes(), nil
}

// moveIntoPlace renames the temp file to name inside the target directory,
// adding " (n)" before the extension while the name is taken.
func (d *Downloader) moveIntoPlace(tempPath, name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(d.dir, name)
	for n := 1; d.taken(candidate); n++ {
		candidate = filepath.Join(d.dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}

	if err := os.Rename(tempPath, candidate); err != nil {
		return "", fmt.Errorf("%w: renaming temporary file %s to %s: %w", ErrFileSystem, tempPath, candidate, err)
	}
	d.reserved[candidate] = true
	d.saved = append(d.saved, candidate)
	return candidate, nil
}

func (d *Downloader) taken(path string) bool {
	if d.reserved[path] {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

func extensionFor(contentType, sniffed string) string {
	if ext, ok := helpers.GetExtensionFromMimeType(contentType); ok {
		return ext
	}
	if ext, ok := helpers.GetExtensionFromMimeType(sniffed); ok {
		return ext
	}
	return ""
}

func isHTML(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/html")
}

// prefixWriter keeps the first limit bytes written to it.
type prefixWriter struct {
	buf   bytes.Buffer
	limit int
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	if room := p.limit - p.buf.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		p.buf.Write(b[:room])
	}
	return len(b), nil
}

func (p *prefixWriter) Bytes() []byte { return p.buf.Bytes() }
