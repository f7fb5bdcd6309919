package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// redactedHeaders never reach the log file.
var redactedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

var (
	activeLoggingTransports []*LoggingTransport
	transportsMu            sync.Mutex
)

// LoggingTransport wraps an http.RoundTripper and appends every exchange to a file.
// JSON bodies are logged in full; anything else only by its headers.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	writer    *bufio.Writer
	mu        sync.Mutex
}

// NewLoggingTransport opens logFilePath for appending and registers the
// transport so CloseAllLoggingTransports can flush it on exit.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	safeLogFilePath := filepath.Clean(logFilePath)
	// #nosec G304
	f, err := os.OpenFile(safeLogFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", safeLogFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}

	lt := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}

	transportsMu.Lock()
	activeLoggingTransports = append(activeLoggingTransports, lt)
	transportsMu.Unlock()
	log.Debugf("Registered LoggingTransport for file: %s", safeLogFilePath)

	return lt, nil
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	dumpReq := req.Clone(req.Context())
	redact(dumpReq.Header)
	if reqDump, err := httputil.DumpRequestOut(dumpReq, false); err != nil {
		log.WithError(err).Error("[LogTransport] Failed to dump API request for logging")
	} else {
		t.mu.Lock()
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s", startTime.Format(time.RFC3339), reqDump))
		t.mu.Unlock()
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	t.mu.Lock()
	defer t.mu.Unlock()
	defer func() {
		if errFlush := t.writer.Flush(); errFlush != nil {
			log.WithError(errFlush).Error("[LogTransport] Failed to flush log writer")
		}
	}()

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s", time.Now().Format(time.RFC3339), duration, err))
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	header := headerDump(resp)
	if !strings.HasPrefix(contentType, "application/json") || req.Method == http.MethodHead {
		t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v, Type: %s) ---\n%s\n(Body not logged)", time.Now().Format(time.RFC3339), duration, contentType, header))
		return resp, nil
	}

	bodyBytes, readErr := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil {
		log.WithError(closeErr).Warn("[LogTransport] Failed to close original response body before replacing it")
	}
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if readErr != nil {
		log.WithError(readErr).Error("[LogTransport] Failed to read response body for logging")
		t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s\n(Body read failed)", time.Now().Format(time.RFC3339), duration, header))
		return resp, nil
	}
	t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s\n--- Response Body (%s) ---\n%s", time.Now().Format(time.RFC3339), duration, header, contentType, bodyBytes))
	return resp, nil
}

func headerDump(resp *http.Response) string {
	shallow := *resp
	shallow.Header = resp.Header.Clone()
	redact(shallow.Header)
	dump, _ := httputil.DumpResponse(&shallow, false)
	return string(dump)
}

func redact(h http.Header) {
	for _, name := range redactedHeaders {
		if h.Get(name) != "" {
			h.Set(name, "[redacted]")
		}
	}
}

func (t *LoggingTransport) writeLog(logString string) {
	if _, err := t.writer.WriteString(logString + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// CloseAllLoggingTransports closes every transport created so far.
func CloseAllLoggingTransports() {
	transportsMu.Lock()
	defer transportsMu.Unlock()

	for _, t := range activeLoggingTransports {
		if err := t.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logging transport for %s: %v\n", t.logFile.Name(), err)
		}
	}
	log.Debugf("Closed %d logging transports.", len(activeLoggingTransports))
	activeLoggingTransports = nil
}
