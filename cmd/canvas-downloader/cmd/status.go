package cmd

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"go-canvas-download/internal/models"
)

// boardEntry is one line of the status board.
type boardEntry struct {
	name   string
	status models.DownloadStatus
	err    string
}

// statusBoard renders scheduler status events as a live block of lines, one
// per item. Events for unknown items or from other origins are ignored.
type statusBoard struct {
	mu      sync.Mutex
	out     io.Writer
	origin  string
	order   []string
	entries map[string]*boardEntry
}

func newStatusBoard(out io.Writer, origin string, files []models.CandidateFile) *statusBoard {
	b := &statusBoard{
		out:     out,
		origin:  origin,
		entries: make(map[string]*boardEntry, len(files)),
	}
	for _, f := range files {
		if _, dup := b.entries[f.ID]; dup {
			continue
		}
		name := f.Filename
		if name == "" {
			name = f.Title
		}
		b.order = append(b.order, f.ID)
		b.entries[f.ID] = &boardEntry{name: name}
	}
	return b
}

// Report implements scheduler.StatusSink. Statuses never move backwards.
func (b *statusBoard) Report(ev models.StatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.origin != "" && ev.OriginID != b.origin {
		return nil
	}
	e, ok := b.entries[ev.ItemID]
	if !ok {
		return fmt.Errorf("unknown item %q", ev.ItemID)
	}
	if e.status.Terminal() || ev.Status.Rank() < e.status.Rank() {
		return nil
	}
	e.status, e.err = ev.Status, ev.Error
	return b.render()
}

// render emits the whole board as one Write; uilive may flush between writes.
func (b *statusBoard) render() error {
	done := 0
	for _, id := range b.order {
		if b.entries[id].status.Terminal() {
			done++
		}
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Downloading %d/%d\n", done, len(b.order))
	for _, id := range b.order {
		e := b.entries[id]
		status := string(e.status)
		if status == "" {
			status = "waiting"
		}
		line := fmt.Sprintf("  %-11s %s", status, e.name)
		if e.err != "" {
			line += " (" + e.err + ")"
		}
		buf.WriteString(line + "\n")
	}
	_, err := b.out.Write(buf.Bytes())
	return err
}

// Counts returns how many items succeeded and failed.
func (b *statusBoard) Counts() (succeeded, failed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.entries {
		switch e.status {
		case models.StatusSuccess:
			succeeded++
		case models.StatusError:
			failed++
		}
	}
	return succeeded, failed
}

// Failures lists failed items as "name: reason", in board order.
func (b *statusBoard) Failures() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, id := range b.order {
		if e := b.entries[id]; e.status == models.StatusError {
			out = append(out, e.name+": "+e.err)
		}
	}
	return out
}
