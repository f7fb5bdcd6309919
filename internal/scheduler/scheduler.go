// Package scheduler runs download jobs in small concurrent batches, resolving
// each link just before it is fetched and reporting every status transition.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go-canvas-download/internal/canvas"
	"go-canvas-download/internal/helpers"
	"go-canvas-download/internal/models"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchWidth is how many jobs run at once. It is also the ceiling.
const (
	DefaultBatchWidth = 3
	MaxBatchWidth     = DefaultBatchWidth
)

// Terminal error messages reported to the status sink.
const (
	MsgNoDownloadLink  = "could not find download link for this module item"
	MsgNotPresentation = "skipped: not a presentation"
)

// Saver stores the bytes behind url. filename is a hint and may be empty.
type Saver interface {
	Save(ctx context.Context, url, filename string) error
}

// StatusSink receives status events. It is called from several jobs at once.
// Errors are ignored.
type StatusSink interface {
	Report(ev models.StatusEvent) error
}

type TargetResolver interface {
	Resolve(ctx context.Context, rawURL string) (models.ResolvedTarget, error)
}

type FilenameResolver interface {
	ResolveFilename(ctx context.Context, downloadURL, fallback string) (string, bool)
}

type PresentationVerifier interface {
	IsPresentation(ctx context.Context, rawURL string) bool
}

// Deps are the collaborators a Scheduler drives. Sink may be nil.
type Deps struct {
	Resolver  TargetResolver
	Filenames FilenameResolver
	Verifier  PresentationVerifier
	Saver     Saver
	Sink      StatusSink
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBatchWidth narrows the batch. Values below one are ignored and values
// above MaxBatchWidth are capped.
func WithBatchWidth(n int) Option {
	return func(s *Scheduler) {
		if n >= 1 {
			s.width = min(n, MaxBatchWidth)
		}
	}
}

// WithContext sets the context passed to every network call.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.ctx = ctx }
}

// Scheduler owns a FIFO queue of jobs and at most one drain loop.
type Scheduler struct {
	deps     Deps
	width    int
	ctx      context.Context
	validate *validator.Validate

	mu       sync.Mutex
	queue    []models.DownloadJob
	draining bool
	idle     chan struct{}
	runs     int
}

func New(deps Deps, opts ...Option) *Scheduler {
	s := &Scheduler{
		deps:     deps,
		width:    DefaultBatchWidth,
		ctx:      context.Background(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue appends items to the queue and starts a drain loop unless one is
// already running. Invalid items are reported as errors and dropped.
// It returns the number of items accepted.
func (s *Scheduler) Enqueue(items []models.DownloadItem, originID string) int {
	var rejected []models.StatusEvent

	s.mu.Lock()
	accepted := 0
	for _, item := range items {
		if err := s.validate.Struct(item); err != nil {
			log.WithError(err).Warnf("Rejecting download item %q", item.ID)
			rejected = append(rejected, models.StatusEvent{
				OriginID: originID,
				ItemID:   item.ID,
				Status:   models.StatusError,
				Error:    fmt.Sprintf("invalid download item: %v", err),
			})
			continue
		}
		s.queue = append(s.queue, models.DownloadJob{Item: item, OriginID: originID})
		accepted++
	}
	start := !s.draining && len(s.queue) > 0
	if start {
		s.draining = true
		s.idle = make(chan struct{})
		s.runs++
	}
	s.mu.Unlock()

	for _, ev := range rejected {
		s.emit(ev)
	}
	if start {
		go s.drain()
	}
	return accepted
}

// Wait blocks until the queue is empty and no job is running.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		draining, idle := s.draining, s.idle
		s.mu.Unlock()
		if !draining {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		n := min(s.width, len(s.queue))
		batch := make([]models.DownloadJob, n)
		copy(batch, s.queue[:n])
		s.queue = s.queue[n:]
		s.mu.Unlock()

		var g errgroup.Group
		g.SetLimit(s.width)
		for _, job := range batch {
			g.Go(func() error {
				s.runJob(job)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// jobReporter tracks whether a job has reached a terminal status.
type jobReporter struct {
	s    *Scheduler
	job  models.DownloadJob
	done bool
}

func (r *jobReporter) report(status models.DownloadStatus, msg string) {
	if r.done {
		return
	}
	r.done = status.Terminal()
	r.s.emit(models.StatusEvent{
		OriginID: r.job.OriginID,
		ItemID:   r.job.Item.ID,
		Status:   status,
		Error:    msg,
	})
}

func (s *Scheduler) runJob(job models.DownloadJob) {
	r := &jobReporter{s: s, job: job}
	item := job.Item

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Panic while processing %s: %v", item.URL, rec)
			r.report(models.StatusError, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	r.report(models.StatusQueued, "")

	downloadURL := item.URL
	resolvedName := ""
	isDirectFile := canvas.IsFileURL(item.URL)
	isModuleItem := canvas.IsModuleItemURL(item.URL) && !isDirectFile

	if isModuleItem || isDirectFile {
		r.report(models.StatusResolving, "")
		target, err := s.deps.Resolver.Resolve(s.ctx, item.URL)
		switch {
		case err == nil:
			downloadURL = target.DownloadURL
			resolvedName = target.Filename
		case isModuleItem:
			log.WithError(err).Warnf("Could not resolve module item %s", item.URL)
			r.report(models.StatusError, MsgNoDownloadLink)
			return
		default:
			log.WithError(err).Debugf("Resolution failed for %s, using canonical download url", item.URL)
			downloadURL = canvas.EnsureDownloadURL(item.URL)
		}
	}

	if item.NeedsTypeCheck && !s.deps.Verifier.IsPresentation(s.ctx, downloadURL) {
		log.Infof("Skipping %q: not a presentation", item.Filename)
		r.report(models.StatusError, MsgNotPresentation)
		return
	}

	filename := s.finalFilename(downloadURL, resolvedName, item.Filename)

	r.report(models.StatusDownloading, "")
	err := s.deps.Saver.Save(s.ctx, downloadURL, filename)
	if err != nil && downloadURL != item.URL {
		fallbackURL := canvas.EnsureDownloadURL(item.URL)
		log.WithError(err).Warnf("Download of %s failed, retrying once via %s", downloadURL, fallbackURL)
		err = s.deps.Saver.Save(s.ctx, fallbackURL, filename)
	}
	if err != nil {
		log.WithError(err).Errorf("Download failed for %s", item.URL)
		r.report(models.StatusError, err.Error())
		return
	}

	log.Infof("Downloaded %s", displayName(filename, item.URL))
	r.report(models.StatusSuccess, "")
}

// finalFilename prefers a name that already carries an extension over a lookup.
func (s *Scheduler) finalFilename(downloadURL, resolvedName, itemName string) string {
	if resolvedName != "" && helpers.HasKnownExtension(resolvedName) {
		return helpers.SanitizeFilename(resolvedName)
	}
	if helpers.HasKnownExtension(itemName) {
		return helpers.SanitizeFilename(itemName)
	}
	fallback := resolvedName
	if fallback == "" {
		fallback = itemName
	}
	if name, ok := s.deps.Filenames.ResolveFilename(s.ctx, downloadURL, fallback); ok {
		return name
	}
	return ""
}

func (s *Scheduler) emit(ev models.StatusEvent) {
	if s.deps.Sink == nil || ev.ItemID == "" {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Debugf("Status sink panicked: %v", rec)
		}
	}()
	if err := s.deps.Sink.Report(ev); err != nil {
		log.WithError(err).Debug("Status sink rejected event")
	}
}

func displayName(filename, fallback string) string {
	if filename != "" {
		return filename
	}
	return fallback
}
