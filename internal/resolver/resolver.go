// Package resolver turns module-item and file links into concrete download
// targets and works out the real filename behind a download URL.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go-canvas-download/internal/api"
	"go-canvas-download/internal/canvas"
	"go-canvas-download/internal/helpers"
	"go-canvas-download/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	ErrUnsupportedURL  = errors.New("url is neither a module item nor a course file")
	ErrNoCourseContext = errors.New("url has no /courses/<id> context")
	ErrNoFileID        = errors.New("no file id found for module item")
)

// CanvasClient is the subset of *api.Client the resolver needs.
type CanvasClient interface {
	GetFileInfo(ctx context.Context, cc canvas.Context, fileID string) (models.FileInfo, error)
	Fetch(ctx context.Context, rawURL string) (*api.Page, error)
	Head(ctx context.Context, rawURL string) (*api.Probe, error)
}

// Resolver holds no state beyond its client and is safe for concurrent use.
type Resolver struct {
	client CanvasClient
}

func New(client CanvasClient) *Resolver {
	return &Resolver{client: client}
}

// Resolve maps rawURL to a download target. Direct file links take precedence
// over module items when a URL looks like both.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (models.ResolvedTarget, error) {
	switch {
	case canvas.IsFileURL(rawURL):
		return r.resolveDirectFile(ctx, rawURL)
	case canvas.IsModuleItemURL(rawURL):
		return r.resolveModuleItem(ctx, rawURL)
	}
	return models.ResolvedTarget{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
}

func (r *Resolver) resolveModuleItem(ctx context.Context, rawURL string) (models.ResolvedTarget, error) {
	cc, ok := canvas.ExtractContext(rawURL)
	if !ok {
		return models.ResolvedTarget{}, fmt.Errorf("%w: %s", ErrNoCourseContext, rawURL)
	}

	page, err := r.client.Fetch(ctx, rawURL)
	if err != nil {
		return models.ResolvedTarget{}, fmt.Errorf("following module item %s: %w", rawURL, err)
	}

	fileID := canvas.ExtractFileID(page.FinalURL.String())
	if fileID == "" {
		fileID = canvas.ExtractFileID(string(page.Body))
	}
	if fileID == "" {
		log.Warnf("Could not find file ID from module item URL: %s", rawURL)
		return models.ResolvedTarget{}, fmt.Errorf("%w: %s", ErrNoFileID, rawURL)
	}
	log.Debugf("Module item %s points at file %s", rawURL, fileID)

	if target, ok := r.fromMetadata(ctx, cc, fileID); ok {
		return target, nil
	}
	return models.ResolvedTarget{DownloadURL: canvas.EnsureDownloadURL(cc.FileURL(fileID))}, nil
}

func (r *Resolver) resolveDirectFile(ctx context.Context, rawURL string) (models.ResolvedTarget, error) {
	cc, ok := canvas.ExtractContext(rawURL)
	if !ok {
		return models.ResolvedTarget{}, fmt.Errorf("%w: %s", ErrNoCourseContext, rawURL)
	}
	if target, ok := r.fromMetadata(ctx, cc, canvas.ExtractFileID(rawURL)); ok {
		return target, nil
	}
	return models.ResolvedTarget{DownloadURL: canvas.EnsureDownloadURL(rawURL)}, nil
}

// fromMetadata asks the Files API for a download URL. Failures are not
// errors here; the caller falls back to building the URL itself.
func (r *Resolver) fromMetadata(ctx context.Context, cc canvas.Context, fileID string) (models.ResolvedTarget, bool) {
	info, err := r.client.GetFileInfo(ctx, cc, fileID)
	if err != nil {
		log.WithError(err).Debugf("File metadata unavailable for %s in course %s", fileID, cc.CourseID)
		return models.ResolvedTarget{}, false
	}
	if info.URL == "" {
		log.Debugf("File metadata for %s has no download url", fileID)
		return models.ResolvedTarget{}, false
	}

	download, err := absoluteURL(info.URL, cc.Origin)
	if err != nil {
		log.WithError(err).Debugf("Ignoring unusable download url %q", info.URL)
		return models.ResolvedTarget{}, false
	}
	return models.ResolvedTarget{
		DownloadURL: download,
		Filename:    info.Name(),
		ContentType: info.ContentType,
	}, true
}

func absoluteURL(raw, origin string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.IsAbs() && u.Host != "" {
		return u.String(), nil
	}
	base, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(u)
	if resolved.Host == "" {
		return "", fmt.Errorf("relative url %q has no host", raw)
	}
	return resolved.String(), nil
}

// ResolveFilename works out the name a download will be saved under.
// The boolean is false when no name could be found; callers then pick their own.
func (r *Resolver) ResolveFilename(ctx context.Context, downloadURL, fallback string) (string, bool) {
	if helpers.HasKnownExtension(fallback) {
		if name := helpers.SanitizeFilename(fallback); name != "" {
			return name, true
		}
	}

	probe, err := r.client.Head(ctx, downloadURL)
	if err != nil {
		log.WithError(err).Debugf("HEAD failed for %s", downloadURL)
		return "", false
	}

	realName := helpers.ParseContentDisposition(probe.Header.Get("Content-Disposition"))
	if realName == "" && probe.FinalURL != nil {
		if seg, err := url.PathUnescape(helpers.LastPathSegment(probe.FinalURL)); err == nil &&
			seg != "" && seg != "download" && helpers.HasKnownExtension(seg) {
			realName = seg
		}
	}

	if realName != "" && helpers.HasKnownExtension(realName) {
		return helpers.SanitizeFilename(realName), true
	}

	base := realName
	if base == "" {
		base = fallback
	}
	base = helpers.SanitizeFilename(base)
	if base == "" {
		base = "download"
	}
	if !helpers.HasKnownExtension(base) {
		if ext, ok := helpers.GetExtensionFromMimeType(probe.Header.Get("Content-Type")); ok {
			return base + ext, true
		}
	}

	if realName != "" {
		return helpers.SanitizeFilename(realName), true
	}
	return "", false
}
