// Package verifier confirms that a resolved download is a presentation-class
// document before it is fetched.
package verifier

import (
	"context"
	"regexp"
	"strings"

	"go-canvas-download/internal/api"
	"go-canvas-download/internal/helpers"

	log "github.com/sirupsen/logrus"
)

var presentationRegex = regexp.MustCompile(`(?i)\.(pptx?|ppsx?|key|pdf)(\?|$)`)

var presentationContentTypes = []string{"pdf", "presentation", "powerpoint"}

// Prober issues metadata-only requests.
type Prober interface {
	Head(ctx context.Context, rawURL string) (*api.Probe, error)
}

type Verifier struct {
	client Prober
}

func New(client Prober) *Verifier {
	return &Verifier{client: client}
}

// IsPresentation reports whether rawURL serves a presentation. A URL that
// cannot be probed counts as one.
func (v *Verifier) IsPresentation(ctx context.Context, rawURL string) bool {
	if presentationRegex.MatchString(rawURL) {
		return true
	}

	probe, err := v.client.Head(ctx, rawURL)
	if err != nil {
		log.WithError(err).Debugf("Type probe failed for %s, allowing it through", rawURL)
		return true
	}

	disposition := probe.Header.Get("Content-Disposition")
	if presentationRegex.MatchString(disposition) ||
		presentationRegex.MatchString(helpers.ParseContentDisposition(disposition)) {
		return true
	}
	if probe.FinalURL != nil && presentationRegex.MatchString(probe.FinalURL.String()) {
		return true
	}

	contentType := strings.ToLower(probe.Header.Get("Content-Type"))
	for _, marker := range presentationContentTypes {
		if strings.Contains(contentType, marker) {
			return true
		}
	}

	log.Debugf("%s is not a presentation (content type %q)", rawURL, contentType)
	return false
}
