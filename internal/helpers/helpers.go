package helpers

import (
	"fmt"
	"io"
	"mime"
	"os"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9._\-]+`)
	slugUnderscores  = regexp.MustCompile(`_+`)
	slugDashJoin     = regexp.MustCompile(`[_\-]*-[_\-]*`)
)

// ConvertToSlug lowercases s and reduces it to a filesystem friendly token.
// Spaces become underscores and colons become dashes; anything else outside
// [a-z0-9._-] is dropped.
func ConvertToSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.Join(strings.Fields(s), "_")
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = slugUnderscores.ReplaceAllString(s, "_")
	s = slugDashJoin.ReplaceAllString(s, "-")
	return strings.Trim(s, "_-")
}

// BytesToSize renders a byte count using binary units.
func BytesToSize(bytes uint64) string {
	if bytes == 0 {
		return "0B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	return fmt.Sprintf("%.2f%s", size, units[i])
}

// CheckAndMakeDir makes sure dir exists, creating it when needed.
func CheckAndMakeDir(dir string) bool {
	if err := os.MkdirAll(dir, 0750); err != nil {
		log.WithError(err).Errorf("Failed to create directory %s", dir)
		return false
	}
	return true
}

// CounterWriter counts the bytes passing through to Writer.
type CounterWriter struct {
	Writer io.Writer
	Total  uint64
}

func (cw *CounterWriter) Write(p []byte) (int, error) {
	n, err := cw.Writer.Write(p)
	cw.Total += uint64(n)
	return n, err
}

// mimeExtensions maps the document MIME types Canvas serves to file extensions.
var mimeExtensions = map[string]string{
	"application/pdf":               ".pdf",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/vnd.openxmlformats-officedocument.presentationml.slideshow":    ".ppsx",
	"application/vnd.ms-powerpoint.presentation.macroenabled.12":                ".pptm",
	"application/vnd.apple.keynote":                                             ".key",
	"application/vnd.oasis.opendocument.presentation":                           ".odp",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/zip":              ".zip",
	"application/x-zip-compressed": ".zip",
}

// GetExtensionFromMimeType returns the extension (with dot) for a document
// MIME type. Parameters such as charset are ignored.
func GetExtensionFromMimeType(mimeType string) (string, bool) {
	mediaType := strings.TrimSpace(strings.ToLower(mimeType))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	} else if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	ext, ok := mimeExtensions[mediaType]
	return ext, ok
}
