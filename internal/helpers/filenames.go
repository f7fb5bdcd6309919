package helpers

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"

	"go-canvas-download/internal/models"

	"github.com/zeebo/blake3"
)

var (
	knownExtensionRegex = regexp.MustCompile(`\.\w{2,5}$`)
	presentationRegex   = regexp.MustCompile(`(?i)\.(pptx?|ppsx?|key|pdf)$`)
	numericRegex        = regexp.MustCompile(`^\d+$`)
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\x7f]`)

	dispositionUTF8   = regexp.MustCompile(`(?i)filename\*\s*=\s*UTF-8''(.+?)(?:;|$)`)
	dispositionQuoted = regexp.MustCompile(`(?i)filename\s*=\s*"([^"]+)"`)
	dispositionPlain  = regexp.MustCompile(`(?i)filename\s*=\s*([^\s;]+)`)
)

// nameTypes is checked in order against the end of a filename.
var nameTypes = []struct {
	re  *regexp.Regexp
	typ models.FileType
}{
	{regexp.MustCompile(`(?i)\.pdf$`), models.TypePDF},
	{regexp.MustCompile(`(?i)\.(pptx?|ppsx?)$`), models.TypePPT},
	{regexp.MustCompile(`(?i)\.key$`), models.TypeKey},
	{regexp.MustCompile(`(?i)\.odp$`), models.TypeODP},
	{regexp.MustCompile(`(?i)\.docx?$`), models.TypeDoc},
	{regexp.MustCompile(`(?i)\.xlsx?$`), models.TypeXLS},
	{regexp.MustCompile(`(?i)\.zip$`), models.TypeZip},
}

// urlTypes is the same table anchored on an extension followed by a query or the end.
var urlTypes = []struct {
	re  *regexp.Regexp
	typ models.FileType
}{
	{regexp.MustCompile(`(?i)\.pdf(\?|$)`), models.TypePDF},
	{regexp.MustCompile(`(?i)\.(pptx?|ppsx?)(\?|$)`), models.TypePPT},
	{regexp.MustCompile(`(?i)\.key(\?|$)`), models.TypeKey},
	{regexp.MustCompile(`(?i)\.odp(\?|$)`), models.TypeODP},
	{regexp.MustCompile(`(?i)\.docx?(\?|$)`), models.TypeDoc},
	{regexp.MustCompile(`(?i)\.xlsx?(\?|$)`), models.TypeXLS},
	{regexp.MustCompile(`(?i)\.zip(\?|$)`), models.TypeZip},
}

// HashID derives a stable candidate id from its title and URL.
func HashID(title, rawURL string) string {
	sum := blake3.Sum256([]byte(title + "|" + rawURL))
	return hex.EncodeToString(sum[:8])
}

// NormalizeFilenameFromURL returns the percent-decoded last path segment of
// rawURL, or "" if the URL cannot be parsed or has no path.
func NormalizeFilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return ""
	}
	segment := lastSegment(u.EscapedPath())
	if segment == "" {
		return ""
	}
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return ""
	}
	return decoded
}

// LastPathSegment returns the last non-empty, still-escaped path segment.
func LastPathSegment(u *url.URL) string {
	return lastSegment(u.EscapedPath())
}

func lastSegment(p string) string {
	parts := strings.Split(p, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

// IsNumeric reports whether s is made of ASCII digits only.
func IsNumeric(s string) bool {
	return numericRegex.MatchString(s)
}

// HasKnownExtension reports whether name ends in a 2-5 character extension.
func HasKnownExtension(name string) bool {
	return knownExtensionRegex.MatchString(name)
}

// IsPresentationName checks a visible name against the presentation set.
// decided is false when the name carries no extension at all.
func IsPresentationName(name string) (presentation bool, decided bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || !HasKnownExtension(trimmed) {
		return false, false
	}
	return presentationRegex.MatchString(trimmed), true
}

// DetectFileTypeFromName maps a filename's extension to a coarse type.
func DetectFileTypeFromName(name string) models.FileType {
	for _, nt := range nameTypes {
		if nt.re.MatchString(name) {
			return nt.typ
		}
	}
	return models.TypeFile
}

// DetectFileTypeFromURL maps an extension in a URL (before any query) to a coarse type.
func DetectFileTypeFromURL(rawURL string) models.FileType {
	for _, ut := range urlTypes {
		if ut.re.MatchString(rawURL) {
			return ut.typ
		}
	}
	return models.TypeFile
}

// SanitizeFilename replaces characters that are illegal in filenames on
// common filesystems, plus control characters, and trims whitespace.
func SanitizeFilename(name string) string {
	return strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(name), "_"))
}

// ParseContentDisposition extracts a filename from a Content-Disposition
// header. The RFC 5987 form wins over the quoted form, which wins over a bare token.
func ParseContentDisposition(header string) string {
	if header == "" {
		return ""
	}
	if m := dispositionUTF8.FindStringSubmatch(header); m != nil {
		if decoded, err := url.PathUnescape(strings.TrimSpace(m[1])); err == nil {
			return decoded
		}
	}
	if m := dispositionQuoted.FindStringSubmatch(header); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := dispositionPlain.FindStringSubmatch(header); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ChipLabel is the short type badge shown next to a candidate.
func ChipLabel(fileType models.FileType, filename string) string {
	switch fileType {
	case models.TypePDF, models.TypePPT, models.TypeKey, models.TypeODP,
		models.TypeDoc, models.TypeXLS, models.TypeZip:
		return strings.ToUpper(string(fileType))
	}
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	switch ext := strings.ToLower(filename[i+1:]); ext {
	case "ppt", "pptx":
		return "PPT"
	case "pps", "ppsx":
		return "PPS"
	case "doc", "docx":
		return "DOC"
	case "xls", "xlsx":
		return "XLS"
	case "pdf", "key", "odp", "zip":
		return strings.ToUpper(ext)
	}
	return ""
}
