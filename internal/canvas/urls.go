// Package canvas recognises the URL shapes a Canvas LMS instance uses for
// module items and files, and builds the canonical forced-download form.
package canvas

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	moduleItemRegex    = regexp.MustCompile(`/courses/\d+/modules/items/\d+`)
	fileRegex          = regexp.MustCompile(`/files/(\d+)`)
	fileExtensionRegex = regexp.MustCompile(`(?i)\.(pdf|ppt|pptx|pps|ppsx|key|odp|doc|docx|xls|xlsx|zip)(\?|$)`)
	courseContextRegex = regexp.MustCompile(`^(https?://[^/]+)/courses/(\d+)`)
	modulesPathRegex   = regexp.MustCompile(`/courses/\d+/modules`)

	filePathRegex = regexp.MustCompile(`/files/\d+(/[^/]*)?$`)
	fileTailRegex = regexp.MustCompile(`(/files/\d+)(/.*)?$`)
)

// DownloadParam forces Canvas to serve raw bytes instead of a preview page.
const DownloadParam = "download_frd"

// Context is the instance origin and course a URL belongs to.
type Context struct {
	Origin   string
	CourseID string
}

// IsModuleItemURL matches /courses/<id>/modules/items/<id>.
func IsModuleItemURL(href string) bool {
	return moduleItemRegex.MatchString(href)
}

// IsFileURL matches /files/<id> anywhere in the URL.
func IsFileURL(href string) bool {
	return fileRegex.MatchString(href)
}

// HasFileExtension reports whether href ends, before any query, in a known document extension.
func HasFileExtension(href string) bool {
	return fileExtensionRegex.MatchString(href)
}

// IsModulesPath reports whether a page path is a course modules listing.
func IsModulesPath(path string) bool {
	return modulesPathRegex.MatchString(path)
}

// ExtractContext pulls the origin and course id out of a course-scoped URL.
func ExtractContext(rawURL string) (Context, bool) {
	m := courseContextRegex.FindStringSubmatch(rawURL)
	if m == nil {
		return Context{}, false
	}
	return Context{Origin: m[1], CourseID: m[2]}, true
}

// ExtractFileID returns the first /files/<id> identifier in s, or "".
// s may be a URL or an arbitrary HTML body.
func ExtractFileID(s string) string {
	m := fileRegex.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

// FileAPIURL is the REST endpoint returning metadata for one course file.
func (c Context) FileAPIURL(fileID string) string {
	return fmt.Sprintf("%s/api/v1/courses/%s/files/%s", c.Origin, c.CourseID, fileID)
}

// FileURL is the plain (preview) URL of one course file.
func (c Context) FileURL(fileID string) string {
	return fmt.Sprintf("%s/courses/%s/files/%s", c.Origin, c.CourseID, fileID)
}

// EnsureDownloadURL rewrites a file URL into its fully forced download form:
//
//	/files/123          -> /files/123/download?download_frd=1
//	/files/123/preview  -> /files/123/download?download_frd=1
//	/files/123/download -> /files/123/download?download_frd=1
//
// Unparseable or relative input is returned unchanged.
func EnsureDownloadURL(fileURL string) string {
	u, err := url.Parse(fileURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fileURL
	}

	if filePathRegex.MatchString(u.Path) && !strings.HasSuffix(u.Path, "/download") {
		u.Path = fileTailRegex.ReplaceAllString(u.Path, "$1/download")
		u.RawPath = ""
	}

	u.RawQuery = setRawParam(u.RawQuery, DownloadParam, "1")
	return u.String()
}

// setRawParam sets key=value in a raw query without re-encoding or reordering
// the other pairs. The first existing key is replaced and later repeats are
// removed; a missing key is appended.
func setRawParam(rawQuery, key, value string) string {
	pair := key + "=" + value
	if rawQuery == "" {
		return pair
	}
	parts := strings.Split(rawQuery, "&")
	out := make([]string, 0, len(parts)+1)
	found := false
	for _, p := range parts {
		k, _, _ := strings.Cut(p, "=")
		if k == key {
			if !found {
				out = append(out, pair)
				found = true
			}
			continue
		}
		out = append(out, p)
	}
	if !found {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}
