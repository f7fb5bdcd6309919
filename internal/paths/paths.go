package paths

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go-canvas-download/internal/canvas"
	"go-canvas-download/internal/helpers"
)

// Tags a save-path pattern may reference.
const (
	TagHost       = "host"
	TagCourseID   = "courseId"
	TagCourseName = "courseName"
	TagDate       = "date"
)

var allowedTags = map[string]struct{}{
	TagHost:       {},
	TagCourseID:   {},
	TagCourseName: {},
	TagDate:       {},
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

// GeneratePath substitutes placeholders in a pattern string with sanitized values from the data map.
// It returns the generated relative path string or an error if substitution fails.
func GeneratePath(pattern string, data map[string]string) (string, error) {
	generatedPath := pattern

	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		tagName, tagWithBraces := match[1], match[0]

		if _, allowed := allowedTags[tagName]; !allowed {
			return "", fmt.Errorf("unknown tag found in path pattern: %s", tagWithBraces)
		}

		value := helpers.ConvertToSlug(data[tagName])
		if value == "" {
			value = "empty_" + tagName
		}
		generatedPath = strings.ReplaceAll(generatedPath, tagWithBraces, value)
	}

	cleanedPath := strings.TrimPrefix(filepath.Clean(generatedPath), string(filepath.Separator))
	if cleanedPath == "." || cleanedPath == "" {
		return "", fmt.Errorf("generated path pattern resulted in an empty or invalid path: '%s'", pattern)
	}

	if strings.Contains(cleanedPath, "..") {
		return "", fmt.Errorf("generated path contains invalid sequence '..': %s", cleanedPath)
	}

	return cleanedPath, nil
}

// CourseData builds the tag values for a modules page. courseName may be
// empty; host and course id come from pageURL when it is course scoped.
func CourseData(pageURL, courseName string, now time.Time) map[string]string {
	data := map[string]string{
		TagCourseName: courseName,
		TagDate:       now.Format("2006-01-02"),
	}
	if u, err := url.Parse(pageURL); err == nil {
		data[TagHost] = u.Hostname()
	}
	if cc, ok := canvas.ExtractContext(pageURL); ok {
		data[TagCourseID] = cc.CourseID
	}
	return data
}

// SaveDir joins the generated pattern onto base. An empty pattern saves
// straight into base.
func SaveDir(base, pattern string, data map[string]string) (string, error) {
	if strings.TrimSpace(pattern) == "" {
		return base, nil
	}
	rel, err := GeneratePath(pattern, data)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, rel), nil
}
