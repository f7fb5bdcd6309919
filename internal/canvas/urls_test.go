package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLShapes(t *testing.T) {
	tests := []struct {
		href       string
		moduleItem bool
		file       bool
		extension  bool
	}{
		{"https://canvas.example.edu/courses/60682/modules/items/987", true, false, false},
		{"https://canvas.example.edu/courses/60682/files/12345", false, true, false},
		{"https://canvas.example.edu/courses/60682/files/12345/download?wrap=1", false, true, false},
		{"https://cdn.example.com/slides/week1.PPTX", false, false, true},
		{"https://cdn.example.com/slides/week1.pdf?x=1", false, false, true},
		{"https://cdn.example.com/slides/week1.pdf.html", false, false, false},
		{"https://canvas.example.edu/courses/60682/quizzes/5", false, false, false},
		{"https://canvas.example.edu/courses/60682/modules/items/abc", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.href, func(t *testing.T) {
			assert.Equal(t, tt.moduleItem, IsModuleItemURL(tt.href), "module item")
			assert.Equal(t, tt.file, IsFileURL(tt.href), "file")
			assert.Equal(t, tt.extension, HasFileExtension(tt.href), "extension")
		})
	}
}

func TestExtractContext(t *testing.T) {
	ctx, ok := ExtractContext("https://canvas.example.edu/courses/60682/modules/items/987")
	assert.True(t, ok)
	assert.Equal(t, "https://canvas.example.edu", ctx.Origin)
	assert.Equal(t, "60682", ctx.CourseID)
	assert.Equal(t, "https://canvas.example.edu/api/v1/courses/60682/files/5", ctx.FileAPIURL("5"))
	assert.Equal(t, "https://canvas.example.edu/courses/60682/files/5", ctx.FileURL("5"))

	_, ok = ExtractContext("https://canvas.example.edu/files/12345/download")
	assert.False(t, ok, "user files have no course context")

	_, ok = ExtractContext("/courses/1/files/2")
	assert.False(t, ok, "relative URLs have no origin")
}

func TestExtractFileID(t *testing.T) {
	assert.Equal(t, "12345", ExtractFileID("https://x.edu/courses/1/files/12345/preview"))
	assert.Equal(t, "77", ExtractFileID(`<a href="/courses/1/files/77/download">x</a> /files/88`))
	assert.Equal(t, "", ExtractFileID("https://x.edu/courses/1/pages/intro"))
}

func TestIsModulesPath(t *testing.T) {
	assert.True(t, IsModulesPath("/courses/60682/modules"))
	assert.True(t, IsModulesPath("/courses/60682/modules/items/3"))
	assert.False(t, IsModulesPath("/courses/60682/assignments"))
}

func TestEnsureDownloadURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare file url",
			input:    "https://canvas.example.edu/courses/60682/files/12345",
			expected: "https://canvas.example.edu/courses/60682/files/12345/download?download_frd=1",
		},
		{
			name:     "preview suffix replaced",
			input:    "https://canvas.example.edu/courses/60682/files/12345/preview",
			expected: "https://canvas.example.edu/courses/60682/files/12345/download?download_frd=1",
		},
		{
			name:     "already download",
			input:    "https://canvas.example.edu/courses/60682/files/12345/download",
			expected: "https://canvas.example.edu/courses/60682/files/12345/download?download_frd=1",
		},
		{
			name:     "existing download param overridden",
			input:    "https://canvas.example.edu/courses/60682/files/12345/download?download_frd=0&wrap=1",
			expected: "https://canvas.example.edu/courses/60682/files/12345/download?download_frd=1&wrap=1",
		},
		{
			name:     "non file path only gets the param",
			input:    "https://cdn.example.com/slides/week1.pdf",
			expected: "https://cdn.example.com/slides/week1.pdf?download_frd=1",
		},
		{
			name:     "other pairs keep their order and encoding",
			input:    "https://canvas.example.edu/courses/1/files/2?wrap=1;x=2&verifier=abc",
			expected: "https://canvas.example.edu/courses/1/files/2/download?wrap=1;x=2&verifier=abc&download_frd=1",
		},
		{
			name:     "repeated download param collapsed in place",
			input:    "https://cdn.example.com/a.pdf?b=2&download_frd=0&a=1&download_frd=3",
			expected: "https://cdn.example.com/a.pdf?b=2&download_frd=1&a=1",
		},
		{
			name:     "relative left alone",
			input:    "/courses/1/files/2",
			expected: "/courses/1/files/2",
		},
		{
			name:     "garbage left alone",
			input:    "://not a url",
			expected: "://not a url",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EnsureDownloadURL(tt.input))
		})
	}
}

func TestEnsureDownloadURL_Idempotent(t *testing.T) {
	inputs := []string{
		"https://canvas.example.edu/courses/60682/files/12345",
		"https://canvas.example.edu/courses/60682/files/12345/preview?verifier=abc",
		"https://canvas.example.edu/files/9/download?download_frd=1",
		"https://cdn.example.com/a.pdf?b=2&a=1",
		"not a url",
	}
	for _, in := range inputs {
		once := EnsureDownloadURL(in)
		assert.Equal(t, once, EnsureDownloadURL(once), "EnsureDownloadURL not idempotent for %q", in)
	}
}
