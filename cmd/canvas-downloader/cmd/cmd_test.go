package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-canvas-download/internal/api"
	"go-canvas-download/internal/extractor"
	"go-canvas-download/internal/models"
)

const coursePage = `<html><head><title>Course Modules: BIO 101</title></head><body>
<div id="context_modules"><ul>
  <li class="context_module_item attachment">
    <a class="ig-title item_link" href="/courses/1/files/5?wrap=1" title="Lecture 1.pptx">Lecture 1.pptx</a>
  </li>
  <li class="context_module_item" data-type="File">
    <a class="ig-title item_link" href="/courses/1/modules/items/9">Week 2</a>
  </li>
  <li class="context_module_item attachment">
    <a class="ig-title item_link" href="/courses/1/files/6/Reading.docx" title="Reading.docx">Reading.docx</a>
  </li>
</ul></div></body></html>`

// newCanvasServer serves the modules page, file metadata and file bytes.
func newCanvasServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/courses/1/modules", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, coursePage)
	})
	mux.HandleFunc("/api/v1/courses/1/files/5", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `while(1);{"id":5,"display_name":"Lecture 1.pptx","url":"/files/5/raw"}`)
	})
	mux.HandleFunc("/files/5/raw", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.presentationml.presentation")
		fmt.Fprint(w, "PK-slides")
	})
	mux.HandleFunc("/login/canvas", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<form>login</form>")
	})
	mux.HandleFunc("/courses/2/modules", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login/canvas", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadPage(t *testing.T) {
	srv := newCanvasServer(t)
	client := api.NewClient(models.Config{}, srv.Client())
	ctx := context.Background()

	t.Run("remote page uses final url", func(t *testing.T) {
		page, err := loadPage(ctx, client.Fetch, nil, srv.URL+"/courses/1/modules", "")
		require.NoError(t, err)
		require.NotNil(t, page.URL)
		assert.Equal(t, srv.URL+"/courses/1/modules", page.URL.String())
		assert.True(t, page.IsModulesPage())
		assert.Equal(t, "BIO 101", page.CourseName())
	})

	t.Run("login redirect", func(t *testing.T) {
		_, err := loadPage(ctx, client.Fetch, nil, srv.URL+"/courses/2/modules", "")
		assert.ErrorIs(t, err, ErrLoginRequired)
	})

	t.Run("remote status error", func(t *testing.T) {
		_, err := loadPage(ctx, client.Fetch, nil, srv.URL+"/courses/3/modules", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("saved file with page url", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "modules.html")
		require.NoError(t, os.WriteFile(path, []byte(coursePage), 0o600))

		page, err := loadPage(ctx, client.Fetch, nil, path, "https://canvas.example.edu/courses/1/modules")
		require.NoError(t, err)
		res := page.Extract()
		require.NotEmpty(t, res.Files)
		assert.True(t, strings.HasPrefix(res.Files[0].URL, "https://canvas.example.edu/courses/1/files/5"))
	})

	t.Run("stdin", func(t *testing.T) {
		page, err := loadPage(ctx, client.Fetch, strings.NewReader(coursePage), "-", "")
		require.NoError(t, err)
		assert.Nil(t, page.URL)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadPage(ctx, client.Fetch, nil, filepath.Join(t.TempDir(), "nope.html"), "")
		assert.Error(t, err)
	})
}

func TestSelectCandidates(t *testing.T) {
	page, err := extractor.NewPage(strings.NewReader(coursePage), "https://canvas.example.edu/courses/1/modules")
	require.NoError(t, err)

	res, err := selectCandidates(page, "", false)
	require.NoError(t, err)
	require.Len(t, res.Files, 2, "docx is filtered, the untyped module item is pending")
	assert.False(t, res.Files[0].NeedsTypeCheck)
	assert.True(t, res.Files[1].NeedsTypeCheck)

	res, err = selectCandidates(page, "", true)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "Lecture 1.pptx", res.Files[0].Title)

	res, err = selectCandidates(page, "week", false)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "Week 2", res.Files[0].Title)
}

func TestConfirmDownload(t *testing.T) {
	files := []models.CandidateFile{{ID: "a", Title: "Lecture", Filename: "l.pptx", Type: models.TypePPT}}

	tests := []struct {
		name  string
		input string
		skip  bool
		files []models.CandidateFile
		want  bool
	}{
		{"yes", "y\n", false, files, true},
		{"no", "no\n", false, files, false},
		{"invalid then yes", "maybe\nYES\n", false, files, true},
		{"eof", "", false, files, false},
		{"answer without newline", "y", false, files, true},
		{"skip confirmation", "", true, files, true},
		{"nothing to download", "y\n", false, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.Config{Download: models.DownloadConfig{SkipConfirmation: tt.skip}}
			var out bytes.Buffer
			got := confirmDownload(&out, strings.NewReader(tt.input), tt.files, "downloads", &cfg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintCandidates(t *testing.T) {
	var out bytes.Buffer
	files := []models.CandidateFile{
		{Title: "Lecture 1", Filename: "lecture1.pptx", Type: models.TypePPT},
		{Title: "Week 2", Filename: "9", Type: models.TypeFile, NeedsTypeCheck: true},
	}
	require.NoError(t, printCandidates(&out, files))

	s := out.String()
	assert.Contains(t, s, "[PPT]")
	assert.Contains(t, s, "[?]")
	assert.Contains(t, s, "pending")
	assert.Contains(t, s, "Found 2 presentation(s) (1 confirmed, 1 pending)")
}

func TestStatusBoard(t *testing.T) {
	var out bytes.Buffer
	files := []models.CandidateFile{{ID: "a", Filename: "a.pptx"}, {ID: "b", Title: "Week 2"}, {ID: "a", Filename: "dup"}}
	b := newStatusBoard(&out, "origin-1", files)

	report := func(id string, st models.DownloadStatus, msg string) error {
		return b.Report(models.StatusEvent{OriginID: "origin-1", ItemID: id, Status: st, Error: msg})
	}

	require.NoError(t, report("a", models.StatusQueued, ""))
	require.NoError(t, report("a", models.StatusDownloading, ""))
	require.NoError(t, report("a", models.StatusResolving, ""), "backwards transitions are ignored")
	require.NoError(t, report("a", models.StatusSuccess, ""))
	require.NoError(t, report("a", models.StatusError, "late"), "terminal status is final")
	require.NoError(t, report("b", models.StatusError, "skipped: not a presentation"))

	assert.Error(t, report("zzz", models.StatusQueued, ""))
	assert.NoError(t, b.Report(models.StatusEvent{OriginID: "other", ItemID: "a", Status: models.StatusError}))

	ok, failed := b.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"Week 2: skipped: not a presentation"}, b.Failures())

	frames := out.String()
	assert.Contains(t, frames, "Downloading 2/2")
	assert.Contains(t, frames, "success     a.pptx")
	assert.NotContains(t, frames, "late")
}

func TestScanCommand_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.html")
	require.NoError(t, os.WriteFile(path, []byte(coursePage), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"scan", path,
		"--config", filepath.Join(t.TempDir(), "none.toml"),
		"--page-url", "https://canvas.example.edu/courses/1/modules",
		"--json",
	})
	require.NoError(t, rootCmd.Execute())

	var res extractor.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Len(t, res.Files, 2)
	assert.Equal(t, "https://canvas.example.edu/courses/1/modules", res.Debug.PageURL)
}

func TestDownloadCommand(t *testing.T) {
	srv := newCanvasServer(t)
	saveDir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"download", srv.URL + "/courses/1/modules",
		"--config", filepath.Join(t.TempDir(), "none.toml"),
		"--save-path", saveDir,
		"--path-pattern", "course_{courseId}",
		"--confirmed-only",
		"--yes",
	})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(filepath.Join(saveDir, "course_1", "Lecture 1.pptx"))
	require.NoError(t, err)
	assert.Equal(t, "PK-slides", string(data))
	assert.Contains(t, out.String(), "Downloaded 1 of 1 file(s)")
}
