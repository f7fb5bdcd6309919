package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestStatusConstants(t *testing.T) {
	// Values are part of the status event wire format
	if StatusQueued != "queued" {
		t.Errorf("StatusQueued = %q, want %q", StatusQueued, "queued")
	}
	if StatusResolving != "resolving" {
		t.Errorf("StatusResolving = %q, want %q", StatusResolving, "resolving")
	}
	if StatusDownloading != "downloading" {
		t.Errorf("StatusDownloading = %q, want %q", StatusDownloading, "downloading")
	}
	if StatusSuccess != "success" {
		t.Errorf("StatusSuccess = %q, want %q", StatusSuccess, "success")
	}
	if StatusError != "error" {
		t.Errorf("StatusError = %q, want %q", StatusError, "error")
	}
}

func TestDownloadStatus_Lifecycle(t *testing.T) {
	order := []DownloadStatus{StatusQueued, StatusResolving, StatusDownloading, StatusSuccess}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s should rank after %s", order[i], order[i-1])
		}
	}
	if StatusError.Rank() != StatusSuccess.Rank() {
		t.Error("error and success should both be terminal ranks")
	}
	if !StatusError.Terminal() || !StatusSuccess.Terminal() {
		t.Error("success and error must be terminal")
	}
	if StatusDownloading.Terminal() {
		t.Error("downloading must not be terminal")
	}
	if DownloadStatus("bogus").Rank() != -1 {
		t.Error("unknown status should rank -1")
	}
}

func TestCandidateFile_Item(t *testing.T) {
	c := CandidateFile{
		ID:             "abc",
		Title:          "Week 1 Slides",
		URL:            "https://canvas.example.edu/courses/1/modules/items/2",
		Filename:       "",
		Source:         SourceModuleItem,
		NeedsTypeCheck: true,
	}

	item := c.Item()
	if item.Filename != "Week 1 Slides" {
		t.Errorf("expected title fallback for empty filename, got %q", item.Filename)
	}
	if item.ID != c.ID || item.URL != c.URL || item.Source != c.Source || !item.NeedsTypeCheck {
		t.Errorf("item fields not copied: %+v", item)
	}

	c.Filename = "slides.pdf"
	if got := c.Item().Filename; got != "slides.pdf" {
		t.Errorf("expected filename to win over title, got %q", got)
	}
}

func TestDecodeFileInfo(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		info, err := DecodeFileInfo([]byte(`{"id": 12345, "display_name": "Lecture 1.pptx", "content-type": "application/vnd.openxmlformats-officedocument.presentationml.presentation", "url": "https://files.example.com/x"}`))
		if err != nil {
			t.Fatalf("DecodeFileInfo failed: %v", err)
		}
		if info.Name() != "Lecture 1.pptx" {
			t.Errorf("Name() = %q", info.Name())
		}
		if !strings.HasSuffix(info.ContentType, "presentation") {
			t.Errorf("unexpected content type %q", info.ContentType)
		}
		if info.ID != 12345 {
			t.Errorf("ID = %d", info.ID)
		}
	})

	t.Run("while prefix", func(t *testing.T) {
		info, err := DecodeFileInfo([]byte(`while(1);{"filename": "notes.pdf"}`))
		if err != nil {
			t.Fatalf("DecodeFileInfo failed: %v", err)
		}
		if info.Name() != "notes.pdf" {
			t.Errorf("expected filename fallback, got %q", info.Name())
		}
		if info.URL != "" {
			t.Errorf("expected empty URL, got %q", info.URL)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := DecodeFileInfo([]byte("<html>login</html>")); err == nil {
			t.Error("expected error for non-json body")
		}
	})
}

func TestStatusEvent_JSON(t *testing.T) {
	ev := StatusEvent{ItemID: "x1", Status: StatusQueued}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "originId") || strings.Contains(s, `"error"`) {
		t.Errorf("empty optional fields should be omitted: %s", s)
	}
	if !strings.Contains(s, `"status":"queued"`) {
		t.Errorf("status missing: %s", s)
	}
}
