package models

import (
	"encoding/json"
	"strings"
)

// FileType is the coarse content kind of a candidate.
type FileType string

const (
	TypePDF  FileType = "pdf"
	TypePPT  FileType = "ppt"
	TypeKey  FileType = "key"
	TypeODP  FileType = "odp"
	TypeDoc  FileType = "doc"
	TypeXLS  FileType = "xls"
	TypeZip  FileType = "zip"
	TypeFile FileType = "file"
)

// Source records which URL shape made an anchor a candidate.
type Source string

const (
	SourceDirect     Source = "direct"
	SourceModuleItem Source = "module_item"
	SourceExtension  Source = "extension"
)

// DownloadStatus is the per-item progress state reported by the scheduler.
// Transitions only move forward: queued -> resolving -> downloading -> success|error.
type DownloadStatus string

const (
	StatusQueued      DownloadStatus = "queued"
	StatusResolving   DownloadStatus = "resolving"
	StatusDownloading DownloadStatus = "downloading"
	StatusSuccess     DownloadStatus = "success"
	StatusError       DownloadStatus = "error"
)

// Terminal reports whether no further status will follow s.
func (s DownloadStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Rank orders statuses along the forward lifecycle.
func (s DownloadStatus) Rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusResolving:
		return 1
	case StatusDownloading:
		return 2
	case StatusSuccess, StatusError:
		return 3
	}
	return -1
}

type (
	// Config holds the application's configuration settings.
	Config struct {
		SavePath            string         `toml:"SavePath" json:"SavePath" mapstructure:"savepath" validate:"required"`
		PathPattern         string         `toml:"PathPattern" json:"PathPattern" mapstructure:"pathpattern"`
		LogLevel            string         `toml:"LogLevel" json:"LogLevel" mapstructure:"loglevel" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
		LogFormat           string         `toml:"LogFormat" json:"LogFormat" mapstructure:"logformat" validate:"omitempty,oneof=text json"`
		APIToken            string         `toml:"ApiToken" json:"-" mapstructure:"apitoken"`
		SessionCookie       string         `toml:"SessionCookie" json:"-" mapstructure:"sessioncookie"` // Browser session cookie for login-required courses
		Download            DownloadConfig `toml:"Download" json:"Download" mapstructure:"download"`
		APIClientTimeoutSec int            `toml:"ApiClientTimeoutSec" json:"ApiClientTimeoutSec" mapstructure:"apiclienttimeoutsec" validate:"gte=0"`
		LogApiRequests      bool           `toml:"LogApiRequests" json:"LogApiRequests" mapstructure:"logapirequests"`
	}

	// DownloadConfig holds settings specific to the 'download' command.
	DownloadConfig struct {
		Concurrency      int  `toml:"Concurrency" json:"Concurrency" mapstructure:"concurrency" validate:"gte=1,lte=3"`
		ConfirmedOnly    bool `toml:"ConfirmedOnly" json:"ConfirmedOnly" mapstructure:"confirmedonly"` // Skip candidates that still need a type check
		SkipConfirmation bool `toml:"SkipConfirmation" json:"SkipConfirmation" mapstructure:"skipconfirmation"`
	}
)

// CandidateFile is one link discovered on a modules page.
type CandidateFile struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Filename       string   `json:"filename"`
	Type           FileType `json:"type"`
	Source         Source   `json:"source"`
	NeedsTypeCheck bool     `json:"needsTypeCheck"`
}

// Item converts a candidate into the payload accepted by the scheduler.
// Filename falls back to the title, matching what the selection UI sends.
func (c CandidateFile) Item() DownloadItem {
	name := c.Filename
	if name == "" {
		name = c.Title
	}
	return DownloadItem{
		ID:             c.ID,
		URL:            c.URL,
		Filename:       name,
		Source:         c.Source,
		NeedsTypeCheck: c.NeedsTypeCheck,
	}
}

// DownloadItem is the enqueue payload for the scheduler.
type DownloadItem struct {
	ID             string `json:"id" validate:"required"`
	URL            string `json:"url" validate:"required,url"`
	Filename       string `json:"filename"`
	Source         Source `json:"source"`
	NeedsTypeCheck bool   `json:"needsTypeCheck"`
}

// DownloadJob pairs an item with the origin its status events are routed to.
// It carries no resolved data; resolution happens when the job runs.
type DownloadJob struct {
	Item     DownloadItem
	OriginID string
}

// ResolvedTarget is the outcome of metadata resolution. DownloadURL is always
// an absolute URL; Filename and ContentType are empty when unknown.
type ResolvedTarget struct {
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// StatusEvent is one status transition for one item.
type StatusEvent struct {
	OriginID string         `json:"originId,omitempty"`
	ItemID   string         `json:"itemId"`
	Status   DownloadStatus `json:"status"`
	Error    string         `json:"error,omitempty"`
}

// FileInfo mirrors the subset of the Canvas Files API response we consume.
// Every field is optional.
type FileInfo struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Filename    string `json:"filename"`
	ContentType string `json:"content-type"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
}

// Name returns the best available filename from the metadata.
func (f FileInfo) Name() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	return f.Filename
}

// DecodeFileInfo parses an API body, tolerating Canvas' "while(1);" JSON prefix.
func DecodeFileInfo(body []byte) (FileInfo, error) {
	trimmed := strings.TrimSpace(string(body))
	trimmed = strings.TrimPrefix(trimmed, "while(1);")
	var info FileInfo
	if err := json.Unmarshal([]byte(trimmed), &info); err != nil {
		return FileInfo{}, err
	}
	return info, nil
}
