// Package classify decides whether a module-item row on a Canvas modules
// page represents an uploaded file rather than a quiz, page or assignment.
package classify

import (
	"regexp"
	"slices"
	"strings"

	"go-canvas-download/internal/dom"
)

// Verdict is the outcome of one signal.
type Verdict int

const (
	Unknown Verdict = iota
	Yes
	No
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "unknown"
}

// Signal inspects a row and the anchor inside it.
type Signal struct {
	Name  string
	Check func(row, anchor *dom.Node) Verdict
}

// maxRowDepth bounds the ancestor walk in FindModuleItemRow.
const maxRowDepth = 10

var (
	fileTypes    = []string{"file", "attachment"}
	nonFileTypes = []string{
		"assignment", "quiz", "discussion", "discussion_topic",
		"page", "wiki_page", "wikipage",
		"external_url", "externalurl",
		"external_tool", "externaltool", "context_external_tool",
		"sub_header", "subheader",
	}

	fileClassMarkers    = []string{"attachment", "type_file", "item_type_file"}
	nonFileClassMarkers = []string{
		"quiz", "assignment", "discussion", "wiki_page",
		"external_url", "context_external_tool", "sub_header",
	}

	// icon-document is absent on purpose: Canvas draws it for wiki pages too.
	fileIcons = []string{
		"icon-paperclip", "icon-download", "icon-pdf",
		"icon-ms-ppt", "icon-ms-word", "icon-ms-excel", "icon-attachment",
	}

	extensionTextRegex = regexp.MustCompile(`\.\w{2,5}$`)
)

// Signals are evaluated in order; the first definitive verdict wins.
var Signals = []Signal{
	{Name: "type-attribute", Check: typeAttribute},
	{Name: "row-class", Check: rowClass},
	{Name: "file-icon", Check: fileIcon},
	{Name: "extension-text", Check: extensionText},
}

// Classify runs signals in order and returns the first definitive verdict
// and the name of the signal that produced it.
func Classify(signals []Signal, row, anchor *dom.Node) (Verdict, string) {
	for _, s := range signals {
		if v := s.Check(row, anchor); v != Unknown {
			return v, s.Name
		}
	}
	return Unknown, ""
}

// IsFileRow reports whether row is a file item. Rows no signal can decide
// are not files.
func IsFileRow(row, anchor *dom.Node) bool {
	if row == nil {
		return false
	}
	v, _ := Classify(Signals, row, anchor)
	return v == Yes
}

// FindModuleItemRow walks up from anchor, itself included, looking for the
// enclosing module item. It gives up at <body> or after a fixed number of levels.
func FindModuleItemRow(anchor *dom.Node) *dom.Node {
	el := anchor
	for i := 0; i < maxRowDepth && el != nil; i++ {
		if el.Is("body") {
			return nil
		}
		if el.Kind == dom.ElementNode && isRow(el) {
			return el
		}
		el = el.Parent
	}
	return nil
}

func isRow(n *dom.Node) bool {
	return n.HasClass("context_module_item") ||
		n.HasClass("ig-row") ||
		strings.Contains(n.ID(), "context_module_item_")
}

func typeAttribute(row, _ *dom.Node) Verdict {
	var value string
	for _, attr := range []string{"data-module-type", "data-type", "data-module-item-type"} {
		if v := row.Attr(attr); v != "" {
			value = strings.ToLower(strings.TrimSpace(v))
			break
		}
	}
	if value == "" {
		return Unknown
	}
	if slices.Contains(fileTypes, value) {
		return Yes
	}
	if slices.Contains(nonFileTypes, value) {
		return No
	}
	return Unknown
}

func rowClass(row, _ *dom.Node) Verdict {
	classes := strings.ToLower(row.ClassName())
	if classes == "" {
		return Unknown
	}
	if containsAny(classes, fileClassMarkers) {
		return Yes
	}
	if containsAny(classes, nonFileClassMarkers) {
		return No
	}
	return Unknown
}

func fileIcon(row, _ *dom.Node) Verdict {
	icon := row.FindFirst(func(n *dom.Node) bool {
		if !n.Is("i") && !n.Is("span") {
			return false
		}
		cls := strings.ToLower(n.ClassName())
		return strings.Contains(cls, "icon-") && containsAny(cls, fileIcons)
	})
	if icon != nil {
		return Yes
	}
	return Unknown
}

func extensionText(_, anchor *dom.Node) Verdict {
	if anchor == nil {
		return Unknown
	}
	text := strings.TrimSpace(anchor.TextContent())
	if text == "" {
		text = strings.TrimSpace(anchor.Attr("title"))
	}
	if text == "" {
		text = strings.TrimSpace(anchor.Attr("aria-label"))
	}
	if extensionTextRegex.MatchString(text) {
		return Yes
	}
	return Unknown
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
