// Package clipboard decides what to do with a paste event and processes the
// items the user keeps.
package clipboard

import (
	"strings"

	"github.com/gaurav-prasanna/promptpipe/core"
)

// Kind is the coarse content category of a clipboard item.
type Kind string

const (
	KindImage     Kind = "image"
	KindPlainText Kind = "plain-text"
	KindMarkup    Kind = "markup"
	KindOther     Kind = "other"
)

// KindOf classifies a single clipboard item.
func KindOf(item core.ClipboardItem) Kind {
	mt := strings.ToLower(strings.TrimSpace(item.MIMEType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case mt == "text/plain" && item.Kind == core.ClipboardString:
		return KindPlainText
	case mt == "text/html" && item.Kind == core.ClipboardString:
		return KindMarkup
	}
	return KindOther
}

// Action is the classifier's verdict.
type Action int

const (
	// PassThroughToHost leaves the paste to the host's default behavior.
	PassThroughToHost Action = iota
	// AutoHandleImage sends the image items straight to the re-encoder.
	AutoHandleImage
	// ShowSelectionDialog asks the user which items to keep.
	ShowSelectionDialog
)

func (a Action) String() string {
	switch a {
	case AutoHandleImage:
		return "auto-handle-image"
	case ShowSelectionDialog:
		return "show-selection-dialog"
	}
	return "pass-through"
}

// PasteEvent is every representation a paste exposes.
type PasteEvent struct {
	Items []core.ClipboardItem
}

// Decision is the result of Classify. Items is set for AutoHandleImage
// (the image items) and ShowSelectionDialog (every item).
type Decision struct {
	Action Action
	Items  []core.ClipboardItem
}

// Classifier maps paste events to decisions.
type Classifier struct {
	dialog bool
}

// NewClassifier creates a Classifier. dialogEnabled gates ShowSelectionDialog.
func NewClassifier(dialogEnabled bool) *Classifier {
	return &Classifier{dialog: dialogEnabled}
}

// Classify inspects the distinct kinds in ev. A lone image kind is handled
// automatically and lone plain text goes to the host; anything else opens
// the selection dialog when enabled and otherwise passes through.
func (c *Classifier) Classify(ev PasteEvent) Decision {
	var kinds []Kind
	seen := map[Kind]bool{}
	for _, item := range ev.Items {
		k := KindOf(item)
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}

	if len(kinds) == 1 {
		switch kinds[0] {
		case KindImage:
			return Decision{Action: AutoHandleImage, Items: ev.Items}
		case KindPlainText:
			return Decision{Action: PassThroughToHost}
		}
	}
	if len(kinds) == 0 || !c.dialog {
		return Decision{Action: PassThroughToHost}
	}
	items := make([]core.ClipboardItem, len(ev.Items))
	copy(items, ev.Items)
	return Decision{Action: ShowSelectionDialog, Items: items}
}
