package clipboard

import "github.com/gaurav-prasanna/promptpipe/core"

// Selection is an open selection dialog. While one exists the handler
// refuses further pastes and submissions.
type Selection struct {
	items []core.ClipboardItem
}

// Items returns the items offered to the user.
func (s *Selection) Items() []core.ClipboardItem {
	out := make([]core.ClipboardItem, len(s.items))
	copy(out, s.items)
	return out
}

// pick returns the offered items whose IDs are in ids, in offer order.
// Unknown IDs are ignored.
func (s *Selection) pick(ids []string) []core.ClipboardItem {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []core.ClipboardItem
	for _, item := range s.items {
		if want[item.ID] {
			out = append(out, item)
		}
	}
	return out
}
