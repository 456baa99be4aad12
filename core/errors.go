package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. None of these is fatal: the worst outcome is an omitted
// item and a notice for the user.
var (
	ErrBudgetExceeded     = errors.New("budget exceeded")
	ErrRetrievalFailed    = errors.New("retrieval failed")
	ErrUnsupportedType    = errors.New("unsupported type")
	ErrMalformedMarkup    = errors.New("malformed markup")
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrSelectionPending   = errors.New("selection dialog is open")
)

// NoticeKind classifies a user-visible notification.
type NoticeKind string

const (
	NoticeBudgetExceeded  NoticeKind = "budget-exceeded"
	NoticeRetrievalFailed NoticeKind = "retrieval-failed"
	NoticeUnsupportedType NoticeKind = "unsupported-type"
	NoticeMalformedMarkup NoticeKind = "malformed-markup"
	NoticeTooMany         NoticeKind = "too-many-attachments"
)

var noticeErrors = map[NoticeKind]error{
	NoticeBudgetExceeded:  ErrBudgetExceeded,
	NoticeRetrievalFailed: ErrRetrievalFailed,
	NoticeUnsupportedType: ErrUnsupportedType,
	NoticeMalformedMarkup: ErrMalformedMarkup,
	NoticeTooMany:         ErrTooManyAttachments,
}

// Notice is a transient, user-visible report about one item.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Item    string     `json:"item"`
	Message string     `json:"message"`
}

// Err returns the notice as an error wrapping its sentinel.
func (n Notice) Err() error {
	base, ok := noticeErrors[n.Kind]
	if !ok {
		return errors.New(n.Message)
	}
	return fmt.Errorf("%s: %s: %w", n.Item, n.Message, base)
}

func (n Notice) String() string {
	return fmt.Sprintf("[%s] %s: %s", n.Kind, n.Item, n.Message)
}
