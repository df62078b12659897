// Package rules implements the ordered classification pipeline that
// assigns a disposition to each message during a folder walk. Rules are
// evaluated in a fixed order and the first match wins; later rules are
// never consulted.
package rules

import (
	"context"
	"fmt"
)

// Action is what the router should do with a message.
type Action int

const (
	// ActionKeep leaves the message in place.
	ActionKeep Action = iota

	// ActionMoveToTrash moves the message to the account's trash folder.
	ActionMoveToTrash

	// ActionMoveToJunk moves the message to the account's junk folder.
	ActionMoveToJunk

	// ActionMoveToFolder moves the message to Disposition.Folder.
	ActionMoveToFolder

	// ActionDelete flag-deletes the message without a copy.
	ActionDelete
)

// Label is a classifier training label.
type Label string

const (
	LabelSpam Label = "spam"
	LabelHam  Label = "ham"
)

// Verdict is the outcome of an external classifier score.
type Verdict int

const (
	// VerdictPass means the classifier did not object to the message.
	VerdictPass Verdict = iota

	// VerdictReject means the classifier scored the message as spam.
	VerdictReject
)

// Disposition is the classification outcome for one message. The zero
// value is Keep.
type Disposition struct {
	Action Action

	// Folder is the move target for ActionMoveToFolder.
	Folder string

	// Learn, when non-empty, feeds the message to the classifier under
	// this label before it is routed.
	Learn Label
}

// Keep is the disposition for messages no rule matched.
var Keep = Disposition{Action: ActionKeep}

// String renders the disposition for log output.
func (d Disposition) String() string {
	var s string
	switch d.Action {
	case ActionKeep:
		s = "keep"
	case ActionMoveToTrash:
		s = "trash"
	case ActionMoveToJunk:
		s = "junk"
	case ActionMoveToFolder:
		s = "move:" + d.Folder
	case ActionDelete:
		s = "delete"
	default:
		s = fmt.Sprintf("action(%d)", int(d.Action))
	}
	if d.Learn != "" {
		s += "+learn:" + string(d.Learn)
	}
	return s
}

// Classifier is the external spam classifier capability. Both operations
// may fail independently; the engine degrades Score failures to a
// pass-through and never escalates them.
type Classifier interface {
	// Train feeds a message body to the classifier under the given label.
	Train(ctx context.Context, body []byte, label Label) error

	// Score asks the classifier for a verdict on the message body.
	Score(ctx context.Context, body []byte) (Verdict, error)
}

// BodyFunc lazily fetches the full message body. Walks that never reach
// the classifier rule skip the fetch entirely.
type BodyFunc func(ctx context.Context) ([]byte, error)
