package loginform

import (
	"fmt"
	"io"
	"time"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Notification is a transient message shown to the user.
type Notification struct {
	Title       string
	Description string
	Status      string
	Duration    time.Duration
	Closable    bool
}

type Notifier interface {
	Notify(n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}

// WriterNotifier prints notifications as single lines.
type WriterNotifier struct {
	w io.Writer
}

func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

func (n *WriterNotifier) Notify(note Notification) {
	mark := "*"
	if note.Status == StatusError {
		mark = "!"
	}
	fmt.Fprintf(n.w, "%s %s: %s\n", mark, note.Title, note.Description)
}
