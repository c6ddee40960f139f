package remote

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Level is the severity of a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a short, user-visible message about a remote call
type Notification struct {
	Level       Level
	Title       string
	Description string
	Err         error
}

// Notifier surfaces notifications to the user
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	Log logrus.FieldLogger
}

// Notify implements Notifier
func (l LogNotifier) Notify(n Notification) {
	entry := l.Log.WithField("title", n.Title)
	if n.Err != nil {
		entry = entry.WithError(n.Err)
	}
	if n.Level == LevelError {
		entry.Error(n.Description)
		return
	}
	entry.Info(n.Description)
}

// Recorder keeps every notification; useful when the caller renders them itself
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// Drain returns and forgets the recorded notifications
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items
	r.items = nil
	return items
}
