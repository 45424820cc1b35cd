package session

import (
	"context"
	"errors"
	"time"

	"github.com/wapuda/vidfetch/internal/media"
)

var (
	// ErrNotFound is returned by a Store when no entry exists for a chat.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is what callers see for a missing or superseded session.
	ErrExpired = errors.New("session expired")

	// ErrBusy is returned when a format was already picked for the session.
	ErrBusy = errors.New("session already processing")

	// ErrBadChoice is returned for an index outside the stored format list.
	ErrBadChoice = errors.New("format choice out of range")
)

// State of a session between link submission and job completion.
type State string

const (
	StateAwaiting   State = "awaiting"
	StateProcessing State = "processing"
)

// Session is the per-chat record linking a submitted URL to its format menu.
type Session struct {
	ChatID    int64             `json:"chat_id"`
	UserID    int64             `json:"user_id"`
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Formats   []media.Format    `json:"formats"`
	Trim      *media.TrimWindow `json:"trim,omitempty"`
	Token     string            `json:"token"`
	State     State             `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Formats = append([]media.Format(nil), s.Formats...)
	if s.Trim != nil {
		w := *s.Trim
		c.Trim = &w
	}
	return &c
}

// Store is a concurrency-safe map from chat id to session.
type Store interface {
	Put(ctx context.Context, s *Session) error
	// Get returns ErrNotFound when there is no live entry.
	Get(ctx context.Context, chatID int64) (*Session, error)
	Remove(ctx context.Context, chatID int64) error
	// Update applies fn atomically to the current entry. fn receives a copy
	// (nil when absent) and returns the replacement; a nil replacement deletes
	// the entry. An error from fn aborts without writing and is returned as is.
	Update(ctx context.Context, chatID int64, fn func(*Session) (*Session, error)) error
}
