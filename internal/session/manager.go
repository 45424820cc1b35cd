package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wapuda/vidfetch/internal/media"
)

// Manager owns the session lifecycle on top of a Store. It is shared by the
// dispatcher and the worker.
type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Open stores a fresh session for s.ChatID, replacing any previous one.
// The returned copy carries the token that format menus must echo back.
func (m *Manager) Open(ctx context.Context, s Session) (*Session, error) {
	s.Token = uuid.NewString()
	s.State = StateAwaiting
	s.CreatedAt = m.now().UTC()
	if err := m.store.Put(ctx, &s); err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Lookup returns the live session or ErrExpired.
func (m *Manager) Lookup(ctx context.Context, chatID int64) (*Session, error) {
	s, err := m.store.Get(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrExpired
	}
	return s, err
}

// Claim validates a menu selection against the stored session and marks the
// session as processing. The index is checked against the exact list that was
// presented: a different token means the menu belongs to an older session.
func (m *Manager) Claim(ctx context.Context, chatID int64, token string, index int) (*Session, media.Format, error) {
	var (
		claimed *Session
		chosen  media.Format
	)
	err := m.store.Update(ctx, chatID, func(cur *Session) (*Session, error) {
		if cur == nil || cur.Token != token {
			return nil, ErrExpired
		}
		if cur.State == StateProcessing {
			return nil, ErrBusy
		}
		if index < 0 || index >= len(cur.Formats) {
			return nil, ErrBadChoice
		}
		cur.State = StateProcessing
		chosen = cur.Formats[index]
		claimed = cur.Clone()
		return cur, nil
	})
	if err != nil {
		return nil, media.Format{}, err
	}
	return claimed, chosen, nil
}

// Release deletes the session if it still carries token. A newer session
// opened by a later link is left alone. It reports whether anything was removed.
func (m *Manager) Release(ctx context.Context, chatID int64, token string) (bool, error) {
	removed := false
	err := m.store.Update(ctx, chatID, func(cur *Session) (*Session, error) {
		if cur == nil {
			return nil, nil
		}
		if cur.Token != token {
			return cur, nil
		}
		removed = true
		return nil, nil
	})
	return removed, err
}

// Drop removes whatever session the chat has.
func (m *Manager) Drop(ctx context.Context, chatID int64) error {
	return m.store.Remove(ctx, chatID)
}
