package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goTasks/internal"
	"github.com/MrEthical07/goTasks/refresh"
)

var (
	// ErrSessionNotFound is returned when a refresh token does not verify or
	// no longer belongs to its owner's session list.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when the session exists but its expiry has passed.
	ErrSessionExpired = errors.New("session expired")

	errUnchanged = errors.New("document unchanged")
)

// DefaultTTL is the session lifetime used when none is configured.
const DefaultTTL = 10 * 24 * time.Hour

// Manager creates, looks up and revokes refresh-token sessions embedded in user documents.
//
// Manager is safe for concurrent use; all mutation goes through [Store.Update].
type Manager struct {
	store *Store
	codec *refresh.Codec
	ttl   time.Duration
	now   func() time.Time
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager wires a Manager. A non-positive ttl selects DefaultTTL.
func NewManager(store *Store, codec *refresh.Codec, ttl time.Duration, opts ...Option) (*Manager, error) {
	if store == nil || codec == nil {
		return nil, errors.New("session manager requires a store and a refresh codec")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{store: store, codec: codec, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL reports the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Store exposes the underlying user store.
func (m *Manager) Store() *Store {
	return m.store
}

// CreateSession describes the createsession operation and its observable behavior.
//
// CreateSession mints a fresh refresh token for user, prunes the user's expired
// sessions, appends the new session and persists the document atomically. The
// raw token is returned exactly once; only its hash is stored. On success
// user.Sessions reflects the persisted list.
func (m *Manager) CreateSession(ctx context.Context, user *User) (string, error) {
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return "", err
	}
	raw, err := m.codec.Encode(user.ID, secret)
	if err != nil {
		return "", err
	}

	now := m.now()
	entry := Session{
		TokenHash: internal.HashToken(raw),
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(m.ttl).Unix(),
	}

	updated, err := m.store.Update(ctx, user.ID, func(u *User) error {
		u.pruneExpired(now)
		u.Sessions = append(u.Sessions, entry)
		return nil
	})
	if err != nil {
		return "", err
	}

	user.Sessions = updated.Sessions
	return raw, nil
}

// FindUserByRefreshToken verifies the token signature, loads the embedded owner
// and checks that the token is one of the owner's sessions. Expiry is not checked.
func (m *Manager) FindUserByRefreshToken(ctx context.Context, token string) (*User, error) {
	userID, err := m.codec.Decode(token)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	u, err := m.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if _, ok := u.FindSession(internal.HashToken(token)); !ok {
		return nil, ErrSessionNotFound
	}
	return u, nil
}

// Validate runs the full session check: signature, ownership, membership and expiry.
func (m *Manager) Validate(ctx context.Context, token string) (*User, *Session, error) {
	u, err := m.FindUserByRefreshToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	sess, _ := u.FindSession(internal.HashToken(token))
	if IsSessionExpired(sess.ExpiresAt, m.now()) {
		return nil, nil, ErrSessionExpired
	}
	return u, sess, nil
}

// RemoveSession deletes the session for token from userID's document.
// Removing an absent session, or a session of a missing user, is a no-op.
func (m *Manager) RemoveSession(ctx context.Context, userID, token string) error {
	hash := internal.HashToken(token)

	_, err := m.store.Update(ctx, userID, func(u *User) error {
		if !u.removeSession(hash) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) || errors.Is(err, ErrUserNotFound) {
		return nil
	}
	return err
}

// RevokeAll clears every session of userID and returns how many were removed.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int, error) {
	var removed int

	_, err := m.store.Update(ctx, userID, func(u *User) error {
		removed = len(u.Sessions)
		if removed == 0 {
			return errUnchanged
		}
		u.Sessions = nil
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// PruneExpired drops userID's expired sessions and returns how many were removed.
func (m *Manager) PruneExpired(ctx context.Context, userID string) (int, error) {
	var removed int
	now := m.now()

	_, err := m.store.Update(ctx, userID, func(u *User) error {
		removed = u.pruneExpired(now)
		if removed == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return removed, nil
}
