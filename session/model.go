package session

import "time"

// Session is one refresh-token session embedded in its owner's document.
// Only the SHA-256 hash of the raw refresh token is kept.
type Session struct {
	TokenHash string `json:"tokenHash"`
	CreatedAt int64  `json:"createdAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// User is the persisted account document.
type User struct {
	ID           string    `json:"_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password"`
	Sessions     []Session `json:"sessions"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PublicUser is the profile returned to clients.
type PublicUser struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// Public strips credentials and sessions.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}

// FindSession returns the session whose hash equals tokenHash.
func (u *User) FindSession(tokenHash string) (*Session, bool) {
	for i := range u.Sessions {
		if u.Sessions[i].TokenHash == tokenHash {
			return &u.Sessions[i], true
		}
	}
	return nil, false
}

// IsSessionExpired reports whether a session ending at expiresAt (unix seconds)
// is expired at now. There is no grace period.
func IsSessionExpired(expiresAt int64, now time.Time) bool {
	return now.Unix() >= expiresAt
}

// pruneExpired drops every session expired at now and reports how many were removed.
func (u *User) pruneExpired(now time.Time) int {
	kept := u.Sessions[:0]
	for _, s := range u.Sessions {
		if !IsSessionExpired(s.ExpiresAt, now) {
			kept = append(kept, s)
		}
	}
	removed := len(u.Sessions) - len(kept)
	u.Sessions = kept
	return removed
}

// removeSession drops the session with tokenHash and reports whether it was present.
func (u *User) removeSession(tokenHash string) bool {
	for i := range u.Sessions {
		if u.Sessions[i].TokenHash == tokenHash {
			u.Sessions = append(u.Sessions[:i], u.Sessions[i+1:]...)
			return true
		}
	}
	return false
}
