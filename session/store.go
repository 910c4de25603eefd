package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrUserNotFound is returned when no document exists for the id or email.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Insert when the email index already points at a user.
	ErrEmailTaken = errors.New("email already registered")
	// ErrStoreUnavailable wraps Redis transport failures.
	ErrStoreUnavailable = errors.New("user store unavailable")
	// ErrConflict is returned when an optimistic update keeps losing the race.
	ErrConflict = errors.New("user document update conflict")
	// ErrCorruptDocument is returned when a stored document cannot be decoded.
	ErrCorruptDocument = errors.New("user document corrupt")
)

const (
	defaultUpdateRetries = 8
	updateRetryBase      = 2 * time.Millisecond
	updateRetryCap       = 50 * time.Millisecond
)

// insertScript claims the email index and writes the document in one step.
// KEYS[1]=email index, KEYS[2]=user document, ARGV[1]=user id, ARGV[2]=document.
const insertScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2])
return 1
`

var insertLua = redis.NewScript(insertScript)

// Store persists user documents, with their embedded sessions, as JSON values in Redis.
//
// Keys:
//
//	<prefix>:user:<id>      user document
//	<prefix>:email:<email>  user id (unique email index)
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	retries uint64
}

// NewStore creates a user [Store] backed by the given Redis client.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gt"
	}
	return &Store{redis: rdb, prefix: prefix, retries: defaultUpdateRetries}
}

func (s *Store) userKey(id string) string {
	return s.prefix + ":user:" + id
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

// Insert stores a new user. The email index is claimed atomically with the document write.
func (s *Store) Insert(ctx context.Context, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	created, err := insertLua.Run(ctx, s.redis, []string{s.emailKey(u.Email), s.userKey(u.ID)}, u.ID, data).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created == 0 {
		return ErrEmailTaken
	}
	return nil
}

// FindByID loads the user document in a single GET.
func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	return decodeUser(s.redis.Get(ctx, s.userKey(id)).Bytes())
}

// FindByEmail resolves the email index and loads the document.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.FindByID(ctx, id)
}

// Update applies fn to the current document and writes the result under WATCH,
// retrying when another writer changes the document first. If fn returns an
// error nothing is written and that error is returned unchanged.
func (s *Store) Update(ctx context.Context, id string, fn func(*User) error) (*User, error) {
	key := s.userKey(id)
	var updated *User

	backoff := retry.NewExponential(updateRetryBase)
	backoff = retry.WithCappedDuration(updateRetryCap, backoff)
	backoff = retry.WithJitter(updateRetryBase, backoff)
	backoff = retry.WithMaxRetries(s.retries, backoff)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			u, err := decodeUser(tx.Get(ctx, key).Bytes())
			if err != nil {
				return err
			}
			if err := fn(u); err != nil {
				return callbackError{err}
			}
			data, err := json.Marshal(u)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			if err != nil {
				return err
			}
			updated = u
			return nil
		}, key)

		if errors.Is(txErr, redis.TxFailedErr) {
			return retry.RetryableError(ErrConflict)
		}
		return txErr
	})
	if err != nil {
		return nil, classifyRedisErr(err)
	}

	return updated, nil
}

// Delete removes the user document and its email index. Deleting a missing user is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	key := s.userKey(id)

	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		u, err := decodeUser(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, s.emailKey(u.Email))
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil, errors.Is(err, ErrUserNotFound):
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		return classifyRedisErr(err)
	}
}

func decodeUser(data []byte, err error) (*User, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return &u, nil
}

// callbackError marks errors returned by an Update callback so they reach the caller unwrapped.
type callbackError struct{ err error }

func (e callbackError) Error() string { return e.err.Error() }

// classifyRedisErr leaves package sentinels, context errors and callback errors
// intact and wraps anything else as a Redis failure.
func classifyRedisErr(err error) error {
	var cb callbackError
	switch {
	case errors.As(err, &cb):
		return cb.err
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrCorruptDocument),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
