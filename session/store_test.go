package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testUser(id, email string) *User {
	return &User{
		ID:           id,
		Email:        email,
		PasswordHash: "$argon2id$placeholder",
		CreatedAt:    time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestStoreInsertAndFind(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "gt")
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUser("u-1", "a@example.com")))

	byID, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", byID.Email)
	assert.Equal(t, "$argon2id$placeholder", byID.PasswordHash)

	byEmail, err := store.FindByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", byEmail.ID)

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.FindByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStoreInsertDuplicateEmail(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "gt")
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testUser("u-1", "dup@example.com")))
	err := store.Insert(ctx, testUser("u-2", "dup@example.com"))
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = store.FindByID(ctx, "u-2")
	assert.ErrorIs(t, err, ErrUserNotFound, "losing insert must not write its document")
}

func TestStoreUpdateCallbackErrorIsReturnedUnchanged(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "gt")
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, testUser("u-1", "a@example.com")))

	sentinel := errors.New("stop")
	_, err := store.Update(ctx, "u-1", func(u *User) error {
		u.Email = "changed@example.com"
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	u, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	_, err = store.Update(ctx, "missing", func(*User) error { return nil })
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStoreConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "gt")
	store.retries = 100
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, testUser("u-1", "a@example.com")))

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, "u-1", func(u *User) error {
				u.Sessions = append(u.Sessions, Session{TokenHash: string(rune('a' + i)), ExpiresAt: 1 << 40})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	u, err := store.FindByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, u.Sessions, writers)
}

func TestStoreDeleteRemovesEmailIndex(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewStore(rdb, "gt")
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, testUser("u-1", "a@example.com")))

	require.NoError(t, store.Delete(ctx, "u-1"))
	require.NoError(t, store.Delete(ctx, "u-1"))

	assert.False(t, mr.Exists("gt:user:u-1"))
	assert.False(t, mr.Exists("gt:email:a@example.com"))

	require.NoError(t, store.Insert(ctx, testUser("u-2", "a@example.com")), "email must be reusable after delete")
}

func TestStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewStore(rdb, "gt")
	mr.Close()

	_, err := store.FindByID(context.Background(), "u-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	err = store.Insert(context.Background(), testUser("u-1", "a@example.com"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStoreCorruptDocument(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewStore(rdb, "gt")
	require.NoError(t, mr.Set("gt:user:u-1", "{not json"))

	_, err := store.FindByID(context.Background(), "u-1")
	assert.ErrorIs(t, err, ErrCorruptDocument)
}
