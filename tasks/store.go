package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrNotFound is returned for missing ids and for ids owned by another user.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for empty or oversized titles and empty owner ids.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable wraps Redis transport failures.
	ErrStoreUnavailable = errors.New("task store unavailable")
	// ErrConflict is returned when an optimistic transaction keeps losing the race.
	ErrConflict = errors.New("task store conflict")
	// ErrCorruptDocument is returned when a stored document cannot be decoded.
	ErrCorruptDocument = errors.New("task document corrupt")
)

const (
	defaultTxRetries = 8
	txRetryBase      = 2 * time.Millisecond
	txRetryCap       = 50 * time.Millisecond
)

// Store persists lists and tasks as JSON documents in Redis.
//
// Keys:
//
//	<prefix>:list:<id>              list document
//	<prefix>:list:<id>:tasks        sorted set of task ids, by creation time
//	<prefix>:task:<id>              task document
//	<prefix>:owner:<userId>:lists   sorted set of list ids, by creation time
//
// Every read and write is scoped to the owner; a list owned by someone else
// is indistinguishable from a missing one.
type Store struct {
	redis   redis.UniversalClient
	prefix  string
	retries uint64
	now     func() time.Time
}

// NewStore creates a task [Store] backed by the given Redis client.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gt"
	}
	return &Store{redis: rdb, prefix: prefix, retries: defaultTxRetries, now: time.Now}
}

func (s *Store) listKey(id string) string      { return s.prefix + ":list:" + id }
func (s *Store) listTasksKey(id string) string { return s.prefix + ":list:" + id + ":tasks" }
func (s *Store) taskKey(id string) string      { return s.prefix + ":task:" + id }
func (s *Store) ownerKey(owner string) string  { return s.prefix + ":owner:" + owner + ":lists" }

// reader is the read subset shared by the client and a WATCH transaction.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// CreateList stores a new list for owner.
func (s *Store) CreateList(ctx context.Context, owner, title string) (*List, error) {
	t, ok := NormalizeTitle(title)
	if !ok || owner == "" {
		return nil, ErrInvalidInput
	}

	l := &List{ID: uuid.NewString(), Title: t, OwnerID: owner, CreatedAt: s.now().UTC()}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.listKey(l.ID), data, 0)
		pipe.ZAdd(ctx, s.ownerKey(owner), redis.Z{Score: float64(l.CreatedAt.UnixMicro()), Member: l.ID})
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return l, nil
}

// Lists returns every list of owner, oldest first.
func (s *Store) Lists(ctx context.Context, owner string) ([]List, error) {
	ids, err := s.redis.ZRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, classify(err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.listKey(id)
	}
	return mgetDocs[List](ctx, s.redis, keys)
}

// List returns one list of owner.
func (s *Store) List(ctx context.Context, owner, id string) (*List, error) {
	l, err := s.ownedList(ctx, s.redis, owner, id)
	if err != nil {
		return nil, classify(err)
	}
	return l, nil
}

// UpdateList renames a list of owner.
func (s *Store) UpdateList(ctx context.Context, owner, id, title string) (*List, error) {
	t, ok := NormalizeTitle(title)
	if !ok {
		return nil, ErrInvalidInput
	}

	var out *List
	err := s.txn(ctx, func(tx *redis.Tx) error {
		l, err := s.ownedList(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		l.Title = t
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.listKey(id), data, 0)
			return nil
		}); err != nil {
			return err
		}
		out = l
		return nil
	}, s.listKey(id))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteList removes a list of owner together with all of its tasks and
// returns the removed list.
func (s *Store) DeleteList(ctx context.Context, owner, id string) (*List, error) {
	var out *List
	err := s.txn(ctx, func(tx *redis.Tx) error {
		l, err := s.ownedList(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		taskIDs, err := tx.ZRange(ctx, s.listTasksKey(id), 0, -1).Result()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(taskIDs)+2)
		keys = append(keys, s.listKey(id), s.listTasksKey(id))
		for _, tid := range taskIDs {
			keys = append(keys, s.taskKey(tid))
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			pipe.ZRem(ctx, s.ownerKey(owner), id)
			return nil
		}); err != nil {
			return err
		}
		out = l
		return nil
	}, s.listKey(id), s.listTasksKey(id))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateTask adds a task to a list of owner.
func (s *Store) CreateTask(ctx context.Context, owner, listID, title string) (*Task, error) {
	t, ok := NormalizeTitle(title)
	if !ok {
		return nil, ErrInvalidInput
	}

	task := &Task{ID: uuid.NewString(), Title: t, ListID: listID, CreatedAt: s.now().UTC()}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}

	err = s.txn(ctx, func(tx *redis.Tx) error {
		if _, err := s.ownedList(ctx, tx, owner, listID); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.taskKey(task.ID), data, 0)
			pipe.ZAdd(ctx, s.listTasksKey(listID), redis.Z{Score: float64(task.CreatedAt.UnixMicro()), Member: task.ID})
			return nil
		})
		return err
	}, s.listKey(listID))
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Tasks returns the tasks of a list of owner, oldest first.
func (s *Store) Tasks(ctx context.Context, owner, listID string) ([]Task, error) {
	if _, err := s.ownedList(ctx, s.redis, owner, listID); err != nil {
		return nil, classify(err)
	}

	ids, err := s.redis.ZRange(ctx, s.listTasksKey(listID), 0, -1).Result()
	if err != nil {
		return nil, classify(err)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}
	return mgetDocs[Task](ctx, s.redis, keys)
}

// UpdateTask applies patch to a task of a list of owner.
func (s *Store) UpdateTask(ctx context.Context, owner, listID, taskID string, patch TaskPatch) (*Task, error) {
	var title string
	if patch.Title != nil {
		t, ok := NormalizeTitle(*patch.Title)
		if !ok {
			return nil, ErrInvalidInput
		}
		title = t
	}

	var out *Task
	err := s.txn(ctx, func(tx *redis.Tx) error {
		task, err := s.listTask(ctx, tx, owner, listID, taskID)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			task.Title = title
		}
		if patch.Completed != nil {
			task.Completed = *patch.Completed
		}
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.taskKey(taskID), data, 0)
			return nil
		}); err != nil {
			return err
		}
		out = task
		return nil
	}, s.listKey(listID), s.taskKey(taskID))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTask removes a task of a list of owner and returns it.
func (s *Store) DeleteTask(ctx context.Context, owner, listID, taskID string) (*Task, error) {
	var out *Task
	err := s.txn(ctx, func(tx *redis.Tx) error {
		task, err := s.listTask(ctx, tx, owner, listID, taskID)
		if err != nil {
			return err
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.taskKey(taskID))
			pipe.ZRem(ctx, s.listTasksKey(listID), taskID)
			return nil
		}); err != nil {
			return err
		}
		out = task
		return nil
	}, s.listKey(listID), s.taskKey(taskID))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOwner removes every list and task of owner and returns how many lists were removed.
func (s *Store) DeleteOwner(ctx context.Context, owner string) (int, error) {
	ids, err := s.redis.ZRange(ctx, s.ownerKey(owner), 0, -1).Result()
	if err != nil {
		return 0, classify(err)
	}

	var removed int
	for _, id := range ids {
		if _, err := s.DeleteList(ctx, owner, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}

	if err := s.redis.Del(ctx, s.ownerKey(owner)).Err(); err != nil {
		return removed, classify(err)
	}
	return removed, nil
}

func (s *Store) ownedList(ctx context.Context, r reader, owner, id string) (*List, error) {
	l, err := getDoc[List](ctx, r, s.listKey(id))
	if err != nil {
		return nil, err
	}
	if l.OwnerID != owner {
		return nil, ErrNotFound
	}
	return l, nil
}

func (s *Store) listTask(ctx context.Context, r reader, owner, listID, taskID string) (*Task, error) {
	if _, err := s.ownedList(ctx, r, owner, listID); err != nil {
		return nil, err
	}
	task, err := getDoc[Task](ctx, r, s.taskKey(taskID))
	if err != nil {
		return nil, err
	}
	if task.ListID != listID {
		return nil, ErrNotFound
	}
	return task, nil
}

// txn runs fn under WATCH on keys, retrying with capped jittered backoff
// while another writer touches a watched key first.
func (s *Store) txn(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	backoff := retry.NewExponential(txRetryBase)
	backoff = retry.WithCappedDuration(txRetryCap, backoff)
	backoff = retry.WithJitter(txRetryBase, backoff)
	backoff = retry.WithMaxRetries(s.retries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.redis.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(ErrConflict)
		}
		return err
	})
	return classify(err)
}

func getDoc[T any](ctx context.Context, r reader, key string) (*T, error) {
	data, err := r.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return &doc, nil
}

func mgetDocs[T any](ctx context.Context, rdb redis.UniversalClient, keys []string) ([]T, error) {
	out := make([]T, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, classify(err)
	}
	for _, v := range vals {
		// Index entries can briefly outlive their document; skip them.
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var doc T
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
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
