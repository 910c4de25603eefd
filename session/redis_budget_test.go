package session

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goTasks/refresh"
)

// cmdCounter is a go-redis hook counting commands and pipeline round trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func newCountedManager(t *testing.T) (*Manager, *cmdCounter, *User) {
	t.Helper()
	_, rdb := newTestRedis(t)
	counter := &cmdCounter{}
	rdb.AddHook(counter)

	codec, err := refresh.NewCodec(bytes.Repeat([]byte{'r'}, refresh.MinKeySize))
	require.NoError(t, err)
	m, err := NewManager(NewStore(rdb, "gt"), codec, time.Hour)
	require.NoError(t, err)

	u := testUser("u-1", "a@example.com")
	require.NoError(t, m.Store().Insert(context.Background(), u))
	// Connection setup commands are not part of any measured operation.
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return m, counter, u
}

func TestValidateIsSingleRead(t *testing.T) {
	m, counter, u := newCountedManager(t)
	ctx := context.Background()

	tok, err := m.CreateSession(ctx, u)
	require.NoError(t, err)

	counter.reset()
	_, _, err = m.Validate(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, int64(1), counter.commands.Load())
	require.Zero(t, counter.pipelines.Load())
}

func TestForgedTokenTouchesNoKeys(t *testing.T) {
	m, counter, _ := newCountedManager(t)

	counter.reset()
	_, _, err := m.Validate(context.Background(), "dTE.c2VjcmV0.c2ln")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Zero(t, counter.commands.Load())
}

func TestCreateSessionWritesOnce(t *testing.T) {
	m, counter, u := newCountedManager(t)

	counter.reset()
	_, err := m.CreateSession(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, int64(1), counter.pipelines.Load())
}
