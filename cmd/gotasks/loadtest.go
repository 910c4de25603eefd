package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	goTasks "github.com/MrEthical07/goTasks"
	"github.com/MrEthical07/goTasks/internal/config"
	"github.com/MrEthical07/goTasks/tasks"
)

type loadtestOptions struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

type seededUser struct {
	id      string
	refresh string
	listID  string
}

func newLoadtestCommand() *cobra.Command {
	var o loadtestOptions

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure session validation, token refresh and task writes against Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.users <= 0 || o.concurrency <= 0 || o.ops <= 0 {
				return errors.New("users, concurrency and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	cmd.Flags().IntVar(&o.users, "users", 1000, "number of users to sign up")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&o.ops, "ops", 20000, "operations per phase")
	cmd.Flags().StringVar(&o.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR or an embedded redis is used")
	cmd.Flags().StringVar(&o.prefix, "prefix", "gtload", "key prefix for seeded data")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, o loadtestOptions) error {
	addr := o.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	rdb, cleanup, err := openRedis(ctx, config.RedisConfig{Addr: addr}, addr == "", log)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := goTasks.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-signing-key-0123456789ab")
	cfg.Session.RedisPrefix = o.prefix
	cfg.RateLimit.Enabled = false
	cfg.Audit.Enabled = false
	// Cheapest accepted argon2 cost so seeding measures Redis, not hashing.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := goTasks.New().WithConfig(cfg).WithRedis(rdb).WithLogger(log).Build()
	if err != nil {
		return err
	}
	defer engine.Close()
	store := tasks.NewStore(rdb, o.prefix)

	fmt.Fprintf(out, "seeding %d users...\n", o.users)
	startSeed := time.Now()
	users := make([]seededUser, o.users)
	for i := range users {
		res, err := engine.Signup(ctx, fmt.Sprintf("load-%d-%d@example.com", startSeed.UnixNano(), i), "load-password")
		if err != nil {
			return fmt.Errorf("seed user %d: %w", i, err)
		}
		list, err := store.CreateList(ctx, res.User.ID, "load")
		if err != nil {
			return fmt.Errorf("seed list %d: %w", i, err)
		}
		users[i] = seededUser{id: res.User.ID, refresh: res.RefreshToken, listID: list.ID}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validate := runPhase(o.ops, o.concurrency, 7919, func(r *rand.Rand, i int) error {
		_, err := engine.ValidateSession(ctx, users[r.Intn(len(users))].refresh)
		return err
	})
	refresh := runPhase(o.ops, o.concurrency, 6151, func(r *rand.Rand, i int) error {
		u := users[r.Intn(len(users))]
		owner, err := engine.ValidateSession(ctx, u.refresh)
		if err != nil {
			return err
		}
		tok, err := engine.RefreshAccessToken(ctx, owner.ID)
		if err != nil {
			return err
		}
		_, err = engine.VerifyAccessToken(tok)
		return err
	})
	writes := runPhase(o.ops, o.concurrency, 4049, func(r *rand.Rand, i int) error {
		u := users[r.Intn(len(users))]
		_, err := store.CreateTask(ctx, u.id, u.listID, fmt.Sprintf("task-%d", i))
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "validate", validate)
	printStats(out, "refresh", refresh)
	printStats(out, "task-write", writes)
	return nil
}

// runPhase runs ops calls of op across concurrency workers and records the
// latency of each call.
func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
