// Command gootp-loadtest measures code issuance and session validation
// throughput against Redis (or an embedded miniredis).
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/credstore"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 1000, "number of session tokens to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (issue + validate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "gotp-load", "redis key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := newEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	tokens, err := seedSessions(ctx, engine, *sessions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	issueStats := runPhase("issue", *ops, *concurrency, func(i int, _ *rand.Rand) error {
		// Unknown emails take the decoy path: a full store write, no delivery.
		_, err := engine.RequestResetCode(ctx, fmt.Sprintf("load-%d@example.com", i))
		return err
	})
	validateStats := runPhase("validate", *ops, *concurrency, func(_ int, r *rand.Rand) error {
		_, err := engine.Validate(ctx, tokens[r.Intn(len(tokens))])
		return err
	})

	fmt.Println("---- results ----")
	fmt.Println(issueStats)
	fmt.Println(validateStats)
}

func newEngine(client redis.UniversalClient, prefix string) (*goOTP.Engine, error) {
	cfg := goOTP.DefaultConfig()
	cfg.Session.PrivateKey = []byte(strings.Repeat("L", 32))
	cfg.Redis.KeyPrefix = prefix
	cfg.Login.MaxAttempts = 0
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	return goOTP.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(credstore.NewMemory()).
		WithDeliverer(goOTP.DelivererFunc(func(context.Context, goOTP.Delivery) error { return nil })).
		WithMetricsEnabled(false).
		Build()
}

func seedSessions(ctx context.Context, engine *goOTP.Engine, n int) ([]string, error) {
	const username, password = "loadtest", "loadtest-password"
	if _, err := engine.CreateAdmin(ctx, username, password); err != nil {
		return nil, err
	}

	tokens := make([]string, 0, n)
	for i := 0; i < n; i++ {
		session, err := engine.LoginAdmin(ctx, username, password)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, session.Token)
	}
	return tokens, nil
}

func runPhase(name string, ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
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

	slices.Sort(latencies)
	return phaseStats{
		name:     name,
		elapsed:  time.Since(start),
		samples:  latencies,
		failures: failures,
	}
}

// phaseStats summarizes one phase. Failures are counted but their
// latencies still enter the percentiles.
type phaseStats struct {
	name     string
	elapsed  time.Duration
	samples  []time.Duration
	failures int64
}

func (s phaseStats) quantile(q float64) time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	idx := int(q * float64(len(s.samples)-1))
	return s.samples[idx]
}

func (s phaseStats) String() string {
	var rate float64
	if s.elapsed > 0 {
		rate = float64(len(s.samples)) / s.elapsed.Seconds()
	}
	return fmt.Sprintf("%-8s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s",
		s.name,
		len(s.samples),
		s.failures,
		s.elapsed.Round(time.Millisecond),
		rate,
		s.quantile(0.50).Round(time.Microsecond),
		s.quantile(0.95).Round(time.Microsecond),
		s.quantile(0.99).Round(time.Microsecond),
	)
}
