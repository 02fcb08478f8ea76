// Command gorefresh-loadtest seeds token families and measures rotation and
// revocation throughput against a real Redis (REDIS_ADDR / -redis-addr) or
// an embedded miniredis when none is configured.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	goRefresh "github.com/MrEthical07/goRefresh"
)

type familyState struct {
	memberID int64
	familyID string
	jti      string
	mu       sync.Mutex
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// .env is optional; flags and real env win.
	_ = godotenv.Load()

	var (
		families    = flag.Int("families", 50000, "number of token families to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "rotations to perform")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "rtlt", "redis key prefix")
	)
	flag.Parse()

	if *families <= 0 || *concurrency <= 0 || *ops <= 0 {
		log.Fatal().Msg("families, concurrency, and ops must be > 0")
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
			log.Fatal().Err(err).Msg("failed to start miniredis")
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		log.Info().Str("addr", addr).Msg("using miniredis")
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		log.Info().Str("addr", addr).Msg("using redis")
	}
	defer cleanup()

	engine, err := goRefresh.New().
		WithRedis(client).
		WithRedisPrefix(*prefix).
		Build(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("engine build failed")
	}
	defer engine.Close()

	states := make([]familyState, *families)
	log.Info().Int("families", *families).Msg("seeding")
	startSeed := time.Now()
	for i := 0; i < *families; i++ {
		familyID, err := goRefresh.NewFamilyID()
		if err != nil {
			log.Fatal().Err(err).Msg("family id generation failed")
		}
		memberID := int64(i%1000 + 1)
		issued, err := engine.Issue(ctx, memberID, "load-user", familyID)
		if err != nil {
			log.Fatal().Err(err).Msg("seed issue failed")
		}
		states[i] = familyState{memberID: memberID, familyID: familyID, jti: issued.JTI}
	}
	log.Info().Dur("elapsed", time.Since(startSeed)).Msg("seeded")

	rotateStats := runRotatePhase(ctx, engine, states, *ops, *concurrency)
	revokeStats := runRevokePhase(ctx, engine, states, *concurrency)

	printStats(log, "rotate", rotateStats)
	printStats(log, "revoke", revokeStats)

	snap := engine.MetricsSnapshot()
	log.Info().
		Uint64("rotate_success", snap.RotateSuccess).
		Uint64("rotate_reuse", snap.RotateReuse).
		Uint64("rotate_family_revoked", snap.RotateFamilyRevoked).
		Uint64("revoke_family", snap.RevokeFamily).
		Msg("engine counters")
}

func runRotatePhase(ctx context.Context, engine *goRefresh.Engine, states []familyState, ops, concurrency int) phaseStats {
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
				state := &states[r.Intn(len(states))]

				state.mu.Lock()
				t0 := time.Now()
				rot, err := engine.Rotate(ctx, state.jti)
				d := time.Since(t0)
				if err == nil {
					state.jti = rot.NewJTI
				} else {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func runRevokePhase(ctx context.Context, engine *goRefresh.Engine, states []familyState, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, len(states))
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= len(states) {
					return
				}
				t0 := time.Now()
				_, err := engine.RevokeFamily(ctx, states[i].familyID)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
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
		return phaseStats{total: total}
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(log zerolog.Logger, name string, s phaseStats) {
	log.Info().
		Str("phase", name).
		Int("ops", s.ops).
		Int64("failures", s.failures).
		Dur("total", s.total).
		Float64("ops_per_sec", s.opsPerS).
		Dur("p50", s.p50).
		Dur("p95", s.p95).
		Dur("p99", s.p99).
		Msg("phase results")
}
