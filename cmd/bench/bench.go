package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/lru/cache"
)

// Report summarises a finished run.
type Report struct {
	Elapsed time.Duration
	Ops     uint64
	Reads   uint64
	Writes  uint64
	Hits    uint64
	Misses  uint64
	Evicted uint64
	Len     int
}

// HitRate returns hits per read in percent.
func (r Report) HitRate() float64 {
	if r.Reads == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Reads) * 100
}

func (r Report) Print(w io.Writer, cfg Config) {
	fmt.Fprintf(w, "cap=%d shards=%d workers=%d keys=%d dur=%v seed=%d\n",
		cfg.Cache.Capacity, cfg.Cache.Shards, cfg.Workload.Workers, cfg.Workload.Keys, r.Elapsed, cfg.Workload.Seed)
	fmt.Fprintf(w, "ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		r.Ops, float64(r.Ops)/r.Elapsed.Seconds(), r.Reads, r.Writes)
	fmt.Fprintf(w, "hits=%d  misses=%d  hit-rate=%.2f%%  evicted=%d\n", r.Hits, r.Misses, r.HitRate(), r.Evicted)
	fmt.Fprintf(w, "Len()=%d\n", r.Len)
}

// run drives a Zipf-distributed read/write mix against c until the
// configured duration elapses or ctx is cancelled.
func run(ctx context.Context, c cache.Cache[string, string], cfg Config, log *slog.Logger) (Report, error) {
	w := cfg.Workload

	for i := 0; i < w.Preload; i++ {
		c.Put("k:"+strconv.Itoa(i), "v"+strconv.Itoa(i))
	}
	log.Debug("preloaded", slog.Int("entries", c.Len()))

	var limiter *rate.Limiter
	if w.RateOps > 0 {
		limiter = rate.NewLimiter(rate.Limit(w.RateOps), max(1, w.Workers))
	}

	var reads, writes, hits, misses atomic.Uint64
	ctx, cancel := context.WithTimeout(ctx, w.Duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < w.Workers; id++ {
		id := id // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			r := rand.New(rand.NewSource(w.Seed + int64(id)*9973))
			zipf := rand.NewZipf(r, w.ZipfS, w.ZipfV, uint64(w.Keys-1))

			for ctx.Err() == nil {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return nil // deadline reached while throttled
					}
				}
				k := "k:" + strconv.FormatUint(zipf.Uint64(), 10)
				if r.Intn(100) < w.ReadPct {
					reads.Add(1)
					if _, ok := c.Get(k); ok {
						hits.Add(1)
					} else {
						misses.Add(1)
					}
					continue
				}
				writes.Add(1)
				c.Put(k, "v"+strconv.Itoa(r.Int()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	rep := Report{
		Elapsed: time.Since(start),
		Reads:   reads.Load(),
		Writes:  writes.Load(),
		Hits:    hits.Load(),
		Misses:  misses.Load(),
		Evicted: c.Stats().Evictions,
		Len:     c.Len(),
	}
	rep.Ops = rep.Reads + rep.Writes
	return rep, nil
}
