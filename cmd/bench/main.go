// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/lru/cache"
	pmet "github.com/IvanBrykalov/lru/metrics/prom"
)

func main() {
	def := DefaultConfig()

	// ---- Flags ----
	var (
		configPath = flag.String("config", "", "TOML config file; flags set explicitly override it")
		verbose    = flag.Bool("verbose", false, "enable debug logging")

		capacity = flag.Int("cap", def.Cache.Capacity, "cache capacity (entries)")
		shards   = flag.Int("shards", def.Cache.Shards, "shards: 1 = strict LRU, >1 sharded, -1 auto")

		workers  = flag.Int("workers", def.Workload.Workers, "number of worker goroutines")
		duration = flag.Duration("duration", def.Workload.Duration, "benchmark duration")
		readPct  = flag.Int("reads", def.Workload.ReadPct, "read percentage [0..100]")
		keys     = flag.Int("keys", def.Workload.Keys, "keyspace size")
		zipfS    = flag.Float64("zipf_s", def.Workload.ZipfS, "Zipf s > 1 (skew)")
		zipfV    = flag.Float64("zipf_v", def.Workload.ZipfV, "Zipf v")
		seed     = flag.Int64("seed", def.Workload.Seed, "random seed")
		preload  = flag.Int("preload", def.Workload.Preload, "preload entries (0 = cap/2)")
		rateOps  = flag.Float64("rate", def.Workload.RateOps, "aggregate ops/s limit (0 = unlimited)")

		pprofAddr   = flag.String("pprof", def.Serve.Pprof, "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", def.Serve.Metrics, "serve Prometheus metrics at addr; empty = disabled")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := def
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfig(*configPath); err != nil {
			log.Error("load config", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Explicit flags win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cap":
			cfg.Cache.Capacity = *capacity
		case "shards":
			cfg.Cache.Shards = *shards
		case "workers":
			cfg.Workload.Workers = *workers
		case "duration":
			cfg.Workload.Duration = *duration
		case "reads":
			cfg.Workload.ReadPct = *readPct
		case "keys":
			cfg.Workload.Keys = *keys
		case "zipf_s":
			cfg.Workload.ZipfS = *zipfS
		case "zipf_v":
			cfg.Workload.ZipfV = *zipfV
		case "seed":
			cfg.Workload.Seed = *seed
		case "preload":
			cfg.Workload.Preload = *preload
		case "rate":
			cfg.Workload.RateOps = *rateOps
		case "pprof":
			cfg.Serve.Pprof = *pprofAddr
		case "http":
			cfg.Serve.Metrics = *metricsAddr
		}
	})
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", slog.Any("error", err))
		os.Exit(2)
	}

	runID := uuid.NewString()
	log = log.With(slog.String("run", runID))

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.Serve.Pprof != "" {
		go func() {
			log.Info("pprof: serving", slog.String("addr", cfg.Serve.Pprof))
			log.Error("pprof server stopped", slog.Any("error", http.ListenAndServe(cfg.Serve.Pprof, nil)))
		}()
	}

	// ---- Prometheus metrics ----
	var metrics cache.Metrics = cache.NoopMetrics{}
	if cfg.Serve.Metrics != "" {
		metrics = pmet.New(nil, "lru", "bench", prometheus.Labels{"run": runID})
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("metrics: serving", slog.String("addr", cfg.Serve.Metrics))
			log.Error("metrics server stopped", slog.Any("error", http.ListenAndServe(cfg.Serve.Metrics, mux)))
		}()
	}

	c := cache.NewWithOptions(cache.Options[string, string]{
		Capacity: cfg.Cache.Capacity,
		Shards:   cfg.Cache.Shards,
		Metrics:  metrics,
		Logger:   log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("bench: starting",
		slog.Int("capacity", cfg.Cache.Capacity),
		slog.Int("workers", cfg.Workload.Workers),
		slog.Duration("duration", cfg.Workload.Duration))

	rep, err := run(ctx, c, cfg, log)
	if err != nil {
		log.Error("bench failed", slog.Any("error", err))
		os.Exit(1)
	}
	rep.Print(os.Stdout, cfg)
}
