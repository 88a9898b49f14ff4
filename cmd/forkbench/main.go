// Command forkbench compares the pool backends on a prime-counting
// divide-and-conquer workload.
//
// Each backend gets its own pool. Several callers run DivideAndConquer
// concurrently against that pool, so reservations contend and some
// callers fall back to running on their own goroutine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/utkarsh5026/forkpool/dac"
	"github.com/utkarsh5026/forkpool/pool"
)

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

type backendRun struct {
	name string
	opts []pool.Option
}

var backends = []backendRun{
	{name: "Lock", opts: []pool.Option{pool.WithBackend(pool.BackendLock)}},
	{name: "Fair Lock", opts: []pool.Option{pool.WithBackend(pool.BackendLock), pool.WithFairness(true)}},
	{name: "Monitor", opts: []pool.Option{pool.WithBackend(pool.BackendMonitor)}},
}

// result holds the outcome of one backend run
type result struct {
	Name      string
	Elapsed   time.Duration
	Primes    int
	Slices    int
	Submitted float64
	Failed    float64
	Rank      int
	Err       error
}

type benchConfig struct {
	limit      int
	minSlice   int
	workers    int
	callers    int
	rounds     int
	affinity   bool
	ciMode     bool
	logger     log.FieldLogger
	registerer *prometheus.Registry
}

// primeCounter counts primes in a slice of [0, limit).
type primeCounter struct{}

func (primeCounter) Conquer(ctx context.Context, _ struct{}, iv dac.Interval) (int, error) {
	count := 0
	for n := iv.From; n < iv.To; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if isPrime(n) {
			count++
		}
	}
	return count, nil
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

func runBackend(ctx context.Context, cfg benchConfig, b backendRun, bar *progressbar.ProgressBar) result {
	res := result{Name: b.name}

	metrics, err := pool.NewMetrics("forkbench", sanitize(b.name), cfg.registerer)
	if err != nil {
		res.Err = err
		return res
	}

	opts := append([]pool.Option{
		pool.WithMinWorkers(1),
		pool.WithMaxWorkers(cfg.workers),
		pool.WithLogger(cfg.logger),
		pool.WithMetrics(metrics),
	}, b.opts...)
	if cfg.affinity {
		opts = append(opts, pool.WithThreadAffinity())
	}

	d, err := dac.New[struct{}](primeCounter{}, opts...)
	if err != nil {
		res.Err = err
		return res
	}
	d.WithLogger(cfg.logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Close(closeCtx); err != nil {
			cfg.logger.WithError(err).WithField("backend", b.name).Warn("closing pool")
		}
	}()

	start := time.Now()
	for range cfg.rounds {
		primes := make([]int, cfg.callers)
		slices := make([]int, cfg.callers)

		g, gctx := errgroup.WithContext(ctx)
		for i := range cfg.callers {
			g.Go(func() error {
				statuses, err := d.DivideAndConquer(gctx, struct{}{}, 0, cfg.limit, cfg.minSlice)
				if err != nil {
					return err
				}
				for _, s := range statuses {
					primes[i] += s
				}
				slices[i] = len(statuses)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			res.Err = err
			return res
		}

		res.Primes = primes[0]
		for i := range cfg.callers {
			if primes[i] != res.Primes {
				res.Err = fmt.Errorf("caller %d counted %d primes, caller 0 counted %d", i, primes[i], res.Primes)
				return res
			}
			res.Slices += slices[i]
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}
	res.Elapsed = time.Since(start)

	res.Submitted = counterValue(cfg.registerer, "forkbench_"+sanitize(b.name)+"_tasks_submitted_total")
	res.Failed = counterValue(cfg.registerer, "forkbench_"+sanitize(b.name)+"_tasks_failed_total")
	return res
}

func counterValue(reg prometheus.Gatherer, name string) float64 {
	families, err := reg.Gather()
	if err != nil {
		return 0
	}
	for _, f := range families {
		if f.GetName() != name || len(f.GetMetric()) == 0 {
			continue
		}
		return f.GetMetric()[0].GetCounter().GetValue()
	}
	return 0
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func printResults(cfg benchConfig, results []result) {
	sort.Slice(results, func(i, j int) bool {
		if (results[i].Err == nil) != (results[j].Err == nil) {
			return results[i].Err == nil
		}
		return results[i].Elapsed < results[j].Elapsed
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	fmt.Println()
	_, _ = bold.Println("Results")
	fmt.Println()

	fastest := results[0].Elapsed

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Rank", "Backend", "Time", "Primes", "Avg Slices/Call", "Tasks", "Failed", "vs Fastest")

	calls := cfg.callers * cfg.rounds
	for _, r := range results {
		if r.Err != nil {
			_ = table.Append(fmt.Sprintf("%d", r.Rank), r.Name, "error", "-", "-", "-", "-", r.Err.Error())
			continue
		}

		vs := "baseline"
		if r.Rank > 1 && fastest > 0 {
			vs = fmt.Sprintf("%.2fx", float64(r.Elapsed)/float64(fastest))
		}
		_ = table.Append(
			fmt.Sprintf("%d", r.Rank),
			r.Name,
			r.Elapsed.Round(time.Millisecond).String(),
			fmt.Sprintf("%d", r.Primes),
			fmt.Sprintf("%.1f", float64(r.Slices)/float64(calls)),
			fmt.Sprintf("%.0f", r.Submitted),
			fmt.Sprintf("%.0f", r.Failed),
			vs,
		)
	}
	_ = table.Render()
}

func printConfiguration(cfg benchConfig) {
	_, _ = bold.Println("Configuration:")
	fmt.Printf("  Range:            [0, %d)\n", cfg.limit)
	fmt.Printf("  Min slice size:   %d\n", cfg.minSlice)
	fmt.Printf("  Max workers:      %d (GOMAXPROCS %d)\n", cfg.workers, runtime.GOMAXPROCS(0))
	fmt.Printf("  Callers:          %d concurrent per round\n", cfg.callers)
	fmt.Printf("  Rounds:           %d\n", cfg.rounds)
	fmt.Printf("  Thread affinity:  %v\n", cfg.affinity)
	fmt.Println()
}

func isCIMode(flagValue bool) bool {
	if flagValue {
		return true
	}
	for _, env := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI"} {
		if v := os.Getenv(env); v == "true" || v == "1" {
			return true
		}
	}
	// No progress bar when output is piped.
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

func main() {
	limitFlag := flag.Int("limit", 2_000_000, "Count primes below this number")
	minSliceFlag := flag.Int("min-slice", 50_000, "Minimum slice size handed to one task")
	workersFlag := flag.Int("workers", 0, "Maximum pool workers (0 = GOMAXPROCS)")
	callersFlag := flag.Int("callers", 4, "Concurrent DivideAndConquer calls per round")
	roundsFlag := flag.Int("rounds", 5, "Rounds per backend")
	affinityFlag := flag.Bool("affinity", false, "Pin workers to CPU cores")
	metricsAddrFlag := flag.String("metrics-addr", "", "Serve prometheus metrics on this address while running")
	ciModeFlag := flag.Bool("ci", false, "CI mode: disable progress bar")
	verboseFlag := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	logger := log.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(log.WarnLevel)
	if *verboseFlag {
		logger.SetLevel(log.DebugLevel)
	}

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debugf(format, args...)
	}))
	defer undo()
	if err != nil {
		logger.WithError(err).Warn("setting GOMAXPROCS")
	}

	cfg := benchConfig{
		limit:      *limitFlag,
		minSlice:   *minSliceFlag,
		workers:    *workersFlag,
		callers:    max(*callersFlag, 1),
		rounds:     max(*roundsFlag, 1),
		affinity:   *affinityFlag,
		ciMode:     isCIMode(*ciModeFlag),
		logger:     logger,
		registerer: prometheus.NewRegistry(),
	}
	if cfg.workers <= 0 {
		cfg.workers = runtime.GOMAXPROCS(0)
	}
	if cfg.minSlice <= 0 {
		_, _ = red.Fprintln(os.Stderr, "min-slice must be positive")
		os.Exit(2)
	}

	if *metricsAddrFlag != "" {
		srv := &http.Server{
			Addr:              *metricsAddrFlag,
			Handler:           promhttp.HandlerFor(cfg.registerer, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("metrics server")
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	printConfiguration(cfg)
	_, _ = bold.Println("Running benchmarks...")
	fmt.Println()

	var bar *progressbar.ProgressBar
	if !cfg.ciMode {
		bar = progressbar.NewOptions(len(backends)*cfg.rounds,
			progressbar.OptionSetDescription("Rounds"),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionEnableColorCodes(true),
		)
	}

	ctx := context.Background()
	results := make([]result, 0, len(backends))
	for i, b := range backends {
		if bar != nil {
			bar.Describe(fmt.Sprintf("Backend: %s", b.name))
		}
		r := runBackend(ctx, cfg, b, bar)
		results = append(results, r)

		if cfg.ciMode {
			if r.Err != nil {
				_, _ = red.Printf("[%d/%d] %s failed: %v\n", i+1, len(backends), b.name, r.Err)
			} else {
				_, _ = green.Printf("[%d/%d] %s completed in %v\n", i+1, len(backends), b.name, r.Elapsed.Round(time.Millisecond))
			}
		}
	}
	fmt.Println()

	printResults(cfg, results)

	for _, r := range results {
		if r.Err != nil {
			os.Exit(1)
		}
	}
}
