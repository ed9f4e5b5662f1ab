// Command loopdemo spins up a handful of worker LooperThreads, posts
// synthetic work into them at a steady rate, and exposes the resulting
// queue/pool Prometheus metrics over HTTP — a small harness for
// exercising golooper end to end rather than a real-world program.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Joe-Bi-2016/golooper/looper"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	var (
		workers     int
		poolSize    int
		postRateMs  int
		runFor      time.Duration
		metricsAddr string
	)
	pflag.IntVar(&workers, "workers", 4, "number of LooperThread workers to spawn")
	pflag.IntVar(&poolSize, "pool-size", looper.DefaultPoolMaxSize, "recycle pool cap per worker queue")
	pflag.IntVar(&postRateMs, "post-interval-ms", 5, "interval between synthetic posts per worker")
	pflag.DurationVar(&runFor, "run-for", 30*time.Second, "how long to run before shutting down")
	pflag.StringVar(&metricsAddr, "metrics-addr", ":9100", "address to serve /metrics on")
	pflag.Parse()

	instanceID := uuid.New()
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("instance", instanceID.String()).Logger()
	log := looper.NewLogger(zl)

	registry := prometheus.NewRegistry()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	threads := make([]*looper.LooperThread, workers)
	var totalDispatched atomic.Uint64

	for i := 0; i < workers; i++ {
		name := fmt.Sprintf("worker-%d", i)
		lt := looper.NewLooperThread(name, poolSize, looper.SpawnThread,
			looper.WithLogger(log),
			looper.WithMetrics(true),
		)
		threads[i] = lt

		l := lt.GetLooper()
		registry.MustRegister(l.Queue().Collectors()...)

		h := looper.NewHandler(l, name)
		h.SetDefaultRunnable(func(msg *looper.Message, context any) {
			totalDispatched.Add(1)
		})

		go func(h *looper.Handler, interval time.Duration) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					msg := looper.ObtainForHandler(h)
					msg.What = 1
					if err := h.SendMessage(msg); err != nil {
						return
					}
				}
			}
		}(h, time.Duration(postRateMs)*time.Millisecond)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Err().Str("error", err.Error()).Log("metrics server exited")
		}
	}()

	runCtx, runCancel := context.WithTimeout(ctx, runFor)
	defer runCancel()
	<-runCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	for _, lt := range threads {
		lt.QuitSafely()
	}
	for _, lt := range threads {
		lt.Join()
	}

	log.Info().Log(fmt.Sprintf("dispatched %d messages across %d workers", totalDispatched.Load(), workers))
}
