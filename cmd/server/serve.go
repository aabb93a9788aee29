package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agridash/internal/api"
	"agridash/internal/engine"
	"agridash/internal/metrics"
	"agridash/internal/report"
	"agridash/internal/source"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// openCache connects the configured source and wraps it in a table cache.
// The returned func releases the source.
func openCache(ctx context.Context, m *metrics.Metrics) (*engine.Cache, func(), error) {
	src, err := source.Open(ctx, cfg.Source)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if c, ok := src.(io.Closer); ok {
		closeFn = func() {
			if err := c.Close(); err != nil {
				log.Warnf("close source: %v", err)
			}
		}
	}
	return engine.NewCache(src, engine.WithMetrics(m)), closeFn, nil
}

func serve(ctx context.Context) error {
	// 1. Metrics registry shared by the cache, the reports and /metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	cache, closeSource, err := openCache(ctx, m)
	if err != nil {
		return err
	}
	defer closeSource()

	// 2. Handler is live immediately; /healthz answers 503 until warm-up ends
	h := api.NewHandler(cache, report.NewService(cache, m))
	e := api.NewServer(h, api.Options{
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		Gatherer:  reg,
	})

	// 3. Warm the cache in the background
	if cfg.Warm {
		go func() {
			log.Infof("BACKGROUND: loading %d tables from %s source...", len(engine.KnownTables), cfg.Source.Driver)
			t0 := time.Now()
			if err := cache.Warm(ctx); err != nil {
				// Tables that failed load again on first request.
				log.Errorf("BACKGROUND: warm-up failed after %v: %v", time.Since(t0), err)
			} else {
				log.Infof("BACKGROUND: warm-up complete in %v", time.Since(t0))
			}
			h.SetReady()
		}()
	} else {
		h.SetReady()
	}

	// 4. Start server
	errc := make(chan error, 1)
	go func() {
		log.Infof("Server ready on %s", cfg.Addr)
		errc <- e.Start(cfg.Addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
