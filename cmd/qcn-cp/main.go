// Command qcn-cp runs a QCN congestion-point core: one TBF/QCN-CP instance
// per configured egress device, a feedback emitter, and an HTTP server
// exposing stats, configuration and a Prometheus scrape endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/galpt/qcn-cp/pkg/feedback"
	"github.com/galpt/qcn-cp/pkg/log"
	"github.com/galpt/qcn-cp/pkg/queue"
	"github.com/galpt/qcn-cp/pkg/sched"
	"github.com/galpt/qcn-cp/pkg/server"
	"github.com/galpt/qcn-cp/pkg/stats"
	"github.com/galpt/qcn-cp/pkg/types"
)

// Version is overridden at build-time.
var Version = "dev"

func main() {
	host := flag.String("host", "0.0.0.0", "bind address for the HTTP API")
	port := flag.Int("port", 11112, "TCP port for the HTTP API")
	metricsAddr := flag.String("metrics-addr", ":9090", "bind address for the Prometheus /metrics listener (empty disables it)")
	interval := flag.Duration("interval", 100*time.Millisecond, "poll interval for stats/history")
	histCap := flag.Int("history", 300, "samples to retain per instance")
	devices := flag.String("devices", "eth0", "comma-separated list of egress devices to run a QCN-CP instance for")
	limit := flag.Uint("limit", 1<<20, "inner queue byte limit (BFIFO)")
	bufferMs := flag.Duration("buffer", 5*time.Millisecond, "TBF rate-bucket depth")
	feedbackAddr := flag.String("feedback-addr", "127.0.0.1:6660", "UDP destination for feedback frames")
	showVer := flag.Bool("version", false, "print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "qcn-cp %s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVer {
		fmt.Printf("qcn-cp %s\n", Version)
		os.Exit(0)
	}

	log.Logger = log.Logger.Level(zerolog.InfoLevel).With().Str("version", Version).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := defaultConfig(*bufferMs, *feedbackAddr)
	collector := stats.NewCollector()
	registry := server.NewRegistry(collector)

	group, gctx := errgroup.WithContext(ctx)

	var emitters []*feedback.Emitter
	for _, device := range strings.Split(*devices, ",") {
		device = strings.TrimSpace(device)
		if device == "" {
			continue
		}

		transport, err := feedback.NewUDPTransport(cfg.Feedback.Addr)
		if err != nil {
			log.Logger.Fatal().Err(err).Str("device", device).Msg("failed to construct feedback transport")
		}
		em := feedback.New(transport, log.Component("feedback."+device))
		emitters = append(emitters, em)

		s, err := sched.New(cfg, queue.NewBFIFO(int(*limit)), em, nil)
		if err != nil {
			log.Logger.Fatal().Err(err).Str("device", device).Msg("failed to construct scheduler")
		}
		registry.Add(device, s)

		group.Go(func() error { return em.Run(gctx) })
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	srv := server.New(registry, *interval, *histCap, collector, *metricsAddr)
	group.Go(func() error { return srv.Run(gctx, addr) })

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		log.Logger.Fatal().Err(err).Msg("fatal")
	}
	for _, em := range emitters {
		_ = em.Close()
	}
	log.Logger.Info().Msg("shutdown complete")
}

// defaultConfig builds a Config with a linear rate table (§6 "Rate"), the
// documented QCN defaults, and the feedback transport the operator chose.
func defaultConfig(buffer time.Duration, feedbackAddr string) types.Config {
	var rate types.RateTable
	for i := range rate {
		rate[i] = time.Duration(i) * 10 * time.Microsecond
	}
	cfg := types.Config{
		Limit:  1 << 20,
		Buffer: buffer,
		Mtu:    buffer,
		Rate:   rate,
		Feedback: types.FeedbackConfig{
			Transport: types.TransportUDP,
			Addr:      feedbackAddr,
		},
	}
	cfg.NormalizeDefaults()
	return cfg
}
