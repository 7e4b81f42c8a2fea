package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	fiber "github.com/gofiber/fiber/v3"
	recovermiddleware "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/galpt/qcn-cp/pkg/history"
	"github.com/galpt/qcn-cp/pkg/log"
	"github.com/galpt/qcn-cp/pkg/netlinkcfg"
	"github.com/galpt/qcn-cp/pkg/queue"
	"github.com/galpt/qcn-cp/pkg/stats"
	"github.com/galpt/qcn-cp/pkg/types"
)

const sseBufSize = 4

// Server encapsulates the Fiber app, polling state, SSE client registry and
// history store.  It is safe for concurrent use.
type Server struct {
	app          *fiber.App
	registry     *Registry
	statsMu      sync.RWMutex
	current      []types.InstanceStats
	ssesMu       sync.Mutex
	clients      map[chan []byte]struct{}
	pollInterval time.Duration
	history      *history.Store

	metricsAddr string
	promReg     *prometheus.Registry
}

// New builds a Server polling registry every interval and keeping histCap
// samples of history per instance. collector, if non-nil, is registered for
// Prometheus export and served at metricsAddr (e.g. ":9090") once Run
// starts — a second listener, following the pack's standalone-exporter
// pattern (promhttp.Handler on its own net/http mux) rather than threading
// it through the Fiber router.
func New(registry *Registry, interval time.Duration, histCap int, collector *stats.Collector, metricsAddr string) *Server {
	s := &Server{
		registry:     registry,
		clients:      make(map[chan []byte]struct{}),
		pollInterval: interval,
		history:      history.NewStore(histCap),
		metricsAddr:  metricsAddr,
	}

	if collector != nil {
		s.promReg = prometheus.NewRegistry()
		s.promReg.MustRegister(collector)
	}

	app := fiber.New(fiber.Config{
		ServerHeader: "qcn-cp",
	})
	app.Use(recovermiddleware.New())

	app.Get("/api/stats", s.handleAPIStats)
	app.Get("/api/history", s.handleAPIHistory)
	app.Post("/api/configure", s.handleConfigure)
	app.Get("/events", s.handleSSE)

	s.app = app
	return s
}

func (s *Server) Run(ctx context.Context, addr string) error {
	s.forcePoll()
	go s.runPoller(ctx)
	if s.promReg != nil && s.metricsAddr != "" {
		go s.runMetricsServer(ctx)
	}
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()
	log.Logger.Info().Str("addr", addr).Dur("interval", s.pollInterval).Msg("listening")
	return s.app.Listen(addr)
}

func (s *Server) runMetricsServer(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: s.metricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	log.Logger.Info().Str("addr", s.metricsAddr).Msg("metrics listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Logger.Error().Err(err).Msg("metrics server stopped")
	}
}

func (s *Server) forcePoll() {
	defer func() {
		if r := recover(); r != nil {
			log.Logger.Error().Interface("panic", r).Msg("poller recovered")
		}
	}()
	snapshot := s.registry.Snapshot()
	s.history.Record(snapshot, s.pollInterval)
	s.statsMu.Lock()
	s.current = snapshot
	s.statsMu.Unlock()
	s.broadcast(snapshot)
}

func (s *Server) runPoller(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.forcePoll()
		}
	}
}

func (s *Server) broadcast(snapshot []types.InstanceStats) {
	resp := types.StatsResponse{Instances: snapshot, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	payload, _ := resp.MarshalJSON()
	event := buildSSEEvent(payload)

	s.ssesMu.Lock()
	defer s.ssesMu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

var sseBufPool = sync.Pool{New: func() any { b := make([]byte, 0, 1024); return &b }}

func buildSSEEvent(payload []byte) []byte {
	buf := sseBufPool.Get().(*[]byte)
	*buf = (*buf)[:0]
	*buf = append(*buf, "retry: 2000\ndata: "...)
	*buf = append(*buf, payload...)
	*buf = append(*buf, "\n\n"...)
	out := make([]byte, len(*buf))
	copy(out, *buf)
	sseBufPool.Put(buf)
	return out
}

func (s *Server) handleAPIStats(c fiber.Ctx) error {
	s.statsMu.RLock()
	snapshot := s.current
	s.statsMu.RUnlock()
	resp := types.StatsResponse{Instances: snapshot, UpdatedAt: time.Now().UTC().Format(time.RFC3339)}
	c.Set("Content-Type", "application/json; charset=utf-8")
	b, _ := resp.MarshalJSON()
	return c.Send(b)
}

func (s *Server) handleAPIHistory(c fiber.Ctx) error {
	snap := s.history.Snapshot()
	c.Set("Content-Type", "application/json; charset=utf-8")
	b, _ := json.Marshal(snap)
	return c.Send(b)
}

// handleConfigure applies a §6 configuration payload, carried as a raw
// netlink-attribute body, to the device named by the "device" query
// parameter (§5 "change" acquiring the tree lock and swapping tables
// atomically — here, Scheduler.Configure taking TBF's mutex). A change
// never carries a new inner queue over this endpoint; swapping the
// admission policy is a device-registration decision, not a runtime one.
func (s *Server) handleConfigure(c fiber.Ctx) error {
	device := c.Query("device")
	if device == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing device query parameter")
	}
	cfg, err := netlinkcfg.Decode(c.Body())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	var newInner queue.Queue
	if err := s.registry.Configure(device, cfg, newInner); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSSE(c fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	ch := make(chan []byte, sseBufSize)

	s.ssesMu.Lock()
	s.clients[ch] = struct{}{}
	s.ssesMu.Unlock()

	// Capture initial snapshot before entering the stream writer.
	s.statsMu.RLock()
	snapshot := s.current
	s.statsMu.RUnlock()

	c.RequestCtx().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			s.ssesMu.Lock()
			delete(s.clients, ch)
			s.ssesMu.Unlock()
		}()

		// Send the current snapshot immediately so the page isn't blank.
		if len(snapshot) > 0 {
			resp := types.StatsResponse{
				Instances: snapshot,
				UpdatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			if payload, err := resp.MarshalJSON(); err == nil {
				if _, err = w.Write(buildSSEEvent(payload)); err != nil {
					return
				}
				_ = w.Flush()
			}
		}

		for event := range ch {
			if _, err := w.Write(event); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}
