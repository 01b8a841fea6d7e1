package daemon

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
)

// Config holds the daemon's runtime configuration: the control-socket
// path plus the optional Prometheus metrics listen address.
type Config struct {
	SocketPath      string
	MetricsListen   string // empty disables the metrics endpoint
	DefaultCapacity uint32 // 0 falls back to DefaultTopicCapacity
}

// Daemon ties together the topic registry, the control-plane acceptor,
// signal handling, and metrics reporting. One Daemon per process.
type Daemon struct {
	cfg      Config
	log      *slog.Logger
	registry *Registry
	acceptor *Acceptor
	metrics  *Metrics
}

// New constructs a Daemon. It does not bind the socket or start
// accepting connections; call Run for that.
func New(cfg Config, log *slog.Logger) *Daemon {
	if log == nil {
		log = slog.Default()
	}
	registry := NewRegistry(log, cfg.DefaultCapacity)
	return &Daemon{
		cfg:      cfg,
		log:      log,
		registry: registry,
		acceptor: NewAcceptor(cfg.SocketPath, registry, log),
		metrics:  NewMetrics(registry),
	}
}

// Run binds the control socket, starts accepting connections, and blocks
// until ctx is canceled (normally by SIGTERM/SIGINT, see WithSignalCancel).
// SIGUSR1 dumps a stats snapshot to log at Info level without
// interrupting the run. Shutdown order on return: stop the acceptor
// (unlinks the socket), then destroy every topic's segment, then stop the
// metrics server if one was started.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.acceptor.Start(); err != nil {
		return err
	}

	var stopMetrics func(context.Context) error
	if d.cfg.MetricsListen != "" {
		stop, err := d.metrics.Start(d.cfg.MetricsListen)
		if err != nil {
			_ = d.acceptor.Stop()
			return err
		}
		stopMetrics = stop
	}

	statDumps := make(chan os.Signal, 1)
	signal.Notify(statDumps, syscall.SIGUSR1)
	defer signal.Stop(statDumps)

	d.log.Info("daemon started", "socket", d.cfg.SocketPath, "metrics", d.cfg.MetricsListen)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("shutting down")
			if err := d.acceptor.Stop(); err != nil {
				d.log.Error("acceptor stop failed", "error", err)
			}
			d.registry.Shutdown()
			if stopMetrics != nil {
				if err := stopMetrics(context.Background()); err != nil {
					d.log.Error("metrics server stop failed", "error", err)
				}
			}
			return nil
		case <-statDumps:
			d.dumpStats()
		}
	}
}

func (d *Daemon) dumpStats() {
	stats := d.registry.Stats()
	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	d.log.Info("stats", "topics", len(stats))
	for _, s := range stats {
		d.log.Info("topic stats",
			"topic", s.Topic,
			"segment", s.SegmentName,
			"capacity", s.Capacity,
			"messages_published", s.MessagesPublished,
		)
	}
}

// WithSignalCancel returns a context that is canceled when the process
// receives SIGINT or SIGTERM, for passing to Run.
func WithSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
