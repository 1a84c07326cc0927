// Package monitor polls the managed server and drives sleep and force-kill
// decisions.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/loykin/dozer/internal/manager"
	"github.com/loykin/dozer/internal/metrics"
	"github.com/loykin/dozer/internal/proto"
)

// Interval is the fixed polling period.
const Interval = 2 * time.Second

// rconWarnEvery throttles repeated RCON failure warnings.
const rconWarnEvery = time.Minute

// Prober fetches the server status, optionally falling back to a ping.
type Prober interface {
	Poll(ctx context.Context, pingFallback bool) (*proto.ServerStatus, bool, error)
}

// PlayerCounter reports the number of online players out of band.
type PlayerCounter interface {
	PlayerCount(ctx context.Context) (int, error)
}

// Sampler records resource usage of the server process.
type Sampler interface {
	Sample(pid int) (metrics.ProcessSample, error)
}

type Monitor struct {
	ms      *manager.ManagedServer
	prober  Prober
	players PlayerCounter
	sampler Sampler
	log     *slog.Logger

	interval time.Duration
	rconWarn rate.Sometimes
}

type Option func(*Monitor)

// WithPlayerCounter enables the RCON player-count fallback.
func WithPlayerCounter(pc PlayerCounter) Option { return func(m *Monitor) { m.players = pc } }

func WithSampler(s Sampler) Option { return func(m *Monitor) { m.sampler = s } }

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

func withInterval(d time.Duration) Option { return func(m *Monitor) { m.interval = d } }

func New(ms *manager.ManagedServer, prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		ms:       ms,
		prober:   prober,
		log:      slog.Default(),
		interval: Interval,
		rconWarn: rate.Sometimes{Interval: rconWarnEvery},
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("component", "monitor")
	return m
}

// Run polls until ctx is cancelled. A tick runs to completion before the
// next one is scheduled.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		m.Tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Tick runs one poll and acts on the result.
func (m *Monitor) Tick(ctx context.Context) {
	m.poll(ctx)

	if m.ms.ShouldSleep() {
		m.log.Info("server has been idle, sleeping")
		m.ms.Stop(ctx)
	}
	if m.ms.ShouldKill() {
		m.log.Error("force killing server, it took too long to start or stop")
		if !m.ms.ForceKill() {
			m.log.Warn("failed to force kill server")
		}
	}
	m.sample()
}

func (m *Monitor) poll(ctx context.Context) {
	state := m.ms.State()
	// a suspended process accepts connections but never answers
	if state == manager.StateStopped && m.ms.Frozen() {
		return
	}

	fallback := state == manager.StateStarted || state == manager.StateStarting
	status, pingOnly, err := m.prober.Poll(ctx, fallback)
	switch {
	case err == nil:
		metrics.RecordProbe("status", true)
		m.ms.UpdateStatus(status)
	case !pingOnly:
		metrics.RecordProbe("status", false)
		if fallback {
			metrics.RecordProbe("ping", false)
		}
		m.log.Debug("server poll failed", "error", err)
		m.ms.UpdateStatus(nil)
	default:
		metrics.RecordProbe("status", false)
		metrics.RecordProbe("ping", true)
		if m.ms.State() == manager.StateStarting {
			m.log.Info("server responded to ping while starting, marking as started")
			m.ms.UpdateState(manager.StateStarted)
			return
		}
		m.log.Debug("status poll failed, ping fallback succeeded", "error", err)
		m.queryPlayers(ctx)
	}
}

func (m *Monitor) queryPlayers(ctx context.Context) {
	if m.players == nil {
		return
	}
	n, err := m.players.PlayerCount(ctx)
	if err != nil {
		metrics.RecordProbe("rcon", false)
		m.rconWarn.Do(func() {
			m.log.Warn("RCON player count query failed", "error", err)
		})
		return
	}
	metrics.RecordProbe("rcon", true)
	m.log.Debug("RCON reports players online", "count", n)
	if n > 0 {
		m.ms.UpdateLastActive()
	}
}

func (m *Monitor) sample() {
	if m.sampler == nil {
		return
	}
	pid := 0
	if c := m.ms.Child(); c != nil {
		pid = c.PID()
	}
	if _, err := m.sampler.Sample(pid); err != nil {
		m.log.Debug("failed to sample server process", "pid", pid, "error", err)
	}
}
