package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/dozer/internal/config"
	"github.com/loykin/dozer/internal/history"
	"github.com/loykin/dozer/internal/metrics"
	"github.com/loykin/dozer/internal/process"
	"github.com/loykin/dozer/internal/proto"
)

// staleExitWait bounds how long a wake waits for a killed process to go away
// before spawning its replacement.
const staleExitWait = 10 * time.Second

// Child is a spawned server process.
type Child interface {
	PID() int
	Done() <-chan struct{}
	ExitErr() error
}

// LaunchFunc spawns a new server process.
type LaunchFunc func() (Child, error)

// Commander runs a console command over RCON.
type Commander interface {
	Command(ctx context.Context, cmd string) (string, error)
}

// Option configures a ManagedServer.
type Option func(*ManagedServer)

func WithLogger(l *slog.Logger) Option {
	return func(m *ManagedServer) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRCON sets the client used to stop the server where signals cannot.
func WithRCON(c Commander) Option { return func(m *ManagedServer) { m.rcon = c } }

func WithHistory(e history.Emitter) Option { return func(m *ManagedServer) { m.history = e } }

func withClock(now func() time.Time) Option { return func(m *ManagedServer) { m.now = now } }

// ManagedServer is the authoritative record of the managed server's
// lifecycle. It is shared by the monitor, the proxy and the admin API.
//
// Lock hierarchy:
// 1. mu protects child, stale, frozen, timestamps and subscribers; every
// state change happens with mu held so timers and state never disagree.
// A process being replaced moves from child to stale in the same critical
// section, so its exit is never mistaken for a crash.
// 2. statusMu protects the last status and is never held together with mu.
//
// State is additionally kept in an atomic so State() never blocks.
type ManagedServer struct {
	cfg     *config.Config
	ctrl    process.Controller
	launch  LaunchFunc
	log     *slog.Logger
	rcon    Commander
	history history.Emitter
	now     func() time.Time

	state atomic.Int32

	mu            sync.Mutex
	child         Child
	stale         Child
	frozen        bool
	lastActive    time.Time
	startedAt     time.Time
	startingSince time.Time
	stoppingSince time.Time
	subs          map[chan ServerState]struct{}

	statusMu sync.RWMutex
	status   *proto.ServerStatus
	known    *proto.ServerStatus
}

// NewManagedServer returns a server record in the Stopped state.
func NewManagedServer(cfg *config.Config, ctrl process.Controller, launch LaunchFunc, opts ...Option) *ManagedServer {
	m := &ManagedServer{
		cfg:    cfg,
		ctrl:   ctrl,
		launch: launch,
		log:    slog.Default(),
		now:    time.Now,
		subs:   make(map[chan ServerState]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.With("component", "server")
	m.lastActive = m.now()
	metrics.SetCurrentState(StateStopped.String())
	return m
}

// State returns the current lifecycle state.
func (m *ManagedServer) State() ServerState { return ServerState(m.state.Load()) }

// Capabilities reports what the process controller supports on this platform.
func (m *ManagedServer) Capabilities() process.Capabilities { return m.ctrl.Capabilities() }

// Child returns the current server process, or nil.
func (m *ManagedServer) Child() Child {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.child
}

// Frozen reports whether the server process is suspended.
func (m *ManagedServer) Frozen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen
}

func (m *ManagedServer) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActive
}

// LastStatus returns the most recent status, or nil when the last poll failed.
func (m *ManagedServer) LastStatus() *proto.ServerStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// LastKnownStatus returns the most recent successful status, surviving
// sleeps and failed polls.
func (m *ManagedServer) LastKnownStatus() *proto.ServerStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.known
}

func (m *ManagedServer) setStatus(st *proto.ServerStatus) {
	m.statusMu.Lock()
	m.status = st
	if st != nil {
		m.known = st
	}
	m.statusMu.Unlock()
}

// Subscribe returns a channel receiving each new state and a function that
// cancels the subscription. Slow receivers miss intermediate states and
// should re-read State().
func (m *ManagedServer) Subscribe() (<-chan ServerState, func()) {
	ch := make(chan ServerState, 1)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
		})
	}
}

// transitionLocked moves to the given state if the edge exists. mu must be held.
func (m *ManagedServer) transitionLocked(to ServerState) (ServerState, bool) {
	from := m.State()
	if !canTransition(from, to) || !m.state.CompareAndSwap(int32(from), int32(to)) {
		m.log.Debug("rejected state change", "from", from, "to", to)
		return from, false
	}
	now := m.now()
	switch to {
	case StateStarting:
		m.startingSince = now
	case StateStarted:
		m.startingSince = time.Time{}
		m.startedAt = now
		m.lastActive = now
	case StateStopping:
		m.stoppingSince = now
	case StateStopped:
		m.startingSince = time.Time{}
		m.stoppingSince = time.Time{}
		m.startedAt = time.Time{}
	}
	for ch := range m.subs {
		select {
		case ch <- to:
		default:
		}
	}
	return from, true
}

// recordTransition publishes a completed transition outside the lock.
func (m *ManagedServer) recordTransition(from, to ServerState) {
	m.log.Info("server state changed", "from", from, "to", to)
	metrics.RecordStateTransition(from.String(), to.String())
	metrics.SetCurrentState(to.String())
	if m.history == nil {
		return
	}
	e := history.Event{Type: to.String(), From: from.String(), OccurredAt: m.now().UTC()}
	if c := m.Child(); c != nil {
		e.PID = c.PID()
	}
	if st := m.LastStatus(); st != nil {
		e.PlayersOnline = st.Players.Online
	}
	m.history.Emit(e)
}

// UpdateState performs a lifecycle transition. It returns false, changing
// nothing, when the edge does not exist.
func (m *ManagedServer) UpdateState(to ServerState) bool {
	m.mu.Lock()
	from, ok := m.transitionLocked(to)
	m.mu.Unlock()
	if ok {
		m.recordTransition(from, to)
	}
	return ok
}

// UpdateLastActive records player activity now.
func (m *ManagedServer) UpdateLastActive() {
	m.mu.Lock()
	m.lastActive = m.now()
	m.mu.Unlock()
}

// UpdateStatus replaces the last known status. A status received while
// starting means the server is up.
func (m *ManagedServer) UpdateStatus(st *proto.ServerStatus) {
	m.setStatus(st)
	if st == nil {
		return
	}
	metrics.SetPlayers(st.Players.Online, st.Players.Max)
	if st.Players.Online > 0 {
		m.UpdateLastActive()
	}
	if m.State() == StateStarting {
		m.UpdateState(StateStarted)
	}
}

// ShouldSleep reports whether an idle started server may be put to sleep.
func (m *ManagedServer) ShouldSleep() bool {
	if m.State() != StateStarted {
		return false
	}
	if st := m.LastStatus(); st != nil && st.Players.Online > 0 {
		return false
	}
	m.mu.Lock()
	lastActive, startedAt := m.lastActive, m.startedAt
	m.mu.Unlock()
	now := m.now()
	return now.Sub(lastActive) >= m.cfg.Time.SleepAfter &&
		now.Sub(startedAt) >= m.cfg.Time.MinOnlineTime
}

// ShouldKill reports whether a start or stop has overrun its timeout.
func (m *ManagedServer) ShouldKill() bool {
	m.mu.Lock()
	startingSince, stoppingSince := m.startingSince, m.stoppingSince
	m.mu.Unlock()
	now := m.now()
	switch m.State() {
	case StateStarting:
		return !startingSince.IsZero() && now.Sub(startingSince) > m.cfg.Server.StartTimeout
	case StateStopping:
		return !stoppingSince.IsZero() && now.Sub(stoppingSince) > m.cfg.Server.StopTimeout
	}
	return false
}

// Wake starts the server if it is stopped, resuming a frozen process when
// there is one. Concurrent callers are safe: exactly one of them observes
// true. A failed spawn returns the server to Stopped.
func (m *ManagedServer) Wake(ctx context.Context) (bool, error) {
	m.mu.Lock()
	from, ok := m.transitionLocked(StateStarting)
	child, frozen := m.child, m.frozen
	if ok && child != nil && !frozen {
		m.retireLocked(child)
	}
	stale := m.stale
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	m.recordTransition(from, StateStarting)
	metrics.IncWake()

	if child != nil && frozen {
		err := m.ctrl.Unfreeze(child.PID())
		if err == nil {
			m.mu.Lock()
			m.frozen = false
			m.mu.Unlock()
			m.log.Info("resumed frozen server process", "pid", child.PID())
			return true, nil
		}
		m.log.Warn("failed to resume frozen server process, replacing it", "pid", child.PID(), "error", err)
		m.mu.Lock()
		if m.child != child {
			// The process exited meanwhile and watch settled the state.
			m.mu.Unlock()
			return false, nil
		}
		m.retireLocked(child)
		m.mu.Unlock()
		stale = child
		if kerr := m.ctrl.ForceKill(child.PID()); kerr != nil {
			m.log.Warn("failed to kill frozen server process", "pid", child.PID(), "error", kerr)
		}
	}
	if stale != nil {
		m.waitExit(ctx, stale)
	}

	if err := m.spawn(); err != nil {
		m.log.Error("failed to start server process", "error", err)
		m.UpdateState(StateStopped)
		return false, err
	}
	return true, nil
}

// retireLocked detaches the current process so its exit no longer settles
// the state. Callers hold mu.
func (m *ManagedServer) retireLocked(child Child) {
	if m.child == child {
		m.child = nil
		m.frozen = false
	}
	m.stale = child
}

func (m *ManagedServer) waitExit(ctx context.Context, child Child) {
	t := time.NewTimer(staleExitWait)
	defer t.Stop()
	select {
	case <-child.Done():
	case <-t.C:
		m.log.Warn("previous server process still running", "pid", child.PID())
	case <-ctx.Done():
	}
}

func (m *ManagedServer) spawn() error {
	if m.launch == nil {
		return errors.New("no launcher configured")
	}
	child, err := m.launch()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.child = child
	m.frozen = false
	m.mu.Unlock()
	m.log.Info("started server process", "pid", child.PID())
	go m.watch(child)
	return nil
}

// watch waits for child to exit and settles the state. Exits of a process
// that has already been replaced are ignored.
func (m *ManagedServer) watch(child Child) {
	<-child.Done()

	m.mu.Lock()
	if m.stale == child {
		m.stale = nil
	}
	if m.child != child {
		m.mu.Unlock()
		return
	}
	m.child = nil
	m.frozen = false
	prev := m.State()
	var moved bool
	if prev != StateStopped {
		_, moved = m.transitionLocked(StateStopped)
	}
	m.mu.Unlock()

	m.setStatus(nil)
	if moved {
		m.recordTransition(prev, StateStopped)
	}

	if prev == StateStarting || prev == StateStarted {
		m.log.Warn("server process exited unexpectedly", "pid", child.PID(), "error", child.ExitErr())
		if m.cfg.Server.WakeOnCrash {
			if _, err := m.Wake(context.Background()); err != nil {
				m.log.Error("failed to restart crashed server", "error", err)
			}
		}
		return
	}
	m.log.Info("server process exited", "pid", child.PID())
}

// Stop puts a started server to sleep: freeze when configured and
// supported, otherwise RCON stop where signals are unavailable, otherwise a
// graceful stop signal. It returns whether a stop was issued.
func (m *ManagedServer) Stop(ctx context.Context) bool {
	m.mu.Lock()
	from, ok := m.transitionLocked(StateStopping)
	child := m.child
	m.mu.Unlock()
	if !ok {
		return false
	}
	m.recordTransition(from, StateStopping)

	if child == nil {
		m.UpdateState(StateStopped)
		return true
	}

	if m.cfg.Server.FreezeProcess && m.ctrl.Capabilities().Freeze {
		err := m.ctrl.Freeze(child.PID())
		if err == nil {
			m.mu.Lock()
			var moved bool
			if m.child == child {
				m.frozen = true
				_, moved = m.transitionLocked(StateStopped)
			}
			m.mu.Unlock()
			m.setStatus(nil)
			if moved {
				m.recordTransition(StateStopping, StateStopped)
			}
			m.log.Info("froze server process", "pid", child.PID())
			return true
		}
		m.log.Warn("failed to freeze server process, stopping it instead", "pid", child.PID(), "error", err)
	}
	return m.requestStop(ctx, child)
}

// requestStop asks the process to exit; completion is observed by watch.
func (m *ManagedServer) requestStop(ctx context.Context, child Child) bool {
	if m.rcon != nil && m.cfg.RCON.Enabled && !m.ctrl.Capabilities().GracefulStop {
		_, err := m.rcon.Command(ctx, "stop")
		if err == nil {
			m.log.Info("sent stop command over RCON", "pid", child.PID())
			return true
		}
		m.log.Warn("failed to stop server over RCON", "error", err)
	}
	if err := m.ctrl.GracefulStop(child.PID()); err != nil {
		m.log.Warn("failed to stop server process", "pid", child.PID(), "error", err)
		return false
	}
	return true
}

// ForceKill kills the server process and moves to Stopped.
func (m *ManagedServer) ForceKill() bool {
	child := m.Child()
	if child != nil {
		metrics.IncForceKill()
		if err := m.ctrl.ForceKill(child.PID()); err != nil {
			m.log.Warn("failed to force kill server process", "pid", child.PID(), "error", err)
			return false
		}
		m.log.Warn("force killed server process", "pid", child.PID())
	}
	m.mu.Lock()
	if child != nil {
		m.retireLocked(child)
	}
	m.frozen = false
	from, ok := m.transitionLocked(StateStopped)
	m.mu.Unlock()
	m.setStatus(nil)
	if ok {
		m.recordTransition(from, StateStopped)
	}
	return true
}

// Shutdown stops the server process for good: a frozen process is resumed
// first, then asked to stop and killed after stop_timeout.
func (m *ManagedServer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	child, frozen := m.child, m.frozen
	m.mu.Unlock()
	if child == nil {
		return nil
	}
	if frozen {
		if err := m.ctrl.Unfreeze(child.PID()); err != nil {
			m.log.Warn("failed to resume frozen server process", "pid", child.PID(), "error", err)
		}
		m.mu.Lock()
		m.frozen = false
		m.mu.Unlock()
	}

	switch m.State() {
	case StateStarted:
		m.mu.Lock()
		from, ok := m.transitionLocked(StateStopping)
		m.mu.Unlock()
		if ok {
			m.recordTransition(from, StateStopping)
		}
		m.requestStop(ctx, child)
	case StateStopping:
	default:
		m.requestStop(ctx, child)
	}

	t := time.NewTimer(m.cfg.Server.StopTimeout)
	defer t.Stop()
	select {
	case <-child.Done():
		return nil
	case <-t.C:
		m.log.Warn("server did not stop in time", "timeout", m.cfg.Server.StopTimeout)
	case <-ctx.Done():
	}
	if !m.ForceKill() {
		return errors.New("failed to kill server process")
	}
	return ctx.Err()
}

// Snapshot is a point-in-time read model of the server.
type Snapshot struct {
	State      string     `json:"state"`
	PID        int        `json:"pid,omitempty"`
	Frozen     bool       `json:"frozen"`
	LastActive time.Time  `json:"last_active"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	// ProcessStartedAt is when the current process was spawned; it survives
	// freeze and resume, unlike StartedAt.
	ProcessStartedAt *time.Time          `json:"process_started_at,omitempty"`
	Status           *proto.ServerStatus `json:"status,omitempty"`
}

// startTimer is implemented by children that know their spawn time.
type startTimer interface {
	StartedAt() time.Time
}

func (m *ManagedServer) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{
		State:      m.State().String(),
		Frozen:     m.frozen,
		LastActive: m.lastActive,
	}
	if m.child != nil {
		s.PID = m.child.PID()
		if st, ok := m.child.(startTimer); ok {
			t := st.StartedAt()
			s.ProcessStartedAt = &t
		}
	}
	if !m.startedAt.IsZero() {
		t := m.startedAt
		s.StartedAt = &t
	}
	m.mu.Unlock()
	s.Status = m.LastStatus()
	return s
}
