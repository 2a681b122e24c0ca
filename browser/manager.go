package browser

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/tokscrape/config"
	"github.com/use-agent/tokscrape/models"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// LaunchFunc starts a new Session.
type LaunchFunc func(ctx context.Context) (Session, error)

// Manager hands out browser sessions under one of two policies:
//
//   - singleton: one engine shared by every request, launched on first use
//     and kept until Shutdown or Discard.
//   - ephemeral: a fresh engine per Acquire, terminated by Release.
//
// It is safe for concurrent use.
type Manager struct {
	policy string
	launch LaunchFunc

	// launchLimit paces engine launches; nil means unlimited.
	launchLimit *rate.Limiter
	recycle     RecycleLimits

	// launches de-duplicates concurrent first use of the singleton. Unlike
	// sync.Once it does not remember failures, so a failed launch is retried
	// by the next Acquire.
	launches singleflight.Group

	mu     sync.Mutex
	shared *trackedSession
	live   map[*trackedSession]struct{}
	closed bool

	openPages atomic.Int32
}

// NewManager creates a Manager that launches real browsers with cfg.
func NewManager(cfg config.BrowserConfig) *Manager {
	m := NewManagerWithLauncher(cfg.Policy, func(ctx context.Context) (Session, error) {
		return Launch(ctx, cfg)
	})
	m.SetLaunchRate(cfg.LaunchesPerSecond, cfg.LaunchBurst)
	m.SetRecycleLimits(RecycleLimits{
		ErrorScore: cfg.RecycleErrorScore,
		Uses:       cfg.RecycleAfterUses,
		Age:        cfg.RecycleAfterAge,
	})
	return m
}

// NewManagerWithLauncher creates a Manager around a custom launch function.
// Any policy other than config.PolicyEphemeral is treated as singleton.
func NewManagerWithLauncher(policy string, launch LaunchFunc) *Manager {
	if policy != config.PolicyEphemeral {
		policy = config.PolicySingleton
	}
	return &Manager{
		policy: policy,
		launch: launch,
		live:   make(map[*trackedSession]struct{}),
	}
}

// SetLaunchRate limits engine launches to perSecond with the given burst.
// A non-positive perSecond removes the limit. Call it before first use.
func (m *Manager) SetLaunchRate(perSecond float64, burst int) {
	if perSecond <= 0 {
		m.launchLimit = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	m.launchLimit = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SetRecycleLimits sets when the singleton session is retired and replaced.
// Call it before first use.
func (m *Manager) SetRecycleLimits(l RecycleLimits) { m.recycle = l }

// Policy returns the active session policy.
func (m *Manager) Policy() string { return m.policy }

// Acquire returns a session for one extraction call. Launch errors are
// returned as-is.
func (m *Manager) Acquire(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if m.policy == config.PolicyEphemeral {
		m.mu.Unlock()
		s, err := m.launchTracked(ctx, false)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if s := m.shared; s != nil {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	// The launch outlives whichever caller started it and is bounded by
	// launchTimeout instead. Each caller stops waiting when its own ctx ends.
	ch := m.launches.DoChan("shared", func() (any, error) {
		m.mu.Lock()
		if s := m.shared; s != nil {
			m.mu.Unlock()
			return s, nil
		}
		m.mu.Unlock()
		launchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), launchTimeout)
		defer cancel()
		s, err := m.launchTracked(launchCtx, true)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(Session), nil
	}
}

func (m *Manager) launchTracked(ctx context.Context, shared bool) (*trackedSession, error) {
	if m.launchLimit != nil {
		if err := m.launchLimit.Wait(ctx); err != nil {
			return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "launch throttled", err)
		}
	}
	inner, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}

	s := &trackedSession{Session: inner, m: m, health: health{created: time.Now()}}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = inner.Close()
		return nil, ErrManagerClosed
	}
	m.live[s] = struct{}{}
	if shared {
		m.shared = s
	}
	m.mu.Unlock()

	slog.Debug("browser session started", "policy", m.policy)
	return s, nil
}

// Release ends the caller's use of s. Under the singleton policy this is a
// no-op; under the ephemeral policy the engine is terminated.
func (m *Manager) Release(s Session) {
	if m.policy != config.PolicyEphemeral {
		return
	}
	m.terminate(s)
}

// Discard terminates s regardless of policy. A discarded singleton is
// replaced by a fresh launch on the next Acquire.
func (m *Manager) Discard(s Session) {
	slog.Warn("discarding browser session", "policy", m.policy)
	m.terminate(s)
}

// Report records the outcome of one attempt served by s. Under the singleton
// policy an unhealthy session is retired: new Acquires get a fresh launch and
// the old engine is closed once its last open page closes.
func (m *Manager) Report(s Session, ok bool) {
	ts, tracked := s.(*trackedSession)
	if !tracked || m.policy == config.PolicyEphemeral || !m.recycle.enabled() {
		return
	}
	ts.health.record(ok)
	if !ts.health.shouldRetire(m.recycle) {
		return
	}

	m.mu.Lock()
	if m.shared != ts {
		m.mu.Unlock()
		return
	}
	m.shared = nil
	m.mu.Unlock()

	ts.retiring.Store(true)
	slog.Info("retiring browser session", "open_pages", ts.pages.Load())
	if ts.pages.Load() == 0 {
		m.terminate(ts)
	}
}

// Shutdown terminates every live session. It is idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sessions := make([]*trackedSession, 0, len(m.live))
	for s := range m.live {
		sessions = append(sessions, s)
	}
	m.live = make(map[*trackedSession]struct{})
	m.shared = nil
	m.mu.Unlock()

	slog.Info("session manager shutting down", "sessions", len(sessions))
	for _, s := range sessions {
		if err := s.Session.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
	}
	slog.Info("session manager shutdown complete")
}

// terminate closes s once, however many callers race on it.
func (m *Manager) terminate(s Session) {
	ts, ok := s.(*trackedSession)
	if !ok {
		return
	}

	m.mu.Lock()
	_, live := m.live[ts]
	delete(m.live, ts)
	if m.shared == ts {
		m.shared = nil
	}
	m.mu.Unlock()

	if !live {
		return
	}
	if err := ts.Session.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}

// Stats returns a snapshot of the manager's state.
func (m *Manager) Stats() models.SessionStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.SessionStats{
		Policy:       m.policy,
		LiveSessions: len(m.live),
		OpenPages:    int(m.openPages.Load()),
		Closed:       m.closed,
	}
}

// trackedSession counts open pages against its manager.
type trackedSession struct {
	Session
	m      *Manager
	health health

	pages    atomic.Int32
	retiring atomic.Bool
}

func (s *trackedSession) NewPage(ctx context.Context) (Page, error) {
	p, err := s.Session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	s.m.openPages.Add(1)
	s.pages.Add(1)
	return &trackedPage{Page: p, s: s}, nil
}

type trackedPage struct {
	Page
	s    *trackedSession
	once sync.Once
}

// Close closes the page. The last page of a retiring session also closes
// the session.
func (p *trackedPage) Close() error {
	err := p.Page.Close()
	p.once.Do(func() {
		p.s.m.openPages.Add(-1)
		if p.s.pages.Add(-1) == 0 && p.s.retiring.Load() {
			p.s.m.terminate(p.s)
		}
	})
	return err
}
