package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/use-agent/tokscrape/browser"
	"github.com/use-agent/tokscrape/config"
	"github.com/use-agent/tokscrape/models"
)

// ── fakes ────────────────────────────────────────────────────────────

type pageLog struct {
	mu     sync.Mutex
	opened int
	closed int
	// open is the number of pages currently open; maxOpen is its peak.
	open    int
	maxOpen int
}

func (l *pageLog) onOpen() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opened++
	l.open++
	if l.open > l.maxOpen {
		l.maxOpen = l.open
	}
}

func (l *pageLog) onClose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed++
	l.open--
}

type stubPage struct {
	log  *pageLog
	html string
	once sync.Once
}

func (p *stubPage) Navigate(context.Context, string) error { return nil }

func (p *stubPage) TextContains(context.Context, string, string) (bool, error) {
	return false, nil
}

func (p *stubPage) WaitElement(context.Context, string) error { return nil }

func (p *stubPage) HTML(context.Context) (string, error) { return p.html, nil }

func (p *stubPage) Close() error {
	p.once.Do(p.log.onClose)
	return nil
}

type stubSession struct {
	log     *pageLog
	html    string
	pageErr error
}

func (s *stubSession) NewPage(context.Context) (browser.Page, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	s.log.onOpen()
	return &stubPage{log: s.log, html: s.html}, nil
}

func (s *stubSession) Close() error { return nil }

type stubSessions struct {
	sess       browser.Session
	acquireErr error

	acquired  int
	released  int
	discarded int
}

func (p *stubSessions) Acquire(context.Context) (browser.Session, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.acquired++
	return p.sess, nil
}

func (p *stubSessions) Release(browser.Session) { p.released++ }

func (p *stubSessions) Discard(browser.Session) { p.discarded++ }

type reportingSessions struct {
	stubSessions
	reports []bool
}

func (p *reportingSessions) Report(_ browser.Session, ok bool) { p.reports = append(p.reports, ok) }

// scriptedNavigator returns statuses in order, repeating the last one.
type scriptedNavigator struct {
	script []Status
	calls  int
}

func (n *scriptedNavigator) Navigate(_ context.Context, _ browser.Page, _ string, _ models.Kind) Outcome {
	st := n.script[min(n.calls, len(n.script)-1)]
	n.calls++
	var err error
	switch st {
	case TimedOut:
		err = context.DeadlineExceeded
	case OtherFailure:
		err = errors.New("net::ERR_CONNECTION_RESET")
	}
	return Outcome{Status: st, Err: err}
}

type stubExtractor struct{}

func (stubExtractor) Extract(rawHTML string, kind models.Kind) models.Record {
	if kind == models.KindVideo {
		return &models.Video{Description: rawHTML}
	}
	return &models.Profile{Username: rawHTML}
}

// ctxSession fails NewPage once the caller's context is done, like a
// CDP call racing a client disconnect.
type ctxSession struct {
	log    pageLog
	closes atomic.Int32
}

func (s *ctxSession) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.log.onOpen()
	return &stubPage{log: &s.log, html: "alice"}, nil
}

func (s *ctxSession) Close() error {
	s.closes.Add(1)
	return nil
}

func newStubPipeline(script []Status, maxAttempts int) (*Pipeline, *stubSessions, *scriptedNavigator, *pageLog) {
	log := &pageLog{}
	sessions := &stubSessions{sess: &stubSession{log: log, html: "alice"}}
	nav := &scriptedNavigator{script: script}
	return NewPipeline(sessions, nav, stubExtractor{}, maxAttempts, 0), sessions, nav, log
}

// ── tests ────────────────────────────────────────────────────────────

func TestPipeline_Transitions(t *testing.T) {
	tests := []struct {
		name         string
		script       []Status
		wantState    State
		wantAttempts int
		wantCode     string
	}{
		{"ready first try", []Status{Ready}, Succeeded, 1, ""},
		{"not found is terminal", []Status{NotFound}, FailedTerminal, 1, models.ErrCodeNotFound},
		{"timeouts exhaust budget", []Status{TimedOut}, FailedExhausted, 3, models.ErrCodeRetriesExhausted},
		{"other failures exhaust budget", []Status{OtherFailure}, FailedExhausted, 3, models.ErrCodeRetriesExhausted},
		{"recovers on third attempt", []Status{TimedOut, OtherFailure, Ready}, Succeeded, 3, ""},
		{"not found after a timeout", []Status{TimedOut, NotFound}, FailedTerminal, 2, models.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, sessions, nav, log := newStubPipeline(tt.script, 3)

			res, err := p.Run(context.Background(), "https://www.tiktok.com/@alice", models.KindProfile)
			if res == nil {
				t.Fatal("Run returned nil result")
			}
			if res.State != tt.wantState {
				t.Errorf("state = %s, want %s", res.State, tt.wantState)
			}
			if res.Attempts != tt.wantAttempts || nav.calls != tt.wantAttempts {
				t.Errorf("attempts = %d (nav calls %d), want %d", res.Attempts, nav.calls, tt.wantAttempts)
			}

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if prof := res.Record.(*models.Profile); prof.Username != "alice" {
					t.Errorf("record username = %q", prof.Username)
				}
			} else if got := models.CodeOf(err); got != tt.wantCode {
				t.Errorf("error code = %s, want %s (err: %v)", got, tt.wantCode, err)
			}

			if log.opened != tt.wantAttempts || log.closed != tt.wantAttempts {
				t.Errorf("pages opened/closed = %d/%d, want %d/%d", log.opened, log.closed, tt.wantAttempts, tt.wantAttempts)
			}
			if log.maxOpen != 1 {
				t.Errorf("peak open pages = %d, want 1", log.maxOpen)
			}
			if sessions.acquired != sessions.released {
				t.Errorf("acquired %d sessions but released %d", sessions.acquired, sessions.released)
			}
		})
	}
}

func TestPipeline_ExhaustedWrapsLastError(t *testing.T) {
	p, _, _, _ := newStubPipeline([]Status{TimedOut}, 2)

	_, err := p.Run(context.Background(), "https://www.tiktok.com/@alice", models.KindProfile)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("exhausted error should wrap the last attempt's cause, got %v", err)
	}
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeRetriesExhausted {
		t.Fatalf("want RETRIES_EXHAUSTED, got %v", err)
	}
}

func TestPipeline_AcquireFailureIsTerminal(t *testing.T) {
	sessions := &stubSessions{acquireErr: errors.New("chrome not found")}
	nav := &scriptedNavigator{script: []Status{Ready}}
	p := NewPipeline(sessions, nav, stubExtractor{}, 3, 0)

	res, err := p.Run(context.Background(), "https://www.tiktok.com/@alice", models.KindProfile)
	if res.State != FailedTerminal || res.Attempts != 1 {
		t.Errorf("state=%s attempts=%d, want failed_terminal after 1", res.State, res.Attempts)
	}
	if models.CodeOf(err) != models.ErrCodeBrowserCrash {
		t.Errorf("code = %s, want BROWSER_CRASH", models.CodeOf(err))
	}
	if nav.calls != 0 {
		t.Error("navigator must not run without a session")
	}
}

func TestPipeline_PageFailureDiscardsSession(t *testing.T) {
	log := &pageLog{}
	sessions := &stubSessions{sess: &stubSession{log: log, pageErr: errors.New("target closed")}}
	p := NewPipeline(sessions, &scriptedNavigator{script: []Status{Ready}}, stubExtractor{}, 3, 0)

	res, err := p.Run(context.Background(), "https://www.tiktok.com/@alice", models.KindProfile)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.State != FailedExhausted || res.Attempts != 3 {
		t.Errorf("state=%s attempts=%d, want failed_exhausted after 3", res.State, res.Attempts)
	}
	if sessions.discarded != 3 {
		t.Errorf("discarded %d sessions, want 3", sessions.discarded)
	}
}

func TestPipeline_StopsOnCancelledContext(t *testing.T) {
	p, _, nav, _ := newStubPipeline([]Status{TimedOut}, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Run(ctx, "https://www.tiktok.com/@alice", models.KindProfile)
	if res.State != FailedExhausted {
		t.Errorf("state = %s", res.State)
	}
	if nav.calls != 1 {
		t.Errorf("nav calls = %d, want 1 before observing cancellation", nav.calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want wrapped context.Canceled", err)
	}
}

func TestPipeline_MinimumOneAttempt(t *testing.T) {
	p, _, _, _ := newStubPipeline([]Status{TimedOut}, 0)
	res, _ := p.Run(context.Background(), "https://www.tiktok.com/@alice", models.KindProfile)
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}

func TestState_String(t *testing.T) {
	for st, want := range map[State]string{
		Attempting:      "attempting",
		Succeeded:       "succeeded",
		FailedTerminal:  "failed_terminal",
		FailedExhausted: "failed_exhausted",
	} {
		if st.String() != want {
			t.Errorf("%d.String() = %q, want %q", st, st.String(), want)
		}
	}
}

func TestPipeline_ReportsSessionHealth(t *testing.T) {
	log := &pageLog{}
	sessions := &reportingSessions{stubSessions: stubSessions{sess: &stubSession{log: log, html: "alice"}}}
	nav := &scriptedNavigator{script: []Status{TimedOut, OtherFailure, NotFound}}
	p := NewPipeline(sessions, nav, stubExtractor{}, 3, 0)

	if _, err := p.Run(context.Background(), "https://www.tiktok.com/@ghost", models.KindProfile); !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	want := []bool{false, false, true}
	if len(sessions.reports) != len(want) {
		t.Fatalf("reports = %v, want %v", sessions.reports, want)
	}
	for i := range want {
		if sessions.reports[i] != want[i] {
			t.Errorf("report %d = %v, want %v", i, sessions.reports[i], want[i])
		}
	}
}

func TestPipeline_CancelledCallerKeepsSharedSession(t *testing.T) {
	shared := &ctxSession{}
	m := browser.NewManagerWithLauncher(config.PolicySingleton, func(context.Context) (browser.Session, error) {
		return shared, nil
	})
	defer m.Shutdown()

	// Another request holds the shared session.
	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := NewPipeline(m, &scriptedNavigator{script: []Status{Ready}}, stubExtractor{}, 3, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := p.Run(ctx, "https://www.tiktok.com/@alice", models.KindProfile)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want wrapped context.Canceled", err)
	}
	if models.CodeOf(err) != models.ErrCodeRetriesExhausted {
		t.Errorf("code = %s, want RETRIES_EXHAUSTED", models.CodeOf(err))
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if c := shared.closes.Load(); c != 0 {
		t.Errorf("shared session closed %d times, want 0", c)
	}
	if live := m.Stats().LiveSessions; live != 1 {
		t.Errorf("live sessions = %d, want 1", live)
	}

	// The same session still serves a live request.
	if _, err := p.Run(context.Background(), "https://www.tiktok.com/@alice", models.KindProfile); err != nil {
		t.Fatalf("follow-up run: %v", err)
	}
	if shared.log.opened != 1 {
		t.Errorf("pages opened = %d, want 1", shared.log.opened)
	}
}

func TestPipeline_CancelledAttemptIsNotScored(t *testing.T) {
	sessions := &reportingSessions{stubSessions: stubSessions{sess: &ctxSession{}}}
	p := NewPipeline(sessions, &scriptedNavigator{script: []Status{Ready}}, stubExtractor{}, 3, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, "https://www.tiktok.com/@alice", models.KindProfile); err == nil {
		t.Fatal("expected error")
	}
	if sessions.discarded != 0 {
		t.Errorf("discarded %d sessions, want 0", sessions.discarded)
	}
	if len(sessions.reports) != 0 {
		t.Errorf("reports = %v, want none", sessions.reports)
	}
}
