package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/tokscrape/browser"
	"github.com/use-agent/tokscrape/models"
)

// State is the pipeline's position in its attempt state machine.
type State int

const (
	Attempting State = iota
	Succeeded
	// FailedTerminal is reached on a not-found page or when no browser
	// session could be acquired. Neither is retried.
	FailedTerminal
	// FailedExhausted is reached when every attempt failed transiently.
	FailedExhausted
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Succeeded:
		return "succeeded"
	case FailedTerminal:
		return "failed_terminal"
	default:
		return "failed_exhausted"
	}
}

// SessionProvider is the subset of *browser.Manager the pipeline uses.
type SessionProvider interface {
	Acquire(ctx context.Context) (browser.Session, error)
	Release(s browser.Session)
	Discard(s browser.Session)
}

// HealthReporter is implemented by providers that score sessions from
// attempt outcomes.
type HealthReporter interface {
	Report(s browser.Session, ok bool)
}

// RecordExtractor turns rendered HTML into a record of the given kind.
type RecordExtractor interface {
	Extract(rawHTML string, kind models.Kind) models.Record
}

// Result describes a finished run. Run always returns a non-nil Result,
// also alongside an error.
type Result struct {
	Record   models.Record
	State    State
	Attempts int
}

// Pipeline runs navigation and extraction with a bounded attempt budget.
// Attempts for one target run sequentially; separate Run calls may run
// concurrently.
type Pipeline struct {
	sessions    SessionProvider
	nav         Navigator
	ext         RecordExtractor
	maxAttempts int
	retryDelay  time.Duration
}

// NewPipeline creates a Pipeline. maxAttempts below 1 is treated as 1.
// retryDelay is the pause between attempts; 0 retries immediately.
func NewPipeline(sessions SessionProvider, nav Navigator, ext RecordExtractor, maxAttempts int, retryDelay time.Duration) *Pipeline {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pipeline{
		sessions:    sessions,
		nav:         nav,
		ext:         ext,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// attemptOutcome is what one attempt hands back to the state machine.
type attemptOutcome struct {
	record   models.Record
	err      error
	terminal bool
}

// Run extracts one record from target.
//
// Every attempt gets a fresh page; the page (and, under the ephemeral
// policy, the session) is released before the next transition.
func (p *Pipeline) Run(ctx context.Context, target string, kind models.Kind) (*Result, error) {
	res := &Result{State: Attempting}
	log := slog.With("url", target, "kind", kind, "request_id", RequestID(ctx))

	var lastErr error
	for res.Attempts < p.maxAttempts {
		res.Attempts++
		out := p.attempt(ctx, target, kind)

		if out.err == nil {
			res.State = Succeeded
			res.Record = out.record
			log.Info("extraction succeeded", "attempts", res.Attempts)
			return res, nil
		}
		if out.terminal {
			res.State = FailedTerminal
			log.Warn("extraction failed", "attempts", res.Attempts, "error", out.err)
			return res, out.err
		}

		lastErr = out.err
		remaining := p.maxAttempts - res.Attempts
		if remaining == 0 {
			break
		}
		log.Warn("retrying extraction", "attempt", res.Attempts, "remaining", remaining, "error", out.err)

		if err := p.pause(ctx); err != nil {
			lastErr = err
			break
		}
	}

	res.State = FailedExhausted
	log.Error("extraction gave up", "attempts", res.Attempts, "error", lastErr)
	return res, models.NewScrapeError(
		models.ErrCodeRetriesExhausted,
		fmt.Sprintf("gave up after %d attempts", res.Attempts),
		lastErr,
	)
}

// pause waits retryDelay between attempts and stops early if ctx ends.
func (p *Pipeline) pause(ctx context.Context) error {
	if p.retryDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// attempt performs one acquire → navigate → extract cycle. Resources are
// released by defers, so every return path frees the page before Run moves on.
func (p *Pipeline) attempt(ctx context.Context, target string, kind models.Kind) (out attemptOutcome) {
	sess, err := p.sessions.Acquire(ctx)
	if err != nil {
		return attemptOutcome{
			err:      models.NewScrapeError(models.ErrCodeBrowserCrash, "browser session unavailable", err),
			terminal: true,
		}
	}
	defer p.sessions.Release(sess)

	page, err := sess.NewPage(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller went away; the session may still serve others.
			return attemptOutcome{err: contextError(ctxErr)}
		}
		// A session that cannot open pages is assumed dead.
		p.sessions.Discard(sess)
		return attemptOutcome{err: models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", err)}
	}
	defer p.report(ctx, sess, &out)
	defer func() {
		if err := page.Close(); err != nil {
			slog.Debug("page close failed", "url", target, "error", err)
		}
	}()

	nav := p.nav.Navigate(ctx, page, target, kind)
	switch nav.Status {
	case Ready:
	case NotFound:
		return attemptOutcome{
			err:      models.NewScrapeError(models.ErrCodeNotFound, "account not found", nil),
			terminal: true,
		}
	case TimedOut:
		return attemptOutcome{err: models.NewScrapeError(models.ErrCodeTimeout, "page did not become ready", nav.Err)}
	default:
		return attemptOutcome{err: models.NewScrapeError(models.ErrCodeNavigation, "navigation failed", nav.Err)}
	}

	rawHTML, err := page.HTML(ctx)
	if err != nil {
		return attemptOutcome{err: models.NewScrapeError(models.ErrCodeNavigation, "failed to read page HTML", err)}
	}
	return attemptOutcome{record: p.ext.Extract(rawHTML, kind)}
}

// report feeds the attempt outcome to the provider's health scoring.
// A not-found page still proves the session works. Attempts cut short by
// the caller's context say nothing about the session and are not scored.
func (p *Pipeline) report(ctx context.Context, sess browser.Session, out *attemptOutcome) {
	hr, ok := p.sessions.(HealthReporter)
	if !ok || ctx.Err() != nil {
		return
	}
	hr.Report(sess, out.err == nil || models.IsNotFound(out.err))
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeTimeout, "request deadline exceeded", err)
	}
	return models.NewScrapeError(models.ErrCodeNavigation, "request cancelled", err)
}
