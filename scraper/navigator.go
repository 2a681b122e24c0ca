package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/tokscrape/browser"
	"github.com/use-agent/tokscrape/config"
	"github.com/use-agent/tokscrape/extractor"
	"github.com/use-agent/tokscrape/models"
)

// Status classifies a navigation.
type Status int

const (
	// Ready means the entity's data has hydrated and the DOM can be read.
	Ready Status = iota
	// NotFound means the site rendered its "account not found" page.
	NotFound
	// TimedOut means the load or the hydration wait hit its deadline.
	TimedOut
	// OtherFailure covers every other navigation error.
	OtherFailure
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case NotFound:
		return "not_found"
	case TimedOut:
		return "timed_out"
	default:
		return "other_failure"
	}
}

// Outcome is the result of one navigation. Err is set for TimedOut and
// OtherFailure.
type Outcome struct {
	Status Status
	Err    error
}

// Navigator drives a page to a target and classifies the result.
type Navigator interface {
	Navigate(ctx context.Context, page browser.Page, target string, kind models.Kind) Outcome
}

// PageNavigator is the browser-backed Navigator.
//
// The target pages are client-rendered, so "DOM loaded" and "data ready"
// are separate events: the first is bounded by navTimeout, the second by
// readyTimeout.
type PageNavigator struct {
	navTimeout   time.Duration
	readyTimeout time.Duration
}

// NewNavigator creates a PageNavigator from the scraper config.
func NewNavigator(cfg config.ScraperConfig) *PageNavigator {
	return &PageNavigator{
		navTimeout:   cfg.NavigationTimeout,
		readyTimeout: cfg.ReadyTimeout,
	}
}

// Navigate loads target, checks for the not-found marker, then waits for
// the kind's hydration marker.
func (n *PageNavigator) Navigate(ctx context.Context, page browser.Page, target string, kind models.Kind) Outcome {
	// ── 1. Load until DOMContentLoaded ─────────────────────────────
	loadCtx, cancel := context.WithTimeout(ctx, n.navTimeout)
	err := page.Navigate(loadCtx, target)
	cancel()
	if err != nil {
		return classify(err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, n.readyTimeout)
	defer cancel()

	// ── 2. Not-found page, regardless of HTTP status ────────────────
	missing, err := page.TextContains(readyCtx, extractor.NotFoundHeading, extractor.NotFoundText)
	if err != nil {
		return classify(err)
	}
	if missing {
		return Outcome{Status: NotFound}
	}

	// ── 3. Wait for hydrated data ───────────────────────────────────
	if err := page.WaitElement(readyCtx, extractor.ReadySelector(kind)); err != nil {
		return classify(err)
	}
	return Outcome{Status: Ready}
}

func classify(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Status: TimedOut, Err: err}
	}
	return Outcome{Status: OtherFailure, Err: err}
}
