// Package browser owns the headless browser engine: launching it, handing
// out isolated page contexts and tearing everything down on shutdown.
package browser

import (
	"context"
	"errors"
)

// ErrManagerClosed is returned by Acquire after Shutdown.
var ErrManagerClosed = errors.New("browser: session manager is shut down")

// Session is a live browser engine able to host page contexts.
type Session interface {
	// NewPage opens an isolated browsing context with its own cookies,
	// storage and history.
	NewPage(ctx context.Context) (Page, error)

	// Close terminates the engine.
	Close() error
}

// Page is one isolated browsing context, used for exactly one extraction
// attempt. Every method honors ctx cancellation and deadlines.
type Page interface {
	// Navigate loads url and returns once the DOM has been constructed,
	// without waiting for subresources.
	Navigate(ctx context.Context, url string) error

	// TextContains reports whether the first element matching selector has
	// rendered text containing substr.
	TextContains(ctx context.Context, selector, substr string) (bool, error)

	// WaitElement blocks until an element matching selector exists.
	WaitElement(ctx context.Context, selector string) error

	// HTML returns the current rendered document.
	HTML(ctx context.Context) (string, error)

	// Close releases the context. It is safe to call more than once.
	Close() error
}
