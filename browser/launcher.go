package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/use-agent/tokscrape/config"
	"github.com/use-agent/tokscrape/models"
)

// launchTimeout bounds process start-up until the DevTools URL is printed.
const launchTimeout = 30 * time.Second

// newLauncher builds the launcher with the fixed engine configuration.
func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy.Enabled() {
		l = l.Proxy(cfg.Proxy.Server)
	}

	// ── Container flags ──────────────────────────────────────────────
	l.Set(flags.Flag("disable-setuid-sandbox"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-accelerated-2d-canvas"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight))

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	return l
}

// Launch starts a browser process and connects to it. Failures are not
// retried here.
func Launch(ctx context.Context, cfg config.BrowserConfig) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	l := newLauncher(cfg).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to launch browser",
			err,
		)
	}
	slog.Info("browser launched", "controlURL", controlURL, "pid", l.PID())

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	return &rodSession{browser: b, launcher: l, cfg: cfg}, nil
}
