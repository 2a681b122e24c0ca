package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/tokscrape/config"
	"github.com/ysmood/gson"
)

// rodSession is a launched Chromium process driven over CDP.
type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
}

// NewPage creates an incognito browser context holding one stealth tab.
//
// Setup order matters: UA, headers and proxy auth must all be installed
// before the first navigation, otherwise the first request goes out with
// headless defaults or stalls on the proxy's 407.
func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	inc, err := s.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	// Drop the request context again; the page outlives this call.
	inc = inc.Context(context.Background())

	page, err := stealth.Page(inc)
	if err != nil {
		_ = inc.Close()
		return nil, fmt.Errorf("create stealth page: %w", err)
	}

	pctx, cancel := context.WithCancel(context.Background())
	p := &rodPage{page: page, incognito: inc, cancel: cancel}

	if err := s.prepare(page.Context(ctx), pctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (s *rodSession) prepare(page *rod.Page, pctx context.Context) error {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      s.cfg.UserAgent,
		AcceptLanguage: s.cfg.AcceptLanguage,
	}); err != nil {
		return fmt.Errorf("set user agent: %w", err)
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	if err := (proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": s.cfg.AcceptLanguage}),
	}).Call(page); err != nil {
		return fmt.Errorf("set extra headers: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	if s.cfg.Proxy.Enabled() {
		if err := handleProxyAuth(page, pctx, s.cfg.Proxy.User, s.cfg.Proxy.Password); err != nil {
			return fmt.Errorf("install proxy auth: %w", err)
		}
	}
	return nil
}

// Close closes the browser over CDP and then reaps the process.
func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}

// handleProxyAuth answers every proxy auth challenge on page with the given
// credentials. Enabling the Fetch domain pauses every request, so paused
// requests are continued unchanged. The listener stops when pctx is done.
func handleProxyAuth(page *rod.Page, pctx context.Context, user, password string) error {
	if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(page); err != nil {
		return err
	}

	// CDP calls must not block the event loop, hence the goroutines.
	listener := page.Context(pctx)
	wait := listener.EachEvent(
		func(e *proto.FetchRequestPaused) {
			go func() {
				_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(listener)
			}()
		},
		func(e *proto.FetchAuthRequired) {
			go func() {
				_ = proto.FetchContinueWithAuth{
					RequestID: e.RequestID,
					AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
						Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
						Username: user,
						Password: password,
					},
				}.Call(listener)
			}()
		},
	)
	go wait()
	return nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// rodPage is one tab inside its own incognito context.
type rodPage struct {
	page      *rod.Page
	incognito *rod.Browser
	cancel    context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

const notFoundJS = `(sel, text) => {
	const el = document.querySelector(sel);
	return !!(el && el.innerText && el.innerText.includes(text));
}`

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)

	// The waiter must exist before Navigate or the event can be missed.
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (p *rodPage) TextContains(ctx context.Context, selector, substr string) (bool, error) {
	res, err := p.page.Context(ctx).Eval(notFoundJS, selector, substr)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (p *rodPage) WaitElement(ctx context.Context, selector string) error {
	_, err := p.page.Context(ctx).Element(selector)
	return err
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.closeErr = errors.Join(p.page.Close(), p.incognito.Close())
	})
	return p.closeErr
}
