package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// BrowserSession is a lazily started headless browser shared by every
// rendered source in a run. The first page request launches it with the
// hardened configuration, falling back to a plain launch if that fails.
// Release shuts it down; a later page request starts a new one.
type BrowserSession struct {
	cfg      *config.Config
	proxyMgr *ProxyManager
	logger   *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	stealth  *StealthConfig
	proxy    *url.URL
	hardened bool
}

// NewBrowserSession creates an idle session. Nothing is launched yet.
func NewBrowserSession(cfg *config.Config, proxyMgr *ProxyManager, logger *slog.Logger) *BrowserSession {
	return &BrowserSession{
		cfg:      cfg,
		proxyMgr: proxyMgr,
		logger:   logger.With("component", "browser_session"),
	}
}

// Active reports whether a browser is currently running.
func (s *BrowserSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browser != nil
}

// NewPage opens a page on the session's browser, launching it if needed.
func (s *BrowserSession) NewPage(ctx context.Context) (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		if err := s.start(ctx); err != nil {
			return nil, err
		}
	}

	if !s.hardened {
		page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			return nil, fmt.Errorf("open page: %w", err)
		}
		return page, nil
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("stealth page: %w", err)
	}

	sc := s.stealth
	if sc.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      sc.UserAgent,
			AcceptLanguage: sc.Language,
			Platform:       sc.Platform,
		}); err != nil {
			s.logger.Warn("failed to set user agent", "error", err)
		}
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             sc.ViewportWidth,
		Height:            sc.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		s.logger.Warn("failed to set viewport", "error", err)
	}
	if _, err := page.EvalOnNewDocument(sc.StealthJS()); err != nil {
		s.logger.Warn("failed to install stealth script", "error", err)
	}
	return page, nil
}

// start launches the hardened configuration, then the plain one.
func (s *BrowserSession) start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Engine.BrowserTimeout)
	defer cancel()

	var errs []error
	if s.cfg.Browser.Stealth {
		sc := NewStealthConfig(s.cfg.Engine.UserAgents, s.cfg.Browser.WindowWidth, s.cfg.Browser.WindowHeight)
		err := s.launch(ctx, s.hardenedLauncher(sc))
		if err == nil {
			s.stealth, s.hardened = sc, true
			s.logger.Info("browser started", "mode", "stealth", "viewport", sc.WindowSize)
			return nil
		}
		errs = append(errs, fmt.Errorf("stealth launch: %w", err))
		s.logger.Warn("stealth browser failed, trying plain configuration", "error", err)
		if s.proxy != nil {
			s.proxyMgr.MarkFailed(s.proxy, err)
		}
	}

	if err := s.launch(ctx, s.plainLauncher()); err != nil {
		errs = append(errs, fmt.Errorf("plain launch: %w", err))
		return fmt.Errorf("%w: %w", types.ErrBrowserUnavailable, errors.Join(errs...))
	}
	s.hardened = false
	s.logger.Info("browser started", "mode", "plain")
	return nil
}

func (s *BrowserSession) hardenedLauncher(sc *StealthConfig) *launcher.Launcher {
	l := s.baseLauncher().
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-setuid-sandbox").
		Set("disable-features", "IsolateOrigins,site-per-process").
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-infobars").
		Set("window-size", sc.WindowSize)
	if sc.UserAgent != "" {
		l = l.Set("user-agent", sc.UserAgent)
	}

	s.proxy = s.proxyMgr.Next()
	if s.proxy != nil {
		l = l.Proxy(s.proxy.String())
	}
	return l
}

func (s *BrowserSession) plainLauncher() *launcher.Launcher {
	return s.baseLauncher()
}

func (s *BrowserSession) baseLauncher() *launcher.Launcher {
	l := launcher.New().
		Headless(s.cfg.Browser.Headless).
		Set("no-sandbox")
	if s.cfg.Browser.BinPath != "" {
		l = l.Bin(s.cfg.Browser.BinPath)
	}
	return l
}

// launch starts the browser process and connects to it, giving up when ctx
// expires.
func (s *BrowserSession) launch(ctx context.Context, l *launcher.Launcher) error {
	type launched struct {
		url string
		err error
	}
	ch := make(chan launched, 1)
	go func() {
		u, err := l.Launch()
		ch <- launched{u, err}
	}()

	var controlURL string
	select {
	case <-ctx.Done():
		l.Kill()
		return fmt.Errorf("launch browser: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			l.Kill()
			return fmt.Errorf("launch browser: %w", r.err)
		}
		controlURL = r.url
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return fmt.Errorf("connect browser: %w", err)
	}

	s.browser = browser
	s.launcher = l
	return nil
}

// Release shuts the browser down. It is safe to call on an idle session.
func (s *BrowserSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return nil
	}

	start := time.Now()
	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	s.browser, s.launcher, s.stealth, s.hardened = nil, nil, nil, false

	s.logger.Info("browser released", "duration", time.Since(start), "error", err)
	return err
}
