// Package session creates, attaches to, and tears down persistent browser
// sessions. A session's browser is owned by a detached daemon process; this
// package coordinates with it only through the session registry and the
// browser's remote-debugging endpoint.
package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"webpilot/internal/config"
	"webpilot/internal/store"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	createPollInterval = 300 * time.Millisecond
	createTimeout      = 30 * time.Second

	// navigationGrace is the extra settle time when a session reports ready
	// while an initial navigation is still in flight.
	navigationGrace = 500 * time.Millisecond

	attachNavigationTimeout = 15 * time.Second
)

// Manager drives session lifecycle from short-lived CLI invocations.
type Manager struct {
	store *store.Store
	cfg   config.Config
	log   *zap.Logger

	// Overridable for tests.
	pollInterval time.Duration
	timeout      time.Duration
	spawn        func(id, initialURL string) error
}

// NewManager returns a Manager over the given registry.
func NewManager(st *store.Store, cfg config.Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:        st,
		cfg:          cfg,
		log:          logger,
		pollInterval: createPollInterval,
		timeout:      createTimeout,
	}
	m.spawn = m.spawnDaemon
	return m
}

// NewSessionID generates a fresh opaque session id. Collisions against
// existing registry entries are treated as negligible and not checked.
func NewSessionID() string {
	return "session_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateResult is the structured outcome of a create request. Readiness
// timeouts are reported here, not raised as errors.
type CreateResult struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id,omitempty"`
	CDPEndpoint string `json:"cdp_endpoint,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Create spawns a daemon for a new session and polls the registry until the
// daemon reports ready or active. The daemon outlives this process.
func (m *Manager) Create(ctx context.Context, initialURL string) CreateResult {
	id := NewSessionID()

	if err := m.spawn(id, initialURL); err != nil {
		return CreateResult{Success: false, Error: fmt.Sprintf("failed to start session daemon: %v", err)}
	}
	m.log.Debug("daemon spawned", zap.String("session", id), zap.String("initial_url", initialURL))

	deadline := time.Now().Add(m.timeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			_ = m.store.Delete(id)
			return CreateResult{Success: false, Error: fmt.Sprintf("session creation cancelled: %v", ctx.Err())}
		case <-ticker.C:
		}

		sess, ok, err := m.store.Get(id)
		if err != nil || !ok || !sess.Ready() {
			continue
		}

		// Give an in-flight initial navigation a moment to progress.
		if sess.Status == store.StatusReady && initialURL != "" {
			time.Sleep(navigationGrace)
		}

		msg := fmt.Sprintf("Browser session started. Use session_id %q in subsequent actions.", id)
		if initialURL != "" {
			msg = fmt.Sprintf("Browser session started on %s. Use session_id %q for subsequent actions.", initialURL, id)
		}
		return CreateResult{
			Success:     true,
			SessionID:   id,
			CDPEndpoint: sess.CDPEndpoint,
			Message:     msg,
		}
	}

	// The daemon never became ready; drop any partial registry entry so the
	// failed id does not linger.
	_ = m.store.Delete(id)
	return CreateResult{
		Success: false,
		Error: fmt.Sprintf("session %s did not become ready within %d seconds; check that a Chromium browser is installed",
			id, int(m.timeout.Seconds())),
	}
}

// spawnDaemon re-executes this binary as a detached daemon process. The
// child survives this process exiting.
func (m *Manager) spawnDaemon(id, initialURL string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	args := []string{"daemon", id}
	if initialURL != "" {
		args = append(args, initialURL)
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	// Reap the child if it exits while we are still polling; the daemon is
	// expected to keep running long past this process.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Attach connects to an existing session over its remote-debugging endpoint
// and reuses the first open page, so operations stay visible in the window a
// human may be watching. If targetURL is set and differs from the current
// page address (and is not already contained in it), the page is navigated.
func (m *Manager) Attach(ctx context.Context, id, targetURL string) (*rod.Browser, *rod.Page, error) {
	sess, ok, err := m.store.Get(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("session not found: %s; start a new session with session start", id)
	}

	browser, page, err := m.connect(ctx, sess)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to session %s: %w; the browser may have been closed", id, err)
	}

	_ = m.store.Touch(id)

	if targetURL != "" {
		info, err := page.Info()
		current := ""
		if err == nil {
			current = info.URL
		}
		if ShouldNavigate(current, targetURL) {
			nav := page.Context(ctx).Timeout(attachNavigationTimeout)
			if err := nav.Navigate(targetURL); err != nil {
				return nil, nil, fmt.Errorf("navigate to %s: %w", targetURL, err)
			}
			if err := nav.WaitDOMStable(300*time.Millisecond, 0); err != nil {
				m.log.Debug("page did not settle after navigation", zap.Error(err))
			}
		}
	}

	return browser, page, nil
}

func (m *Manager) connect(ctx context.Context, sess store.Session) (*rod.Browser, *rod.Page, error) {
	wsURL, err := launcher.ResolveURL(sess.CDPEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve debugger url %s: %w", sess.CDPEndpoint, err)
	}

	browser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", sess.CDPEndpoint, err)
	}

	pages, err := browser.Pages()
	if err != nil {
		return nil, nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) > 0 {
		// Reuse the existing page: this is what makes session operations
		// visible to a human watching the same window.
		return browser, pages[0], nil
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	return browser, page, nil
}

// ShouldNavigate reports whether attaching with targetURL requires a fresh
// navigation. Navigation is skipped when the target equals, or is already a
// substring of, the current page address, avoiding a redundant reload when
// the page is already where the caller wants it.
func ShouldNavigate(current, target string) bool {
	if target == "" {
		return false
	}
	if current == target {
		return false
	}
	return !strings.Contains(current, target)
}

// EndResult is the structured outcome of an end request.
type EndResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// End tears a session down: signal the daemon process, close the browser via
// the debugging endpoint as a fallback, and remove the registry entry. The
// removal happens regardless of whether the process or browser shutdown
// succeeded; the registry is the authoritative record of existence.
func (m *Manager) End(ctx context.Context, id string) EndResult {
	sess, ok, err := m.store.Get(id)
	if err != nil {
		return EndResult{Success: false, Error: err.Error()}
	}
	if !ok {
		return EndResult{Success: false, Error: fmt.Sprintf("session not found: %s", id)}
	}

	if sess.PID > 0 {
		if err := terminateProcess(sess.PID); err != nil {
			m.log.Debug("daemon signal failed", zap.Int("pid", sess.PID), zap.Error(err))
		}
	}

	// Fallback cleanup path in case the daemon is gone but the browser is
	// still running.
	if sess.CDPEndpoint != "" {
		if browser, _, err := m.connect(ctx, sess); err == nil {
			_ = browser.Close()
		}
	}

	if err := m.store.Delete(id); err != nil {
		return EndResult{Success: false, Error: fmt.Sprintf("remove session entry: %v", err)}
	}
	return EndResult{Success: true, Message: fmt.Sprintf("Session %s closed.", id)}
}

// LaunchEphemeral starts a throwaway browser for a non-session invocation.
// The returned cleanup closes the browser and its launcher.
func (m *Manager) LaunchEphemeral(ctx context.Context, headless bool, initialURL string) (*rod.Page, func(), error) {
	l := launcher.New().Headless(headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if m.cfg.SlowMoMs > 0 {
		browser = browser.SlowMotion(time.Duration(m.cfg.SlowMoMs) * time.Millisecond)
	}
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect to browser: %w", err)
	}

	cleanup := func() {
		_ = browser.Close()
		l.Cleanup()
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		m.log.Debug("failed to set viewport", zap.Error(err))
	}
	_ = proto.NetworkSetUserAgentOverride{
		UserAgent:      m.cfg.ResolvedUserAgent(),
		AcceptLanguage: m.cfg.Locale,
	}.Call(page)

	if initialURL != "" {
		nav := page.Timeout(m.cfg.Timeout())
		if err := nav.Navigate(initialURL); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("navigate to %s: %w", initialURL, err)
		}
		if err := nav.WaitLoad(); err != nil {
			m.log.Debug("page load incomplete", zap.Error(err))
		}
	}

	return page, cleanup, nil
}
