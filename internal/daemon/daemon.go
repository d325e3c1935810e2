// Package daemon implements the long-lived process that owns exactly one
// browser instance for the lifetime of a session. It launches Chrome with a
// remote-debugging port, registers the session in the registry, and keeps a
// heartbeat until it is signalled to stop.
package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"webpilot/internal/config"
	"webpilot/internal/store"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// basePort is where the free-port scan starts.
	basePort = 9222
	// portScanRange bounds the scan so a saturated host fails fast.
	portScanRange = 100

	heartbeatInterval = 30 * time.Second
	navigationTimeout = 15 * time.Second
)

// Options configures one daemon run.
type Options struct {
	SessionID  string
	InitialURL string
	Store      *store.Store
	Config     config.Config
	Logger     *zap.Logger

	// Heartbeat overrides the default interval; used by tests.
	Heartbeat time.Duration
}

// Run owns the browser until ctx is cancelled. It returns an error before
// ever writing a registry entry when the browser cannot be launched; the
// creator's readiness poll times out and reports the failure, so no separate
// error channel is needed.
func Run(ctx context.Context, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = heartbeatInterval
	}

	port, err := freePort(basePort)
	if err != nil {
		return fmt.Errorf("find debugging port: %w", err)
	}
	log.Info("starting session daemon",
		zap.String("session", opts.SessionID),
		zap.Int("cdp_port", port))

	// Sessions are always headed: the whole point of a daemon-owned browser
	// is that a human can watch the window while automation drives it.
	l := launcher.New().
		Headless(false).
		Set(flags.RemoteDebuggingPort, strconv.Itoa(port))
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	defer func() { _ = browser.Close() }()

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Config.GetViewportWidth(),
		Height:            opts.Config.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Warn("failed to set viewport", zap.Error(err))
	}

	endpoint := fmt.Sprintf("http://localhost:%d", port)
	now := time.Now()
	if err := opts.Store.Put(opts.SessionID, store.Session{
		CDPEndpoint: endpoint,
		PID:         os.Getpid(),
		StartedAt:   now,
		LastUsed:    now,
		Status:      store.StatusReady,
		InitialURL:  opts.InitialURL,
	}); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	// From here on the registry entry exists; remove it on the way out.
	defer func() { _ = opts.Store.Delete(opts.SessionID) }()

	if opts.InitialURL != "" {
		// The session must stay usable even when the initial page fails to
		// load, so navigation errors are logged rather than fatal.
		nav := page.Timeout(navigationTimeout)
		if err := nav.Navigate(opts.InitialURL); err != nil {
			log.Warn("initial navigation failed, continuing",
				zap.String("url", opts.InitialURL), zap.Error(err))
		} else if err := nav.WaitLoad(); err != nil {
			log.Warn("initial page load incomplete, continuing", zap.Error(err))
		}
	}

	if _, err := opts.Store.Update(opts.SessionID, func(s *store.Session) {
		s.Status = store.StatusActive
		s.LastUsed = time.Now()
	}); err != nil {
		log.Warn("failed to mark session active", zap.Error(err))
	}

	log.Info("session ready", zap.String("session", opts.SessionID), zap.String("cdp_endpoint", endpoint))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return heartbeat(ctx, opts.Store, opts.SessionID, opts.Heartbeat)
	})

	err = g.Wait()
	log.Info("session daemon shutting down", zap.String("session", opts.SessionID))
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// heartbeat refreshes the session's lastUsed timestamp until ctx is
// cancelled, signalling to observers that the daemon is still alive.
func heartbeat(ctx context.Context, st *store.Store, id string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := st.Touch(id); err != nil {
				return fmt.Errorf("heartbeat: %w", err)
			}
		}
	}
}

// freePort finds an available local port by binding a throwaway listener,
// retrying upward on conflict.
func freePort(start int) (int, error) {
	for port := start; port < start+portScanRange; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, start+portScanRange-1)
}
