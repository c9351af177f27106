package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/carnet/browser"
)

// GateState is the gate's phase, exposed for logging.
type GateState int

const (
	GateCold GateState = iota
	GateChecking
	GateReady
	GateAwaitingUser
	GateTimedOut
)

func (s GateState) String() string {
	switch s {
	case GateChecking:
		return "checking"
	case GateReady:
		return "ready"
	case GateAwaitingUser:
		return "awaiting_user"
	case GateTimedOut:
		return "timed_out"
	default:
		return "cold"
	}
}

// StateDetector is what the gate polls. *Detector satisfies it; tests
// substitute a scripted one.
type StateDetector interface {
	Detect(ctx context.Context, page browser.Page) (AuthState, error)
}

// GateConfig tunes the waiting loop.
type GateConfig struct {
	// HomeURL is navigated to before checking when Options.StartFromHome.
	HomeURL string `yaml:"home_url"`
	// PollInterval between detector runs while waiting for the user.
	PollInterval time.Duration `yaml:"poll_interval"`
	// ReloadEvery reloads the page every Nth poll; stale login overlays
	// sometimes survive a completed login until a refresh.
	ReloadEvery int `yaml:"reload_every"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *GateConfig) applyDefaults() {
	if c.HomeURL == "" {
		c.HomeURL = "https://www.xiaohongshu.com"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.ReloadEvery == 0 {
		c.ReloadEvery = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Options are per-call knobs for EnsureLogin.
type Options struct {
	// StartFromHome navigates to the home URL before the first check.
	StartFromHome bool
	// Timeout bounds the whole wait. Zero means the default.
	Timeout time.Duration
}

const defaultLoginTimeout = 3 * time.Minute

// Gate blocks a run until the page is authenticated or time runs out.
type Gate struct {
	cfg   GateConfig
	det   StateDetector
	log   *slog.Logger
	state GateState
}

func NewGate(cfg GateConfig, det StateDetector) *Gate {
	cfg.applyDefaults()
	return &Gate{cfg: cfg, det: det, log: cfg.Logger}
}

// State returns the last phase the gate reached.
func (g *Gate) State() GateState { return g.state }

// EnsureLogin returns true only when the page reached Authenticated. A false
// return with nil error means the user never logged in before the timeout.
// Unknown never passes the gate.
func (g *Gate) EnsureLogin(ctx context.Context, page browser.Page, opts Options) (bool, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultLoginTimeout
	}
	g.state = GateChecking

	if opts.StartFromHome {
		if err := page.Goto(ctx, g.cfg.HomeURL); err != nil {
			return false, err
		}
	}

	st, err := g.det.Detect(ctx, page)
	if err != nil {
		return false, err
	}
	if st == Authenticated {
		g.state = GateReady
		return true, nil
	}

	g.state = GateAwaitingUser
	g.log.Info("login required, waiting for user",
		"state", g.state.String(), "timeout", opts.Timeout)

	deadline := time.Now().Add(opts.Timeout)
	timer := time.NewTimer(g.cfg.PollInterval)
	defer timer.Stop()

	for polls := 1; ; polls++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}

		if g.cfg.ReloadEvery > 0 && polls%g.cfg.ReloadEvery == 0 {
			if err := page.Reload(ctx); err != nil && browser.IsTargetClosed(err) {
				return false, err
			}
		}

		st, err := g.det.Detect(ctx, page)
		if err != nil {
			return false, err
		}
		if st == Authenticated {
			g.state = GateReady
			g.log.Info("login detected", "polls", polls)
			return true, nil
		}

		if time.Now().After(deadline) {
			g.state = GateTimedOut
			g.log.Warn("login wait timed out", "polls", polls)
			return false, nil
		}
		timer.Reset(g.cfg.PollInterval)
	}
}
