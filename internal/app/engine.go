// Package app assembles the engine: stream manager feeding the normalizer,
// whose events fan out to the overlay arbiter and the entitlement refresh
// trigger, with the focus authority and force lock wired across. The
// hosting UI talks to the pieces through the accessors; nothing in here may
// crash it over a bad stream message.
package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nimbletv/pulse/internal/arbiter"
	"github.com/nimbletv/pulse/internal/entitle"
	"github.com/nimbletv/pulse/internal/event"
	"github.com/nimbletv/pulse/internal/focus"
	"github.com/nimbletv/pulse/internal/normalize"
	"github.com/nimbletv/pulse/internal/store"
	"github.com/nimbletv/pulse/internal/stream"
)

type Config struct {
	StreamURL  string
	StreamPath string
	EntitleURL string
	Identity   event.Identity
	Menu       []focus.MenuItem
	Route      string
	Navigator  focus.Navigator
	Store      *store.Store
	Log        *zap.Logger

	ToastDwell     time.Duration
	SuppressWindow time.Duration
	BlockCountdown time.Duration

	// OnLogout runs after the block countdown, once engine-side cleanup
	// (route markers, session auth record) is done.
	OnLogout func()
}

type Engine struct {
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	lock *focus.Lock
	auth *focus.Authority
	arb  *arbiter.Arbiter
	ent  *entitle.Client
	mgr  *stream.Manager

	mu       sync.Mutex
	identity event.Identity
}

func New(parent context.Context, cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.StreamPath == "" {
		cfg.StreamPath = "/notifications"
	}
	ctx, cancel := context.WithCancel(parent)

	e := &Engine{
		cfg:      cfg,
		log:      cfg.Log,
		ctx:      ctx,
		cancel:   cancel,
		identity: cfg.Identity,
		lock:     focus.NewLock(),
	}
	e.auth = focus.NewAuthority(cfg.Log.Named("focus"), e.lock, cfg.Navigator, cfg.Menu, cfg.Route)
	e.arb = arbiter.New(ctx, arbiter.Config{
		Identity:       cfg.Identity,
		ToastDwell:     cfg.ToastDwell,
		SuppressWindow: cfg.SuppressWindow,
		BlockCountdown: cfg.BlockCountdown,
		OnLogout:       e.logout,
		Lock:           e.lock,
		Log:            cfg.Log.Named("arbiter"),
	})
	e.ent = entitle.New(entitle.Config{
		BaseURL: cfg.EntitleURL,
		Store:   cfg.Store,
		Log:     cfg.Log.Named("entitle"),
	})
	e.mgr = stream.NewManager(cfg.StreamURL, cfg.Log.Named("stream"))
	return e
}

// Open establishes the push connection with query parameters derived from
// the current identity.
func (e *Engine) Open() error {
	e.mu.Lock()
	id := e.identity
	e.mu.Unlock()

	_, err := e.mgr.Open(e.ctx, e.cfg.StreamPath, stream.OpenOptions{
		Query:     stream.QueryFromIdentity(id),
		OnMessage: e.handleMessage,
		OnError:   e.onStreamError,
	})
	return err
}

// Rebind re-derives the connection for a changed navigation context (login,
// package switch), so the new identity is picked up without an app restart.
// The previous connection is closed as the new one opens.
func (e *Engine) Rebind(id event.Identity) error {
	e.mu.Lock()
	e.identity = id
	e.mu.Unlock()
	return e.Open()
}

func (e *Engine) Authority() *focus.Authority { return e.auth }
func (e *Engine) Arbiter() *arbiter.Arbiter   { return e.arb }
func (e *Engine) Lock() *focus.Lock           { return e.lock }
func (e *Engine) Entitlements() *entitle.Client { return e.ent }

// handleMessage is the per-message pump. Any panic degrades to a no-op for
// that single message.
func (e *Engine) handleMessage(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("stream message handling panicked", zap.Any("panic", r))
		}
	}()

	for _, ev := range normalize.Normalize(raw, time.Now()) {
		switch ev.Kind {
		case event.KindEntitlementUserUpdate:
			e.mu.Lock()
			customer := e.identity.CustomerNo
			e.mu.Unlock()
			if customer == "" && len(ev.Accounts) > 0 {
				customer = ev.Accounts[0]
			}
			go e.ent.RefreshAccount(e.ctx, customer)

		case event.KindEntitlementPackageUpdate:
			go e.ent.RefreshPackages(e.ctx, ev.Packages)

		default:
			e.arb.Inbox() <- arbiter.FromStream{Ev: ev}
		}
	}
}

// onStreamError is observational: transport errors are logged and left to
// the manager's reconnect.
func (e *Engine) onStreamError(err error) {
	e.log.Warn("stream error", zap.Error(err))
}

func (e *Engine) logout() {
	if st := e.cfg.Store; st != nil {
		if err := st.ClearRouteMarkers(); err != nil {
			e.log.Warn("route marker clear failed", zap.Error(err))
		}
		if st.Session != nil {
			_ = st.Session.Remove(store.KeyAuthUser)
		}
	}
	if e.cfg.OnLogout != nil {
		e.cfg.OnLogout()
	}
}

// Close tears the engine down. Safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.mgr.Close()
	select {
	case e.arb.Inbox() <- arbiter.Shutdown{}:
	case <-e.ctx.Done():
	}
	e.cancel()
	if e.cfg.Store != nil {
		err = multierr.Append(err, e.cfg.Store.Close())
	}
	return err
}
