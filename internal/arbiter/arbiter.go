// Package arbiter owns the visible-overlay state: marquee scroll rules,
// force modals, fingerprint badges, the one-at-a-time toast queue and the
// user-block directive. It is a single goroutine consuming a typed inbox, so
// events apply strictly in arrival order; subscribers receive a View on
// every visible change.
package arbiter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nimbletv/pulse/internal/event"
	"github.com/nimbletv/pulse/internal/focus"
	"github.com/nimbletv/pulse/internal/suppress"
)

const DefaultToastDwell = 8 * time.Second
const DefaultBlockCountdown = 5 * time.Second

type Msg interface{ isMsg() }

type FromStream struct{ Ev event.StreamEvent }

func (FromStream) isMsg() {}

type Subscribe struct {
	ID     string
	Outbox chan View // where this subscriber wants to receive views
}

func (Subscribe) isMsg() {}

type Unsubscribe struct{ ID string }

func (Unsubscribe) isMsg() {}

type GetView struct{ Reply chan View }

func (GetView) isMsg() {}

type Shutdown struct{}

func (Shutdown) isMsg() {}

type toastFired struct{ gen int }

func (toastFired) isMsg() {}

type blockFired struct{}

func (blockFired) isMsg() {}

// View is the overlay set a renderer draws from. Slices are copies; the
// arbiter never shares its internal state.
type View struct {
	Version      int
	Scrolls      []event.ScrollRule
	Forces       []event.ForceRule
	Fingerprints []event.FingerprintRule
	Toast        *event.ToastItem
	Blocked      bool
	Subscribers  int
}

type Config struct {
	Identity       event.Identity
	ToastDwell     time.Duration
	SuppressWindow time.Duration
	BlockCountdown time.Duration
	// OnLogout fires once the block countdown elapses.
	OnLogout func()
	Lock     *focus.Lock
	Log      *zap.Logger
	Now      func() time.Time
}

type Arbiter struct {
	inbox  chan Msg
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	scrolls      []event.ScrollRule
	forces       []event.ForceRule
	fingerprints []event.FingerprintRule
	toasts       []event.ToastItem
	toastGen     int
	blocked      bool
	blockShown   bool
	window       *suppress.TextWindow
	subs         map[string]chan View
	version      int
}

func New(parent context.Context, cfg Config) *Arbiter {
	if cfg.ToastDwell <= 0 {
		cfg.ToastDwell = DefaultToastDwell
	}
	if cfg.BlockCountdown <= 0 {
		cfg.BlockCountdown = DefaultBlockCountdown
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Lock == nil {
		cfg.Lock = focus.NewLock()
	}

	ctx, cancel := context.WithCancel(parent)
	a := &Arbiter{
		inbox:  make(chan Msg, 64),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		window: suppress.NewTextWindow(cfg.SuppressWindow),
		subs:   make(map[string]chan View),
	}
	go a.loop()
	return a
}

// Inbox exposes the message channel for the stream pump and tests.
func (a *Arbiter) Inbox() chan<- Msg { return a.inbox }

func (a *Arbiter) loop() {
	for {
		select {
		case <-a.ctx.Done():
			a.shutdown()
			return

		case m := <-a.inbox:
			switch msg := m.(type) {
			case FromStream:
				a.handleEvent(msg.Ev)

			case Subscribe:
				a.subs[msg.ID] = msg.Outbox
				msg.Outbox <- a.view()

			case Unsubscribe:
				delete(a.subs, msg.ID)

			case GetView:
				msg.Reply <- a.view()

			case toastFired:
				if msg.gen != a.toastGen {
					break // stale timer
				}
				a.advanceToast()
				a.broadcast()

			case blockFired:
				if a.cfg.OnLogout != nil {
					go a.cfg.OnLogout()
				}

			case Shutdown:
				a.shutdown()
				return
			}
		}
	}
}

func (a *Arbiter) handleEvent(ev event.StreamEvent) {
	switch ev.Kind {
	case event.KindCombinedSnapshot:
		if ev.Snapshot == nil {
			return
		}
		if a.applySnapshot(ev.Snapshot) {
			a.broadcast()
		}

	case event.KindUserBlock:
		if a.raiseBlock(ev.Blocks) {
			a.broadcast()
		}

	case event.KindScrollMessage, event.KindFingerprint:
		if ev.Notice == nil {
			return
		}
		if a.enqueueToast(ev.Notice) {
			a.broadcast()
		}

	case event.KindDelete:
		a.reset()
		a.broadcast()

	default:
		// Unknown kinds never reach here; entitlement events are routed to
		// the refresh trigger upstream.
		a.cfg.Log.Debug("arbiter ignoring event", zap.String("kind", string(ev.Kind)))
	}
}

// applySnapshot replaces each rule set whose array key was present on the
// wire. A nil slice means the key was omitted and the set is untouched.
func (a *Arbiter) applySnapshot(snap *event.Snapshot) bool {
	changed := false

	if snap.Fingerprints != nil {
		enabled := snap.Settings == nil || snap.Settings.GlobalFingerprintEnabled
		next := []event.FingerprintRule{}
		if enabled {
			for _, fp := range snap.Fingerprints {
				if fp.Enabled {
					next = append(next, fp)
				}
			}
		}
		a.fingerprints = next
		changed = true
	}

	if snap.ScrollMessages != nil {
		next := []event.ScrollRule{}
		for _, sr := range snap.ScrollMessages {
			if sr.Enabled && sr.Message != "" && !sr.PlayerScoped() {
				next = append(next, sr)
			}
		}
		a.scrolls = next
		changed = true
	}

	if snap.ForceMessages != nil {
		next := []event.ForceRule{}
		for _, fr := range snap.ForceMessages {
			if fr.Enabled && (fr.Title != "" || fr.Message != "") && fr.Scope == event.ScopeGlobal {
				next = append(next, fr)
			}
		}
		a.forces = next
		a.cfg.Lock.Set(len(a.forces) > 0)
		changed = true
	}

	return changed
}

// raiseBlock checks membership of the current identity among blocked
// entries. The directive is idempotent against repeats already shown.
func (a *Arbiter) raiseBlock(blocks []event.UserBlock) bool {
	for _, b := range blocks {
		if !b.Blocked || !a.cfg.Identity.Matches(b) {
			continue
		}
		if a.blockShown {
			return false
		}
		a.blocked = true
		a.blockShown = true
		a.cfg.Log.Warn("user block directive received, logout scheduled",
			zap.Duration("countdown", a.cfg.BlockCountdown))
		a.post(a.cfg.BlockCountdown, blockFired{})
		return true
	}
	return false
}

func (a *Arbiter) enqueueToast(n *event.Notice) bool {
	if n.Text == "" {
		return false
	}
	now := a.cfg.Now()
	if len(a.toasts) > 0 && a.toasts[0].Text == n.Text {
		return false // identical text currently displayed
	}
	if !a.window.Allow(n.Text, now) {
		return false
	}
	a.toasts = append(a.toasts, event.ToastItem{ID: n.ID, Text: n.Text, EnqueuedAt: now})
	if len(a.toasts) == 1 {
		a.armToastTimer()
	}
	return true
}

func (a *Arbiter) advanceToast() {
	if len(a.toasts) == 0 {
		return
	}
	a.toasts = a.toasts[1:]
	if len(a.toasts) > 0 {
		a.armToastTimer()
	}
}

func (a *Arbiter) armToastTimer() {
	a.toastGen++
	a.post(a.cfg.ToastDwell, toastFired{gen: a.toastGen})
}

// post delivers a message to the inbox after d, dropping it when the arbiter
// shut down first.
func (a *Arbiter) post(d time.Duration, m Msg) {
	time.AfterFunc(d, func() {
		select {
		case a.inbox <- m:
		case <-a.ctx.Done():
		}
	})
}

// reset is the hard delete signal: every rule set and the toast queue go,
// and the suppression window starts over. The block directive, once raised,
// stays raised.
func (a *Arbiter) reset() {
	a.scrolls = nil
	a.forces = nil
	a.fingerprints = nil
	a.toasts = nil
	a.toastGen++ // invalidate pending dwell timers
	a.window.Reset()
	a.cfg.Lock.Set(false)
}

func (a *Arbiter) view() View {
	v := View{
		Version:      a.version,
		Scrolls:      append([]event.ScrollRule(nil), a.scrolls...),
		Forces:       append([]event.ForceRule(nil), a.forces...),
		Fingerprints: append([]event.FingerprintRule(nil), a.fingerprints...),
		Blocked:      a.blocked,
		Subscribers:  len(a.subs),
	}
	if len(a.toasts) > 0 {
		t := a.toasts[0]
		v.Toast = &t
	}
	return v
}

func (a *Arbiter) broadcast() {
	a.version++
	v := a.view()
	for id, ch := range a.subs {
		select {
		case ch <- v:
			// ok
		default:
			// Subscriber is slow/full - drop them.
			close(ch)
			delete(a.subs, id)
		}
	}
}

func (a *Arbiter) shutdown() {
	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
	a.cfg.Lock.Set(false)
	a.cancel()
}
