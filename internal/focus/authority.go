package focus

import (
	"sync"

	"go.uber.org/zap"
)

// Navigator is the routing collaborator consulted for back navigation. The
// presentation layer owns the real history stack.
type Navigator interface {
	CanGoBack() bool
}

// Authority owns the live focus state, serializes transitions and publishes
// owner changes. It deliberately emits effects synchronously and leaves the
// exact apply-after-layout timing to the presentation layer.
type Authority struct {
	log *zap.Logger
	nav Navigator

	mu        sync.Mutex
	state     State
	listeners []func(Owner)
}

func NewAuthority(log *zap.Logger, lock *Lock, nav Navigator, menu []MenuItem, route string) *Authority {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Authority{
		log:   log,
		nav:   nav,
		state: NewState(menu, route),
	}
	if lock != nil {
		a.state = applyLock(a.state, lock.Active())
		lock.Watch(func(active bool) {
			a.apply(Input{Type: InSetLock, Locked: active})
		})
	}
	return a
}

// HandleRawKey maps a vendor key event and routes it. Unmapped keys are
// dropped.
func (a *Authority) HandleRawKey(code int, name string, pageConsumed bool) []Effect {
	k, ok := MapKey(code, name)
	if !ok {
		return nil
	}
	return a.HandleKey(k, pageConsumed)
}

func (a *Authority) HandleKey(k Key, pageConsumed bool) []Effect {
	in := Input{Type: InKey, Key: k, PageConsumed: pageConsumed}
	if a.nav != nil {
		in.HasHistory = a.nav.CanGoBack()
	}
	return a.apply(in)
}

func (a *Authority) OpenDialog(d DialogSpec) error {
	return a.applyErr(Input{Type: InOpenDialog, Dialog: &d})
}

func (a *Authority) CloseDialog() {
	a.apply(Input{Type: InCloseDialog})
}

func (a *Authority) SetRoute(route string) {
	a.apply(Input{Type: InSetRoute, Route: route})
}

func (a *Authority) SetMenu(menu []MenuItem) {
	a.apply(Input{Type: InSetMenu, Menu: menu})
}

func (a *Authority) Owner() Owner {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Owner
}

// Snapshot returns a copy of the current state for diagnostics.
func (a *Authority) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnOwnerChanged registers a listener fired after every owner transition.
func (a *Authority) OnOwnerChanged(fn func(Owner)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// RegisterHardwareBack runs a vendor back-key registration hook. Failure is
// logged and swallowed: the key may still surface as a normal key event.
func (a *Authority) RegisterHardwareBack(register func() error) {
	if register == nil {
		return
	}
	if err := register(); err != nil {
		a.log.Warn("hardware back key registration failed", zap.Error(err))
	}
}

func (a *Authority) apply(in Input) []Effect {
	effects, _ := a.applyInput(in)
	return effects
}

func (a *Authority) applyErr(in Input) error {
	_, err := a.applyInput(in)
	return err
}

func (a *Authority) applyInput(in Input) ([]Effect, error) {
	a.mu.Lock()
	before := a.state.Owner
	effects, next, err := Apply(a.state, in)
	if err != nil {
		a.mu.Unlock()
		a.log.Debug("focus input rejected", zap.String("type", string(in.Type)), zap.Error(err))
		return nil, err
	}
	a.state = next
	changed := next.Owner != before
	var listeners []func(Owner)
	if changed {
		listeners = make([]func(Owner), len(a.listeners))
		copy(listeners, a.listeners)
	}
	a.mu.Unlock()

	if changed {
		a.log.Debug("focus owner changed",
			zap.String("from", string(before)),
			zap.String("to", string(next.Owner)))
		for _, fn := range listeners {
			fn(next.Owner)
		}
	}
	return effects, nil
}
