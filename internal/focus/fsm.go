// Package focus is the cross-component authority for where remote-control
// input goes. The state machine is pure: Apply takes the current state and
// one input and returns effects for the presentation layer to execute after
// layout settles, plus the next state. The Authority wrapper serializes
// Apply calls and publishes owner changes; the Lock cell advertises the
// force-overlay override to every component.
package focus

import "errors"

var ErrInputLocked = errors.New("input locked by force overlay")
var ErrBadDialog = errors.New("dialog needs one or two buttons")
var ErrUnsupportedInput = errors.New("unsupported input")

// Owner enumerates who currently owns directional/back input. Exactly one
// owner at a time; ForceOverlay cannot be pre-empted.
type Owner string

const (
	OwnerContent      Owner = "content"
	OwnerSidebar      Owner = "sidebar"
	OwnerDialog       Owner = "dialog"
	OwnerForceOverlay Owner = "force_overlay"
)

type MenuItem struct {
	ID    string
	Label string
	Route string
}

type DialogSpec struct {
	ID          string
	Buttons     []string // at most two
	Dismissable bool
}

type DialogState struct {
	Spec     DialogSpec
	Focused  int
	ReturnTo Owner
}

type State struct {
	Owner       Owner
	Route       string
	Menu        []MenuItem
	MenuIndex   int
	SidebarOpen bool
	Dialog      *DialogState
	Locked      bool
	resume      Owner // owner to restore when the lock drops
}

func NewState(menu []MenuItem, route string) State {
	return State{Owner: OwnerContent, Route: route, Menu: menu}
}

// Routes whose remembered focus/scroll marker resets on sidebar-driven
// navigation.
var MarkerResetRoutes = map[string]bool{
	"/guide": true,
	"/vod":   true,
}

// Entry and player routes own their content-level back handling; an
// unconsumed Back there opens the sidebar instead of popping history.
var EntryRoutes = map[string]bool{
	"/":       true,
	"/home":   true,
	"/player": true,
}

type InputType string

const (
	InKey         InputType = "Key"
	InOpenDialog  InputType = "OpenDialog"
	InCloseDialog InputType = "CloseDialog"
	InSetLock     InputType = "SetLock"
	InSetRoute    InputType = "SetRoute"
	InSetMenu     InputType = "SetMenu"
)

type Input struct {
	Type InputType
	Key  Key
	// PageConsumed marks a Back already handled by a page-local handler.
	PageConsumed bool
	// HasHistory is supplied by the navigator at key time.
	HasHistory bool
	Dialog     *DialogSpec
	Route      string
	Menu       []MenuItem
	Locked     bool
}

type EffectType string

const (
	EffectExpandSidebar   EffectType = "ExpandSidebar"
	EffectCollapseSidebar EffectType = "CollapseSidebar"
	// EffectFocusRoute asks the presentation layer to resolve the route's
	// first focusable element once layout settles.
	EffectFocusRoute      EffectType = "FocusRoute"
	EffectNavigate        EffectType = "Navigate"
	EffectNavigateBack    EffectType = "NavigateBack"
	EffectNavigateRoot    EffectType = "NavigateRoot"
	EffectOpenExitConfirm EffectType = "OpenExitConfirm"
	EffectDismissDialog   EffectType = "DismissDialog"
	EffectActivateButton  EffectType = "ActivateButton"
)

type Effect struct {
	Type        EffectType
	Route       string
	Button      string
	ResetMarker bool
}

// Apply runs one input through the transition table. While the force lock is
// held, every key is swallowed and focus changes are refused; that is a hard
// override, not a priority hint.
func Apply(s State, in Input) ([]Effect, State, error) {
	switch in.Type {
	case InSetLock:
		return nil, applyLock(s, in.Locked), nil

	case InSetRoute:
		s.Route = in.Route
		return nil, s, nil

	case InSetMenu:
		s.Menu = in.Menu
		if s.MenuIndex >= len(s.Menu) {
			s.MenuIndex = 0
		}
		return nil, s, nil

	case InOpenDialog:
		if s.Locked {
			return nil, s, ErrInputLocked
		}
		if in.Dialog == nil || len(in.Dialog.Buttons) == 0 || len(in.Dialog.Buttons) > 2 {
			return nil, s, ErrBadDialog
		}
		ret := s.Owner
		if s.Owner == OwnerDialog && s.Dialog != nil {
			ret = s.Dialog.ReturnTo
		}
		s.Dialog = &DialogState{Spec: *in.Dialog, ReturnTo: ret}
		s.Owner = OwnerDialog
		return nil, s, nil

	case InCloseDialog:
		if s.Dialog == nil {
			return nil, s, nil
		}
		owner := s.Dialog.ReturnTo
		if owner == "" || owner == OwnerDialog {
			owner = OwnerContent
		}
		s.Dialog = nil
		if s.Locked {
			s.resume = owner
		} else {
			s.Owner = owner
		}
		return nil, s, nil

	case InKey:
		if s.Locked || s.Owner == OwnerForceOverlay {
			return nil, s, nil
		}
		switch s.Owner {
		case OwnerContent:
			return contentKey(s, in)
		case OwnerSidebar:
			return sidebarKey(s, in)
		case OwnerDialog:
			return dialogKey(s, in)
		}
		return nil, s, nil

	default:
		return nil, s, ErrUnsupportedInput
	}
}

func applyLock(s State, locked bool) State {
	if locked == s.Locked {
		return s
	}
	if locked {
		s.resume = s.Owner
		s.Owner = OwnerForceOverlay
		s.Locked = true
		return s
	}
	s.Locked = false
	s.Owner = s.resume
	if s.Owner == "" || s.Owner == OwnerForceOverlay {
		s.Owner = OwnerContent
	}
	s.resume = ""
	return s
}

func contentKey(s State, in Input) ([]Effect, State, error) {
	switch in.Key {
	case KeyLeft:
		return openSidebar(s)
	case KeyBack:
		if in.PageConsumed {
			return nil, s, nil
		}
		if EntryRoutes[s.Route] {
			return openSidebar(s)
		}
		if in.HasHistory {
			return []Effect{{Type: EffectNavigateBack}}, s, nil
		}
		return []Effect{{Type: EffectNavigateRoot}}, s, nil
	default:
		// Up/Down/Right/Select inside content belong to the page.
		return nil, s, nil
	}
}

func openSidebar(s State) ([]Effect, State, error) {
	s.Owner = OwnerSidebar
	s.SidebarOpen = true
	for i, it := range s.Menu {
		if it.Route == s.Route {
			s.MenuIndex = i
			break
		}
	}
	return []Effect{{Type: EffectExpandSidebar}}, s, nil
}

func sidebarKey(s State, in Input) ([]Effect, State, error) {
	n := len(s.Menu)
	switch in.Key {
	case KeyUp:
		if n > 0 {
			s.MenuIndex = (s.MenuIndex - 1 + n) % n
		}
		return nil, s, nil
	case KeyDown:
		if n > 0 {
			s.MenuIndex = (s.MenuIndex + 1) % n
		}
		return nil, s, nil
	case KeyRight:
		return collapseSidebar(s, s.Route, false)
	case KeySelect:
		if n == 0 {
			return collapseSidebar(s, s.Route, false)
		}
		item := s.Menu[s.MenuIndex]
		if item.Route == s.Route {
			return collapseSidebar(s, s.Route, false)
		}
		return collapseSidebar(s, item.Route, true)
	case KeyBack:
		return []Effect{{Type: EffectOpenExitConfirm}}, s, nil
	default:
		return nil, s, nil
	}
}

func collapseSidebar(s State, route string, navigate bool) ([]Effect, State, error) {
	s.Owner = OwnerContent
	s.SidebarOpen = false
	effects := []Effect{{Type: EffectCollapseSidebar}}
	if navigate {
		s.Route = route
		effects = append(effects, Effect{
			Type:        EffectNavigate,
			Route:       route,
			ResetMarker: MarkerResetRoutes[route],
		})
	} else {
		effects = append(effects, Effect{Type: EffectFocusRoute, Route: route})
	}
	return effects, s, nil
}

func dialogKey(s State, in Input) ([]Effect, State, error) {
	d := s.Dialog
	if d == nil {
		return nil, s, nil
	}
	switch in.Key {
	case KeyLeft:
		if d.Focused > 0 {
			dd := *d
			dd.Focused--
			s.Dialog = &dd
		}
		return nil, s, nil
	case KeyRight:
		if d.Focused < len(d.Spec.Buttons)-1 {
			dd := *d
			dd.Focused++
			s.Dialog = &dd
		}
		return nil, s, nil
	case KeyUp, KeyDown:
		return nil, s, nil
	case KeyBack:
		if !d.Spec.Dismissable {
			return nil, s, nil
		}
		owner := d.ReturnTo
		if owner == "" || owner == OwnerDialog {
			owner = OwnerContent
		}
		s.Dialog = nil
		s.Owner = owner
		return []Effect{{Type: EffectDismissDialog}}, s, nil
	case KeySelect:
		return []Effect{{Type: EffectActivateButton, Button: d.Spec.Buttons[d.Focused]}}, s, nil
	default:
		return nil, s, nil
	}
}
