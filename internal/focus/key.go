package focus

// Key is the canonical remote-control key set. Vendor remotes deliver many
// raw codes; everything the engine routes on collapses to these six.
type Key string

const (
	KeyUp     Key = "Up"
	KeyDown   Key = "Down"
	KeyLeft   Key = "Left"
	KeyRight  Key = "Right"
	KeySelect Key = "Select"
	KeyBack   Key = "Back"
)

// Raw key codes seen across platforms. The back button in particular has no
// single code: webOS, Tizen, Android TV and plain keyboards all differ.
var keyCodes = map[int]Key{
	37:    KeyLeft,
	38:    KeyUp,
	39:    KeyRight,
	40:    KeyDown,
	13:    KeySelect,
	8:     KeyBack, // Backspace
	27:    KeyBack, // Escape
	4:     KeyBack, // Android TV
	166:   KeyBack, // BrowserBack
	461:   KeyBack, // webOS
	10009: KeyBack, // Tizen RETURN
}

var keyNames = map[string]Key{
	"ArrowUp":     KeyUp,
	"Up":          KeyUp,
	"ArrowDown":   KeyDown,
	"Down":        KeyDown,
	"ArrowLeft":   KeyLeft,
	"Left":        KeyLeft,
	"ArrowRight":  KeyRight,
	"Right":       KeyRight,
	"Enter":       KeySelect,
	"Select":      KeySelect,
	"OK":          KeySelect,
	"Back":        KeyBack,
	"GoBack":      KeyBack,
	"BrowserBack": KeyBack,
	"XF86Back":    KeyBack,
	"Escape":      KeyBack,
}

// MapKey resolves a raw platform key event to a canonical key. The numeric
// code wins over the name; unmapped keys report false and are ignored.
func MapKey(code int, name string) (Key, bool) {
	if k, ok := keyCodes[code]; ok {
		return k, true
	}
	if k, ok := keyNames[name]; ok {
		return k, true
	}
	return "", false
}
