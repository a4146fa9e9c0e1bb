// Package activity decides which raw input events count as editing activity.
package activity

import "fmt"

// Kind is the category of a raw input event.
type Kind string

// Event kinds.
const (
	KindKeyUp            Kind = "keyup"
	KindMouseDown        Kind = "mousedown"
	KindActiveLeafChange Kind = "active-leaf-change"
	KindDocumentModified Kind = "document-modified"
)

// ParseKind validates a kind received from a client.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindKeyUp, KindMouseDown, KindActiveLeafChange, KindDocumentModified:
		return k, nil
	}
	return "", fmt.Errorf("activity: unknown event kind %q", s)
}

// Event is a raw input event.
type Event struct {
	Kind Kind   `json:"type"`
	Key  string `json:"key,omitempty"`
	Ctrl bool   `json:"ctrl,omitempty"`
	Path string `json:"path,omitempty"`
	// Focused is the focus state the client reports for the view at Path.
	// Nil leaves the workspace's current focus unchanged.
	Focused *bool `json:"focused,omitempty"`
}

// View is the editing context at the time of the event.
type View struct {
	// Exists is true when an editable view is active.
	Exists bool
	// Focused is true when that view has input focus.
	Focused bool
}

// Decision is the outcome of filtering one event.
type Decision int

const (
	// Drop discards the event.
	Drop Decision = iota
	// Partial refreshes the typing indicator and session timers without
	// scheduling a header write.
	Partial
	// Full is editing activity that schedules a header write.
	Full
)

func (d Decision) String() string {
	switch d {
	case Partial:
		return "partial"
	case Full:
		return "full"
	}
	return "drop"
}

var ignoredKeys = map[string]struct{}{
	"ArrowDown":  {},
	"ArrowUp":    {},
	"ArrowLeft":  {},
	"ArrowRight": {},
	"Tab":        {},
	"CapsLock":   {},
	"Alt":        {},
	"PageUp":     {},
	"PageDown":   {},
	"Home":       {},
	"End":        {},
	"Meta":       {},
	"Escape":     {},
}

// Classify filters ev against the current view. fast selects the direct line
// editor backend: key presses drive header writes there, while the
// structured backend is driven by document-modified notifications instead.
func Classify(ev Event, view View, fast bool) Decision {
	focused := view.Exists && view.Focused

	switch ev.Kind {
	case KindKeyUp:
		if ev.Ctrl {
			return Drop
		}
		if _, ignored := ignoredKeys[ev.Key]; ignored {
			return Drop
		}
		if !focused {
			return Drop
		}
		if fast {
			return Full
		}
		return Partial

	case KindMouseDown, KindActiveLeafChange:
		if !focused {
			return Drop
		}
		return Partial

	case KindDocumentModified:
		if fast {
			return Drop
		}
		return Full
	}
	return Drop
}
