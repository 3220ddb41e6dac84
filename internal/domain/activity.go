package domain

import "time"

// ActivityKind is the type of a qualifying interaction event.
type ActivityKind string

const (
	ActivityPointerDown ActivityKind = "pointerdown"
	ActivityPointerMove ActivityKind = "pointermove"
	ActivityKeyDown     ActivityKind = "keydown"
	ActivityScroll      ActivityKind = "scroll"
	ActivityTouchStart  ActivityKind = "touchstart"
	ActivityClick       ActivityKind = "click"
	ActivityFocus       ActivityKind = "focus"
	ActivityBlur        ActivityKind = "blur"
)

// QualifyingActivityKinds is the full set of interaction signals the
// activity detector subscribes to.
var QualifyingActivityKinds = []ActivityKind{
	ActivityPointerDown,
	ActivityPointerMove,
	ActivityKeyDown,
	ActivityScroll,
	ActivityTouchStart,
	ActivityClick,
	ActivityFocus,
	ActivityBlur,
}

// ActivityEvent is a single user interaction observed by the UI.
type ActivityEvent struct {
	Kind ActivityKind `json:"kind"`
	At   time.Time    `json:"at"`
}

// Qualifies reports whether the event kind counts as user activity.
func (e ActivityEvent) Qualifies() bool {
	for _, k := range QualifyingActivityKinds {
		if e.Kind == k {
			return true
		}
	}
	return false
}
