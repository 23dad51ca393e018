package css

import "strings"

// EventState is a bit set of per-element dynamic states (hover, focus, ...)
// supplied by the DOM collaborator.
type EventState uint64

const (
	StateActive EventState = 1 << iota
	StateFocus
	StateHover
	StateFocusVisible
	StateFocusWithin
	StateChecked
	StateEnabled
	StateDisabled
	StateIndeterminate
	StateVisited
	StateUnvisited
	StateRequired
	StateOptional
	StateValid
	StateInvalid
	StateInRange
	StateOutOfRange
	StateReadOnly
	StateReadWrite
	StateDefault
	StatePlaceholderShown
	StateTarget
	StateFullscreen
	StateDefined
	StateLTR
	StateRTL
	StateAutofill
)

// StateNone is the empty state set.
const StateNone EventState = 0

// Has reports whether all bits of other are set.
func (s EventState) Has(other EventState) bool {
	return s&other == other
}

// HasAny reports whether at least one bit of other is set.
func (s EventState) HasAny(other EventState) bool {
	return s&other != 0
}

// IsEmpty reports whether no bit is set.
func (s EventState) IsEmpty() bool {
	return s == 0
}

var stateNames = []struct {
	state EventState
	name  string
}{
	{StateActive, "active"},
	{StateFocus, "focus"},
	{StateHover, "hover"},
	{StateFocusVisible, "focus-visible"},
	{StateFocusWithin, "focus-within"},
	{StateChecked, "checked"},
	{StateEnabled, "enabled"},
	{StateDisabled, "disabled"},
	{StateIndeterminate, "indeterminate"},
	{StateVisited, "visited"},
	{StateUnvisited, "link"},
	{StateRequired, "required"},
	{StateOptional, "optional"},
	{StateValid, "valid"},
	{StateInvalid, "invalid"},
	{StateInRange, "in-range"},
	{StateOutOfRange, "out-of-range"},
	{StateReadOnly, "read-only"},
	{StateReadWrite, "read-write"},
	{StateDefault, "default"},
	{StatePlaceholderShown, "placeholder-shown"},
	{StateTarget, "target"},
	{StateFullscreen, "fullscreen"},
	{StateDefined, "defined"},
	{StateLTR, "ltr"},
	{StateRTL, "rtl"},
	{StateAutofill, "autofill"},
}

func (s EventState) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for _, sn := range stateNames {
		if s.HasAny(sn.state) {
			parts = append(parts, sn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseEventState converts a "|" or "," separated list of state names
// (pseudo-class spelling without the colon) into a state set.
func ParseEventState(text string) (EventState, bool) {
	var result EventState
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(part)), ":")
		found := false
		for _, sn := range stateNames {
			if sn.name == part {
				result |= sn.state
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return result, true
}

// DocumentState is a bit set of document-wide states.
type DocumentState uint32

const (
	DocumentStateRTLLocale DocumentState = 1 << iota
	DocumentStateWindowInactive
)

// HasAny reports whether at least one bit of other is set.
func (s DocumentState) HasAny(other DocumentState) bool {
	return s&other != 0
}
