// Package restyle describes which part of the tree has to be re-matched
// after a change.
package restyle

import (
	"strings"

	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/match"
)

// Hint is a set of restyle scopes. The zero value means nothing needs to be
// re-matched.
type Hint uint8

const (
	// Self re-matches the changed element.
	Self Hint = 1 << iota
	// Subtree re-matches the element and all its descendants.
	Subtree
	// LaterSiblings re-matches the following siblings and their subtrees.
	LaterSiblings
	// SomeDescendants re-matches descendants that may match one of
	// Data.SelectorsForDescendants.
	SomeDescendants
)

// None is the empty hint.
const None Hint = 0

// Has reports whether all bits of other are set.
func (h Hint) Has(other Hint) bool {
	return h&other == other
}

func (h Hint) String() string {
	if h == None {
		return "none"
	}
	var parts []string
	for _, b := range []struct {
		bit  Hint
		name string
	}{
		{Self, "self"},
		{Subtree, "subtree"},
		{LaterSiblings, "later-siblings"},
		{SomeDescendants, "some-descendants"},
	} {
		if h&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	return strings.Join(parts, "|")
}

// ForCombinator returns the scope affected when a compound joined to its
// right by c starts or stops matching.
func ForCombinator(c css.Combinator) Hint {
	switch {
	case c.IsSibling():
		return LaterSiblings
	case c != css.CombinatorNone:
		return Subtree
	}
	return Self
}

// ForAttributeChange is like ForCombinator for the compound at index idx of
// sel, but narrows ancestor combinators to SomeDescendants when the
// descendants can be found by their rightmost compound. topLevel is false
// for selectors found through a negation or a nested selector list.
func ForAttributeChange(current Hint, sel *css.Selector, idx int, topLevel bool) Hint {
	switch c := sel.Compounds[idx].Combinator; {
	case c.IsSibling():
		return LaterSiblings
	case c == css.CombinatorPseudoElement:
		return Subtree
	case c != css.CombinatorNone:
		if current&Subtree != 0 || !topLevel || sel.PseudoElement() != "" {
			return Subtree
		}
		return SomeDescendants
	}
	return Self
}

// Data accompanies a hint containing SomeDescendants.
type Data struct {
	SelectorsForDescendants []*css.Selector
}

// Add records a selector whose rightmost compound identifies affected
// descendants.
func (d *Data) Add(sel *css.Selector) {
	for _, s := range d.SelectorsForDescendants {
		if s == sel {
			return
		}
	}
	d.SelectorsForDescendants = append(d.SelectorsForDescendants, sel)
}

// MightMatchDescendant reports whether el has to be restyled for a
// SomeDescendants hint. Only the rightmost compound of each recorded
// selector is tested, so the answer may be a false positive.
func (d *Data) MightMatchDescendant(el html.Element, tree *match.TreeMatchContext) bool {
	for _, sel := range d.SelectorsForDescendants {
		if match.SelectorMatches(el, sel.Compounds[0], match.NodeMatchContext{}, tree, match.FlagNone) {
			return true
		}
	}
	return false
}

// Affected returns the elements a hint computed for el covers, in document
// order. Shadow trees are not entered.
func Affected(el html.Element, hint Hint, data *Data, tree *match.TreeMatchContext) []html.Element {
	var out []html.Element
	if hint == None {
		return out
	}
	if hint&(Self|Subtree|SomeDescendants) != 0 {
		out = append(out, el)
	}
	collectDescendants := func(root html.Element, all bool) {
		for child := root.FirstChildElement(); child != nil; child = child.NextSiblingElement() {
			html.Walk(child, func(d html.Element) bool {
				if all || data != nil && data.MightMatchDescendant(d, tree) {
					out = append(out, d)
				}
				return true
			}, nil)
		}
	}
	switch {
	case hint&Subtree != 0:
		collectDescendants(el, true)
	case hint&SomeDescendants != 0:
		collectDescendants(el, false)
	}
	if hint&LaterSiblings != 0 {
		for sib := el.NextSiblingElement(); sib != nil; sib = sib.NextSiblingElement() {
			html.Walk(sib, func(d html.Element) bool {
				out = append(out, d)
				return true
			}, nil)
		}
	}
	return out
}

// Result accumulates the hint and hint data of one change across layers.
type Result struct {
	Hint Hint
	Data Data
}

// Merge adds other into r.
func (r *Result) Merge(other Result) {
	r.Hint |= other.Hint
	for _, sel := range other.Data.SelectorsForDescendants {
		r.Data.Add(sel)
	}
}
