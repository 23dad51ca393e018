// Package ruledata holds the matching data of one cascade layer: its rule
// index, the per pseudo-element indexes, the selector dependency tables used
// to classify restyles, and the named at-rules collected for the layer.
package ruledata

import (
	"slices"
	"strings"

	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/match"
	"stylematch/internal/restyle"
	"stylematch/internal/rulehash"
)

// SelectorPair names the top-level compound Selector.Compounds[Index] that a
// dependency was found in. TopLevel is false for entries of the possibly
// negated lists, whose descendants cannot be narrowed by the subject.
type SelectorPair struct {
	Selector *css.Selector
	Index    int
	TopLevel bool
}

// StateSelector is a top-level compound whose own pseudo-classes or
// negations depend on States.
type StateSelector struct {
	States css.EventState
	SelectorPair
}

// scopedState is a state dependency whose affected elements cannot be
// found from the changed one.
type scopedState struct {
	States css.EventState
	Hint   restyle.Hint
}

// CascadeData is built once per layer by AddRule calls in cascade order and
// is read-only afterwards.
type CascadeData struct {
	quirks bool

	rules  *rulehash.RuleHash
	pseudo map[string]*rulehash.RuleHash

	stateSelectors []StateSelector
	ids            map[string][]SelectorPair
	classes        map[string][]SelectorPair
	attributes     map[string][]SelectorPair
	negatedIDs     []SelectorPair
	negatedClasses []SelectorPair
	documentStates css.DocumentState

	// dependencies of the non-subject compounds of complex selector-list
	// arguments, e.g. .x in :is(.x span), with the scope a change needs
	scopedStates     []scopedState
	scopedIDs        map[string]restyle.Hint
	scopedClasses    map[string]restyle.Hint
	scopedAttributes map[string]restyle.Hint

	keyframes     map[string]*css.NamedRule
	counterStyles map[string]*css.NamedRule
	fontFaces     []*css.NamedRule
	pages         []*css.NamedRule
	featureValues []*css.NamedRule
}

// New creates empty layer data. quirks makes id and class keys
// case-insensitive.
func New(quirks bool) *CascadeData {
	return &CascadeData{
		quirks:     quirks,
		rules:      rulehash.New(quirks),
		pseudo:     make(map[string]*rulehash.RuleHash),
		ids:        make(map[string][]SelectorPair),
		classes:    make(map[string][]SelectorPair),
		attributes: make(map[string][]SelectorPair),

		scopedIDs:        make(map[string]restyle.Hint),
		scopedClasses:    make(map[string]restyle.Hint),
		scopedAttributes: make(map[string]restyle.Hint),

		keyframes:     make(map[string]*css.NamedRule),
		counterStyles: make(map[string]*css.NamedRule),
	}
}

func (d *CascadeData) atomKey(atom string) string {
	if d.quirks {
		return css.FoldCase(atom)
	}
	return atom
}

// AddRule indexes one rule selector and records its dependencies. Rules
// targeting a pseudo-element go to the index of that pseudo-element.
func (d *CascadeData) AddRule(rs css.RuleSelector) {
	sel := rs.Selector
	if name := sel.PseudoElement(); name != "" {
		h, ok := d.pseudo[name]
		if !ok {
			h = rulehash.New(d.quirks)
			d.pseudo[name] = h
		}
		h.AppendRule(rs)
	} else {
		d.rules.AppendRule(rs)
	}

	for i := sel.SubjectIndex(); i < len(sel.Compounds); i++ {
		top := SelectorPair{Selector: sel, Index: i, TopLevel: true}
		d.addSelector(top, sel.Compounds[i])
	}
}

// addSelector records the dependencies of part, which is the top-level
// compound itself or a compound nested inside it through :not() or a
// selector-list pseudo-class. Every dependency is keyed to the top-level
// compound.
func (d *CascadeData) addSelector(top SelectorPair, part *css.Compound) {
	topLevel := top.Selector.Compounds[top.Index]
	parts := append([]*css.Compound{part}, part.Negations...)
	for _, c := range parts {
		for _, p := range c.Pseudos {
			if cp, ok := p.(*css.CustomPseudo); ok {
				d.documentStates |= cp.DocumentStates()
			}
		}

		if states := c.StateDependence(); states != css.StateNone {
			d.stateSelectors = append(d.stateSelectors, StateSelector{States: states, SelectorPair: top})
		}

		if c == topLevel {
			for _, id := range c.IDs {
				key := d.atomKey(id)
				d.ids[key] = append(d.ids[key], top)
			}
			for _, class := range c.Classes {
				key := d.atomKey(class)
				d.classes[key] = append(d.classes[key], top)
			}
		} else {
			negated := SelectorPair{Selector: top.Selector, Index: top.Index}
			if len(c.IDs) > 0 {
				d.negatedIDs = append(d.negatedIDs, negated)
			}
			if len(c.Classes) > 0 {
				d.negatedClasses = append(d.negatedClasses, negated)
			}
		}

		for _, a := range c.Attrs {
			d.attributes[a.Name] = append(d.attributes[a.Name], top)
			if a.LowerName != a.Name {
				d.attributes[a.LowerName] = append(d.attributes[a.LowerName], top)
			}
		}

		for _, p := range c.Pseudos {
			lp, ok := p.(*css.SelectorListPseudo)
			if !ok {
				continue
			}
			for _, nested := range lp.List {
				d.addSelector(top, nested.Compounds[0])
				scope := complexScope(nested)
				for _, inner := range nested.Compounds[1:] {
					d.addScoped(inner, scope)
				}
			}
		}
	}
}

// complexScope is the restyle a change on a non-subject compound of sel
// needs. The subject may be any descendant of the changed element, or a
// later sibling's subtree when sel uses a sibling combinator.
func complexScope(sel *css.Selector) restyle.Hint {
	scope := restyle.Subtree
	for _, c := range sel.Compounds[1:] {
		if c.Combinator.IsSibling() {
			scope |= restyle.LaterSiblings
		}
	}
	return scope
}

// addScoped records every dependency of c, including those of its
// negations and nested lists, under scope.
func (d *CascadeData) addScoped(c *css.Compound, scope restyle.Hint) {
	for _, part := range append([]*css.Compound{c}, c.Negations...) {
		if states := part.StateDependence(); states != css.StateNone {
			d.scopedStates = append(d.scopedStates, scopedState{States: states, Hint: scope})
		}
		for _, id := range part.IDs {
			d.scopedIDs[d.atomKey(id)] |= scope
		}
		for _, class := range part.Classes {
			d.scopedClasses[d.atomKey(class)] |= scope
		}
		for _, a := range part.Attrs {
			d.scopedAttributes[a.Name] |= scope
			d.scopedAttributes[a.LowerName] |= scope
		}
		for _, p := range part.Pseudos {
			switch v := p.(type) {
			case *css.CustomPseudo:
				d.documentStates |= v.DocumentStates()
			case *css.SelectorListPseudo:
				for _, nested := range v.List {
					inner := scope | complexScope(nested)
					for _, nc := range nested.Compounds {
						d.addScoped(nc, inner)
					}
				}
			}
		}
	}
}

// AddAtRule collects a named at-rule. For keyframes and counter styles a
// later rule with the same name replaces the earlier one.
func (d *CascadeData) AddAtRule(r *css.NamedRule) {
	switch r.Kind {
	case css.AtKeyframes:
		d.keyframes[r.Name] = r
	case css.AtCounterStyle:
		d.counterStyles[r.Name] = r
	case css.AtFontFace:
		d.fontFaces = append(d.fontFaces, r)
	case css.AtPage:
		d.pages = append(d.pages, r)
	case css.AtFontFeatureValues:
		d.featureValues = append(d.featureValues, r)
	}
}

// Len returns the number of indexed rule selectors, pseudo-element rules
// included.
func (d *CascadeData) Len() int {
	n := d.rules.Len()
	for _, h := range d.pseudo {
		n += h.Len()
	}
	return n
}

// RuleHash returns the index of rules that apply to elements.
func (d *CascadeData) RuleHash() *rulehash.RuleHash {
	return d.rules
}

// PseudoElements returns the names of pseudo-elements with rules, sorted.
func (d *CascadeData) PseudoElements() []string {
	names := make([]string, 0, len(d.pseudo))
	for name := range d.pseudo {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RulesMatching calls fn, in cascade order, for every rule matching el.
func (d *CascadeData) RulesMatching(el html.Element, tree *match.TreeMatchContext, fn func(*rulehash.RuleValue)) {
	d.rules.EnumerateAllRules(el, tree, nodeContext(el, tree), fn)
}

// RulesMatchingPseudo calls fn, in cascade order, for every rule creating
// the pseudo-element name on el.
func (d *CascadeData) RulesMatchingPseudo(el html.Element, name string, tree *match.TreeMatchContext, fn func(*rulehash.RuleValue)) {
	if h, ok := d.pseudo[name]; ok {
		h.EnumerateAllRules(el, tree, nodeContext(el, tree), fn)
	}
}

func nodeContext(el html.Element, tree *match.TreeMatchContext) match.NodeMatchContext {
	return match.NodeMatchContext{IsFeatureless: tree.ScopeHost != nil && el == tree.ScopeHost}
}

// matchesFrom tests whether the top-level compound of p matches el and the
// rest of its selector matches el's ancestors and siblings.
func matchesFrom(el html.Element, p SelectorPair, node match.NodeMatchContext, tree *match.TreeMatchContext) bool {
	sel := p.Selector
	if !match.SelectorMatches(el, sel.Compounds[p.Index], node, tree, match.FlagUnknown) {
		return false
	}
	return p.Index+1 >= len(sel.Compounds) || match.SelectorMatchesTree(el, sel, p.Index+1, tree)
}

// HasStateDependentStyle adds to hint the scope that may restyle when any
// state in mask changes on el, and returns the result.
func (d *CascadeData) HasStateDependentStyle(el html.Element, mask css.EventState, tree *match.TreeMatchContext, hint restyle.Hint) restyle.Hint {
	for _, s := range d.scopedStates {
		if s.States.HasAny(mask) {
			hint |= s.Hint
		}
	}
	node := match.NodeMatchContext{StateMask: mask}
	for _, s := range d.stateSelectors {
		possible := restyle.ForCombinator(s.Selector.Compounds[s.Index].Combinator)
		if possible&^hint == 0 || !s.States.HasAny(mask) {
			continue
		}
		if matchesFrom(el, s.SelectorPair, node, tree) {
			hint |= possible
		}
	}
	return hint
}

// AttributeChange describes an attribute of an element that changed. The
// element passed along carries one side of the change and Other is the
// value on the other side.
type AttributeChange struct {
	Namespace    int
	Name         string
	Other        string
	OtherPresent bool
}

// HasAttributeDependentStyle adds to res the restyle needed because el,
// as passed, may match selectors that depend on the changed attribute.
// Callers test both the old and the new state of the element.
func (d *CascadeData) HasAttributeDependentStyle(el html.Element, change AttributeChange, tree *match.TreeMatchContext, res *restyle.Result) {
	enumerate := func(pairs []SelectorPair) {
		for _, p := range pairs {
			d.attributeEnum(el, p, tree, res)
		}
	}

	if change.Name == "id" {
		if id := el.ID(); id != "" {
			enumerate(d.ids[d.atomKey(id)])
			res.Hint |= d.scopedIDs[d.atomKey(id)]
		}
		enumerate(d.negatedIDs)
	}

	if change.Name == "class" && change.Namespace == css.NamespaceNone {
		var other []string
		if change.OtherPresent {
			other = strings.Fields(change.Other)
		}
		for _, class := range el.Classes() {
			if !slices.Contains(other, class) {
				enumerate(d.classes[d.atomKey(class)])
				res.Hint |= d.scopedClasses[d.atomKey(class)]
			}
		}
		enumerate(d.negatedClasses)
	}

	enumerate(d.attributes[change.Name])
	res.Hint |= d.scopedAttributes[change.Name]
}

func (d *CascadeData) attributeEnum(el html.Element, p SelectorPair, tree *match.TreeMatchContext, res *restyle.Result) {
	possible := restyle.ForAttributeChange(res.Hint, p.Selector, p.Index, p.TopLevel)
	// SomeDescendants may still contribute selectors
	if possible&(^res.Hint|restyle.SomeDescendants) == 0 {
		return
	}
	if !matchesFrom(el, p, match.NodeMatchContext{}, tree) {
		return
	}
	res.Hint |= possible
	if possible&restyle.SomeDescendants != 0 {
		res.Data.Add(p.Selector)
	}
}

// SelectorDocumentStates returns the document states the layer's
// selectors depend on.
func (d *CascadeData) SelectorDocumentStates() css.DocumentState {
	return d.documentStates
}

// StateSelectors returns the recorded state dependencies.
func (d *CascadeData) StateSelectors() []StateSelector {
	return d.stateSelectors
}

// KeyframesRuleForName returns the @keyframes rule of that name.
func (d *CascadeData) KeyframesRuleForName(name string) (*css.NamedRule, bool) {
	r, ok := d.keyframes[name]
	return r, ok
}

// CounterStyleRuleForName returns the @counter-style rule of that name.
func (d *CascadeData) CounterStyleRuleForName(name string) (*css.NamedRule, bool) {
	r, ok := d.counterStyles[name]
	return r, ok
}

// FontFaceRules returns the @font-face rules in source order.
func (d *CascadeData) FontFaceRules() []*css.NamedRule { return d.fontFaces }

// PageRules returns the @page rules in source order.
func (d *CascadeData) PageRules() []*css.NamedRule { return d.pages }

// FontFeatureValuesRules returns the @font-feature-values rules in source
// order.
func (d *CascadeData) FontFeatureValuesRules() []*css.NamedRule { return d.featureValues }
