package match

import (
	"fmt"
	"strings"

	"stylematch/internal/css"
	"stylematch/internal/html"
)

// Matches reports whether sel matches el. For a selector ending in a
// pseudo-element the originating element is tested.
func Matches(el html.Element, sel *css.Selector, tree *TreeMatchContext) bool {
	return MatchesWithState(el, sel, tree, NodeMatchContext{IsFeatureless: tree.isFeatureless(el)}, FlagNone)
}

// MatchesWithState matches the full chain of sel with a caller supplied node
// context for the subject, e.g. a state mask while classifying restyles.
func MatchesWithState(el html.Element, sel *css.Selector, tree *TreeMatchContext, node NodeMatchContext, flags Flags) bool {
	i := sel.SubjectIndex()
	if i > 0 {
		flags |= FlagHasPseudoElement
	}
	if !SelectorMatches(el, sel.Compounds[i], node, tree, flags) {
		return false
	}
	return i+1 >= len(sel.Compounds) || SelectorMatchesTree(el, sel, i+1, tree)
}

func (t *TreeMatchContext) isFeatureless(el html.Element) bool {
	return t.ScopeHost != nil && el == t.ScopeHost
}

// SelectorMatches tests a single compound against el. Combinators are not
// followed.
func SelectorMatches(el html.Element, c *css.Compound, node NodeMatchContext, tree *TreeMatchContext, flags Flags) bool {
	return selectorMatches(el, c, node, tree, flags, nil)
}

// dependence is non-nil only for negated compounds; it is set when a skipped
// state test made the result depend on node.StateMask.
func selectorMatches(el html.Element, c *css.Compound, node NodeMatchContext, tree *TreeMatchContext, flags Flags, dependence *bool) bool {
	if node.IsFeatureless && !canMatchFeatureless(c) {
		return false
	}

	if c.Namespace != css.NamespaceAny && el.NamespaceID() != c.Namespace {
		return false
	}

	isHTML := tree.IsHTML && html.IsHTMLElement(el)
	if c.Tag != "" {
		tag := c.CasedTag
		if isHTML {
			tag = c.Tag
		}
		if el.LocalName() != tag {
			return false
		}
	}

	if len(c.IDs) > 0 {
		id := el.ID()
		if id == "" {
			return false
		}
		for _, want := range c.IDs {
			if !equalAtom(id, want, tree.Quirks) {
				return false
			}
		}
	}

	if len(c.Classes) > 0 {
		classes := el.Classes()
		if len(classes) == 0 {
			return false
		}
		for _, want := range c.Classes {
			if !containsAtom(classes, want, tree.Quirks) {
				return false
			}
		}
	}

	for _, p := range c.Pseudos {
		if !pseudoMatches(el, c, p, node, tree, flags, dependence) {
			return false
		}
	}

	for _, a := range c.Attrs {
		if !attrMatches(el, a, isHTML) {
			return false
		}
	}

	if dependence == nil {
		for _, neg := range c.Negations {
			dep := false
			if selectorMatches(el, neg, node, tree, FlagPseudoClassArg, &dep) && !dep {
				return false
			}
		}
	}
	return true
}

// canMatchFeatureless reports whether c may match a featureless host.
func canMatchFeatureless(c *css.Compound) bool {
	if c.HasFeatureSelectors() {
		return false
	}
	for _, p := range c.Pseudos {
		if lp, ok := p.(*css.SelectorListPseudo); ok && (lp.Kind == css.PseudoHost || lp.Kind == css.PseudoHostContext) {
			return true
		}
	}
	return false
}

func pseudoMatches(el html.Element, c *css.Compound, p css.PseudoClass, node NodeMatchContext, tree *TreeMatchContext, flags Flags, dependence *bool) bool {
	switch p := p.(type) {
	case *css.StatePseudo:
		return stateMatches(el, c, p.States, node, tree, flags, dependence)
	case *css.StructuralPseudo:
		return structuralMatches(el, p, tree)
	case *css.SelectorListPseudo:
		return listPseudoMatches(el, c, p, node, tree, flags)
	case *css.CustomPseudo:
		return customMatches(el, p, tree)
	default:
		panic(fmt.Sprintf("match: unknown pseudo-class %T", p))
	}
}

func stateMatches(el html.Element, c *css.Compound, states css.EventState, node NodeMatchContext, tree *TreeMatchContext, flags Flags, dependence *bool) bool {
	if states.HasAny(css.StateActive|css.StateHover) && tree.Quirks &&
		activeHoverQuirkMatches(c, flags) && html.IsHTMLElement(el) && !el.IsLink() {
		return false
	}
	if node.StateMask.HasAny(states) {
		if dependence != nil {
			*dependence = true
		}
		return true
	}
	return el.State().HasAny(states)
}

// activeHoverQuirkMatches reports whether the quirks-mode rule applies: a
// compound made only of :hover/:active never matches a non-link element.
func activeHoverQuirkMatches(c *css.Compound, flags Flags) bool {
	if c.Tag != "" || len(c.Attrs) > 0 || len(c.IDs) > 0 || len(c.Classes) > 0 || c.IsPseudoElement() ||
		flags&(FlagUnknown|FlagHasPseudoElement|FlagPseudoClassArg|FlagOutsideShadowTree) != 0 {
		return false
	}
	for _, p := range c.Pseudos {
		sp, ok := p.(*css.StatePseudo)
		if !ok || !(sp.IsHover() || sp.IsActive()) {
			return false
		}
	}
	return true
}

func structuralMatches(el html.Element, p *css.StructuralPseudo, tree *TreeMatchContext) bool {
	switch p.Kind {
	case css.PseudoFirstChild:
		return tree.nthIndex(el, false, false) == 1
	case css.PseudoLastChild:
		return tree.nthIndex(el, false, true) == 1
	case css.PseudoOnlyChild:
		return tree.nthIndex(el, false, false) == 1 && tree.nthIndex(el, false, true) == 1
	case css.PseudoFirstOfType:
		return tree.nthIndex(el, true, false) == 1
	case css.PseudoLastOfType:
		return tree.nthIndex(el, true, true) == 1
	case css.PseudoOnlyOfType:
		return tree.nthIndex(el, true, false) == 1 && tree.nthIndex(el, true, true) == 1
	case css.PseudoNthChild:
		return nthMatches(tree.nthIndex(el, false, false), p.A, p.B)
	case css.PseudoNthLastChild:
		return nthMatches(tree.nthIndex(el, false, true), p.A, p.B)
	case css.PseudoNthOfType:
		return nthMatches(tree.nthIndex(el, true, false), p.A, p.B)
	case css.PseudoNthLastOfType:
		return nthMatches(tree.nthIndex(el, true, true), p.A, p.B)
	case css.PseudoRoot:
		doc := tree.document(el)
		return doc != nil && el == doc.Root()
	case css.PseudoEmpty:
		return isEmpty(el, true)
	case css.PseudoOnlyWhitespace:
		return isEmpty(el, false)
	case css.PseudoScope:
		if tree.Scope != nil {
			return el == tree.Scope
		}
		doc := tree.document(el)
		return doc != nil && el == doc.Root()
	}
	return false
}

// nthMatches reports whether index = a*n + b for some integer n >= 0.
func nthMatches(index, a, b int) bool {
	if index <= 0 {
		return false
	}
	if a == 0 {
		return b == index
	}
	diff := index - b
	return diff%a == 0 && diff/a >= 0
}

// isEmpty stops at the first significant child: any element, and any text
// when whitespace is significant, otherwise only non-whitespace text.
func isEmpty(el html.Element, whitespaceSignificant bool) bool {
	empty := true
	el.EachChild(func(child html.Element, text string) bool {
		if child != nil || whitespaceSignificant || !onlyWhitespace(text) {
			empty = false
		}
		return empty
	})
	return empty
}

func onlyWhitespace(s string) bool {
	return strings.TrimLeft(s, " \t\n\r\f") == ""
}

func listPseudoMatches(el html.Element, c *css.Compound, p *css.SelectorListPseudo, node NodeMatchContext, tree *TreeMatchContext, flags Flags) bool {
	switch p.Kind {
	case css.PseudoHost:
		return hostMatches(el, c, p, node, tree, flags)
	case css.PseudoHostContext:
		return hostContextMatches(el, p, tree, flags)
	default:
		return SelectorListMatches(el, p.List, node, tree, FlagPseudoClassArg, p.Kind.Forgiving())
	}
}

func hostMatches(el html.Element, c *css.Compound, p *css.SelectorListPseudo, node NodeMatchContext, tree *TreeMatchContext, flags Flags) bool {
	if !el.IsShadowHost() || c.HasFeatureSelectors() || flags&FlagOutsideShadowTree != 0 {
		return false
	}
	if tree.ScopeHost != nil {
		if el != tree.ScopeHost {
			return false
		}
	} else if !node.IsFeatureless && flags&FlagUnknown == 0 {
		return false
	}
	if p.List == nil {
		return true
	}
	// the argument is matched against the host as a regular element
	inner := NodeMatchContext{StateMask: node.StateMask}
	return SelectorListMatches(el, p.List, inner, tree, FlagPseudoClassArg, false)
}

func hostContextMatches(el html.Element, p *css.SelectorListPseudo, tree *TreeMatchContext, flags Flags) bool {
	if !(el.IsShadowHost() && el == tree.ScopeHost) && flags&FlagUnknown == 0 {
		return false
	}
	for cur := el; cur != nil; cur = html.FlattenedParent(cur) {
		if SelectorListMatches(cur, p.List, NodeMatchContext{}, tree, FlagPseudoClassArg, false) {
			return true
		}
	}
	return false
}

func customMatches(el html.Element, p *css.CustomPseudo, tree *TreeMatchContext) bool {
	switch p.Kind {
	case css.PseudoLang:
		return langMatches(el, p.Literal, tree)
	case css.PseudoLocaleDir:
		rtl := tree.DocumentState.HasAny(css.DocumentStateRTLLocale)
		switch p.Literal {
		case "rtl":
			return rtl
		case "ltr":
			return !rtl
		}
		return false
	case css.PseudoWindowInactive:
		return tree.DocumentState.HasAny(css.DocumentStateWindowInactive)
	case css.PseudoIsHTML:
		return tree.IsHTML && html.IsHTMLElement(el)
	}
	return false
}

// langMatches dash-matches the inherited language, falling back to the
// document's Content-Language, which may be a comma separated list.
func langMatches(el html.Element, want string, tree *TreeMatchContext) bool {
	if want == "" {
		return false
	}
	if lang, ok := html.Lang(el); ok {
		return dashMatch(lang, want, false)
	}
	doc := tree.document(el)
	if doc == nil {
		return false
	}
	language := strings.Join(strings.Fields(doc.ContentLanguage()), "")
	for _, lang := range strings.Split(language, ",") {
		if lang != "" && dashMatch(lang, want, false) {
			return true
		}
	}
	return false
}

// SelectorListMatches reports whether any selector of list matches el.
// Forgiving lists may be empty and then match nothing; an empty
// non-forgiving list is a construction error.
func SelectorListMatches(el html.Element, list []*css.Selector, node NodeMatchContext, tree *TreeMatchContext, flags Flags, forgiving bool) bool {
	if len(list) == 0 {
		if forgiving {
			return false
		}
		panic("match: empty non-forgiving selector list")
	}
	for _, sel := range list {
		if !SelectorMatches(el, sel.Compounds[0], node, tree, flags) {
			continue
		}
		if len(sel.Compounds) == 1 || SelectorMatchesTree(el, sel, 1, tree) {
			return true
		}
	}
	return false
}

// SelectorMatchesTree matches sel.Compounds[start:] against the ancestors and
// previous siblings of prev, which already matched sel.Compounds[start-1].
func SelectorMatchesTree(prev html.Element, sel *css.Selector, start int, tree *TreeMatchContext) bool {
	crossedShadowBoundary := false
	last := len(sel.Compounds) - 1
	for i := start; i <= last; {
		c := sel.Compounds[i]
		featureless := false

		var el html.Element
		if c.Combinator.IsSibling() {
			el = prev.PreviousSiblingElement()
		} else {
			el = prev.Parent()
			// the shadow host acts as a featureless parent of the shadow
			// tree's top-level elements, for the leftmost compound only
			if el == nil && i == last && !crossedShadowBoundary {
				if host := prev.ShadowHost(); host != nil {
					el = host
					crossedShadowBoundary = true
					featureless = true
				}
			}
		}
		if el == nil {
			return false
		}

		if SelectorMatches(el, c, NodeMatchContext{IsFeatureless: featureless}, tree, FlagNone) {
			// Avoid greedy matching: when the next combinator differs, try
			// the rest of the chain from this element's ancestors or
			// siblings first. A sibling's parent is always the same, so
			// "~" followed by an ancestor combinator needs no retry.
			if c.Combinator.IsGreedy() && i < last {
				next := sel.Compounds[i+1].Combinator
				if next != c.Combinator && !(c.Combinator == css.CombinatorSibling && next.IsAncestor()) {
					if SelectorMatchesTree(el, sel, i, tree) {
						return true
					}
				}
			}
			i++
		} else if featureless || !c.Combinator.IsGreedy() {
			// ancestors of the host are out of reach
			return false
		}
		prev = el
	}
	return true
}

func attrMatches(el html.Element, a *css.AttrSelector, isHTML bool) bool {
	name := a.Name
	if isHTML {
		name = a.LowerName
	}
	if a.Namespace == css.NamespaceAny {
		for _, v := range el.AttributeValues(name) {
			if a.Func == css.AttrSet || attrValueMatches(a, v, isHTML) {
				return true
			}
		}
		return false
	}
	v, ok := el.Attribute(a.Namespace, name)
	if !ok {
		return false
	}
	return a.Func == css.AttrSet || attrValueMatches(a, v, isHTML)
}

func attrValueMatches(a *css.AttrSelector, value string, isHTML bool) bool {
	if a.Value == "" {
		switch a.Func {
		case css.AttrIncludes, css.AttrBegins, css.AttrEnds, css.AttrContains:
			return false
		}
	}
	fold := !a.IsValueCaseSensitive(isHTML)
	switch a.Func {
	case css.AttrEquals:
		return equalAtom(value, a.Value, fold)
	case css.AttrIncludes:
		for _, word := range strings.FieldsFunc(value, isHTMLSpace) {
			if equalAtom(word, a.Value, fold) {
				return true
			}
		}
		return false
	case css.AttrDashMatch:
		return dashMatch(value, a.Value, !fold)
	case css.AttrBegins:
		return len(value) >= len(a.Value) && equalAtom(value[:len(a.Value)], a.Value, fold)
	case css.AttrEnds:
		return len(value) >= len(a.Value) && equalAtom(value[len(value)-len(a.Value):], a.Value, fold)
	case css.AttrContains:
		if fold {
			return strings.Contains(css.FoldCase(value), css.FoldCase(a.Value))
		}
		return strings.Contains(value, a.Value)
	}
	return false
}

func isHTMLSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
}

// dashMatch reports whether value equals prefix or starts with prefix
// followed by "-".
func dashMatch(value, prefix string, caseSensitive bool) bool {
	if len(value) > len(prefix) {
		return value[len(prefix)] == '-' && equalAtom(value[:len(prefix)], prefix, !caseSensitive)
	}
	return equalAtom(value, prefix, !caseSensitive)
}

func containsAtom(list []string, want string, fold bool) bool {
	for _, s := range list {
		if equalAtom(s, want, fold) {
			return true
		}
	}
	return false
}

// equalAtom compares with optional ASCII case folding.
func equalAtom(a, b string, fold bool) bool {
	if !fold {
		return a == b
	}
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if toLowerASCII(a[i]) != toLowerASCII(b[i]) {
			return false
		}
	}
	return true
}

func toLowerASCII(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
