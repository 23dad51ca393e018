package css

import (
	"strconv"
	"strings"
)

// Combinator joins a compound selector to the compound on its right.
type Combinator uint8

const (
	CombinatorNone          Combinator = iota
	CombinatorDescendant               // "a b"
	CombinatorChild                    // "a > b"
	CombinatorAdjacent                 // "a + b"
	CombinatorSibling                  // "a ~ b"
	CombinatorPseudoElement            // "a::before", links a pseudo-element to its originating element
)

// IsGreedy reports whether the combinator may be satisfied by more than one
// element (descendant and general sibling).
func (c Combinator) IsGreedy() bool {
	return c == CombinatorDescendant || c == CombinatorSibling
}

// IsAncestor reports whether the combinator walks to ancestors.
func (c Combinator) IsAncestor() bool {
	return c == CombinatorDescendant || c == CombinatorChild
}

// IsSibling reports whether the combinator walks to previous siblings.
func (c Combinator) IsSibling() bool {
	return c == CombinatorAdjacent || c == CombinatorSibling
}

func (c Combinator) String() string {
	switch c {
	case CombinatorDescendant:
		return " "
	case CombinatorChild:
		return " > "
	case CombinatorAdjacent:
		return " + "
	case CombinatorSibling:
		return " ~ "
	case CombinatorPseudoElement:
		return ""
	default:
		return ""
	}
}

// Selector is an immutable complex selector. Compounds[0] is the subject
// (rightmost compound); Compounds[i].Combinator joins Compounds[i] to
// Compounds[i-1].
type Selector struct {
	Compounds []*Compound
	Text      string
}

// Subject returns the rightmost compound, skipping a pseudo-element marker.
func (s *Selector) Subject() *Compound {
	if len(s.Compounds) > 1 && s.Compounds[0].IsPseudoElement() {
		return s.Compounds[1]
	}
	return s.Compounds[0]
}

// SubjectIndex returns the index of Subject() in Compounds.
func (s *Selector) SubjectIndex() int {
	if len(s.Compounds) > 1 && s.Compounds[0].IsPseudoElement() {
		return 1
	}
	return 0
}

// PseudoElement returns the pseudo-element name the selector targets, or "".
func (s *Selector) PseudoElement() string {
	if len(s.Compounds) > 0 {
		return s.Compounds[0].PseudoElement
	}
	return ""
}

// Specificity sums the specificity of all compounds.
func (s *Selector) Specificity() Specificity {
	var total Specificity
	for _, c := range s.Compounds {
		total = total.Add(c.Specificity())
	}
	return total
}

func (s *Selector) String() string {
	if s.Text != "" {
		return s.Text
	}
	var b strings.Builder
	for i := len(s.Compounds) - 1; i >= 0; i-- {
		c := s.Compounds[i]
		b.WriteString(c.String())
		if i > 0 {
			b.WriteString(s.Compounds[i-1].Combinator.String())
		}
	}
	return b.String()
}

// Compound is a sequence of simple selectors that all test one element.
type Compound struct {
	Namespace         int    // NamespaceAny when unconstrained
	Tag               string // lowercased local name, "" for universal
	CasedTag          string // local name as written
	ExplicitUniversal bool
	IDs               []string
	Classes           []string
	Attrs             []*AttrSelector
	Pseudos           []PseudoClass
	Negations         []*Compound // :not(compound), each negated separately
	PseudoElement     string      // non-empty for a pseudo-element marker compound
	Combinator        Combinator  // joins this compound to the one on its right

	notGroups []int // negations contributed by each :not(), for specificity
}

// IsPseudoElement reports whether the compound is a pseudo-element marker.
func (c *Compound) IsPseudoElement() bool {
	return c.PseudoElement != ""
}

// HasFeatureSelectors reports whether the compound carries tag, id, class
// or attribute tests.
func (c *Compound) HasFeatureSelectors() bool {
	return c.Tag != "" || len(c.IDs) > 0 || len(c.Classes) > 0 || len(c.Attrs) > 0
}

// Specificity of the compound, including its negations and pseudo-classes.
func (c *Compound) Specificity() Specificity {
	var s Specificity
	s.IDs += len(c.IDs)
	s.Classes += len(c.Classes) + len(c.Attrs)
	if c.Tag != "" {
		s.Elements++
	}
	if c.PseudoElement != "" {
		s.Elements++
	}
	for _, p := range c.Pseudos {
		s = s.Add(pseudoSpecificity(p))
	}
	rest := c.Negations
	for _, size := range c.notGroups {
		var best Specificity
		for _, n := range rest[:size] {
			if ns := n.Specificity(); ns.Compare(best) > 0 {
				best = ns
			}
		}
		s = s.Add(best)
		rest = rest[size:]
	}
	for _, n := range rest {
		s = s.Add(n.Specificity())
	}
	return s
}

func pseudoSpecificity(p PseudoClass) Specificity {
	list, ok := p.(*SelectorListPseudo)
	if !ok {
		return Specificity{Classes: 1}
	}
	switch list.Kind {
	case PseudoWhere:
		return Specificity{}
	case PseudoHost, PseudoHostContext:
		return Specificity{Classes: 1}.Add(maxSpecificity(list.List))
	default:
		return maxSpecificity(list.List)
	}
}

func maxSpecificity(list []*Selector) Specificity {
	var best Specificity
	for _, s := range list {
		if sp := s.Specificity(); sp.Compare(best) > 0 {
			best = sp
		}
	}
	return best
}

func (c *Compound) String() string {
	var b strings.Builder
	if c.PseudoElement != "" {
		b.WriteString("::")
		b.WriteString(c.PseudoElement)
		return b.String()
	}
	if c.CasedTag != "" {
		b.WriteString(c.CasedTag)
	} else if c.ExplicitUniversal {
		b.WriteByte('*')
	}
	for _, id := range c.IDs {
		b.WriteByte('#')
		b.WriteString(id)
	}
	for _, class := range c.Classes {
		b.WriteByte('.')
		b.WriteString(class)
	}
	for _, a := range c.Attrs {
		b.WriteString(a.String())
	}
	for _, p := range c.Pseudos {
		b.WriteByte(':')
		b.WriteString(p.String())
	}
	for _, n := range c.Negations {
		b.WriteString(":not(")
		b.WriteString(n.String())
		b.WriteByte(')')
	}
	if b.Len() == 0 {
		b.WriteByte('*')
	}
	return b.String()
}

// AttrFunc is the comparison performed by an attribute selector.
type AttrFunc uint8

const (
	AttrSet       AttrFunc = iota // [a]
	AttrEquals                    // [a=v]
	AttrIncludes                  // [a~=v]
	AttrDashMatch                 // [a|=v]
	AttrBegins                    // [a^=v]
	AttrEnds                      // [a$=v]
	AttrContains                  // [a*=v]
)

var attrFuncOps = [...]string{"", "=", "~=", "|=", "^=", "$=", "*="}

// AttrCase selects value case sensitivity.
type AttrCase uint8

const (
	AttrCaseDefault     AttrCase = iota // case-sensitive unless an HTML case-insensitive attribute on an HTML element
	AttrCaseInsensitive                 // [a=v i]
	AttrCaseSensitive                   // [a=v s]
)

// AttrSelector is one attribute test of a compound.
type AttrSelector struct {
	Namespace int // NamespaceAny for [*|a], NamespaceNone for [a]
	Name      string
	LowerName string
	Func      AttrFunc
	Value     string
	Case      AttrCase
}

// IsValueCaseSensitive reports whether values compare case-sensitively for
// an element that is (isHTML) or is not an HTML element in an HTML document.
func (a *AttrSelector) IsValueCaseSensitive(isHTML bool) bool {
	switch a.Case {
	case AttrCaseInsensitive:
		return false
	case AttrCaseSensitive:
		return true
	}
	return !(isHTML && htmlCaseInsensitiveAttrs[a.LowerName])
}

func (a *AttrSelector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	if a.Namespace == NamespaceAny {
		b.WriteString("*|")
	}
	b.WriteString(a.Name)
	if a.Func != AttrSet {
		b.WriteString(attrFuncOps[a.Func])
		b.WriteString(strconv.Quote(a.Value))
		switch a.Case {
		case AttrCaseInsensitive:
			b.WriteString(" i")
		case AttrCaseSensitive:
			b.WriteString(" s")
		}
	}
	b.WriteByte(']')
	return b.String()
}

// htmlCaseInsensitiveAttrs lists HTML attributes whose values match
// ASCII case-insensitively on HTML elements.
var htmlCaseInsensitiveAttrs = map[string]bool{
	"accept": true, "accept-charset": true, "align": true, "alink": true, "axis": true,
	"bgcolor": true, "charset": true, "checked": true, "clear": true, "codetype": true,
	"color": true, "compact": true, "declare": true, "defer": true, "dir": true,
	"direction": true, "disabled": true, "enctype": true, "face": true, "frame": true,
	"hreflang": true, "http-equiv": true, "lang": true, "language": true, "link": true,
	"media": true, "method": true, "multiple": true, "nohref": true, "noresize": true,
	"noshade": true, "nowrap": true, "readonly": true, "rel": true, "rev": true,
	"rules": true, "scope": true, "scrolling": true, "selected": true, "shape": true,
	"target": true, "text": true, "type": true, "valign": true, "valuetype": true,
	"vlink": true,
}

// PseudoClass is a closed set of pseudo-class variants: *StructuralPseudo,
// *StatePseudo, *SelectorListPseudo and *CustomPseudo.
type PseudoClass interface {
	String() string
	pseudoClass()
}

// StructuralKind enumerates tree-position pseudo-classes.
type StructuralKind uint8

const (
	PseudoFirstChild StructuralKind = iota
	PseudoLastChild
	PseudoOnlyChild
	PseudoFirstOfType
	PseudoLastOfType
	PseudoOnlyOfType
	PseudoNthChild
	PseudoNthLastChild
	PseudoNthOfType
	PseudoNthLastOfType
	PseudoRoot
	PseudoEmpty
	PseudoOnlyWhitespace
	PseudoScope
)

var structuralNames = map[StructuralKind]string{
	PseudoFirstChild:     "first-child",
	PseudoLastChild:      "last-child",
	PseudoOnlyChild:      "only-child",
	PseudoFirstOfType:    "first-of-type",
	PseudoLastOfType:     "last-of-type",
	PseudoOnlyOfType:     "only-of-type",
	PseudoNthChild:       "nth-child",
	PseudoNthLastChild:   "nth-last-child",
	PseudoNthOfType:      "nth-of-type",
	PseudoNthLastOfType:  "nth-last-of-type",
	PseudoRoot:           "root",
	PseudoEmpty:          "empty",
	PseudoOnlyWhitespace: "-moz-only-whitespace",
	PseudoScope:          "scope",
}

// StructuralPseudo consults the element's position in the tree. A and B
// hold the an+b parameters of the nth-* kinds.
type StructuralPseudo struct {
	Kind StructuralKind
	A, B int
}

func (*StructuralPseudo) pseudoClass() {}

func (p *StructuralPseudo) String() string {
	name := structuralNames[p.Kind]
	switch p.Kind {
	case PseudoNthChild, PseudoNthLastChild, PseudoNthOfType, PseudoNthLastOfType:
		return name + "(" + strconv.Itoa(p.A) + "n" + signed(p.B) + ")"
	}
	return name
}

func signed(v int) string {
	if v < 0 {
		return strconv.Itoa(v)
	}
	return "+" + strconv.Itoa(v)
}

// StatePseudo tests event-state bits supplied by the DOM. The element
// matches when it has at least one of States.
type StatePseudo struct {
	Name   string
	States EventState
}

func (*StatePseudo) pseudoClass() {}

func (p *StatePseudo) String() string { return p.Name }

// IsHover reports whether the pseudo-class is :hover.
func (p *StatePseudo) IsHover() bool { return p.States == StateHover }

// IsActive reports whether the pseudo-class is :active.
func (p *StatePseudo) IsActive() bool { return p.States == StateActive }

// ListKind enumerates pseudo-classes with selector-list arguments.
type ListKind uint8

const (
	PseudoIs ListKind = iota
	PseudoWhere
	PseudoMatches
	PseudoAny
	PseudoMozAny
	PseudoHost
	PseudoHostContext
)

var listNames = map[ListKind]string{
	PseudoIs:          "is",
	PseudoWhere:       "where",
	PseudoMatches:     "matches",
	PseudoAny:         "any",
	PseudoMozAny:      "-moz-any",
	PseudoHost:        "host",
	PseudoHostContext: "host-context",
}

// Forgiving reports whether an empty argument list is accepted (and then
// matches nothing).
func (k ListKind) Forgiving() bool {
	switch k {
	case PseudoIs, PseudoWhere, PseudoMatches, PseudoAny:
		return true
	}
	return false
}

// SelectorListPseudo recurses into its nested selector list. :host without
// arguments has a nil List.
type SelectorListPseudo struct {
	Kind ListKind
	List []*Selector
}

func (*SelectorListPseudo) pseudoClass() {}

func (p *SelectorListPseudo) String() string {
	name := listNames[p.Kind]
	if p.List == nil && p.Kind == PseudoHost {
		return name
	}
	parts := make([]string, 0, len(p.List))
	for _, s := range p.List {
		parts = append(parts, s.String())
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// CustomKind enumerates pseudo-classes carrying a literal argument or
// consulting document-level state.
type CustomKind uint8

const (
	PseudoLang CustomKind = iota
	PseudoLocaleDir
	PseudoWindowInactive
	PseudoIsHTML
)

var customNames = map[CustomKind]string{
	PseudoLang:           "lang",
	PseudoLocaleDir:      "-moz-locale-dir",
	PseudoWindowInactive: "-moz-window-inactive",
	PseudoIsHTML:         "-moz-is-html",
}

// CustomPseudo carries a literal argument (lang, locale-dir) or none.
type CustomPseudo struct {
	Kind    CustomKind
	Literal string
}

func (*CustomPseudo) pseudoClass() {}

func (p *CustomPseudo) String() string {
	name := customNames[p.Kind]
	if p.Literal != "" {
		return name + "(" + p.Literal + ")"
	}
	return name
}

// DocumentStates returns the document states the pseudo-class depends on.
func (p *CustomPseudo) DocumentStates() DocumentState {
	switch p.Kind {
	case PseudoLocaleDir:
		return DocumentStateRTLLocale
	case PseudoWindowInactive:
		return DocumentStateWindowInactive
	}
	return 0
}

// StateDependence returns the union of event states tested directly by
// the compound's own pseudo-classes (not its negations or nested lists).
func (c *Compound) StateDependence() EventState {
	var states EventState
	for _, p := range c.Pseudos {
		if sp, ok := p.(*StatePseudo); ok {
			states |= sp.States
		}
	}
	return states
}
