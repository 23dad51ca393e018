package css

import (
	"fmt"
	"strings"
)

// Specificity represents CSS specificity with individual components
// Counted the CSS way: IDs, classes/attributes/pseudo-classes, elements/pseudo-elements
type Specificity struct {
	IDs      int // #id selectors
	Classes  int // .class, [attr], :pseudo-class
	Elements int // element, ::pseudo-element
}

// Compare returns -1 if s < other, 0 if equal, 1 if s > other
func (s Specificity) Compare(other Specificity) int {
	// Compare specificity components in order
	if s.IDs != other.IDs {
		if s.IDs > other.IDs {
			return 1
		}
		return -1
	}
	if s.Classes != other.Classes {
		if s.Classes > other.Classes {
			return 1
		}
		return -1
	}
	if s.Elements != other.Elements {
		if s.Elements > other.Elements {
			return 1
		}
		return -1
	}

	return 0 // Equal specificity
}

// Add returns the component-wise sum
func (s Specificity) Add(other Specificity) Specificity {
	return Specificity{
		IDs:      s.IDs + other.IDs,
		Classes:  s.Classes + other.Classes,
		Elements: s.Elements + other.Elements,
	}
}

const weightComponentMax = 0x3ff

// Weight packs the specificity into one ordered integer; each component
// saturates at 1023.
func (s Specificity) Weight() uint32 {
	clamp := func(v int) uint32 {
		return uint32(min(max(v, 0), weightComponentMax))
	}
	return clamp(s.IDs)<<20 | clamp(s.Classes)<<10 | clamp(s.Elements)
}

// SpecificityFromWeight unpacks a value produced by Weight.
func SpecificityFromWeight(w uint32) Specificity {
	return Specificity{
		IDs:      int(w >> 20 & weightComponentMax),
		Classes:  int(w >> 10 & weightComponentMax),
		Elements: int(w & weightComponentMax),
	}
}

func (s Specificity) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.IDs, s.Classes, s.Elements)
}

// Declaration represents a single CSS property declaration
type Declaration struct {
	Property  string // CSS property name (normalized)
	Value     string // CSS property value
	Important bool   // !important flag
}

func (d Declaration) String() string {
	if d.Important {
		return d.Property + ": " + d.Value + " !important"
	}
	return d.Property + ": " + d.Value
}

// DeclarationBlock is the ordered declaration list owned by a rule
type DeclarationBlock struct {
	Declarations []Declaration
}

// Get returns the last declaration for property, honoring !important
// within the block.
func (b *DeclarationBlock) Get(property string) (Declaration, bool) {
	var (
		found Declaration
		ok    bool
	)
	if b == nil {
		return found, false
	}
	for _, d := range b.Declarations {
		if d.Property != property {
			continue
		}
		if ok && found.Important && !d.Important {
			continue
		}
		found, ok = d, true
	}
	return found, ok
}

func (b *DeclarationBlock) String() string {
	if b == nil {
		return ""
	}
	parts := make([]string, 0, len(b.Declarations))
	for _, d := range b.Declarations {
		parts = append(parts, d.String())
	}
	return strings.Join(parts, "; ")
}

// Rule represents a single CSS style rule with its selector list and declarations
type Rule struct {
	SelectorText string            // Original selector text
	Selectors    []*Selector       // Parsed selector list
	Block        *DeclarationBlock // Owning declaration block
	SourceOrder  int               // Order in original CSS (for tie-breaking)
}

// RuleSelector pairs a rule with one selector of its selector list. It is
// the unit of indexing and matching.
type RuleSelector struct {
	Rule        *Rule
	Selector    *Selector
	Weight      uint32
	SourceOrder int
}

// RuleSelectors expands the rule into one RuleSelector per selector of its
// list, weighted by specificity, all at the given source order.
func (r *Rule) RuleSelectors(order int) []RuleSelector {
	out := make([]RuleSelector, 0, len(r.Selectors))
	for _, sel := range r.Selectors {
		out = append(out, RuleSelector{
			Rule:        r,
			Selector:    sel,
			Weight:      sel.Specificity().Weight(),
			SourceOrder: order,
		})
	}
	return out
}

// Item is one top-level or nested construct of a stylesheet. The concrete
// types are *Rule, *MediaRule, *SupportsRule, *LayerStatement,
// *LayerBlock, *ImportRule, *NamespaceRule and *NamedRule.
type Item interface {
	item()
}

func (*Rule) item() {}

// MediaRule is an @media block.
type MediaRule struct {
	Query MediaQueryList
	Items []Item
}

func (*MediaRule) item() {}

// SupportsRule is an @supports block.
type SupportsRule struct {
	Condition *SupportsCondition
	Items     []Item
}

func (*SupportsRule) item() {}

// LayerStatement is "@layer a, b.c;". Each name is a dotted path.
type LayerStatement struct {
	Names [][]string
}

func (*LayerStatement) item() {}

// LayerBlock is "@layer name { ... }"; Name is nil for an anonymous layer.
type LayerBlock struct {
	Name  []string
	Items []Item
}

func (*LayerBlock) item() {}

// ImportRule is "@import url media;" optionally placed into a layer.
// Sheet is filled in by an import resolver.
type ImportRule struct {
	URL       string
	Media     MediaQueryList
	Supports  *SupportsCondition // supports(...) import condition, nil when absent
	Layer     []string
	Anonymous bool // "layer" keyword without a name
	Sheet     *Stylesheet
}

func (*ImportRule) item() {}

// NamespaceRule is "@namespace prefix url;".
type NamespaceRule struct {
	Prefix string
	URI    string
}

func (*NamespaceRule) item() {}

// AtRuleKind enumerates the named at-rules collected per cascade layer.
type AtRuleKind uint8

const (
	AtFontFace AtRuleKind = iota
	AtKeyframes
	AtPage
	AtCounterStyle
	AtFontFeatureValues
)

var atRuleNames = map[AtRuleKind]string{
	AtFontFace:          "@font-face",
	AtKeyframes:         "@keyframes",
	AtPage:              "@page",
	AtCounterStyle:      "@counter-style",
	AtFontFeatureValues: "@font-feature-values",
}

func (k AtRuleKind) String() string { return atRuleNames[k] }

// NamedRule is an at-rule collected by name (keyframes, counter-style) or
// kept for the layer (font-face, page, font-feature-values). Body is the
// raw block text for rules whose content is not a declaration list.
type NamedRule struct {
	Kind  AtRuleKind
	Name  string
	Block *DeclarationBlock
	Body  string
}

func (*NamedRule) item() {}

// Stylesheet represents the complete parsed CSS with all items in source order
type Stylesheet struct {
	Href  string
	Items []Item
	Rules int // number of style rules, including nested ones
}

// Walk visits every style rule in document order, entering conditional
// and layer blocks unconditionally.
func (s *Stylesheet) Walk(fn func(*Rule)) {
	walkItems(s.Items, fn)
}

func walkItems(items []Item, fn func(*Rule)) {
	for _, it := range items {
		switch v := it.(type) {
		case *Rule:
			fn(v)
		case *MediaRule:
			walkItems(v.Items, fn)
		case *SupportsRule:
			walkItems(v.Items, fn)
		case *LayerBlock:
			walkItems(v.Items, fn)
		case *ImportRule:
			if v.Sheet != nil {
				v.Sheet.Walk(fn)
			}
		}
	}
}
