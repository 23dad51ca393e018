package ruledata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/match"
	"stylematch/internal/restyle"
	"stylematch/internal/ruledata"
	"stylematch/internal/rulehash"
)

func build(selectors ...string) *ruledata.CascadeData {
	d := ruledata.New(false)
	for i, text := range selectors {
		sel := css.MustParseSelector(text)
		d.AddRule(css.RuleSelector{
			Rule:        &css.Rule{SelectorText: text, Selectors: []*css.Selector{sel}, SourceOrder: i},
			Selector:    sel,
			Weight:      sel.Specificity().Weight(),
			SourceOrder: i,
		})
	}
	return d
}

// fixture: <html><body><div class="outer"><p id="p" class="x"><span/></p><p class="next"/></div></body></html>
type fixture struct {
	doc                  *html.Tree
	outer, p, span, next *html.Node
	tree                 *match.TreeMatchContext
}

func newFixture() *fixture {
	f := &fixture{doc: html.NewTree(true)}
	f.span = f.doc.CreateElement("span")
	f.p = f.doc.CreateElement("p").Set("id", "p").Set("class", "x").Append(f.span)
	f.next = f.doc.CreateElement("p").Set("class", "next")
	f.outer = f.doc.CreateElement("div").Set("class", "outer").Append(f.p, f.next)
	f.doc.SetRoot(f.doc.CreateElement("html").Append(f.doc.CreateElement("body").Append(f.outer)))
	f.tree = match.NewTreeMatchContext(match.ForDocument(f.doc))
	return f
}

func TestHasStateDependentStyle(t *testing.T) {
	f := newFixture()
	tests := []struct {
		selector string
		el       html.Element
		want     restyle.Hint
	}{
		{".y:hover", f.p, restyle.None},
		{".x:hover", f.p, restyle.Self},
		{"p:hover", f.p, restyle.Self},
		{".x:hover span", f.p, restyle.Subtree},
		{".x:hover > span", f.p, restyle.Subtree},
		{".x:hover + p", f.p, restyle.LaterSiblings},
		{".x:hover ~ .next", f.p, restyle.LaterSiblings},
		{"section .x:hover", f.p, restyle.None},
		{".outer .x:hover", f.p, restyle.Self},
		{"p:not(:hover)", f.p, restyle.Self},
		{".x:focus", f.p, restyle.None},
		{"p:is(.x, .z):hover", f.p, restyle.Self},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			d := build(tt.selector)
			assert.Equal(t, tt.want, d.HasStateDependentStyle(tt.el, css.StateHover, f.tree, restyle.None))
		})
	}
}

func TestHasStateDependentStyle_Accumulates(t *testing.T) {
	f := newFixture()
	d := build(".x:hover", ".x:hover span")
	got := d.HasStateDependentStyle(f.p, css.StateHover|css.StateFocus, f.tree, restyle.LaterSiblings)
	assert.Equal(t, restyle.Self|restyle.Subtree|restyle.LaterSiblings, got)
}

func classify(d *ruledata.CascadeData, f *fixture, el html.Element, change ruledata.AttributeChange) restyle.Result {
	var res restyle.Result
	d.HasAttributeDependentStyle(el, change, f.tree, &res)
	return res
}

func TestHasAttributeDependentStyle_Class(t *testing.T) {
	f := newFixture()
	// the element now carries class "x"; before it had none
	added := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "class"}

	res := classify(build(".x"), f, f.p, added)
	assert.Equal(t, restyle.Self, res.Hint)

	res = classify(build(".x + p"), f, f.p, added)
	assert.Equal(t, restyle.LaterSiblings, res.Hint)

	sel := ".x span"
	d := build(sel)
	res = classify(d, f, f.p, added)
	assert.Equal(t, restyle.SomeDescendants, res.Hint)
	require.Len(t, res.Data.SelectorsForDescendants, 1)
	assert.Equal(t, sel, res.Data.SelectorsForDescendants[0].Text)

	// the class was already there
	unchanged := added
	unchanged.Other, unchanged.OtherPresent = "x", true
	res = classify(build(".x"), f, f.p, unchanged)
	assert.Equal(t, restyle.None, res.Hint)

	// class on an unrelated element
	res = classify(build(".x"), f, f.next, added)
	assert.Equal(t, restyle.None, res.Hint)
}

func TestHasAttributeDependentStyle_Negated(t *testing.T) {
	f := newFixture()
	d := build(":not(.x) span")
	change := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "class"}

	// with the class, :not(.x) does not match p
	assert.Equal(t, restyle.None, classify(d, f, f.p, change).Hint)

	// the old state, without the class, is matched through the overlay and
	// the dependency cannot be narrowed to some descendants
	old := html.WithAttribute(f.p, css.NamespaceNone, "class", "", false)
	res := classify(d, f, old, change)
	assert.Equal(t, restyle.Subtree, res.Hint)
	assert.Empty(t, res.Data.SelectorsForDescendants)

	// nested selector lists are handled like negations
	res = classify(build(":is(.x, .y) span"), f, f.p, change)
	assert.Equal(t, restyle.Subtree, res.Hint)
}

func TestComplexSelectorListArguments(t *testing.T) {
	f := newFixture()
	class := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "class"}

	// the changed element is not the one the top-level compound tests
	assert.Equal(t, restyle.Subtree, classify(build(":is(.outer span)"), f, f.outer, class).Hint)
	assert.Equal(t, restyle.Subtree, classify(build("p:where(.outer > *)"), f, f.outer, class).Hint)
	assert.Equal(t, restyle.Subtree|restyle.LaterSiblings, classify(build(":is(.x + p)"), f, f.p, class).Hint)
	assert.Equal(t, restyle.None, classify(build(":is(.other span)"), f, f.outer, class).Hint)

	id := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "id"}
	assert.Equal(t, restyle.Subtree, classify(build(":is(#p span)"), f, f.p, id).Hint)

	f.outer.Set("data-open", "")
	attr := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "data-open"}
	assert.Equal(t, restyle.Subtree, classify(build(":is([data-open] :not(.y))"), f, f.outer, attr).Hint)

	d := build(":is(.outer:hover span)")
	assert.Equal(t, restyle.Subtree, d.HasStateDependentStyle(f.outer, css.StateHover, f.tree, restyle.None))
	assert.Equal(t, restyle.None, d.HasStateDependentStyle(f.outer, css.StateFocus, f.tree, restyle.None))

	d = build(":is(:-moz-window-inactive span)")
	assert.Equal(t, css.DocumentStateWindowInactive, d.SelectorDocumentStates())
}

func TestQuirksKeysFoldASCIIOnly(t *testing.T) {
	f := newFixture()
	f.p.Set("class", "ÄX")
	d := ruledata.New(true)
	sel := css.MustParseSelector(".äx")
	d.AddRule(css.RuleSelector{Rule: &css.Rule{SelectorText: ".äx", Selectors: []*css.Selector{sel}}, Selector: sel})

	class := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "class"}
	var res restyle.Result
	d.HasAttributeDependentStyle(f.p, class, f.tree, &res)
	assert.Equal(t, restyle.None, res.Hint, "Ä and ä differ outside ASCII")

	f.p.Set("class", "äX")
	quirks := match.ForDocument(f.doc)
	quirks.Quirks = true
	tree := match.NewTreeMatchContext(quirks)
	res = restyle.Result{}
	d.HasAttributeDependentStyle(f.p, class, tree, &res)
	assert.Equal(t, restyle.Self, res.Hint)
}

func TestHasAttributeDependentStyle_ID(t *testing.T) {
	f := newFixture()
	change := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "id"}
	assert.Equal(t, restyle.Self, classify(build("#p"), f, f.p, change).Hint)
	assert.Equal(t, restyle.None, classify(build("#q"), f, f.p, change).Hint)
	assert.Equal(t, restyle.Subtree, classify(build("p:not(#q) span"), f, f.p, change).Hint)
}

func TestHasAttributeDependentStyle_Attribute(t *testing.T) {
	f := newFixture()
	f.p.Set("data-open", "yes")
	change := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "data-open"}

	assert.Equal(t, restyle.Self, classify(build("[data-open]"), f, f.p, change).Hint)
	assert.Equal(t, restyle.None, classify(build("[data-open=no]"), f, f.p, change).Hint)
	assert.Equal(t, restyle.LaterSiblings, classify(build("[data-open] ~ p"), f, f.p, change).Hint)
	assert.Equal(t, restyle.Subtree, classify(build("[data-open] span::before"), f, f.p, change).Hint)

	// every narrowed selector is kept for the descendant check
	res := classify(build("[data-open] > span", "[data-open]:not(.y) span"), f, f.p, change)
	assert.Equal(t, restyle.SomeDescendants, res.Hint)
	assert.Len(t, res.Data.SelectorsForDescendants, 2)

	cased := ruledata.AttributeChange{Namespace: css.NamespaceNone, Name: "viewbox"}
	f.p.Set("viewbox", "0 0 1 1")
	assert.Equal(t, restyle.Self, classify(build("[viewBox]"), f, f.p, cased).Hint)
}

func TestDocumentStates(t *testing.T) {
	assert.Equal(t, css.DocumentState(0), build("p:hover").SelectorDocumentStates())
	d := build(":-moz-locale-dir(rtl) p", "p:not(:-moz-window-inactive)")
	assert.Equal(t, css.DocumentStateRTLLocale|css.DocumentStateWindowInactive, d.SelectorDocumentStates())
}

func TestRulesMatchingPseudo(t *testing.T) {
	f := newFixture()
	d := build("p", "p::before", ".x::before", "p::after")
	assert.Equal(t, 4, d.Len())
	assert.Equal(t, []string{"after", "before"}, d.PseudoElements())

	var plain, before []string
	d.RulesMatching(f.p, f.tree, func(v *rulehash.RuleValue) { plain = append(plain, v.Selector.Text) })
	d.RulesMatchingPseudo(f.p, "before", f.tree, func(v *rulehash.RuleValue) { before = append(before, v.Selector.Text) })
	assert.Equal(t, []string{"p"}, plain)
	assert.Equal(t, []string{"p::before", ".x::before"}, before)

	var none []string
	d.RulesMatchingPseudo(f.p, "marker", f.tree, func(v *rulehash.RuleValue) { none = append(none, v.Selector.Text) })
	assert.Empty(t, none)
}

func TestAtRules(t *testing.T) {
	d := ruledata.New(false)
	first := &css.NamedRule{Kind: css.AtKeyframes, Name: "spin", Body: "from{}"}
	second := &css.NamedRule{Kind: css.AtKeyframes, Name: "spin", Body: "to{}"}
	d.AddAtRule(first)
	d.AddAtRule(second)
	d.AddAtRule(&css.NamedRule{Kind: css.AtCounterStyle, Name: "thumbs"})
	d.AddAtRule(&css.NamedRule{Kind: css.AtFontFace})
	d.AddAtRule(&css.NamedRule{Kind: css.AtPage})

	got, ok := d.KeyframesRuleForName("spin")
	require.True(t, ok)
	assert.Same(t, second, got)
	_, ok = d.KeyframesRuleForName("Spin")
	assert.False(t, ok)
	_, ok = d.CounterStyleRuleForName("thumbs")
	assert.True(t, ok)
	assert.Len(t, d.FontFaceRules(), 1)
	assert.Len(t, d.PageRules(), 1)
	assert.Empty(t, d.FontFeatureValuesRules())
}
