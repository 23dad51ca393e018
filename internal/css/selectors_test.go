package css_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylematch/internal/css"
)

func TestParseSelector_CompoundOrder(t *testing.T) {
	sel := css.MustParseSelector("ul.menu > li + a#home")

	require.Len(t, sel.Compounds, 3)
	subject := sel.Compounds[0]
	assert.Equal(t, "a", subject.Tag)
	assert.Equal(t, []string{"home"}, subject.IDs)
	assert.Equal(t, css.CombinatorNone, subject.Combinator)

	assert.Equal(t, "li", sel.Compounds[1].Tag)
	assert.Equal(t, css.CombinatorAdjacent, sel.Compounds[1].Combinator)

	assert.Equal(t, "ul", sel.Compounds[2].Tag)
	assert.Equal(t, []string{"menu"}, sel.Compounds[2].Classes)
	assert.Equal(t, css.CombinatorChild, sel.Compounds[2].Combinator)
}

func TestParseSelector_DescendantAndSibling(t *testing.T) {
	sel := css.MustParseSelector("div   p ~ span")
	require.Len(t, sel.Compounds, 3)
	assert.Equal(t, css.CombinatorSibling, sel.Compounds[1].Combinator)
	assert.Equal(t, css.CombinatorDescendant, sel.Compounds[2].Combinator)
	assert.Equal(t, "div p ~ span", sel.Text)
}

func TestParseSelector_CasedTag(t *testing.T) {
	sel := css.MustParseSelector("foreignObject")
	assert.Equal(t, "foreignobject", sel.Subject().Tag)
	assert.Equal(t, "foreignObject", sel.Subject().CasedTag)
}

func TestParseSelector_PseudoElement(t *testing.T) {
	sel := css.MustParseSelector("p.note::before")
	require.Len(t, sel.Compounds, 2)
	assert.Equal(t, "before", sel.PseudoElement())
	assert.Equal(t, css.CombinatorPseudoElement, sel.Compounds[1].Combinator)
	assert.Equal(t, "p", sel.Subject().Tag)
	assert.Equal(t, 1, sel.SubjectIndex())

	legacy := css.MustParseSelector("a:after")
	assert.Equal(t, "after", legacy.PseudoElement())

	_, err := css.ParseSelectorList("p::before span", css.DefaultParseContext())
	assert.ErrorIs(t, err, css.ErrUnsupportedSelector)
}

func TestParseSelector_Attributes(t *testing.T) {
	sel := css.MustParseSelector(`a[href^="http" i][data-x][*|lang|=en]`)
	attrs := sel.Subject().Attrs
	require.Len(t, attrs, 3)

	assert.Equal(t, css.AttrBegins, attrs[0].Func)
	assert.Equal(t, "http", attrs[0].Value)
	assert.Equal(t, css.AttrCaseInsensitive, attrs[0].Case)
	assert.Equal(t, css.NamespaceNone, attrs[0].Namespace)

	assert.Equal(t, css.AttrSet, attrs[1].Func)
	assert.Equal(t, "data-x", attrs[1].Name)

	assert.Equal(t, css.NamespaceAny, attrs[2].Namespace)
	assert.Equal(t, css.AttrDashMatch, attrs[2].Func)
}

func TestParseSelector_PseudoClasses(t *testing.T) {
	sel := css.MustParseSelector("li:nth-child(2n+1):hover:not(.a, #b):is(em, strong):lang(en)")
	c := sel.Subject()
	require.Len(t, c.Pseudos, 4)

	nth, ok := c.Pseudos[0].(*css.StructuralPseudo)
	require.True(t, ok)
	assert.Equal(t, css.PseudoNthChild, nth.Kind)
	assert.Equal(t, 2, nth.A)
	assert.Equal(t, 1, nth.B)

	state, ok := c.Pseudos[1].(*css.StatePseudo)
	require.True(t, ok)
	assert.True(t, state.IsHover())
	assert.Equal(t, css.StateHover, c.StateDependence())

	list, ok := c.Pseudos[2].(*css.SelectorListPseudo)
	require.True(t, ok)
	assert.Equal(t, css.PseudoIs, list.Kind)
	assert.Len(t, list.List, 2)

	lang, ok := c.Pseudos[3].(*css.CustomPseudo)
	require.True(t, ok)
	assert.Equal(t, "en", lang.Literal)

	require.Len(t, c.Negations, 2)
	assert.Equal(t, []string{"a"}, c.Negations[0].Classes)
	assert.Equal(t, []string{"b"}, c.Negations[1].IDs)
}

func TestParseSelector_NthForms(t *testing.T) {
	cases := map[string][2]int{
		"odd":     {2, 1},
		"even":    {2, 0},
		"3":       {0, 3},
		"n":       {1, 0},
		"-n+3":    {-1, 3},
		"2n - 1":  {2, -1},
		"+5n+2":   {5, 2},
		"10n-10":  {10, -10},
		" 4n + 0": {4, 0},
	}
	for arg, want := range cases {
		t.Run(arg, func(t *testing.T) {
			sel := css.MustParseSelector("p:nth-of-type(" + arg + ")")
			nth := sel.Subject().Pseudos[0].(*css.StructuralPseudo)
			assert.Equal(t, want[0], nth.A)
			assert.Equal(t, want[1], nth.B)
		})
	}
}

func TestParseSelector_ForgivingLists(t *testing.T) {
	sel := css.MustParseSelector(":is()")
	list := sel.Subject().Pseudos[0].(*css.SelectorListPseudo)
	assert.Empty(t, list.List)

	_, err := css.ParseSelectorList(":-moz-any()", css.DefaultParseContext())
	assert.ErrorIs(t, err, css.ErrUnsupportedSelector)
}

func TestParseSelector_Errors(t *testing.T) {
	for _, text := range []string{"", "a,", "a >", "div:unknown-thing", "a:not(b c)", "[x=]", "ns|a"} {
		_, err := css.ParseSelectorList(text, css.DefaultParseContext())
		assert.Error(t, err, text)
	}
	_, err := css.ParseSelectorList("a, , b", css.DefaultParseContext())
	assert.ErrorIs(t, err, css.ErrEmptySelector)
}

func TestParseSelector_Namespaces(t *testing.T) {
	ctx := css.ParseContext{
		Prefixes:         map[string]int{"svg": css.NamespaceSVG},
		DefaultNamespace: css.NamespaceHTML,
	}
	list, err := css.ParseSelectorList("svg|rect, *|circle, |bare, p", ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, css.NamespaceSVG, list[0].Subject().Namespace)
	assert.Equal(t, css.NamespaceAny, list[1].Subject().Namespace)
	assert.Equal(t, css.NamespaceNone, list[2].Subject().Namespace)
	assert.Equal(t, css.NamespaceHTML, list[3].Subject().Namespace)
}

func TestParseSelector_Host(t *testing.T) {
	sel := css.MustParseSelector(":host(.dark) span")
	host := sel.Compounds[1].Pseudos[0].(*css.SelectorListPseudo)
	assert.Equal(t, css.PseudoHost, host.Kind)
	require.Len(t, host.List, 1)

	bare := css.MustParseSelector(":host")
	assert.Nil(t, bare.Subject().Pseudos[0].(*css.SelectorListPseudo).List)
}

func TestSpecificity(t *testing.T) {
	cases := []struct {
		selector string
		want     css.Specificity
	}{
		{"*", css.Specificity{}},
		{"li", css.Specificity{Elements: 1}},
		{"ul li", css.Specificity{Elements: 2}},
		{"a:hover", css.Specificity{Classes: 1, Elements: 1}},
		{"#x .y[z]", css.Specificity{IDs: 1, Classes: 2}},
		{"p::before", css.Specificity{Elements: 2}},
		{":not(#a, .b)", css.Specificity{IDs: 1}},
		{":not(#a):not(.b)", css.Specificity{IDs: 1, Classes: 1}},
		{":is(#a, .b)", css.Specificity{IDs: 1}},
		{":where(#a, .b)", css.Specificity{}},
		{"li:nth-child(2n)", css.Specificity{Classes: 1, Elements: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.selector, func(t *testing.T) {
			assert.Equal(t, tc.want, css.MustParseSelector(tc.selector).Specificity())
		})
	}
}

func TestSpecificityWeightRoundTrip(t *testing.T) {
	s := css.Specificity{IDs: 2, Classes: 5, Elements: 7}
	assert.Equal(t, s, css.SpecificityFromWeight(s.Weight()))
	assert.Greater(t, css.Specificity{IDs: 1}.Weight(), css.Specificity{Classes: 1000}.Weight())

	saturated := css.Specificity{Classes: 5000}
	assert.Equal(t, 1023, css.SpecificityFromWeight(saturated.Weight()).Classes)
}

func TestEventStateParseAndString(t *testing.T) {
	s, ok := css.ParseEventState("hover|focus")
	require.True(t, ok)
	assert.True(t, s.Has(css.StateHover|css.StateFocus))
	assert.Equal(t, "focus|hover", s.String())

	_, ok = css.ParseEventState("hover|bogus")
	assert.False(t, ok)
}
