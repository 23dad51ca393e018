package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/match"
)

func newContext(doc html.Document) *match.TreeMatchContext {
	return match.NewTreeMatchContext(match.ForDocument(doc))
}

func matches(el html.Element, selector string, tree *match.TreeMatchContext) bool {
	return match.Matches(el, css.MustParseSelector(selector), tree)
}

func TestSelectorMatches_TagCase(t *testing.T) {
	htmlDoc := html.NewTree(true)
	div := htmlDoc.CreateElement("div")
	htmlDoc.SetRoot(div)
	assert.True(t, matches(div, "DIV", newContext(htmlDoc)))

	xmlDoc := html.NewTree(false)
	foo := xmlDoc.CreateElement("Foo")
	xmlDoc.SetRoot(foo)
	tree := newContext(xmlDoc)
	assert.True(t, matches(foo, "Foo", tree))
	assert.False(t, matches(foo, "foo", tree))
}

func TestSelectorMatches_IDAndClassQuirks(t *testing.T) {
	doc := html.NewTree(true)
	el := doc.CreateElement("p").Set("id", "main").Set("class", "Big note")
	doc.SetRoot(el)

	tree := newContext(doc)
	assert.True(t, matches(el, "#main.Big.note", tree))
	assert.False(t, matches(el, "#Main", tree))
	assert.False(t, matches(el, ".big", tree))
	assert.False(t, matches(el, "#main#other", tree))

	doc.SetQuirks(true)
	quirks := newContext(doc)
	assert.True(t, matches(el, "#MAIN", quirks))
	assert.True(t, matches(el, ".big.NOTE", quirks))
}

func TestSelectorMatches_Attributes(t *testing.T) {
	doc := html.NewTree(true)
	el := doc.CreateElement("input").
		Set("type", "Text").
		Set("data-words", "alpha beta\tgamma").
		Set("lang", "en-GB").
		Set("data-empty", "").
		SetNS(css.NamespaceXLink, "href", "#target")
	doc.SetRoot(el)
	tree := newContext(doc)

	tests := []struct {
		selector string
		want     bool
	}{
		{"[type]", true},
		{"[TYPE]", true},
		{"[type=text]", true}, // type is case-insensitive on HTML elements
		{"[type=text s]", false},
		{"[data-words~=beta]", true},
		{"[data-words~=gamma]", true},
		{"[data-words~=bet]", false},
		{"[data-words^=alp]", true},
		{"[data-words$=mma]", true},
		{"[data-words*='a b']", true},
		{"[data-words*=ALPHA]", false},
		{"[data-words*=ALPHA i]", true},
		{"[lang|=en]", true},
		{"[lang|=en-gb]", true},
		{"[lang|=e]", false},
		{"[data-empty]", true},
		{"[data-empty='']", true},
		{"[data-empty~='']", false},
		{"[data-empty^='']", false},
		{"[data-empty$='']", false},
		{"[data-empty*='']", false},
		{"[href]", false},
		{"[*|href]", true},
		{"[*|href='#target']", true},
		{"[missing]", false},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(el, tt.selector, tree))
		})
	}
}

func TestSelectorMatches_Namespace(t *testing.T) {
	doc := html.NewTree(true)
	svg := doc.CreateElementNS(css.NamespaceSVG, "svg")
	rect := doc.CreateElementNS(css.NamespaceSVG, "rect")
	doc.SetRoot(doc.CreateElement("html").Append(svg.Append(rect)))

	ctx := css.DefaultParseContext()
	ctx.Prefixes = map[string]int{"svg": css.NamespaceSVG, "h": css.NamespaceHTML}
	tree := newContext(doc)

	sel, err := css.ParseSelectorList("svg|rect", ctx)
	require.NoError(t, err)
	assert.True(t, match.Matches(rect, sel[0], tree))

	sel, err = css.ParseSelectorList("h|rect", ctx)
	require.NoError(t, err)
	assert.False(t, match.Matches(rect, sel[0], tree))
}

// buildChain returns .a > .b > .b > .c and the siblings x, y, w, y, z.
func buildChain() (*html.Tree, *html.Node, *html.Node) {
	doc := html.NewTree(true)
	c := doc.CreateElement("span").Set("class", "c")
	z := doc.CreateElement("i").Set("class", "z")
	doc.SetRoot(doc.CreateElement("html").Append(
		doc.CreateElement("div").Set("class", "a").Append(
			doc.CreateElement("div").Set("class", "b").Append(
				doc.CreateElement("div").Set("class", "b").Append(c),
			),
		),
		doc.CreateElement("ol").Append(
			doc.CreateElement("i").Set("class", "x"),
			doc.CreateElement("i").Set("class", "y"),
			doc.CreateElement("i").Set("class", "w"),
			doc.CreateElement("i").Set("class", "y"),
			z,
		),
	))
	return doc, c, z
}

func TestSelectorMatchesTree_Combinators(t *testing.T) {
	doc, c, z := buildChain()
	tree := newContext(doc)

	assert.True(t, matches(c, ".a .c", tree))
	assert.True(t, matches(c, ".b > .c", tree))
	assert.False(t, matches(c, ".a > .c", tree))
	assert.True(t, matches(c, "html .a .b .b .c", tree))
	assert.False(t, matches(c, ".b .b .b .c", tree))

	assert.True(t, matches(z, ".y + .z", tree))
	assert.False(t, matches(z, ".w + .z", tree))
	assert.True(t, matches(z, ".x ~ .z", tree))
	assert.True(t, matches(z, "ol > .x ~ .z", tree))
	assert.False(t, matches(z, "div .z", tree))
}

func TestSelectorMatchesTree_GreedyBacktracking(t *testing.T) {
	doc, c, z := buildChain()
	tree := newContext(doc)

	// the nearest .b fails "> .a"; the walk must retry from the outer .b
	assert.True(t, matches(c, ".a > .b .c", tree))
	// the nearest .y is preceded by .w; the earlier .y is preceded by .x
	assert.True(t, matches(z, ".x + .y ~ .z", tree))
	assert.False(t, matches(z, ".w + .x ~ .z", tree))
}

func TestStructuralPseudoClasses(t *testing.T) {
	doc := html.NewTree(true)
	var items []*html.Node
	list := doc.CreateElement("ul")
	for i := 0; i < 5; i++ {
		items = append(items, doc.CreateElement("li"))
	}
	em := doc.CreateElement("em")
	list.Append(items[0], items[1], em, items[2], items[3], items[4])
	empty := doc.CreateElement("p")
	spaces := doc.CreateElement("p").Append(doc.Text(" \n\t"))
	doc.SetRoot(doc.CreateElement("html").Append(list, empty, spaces))
	tree := newContext(doc)

	assert.True(t, matches(items[0], "li:first-child", tree))
	assert.False(t, matches(items[1], "li:first-child", tree))
	assert.True(t, matches(items[4], ":last-child", tree))
	assert.True(t, matches(em, "em:only-of-type", tree))
	assert.False(t, matches(em, ":only-child", tree))
	assert.True(t, matches(items[2], "li:nth-child(4)", tree))
	assert.True(t, matches(items[2], "li:nth-of-type(3)", tree))
	assert.True(t, matches(items[2], "li:nth-of-type(odd)", tree))
	assert.False(t, matches(items[1], "li:nth-of-type(odd)", tree))
	assert.True(t, matches(items[3], "li:nth-last-child(2)", tree))
	assert.True(t, matches(items[3], "li:nth-last-of-type(2)", tree))
	assert.True(t, matches(items[1], ":nth-child(-n+2)", tree))
	assert.False(t, matches(em, ":nth-child(-n+2)", tree))
	assert.True(t, matches(items[4], "li:last-of-type", tree))
	assert.True(t, matches(items[0], "li:first-of-type", tree))

	assert.True(t, matches(doc.Root(), ":root", tree))
	assert.False(t, matches(list, ":root", tree))
	assert.True(t, matches(doc.Root(), ":scope", tree))

	assert.True(t, matches(empty, "p:empty", tree))
	assert.False(t, matches(spaces, "p:empty", tree))
	assert.True(t, matches(spaces, "p:-moz-only-whitespace", tree))
	assert.False(t, matches(list, ":-moz-only-whitespace", tree))
}

func TestNthCacheReset(t *testing.T) {
	doc := html.NewTree(true)
	first := doc.CreateElement("li")
	second := doc.CreateElement("li")
	list := doc.CreateElement("ul").Append(first, second)
	doc.SetRoot(list)
	tree := newContext(doc)

	require.True(t, matches(second, ":nth-child(2)", tree))
	first.Remove()
	tree.ResetNthCache()
	assert.True(t, matches(second, ":first-child", tree))
}

func TestScopeElement(t *testing.T) {
	doc := html.NewTree(true)
	section := doc.CreateElement("section")
	p := doc.CreateElement("p")
	doc.SetRoot(doc.CreateElement("html").Append(section.Append(p)))

	opts := match.ForDocument(doc)
	opts.Scope = section
	tree := match.NewTreeMatchContext(opts)
	assert.True(t, matches(p, ":scope > p", tree))
	assert.False(t, matches(doc.Root(), ":scope", tree))
}

func TestStatePseudoClasses(t *testing.T) {
	doc := html.NewTree(true)
	div := doc.CreateElement("div").SetStates(css.StateHover | css.StateFocus)
	link := doc.CreateElement("a").SetLink(true).SetStates(css.StateHover | css.StateUnvisited)
	doc.SetRoot(doc.CreateElement("html").Append(div, link))

	tree := newContext(doc)
	assert.True(t, matches(div, ":hover", tree))
	assert.True(t, matches(div, "div:hover:focus", tree))
	assert.False(t, matches(div, ":active", tree))
	assert.True(t, matches(link, ":link:hover", tree))
	assert.True(t, matches(link, ":any-link", tree))
	assert.False(t, matches(div, ":any-link", tree))

	doc.SetQuirks(true)
	quirks := newContext(doc)
	assert.False(t, matches(div, ":hover", quirks), "bare :hover only matches links in quirks mode")
	assert.True(t, matches(div, "div:hover", quirks))
	assert.True(t, matches(div, ":hover:focus", quirks))
	assert.True(t, matches(link, ":hover", quirks))
}

func TestStateMaskDependence(t *testing.T) {
	doc := html.NewTree(true)
	div := doc.CreateElement("div").Set("class", "x")
	doc.SetRoot(div)
	tree := newContext(doc)
	mask := match.NodeMatchContext{StateMask: css.StateHover}

	assert.False(t, matches(div, ".x:hover", tree))
	assert.True(t, match.MatchesWithState(div, css.MustParseSelector(".x:hover"), tree, mask, match.FlagUnknown))
	// a negated state test also depends on the mask
	assert.True(t, match.MatchesWithState(div, css.MustParseSelector(".x:not(:hover)"), tree, mask, match.FlagUnknown))
	assert.False(t, match.MatchesWithState(div, css.MustParseSelector(".y:hover"), tree, mask, match.FlagUnknown))
}

func TestNegation(t *testing.T) {
	doc := html.NewTree(true)
	p := doc.CreateElement("p").Set("class", "a")
	doc.SetRoot(p)
	tree := newContext(doc)

	assert.True(t, matches(p, "p:not(.b)", tree))
	assert.False(t, matches(p, "p:not(.a)", tree))
	assert.False(t, matches(p, "p:not(.b, .a)", tree))
	assert.True(t, matches(p, ":not(div):not(span)", tree))
}

func TestSelectorListPseudoClasses(t *testing.T) {
	doc := html.NewTree(true)
	span := doc.CreateElement("span").Set("class", "x")
	doc.SetRoot(doc.CreateElement("html").Append(doc.CreateElement("div").Append(span)))
	tree := newContext(doc)

	assert.True(t, matches(span, ":is(.y, .x)", tree))
	assert.True(t, matches(span, ":where(div span)", tree))
	assert.True(t, matches(span, ":matches(p, span)", tree))
	assert.False(t, matches(span, ":is(p > span)", tree))
	assert.True(t, matches(span, ":-moz-any(span)", tree))
	assert.False(t, matches(span, ":is()", tree), "an empty forgiving list matches nothing")

	assert.False(t, match.SelectorListMatches(span, nil, match.NodeMatchContext{}, tree, match.FlagPseudoClassArg, true))
	assert.Panics(t, func() {
		match.SelectorListMatches(span, nil, match.NodeMatchContext{}, tree, match.FlagPseudoClassArg, false)
	})
}

func TestLangPseudoClass(t *testing.T) {
	doc := html.NewTree(true)
	doc.SetContentLanguage("de-AT, fr")
	inner := doc.CreateElement("b")
	tagged := doc.CreateElement("p").Set("lang", "EN-us").Append(inner)
	plain := doc.CreateElement("p")
	doc.SetRoot(doc.CreateElement("html").Append(tagged, plain))
	tree := newContext(doc)

	assert.True(t, matches(inner, ":lang(en)", tree))
	assert.True(t, matches(inner, ":lang(en-US)", tree))
	assert.False(t, matches(inner, ":lang(de)", tree), "an explicit lang wins over Content-Language")
	assert.True(t, matches(plain, ":lang(de)", tree))
	assert.True(t, matches(plain, ":lang(fr)", tree))
	assert.False(t, matches(plain, ":lang(it)", tree))
}

func TestDocumentStatePseudoClasses(t *testing.T) {
	doc := html.NewTree(true)
	root := doc.CreateElement("html")
	doc.SetRoot(root)

	tree := newContext(doc)
	assert.True(t, matches(root, ":-moz-locale-dir(ltr)", tree))
	assert.False(t, matches(root, ":-moz-locale-dir(rtl)", tree))
	assert.False(t, matches(root, ":-moz-window-inactive", tree))
	assert.True(t, matches(root, ":-moz-is-html", tree))

	doc.SetState(css.DocumentStateRTLLocale | css.DocumentStateWindowInactive)
	tree = newContext(doc)
	assert.True(t, matches(root, ":-moz-locale-dir(rtl)", tree))
	assert.True(t, matches(root, ":-moz-window-inactive", tree))

	svg := doc.CreateElementNS(css.NamespaceSVG, "svg")
	root.Append(svg)
	assert.False(t, matches(svg, ":-moz-is-html", tree))
}

func TestDirPseudoClass(t *testing.T) {
	doc := html.NewTree(true)
	el := doc.CreateElement("p").SetStates(css.StateRTL)
	doc.SetRoot(el)
	tree := newContext(doc)
	assert.True(t, matches(el, ":dir(rtl)", tree))
	assert.False(t, matches(el, ":dir(ltr)", tree))
}

func buildShadow() (doc *html.Tree, host, inner, light *html.Node) {
	doc = html.NewTree(true)
	host = doc.CreateElement("my-card").Set("class", "card")
	inner = doc.CreateElement("span")
	slot := doc.CreateElement("slot")
	host.AttachShadow().Append(inner, slot)
	light = doc.CreateElement("b").AssignTo(slot)
	doc.SetRoot(doc.CreateElement("html").Set("class", "dark").Append(
		doc.CreateElement("body").Append(host.Append(light)),
	))
	return doc, host, inner, light
}

func TestHostPseudoClass(t *testing.T) {
	doc, host, inner, _ := buildShadow()
	opts := match.ForDocument(doc)
	opts.ScopeHost = host
	tree := match.NewTreeMatchContext(opts)

	assert.True(t, matches(host, ":host", tree))
	assert.True(t, matches(host, ":host(.card)", tree))
	assert.False(t, matches(host, ":host(.other)", tree))
	assert.False(t, matches(host, "my-card", tree), "the host is featureless for its shadow styles")
	assert.False(t, matches(host, ".card", tree))
	assert.True(t, matches(host, ":host-context(.dark)", tree))
	assert.False(t, matches(host, ":host-context(.light)", tree))

	assert.True(t, matches(inner, ":host > span", tree))
	assert.True(t, matches(inner, ":host(my-card) span", tree))
	assert.False(t, matches(inner, "body span", tree), "only the host is reachable across the boundary")
	assert.False(t, matches(inner, "my-card > span", tree))
}

func TestHostPseudoClass_WithoutScopeHost(t *testing.T) {
	doc, host, inner, _ := buildShadow()
	tree := newContext(doc)

	assert.False(t, matches(host, ":host", tree))
	assert.True(t, matches(inner, ":host span", tree))
}

func TestSlottedLightChildMatchesLightTree(t *testing.T) {
	doc, _, _, light := buildShadow()
	tree := newContext(doc)
	assert.True(t, matches(light, ".card > b", tree))
	assert.True(t, matches(light, "body b", tree))
}

func TestMatches_PseudoElementUsesOriginatingElement(t *testing.T) {
	doc := html.NewTree(true)
	p := doc.CreateElement("p").Set("class", "x")
	doc.SetRoot(doc.CreateElement("html").Append(p))
	tree := newContext(doc)

	assert.True(t, matches(p, "html > p.x::before", tree))
	assert.False(t, matches(p, "div::before", tree))
}

const oracleDocument = `<!DOCTYPE html>
<html><head><title>t</title></head><body>
<div id="main" class="wrap">
  <h1>Title</h1>
  <p class="intro">one</p>
  <p>two <span class="x">s1</span><span>s2</span></p>
  <ul><li>a</li><li class="x">b</li><li>c</li><li data-x="abc">d</li></ul>
  <ol><li>only</li></ol>
  <p class="e"></p>
  <a href="/doc.pdf" lang="en-US">pdf</a>
</div>
<section><div><p><span>deep</span></p></div></section>
</body></html>`

func TestMatches_AgreesWithCascadia(t *testing.T) {
	doc, err := html.NewParser(nil).Parse(oracleDocument)
	require.NoError(t, err)
	all, err := doc.QuerySelectorAll("*")
	require.NoError(t, err)
	require.NotEmpty(t, all)

	selectors := []string{
		"p", "div p", "div > p", "#main p.intro", "ul > li:first-child",
		"li:nth-child(2n+1)", "li:nth-last-child(2)", "h1 + p", "h1 ~ p",
		"[data-x]", "[data-x^=ab]", "[data-x$=bc]", "[data-x*=b]", "[lang|=en]",
		"a[href$='.pdf']", "p:not(.intro)", "p:empty", "span:first-of-type",
		"span:last-of-type", "div p span", "section > div > p > span",
		"body > * > p", ":root", "li:only-child", "*:nth-of-type(2)", ".wrap .x",
		"p:nth-of-type(odd)", "li:not(:first-child)", "div ~ section span",
		"head + body", "ul li + li ~ li",
	}
	tree := newContext(doc)
	for _, selector := range selectors {
		sel := css.MustParseSelector(selector)
		for _, el := range all {
			want, err := el.(*html.GoQueryNode).Matches(selector)
			require.NoError(t, err, selector)
			assert.Equal(t, want, match.Matches(el, sel, tree), "%s on %s", selector, el)
		}
	}
}
