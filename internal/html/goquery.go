package html

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"stylematch/internal/css"
)

// GoQueryDocument wraps goquery.Document to implement the Document interface.
// Declarative shadow roots (<template shadowrootmode>) become shadow trees
// of their parent element.
type GoQueryDocument struct {
	doc      *goquery.Document
	ns       *css.Namespaces
	nodes    map[*html.Node]*GoQueryNode
	states   map[*html.Node]css.EventState
	language string
	state    css.DocumentState
	quirks   bool
}

// GoQueryNode wraps an element node of a GoQueryDocument
type GoQueryNode struct {
	node *html.Node
	doc  *GoQueryDocument
}

// GoQueryParser creates GoQueryDocuments
type GoQueryParser struct {
	ns *css.Namespaces
}

// NewParser creates a new GoQuery-based HTML parser. Namespace ids are
// taken from ns so they agree with the stylesheet parser.
func NewParser(ns *css.Namespaces) *GoQueryParser {
	if ns == nil {
		ns = css.NewNamespaces()
	}
	return &GoQueryParser{ns: ns}
}

// Parse parses HTML string into a Document
func (p *GoQueryParser) Parse(htmlStr string) (*GoQueryDocument, error) {
	return p.ParseReader(strings.NewReader(htmlStr))
}

// ParseReader parses HTML from r
func (p *GoQueryParser) ParseReader(r io.Reader) (*GoQueryDocument, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return p.wrap(doc), nil
}

// ParseFile parses HTML file into a Document
func (p *GoQueryParser) ParseFile(filename string) (*GoQueryDocument, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	defer f.Close()

	doc, err := p.ParseReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML file: %w", err)
	}
	return doc, nil
}

func (p *GoQueryParser) wrap(doc *goquery.Document) *GoQueryDocument {
	d := &GoQueryDocument{
		doc:    doc,
		ns:     p.ns,
		nodes:  make(map[*html.Node]*GoQueryNode),
		states: make(map[*html.Node]css.EventState),
		quirks: true,
	}
	for c := doc.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.DoctypeNode && strings.EqualFold(c.Data, "html") {
			d.quirks = false
		}
	}
	if meta := doc.Find(`meta[http-equiv="content-language" i]`).First(); meta.Length() > 0 {
		d.language, _ = meta.Attr("content")
	}
	return d
}

// Document implementation

// Root returns the root HTML element
func (d *GoQueryDocument) Root() Element {
	for c := d.doc.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrapNode(c)
		}
	}
	return nil
}

func (d *GoQueryDocument) IsHTML() bool             { return true }
func (d *GoQueryDocument) Quirks() bool             { return d.quirks }
func (d *GoQueryDocument) ContentLanguage() string  { return d.language }
func (d *GoQueryDocument) State() css.DocumentState { return d.state }

// SetDocumentState replaces the document state bits.
func (d *GoQueryDocument) SetDocumentState(state css.DocumentState) { d.state = state }

// SetQuirks overrides the doctype-derived quirks mode.
func (d *GoQueryDocument) SetQuirks(quirks bool) { d.quirks = quirks }

// Selection exposes the underlying goquery document.
func (d *GoQueryDocument) Selection() *goquery.Selection {
	return d.doc.Selection
}

// Element returns the Element for an element node of this document.
func (d *GoQueryDocument) Element(n *html.Node) Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return d.wrapNode(n)
}

func (d *GoQueryDocument) wrapNode(n *html.Node) *GoQueryNode {
	if w, ok := d.nodes[n]; ok {
		return w
	}
	w := &GoQueryNode{node: n, doc: d}
	d.nodes[n] = w
	return w
}

// QuerySelectorAll returns all elements matching the selector, evaluated
// by cascadia through goquery.
func (d *GoQueryDocument) QuerySelectorAll(selector string) ([]Element, error) {
	var (
		nodes []Element
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("invalid selector %q: %v", selector, r)
			}
		}()
		d.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			nodes = append(nodes, d.wrapNode(s.Get(0)))
		})
	}()
	return nodes, err
}

// StyleSheets returns the text of every <style> element in document order.
func (d *GoQueryDocument) StyleSheets() []string {
	var sheets []string
	d.doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		sheets = append(sheets, s.Text())
	})
	return sheets
}

// LinkedStyleSheets returns the href of every <link rel=stylesheet>.
func (d *GoQueryDocument) LinkedStyleSheets() []string {
	var hrefs []string
	d.doc.Find("link[rel~=stylesheet i][href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hrefs = append(hrefs, href)
	})
	return hrefs
}

// SetState adds dynamic state bits (hover, focus, ...) to an element on
// top of the attribute-derived ones.
func (d *GoQueryDocument) SetState(el Element, state css.EventState) {
	if n, ok := el.(*GoQueryNode); ok && n.doc == d {
		d.states[n.node] = state
	}
}

// ToggleState flips dynamic state bits of el.
func (d *GoQueryDocument) ToggleState(el Element, state css.EventState) {
	if n, ok := el.(*GoQueryNode); ok && n.doc == d {
		d.states[n.node] ^= state
	}
}

// SetAttribute sets or, when present is false, removes the plain attribute
// name of el and returns its previous value.
func (d *GoQueryDocument) SetAttribute(el Element, name, value string, present bool) (old string, oldPresent bool) {
	n, ok := el.(*GoQueryNode)
	if !ok || n.doc != d {
		return "", false
	}
	old, oldPresent = n.Attribute(css.NamespaceNone, name)
	sel := d.doc.FindNodes(n.node)
	if present {
		sel.SetAttr(name, value)
	} else {
		sel.RemoveAttr(name)
	}
	return old, oldPresent
}

// HTML returns the complete HTML document as string
func (d *GoQueryDocument) HTML() (string, error) {
	out, err := d.doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return out, nil
}

// Node implementation

// Node returns the wrapped x/net/html node.
func (n *GoQueryNode) Node() *html.Node { return n.node }

// LocalName returns the element's tag name
func (n *GoQueryNode) LocalName() string { return n.node.Data }

func (n *GoQueryNode) NamespaceID() int {
	switch n.node.Namespace {
	case "":
		return css.NamespaceHTML
	case "svg":
		return css.NamespaceSVG
	case "math":
		return css.NamespaceMathML
	}
	return n.doc.ns.ID(n.node.Namespace)
}

// ID returns the element's ID attribute
func (n *GoQueryNode) ID() string {
	id, _ := n.Attribute(css.NamespaceNone, "id")
	return id
}

// Classes returns the element's class list
func (n *GoQueryNode) Classes() []string {
	class, ok := n.Attribute(css.NamespaceNone, "class")
	if !ok {
		return nil
	}
	return strings.Fields(class)
}

func attrNamespace(prefix string) int {
	switch prefix {
	case "":
		return css.NamespaceNone
	case "xml":
		return css.NamespaceXML
	case "xlink":
		return css.NamespaceXLink
	case "xmlns":
		return css.NamespaceAny - 1 // never selected by namespace
	}
	return css.NamespaceNone
}

func (n *GoQueryNode) Attribute(ns int, name string) (string, bool) {
	for _, a := range n.node.Attr {
		if a.Key != name {
			continue
		}
		if ns == css.NamespaceAny || attrNamespace(a.Namespace) == ns {
			return a.Val, true
		}
	}
	return "", false
}

func (n *GoQueryNode) AttributeValues(name string) []string {
	var values []string
	for _, a := range n.node.Attr {
		if a.Key == name {
			values = append(values, a.Val)
		}
	}
	return values
}

// Attributes returns all attributes as a map
func (n *GoQueryNode) Attributes() map[string]string {
	attrs := make(map[string]string, len(n.node.Attr))
	for _, a := range n.node.Attr {
		attrs[a.Key] = a.Val
	}
	return attrs
}

func isShadowTemplate(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Template {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "shadowrootmode" || a.Key == "shadowroot" {
			return true
		}
	}
	return false
}

// Parent returns the parent element
func (n *GoQueryNode) Parent() Element {
	p := n.node.Parent
	if p == nil || p.Type != html.ElementNode || isShadowTemplate(p) {
		return nil
	}
	return n.doc.wrapNode(p)
}

func elementSibling(n *html.Node, next bool) *html.Node {
	for {
		if next {
			n = n.NextSibling
		} else {
			n = n.PrevSibling
		}
		if n == nil {
			return nil
		}
		if n.Type == html.ElementNode && !isShadowTemplate(n) {
			return n
		}
	}
}

func (n *GoQueryNode) PreviousSiblingElement() Element {
	if s := elementSibling(n.node, false); s != nil {
		return n.doc.wrapNode(s)
	}
	return nil
}

func (n *GoQueryNode) NextSiblingElement() Element {
	if s := elementSibling(n.node, true); s != nil {
		return n.doc.wrapNode(s)
	}
	return nil
}

func (n *GoQueryNode) FirstChildElement() Element {
	for c := n.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !isShadowTemplate(c) {
			return n.doc.wrapNode(c)
		}
	}
	return nil
}

func (n *GoQueryNode) EachChild(fn func(el Element, text string) bool) {
	for c := n.node.FirstChild; c != nil; c = c.NextSibling {
		var ok bool
		switch {
		case c.Type == html.ElementNode && !isShadowTemplate(c):
			ok = fn(n.doc.wrapNode(c), "")
		case c.Type == html.TextNode:
			ok = fn(nil, c.Data)
		default:
			continue
		}
		if !ok {
			return
		}
	}
}

// State combines attribute-derived states with states set on the document.
func (n *GoQueryNode) State() css.EventState {
	state := n.doc.states[n.node]
	if n.IsLink() {
		if !state.HasAny(css.StateVisited) {
			state |= css.StateUnvisited
		}
	}
	if n.node.Namespace != "" {
		return state
	}
	_, disabled := n.Attribute(css.NamespaceNone, "disabled")
	switch n.node.DataAtom {
	case atom.Input, atom.Select, atom.Textarea, atom.Button, atom.Fieldset, atom.Option, atom.Optgroup:
		if disabled {
			state |= css.StateDisabled
		} else {
			state |= css.StateEnabled
		}
	}
	switch n.node.DataAtom {
	case atom.Input, atom.Select, atom.Textarea:
		if _, ok := n.Attribute(css.NamespaceNone, "required"); ok {
			state |= css.StateRequired
		} else {
			state |= css.StateOptional
		}
	}
	switch n.node.DataAtom {
	case atom.Input, atom.Textarea:
		if _, ok := n.Attribute(css.NamespaceNone, "readonly"); ok || disabled {
			state |= css.StateReadOnly
		} else {
			state |= css.StateReadWrite
		}
	}
	if n.node.DataAtom == atom.Input {
		if _, ok := n.Attribute(css.NamespaceNone, "checked"); ok {
			state |= css.StateChecked
		}
	}
	if n.node.DataAtom == atom.Option {
		if _, ok := n.Attribute(css.NamespaceNone, "selected"); ok {
			state |= css.StateChecked
		}
	}
	if dir, ok := n.Attribute(css.NamespaceNone, "dir"); ok {
		if strings.EqualFold(dir, "rtl") {
			state |= css.StateRTL
		} else {
			state |= css.StateLTR
		}
	}
	return state
}

// IsLink reports whether the element is a hyperlink (a, area or link with href)
func (n *GoQueryNode) IsLink() bool {
	if n.node.Namespace != "" {
		return false
	}
	switch n.node.DataAtom {
	case atom.A, atom.Area, atom.Link:
		_, ok := n.Attribute(css.NamespaceNone, "href")
		return ok
	}
	return false
}

func (n *GoQueryNode) shadowTemplate() *html.Node {
	for c := n.node.FirstChild; c != nil; c = c.NextSibling {
		if isShadowTemplate(c) {
			return c
		}
	}
	return nil
}

func (n *GoQueryNode) ShadowHost() Element {
	p := n.node.Parent
	if p == nil || !isShadowTemplate(p) || p.Parent == nil {
		return nil
	}
	return n.doc.wrapNode(p.Parent)
}

func (n *GoQueryNode) IsShadowHost() bool {
	return n.shadowTemplate() != nil
}

// AssignedSlot finds the <slot> in the parent's shadow tree whose name
// equals the element's slot attribute (the unnamed slot when absent).
func (n *GoQueryNode) AssignedSlot() Element {
	p := n.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	tmpl := n.doc.wrapNode(p).shadowTemplate()
	if tmpl == nil {
		return nil
	}
	want, _ := n.Attribute(css.NamespaceNone, "slot")
	var found *html.Node
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		for ; c != nil && found == nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.DataAtom == atom.Slot {
				name := ""
				for _, a := range c.Attr {
					if a.Key == "name" {
						name = a.Val
					}
				}
				if name == want {
					found = c
					return
				}
			}
			if !isShadowTemplate(c) {
				visit(c.FirstChild)
			}
		}
	}
	visit(tmpl.FirstChild)
	if found == nil {
		return nil
	}
	return n.doc.wrapNode(found)
}

func (n *GoQueryNode) OwnerDocument() Document { return n.doc }

// Text returns the text content
func (n *GoQueryNode) Text() string {
	return goquery.NewDocumentFromNode(n.node).Text()
}

// OuterHTML returns the outer HTML content
func (n *GoQueryNode) OuterHTML() string {
	var buf strings.Builder
	if err := html.Render(&buf, n.node); err != nil {
		return ""
	}
	return buf.String()
}

// Matches checks the element against a selector with cascadia, through
// goquery's Is(). It serves as an independent reference for the engine.
func (n *GoQueryNode) Matches(selector string) (matched bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invalid selector %q: %v", selector, r)
		}
	}()
	return goquery.NewDocumentFromNode(n.node).Is(selector), nil
}

func (n *GoQueryNode) String() string {
	var b strings.Builder
	b.WriteString(n.node.Data)
	if id := n.ID(); id != "" {
		b.WriteByte('#')
		b.WriteString(id)
	}
	for _, c := range n.Classes() {
		b.WriteByte('.')
		b.WriteString(c)
	}
	return b.String()
}
