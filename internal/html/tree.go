package html

import (
	"strings"

	"stylematch/internal/css"
)

// Tree is an in-memory document. It is mutable through the Node setters and
// supports shadow roots and explicit state bits; tests and the restyle
// tooling build documents with it directly.
type Tree struct {
	root     *Node
	html     bool
	quirks   bool
	language string
	state    css.DocumentState
}

// NewTree creates an empty document. isHTML selects HTML document semantics
// (case-insensitive tag and attribute names for HTML elements).
func NewTree(isHTML bool) *Tree {
	return &Tree{html: isHTML}
}

// Root returns the document element
func (t *Tree) Root() Element {
	if t.root == nil {
		return nil
	}
	return t.root
}

func (t *Tree) IsHTML() bool             { return t.html }
func (t *Tree) Quirks() bool             { return t.quirks }
func (t *Tree) ContentLanguage() string  { return t.language }
func (t *Tree) State() css.DocumentState { return t.state }

// SetQuirks switches the document into quirks mode.
func (t *Tree) SetQuirks(quirks bool) { t.quirks = quirks }

// SetContentLanguage sets the Content-Language fallback used by :lang().
func (t *Tree) SetContentLanguage(lang string) { t.language = lang }

// SetState replaces the document state bits.
func (t *Tree) SetState(state css.DocumentState) { t.state = state }

// SetRoot installs the document element.
func (t *Tree) SetRoot(n *Node) *Node {
	n.detach()
	t.root = n
	return n
}

// CreateElement creates an HTML element.
func (t *Tree) CreateElement(name string) *Node {
	return t.CreateElementNS(css.NamespaceHTML, name)
}

// CreateElementNS creates an element in the given namespace.
func (t *Tree) CreateElementNS(ns int, name string) *Node {
	return &Node{doc: t, local: name, ns: ns}
}

// Attr is one stored attribute
type Attr struct {
	Namespace int
	Name      string
	Value     string
}

// Node is an element or text node of a Tree.
type Node struct {
	doc    *Tree
	parent *Node
	host   *Node // set on the shadow root fragment
	text   *string

	local    string
	ns       int
	attrs    []Attr
	state    css.EventState
	link     bool
	children []*Node

	shadow *Node // shadow root fragment of a host
	slot   *Node
}

// Element builder helpers

// Append adds children (elements or fragments created by Text) and returns n.
func (n *Node) Append(children ...*Node) *Node {
	for _, c := range children {
		c.detach()
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// Text creates a text node.
func (t *Tree) Text(data string) *Node {
	return &Node{doc: t, text: &data}
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	n.detach()
}

func (n *Node) detach() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// Set sets a plain attribute and returns n.
func (n *Node) Set(name, value string) *Node {
	return n.SetNS(css.NamespaceNone, name, value)
}

// SetNS sets an attribute in a namespace and returns n.
func (n *Node) SetNS(ns int, name, value string) *Node {
	for i := range n.attrs {
		if n.attrs[i].Namespace == ns && n.attrs[i].Name == name {
			n.attrs[i].Value = value
			return n
		}
	}
	n.attrs = append(n.attrs, Attr{Namespace: ns, Name: name, Value: value})
	return n
}

// Unset removes a plain attribute.
func (n *Node) Unset(name string) *Node {
	for i := range n.attrs {
		if n.attrs[i].Namespace == css.NamespaceNone && n.attrs[i].Name == name {
			n.attrs = append(n.attrs[:i:i], n.attrs[i+1:]...)
			break
		}
	}
	return n
}

// SetStates replaces the element's event state bits.
func (n *Node) SetStates(state css.EventState) *Node {
	n.state = state
	return n
}

// SetLink marks the element as a hyperlink.
func (n *Node) SetLink(link bool) *Node {
	n.link = link
	return n
}

// AttachShadow returns the shadow root fragment of n, creating it on first
// use. Children appended to the fragment form the shadow tree.
func (n *Node) AttachShadow() *Node {
	if n.shadow == nil {
		n.shadow = &Node{doc: n.doc, host: n}
	}
	return n.shadow
}

// AssignTo assigns n (a light-tree child of a host) to a slot element.
func (n *Node) AssignTo(slot *Node) *Node {
	n.slot = slot
	return n
}

// Element implementation

func (n *Node) LocalName() string { return n.local }
func (n *Node) NamespaceID() int  { return n.ns }

// ID returns the id attribute
func (n *Node) ID() string {
	id, _ := n.Attribute(css.NamespaceNone, "id")
	return id
}

// Classes returns the class list
func (n *Node) Classes() []string {
	class, ok := n.Attribute(css.NamespaceNone, "class")
	if !ok {
		return nil
	}
	return strings.Fields(class)
}

func (n *Node) Attribute(ns int, name string) (string, bool) {
	for _, a := range n.attrs {
		if (ns == css.NamespaceAny || a.Namespace == ns) && a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *Node) AttributeValues(name string) []string {
	var values []string
	for _, a := range n.attrs {
		if a.Name == name {
			values = append(values, a.Value)
		}
	}
	return values
}

// Attributes returns a copy of the stored attributes.
func (n *Node) Attributes() []Attr {
	return append([]Attr(nil), n.attrs...)
}

func (n *Node) Parent() Element {
	if n.parent == nil || n.parent.host != nil {
		return nil
	}
	return n.parent
}

func (n *Node) siblingElement(step int) Element {
	p := n.parent
	if p == nil {
		return nil
	}
	for i, c := range p.children {
		if c != n {
			continue
		}
		for j := i + step; j >= 0 && j < len(p.children); j += step {
			if p.children[j].text == nil {
				return p.children[j]
			}
		}
		return nil
	}
	return nil
}

func (n *Node) PreviousSiblingElement() Element { return n.siblingElement(-1) }
func (n *Node) NextSiblingElement() Element     { return n.siblingElement(1) }

func (n *Node) FirstChildElement() Element {
	for _, c := range n.children {
		if c.text == nil {
			return c
		}
	}
	return nil
}

func (n *Node) EachChild(fn func(el Element, text string) bool) {
	for _, c := range n.children {
		var ok bool
		if c.text != nil {
			ok = fn(nil, *c.text)
		} else {
			ok = fn(c, "")
		}
		if !ok {
			return
		}
	}
}

func (n *Node) State() css.EventState { return n.state }
func (n *Node) IsLink() bool          { return n.link }

func (n *Node) ShadowHost() Element {
	if n.parent != nil && n.parent.host != nil {
		return n.parent.host
	}
	return nil
}

func (n *Node) IsShadowHost() bool { return n.shadow != nil }

func (n *Node) AssignedSlot() Element {
	if n.slot == nil {
		return nil
	}
	return n.slot
}

func (n *Node) OwnerDocument() Document {
	if n.doc == nil {
		return nil
	}
	return n.doc
}

func (n *Node) String() string {
	if n.text != nil {
		return "#text"
	}
	var b strings.Builder
	b.WriteString(n.local)
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
