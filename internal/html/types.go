package html

import "stylematch/internal/css"

// Element represents an element of the DOM tree as seen by the matcher.
// Implementations must return a nil interface (not a typed nil) when a
// relative does not exist, and must hand out the same value for the same
// element so that elements compare with ==.
type Element interface {
	// Core element information
	LocalName() string // as written in the source
	NamespaceID() int
	ID() string
	Classes() []string

	// Attribute returns the value of the attribute in namespace ns
	// (css.NamespaceNone for plain attributes). ns == css.NamespaceAny
	// matches the first attribute with that local name.
	Attribute(ns int, name string) (string, bool)
	// AttributeValues returns the values of every attribute with the given
	// local name, whatever its namespace.
	AttributeValues(name string) []string

	// Tree navigation. Parent is nil for the root element and for direct
	// children of a shadow root; ShadowHost then names the host.
	Parent() Element
	PreviousSiblingElement() Element
	NextSiblingElement() Element
	FirstChildElement() Element
	// EachChild calls fn for every child node in order: element children
	// with el set, text children with el nil and their data. Iteration stops
	// when fn returns false.
	EachChild(fn func(el Element, text string) bool)

	// Dynamic state
	State() css.EventState
	IsLink() bool

	// Shadow DOM
	ShadowHost() Element
	IsShadowHost() bool
	AssignedSlot() Element

	OwnerDocument() Document
}

// Document carries document-wide facts the matcher consults.
type Document interface {
	Root() Element
	IsHTML() bool
	Quirks() bool
	ContentLanguage() string
	State() css.DocumentState
}

// IsHTMLElement reports whether el is an HTML element in an HTML document.
func IsHTMLElement(el Element) bool {
	if el.NamespaceID() != css.NamespaceHTML {
		return false
	}
	doc := el.OwnerDocument()
	return doc == nil || doc.IsHTML()
}

// FlattenedParent returns the parent of el in the flattened tree: the
// assigned slot, else the parent, else the shadow host.
func FlattenedParent(el Element) Element {
	if slot := el.AssignedSlot(); slot != nil {
		return slot
	}
	if p := el.Parent(); p != nil {
		return p
	}
	return el.ShadowHost()
}

// Lang returns the language of el: the nearest xml:lang or lang attribute
// on el or an ancestor, crossing shadow boundaries. The document's
// Content-Language is not consulted.
func Lang(el Element) (string, bool) {
	for cur := el; cur != nil; cur = FlattenedParent(cur) {
		if v, ok := cur.Attribute(css.NamespaceXML, "lang"); ok {
			return v, true
		}
		if v, ok := cur.Attribute(css.NamespaceNone, "lang"); ok && cur.NamespaceID() == css.NamespaceHTML {
			return v, true
		}
	}
	return "", false
}

// Walk visits el and its element descendants in document order, calling
// enter before and leave after the children. Shadow trees are not entered.
func Walk(el Element, enter func(Element) bool, leave func(Element)) {
	if el == nil {
		return
	}
	if enter(el) {
		for child := el.FirstChildElement(); child != nil; child = child.NextSiblingElement() {
			Walk(child, enter, leave)
		}
	}
	if leave != nil {
		leave(el)
	}
}
