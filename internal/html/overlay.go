package html

import (
	"strings"

	"stylematch/internal/css"
)

// attributeOverlay presents an element with one attribute replaced, so that
// selectors can be tested against the value an attribute had before a change.
type attributeOverlay struct {
	Element
	ns      int
	name    string
	value   string
	present bool
}

// WithAttribute returns a view of el in which the attribute (ns, name) has
// the given value, or is absent when present is false. Tree navigation
// still returns the underlying elements.
func WithAttribute(el Element, ns int, name, value string, present bool) Element {
	return &attributeOverlay{Element: el, ns: ns, name: name, value: value, present: present}
}

func (o *attributeOverlay) covers(ns int, name string) bool {
	return name == o.name && (ns == css.NamespaceAny || ns == o.ns)
}

func (o *attributeOverlay) Attribute(ns int, name string) (string, bool) {
	if o.covers(ns, name) {
		if o.present {
			return o.value, true
		}
		if ns == css.NamespaceAny {
			// another namespace may still carry the name
			if others := o.otherNamespaces(name); len(others) > 0 {
				return others[0], true
			}
		}
		return "", false
	}
	return o.Element.Attribute(ns, name)
}

// otherNamespaces returns the values of name held outside o.ns.
func (o *attributeOverlay) otherNamespaces(name string) []string {
	values := o.Element.AttributeValues(name)
	own, ok := o.Element.Attribute(o.ns, name)
	if !ok {
		return values
	}
	for i, v := range values {
		if v == own {
			return append(values[:i:i], values[i+1:]...)
		}
	}
	return values
}

func (o *attributeOverlay) AttributeValues(name string) []string {
	if name != o.name {
		return o.Element.AttributeValues(name)
	}
	values := o.otherNamespaces(name)
	if o.present {
		values = append([]string{o.value}, values...)
	}
	return values
}

func (o *attributeOverlay) ID() string {
	if o.ns == css.NamespaceNone && o.name == "id" {
		if o.present {
			return o.value
		}
		return ""
	}
	return o.Element.ID()
}

func (o *attributeOverlay) Classes() []string {
	if o.ns == css.NamespaceNone && o.name == "class" {
		if o.present {
			return strings.Fields(o.value)
		}
		return nil
	}
	return o.Element.Classes()
}
