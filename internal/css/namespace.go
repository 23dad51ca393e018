package css

import "sync"

// Namespace identifiers. NamespaceAny is used by selectors that do not
// constrain the namespace (no default namespace and no explicit prefix).
const (
	NamespaceAny    = -1
	NamespaceNone   = 0
	NamespaceXML    = 1
	NamespaceHTML   = 2
	NamespaceSVG    = 3
	NamespaceMathML = 4
	NamespaceXLink  = 5

	firstDynamicNamespace = 16
)

// Well-known namespace URIs.
const (
	URIXML    = "http://www.w3.org/XML/1998/namespace"
	URIHTML   = "http://www.w3.org/1999/xhtml"
	URISVG    = "http://www.w3.org/2000/svg"
	URIMathML = "http://www.w3.org/1998/Math/MathML"
	URIXLink  = "http://www.w3.org/1999/xlink"
)

// Namespaces maps namespace URIs to small integer ids. A single registry is
// shared by the stylesheet parser and the DOM adapter so that ids compare
// equal on both sides.
type Namespaces struct {
	mu   sync.Mutex
	ids  map[string]int
	uris map[int]string
	next int
}

// NewNamespaces creates a registry preloaded with the well-known namespaces.
func NewNamespaces() *Namespaces {
	ns := &Namespaces{
		ids:  make(map[string]int),
		uris: make(map[int]string),
		next: firstDynamicNamespace,
	}
	for uri, id := range map[string]int{
		"":        NamespaceNone,
		URIXML:    NamespaceXML,
		URIHTML:   NamespaceHTML,
		URISVG:    NamespaceSVG,
		URIMathML: NamespaceMathML,
		URIXLink:  NamespaceXLink,
	} {
		ns.ids[uri] = id
		ns.uris[id] = uri
	}
	return ns
}

// ID returns the id for uri, registering it when unknown.
func (n *Namespaces) ID(uri string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if id, ok := n.ids[uri]; ok {
		return id
	}
	id := n.next
	n.next++
	n.ids[uri] = id
	n.uris[id] = uri
	return id
}

// URI returns the namespace URI registered for id.
func (n *Namespaces) URI(id int) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	uri, ok := n.uris[id]
	return uri, ok
}
