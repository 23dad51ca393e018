// Package match implements selector matching against html.Element trees:
// compound tests, combinator walks with backtracking, and the nested selector
// lists of functional pseudo-classes.
package match

import (
	"stylematch/internal/bloom"
	"stylematch/internal/css"
	"stylematch/internal/html"
)

// Flags qualify how a compound selector is being matched.
type Flags uint8

const (
	FlagNone Flags = 0
	// FlagUnknown is set when matching may not have started at the subject,
	// e.g. while classifying a restyle.
	FlagUnknown Flags = 1 << (iota - 1)
	FlagHasPseudoElement
	FlagPseudoClassArg
	FlagOutsideShadowTree
)

// NodeMatchContext carries per-element matching state.
type NodeMatchContext struct {
	// StateMask lists states whose tests are skipped (treated as matching
	// and reported as a dependence). Used to ask "could a change in these
	// states affect the result".
	StateMask css.EventState
	// IsFeatureless marks a shadow host reached from inside its shadow tree.
	IsFeatureless bool
}

// Options configures a TreeMatchContext.
type Options struct {
	Document      html.Document
	IsHTML        bool
	Quirks        bool
	DocumentState css.DocumentState
	// Scope is the :scope element; nil means the document root.
	Scope html.Element
	// ScopeHost is the shadow host whose shadow-tree rules are being matched.
	ScopeHost html.Element
	// Filter, when set, is consulted by callers that hold rule ancestor hashes.
	Filter *bloom.AncestorFilter
}

// ForDocument returns options populated from a document.
func ForDocument(doc html.Document) Options {
	if doc == nil {
		return Options{IsHTML: true}
	}
	return Options{
		Document:      doc,
		IsHTML:        doc.IsHTML(),
		Quirks:        doc.Quirks(),
		DocumentState: doc.State(),
	}
}

// TreeMatchContext is the state shared by all matching calls of one tree
// walk. It is not safe for concurrent use.
type TreeMatchContext struct {
	Document      html.Document
	IsHTML        bool
	Quirks        bool
	DocumentState css.DocumentState
	Scope         html.Element
	ScopeHost     html.Element
	Filter        *bloom.AncestorFilter

	nth map[nthKey]int
}

// NewTreeMatchContext creates a context from options.
func NewTreeMatchContext(opts Options) *TreeMatchContext {
	return &TreeMatchContext{
		Document:      opts.Document,
		IsHTML:        opts.IsHTML,
		Quirks:        opts.Quirks,
		DocumentState: opts.DocumentState,
		Scope:         opts.Scope,
		ScopeHost:     opts.ScopeHost,
		Filter:        opts.Filter,
		nth:           make(map[nthKey]int),
	}
}

// ResetNthCache drops cached sibling indexes. Call it after the tree changes.
func (t *TreeMatchContext) ResetNthCache() {
	t.nth = make(map[nthKey]int)
}

func (t *TreeMatchContext) document(el html.Element) html.Document {
	if t.Document != nil {
		return t.Document
	}
	return el.OwnerDocument()
}

type nthKey struct {
	el      html.Element
	ofType  bool
	fromEnd bool
}

// nthIndex returns the 1-based position of el among its element siblings,
// counted from the end when fromEnd is set and restricted to siblings with
// the same name and namespace when ofType is set.
func (t *TreeMatchContext) nthIndex(el html.Element, ofType, fromEnd bool) int {
	key := nthKey{el: el, ofType: ofType, fromEnd: fromEnd}
	if idx, ok := t.nth[key]; ok {
		return idx
	}
	if t.nth == nil {
		t.nth = make(map[nthKey]int)
	}

	step := html.Element.PreviousSiblingElement
	if fromEnd {
		step = html.Element.NextSiblingElement
	}
	idx := 1
	for sib := step(el); sib != nil; sib = step(sib) {
		if ofType && (sib.LocalName() != el.LocalName() || sib.NamespaceID() != el.NamespaceID()) {
			continue
		}
		// reuse a cached sibling index to stop the walk early
		if cached, ok := t.nth[nthKey{el: sib, ofType: ofType, fromEnd: fromEnd}]; ok {
			idx += cached
			break
		}
		idx++
	}
	t.nth[key] = idx
	return idx
}
