// Package layer builds the cascade layer tree of one cascade. Every layer
// owns the rules placed directly in it and, once finalized, the matching
// data built from them.
package layer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/derekparker/trie"
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/xlab/treeprint"

	"stylematch/internal/css"
	"stylematch/internal/ruledata"
)

const anonymousName = "<anonymous>"

// WeightRange is the run of finalized rule selectors sharing one weight.
type WeightRange struct {
	Weight uint32
	Start  int
	Count  int
}

// Layer is a node of the layer tree. The root layer holds unlayered rules.
type Layer struct {
	name      string
	anonymous bool
	parent    *Layer
	quirks    bool
	dir       *trie.Trie

	children []*Layer
	named    map[string]*Layer

	rules   []css.RuleSelector
	atRules []*css.NamedRule

	finalized bool
	sorted    []css.RuleSelector
	weights   []WeightRange
	data      *ruledata.CascadeData
}

// NewRoot creates the root layer of a cascade.
func NewRoot(quirks bool) *Layer {
	return &Layer{quirks: quirks, dir: trie.New(), named: make(map[string]*Layer)}
}

func (l *Layer) newChild(name string, anonymous bool) *Layer {
	child := &Layer{
		name:      name,
		anonymous: anonymous,
		parent:    l,
		quirks:    l.quirks,
		dir:       l.dir,
		named:     make(map[string]*Layer),
	}
	l.children = append(l.children, child)
	return child
}

// CreateNamedChildLayer returns the layer at the dotted path below l,
// creating missing layers in declaration order. An empty path returns l.
func (l *Layer) CreateNamedChildLayer(path []string) *Layer {
	if len(path) == 0 {
		return l
	}
	child, ok := l.named[path[0]]
	if !ok {
		child = l.newChild(path[0], false)
		l.named[path[0]] = child
		if full, reachable := child.fullName(); reachable {
			child.dir.Add(full, child)
		}
	}
	return child.CreateNamedChildLayer(path[1:])
}

// CreateAnonymousChildLayer always creates a new layer below l.
func (l *Layer) CreateAnonymousChildLayer() *Layer {
	return l.newChild("", true)
}

// fullName is the dotted name of l. Layers below an anonymous layer
// cannot be named from outside, which reachable reports.
func (l *Layer) fullName() (name string, reachable bool) {
	var parts []string
	reachable = true
	for cur := l; cur.parent != nil; cur = cur.parent {
		if cur.anonymous {
			parts = append(parts, anonymousName)
			reachable = false
			continue
		}
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "."), reachable
}

// Name returns the dotted name of the layer, "" for the root.
func (l *Layer) Name() string {
	name, _ := l.fullName()
	return name
}

// IsAnonymous reports whether the layer came from an unnamed @layer block.
func (l *Layer) IsAnonymous() bool { return l.anonymous }

// IsRoot reports whether l holds the unlayered rules.
func (l *Layer) IsRoot() bool { return l.parent == nil }

// Children returns the direct child layers in declaration order.
func (l *Layer) Children() []*Layer { return l.children }

// Lookup finds a named layer by its dotted name anywhere in the tree.
func (l *Layer) Lookup(name string) (*Layer, bool) {
	node, ok := l.dir.Find(name)
	if !ok {
		return nil, false
	}
	found, ok := node.Meta().(*Layer)
	return found, ok
}

// NamesWithPrefix returns the dotted names of the named layers starting
// with prefix, sorted.
func (l *Layer) NamesWithPrefix(prefix string) []string {
	names := l.dir.PrefixSearch(prefix)
	slices.Sort(names)
	return names
}

// AddRule places rule selectors in the layer. A finalized layer is rebuilt
// on the next Finalize.
func (l *Layer) AddRule(rs ...css.RuleSelector) {
	l.rules = append(l.rules, rs...)
	l.finalized = false
}

// AddAtRule places a named at-rule in the layer.
func (l *Layer) AddAtRule(r *css.NamedRule) {
	l.atRules = append(l.atRules, r)
	l.finalized = false
}

// RuleCount returns the number of rule selectors placed directly in l.
func (l *Layer) RuleCount() int { return len(l.rules) }

// Finalize sorts the layer's rule selectors by ascending weight, keeping
// source order within a weight, and builds the matching data from that
// sequence. Calling it again without new rules does nothing.
func (l *Layer) Finalize() {
	if l.finalized {
		return
	}

	byWeight := treemap.NewWith(utils.UInt32Comparator)
	for _, rs := range l.rules {
		bucket, _ := byWeight.Get(rs.Weight)
		list, _ := bucket.([]css.RuleSelector)
		byWeight.Put(rs.Weight, insertByOrder(list, rs))
	}

	l.sorted = make([]css.RuleSelector, 0, len(l.rules))
	l.weights = nil
	it := byWeight.Iterator()
	for it.Next() {
		list := it.Value().([]css.RuleSelector)
		l.weights = append(l.weights, WeightRange{Weight: it.Key().(uint32), Start: len(l.sorted), Count: len(list)})
		l.sorted = append(l.sorted, list...)
	}

	l.data = ruledata.New(l.quirks)
	for _, rs := range l.sorted {
		l.data.AddRule(rs)
	}
	for _, r := range l.atRules {
		l.data.AddAtRule(r)
	}
	l.finalized = true
}

// insertByOrder appends rs, moving it before entries with a larger source
// order. Rules usually arrive in order, so this is an append.
func insertByOrder(list []css.RuleSelector, rs css.RuleSelector) []css.RuleSelector {
	i := len(list)
	for i > 0 && list[i-1].SourceOrder > rs.SourceOrder {
		i--
	}
	list = append(list, css.RuleSelector{})
	copy(list[i+1:], list[i:])
	list[i] = rs
	return list
}

// IsFinalized reports whether Data is current.
func (l *Layer) IsFinalized() bool { return l.finalized }

// Data returns the matching data built by Finalize, nil before.
func (l *Layer) Data() *ruledata.CascadeData { return l.data }

// Sorted returns the rule selectors in the order they were indexed.
func (l *Layer) Sorted() []css.RuleSelector { return l.sorted }

// Weights returns the weight runs of Sorted.
func (l *Layer) Weights() []WeightRange { return l.weights }

// EnumerateAllLayers calls fn for every layer of the subtree in cascade
// order, lowest priority first: child layers in declaration order, each
// before its parent.
func (l *Layer) EnumerateAllLayers(fn func(*Layer)) {
	for _, child := range l.children {
		child.EnumerateAllLayers(fn)
	}
	fn(l)
}

// Dump renders the layer tree.
func (l *Layer) Dump() string {
	tree := treeprint.New()
	tree.SetValue(l.label())
	l.dumpChildren(tree)
	return tree.String()
}

func (l *Layer) dumpChildren(branch treeprint.Tree) {
	for _, child := range l.children {
		if len(child.children) == 0 {
			branch.AddNode(child.label())
			continue
		}
		child.dumpChildren(branch.AddBranch(child.label()))
	}
}

func (l *Layer) label() string {
	name := l.name
	switch {
	case l.parent == nil:
		name = "<unlayered>"
	case l.anonymous:
		name = anonymousName
	}
	label := fmt.Sprintf("%s (%d rules", name, len(l.rules))
	if len(l.atRules) > 0 {
		label += fmt.Sprintf(", %d at-rules", len(l.atRules))
	}
	return label + ")"
}
