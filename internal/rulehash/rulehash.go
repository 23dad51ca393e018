// Package rulehash buckets rule selectors by the id, class, tag or namespace
// of their subject so that matching an element only visits rules that could
// apply to it.
package rulehash

import (
	"stylematch/internal/bloom"
	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/match"
)

// MaxAncestorHashes is the number of ancestor hashes kept per rule.
const MaxAncestorHashes = 4

// RuleValue is a rule selector as stored in a bucket. Index is the insertion
// position; a higher index is later in cascade order.
type RuleValue struct {
	css.RuleSelector
	Index          int
	AncestorHashes [MaxAncestorHashes]uint32
}

func newRuleValue(rs css.RuleSelector, index int, quirks bool) RuleValue {
	v := RuleValue{RuleSelector: rs, Index: index}
	v.collectAncestorHashes(quirks)
	return v
}

// collectAncestorHashes records hashes of compounds that must match an
// ancestor. Compounds reached through sibling combinators select siblings
// of ancestors and are skipped. In quirks mode ids and classes match
// case-insensitively and are left out.
func (v *RuleValue) collectAncestorHashes(quirks bool) {
	n := 0
	add := func(atom string) bool {
		v.AncestorHashes[n] = bloom.Hash(atom)
		n++
		return n == MaxAncestorHashes
	}
	compounds := v.Selector.Compounds
	for i := v.Selector.SubjectIndex() + 1; i < len(compounds); i++ {
		c := compounds[i]
		if !c.Combinator.IsAncestor() {
			continue
		}
		if !quirks {
			for _, id := range c.IDs {
				if add(id) {
					return
				}
			}
			for _, class := range c.Classes {
				if add(class) {
					return
				}
			}
		}
		// only when the tag is the same in HTML and non-HTML documents
		if c.Tag != "" && c.Tag == c.CasedTag {
			if add(c.Tag) {
				return
			}
		}
	}
}

// RuleHash is the rule index of one cascade layer.
type RuleHash struct {
	quirks     bool
	count      int
	universal  []RuleValue
	ids        map[string][]RuleValue
	classes    map[string][]RuleValue
	tags       map[string][]RuleValue
	namespaces map[int][]RuleValue
}

// New creates an empty index. In quirks mode id and class keys are
// case-insensitive.
func New(quirks bool) *RuleHash {
	return &RuleHash{
		quirks:     quirks,
		ids:        make(map[string][]RuleValue),
		classes:    make(map[string][]RuleValue),
		tags:       make(map[string][]RuleValue),
		namespaces: make(map[int][]RuleValue),
	}
}

func (h *RuleHash) atomKey(atom string) string {
	if h.quirks {
		return css.FoldCase(atom)
	}
	return atom
}

// AppendRule adds a rule selector to exactly one kind of bucket, chosen from
// its subject compound: first id, else first class, else tag, else
// namespace, else universal.
func (h *RuleHash) AppendRule(rs css.RuleSelector) {
	subject := rs.Selector.Subject()
	value := newRuleValue(rs, h.count, h.quirks)
	h.count++

	switch {
	case len(subject.IDs) > 0:
		key := h.atomKey(subject.IDs[0])
		h.ids[key] = append(h.ids[key], value)
	case len(subject.Classes) > 0:
		key := h.atomKey(subject.Classes[0])
		h.classes[key] = append(h.classes[key], value)
	case subject.Tag != "":
		h.tags[subject.Tag] = append(h.tags[subject.Tag], value)
		if subject.CasedTag != "" && subject.CasedTag != subject.Tag {
			h.tags[subject.CasedTag] = append(h.tags[subject.CasedTag], value)
		}
	case subject.Namespace != css.NamespaceAny:
		h.namespaces[subject.Namespace] = append(h.namespaces[subject.Namespace], value)
	default:
		h.universal = append(h.universal, value)
	}
}

// Len returns the number of appended rule selectors.
func (h *RuleHash) Len() int {
	return h.count
}

// CandidatesFor returns the non-empty buckets relevant to el: universal,
// namespace, tag, id and one per class. Each bucket is ordered by Index;
// the union may contain rules that do not match.
func (h *RuleHash) CandidatesFor(el html.Element) [][]RuleValue {
	var lists [][]RuleValue
	if len(h.universal) > 0 {
		lists = append(lists, h.universal)
	}
	if rules := h.namespaces[el.NamespaceID()]; len(rules) > 0 {
		lists = append(lists, rules)
	}
	if rules := h.tags[el.LocalName()]; len(rules) > 0 {
		lists = append(lists, rules)
	}
	if id := el.ID(); id != "" {
		if rules := h.ids[h.atomKey(id)]; len(rules) > 0 {
			lists = append(lists, rules)
		}
	}
	if len(h.classes) > 0 {
		seen := make(map[string]bool)
		for _, class := range el.Classes() {
			key := h.atomKey(class)
			if seen[key] {
				continue
			}
			seen[key] = true
			if rules := h.classes[key]; len(rules) > 0 {
				lists = append(lists, rules)
			}
		}
	}
	return lists
}

// EnumerateAllRules calls fn, in Index order, for every rule whose selector
// matches el. Rules whose ancestor hashes are rejected by tree.Filter are
// skipped without matching. Selectors ending in a pseudo-element match
// their originating element.
func (h *RuleHash) EnumerateAllRules(el html.Element, tree *match.TreeMatchContext, node match.NodeMatchContext, fn func(*RuleValue)) {
	Merge(h.CandidatesFor(el), func(v *RuleValue) {
		if tree.Filter != nil && !tree.Filter.MightHaveMatchingAncestor(v.AncestorHashes[:]) {
			return
		}
		if match.MatchesWithState(el, v.Selector, tree, node, match.FlagNone) {
			fn(v)
		}
	})
}

// Merge visits the values of index-ordered lists in ascending Index order.
func Merge(lists [][]RuleValue, fn func(*RuleValue)) {
	cursors := make([]int, len(lists))
	live := 0
	for _, list := range lists {
		if len(list) > 0 {
			live++
		}
	}
	for live > 1 {
		lowest := -1
		for i, list := range lists {
			if cursors[i] == len(list) {
				continue
			}
			if lowest < 0 || list[cursors[i]].Index < lists[lowest][cursors[lowest]].Index {
				lowest = i
			}
		}
		fn(&lists[lowest][cursors[lowest]])
		cursors[lowest]++
		if cursors[lowest] == len(lists[lowest]) {
			live--
		}
	}
	// single remaining list
	for i, list := range lists {
		for ; cursors[i] < len(list); cursors[i]++ {
			fn(&list[cursors[i]])
		}
	}
}

// EachRule visits every stored rule value once, in Index order.
func (h *RuleHash) EachRule(fn func(*RuleValue)) {
	lists := [][]RuleValue{h.universal}
	for _, rules := range h.namespaces {
		lists = append(lists, rules)
	}
	for _, rules := range h.tags {
		lists = append(lists, rules)
	}
	for _, rules := range h.ids {
		lists = append(lists, rules)
	}
	for _, rules := range h.classes {
		lists = append(lists, rules)
	}
	last := -1
	Merge(lists, func(v *RuleValue) {
		// tag rules sit in both the lowercase and the cased bucket
		if v.Index == last {
			return
		}
		last = v.Index
		fn(v)
	})
}
