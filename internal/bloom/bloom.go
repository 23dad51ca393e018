// Package bloom implements the counting bloom filter used to reject rules
// whose ancestor requirements cannot be met by the current element.
package bloom

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"stylematch/internal/html"
)

const (
	keySize   = 12
	arraySize = 1 << keySize
	keyMask   = arraySize - 1
)

// Hash returns the 32-bit atom hash used on both the rule side and the
// element side. It is never zero; zero marks an unused slot.
func Hash(atom string) uint32 {
	h := uint32(xxhash.Sum64String(atom))
	if h == 0 {
		return 1
	}
	return h
}

func hash1(h uint32) uint32 { return h & keyMask }
func hash2(h uint32) uint32 { return (h >> 16) & keyMask }

// CountingFilter is a counting bloom filter with 8-bit saturating counters.
// A saturated counter is never decremented, so removal can only cause false
// positives.
type CountingFilter struct {
	counters [arraySize]uint8
}

// Insert adds a hash
func (f *CountingFilter) Insert(h uint32) {
	f.inc(hash1(h))
	f.inc(hash2(h))
}

// Remove removes a previously inserted hash
func (f *CountingFilter) Remove(h uint32) {
	f.dec(hash1(h))
	f.dec(hash2(h))
}

// MightContain reports whether h may have been inserted
func (f *CountingFilter) MightContain(h uint32) bool {
	return f.counters[hash1(h)] != 0 && f.counters[hash2(h)] != 0
}

// IsClear reports whether every counter is zero
func (f *CountingFilter) IsClear() bool {
	for _, c := range f.counters {
		if c != 0 {
			return false
		}
	}
	return true
}

// Clear resets all counters
func (f *CountingFilter) Clear() {
	f.counters = [arraySize]uint8{}
}

func (f *CountingFilter) inc(slot uint32) {
	if f.counters[slot] != 0xff {
		f.counters[slot]++
	}
}

func (f *CountingFilter) dec(slot uint32) {
	if c := f.counters[slot]; c != 0xff && c != 0 {
		f.counters[slot]--
	}
}

// AncestorFilter holds the hashes of the elements currently on the
// traversal stack.
type AncestorFilter struct {
	filter CountingFilter
	hashes []uint32
	marks  []int // start offset into hashes per pushed element
}

// Token proves that a push happened; it must be handed back to Pop in
// reverse push order.
type Token struct {
	depth int
	owner *AncestorFilter
}

// New creates an empty filter
func New() *AncestorFilter {
	return &AncestorFilter{}
}

// Push adds the local name, id and classes of el.
func (a *AncestorFilter) Push(el html.Element) Token {
	a.marks = append(a.marks, len(a.hashes))
	a.add(el.LocalName())
	if id := el.ID(); id != "" {
		a.add(id)
	}
	for _, class := range el.Classes() {
		a.add(class)
	}
	return Token{depth: len(a.marks), owner: a}
}

func (a *AncestorFilter) add(atom string) {
	h := Hash(atom)
	a.hashes = append(a.hashes, h)
	a.filter.Insert(h)
}

// Pop removes exactly what the matching Push added. Popping a token that is
// not on top of the stack is a programming error and panics.
func (a *AncestorFilter) Pop(tok Token) {
	if tok.owner != a || tok.depth != len(a.marks) || tok.depth == 0 {
		panic(fmt.Sprintf("bloom: pop of token at depth %d, stack depth %d", tok.depth, len(a.marks)))
	}
	start := a.marks[len(a.marks)-1]
	for _, h := range a.hashes[start:] {
		a.filter.Remove(h)
	}
	a.hashes = a.hashes[:start]
	a.marks = a.marks[:len(a.marks)-1]
}

// InitAncestors pushes every ancestor of el, root first, and returns the
// tokens in push order. Callers pop them in reverse.
func (a *AncestorFilter) InitAncestors(el html.Element) []Token {
	var chain []html.Element
	for p := el.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	tokens := make([]Token, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		tokens = append(tokens, a.Push(chain[i]))
	}
	return tokens
}

// PopAll pops tokens returned by InitAncestors.
func (a *AncestorFilter) PopAll(tokens []Token) {
	for i := len(tokens) - 1; i >= 0; i-- {
		a.Pop(tokens[i])
	}
}

// MightHaveMatchingAncestor reports whether all non-zero hashes may be
// present. A false answer is definitive.
func (a *AncestorFilter) MightHaveMatchingAncestor(hashes []uint32) bool {
	for _, h := range hashes {
		if h == 0 {
			break
		}
		if !a.filter.MightContain(h) {
			return false
		}
	}
	return true
}

// Depth returns the number of pushed elements
func (a *AncestorFilter) Depth() int {
	return len(a.marks)
}

// Balanced reports whether every push has been popped and the counters are
// back to zero.
func (a *AncestorFilter) Balanced() bool {
	return len(a.marks) == 0 && len(a.hashes) == 0 && a.filter.IsClear()
}
