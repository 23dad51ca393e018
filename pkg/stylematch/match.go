package stylematch

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"stylematch/internal/bloom"
	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/match"
	"stylematch/internal/resolver"
)

// ElementMatch is what applies to one element.
type ElementMatch struct {
	Element html.Element
	// Path is a selector-like description, e.g. "html > body > div#a.b".
	Path string
	// Rules are in ascending cascade priority.
	Rules resolver.MatchResults
	// Pseudo holds the rules of each pseudo-element generated on the
	// element, keyed by name.
	Pseudo map[string]resolver.MatchResults
	// Styles is set when the report was made WithStyles.
	Styles map[string]css.Declaration
}

// Stats are counters of one Match call.
type Stats struct {
	ElementsVisited  int
	ElementsMatched  int
	SelectorsMatched int
	Duration         time.Duration
}

// Report is the result of Match.
type Report struct {
	Elements []ElementMatch
	Stats    Stats
}

type matchOptions struct {
	styles bool
	all    bool
}

// MatchOption adjusts a Match call.
type MatchOption func(*matchOptions)

// WithStyles adds the cascaded declarations of each element.
func WithStyles() MatchOption {
	return func(o *matchOptions) { o.styles = true }
}

// WithUnmatched reports targeted elements that no rule matches too.
func WithUnmatched() MatchOption {
	return func(o *matchOptions) { o.all = true }
}

// target compiles selector with cascadia; an empty selector targets every
// element.
func target(selector string) (func(html.Element) bool, error) {
	if strings.TrimSpace(selector) == "" {
		return func(html.Element) bool { return true }, nil
	}
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid target selector %q: %w", selector, err)
	}
	return func(el html.Element) bool {
		n, ok := el.(*html.GoQueryNode)
		return ok && group.Match(n.Node())
	}, nil
}

// Match walks the document in tree order with the ancestor filter and
// reports the matched rules of every element selected by selector.
func (d *Document) Match(selector string, opts ...MatchOption) (*Report, error) {
	var o matchOptions
	for _, opt := range opts {
		opt(&o)
	}
	selected, err := target(selector)
	if err != nil {
		return nil, err
	}
	pseudos, err := d.proc.PseudoElements()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	filter := bloom.New()
	tree := d.proc.NewTreeMatchContext(d.html)
	tree.Filter = filter

	report := &Report{}
	var (
		tokens  []bloom.Token
		walkErr error
	)
	html.Walk(d.html.Root(), func(el html.Element) bool {
		report.Stats.ElementsVisited++
		if walkErr == nil && selected(el) {
			m, err := d.matchElement(el, tree, pseudos, o.styles)
			switch {
			case err != nil:
				walkErr = err
			case len(m.Rules) > 0 || len(m.Pseudo) > 0 || o.all:
				report.Elements = append(report.Elements, m)
				report.Stats.SelectorsMatched += len(m.Rules)
			}
		}
		// leave runs even when the children are skipped
		tokens = append(tokens, filter.Push(el))
		return walkErr == nil
	}, func(html.Element) {
		filter.Pop(tokens[len(tokens)-1])
		tokens = tokens[:len(tokens)-1]
	})
	if walkErr != nil {
		return nil, walkErr
	}

	report.Stats.ElementsMatched = len(report.Elements)
	report.Stats.Duration = time.Since(start)
	d.engine.log.Debug("Matched document",
		zap.Int("visited", report.Stats.ElementsVisited),
		zap.Int("matched", report.Stats.ElementsMatched),
		zap.Int("selectors", report.Stats.SelectorsMatched),
		zap.Duration("took", report.Stats.Duration))
	return report, nil
}

func (d *Document) matchElement(el html.Element, tree *match.TreeMatchContext, pseudos []string, styles bool) (ElementMatch, error) {
	m := ElementMatch{Element: el, Path: Path(el)}
	var err error
	if m.Rules, err = d.proc.RulesMatching(el, tree); err != nil {
		return m, err
	}
	for _, name := range pseudos {
		rules, err := d.proc.RulesMatchingPseudo(el, name, tree)
		if err != nil {
			return m, err
		}
		if len(rules) == 0 {
			continue
		}
		if m.Pseudo == nil {
			m.Pseudo = make(map[string]resolver.MatchResults)
		}
		m.Pseudo[name] = rules
	}
	if styles {
		if m.Styles, err = d.proc.ResolveStyles(el, tree); err != nil {
			return m, err
		}
	}
	return m, nil
}

// Path describes el by its ancestor chain.
func Path(el html.Element) string {
	var parts []string
	for cur := el; cur != nil; cur = cur.Parent() {
		var b strings.Builder
		b.WriteString(strings.ToLower(cur.LocalName()))
		if id := cur.ID(); id != "" {
			b.WriteString("#" + id)
		}
		for _, class := range cur.Classes() {
			b.WriteString("." + class)
		}
		parts = append(parts, b.String())
	}
	slices.Reverse(parts)
	return strings.Join(parts, " > ")
}
