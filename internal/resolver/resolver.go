// Package resolver ties the cascade cache to element matching: it answers
// which rules apply to an element, what declarations win, and which
// elements need restyling after a state, attribute or document change.
package resolver

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"stylematch/internal/cascade"
	"stylematch/internal/config"
	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/layer"
	"stylematch/internal/match"
	"stylematch/internal/restyle"
	"stylematch/internal/ruledata"
	"stylematch/internal/rulehash"
)

// Processor resolves styles for one document's set of sheets.
// It is not safe for concurrent use.
type Processor struct {
	cfg   config.Config
	log   *zap.Logger
	cache *cascade.Cache
	env   css.Features

	sheets []*css.Stylesheet
	placed []cascade.Placed
}

// New creates a processor with no sheets.
func New(cfg *config.Config, log *zap.Logger) *Processor {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		cfg: *cfg,
		log: log,
		cache: cascade.New(cascade.Config{
			Capacity: cfg.Cache.Capacity,
			MaxRules: cfg.Cache.MaxRules,
			Quirks:   cfg.QuirksMode,
		}, log),
		env: cfg.Features,
	}
}

// Environment returns the media features cascades are built against.
func (p *Processor) Environment() css.Features { return p.env }

// AddSheet appends a sheet; later sheets come later in cascade order.
func (p *Processor) AddSheet(sheet *css.Stylesheet) {
	p.sheets = append(p.sheets, sheet)
	p.cache.SetSheets(p.sheets...)
	p.log.Debug("Sheet added", zap.String("href", sheet.Href), zap.Int("rules", sheet.Rules))
}

// RemoveSheet removes a previously added sheet and reports whether it was
// present.
func (p *Processor) RemoveSheet(sheet *css.Stylesheet) bool {
	i := slices.Index(p.sheets, sheet)
	if i < 0 {
		return false
	}
	p.sheets = slices.Delete(p.sheets, i, i+1)
	p.cache.SetSheets(p.sheets...)
	return true
}

// AddRule places one rule directly into the layer named by layerPath (the
// unlayered rules when empty), with an explicit weight and source order.
// Directly placed rules follow every sheet rule of equal weight in the
// same layer. With a rule budget the cascade for the current environment
// is rebuilt right away; if it cannot hold the rule, the rule is dropped
// and the error returned. On error nothing is added.
func (p *Processor) AddRule(selector string, block *css.DeclarationBlock, weight uint32, order int, layerPath ...string) error {
	list, err := css.ParseSelectorList(selector, css.DefaultParseContext())
	if err != nil {
		return err
	}

	rule := &css.Rule{SelectorText: selector, Selectors: list, Block: block, SourceOrder: order}
	rs := rule.RuleSelectors(order)
	for i := range rs {
		rs[i].Weight = weight
	}
	prev := p.placed
	p.placed = append(slices.Clip(p.placed), cascade.Placed{Selectors: rs, Layer: slices.Clone(layerPath)})
	p.cache.SetRules(p.placed)
	if p.cfg.Cache.MaxRules == 0 {
		return nil
	}
	if _, err := p.cache.Resolve(p.env); err != nil {
		p.placed = prev
		p.cache.SetRules(p.placed)
		return fmt.Errorf("rule %q: %w", selector, err)
	}
	return nil
}

// Cascade returns the cascade for the current environment. When building
// fails the previous cascade, if any, is returned with the error.
func (p *Processor) Cascade() (*cascade.Resolved, error) {
	return p.cache.Resolve(p.env)
}

// cascadeOrFail is Cascade for operations that can fall back to an older
// cascade. With a match context the cascade is built for its quirks mode,
// so rule keys fold the way the matcher compares.
func (p *Processor) cascadeOrFail(tree *match.TreeMatchContext) (*cascade.Resolved, error) {
	if tree != nil {
		p.cache.SetQuirks(tree.Quirks)
	}
	r, err := p.Cascade()
	if r == nil {
		if err == nil {
			err = errors.New("no cascade")
		}
		return nil, err
	}
	if err != nil {
		p.log.Warn("Using previous cascade", zap.Error(err))
	}
	return r, nil
}

// NewTreeMatchContext returns a matching context for doc with the
// configured quirks mode and document states applied.
func (p *Processor) NewTreeMatchContext(doc html.Document) *match.TreeMatchContext {
	opts := match.ForDocument(doc)
	opts.IsHTML = opts.IsHTML && p.cfg.DocumentIsHTML
	opts.Quirks = opts.Quirks || p.cfg.QuirksMode
	opts.DocumentState |= p.cfg.DocumentStates()
	return match.NewTreeMatchContext(opts)
}

func (p *Processor) treeFor(el html.Element, tree *match.TreeMatchContext) *match.TreeMatchContext {
	if tree != nil {
		return tree
	}
	return p.NewTreeMatchContext(el.OwnerDocument())
}

// Match is one rule selector that matched an element.
type Match struct {
	css.RuleSelector
	Layer *layer.Layer
	// LayerIndex is the position of Layer in cascade order.
	LayerIndex int
}

// MatchResults lists matches in ascending cascade priority.
type MatchResults []Match

// ByPriority returns the matches highest priority first.
func (m MatchResults) ByPriority() MatchResults {
	out := slices.Clone(m)
	slices.Reverse(out)
	return out
}

// RulesMatching returns the rules whose selectors match el, layer by layer
// in cascade order. tree may be nil.
func (p *Processor) RulesMatching(el html.Element, tree *match.TreeMatchContext) (MatchResults, error) {
	return p.collect(el, tree, func(l *layer.Layer, t *match.TreeMatchContext, fn func(*rulehash.RuleValue)) {
		l.Data().RulesMatching(el, t, fn)
	})
}

// RulesMatchingPseudo returns the rules creating the pseudo-element name
// (e.g. "before") on el.
func (p *Processor) RulesMatchingPseudo(el html.Element, name string, tree *match.TreeMatchContext) (MatchResults, error) {
	name = strings.ToLower(strings.TrimLeft(name, ":"))
	return p.collect(el, tree, func(l *layer.Layer, t *match.TreeMatchContext, fn func(*rulehash.RuleValue)) {
		l.Data().RulesMatchingPseudo(el, name, t, fn)
	})
}

// PseudoElements returns the names of the pseudo-elements any layer has
// rules for, sorted.
func (p *Processor) PseudoElements() ([]string, error) {
	r, err := p.cascadeOrFail(nil)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, l := range r.Layers() {
		for _, name := range l.Data().PseudoElements() {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

func (p *Processor) collect(el html.Element, tree *match.TreeMatchContext,
	enumerate func(*layer.Layer, *match.TreeMatchContext, func(*rulehash.RuleValue))) (MatchResults, error) {
	tree = p.treeFor(el, tree)
	r, err := p.cascadeOrFail(tree)
	if err != nil {
		return nil, err
	}

	var out MatchResults
	for i, l := range r.Layers() {
		enumerate(l, tree, func(v *rulehash.RuleValue) {
			out = append(out, Match{RuleSelector: v.RuleSelector, Layer: l, LayerIndex: i})
		})
	}
	return out, nil
}

// ResolveStyles computes the winning declaration of every property for el
// from its matching rules and its style attribute.
func (p *Processor) ResolveStyles(el html.Element, tree *match.TreeMatchContext) (map[string]css.Declaration, error) {
	matches, err := p.RulesMatching(el, tree)
	if err != nil {
		return nil, fmt.Errorf("failed to find matching rules: %w", err)
	}
	var inline *css.DeclarationBlock
	if text, ok := el.Attribute(css.NamespaceNone, "style"); ok {
		inline = css.ParseDeclarations(text)
	}
	return applyCascade(matches, inline), nil
}

// cascadeEntry tracks the cascade information for a declaration
type cascadeEntry struct {
	layerIndex int
	important  bool
	isInline   bool
}

// applyCascade picks the winning declarations. matches are in ascending
// priority, so among normal declarations the last one wins. Important
// declarations win over normal ones, and between important declarations
// the earlier layer wins. Inline declarations beat the sheets at the same
// importance.
func applyCascade(matches MatchResults, inline *css.DeclarationBlock) map[string]css.Declaration {
	winning := make(map[string]css.Declaration)
	specs := make(map[string]cascadeEntry)

	consider := func(d css.Declaration, entry cascadeEntry) {
		existing, ok := specs[d.Property]
		if !ok || shouldReplace(entry, existing) {
			winning[d.Property] = d
			specs[d.Property] = entry
		}
	}

	for _, m := range matches {
		if m.Rule.Block == nil {
			continue
		}
		for _, d := range m.Rule.Block.Declarations {
			consider(d, cascadeEntry{layerIndex: m.LayerIndex, important: d.Important})
		}
	}
	if inline != nil {
		for _, d := range inline.Declarations {
			consider(d, cascadeEntry{important: d.Important, isInline: true})
		}
	}
	return winning
}

// shouldReplace determines if a later declaration replaces the current
// winner.
func shouldReplace(newEntry, existing cascadeEntry) bool {
	if newEntry.important != existing.important {
		return newEntry.important
	}
	if newEntry.isInline || existing.isInline {
		return newEntry.isInline
	}
	if newEntry.important {
		return newEntry.layerIndex <= existing.layerIndex
	}
	return true
}

// StylesString converts a styles map to the text of a style attribute.
func StylesString(styles map[string]css.Declaration) string {
	if len(styles) == 0 {
		return ""
	}

	// Sort properties for consistent output
	properties := make([]string, 0, len(styles))
	for property := range styles {
		properties = append(properties, property)
	}
	sort.Strings(properties)

	parts := make([]string, 0, len(properties))
	for _, property := range properties {
		parts = append(parts, styles[property].String())
	}
	return strings.Join(parts, "; ")
}

// HasStateDependentStyle returns the restyle needed when any state in mask
// changes on el.
func (p *Processor) HasStateDependentStyle(el html.Element, mask css.EventState, tree *match.TreeMatchContext) (restyle.Hint, error) {
	tree = p.treeFor(el, tree)
	r, err := p.cascadeOrFail(tree)
	if err != nil {
		return restyle.None, err
	}

	hint := restyle.None
	for _, l := range r.Layers() {
		hint = l.Data().HasStateDependentStyle(el, mask, tree, hint)
	}
	p.log.Debug("State restyle",
		zap.Stringer("element", stringer(el)),
		zap.Stringer("states", mask),
		zap.Stringer("hint", hint))
	return hint, nil
}

// HasAttributeDependentStyle returns the restyle needed after the
// attribute ns|name of el changed. el carries the new value; old and
// oldPresent describe the value before the change.
func (p *Processor) HasAttributeDependentStyle(el html.Element, ns int, name, old string, oldPresent bool, tree *match.TreeMatchContext) (restyle.Result, error) {
	var res restyle.Result
	tree = p.treeFor(el, tree)
	r, err := p.cascadeOrFail(tree)
	if err != nil {
		return res, err
	}

	// :lang() reaches every descendant that inherits the language
	if name == "lang" {
		res.Hint |= restyle.Subtree
	}

	current, currentPresent := el.Attribute(ns, name)
	before := html.WithAttribute(el, ns, name, old, oldPresent)
	for _, l := range r.Layers() {
		data := l.Data()
		data.HasAttributeDependentStyle(el, attributeChange(ns, name, old, oldPresent), tree, &res)
		data.HasAttributeDependentStyle(before, attributeChange(ns, name, current, currentPresent), tree, &res)
	}
	p.log.Debug("Attribute restyle",
		zap.Stringer("element", stringer(el)),
		zap.String("attribute", name),
		zap.Stringer("hint", res.Hint))
	return res, nil
}

func attributeChange(ns int, name, other string, present bool) ruledata.AttributeChange {
	return ruledata.AttributeChange{Namespace: ns, Name: name, Other: other, OtherPresent: present}
}

// HasDocumentStateDependentStyle reports whether any selector depends on
// a document state in mask.
func (p *Processor) HasDocumentStateDependentStyle(mask css.DocumentState) (bool, error) {
	r, err := p.cascadeOrFail(nil)
	if err != nil {
		return false, err
	}
	return r.SelectorDocumentStates().HasAny(mask), nil
}

// MediumFeaturesChanged switches to env and reports whether the cascade
// built for the previous environment would differ under it.
func (p *Processor) MediumFeaturesChanged(env css.Features) bool {
	changed := p.cache.MediumFeaturesChanged(env)
	p.env = env
	return changed
}

type elementStringer struct{ el html.Element }

func (s elementStringer) String() string {
	if st, ok := s.el.(fmt.Stringer); ok {
		return st.String()
	}
	return s.el.LocalName()
}

func stringer(el html.Element) fmt.Stringer { return elementStringer{el} }
