package cascade

import (
	"fmt"

	"stylematch/internal/css"
	"stylematch/internal/layer"
)

// Resolved is a built cascade: the finalized layer tree for one set of
// sheets under one Key. It is read-only once returned.
type Resolved struct {
	root           *layer.Layer
	layers         []*layer.Layer
	key            Key
	rules          int
	documentStates css.DocumentState
}

// Root returns the layer holding the unlayered rules.
func (r *Resolved) Root() *layer.Layer { return r.root }

// Layers returns every layer in cascade order, lowest priority first. The
// root layer is last.
func (r *Resolved) Layers() []*layer.Layer { return r.layers }

// Key returns the conditions the cascade was built under.
func (r *Resolved) Key() Key { return r.key }

// RuleCount returns the number of rule selectors in the cascade.
func (r *Resolved) RuleCount() int { return r.rules }

// SelectorDocumentStates returns the document states any layer depends on.
func (r *Resolved) SelectorDocumentStates() css.DocumentState { return r.documentStates }

// KeyframesRuleForName looks the name up across layers; the layer with the
// highest priority wins.
func (r *Resolved) KeyframesRuleForName(name string) (*css.NamedRule, bool) {
	for i := len(r.layers) - 1; i >= 0; i-- {
		if rule, ok := r.layers[i].Data().KeyframesRuleForName(name); ok {
			return rule, true
		}
	}
	return nil, false
}

// CounterStyleRuleForName looks the name up across layers; the layer with
// the highest priority wins.
func (r *Resolved) CounterStyleRuleForName(name string) (*css.NamedRule, bool) {
	for i := len(r.layers) - 1; i >= 0; i-- {
		if rule, ok := r.layers[i].Data().CounterStyleRuleForName(name); ok {
			return rule, true
		}
	}
	return nil, false
}

// builder walks style sheets into a fresh layer tree.
type builder struct {
	env      Environment
	key      Key
	root     *layer.Layer
	order    int
	rules    int
	maxRules int
}

// Placed is a rule added directly rather than through a sheet. Its
// selectors keep their weight; SourceOrder is relative to other placed
// rules, which all follow the sheets.
type Placed struct {
	Selectors []css.RuleSelector
	Layer     []string
}

func build(sheets []*css.Stylesheet, placed []Placed, env Environment, quirks bool, maxRules int) (*Resolved, error) {
	b := &builder{env: env, root: layer.NewRoot(quirks), maxRules: maxRules}
	for _, sheet := range sheets {
		if err := b.walk(sheet.Items, b.root); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet.Href, err)
		}
	}
	base := b.order
	for _, p := range placed {
		if err := b.place(p, base); err != nil {
			return nil, err
		}
	}

	r := &Resolved{root: b.root, key: b.key, rules: b.rules}
	b.root.EnumerateAllLayers(func(l *layer.Layer) {
		l.Finalize()
		r.layers = append(r.layers, l)
		r.documentStates |= l.Data().SelectorDocumentStates()
	})
	return r, nil
}

func (b *builder) walk(items []css.Item, into *layer.Layer) error {
	for _, it := range items {
		switch v := it.(type) {
		case *css.Rule:
			selectors := v.RuleSelectors(b.order)
			b.order++
			if err := b.reserve(len(selectors)); err != nil {
				return err
			}
			into.AddRule(selectors...)

		case *css.MediaRule:
			if b.key.record(Condition{Media: &v.Query, Result: b.env.MatchesMedia(v.Query)}) {
				if err := b.walk(v.Items, into); err != nil {
					return err
				}
			}

		case *css.SupportsRule:
			if b.key.record(Condition{Supports: v.Condition, Result: b.env.Supports(v.Condition)}) {
				if err := b.walk(v.Items, into); err != nil {
					return err
				}
			}

		case *css.LayerStatement:
			for _, name := range v.Names {
				into.CreateNamedChildLayer(name)
			}

		case *css.LayerBlock:
			target := into.CreateAnonymousChildLayer
			if v.Name != nil {
				target = func() *layer.Layer { return into.CreateNamedChildLayer(v.Name) }
			}
			if err := b.walk(v.Items, target()); err != nil {
				return err
			}

		case *css.ImportRule:
			if err := b.walkImport(v, into); err != nil {
				return err
			}

		case *css.NamedRule:
			into.AddAtRule(v)
		}
	}
	return nil
}

func (b *builder) reserve(n int) error {
	if b.maxRules > 0 && b.rules+n > b.maxRules {
		return fmt.Errorf("%w: more than %d rule selectors", ErrCapacityExceeded, b.maxRules)
	}
	b.rules += n
	return nil
}

func (b *builder) place(p Placed, base int) error {
	if err := b.reserve(len(p.Selectors)); err != nil {
		return err
	}
	into := b.root.CreateNamedChildLayer(p.Layer)
	for _, rs := range p.Selectors {
		rs.SourceOrder += base
		into.AddRule(rs)
	}
	return nil
}

func (b *builder) walkImport(imp *css.ImportRule, into *layer.Layer) error {
	if imp.Media.Text != "" && !b.key.record(Condition{Media: &imp.Media, Result: b.env.MatchesMedia(imp.Media)}) {
		return nil
	}
	if imp.Supports != nil && !b.key.record(Condition{Supports: imp.Supports, Result: b.env.Supports(imp.Supports)}) {
		return nil
	}
	if imp.Sheet == nil {
		return nil
	}
	switch {
	case imp.Anonymous:
		into = into.CreateAnonymousChildLayer()
	case imp.Layer != nil:
		into = into.CreateNamedChildLayer(imp.Layer)
	}
	return b.walk(imp.Sheet.Items, into)
}
