package stylematch

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/restyle"
)

// Invalidation is the restyle one change causes.
type Invalidation struct {
	Element html.Element
	Path    string
	Hint    restyle.Hint
	// Affected lists the elements the hint covers, in document order.
	Affected []html.Element
}

var errNoTarget = errors.New("no element selected")

func (d *Document) targets(selector string) ([]html.Element, error) {
	els, err := d.html.QuerySelectorAll(selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w by %q", errNoTarget, selector)
	}
	return els, nil
}

// ToggleState flips the event states in states on every element selected
// by selector and returns the restyle each flip needs.
func (d *Document) ToggleState(selector string, states css.EventState) ([]Invalidation, error) {
	els, err := d.targets(selector)
	if err != nil {
		return nil, err
	}
	var out []Invalidation
	for _, el := range els {
		tree := d.proc.NewTreeMatchContext(d.html)
		hint, err := d.proc.HasStateDependentStyle(el, states, tree)
		if err != nil {
			return nil, err
		}
		d.html.ToggleState(el, states)
		out = append(out, d.invalidation(el, hint, nil))
	}
	return out, nil
}

// SetAttribute sets, or removes when present is false, the attribute name
// on every element selected by selector and returns the restyle each
// change needs. Elements whose attribute does not change are left out.
func (d *Document) SetAttribute(selector, name, value string, present bool) ([]Invalidation, error) {
	els, err := d.targets(selector)
	if err != nil {
		return nil, err
	}
	var out []Invalidation
	for _, el := range els {
		old, oldPresent := d.html.SetAttribute(el, name, value, present)
		if old == value && oldPresent == present {
			continue
		}
		tree := d.proc.NewTreeMatchContext(d.html)
		res, err := d.proc.HasAttributeDependentStyle(el, css.NamespaceNone, name, old, oldPresent, tree)
		if err != nil {
			return nil, err
		}
		out = append(out, d.invalidation(el, res.Hint, &res.Data))
	}
	return out, nil
}

func (d *Document) invalidation(el html.Element, hint restyle.Hint, data *restyle.Data) Invalidation {
	inv := Invalidation{
		Element:  el,
		Path:     Path(el),
		Hint:     hint,
		Affected: restyle.Affected(el, hint, data, d.proc.NewTreeMatchContext(d.html)),
	}
	d.engine.log.Debug("Restyle",
		zap.String("element", inv.Path),
		zap.Stringer("hint", hint),
		zap.Int("affected", len(inv.Affected)))
	return inv
}

// SetDocumentState replaces the document states and reports whether any
// rule depends on a state that changed.
func (d *Document) SetDocumentState(state css.DocumentState) (bool, error) {
	changed := d.html.State() ^ state
	d.html.SetDocumentState(state)
	if changed == 0 {
		return false, nil
	}
	return d.proc.HasDocumentStateDependentStyle(changed)
}

// SetFeatures switches the media features and reports whether the
// document's cascade changes under them.
func (d *Document) SetFeatures(env css.Features) bool {
	return d.proc.MediumFeaturesChanged(env)
}
