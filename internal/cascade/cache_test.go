package cascade_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stylematch/internal/cascade"
	"stylematch/internal/css"
	"stylematch/internal/layer"
)

func parse(t *testing.T, text string) *css.Stylesheet {
	t.Helper()
	sheet, err := css.NewParser(zap.NewNop(), css.NewNamespaces()).ParseString(text)
	require.NoError(t, err)
	return sheet
}

func width(w float64) css.Features {
	f := css.DefaultFeatures()
	f.Width = w
	return f
}

const responsive = `
	p { color: black }
	@media (min-width: 600px) { .wide { color: red } }
	@supports (display: grid) { .grid { display: grid } }
`

func TestResolve_ReusesCascadeForEquivalentEnvironments(t *testing.T) {
	c := cascade.New(cascade.Config{Capacity: 2}, nil)
	c.SetSheets(parse(t, responsive))

	wide, err := c.Resolve(width(800))
	require.NoError(t, err)
	assert.Equal(t, 3, wide.RuleCount())
	require.Len(t, wide.Key().Conditions, 2)
	assert.True(t, wide.Key().Conditions[0].Result)

	again, err := c.Resolve(width(1200))
	require.NoError(t, err)
	assert.Same(t, wide, again, "same condition results")
	assert.Equal(t, 1, c.Len())

	narrow, err := c.Resolve(width(400))
	require.NoError(t, err)
	assert.NotSame(t, wide, narrow)
	assert.Equal(t, 2, narrow.RuleCount())
	assert.NotEqual(t, wide.Key().Fingerprint(), narrow.Key().Fingerprint())
	assert.Equal(t, 2, c.Len())
	assert.Same(t, narrow, c.Active())

	// promotion to most recently used
	back, err := c.Resolve(width(900))
	require.NoError(t, err)
	assert.Same(t, wide, back)
	assert.Same(t, wide, c.Active())
}

func TestResolve_EvictsLeastRecentlyUsed(t *testing.T) {
	c := cascade.New(cascade.Config{Capacity: 1}, nil)
	c.SetSheets(parse(t, responsive))

	wide, err := c.Resolve(width(800))
	require.NoError(t, err)
	_, err = c.Resolve(width(400))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	rebuilt, err := c.Resolve(width(800))
	require.NoError(t, err)
	assert.NotSame(t, wide, rebuilt)
}

func TestResolve_FailedBuildKeepsPreviousCascade(t *testing.T) {
	c := cascade.New(cascade.Config{Capacity: 4, MaxRules: 2}, nil)
	c.SetSheets(parse(t, `
		a { color: red }
		b { color: red }
		@media (max-width: 500px) { i { color: red } }
	`))

	good, err := c.Resolve(width(800))
	require.NoError(t, err)

	got, err := c.Resolve(width(400))
	require.ErrorIs(t, err, cascade.ErrCapacityExceeded)
	assert.Same(t, good, got)
	assert.Equal(t, 1, c.Len(), "partial build is discarded")

	got, err = c.Resolve(width(800))
	require.NoError(t, err)
	assert.Same(t, good, got)
}

func TestMediumFeaturesChanged(t *testing.T) {
	c := cascade.New(cascade.Config{Capacity: 2}, zap.NewNop())
	sheet := parse(t, responsive)
	c.SetSheets(sheet)
	assert.False(t, c.MediumFeaturesChanged(width(400)), "nothing resolved yet")

	_, err := c.Resolve(width(800))
	require.NoError(t, err)
	assert.False(t, c.MediumFeaturesChanged(width(1000)))
	assert.True(t, c.MediumFeaturesChanged(width(400)))

	grid := width(800)
	grid.Properties = map[string]bool{"color": true}
	assert.True(t, c.MediumFeaturesChanged(grid))

	c.SetSheets(sheet)
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.MediumFeaturesChanged(width(400)), "previous key is retained")
	assert.False(t, c.MediumFeaturesChanged(width(1000)))
}

func layerNames(r *cascade.Resolved) []string {
	var names []string
	for _, l := range r.Layers() {
		names = append(names, l.Name())
	}
	return names
}

func TestResolve_Layers(t *testing.T) {
	c := cascade.New(cascade.Config{Capacity: 1}, nil)
	sheet := parse(t, `
		@import url(theme.css) layer(theme);
		@layer base, components;
		@layer components { p { color: blue } }
		@layer base { p { color: red } }
		@layer { p { color: green } }
		@media print { @layer print { p { color: black } } }
		p { color: gray }
	`)
	imp := sheet.Items[0].(*css.ImportRule)
	imp.Sheet = parse(t, `@layer inner { p { color: white } } @keyframes spin { from { opacity: 0 } }`)
	c.SetSheets(sheet)

	r, err := c.Resolve(css.DefaultFeatures())
	require.NoError(t, err)
	assert.Equal(t, []string{"theme.inner", "theme", "base", "components", "<anonymous>", ""}, layerNames(r))
	assert.Equal(t, 5, r.RuleCount())
	for _, l := range r.Layers() {
		assert.True(t, l.IsFinalized(), l.Name())
	}

	_, ok := r.Root().Lookup("print")
	assert.False(t, ok, "layers inside a failing @media are not created")

	kf, ok := r.KeyframesRuleForName("spin")
	require.True(t, ok)
	assert.Contains(t, kf.Body, "opacity")
	_, ok = r.CounterStyleRuleForName("spin")
	assert.False(t, ok)
}

func TestResolve_LaterLayerWinsNamedRules(t *testing.T) {
	c := cascade.New(cascade.Config{Capacity: 1}, nil)
	c.SetSheets(parse(t, `
		@layer a { @keyframes spin { from { opacity: 0 } } }
		@keyframes spin { to { opacity: 1 } }
		@layer b { @keyframes spin { from { opacity: 0.5 } } }
	`))
	r, err := c.Resolve(css.DefaultFeatures())
	require.NoError(t, err)

	kf, ok := r.KeyframesRuleForName("spin")
	require.True(t, ok)
	assert.Contains(t, kf.Body, "to", "unlayered rules come last in cascade order")

	var a *layer.Layer
	a, ok = r.Root().Lookup("a")
	require.True(t, ok)
	_, ok = a.Data().KeyframesRuleForName("spin")
	assert.True(t, ok)
}

func TestResolve_DocumentStates(t *testing.T) {
	c := cascade.New(cascade.Config{Capacity: 1}, nil)
	c.SetSheets(parse(t, `@layer x { p:-moz-window-inactive { color: gray } }`))
	r, err := c.Resolve(css.DefaultFeatures())
	require.NoError(t, err)
	assert.Equal(t, css.DocumentStateWindowInactive, r.SelectorDocumentStates())
}
