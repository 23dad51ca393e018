package css_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stylematch/internal/css"
)

func TestFeatures_MatchesMedia(t *testing.T) {
	f := css.Features{MediaType: "screen", Width: 800, Height: 600, Resolution: 2, ColorScheme: "dark"}

	cases := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"all", true},
		{"screen", true},
		{"print", false},
		{"not print", true},
		{"only screen and (min-width: 600px)", true},
		{"screen and (max-width: 600px)", false},
		{"(width >= 50em)", true},
		{"(width > 800px)", false},
		{"(orientation: landscape)", true},
		{"(min-resolution: 2dppx)", true},
		{"(min-resolution: 192dpi)", true},
		{"(prefers-color-scheme: dark)", true},
		{"(prefers-reduced-motion: reduce)", false},
		{"print, (max-width: 900px)", true},
		{"screen and", false},
		{"(min-aspect-ratio: 4/3)", true},
		{"(unknown-feature)", false},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			assert.Equal(t, tc.want, f.MatchesMedia(css.ParseMediaQueryList(tc.query)))
		})
	}
}

func TestFeatures_Supports(t *testing.T) {
	sheet, err := newParser().ParseString(`
		@supports (display: grid) and (not (display: inline-grid)) { a {} }
		@supports (gap: 1px) or (grid-gap: 1px) { b {} }
		@supports selector(a > b) { c {} }
	`)
	assert.NoError(t, err)

	conds := make([]*css.SupportsCondition, 0, len(sheet.Items))
	for _, it := range sheet.Items {
		conds = append(conds, it.(*css.SupportsRule).Condition)
	}

	all := css.Features{}
	assert.False(t, all.Supports(conds[0]), "not (inline-grid) fails when every property is supported")
	assert.True(t, all.Supports(conds[1]))
	assert.True(t, all.Supports(conds[2]))

	limited := css.Features{Properties: map[string]bool{"display": true, "grid-gap": true}}
	assert.False(t, limited.Supports(conds[0]))
	assert.True(t, limited.Supports(conds[1]))

	onlyGap := css.Features{Properties: map[string]bool{"gap": true}}
	assert.True(t, onlyGap.Supports(conds[1]))
}
