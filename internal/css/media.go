package css

import (
	"strconv"
	"strings"
)

// MediaQueryList is a comma separated list of media queries. An empty list
// matches every environment.
type MediaQueryList struct {
	Text    string
	Queries []MediaQuery
}

// MediaQuery is one query of a list.
type MediaQuery struct {
	Not      bool
	Only     bool
	Type     string // "" or "all" match every media type
	Features []MediaFeature
	Invalid  bool // unparseable queries never match
}

// MediaFeature is one parenthesized test, e.g. (min-width: 600px) or
// (width >= 600px). Op is "" for boolean tests and ":" for the classic form.
type MediaFeature struct {
	Name  string
	Op    string
	Value string
}

// Features describes the rendering environment conditional rules are
// evaluated against.
type Features struct {
	MediaType     string          `yaml:"media_type" validate:"omitempty,oneof=screen print speech all"`
	Width         float64         `yaml:"width" validate:"gte=0"`
	Height        float64         `yaml:"height" validate:"gte=0"`
	Resolution    float64         `yaml:"resolution" validate:"gte=0"` // dppx
	ColorScheme   string          `yaml:"color_scheme" validate:"omitempty,oneof=light dark"`
	ReducedMotion bool            `yaml:"reduced_motion"`
	Properties    map[string]bool `yaml:"properties,omitempty"` // nil: every property is supported
}

// DefaultFeatures returns a desktop screen environment.
func DefaultFeatures() Features {
	return Features{
		MediaType:   "screen",
		Width:       1280,
		Height:      800,
		Resolution:  1,
		ColorScheme: "light",
	}
}

// ParseMediaQueryList parses the prelude of an @media rule or the media part
// of an @import.
func ParseMediaQueryList(text string) MediaQueryList {
	text = strings.TrimSpace(text)
	list := MediaQueryList{Text: text}
	if text == "" {
		return list
	}
	for _, part := range splitTopLevel(text, ',') {
		list.Queries = append(list.Queries, parseMediaQuery(strings.TrimSpace(part)))
	}
	return list
}

func parseMediaQuery(text string) MediaQuery {
	var q MediaQuery
	if text == "" {
		q.Invalid = true
		return q
	}
	expectAnd := false
	for _, word := range mediaWords(text) {
		lower := strings.ToLower(word)
		switch {
		case strings.HasPrefix(word, "("):
			if expectAnd {
				q.Invalid = true
				return q
			}
			f, ok := parseMediaFeature(word)
			if !ok {
				q.Invalid = true
				return q
			}
			q.Features = append(q.Features, f)
			expectAnd = true
		case lower == "and":
			if !expectAnd {
				q.Invalid = true
				return q
			}
			expectAnd = false
		case lower == "not" && q.Type == "" && len(q.Features) == 0:
			q.Not = true
		case lower == "only" && q.Type == "" && len(q.Features) == 0:
			q.Only = true
		case q.Type == "" && len(q.Features) == 0:
			q.Type = lower
			expectAnd = true
		default:
			q.Invalid = true
			return q
		}
	}
	if !expectAnd {
		q.Invalid = true
	}
	return q
}

// mediaWords splits on whitespace outside parentheses.
func mediaWords(text string) []string {
	var (
		words []string
		depth int
		start = -1
	)
	for i, r := range text {
		switch {
		case r == '(':
			if start < 0 {
				start = i
			}
			depth++
		case r == ')':
			depth--
			if depth == 0 && start >= 0 {
				words = append(words, text[start:i+1])
				start = -1
			}
		case depth == 0 && (r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'):
			if start >= 0 {
				words = append(words, text[start:i])
				start = -1
			}
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, text[start:])
	}
	return words
}

func parseMediaFeature(text string) (MediaFeature, bool) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "("), ")"))
	if inner == "" {
		return MediaFeature{}, false
	}
	for _, op := range []string{">=", "<=", ":", ">", "<", "="} {
		if i := strings.Index(inner, op); i > 0 {
			return MediaFeature{
				Name:  strings.ToLower(strings.TrimSpace(inner[:i])),
				Op:    op,
				Value: strings.TrimSpace(inner[i+len(op):]),
			}, true
		}
	}
	return MediaFeature{Name: strings.ToLower(inner)}, true
}

// MatchesMedia evaluates a media query list.
func (f Features) MatchesMedia(list MediaQueryList) bool {
	if len(list.Queries) == 0 {
		return true
	}
	for _, q := range list.Queries {
		if f.matchQuery(q) {
			return true
		}
	}
	return false
}

func (f Features) matchQuery(q MediaQuery) bool {
	if q.Invalid {
		return false
	}
	result := q.Type == "" || q.Type == "all" || q.Type == f.mediaType()
	for _, feat := range q.Features {
		if !result {
			break
		}
		result = f.matchFeature(feat)
	}
	if q.Not {
		return !result
	}
	return result
}

func (f Features) mediaType() string {
	if f.MediaType == "" {
		return "screen"
	}
	return f.MediaType
}

func (f Features) matchFeature(feat MediaFeature) bool {
	name, op := feat.Name, feat.Op
	switch {
	case strings.HasPrefix(name, "min-") && op == ":":
		name, op = name[4:], ">="
	case strings.HasPrefix(name, "max-") && op == ":":
		name, op = name[4:], "<="
	case op == ":":
		op = "="
	}
	switch name {
	case "width", "height":
		actual := f.Width
		if name == "height" {
			actual = f.Height
		}
		if op == "" {
			return actual > 0
		}
		want, ok := parseLength(feat.Value)
		return ok && compareFloat(actual, op, want)
	case "aspect-ratio":
		if f.Height == 0 {
			return false
		}
		if op == "" {
			return true
		}
		want, ok := parseRatio(feat.Value)
		return ok && compareFloat(f.Width/f.Height, op, want)
	case "orientation":
		orientation := "landscape"
		if f.Height >= f.Width {
			orientation = "portrait"
		}
		return op == "" || strings.EqualFold(feat.Value, orientation)
	case "resolution":
		if op == "" {
			return f.Resolution > 0
		}
		want, ok := parseResolution(feat.Value)
		return ok && compareFloat(f.Resolution, op, want)
	case "prefers-color-scheme":
		scheme := f.ColorScheme
		if scheme == "" {
			scheme = "light"
		}
		return op == "" || strings.EqualFold(feat.Value, scheme)
	case "prefers-reduced-motion":
		if op == "" {
			return f.ReducedMotion
		}
		if f.ReducedMotion {
			return strings.EqualFold(feat.Value, "reduce")
		}
		return strings.EqualFold(feat.Value, "no-preference")
	case "color":
		return true
	case "hover", "any-hover":
		return op == "" || strings.EqualFold(feat.Value, "hover")
	case "pointer", "any-pointer":
		return op == "" || strings.EqualFold(feat.Value, "fine")
	case "grid":
		return op == "=" && feat.Value == "0"
	}
	return false
}

func compareFloat(actual float64, op string, want float64) bool {
	switch op {
	case ">=":
		return actual >= want
	case "<=":
		return actual <= want
	case ">":
		return actual > want
	case "<":
		return actual < want
	default:
		return actual == want
	}
}

func parseLength(v string) (float64, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	units := []struct {
		suffix string
		factor float64
	}{
		{"rem", 16}, {"px", 1}, {"em", 16}, {"pt", 96.0 / 72}, {"pc", 16}, {"in", 96}, {"cm", 96 / 2.54}, {"mm", 96 / 25.4},
	}
	for _, u := range units {
		if strings.HasSuffix(v, u.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSuffix(v, u.suffix), 64)
			return n * u.factor, err == nil
		}
	}
	n, err := strconv.ParseFloat(v, 64)
	return n, err == nil
}

func parseResolution(v string) (float64, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	units := []struct {
		suffix string
		factor float64
	}{
		{"dppx", 1}, {"dpcm", 2.54 / 96}, {"dpi", 1.0 / 96}, {"x", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(v, u.suffix) {
			n, err := strconv.ParseFloat(strings.TrimSuffix(v, u.suffix), 64)
			return n * u.factor, err == nil
		}
	}
	return 0, false
}

func parseRatio(v string) (float64, bool) {
	num, den, found := strings.Cut(v, "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, false
	}
	if !found {
		return n, true
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(den), 64)
	if err != nil || d == 0 {
		return 0, false
	}
	return n / d, true
}

// SupportsKind enumerates @supports condition nodes.
type SupportsKind uint8

const (
	SupportsDeclaration SupportsKind = iota
	SupportsNot
	SupportsAnd
	SupportsOr
	SupportsSelector
	SupportsUnknown
)

// SupportsCondition is a parsed @supports prelude.
type SupportsCondition struct {
	Text       string
	Kind       SupportsKind
	Property   string
	Value      string
	SelectorOK bool // selector(...) parsed successfully
	Children   []*SupportsCondition
}

// Supports evaluates an @supports condition.
func (f Features) Supports(c *SupportsCondition) bool {
	if c == nil {
		return true
	}
	switch c.Kind {
	case SupportsDeclaration:
		if c.Property == "" || c.Value == "" {
			return false
		}
		if f.Properties == nil {
			return true
		}
		return f.Properties[c.Property]
	case SupportsNot:
		return len(c.Children) == 1 && !f.Supports(c.Children[0])
	case SupportsAnd:
		for _, child := range c.Children {
			if !f.Supports(child) {
				return false
			}
		}
		return true
	case SupportsOr:
		for _, child := range c.Children {
			if f.Supports(child) {
				return true
			}
		}
		return false
	case SupportsSelector:
		return c.SelectorOK
	}
	return false
}

// parseSupports parses an @supports prelude. selectorOK reports whether
// a selector() argument is valid.
func parseSupports(text string, selectorOK func(string) bool) *SupportsCondition {
	text = strings.TrimSpace(text)
	cond := &SupportsCondition{Text: text, Kind: SupportsUnknown}
	words := mediaWords(text)
	if len(words) == 0 {
		return cond
	}
	if strings.EqualFold(words[0], "not") && len(words) == 2 {
		cond.Kind = SupportsNot
		cond.Children = []*SupportsCondition{parseSupportsInParens(words[1], selectorOK)}
		return cond
	}
	if len(words) == 1 {
		inner := parseSupportsInParens(words[0], selectorOK)
		inner.Text = text
		return inner
	}
	var joiner string
	for i, w := range words {
		if i%2 == 1 {
			lower := strings.ToLower(w)
			if lower != "and" && lower != "or" || (joiner != "" && joiner != lower) {
				return cond
			}
			joiner = lower
			continue
		}
		cond.Children = append(cond.Children, parseSupportsInParens(w, selectorOK))
	}
	if len(words)%2 == 0 {
		cond.Children = nil
		return cond
	}
	if joiner == "and" {
		cond.Kind = SupportsAnd
	} else {
		cond.Kind = SupportsOr
	}
	return cond
}

func parseSupportsInParens(word string, selectorOK func(string) bool) *SupportsCondition {
	lower := strings.ToLower(word)
	if strings.HasPrefix(lower, "selector(") && strings.HasSuffix(word, ")") {
		arg := word[len("selector(") : len(word)-1]
		return &SupportsCondition{Text: word, Kind: SupportsSelector, SelectorOK: selectorOK(arg)}
	}
	if !strings.HasPrefix(word, "(") || !strings.HasSuffix(word, ")") {
		return &SupportsCondition{Text: word, Kind: SupportsUnknown}
	}
	inner := strings.TrimSpace(word[1 : len(word)-1])
	if strings.HasPrefix(inner, "(") || strings.HasPrefix(strings.ToLower(inner), "not") ||
		strings.HasPrefix(strings.ToLower(inner), "selector(") {
		return parseSupports(inner, selectorOK)
	}
	prop, value, ok := strings.Cut(inner, ":")
	if !ok {
		return &SupportsCondition{Text: word, Kind: SupportsUnknown}
	}
	return &SupportsCondition{
		Text:     word,
		Kind:     SupportsDeclaration,
		Property: strings.ToLower(strings.TrimSpace(prop)),
		Value:    strings.TrimSpace(value),
	}
}

// splitTopLevel splits on sep outside parentheses, brackets and quotes.
func splitTopLevel(text string, sep byte) []string {
	var (
		parts []string
		depth int
		quote byte
		start int
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, text[start:i])
			start = i + 1
		}
	}
	return append(parts, text[start:])
}
