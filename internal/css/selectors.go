package css

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

var (
	// ErrEmptySelector is returned for a selector list with an empty member
	ErrEmptySelector = errors.New("empty selector")
	// ErrUnsupportedSelector is returned for syntax the matcher cannot evaluate
	ErrUnsupportedSelector = errors.New("unsupported selector")
)

// ParseContext carries the namespace declarations in effect for a sheet.
type ParseContext struct {
	Prefixes         map[string]int // @namespace prefix -> namespace id
	DefaultNamespace int            // NamespaceAny when the sheet declares none
}

// DefaultParseContext has no namespace declarations.
func DefaultParseContext() ParseContext {
	return ParseContext{DefaultNamespace: NamespaceAny}
}

// legacy pseudo-elements also accepted with a single colon
var legacyPseudoElements = map[string]bool{
	"before": true, "after": true, "first-line": true, "first-letter": true,
}

type token struct {
	tt   css.TokenType
	data string
}

type selectorParser struct {
	ctx  ParseContext
	toks []token
	pos  int
}

// ParseSelectorList parses a comma separated list of complex selectors.
func ParseSelectorList(text string, ctx ParseContext) ([]*Selector, error) {
	p := &selectorParser{ctx: ctx, toks: lexSelector(text)}
	list, err := p.parseList(false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse selector %q: %w", text, err)
	}
	if p.pos < len(p.toks) {
		return nil, fmt.Errorf("failed to parse selector %q: %w: unexpected %q", text, ErrUnsupportedSelector, p.toks[p.pos].data)
	}
	return list, nil
}

// MustParseSelector parses a single selector and panics on error. Intended
// for tests and static tables.
func MustParseSelector(text string) *Selector {
	list, err := ParseSelectorList(text, DefaultParseContext())
	if err != nil {
		panic(err)
	}
	if len(list) != 1 {
		panic(fmt.Sprintf("selector %q is a list of %d", text, len(list)))
	}
	return list[0]
}

func lexSelector(text string) []token {
	l := css.NewLexer(parse.NewInputString(text))
	var toks []token
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}
		if tt == css.CommentToken {
			continue
		}
		toks = append(toks, token{tt: tt, data: string(data)})
	}
	// trim surrounding whitespace
	for len(toks) > 0 && toks[0].tt == css.WhitespaceToken {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].tt == css.WhitespaceToken {
		toks = toks[:len(toks)-1]
	}
	return toks
}

func (p *selectorParser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *selectorParser) peekIs(tt css.TokenType, data string) bool {
	t, ok := p.peek()
	return ok && t.tt == tt && (data == "" || t.data == data)
}

func (p *selectorParser) skipWhitespace() {
	for p.peekIs(css.WhitespaceToken, "") {
		p.pos++
	}
}

// parseList parses selectors separated by commas, stopping at the end of
// input or, when nested, at the closing parenthesis (not consumed).
func (p *selectorParser) parseList(nested bool) ([]*Selector, error) {
	var list []*Selector
	for {
		p.skipWhitespace()
		sel, err := p.parseComplex(nested)
		if err != nil {
			return nil, err
		}
		list = append(list, sel)
		p.skipWhitespace()
		if !p.peekIs(css.CommaToken, "") {
			return list, nil
		}
		p.pos++
	}
}

func (p *selectorParser) atListEnd(nested bool) bool {
	t, ok := p.peek()
	if !ok || t.tt == css.CommaToken {
		return true
	}
	return nested && t.tt == css.RightParenthesisToken
}

func (p *selectorParser) parseComplex(nested bool) (*Selector, error) {
	start := p.pos
	var (
		compounds []*Compound // left to right
		pending   = CombinatorNone
	)
	for {
		c, pseudoElement, err := p.parseCompound()
		if err != nil {
			return nil, err
		}
		if c == nil {
			if len(compounds) == 0 || pending != CombinatorNone {
				return nil, ErrEmptySelector
			}
			break
		}
		if len(compounds) > 0 {
			compounds[len(compounds)-1].Combinator = pending
		}
		compounds = append(compounds, c)
		if pseudoElement != nil {
			if nested {
				return nil, fmt.Errorf("%w: pseudo-element in selector argument", ErrUnsupportedSelector)
			}
			c.Combinator = CombinatorPseudoElement
			compounds = append(compounds, pseudoElement)
			if !p.atListEnd(nested) {
				p.skipWhitespace()
				if !p.atListEnd(nested) {
					return nil, fmt.Errorf("%w: pseudo-element must be last", ErrUnsupportedSelector)
				}
			}
			break
		}

		// combinator
		sawSpace := p.peekIs(css.WhitespaceToken, "")
		p.skipWhitespace()
		if p.atListEnd(nested) {
			break
		}
		pending = CombinatorNone
		if t, _ := p.peek(); t.tt == css.DelimToken {
			switch t.data {
			case ">":
				pending = CombinatorChild
			case "+":
				pending = CombinatorAdjacent
			case "~":
				pending = CombinatorSibling
			}
			if pending != CombinatorNone {
				p.pos++
				p.skipWhitespace()
			}
		}
		if pending == CombinatorNone {
			if !sawSpace {
				t, _ := p.peek()
				return nil, fmt.Errorf("%w: unexpected %q", ErrUnsupportedSelector, t.data)
			}
			pending = CombinatorDescendant
		}
	}

	sel := &Selector{Compounds: make([]*Compound, len(compounds)), Text: p.text(start, p.pos)}
	for i, c := range compounds {
		sel.Compounds[len(compounds)-1-i] = c
	}
	sel.Compounds[0].Combinator = CombinatorNone
	return sel, nil
}

func (p *selectorParser) text(from, to int) string {
	var b strings.Builder
	for _, t := range p.toks[from:to] {
		if t.tt == css.WhitespaceToken {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(t.data)
	}
	return strings.TrimSpace(b.String())
}

// parseCompound returns nil when no simple selector is present. A trailing
// pseudo-element is returned as a separate marker compound.
func (p *selectorParser) parseCompound() (*Compound, *Compound, error) {
	c := &Compound{Namespace: p.ctx.DefaultNamespace}
	empty := true

	if err := p.parseTypeSelector(c, &empty); err != nil {
		return nil, nil, err
	}

	for {
		t, ok := p.peek()
		if !ok {
			break
		}
		switch {
		case t.tt == css.HashToken:
			c.IDs = append(c.IDs, unescape(t.data[1:]))
			p.pos++
		case t.tt == css.DelimToken && t.data == ".":
			p.pos++
			name, ok := p.peek()
			if !ok || name.tt != css.IdentToken {
				return nil, nil, fmt.Errorf("%w: class name expected", ErrUnsupportedSelector)
			}
			c.Classes = append(c.Classes, unescape(name.data))
			p.pos++
		case t.tt == css.LeftBracketToken:
			attr, err := p.parseAttribute()
			if err != nil {
				return nil, nil, err
			}
			c.Attrs = append(c.Attrs, attr)
		case t.tt == css.ColonToken:
			p.pos++
			if p.peekIs(css.ColonToken, "") {
				p.pos++
				pe, err := p.parsePseudoElement()
				if err != nil {
					return nil, nil, err
				}
				return c, pe, nil
			}
			if name, ok := p.peek(); ok && name.tt == css.IdentToken && legacyPseudoElements[strings.ToLower(name.data)] {
				p.pos++
				return c, &Compound{Namespace: NamespaceAny, PseudoElement: strings.ToLower(name.data)}, nil
			}
			if err := p.parsePseudoClass(c); err != nil {
				return nil, nil, err
			}
		default:
			if empty {
				return nil, nil, nil
			}
			return c, nil, nil
		}
		empty = false
	}
	if empty {
		return nil, nil, nil
	}
	return c, nil, nil
}

// parseTypeSelector handles [ns|]tag, [ns|]*, *|tag and |tag.
func (p *selectorParser) parseTypeSelector(c *Compound, empty *bool) error {
	t, ok := p.peek()
	if !ok {
		return nil
	}
	isName := t.tt == css.IdentToken || t.tt == css.DelimToken && t.data == "*"
	isBar := t.tt == css.DelimToken && t.data == "|"
	if !isName && !isBar {
		return nil
	}

	var prefix *string
	if isBar {
		none := ""
		prefix = &none
		p.pos++
	} else if p.pos+1 < len(p.toks) && p.toks[p.pos+1].tt == css.DelimToken && p.toks[p.pos+1].data == "|" {
		pre := t.data
		prefix = &pre
		p.pos += 2
	}

	name, ok := p.peek()
	if !ok || !(name.tt == css.IdentToken || name.tt == css.DelimToken && name.data == "*") {
		if prefix != nil {
			return fmt.Errorf("%w: type selector expected after namespace prefix", ErrUnsupportedSelector)
		}
		return nil
	}
	p.pos++
	*empty = false

	if prefix != nil {
		ns, err := p.resolvePrefix(*prefix)
		if err != nil {
			return err
		}
		c.Namespace = ns
	}
	if name.data == "*" {
		c.ExplicitUniversal = true
		return nil
	}
	c.CasedTag = unescape(name.data)
	c.Tag = FoldCase(c.CasedTag)
	return nil
}

func (p *selectorParser) resolvePrefix(prefix string) (int, error) {
	switch prefix {
	case "*":
		return NamespaceAny, nil
	case "":
		return NamespaceNone, nil
	}
	if ns, ok := p.ctx.Prefixes[prefix]; ok {
		return ns, nil
	}
	return 0, fmt.Errorf("%w: undeclared namespace prefix %q", ErrUnsupportedSelector, prefix)
}

func (p *selectorParser) parseAttribute() (*AttrSelector, error) {
	p.pos++ // [
	p.skipWhitespace()
	attr := &AttrSelector{Namespace: NamespaceNone}

	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unterminated attribute selector", ErrUnsupportedSelector)
	}
	// optional namespace prefix
	if p.pos+1 < len(p.toks) && p.toks[p.pos+1].tt == css.DelimToken && p.toks[p.pos+1].data == "|" &&
		(t.tt == css.IdentToken || t.tt == css.DelimToken && t.data == "*") {
		ns, err := p.resolvePrefix(t.data)
		if err != nil {
			return nil, err
		}
		attr.Namespace = ns
		p.pos += 2
	} else if t.tt == css.DelimToken && t.data == "|" {
		p.pos++
	}

	name, ok := p.peek()
	if !ok || name.tt != css.IdentToken {
		return nil, fmt.Errorf("%w: attribute name expected", ErrUnsupportedSelector)
	}
	attr.Name = unescape(name.data)
	attr.LowerName = FoldCase(attr.Name)
	p.pos++
	p.skipWhitespace()

	op, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: unterminated attribute selector", ErrUnsupportedSelector)
	}
	switch {
	case op.tt == css.RightBracketToken:
		p.pos++
		return attr, nil
	case op.tt == css.DelimToken && op.data == "=":
		attr.Func = AttrEquals
	case op.tt == css.IncludeMatchToken:
		attr.Func = AttrIncludes
	case op.tt == css.DashMatchToken:
		attr.Func = AttrDashMatch
	case op.tt == css.PrefixMatchToken:
		attr.Func = AttrBegins
	case op.tt == css.SuffixMatchToken:
		attr.Func = AttrEnds
	case op.tt == css.SubstringMatchToken:
		attr.Func = AttrContains
	default:
		return nil, fmt.Errorf("%w: unknown attribute operator %q", ErrUnsupportedSelector, op.data)
	}
	p.pos++
	p.skipWhitespace()

	val, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("%w: attribute value expected", ErrUnsupportedSelector)
	}
	switch val.tt {
	case css.StringToken:
		attr.Value = unquote(val.data)
	case css.IdentToken, css.NumberToken, css.DimensionToken:
		attr.Value = unescape(val.data)
	default:
		return nil, fmt.Errorf("%w: attribute value expected", ErrUnsupportedSelector)
	}
	p.pos++
	p.skipWhitespace()

	if flag, ok := p.peek(); ok && flag.tt == css.IdentToken {
		switch strings.ToLower(flag.data) {
		case "i":
			attr.Case = AttrCaseInsensitive
		case "s":
			attr.Case = AttrCaseSensitive
		default:
			return nil, fmt.Errorf("%w: unknown attribute flag %q", ErrUnsupportedSelector, flag.data)
		}
		p.pos++
		p.skipWhitespace()
	}
	if !p.peekIs(css.RightBracketToken, "") {
		return nil, fmt.Errorf("%w: unterminated attribute selector", ErrUnsupportedSelector)
	}
	p.pos++
	return attr, nil
}

func (p *selectorParser) parsePseudoElement() (*Compound, error) {
	t, ok := p.peek()
	if !ok || t.tt != css.IdentToken {
		return nil, fmt.Errorf("%w: pseudo-element name expected", ErrUnsupportedSelector)
	}
	p.pos++
	return &Compound{Namespace: NamespaceAny, PseudoElement: strings.ToLower(t.data)}, nil
}

func (p *selectorParser) parsePseudoClass(c *Compound) error {
	t, ok := p.peek()
	if !ok {
		return fmt.Errorf("%w: pseudo-class name expected", ErrUnsupportedSelector)
	}
	p.pos++
	switch t.tt {
	case css.IdentToken:
		return p.identPseudo(c, strings.ToLower(t.data))
	case css.FunctionToken:
		name := strings.ToLower(strings.TrimSuffix(t.data, "("))
		if err := p.functionPseudo(c, name); err != nil {
			return err
		}
		p.skipWhitespace()
		if !p.peekIs(css.RightParenthesisToken, "") {
			return fmt.Errorf("%w: missing ) after :%s", ErrUnsupportedSelector, name)
		}
		p.pos++
		return nil
	}
	return fmt.Errorf("%w: pseudo-class name expected", ErrUnsupportedSelector)
}

var structuralByName = map[string]StructuralKind{
	"first-child":          PseudoFirstChild,
	"last-child":           PseudoLastChild,
	"only-child":           PseudoOnlyChild,
	"first-of-type":        PseudoFirstOfType,
	"last-of-type":         PseudoLastOfType,
	"only-of-type":         PseudoOnlyOfType,
	"root":                 PseudoRoot,
	"empty":                PseudoEmpty,
	"-moz-only-whitespace": PseudoOnlyWhitespace,
	"scope":                PseudoScope,
}

var nthByName = map[string]StructuralKind{
	"nth-child":        PseudoNthChild,
	"nth-last-child":   PseudoNthLastChild,
	"nth-of-type":      PseudoNthOfType,
	"nth-last-of-type": PseudoNthLastOfType,
}

var listByName = map[string]ListKind{
	"is":           PseudoIs,
	"where":        PseudoWhere,
	"matches":      PseudoMatches,
	"any":          PseudoAny,
	"-moz-any":     PseudoMozAny,
	"-webkit-any":  PseudoMozAny,
	"host":         PseudoHost,
	"host-context": PseudoHostContext,
}

// extra state pseudo-classes that map to several bits
var stateAliases = map[string]EventState{
	"any-link":         StateVisited | StateUnvisited,
	"-moz-any-link":    StateVisited | StateUnvisited,
	"-webkit-any-link": StateVisited | StateUnvisited,
}

func (p *selectorParser) identPseudo(c *Compound, name string) error {
	if kind, ok := structuralByName[name]; ok {
		c.Pseudos = append(c.Pseudos, &StructuralPseudo{Kind: kind})
		return nil
	}
	switch name {
	case "host":
		c.Pseudos = append(c.Pseudos, &SelectorListPseudo{Kind: PseudoHost})
		return nil
	case "-moz-window-inactive":
		c.Pseudos = append(c.Pseudos, &CustomPseudo{Kind: PseudoWindowInactive})
		return nil
	case "-moz-is-html":
		c.Pseudos = append(c.Pseudos, &CustomPseudo{Kind: PseudoIsHTML})
		return nil
	}
	if states, ok := stateAliases[name]; ok {
		c.Pseudos = append(c.Pseudos, &StatePseudo{Name: name, States: states})
		return nil
	}
	if states, ok := ParseEventState(name); ok && name != "ltr" && name != "rtl" {
		c.Pseudos = append(c.Pseudos, &StatePseudo{Name: name, States: states})
		return nil
	}
	return fmt.Errorf("%w: :%s", ErrUnsupportedSelector, name)
}

func (p *selectorParser) functionPseudo(c *Compound, name string) error {
	if kind, ok := nthByName[name]; ok {
		a, b, err := parseNth(p.rawUntilParen())
		if err != nil {
			return err
		}
		c.Pseudos = append(c.Pseudos, &StructuralPseudo{Kind: kind, A: a, B: b})
		return nil
	}
	if kind, ok := listByName[name]; ok {
		p.skipWhitespace()
		if p.peekIs(css.RightParenthesisToken, "") {
			if !kind.Forgiving() {
				return fmt.Errorf("%w: :%s() needs an argument", ErrUnsupportedSelector, name)
			}
			c.Pseudos = append(c.Pseudos, &SelectorListPseudo{Kind: kind, List: []*Selector{}})
			return nil
		}
		list, err := p.parseList(true)
		if err != nil {
			return err
		}
		if (kind == PseudoHost || kind == PseudoHostContext) && len(list) != 1 {
			return fmt.Errorf("%w: :%s() takes one compound selector", ErrUnsupportedSelector, name)
		}
		c.Pseudos = append(c.Pseudos, &SelectorListPseudo{Kind: kind, List: list})
		return nil
	}
	switch name {
	case "not":
		list, err := p.parseList(true)
		if err != nil {
			return err
		}
		for _, sel := range list {
			if len(sel.Compounds) != 1 {
				return fmt.Errorf("%w: :not() accepts compound selectors only", ErrUnsupportedSelector)
			}
			c.Negations = append(c.Negations, sel.Compounds[0])
		}
		c.notGroups = append(c.notGroups, len(list))
		return nil
	case "lang":
		lang := strings.TrimSpace(p.rawUntilParen())
		lang = unquote(lang)
		if lang == "" {
			return fmt.Errorf("%w: :lang() needs an argument", ErrUnsupportedSelector)
		}
		c.Pseudos = append(c.Pseudos, &CustomPseudo{Kind: PseudoLang, Literal: lang})
		return nil
	case "-moz-locale-dir", "dir":
		dir := strings.ToLower(strings.TrimSpace(p.rawUntilParen()))
		if dir != "ltr" && dir != "rtl" {
			return fmt.Errorf("%w: :%s(%s)", ErrUnsupportedSelector, name, dir)
		}
		if name == "dir" {
			state := StateLTR
			if dir == "rtl" {
				state = StateRTL
			}
			c.Pseudos = append(c.Pseudos, &StatePseudo{Name: "dir(" + dir + ")", States: state})
			return nil
		}
		c.Pseudos = append(c.Pseudos, &CustomPseudo{Kind: PseudoLocaleDir, Literal: dir})
		return nil
	}
	return fmt.Errorf("%w: :%s()", ErrUnsupportedSelector, name)
}

// rawUntilParen concatenates tokens up to the closing parenthesis.
func (p *selectorParser) rawUntilParen() string {
	var b strings.Builder
	for {
		t, ok := p.peek()
		if !ok || t.tt == css.RightParenthesisToken {
			return b.String()
		}
		b.WriteString(t.data)
		p.pos++
	}
}

// parseNth parses the an+b microsyntax, including odd and even.
func parseNth(text string) (a, b int, err error) {
	s := strings.ToLower(strings.Join(strings.Fields(text), ""))
	switch s {
	case "":
		return 0, 0, fmt.Errorf("%w: empty an+b", ErrUnsupportedSelector)
	case "odd":
		return 2, 1, nil
	case "even":
		return 2, 0, nil
	}
	n := strings.IndexByte(s, 'n')
	if n < 0 {
		b, err = strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad an+b %q", ErrUnsupportedSelector, text)
		}
		return 0, b, nil
	}
	switch coef := s[:n]; coef {
	case "", "+":
		a = 1
	case "-":
		a = -1
	default:
		a, err = strconv.Atoi(coef)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad an+b %q", ErrUnsupportedSelector, text)
		}
	}
	if rest := s[n+1:]; rest != "" {
		if rest[0] != '+' && rest[0] != '-' {
			return 0, 0, fmt.Errorf("%w: bad an+b %q", ErrUnsupportedSelector, text)
		}
		b, err = strconv.Atoi(rest)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad an+b %q", ErrUnsupportedSelector, text)
		}
	}
	return a, b, nil
}

// FoldCase lowers ASCII letters only. Tags, attribute names and quirks
// mode ids and classes all fold this way.
func FoldCase(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if 'A' <= b[j] && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

// unquote strips matching quotes and resolves backslash escapes.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return unescape(s)
}

// unescape resolves CSS backslash escapes, including hex escapes.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		if j == i {
			b.WriteByte(s[i])
			continue
		}
		code, _ := strconv.ParseUint(s[i:j], 16, 32)
		if code == 0 || code > 0x10ffff {
			code = 0xfffd
		}
		b.WriteRune(rune(code))
		if j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
			j++
		}
		i = j - 1
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
