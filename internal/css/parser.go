package css

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Parser turns stylesheet text into a Stylesheet. Selector and at-rule
// errors do not abort parsing: the offending rule is dropped and the error
// is collected into the returned multierr.
type Parser struct {
	log *zap.Logger
	ns  *Namespaces
}

// NewParser creates a parser. Namespace ids are registered in ns so that
// they agree with the DOM adapter.
func NewParser(log *zap.Logger, ns *Namespaces) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	if ns == nil {
		ns = NewNamespaces()
	}
	return &Parser{log: log.Named("css"), ns: ns}
}

// Namespaces returns the registry shared with the parser.
func (p *Parser) Namespaces() *Namespaces {
	return p.ns
}

// sheetState is the per-Parse state shared by nested blocks.
type sheetState struct {
	*Parser
	source string
	ctx    ParseContext
	sheet  *Stylesheet
	errs   error
}

// Parse parses CSS text into a Stylesheet
func (p *Parser) Parse(data []byte, source ...string) (*Stylesheet, error) {
	st := &sheetState{
		Parser: p,
		ctx:    ParseContext{Prefixes: map[string]int{}, DefaultNamespace: NamespaceAny},
		sheet:  &Stylesheet{},
	}
	if len(source) > 0 && source[0] != "" {
		st.source = source[0]
		st.sheet.Href = source[0]
		p.log.Debug("Parsing CSS", zap.String("source", st.source), zap.Int("bytes", len(data)))
	}

	st.sheet.Items = st.parseItems(data, true)
	p.log.Debug("Parsed stylesheet",
		zap.String("source", st.source),
		zap.Int("items", len(st.sheet.Items)),
		zap.Int("rules", st.sheet.Rules))
	return st.sheet, st.errs
}

// ParseString is a convenience wrapper around Parse.
func (p *Parser) ParseString(text string, source ...string) (*Stylesheet, error) {
	return p.Parse([]byte(text), source...)
}

func (st *sheetState) fail(err error) {
	if st.source != "" {
		err = fmt.Errorf("%s: %w", st.source, err)
	}
	st.log.Debug("CSS error", zap.Error(err))
	st.errs = multierr.Append(st.errs, err)
}

// parseItems parses a rule list. Top-level lists accept @import and
// @namespace; nested lists ignore them.
func (st *sheetState) parseItems(data []byte, topLevel bool) []Item {
	parser := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)

	var (
		items     []Item
		selectors strings.Builder
		preamble  = topLevel // @import and @namespace allowed
	)
	for {
		gt, tt, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && !errors.Is(err, io.EOF) {
				st.fail(fmt.Errorf("failed to parse stylesheet: %w", err))
			}
			return items

		case css.QualifiedRuleGrammar:
			writePrelude(&selectors, tt, data, parser.Values())
			selectors.WriteByte(',')

		case css.BeginRulesetGrammar:
			writePrelude(&selectors, tt, data, parser.Values())
			block := st.parseRulesetBody(parser)
			if rule := st.newRule(selectors.String(), block); rule != nil {
				items = append(items, rule)
			}
			selectors.Reset()
			preamble = false

		case css.AtRuleGrammar:
			name := strings.ToLower(string(data))
			item := st.statementAtRule(name, parser.Values(), preamble)
			if item != nil {
				items = append(items, item)
			}
			if name != "@import" && name != "@namespace" && name != "@charset" && name != "@layer" {
				preamble = false
			}

		case css.BeginAtRuleGrammar:
			name := strings.ToLower(string(data))
			prelude := tokensText(parser.Values())
			body := collectBlock(parser)
			if item := st.blockAtRule(name, strings.TrimSpace(prelude), body); item != nil {
				items = append(items, item)
			}
			preamble = false

		default:
			// stray tokens, declarations outside a rule, comments
		}
	}
}

func writePrelude(b *strings.Builder, tt css.TokenType, data []byte, values []css.Token) {
	if tt != css.LeftBraceToken && tt != css.CommaToken {
		b.Write(data)
	}
	b.WriteString(tokensText(values))
}

func (st *sheetState) parseRulesetBody(parser *css.Parser) *DeclarationBlock {
	block := &DeclarationBlock{}
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return block
		case css.DeclarationGrammar:
			if d, ok := newDeclaration(strings.ToLower(string(data)), parser.Values()); ok {
				block.Declarations = append(block.Declarations, d)
			}
		case css.CustomPropertyGrammar:
			if d, ok := newDeclaration(string(data), parser.Values()); ok {
				block.Declarations = append(block.Declarations, d)
			}
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			// nested rules are not supported inside style rules
			collectBlock(parser)
		}
	}
}

func newDeclaration(property string, values []css.Token) (Declaration, bool) {
	value, important := splitImportant(strings.TrimSpace(tokensText(values)))
	if property == "" || value == "" {
		return Declaration{}, false
	}
	return Declaration{Property: property, Value: value, Important: important}, true
}

// splitImportant strips a trailing "!important" (any case, optional space).
func splitImportant(value string) (string, bool) {
	const suffix = "important"
	if len(value) < len(suffix)+1 || !strings.EqualFold(value[len(value)-len(suffix):], suffix) {
		return value, false
	}
	rest := strings.TrimRight(value[:len(value)-len(suffix)], " \t\n")
	if !strings.HasSuffix(rest, "!") {
		return value, false
	}
	return strings.TrimSpace(rest[:len(rest)-1]), true
}

func (st *sheetState) newRule(selectorText string, block *DeclarationBlock) *Rule {
	selectorText = strings.TrimSpace(selectorText)
	selectors, err := ParseSelectorList(selectorText, st.ctx)
	if err != nil {
		st.fail(err)
		return nil
	}
	rule := &Rule{
		SelectorText: selectorText,
		Selectors:    selectors,
		Block:        block,
		SourceOrder:  st.sheet.Rules,
	}
	st.sheet.Rules++
	return rule
}

func (st *sheetState) statementAtRule(name string, values []css.Token, preamble bool) Item {
	switch name {
	case "@charset":
		return nil
	case "@import":
		if !preamble {
			st.fail(errors.New("@import after other rules is ignored"))
			return nil
		}
		imp, err := parseImport(values)
		if err != nil {
			st.fail(err)
			return nil
		}
		return imp
	case "@namespace":
		if !preamble {
			st.fail(errors.New("@namespace after other rules is ignored"))
			return nil
		}
		return st.parseNamespace(values)
	case "@layer":
		names, err := parseLayerNames(tokensText(values))
		if err != nil {
			st.fail(err)
			return nil
		}
		return &LayerStatement{Names: names}
	}
	st.log.Debug("Skipping @-rule", zap.String("rule", name))
	return nil
}

func (st *sheetState) blockAtRule(name, prelude string, body []byte) Item {
	switch name {
	case "@media":
		return &MediaRule{Query: ParseMediaQueryList(prelude), Items: st.parseItems(body, false)}
	case "@supports":
		cond := parseSupports(prelude, func(sel string) bool {
			_, err := ParseSelectorList(sel, st.ctx)
			return err == nil
		})
		return &SupportsRule{Condition: cond, Items: st.parseItems(body, false)}
	case "@layer":
		block := &LayerBlock{Items: nil}
		if prelude != "" {
			names, err := parseLayerNames(prelude)
			if err != nil || len(names) != 1 {
				st.fail(fmt.Errorf("invalid layer block name %q", prelude))
				return nil
			}
			block.Name = names[0]
		}
		block.Items = st.parseItems(body, false)
		return block
	case "@font-face":
		return &NamedRule{Kind: AtFontFace, Block: ParseDeclarations(string(body)), Body: string(body)}
	case "@page":
		return &NamedRule{Kind: AtPage, Name: prelude, Block: ParseDeclarations(string(body)), Body: string(body)}
	case "@counter-style":
		if prelude == "" {
			st.fail(errors.New("@counter-style without a name"))
			return nil
		}
		return &NamedRule{Kind: AtCounterStyle, Name: prelude, Block: ParseDeclarations(string(body)), Body: string(body)}
	case "@keyframes", "@-webkit-keyframes", "@-moz-keyframes":
		if prelude == "" {
			st.fail(errors.New("@keyframes without a name"))
			return nil
		}
		return &NamedRule{Kind: AtKeyframes, Name: unquote(prelude), Body: string(body)}
	case "@font-feature-values":
		return &NamedRule{Kind: AtFontFeatureValues, Name: prelude, Body: string(body)}
	}
	st.log.Debug("Skipping @-rule", zap.String("rule", name))
	return nil
}

func (st *sheetState) parseNamespace(values []css.Token) Item {
	var prefix, uri string
	for _, v := range values {
		switch v.TokenType {
		case css.IdentToken:
			prefix = string(v.Data)
		case css.StringToken:
			uri = unquote(string(v.Data))
		case css.URLToken:
			uri = urlValue(string(v.Data))
		}
	}
	id := st.ns.ID(uri)
	if prefix == "" {
		st.ctx.DefaultNamespace = id
	} else {
		st.ctx.Prefixes[prefix] = id
	}
	return &NamespaceRule{Prefix: prefix, URI: uri}
}

// parseImport reads: url [layer | layer(name)] [supports(cond)] [media].
func parseImport(values []css.Token) (*ImportRule, error) {
	imp := &ImportRule{}
	i := 0
	for ; i < len(values); i++ {
		v := values[i]
		if v.TokenType == css.StringToken {
			imp.URL = unquote(string(v.Data))
			break
		}
		if v.TokenType == css.URLToken {
			imp.URL = urlValue(string(v.Data))
			break
		}
		if v.TokenType == css.FunctionToken && strings.EqualFold(string(v.Data), "url(") {
			end := closingParen(values, i+1)
			imp.URL = unquote(strings.TrimSpace(tokensText(values[i+1 : end])))
			i = end
			break
		}
		if v.TokenType != css.WhitespaceToken {
			return nil, fmt.Errorf("@import: url expected, got %q", v.Data)
		}
	}
	if imp.URL == "" {
		return nil, errors.New("@import without url")
	}
	i++

	var media strings.Builder
	for ; i < len(values); i++ {
		v := values[i]
		switch {
		case v.TokenType == css.IdentToken && strings.EqualFold(string(v.Data), "layer") && media.Len() == 0:
			imp.Anonymous = true
		case v.TokenType == css.FunctionToken && strings.EqualFold(string(v.Data), "layer(") && media.Len() == 0:
			end := closingParen(values, i+1)
			names, err := parseLayerNames(tokensText(values[i+1 : end]))
			if err != nil || len(names) != 1 {
				return nil, fmt.Errorf("@import: invalid layer name")
			}
			imp.Layer = names[0]
			i = end
		case v.TokenType == css.FunctionToken && strings.EqualFold(string(v.Data), "supports(") && media.Len() == 0:
			end := closingParen(values, i+1)
			imp.Supports = parseSupports("("+tokensText(values[i+1:end])+")", func(string) bool { return true })
			i = end
		case v.TokenType == css.WhitespaceToken && media.Len() == 0:
		default:
			media.Write(v.Data)
		}
	}
	imp.Media = ParseMediaQueryList(media.String())
	return imp, nil
}

func closingParen(values []css.Token, from int) int {
	depth := 1
	for i := from; i < len(values); i++ {
		switch values[i].TokenType {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(values)
}

func urlValue(s string) string {
	s = strings.TrimSuffix(strings.TrimPrefix(s, "url("), ")")
	return unquote(strings.TrimSpace(s))
}

// parseLayerNames parses "a, b.c" into dotted paths.
func parseLayerNames(text string) ([][]string, error) {
	var names [][]string
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty layer name in %q", text)
		}
		path := strings.Split(part, ".")
		for _, seg := range path {
			if seg == "" || strings.ContainsAny(seg, " \t\n") {
				return nil, fmt.Errorf("invalid layer name %q", part)
			}
		}
		names = append(names, path)
	}
	return names, nil
}

// collectBlock consumes the body of an at-rule whose BeginAtRuleGrammar was
// just returned and serializes it back to CSS text.
func collectBlock(parser *css.Parser) []byte {
	var (
		b     bytes.Buffer
		depth = 1
	)
	for {
		gt, tt, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return b.Bytes()
		case css.BeginAtRuleGrammar:
			depth++
			b.Write(data)
			b.WriteByte(' ')
			b.WriteString(tokensText(parser.Values()))
			b.WriteByte('{')
		case css.EndAtRuleGrammar:
			depth--
			if depth == 0 {
				return b.Bytes()
			}
			b.WriteByte('}')
		case css.AtRuleGrammar:
			b.Write(data)
			b.WriteByte(' ')
			b.WriteString(tokensText(parser.Values()))
			b.WriteByte(';')
		case css.QualifiedRuleGrammar:
			if tt != css.CommaToken {
				b.Write(data)
			}
			b.WriteString(tokensText(parser.Values()))
			b.WriteByte(',')
		case css.BeginRulesetGrammar:
			if tt != css.LeftBraceToken {
				b.Write(data)
			}
			b.WriteString(tokensText(parser.Values()))
			b.WriteByte('{')
		case css.EndRulesetGrammar:
			b.WriteByte('}')
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			b.Write(data)
			b.WriteByte(':')
			b.WriteString(tokensText(parser.Values()))
			b.WriteByte(';')
		case css.TokenGrammar:
			b.Write(data)
		}
	}
}

func isWordToken(tt css.TokenType) bool {
	switch tt {
	case css.IdentToken, css.NumberToken, css.PercentageToken, css.DimensionToken,
		css.StringToken, css.URLToken, css.HashToken:
		return true
	}
	return false
}

// tokensText joins token data, separating adjacent words the parser may
// have stripped whitespace between.
func tokensText(values []css.Token) string {
	var (
		b        strings.Builder
		prevWord bool
	)
	for _, v := range values {
		word := isWordToken(v.TokenType)
		if word && prevWord {
			b.WriteByte(' ')
		}
		b.Write(v.Data)
		prevWord = word
	}
	return b.String()
}

// ParseDeclarations parses a declaration list such as the body of a style
// attribute.
func ParseDeclarations(text string) *DeclarationBlock {
	parser := css.NewParser(parse.NewInputString(text), true)
	block := &DeclarationBlock{}
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return block
		case css.DeclarationGrammar:
			if d, ok := newDeclaration(NormalizePropertyName(string(data)), parser.Values()); ok {
				block.Declarations = append(block.Declarations, d)
			}
		case css.CustomPropertyGrammar:
			if d, ok := newDeclaration(string(data), parser.Values()); ok {
				block.Declarations = append(block.Declarations, d)
			}
		}
	}
}

// NormalizePropertyName normalizes CSS property names. Custom properties
// keep their case.
func NormalizePropertyName(property string) string {
	property = strings.TrimSpace(property)
	if strings.HasPrefix(property, "--") {
		return property
	}
	return strings.ToLower(property)
}
