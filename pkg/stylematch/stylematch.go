// Package stylematch matches the style sheets of an HTML document against
// its elements, reports the rules and cascaded declarations of each element
// and classifies the restyle caused by state and attribute changes.
package stylematch

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stylematch/internal/config"
	"stylematch/internal/css"
	"stylematch/internal/html"
	"stylematch/internal/resolver"
)

// maxImportDepth bounds @import chains, which may be cyclic.
const maxImportDepth = 8

// ImportResolver returns the text of the sheet at href, which is an
// @import url or a <link rel=stylesheet> href as written.
type ImportResolver func(href string) ([]byte, error)

// DirImports resolves relative hrefs against dir. Absolute URLs are refused.
func DirImports(dir string) ImportResolver {
	return func(href string) ([]byte, error) {
		if strings.Contains(href, "://") || strings.HasPrefix(href, "//") {
			return nil, fmt.Errorf("remote sheet %q is not loaded", href)
		}
		return os.ReadFile(filepath.Join(dir, filepath.FromSlash(path.Clean("/"+href))))
	}
}

// Engine loads HTML documents and their sheets.
type Engine struct {
	config     config.Config
	log        *zap.Logger
	ns         *css.Namespaces
	parser     *css.Parser
	htmlParser *html.GoQueryParser
	imports    ImportResolver
}

// New creates an engine with the given configuration.
func New(cfg *config.Config, log *zap.Logger) *Engine {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if log == nil {
		log = zap.NewNop()
	}
	ns := css.NewNamespaces()
	return &Engine{
		config:     *cfg,
		log:        log.Named("stylematch"),
		ns:         ns,
		parser:     css.NewParser(log, ns),
		htmlParser: html.NewParser(ns),
	}
}

// NewWithDefaults creates an engine with the default configuration and no
// logging.
func NewWithDefaults() *Engine {
	return New(nil, nil)
}

// WithImports sets the resolver used for @import and linked sheets.
// Without one they are skipped.
func (e *Engine) WithImports(r ImportResolver) *Engine {
	e.imports = r
	return e
}

// Document is a loaded HTML document with its sheets.
type Document struct {
	engine *Engine
	html   *html.GoQueryDocument
	proc   *resolver.Processor
	sheets []*css.Stylesheet
	// problems collects recoverable errors of sheet loading.
	problems error
}

// Load parses htmlContent and the sheets it carries.
func (e *Engine) Load(htmlContent string) (*Document, error) {
	doc, err := e.htmlParser.Parse(htmlContent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return e.load(doc)
}

// LoadFile parses the HTML file at filename. Linked and imported sheets
// are read relative to its directory unless a resolver was set.
func (e *Engine) LoadFile(filename string) (*Document, error) {
	doc, err := e.htmlParser.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	if e.imports == nil {
		e.imports = DirImports(filepath.Dir(filename))
	}
	return e.load(doc)
}

func (e *Engine) load(doc *html.GoQueryDocument) (*Document, error) {
	d := &Document{
		engine: e,
		html:   doc,
		proc:   resolver.New(&e.config, e.log),
	}

	for _, href := range doc.LinkedStyleSheets() {
		d.addSheet(e.fetch(href, 0, &d.problems))
	}
	for i, text := range doc.StyleSheets() {
		sheet, err := e.parser.ParseString(text, fmt.Sprintf("<style>#%d", i+1))
		d.problems = multierr.Append(d.problems, err)
		e.resolveImports(sheet, 0, &d.problems)
		d.addSheet(sheet)
	}

	if d.problems != nil {
		e.log.Warn("Problems while loading sheets", zap.Int("count", len(multierr.Errors(d.problems))))
	}
	return d, nil
}

func (d *Document) addSheet(sheet *css.Stylesheet) {
	if sheet == nil {
		return
	}
	d.sheets = append(d.sheets, sheet)
	d.proc.AddSheet(sheet)
}

// fetch loads and parses the sheet at href, nil when it cannot be loaded.
func (e *Engine) fetch(href string, depth int, problems *error) *css.Stylesheet {
	if e.imports == nil {
		e.log.Debug("No import resolver, sheet skipped", zap.String("href", href))
		return nil
	}
	data, err := e.imports(href)
	if err != nil {
		*problems = multierr.Append(*problems, fmt.Errorf("failed to load sheet %q: %w", href, err))
		return nil
	}
	sheet, err := e.parser.Parse(data, href)
	*problems = multierr.Append(*problems, err)
	e.resolveImports(sheet, depth+1, problems)
	return sheet
}

// resolveImports fills in the Sheet of every @import of sheet, at any
// nesting depth.
func (e *Engine) resolveImports(sheet *css.Stylesheet, depth int, problems *error) {
	if sheet == nil {
		return
	}
	var walk func(items []css.Item)
	walk = func(items []css.Item) {
		for _, it := range items {
			switch v := it.(type) {
			case *css.ImportRule:
				if v.Sheet != nil {
					continue
				}
				if depth >= maxImportDepth {
					*problems = multierr.Append(*problems, fmt.Errorf("@import %q: %w", v.URL, errImportDepth))
					continue
				}
				v.Sheet = e.fetch(v.URL, depth, problems)
			case *css.MediaRule:
				walk(v.Items)
			case *css.SupportsRule:
				walk(v.Items)
			case *css.LayerBlock:
				walk(v.Items)
			}
		}
	}
	walk(sheet.Items)
}

var errImportDepth = errors.New("imports nested too deeply")

// Problems returns the recoverable errors met while loading sheets: parse
// errors of dropped rules and sheets that could not be read. Use
// multierr.Errors to split it.
func (d *Document) Problems() error { return d.problems }

// Sheets returns the loaded sheets in cascade order.
func (d *Document) Sheets() []*css.Stylesheet { return d.sheets }

// Processor gives access to the cascade of the document.
func (d *Document) Processor() *resolver.Processor { return d.proc }

// HTML returns the parsed document.
func (d *Document) HTML() *html.GoQueryDocument { return d.html }

// Inline writes the cascaded declarations of every element into its style
// attribute and returns the serialized document.
func (d *Document) Inline() (string, error) {
	report, err := d.Match("", WithStyles())
	if err != nil {
		return "", err
	}
	for _, m := range report.Elements {
		if len(m.Styles) == 0 || skipInline[m.Element.LocalName()] {
			continue
		}
		d.html.SetAttribute(m.Element, "style", resolver.StylesString(m.Styles), true)
	}
	return d.html.HTML()
}

// skipInline lists elements that are never rendered.
var skipInline = map[string]bool{
	"head":   true,
	"title":  true,
	"meta":   true,
	"link":   true,
	"script": true,
	"style":  true,
}
