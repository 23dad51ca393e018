package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stylematch/internal/config"
	"stylematch/internal/css"
	"stylematch/internal/resolver"
	"stylematch/pkg/stylematch"
)

var errNoSource = errors.New("SOURCE is required")

// loadDocument loads the HTML file named by the first argument.
func loadDocument(ctx context.Context, cmd *cli.Command) (*stylematch.Document, error) {
	env := envFromContext(ctx)
	src := cmd.Args().Get(0)
	if src == "" {
		return nil, errNoSource
	}
	doc, err := stylematch.New(env.Cfg, env.Log).LoadFile(src)
	if err != nil {
		return nil, err
	}
	for _, problem := range multierr.Errors(doc.Problems()) {
		env.Log.Warn("Sheet problem", zap.Error(problem))
	}
	return doc, nil
}

func layerName(m resolver.Match) string {
	if m.Layer.IsRoot() {
		return "<unlayered>"
	}
	return m.Layer.Name()
}

func printRules(w io.Writer, indent string, rules resolver.MatchResults) {
	for _, m := range rules.ByPriority() {
		fmt.Fprintf(w, "%s%-14s %-30s %s  { %s }\n", indent,
			"["+layerName(m)+"]",
			m.Selector.String(),
			css.SpecificityFromWeight(m.Weight),
			m.Rule.Block)
	}
}

func runMatch(ctx context.Context, cmd *cli.Command) error {
	doc, err := loadDocument(ctx, cmd)
	if err != nil {
		return err
	}
	var opts []stylematch.MatchOption
	if cmd.Bool("styles") {
		opts = append(opts, stylematch.WithStyles())
	}
	if cmd.Bool("all") {
		opts = append(opts, stylematch.WithUnmatched())
	}
	report, err := doc.Match(cmd.String("select"), opts...)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	for _, el := range report.Elements {
		fmt.Fprintln(w, el.Path)
		printRules(w, "  ", el.Rules)
		pseudos := make([]string, 0, len(el.Pseudo))
		for name := range el.Pseudo {
			pseudos = append(pseudos, name)
		}
		slices.Sort(pseudos)
		for _, name := range pseudos {
			fmt.Fprintf(w, "  ::%s\n", name)
			printRules(w, "    ", el.Pseudo[name])
		}
		if len(el.Styles) > 0 {
			fmt.Fprintf(w, "  => %s\n", resolver.StylesString(el.Styles))
		}
	}
	envFromContext(ctx).Log.Info("Matched",
		zap.Int("elements", report.Stats.ElementsMatched),
		zap.Int("visited", report.Stats.ElementsVisited),
		zap.Int("selectors", report.Stats.SelectorsMatched),
		zap.Duration("took", report.Stats.Duration))
	return nil
}

func runLayers(ctx context.Context, cmd *cli.Command) error {
	doc, err := loadDocument(ctx, cmd)
	if err != nil {
		return err
	}
	cascade, err := doc.Processor().Cascade()
	if err != nil {
		return err
	}
	w := cmd.Root().Writer
	fmt.Fprint(w, cascade.Root().Dump())
	fmt.Fprintf(w, "conditions: %s\n", cascade.Key())
	return nil
}

func parseStates(names []string) (css.EventState, error) {
	var states css.EventState
	for _, list := range names {
		for _, name := range strings.Split(list, ",") {
			s, ok := css.ParseEventState(strings.TrimSpace(name))
			if !ok {
				return 0, fmt.Errorf("unknown state %q", name)
			}
			states |= s
		}
	}
	return states, nil
}

func runRestyle(ctx context.Context, cmd *cli.Command) error {
	doc, err := loadDocument(ctx, cmd)
	if err != nil {
		return err
	}
	selector := cmd.String("select")
	if selector == "" {
		return errors.New("--select is required")
	}

	var invs []stylematch.Invalidation
	switch {
	case len(cmd.StringSlice("state")) > 0:
		states, err := parseStates(cmd.StringSlice("state"))
		if err != nil {
			return err
		}
		invs, err = doc.ToggleState(selector, states)
		if err != nil {
			return err
		}
	case cmd.String("attr") != "":
		name, value, _ := strings.Cut(cmd.String("attr"), "=")
		if invs, err = doc.SetAttribute(selector, name, value, true); err != nil {
			return err
		}
	case cmd.String("remove-attr") != "":
		if invs, err = doc.SetAttribute(selector, cmd.String("remove-attr"), "", false); err != nil {
			return err
		}
	default:
		return errors.New("one of --state, --attr or --remove-attr is required")
	}

	w := cmd.Root().Writer
	for _, inv := range invs {
		fmt.Fprintf(w, "%s: %s\n", inv.Path, inv.Hint)
		for _, el := range inv.Affected {
			fmt.Fprintf(w, "  %s\n", stylematch.Path(el))
		}
	}
	return nil
}

func runInline(ctx context.Context, cmd *cli.Command) error {
	doc, err := loadDocument(ctx, cmd)
	if err != nil {
		return err
	}
	out, err := doc.Inline()
	if err != nil {
		return err
	}
	fname := cmd.Args().Get(1)
	if fname == "" {
		_, err = io.WriteString(cmd.Root().Writer, out)
		return err
	}
	if err := os.WriteFile(fname, []byte(out), 0o644); err != nil {
		return fmt.Errorf("unable to write '%s': %w", fname, err)
	}
	envFromContext(ctx).Log.Info("Inlined document written", zap.String("file", fname))
	return nil
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) (err error) {
	env := envFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	cfg := env.Cfg
	state := "actual"
	if cmd.Bool("default") {
		def := config.Default()
		cfg, state = &def, "default"
	}
	data, err := config.Dump(cfg)
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	fname := cmd.Args().Get(0)
	out := cmd.Root().Writer
	if len(fname) > 0 {
		f, err := os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer func() {
			err = multierr.Append(err, f.Close())
		}()
		out = f
	} else {
		fname = "STDOUT"
	}
	env.Log.Debug("Outputing configuration", zap.String("state", state), zap.String("file", fname))

	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
