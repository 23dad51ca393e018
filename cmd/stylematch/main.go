package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"stylematch/internal/config"
)

const appName = "stylematch"

// initializeAppContext loads configuration and logging after the command
// line has been parsed.
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	env := envFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.Load(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		env.Cfg.Logging.ConsoleLogger.Level = "debug"
	}
	if env.Log, err = env.Cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.redirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("runtime", runtime.Version()))
	if len(configFile) == 0 {
		env.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := envFromContext(ctx)
	env.Log.Debug("Program ended", zap.Duration("elapsed", env.uptime()), zap.Strings("parsed args", cmd.Args().Slice()))

	if er := env.restoreLog(); er != nil && !isSyncOnConsole(er) {
		err = multierr.Append(err, fmt.Errorf("unable to sync log: %w", er))
	}
	return
}

// isSyncOnConsole reports the error fsync returns for terminals and pipes.
func isSyncOnConsole(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe) && (errors.Is(pe.Err, syscall.EINVAL) || errors.Is(pe.Err, syscall.ENOTTY))
}

var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := envFromContext(ctx)
	if env.Cfg != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func newApp() *cli.Command {
	documentFlags := []cli.Flag{
		&cli.StringFlag{Name: "select", Aliases: []string{"s"}, Usage: "only report elements matching `SELECTOR`"},
	}

	return &cli.Command{
		Name:            appName,
		Usage:           "CSS selector matching and cascade inspection for HTML documents",
		Version:         runtime.Version(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log at debug level"},
		},
		Commands: []*cli.Command{
			{
				Name:         "match",
				Usage:        "Lists the rules matching each element, highest priority first",
				OnUsageError: usageErrorHandler,
				Action:       runMatch,
				ArgsUsage:    "SOURCE",
				Flags: append([]cli.Flag{
					&cli.BoolFlag{Name: "styles", Usage: "also print the cascaded declarations"},
					&cli.BoolFlag{Name: "all", Usage: "include selected elements no rule matches"},
				}, documentFlags...),
			},
			{
				Name:         "layers",
				Usage:        "Prints the cascade layer tree of the document",
				OnUsageError: usageErrorHandler,
				Action:       runLayers,
				ArgsUsage:    "SOURCE",
			},
			{
				Name:         "restyle",
				Usage:        "Classifies the restyle a state or attribute change causes",
				OnUsageError: usageErrorHandler,
				Action:       runRestyle,
				ArgsUsage:    "SOURCE",
				Flags: append([]cli.Flag{
					&cli.StringSliceFlag{Name: "state", Usage: "toggle event `STATE` (hover, focus, ...)"},
					&cli.StringFlag{Name: "attr", Usage: "set attribute, `NAME=VALUE`"},
					&cli.StringFlag{Name: "remove-attr", Usage: "remove attribute `NAME`"},
				}, documentFlags...),
			},
			{
				Name:         "inline",
				Usage:        "Writes the cascaded declarations into style attributes",
				OnUsageError: usageErrorHandler,
				Action:       runInline,
				ArgsUsage:    "SOURCE [DESTINATION]",
			},
			{
				Name:         "dumpconfig",
				Usage:        "Dumps either default or actual configuration (YAML)",
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "[DESTINATION]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default configuration"},
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(contextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	var err error
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = newApp().Run(ctx, os.Args)
}
