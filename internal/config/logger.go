package config

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=none debug normal"`
}

type LoggingConfig struct {
	ConsoleLogger LoggerConfig `yaml:"console"`
}

// Prepare returns the console logger for use by the program: info and
// debug messages go to stdout, errors to stderr.
func (conf *LoggingConfig) Prepare() (*zap.Logger, error) {
	return conf.prepare(os.Stdout, os.Stderr), nil
}

func (conf *LoggingConfig) prepare(stdout, stderr io.Writer) *zap.Logger {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	ec.TimeKey = zapcore.OmitKey
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder := zapcore.NewConsoleEncoder(ec)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowest := zapcore.InfoLevel

	switch conf.ConsoleLogger.Level {
	case "debug":
		lowest = zapcore.DebugLevel
	case "normal":
	default:
		return zap.NewNop()
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(stdout), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lowest <= lvl && lvl < zapcore.ErrorLevel
		})),
		zapcore.NewCore(encoder, zapcore.AddSync(stderr), highPriority),
	)
	return zap.New(core)
}
