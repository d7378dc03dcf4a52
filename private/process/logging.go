// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package process

import (
	"os"
	"runtime"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level       string `help:"the minimum log level to log" devDefault:"debug" releaseDefault:"info"`
	Development bool   `help:"if true, set logging to development mode" devDefault:"true" releaseDefault:"false"`
	Caller      bool   `help:"if true, log function filename and line number" devDefault:"true" releaseDefault:"false"`
	Stack       bool   `help:"if true, log stack traces" devDefault:"true" releaseDefault:"false"`
	Encoding    string `help:"configures log encoding. can either be 'console' or 'json'" devDefault:"console" releaseDefault:"json"`
	Output      string `help:"can be stdout, stderr, or a filename" default:"stderr"`
}

var logConfig LogConfig

// NewLogger creates new logger configured by the process flags.
func NewLogger() (*zap.Logger, error) {
	return logConfig.NewLogger()
}

// NewLogger creates a logger from the config.
func (config LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, Error.New("invalid log level %q: %v", config.Level, err)
	}

	levelEncoder := zapcore.CapitalColorLevelEncoder
	if runtime.GOOS == "windows" || config.Encoding == "json" {
		levelEncoder = zapcore.CapitalLevelEncoder
	}

	timeKey := "T"
	if os.Getenv("PWNED_LOG_NOTIME") != "" {
		// using environment variable PWNED_LOG_NOTIME to avoid additional flags
		timeKey = ""
	}

	output := config.Output
	if output == "" {
		output = "stderr"
	}

	logger, err := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       config.Development,
		DisableCaller:     !config.Caller,
		DisableStacktrace: !config.Stack,
		Encoding:          config.Encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        timeKey,
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    levelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{output},
	}.Build()
	return logger, Error.Wrap(err)
}
