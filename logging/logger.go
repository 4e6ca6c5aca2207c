// Package logging wires up the structured logger shared by the consensus
// and replicate packages, pairing github.com/pingcap/log (a thin zap
// wrapper) with lumberjack-based file rotation.
package logging

import (
	"github.com/pingcap/log"
	"go.uber.org/zap"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string
	// FilePath, if non-empty, routes output through a rotating file sink
	// instead of stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a *zap.Logger for the given options. With no FilePath it
// delegates entirely to pingcap/log's default stderr sink; with a FilePath
// it layers a lumberjack-backed core on top so logs rotate in place.
func New(opts Options) (*zap.Logger, error) {
	level := opts.Level
	if level == "" {
		level = "info"
	}
	cfg := &log.Config{Level: level}
	if opts.FilePath == "" {
		logger, _, err := log.InitLogger(cfg)
		return logger, err
	}

	lj := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    orDefault(opts.MaxSizeMB, 100),
		MaxBackups: orDefault(opts.MaxBackups, 5),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(lj), zapLevel)
	return zap.New(core, zap.AddCaller()), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
