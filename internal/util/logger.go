package util

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.Mutex
	logger   *zap.Logger
)

// InitLogger initializes the global logger.
// level is a zap level name; an empty or unknown value keeps the config default.
func InitLogger(env, level string) error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	var err error
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		if lvl, parseErr := zapcore.ParseLevel(level); parseErr == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	logger, err = config.Build()
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger != nil {
		_ = logger.Sync()
	}
}
