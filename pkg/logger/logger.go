package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global logger instance
var Log *zap.Logger

func init() {
	// Packages log before main calls Init (tests, seed CLI); never leave Log nil
	Log = zap.NewNop()
}

// Init initializes the global logger
// isDevelopment: true for colorful console output, false for JSON structured logging
// outputPaths: extra sinks (e.g. "logs/app.log") written next to stderr
func Init(isDevelopment bool, outputPaths ...string) error {
	var err error
	var config zap.Config

	if isDevelopment {
		// Development: colorful console output with debug level
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		// Production: JSON structured logging with info level
		config = zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	for _, p := range outputPaths {
		if p != "" {
			config.OutputPaths = append(config.OutputPaths, p)
		}
	}

	log, err := config.Build(
		zap.AddCaller(),                   // Add caller information (file:line)
		zap.AddStacktrace(zap.ErrorLevel), // Add stack trace for errors
	)
	if err != nil {
		return err
	}

	Log = log
	return nil
}

// Sync flushes any buffered log entries
// Should be called before application exits
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
