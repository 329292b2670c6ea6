package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger for env. When logFile is set, entries are also
// appended to that file.
func New(env, logFile string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stdout"}
	if logFile == "" {
		return cfg.Build()
	}

	withFile := cfg
	withFile.OutputPaths = []string{"stdout", logFile}
	// colour codes only make sense on a terminal
	withFile.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	log, err := withFile.Build()
	if err == nil {
		return log, nil
	}

	// Fall back to the console alone; it must keep working.
	log, consoleErr := cfg.Build()
	if consoleErr != nil {
		return nil, consoleErr
	}
	log.Error("log file could not be created", zap.String("path", logFile), zap.Error(err))
	return log, nil
}

// Must panics if the logger cannot be initialized. Useful in main().
func Must(env, logFile string) *zap.Logger {
	log, err := New(env, logFile)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return log
}
