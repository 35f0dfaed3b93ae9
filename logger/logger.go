package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar overrides the default log level i.e. debug, info, warn, error
const LevelEnvVar = "SENTINEL_LOG_LEVEL"

func NewLogger() *zap.SugaredLogger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level = zap.NewAtomicLevelAt(levelFromEnv())

	logger, err := config.Build()
	if err != nil {
		log.Panic(err)
	}

	// flushes buffer, if any
	defer logger.Sync()

	return logger.Sugar()
}

// Named returns a logger whose entries are prefixed with 'name' e.g. "sos.dispatcher"
func Named(name string) *zap.SugaredLogger {
	return NewLogger().Named(name)
}

func levelFromEnv() zapcore.Level {
	level := zapcore.DebugLevel
	if value, ok := os.LookupEnv(LevelEnvVar); ok {
		if err := level.UnmarshalText([]byte(value)); err != nil {
			return zapcore.DebugLevel
		}
	}
	return level
}
