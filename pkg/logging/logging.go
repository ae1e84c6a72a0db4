package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding of the process-wide logger.
type Config struct {
	Level      string `yaml:"level"`
	Encoding   string `yaml:"encoding"` // "json" or "console"
	Production bool   `yaml:"production"`
}

var levelMapping = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
	"fatal": zapcore.FatalLevel,
}

// Init builds the root logger, installs it as the zap global and returns
// its sugared form. Callers pass the service name so every line carries it.
func Init(cfg Config, serviceName string) (*zap.SugaredLogger, error) {
	level, ok := levelMapping[cfg.Level]
	if !ok {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Production {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	if serviceName != "" {
		logger = logger.With(zap.String("service", serviceName))
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar(), nil
}
