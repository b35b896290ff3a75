package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// Init builds the process logger. Production mode writes JSON; development mode
// writes console lines. Caller information is only encoded at error level and above.
func Init(production bool) error {
	var base zap.Config
	if production {
		base = zap.NewProductionConfig()
	} else {
		base = zap.NewDevelopmentConfig()
		base.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}

	enc := base.EncoderConfig
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	enc.EncodeLevel = zapcore.CapitalLevelEncoder

	encNoCaller := enc
	encNoCaller.CallerKey = ""

	encWithCaller := enc
	encWithCaller.CallerKey = "caller"

	var infoEnc, errEnc zapcore.Encoder
	if production {
		infoEnc = zapcore.NewJSONEncoder(encNoCaller)
		errEnc = zapcore.NewJSONEncoder(encWithCaller)
	} else {
		infoEnc = zapcore.NewConsoleEncoder(encNoCaller)
		errEnc = zapcore.NewConsoleEncoder(encWithCaller)
	}

	ws := zapcore.Lock(zapcore.AddSync(os.Stdout))

	minLevel := zapcore.DebugLevel
	if production {
		minLevel = zapcore.InfoLevel
	}

	low := zapcore.NewCore(infoEnc, ws, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= minLevel && lvl < zapcore.ErrorLevel
	}))
	high := zapcore.NewCore(errEnc, ws, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	}))

	logger = zap.New(
		zapcore.NewTee(low, high),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return nil
}

// L returns the process logger, falling back to a development logger if Init
// was never called.
func L() *zap.Logger {
	if logger == nil {
		_ = Init(false)
	}
	return logger
}

// Named returns a child logger scoped to a component.
func Named(component string) *zap.Logger {
	return L().Named(component)
}

func Sync() { _ = L().Sync() }
