package whatsapp

import (
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// newLogger bridges whatsmeow logs into zap, dropping lines below level.
func newLogger(logger *zap.Logger, level string) waLog.Logger {
	lvl := zapcore.WarnLevel
	if err := lvl.Set(strings.ToLower(level)); err != nil {
		lvl = zapcore.WarnLevel
	}
	return &zapLogger{sugar: logger.WithOptions(zap.IncreaseLevel(lvl)).Sugar()}
}

func (l *zapLogger) Errorf(msg string, args ...interface{}) { l.sugar.Errorf(msg, args...) }
func (l *zapLogger) Warnf(msg string, args ...interface{})  { l.sugar.Warnf(msg, args...) }
func (l *zapLogger) Infof(msg string, args ...interface{})  { l.sugar.Infof(msg, args...) }
func (l *zapLogger) Debugf(msg string, args ...interface{}) { l.sugar.Debugf(msg, args...) }

func (l *zapLogger) Sub(module string) waLog.Logger {
	return &zapLogger{sugar: l.sugar.Named(module)}
}
