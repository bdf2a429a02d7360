package log

import "go.uber.org/zap"

// Zap adapts a *zap.Logger to the Logger interface. It is the default
// production backend, grounded on the teacher's pkg/logger/zap backend.
type Zap struct {
	logger *zap.Logger
}

// NewZap wraps an existing zap logger.
func NewZap(l *zap.Logger) *Zap {
	return &Zap{logger: l}
}

// NewZapProduction builds a Zap logger using zap's production preset.
func NewZapProduction() (*Zap, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZap(l), nil
}

func (l *Zap) Debug(msg string) { l.logger.Debug(msg) }
func (l *Zap) Info(msg string)  { l.logger.Info(msg) }
func (l *Zap) Warn(msg string)  { l.logger.Warn(msg) }
func (l *Zap) Error(msg string) { l.logger.Error(msg) }

func (l *Zap) WithFields(fields ...Field) Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zapFields = append(zapFields, zap.String(f.Key, f.Value))
	}
	return NewZap(l.logger.With(zapFields...))
}
