// Package log is a thin structured logging layer over zap shared by every tokenservice package.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface consumed by the library packages.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, kvs ...any)
	Infof(format string, args ...any)
	Infow(msg string, kvs ...any)
	Warnf(format string, args ...any)
	Warnw(msg string, kvs ...any)
	Errorf(format string, args ...any)
	Errorw(err error, msg string, kvs ...any)
	Sync()
}

// ContextExtractors maps a log field name to a function reading its value from a context.
type ContextExtractors map[string]func(context.Context) string

// Option configures a logger built by NewLogger.
type Option func(*zapLogger)

// WithContextExtractor registers the extractors used by W.
func WithContextExtractor(extractors ContextExtractors) Option {
	return func(l *zapLogger) {
		if l.extractors == nil {
			l.extractors = ContextExtractors{}
		}
		for k, fn := range extractors {
			l.extractors[k] = fn
		}
	}
}

type zapLogger struct {
	z *zap.Logger
	// pkg skips one more frame so package level helpers report their caller.
	pkg        *zap.SugaredLogger
	sugar      *zap.SugaredLogger
	extractors ContextExtractors
}

var _ Logger = (*zapLogger)(nil)

var (
	mu  sync.RWMutex
	std = NewLogger(NewOptions())
)

// Init replaces the package level logger.
func Init(opts *Options, options ...Option) {
	l := NewLogger(opts, options...)

	mu.Lock()
	defer mu.Unlock()
	std = l
}

// Std returns the package level logger.
func Std() *zapLogger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// NewLogger builds a zap backed logger from opts. Invalid values fall back to the defaults.
func NewLogger(opts *Options, options ...Option) *zapLogger {
	if opts == nil {
		opts = NewOptions()
	}

	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.MessageKey = "message"
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	if opts.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		if opts.EnableColor {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	sinks := []zapcore.WriteSyncer{}
	if len(opts.OutputPaths) > 0 {
		ws, _, err := zap.Open(opts.OutputPaths...)
		if err != nil {
			ws = zapcore.Lock(os.Stderr)
		}
		sinks = append(sinks, ws)
	}
	if opts.EnableFileStorage && opts.FileConfig != nil && opts.FileConfig.Filename != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.FileConfig.Filename,
			MaxSize:    opts.FileConfig.MaxSize,
			MaxBackups: opts.FileConfig.MaxBackups,
			MaxAge:     opts.FileConfig.MaxAge,
			Compress:   opts.FileConfig.Compress,
			LocalTime:  opts.FileConfig.LocalTime,
		}))
	}
	if len(sinks) == 0 {
		sinks = append(sinks, zapcore.Lock(os.Stdout))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)

	zopts := []zap.Option{zap.AddCallerSkip(1)}
	if !opts.DisableCaller {
		zopts = append(zopts, zap.AddCaller())
	}
	if !opts.DisableStacktrace {
		zopts = append(zopts, zap.AddStacktrace(zapcore.PanicLevel))
	}

	return newZapLogger(zap.New(core, zopts...), options...)
}

// NewNop returns a logger that discards everything.
func NewNop() *zapLogger {
	return newZapLogger(zap.NewNop())
}

func newZapLogger(z *zap.Logger, options ...Option) *zapLogger {
	l := &zapLogger{
		z:     z,
		sugar: z.Sugar(),
		pkg:   z.WithOptions(zap.AddCallerSkip(1)).Sugar(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Z exposes the underlying zap logger for packages that log with typed fields.
func (l *zapLogger) Z() *zap.Logger {
	return l.z.WithOptions(zap.AddCallerSkip(-1))
}

// W returns a logger carrying the fields extracted from ctx.
func (l *zapLogger) W(ctx context.Context) Logger {
	if ctx == nil || len(l.extractors) == 0 {
		return l
	}

	fields := make([]zap.Field, 0, len(l.extractors))
	for name, fn := range l.extractors {
		if v := fn(ctx); v != "" {
			fields = append(fields, zap.String(name, v))
		}
	}
	if len(fields) == 0 {
		return l
	}

	return newZapLogger(l.z.With(fields...), WithContextExtractor(l.extractors))
}

// With returns a child logger with the given key/value pairs attached.
func (l *zapLogger) With(kvs ...any) *zapLogger {
	child := &zapLogger{extractors: l.extractors}
	child.sugar = l.sugar.With(kvs...)
	child.z = child.sugar.Desugar()
	child.pkg = child.z.WithOptions(zap.AddCallerSkip(1)).Sugar()
	return child
}

func (l *zapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Debugw(msg string, kvs ...any)     { l.sugar.Debugw(msg, kvs...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *zapLogger) Infow(msg string, kvs ...any)      { l.sugar.Infow(msg, kvs...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Warnw(msg string, kvs ...any)      { l.sugar.Warnw(msg, kvs...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }

func (l *zapLogger) Errorw(err error, msg string, kvs ...any) {
	l.sugar.Errorw(msg, append([]any{"err", err}, kvs...)...)
}

func (l *zapLogger) Sync() {
	_ = l.z.Sync()
}

// W returns the package level logger enriched from ctx.
func W(ctx context.Context) Logger { return Std().W(ctx) }

func Debugf(format string, args ...any) { Std().pkg.Debugf(format, args...) }
func Debugw(msg string, kvs ...any)     { Std().pkg.Debugw(msg, kvs...) }
func Infof(format string, args ...any)  { Std().pkg.Infof(format, args...) }
func Infow(msg string, kvs ...any)      { Std().pkg.Infow(msg, kvs...) }
func Warnf(format string, args ...any)  { Std().pkg.Warnf(format, args...) }
func Warnw(msg string, kvs ...any)      { Std().pkg.Warnw(msg, kvs...) }
func Errorf(format string, args ...any) { Std().pkg.Errorf(format, args...) }

func Errorw(err error, msg string, kvs ...any) {
	Std().pkg.Errorw(msg, append([]any{"err", err}, kvs...)...)
}

// Sync flushes the package level logger.
func Sync() { Std().Sync() }
