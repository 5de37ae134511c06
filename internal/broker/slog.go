package broker

import (
	"context"
	"log/slog"
	"strings"

	"go.uber.org/zap"
)

// mochi-mqtt logs through slog; this handler forwards its records to
// the daemon's zap logger so broker output shares the same stream.
func newSlogLogger(logger *zap.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return slog.New(&zapSlogHandler{logger: logger})
}

type zapSlogHandler struct {
	logger *zap.Logger
	attrs  []slog.Attr
}

func (h *zapSlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return true
}

func (h *zapSlogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zap.Field, 0, len(h.attrs)+record.NumAttrs())
	var errMsg string
	for _, attr := range h.attrs {
		fields = append(fields, slogAttrToField(attr))
	}
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == "error" {
			switch attr.Value.Kind() {
			case slog.KindString:
				errMsg = attr.Value.String()
			case slog.KindAny:
				if v, ok := attr.Value.Any().(error); ok {
					errMsg = v.Error()
				}
			}
		}
		fields = append(fields, slogAttrToField(attr))
		return true
	})
	if errMsg != "" && (strings.Contains(errMsg, "read connection: EOF") || errMsg == "EOF") {
		fields = append(fields, zap.String("note", "harmless connection close"))
		h.logger.Debug("embedded mqtt connection closed", fields...)
		return nil
	}
	switch {
	case record.Level >= slog.LevelError:
		h.logger.Error(record.Message, fields...)
	case record.Level >= slog.LevelWarn:
		h.logger.Warn(record.Message, fields...)
	case record.Level >= slog.LevelInfo:
		h.logger.Info(record.Message, fields...)
	default:
		h.logger.Debug(record.Message, fields...)
	}
	return nil
}

func (h *zapSlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	next = append(next, attrs...)
	return &zapSlogHandler{logger: h.logger, attrs: next}
}

func (h *zapSlogHandler) WithGroup(_ string) slog.Handler {
	return h
}

func slogAttrToField(attr slog.Attr) zap.Field {
	switch attr.Value.Kind() {
	case slog.KindString:
		return zap.String(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return zap.Int64(attr.Key, attr.Value.Int64())
	case slog.KindUint64:
		return zap.Uint64(attr.Key, attr.Value.Uint64())
	case slog.KindFloat64:
		return zap.Float64(attr.Key, attr.Value.Float64())
	case slog.KindBool:
		return zap.Bool(attr.Key, attr.Value.Bool())
	default:
		return zap.Any(attr.Key, attr.Value.Any())
	}
}
