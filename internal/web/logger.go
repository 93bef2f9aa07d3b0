package web

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/m3ntallyilll/rrfff/pkg/broadcast"
	"github.com/m3ntallyilll/rrfff/pkg/types"
)

// BroadcastLoggerAdapter is a zapcore.Core that mirrors every log entry
// to the websocket broadcast hub in addition to the wrapped core.
type BroadcastLoggerAdapter struct {
	toolName string
	hub      *broadcast.BroadcastService
	zapcore.Core
}

// NewBroadcastLoggerAdapter wraps an encoder and sink into a hub-aware core.
func NewBroadcastLoggerAdapter(toolName string, hub *broadcast.BroadcastService, encoder zapcore.Encoder, writeSyncer zapcore.WriteSyncer) *BroadcastLoggerAdapter {
	core := zapcore.NewCore(encoder, writeSyncer, zapcore.DebugLevel)
	return &BroadcastLoggerAdapter{
		toolName: toolName,
		hub:      hub,
		Core:     core,
	}
}

// With adds fields and returns a new core.
func (b *BroadcastLoggerAdapter) With(fields []zapcore.Field) zapcore.Core {
	return &BroadcastLoggerAdapter{
		toolName: b.toolName,
		hub:      b.hub,
		Core:     b.Core.With(fields),
	}
}

// Check reports whether the entry should be logged through this core.
func (b *BroadcastLoggerAdapter) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Core.Enabled(entry.Level) {
		return ce.AddCore(entry, b)
	}
	return ce
}

// Write logs the entry through the wrapped core and broadcasts it.
func (b *BroadcastLoggerAdapter) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	err := b.Core.Write(entry, fields)

	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	buffer, encErr := encoder.EncodeEntry(entry, fields)
	message := entry.Message
	if encErr == nil {
		message = strings.TrimSpace(buffer.String())
	}

	logType := "info"
	switch entry.Level {
	case zapcore.WarnLevel, zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		logType = "error"
	}

	b.hub.Broadcast(types.ToolLog{
		ToolName:  b.toolName,
		Message:   message,
		Type:      logType,
		Timestamp: entry.Time.Format("2006-01-02 15:04:05"),
	})

	return err
}

// BroadcastLogger builds a zap logger that writes to stdout and mirrors
// entries to the hub. Used by servers whose logs feed the live log view.
func BroadcastLogger(toolName string, hub *broadcast.BroadcastService) *zap.Logger {
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	writeSyncer := zapcore.AddSync(os.Stdout)
	return zap.New(NewBroadcastLoggerAdapter(toolName, hub, encoder, writeSyncer))
}
