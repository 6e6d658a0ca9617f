/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package logging holds the slog plumbing shared by the storage engine,
// its drivers and the command line.
package logging

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
)

// DebugEnabledFunc reports whether debug records should be emitted. It is
// consulted per record so the setting can change after the logger is built.
type DebugEnabledFunc func() bool

// DebugCheckHandler drops debug records unless debugEnabled says otherwise.
type DebugCheckHandler struct {
	handler      slog.Handler
	debugEnabled DebugEnabledFunc
}

// Enabled implements slog.Handler.Enabled
func (h *DebugCheckHandler) Enabled(_ context.Context, level slog.Level) bool {
	if level <= slog.LevelDebug {
		return h.debugEnabled != nil && h.debugEnabled()
	}
	return true
}

// Handle implements slog.Handler.Handle
func (h *DebugCheckHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs
func (h *DebugCheckHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DebugCheckHandler{handler: h.handler.WithAttrs(attrs), debugEnabled: h.debugEnabled}
}

// WithGroup implements slog.Handler.WithGroup
func (h *DebugCheckHandler) WithGroup(name string) slog.Handler {
	return &DebugCheckHandler{handler: h.handler.WithGroup(name), debugEnabled: h.debugEnabled}
}

// NewLogger creates a text logger writing to out without timestamps. Debug
// records are filtered at log time through debugEnabled.
func NewLogger(out io.Writer, debugEnabled DebugEnabledFunc) *slog.Logger {
	base := slog.NewTextHandler(out, &slog.HandlerOptions{
		// filtering happens in DebugCheckHandler
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(&DebugCheckHandler{handler: base, debugEnabled: debugEnabled})
}

// LoggerSetterGetter is implemented by anything embedding a LogHolder.
type LoggerSetterGetter interface {
	// SetLogger sets a new slog.Handler
	SetLogger(newHandler slog.Handler)
	// Logger returns the slog.Logger created from the slog.Handler
	Logger() *slog.Logger
}

// LogHolder is embedded by drivers and the storage engine to carry a
// replaceable logger. The zero value discards everything.
type LogHolder struct {
	logger atomic.Pointer[slog.Logger]
}

// Logger returns the current logger, or a discarding logger if none was set.
func (l *LogHolder) Logger() *slog.Logger {
	if lg := l.logger.Load(); lg != nil {
		return lg
	}
	return slog.New(slog.DiscardHandler)
}

// SetLogger replaces the logger. A nil handler discards all records.
func (l *LogHolder) SetLogger(newHandler slog.Handler) {
	if newHandler == nil {
		l.logger.Store(slog.New(slog.DiscardHandler))
		return
	}
	l.logger.Store(slog.New(newHandler))
}

var _ LoggerSetterGetter = &LogHolder{}
