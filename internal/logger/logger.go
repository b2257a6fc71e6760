// Package logger 是全局的 slog 封装，支持按级别过滤与 text/json 两种输出。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	levelVar slog.LevelVar

	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	format           = FormatText
	base   *slog.Logger
)

func init() {
	levelVar.Set(slog.LevelInfo)
	rebuild()
}

// rebuild 需要在持有写锁或 init 中调用。
func rebuild() {
	opts := &slog.HandlerOptions{Level: &levelVar}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	base = slog.New(h)
}

func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	mu.Lock()
	out = w
	rebuild()
	mu.Unlock()
}

// SetFormat 切换输出格式，未知值回落到 text。
func SetFormat(f string) {
	next := FormatText
	if strings.EqualFold(strings.TrimSpace(f), string(FormatJSON)) {
		next = FormatJSON
	}
	mu.Lock()
	format = next
	rebuild()
	mu.Unlock()
}

func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func active() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Debugf(format string, v ...any) {
	active().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	active().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	active().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	active().Error(fmt.Sprintf(format, v...))
}

// Component 返回带 component 字段的子 logger，之后切换输出不会影响它。
func Component(name string, args ...any) *slog.Logger {
	return active().With(append([]any{"component", name}, args...)...)
}
