package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler renders one human-readable line per record:
//
//	2025-01-02 08:01:02 INFO [Check-in · Employee #42] workflow: message key=value
type consoleHandler struct {
	out       *lockedWriter
	level     slog.Leveler
	addSource bool
	prefix    string
	fields    []field
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{out: &lockedWriter{w: w}, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	fields := append([]field(nil), h.fields...)
	r.Attrs(func(a slog.Attr) bool {
		fields = appendAttr(fields, h.prefix, a)
		return true
	})

	header := map[string]string{}
	body := fields[:0:0]
	for _, f := range fields {
		switch f.key {
		case FieldComponent, FieldDirection, FieldEmployeeID:
			if _, seen := header[f.key]; !seen {
				header[f.key] = plainValue(f.value)
			}
		default:
			body = append(body, f)
		}
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.Local().Format(time.DateTime))
	b.WriteString(" " + levelName(r.Level) + " ")
	if subject := FormatSubject(header[FieldDirection], header[FieldEmployeeID]); subject != "" {
		b.WriteString("[" + subject + "] ")
	}
	if c := header[FieldComponent]; c != "" {
		b.WriteString(c + ": ")
	}
	msg := strings.TrimSpace(r.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(msg)
	if h.addSource {
		if src := r.Source(); src != nil {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	for _, f := range body {
		if f.key != "" {
			b.WriteString(" " + f.key + "=" + quotedValue(f.value))
		}
	}
	b.WriteByte('\n')
	return h.out.write([]byte(b.String()))
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = append([]field(nil), h.fields...)
	for _, a := range attrs {
		next.fields = appendAttr(next.fields, h.prefix, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// FormatSubject builds the direction/employee prefix used in console output.
func FormatSubject(direction, employeeID string) string {
	var parts []string
	switch d := strings.TrimSpace(direction); d {
	case "":
	case "check_in":
		parts = append(parts, "Check-in")
	case "check_out":
		parts = append(parts, "Check-out")
	default:
		parts = append(parts, d)
	}
	if id := strings.TrimSpace(employeeID); id != "" {
		parts = append(parts, "Employee #"+id)
	}
	return strings.Join(parts, " · ")
}

func appendAttr(dst []field, prefix string, a slog.Attr) []field {
	if a.Equal(slog.Attr{}) {
		return dst
	}
	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		return append(dst, field{key: prefix + a.Key, value: v})
	}
	if a.Key != "" {
		prefix += a.Key + "."
	}
	for _, member := range v.Group() {
		dst = appendAttr(dst, prefix, member)
	}
	return dst
}

func plainValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

func quotedValue(v slog.Value) string {
	s := plainValue(v)
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
