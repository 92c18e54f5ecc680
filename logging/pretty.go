package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PrettyHandler is a slog.Handler that writes one indented JSON object per
// record. The time, level, msg and source keys always come first; attribute
// keys follow in sorted order so repeated runs diff cleanly.
//
// Not meant for high-volume logs.
type PrettyHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool

	attrs  []slog.Attr
	groups []string
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]any{}
	for _, a := range h.attrs {
		insert(fields, h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		insert(fields, h.groups, a)
		return true
	})

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	head := []keyed{
		{"time", when.Format(time.RFC3339Nano)},
		{"level", r.Level.String()},
		{"msg", r.Message},
	}
	if h.addSource {
		if src := source(r.PC); src != "" {
			head = append(head, keyed{"source", src})
		}
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	n := 0
	emit := func(k string, v any) {
		if n > 0 {
			buf.WriteString(",\n")
		}
		n++
		b, err := json.MarshalIndent(v, "  ", "  ")
		if err != nil {
			b = []byte(strconv.Quote(err.Error()))
		}
		buf.WriteString("  ")
		buf.WriteString(strconv.Quote(k))
		buf.WriteString(": ")
		buf.Write(b)
	}
	for _, kv := range head {
		emit(kv.key, kv.value)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		emit(k, fields[k])
	}
	buf.WriteString("\n}\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

type keyed struct {
	key   string
	value any
}

func insert(root map[string]any, groups []string, a slog.Attr) {
	if a.Key == "" && a.Value.Kind() != slog.KindGroup {
		return
	}
	dst := root
	for _, g := range groups {
		m, ok := dst[g].(map[string]any)
		if !ok {
			m = map[string]any{}
			dst[g] = m
		}
		dst = m
	}
	put(dst, a)
}

func put(dst map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() != slog.KindGroup {
		dst[a.Key] = plain(v)
		return
	}
	// An unnamed group inlines its members.
	target := dst
	if a.Key != "" {
		child, ok := dst[a.Key].(map[string]any)
		if !ok {
			child = map[string]any{}
			dst[a.Key] = child
		}
		target = child
	}
	for _, ga := range v.Group() {
		if ga.Key != "" || ga.Value.Kind() == slog.KindGroup {
			put(target, ga)
		}
	}
}

func plain(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.String()
	}
}

func source(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if f.File == "" {
		return ""
	}
	file := f.File
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + strconv.Itoa(f.Line)
}
