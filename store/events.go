package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/brensch/numberflow/round"
)

// EventRecord is one command applied to a live round.
type EventRecord struct {
	Time      time.Time     `json:"time"`
	Session   string        `json:"session"`
	RoundID   string        `json:"round_id,omitempty"`
	Command   string        `json:"command"`
	Side      string        `json:"side,omitempty"`
	Direction string        `json:"direction,omitempty"`
	Rejection string        `json:"rejection,omitempty"`
	Error     string        `json:"error,omitempty"`
	Phase     string        `json:"phase"`
	Score     int           `json:"score"`
	Tick      int           `json:"tick"`
	Events    []round.Event `json:"events,omitempty"`
}

// EventLog appends EventRecords as zstd-compressed JSON lines. Each UTC day
// gets its own file named <prefix>-YYYY-MM-DD.jsonl.zst under dir.
//
// Every Append flushes the zstd frame so a crash loses at most the record
// being written.
type EventLog struct {
	dir    string
	prefix string
	now    func() time.Time

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewEventLog(dir, prefix string) *EventLog {
	return &EventLog{dir: dir, prefix: prefix, now: time.Now}
}

// OpenEventLog splits a path like logs/events.jsonl.zst into the directory
// and the file prefix used for the daily files.
func OpenEventLog(path string) (*EventLog, error) {
	if path == "" {
		return nil, errors.New("event log path is required")
	}
	base := filepath.Base(path)
	for _, ext := range []string{".zst", ".jsonl"} {
		if filepath.Ext(base) == ext {
			base = base[:len(base)-len(ext)]
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}
	return NewEventLog(filepath.Dir(path), base), nil
}

func (l *EventLog) Append(rec EventRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Time.IsZero() {
		rec.Time = l.now()
	}
	day := rec.Time.UTC().Format("2006-01-02")
	if day != l.curDay {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := l.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return l.enc.Flush()
}

// Path returns the file records for day are written to.
func (l *EventLog) Path(day time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, day.UTC().Format("2006-01-02")))
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *EventLog) rotateLocked(day string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create event log dir: %w", err)
	}
	path := filepath.Join(l.dir, fmt.Sprintf("%s-%s.jsonl.zst", l.prefix, day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("zstd writer: %w", err)
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.curDay = day
	return nil
}

func (l *EventLog) closeLocked() error {
	var err error
	if l.w != nil {
		_ = l.w.Flush()
		l.w = nil
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		if cerr := l.f.Close(); err == nil {
			err = cerr
		}
		l.f = nil
	}
	l.curDay = ""
	return err
}

// ReadEvents decodes every record in an event log file. Appending to an
// existing file adds new zstd frames, which the decoder reads in sequence.
func ReadEvents(path string) ([]EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var out []EventRecord
	jd := json.NewDecoder(dec)
	for {
		var rec EventRecord
		err := jd.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, rec)
	}
}
