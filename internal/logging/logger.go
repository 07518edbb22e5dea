// Package logging provides leveled logging and signal tracing for boldsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A SignalTrace for per-step JSONL signal records (<dir>/trace.jsonl)
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/san-kum/boldsim/internal/dynamo"
)

// LevelTrace sits below Debug and enables per-step signal tracing.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a level name to a slog.Level. Unknown values default to
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled text logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SignalTrace writes one JSON line per simulated step. It implements
// dynamo.Observer. A nil SignalTrace is a no-op.
type SignalTrace struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	// err is the first write failure; later steps are dropped.
	err error
}

type traceRecord struct {
	Step  int     `json:"step"`
	Time  float64 `json:"t"`
	Total float64 `json:"total"`
	EV    float64 `json:"ev"`
	IV    float64 `json:"iv"`
	NumEV int     `json:"n_ev"`
	NumIV int     `json:"n_iv"`
}

// NewSignalTrace opens dir/trace.jsonl for append at trace level and
// returns nil otherwise, or when the file cannot be opened.
func NewSignalTrace(dir, level string) *SignalTrace {
	if ParseLevel(level) != LevelTrace {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, "trace.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	return &SignalTrace{file: f, enc: json.NewEncoder(f)}
}

func (st *SignalTrace) OnStep(step int, t float64, s dynamo.Signal) {
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.file == nil || st.err != nil {
		return
	}
	err := st.enc.Encode(traceRecord{
		Step:  step,
		Time:  t,
		Total: s.Total,
		EV:    s.EV,
		IV:    s.IV,
		NumEV: s.NumEV,
		NumIV: s.NumIV,
	})
	if err != nil {
		st.err = fmt.Errorf("write trace step %d: %w", step, err)
	}
}

// Close flushes the trace file and returns the first write error, if any.
// It is safe on a nil receiver.
func (st *SignalTrace) Close() error {
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.file == nil {
		return st.err
	}
	cerr := st.file.Close()
	st.file = nil
	if st.err != nil {
		return st.err
	}
	return cerr
}
