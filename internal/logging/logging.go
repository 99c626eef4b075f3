package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Output is rendered by a console writer to w;
// a nil w means stderr. A *Ring gets plain text for the dashboard.
func New(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	if _, ok := w.(*Ring); ok {
		out.NoColor = true
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Ring is an io.Writer that keeps the most recent lines written to it.
// The dashboard reads it; it is safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewRing returns a ring holding at most max lines.
func NewRing(max int) *Ring {
	if max <= 0 {
		max = 100
	}
	return &Ring{max: max, lines: make([]string, 0, max)}
}

func (r *Ring) Write(p []byte) (int, error) {
	text := strings.TrimRight(string(p), "\n")
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		r.lines = append(r.lines, line)
	}
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
	return len(p), nil
}

// Lines returns a copy of the last n lines, oldest first.
func (r *Ring) Lines(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	start := 0
	if n > 0 && len(r.lines) > n {
		start = len(r.lines) - n
	}
	out := make([]string, len(r.lines)-start)
	copy(out, r.lines[start:])
	return out
}
