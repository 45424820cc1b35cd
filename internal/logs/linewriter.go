package logx

import (
	"bufio"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// LineWriter turns subprocess output into per-line zerolog events at a given level.
// It also keeps the last few lines so a failing command can report its cause.
type LineWriter struct {
	logger zerolog.Logger
	level  zerolog.Level

	mu   sync.Mutex
	tail []string
	keep int
}

func NewLineWriter(base zerolog.Logger, fields map[string]string, level zerolog.Level) *LineWriter {
	w := base.With()
	for k, v := range fields {
		w = w.Str(k, v)
	}
	return &LineWriter{logger: w.Logger(), level: level, keep: 5}
}

// Pipe consumes r until EOF.
func (lw *LineWriter) Pipe(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		lw.remember(line)
		switch lw.level {
		case zerolog.DebugLevel:
			lw.logger.Debug().Msg(line)
		case zerolog.ErrorLevel:
			lw.logger.Error().Msg(line)
		default:
			lw.logger.Info().Msg(line)
		}
	}
	// keep the writer side unblocked if the scanner gave up early
	_, _ = io.Copy(io.Discard, r)
}

func (lw *LineWriter) remember(line string) {
	if line == "" {
		return
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.tail = append(lw.tail, line)
	if len(lw.tail) > lw.keep {
		lw.tail = lw.tail[len(lw.tail)-lw.keep:]
	}
}

// Last returns the most recent non-empty line seen, or "".
func (lw *LineWriter) Last() string {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if len(lw.tail) == 0 {
		return ""
	}
	return lw.tail[len(lw.tail)-1]
}
