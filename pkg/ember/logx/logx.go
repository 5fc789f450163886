// Package logx is the async logging sink: callers enqueue formatted
// records onto a bounded workerpool.BlockingQueue, and a single writer
// goroutine drains it to a daily/line-count-rolled file, so the reactor
// thread and workers never block on disk I/O. logx formats records itself
// in the exact on-disk record shape and owns the queue and the rollover
// policy; a go.uber.org/zap logger (Zap()) writing to the same rolling file
// is provided for ambient structured logging.
package logx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourusername/ember/pkg/ember/workerpool"
)

// Level mirrors the four severities the wire format names explicitly.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Info:
		return zapcore.InfoLevel
	case Warn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

type record struct {
	level Level
	msg   string
	at    time.Time
}

// Config describes the queue and rollover policy.
type Config struct {
	Dir       string // log_dir
	Suffix    string // e.g. ".log"
	MaxLines  int    // lines per file before rollover
	QueueSize int    // log_async_queue_size
	MinLevel  Level
}

// Logger is the async sink. Log() enqueues and returns immediately (or
// blocks briefly under sustained backpressure, per BlockingQueue's
// producer-blocks-when-full contract) while a dedicated goroutine formats
// and writes.
type Logger struct {
	cfg   Config
	queue *workerpool.BlockingQueue[record]
	zl    *zap.Logger

	mu          sync.Mutex
	file        *os.File
	currentDay  string
	rolloverIdx int
	lineCount   int

	closed chan struct{}
	done   chan struct{}
}

// New opens (creating if needed) cfg.Dir and starts the writer goroutine.
func New(cfg Config) (*Logger, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Suffix == "" {
		cfg.Suffix = ".log"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	l := &Logger{
		cfg:    cfg,
		queue:  workerpool.NewBlockingQueue[record](cfg.QueueSize),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := l.rollIfNeeded(time.Now()); err != nil {
		return nil, err
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(l),
		zap.NewAtomicLevelAt(cfg.MinLevel.zapLevel()),
	)
	l.zl = zap.New(core)

	go l.writeLoop()
	return l, nil
}

// Write implements io.Writer so zapcore can be pointed at the same rolling
// file policy; logx's own Log path writes pre-formatted lines directly
// through writeRecord instead of through the zap encoder, which exists here
// to let callers also obtain a *zap.Logger (via Zap()) for ambient
// structured logging outside the record wire format.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.rollIfNeeded(time.Now()); err != nil {
		return 0, err
	}
	n, err := l.file.Write(p)
	l.lineCount++
	return n, err
}

// Zap exposes the structured logger for ambient (non-record-format)
// logging: startup/shutdown messages, config errors, and so on.
func (l *Logger) Zap() *zap.Logger { return l.zl }

// Log enqueues a record; Debug/Info/Warn/Error are equivalent to
// Log(level, ...).
func (l *Logger) Log(level Level, msg string) {
	if level < l.cfg.MinLevel {
		return
	}
	l.queue.PushBack(record{level: level, msg: msg, at: time.Now()})
}

// Warn adapts Logger to reactor.Logger's slog-shaped signature: args are
// alternating key/value pairs, folded into the record message so the
// reactor's own operational warnings land in the same rolling file as
// request records.
func (l *Logger) Warn(msg string, args ...any) {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	l.Log(Warn, b.String())
}

func (l *Logger) Debugf(format string, args ...any) { l.Log(Debug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.Log(Info, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Log(Warn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Log(Error, fmt.Sprintf(format, args...)) }

// writeLoop is the single consumer draining the queue, formatting each
// record in the documented wire format and rolling the file as needed.
func (l *Logger) writeLoop() {
	defer close(l.done)
	for {
		rec, ok := l.queue.Pop()
		if !ok {
			return
		}
		l.writeRecord(rec)
	}
}

func (l *Logger) writeRecord(rec record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rollIfNeeded(rec.at); err != nil {
		return
	}
	line := fmt.Sprintf("%s [%s]: %s\n",
		rec.at.Format("2006-01-02 15:04:05.000000"), rec.level, rec.msg)
	if _, err := l.file.WriteString(line); err != nil {
		return
	}
	l.lineCount++
	if l.lineCount >= l.cfg.MaxLines && l.cfg.MaxLines > 0 {
		l.rolloverIdx++
		l.openFile(rec.at)
	}
}

// rollIfNeeded opens a fresh file on day change, or lazily on first use.
// Must be called with l.mu held.
func (l *Logger) rollIfNeeded(at time.Time) error {
	day := at.Format("2006_01_02")
	if l.file != nil && day == l.currentDay {
		return nil
	}
	l.currentDay = day
	l.rolloverIdx = 0
	l.lineCount = 0
	return l.openFile(at)
}

// openFile must be called with l.mu held.
func (l *Logger) openFile(at time.Time) error {
	if l.file != nil {
		l.file.Close()
	}
	name := l.currentDay + l.cfg.Suffix
	if l.rolloverIdx > 0 {
		name = fmt.Sprintf("%s-%d%s", l.currentDay, l.rolloverIdx, l.cfg.Suffix)
	}
	f, err := os.OpenFile(filepath.Join(l.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.lineCount = 0
	return nil
}

// Close drains the queue and stops the writer goroutine.
func (l *Logger) Close() error {
	l.queue.Close()
	<-l.done
	_ = l.zl.Sync()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
