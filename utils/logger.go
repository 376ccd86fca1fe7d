package utils

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Level is the severity of a log entry.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (lv Level) String() string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Entry is one formatted log line before it reaches its destination.
type Entry struct {
	Time    time.Time
	Level   Level
	Source  string
	Message string
}

// Sink is where a Logger delivers entries.
type Sink interface {
	Emit(e Entry)
}

// Logger provides structured, leveled logging throughout the application.
type Logger struct {
	sink   Sink
	source string
}

// NewLogger creates a new Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return &Logger{sink: NewConsoleSink()}
}

// NewLoggerWithSink creates a Logger that delivers every entry to sink.
func NewLoggerWithSink(sink Sink) *Logger {
	return &Logger{sink: sink}
}

// Named returns a Logger sharing the sink whose entries carry source.
func (l *Logger) Named(source string) *Logger {
	return &Logger{sink: l.sink, source: source}
}

func (l *Logger) emit(lv Level, format string, args ...any) {
	l.sink.Emit(Entry{
		Time:    time.Now(),
		Level:   lv,
		Source:  l.source,
		Message: fmt.Sprintf(format, args...),
	})
}

func (l *Logger) Info(format string, args ...any)  { l.emit(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.emit(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.emit(LevelError, format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.emit(LevelDebug, format, args...) }

// ConsoleSink writes coloured lines; errors go to stderr.
type ConsoleSink struct {
	out *log.Logger
	err *log.Logger
}

func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{
		out: log.New(os.Stdout, "", 0),
		err: log.New(os.Stderr, "", 0),
	}
}

var levelColour = map[Level]string{
	LevelDebug: "\033[36mDEBUG\033[0m",
	LevelInfo:  "\033[32mINFO\033[0m ",
	LevelWarn:  "\033[33mWARN\033[0m ",
	LevelError: "\033[31mERROR\033[0m",
}

func (c *ConsoleSink) Emit(e Entry) {
	msg := e.Message
	if e.Source != "" {
		msg = "[" + e.Source + "] " + msg
	}
	line := fmt.Sprintf("[%s] %s %s", e.Time.Format("2006-01-02 15:04:05"), levelColour[e.Level], msg)
	if e.Level == LevelError {
		c.err.Println(line)
		return
	}
	c.out.Println(line)
}

// ForwardSink hands entries to a LogListener. Workers own one each; it never
// touches the real destination.
type ForwardSink struct {
	ch chan<- Entry
}

// Emit blocks while the listener queue is full so no entry is dropped.
func (f *ForwardSink) Emit(e Entry) {
	f.ch <- e
}

// LogListener drains entries produced by many ForwardSinks into one real sink.
type LogListener struct {
	target Sink
	ch     chan Entry
	done   chan struct{}
	once   sync.Once
}

// NewLogListener creates a listener with a queue of the given capacity.
func NewLogListener(target Sink, capacity int) *LogListener {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LogListener{
		target: target,
		ch:     make(chan Entry, capacity),
		done:   make(chan struct{}),
	}
}

// Start launches the draining goroutine.
func (ll *LogListener) Start() {
	go func() {
		defer close(ll.done)
		for e := range ll.ch {
			ll.target.Emit(e)
		}
	}()
}

// Sink returns a new forwarding handle for one producer.
func (ll *LogListener) Sink() *ForwardSink {
	return &ForwardSink{ch: ll.ch}
}

// Stop closes the queue and waits until every queued entry is written.
// It must only be called once all producers have finished.
func (ll *LogListener) Stop() {
	ll.once.Do(func() { close(ll.ch) })
	<-ll.done
}
