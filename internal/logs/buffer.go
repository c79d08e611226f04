// Package logs keeps a bounded in-memory tail of recent log output for the
// operational dashboard.
package logs

import (
	"fmt"
	"strings"
	"sync"

	"github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	arborlevels "github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"
)

// LogLine is one buffered entry, shaped for dashboard rendering.
type LogLine struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Buffer consumes log batches from arbor's channel writer and keeps the most
// recent entries in a fixed-size ring. Entries below the minimum level are
// dropped before buffering.
type Buffer struct {
	logger   arbor.ILogger
	channel  chan []arbormodels.LogEvent
	minLevel arbor.LogLevel

	mu      sync.RWMutex
	entries []LogLine
	next    int
	full    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewBuffer creates a log buffer holding up to capacity entries at or above
// minLevel.
func NewBuffer(capacity int, minLevel string, logger arbor.ILogger) *Buffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &Buffer{
		logger:   logger,
		channel:  make(chan []arbormodels.LogEvent, 10),
		minLevel: parseLogLevel(minLevel),
		entries:  make([]LogLine, capacity),
		done:     make(chan struct{}),
	}
}

// parseLogLevel converts a string log level to arbor.LogLevel
func parseLogLevel(levelStr string) arbor.LogLevel {
	switch strings.ToLower(levelStr) {
	case "debug":
		return arbor.DebugLevel
	case "info":
		return arbor.InfoLevel
	case "warn", "warning":
		return arbor.WarnLevel
	case "error":
		return arbor.ErrorLevel
	default:
		return arbor.InfoLevel
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (b *Buffer) GetChannel() chan []arbormodels.LogEvent {
	return b.channel
}

// Start launches the consumer goroutine
func (b *Buffer) Start() {
	b.wg.Add(1)
	go b.consume()
}

// Stop shuts the consumer down; buffered entries stay readable.
func (b *Buffer) Stop() {
	close(b.done)
	b.wg.Wait()
}

func (b *Buffer) consume() {
	defer b.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Log buffer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-b.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				if !b.shouldKeep(event.Level) {
					continue
				}
				b.append(transformEvent(event))
			}
		case <-b.done:
			return
		}
	}
}

// shouldKeep filters by the configured minimum level.
func (b *Buffer) shouldKeep(level log.Level) bool {
	return arborlevels.FromLogLevel(level) >= b.minLevel
}

func (b *Buffer) append(line LogLine) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = line
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
}

// Recent returns up to n buffered entries, newest first. n <= 0 returns
// everything buffered.
func (b *Buffer) Recent(n int) []LogLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := b.next
	if b.full {
		size = len(b.entries)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]LogLine, 0, n)
	for i := 0; i < n; i++ {
		idx := (b.next - 1 - i + len(b.entries)) % len(b.entries)
		out = append(out, b.entries[idx])
	}
	return out
}

// transformEvent converts an arbor LogEvent into the buffered shape. Extra
// structured fields are folded into the message text.
func transformEvent(event arbormodels.LogEvent) LogLine {
	message := event.Message
	for key, value := range event.Fields {
		message += fmt.Sprintf(" %s=%v", key, value)
	}

	return LogLine{
		Timestamp: event.Timestamp.Format("15:04:05"),
		Level:     convertTo3Letter(event.Level.String()),
		Message:   message,
	}
}

// convertTo3Letter converts full level names to 3-letter codes
func convertTo3Letter(level string) string {
	switch strings.ToUpper(level) {
	case "INFO":
		return "INF"
	case "WARN", "WARNING":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "DEBUG":
		return "DBG"
	default:
		if len(level) == 3 {
			return strings.ToUpper(level)
		}
		return "INF"
	}
}
