package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// JournalEntry represents a log entry to be written to a sink.
type JournalEntry struct {
	Timestamp time.Time         `json:"ts"`
	Level     string            `json:"level"`
	Component string            `json:"component"`
	Message   string            `json:"msg"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// JournalWriter is an interface for writing journal entries to persistent storage.
// Implementations should handle batching and error recovery.
type JournalWriter interface {
	WriteBatch(ctx context.Context, entries []JournalEntry) error
}

// Sink is an interface for components that receive log entries.
type Sink interface {
	// Write queues a log entry for async processing.
	Write(entry JournalEntry)
	// Flush blocks until all queued entries are written.
	Flush(ctx context.Context) error
	// Close shuts down the sink gracefully.
	Close() error
}

// JournalSink is an async file-backed log sink with buffered writes. It keeps
// a per-meeting event journal (speaker changes, pauses, commits) that survives
// the interactive session.
type JournalSink struct {
	writer       JournalWriter
	entryChan    chan JournalEntry
	flushChan    chan chan error
	flushTicker  *time.Ticker
	batchSize    int
	flushTimeout time.Duration
	wg           sync.WaitGroup
	done         chan struct{}
	mu           sync.Mutex
	closed       bool
}

// JournalSinkConfig configures a JournalSink.
type JournalSinkConfig struct {
	// Writer is the backend for persisting journal entries.
	Writer JournalWriter
	// BufferSize is the channel capacity (default: 256).
	BufferSize int
	// BatchSize is the max entries per batch write (default: 32).
	BatchSize int
	// FlushInterval is how often to flush buffered entries (default: 2s).
	FlushInterval time.Duration
}

// NewJournalSink creates a new async journal sink.
func NewJournalSink(cfg JournalSinkConfig) *JournalSink {
	if cfg.Writer == nil {
		panic("JournalSink requires a non-nil Writer")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	sink := &JournalSink{
		writer:       cfg.Writer,
		entryChan:    make(chan JournalEntry, cfg.BufferSize),
		flushChan:    make(chan chan error),
		flushTicker:  time.NewTicker(cfg.FlushInterval),
		batchSize:    cfg.BatchSize,
		flushTimeout: 5 * time.Second,
		done:         make(chan struct{}),
	}

	sink.wg.Add(1)
	go sink.run()

	return sink
}

// Write queues a log entry for async processing.
// If the buffer is full, the entry is dropped and a warning is logged to stderr.
func (s *JournalSink) Write(entry JournalEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.entryChan <- entry:
	default:
		fmt.Fprintf(os.Stderr, "[JournalSink] Buffer full, dropping entry: %s\n", entry.Message)
	}
}

// Flush blocks until all queued entries are written.
func (s *JournalSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	select {
	case s.flushChan <- errChan:
		select {
		case err := <-errChan:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.flushTimeout):
			return fmt.Errorf("flush timeout after %v", s.flushTimeout)
		}
	case <-time.After(100 * time.Millisecond):
		// Background goroutine is busy; it will flush on its own cadence.
		return nil
	}
}

// Close shuts down the sink gracefully, draining queued entries first.
func (s *JournalSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.flushTicker.Stop()
	s.wg.Wait()

	return nil
}

// run is the background goroutine that batches and writes journal entries.
func (s *JournalSink) run() {
	defer s.wg.Done()

	batch := make([]JournalEntry, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
		defer cancel()

		err := s.writer.WriteBatch(ctx, batch)
		if err != nil {
			// Log error to stderr, never crash.
			fmt.Fprintf(os.Stderr, "[JournalSink] Failed to write batch of %d entries: %v\n", len(batch), err)
		}

		batch = batch[:0]
		return err
	}

	// drain moves everything still queued in entryChan into the batch
	// without blocking, flushing whenever the batch fills.
	drain := func() {
		for {
			select {
			case entry := <-s.entryChan:
				batch = append(batch, entry)
				if len(batch) >= s.batchSize {
					flush()
				}
			default:
				return
			}
		}
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}

		case <-s.flushTicker.C:
			flush()

		case errChan := <-s.flushChan:
			drain()
			errChan <- flush()

		case <-s.done:
			drain()
			flush()
			return
		}
	}
}

// FileJournalWriter appends journal entries as JSON lines to a single file.
type FileJournalWriter struct {
	mu   sync.Mutex
	path string
}

// NewFileJournalWriter creates a writer appending to the given path.
func NewFileJournalWriter(path string) *FileJournalWriter {
	return &FileJournalWriter{path: path}
}

// WriteBatch appends entries to the journal file, one JSON object per line.
func (w *FileJournalWriter) WriteBatch(ctx context.Context, entries []JournalEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("encoding journal entry: %w", err)
		}
	}
	return nil
}
