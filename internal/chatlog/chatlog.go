// Package chatlog keeps the append-only, human-readable transcript of a chat run.
package chatlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderMe     Sender = "Me"
	SenderAgent  Sender = "Agent"
	SenderSystem Sender = "System"
)

// TimeLayout is the local timestamp format used at the start of every line.
const TimeLayout = "2006-01-02 15:04:05"

// Message is one observed or submitted chat message.
type Message struct {
	Sender     Sender
	Text       string
	ObservedAt time.Time
}

// Line renders the message as a transcript line, without the trailing newline.
func (m Message) Line() string {
	return fmt.Sprintf("[%s] %s: %s", m.ObservedAt.Local().Format(TimeLayout), m.Sender, m.Text)
}

// Recorder accepts transcript entries in observation order.
type Recorder interface {
	Record(msg Message) error
}

// File writes transcript lines to a plain text file. The file is opened, appended
// and closed on every write.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a transcript bound to path. Nothing is touched until Truncate or Record.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the transcript location.
func (f *File) Path() string {
	return f.path
}

// Truncate empties the transcript, creating it (and its directory) if needed.
func (f *File) Truncate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create transcript dir: %w", err)
		}
	}
	fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to truncate transcript: %w", err)
	}
	return fh.Close()
}

// Record appends msg as a single line.
func (f *File) Record(msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	if _, err := fh.WriteString(msg.Line() + "\n"); err != nil {
		fh.Close()
		return fmt.Errorf("failed to append to transcript: %w", err)
	}
	return fh.Close()
}

// ReadLines returns the transcript's lines, oldest first.
func (f *File) ReadLines() ([]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// Multi fans every entry out to all recorders. Every recorder is tried; the
// errors are joined.
type Multi []Recorder

func (m Multi) Record(msg Message) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
