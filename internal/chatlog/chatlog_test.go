package chatlog

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

var linePattern = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] (Me|Agent|System): .*$`)

func TestTruncateEmptiesExistingTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.txt")
	if err := os.WriteFile(path, []byte("[old] Agent: stale\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFile(path)
	if err := f.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	lines, err := f.ReadLines()
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected empty transcript, got %q", lines)
	}
}

func TestRecordAppendsInOrderWithFormat(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "logs", "chat.txt"))
	if err := f.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	msgs := []Message{
		{Sender: SenderAgent, Text: "Welcome!", ObservedAt: base},
		{Sender: SenderMe, Text: "hi: there", ObservedAt: base.Add(time.Second)},
		{Sender: SenderSystem, Text: "No agent reply in 20 seconds", ObservedAt: base.Add(21 * time.Second)},
	}
	for _, m := range msgs {
		if err := f.Record(m); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	lines, err := f.ReadLines()
	if err != nil {
		t.Fatalf("ReadLines failed: %v", err)
	}
	want := []string{
		"[2026-03-14 09:26:53] Agent: Welcome!",
		"[2026-03-14 09:26:54] Me: hi: there",
		"[2026-03-14 09:27:14] System: No agent reply in 20 seconds",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
		if !linePattern.MatchString(lines[i]) {
			t.Errorf("line %d does not match transcript format: %q", i, lines[i])
		}
	}
}

func TestRecordWithoutTruncateCreatesFile(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "chat.txt"))
	if err := f.Record(Message{Sender: SenderMe, Text: "x", ObservedAt: time.Now()}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	lines, err := f.ReadLines()
	if err != nil || len(lines) != 1 {
		t.Fatalf("expected 1 line, got %q (%v)", lines, err)
	}
}

type recorderFunc func(Message) error

func (f recorderFunc) Record(m Message) error { return f(m) }

func TestMultiTriesEveryRecorder(t *testing.T) {
	var got []string
	boom := errors.New("boom")

	m := Multi{
		recorderFunc(func(msg Message) error { got = append(got, "a:"+msg.Text); return boom }),
		nil,
		recorderFunc(func(msg Message) error { got = append(got, "b:"+msg.Text); return nil }),
	}

	err := m.Record(Message{Sender: SenderMe, Text: "hello"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
	if len(got) != 2 || got[0] != "a:hello" || got[1] != "b:hello" {
		t.Fatalf("unexpected fan-out: %q", got)
	}
}
