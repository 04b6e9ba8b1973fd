package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/livechat/internal/chatlog"
)

// scriptedSurface returns responses[i] on the i-th read, repeating the last one.
type scriptedSurface struct {
	responses [][]string
	readErrs  map[int]error
	submitErr error

	reads     int
	submitted []string
}

func (s *scriptedSurface) AgentMessages(ctx context.Context) ([]string, error) {
	i := s.reads
	s.reads++
	if err, ok := s.readErrs[i]; ok {
		return nil, err
	}
	if len(s.responses) == 0 {
		return nil, nil
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedSurface) Submit(ctx context.Context, text string) error {
	s.submitted = append(s.submitted, text)
	return s.submitErr
}

type memRecorder struct {
	msgs []chatlog.Message
}

func (r *memRecorder) Record(m chatlog.Message) error {
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *memRecorder) count(sender chatlog.Sender) int {
	n := 0
	for _, m := range r.msgs {
		if m.Sender == sender {
			n++
		}
	}
	return n
}

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func newTestPoller(s Surface, r chatlog.Recorder) (*Poller, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)}
	p := New(s, r, DefaultConfig(), zap.NewNop())
	p.now = clock.now
	p.sleep = clock.sleep
	return p, clock
}

func TestAwaitReplyReturnsFirstNewMessage(t *testing.T) {
	tests := []struct {
		name      string
		prior     []string
		responses [][]string
		want      string
	}{
		{
			name:      "anonymous welcome then help",
			prior:     []string{"Welcome!"},
			responses: [][]string{{"Welcome!"}, {"Welcome!", "How can I help?"}},
			want:      "How can I help?",
		},
		{
			name:      "several new messages in one batch",
			prior:     []string{"a"},
			responses: [][]string{{"a", "b", "c"}},
			want:      "b",
		},
		{
			name:      "new message reported before old ones",
			prior:     []string{"a", "b"},
			responses: [][]string{{"x", "a", "b", "y"}},
			want:      "x",
		},
		{
			name:      "empty prior",
			prior:     nil,
			responses: [][]string{nil, nil, {"hello"}},
			want:      "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			p, _ := newTestPoller(&scriptedSurface{responses: tt.responses}, rec)

			got, err := p.AwaitReply(context.Background(), tt.prior, 20*time.Second)
			if err != nil {
				t.Fatalf("AwaitReply failed: %v", err)
			}
			if got == nil {
				t.Fatal("expected a reply, got nil")
			}
			if got.Text != tt.want || got.Sender != chatlog.SenderAgent {
				t.Fatalf("reply = %+v, want Agent %q", got, tt.want)
			}
			if n := rec.count(chatlog.SenderAgent); n != 1 {
				t.Fatalf("recorded %d Agent entries, want 1", n)
			}
			if len(rec.msgs) != 1 {
				t.Fatalf("recorded %d entries, want 1", len(rec.msgs))
			}
		})
	}
}

func TestAwaitReplyTimesOutWithOneSystemEntry(t *testing.T) {
	rec := &memRecorder{}
	surface := &scriptedSurface{responses: [][]string{{"Welcome!"}}}
	p, clock := newTestPoller(surface, rec)
	start := clock.t

	got, err := p.AwaitReply(context.Background(), []string{"Welcome!"}, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitReply failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no reply, got %+v", got)
	}

	if len(rec.msgs) != 1 || rec.msgs[0].Sender != chatlog.SenderSystem {
		t.Fatalf("expected exactly one System entry, got %+v", rec.msgs)
	}
	if rec.msgs[0].Text != "No agent reply in 5 seconds" {
		t.Fatalf("system text = %q", rec.msgs[0].Text)
	}

	// Polls at 0s, 2s, 4s, then a final 1s nap that lands exactly on the deadline.
	if surface.reads != 3 {
		t.Fatalf("surface read %d times, want 3", surface.reads)
	}
	if elapsed := clock.t.Sub(start); elapsed != 5*time.Second {
		t.Fatalf("elapsed = %v, want 5s", elapsed)
	}
	wantSleeps := []time.Duration{2 * time.Second, 2 * time.Second, time.Second}
	for i, d := range wantSleeps {
		if clock.sleeps[i] != d {
			t.Fatalf("sleep %d = %v, want %v", i, clock.sleeps[i], d)
		}
	}
}

func TestAwaitReplyDuplicateAgentTextIsNotNew(t *testing.T) {
	rec := &memRecorder{}
	surface := &scriptedSurface{responses: [][]string{{"Thanks!"}, {"Thanks!", "Thanks!"}}}
	p, _ := newTestPoller(surface, rec)

	got, err := p.AwaitReply(context.Background(), []string{"Thanks!"}, 6*time.Second)
	if err != nil {
		t.Fatalf("AwaitReply failed: %v", err)
	}
	if got != nil {
		t.Fatalf("repeated identical text must not count as a reply, got %+v", got)
	}
	if rec.count(chatlog.SenderSystem) != 1 {
		t.Fatalf("expected a System timeout entry, got %+v", rec.msgs)
	}
}

func TestAwaitReplySwallowsTransientReadErrors(t *testing.T) {
	rec := &memRecorder{}
	surface := &scriptedSurface{
		responses: [][]string{nil, nil, {"old", "new"}},
		readErrs:  map[int]error{0: errors.New("shadow root missing"), 1: errors.New("execution context destroyed")},
	}
	p, _ := newTestPoller(surface, rec)

	got, err := p.AwaitReply(context.Background(), []string{"old"}, 20*time.Second)
	if err != nil {
		t.Fatalf("AwaitReply failed: %v", err)
	}
	if got == nil || got.Text != "new" {
		t.Fatalf("reply = %+v, want new", got)
	}
}

func TestAwaitReplyStopsOnCancellation(t *testing.T) {
	rec := &memRecorder{}
	p, _ := newTestPoller(&scriptedSurface{responses: [][]string{{"a"}}}, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := p.AwaitReply(ctx, []string{"a"}, 20*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil reply, got %+v", got)
	}
	if len(rec.msgs) != 0 {
		t.Fatalf("cancellation must not record a timeout, got %+v", rec.msgs)
	}
}

func TestAwaitWelcomeReturnsFirstNonEmpty(t *testing.T) {
	surface := &scriptedSurface{responses: [][]string{nil, nil, {"Welcome!"}}}
	p, clock := newTestPoller(surface, &memRecorder{})

	got, err := p.AwaitWelcome(context.Background())
	if err != nil {
		t.Fatalf("AwaitWelcome failed: %v", err)
	}
	if len(got) != 1 || got[0] != "Welcome!" {
		t.Fatalf("welcome = %q", got)
	}
	if surface.reads != 3 || len(clock.sleeps) != 2 {
		t.Fatalf("reads = %d sleeps = %d, want 3 and 2", surface.reads, len(clock.sleeps))
	}
	for _, d := range clock.sleeps {
		if d != time.Second {
			t.Fatalf("welcome poll interval = %v, want 1s", d)
		}
	}
}

func TestAwaitWelcomeGivesUpQuietly(t *testing.T) {
	surface := &scriptedSurface{readErrs: map[int]error{0: errors.New("not ready")}}
	p, _ := newTestPoller(surface, &memRecorder{})

	got, err := p.AwaitWelcome(context.Background())
	if err != nil {
		t.Fatalf("AwaitWelcome failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty welcome, got %q", got)
	}
	if surface.reads != 20 {
		t.Fatalf("surface read %d times, want 20", surface.reads)
	}
}

func TestSendMessageAlwaysRecordsOneMeEntry(t *testing.T) {
	for _, submitErr := range []error{nil, errors.New("textarea not found")} {
		rec := &memRecorder{}
		surface := &scriptedSurface{submitErr: submitErr}
		p, _ := newTestPoller(surface, rec)

		text := `it's "quoted" </script> ${x}`
		if err := p.SendMessage(context.Background(), text); err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
		if len(surface.submitted) != 1 || surface.submitted[0] != text {
			t.Fatalf("submitted %q, want the literal text", surface.submitted)
		}
		if len(rec.msgs) != 1 || rec.msgs[0].Sender != chatlog.SenderMe || rec.msgs[0].Text != text {
			t.Fatalf("recorded %+v, want one Me entry with the exact text", rec.msgs)
		}
	}
}

func TestCurrentAgentMessagesNeverErrors(t *testing.T) {
	p, _ := newTestPoller(&scriptedSurface{readErrs: map[int]error{0: errors.New("boom")}}, &memRecorder{})
	if got := p.CurrentAgentMessages(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty result, got %q", got)
	}
}

func TestConversationWritesTranscriptFile(t *testing.T) {
	file := chatlog.NewFile(filepath.Join(t.TempDir(), "chat.txt"))
	if err := file.Truncate(); err != nil {
		t.Fatal(err)
	}

	surface := &scriptedSurface{responses: [][]string{{"Welcome!"}, {"Welcome!"}, {"Welcome!", "Sure, one moment."}}}
	p, _ := newTestPoller(surface, file)
	ctx := context.Background()

	welcome, err := p.AwaitWelcome(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Record(chatlog.SenderAgent, welcome[len(welcome)-1]); err != nil {
		t.Fatal(err)
	}
	if err := p.SendMessage(ctx, "Is anyone there?"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AwaitReply(ctx, welcome, 20*time.Second); err != nil {
		t.Fatal(err)
	}

	lines, err := file.ReadLines()
	if err != nil {
		t.Fatal(err)
	}
	format := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] (Me|Agent|System): `)
	wantSuffixes := []string{"Agent: Welcome!", "Me: Is anyone there?", "Agent: Sure, one moment."}
	if len(lines) != len(wantSuffixes) {
		t.Fatalf("transcript = %q", lines)
	}
	for i, suffix := range wantSuffixes {
		if !format.MatchString(lines[i]) || !strings.HasSuffix(lines[i], suffix) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], suffix)
		}
	}
}

func TestNewFillsZeroConfigFromDefaults(t *testing.T) {
	p := New(&scriptedSurface{}, &memRecorder{}, Config{ReplyInterval: 5 * time.Second}, zap.NewNop())
	want := DefaultConfig()
	want.ReplyInterval = 5 * time.Second
	if p.cfg != want {
		t.Fatalf("cfg = %+v, want %+v", p.cfg, want)
	}
}
