package channel

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"slipbot/internal/bus"
	"slipbot/internal/domain"
)

func TestCLI_PublishesLinesAndPrintsReplies(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(img, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader("!todo buy milk\n\n!todo see this < " + img + "\n/quit\nignored\n")
	var out bytes.Buffer
	c := NewCLI(CLIConfig{Logger: testLogger(), In: in, Out: &out})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	b := bus.New(10, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx, b); err != nil {
		t.Fatalf("start: %v", err)
	}

	first := <-b.Subscribe()
	if first.Text != "!todo buy milk" || first.Channel != "cli" || first.Timestamp != 1700000000000 {
		t.Fatalf("unexpected message %+v", first)
	}
	second := <-b.Subscribe()
	if second.Text != "!todo see this" || len(second.Attachments) != 1 || string(second.Attachments[0].Data) != "data" {
		t.Fatalf("unexpected attachment message %+v", second)
	}
	select {
	case m := <-b.Subscribe():
		t.Fatalf("unexpected extra message %+v", m)
	default:
	}

	if err := b.Reply(ctx, first, "What todo?"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if err := b.React(ctx, first, domain.GlyphPrinted); err != nil {
		t.Fatalf("react: %v", err)
	}
	if err := b.MarkRead(ctx, first); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "What todo?\n") || !strings.Contains(got, "["+domain.GlyphPrinted+"]\n") {
		t.Fatalf("unexpected output %q", got)
	}
}
