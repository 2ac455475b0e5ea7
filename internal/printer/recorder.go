package printer

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Recorder is a Transport that records each call as a short string instead
// of printing. It backs dry runs. Fail makes the named call ("open",
// "align", "bold", "line", "image", "cut", "close") return the given error.
type Recorder struct {
	Fail map[string]error

	mu    sync.Mutex
	calls []string
	open  bool
}

var _ Transport = (*Recorder)(nil)

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// IsOpen reports whether a session is currently open.
func (r *Recorder) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

func (r *Recorder) record(name, call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[name]; err != nil {
		return err
	}
	r.calls = append(r.calls, call)
	switch name {
	case "open":
		r.open = true
	case "close":
		r.open = false
	}
	return nil
}

func (r *Recorder) Open(ctx context.Context) error { return r.record("open", "open") }
func (r *Recorder) Close() error                   { return r.record("close", "close") }
func (r *Recorder) SetAlign(a Align) error         { return r.record("align", "align "+a.String()) }

func (r *Recorder) SetBold(on bool) error {
	if on {
		return r.record("bold", "bold on")
	}
	return r.record("bold", "bold off")
}

func (r *Recorder) WriteLine(text string) error {
	return r.record("line", fmt.Sprintf("line %q", text))
}

func (r *Recorder) WriteImage(img image.Image) error {
	b := img.Bounds()
	return r.record("image", fmt.Sprintf("image %dx%d", b.Dx(), b.Dy()))
}

func (r *Recorder) Cut() error { return r.record("cut", "cut") }
