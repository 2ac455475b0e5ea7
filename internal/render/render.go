// Package render turns a todo request into the ordered list of printer
// operations for one slip. Nothing here performs I/O.
package render

import (
	"fmt"
	"image"
	"time"
)

// DefaultWidth is the printable dot width of an 80mm TM-T88IV head.
const DefaultWidth = 512

const timestampLayout = "[01/02/2006 (Mon) -- 15:04:05]\n"

// TodoLabel is printed in bold above the body.
const TodoLabel = "TODO: "

// OpKind identifies a printer primitive.
type OpKind int

const (
	OpOpen OpKind = iota
	OpText
	OpBold
	OpImage
	OpCut
	OpClose
)

// Op is one printer primitive. Text is used by OpText, Bold by OpBold and
// Image by OpImage.
type Op struct {
	Kind  OpKind
	Text  string
	Bold  bool
	Image image.Image
}

func (o Op) String() string {
	switch o.Kind {
	case OpOpen:
		return "open"
	case OpText:
		return fmt.Sprintf("text %q", o.Text)
	case OpBold:
		if o.Bold {
			return "bold on"
		}
		return "bold off"
	case OpImage:
		b := o.Image.Bounds()
		return fmt.Sprintf("image %dx%d", b.Dx(), b.Dy())
	case OpCut:
		return "cut"
	case OpClose:
		return "close"
	default:
		return fmt.Sprintf("op(%d)", int(o.Kind))
	}
}

// Job is a validated todo slip ready for rendering.
type Job struct {
	TimestampLabel string
	Body           string
	Images         []image.Image
}

// Renderer holds the settings that shape a slip.
type Renderer struct {
	Width    int
	Location *time.Location
}

// New returns a Renderer for the given dot width and time zone. Zero values
// fall back to DefaultWidth and the local zone.
func New(width int, loc *time.Location) Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	if loc == nil {
		loc = time.Local
	}
	return Renderer{Width: width, Location: loc}
}

// FormatTimestamp renders epoch milliseconds as the slip header label,
// including its trailing line break.
func (r Renderer) FormatTimestamp(millis int64) string {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(millis/1000, 0).In(loc).Format(timestampLayout)
}

// NewJob builds the Job for a message body and its decoded images.
func (r Renderer) NewJob(millis int64, body string, images []image.Image) Job {
	return Job{
		TimestampLabel: r.FormatTimestamp(millis),
		Body:           body,
		Images:         images,
	}
}

// Ops returns the printer operations for job in print order.
func (r Renderer) Ops(job Job) []Op {
	ops := make([]Op, 0, 8+2*len(job.Images))
	ops = append(ops,
		Op{Kind: OpOpen},
		Op{Kind: OpText, Text: job.TimestampLabel},
		Op{Kind: OpBold, Bold: true},
		Op{Kind: OpText, Text: TodoLabel},
		Op{Kind: OpBold, Bold: false},
		Op{Kind: OpText, Text: job.Body},
	)
	for _, img := range job.Images {
		ops = append(ops,
			Op{Kind: OpImage, Image: Resize(img, r.width())},
			Op{Kind: OpText},
		)
	}
	return append(ops, Op{Kind: OpCut}, Op{Kind: OpClose})
}

// Render is NewJob followed by Ops.
func (r Renderer) Render(millis int64, body string, images []image.Image) []Op {
	return r.Ops(r.NewJob(millis, body, images))
}

func (r Renderer) width() int {
	if r.Width <= 0 {
		return DefaultWidth
	}
	return r.Width
}
