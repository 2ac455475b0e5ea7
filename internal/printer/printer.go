// Package printer drives ESC/POS receipt printers.
//
// A Transport speaks to one device. The Spooler owns a Transport and runs
// render operation sequences against it one job at a time, so the
// open..close bracket of a job is never interleaved with another job.
package printer

import (
	"context"
	"image"
)

// Align is a horizontal justification mode.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

func (a Align) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	default:
		return "left"
	}
}

// Transport is a printer session. Open and Close bracket a job; the other
// methods are only valid between them.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
	SetAlign(a Align) error
	SetBold(on bool) error
	WriteLine(text string) error
	WriteImage(img image.Image) error
	Cut() error
}
