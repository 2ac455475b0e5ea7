package printer

import (
	"image"
	"image/color"
	"image/draw"
	"io"

	"golang.org/x/text/encoding/charmap"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

// rasterBand is the number of rows sent per GS v 0 command. Some firmware
// rejects taller raster blocks.
const rasterBand = 256

var monochrome = color.Palette{color.Black, color.White}

// Encoder writes ESC/POS commands. Text is transcoded to code page 437,
// the power-on default of Epson printers; characters outside it print as '?'.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Init resets the printer to its power-on state (ESC @).
func (e *Encoder) Init() error {
	return e.raw(esc, '@')
}

// Align selects justification (ESC a n).
func (e *Encoder) Align(a Align) error {
	return e.raw(esc, 'a', byte(a))
}

// Bold toggles emphasized mode (ESC E n).
func (e *Encoder) Bold(on bool) error {
	var n byte
	if on {
		n = 1
	}
	return e.raw(esc, 'E', n)
}

// Line prints text followed by a line feed.
func (e *Encoder) Line(text string) error {
	out := make([]byte, 0, len(text)+1)
	for _, r := range text {
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	_, err := e.w.Write(append(out, '\n'))
	return err
}

// Feed prints n empty lines.
func (e *Encoder) Feed(n int) error {
	for i := 0; i < n; i++ {
		if err := e.raw('\n'); err != nil {
			return err
		}
	}
	return nil
}

// Cut performs a full cut (GS V 0).
func (e *Encoder) Cut() error {
	return e.raw(gs, 'V', 0)
}

// Image prints img as a dithered 1-bit raster (GS v 0), in bands of
// rasterBand rows.
func (e *Encoder) Image(img image.Image) error {
	b := img.Bounds()
	bw := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), monochrome)
	draw.FloydSteinberg.Draw(bw, bw.Bounds(), img, b.Min)

	rowBytes := (b.Dx() + 7) / 8
	for top := 0; top < b.Dy(); top += rasterBand {
		rows := min(rasterBand, b.Dy()-top)
		header := []byte{gs, 'v', '0', 0,
			byte(rowBytes), byte(rowBytes >> 8),
			byte(rows), byte(rows >> 8),
		}
		data := make([]byte, rowBytes*rows)
		for y := 0; y < rows; y++ {
			for x := 0; x < b.Dx(); x++ {
				if bw.ColorIndexAt(x, top+y) == 0 {
					data[y*rowBytes+x/8] |= 0x80 >> (x % 8)
				}
			}
		}
		if _, err := e.w.Write(append(header, data...)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) raw(b ...byte) error {
	_, err := e.w.Write(b)
	return err
}
