package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"

	"slipbot/internal/domain"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
}

// IsImageFile reports whether name carries one of the printable image
// extensions.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// AttachmentError records an image attachment that could not be decoded.
type AttachmentError struct {
	Filename string
	Size     int
	Err      error
}

func (e AttachmentError) Error() string {
	return fmt.Sprintf("attachment %s: %v", e.Filename, e.Err)
}

func (e AttachmentError) Unwrap() error { return e.Err }

// Limits on source images. The aspect cap keeps the resized raster at most
// MaxAspect times the slip width tall.
const (
	MaxSourceSide = 4096
	MaxAspect     = 16
)

var (
	errEmptyImage = errors.New("image has no pixels")

	// ErrImageTooLarge is returned for images outside the source limits.
	ErrImageTooLarge = errors.New("image too large")
)

// Decode decodes a PNG, JPEG, GIF or BMP payload. The header is checked
// against the size limits before any pixel data is decoded.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errEmptyImage
	}
	if cfg.Width > MaxSourceSide || cfg.Height > MaxSourceSide {
		return nil, fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height, MaxSourceSide, MaxSourceSide)
	}
	if cfg.Height > cfg.Width*MaxAspect {
		return nil, fmt.Errorf("%w: %dx%d is taller than %d:1", ErrImageTooLarge, cfg.Width, cfg.Height, MaxAspect)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errEmptyImage
	}
	return img, nil
}

// DecodeAttachments decodes every image attachment in order. Attachments
// without an image extension are skipped without error; attachments that
// fail to decode are reported and left out.
func DecodeAttachments(atts []domain.Attachment) ([]image.Image, []AttachmentError) {
	var images []image.Image
	var failed []AttachmentError
	for _, a := range atts {
		if !IsImageFile(a.Filename) {
			continue
		}
		img, err := Decode(a.Data)
		if err != nil {
			failed = append(failed, AttachmentError{Filename: a.Filename, Size: len(a.Data), Err: err})
			continue
		}
		images = append(images, img)
	}
	return images, failed
}

// ScaledHeight returns the height that keeps the aspect ratio of a w x h
// image scaled to width.
func ScaledHeight(w, h, width int) int {
	if w <= 0 {
		return 0
	}
	nh := int(math.Round(float64(h) / float64(w) * float64(width)))
	if nh < 1 {
		nh = 1
	}
	return nh
}

// Resize scales img to exactly width pixels wide, preserving the aspect
// ratio, with Catmull-Rom resampling onto a white background.
func Resize(img image.Image, width int) image.Image {
	sb := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, width, ScaledHeight(sb.Dx(), sb.Dy(), width)))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, sb, draw.Over, nil)
	return dst
}
