package printer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

const (
	defaultPort    = "9100"
	defaultTimeout = 10 * time.Second
)

// ErrNotOpen is returned by session methods called outside Open/Close.
var ErrNotOpen = errors.New("printer session not open")

// Device is a Transport for a physical printer reached either through a
// character device (e.g. /dev/usb/lp0) or a raw TCP socket (host[:9100]).
// Writes are buffered and flushed on Close.
type Device struct {
	addr    string
	profile Profile
	timeout time.Duration

	conn io.WriteCloser
	buf  *bufio.Writer
	enc  *Encoder
}

var _ Transport = (*Device)(nil)

// DeviceConfig configures a Device.
type DeviceConfig struct {
	Address string
	Profile Profile
	Timeout time.Duration // bounds connecting and each write; 0 = 10s
}

func NewDevice(cfg DeviceConfig) *Device {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Profile.Name == "" {
		cfg.Profile = profiles["default"]
	}
	return &Device{
		addr:    cfg.Address,
		profile: cfg.Profile,
		timeout: cfg.Timeout,
	}
}

// IsFileAddress reports whether addr names a local device node rather than
// a network host.
func IsFileAddress(addr string) bool {
	return strings.HasPrefix(addr, "/") || strings.HasPrefix(addr, ".")
}

// Address returns the configured device address.
func (d *Device) Address() string { return d.addr }

// Open connects to the printer and resets it to left-aligned plain text.
func (d *Device) Open(ctx context.Context) error {
	if d.conn != nil {
		return fmt.Errorf("printer %s: session already open", d.addr)
	}
	conn, err := d.dial(ctx)
	if err != nil {
		return fmt.Errorf("open printer %s: %w", d.addr, err)
	}
	d.conn = conn
	d.buf = bufio.NewWriter(deadlineWriter{conn: conn, timeout: d.timeout})
	d.enc = NewEncoder(d.buf)
	if err := d.enc.Init(); err != nil {
		d.abort()
		return fmt.Errorf("init printer %s: %w", d.addr, err)
	}
	return nil
}

func (d *Device) dial(ctx context.Context) (io.WriteCloser, error) {
	if IsFileAddress(d.addr) {
		return os.OpenFile(d.addr, os.O_WRONLY, 0)
	}
	host := d.addr
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultPort)
	}
	dialer := net.Dialer{Timeout: d.timeout}
	return dialer.DialContext(ctx, "tcp", host)
}

// Close flushes buffered output and releases the connection. It always
// releases the connection, even when the flush fails.
func (d *Device) Close() error {
	if d.conn == nil {
		return nil
	}
	flushErr := d.buf.Flush()
	closeErr := d.conn.Close()
	d.conn, d.buf, d.enc = nil, nil, nil
	if flushErr != nil {
		return fmt.Errorf("flush printer %s: %w", d.addr, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close printer %s: %w", d.addr, closeErr)
	}
	return nil
}

func (d *Device) abort() {
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.conn, d.buf, d.enc = nil, nil, nil
}

func (d *Device) SetAlign(a Align) error {
	if d.enc == nil {
		return ErrNotOpen
	}
	return d.enc.Align(a)
}

func (d *Device) SetBold(on bool) error {
	if d.enc == nil {
		return ErrNotOpen
	}
	return d.enc.Bold(on)
}

func (d *Device) WriteLine(text string) error {
	if d.enc == nil {
		return ErrNotOpen
	}
	return d.enc.Line(text)
}

func (d *Device) WriteImage(img image.Image) error {
	if d.enc == nil {
		return ErrNotOpen
	}
	if w := img.Bounds().Dx(); w > d.profile.DotWidth {
		return fmt.Errorf("image width %d exceeds %s dot width %d", w, d.profile.Name, d.profile.DotWidth)
	}
	return d.enc.Image(img)
}

func (d *Device) Cut() error {
	if d.enc == nil {
		return ErrNotOpen
	}
	if err := d.enc.Feed(d.profile.FeedBeforeCut); err != nil {
		return err
	}
	return d.enc.Cut()
}

// deadlineWriter arms a write deadline before every write when the
// underlying connection supports one.
type deadlineWriter struct {
	conn    io.Writer
	timeout time.Duration
}

func (w deadlineWriter) Write(p []byte) (int, error) {
	if dl, ok := w.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		// Regular files report os.ErrNoDeadline; writes then block as usual.
		_ = dl.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.Write(p)
}
