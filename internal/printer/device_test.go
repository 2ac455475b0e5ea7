package printer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIsFileAddress(t *testing.T) {
	tests := map[string]bool{
		"/dev/usb/lp0":     true,
		"./printer.out":    true,
		"192.168.1.50":     false,
		"printer.lan:9100": false,
	}
	for addr, want := range tests {
		if got := IsFileAddress(addr); got != want {
			t.Errorf("IsFileAddress(%q) = %v, want %v", addr, got, want)
		}
	}
}

func TestDevice_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lp0")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	d := NewDevice(DeviceConfig{Address: path})
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.WriteLine("hello"); err != nil {
		t.Fatal(err)
	}
	if err := d.Cut(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(got, []byte{0x1b, '@'}) {
		t.Errorf("expected init prefix, got %x", got[:2])
	}
	if !bytes.Contains(got, []byte("hello\n")) {
		t.Error("expected printed text in output")
	}
	if !bytes.HasSuffix(got, []byte("\n\n\n\n\n\n\x1dV\x00")) {
		t.Errorf("expected feed and cut at the end, got %x", got)
	}
}

func TestDevice_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- data
	}()

	d := NewDevice(DeviceConfig{Address: ln.Addr().String(), Timeout: time.Second})
	if err := d.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.SetBold(true); err != nil {
		t.Fatal(err)
	}
	if err := d.WriteLine("TODO: "); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-received:
		want := append([]byte{0x1b, '@', 0x1b, 'E', 1}, []byte("TODO: \n")...)
		if !bytes.Equal(data, want) {
			t.Fatalf("expected %x, got %x", want, data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("printer server received nothing")
	}
}

func TestDevice_OpenRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	d := NewDevice(DeviceConfig{Address: addr, Timeout: 500 * time.Millisecond})
	if err := d.Open(context.Background()); err == nil {
		d.Close()
		t.Fatal("expected error dialing a closed port")
	}
}

func TestDevice_NotOpen(t *testing.T) {
	d := NewDevice(DeviceConfig{Address: "/nonexistent"})
	if err := d.WriteLine("x"); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close without open should be a no-op, got %v", err)
	}
}

func TestDevice_ImageTooWide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lp0")
	os.WriteFile(path, nil, 0o644)

	p, _ := LookupProfile("TM-T88IV")
	d := NewDevice(DeviceConfig{Address: path, Profile: p})
	if err := d.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.WriteImage(image.NewGray(image.Rect(0, 0, 600, 10))); err == nil {
		t.Fatal("expected error for image wider than the print head")
	}
}
