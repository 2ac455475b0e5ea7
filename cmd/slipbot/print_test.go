package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrintCmd_DryRun(t *testing.T) {
	dir := t.TempDir()
	configPath = filepath.Join(dir, "missing.json")
	defer func() { configPath = "" }()

	img := filepath.Join(dir, "photo.png")
	f, err := os.Create(img)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 1024, 768))); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cmd := printCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--dry-run", "--image", img, "buy", "milk"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := out.String()
	for _, want := range []string{"[🖨]", "open", `line "TODO: "`, `line "buy milk"`, "image 512x384", "cut", "close"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
