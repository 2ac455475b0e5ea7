package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStatusCmd_ReportsPrinter(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = io.Copy(io.Discard, conn)
			}()
		}
	}()

	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.json")
	defer func() { configPath = "" }()
	data := fmt.Sprintf(`{"printer": {"device": %q, "profile": "TM-T20II"}}`, ln.Addr().String())
	if err := os.WriteFile(configPath, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := statusCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	got := out.String()
	want := fmt.Sprintf("printer:  %s (TM-T20II, 576 dots, 48 columns)", ln.Addr())
	for _, w := range []string{want, "reachable: yes", "channel:  cli"} {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q:\n%s", w, got)
		}
	}
}
