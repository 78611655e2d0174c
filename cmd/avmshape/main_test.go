package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/avmcore/vm/shape"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "avmcore.toml"), []byte("[engine]\nmax-recursion = 64\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRun_CBORToFile(t *testing.T) {
	dir := writeConfig(t)
	out := filepath.Join(dir, "shapes.cbor")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-config", dir, "-format", "cbor", "-o", out}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout got %d bytes with -o set", stdout.Len())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	s, err := shape.UnmarshalEngine(data)
	if err != nil {
		t.Fatalf("UnmarshalEngine: %v", err)
	}
	if s.Class("Object") == nil || s.Class("Function") == nil {
		t.Errorf("snapshot missing builtin classes: %d classes", len(s.Classes))
	}
}

func TestRun_TextOneClass(t *testing.T) {
	dir := writeConfig(t)
	var stdout, stderr bytes.Buffer

	if code := run([]string{"-config", dir, "-class", "String"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	text := stdout.String()
	if !strings.HasPrefix(text, "String extends Object") {
		t.Errorf("output starts with %q", firstLine(text))
	}
	if strings.Contains(text, "Function extends") {
		t.Error("-class did not filter the snapshot")
	}
}

func TestRun_Failures(t *testing.T) {
	dir := writeConfig(t)
	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"unknown class", []string{"-class", "Nope"}, 1, "Unknown class: Nope"},
		{"unknown format", []string{"-format", "xml"}, 2, "Unknown format: xml"},
		{"unwritable output", []string{"-o", filepath.Join(dir, "missing", "s.txt")}, 1, "Error writing shapes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(append([]string{"-config", dir}, tt.args...), &stdout, &stderr)
			if code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
			if !strings.Contains(stderr.String(), tt.msg) {
				t.Errorf("stderr = %q, want %q", stderr.String(), tt.msg)
			}
		})
	}
}

func TestWriteOutput_ClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := writeOutput(path, nil, []byte("shapes\n")); err != nil {
		t.Fatalf("writeOutput: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "shapes\n" {
		t.Errorf("file = %q", got)
	}

	// A directory cannot be created as a file.
	if err := writeOutput(t.TempDir(), nil, []byte("x")); err == nil {
		t.Error("writeOutput to a directory succeeded")
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
