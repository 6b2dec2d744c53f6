package tl_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/metaphox/tl"
)

const sample = `
int ? = Int;
boolTrue = Bool;
boolFalse = Bool;
vector#1cb5c415 {t:Type} # [ t ] = Vector t;
---functions---
getInts = Vector int;
`

func TestPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.tl")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := tl.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	prog, err := tl.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	schema, err := tl.Compile(prog)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(schema.Functions) != 1 {
		t.Fatalf("got %d functions, want 1", len(schema.Functions))
	}
	out := tl.Encode(schema)
	if len(out) == 0 || len(out)%4 != 0 {
		t.Fatalf("output length %d is not a positive multiple of 4", len(out))
	}

	again, err := tl.Compile(prog)
	if err != nil {
		t.Fatalf("recompile: %v", err)
	}
	if !bytes.Equal(out, tl.Encode(again)) {
		t.Fatal("second compilation produced different bytes")
	}
}

func TestParseError(t *testing.T) {
	_, err := tl.Parse("boolTrue = bool;")
	if err == nil {
		t.Fatal("parse succeeded, want error")
	}
}
