package frontmatter

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/timethings/internal/apperr"
)

func TestProcess_SetExistingPreservesOrderAndBody(t *testing.T) {
	in := []byte("---\ntitle: Hello\nupdated_at: old\ntags:\n  - go\n---\n# Hello\nBody text.\n")
	out, err := Process(in, func(h *Header) error {
		h.Set("updated_at", "2026-10-18")
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "---\ntitle: Hello\nupdated_at: 2026-10-18\ntags:\n  - go\n---\n# Hello\nBody text.\n"
	if string(out) != want {
		t.Errorf("out = %q\nwant %q", out, want)
	}
}

func TestProcess_CreatesHeader(t *testing.T) {
	out, err := Process([]byte("# Title\n"), func(h *Header) error {
		h.Set("edited_seconds", "00:00:05")
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if string(out) != "---\nedited_seconds: 00:00:05\n---\n# Title\n" {
		t.Errorf("out = %q", out)
	}
}

func TestProcess_NestedSetCreatesParents(t *testing.T) {
	out, err := Process([]byte("---\ntitle: x\n---\n"), func(h *Header) error {
		h.Set("stats.edited", "1")
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !strings.Contains(string(out), "stats:\n  edited: \"1\"") && !strings.Contains(string(out), "stats:\n  edited: 1") {
		t.Errorf("out = %q", out)
	}
}

func TestProcess_CallbackErrorLeavesNothing(t *testing.T) {
	boom := errors.New("boom")
	out, err := Process([]byte("---\na: 1\n---\n"), func(h *Header) error {
		h.Set("a", "2")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if out != nil {
		t.Errorf("out = %q, want nil", out)
	}
}

func TestProcess_InvalidYAML(t *testing.T) {
	_, err := Process([]byte("---\n: invalid: yaml: {{{\n---\n"), func(h *Header) error { return nil })
	if !errors.Is(err, apperr.ErrInvalidHeader) {
		t.Errorf("err = %v, want ErrInvalidHeader", err)
	}
}

func TestProcess_ScalarHeaderRejected(t *testing.T) {
	_, err := Process([]byte("---\njust text\n---\n"), func(h *Header) error { return nil })
	if !errors.Is(err, apperr.ErrInvalidHeader) {
		t.Errorf("err = %v, want ErrInvalidHeader", err)
	}
}

func TestHeader_GetNested(t *testing.T) {
	h, err := Decode([]byte("a:\n  b: 1\nlist:\n  - x\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, ok := h.Get("a.b"); !ok || v != "1" {
		t.Errorf("Get(a.b) = %q, %v", v, ok)
	}
	if v, ok := h.Get("list"); !ok || v != "" {
		t.Errorf("Get(list) = %q, %v; want empty, true", v, ok)
	}
	if _, ok := h.Get("a.c"); ok {
		t.Error("Get(a.c) should be absent")
	}
	if _, ok := h.Get("a.b.c"); ok {
		t.Error("Get(a.b.c) should be absent")
	}
}

func TestHeader_SetReplacesTypedValue(t *testing.T) {
	h, err := Decode([]byte("edited_seconds: 5\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	h.Set("edited_seconds", "00:00:10")
	out, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(out) != "edited_seconds: \"00:00:10\"\n" && string(out) != "edited_seconds: 00:00:10\n" {
		t.Errorf("out = %q", out)
	}
	if strings.Contains(string(out), "!!int") {
		t.Errorf("stale tag kept: %q", out)
	}
}

func TestSplit(t *testing.T) {
	block, body, ok := Split([]byte("---\na: 1\n---\nbody\n"))
	if !ok {
		t.Fatal("expected header")
	}
	if string(block) != "a: 1" || string(body) != "body\n" {
		t.Errorf("block = %q, body = %q", block, body)
	}
	if _, body, ok := Split([]byte("plain")); ok || string(body) != "plain" {
		t.Errorf("Split(plain) = %q, %v", body, ok)
	}
}

func TestProcess_CRLF(t *testing.T) {
	set := func(h *Header) error {
		h.Set("updated_at", "new")
		return nil
	}

	out, err := Process([]byte("---\r\nupdated_at: old\r\n---\r\nbody\r\n"), set)
	if err != nil {
		t.Fatal(err)
	}
	if want := "---\r\nupdated_at: new\r\n---\r\nbody\r\n"; string(out) != want {
		t.Errorf("existing header: got %q, want %q", out, want)
	}

	out, err = Process([]byte("body\r\n"), set)
	if err != nil {
		t.Fatal(err)
	}
	if want := "---\r\nupdated_at: new\r\n---\r\nbody\r\n"; string(out) != want {
		t.Errorf("new header: got %q, want %q", out, want)
	}
}

func TestHeader_Scalar(t *testing.T) {
	h, err := Decode([]byte("flat: 1\nnested:\n  total: 5\nlist: [a]\n"))
	if err != nil {
		t.Fatal(err)
	}
	for path, want := range map[string]bool{"flat": true, "nested": false, "nested.total": true, "list": false, "missing": true} {
		if got := h.Scalar(path); got != want {
			t.Errorf("Scalar(%q) = %v, want %v", path, got, want)
		}
	}
}
