package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/starford/timethings/internal/apperr"
	"github.com/starford/timethings/internal/frontmatter"
)

func newHeaderStore(t *testing.T) (*FS, *HeaderStore, *WriteLog) {
	t.Helper()
	fs := tempVault(t)
	log := NewWriteLog()
	return fs, NewHeaderStore(fs, &PathLocks{}, log), log
}

func TestHeaderStore_WritesAndRecords(t *testing.T) {
	fs, hs, log := newHeaderStore(t)
	_ = fs.Write("n.md", []byte("---\ntitle: x\n---\nbody\n"))

	err := hs.WithHeader(context.Background(), "n.md", func(h *frontmatter.Header) error {
		h.Set("edited_seconds", "00:00:03")
		return nil
	})
	if err != nil {
		t.Fatalf("WithHeader: %v", err)
	}
	got, _ := fs.Read("n.md")
	if !strings.Contains(string(got), "edited_seconds: 00:00:03") || !strings.HasSuffix(string(got), "---\nbody\n") {
		t.Errorf("doc = %q", got)
	}
	if !log.IsSelfWrite("n.md", got) {
		t.Error("write not recorded")
	}
}

func TestHeaderStore_CallbackErrorWritesNothing(t *testing.T) {
	fs, hs, log := newHeaderStore(t)
	src := []byte("---\ntitle: x\n---\n")
	_ = fs.Write("n.md", src)

	boom := errors.New("boom")
	err := hs.WithHeader(context.Background(), "n.md", func(h *frontmatter.Header) error {
		h.Set("title", "y")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got, _ := fs.Read("n.md"); string(got) != string(src) {
		t.Errorf("doc changed: %q", got)
	}
	if log.IsSelfWrite("n.md", src) {
		t.Error("failed transaction recorded")
	}
}

func TestHeaderStore_MissingDocument(t *testing.T) {
	_, hs, _ := newHeaderStore(t)
	err := hs.WithHeader(context.Background(), "gone.md", func(*frontmatter.Header) error { return nil })
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestHeaderStore_SerializesPerPath(t *testing.T) {
	fs, hs, _ := newHeaderStore(t)
	_ = fs.Write("n.md", []byte("---\ncount: 0\n---\n"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hs.WithHeader(context.Background(), "n.md", func(h *frontmatter.Header) error {
				v, _ := h.Get("count")
				n, _ := strconv.Atoi(v)
				h.Set("count", strconv.Itoa(n+1))
				return nil
			})
		}()
	}
	wg.Wait()

	data, _ := fs.Read("n.md")
	block, _, _ := frontmatter.Split(data)
	h, err := frontmatter.Decode(block)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := h.Get("count"); v != "20" {
		t.Errorf("count = %s, want 20 (lost update)", v)
	}
}

func TestWriteLog(t *testing.T) {
	log := NewWriteLog()
	log.Record("a.md", []byte("one"))
	if !log.IsSelfWrite("a.md", []byte("one")) {
		t.Error("recorded write not recognised")
	}
	if log.IsSelfWrite("a.md", []byte("two")) || log.IsSelfWrite("b.md", []byte("one")) {
		t.Error("unexpected self write")
	}
	log.Forget("a.md")
	if log.IsSelfWrite("a.md", []byte("one")) {
		t.Error("forgotten write still recognised")
	}
}
