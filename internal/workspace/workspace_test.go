package workspace

import (
	"errors"
	"testing"

	"github.com/starford/timethings/internal/apperr"
	"github.com/starford/timethings/internal/frontmatter"
	"github.com/starford/timethings/internal/storage"
)

func testWorkspace(t *testing.T) (*Workspace, *storage.FS, *storage.WriteLog) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	log := storage.NewWriteLog()
	return New(fs, &storage.PathLocks{}, log), fs, log
}

func TestView(t *testing.T) {
	w, _, _ := testWorkspace(t)
	if v := w.View(); v.Exists || v.Focused {
		t.Errorf("empty workspace view = %+v", v)
	}
	w.Focus("a.md", true)
	if v := w.View(); !v.Exists || !v.Focused || w.ActivePath() != "a.md" {
		t.Errorf("view = %+v, path %q", v, w.ActivePath())
	}
	w.SetFocused(false)
	if v := w.View(); !v.Exists || v.Focused {
		t.Errorf("unfocused view = %+v", v)
	}
	w.Focus("", true)
	if v := w.View(); v.Exists || v.Focused {
		t.Errorf("cleared view = %+v", v)
	}
}

func TestDocument_EditCommit(t *testing.T) {
	w, fs, log := testWorkspace(t)
	_ = fs.Write("n.md", []byte("# Title\ntext\n"))

	doc := w.Document("n.md")
	if err := doc.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	frontmatter.SetValue(doc, "edited_seconds", "00:00:03")
	if err := doc.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := fs.Read("n.md")
	want := "---\nedited_seconds: 00:00:03\n---\n# Title\ntext\n"
	if string(got) != want {
		t.Errorf("doc = %q\nwant %q", got, want)
	}
	if !log.IsSelfWrite("n.md", got) {
		t.Error("commit not recorded in write log")
	}
}

func TestDocument_UnchangedCommitDoesNotWrite(t *testing.T) {
	w, fs, log := testWorkspace(t)
	src := []byte("---\nk: v\n---\n")
	_ = fs.Write("n.md", src)

	doc := w.Document("n.md")
	if err := doc.Begin(); err != nil {
		t.Fatal(err)
	}
	if v, ok := frontmatter.Value(doc, "k"); !ok || v != "v" {
		t.Errorf("Value = %q, %v", v, ok)
	}
	frontmatter.SetValue(doc, "k", "v")
	if err := doc.Commit(); err != nil {
		t.Fatal(err)
	}
	if log.IsSelfWrite("n.md", src) {
		t.Error("unchanged document was written")
	}
}

func TestDocument_Lifecycle(t *testing.T) {
	w, fs, _ := testWorkspace(t)
	_ = fs.Write("n.md", []byte("x"))

	doc := w.Document("n.md")
	if err := doc.Commit(); err == nil {
		t.Error("Commit without Begin should fail")
	}
	doc.SetLine(0, "ignored")
	if doc.Line(0) != "" {
		t.Error("closed document should read empty")
	}

	if err := doc.Begin(); err != nil {
		t.Fatal(err)
	}
	if err := doc.Begin(); err == nil {
		t.Error("second Begin should fail")
	}
	if err := doc.Commit(); err != nil {
		t.Fatal(err)
	}
	// The lock is released, so the document can be reopened.
	if err := doc.Begin(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = doc.Commit()
}

func TestDocument_BeginMissing(t *testing.T) {
	w, _, _ := testWorkspace(t)
	if err := w.Document("gone.md").Begin(); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
