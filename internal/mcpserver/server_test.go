package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/timethings/internal/activity"
	"github.com/starford/timethings/internal/metasync"
	"github.com/starford/timethings/internal/noteservice"
	"github.com/starford/timethings/internal/storage"
	"github.com/starford/timethings/internal/testutil"
	"github.com/starford/timethings/internal/tracker"
	"github.com/starford/timethings/internal/workspace"
)

var testSettings = metasync.Settings{
	Modified:          metasync.KeySettings{Enabled: true, Name: "updated_at", Format: "YYYY-MM-DD"},
	ModifiedThreshold: 4 * time.Second,
	Duration:          metasync.KeySettings{Enabled: false, Name: "edited_seconds", Format: "HH:mm:ss"},
}

func testServer(t *testing.T) (*Server, *noteservice.Service, *storage.FS) {
	t.Helper()

	store := testutil.TestVault(t, map[string]string{
		"a.md": "---\ntitle: A\nmeta:\n  status: draft\n---\nbody\n",
	})
	db := testutil.TestDB(t)
	locks := &storage.PathLocks{}
	writes := storage.NewWriteLog()
	settings := func() metasync.Settings { return testSettings }

	svc := noteservice.New(noteservice.Options{
		Workspace: workspace.New(store, locks, writes),
		Headers:   storage.NewHeaderStore(store, locks, writes),
		Stats:     db,
		Mode:      func() noteservice.Mode { return noteservice.Mode{Fast: true, IndicatorActive: "on", IndicatorInactive: "off"} },
		Timing:    func() tracker.Timing { return tracker.Timing{Typing: time.Second, Flush: time.Second} },
		Settings:  settings,
		Clock:     clockwork.NewFakeClock(),
		Logger:    testutil.Logger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = svc.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })

	return New(svc, settings), svc, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "typing_status":
		result, err = srv.typingStatus(ctx, req)
	case "most_edited_notes":
		result, err = srv.mostEdited(ctx, req)
	case "edit_sessions":
		result, err = srv.editSessions(ctx, req)
	case "get_header_value":
		result, err = srv.getHeaderValue(ctx, req)
	case "set_header_value":
		result, err = srv.setHeaderValue(ctx, req)
	case "get_header_contract":
		result, err = srv.getHeaderContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetAndSetHeaderValue(t *testing.T) {
	srv, _, store := testServer(t)

	r := callTool(t, srv, "get_header_value", map[string]any{"path": "a.md", "key": "meta.status"})
	if r.IsError || resultText(r) != "draft" {
		t.Fatalf("get nested = %q (error %v)", resultText(r), r.IsError)
	}

	r = callTool(t, srv, "set_header_value", map[string]any{"path": "a.md", "key": "meta.status", "value": "done"})
	if r.IsError {
		t.Fatalf("set failed: %s", resultText(r))
	}
	data, _ := store.Read("a.md")
	if !strings.Contains(string(data), "  status: done\n") {
		t.Errorf("document after set = %q", data)
	}
}

func TestGetHeaderValue_Errors(t *testing.T) {
	srv, _, _ := testServer(t)

	if r := callTool(t, srv, "get_header_value", map[string]any{"path": "a.md"}); !r.IsError {
		t.Error("expected error for missing key argument")
	}
	r := callTool(t, srv, "get_header_value", map[string]any{"path": "a.md", "key": "nope"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "not found") {
		t.Errorf("missing field = %q (error %v)", resultText(r), r.IsError)
	}
	if r := callTool(t, srv, "set_header_value", map[string]any{"path": "a.md", "key": "x"}); !r.IsError {
		t.Error("expected error for missing value argument")
	}
}

func TestTypingStatus(t *testing.T) {
	srv, svc, _ := testServer(t)

	if text := resultText(callTool(t, srv, "typing_status", nil)); !strings.Contains(text, `"typing": false`) {
		t.Errorf("idle status = %s", text)
	}

	_, err := svc.HandleEvent(context.Background(), activity.Event{Kind: activity.KindKeyUp, Key: "a", Path: "a.md"})
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(callTool(t, srv, "typing_status", nil))
	for _, want := range []string{`"typing": true`, `"path": "a.md"`, `"indicator": "on"`} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %s: %s", want, text)
		}
	}
}

func TestStatsToolsEmpty(t *testing.T) {
	srv, _, _ := testServer(t)

	if text := resultText(callTool(t, srv, "most_edited_notes", map[string]any{"limit": 5})); text != "no edits recorded yet" {
		t.Errorf("most edited = %q", text)
	}
	if text := resultText(callTool(t, srv, "edit_sessions", map[string]any{"path": "a.md"})); text != "no sessions recorded yet" {
		t.Errorf("sessions = %q", text)
	}
}

func TestHeaderContract(t *testing.T) {
	srv, _, _ := testServer(t)

	text := resultText(callTool(t, srv, "get_header_contract", nil))
	for _, want := range []string{"`updated_at`, format `YYYY-MM-DD`", "4s of active editing", "Edit duration: disabled"} {
		if !strings.Contains(text, want) {
			t.Errorf("contract missing %q:\n%s", want, text)
		}
	}

	contents, err := srv.readContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != ContractURI || tc.Text != text {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
