package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/starford/timethings/internal/metasync"
	"github.com/starford/timethings/internal/noteservice"
	"github.com/starford/timethings/internal/storage"
	"github.com/starford/timethings/internal/testutil"
	"github.com/starford/timethings/internal/tracker"
	"github.com/starford/timethings/internal/workspace"
)

type testOpts struct {
	authEnabled bool
	token       string
	structured  bool
	sse         http.Handler
}

// testEnv sets up a temp vault, SQLite DB, running service, and router.
func testEnv(t *testing.T, o testOpts) (*storage.FS, http.Handler) {
	t.Helper()

	store := testutil.TestVault(t, map[string]string{
		"hello.md":     "---\ntitle: Hello\n---\nWorld\n",
		"sub/notes.md": "---\ntitle: Nested\n---\n",
		"list.md":      "---\n- a\n- b\n---\n",
	})
	db := testutil.TestDB(t)
	locks := &storage.PathLocks{}
	writes := storage.NewWriteLog()

	svc := noteservice.New(noteservice.Options{
		Workspace: workspace.New(store, locks, writes),
		Headers:   storage.NewHeaderStore(store, locks, writes),
		Stats:     db,
		Mode: func() noteservice.Mode {
			return noteservice.Mode{Fast: !o.structured, IndicatorActive: "✏🔵", IndicatorInactive: "✋🔴"}
		},
		Timing: func() tracker.Timing { return tracker.Timing{Typing: time.Second, Flush: time.Second} },
		Settings: func() metasync.Settings {
			return metasync.Settings{Duration: metasync.KeySettings{Enabled: true, Name: "edited_seconds", Format: "HH:mm:ss"}}
		},
		Clock:  clockwork.NewFakeClock(),
		Logger: testutil.Logger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = svc.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })

	return store, NewRouter(svc, o.authEnabled, o.token, o.sse)
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPostEvent_Decisions(t *testing.T) {
	_, router := testEnv(t, testOpts{})

	cases := []struct {
		body map[string]any
		want string
	}{
		{map[string]any{"type": "keyup", "key": "a", "path": "hello.md"}, "full"},
		{map[string]any{"type": "keyup", "key": "ArrowUp"}, "drop"},
		{map[string]any{"type": "mousedown"}, "partial"},
		{map[string]any{"type": "document-modified", "path": "hello.md"}, "drop"},
	}
	for _, tc := range cases {
		w := do(t, router, http.MethodPost, "/events", tc.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%v: status = %d, body = %s", tc.body, w.Code, w.Body.String())
		}
		var resp EventResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Decision != tc.want {
			t.Errorf("%v: decision = %q, want %q", tc.body, resp.Decision, tc.want)
		}
	}
}

func TestPostEvent_BadRequest(t *testing.T) {
	_, router := testEnv(t, testOpts{})

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/events", map[string]any{"type": "scroll"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind = %d, want 400", w.Code)
	}
}

func TestStatus(t *testing.T) {
	_, router := testEnv(t, testOpts{})

	w := do(t, router, http.MethodGet, "/status", nil)
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if w.Code != http.StatusOK || st.Typing || st.Indicator != "✋🔴" || st.Backend != noteservice.BackendFast {
		t.Fatalf("idle status = %d %+v", w.Code, st)
	}

	do(t, router, http.MethodPost, "/events", map[string]any{"type": "keyup", "key": "x", "path": "hello.md"})

	w = do(t, router, http.MethodGet, "/status", nil)
	st = StatusResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if !st.Typing || st.Indicator != "✏🔵" || st.Path != "hello.md" {
		t.Errorf("typing status = %+v", st)
	}
}

func TestHeaders_GetAndPut(t *testing.T) {
	for _, structured := range []bool{false, true} {
		_, router := testEnv(t, testOpts{structured: structured})

		w := do(t, router, http.MethodGet, "/headers/hello.md?key=title", nil)
		var field HeaderField
		_ = json.Unmarshal(w.Body.Bytes(), &field)
		if w.Code != http.StatusOK || field.Value != "Hello" {
			t.Fatalf("structured=%v get = %d %+v", structured, w.Code, field)
		}

		w = do(t, router, http.MethodPut, "/headers/sub%2Fnotes.md", PutHeaderRequest{Key: "status", Value: "draft"})
		if w.Code != http.StatusOK {
			t.Fatalf("structured=%v put = %d, body = %s", structured, w.Code, w.Body.String())
		}
		w = do(t, router, http.MethodGet, "/headers/sub/notes.md?key=status", nil)
		field = HeaderField{}
		_ = json.Unmarshal(w.Body.Bytes(), &field)
		if field.Value != "draft" || field.Path != "sub/notes.md" {
			t.Errorf("structured=%v after put = %+v", structured, field)
		}
	}
}

func TestHeaders_Errors(t *testing.T) {
	_, router := testEnv(t, testOpts{structured: true})

	cases := []struct {
		method, target string
		body           any
		want           int
	}{
		{http.MethodGet, "/headers/hello.md", nil, http.StatusBadRequest},
		{http.MethodGet, "/headers/hello.md?key=nope", nil, http.StatusNotFound},
		{http.MethodGet, "/headers/ghost.md?key=title", nil, http.StatusNotFound},
		{http.MethodGet, "/headers/list.md?key=title", nil, http.StatusUnprocessableEntity},
		{http.MethodPut, "/headers/hello.md", PutHeaderRequest{Value: "x"}, http.StatusBadRequest},
		{http.MethodPut, "/headers/ghost.md", PutHeaderRequest{Key: "a", Value: "x"}, http.StatusNotFound},
		{http.MethodPut, "/headers/hello.md", PutHeaderRequest{Key: "a", Value: "x\n---\ninjected"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := do(t, router, tc.method, tc.target, tc.body); w.Code != tc.want {
			t.Errorf("%s %s = %d, want %d (%s)", tc.method, tc.target, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestStats_Empty(t *testing.T) {
	_, router := testEnv(t, testOpts{})

	w := do(t, router, http.MethodGet, "/stats?limit=5", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"notes":[]`) {
		t.Errorf("stats = %d %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/stats/sessions?path=hello.md", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"sessions":[]`) {
		t.Errorf("sessions = %d %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodGet, "/stats/hello.md", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("stat of untracked doc = %d, want 404", w.Code)
	}
}

func TestLimitParam(t *testing.T) {
	cases := map[string]int{"": defaultLimit, "abc": defaultLimit, "-1": defaultLimit, "7": 7, "5000": maxLimit}
	for in, want := range cases {
		r := httptest.NewRequest(http.MethodGet, "/stats?limit="+in, nil)
		if got := limitParam(r); got != want {
			t.Errorf("limit %q = %d, want %d", in, got, want)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, testOpts{authEnabled: true, token: "secret123"})

	w := do(t, router, http.MethodGet, "/status", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, testOpts{authEnabled: true, token: "secret123"})

	if w := do(t, router, http.MethodGet, "/status", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, testOpts{authEnabled: true, token: "secret123"})

	if w := do(t, router, http.MethodGet, "/status", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/status?access_token=wrong", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong query token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_QueryToken(t *testing.T) {
	_, router := testEnv(t, testOpts{authEnabled: true, token: "secret123"})

	if w := do(t, router, http.MethodGet, "/status?access_token=secret123", nil); w.Code != http.StatusOK {
		t.Errorf("query token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, testOpts{})

	if w := do(t, router, http.MethodGet, "/status", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// Minimal SSE handler stub: writes headers and blocks until context done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnv(t, testOpts{authEnabled: true, token: "secret", sse: sseStub})

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnv(t, testOpts{authEnabled: true, token: "tok", sse: sseStub})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("SSE with valid token = %d", w.Code)
	}
}

func TestStream_WebSocket(t *testing.T) {
	_, router := testEnv(t, testOpts{authEnabled: true, token: "tok"})
	ts := httptest.NewServer(router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, nil); err == nil {
		t.Fatal("dial without token succeeded")
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token=tok", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	exchange := func(msg string) StreamReply {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
		var reply StreamReply
		if err := conn.ReadJSON(&reply); err != nil {
			t.Fatalf("read: %v", err)
		}
		return reply
	}

	if r := exchange(`{"type":"keyup","key":"a","path":"hello.md"}`); r.Decision != "full" || r.Error != "" {
		t.Errorf("keyup reply = %+v", r)
	}
	if r := exchange(`{"type":"keyup","key":"a","ctrl":true}`); r.Decision != "drop" {
		t.Errorf("ctrl keyup reply = %+v", r)
	}
	if r := exchange(`not json`); r.Error == "" {
		t.Errorf("bad message reply = %+v", r)
	}
	if r := exchange(`{"type":"scroll"}`); r.Error == "" {
		t.Errorf("unknown kind reply = %+v", r)
	}
	// The connection stays usable after errors.
	if r := exchange(`{"type":"mousedown"}`); r.Decision != "partial" {
		t.Errorf("mousedown reply = %+v", r)
	}
}
