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

	"github.com/starford/arbor/internal/autocomplete"
	"github.com/starford/arbor/internal/changes"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/noteservice"
	"github.com/starford/arbor/internal/search"
	"github.com/starford/arbor/internal/testutil"
)

// testEnv wires a temp SQLite store, a cache, the services and the router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) http.Handler {
	t.Helper()
	return testEnvFull(t, authToken != "", authToken, nil)
}

func testEnvFull(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) http.Handler {
	t.Helper()

	db := testutil.OpenStore(t)
	cache := testutil.LoadedCache(t, db)
	logger := testutil.Logger()

	searchSvc := search.NewService(cache, logger, search.WithContentIndex(db))
	ac := autocomplete.New(searchSvc, db, logger)
	applier := changes.NewApplier(db, cache, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = applier.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	svc := noteservice.NewService(cache, db, db, searchSvc, ac, applier)
	return NewRouter(svc, authEnabled, authToken, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func change(t *testing.T, entity, op string, row any) changes.Event {
	t.Helper()
	raw, err := json.Marshal(row)
	if err != nil {
		t.Fatal(err)
	}
	return changes.Event{EntityType: entity, Op: op, Row: raw}
}

// seed builds root → Work → {Report (label status=done), Resume}.
func seed(t *testing.T, router http.Handler) {
	t.Helper()
	note := func(id, title string) changes.Event {
		return change(t, changes.EntityNote, changes.OpUpsert, models.NoteRow{NoteID: id, Title: title, Type: models.NoteTypeText})
	}
	branch := func(id, child, parent string, pos int) changes.Event {
		return change(t, changes.EntityBranch, changes.OpUpsert, models.BranchRow{BranchID: id, NoteID: child, ParentNoteID: parent, NotePosition: pos})
	}
	w := do(t, router, http.MethodPost, "/changes", ChangesRequest{Changes: []changes.Event{
		note(graph.RootID, "root"),
		note("work", "Work"),
		note("report", "Quarterly report"),
		note("resume", "Resume"),
		branch("b-work", "work", graph.RootID, 10),
		branch("b-report", "report", "work", 10),
		branch("b-resume", "resume", "work", 20),
		change(t, changes.EntityAttribute, changes.OpUpsert, models.AttributeRow{
			AttributeID: "a-status", NoteID: "work", Type: models.AttributeLabel, Name: "status", Value: "done", IsInheritable: true,
		}),
		change(t, changes.EntityContent, changes.OpUpsert, changes.ContentRow{NoteID: "report", Content: "revenue went up"}),
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("seed status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp ChangesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	for _, r := range resp.Results {
		if r.Error != "" {
			t.Fatalf("seed change %s %s failed: %s", r.EntityType, r.ID, r.Error)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/search?q=report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].NoteID != "report" {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].PathTitle != "Work / Quarterly report" {
		t.Errorf("pathTitle = %q", resp.Results[0].PathTitle)
	}
}

func TestSearchEndpoint_ContentAndAttributes(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	var resp SearchResponse
	w := do(t, router, http.MethodGet, "/search?q=revenue", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].NoteID != "report" {
		t.Errorf("content search results = %+v", resp.Results)
	}

	w = do(t, router, http.MethodGet, "/search?q=revenue&fastSearch=true", nil)
	resp = SearchResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 0 {
		t.Errorf("fast search should skip content, got %+v", resp.Results)
	}

	w = do(t, router, http.MethodGet, "/search?q=%23status%3Ddone", nil)
	resp = SearchResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 3 {
		t.Errorf("inherited label search = %d results, want 3", len(resp.Results))
	}
}

func TestSearchEndpoint_ValidationError(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/search?q=%23status%20~%3D%20ab", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body.String())
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error == "" || body.Token != "ab" {
		t.Errorf("error body = %+v", body)
	}
}

func TestSearchEndpoint_EmptyQuery(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSearchEndpoint_ETag(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/search?q=work", nil)
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = do(t, router, http.MethodGet, "/search?q=work", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Errorf("unchanged search = %d, want 304", w.Code)
	}

	// Any applied change moves the generation and invalidates the tag.
	do(t, router, http.MethodPost, "/changes", ChangesRequest{Changes: []changes.Event{
		change(t, changes.EntityNote, changes.OpUpsert, models.NoteRow{NoteID: "new", Title: "Workshop", Type: models.NoteTypeText}),
	}})
	w = do(t, router, http.MethodGet, "/search?q=work", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Errorf("search after change = %d, want 200", w.Code)
	}
}

func TestAutocompleteEndpoint(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/autocomplete?q=res", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp AutocompleteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].NoteID != "resume" {
		t.Fatalf("suggestions = %+v", resp.Suggestions)
	}
	if resp.Suggestions[0].NotePath != "root/work/resume" {
		t.Errorf("notePath = %q", resp.Suggestions[0].NotePath)
	}
}

func TestAutocompleteEndpoint_RecentNotes(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	for _, id := range []string{"resume", "report"} {
		w := do(t, router, http.MethodPost, "/recent-notes", RecentNoteRequest{NoteID: id})
		if w.Code != http.StatusNoContent {
			t.Fatalf("record visit %s = %d, body = %s", id, w.Code, w.Body.String())
		}
	}

	w := do(t, router, http.MethodGet, "/autocomplete?activeNoteId=report", nil)
	var resp AutocompleteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Suggestions) != 1 || resp.Suggestions[0].NoteID != "resume" {
		t.Errorf("history suggestions = %+v", resp.Suggestions)
	}
	if w.Header().Get("ETag") != "" {
		t.Error("history responses must not carry an ETag")
	}
}

func TestRecordVisit_UnknownNote(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/recent-notes", RecentNoteRequest{NoteID: "ghost"})
	if w.Code != http.StatusNotFound {
		t.Errorf("visit unknown note = %d, want 404", w.Code)
	}
	w = do(t, router, http.MethodPost, "/recent-notes", RecentNoteRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("visit without id = %d, want 400", w.Code)
	}
}

func TestGetNote(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/notes/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "Quarterly report" || note.Content != "revenue went up" {
		t.Errorf("note = %+v", note)
	}
	if strings.Join(note.NotePath, "/") != "root/work/report" {
		t.Errorf("notePath = %v", note.NotePath)
	}
	if note.Checksum == "" {
		t.Error("checksum missing")
	}
}

func TestGetNote_NotFound(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestAttributesEndpoint(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	w := do(t, router, http.MethodGet, "/notes/report/attributes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp AttributesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Attributes) != 1 {
		t.Fatalf("attributes = %+v", resp.Attributes)
	}
	a := resp.Attributes[0]
	if a.Name != "status" || a.OwnerNoteID != "work" || a.Origin != "ancestor" {
		t.Errorf("attribute = %+v", a)
	}
}

func TestLabelsEndpoint(t *testing.T) {
	router := testEnv(t, "")
	seed(t, router)

	var resp LabelResponse
	w := do(t, router, http.MethodGet, "/labels/status", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notes) != 3 {
		t.Errorf("notes with status = %d, want 3", len(resp.Notes))
	}

	resp = LabelResponse{}
	w = do(t, router, http.MethodGet, "/labels/status?value=open", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notes) != 0 {
		t.Errorf("notes with status=open = %+v", resp.Notes)
	}
}

func TestApplyChanges_BadRequests(t *testing.T) {
	router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/changes", strings.NewReader("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/changes", ChangesRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty changes = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodPost, "/changes", ChangesRequest{Changes: []changes.Event{
		{EntityType: "widget", Op: changes.OpUpsert, Row: json.RawMessage(`{}`)},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("per-change failure = %d, want 200", w.Code)
	}
	var resp ChangesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Error == "" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/search?q=x", nil, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed search = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/search?q=x", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/search?q=x", nil, "Authorization", "Bearer wrong")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="arbor"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "unauthorized" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthMiddleware_QueryTokenOnlyForEventStreams(t *testing.T) {
	router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/search?q=x&access_token=secret123", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("query token on JSON route = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search?q=x", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvFull(t, true, "secret", sseStub)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_AuthDisabled(t *testing.T) {
	router := testEnvFull(t, false, "", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE should not require auth when disabled")
	}
}

func TestSSEEvents_QueryToken(t *testing.T) {
	router := testEnvFull(t, true, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?access_token=tok", nil).WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with access_token should not 401")
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvFull(t, true, "tok", sseStub)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
