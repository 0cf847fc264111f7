package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phedlund/cloudnotes/internal/models"
	"github.com/phedlund/cloudnotes/internal/notesync"
	"github.com/phedlund/cloudnotes/internal/testutil"
)

type env struct {
	router http.Handler
	srv    *testutil.FakeRemote
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.TestCache(t)
	srv := testutil.NewFakeRemote()
	mgr := notesync.New(db, srv)
	return &env{
		router: NewRouter(mgr, db, false, "", nil),
		srv:    srv,
	}
}

func (e *env) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeNote(t *testing.T, w *httptest.ResponseRecorder) NoteResponse {
	t.Helper()
	var n NoteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &n); err != nil {
		t.Fatalf("decode note: %v (%s)", err, w.Body.String())
	}
	return n
}

func TestCreateAndGetNote(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/notes", `{"content":"# Hello\nworld","category":"Inbox"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	created := decodeNote(t, w)
	if created.Title != "Hello" || created.Category != "Inbox" {
		t.Errorf("created = %+v", created)
	}
	if created.Pending {
		t.Error("online create should not be pending")
	}

	w = e.do(t, http.MethodGet, "/notes/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeNote(t, w)
	if got.ID != created.ID || got.Content != created.Content {
		t.Errorf("get = %+v, created = %+v", got, created)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	e := newEnv(t)
	if w := e.do(t, http.MethodPost, "/notes", `{"category":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty content status = %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/notes", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", w.Code)
	}
}

func TestListNotes_Filters(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/notes", `{"content":"work item","category":"Work"}`)
	e.do(t, http.MethodPost, "/notes", `{"content":"loose note"}`)
	e.do(t, http.MethodPost, "/notes", `{"content":"starred item","category":"Work"}`)
	e.do(t, http.MethodPut, "/notes/3/favorite", `{"favorite":true}`)

	var list NoteListResponse

	w := e.do(t, http.MethodGet, "/notes", "")
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 3 {
		t.Errorf("all total = %d, want 3", list.Total)
	}

	w = e.do(t, http.MethodGet, "/notes?category=Work", "")
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 {
		t.Errorf("Work total = %d, want 2", list.Total)
	}

	w = e.do(t, http.MethodGet, "/notes?category=Uncategorized", "")
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || list.Notes[0].Content != "loose note" {
		t.Errorf("uncategorized = %+v", list)
	}

	w = e.do(t, http.MethodGet, "/notes?starred=true", "")
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || !list.Notes[0].Favorite {
		t.Errorf("starred = %+v", list)
	}

	w = e.do(t, http.MethodGet, "/notes?pending=true", "")
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("pending after online adds = %+v", list)
	}

	e.srv.Fail = true
	e.do(t, http.MethodPost, "/notes", `{"content":"stuck offline"}`)
	w = e.do(t, http.MethodGet, "/notes?pending=true", "")
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || !list.Notes[0].Pending {
		t.Errorf("pending = %+v", list)
	}
}

func TestUpdateNote(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/notes", `{"content":"v1"}`)
	id := decodeNote(t, w).ID

	w = e.do(t, http.MethodPut, "/notes/1", `{"content":"v2 content"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	if got := decodeNote(t, w); got.Content != "v2 content" || got.ID != id {
		t.Errorf("updated = %+v", got)
	}

	if w := e.do(t, http.MethodPut, "/notes/999", `{"content":"x"}`); w.Code != http.StatusNotFound {
		t.Errorf("missing note status = %d", w.Code)
	}
	if w := e.do(t, http.MethodPut, "/notes/abc", `{"content":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/notes", `{"content":"bye"}`)

	if w := e.do(t, http.MethodDelete, "/notes/1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/notes/1", ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/notes/1", ""); w.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d", w.Code)
	}
}

func TestGetNote_DeletePendingIsInvisible(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/notes", `{"content":"bye"}`)

	// The remote delete cannot complete, so the note stays delete-pending.
	e.srv.Fail = true
	if w := e.do(t, http.MethodDelete, "/notes/1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/notes/1", ""); w.Code != http.StatusNotFound {
		t.Errorf("get on a delete-pending note status = %d, want 404", w.Code)
	}
}

func TestSetFavorite_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/notes", `{"content":"star me"}`)

	w := e.do(t, http.MethodPut, "/notes/1/favorite", `{"favorite":true}`)
	if w.Code != http.StatusOK || !decodeNote(t, w).Favorite {
		t.Fatalf("favorite: %d %s", w.Code, w.Body.String())
	}
	calls := e.srv.Calls("SetFavorite")

	// Same flag again must not hit the remote.
	w = e.do(t, http.MethodPut, "/notes/1/favorite", `{"favorite":true}`)
	if w.Code != http.StatusOK || !decodeNote(t, w).Favorite {
		t.Fatalf("repeat favorite: %d", w.Code)
	}
	if e.srv.Calls("SetFavorite") != calls {
		t.Error("idempotent favorite still reached the remote")
	}
}

func TestTriggerSync(t *testing.T) {
	e := newEnv(t)
	started := make(chan struct{})
	release := make(chan struct{})
	e.srv.OnFetch = func() {
		close(started)
		<-release
	}

	if w := e.do(t, http.MethodPost, "/sync", ""); w.Code != http.StatusAccepted {
		t.Fatalf("sync status = %d", w.Code)
	}
	<-started
	if w := e.do(t, http.MethodPost, "/sync", ""); w.Code != http.StatusConflict {
		t.Errorf("concurrent sync status = %d, want 409", w.Code)
	}
	close(release)

	deadline := time.After(2 * time.Second)
	for {
		if e.srv.Calls("FetchAll") >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("background sync never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestTreeEndpoint(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/notes", `{"content":"work note","category":"Work"}`)

	w := e.do(t, http.MethodGet, "/tree", "")
	if w.Code != http.StatusOK {
		t.Fatalf("tree status = %d", w.Code)
	}
	var resp TreeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var work *TreeNodeResponse
	for i := range resp.Roots {
		if resp.Roots[i].Title == "Work" {
			work = &resp.Roots[i]
		}
	}
	if work == nil {
		t.Fatalf("no Work group in %+v", resp.Roots)
	}
	if len(work.Children) != 1 || !work.Children[0].Leaf {
		t.Errorf("Work children = %+v", work.Children)
	}
}

func TestAuthMiddleware(t *testing.T) {
	db := testutil.TestCache(t)
	mgr := notesync.New(db, testutil.NewFakeRemote())
	router := NewRouter(mgr, db, true, "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d", w.Code)
	}
}

// Sanity check that placeholder notes are reported as pending.
func TestPendingFlagSurfaces(t *testing.T) {
	e := newEnv(t)
	e.srv.Fail = true
	w := e.do(t, http.MethodPost, "/notes", `{"content":"offline add"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	n := decodeNote(t, w)
	if !n.Pending {
		t.Error("unsynced note should report pending")
	}
	if n.ID != models.PlaceholderID {
		t.Errorf("unsynced note id = %d, want placeholder", n.ID)
	}
}
