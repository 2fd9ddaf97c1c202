package drive

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/avaluotech/fieldsync/internal/logging"
)

// fakeStore is an in-memory Blob Store speaking the same HTTP surface as the
// real one: children listing, fail-on-conflict folder creation, content PUT,
// chunked upload sessions and createLink.
type fakeStore struct {
	t  *testing.T
	mu sync.Mutex

	nextID   int
	folders  map[string]*fakeFolder // id -> folder
	files    map[string][]byte     // path -> content
	sessions map[string]*fakeSession

	folderCreates int      // total create-folder calls that succeeded
	chunkRanges   []string // Content-Range headers seen, in order
	requireToken  string   // when set, reject other bearers with 401
	failChunkAt   int      // 1-based chunk index to fail with 500; 0 = never
	putStatus     int      // forced status for content PUTs; 0 = normal
}

type fakeFolder struct {
	id       string
	name     string
	parent   string
	children map[string]string // name -> child folder id
}

type fakeSession struct {
	path     string
	received int64
	total    int64
}

func newFakeStore(t *testing.T) *fakeStore {
	f := &fakeStore{
		t:        t,
		folders:  map[string]*fakeFolder{},
		files:    map[string][]byte{},
		sessions: map[string]*fakeSession{},
	}
	f.folders[RootID] = &fakeFolder{id: RootID, name: "", children: map[string]string{}}
	return f
}

func (f *fakeStore) newID() string {
	f.nextID++
	return fmt.Sprintf("item-%03d", f.nextID)
}

var sessionRe = regexp.MustCompile(`^/uploadSession/(.+)$`)

func (f *fakeStore) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.requireToken != "" && r.Header.Get("Authorization") != "Bearer "+f.requireToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case sessionRe.MatchString(r.URL.Path):
			f.handleChunk(w, r, sessionRe.FindStringSubmatch(r.URL.Path)[1])
		case strings.HasSuffix(r.URL.Path, "/children"):
			f.handleChildren(w, r)
		case strings.HasSuffix(r.URL.Path, ":/content"):
			f.handleContent(w, r)
		case strings.HasSuffix(r.URL.Path, ":/createUploadSession"):
			f.handleCreateSession(w, r)
		case strings.HasSuffix(r.URL.Path, "/createLink"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"link": map[string]any{"webUrl": "https://share.example/x"},
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeStore) parentFromPath(w http.ResponseWriter, path string) (*fakeFolder, bool) {
	id := RootID
	if m := regexp.MustCompile(`^/items/([^/]+)/`).FindStringSubmatch(path); m != nil {
		id = m[1]
	}
	folder, ok := f.folders[id]
	if !ok {
		http.Error(w, "no such folder", http.StatusNotFound)
		return nil, false
	}
	return folder, true
}

func (f *fakeStore) handleChildren(w http.ResponseWriter, r *http.Request) {
	parent, ok := f.parentFromPath(w, r.URL.Path)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		items := []Item{}
		for name, id := range parent.children {
			items = append(items, Item{ID: id, Name: name, Folder: &FolderFacet{}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"value": items})
		return
	}

	// POST: create folder, fail on conflict
	var req struct {
		Name             string `json:"name"`
		ConflictBehavior string `json:"@microsoft.graph.conflictBehavior"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if _, exists := parent.children[req.Name]; exists {
		http.Error(w, "nameAlreadyExists", http.StatusConflict)
		return
	}

	id := f.newID()
	parent.children[req.Name] = id
	f.folders[id] = &fakeFolder{id: id, name: req.Name, parent: parent.id, children: map[string]string{}}
	f.folderCreates++

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(Item{ID: id, Name: req.Name, Folder: &FolderFacet{}})
}

func pathFromContentURL(p, suffix string) string {
	p = strings.TrimPrefix(p, "/root:/")
	return strings.TrimSuffix(p, ":/"+suffix)
}

func (f *fakeStore) handleContent(w http.ResponseWriter, r *http.Request) {
	if f.putStatus != 0 {
		w.WriteHeader(f.putStatus)
		return
	}
	body, _ := io.ReadAll(r.Body)
	path := pathFromContentURL(r.URL.Path, "content")
	f.files[path] = body

	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(RemoteObject{ID: f.newID(), Name: path, Size: int64(len(body))})
}

func (f *fakeStore) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	path := pathFromContentURL(r.URL.Path, "createUploadSession")
	id := f.newID()
	f.sessions[id] = &fakeSession{path: path}

	scheme := "http://"
	_ = json.NewEncoder(w).Encode(map[string]string{
		"uploadUrl": scheme + r.Host + "/uploadSession/" + id,
	})
}

func (f *fakeStore) handleChunk(w http.ResponseWriter, r *http.Request, sessionID string) {
	session, ok := f.sessions[sessionID]
	if !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}

	f.chunkRanges = append(f.chunkRanges, r.Header.Get("Content-Range"))

	if f.failChunkAt > 0 && len(f.chunkRanges) == f.failChunkAt {
		http.Error(w, "backend hiccup", http.StatusInternalServerError)
		return
	}

	var start, end, total int64
	if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil {
		http.Error(w, "bad content-range", http.StatusBadRequest)
		return
	}
	if start != session.received {
		http.Error(w, "offset gap", http.StatusConflict)
		return
	}

	body, _ := io.ReadAll(r.Body)
	if int64(len(body)) != end-start+1 {
		http.Error(w, "length mismatch "+strconv.Itoa(len(body)), http.StatusBadRequest)
		return
	}

	session.received = end + 1
	session.total = total

	if session.received == total {
		f.files[session.path] = make([]byte, total)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(RemoteObject{ID: f.newID(), Name: session.path, Size: total})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func newTestClient(t *testing.T, store *fakeStore) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(store.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticToken("test-token"), 0), srv
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}
