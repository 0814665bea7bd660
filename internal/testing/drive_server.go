package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var parentsPattern = regexp.MustCompile(`'((?:[^'\\]|\\.)*)' in parents`)

// FakeDrive is an in-memory Drive v3 endpoint serving files.list,
// files.get and files.get?alt=media with Range support.
type FakeDrive struct {
	// IgnoreMimeFilter returns every child regardless of the query's MIME
	// clause, to exercise callers' own filtering
	IgnoreMimeFilter bool
	// IgnoreRange answers media requests with the whole body and 200
	IgnoreRange bool
	// DefaultPageSize applies when a list request has no pageSize
	DefaultPageSize int

	mu       sync.Mutex
	files    map[string]*drive.File
	content  map[string][]byte
	children map[string][]string
	failures map[string]fakeFailure
	ranges   []string
	lists    []string
	server   *httptest.Server
}

type fakeFailure struct {
	status int
	reason string
}

// NewFakeDrive starts a fake Drive server that is closed with the test
func NewFakeDrive(t *testing.T) *FakeDrive {
	t.Helper()
	f := &FakeDrive{
		DefaultPageSize: 100,
		files:           make(map[string]*drive.File),
		content:         make(map[string][]byte),
		children:        make(map[string][]string),
		failures:        make(map[string]fakeFailure),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL of the fake server
func (f *FakeDrive) URL() string {
	return f.server.URL
}

// Client returns an HTTP client for the fake server
func (f *FakeDrive) Client() *http.Client {
	return f.server.Client()
}

// Service returns a drive.Service pointed at the fake server
func (f *FakeDrive) Service(t *testing.T) *drive.Service {
	t.Helper()
	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(f.server.URL+"/"),
		option.WithHTTPClient(f.server.Client()),
	)
	if err != nil {
		t.Fatalf("failed to create drive service: %v", err)
	}
	return svc
}

// AddFile registers file as a child of folder with the given content. A
// nil content leaves the size as set on file.
func (f *FakeDrive) AddFile(folder string, file *drive.File, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if content != nil {
		file.Size = int64(len(content))
		f.content[file.Id] = content
	}
	f.files[file.Id] = file
	f.children[folder] = append(f.children[folder], file.Id)
}

// FailWith makes every request naming id fail with status and reason. An
// id of a folder fails listings of that folder.
func (f *FakeDrive) FailWith(id string, status int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[id] = fakeFailure{status: status, reason: reason}
}

// Ranges returns the Range headers received by media requests, in order
func (f *FakeDrive) Ranges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ranges...)
}

// ListQueries returns the q parameter of every list request, in order
func (f *FakeDrive) ListQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lists...)
}

func (f *FakeDrive) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case path == "files":
		f.serveList(w, r)
	case strings.HasPrefix(path, "files/"):
		id := strings.TrimPrefix(path, "files/")
		if r.URL.Query().Get("alt") == "media" {
			f.serveMedia(w, r, id)
			return
		}
		f.serveGet(w, id)
	default:
		writeAPIError(w, http.StatusNotFound, "notFound", "unknown path "+r.URL.Path)
	}
}

func (f *FakeDrive) serveList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, query)

	m := parentsPattern.FindStringSubmatch(query)
	if m == nil {
		writeAPIError(w, http.StatusBadRequest, "invalidQuery", "missing parents clause")
		return
	}
	folder := strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(m[1])
	if fail, ok := f.failures[folder]; ok {
		writeAPIError(w, fail.status, fail.reason, "listing failed")
		return
	}

	var matched []*drive.File
	for _, id := range f.children[folder] {
		file := f.files[id]
		if !f.IgnoreMimeFilter && strings.Contains(query, "mimeType contains 'image/'") &&
			!strings.Contains(file.MimeType, "image/") {
			continue
		}
		matched = append(matched, file)
	}

	pageSize := f.DefaultPageSize
	if v := q.Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	offset := 0
	if tok := q.Get("pageToken"); tok != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(tok, "cursor-"))
		if err != nil || n < 0 || n > len(matched) {
			writeAPIError(w, http.StatusBadRequest, "invalid", "bad page token")
			return
		}
		offset = n
	}

	end := offset + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	list := &drive.FileList{Files: matched[offset:end]}
	if end < len(matched) {
		list.NextPageToken = fmt.Sprintf("cursor-%d", end)
	}
	writeJSON(w, http.StatusOK, list)
}

func (f *FakeDrive) serveGet(w http.ResponseWriter, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if fail, ok := f.failures[id]; ok {
		writeAPIError(w, fail.status, fail.reason, "get failed")
		return
	}
	file, ok := f.files[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "notFound", "File not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

func (f *FakeDrive) serveMedia(w http.ResponseWriter, r *http.Request, id string) {
	f.mu.Lock()
	rangeHeader := r.Header.Get("Range")
	f.ranges = append(f.ranges, rangeHeader)
	fail, failed := f.failures[id]
	body, ok := f.content[id]
	ignoreRange := f.IgnoreRange
	f.mu.Unlock()

	if failed {
		http.Error(w, "media failed", fail.status)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	start, end, hasRange := parseRange(rangeHeader)
	if ignoreRange || !hasRange {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	size := int64(len(body))
	if start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if end >= size {
		end = size - 1
	}
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = w.Write(body[start : end+1])
}

func parseRange(h string) (int64, int64, bool) {
	rng, ok := strings.CutPrefix(h, "bytes=")
	if !ok {
		return 0, 0, false
	}
	from, to, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end, err := strconv.ParseInt(to, 10, 64)
	if err != nil || end < start {
		return 0, 0, false
	}
	return start, end, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, reason, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    status,
			"message": message,
			"errors": []map[string]string{
				{"reason": reason, "message": message},
			},
		},
	})
}
