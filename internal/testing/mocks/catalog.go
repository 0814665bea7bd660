package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/dl-alexandre/gdrv-gateway/internal/api"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
)

// MockCatalog is a scriptable api.Catalog for testing
type MockCatalog struct {
	ListChildrenFunc func(ctx context.Context, query api.ListQuery) (*types.CatalogPage, error)
	GetMetadataFunc  func(ctx context.Context, fileID string) (*types.FileMetadata, error)
	OpenDownloadFunc func(ctx context.Context, meta *types.FileMetadata) (api.ChunkSession, error)

	mu      sync.Mutex
	queries []api.ListQuery
	opened  int
}

var _ api.Catalog = (*MockCatalog)(nil)

// NewMockCatalog creates a catalog that serves pages in order, threading
// "page-N" cursors between them
func NewMockCatalog(pages ...[]*types.FileEntry) *MockCatalog {
	m := &MockCatalog{}
	m.ListChildrenFunc = func(ctx context.Context, query api.ListQuery) (*types.CatalogPage, error) {
		idx := 0
		if query.PageToken != "" {
			if _, err := fmt.Sscanf(string(query.PageToken), "page-%d", &idx); err != nil {
				return nil, fmt.Errorf("unexpected page token %q", query.PageToken)
			}
		}
		if idx >= len(pages) {
			return &types.CatalogPage{}, nil
		}
		page := &types.CatalogPage{Files: cloneEntries(pages[idx])}
		if idx+1 < len(pages) {
			page.NextPageToken = types.PageToken(fmt.Sprintf("page-%d", idx+1))
		}
		return page, nil
	}
	return m
}

func cloneEntries(in []*types.FileEntry) []*types.FileEntry {
	out := make([]*types.FileEntry, len(in))
	for i, e := range in {
		c := *e
		out[i] = &c
	}
	return out
}

func (m *MockCatalog) ListChildren(ctx context.Context, reqCtx *types.RequestContext, query api.ListQuery) (*types.CatalogPage, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()

	if m.ListChildrenFunc != nil {
		return m.ListChildrenFunc(ctx, query)
	}
	return &types.CatalogPage{}, nil
}

func (m *MockCatalog) GetMetadata(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*types.FileMetadata, error) {
	if m.GetMetadataFunc != nil {
		return m.GetMetadataFunc(ctx, fileID)
	}
	return &types.FileMetadata{
		ID:       fileID,
		Name:     "mock-image.png",
		MimeType: "image/png",
		Size:     1024,
	}, nil
}

func (m *MockCatalog) OpenDownload(ctx context.Context, reqCtx *types.RequestContext, meta *types.FileMetadata) (api.ChunkSession, error) {
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()

	if m.OpenDownloadFunc != nil {
		return m.OpenDownloadFunc(ctx, meta)
	}
	return NewMockSession(make([]byte, meta.Size), 256*1024), nil
}

// Queries returns every list query received, in order
func (m *MockCatalog) Queries() []api.ListQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]api.ListQuery(nil), m.queries...)
}

// Opened returns how many download sessions were opened
func (m *MockCatalog) Opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened
}

// MockSession is a ChunkSession over an in-memory object. Each step writes
// the next chunk into the window; Steps overrides the chunk sizes.
type MockSession struct {
	// Steps, when set, lists the byte count of each successive chunk
	Steps []int
	// FailAt makes NextChunk return Err on that (zero-based) call
	FailAt int
	Err    error
	// Block, when set, is waited on before every chunk
	Block chan struct{}

	mu        sync.Mutex
	data      []byte
	chunkSize int
	window    *api.WindowBuffer
	progress  int64
	calls     int
	closed    bool
}

// NewMockSession creates a session serving data in chunkSize pieces
func NewMockSession(data []byte, chunkSize int) *MockSession {
	return &MockSession{
		data:      data,
		chunkSize: chunkSize,
		window:    &api.WindowBuffer{},
		FailAt:    -1,
	}
}

func (s *MockSession) NextChunk(ctx context.Context) (api.ChunkStatus, error) {
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return s.status(), ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.calls
	s.calls++
	if s.closed {
		return s.statusLocked(), fmt.Errorf("session closed")
	}
	if call == s.FailAt {
		return s.statusLocked(), s.Err
	}

	n := s.chunkSize
	if call < len(s.Steps) {
		n = s.Steps[call]
	}
	remaining := int64(len(s.data)) - s.progress
	if int64(n) > remaining {
		n = int(remaining)
	}
	_, _ = s.window.Write(s.data[s.progress : s.progress+int64(n)])
	s.progress += int64(n)
	return s.statusLocked(), nil
}

func (s *MockSession) status() api.ChunkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *MockSession) statusLocked() api.ChunkStatus {
	total := int64(len(s.data))
	return api.ChunkStatus{Progress: s.progress, Total: total, Done: s.progress >= total}
}

func (s *MockSession) Window() *api.WindowBuffer {
	return s.window
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called
func (s *MockSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Calls returns how many times NextChunk was called
func (s *MockSession) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
