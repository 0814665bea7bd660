package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"google.golang.org/api/googleapi"
)

// ChunkStatus reports the state of a chunked download after a step
type ChunkStatus struct {
	// Progress is the cumulative number of bytes written to the window
	Progress int64
	// Total is the object size when known, otherwise 0
	Total int64
	Done  bool
}

// ChunkSession downloads one object a range at a time into its window
type ChunkSession interface {
	// NextChunk fetches the next range. Calling it after Done is reported
	// returns the final status again.
	NextChunk(ctx context.Context) (ChunkStatus, error)
	Window() *WindowBuffer
	Close() error
}

type driveSession struct {
	client *Client
	reqCtx *types.RequestContext
	fileID string

	mu     sync.Mutex
	window *WindowBuffer
	offset int64
	total  int64
	done   bool
	closed bool
}

// OpenDownload starts a chunked download session for meta. No bytes are
// requested until the first NextChunk.
func (c *Client) OpenDownload(ctx context.Context, reqCtx *types.RequestContext, meta *types.FileMetadata) (ChunkSession, error) {
	if meta == nil || meta.ID == "" {
		return nil, fmt.Errorf("download requires object metadata")
	}
	if err := ctx.Err(); err != nil {
		return nil, classifyError(err, reqCtx, c.logger)
	}
	return &driveSession{
		client: c,
		reqCtx: reqCtx,
		fileID: meta.ID,
		window: &WindowBuffer{},
		total:  meta.Size,
	}, nil
}

func (s *driveSession) Window() *WindowBuffer {
	return s.window
}

func (s *driveSession) status() ChunkStatus {
	return ChunkStatus{Progress: s.offset, Total: s.total, Done: s.done}
}

func (s *driveSession) NextChunk(ctx context.Context) (ChunkStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.status(), fmt.Errorf("download session closed")
	}
	if s.done {
		return s.status(), nil
	}
	if s.total > 0 && s.offset >= s.total {
		s.done = true
		return s.status(), nil
	}

	chunkCtx := ctx
	if s.client.opts.ChunkTimeout > 0 {
		var cancel context.CancelFunc
		chunkCtx, cancel = context.WithTimeout(ctx, s.client.opts.ChunkTimeout)
		defer cancel()
	}

	want := s.client.opts.ChunkSize
	if s.total > 0 && s.offset+want > s.total {
		want = s.total - s.offset
	}

	call := s.client.service.Files.Get(s.fileID).SupportsAllDrives(true).Context(chunkCtx)
	call.Header().Set("Range", fmt.Sprintf("bytes=%d-%d", s.offset, s.offset+want-1))

	resp, err := call.Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusRequestedRangeNotSatisfiable {
			// Past the end of an object whose size was not known up front.
			s.done = true
			return s.status(), nil
		}
		return s.status(), classifyError(err, s.reqCtx, s.client.logger)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && s.offset > 0 {
		return s.status(), classifyError(fmt.Errorf("backend ignored range request at offset %d", s.offset), s.reqCtx, s.client.logger)
	}
	if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
		s.total = total
	}

	n, err := io.Copy(s.window, resp.Body)
	s.offset += n
	if err != nil {
		return s.status(), classifyError(err, s.reqCtx, s.client.logger)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		s.done = true
	case s.total > 0 && s.offset >= s.total:
		s.done = true
	case n < want:
		s.done = true
	}

	s.client.logger.Debug("Downloaded chunk",
		logging.F("traceId", s.reqCtx.TraceID),
		logging.F("fileId", s.fileID),
		logging.F("bytes", n),
		logging.F("progress", s.offset),
		logging.F("total", s.total),
	)
	return s.status(), nil
}

func (s *driveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// parseContentRangeTotal extracts the complete length from a header like
// "bytes 0-8191/30000"
func parseContentRangeTotal(h string) (int64, bool) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || i == len(h)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(h[i+1:], 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
