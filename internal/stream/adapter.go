// Package stream turns a chunked download session into an ordered,
// non-overlapping sequence of byte slices.
package stream

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/api"
	"github.com/dl-alexandre/gdrv-gateway/internal/errors"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
)

// Adapter opens object streams against a catalog
type Adapter struct {
	catalog api.Catalog
	logger  logging.Logger
}

// NewAdapter creates a stream adapter
func NewAdapter(catalog api.Catalog, logger logging.Logger) *Adapter {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Adapter{catalog: catalog, logger: logger}
}

// Stream is a pull-based byte sequence over one object. It is not safe for
// concurrent use by multiple readers.
type Stream struct {
	FileID      string
	Name        string
	ContentType string
	Size        int64

	session api.ChunkSession
	reqCtx  *types.RequestContext
	logger  logging.Logger

	start   time.Time
	last    int64
	steps   int
	done    bool
	err     error
	closeMu sync.Once
}

// Open fetches the object's metadata and starts a download session. If the
// metadata fetch fails no session is opened.
func (a *Adapter) Open(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*Stream, error) {
	if fileID == "" {
		return nil, utils.InvalidArgument("file id is required")
	}

	meta, err := a.catalog.GetMetadata(ctx, reqCtx, fileID)
	if err != nil {
		return nil, err
	}

	session, err := a.catalog.OpenDownload(ctx, reqCtx, meta)
	if err != nil {
		return nil, err
	}

	logger := a.logger.WithTraceID(reqCtx.TraceID)
	logger.Info(fmt.Sprintf("streaming %s: %s (%.1f kB)", meta.ID, meta.MimeType, meta.SizeKB()),
		logging.F("fileId", meta.ID),
		logging.F("mimeType", meta.MimeType),
		logging.F("sizeKb", meta.SizeKB()),
	)

	return &Stream{
		FileID:      meta.ID,
		Name:        meta.Name,
		ContentType: meta.MimeType,
		Size:        meta.Size,
		session:     session,
		reqCtx:      reqCtx,
		logger:      logger,
		start:       time.Now(),
	}, nil
}

// Next requests the next chunk and returns the bytes added since the
// previous call. It returns io.EOF once the session has reported
// completion. Any other error ends the stream, closes the session and is
// returned again by later calls.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return nil, io.EOF
	}

	if err := ctx.Err(); err != nil {
		return nil, s.fail(errors.ClassifyGoogleAPIError("drive", err, s.reqCtx, s.logger))
	}

	status, err := s.session.NextChunk(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	if status.Progress < s.last {
		return nil, s.fail(utils.InternalError(fmt.Errorf("download progress went backwards: %d after %d", status.Progress, s.last)))
	}

	chunk, err := s.session.Window().Take(s.last, status.Progress)
	if err != nil {
		return nil, s.fail(utils.InternalError(err))
	}
	s.last = status.Progress
	s.steps++

	if status.Done {
		s.done = true
		s.logger.Info("Stream completed",
			logging.F("fileId", s.FileID),
			logging.F("bytes", s.last),
			logging.F("chunks", s.steps),
			logging.F("elapsed", time.Since(s.start).String()),
		)
		_ = s.Close()
	}
	return chunk, nil
}

// Chunks returns an iterator over the remaining chunks. Iteration stops
// after the final chunk or after yielding the first error.
func (s *Stream) Chunks(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer func() { _ = s.Close() }()
		for {
			chunk, err := s.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// Progress returns the number of bytes emitted so far
func (s *Stream) Progress() int64 {
	return s.last
}

// Close releases the download session. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeMu.Do(func() {
		err = s.session.Close()
	})
	return err
}

func (s *Stream) fail(err error) error {
	s.err = err
	s.logger.Warn("Stream aborted",
		logging.F("fileId", s.FileID),
		logging.F("bytes", s.last),
		logging.F("error", err.Error()),
	)
	_ = s.Close()
	return err
}
