package api

import (
	"context"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/errors"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
	"github.com/google/uuid"
	"google.golang.org/api/drive/v3"
)

// ClientOptions tunes request shaping against Drive
type ClientOptions struct {
	// RequestTimeout bounds each metadata or listing call; 0 disables it
	RequestTimeout time.Duration
	// ChunkSize is the byte length of each download range
	ChunkSize int64
	// ChunkTimeout bounds each download range request; 0 disables it
	ChunkTimeout time.Duration
}

// Client wraps the Drive API with timeouts, logging and error classification
type Client struct {
	service *drive.Service
	opts    ClientOptions
	logger  logging.Logger
}

// NewClient creates a new Drive API client
func NewClient(service *drive.Service, opts ClientOptions, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = utils.DefaultChunkSize
	}
	return &Client{
		service: service,
		opts:    opts,
		logger:  logger,
	}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		InvolvedFileIDs: []string{},
		RequestType:     requestType,
		TraceID:         uuid.New().String(),
	}
}

// WithFileIDs adds file IDs to the request context
func (c *Client) WithFileIDs(ctx *types.RequestContext, fileIDs ...string) *types.RequestContext {
	ctx.InvolvedFileIDs = append(ctx.InvolvedFileIDs, fileIDs...)
	return ctx
}

// Execute runs a single Drive call under the request timeout. Failures are
// classified into AppErrors; there is no retry.
func Execute[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func(ctx context.Context) (T, error)) (T, error) {
	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("folderId", reqCtx.FolderID),
	)

	callCtx := ctx
	if client.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, client.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := fn(callCtx)
	duration := time.Since(start)
	if err != nil {
		logger.Warn("API operation failed",
			logging.F("duration_ms", duration.Milliseconds()),
			logging.F("error", err.Error()),
		)
		var zero T
		return zero, classifyError(err, reqCtx, client.logger)
	}

	logger.Debug("API operation completed",
		logging.F("duration_ms", duration.Milliseconds()),
	)
	return result, nil
}

// classifyError converts API errors to gateway errors
func classifyError(err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	return errors.ClassifyGoogleAPIError("drive", err, reqCtx, logger)
}
