// Package listing produces folder listings: it pages through the catalog,
// filters to media objects, enriches entries with gateway endpoints and
// splits them by the configured size threshold.
package listing

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/api"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/tunnel"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
)

// ThumbnailFetcher fetches a thumbnail link with the service credential
type ThumbnailFetcher interface {
	Fetch(ctx context.Context, reqCtx *types.RequestContext, rawURL string) (*tunnel.Response, error)
}

// Options configures a Service
type Options struct {
	RootFolder      string
	SizeLimitKB     float64
	DefaultPageSize int
	// MaxListItems stops a non-paginated listing once this many entries
	// are included; 0 means no limit
	MaxListItems int
}

// ListRequest describes one listing call
type ListRequest struct {
	Folder        string
	Paginated     bool
	WithThumbnail bool
	// PageSize of 0 selects the configured default
	PageSize  int
	PageToken types.PageToken
}

// Service lists folders through a catalog
type Service struct {
	catalog api.Catalog
	thumbs  ThumbnailFetcher
	opts    Options
	logger  logging.Logger
}

// NewService creates a listing service. thumbs may be nil when inline
// thumbnails are never requested.
func NewService(catalog api.Catalog, thumbs ThumbnailFetcher, opts Options, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = utils.DefaultPageSize
	}
	return &Service{
		catalog: catalog,
		thumbs:  thumbs,
		opts:    opts,
		logger:  logger,
	}
}

// List returns the media entries of a folder. Backend errors are returned
// as-is and no partial page is produced.
func (s *Service) List(ctx context.Context, reqCtx *types.RequestContext, req ListRequest) (*types.ListingPage, error) {
	if req.PageSize < 0 {
		return nil, utils.InvalidArgument(fmt.Sprintf("pageSize must be positive, got %d", req.PageSize))
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = s.opts.DefaultPageSize
	}
	folder := req.Folder
	if folder == "" {
		folder = s.opts.RootFolder
	}
	if folder == "" {
		return nil, utils.InvalidArgument("no folder given and no root folder configured")
	}
	reqCtx.FolderID = folder

	start := time.Now()
	logger := s.logger.WithTraceID(reqCtx.TraceID)
	page := &types.ListingPage{Files: []*types.FileEntry{}}
	cursor := req.PageToken

	for {
		raw, err := s.catalog.ListChildren(ctx, reqCtx, api.ListQuery{
			Q:         api.ChildrenQuery(folder),
			Fields:    utils.ListFields,
			PageSize:  pageSize,
			PageToken: cursor,
		})
		if err != nil {
			return nil, err
		}

		for _, entry := range raw.Files {
			if !utils.IsMediaMimeType(entry.MimeType) {
				continue
			}
			entry.SizeKB = float64(entry.Size) / 1024
			if entry.SizeKB > s.opts.SizeLimitKB {
				page.Skipped = append(page.Skipped, entry)
				continue
			}
			s.enrich(ctx, reqCtx, logger, entry, req.WithThumbnail)
			page.Files = append(page.Files, entry)
			logger.Debug("Listed entry",
				logging.F("fileId", entry.ID),
				logging.F("name", entry.Name),
				logging.F("sizeKb", entry.SizeKB),
			)
		}

		cursor = raw.NextPageToken
		if cursor == "" {
			break
		}
		if req.Paginated && len(page.Files) >= pageSize {
			break
		}
		if !req.Paginated && s.opts.MaxListItems > 0 && len(page.Files) >= s.opts.MaxListItems {
			logger.Warn("Listing stopped at item limit",
				logging.F("folderId", folder),
				logging.F("maxListItems", s.opts.MaxListItems),
			)
			break
		}
	}
	page.PageToken = cursor

	logger.Info("Listed folder",
		logging.F("folderId", folder),
		logging.F("elapsed", time.Since(start).String()),
		logging.F("included", len(page.Files)),
		logging.F("skipped", len(page.Skipped)),
		logging.F("thresholdKb", s.opts.SizeLimitKB),
	)
	return page, nil
}

func (s *Service) enrich(ctx context.Context, reqCtx *types.RequestContext, logger logging.Logger, entry *types.FileEntry, withThumbnail bool) {
	entry.FetchEndpoint = utils.FetchRoute + entry.ID
	link := entry.ThumbnailSource()
	if link == "" {
		return
	}
	entry.ThumbnailEndpoint = utils.TunnelRoute + "?url=" + url.QueryEscape(link)

	if !withThumbnail || s.thumbs == nil {
		return
	}
	resp, err := s.thumbs.Fetch(ctx, reqCtx, link)
	if err != nil {
		logger.Warn("Thumbnail fetch failed",
			logging.F("fileId", entry.ID),
			logging.F("error", err.Error()),
		)
		return
	}
	entry.Thumbnail = base64.StdEncoding.EncodeToString(resp.Body)
	entry.ThumbnailMimeType = resp.ContentType
}
