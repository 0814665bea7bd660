package api

import (
	"context"
	"strings"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Catalog is the object catalog the gateway reads from. *Client is the
// Drive implementation; tests substitute fakes.
type Catalog interface {
	ListChildren(ctx context.Context, reqCtx *types.RequestContext, query ListQuery) (*types.CatalogPage, error)
	GetMetadata(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*types.FileMetadata, error)
	OpenDownload(ctx context.Context, reqCtx *types.RequestContext, meta *types.FileMetadata) (ChunkSession, error)
}

var _ Catalog = (*Client)(nil)

// ListQuery is one page request against the catalog
type ListQuery struct {
	Q         string
	Fields    string
	PageSize  int
	PageToken types.PageToken
}

// ChildrenQuery builds the media query for the direct children of folderID
func ChildrenQuery(folderID string) string {
	return "mimeType contains '" + utils.MediaMimePrefix + "' and '" + EscapeQueryValue(folderID) + "' in parents"
}

// EscapeQueryValue escapes a value for use inside a single-quoted Drive
// query literal
func EscapeQueryValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// ListChildren fetches one page of catalog entries
func (c *Client) ListChildren(ctx context.Context, reqCtx *types.RequestContext, query ListQuery) (*types.CatalogPage, error) {
	fields := query.Fields
	if fields == "" {
		fields = utils.ListFields
	}

	return Execute(ctx, c, reqCtx, func(ctx context.Context) (*types.CatalogPage, error) {
		call := c.service.Files.List().
			Q(query.Q).
			Fields(googleapi.Field(fields)).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if query.PageSize > 0 {
			call = call.PageSize(int64(query.PageSize))
		}
		if query.PageToken != "" {
			call = call.PageToken(string(query.PageToken))
		}

		result, err := call.Do()
		if err != nil {
			return nil, err
		}

		page := &types.CatalogPage{
			Files:         make([]*types.FileEntry, 0, len(result.Files)),
			NextPageToken: types.PageToken(result.NextPageToken),
		}
		for _, f := range result.Files {
			page.Files = append(page.Files, convertFile(f))
		}
		c.logger.Debug("Listed catalog page",
			logging.F("traceId", reqCtx.TraceID),
			logging.F("count", len(page.Files)),
			logging.F("hasMore", page.NextPageToken != ""),
		)
		return page, nil
	})
}

// GetMetadata fetches the fields needed to stream an object
func (c *Client) GetMetadata(ctx context.Context, reqCtx *types.RequestContext, fileID string) (*types.FileMetadata, error) {
	c.WithFileIDs(reqCtx, fileID)

	return Execute(ctx, c, reqCtx, func(ctx context.Context) (*types.FileMetadata, error) {
		f, err := c.service.Files.Get(fileID).
			Fields(googleapi.Field(utils.MetadataFields)).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
		if err != nil {
			return nil, err
		}
		return &types.FileMetadata{
			ID:       f.Id,
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
		}, nil
	})
}

func convertFile(f *drive.File) *types.FileEntry {
	return &types.FileEntry{
		ID:             f.Id,
		Name:           f.Name,
		MimeType:       f.MimeType,
		Size:           f.Size,
		FileExtension:  f.FileExtension,
		Description:    f.Description,
		WebContentLink: f.WebContentLink,
		HasThumbnail:   f.HasThumbnail,
		ThumbnailLink:  f.ThumbnailLink,
		IconLink:       f.IconLink,
	}
}
