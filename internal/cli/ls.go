package cli

import (
	"github.com/dl-alexandre/gdrv-gateway/internal/api"
	"github.com/dl-alexandre/gdrv-gateway/internal/listing"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
)

var lsCmd = &cobra.Command{
	Use:   "ls [folder-id]",
	Short: "List the media in a folder",
	Long:  "List a folder the same way GET /list does. Without a folder id the configured root folder is listed.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

var (
	lsPaginated     bool
	lsPageSize      int
	lsPageToken     string
	lsWithThumbnail bool
)

// driveOptions are appended to the Drive client options of commands that
// talk to Drive
var driveOptions []option.ClientOption

func init() {
	lsCmd.Flags().BoolVar(&lsPaginated, "paginated", false, "Stop after one page of results")
	lsCmd.Flags().IntVar(&lsPageSize, "page-size", 0, "Entries per page (defaults to defaultPageSize)")
	lsCmd.Flags().StringVar(&lsPageToken, "page-token", "", "Continue from a previous page")
	lsCmd.Flags().BoolVar(&lsWithThumbnail, "with-thumbnail", false, "Inline thumbnails as base64")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := newOutput(cmd)

	gw, err := newGateway(ctx, cfg, logger, driveOptions...)
	if err != nil {
		return err
	}

	req := listing.ListRequest{
		Paginated:     lsPaginated,
		WithThumbnail: lsWithThumbnail,
		PageSize:      lsPageSize,
		PageToken:     types.PageToken(lsPageToken),
	}
	if len(args) == 1 {
		req.Folder = args[0]
	}

	page, err := gw.listing.List(ctx, api.NewRequestContext(types.RequestTypeList), req)
	if err != nil {
		return err
	}
	return out.WriteListing(page)
}
