package auth

import (
	"context"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewDriveService creates a Drive API service that authenticates through a.
// base supplies transport settings and may be nil; extra options such as
// option.WithEndpoint are applied after the client.
func NewDriveService(ctx context.Context, a *AuthContext, base *http.Client, opts ...option.ClientOption) (*drive.Service, error) {
	clientOpts := append([]option.ClientOption{option.WithHTTPClient(a.HTTPClient(base))}, opts...)
	return drive.NewService(ctx, clientOpts...)
}
