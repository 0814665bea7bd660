package utils

import "strings"

// OAuth scopes requested for the service account
const (
	ScopeFull             = "https://www.googleapis.com/auth/drive"
	ScopeFile             = "https://www.googleapis.com/auth/drive.file"
	ScopeReadonly         = "https://www.googleapis.com/auth/drive.readonly"
	ScopeMetadataReadonly = "https://www.googleapis.com/auth/drive.metadata.readonly"
)

// DefaultScopes is the scope set the gateway authenticates with
var DefaultScopes = []string{
	ScopeMetadataReadonly,
	ScopeReadonly,
	ScopeFull,
	ScopeFile,
}

// Listing defaults
const (
	DefaultPageSize    = 10
	DefaultSizeLimitKB = 4096
	MediaMimePrefix    = "image/"
)

// Download chunking
const (
	DefaultChunkSize = 8 * 1024 * 1024 // 8 MiB
	MinChunkSize     = 256 * 1024      // 256 KiB
)

// Timeouts (seconds)
const (
	DefaultRequestTimeoutSec = 60
	DefaultChunkTimeoutSec   = 60
)

// Gateway route prefixes used when deriving entry endpoints
const (
	FetchRoute  = "/fetch/"
	TunnelRoute = "/tunnel"
)

// Field masks
const (
	ListFields     = "nextPageToken, files(id, name, webContentLink, hasThumbnail, thumbnailLink, iconLink, description, size, fileExtension, mimeType)"
	MetadataFields = "id, name, mimeType, size"
)

// MimeTypeFolder is Drive's folder MIME type
const MimeTypeFolder = "application/vnd.google-apps.folder"

// IsMediaMimeType reports whether a MIME type passes the listing media filter
func IsMediaMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, MediaMimePrefix)
}

// DefaultTunnelHosts are the host suffixes the tunnel will attach the
// service credential to.
var DefaultTunnelHosts = []string{
	".googleusercontent.com",
	".google.com",
	".googleapis.com",
	".gstatic.com",
}
