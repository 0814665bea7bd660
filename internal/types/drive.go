package types

import "encoding/json"

// PageToken is the backend-issued listing cursor. It is round-tripped
// verbatim and never parsed locally.
type PageToken string

// MarshalJSON renders an exhausted cursor as null
func (t PageToken) MarshalJSON() ([]byte, error) {
	if t == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

// UnmarshalJSON accepts either a string or null
func (t *PageToken) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = PageToken(s)
	return nil
}

// FileEntry represents one media object returned by a folder listing
type FileEntry struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	MimeType       string  `json:"mimeType"`
	Size           int64   `json:"size,omitempty"`
	SizeKB         float64 `json:"sizeKb"`
	FileExtension  string  `json:"fileExtension,omitempty"`
	Description    string  `json:"description,omitempty"`
	WebContentLink string  `json:"webContentLink,omitempty"`
	HasThumbnail   bool    `json:"hasThumbnail"`
	ThumbnailLink  string  `json:"thumbnailLink,omitempty"`
	IconLink       string  `json:"iconLink,omitempty"`

	// Gateway-derived fields
	FetchEndpoint     string `json:"fetchEndpoint"`
	ThumbnailEndpoint string `json:"thumbnailEndpoint,omitempty"`

	// Inlined thumbnail, only present when requested and fetched successfully
	Thumbnail         string `json:"thumbnail,omitempty"`
	ThumbnailMimeType string `json:"thumbnailMimeType,omitempty"`
}

// ThumbnailSource returns the link that represents this entry visually:
// the thumbnail when the backend reports one, the icon otherwise.
func (f *FileEntry) ThumbnailSource() string {
	if f.HasThumbnail {
		return f.ThumbnailLink
	}
	return f.IconLink
}

// ListingPage is the result of a folder listing
type ListingPage struct {
	PageToken PageToken    `json:"pageToken"`
	Files     []*FileEntry `json:"files"`

	// Skipped holds entries excluded by the size threshold. Reported via
	// counts only.
	Skipped []*FileEntry `json:"-"`
}

// CatalogPage is one raw page of children as returned by the backend
type CatalogPage struct {
	Files         []*FileEntry
	NextPageToken PageToken
}

// FileMetadata is the subset of object metadata needed to stream bytes
type FileMetadata struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// SizeKB returns the declared size in kilobytes
func (m *FileMetadata) SizeKB() float64 {
	return float64(m.Size) / 1024
}
