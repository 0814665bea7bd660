// Package testing holds fixtures shared by package tests: request
// contexts, Drive file builders and an in-process fake of the Drive API.
package testing

import (
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"google.golang.org/api/drive/v3"
)

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		InvolvedFileIDs: []string{},
		RequestType:     types.RequestTypeList,
		TraceID:         "test-trace-id",
	}
}

// TestImage creates a Drive image file of the given size in bytes
func TestImage(id, name string, size int64) *drive.File {
	return &drive.File{
		Id:            id,
		Name:          name,
		MimeType:      "image/png",
		Size:          size,
		FileExtension: "png",
		IconLink:      "https://drive-thirdparty.googleusercontent.com/16/type/image/png",
	}
}

// TestFile creates a Drive file with an arbitrary MIME type
func TestFile(id, name, mimeType string) *drive.File {
	return &drive.File{
		Id:       id,
		Name:     name,
		MimeType: mimeType,
		Size:     1024,
	}
}

// TestEntry creates a listing entry of the given size in kilobytes
func TestEntry(id string, sizeKB int64) *types.FileEntry {
	return &types.FileEntry{
		ID:       id,
		Name:     id + ".png",
		MimeType: "image/png",
		Size:     sizeKB * 1024,
		IconLink: "https://drive-thirdparty.googleusercontent.com/16/type/image/png",
	}
}
