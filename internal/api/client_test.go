package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	testhelpers "github.com/dl-alexandre/gdrv-gateway/internal/testing"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, fake *testhelpers.FakeDrive, opts ClientOptions) *Client {
	t.Helper()
	return NewClient(fake.Service(t), opts, logging.NewNoOpLogger())
}

func TestNewRequestContext(t *testing.T) {
	reqCtx := NewRequestContext(types.RequestTypeFetch)

	assert.Equal(t, types.RequestTypeFetch, reqCtx.RequestType)
	_, err := uuid.Parse(reqCtx.TraceID)
	assert.NoError(t, err)
	assert.NotEqual(t, reqCtx.TraceID, NewRequestContext(types.RequestTypeFetch).TraceID)
}

func TestExecute_ClassifiesAndTimesOut(t *testing.T) {
	client := NewClient(nil, ClientOptions{RequestTimeout: 10 * time.Millisecond}, nil)
	reqCtx := testhelpers.TestRequestContext()

	_, err := Execute(context.Background(), client, reqCtx, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	appErr, ok := utils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeTimeout, appErr.Err.Code)

	got, err := Execute(context.Background(), client, reqCtx, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestChildrenQuery(t *testing.T) {
	assert.Equal(t, "mimeType contains 'image/' and 'folder-1' in parents", ChildrenQuery("folder-1"))
	assert.Equal(t, `mimeType contains 'image/' and 'it\'s' in parents`, ChildrenQuery("it's"))
	assert.Equal(t, `a\\b`, EscapeQueryValue(`a\b`))
}

func TestListChildren_Pagination(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	for i := 0; i < 5; i++ {
		fake.AddFile("root", testhelpers.TestImage(string(rune('a'+i)), "img.png", 100), nil)
	}
	fake.AddFile("root", testhelpers.TestFile("doc", "notes.txt", "text/plain"), nil)
	client := newTestClient(t, fake, ClientOptions{})

	page, err := client.ListChildren(context.Background(), testhelpers.TestRequestContext(), ListQuery{
		Q:        ChildrenQuery("root"),
		PageSize: 3,
	})
	require.NoError(t, err)
	require.Len(t, page.Files, 3)
	assert.Equal(t, types.PageToken("cursor-3"), page.NextPageToken)
	assert.Equal(t, "a", page.Files[0].ID)
	assert.Equal(t, int64(100), page.Files[0].Size)
	assert.Equal(t, "png", page.Files[0].FileExtension)

	page, err = client.ListChildren(context.Background(), testhelpers.TestRequestContext(), ListQuery{
		Q:         ChildrenQuery("root"),
		PageSize:  3,
		PageToken: page.NextPageToken,
	})
	require.NoError(t, err)
	assert.Len(t, page.Files, 2)
	assert.Empty(t, page.NextPageToken)

	assert.Equal(t, []string{ChildrenQuery("root"), ChildrenQuery("root")}, fake.ListQueries())
}

func TestListChildren_BackendError(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	fake.FailWith("locked", http.StatusForbidden, "insufficientFilePermissions")
	client := newTestClient(t, fake, ClientOptions{})

	_, err := client.ListChildren(context.Background(), testhelpers.TestRequestContext(), ListQuery{Q: ChildrenQuery("locked")})
	appErr, ok := utils.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, http.StatusForbidden, appErr.Status())
	assert.Equal(t, "insufficientFilePermissions", appErr.Err.Reason)
}

func TestGetMetadata(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	fake.AddFile("root", testhelpers.TestImage("img1", "cat.png", 0), bytes.Repeat([]byte("x"), 2048))
	client := newTestClient(t, fake, ClientOptions{})

	reqCtx := testhelpers.TestRequestContext()
	meta, err := client.GetMetadata(context.Background(), reqCtx, "img1")
	require.NoError(t, err)
	assert.Equal(t, "img1", meta.ID)
	assert.Equal(t, "cat.png", meta.Name)
	assert.Equal(t, "image/png", meta.MimeType)
	assert.Equal(t, int64(2048), meta.Size)
	assert.Equal(t, 2.0, meta.SizeKB())
	assert.Contains(t, reqCtx.InvolvedFileIDs, "img1")

	_, err = client.GetMetadata(context.Background(), testhelpers.TestRequestContext(), "missing")
	appErr, ok := utils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeFileNotFound, appErr.Err.Code)
	assert.Equal(t, http.StatusNotFound, appErr.Status())
	assert.Equal(t, "notFound", appErr.Err.Reason)
	assert.Equal(t, "missing", appErr.Err.Context["fileId"])
}

func drain(t *testing.T, session ChunkSession) ([]byte, []ChunkStatus) {
	t.Helper()
	var out []byte
	var statuses []ChunkStatus
	var last int64
	for i := 0; i < 100; i++ {
		st, err := session.NextChunk(context.Background())
		require.NoError(t, err)
		chunk, err := session.Window().Take(last, st.Progress)
		require.NoError(t, err)
		out = append(out, chunk...)
		last = st.Progress
		statuses = append(statuses, st)
		if st.Done {
			return out, statuses
		}
	}
	t.Fatal("download never completed")
	return nil, nil
}

func TestOpenDownload_RangedChunks(t *testing.T) {
	content := make([]byte, 30000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	fake := testhelpers.NewFakeDrive(t)
	fake.AddFile("root", testhelpers.TestImage("big", "big.png", 0), content)
	client := newTestClient(t, fake, ClientOptions{ChunkSize: 8192})

	meta := &types.FileMetadata{ID: "big", MimeType: "image/png", Size: 30000}
	session, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), meta)
	require.NoError(t, err)
	defer session.Close()

	out, statuses := drain(t, session)
	assert.Equal(t, content, out)
	require.Len(t, statuses, 4)
	assert.Equal(t, int64(8192), statuses[0].Progress)
	assert.Equal(t, int64(30000), statuses[3].Progress)
	assert.True(t, statuses[3].Done)
	assert.Equal(t, []string{
		"bytes=0-8191", "bytes=8192-16383", "bytes=16384-24575", "bytes=24576-29999",
	}, fake.Ranges())
	assert.Zero(t, session.Window().Buffered())
}

func TestOpenDownload_UnknownSizeStopsOnShortChunk(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	fake.AddFile("root", testhelpers.TestImage("f", "f.png", 0), bytes.Repeat([]byte("a"), 10000))
	client := newTestClient(t, fake, ClientOptions{ChunkSize: 4096})

	session, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), &types.FileMetadata{ID: "f"})
	require.NoError(t, err)

	out, statuses := drain(t, session)
	assert.Len(t, out, 10000)
	assert.Equal(t, int64(10000), statuses[len(statuses)-1].Total)
}

func TestOpenDownload_ExactMultipleWithUnknownSize(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	fake.AddFile("root", testhelpers.TestImage("f", "f.png", 0), bytes.Repeat([]byte("a"), 8192))
	client := newTestClient(t, fake, ClientOptions{ChunkSize: 4096})

	session, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), &types.FileMetadata{ID: "f"})
	require.NoError(t, err)

	out, _ := drain(t, session)
	assert.Len(t, out, 8192)
}

func TestOpenDownload_EmptyObject(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	fake.AddFile("root", testhelpers.TestImage("empty", "empty.png", 0), []byte{})
	client := newTestClient(t, fake, ClientOptions{ChunkSize: 4096})

	session, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), &types.FileMetadata{ID: "empty"})
	require.NoError(t, err)

	out, statuses := drain(t, session)
	assert.Empty(t, out)
	assert.True(t, statuses[len(statuses)-1].Done)
}

func TestOpenDownload_ServerIgnoresRange(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	fake.IgnoreRange = true
	fake.AddFile("root", testhelpers.TestImage("f", "f.png", 0), bytes.Repeat([]byte("z"), 5000))
	client := newTestClient(t, fake, ClientOptions{ChunkSize: 1024})

	session, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), &types.FileMetadata{ID: "f", Size: 5000})
	require.NoError(t, err)

	out, statuses := drain(t, session)
	assert.Len(t, out, 5000)
	assert.Len(t, statuses, 1)
}

func TestOpenDownload_MediaError(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	fake.AddFile("root", testhelpers.TestImage("f", "f.png", 0), []byte("data"))
	fake.FailWith("f", http.StatusForbidden, "cannotDownloadFile")
	client := newTestClient(t, fake, ClientOptions{})

	session, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), &types.FileMetadata{ID: "f", Size: 4})
	require.NoError(t, err)

	_, err = session.NextChunk(context.Background())
	appErr, ok := utils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, appErr.Status())
}

func TestOpenDownload_ClosedSession(t *testing.T) {
	fake := testhelpers.NewFakeDrive(t)
	client := newTestClient(t, fake, ClientOptions{})

	_, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), nil)
	assert.Error(t, err)

	session, err := client.OpenDownload(context.Background(), testhelpers.TestRequestContext(), &types.FileMetadata{ID: "x", Size: 1})
	require.NoError(t, err)
	require.NoError(t, session.Close())

	_, err = session.NextChunk(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "closed"))
}

func TestParseContentRangeTotal(t *testing.T) {
	tests := []struct {
		in    string
		total int64
		ok    bool
	}{
		{"bytes 0-8191/30000", 30000, true},
		{"bytes */0", 0, true},
		{"bytes 0-10/*", 0, false},
		{"", 0, false},
		{"bytes 0-1/", 0, false},
	}
	for _, tt := range tests {
		total, ok := parseContentRangeTotal(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.total, total, tt.in)
	}
}

func TestWindowBuffer(t *testing.T) {
	w := &WindowBuffer{}
	_, _ = w.Write([]byte("hello "))
	_, _ = w.Write([]byte("world"))
	assert.Equal(t, int64(11), w.End())

	got, err := w.Take(0, 6)
	require.NoError(t, err)
	assert.Equal(t, "hello ", string(got))
	assert.Equal(t, 5, w.Buffered())

	_, err = w.Take(0, 6)
	assert.Error(t, err, "consumed bytes are released")

	_, err = w.Take(6, 20)
	assert.Error(t, err, "cannot take past the buffered end")

	got, err = w.Take(6, 11)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
	assert.Zero(t, w.Buffered())
}
