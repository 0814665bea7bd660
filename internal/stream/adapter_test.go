package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dl-alexandre/gdrv-gateway/internal/api"
	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	testhelpers "github.com/dl-alexandre/gdrv-gateway/internal/testing"
	"github.com/dl-alexandre/gdrv-gateway/internal/testing/mocks"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func catalogFor(data []byte, session *mocks.MockSession) *mocks.MockCatalog {
	catalog := mocks.NewMockCatalog()
	catalog.GetMetadataFunc = func(ctx context.Context, fileID string) (*types.FileMetadata, error) {
		return &types.FileMetadata{ID: fileID, Name: "photo.jpg", MimeType: "image/jpeg", Size: int64(len(data))}, nil
	}
	catalog.OpenDownloadFunc = func(ctx context.Context, meta *types.FileMetadata) (api.ChunkSession, error) {
		return session, nil
	}
	return catalog
}

func collect(t *testing.T, s *Stream) ([]byte, []int) {
	t.Helper()
	var out bytes.Buffer
	var sizes []int
	for {
		chunk, err := s.Next(context.Background())
		if err == io.EOF {
			return out.Bytes(), sizes
		}
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
		out.Write(chunk)
	}
}

func TestOpen_EmitsDeltasInOrder(t *testing.T) {
	data := pattern(30000)
	session := mocks.NewMockSession(data, 8192)
	adapter := NewAdapter(catalogFor(data, session), logging.NewNoOpLogger())

	s, err := adapter.Open(context.Background(), testhelpers.TestRequestContext(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", s.ContentType)
	assert.Equal(t, int64(30000), s.Size)

	got, sizes := collect(t, s)
	assert.Equal(t, []int{8192, 8192, 8192, 5424}, sizes)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(30000), s.Progress())
	assert.True(t, session.Closed(), "session closed after completion")
	assert.Zero(t, session.Window().Buffered(), "emitted bytes released")
}

func TestOpen_IrregularChunks(t *testing.T) {
	data := pattern(1000)
	session := mocks.NewMockSession(data, 100)
	session.Steps = []int{1, 600, 0, 7, 250}
	s, err := NewAdapter(catalogFor(data, session), nil).Open(context.Background(), testhelpers.TestRequestContext(), "img-2")
	require.NoError(t, err)

	got, sizes := collect(t, s)
	assert.Equal(t, []int{1, 600, 0, 7, 250, 100, 42}, sizes)
	assert.Equal(t, data, got)
}

func TestOpen_EmptyObject(t *testing.T) {
	session := mocks.NewMockSession(nil, 8192)
	s, err := NewAdapter(catalogFor(nil, session), nil).Open(context.Background(), testhelpers.TestRequestContext(), "empty")
	require.NoError(t, err)

	got, sizes := collect(t, s)
	assert.Empty(t, got)
	assert.Equal(t, []int{0}, sizes)
}

func TestOpen_RequiresID(t *testing.T) {
	catalog := mocks.NewMockCatalog()
	_, err := NewAdapter(catalog, nil).Open(context.Background(), testhelpers.TestRequestContext(), "")
	appErr, ok := utils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeInvalidArgument, appErr.Err.Code)
	assert.Zero(t, catalog.Opened())
}

func TestOpen_MetadataFailureOpensNoSession(t *testing.T) {
	catalog := mocks.NewMockCatalog()
	catalog.GetMetadataFunc = func(ctx context.Context, fileID string) (*types.FileMetadata, error) {
		return nil, utils.NewAppError(utils.NewGatewayError(utils.ErrCodeFileNotFound, "File not found").Build())
	}

	_, err := NewAdapter(catalog, nil).Open(context.Background(), testhelpers.TestRequestContext(), "missing")
	appErr, ok := utils.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, utils.ErrCodeFileNotFound, appErr.Err.Code)
	assert.Zero(t, catalog.Opened())
}

func TestNext_MidStreamFailure(t *testing.T) {
	data := pattern(5000)
	session := mocks.NewMockSession(data, 1000)
	session.FailAt = 2
	session.Err = errors.New("connection reset")

	s, err := NewAdapter(catalogFor(data, session), nil).Open(context.Background(), testhelpers.TestRequestContext(), "img-3")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		chunk, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Len(t, chunk, 1000)
	}
	_, err = s.Next(context.Background())
	require.EqualError(t, err, "connection reset")
	assert.True(t, session.Closed())

	_, again := s.Next(context.Background())
	assert.Equal(t, err, again, "failure is sticky")
	assert.Equal(t, 3, session.Calls(), "no chunk requested after failure")
}

func TestNext_Cancelled(t *testing.T) {
	data := pattern(2048)
	session := mocks.NewMockSession(data, 1024)
	session.Block = make(chan struct{})

	s, err := NewAdapter(catalogFor(data, session), nil).Open(context.Background(), testhelpers.TestRequestContext(), "img-4")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Next(ctx)
	appErr, ok := utils.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, utils.ErrCodeCancelled, appErr.Err.Code)
	assert.True(t, session.Closed())
	assert.Zero(t, session.Calls())
}

func TestChunks_Iterator(t *testing.T) {
	data := pattern(3000)
	session := mocks.NewMockSession(data, 1024)
	s, err := NewAdapter(catalogFor(data, session), nil).Open(context.Background(), testhelpers.TestRequestContext(), "img-5")
	require.NoError(t, err)

	var got []byte
	for chunk, err := range s.Chunks(context.Background()) {
		require.NoError(t, err)
		got = append(got, chunk...)
	}
	assert.Equal(t, data, got)
}

func TestChunks_EarlyBreakClosesSession(t *testing.T) {
	data := pattern(10000)
	session := mocks.NewMockSession(data, 1000)
	s, err := NewAdapter(catalogFor(data, session), nil).Open(context.Background(), testhelpers.TestRequestContext(), "img-6")
	require.NoError(t, err)

	for range s.Chunks(context.Background()) {
		break
	}
	assert.True(t, session.Closed())
	assert.Equal(t, 1, session.Calls())
}

func TestChunks_YieldsError(t *testing.T) {
	data := pattern(3000)
	session := mocks.NewMockSession(data, 1000)
	session.FailAt = 1
	session.Err = errors.New("boom")
	s, err := NewAdapter(catalogFor(data, session), nil).Open(context.Background(), testhelpers.TestRequestContext(), "img-7")
	require.NoError(t, err)

	var errs []error
	n := 0
	for chunk, err := range s.Chunks(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n += len(chunk)
	}
	assert.Equal(t, 1000, n)
	require.Len(t, errs, 1)
}

func TestOpen_AgainstDrive(t *testing.T) {
	data := pattern(30000)
	fake := testhelpers.NewFakeDrive(t)
	fake.AddFile("root", testhelpers.TestImage("drive-img", "big.png", int64(len(data))), data)

	client := api.NewClient(fake.Service(t), api.ClientOptions{ChunkSize: 8192}, nil)
	s, err := NewAdapter(client, nil).Open(context.Background(), testhelpers.TestRequestContext(), "drive-img")
	require.NoError(t, err)
	assert.Equal(t, "image/png", s.ContentType)

	got, sizes := collect(t, s)
	assert.Equal(t, []int{8192, 8192, 8192, 5424}, sizes)
	assert.Equal(t, data, got)
	assert.Equal(t, []string{"bytes=0-8191", "bytes=8192-16383", "bytes=16384-24575", "bytes=24576-29999"}, fake.Ranges())
}
