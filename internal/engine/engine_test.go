package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photorelay/internal/graph"
)

// chunkCall records one UploadChunk invocation.
type chunkCall struct {
	offset, length, total int64
	payload               []byte
}

// fakeUploader implements Uploader and records every call.
type fakeUploader struct {
	simpleCalls  int
	sessionCalls int
	chunks       []chunkCall

	simpleName string
	simpleMime string
	simpleBody []byte

	failSimple     error
	failSession    error
	failChunkAt    int // 1-based index of the chunk call to fail, 0 disables
	finalItem      *graph.Item
	omitFinalItem  bool
	chunkCallCount int
}

func (f *fakeUploader) SimpleUpload(
	_ context.Context, _, _ string, name, contentType string, r io.Reader,
) (*graph.Item, error) {
	f.simpleCalls++

	if f.failSimple != nil {
		return nil, f.failSimple
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	f.simpleName = name
	f.simpleMime = contentType
	f.simpleBody = body

	return &graph.Item{ID: "simple", Name: name, Size: int64(len(body))}, nil
}

func (f *fakeUploader) CreateUploadSession(_ context.Context, _, _, name string) (*graph.UploadSession, error) {
	f.sessionCalls++

	if f.failSession != nil {
		return nil, f.failSession
	}

	f.finalItem = &graph.Item{ID: "chunked", Name: name}

	return &graph.UploadSession{UploadURL: "https://upload.example/s"}, nil
}

func (f *fakeUploader) UploadChunk(
	_ context.Context, _ *graph.UploadSession, chunk io.Reader, offset, length, total int64,
) (*graph.Item, error) {
	f.chunkCallCount++

	if f.failChunkAt > 0 && f.chunkCallCount == f.failChunkAt {
		return nil, errors.New("chunk exploded")
	}

	payload, err := io.ReadAll(chunk)
	if err != nil {
		return nil, err
	}

	f.chunks = append(f.chunks, chunkCall{offset: offset, length: length, total: total, payload: payload})

	if offset+length == total && !f.omitFinalItem {
		return f.finalItem, nil
	}

	return nil, nil
}

func TestUploadSmallUsesSinglePut(t *testing.T) {
	fake := &fakeUploader{}
	e := New(fake, "d1", "f1", DefaultChunkSize, nil)

	item, err := e.Upload(context.Background(), strings.NewReader("hello"), "a.jpg", "image/jpeg", 5, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.simpleCalls)
	assert.Zero(t, fake.sessionCalls)
	assert.Equal(t, "hello", string(fake.simpleBody))
	assert.Equal(t, "simple", item.ID)
}

func TestUploadDefaultsContentType(t *testing.T) {
	fake := &fakeUploader{}
	e := New(fake, "d1", "f1", DefaultChunkSize, nil)

	_, err := e.Upload(context.Background(), strings.NewReader("x"), "a.bin", "", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", fake.simpleMime)
}

// The single-shot boundary is strict: one byte under the threshold is a
// single PUT, exactly at the threshold is a session upload.
func TestUploadThresholdBoundary(t *testing.T) {
	under := &fakeUploader{}
	e := New(under, "d1", "f1", DefaultChunkSize, nil)

	src := bytes.NewReader(make([]byte, graph.SmallUploadThreshold-1))
	_, err := e.Upload(context.Background(), src, "under.bin", "", graph.SmallUploadThreshold-1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, under.simpleCalls)
	assert.Zero(t, under.sessionCalls)

	at := &fakeUploader{}
	e = New(at, "d1", "f1", DefaultChunkSize, nil)

	src = bytes.NewReader(make([]byte, graph.SmallUploadThreshold))
	_, err = e.Upload(context.Background(), src, "at.bin", "", graph.SmallUploadThreshold, nil)
	require.NoError(t, err)
	assert.Zero(t, at.simpleCalls)
	assert.Equal(t, 1, at.sessionCalls)
}

// A 12 MiB source with 5 MiB chunks must produce exactly three chunks
// whose ranges tile the source with no gap and no overlap.
func TestUploadChunkedRanges(t *testing.T) {
	const (
		mib   = 1024 * 1024
		total = 12 * mib
		chunk = 5 * mib
	)

	fake := &fakeUploader{}
	e := New(fake, "d1", "f1", chunk, nil)

	src := bytes.NewReader(make([]byte, total))

	var reported int64

	item, err := e.Upload(context.Background(), src, "big.mp4", "video/mp4", total, func(delta int64) {
		assert.Positive(t, delta)
		reported += delta
	})
	require.NoError(t, err)
	require.NotNil(t, item)

	require.Len(t, fake.chunks, 3)
	assert.Equal(t, int64(0), fake.chunks[0].offset)
	assert.Equal(t, int64(chunk), fake.chunks[0].length)
	assert.Equal(t, int64(chunk), fake.chunks[1].offset)
	assert.Equal(t, int64(chunk), fake.chunks[1].length)
	assert.Equal(t, int64(2*chunk), fake.chunks[2].offset)
	assert.Equal(t, int64(total-2*chunk), fake.chunks[2].length)

	for _, c := range fake.chunks {
		assert.Len(t, c.payload, int(c.length))
		assert.Equal(t, int64(total), c.total)
	}

	assert.Equal(t, int64(total), reported, "progress must sum to the source size")
}

func TestUploadChunkFailureStopsBatchItem(t *testing.T) {
	fake := &fakeUploader{failChunkAt: 2}
	e := New(fake, "d1", "f1", 4, nil)

	src := bytes.NewReader(make([]byte, 10))

	_, err := e.Upload(context.Background(), src, "b.bin", "", 10, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpload)

	var uploadErr *UploadError
	require.ErrorAs(t, err, &uploadErr)
	assert.Equal(t, "b.bin", uploadErr.Name)
}

func TestUploadMissingFinalItem(t *testing.T) {
	fake := &fakeUploader{omitFinalItem: true}
	e := New(fake, "d1", "f1", 4, nil)

	src := bytes.NewReader(make([]byte, 8))

	_, err := e.Upload(context.Background(), src, "c.bin", "", 8, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Contains(t, err.Error(), "no item descriptor")
}

func TestUploadSanitizesName(t *testing.T) {
	fake := &fakeUploader{}
	e := New(fake, "d1", "f1", DefaultChunkSize, nil)

	_, err := e.Upload(context.Background(), strings.NewReader("x"), `bad:name?.jpg`, "image/jpeg", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "bad_name_.jpg", fake.simpleName)
}

func TestUploadSessionCreationFailure(t *testing.T) {
	fake := &fakeUploader{failSession: fmt.Errorf("boom")}
	e := New(fake, "d1", "f1", 4, nil)

	src := bytes.NewReader(make([]byte, 8))

	_, err := e.Upload(context.Background(), src, "d.bin", "", 8, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpload)
	assert.Zero(t, fake.chunkCallCount)
}
