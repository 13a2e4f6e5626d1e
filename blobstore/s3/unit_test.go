package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/rescache/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockClient struct {
	mock.Mock
}

func call[T any](ctx context.Context, m *mockClient, method string, in any) (*T, error) {
	args := m.MethodCalled(method, ctx, in)
	out, _ := args.Get(0).(*T)
	return out, args.Error(1)
}

func (m *mockClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return call[s3.HeadObjectOutput](ctx, m, "HeadObject", in)
}

func (m *mockClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return call[s3.GetObjectOutput](ctx, m, "GetObject", in)
}

func (m *mockClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return call[s3.PutObjectOutput](ctx, m, "PutObject", in)
}

func (m *mockClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return call[s3.DeleteObjectOutput](ctx, m, "DeleteObject", in)
}

func (m *mockClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return call[s3.ListObjectsV2Output](ctx, m, "ListObjectsV2", in)
}

func (m *mockClient) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return call[s3.CreateMultipartUploadOutput](ctx, m, "CreateMultipartUpload", in)
}

func (m *mockClient) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return call[s3.UploadPartOutput](ctx, m, "UploadPart", in)
}

func (m *mockClient) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return call[s3.CompleteMultipartUploadOutput](ctx, m, "CompleteMultipartUpload", in)
}

func (m *mockClient) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return call[s3.AbortMultipartUploadOutput](ctx, m, "AbortMultipartUpload", in)
}

func headKey(key string) any {
	return mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Bucket) == "assets" && aws.ToString(in.Key) == key
	})
}

func TestStore_KeyMapping(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		key    string
	}{
		{"", "a.bin", "a.bin"},
		{"game/", "a.bin", "game/a.bin"},
		{"/game", "./meshes\\b.mesh", "game/meshes/b.mesh"},
		{"game/v2/", "/c.json", "game/v2/c.json"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s := NewStore(&mockClient{}, "assets", tt.prefix)
			assert.Equal(t, tt.key, s.key(tt.name))
			assert.Equal(t, strings.TrimPrefix(tt.key, s.prefix+"/"), s.name(tt.key))
		})
	}

	s := NewStore(&mockClient{}, "assets", "game")
	assert.Empty(t, s.name("other/a.bin"))
	assert.Empty(t, s.name("game/dir/"))
}

func TestStore_Open(t *testing.T) {
	client := &mockClient{}
	store := NewStore(client, "assets", "game")
	ctx := context.Background()

	client.On("HeadObject", mock.Anything, headKey("game/missing.bin")).
		Return(nil, &types.NotFound{}).Once()
	client.On("HeadObject", mock.Anything, headKey("game/a.bin")).
		Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(100), ETag: aws.String(`"v1"`)}, nil).Once()
	client.On("HeadObject", mock.Anything, headKey("game/denied.bin")).
		Return(nil, errors.New("access denied")).Once()

	_, err := store.Open(ctx, "missing.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	blob, err := store.Open(ctx, "./a.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(100), blob.Size())
	assert.Equal(t, `"v1"`, blob.(*s3Blob).etag)
	require.NoError(t, blob.Close())

	_, err = store.Open(ctx, "denied.bin")
	require.Error(t, err)
	assert.NotErrorIs(t, err, blobstore.ErrNotFound)
	assert.Contains(t, err.Error(), "game/denied.bin")

	client.AssertExpectations(t)
}

func TestStore_Put(t *testing.T) {
	client := &mockClient{}
	store := NewStore(client, "assets", "game")

	var body string
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "game/levels/one.json"
	})).Run(func(args mock.Arguments) {
		b, _ := io.ReadAll(args.Get(1).(*s3.PutObjectInput).Body)
		body = string(b)
	}).Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "levels\\one.json", []byte(`{"name":"one"}`)))
	assert.Equal(t, `{"name":"one"}`, body)
	client.AssertExpectations(t)
}

func TestStore_Delete(t *testing.T) {
	client := &mockClient{}
	store := NewStore(client, "assets", "")
	ctx := context.Background()

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "a.bin"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "gone.bin"
	})).Return(nil, &types.NoSuchKey{}).Once()
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "locked.bin"
	})).Return(nil, errors.New("boom")).Once()

	assert.NoError(t, store.Delete(ctx, "a.bin"))
	assert.NoError(t, store.Delete(ctx, "gone.bin"))
	assert.Error(t, store.Delete(ctx, "locked.bin"))
	client.AssertExpectations(t)
}

func TestStore_List(t *testing.T) {
	client := &mockClient{}
	store := NewStore(client, "assets", "game/")

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.Prefix) == "game/meshes/" && in.ContinuationToken == nil
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("next"),
		Contents: []types.Object{
			{Key: aws.String("game/meshes/z.mesh")},
			{Key: aws.String("game/meshes/")},
		},
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.ToString(in.ContinuationToken) == "next"
	})).Return(&s3.ListObjectsV2Output{
		IsTruncated: aws.Bool(false),
		Contents:    []types.Object{{Key: aws.String("game/meshes/a.mesh")}},
	}, nil).Once()

	names, err := store.List(context.Background(), "meshes/")
	require.NoError(t, err)
	assert.Equal(t, []string{"meshes/a.mesh", "meshes/z.mesh"}, names)
	client.AssertExpectations(t)
}

func TestBlob_ReadAt(t *testing.T) {
	client := &mockClient{}
	store := NewStore(client, "assets", "")
	blob := &s3Blob{store: store, key: "k", etag: `"v1"`, size: 10}
	ctx := context.Background()

	getRange := func(r string) any {
		return mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.Range) == r && aws.ToString(in.IfMatch) == `"v1"`
		})
	}

	t.Run("range", func(t *testing.T) {
		client.On("GetObject", mock.Anything, getRange("bytes=0-4")).Return(&s3.GetObjectOutput{
			Body: io.NopCloser(strings.NewReader("hello")),
		}, nil).Once()

		buf := make([]byte, 5)
		n, err := blob.ReadAt(ctx, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))
	})

	t.Run("tail", func(t *testing.T) {
		client.On("GetObject", mock.Anything, getRange("bytes=7-9")).Return(&s3.GetObjectOutput{
			Body: io.NopCloser(strings.NewReader("rld")),
		}, nil).Once()

		buf := make([]byte, 8)
		n, err := blob.ReadAt(ctx, buf, 7)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, "rld", string(buf[:n]))

		n, err = blob.ReadAt(ctx, buf, 10)
		assert.ErrorIs(t, err, io.EOF)
		assert.Zero(t, n)
	})

	t.Run("modified", func(t *testing.T) {
		client.On("GetObject", mock.Anything, getRange("bytes=2-3")).
			Return(nil, &smithy.GenericAPIError{Code: "PreconditionFailed"}).Once()

		_, err := blob.ReadAt(ctx, make([]byte, 2), 2)
		assert.ErrorIs(t, err, ErrModified)
	})

	t.Run("deleted", func(t *testing.T) {
		client.On("GetObject", mock.Anything, getRange("bytes=4-5")).
			Return(nil, &types.NoSuchKey{}).Once()

		_, err := blob.ReadAt(ctx, make([]byte, 2), 4)
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	client.AssertExpectations(t)
}
