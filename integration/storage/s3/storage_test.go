package s3_test

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/veridoc/veridoc/core/tenant"
	"github.com/veridoc/veridoc/integration/storage/s3"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3aws.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) HeadObject(ctx context.Context, params *s3aws.HeadObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3aws.HeadObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) DeleteObject(ctx context.Context, params *s3aws.DeleteObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3aws.DeleteObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

type fakePresigner struct {
	url string
	err error
}

func (p *fakePresigner) PresignGetObject(_ context.Context, params *s3aws.GetObjectInput, _ ...func(*s3aws.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &v4.PresignedHTTPRequest{URL: p.url + "/" + aws.ToString(params.Key)}, nil
}

type apiError struct {
	code string
}

func (e apiError) Error() string                 { return e.code }
func (e apiError) ErrorCode() string             { return e.code }
func (e apiError) ErrorMessage() string          { return e.code }
func (e apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func newTestStorage(t *testing.T, client s3.Client, opts ...s3.Option) *s3.Storage {
	t.Helper()

	allOpts := append([]s3.Option{s3.WithClient(client)}, opts...)
	store, err := s3.New(context.Background(), s3.Config{
		Bucket: "certificates",
		Region: "eu-central-1",
	}, allOpts...)
	require.NoError(t, err)
	return store
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("bucket and region required", func(t *testing.T) {
		t.Parallel()

		_, err := s3.New(context.Background(), s3.Config{Region: "eu-central-1"}, s3.WithClient(&mockClient{}))
		assert.ErrorIs(t, err, s3.ErrInvalidConfig)

		_, err = s3.New(context.Background(), s3.Config{Bucket: "certificates"}, s3.WithClient(&mockClient{}))
		assert.ErrorIs(t, err, s3.ErrInvalidConfig)
	})
}

func TestObjectPath(t *testing.T) {
	t.Parallel()

	store := newTestStorage(t, &mockClient{})

	certID := uuid.MustParse("b2a2e7a6-3c88-4b2f-9d3e-0f6a5f3f9f11")
	issuedAt := time.Date(2026, time.March, 5, 9, 30, 0, 0, time.UTC)

	path := store.ObjectPath(tenant.Namespace("acme"), certID, issuedAt)
	assert.Equal(t, "acme/certificates/2026/3/b2a2e7a6-3c88-4b2f-9d3e-0f6a5f3f9f11.pdf", path,
		"month segment is not zero-padded")
}

func TestUpload(t *testing.T) {
	t.Parallel()

	t.Run("puts bytes with content type", func(t *testing.T) {
		t.Parallel()

		client := &mockClient{}
		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3aws.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "certificates" &&
				aws.ToString(in.Key) == "acme/certificates/2026/3/x.pdf" &&
				aws.ToString(in.ContentType) == "application/pdf"
		})).Return(&s3aws.PutObjectOutput{}, nil)

		store := newTestStorage(t, client)
		err := store.Upload(context.Background(), "acme/certificates/2026/3/x.pdf", []byte("%PDF-1.7"), "application/pdf")
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("rejects traversal keys without touching the API", func(t *testing.T) {
		t.Parallel()

		store := newTestStorage(t, &mockClient{})
		err := store.Upload(context.Background(), "acme/../globex/x.pdf", []byte("x"), "application/pdf")
		assert.ErrorIs(t, err, s3.ErrInvalidPath)
	})

	t.Run("classifies access errors", func(t *testing.T) {
		t.Parallel()

		client := &mockClient{}
		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, apiError{code: "AccessDenied"})

		store := newTestStorage(t, client)
		err := store.Upload(context.Background(), "acme/x.pdf", []byte("x"), "application/pdf")
		assert.ErrorIs(t, err, s3.ErrAccessDenied)
	})

	t.Run("classifies throttling as unavailable", func(t *testing.T) {
		t.Parallel()

		client := &mockClient{}
		client.On("PutObject", mock.Anything, mock.Anything).Return(nil, apiError{code: "SlowDown"})

		store := newTestStorage(t, client)
		err := store.Upload(context.Background(), "acme/x.pdf", []byte("x"), "application/pdf")
		assert.ErrorIs(t, err, s3.ErrServiceUnavailable)
	})
}

func TestExists(t *testing.T) {
	t.Parallel()

	client := &mockClient{}
	client.On("HeadObject", mock.Anything, mock.MatchedBy(func(in *s3aws.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "acme/x.pdf"
	})).Return(&s3aws.HeadObjectOutput{}, nil)
	client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, apiError{code: "NotFound"})

	store := newTestStorage(t, client)
	assert.True(t, store.Exists(context.Background(), "acme/x.pdf"))
	assert.False(t, store.Exists(context.Background(), "acme/missing.pdf"))
	assert.False(t, store.Exists(context.Background(), "../escape.pdf"))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	t.Run("deletes existing object", func(t *testing.T) {
		t.Parallel()

		client := &mockClient{}
		client.On("HeadObject", mock.Anything, mock.Anything).Return(&s3aws.HeadObjectOutput{}, nil)
		client.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3aws.DeleteObjectOutput{}, nil)

		store := newTestStorage(t, client)
		require.NoError(t, store.Delete(context.Background(), "acme/x.pdf"))
		client.AssertExpectations(t)
	})

	t.Run("missing object surfaces not found", func(t *testing.T) {
		t.Parallel()

		client := &mockClient{}
		client.On("HeadObject", mock.Anything, mock.Anything).Return(nil, apiError{code: "NotFound"})

		store := newTestStorage(t, client)
		err := store.Delete(context.Background(), "acme/x.pdf")
		assert.ErrorIs(t, err, s3.ErrObjectNotFound)
		client.AssertNotCalled(t, "DeleteObject", mock.Anything, mock.Anything)
	})
}

func TestSignedURL(t *testing.T) {
	t.Parallel()

	t.Run("returns presigned url", func(t *testing.T) {
		t.Parallel()

		store := newTestStorage(t, &mockClient{}, s3.WithPresigner(&fakePresigner{url: "https://cdn.example"}))
		url, err := store.SignedURL(context.Background(), "acme/x.pdf")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example/acme/x.pdf", url)
	})

	t.Run("without presigner", func(t *testing.T) {
		t.Parallel()

		store := newTestStorage(t, &mockClient{})
		_, err := store.SignedURL(context.Background(), "acme/x.pdf")
		assert.ErrorIs(t, err, s3.ErrPresignerNil)
	})
}
