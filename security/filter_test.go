package security

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorageService implements interfaces.StorageService for testing.
type MockStorageService struct {
	mock.Mock
}

func (m *MockStorageService) Upload(ctx context.Context, container, name string, content []byte, contentType string, metadata map[string]string) (string, error) {
	args := m.Called(ctx, container, name, content, contentType, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockStorageService) Download(ctx context.Context, container, name string) ([]byte, error) {
	args := m.Called(ctx, container, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockStorageService) Delete(ctx context.Context, container, name string) error {
	return m.Called(ctx, container, name).Error(0)
}

func (m *MockStorageService) DeleteBatch(ctx context.Context, container string, names []string) error {
	return m.Called(ctx, container, names).Error(0)
}

func (m *MockStorageService) Exists(ctx context.Context, container, name string) (bool, error) {
	args := m.Called(ctx, container, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorageService) GetMetadata(ctx context.Context, container, name string) (interfaces.ObjectMetadata, error) {
	args := m.Called(ctx, container, name)
	return args.Get(0).(interfaces.ObjectMetadata), args.Error(1)
}

func (m *MockStorageService) ListObjects(ctx context.Context, container, prefix string) (interfaces.ObjectIterator, error) {
	args := m.Called(ctx, container, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(interfaces.ObjectIterator), args.Error(1)
}

func (m *MockStorageService) GetPresignedURL(ctx context.Context, container, name string, ttl time.Duration, perm interfaces.PresignPermission) (string, error) {
	args := m.Called(ctx, container, name, ttl, perm)
	return args.String(0), args.Error(1)
}

func (m *MockStorageService) CreateContainer(ctx context.Context, container string) error {
	return m.Called(ctx, container).Error(0)
}

func (m *MockStorageService) DeleteContainer(ctx context.Context, container string) error {
	return m.Called(ctx, container).Error(0)
}

func (m *MockStorageService) Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	return m.Called(ctx, srcContainer, srcName, dstContainer, dstName).Error(0)
}

func (m *MockStorageService) GetUsage(ctx context.Context, container string) (interfaces.ContainerUsage, error) {
	args := m.Called(ctx, container)
	return args.Get(0).(interfaces.ContainerUsage), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newUploadFilter(next interfaces.StorageService, cfg FilterConfig) *Filter {
	logger := testLogger()
	return NewFilter(next, cfg, NewScanner(), nil, nil, NewSlogEventSink(logger), logger)
}

func TestFilter_ValidateFileUpload(t *testing.T) {
	tests := []struct {
		name     string
		cfg      FilterConfig
		fileName string
		content  []byte
		valid    bool
		contains string
	}{
		{
			name:     "blocked extension",
			cfg:      FilterConfig{BlockedExtensions: []string{".exe"}},
			fileName: "malicious.exe",
			content:  []byte("tiny"),
			valid:    false,
			contains: "extension",
		},
		{
			name:     "extension outside allow list",
			cfg:      FilterConfig{AllowedExtensions: []string{".txt", ".pdf"}},
			fileName: "notes.docx",
			content:  []byte("content"),
			valid:    false,
			contains: "extension",
		},
		{
			name:     "oversize with allowed extension",
			cfg:      FilterConfig{AllowedExtensions: []string{".txt"}, MaxFileSize: 4},
			fileName: "big.txt",
			content:  []byte("this is more than four bytes"),
			valid:    false,
			contains: "size",
		},
		{
			name:     "malware content",
			cfg:      FilterConfig{},
			fileName: "payload.txt",
			content:  []byte(eicarSignature),
			valid:    false,
			contains: "scan",
		},
		{
			name:     "clean text file",
			cfg:      FilterConfig{AllowedExtensions: []string{".txt"}, MaxFileSize: 1024},
			fileName: "clean-file.txt",
			content:  []byte("hello"),
			valid:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter := newUploadFilter(&MockStorageService{}, tt.cfg)
			result := filter.ValidateFileUpload(context.Background(), "docs", tt.fileName, tt.content)

			assert.Equal(t, tt.valid, result.Valid)
			if tt.contains != "" {
				require.NotEmpty(t, result.Errors)
				joined := ""
				for _, e := range result.Errors {
					joined += e + " "
				}
				assert.Contains(t, joined, tt.contains)
			}
		})
	}
}

func TestFilter_ValidateFileUpload_AccumulatesAllFailures(t *testing.T) {
	filter := newUploadFilter(&MockStorageService{}, FilterConfig{
		BlockedExtensions: []string{".exe"},
		MaxFileSize:       4,
	})

	result := filter.ValidateFileUpload(context.Background(), "docs", "virus.exe", []byte("well over four bytes"))
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)
}

func TestFilter_Upload_RejectedBeforeGateway(t *testing.T) {
	next := &MockStorageService{}
	filter := newUploadFilter(next, FilterConfig{BlockedExtensions: []string{".exe"}})

	_, err := filter.Upload(context.Background(), "docs", "virus.exe", []byte("anything"), "application/octet-stream", nil)

	var vErr *interfaces.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "upload", vErr.Operation)
	assert.NotEmpty(t, vErr.Errors)

	// The wrapped layer must never see a rejected upload.
	next.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFilter_Upload_EncryptsPayload(t *testing.T) {
	logger := testLogger()
	enc, err := NewEncryptor([]byte("secret"))
	require.NoError(t, err)

	plaintext := []byte("hello world")
	next := &MockStorageService{}
	var stored []byte
	next.On("Upload", mock.Anything, "docs", "clean-file.txt", mock.Anything, "text/plain", mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(3).([]byte) }).
		Return("docs/clean-file.txt", nil)

	filter := NewFilter(next, FilterConfig{}, NewScanner(), nil, enc, NewSlogEventSink(logger), logger)
	id, err := filter.Upload(context.Background(), "docs", "clean-file.txt", plaintext, "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "docs/clean-file.txt", id)

	require.NotNil(t, stored)
	assert.NotEqual(t, plaintext, stored)

	opened, err := enc.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
	next.AssertExpectations(t)
}

func TestFilter_Download_DecryptsPayload(t *testing.T) {
	logger := testLogger()
	enc, err := NewEncryptor([]byte("secret"))
	require.NoError(t, err)

	plaintext := []byte("stored content")
	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)

	next := &MockStorageService{}
	next.On("Download", mock.Anything, "docs", "file.txt").Return(sealed, nil)

	filter := NewFilter(next, FilterConfig{}, NewScanner(), nil, enc, NewSlogEventSink(logger), logger)
	got, err := filter.Download(context.Background(), "docs", "file.txt")
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestFilter_Download_IPDenyList(t *testing.T) {
	next := &MockStorageService{}
	logger := testLogger()
	filter := NewFilter(next, FilterConfig{
		// The deny list takes precedence even when the same IP is allowed.
		AllowedIPs: []string{"10.0.0.1"},
		BlockedIPs: []string{"10.0.0.1"},
	}, NewScanner(), nil, nil, NewSlogEventSink(logger), logger)

	ctx := WithClientInfo(context.Background(), ClientInfo{ID: "client-a", IP: "10.0.0.1"})
	_, err := filter.Download(ctx, "docs", "file.txt")

	var vErr *interfaces.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "blocked")
	next.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything)
}

func TestFilter_Download_IPOutsideAllowList(t *testing.T) {
	next := &MockStorageService{}
	logger := testLogger()
	filter := NewFilter(next, FilterConfig{
		AllowedIPs: []string{"10.0.0.1"},
	}, NewScanner(), nil, nil, NewSlogEventSink(logger), logger)

	ctx := WithClientInfo(context.Background(), ClientInfo{IP: "192.168.1.5"})
	_, err := filter.Download(ctx, "docs", "file.txt")
	assert.Error(t, err)

	// A request without any client IP is rejected too while the allow list
	// is in force.
	_, err = filter.Download(context.Background(), "docs", "file.txt")
	var vErr *interfaces.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "IP is required")
	next.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything)
}

func TestFilter_Download_RateLimit(t *testing.T) {
	const maxPerHour = 100

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := testLogger()
	limiter := NewRateLimiter(NewRedisCounterStore(client), maxPerHour, time.Hour, logger)

	next := &MockStorageService{}
	next.On("Download", mock.Anything, "docs", "file.txt").Return([]byte("data"), nil)

	filter := NewFilter(next, FilterConfig{}, NewScanner(), limiter, nil, NewSlogEventSink(logger), logger)
	ctx := WithClientInfo(context.Background(), ClientInfo{ID: "client-a", IP: "10.0.0.9"})

	for i := 0; i < maxPerHour; i++ {
		_, err := filter.Download(ctx, "docs", "file.txt")
		require.NoError(t, err, "download %d should pass", i+1)
	}

	// The 101st attempt within the window is rejected.
	_, err := filter.Download(ctx, "docs", "file.txt")
	var vErr *interfaces.ValidationFailedError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Error(), "rate limit")
	assert.True(t, errors.Is(err, interfaces.ErrRateLimited))
}

func TestFilter_PassThroughOperations(t *testing.T) {
	next := &MockStorageService{}
	next.On("Delete", mock.Anything, "docs", "file.txt").Return(nil)
	next.On("Exists", mock.Anything, "docs", "file.txt").Return(true, nil)
	next.On("CreateContainer", mock.Anything, "docs").Return(nil)

	filter := newUploadFilter(next, FilterConfig{})
	ctx := context.Background()

	require.NoError(t, filter.Delete(ctx, "docs", "file.txt"))
	exists, err := filter.Exists(ctx, "docs", "file.txt")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, filter.CreateContainer(ctx, "docs"))

	next.AssertExpectations(t)
}
