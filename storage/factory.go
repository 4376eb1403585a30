package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// Factory creates blob backends from location URIs.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new factory instance that can create storage backends.
func NewFactory(logger *slog.Logger) *Factory {
	return &Factory{log: logger}
}

// BackendFor creates a blob backend from a location URI.
//
// Supported schemes:
//   - file:// - Local filesystem storage
//   - s3:// - Amazon S3 or compatible object storage
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) BackendFor(location interfaces.Location) (interfaces.BlobBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "s3":
		return f.createS3Backend(location)
	case "file":
		return f.createFileBackend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (f *Factory) createS3Backend(location interfaces.Location) (interfaces.BlobBackend, error) {
	f.log.Debug("Creating S3 backend", slog.String("uri", location.String()))

	bucketName := location.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing bucket name", interfaces.ErrInvalidLocationURI)
	}
	prefix := strings.TrimPrefix(location.Path, "/")

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := location.GetParam("endpoint")

	var accessKey, secretKey string
	if location.User != nil {
		accessKey = location.User.Username()
		secretKey, _ = location.User.Password()
		f.log.Debug("Using embedded credentials for S3 access")
	} else {
		f.log.Debug("No embedded credentials, relying on the SDK credential chain")
	}

	return NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey, f.log)
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (f *Factory) createFileBackend(location interfaces.Location) (interfaces.BlobBackend, error) {
	f.log.Debug("Creating file backend", slog.String("uri", location.String()))

	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI", interfaces.ErrInvalidLocationURI)
	}

	return NewFileBackend(path, f.log)
}
