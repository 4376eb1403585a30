package interfaces

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// PresignPermission scopes what a presigned URL allows.
type PresignPermission int

const (
	PresignRead PresignPermission = iota
	PresignWrite
)

// ObjectIterator is a lazy, finite, restartable sequence of listing entries.
// Next returns the next entry and false once the sequence is exhausted or an
// error occurred. Err reports the first error encountered, if any. Restart
// resets the iterator to the beginning of the sequence.
type ObjectIterator interface {
	Next(ctx context.Context) (ObjectInfo, bool)
	Err() error
	Restart()
}

// BlobBackend is the contract consumed from a concrete object store. Every
// implementation must surface absence as ErrNotFound and transport failure as
// ErrBackendUnavailable, wrapped with context at most.
type BlobBackend interface {
	// Put stores a named byte payload and returns the backend object ID.
	Put(ctx context.Context, container, name string, data []byte, contentType string, metadata map[string]string) (string, error)

	// Get retrieves a named byte payload.
	Get(ctx context.Context, container, name string) ([]byte, error)

	// Delete removes an object. Deleting an absent object is not an error.
	Delete(ctx context.Context, container, name string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, container, name string) (bool, error)

	// GetMetadata returns an immutable metadata snapshot.
	GetMetadata(ctx context.Context, container, name string) (ObjectMetadata, error)

	// List returns an iterator over objects in a container, optionally
	// restricted to a name prefix.
	List(ctx context.Context, container, prefix string) (ObjectIterator, error)

	// Copy duplicates an object, possibly across containers.
	Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error

	// PresignURL returns a time-limited capability URL for direct access.
	// Backends without this capability return ErrNotSupported.
	PresignURL(ctx context.Context, container, name string, ttl time.Duration, perm PresignPermission) (string, error)

	// CreateContainer creates a container. Creating an existing container is
	// not an error.
	CreateContainer(ctx context.Context, container string) error

	// DeleteContainer removes a container and its contents.
	DeleteContainer(ctx context.Context, container string) error

	// Usage reports aggregate size and object count for a container.
	Usage(ctx context.Context, container string) (ContainerUsage, error)

	// Available checks if the backend is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string

	// LocationURI returns the URI identifying this backend.
	LocationURI() string
}

// StorageService is the uniform contract exposed upward to callers. The base
// implementation is the gateway dispatching to exactly one BlobBackend; the
// security and monitoring filters implement the same contract, each holding a
// reference to the next layer (security outermost, then monitoring, then the
// gateway).
type StorageService interface {
	Upload(ctx context.Context, container, name string, content []byte, contentType string, metadata map[string]string) (string, error)
	Download(ctx context.Context, container, name string) ([]byte, error)
	Delete(ctx context.Context, container, name string) error
	DeleteBatch(ctx context.Context, container string, names []string) error
	Exists(ctx context.Context, container, name string) (bool, error)
	GetMetadata(ctx context.Context, container, name string) (ObjectMetadata, error)
	ListObjects(ctx context.Context, container, prefix string) (ObjectIterator, error)
	GetPresignedURL(ctx context.Context, container, name string, ttl time.Duration, perm PresignPermission) (string, error)
	CreateContainer(ctx context.Context, container string) error
	DeleteContainer(ctx context.Context, container string) error
	Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error
	GetUsage(ctx context.Context, container string) (ContainerUsage, error)
}

// CounterStore is the narrow contract the rate limiter consumes from a shared
// external cache. Get returns (0, false, nil) when the key does not exist.
type CounterStore interface {
	Get(ctx context.Context, key string) (int64, bool, error)
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error
}

// EventSink accepts append-only security audit records. Implementations must
// be safe for concurrent use; no read contract is required.
type EventSink interface {
	Append(ctx context.Context, event SecurityEvent)
}

// BackendFactory creates blob backends from location URIs.
type BackendFactory interface {
	// BackendFor creates a backend from a URI. Supports file:// and s3://.
	BackendFor(location Location) (BlobBackend, error)
}

// Location represents a parsed storage backend URI.
type Location struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values
	User   *url.Userinfo
}

// ParseLocation parses and validates a storage backend URI.
func ParseLocation(uri string) (Location, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3":
		// Valid scheme
	default:
		return Location{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return Location{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI string.
func (loc Location) String() string {
	return loc.Raw
}

// IsFile checks if this is a file system storage location.
func (loc Location) IsFile() bool {
	return loc.Scheme == "file"
}

// IsS3 checks if this is an S3 storage location.
func (loc Location) IsS3() bool {
	return loc.Scheme == "s3"
}

// GetParam returns a query parameter value.
func (loc Location) GetParam(name string) string {
	return loc.Query.Get(name)
}
