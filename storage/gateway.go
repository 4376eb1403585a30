package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// Gateway is the base StorageService implementation. It dispatches every
// operation to exactly one active blob backend, adding argument validation and
// operational logging. Backend errors propagate typed and unchanged; the
// gateway never swallows or converts them.
type Gateway struct {
	backend interfaces.BlobBackend
	log     *slog.Logger
}

// NewGateway creates a gateway dispatching to the given backend.
func NewGateway(backend interfaces.BlobBackend, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		backend: backend,
		log:     logger.With(slog.String("backend", backend.Name())),
	}
}

// Upload stores a named byte payload and returns the backend object ID.
func (g *Gateway) Upload(ctx context.Context, container, name string, content []byte, contentType string, metadata map[string]string) (string, error) {
	if err := validateRef(container, name); err != nil {
		return "", err
	}

	start := time.Now()
	id, err := g.backend.Put(ctx, container, name, content, contentType, metadata)
	if err != nil {
		return "", err
	}

	g.log.Debug("Uploaded object",
		slog.String("container", container),
		slog.String("object", name),
		slog.Int("size", len(content)),
		slog.Duration("duration", time.Since(start)))
	return id, nil
}

// Download retrieves a named byte payload.
func (g *Gateway) Download(ctx context.Context, container, name string) ([]byte, error) {
	if err := validateRef(container, name); err != nil {
		return nil, err
	}
	return g.backend.Get(ctx, container, name)
}

// Delete removes an object. Deleting an absent object succeeds silently.
func (g *Gateway) Delete(ctx context.Context, container, name string) error {
	if err := validateRef(container, name); err != nil {
		return err
	}
	return g.backend.Delete(ctx, container, name)
}

// DeleteBatch removes several objects, continuing past per-object failures
// and returning them joined.
func (g *Gateway) DeleteBatch(ctx context.Context, container string, names []string) error {
	var errs []error
	for _, name := range names {
		if err := g.Delete(ctx, container, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Exists reports whether an object is present.
func (g *Gateway) Exists(ctx context.Context, container, name string) (bool, error) {
	if err := validateRef(container, name); err != nil {
		return false, err
	}
	return g.backend.Exists(ctx, container, name)
}

// GetMetadata returns an immutable metadata snapshot.
func (g *Gateway) GetMetadata(ctx context.Context, container, name string) (interfaces.ObjectMetadata, error) {
	if err := validateRef(container, name); err != nil {
		return interfaces.ObjectMetadata{}, err
	}
	return g.backend.GetMetadata(ctx, container, name)
}

// ListObjects returns a lazy, finite, restartable listing sequence.
func (g *Gateway) ListObjects(ctx context.Context, container, prefix string) (interfaces.ObjectIterator, error) {
	if container == "" {
		return nil, fmt.Errorf("empty container name")
	}
	return g.backend.List(ctx, container, prefix)
}

// GetPresignedURL returns a time-limited capability URL for direct access.
func (g *Gateway) GetPresignedURL(ctx context.Context, container, name string, ttl time.Duration, perm interfaces.PresignPermission) (string, error) {
	if err := validateRef(container, name); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("presign TTL must be positive")
	}
	return g.backend.PresignURL(ctx, container, name, ttl, perm)
}

// CreateContainer creates a container.
func (g *Gateway) CreateContainer(ctx context.Context, container string) error {
	if container == "" {
		return fmt.Errorf("empty container name")
	}
	return g.backend.CreateContainer(ctx, container)
}

// DeleteContainer removes a container and its contents.
func (g *Gateway) DeleteContainer(ctx context.Context, container string) error {
	if container == "" {
		return fmt.Errorf("empty container name")
	}
	return g.backend.DeleteContainer(ctx, container)
}

// Copy duplicates an object, possibly across containers.
func (g *Gateway) Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	if err := validateRef(srcContainer, srcName); err != nil {
		return err
	}
	if err := validateRef(dstContainer, dstName); err != nil {
		return err
	}
	return g.backend.Copy(ctx, srcContainer, srcName, dstContainer, dstName)
}

// GetUsage reports aggregate size and object count for a container.
func (g *Gateway) GetUsage(ctx context.Context, container string) (interfaces.ContainerUsage, error) {
	if container == "" {
		return interfaces.ContainerUsage{}, fmt.Errorf("empty container name")
	}
	return g.backend.Usage(ctx, container)
}

// Available reports whether the active backend is reachable.
func (g *Gateway) Available(ctx context.Context) bool {
	return g.backend.Available(ctx)
}

func validateRef(container, name string) error {
	if container == "" {
		return fmt.Errorf("empty container name")
	}
	if name == "" {
		return fmt.Errorf("empty object name")
	}
	return nil
}
