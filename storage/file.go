package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

const (
	objectsDir = "objects"
	attrsDir   = "attrs"
)

// objectAttrs is the sidecar record kept next to each object's payload. The
// filesystem itself only knows size and modification time.
type objectAttrs struct {
	ContentType  string            `json:"content_type"`
	CreatedAt    time.Time         `json:"created_at"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// FileBackend implements a blob backend using the local file system.
// Containers are directories under the base directory, each holding an
// objects subdirectory with payloads and an attrs subdirectory with sidecar
// attribute records.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend rooted at baseDir,
// creating it if necessary.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Put stores an object payload and its sidecar attributes. The container must
// already exist.
func (b *FileBackend) Put(ctx context.Context, container, name string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if err := b.containerExists(container); err != nil {
		return "", err
	}

	objPath, err := b.objectPath(container, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(objPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	if err := os.WriteFile(objPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	attrs := objectAttrs{
		ContentType:  contentType,
		CreatedAt:    time.Now().UTC(),
		UserMetadata: metadata,
	}
	if existing, err := b.readAttrs(container, name); err == nil {
		// Overwrite keeps the original creation time.
		attrs.CreatedAt = existing.CreatedAt
	}
	if err := b.writeAttrs(container, name, attrs); err != nil {
		return "", err
	}

	b.log.Debug("Stored object",
		slog.String("container", container),
		slog.String("object", name),
		slog.Int("size", len(data)))

	return container + "/" + name, nil
}

// Get retrieves an object payload. Returns interfaces.ErrNotFound if the
// container or object does not exist.
func (b *FileBackend) Get(ctx context.Context, container, name string) ([]byte, error) {
	objPath, err := b.objectPath(container, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(objPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete removes an object and its attributes. Deleting an absent object
// succeeds silently.
func (b *FileBackend) Delete(ctx context.Context, container, name string) error {
	objPath, err := b.objectPath(container, name)
	if err != nil {
		return err
	}
	if err := os.Remove(objPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	attrPath, err := b.attrPath(container, name)
	if err != nil {
		return err
	}
	if err := os.Remove(attrPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object attributes: %w", err)
	}
	return nil
}

// Exists reports whether an object is present.
func (b *FileBackend) Exists(ctx context.Context, container, name string) (bool, error) {
	objPath, err := b.objectPath(container, name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(objPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// GetMetadata returns an immutable metadata snapshot for an object.
func (b *FileBackend) GetMetadata(ctx context.Context, container, name string) (interfaces.ObjectMetadata, error) {
	objPath, err := b.objectPath(container, name)
	if err != nil {
		return interfaces.ObjectMetadata{}, err
	}

	stat, err := os.Stat(objPath)
	if errors.Is(err, fs.ErrNotExist) {
		return interfaces.ObjectMetadata{}, interfaces.ErrNotFound
	}
	if err != nil {
		return interfaces.ObjectMetadata{}, fmt.Errorf("failed to stat object: %w", err)
	}

	attrs, err := b.readAttrs(container, name)
	if err != nil {
		// Attributes may be missing for objects written out of band; fall
		// back to filesystem timestamps.
		attrs = objectAttrs{CreatedAt: stat.ModTime().UTC()}
	}

	meta := interfaces.ObjectMetadata{
		Container:   container,
		Name:        name,
		Size:        stat.Size(),
		ContentType: attrs.ContentType,
		CreatedAt:   attrs.CreatedAt,
		ModifiedAt:  stat.ModTime().UTC(),
	}
	if len(attrs.UserMetadata) > 0 {
		meta.UserMetadata = make(map[string]string, len(attrs.UserMetadata))
		for k, v := range attrs.UserMetadata {
			meta.UserMetadata[k] = v
		}
	}
	return meta, nil
}

// List returns a restartable iterator over objects in a container, optionally
// restricted to a name prefix.
func (b *FileBackend) List(ctx context.Context, container, prefix string) (interfaces.ObjectIterator, error) {
	if err := b.containerExists(container); err != nil {
		return nil, err
	}

	root := filepath.Join(b.baseDir, container, objectsDir)
	return newObjectIterator(ctx, func(ctx context.Context) ([]interfaces.ObjectInfo, error) {
		var out []interfaces.ObjectInfo
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if prefix != "" && !strings.HasPrefix(name, prefix) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			out = append(out, interfaces.ObjectInfo{
				Name:         name,
				Size:         info.Size(),
				LastModified: info.ModTime().UTC(),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list container %q: %w", container, err)
		}
		return out, nil
	})
}

// Copy duplicates an object including its attributes. The destination
// container must already exist.
func (b *FileBackend) Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	data, err := b.Get(ctx, srcContainer, srcName)
	if err != nil {
		return err
	}
	attrs, err := b.readAttrs(srcContainer, srcName)
	if err != nil {
		attrs = objectAttrs{CreatedAt: time.Now().UTC()}
	}
	if _, err := b.Put(ctx, dstContainer, dstName, data, attrs.ContentType, attrs.UserMetadata); err != nil {
		return err
	}
	return nil
}

// PresignURL is not supported on the filesystem backend.
func (b *FileBackend) PresignURL(ctx context.Context, container, name string, ttl time.Duration, perm interfaces.PresignPermission) (string, error) {
	return "", fmt.Errorf("%w: presigned URLs on file backend", interfaces.ErrNotSupported)
}

// CreateContainer creates a container directory. Creating an existing
// container succeeds silently.
func (b *FileBackend) CreateContainer(ctx context.Context, container string) error {
	dir, err := b.containerPath(container)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dir, objectsDir), 0755); err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, attrsDir), 0755); err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

// DeleteContainer removes a container and all its objects.
func (b *FileBackend) DeleteContainer(ctx context.Context, container string) error {
	if err := b.containerExists(container); err != nil {
		return err
	}
	dir, err := b.containerPath(container)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete container: %w", err)
	}
	return nil
}

// Usage reports aggregate size and object count for a container.
func (b *FileBackend) Usage(ctx context.Context, container string) (interfaces.ContainerUsage, error) {
	it, err := b.List(ctx, container, "")
	if err != nil {
		return interfaces.ContainerUsage{}, err
	}
	usage := interfaces.ContainerUsage{Container: container}
	for {
		info, ok := it.Next(ctx)
		if !ok {
			break
		}
		usage.ObjectCount++
		usage.TotalBytes += info.Size
	}
	if err := it.Err(); err != nil {
		return interfaces.ContainerUsage{}, err
	}
	return usage, nil
}

// Available checks if the base directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) containerPath(container string) (string, error) {
	if container == "" || strings.ContainsAny(container, "/\\") || container == "." || container == ".." {
		return "", fmt.Errorf("invalid container name %q", container)
	}
	return filepath.Join(b.baseDir, container), nil
}

func (b *FileBackend) containerExists(container string) error {
	dir, err := b.containerPath(container)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("container %q: %w", container, interfaces.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("failed to stat container: %w", err)
	}
	return nil
}

func (b *FileBackend) objectPath(container, name string) (string, error) {
	return b.entryPath(container, objectsDir, name)
}

func (b *FileBackend) attrPath(container, name string) (string, error) {
	return b.entryPath(container, attrsDir, name+".json")
}

func (b *FileBackend) entryPath(container, subdir, name string) (string, error) {
	dir, err := b.containerPath(container)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("empty object name")
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(dir, subdir, cleaned), nil
}

func (b *FileBackend) readAttrs(container, name string) (objectAttrs, error) {
	path, err := b.attrPath(container, name)
	if err != nil {
		return objectAttrs{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return objectAttrs{}, err
	}
	var attrs objectAttrs
	if err := json.Unmarshal(data, &attrs); err != nil {
		return objectAttrs{}, fmt.Errorf("corrupt attribute record for %s/%s: %w", container, name, err)
	}
	return attrs, nil
}

func (b *FileBackend) writeAttrs(container, name string, attrs objectAttrs) error {
	path, err := b.attrPath(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create attrs directory: %w", err)
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write attributes: %w", err)
	}
	return nil
}
