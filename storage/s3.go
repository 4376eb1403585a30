package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/storage-policy-backend/interfaces"
)

// containerMarker is the zero-byte object that records a container's
// existence, since containers are key prefixes within a single bucket.
const containerMarker = ".container"

// S3Backend implements a blob backend using Amazon S3 or compatible services.
// All containers live in one bucket, each as a top-level key prefix, so the
// backend needs no bucket-management permissions at runtime.
type S3Backend struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates a new S3 storage backend. Credentials are optional;
// without them the backend relies on the SDK's default credential chain.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      prefix,
		log:         log,
		locationURI: uri,
	}, nil
}

// Put stores an object payload. The container must already exist.
func (b *S3Backend) Put(ctx context.Context, container, name string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if err := b.requireContainer(ctx, container); err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(container, name)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		input.Metadata = make(map[string]*string, len(metadata))
		for k, v := range metadata {
			input.Metadata[k] = aws.String(v)
		}
	}

	if _, err := b.client.PutObjectWithContext(ctx, input); err != nil {
		return "", b.mapError("put", err)
	}

	b.log.Debug("Stored object in S3",
		slog.String("container", container),
		slog.String("object", name),
		slog.Int("size", len(data)))

	return container + "/" + name, nil
}

// Get retrieves an object payload.
func (b *S3Backend) Get(ctx context.Context, container, name string) ([]byte, error) {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(container, name)),
	})
	if err != nil {
		return nil, b.mapError("get", err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return buf.Bytes(), nil
}

// Delete removes an object. S3 deletes are idempotent by nature.
func (b *S3Backend) Delete(ctx context.Context, container, name string) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(container, name)),
	})
	if err != nil {
		return b.mapError("delete", err)
	}
	return nil
}

// Exists reports whether an object is present.
func (b *S3Backend) Exists(ctx context.Context, container, name string) (bool, error) {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(container, name)),
	})
	if err != nil {
		mapped := b.mapError("head", err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// GetMetadata returns an immutable metadata snapshot for an object. S3 does
// not track creation separately from modification, so CreatedAt mirrors the
// last-modified timestamp.
func (b *S3Backend) GetMetadata(ctx context.Context, container, name string) (interfaces.ObjectMetadata, error) {
	out, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(container, name)),
	})
	if err != nil {
		return interfaces.ObjectMetadata{}, b.mapError("head", err)
	}

	meta := interfaces.ObjectMetadata{
		Container:   container,
		Name:        name,
		Size:        aws.Int64Value(out.ContentLength),
		ContentType: aws.StringValue(out.ContentType),
	}
	if out.LastModified != nil {
		meta.ModifiedAt = out.LastModified.UTC()
		meta.CreatedAt = out.LastModified.UTC()
	}
	if len(out.Metadata) > 0 {
		meta.UserMetadata = make(map[string]string, len(out.Metadata))
		for k, v := range out.Metadata {
			meta.UserMetadata[strings.ToLower(k)] = aws.StringValue(v)
		}
	}
	return meta, nil
}

// List returns a restartable iterator over objects in a container, optionally
// restricted to a name prefix. The container marker is excluded.
func (b *S3Backend) List(ctx context.Context, container, prefix string) (interfaces.ObjectIterator, error) {
	if err := b.requireContainer(ctx, container); err != nil {
		return nil, err
	}

	keyPrefix := b.objectKey(container, prefix)
	trim := b.objectKey(container, "")
	return newObjectIterator(ctx, func(ctx context.Context) ([]interfaces.ObjectInfo, error) {
		var out []interfaces.ObjectInfo
		err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.bucketName),
			Prefix: aws.String(keyPrefix),
		}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				name := strings.TrimPrefix(aws.StringValue(obj.Key), trim)
				if name == containerMarker {
					continue
				}
				info := interfaces.ObjectInfo{
					Name: name,
					Size: aws.Int64Value(obj.Size),
				}
				if obj.LastModified != nil {
					info.LastModified = obj.LastModified.UTC()
				}
				out = append(out, info)
			}
			return true
		})
		if err != nil {
			return nil, b.mapError("list", err)
		}
		return out, nil
	})
}

// Copy duplicates an object server-side, possibly across containers.
func (b *S3Backend) Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	source := b.bucketName + "/" + b.objectKey(srcContainer, srcName)
	_, err := b.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucketName),
		Key:        aws.String(b.objectKey(dstContainer, dstName)),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		return b.mapError("copy", err)
	}
	return nil
}

// PresignURL returns a time-limited capability URL for direct access.
func (b *S3Backend) PresignURL(ctx context.Context, container, name string, ttl time.Duration, perm interfaces.PresignPermission) (string, error) {
	var req *request.Request
	switch perm {
	case interfaces.PresignWrite:
		req, _ = b.client.PutObjectRequest(&s3.PutObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(b.objectKey(container, name)),
		})
	default:
		req, _ = b.client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(b.bucketName),
			Key:    aws.String(b.objectKey(container, name)),
		})
	}

	signed, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return signed, nil
}

// CreateContainer records a container by writing its marker object.
func (b *S3Backend) CreateContainer(ctx context.Context, container string) error {
	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(container, containerMarker)),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return b.mapError("create container", err)
	}
	return nil
}

// DeleteContainer removes a container and all its objects.
func (b *S3Backend) DeleteContainer(ctx context.Context, container string) error {
	if err := b.requireContainer(ctx, container); err != nil {
		return err
	}

	keyPrefix := b.objectKey(container, "")
	var keys []*s3.ObjectIdentifier
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucketName),
		Prefix: aws.String(keyPrefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return b.mapError("delete container", err)
	}

	// DeleteObjects accepts at most 1000 keys per request.
	for len(keys) > 0 {
		batch := keys
		if len(batch) > 1000 {
			batch = batch[:1000]
		}
		keys = keys[len(batch):]
		_, err := b.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.bucketName),
			Delete: &s3.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return b.mapError("delete container", err)
		}
	}
	return nil
}

// Usage reports aggregate size and object count for a container.
func (b *S3Backend) Usage(ctx context.Context, container string) (interfaces.ContainerUsage, error) {
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

// Available checks if the bucket is accessible.
func (b *S3Backend) Available(ctx context.Context) bool {
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Debug("S3 backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) objectKey(container, name string) string {
	return b.prefix + container + "/" + name
}

func (b *S3Backend) requireContainer(ctx context.Context, container string) error {
	_, err := b.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.objectKey(container, containerMarker)),
	})
	if err != nil {
		mapped := b.mapError("head container", err)
		if errors.Is(mapped, interfaces.ErrNotFound) {
			return fmt.Errorf("container %q: %w", container, interfaces.ErrNotFound)
		}
		return mapped
	}
	return nil
}

// mapError translates AWS SDK errors into the backend contract's sentinel
// errors without discarding the original cause.
func (b *S3Backend) mapError(op string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return fmt.Errorf("s3 %s: %w", op, interfaces.ErrNotFound)
		case request.ErrCodeRequestError, request.CanceledErrorCode, "RequestTimeout", "ServiceUnavailable", "SlowDown":
			return fmt.Errorf("s3 %s: %w: %v", op, interfaces.ErrBackendUnavailable, aerr)
		}
	}
	return fmt.Errorf("s3 %s: %w", op, err)
}
