// Package storage provides the blob backend adapters and the storage gateway.
//
// Backends implement interfaces.BlobBackend over a concrete object store. Two
// adapters are provided:
//
//   - FileBackend stores containers as directories on the local filesystem,
//     keeping object attributes in a sidecar attrs directory per container.
//   - S3Backend stores containers as buckets in Amazon S3 or any S3-compatible
//     service, using the AWS SDK for presigned URLs, server-side copies, and
//     paged listings.
//
// Backends are created through the Factory from a location URI:
//
//	file:///var/lib/gateway/data
//	s3://ACCESS_KEY:SECRET_KEY@bucket-prefix/?region=us-west-2&endpoint=minio.local:9000
//
// The Gateway is the base interfaces.StorageService implementation. It
// dispatches every operation to exactly one active backend, propagating the
// backend's typed errors unchanged. The security and monitoring filters
// decorate the gateway with the same contract; the gateway itself adds only
// argument validation and operational logging.
package storage
