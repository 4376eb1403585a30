// Package security implements the upload/download policy layer: content
// scanning, rate limiting, payload encryption, and the SecurityFilter
// decorator that enforces them in front of the storage gateway.
//
// The filter validates uploads (extension allow/deny lists, size limit,
// content scan) and downloads (IP allow/deny lists, rate limit), accumulating
// every violation rather than stopping at the first. A failed validation
// raises interfaces.ValidationFailedError and the wrapped layer is never
// invoked. All validation outcomes are appended to the audit event sink.
//
// Payloads are wrapped in an authenticated encryption envelope (AES-GCM with
// an argon2id-derived key); decrypting anything not produced by Encrypt fails
// with interfaces.ErrDecryptionFailed. The encryption secret comes from a
// KeySource, either a static hex-encoded value or a field in a Vault KV
// secret.
//
// The rate limiter keeps its counters in an external shared store (redis)
// keyed per client with a one-hour TTL that resets on every increment.
// Concurrent increments may undercount by the concurrency degree; the limiter
// is advisory, not a security boundary by itself.
package security
