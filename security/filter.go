package security

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// FilterConfig holds the security policy. It is read-only after startup.
type FilterConfig struct {
	// AllowedExtensions restricts uploads to these extensions when non-empty.
	// Entries are matched case-insensitively, with or without a leading dot.
	AllowedExtensions []string

	// BlockedExtensions rejects uploads with these extensions regardless of
	// the allow list.
	BlockedExtensions []string

	// MaxFileSize rejects uploads larger than this many bytes. Zero disables
	// the check.
	MaxFileSize int64

	// AllowedIPs restricts downloads to these client IPs when non-empty.
	// Requests carrying no client IP are rejected while the list is in force.
	AllowedIPs []string

	// BlockedIPs rejects downloads from these client IPs. The deny list takes
	// precedence over the allow list.
	BlockedIPs []string
}

// Filter enforces the security policy in front of the next storage layer. On
// a failed validation the wrapped layer is never invoked; the call fails with
// interfaces.ValidationFailedError carrying every accumulated violation.
// Uploaded payloads are sealed in the encryption envelope and unsealed on
// download when an encryptor is configured.
//
// Filter holds no mutable state beyond configuration and is safe for
// concurrent use.
type Filter struct {
	next      interfaces.StorageService
	scanner   *Scanner
	limiter   *RateLimiter
	encryptor *Encryptor
	events    interfaces.EventSink
	log       *slog.Logger

	maxFileSize int64
	allowedExts map[string]struct{}
	blockedExts map[string]struct{}
	allowedIPs  map[string]struct{}
	blockedIPs  map[string]struct{}
}

// NewFilter creates a security filter decorating next. The limiter and
// encryptor are optional; a nil limiter disables rate checks and a nil
// encryptor stores payloads as provided.
func NewFilter(next interfaces.StorageService, cfg FilterConfig, scanner *Scanner, limiter *RateLimiter, encryptor *Encryptor, events interfaces.EventSink, logger *slog.Logger) *Filter {
	return &Filter{
		next:        next,
		scanner:     scanner,
		limiter:     limiter,
		encryptor:   encryptor,
		events:      events,
		log:         logger.With(slog.String("component", "security-filter")),
		maxFileSize: cfg.MaxFileSize,
		allowedExts: extensionSet(cfg.AllowedExtensions),
		blockedExts: extensionSet(cfg.BlockedExtensions),
		allowedIPs:  stringSet(cfg.AllowedIPs),
		blockedIPs:  stringSet(cfg.BlockedIPs),
	}
}

// ValidateFileUpload runs the upload validation pipeline, accumulating every
// violation: extension policy, size limit, then content scan.
func (f *Filter) ValidateFileUpload(ctx context.Context, container, name string, content []byte) *interfaces.ValidationResult {
	result := interfaces.NewValidationResult()

	ext := strings.ToLower(filepath.Ext(name))
	if len(f.allowedExts) > 0 {
		if _, ok := f.allowedExts[ext]; !ok {
			result.AddError(fmt.Sprintf("file extension %q is not allowed", ext))
		}
	}
	if _, ok := f.blockedExts[ext]; ok {
		result.AddError(fmt.Sprintf("file extension %q is blocked", ext))
	}

	if f.maxFileSize > 0 && int64(len(content)) > f.maxFileSize {
		result.AddError(fmt.Sprintf("file size %d exceeds the maximum of %d bytes", len(content), f.maxFileSize))
	}

	scan := f.scanner.Scan(content, name)
	f.appendEvent(ctx, interfaces.SecurityEvent{
		Type:      interfaces.EventScanPerformed,
		Container: container,
		Object:    name,
		Success:   scan.Clean,
		Detail:    scan.ThreatName,
	})
	if !scan.Clean {
		result.AddError(fmt.Sprintf("content scan flagged %s: %s", scan.ThreatType, scan.ThreatName))
	}

	return result
}

// ValidateFileDownload runs the download validation pipeline: IP deny list
// first (precedence over the allow list), then the rate limit. Each allowed
// attempt counts against the client's window.
func (f *Filter) ValidateFileDownload(ctx context.Context, container, name string) *interfaces.ValidationResult {
	result, _ := f.validateDownload(ctx, container, name)
	return result
}

func (f *Filter) validateDownload(ctx context.Context, container, name string) (*interfaces.ValidationResult, bool) {
	result := interfaces.NewValidationResult()
	client := ClientFromContext(ctx)
	rateLimited := false

	if client.IP != "" {
		if _, denied := f.blockedIPs[client.IP]; denied {
			result.AddError(fmt.Sprintf("client IP %s is blocked", client.IP))
		} else if len(f.allowedIPs) > 0 {
			if _, ok := f.allowedIPs[client.IP]; !ok {
				result.AddError(fmt.Sprintf("client IP %s is not in the allow list", client.IP))
			}
		}
	} else if len(f.allowedIPs) > 0 {
		// With an allow list in force an identity-less request must not slip
		// through.
		result.AddError("client IP is required while an IP allow list is configured")
	}

	if f.limiter != nil && client.ID != "" {
		status, err := f.limiter.GetStatus(ctx, client.ID)
		switch {
		case err != nil:
			// The limiter is advisory; a counter-store outage must not take
			// downloads down with it.
			f.log.Warn("Rate limiter unavailable, skipping check",
				slog.String("client", client.ID), "err", err)
		case !status.Allowed:
			rateLimited = true
			result.AddError(fmt.Sprintf("rate limit exceeded: %d of %d operations used this window", status.CurrentCount, status.MaxAllowed))
			f.appendEvent(ctx, interfaces.SecurityEvent{
				Type:      interfaces.EventRateLimitTriggered,
				Container: container,
				Object:    name,
				ClientIP:  client.IP,
				Success:   false,
				Detail:    fmt.Sprintf("client %s: %d/%d", client.ID, status.CurrentCount, status.MaxAllowed),
			})
		default:
			if err := f.limiter.Increment(ctx, client.ID, "download"); err != nil {
				f.log.Warn("Failed to increment rate counter",
					slog.String("client", client.ID), "err", err)
			}
		}
	}

	return result, rateLimited
}

// EncryptContent seals a payload in the encryption envelope. Without a
// configured encryptor the payload passes through unchanged.
func (f *Filter) EncryptContent(content []byte) ([]byte, error) {
	if f.encryptor == nil {
		return content, nil
	}
	return f.encryptor.Encrypt(content)
}

// DecryptContent unseals a payload from the encryption envelope.
func (f *Filter) DecryptContent(content []byte) ([]byte, error) {
	if f.encryptor == nil {
		return content, nil
	}
	return f.encryptor.Decrypt(content)
}

// Upload validates and encrypts the payload before handing it to the next
// layer. On a failed validation the next layer is never invoked.
func (f *Filter) Upload(ctx context.Context, container, name string, content []byte, contentType string, metadata map[string]string) (string, error) {
	client := ClientFromContext(ctx)
	result := f.ValidateFileUpload(ctx, container, name, content)

	f.appendEvent(ctx, interfaces.SecurityEvent{
		Type:      interfaces.EventUploadValidation,
		Container: container,
		Object:    name,
		ClientIP:  client.IP,
		Success:   result.Valid,
		Detail:    strings.Join(result.Errors, "; "),
	})

	if !result.Valid {
		return "", &interfaces.ValidationFailedError{Operation: "upload", Errors: result.Errors}
	}

	payload, err := f.EncryptContent(content)
	if err != nil {
		return "", err
	}
	return f.next.Upload(ctx, container, name, payload, contentType, metadata)
}

// Download validates the request, fetches the payload through the next layer,
// and decrypts it. A payload that fails authenticated decryption surfaces
// interfaces.ErrDecryptionFailed and is never returned as garbage.
func (f *Filter) Download(ctx context.Context, container, name string) ([]byte, error) {
	client := ClientFromContext(ctx)
	result, rateLimited := f.validateDownload(ctx, container, name)

	f.appendEvent(ctx, interfaces.SecurityEvent{
		Type:      interfaces.EventDownloadValidation,
		Container: container,
		Object:    name,
		ClientIP:  client.IP,
		Success:   result.Valid,
		Detail:    strings.Join(result.Errors, "; "),
	})

	if !result.Valid {
		return nil, &interfaces.ValidationFailedError{Operation: "download", Errors: result.Errors, RateLimited: rateLimited}
	}

	payload, err := f.next.Download(ctx, container, name)
	if err != nil {
		return nil, err
	}
	return f.DecryptContent(payload)
}

// Delete passes through to the next layer.
func (f *Filter) Delete(ctx context.Context, container, name string) error {
	return f.next.Delete(ctx, container, name)
}

// DeleteBatch passes through to the next layer.
func (f *Filter) DeleteBatch(ctx context.Context, container string, names []string) error {
	return f.next.DeleteBatch(ctx, container, names)
}

// Exists passes through to the next layer.
func (f *Filter) Exists(ctx context.Context, container, name string) (bool, error) {
	return f.next.Exists(ctx, container, name)
}

// GetMetadata passes through to the next layer.
func (f *Filter) GetMetadata(ctx context.Context, container, name string) (interfaces.ObjectMetadata, error) {
	return f.next.GetMetadata(ctx, container, name)
}

// ListObjects passes through to the next layer.
func (f *Filter) ListObjects(ctx context.Context, container, prefix string) (interfaces.ObjectIterator, error) {
	return f.next.ListObjects(ctx, container, prefix)
}

// GetPresignedURL passes through to the next layer.
func (f *Filter) GetPresignedURL(ctx context.Context, container, name string, ttl time.Duration, perm interfaces.PresignPermission) (string, error) {
	return f.next.GetPresignedURL(ctx, container, name, ttl, perm)
}

// CreateContainer passes through to the next layer.
func (f *Filter) CreateContainer(ctx context.Context, container string) error {
	return f.next.CreateContainer(ctx, container)
}

// DeleteContainer passes through to the next layer.
func (f *Filter) DeleteContainer(ctx context.Context, container string) error {
	return f.next.DeleteContainer(ctx, container)
}

// Copy passes through to the next layer.
func (f *Filter) Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	return f.next.Copy(ctx, srcContainer, srcName, dstContainer, dstName)
}

// GetUsage passes through to the next layer.
func (f *Filter) GetUsage(ctx context.Context, container string) (interfaces.ContainerUsage, error) {
	return f.next.GetUsage(ctx, container)
}

func (f *Filter) appendEvent(ctx context.Context, event interfaces.SecurityEvent) {
	if f.events == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	f.events.Append(ctx, event)
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}
