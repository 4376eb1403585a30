package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/ruteri/storage-policy-backend/storage"
)

// manifestName is the per-backup index object within the backup namespace.
const manifestName = ".manifest.json"

// manifest records what a backup contains. It is written once at the end of
// a backup run and never mutated.
type manifest struct {
	BackupID        string          `json:"backup_id"`
	SourceContainer string          `json:"source_container"`
	CreatedAt       time.Time       `json:"created_at"`
	Success         bool            `json:"success"`
	Files           []manifestEntry `json:"files"`
}

type manifestEntry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// Config holds backup settings. Read-only after startup.
type Config struct {
	// BackupContainer is the backup namespace. Defaults to "backups".
	BackupContainer string

	// Workers bounds per-object copy concurrency. Defaults to 4.
	Workers int
}

// Orchestrator snapshots containers into the backup namespace and restores
// them. It operates against the storage gateway directly, not through the
// security and monitoring filters.
type Orchestrator struct {
	svc             interfaces.StorageService
	backupContainer string
	workers         int
	log             *slog.Logger
}

// NewOrchestrator creates a backup orchestrator operating against svc.
func NewOrchestrator(svc interfaces.StorageService, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.BackupContainer == "" {
		cfg.BackupContainer = "backups"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Orchestrator{
		svc:             svc,
		backupContainer: cfg.BackupContainer,
		workers:         cfg.Workers,
		log:             logger.With(slog.String("component", "backup")),
	}
}

// CreateBackup snapshots every object of the source container under a fresh
// backup identifier. Overall success requires every object copy to succeed;
// partial failure leaves Success=false with the count that was achieved.
func (o *Orchestrator) CreateBackup(ctx context.Context, container string) (interfaces.BackupResult, error) {
	backupID := uuid.NewString()
	result := interfaces.BackupResult{
		BackupID:        backupID,
		SourceContainer: container,
		Timestamp:       time.Now().UTC(),
	}

	it, err := o.svc.ListObjects(ctx, container, "")
	if err != nil {
		return result, fmt.Errorf("failed to list source container: %w", err)
	}
	objects, err := storage.CollectObjects(ctx, it)
	if err != nil {
		return result, fmt.Errorf("failed to list source container: %w", err)
	}

	if err := o.svc.CreateContainer(ctx, o.backupContainer); err != nil {
		return result, fmt.Errorf("failed to ensure backup container: %w", err)
	}

	start := time.Now()
	entries, failures := o.copyObjects(ctx, container, backupID, objects)

	result.FileCount = len(entries)
	result.Success = failures == 0

	m := manifest{
		BackupID:        backupID,
		SourceContainer: container,
		CreatedAt:       result.Timestamp,
		Success:         result.Success,
		Files:           entries,
	}
	if err := o.writeManifest(ctx, m); err != nil {
		result.Success = false
		return result, err
	}

	o.log.Info("Backup complete",
		slog.String("backup_id", backupID),
		slog.String("container", container),
		slog.Int("files", result.FileCount),
		slog.Int("failed", failures),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// copyObjects snapshots objects with bounded concurrency, hashing each
// payload on the way through. Per-object failures are counted, not raised.
func (o *Orchestrator) copyObjects(ctx context.Context, container, backupID string, objects []interfaces.ObjectInfo) ([]manifestEntry, int) {
	type copyResult struct {
		entry manifestEntry
		err   error
	}

	jobs := make(chan interfaces.ObjectInfo)
	results := make(chan copyResult, len(objects))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for obj := range jobs {
				entry, err := o.copyOne(ctx, container, backupID, obj.Name)
				results <- copyResult{entry: entry, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, obj := range objects {
			select {
			case jobs <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	var entries []manifestEntry
	failures := 0
	for res := range results {
		if res.err != nil {
			failures++
			o.log.Warn("Failed to back up object",
				slog.String("backup_id", backupID),
				slog.String("object", res.entry.Name), "err", res.err)
			continue
		}
		entries = append(entries, res.entry)
	}
	return entries, failures
}

func (o *Orchestrator) copyOne(ctx context.Context, container, backupID, name string) (manifestEntry, error) {
	entry := manifestEntry{Name: name}

	data, err := o.svc.Download(ctx, container, name)
	if err != nil {
		return entry, err
	}
	sum := sha256.Sum256(data)
	entry.Size = int64(len(data))
	entry.Checksum = hex.EncodeToString(sum[:])

	meta, err := o.svc.GetMetadata(ctx, container, name)
	if err != nil {
		meta = interfaces.ObjectMetadata{}
	}
	if _, err := o.svc.Upload(ctx, o.backupContainer, backupID+"/"+name, data, meta.ContentType, meta.UserMetadata); err != nil {
		return entry, err
	}
	return entry, nil
}

// RestoreBackup copies every backed-up object into the target container under
// its original name. It fails with interfaces.ErrBackupNotFound when the
// identifier is unknown. Success requires the restored count to equal the
// backup's recorded file count.
func (o *Orchestrator) RestoreBackup(ctx context.Context, backupID, targetContainer string) (interfaces.RestoreResult, error) {
	result := interfaces.RestoreResult{
		BackupID:        backupID,
		TargetContainer: targetContainer,
		Timestamp:       time.Now().UTC(),
	}

	m, err := o.readManifest(ctx, backupID)
	if err != nil {
		return result, err
	}

	if err := o.svc.CreateContainer(ctx, targetContainer); err != nil {
		return result, fmt.Errorf("failed to ensure target container: %w", err)
	}

	for _, entry := range m.Files {
		backupName := backupID + "/" + entry.Name
		data, err := o.svc.Download(ctx, o.backupContainer, backupName)
		if err != nil {
			o.log.Warn("Failed to restore object",
				slog.String("backup_id", backupID),
				slog.String("object", entry.Name), "err", err)
			continue
		}
		// The backup object carries the source's content type and user
		// metadata; restore them along with the payload.
		meta, err := o.svc.GetMetadata(ctx, o.backupContainer, backupName)
		if err != nil {
			meta = interfaces.ObjectMetadata{}
		}
		if _, err := o.svc.Upload(ctx, targetContainer, entry.Name, data, meta.ContentType, meta.UserMetadata); err != nil {
			o.log.Warn("Failed to restore object",
				slog.String("backup_id", backupID),
				slog.String("object", entry.Name), "err", err)
			continue
		}
		result.RestoredFileCount++
	}

	result.Success = result.RestoredFileCount == len(m.Files)
	o.log.Info("Restore complete",
		slog.String("backup_id", backupID),
		slog.String("target", targetContainer),
		slog.Int("restored", result.RestoredFileCount),
		slog.Bool("success", result.Success))
	return result, nil
}

// ValidateBackup re-lists the backup namespace and compares it against the
// manifest: file count and per-object checksums. Mismatches are reported as
// error strings in the result, not raised as errors.
func (o *Orchestrator) ValidateBackup(ctx context.Context, backupID string) (*interfaces.ValidationResult, error) {
	m, err := o.readManifest(ctx, backupID)
	if err != nil {
		return nil, err
	}

	result := interfaces.NewValidationResult()

	it, err := o.svc.ListObjects(ctx, o.backupContainer, backupID+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list backup namespace: %w", err)
	}
	listed, err := storage.CollectObjects(ctx, it)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup namespace: %w", err)
	}

	present := make(map[string]struct{}, len(listed))
	for _, info := range listed {
		name := strings.TrimPrefix(info.Name, backupID+"/")
		if name == manifestName {
			continue
		}
		present[name] = struct{}{}
	}

	if len(present) != len(m.Files) {
		result.AddError(fmt.Sprintf("backup holds %d objects, manifest records %d", len(present), len(m.Files)))
	}

	for _, entry := range m.Files {
		if _, ok := present[entry.Name]; !ok {
			result.AddError(fmt.Sprintf("object %q is missing from the backup", entry.Name))
			continue
		}
		data, err := o.svc.Download(ctx, o.backupContainer, backupID+"/"+entry.Name)
		if err != nil {
			result.AddError(fmt.Sprintf("object %q could not be read: %v", entry.Name, err))
			continue
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != entry.Checksum {
			result.AddError(fmt.Sprintf("object %q checksum mismatch", entry.Name))
		}
	}

	return result, nil
}

func (o *Orchestrator) writeManifest(ctx context.Context, m manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if _, err := o.svc.Upload(ctx, o.backupContainer, m.BackupID+"/"+manifestName, data, "application/json", nil); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func (o *Orchestrator) readManifest(ctx context.Context, backupID string) (manifest, error) {
	data, err := o.svc.Download(ctx, o.backupContainer, backupID+"/"+manifestName)
	if errors.Is(err, interfaces.ErrNotFound) {
		return manifest{}, fmt.Errorf("backup %q: %w", backupID, interfaces.ErrBackupNotFound)
	}
	if err != nil {
		return manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("corrupt manifest for backup %q: %w", backupID, err)
	}
	return m, nil
}
