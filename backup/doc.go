// Package backup snapshots every object of a container into a backup
// namespace, validates snapshot integrity, and restores prior snapshots.
//
// Each backup gets a freshly generated identifier; objects are stored under
// "<backupID>/<name>" in the backup container alongside a manifest object
// recording per-object sizes and SHA-256 checksums. The manifest is the
// backup index: restore and validation fail with interfaces.ErrBackupNotFound
// when it is absent.
//
// A backup succeeds only when every object copy succeeds. Partial failure
// yields a result with Success=false and whatever count was achieved; callers
// must check the flag, not merely object presence.
package backup
