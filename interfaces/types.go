package interfaces

import (
	"time"
)

// ObjectMetadata is an immutable snapshot of a stored object's attributes.
// The backend is the sole writer; callers receive a copy.
type ObjectMetadata struct {
	Container    string
	Name         string
	Size         int64
	ContentType  string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	UserMetadata map[string]string
}

// ObjectInfo is a lightweight listing entry produced by ListObjects.
type ObjectInfo struct {
	Name         string
	Size         int64
	LastModified time.Time
}

// ScanResult reports the outcome of a content scan. It is created per scan
// call and never persisted.
type ScanResult struct {
	ObjectName string
	Clean      bool
	ThreatName string
	ThreatType string
	ScannedAt  time.Time
}

// ValidationResult accumulates the outcome of a validation pipeline. Multiple
// validators append to Errors in detection order; duplicates are kept.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// NewValidationResult returns a passing result with no errors recorded.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// AddError records a violation and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// EventType classifies audit events emitted by the security filter.
type EventType int

const (
	EventUploadValidation EventType = iota
	EventDownloadValidation
	EventScanPerformed
	EventRateLimitTriggered
	EventEncryption
	EventDecryption
)

// String returns the event type name as recorded in the audit log.
func (t EventType) String() string {
	switch t {
	case EventUploadValidation:
		return "upload_validation"
	case EventDownloadValidation:
		return "download_validation"
	case EventScanPerformed:
		return "scan_performed"
	case EventRateLimitTriggered:
		return "rate_limit_triggered"
	case EventEncryption:
		return "encryption"
	case EventDecryption:
		return "decryption"
	default:
		return "unknown"
	}
}

// SecurityEvent is a write-once audit record appended to the event sink.
type SecurityEvent struct {
	Type      EventType
	Container string
	Object    string
	ClientIP  string
	Success   bool
	Timestamp time.Time
	Detail    string
}

// RateLimitStatus describes a client's position within the current rate
// window. The current count is owned by the external counter store.
type RateLimitStatus struct {
	ClientID     string
	CurrentCount int64
	MaxAllowed   int64
	Allowed      bool
}

// OperationType classifies gateway operations for metric aggregation.
type OperationType int

const (
	OpUpload OperationType = iota
	OpDownload
	OpDelete
	OpList
	OpMetadata
	OpCopy
	OpContainer
	OpUsage
)

// String returns the operation type label used in metrics.
func (t OperationType) String() string {
	switch t {
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	case OpDelete:
		return "delete"
	case OpList:
		return "list"
	case OpMetadata:
		return "metadata"
	case OpCopy:
		return "copy"
	case OpContainer:
		return "container"
	case OpUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// OperationMetric records a single measured gateway call.
type OperationMetric struct {
	Operation        string
	Type             OperationType
	Container        string
	Object           string
	Success          bool
	ResponseTime     time.Duration
	BytesTransferred int64
	Timestamp        time.Time
}

// HealthState is the aggregated health classification of the gateway.
type HealthState int

const (
	Healthy HealthState = iota
	Degraded
	Unhealthy
)

// String returns the health state name.
func (s HealthState) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// HealthStatus is recomputed from the rolling metric window on demand and
// never persisted beyond it.
type HealthStatus struct {
	State           HealthState
	SuccessRate     float64
	ErrorRate       float64
	AverageResponse time.Duration
	CheckedAt       time.Time
	SampleCount     int
}

// LifecycleAction is the action a lifecycle rule applies to matching objects.
type LifecycleAction int

const (
	ActionDelete LifecycleAction = iota
	ActionArchive
	ActionTierChange
)

// String returns the action name.
func (a LifecycleAction) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	case ActionArchive:
		return "archive"
	case ActionTierChange:
		return "tier_change"
	default:
		return "unknown"
	}
}

// LifecycleRule is a declarative age-triggered action. A threshold of zero
// disables that trigger; at least one threshold must be positive.
type LifecycleRule struct {
	Action                LifecycleAction
	DaysAfterCreation     int
	DaysAfterModification int
}

// LifecyclePolicy applies an ordered rule list to objects whose container and
// name match the configured patterns. Rules are evaluated first-match-wins per
// object. FilePattern may be empty, in which case every object in a matching
// container is considered.
type LifecyclePolicy struct {
	Name             string
	ContainerPattern string
	FilePattern      string
	Enabled          bool
	Rules            []LifecycleRule
}

// BackupResult records the outcome of a backup run. It is immutable once
// created; the identifier is generated at creation and indexes the backup's
// manifest in the backup namespace.
type BackupResult struct {
	BackupID        string
	SourceContainer string
	FileCount       int
	Success         bool
	Timestamp       time.Time
}

// RestoreResult records the outcome of restoring a prior backup. It
// references the backup by its identifier and fails if that identifier is
// unknown.
type RestoreResult struct {
	BackupID          string
	TargetContainer   string
	RestoredFileCount int
	Success           bool
	Timestamp         time.Time
}

// ContainerUsage reports aggregate size and object count for a container.
type ContainerUsage struct {
	Container   string
	TotalBytes  int64
	ObjectCount int64
}
