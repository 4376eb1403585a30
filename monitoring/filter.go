package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// FilterConfig holds the health thresholds and the metric window duration.
// Read-only after startup.
type FilterConfig struct {
	// WindowDuration bounds the rolling metric window. Defaults to 5 minutes.
	WindowDuration time.Duration

	// DegradedBelow is the success rate under which the gateway reports
	// Degraded. Defaults to 0.95.
	DegradedBelow float64

	// UnhealthyBelow is the success rate under which the gateway reports
	// Unhealthy. Defaults to 0.75.
	UnhealthyBelow float64
}

func (c *FilterConfig) withDefaults() FilterConfig {
	cfg := *c
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 5 * time.Minute
	}
	if cfg.DegradedBelow == 0 {
		cfg.DegradedBelow = 0.95
	}
	if cfg.UnhealthyBelow == 0 {
		cfg.UnhealthyBelow = 0.75
	}
	return cfg
}

// Filter measures every storage operation flowing through it. Failures are
// recorded and re-raised unchanged; the filter never converts errors into
// different types.
type Filter struct {
	next   interfaces.StorageService
	cfg    FilterConfig
	window *window
	log    *slog.Logger
}

// NewFilter creates a monitoring filter decorating next.
func NewFilter(next interfaces.StorageService, cfg FilterConfig, logger *slog.Logger) *Filter {
	resolved := cfg.withDefaults()
	return &Filter{
		next:   next,
		cfg:    resolved,
		window: newWindow(resolved.WindowDuration),
		log:    logger.With(slog.String("component", "monitoring-filter")),
	}
}

// GetHealthStatus aggregates the rolling metric window. An empty window
// yields Healthy.
func (f *Filter) GetHealthStatus() interfaces.HealthStatus {
	metrics := f.window.snapshot()
	status := interfaces.HealthStatus{
		State:       interfaces.Healthy,
		SuccessRate: 1.0,
		CheckedAt:   time.Now().UTC(),
		SampleCount: len(metrics),
	}
	if len(metrics) == 0 {
		return status
	}

	var succeeded int
	var total time.Duration
	for _, m := range metrics {
		if m.Success {
			succeeded++
		}
		total += m.ResponseTime
	}

	status.SuccessRate = float64(succeeded) / float64(len(metrics))
	status.ErrorRate = 1.0 - status.SuccessRate
	status.AverageResponse = total / time.Duration(len(metrics))

	switch {
	case status.SuccessRate < f.cfg.UnhealthyBelow:
		status.State = interfaces.Unhealthy
	case status.SuccessRate < f.cfg.DegradedBelow:
		status.State = interfaces.Degraded
	}
	return status
}

// measure runs op inside a scoped measurement, recording the metric in the
// rolling window and the Prometheus collectors.
func (f *Filter) measure(operation string, opType interfaces.OperationType, container, object string, op func() (int64, error)) error {
	start := time.Now()
	bytes, err := op()
	elapsed := time.Since(start)

	// Bytes count only for operations that succeeded.
	if err != nil {
		bytes = 0
	}

	metric := interfaces.OperationMetric{
		Operation:        operation,
		Type:             opType,
		Container:        container,
		Object:           object,
		Success:          err == nil,
		ResponseTime:     elapsed,
		BytesTransferred: bytes,
		Timestamp:        time.Now().UTC(),
	}
	f.window.record(metric)

	result := "success"
	if err != nil {
		result = "failure"
		f.log.Debug("Operation failed",
			slog.String("operation", operation),
			slog.String("container", container),
			slog.Duration("duration", elapsed),
			"err", err)
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if bytes > 0 {
		bytesTransferred.WithLabelValues(operation).Add(float64(bytes))
	}
	return err
}

// Upload measures and delegates to the next layer.
func (f *Filter) Upload(ctx context.Context, container, name string, content []byte, contentType string, metadata map[string]string) (string, error) {
	var id string
	err := f.measure("upload", interfaces.OpUpload, container, name, func() (int64, error) {
		var err error
		id, err = f.next.Upload(ctx, container, name, content, contentType, metadata)
		return int64(len(content)), err
	})
	return id, err
}

// Download measures and delegates to the next layer.
func (f *Filter) Download(ctx context.Context, container, name string) ([]byte, error) {
	var data []byte
	err := f.measure("download", interfaces.OpDownload, container, name, func() (int64, error) {
		var err error
		data, err = f.next.Download(ctx, container, name)
		return int64(len(data)), err
	})
	return data, err
}

// Delete measures and delegates to the next layer.
func (f *Filter) Delete(ctx context.Context, container, name string) error {
	return f.measure("delete", interfaces.OpDelete, container, name, func() (int64, error) {
		return 0, f.next.Delete(ctx, container, name)
	})
}

// DeleteBatch measures and delegates to the next layer.
func (f *Filter) DeleteBatch(ctx context.Context, container string, names []string) error {
	return f.measure("delete_batch", interfaces.OpDelete, container, "", func() (int64, error) {
		return 0, f.next.DeleteBatch(ctx, container, names)
	})
}

// Exists measures and delegates to the next layer.
func (f *Filter) Exists(ctx context.Context, container, name string) (bool, error) {
	var exists bool
	err := f.measure("exists", interfaces.OpMetadata, container, name, func() (int64, error) {
		var err error
		exists, err = f.next.Exists(ctx, container, name)
		return 0, err
	})
	return exists, err
}

// GetMetadata measures and delegates to the next layer.
func (f *Filter) GetMetadata(ctx context.Context, container, name string) (interfaces.ObjectMetadata, error) {
	var meta interfaces.ObjectMetadata
	err := f.measure("metadata", interfaces.OpMetadata, container, name, func() (int64, error) {
		var err error
		meta, err = f.next.GetMetadata(ctx, container, name)
		return 0, err
	})
	return meta, err
}

// ListObjects measures and delegates to the next layer.
func (f *Filter) ListObjects(ctx context.Context, container, prefix string) (interfaces.ObjectIterator, error) {
	var it interfaces.ObjectIterator
	err := f.measure("list", interfaces.OpList, container, "", func() (int64, error) {
		var err error
		it, err = f.next.ListObjects(ctx, container, prefix)
		return 0, err
	})
	return it, err
}

// GetPresignedURL measures and delegates to the next layer.
func (f *Filter) GetPresignedURL(ctx context.Context, container, name string, ttl time.Duration, perm interfaces.PresignPermission) (string, error) {
	var url string
	err := f.measure("presign", interfaces.OpMetadata, container, name, func() (int64, error) {
		var err error
		url, err = f.next.GetPresignedURL(ctx, container, name, ttl, perm)
		return 0, err
	})
	return url, err
}

// CreateContainer measures and delegates to the next layer.
func (f *Filter) CreateContainer(ctx context.Context, container string) error {
	return f.measure("create_container", interfaces.OpContainer, container, "", func() (int64, error) {
		return 0, f.next.CreateContainer(ctx, container)
	})
}

// DeleteContainer measures and delegates to the next layer.
func (f *Filter) DeleteContainer(ctx context.Context, container string) error {
	return f.measure("delete_container", interfaces.OpContainer, container, "", func() (int64, error) {
		return 0, f.next.DeleteContainer(ctx, container)
	})
}

// Copy measures and delegates to the next layer.
func (f *Filter) Copy(ctx context.Context, srcContainer, srcName, dstContainer, dstName string) error {
	return f.measure("copy", interfaces.OpCopy, srcContainer, srcName, func() (int64, error) {
		return 0, f.next.Copy(ctx, srcContainer, srcName, dstContainer, dstName)
	})
}

// GetUsage measures and delegates to the next layer.
func (f *Filter) GetUsage(ctx context.Context, container string) (interfaces.ContainerUsage, error) {
	var usage interfaces.ContainerUsage
	err := f.measure("usage", interfaces.OpUsage, container, "", func() (int64, error) {
		var err error
		usage, err = f.next.GetUsage(ctx, container)
		return 0, err
	})
	return usage, err
}
