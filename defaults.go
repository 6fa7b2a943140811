package tiercache

import "time"

const (
	defaultMaxMemorySize        = 64 << 20
	defaultMaxLocalSize         = 512 << 20
	defaultTTL                  = time.Hour
	defaultCleanupInterval      = 5 * time.Minute
	defaultCompressionThreshold = 1 << 10
	defaultLargeEntrySize       = 1 << 20
	defaultMediumEntrySize      = 10 << 10
	defaultLongTTL              = time.Hour
	defaultBackendTimeout       = 5 * time.Second
	defaultPressureInterval     = 30 * time.Second
	defaultMaxTrackedKeys       = 1 << 20
	defaultVersionRetention     = 24 * time.Hour
	promotionTimeout            = 10 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
