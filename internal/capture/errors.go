package capture

import (
	"errors"
	"strings"
)

// ErrorCategory classifies capture failures for telemetry and restart policy.
type ErrorCategory int

const (
	// ErrCategoryDevice indicates a missing, busy or unplugged device
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryFormat indicates caps negotiation or unsupported image formats
	ErrCategoryFormat
	// ErrCategoryPermission indicates the process may not open the device or files
	ErrCategoryPermission
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// Retryable reports whether a restart may fix errors of this category.
func (e ErrorCategory) Retryable() bool {
	return e == ErrCategoryDevice || e == ErrCategoryUnknown
}

// ErrNoFrames is returned by a file source whose directory holds no images.
var ErrNoFrames = errors.New("capture: no images found")

// Classify analyzes a capture error by message heuristics. GStreamer errors
// carry no stable domain, so strings are all there is.
func Classify(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryUnknown
	}
	if errors.Is(err, ErrNoFrames) {
		return ErrCategoryFormat
	}

	msg := strings.ToLower(err.Error())

	// Priority 1: permissions (most specific)
	if containsAny(msg, "permission denied", "not permitted", "access denied", "eacces") {
		return ErrCategoryPermission
	}

	// Priority 2: format/negotiation
	if containsAny(msg, "not negotiated", "negotiation", "caps", "format", "unknown format",
		"no decoder", "missing plugin", "no element") {
		return ErrCategoryFormat
	}

	// Priority 3: device/IO (most common)
	if containsAny(msg, "no such file", "no such device", "busy", "cannot identify device",
		"could not open", "failed to open", "disconnected", "end of stream", "i/o", "timeout") {
		return ErrCategoryDevice
	}

	return ErrCategoryUnknown
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
