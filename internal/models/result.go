package models

import "time"

// DetectionType classifies a message
type DetectionType string

const (
	DetectionNormal        DetectionType = "normal"
	DetectionSpam          DetectionType = "spam"
	DetectionAdvertisement DetectionType = "advertisement"
	DetectionAbuse         DetectionType = "abuse"
	DetectionInappropriate DetectionType = "inappropriate"
	DetectionConflict      DetectionType = "conflict"
	DetectionUnknown       DetectionType = "unknown"
)

// AllDetectionTypes lists every valid classification
var AllDetectionTypes = []DetectionType{
	DetectionNormal,
	DetectionSpam,
	DetectionAdvertisement,
	DetectionAbuse,
	DetectionInappropriate,
	DetectionConflict,
	DetectionUnknown,
}

// ParseDetectionType maps a provider string to a DetectionType.
// Unrecognized values map to unknown rather than failing the job.
func ParseDetectionType(s string) DetectionType {
	for _, t := range AllDetectionTypes {
		if string(t) == s {
			return t
		}
	}
	return DetectionUnknown
}

// IsAbnormal reports whether the classification should raise an alert
func (t DetectionType) IsAbnormal() bool {
	return t != DetectionNormal && t != DetectionUnknown
}

// AnalysisResult is the outcome of classifying one message.
// Confidence is always within [0,1]; UsedFallback marks results produced by
// the deterministic fallback classifier instead of the AI capability.
type AnalysisResult struct {
	DetectedType     DetectionType `json:"detected_type"`
	Confidence       float64       `json:"confidence"`
	Reasoning        string        `json:"reasoning,omitempty"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	UsedFallback     bool          `json:"used_fallback"`
}

// ClampConfidence forces a confidence value into [0,1]
func ClampConfidence(c float64) float64 {
	if c < 0.0 {
		return 0.0
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}

// CacheEntry stores a prior result under its content hash until ExpiresAt.
// A hit must be indistinguishable in shape from a fresh analyzer result.
type CacheEntry struct {
	Key       string         `json:"key"`
	Result    AnalysisResult `json:"result"`
	CachedAt  time.Time      `json:"cached_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at the given instant
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
