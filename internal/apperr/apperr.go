package apperr

import "errors"

var (
	// ErrEmptyPrompt is returned when a prompt is empty or whitespace-only.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrPromptTooLong is returned when a prompt exceeds the configured maximum length.
	ErrPromptTooLong = errors.New("prompt too long")
	// ErrNotConfigured marks missing or invalid operator configuration (API key, interpreter).
	ErrNotConfigured = errors.New("not configured")
	// ErrGenerationRefused is returned when the model explicitly declines a request.
	ErrGenerationRefused = errors.New("generation refused")
	// ErrUpstream marks transient upstream failures (timeouts, rate limits, connectivity).
	ErrUpstream = errors.New("upstream error")
	// ErrMalformedOutput marks model output that violated the requested schema.
	// Like configuration errors it must never be degraded silently.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrInvalidScript marks generated source that failed static validation.
	ErrInvalidScript = errors.New("invalid script")
	// ErrJobNotFound is returned for unknown job identifiers.
	ErrJobNotFound = errors.New("job not found")
)

// Transient reports whether a generation failure is eligible for fallback
// degradation. Configuration, refusal and schema errors are never transient:
// they indicate an operator or model problem that degrading would mask.
// Anything else, including unclassified transport failures, degrades.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrGenerationRefused) ||
		errors.Is(err, ErrMalformedOutput) {
		return false
	}
	return true
}
