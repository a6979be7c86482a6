package types

// Generation method tags, kept wire-compatible with the values clients key on.
const (
	MethodOpenAIGenerated   = "openai_generated"
	MethodSampleFallback    = "sample_fallback"
	MethodEmergencyFallback = "emergency_fallback"
)

// GenerationResult is the immutable output of the script synthesizer.
type GenerationResult struct {
	Code        string
	SceneName   string
	Description string
	Explanation string
	Method      string
	Model       string
	SampleUsed  string
}

// ValidationResult reports the outcome of static script validation.
type ValidationResult struct {
	Valid bool
	Error string
}

// RenderResult is the outcome of one render attempt. On success VideoPath and
// VideoURL reference the relocated artifact; on failure Error carries the
// classified message and Stdout/Stderr retain raw subprocess diagnostics.
type RenderResult struct {
	Success   bool
	VideoPath string
	VideoURL  string
	Error     string
	Stdout    string
	Stderr    string
}

// SampleScene is one entry of the static fallback catalog.
type SampleScene struct {
	File        string   `yaml:"file"`
	SceneName   string   `yaml:"scene_name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}
