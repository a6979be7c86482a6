package config

import (
	"strings"
	"time"

	"github.com/yungbote/manimstudio-backend/internal/logger"
	"github.com/yungbote/manimstudio-backend/internal/utils"
)

// Config carries every environment-tunable knob the service recognizes.
// Path roots default to directories next to the binary, matching the
// on-disk layout the resolver and executor depend on.
type Config struct {
	Host  string
	Port  string
	Debug bool

	// Manim rendering
	ManimQuality    string
	ManimFormat     string
	ManimPythonPath string
	VideoTimeout    time.Duration

	// Paths
	GeneratedScriptsPath string
	OutputVideosPath     string
	SampleScriptsPath    string
	MediaPath            string

	// Limits
	MaxPromptLength      int
	MaxConcurrentRenders int

	// CORS
	CORSOrigins string

	// OpenAI
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float64
	OpenAITimeout     time.Duration
}

func Load(log *logger.Logger) Config {
	return Config{
		Host:  utils.GetEnv("HOST", "0.0.0.0", log),
		Port:  utils.GetEnv("PORT", "8000", log),
		Debug: utils.GetEnvAsBool("DEBUG", true, log),

		ManimQuality:    utils.GetEnv("MANIM_QUALITY", "low_quality", log),
		ManimFormat:     utils.GetEnv("MANIM_FORMAT", "mp4", log),
		ManimPythonPath: utils.GetEnv("MANIM_PYTHON_PATH", "/usr/bin/python3", log),
		VideoTimeout:    time.Duration(utils.GetEnvAsInt("VIDEO_TIMEOUT", 120, log)) * time.Second,

		GeneratedScriptsPath: utils.GetEnv("GENERATED_SCRIPTS_PATH", "generated", log),
		OutputVideosPath:     utils.GetEnv("OUTPUT_VIDEOS_PATH", "output", log),
		SampleScriptsPath:    utils.GetEnv("SAMPLE_SCRIPTS_PATH", "output-scripts", log),
		MediaPath:            utils.GetEnv("MEDIA_PATH", "media", log),

		MaxPromptLength:      utils.GetEnvAsInt("MAX_PROMPT_LENGTH", 500, log),
		MaxConcurrentRenders: utils.GetEnvAsInt("MAX_CONCURRENT_RENDERS", 3, log),

		CORSOrigins: utils.GetEnv("CORS_ORIGINS", "*", log),

		OpenAIAPIKey:      utils.GetEnv("OPENAI_API_KEY", "", log),
		OpenAIModel:       utils.GetEnv("OPENAI_MODEL", "gpt-4o-2024-08-06", log),
		OpenAIMaxTokens:   utils.GetEnvAsInt("OPENAI_MAX_TOKENS", 4000, log),
		OpenAITemperature: utils.GetEnvAsFloat("OPENAI_TEMPERATURE", 0.3, log),
		OpenAITimeout:     time.Duration(utils.GetEnvAsInt("OPENAI_TIMEOUT", 30, log)) * time.Second,
	}
}

// CORSOriginList splits the configured origin string. "*" means every origin.
func (c Config) CORSOriginList() []string {
	if strings.TrimSpace(c.CORSOrigins) == "*" {
		return []string{"*"}
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
