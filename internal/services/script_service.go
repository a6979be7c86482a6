package services

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/manimstudio-backend/internal/apperr"
	"github.com/yungbote/manimstudio-backend/internal/config"
	"github.com/yungbote/manimstudio-backend/internal/logger"
	"github.com/yungbote/manimstudio-backend/internal/types"
)

// DefaultSceneName substitutes for an unparseable model-generated class name.
// Generation succeeding with an unparseable name is not fatal.
const DefaultSceneName = "GeneratedScene"

var sceneClassRe = regexp.MustCompile(`class\s+(\w+)\s*\(\s*Scene\s*\)`)

// ScriptService turns a prompt into Manim source plus metadata. The primary
// path goes through OpenAI; transient upstream failures degrade to a curated
// sample catalog, and an unreadable sample degrades once more to a minimal
// inline scene so the pipeline always receives something renderable.
type ScriptService interface {
	Generate(ctx context.Context, prompt string) (*types.GenerationResult, error)
	ExtractClassName(code string) string
	Catalog() map[string]types.SampleScene
	SamplePrompts() map[string][]string
}

type scriptService struct {
	log     *logger.Logger
	ai      OpenAIClient
	cfg     config.Config
	samples map[string]types.SampleScene
	intn    func(n int) int
}

func NewScriptService(cfg config.Config, baseLog *logger.Logger, ai OpenAIClient) ScriptService {
	log := baseLog.With("service", "ScriptService")
	samples := loadSampleCatalog(cfg, log)
	return &scriptService{
		log:     log,
		ai:      ai,
		cfg:     cfg,
		samples: samples,
		intn:    rand.Intn,
	}
}

func defaultSampleCatalog() map[string]types.SampleScene {
	return map[string]types.SampleScene{
		"vector": {
			File:        "vector_add_sub.py",
			SceneName:   "VectorAddSub",
			Description: "Vector addition and subtraction visualization",
			Keywords:    []string{"vector", "add", "subtract", "addition", "subtraction", "arrow"},
		},
		"hyperbola": {
			File:        "hyperbola_foci.py",
			SceneName:   "HyperbolaFoci",
			Description: "Hyperbola and foci visualization",
			Keywords:    []string{"hyperbola", "foci", "focus", "conic", "asymptote"},
		},
		"teacher": {
			File:        "hyperbola_teacher.py",
			SceneName:   "HyperbolaTeacher",
			Description: "Educational hyperbola animation",
			Keywords:    []string{"teach", "explain", "hyperbola", "lesson", "education"},
		},
	}
}

// loadSampleCatalog reads samples.yaml from the sample-scripts directory,
// falling back to the compiled-in catalog when the file is missing or broken.
func loadSampleCatalog(cfg config.Config, log *logger.Logger) map[string]types.SampleScene {
	path := filepath.Join(cfg.SampleScriptsPath, "samples.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Debug("Sample catalog file not found, using built-in catalog", "path", path)
		return defaultSampleCatalog()
	}
	var catalog map[string]types.SampleScene
	if err := yaml.Unmarshal(raw, &catalog); err != nil || len(catalog) == 0 {
		log.Warn("Sample catalog file unreadable, using built-in catalog", "path", path, "error", err)
		return defaultSampleCatalog()
	}
	return catalog
}

func defaultSamplePrompts() map[string][]string {
	return map[string][]string{
		"vector": {
			"Show how vectors add and subtract",
			"Visualize vector addition with arrows",
			"Animate vector operations in 2D",
			"Demonstrate vector arithmetic",
		},
		"hyperbola": {
			"Show a hyperbola with its foci",
			"Animate hyperbola properties",
			"Visualize conic sections - hyperbola",
			"Explain hyperbola asymptotes",
		},
		"teacher": {
			"Teach hyperbolas step by step",
			"Educational animation about conics",
			"Explain mathematical concepts visually",
			"Create a math lesson animation",
		},
	}
}

const fallbackSystemPrompt = `You are a veteran math teacher and motion designer. Create one Manim Scene that teaches {TOPIC} clearly, with clean pacing and zero clutter.

Create a single Python file containing one Scene class that:
1. Uses a two-pane layout (left for visuals, right for text board)
2. Teaches the concept step-by-step with clear beats
3. Uses proper Manim syntax and imports
4. Has clean, readable code with appropriate comments
5. Implements proper animations with FadeIn, FadeOut, Create, etc.

Output only the complete Python code for the Manim scene.`

func (s *scriptService) systemPrompt(topic string) string {
	template := fallbackSystemPrompt
	if raw, err := os.ReadFile(filepath.Join("prompts", "prompt.txt")); err == nil {
		template = strings.TrimSpace(string(raw))
	}
	out := strings.ReplaceAll(template, "{TOPIC}", topic)
	out = strings.ReplaceAll(out, "{SceneName}", DefaultSceneName)
	out = strings.ReplaceAll(out, "{file_name}", "generated_scene")
	out = strings.ReplaceAll(out, "{output_name}", "generated_animation")
	return out
}

func (s *scriptService) Generate(ctx context.Context, prompt string) (*types.GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperr.ErrEmptyPrompt
	}
	if len(prompt) > s.cfg.MaxPromptLength {
		return nil, fmt.Errorf("%w: maximum %d characters", apperr.ErrPromptTooLong, s.cfg.MaxPromptLength)
	}

	s.log.Info("Starting OpenAI generation", "prompt", truncate(prompt, 100))

	gen, err := s.ai.GenerateScene(ctx, s.systemPrompt(prompt), "Create a Manim animation that teaches: "+prompt)
	if err != nil {
		if !apperr.Transient(err) {
			s.log.Error("OpenAI generation failed without fallback", "error", err)
			return nil, err
		}
		s.log.Warn("OpenAI generation failed, falling back to samples", "error", err)
		return s.fallbackGeneration(prompt), nil
	}

	code := StripCodeFences(gen.Code)
	sceneName := gen.ClassName
	if extracted := s.ExtractClassName(code); extracted != DefaultSceneName {
		sceneName = extracted
	}
	if strings.TrimSpace(sceneName) == "" {
		sceneName = DefaultSceneName
	}

	s.log.Info("OpenAI generation succeeded", "scene_name", sceneName, "code_length", len(code))
	return &types.GenerationResult{
		Code:        code,
		SceneName:   sceneName,
		Description: gen.Description,
		Explanation: gen.Explanation,
		Method:      types.MethodOpenAIGenerated,
		Model:       gen.Model,
	}, nil
}

// fallbackGeneration scores every catalog entry by keyword hits in the
// lowercased prompt and picks the strictly best one; ties and zero-hit
// prompts resolve by uniform random choice.
func (s *scriptService) fallbackGeneration(prompt string) *types.GenerationResult {
	promptLower := strings.ToLower(prompt)

	keys := make([]string, 0, len(s.samples))
	for k := range s.samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return &types.GenerationResult{
			Code:        EmergencyFallbackScene(prompt, DefaultSceneName),
			SceneName:   DefaultSceneName,
			Description: "EMERGENCY FALLBACK for: " + prompt,
			Method:      types.MethodEmergencyFallback,
		}
	}

	maxMatches := 0
	scores := make(map[string]int, len(keys))
	for _, key := range keys {
		matches := 0
		for _, kw := range s.samples[key].Keywords {
			if strings.Contains(promptLower, kw) {
				matches++
			}
		}
		scores[key] = matches
		if matches > maxMatches {
			maxMatches = matches
		}
	}

	candidates := keys
	if maxMatches > 0 {
		candidates = candidates[:0:0]
		for _, key := range keys {
			if scores[key] == maxMatches {
				candidates = append(candidates, key)
			}
		}
	}
	selected := candidates[0]
	if len(candidates) > 1 {
		selected = candidates[s.intn(len(candidates))]
	}
	if maxMatches == 0 {
		s.log.Warn("No keyword matches found, randomly selected sample", "sample", selected)
	} else {
		s.log.Info("Selected fallback sample", "sample", selected, "matches", maxMatches)
	}

	sample := s.samples[selected]
	codePath := filepath.Join(s.cfg.SampleScriptsPath, sample.File)
	raw, err := os.ReadFile(codePath)
	if err != nil {
		s.log.Error("Sample file not found, using emergency fallback", "path", codePath, "error", err)
		return &types.GenerationResult{
			Code:        EmergencyFallbackScene(prompt, sample.SceneName),
			SceneName:   sample.SceneName,
			Description: "EMERGENCY FALLBACK for: " + prompt,
			Method:      types.MethodEmergencyFallback,
			SampleUsed:  selected,
		}
	}

	s.log.Info("Loaded sample code", "file", sample.File)
	return &types.GenerationResult{
		Code:        string(raw),
		SceneName:   sample.SceneName,
		Description: fmt.Sprintf("SAMPLE CONTENT: %s (OpenAI temporarily unavailable)", sample.Description),
		Method:      types.MethodSampleFallback,
		SampleUsed:  selected,
	}
}

// EmergencyFallbackScene builds a minimal, always-valid Manim scene around the
// original prompt so a broken sample catalog still yields a renderable script.
func EmergencyFallbackScene(prompt, className string) string {
	return fmt.Sprintf(`from manim import *

class %s(Scene):
    def construct(self):
        title = Text("Mathematical Animation", font_size=48)
        subtitle = Text("Generated from: %s", font_size=24)
        subtitle.next_to(title, DOWN, buff=0.5)

        self.play(Write(title))
        self.wait(1)
        self.play(FadeIn(subtitle))
        self.wait(2)

        circle = Circle(radius=2, color=BLUE)
        self.play(Create(circle))
        self.play(circle.animate.set_color(RED))
        self.wait(1)

        self.play(FadeOut(title), FadeOut(subtitle), FadeOut(circle))
`, className, truncate(sanitizeForPython(prompt), 50))
}

// StripCodeFences removes surrounding markdown code-block markup, optionally
// language-tagged, from model output.
func StripCodeFences(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (s *scriptService) ExtractClassName(code string) string {
	if m := sceneClassRe.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return DefaultSceneName
}

func (s *scriptService) Catalog() map[string]types.SampleScene {
	out := make(map[string]types.SampleScene, len(s.samples))
	for k, v := range s.samples {
		out[k] = v
	}
	return out
}

func (s *scriptService) SamplePrompts() map[string][]string {
	return defaultSamplePrompts()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// sanitizeForPython keeps a prompt safe to embed inside a Python string literal.
func sanitizeForPython(s string) string {
	s = strings.ReplaceAll(s, `\`, ``)
	s = strings.ReplaceAll(s, `"`, `'`)
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
