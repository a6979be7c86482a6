package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/manimstudio-backend/internal/apperr"
	"github.com/yungbote/manimstudio-backend/internal/logger"
	"github.com/yungbote/manimstudio-backend/internal/services"
	"github.com/yungbote/manimstudio-backend/internal/types"
)

type GenerationHandler struct {
	log       *logger.Logger
	jobs      services.JobService
	scripts   services.ScriptService
	validator services.ValidateService
	files     services.FileService
	renderer  services.RenderService
}

func NewGenerationHandler(
	baseLog *logger.Logger,
	jobs services.JobService,
	scripts services.ScriptService,
	validator services.ValidateService,
	files services.FileService,
	renderer services.RenderService,
) *GenerationHandler {
	return &GenerationHandler{
		log:       baseLog.With("handler", "GenerationHandler"),
		jobs:      jobs,
		scripts:   scripts,
		validator: validator,
		files:     files,
		renderer:  renderer,
	}
}

// POST /api/generate
// Accepts the prompt and returns immediately; prompt-length and script
// validation happen inside the pipeline and surface via status polls.
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req types.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		RespondError(c, http.StatusBadRequest, "empty_prompt", apperr.ErrEmptyPrompt)
		return
	}
	if req.Quality == "" {
		req.Quality = "medium"
	}

	job := h.jobs.Submit(req.Prompt, req.Quality)
	RespondOK(c, types.GenerateResponse{
		JobID:       job.ID,
		Status:      "processing",
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
	})
}

// GET /api/job/:id/status
func (h *GenerationHandler) JobStatus(c *gin.Context) {
	job, err := h.jobs.GetStatus(c.Param("id"))
	if err != nil {
		if errors.Is(err, apperr.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, job)
}

// DELETE /api/job/:id
func (h *GenerationHandler) DeleteJob(c *gin.Context) {
	if err := h.jobs.Cleanup(c.Param("id")); err != nil {
		if errors.Is(err, apperr.ErrJobNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "delete_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": "deleted"})
}

// GET /api/examples
// Categorizes pre-rendered sample videos by directory name.
func (h *GenerationHandler) Examples(c *gin.Context) {
	videos := h.files.ListSampleVideos()
	prompts := h.scripts.SamplePrompts()

	examples := make([]types.ExampleItem, 0, len(videos))
	for _, video := range videos {
		item := categorizeExample(video, prompts)
		examples = append(examples, item)
	}
	RespondOK(c, types.ExampleResponse{Examples: examples})
}

func categorizeExample(video services.SampleVideo, prompts map[string][]string) types.ExampleItem {
	nameLower := strings.ToLower(video.Name)
	item := types.ExampleItem{
		VideoURL: video.URL,
		Duration: "45-90s",
	}
	switch {
	case strings.Contains(nameLower, "vector"):
		item.Category = "algebra"
		item.Title = "Vector Addition & Subtraction"
		item.Prompt = firstPrompt(prompts, "vector", "Show vector addition")
		item.Description = "Learn how to add and subtract vectors with animated arrows and step-by-step visualization."
	case strings.Contains(nameLower, "hyperbola_foci"):
		item.Category = "geometry"
		item.Title = "Hyperbola & Foci"
		item.Prompt = firstPrompt(prompts, "hyperbola", "Show hyperbola with foci")
		item.Description = "Explore hyperbolas and their foci with interactive geometric visualization."
	case strings.Contains(nameLower, "hyperbola_teacher"):
		item.Category = "geometry"
		item.Title = "Hyperbola Teaching Animation"
		item.Prompt = firstPrompt(prompts, "teacher", "Teach hyperbolas")
		item.Description = "Educational animation explaining hyperbola properties and mathematical concepts."
	default:
		title := titleCase(strings.ReplaceAll(video.Name, "_", " "))
		item.Category = "general"
		item.Title = title
		item.Prompt = "Create an animation about " + strings.ToLower(title)
		item.Description = "Mathematical visualization of " + strings.ToLower(title) + "."
	}
	return item
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func firstPrompt(prompts map[string][]string, key, fallback string) string {
	if list, ok := prompts[key]; ok && len(list) > 0 {
		return list[0]
	}
	return fallback
}

// POST /api/render
// Synchronous variant bypassing the job table: generate, validate and render
// in the request thread. Useful for integration testing.
func (h *GenerationHandler) Render(c *gin.Context) {
	var req types.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	gen, err := h.scripts.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrEmptyPrompt) || errors.Is(err, apperr.ErrPromptTooLong):
			RespondError(c, http.StatusBadRequest, "invalid_prompt", err)
		case errors.Is(err, apperr.ErrNotConfigured):
			RespondError(c, http.StatusInternalServerError, "not_configured", err)
		default:
			RespondError(c, http.StatusBadGateway, "generation_failed", err)
		}
		return
	}

	scriptPath, err := h.files.SaveGeneratedScript(gen.Code, gen.SceneName)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "save_failed", err)
		return
	}

	if validation := h.validator.Validate(gen.Code); !validation.Valid {
		RespondError(c, http.StatusBadRequest, "invalid_script", fmt.Errorf("invalid script: %s", validation.Error))
		return
	}

	result := h.renderer.Render(c.Request.Context(), scriptPath, gen.SceneName, req.Quality, "")
	if !result.Success {
		h.log.Error("Synchronous render failed", "error", result.Error, "stderr", truncateForLog(result.Stderr))
		RespondError(c, http.StatusInternalServerError, "render_failed", fmt.Errorf("rendering failed: %s", result.Error))
		return
	}

	RespondOK(c, types.RenderResponse{
		VideoURL:  result.VideoURL,
		Code:      gen.Code,
		SceneName: gen.SceneName,
		Status:    "rendered",
	})
}

func truncateForLog(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
