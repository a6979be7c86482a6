package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/manimstudio-backend/internal/apperr"
	"github.com/yungbote/manimstudio-backend/internal/config"
	"github.com/yungbote/manimstudio-backend/internal/logger"
	"github.com/yungbote/manimstudio-backend/internal/store"
	"github.com/yungbote/manimstudio-backend/internal/types"
)

// Retention policy for terminal job records and the files they produced.
const (
	retentionSweepInterval = 10 * time.Minute
	jobRetentionAge        = 24 * time.Hour
)

// JobService owns the in-memory job table and the per-job pipeline:
// analyze, generate, persist, validate, resolve cached artifact, render.
// Submission never blocks; callers poll GetStatus until a terminal state.
type JobService interface {
	Submit(prompt string, quality string) *types.Job
	GetStatus(jobID string) (*types.Job, error)
	Cleanup(jobID string) error
	StartRetentionSweeper(ctx context.Context)
}

type jobService struct {
	log       *logger.Logger
	cfg       config.Config
	jobs      *store.JobStore
	scripts   ScriptService
	validator ValidateService
	files     FileService
	renderer  RenderService
	renderSem *semaphore.Weighted
}

func NewJobService(
	cfg config.Config,
	baseLog *logger.Logger,
	jobs *store.JobStore,
	scripts ScriptService,
	validator ValidateService,
	files FileService,
	renderer RenderService,
) JobService {
	var sem *semaphore.Weighted
	if cfg.MaxConcurrentRenders > 0 {
		sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentRenders))
	}
	return &jobService{
		log:       baseLog.With("service", "JobService"),
		cfg:       cfg,
		jobs:      jobs,
		scripts:   scripts,
		validator: validator,
		files:     files,
		renderer:  renderer,
		renderSem: sem,
	}
}

func (s *jobService) Submit(prompt string, quality string) *types.Job {
	now := time.Now()
	job := &types.Job{
		ID:          uuid.New().String(),
		Prompt:      prompt,
		Quality:     quality,
		Status:      types.JobStatusInitialized,
		Progress:    0,
		CurrentStep: "Job created",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs.Put(job)
	s.log.Info("Job submitted", "job_id", job.ID, "prompt", truncate(prompt, 50))

	go s.runPipeline(context.Background(), job.ID, prompt, quality)

	snapshot := *job
	return &snapshot
}

func (s *jobService) GetStatus(jobID string) (*types.Job, error) {
	job, ok := s.jobs.Get(jobID)
	if !ok {
		return nil, apperr.ErrJobNotFound
	}
	return job, nil
}

func (s *jobService) Cleanup(jobID string) error {
	if !s.jobs.Delete(jobID) {
		return apperr.ErrJobNotFound
	}
	s.log.Debug("Job deleted", "job_id", jobID)
	return nil
}

// update applies one atomic checkpoint write. A false return means the record
// was deleted out from under the pipeline; the caller must stop quietly.
func (s *jobService) update(jobID string, status types.JobStatus, progress int, step string) bool {
	return s.jobs.Update(jobID, func(j *types.Job) {
		if j.Status.Terminal() {
			return
		}
		j.Status = status
		if progress > j.Progress {
			j.Progress = progress
		}
		j.CurrentStep = step
	})
}

// fail transitions the job to its terminal failed state with progress frozen
// at the last recorded value.
func (s *jobService) fail(jobID string, err error) {
	s.log.Warn("Job failed", "job_id", jobID, "error", err)
	s.jobs.Update(jobID, func(j *types.Job) {
		if j.Status.Terminal() {
			return
		}
		j.Status = types.JobStatusFailed
		j.CurrentStep = "Failed"
		j.Error = err.Error()
	})
}

func (s *jobService) complete(jobID string, videoURL string, gen *types.GenerationResult) {
	s.jobs.Update(jobID, func(j *types.Job) {
		if j.Status.Terminal() {
			return
		}
		j.Status = types.JobStatusCompleted
		j.Progress = 100
		j.CurrentStep = "Completed"
		j.VideoURL = videoURL
		j.Code = gen.Code
		j.SceneName = gen.SceneName
		j.Description = gen.Description
		j.Method = gen.Method
		j.Model = gen.Model
		j.SampleUsed = gen.SampleUsed
	})
	s.log.Info("Job completed", "job_id", jobID, "video_url", videoURL)
}

func (s *jobService) runPipeline(ctx context.Context, jobID string, prompt string, quality string) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	if !s.update(jobID, types.JobStatusAnalyzing, 5, "Analyzing prompt") {
		return
	}
	s.update(jobID, types.JobStatusAnalyzing, 10, "Preparing generation")

	if !s.update(jobID, types.JobStatusGenerating, 20, "Generating Manim script") {
		return
	}
	gen, err := s.scripts.Generate(ctx, prompt)
	if err != nil {
		s.fail(jobID, err)
		return
	}

	if !s.update(jobID, types.JobStatusGenerating, 45, "Saving generated script") {
		return
	}
	scriptPath, err := s.files.SaveGeneratedScript(gen.Code, gen.SceneName)
	if err != nil {
		s.fail(jobID, fmt.Errorf("save script: %w", err))
		return
	}

	if !s.update(jobID, types.JobStatusGenerating, 55, "Validating script") {
		return
	}
	if validation := s.validator.Validate(gen.Code); !validation.Valid {
		s.fail(jobID, fmt.Errorf("%w: %s", apperr.ErrInvalidScript, validation.Error))
		return
	}

	if !s.update(jobID, types.JobStatusRendering, 65, "Checking for existing video") {
		return
	}
	if existing := s.files.CheckExistingVideo(gen.SceneName); existing != "" {
		s.update(jobID, types.JobStatusRendering, 90, "Using existing video")
		s.complete(jobID, s.files.VideoURL(existing), gen)
		return
	}

	if !s.update(jobID, types.JobStatusRendering, 75, "Rendering animation") {
		return
	}
	if s.renderSem != nil {
		if err := s.renderSem.Acquire(ctx, 1); err != nil {
			s.fail(jobID, fmt.Errorf("render admission: %w", err))
			return
		}
		defer s.renderSem.Release(1)
	}
	result := s.renderer.Render(ctx, scriptPath, gen.SceneName, quality, jobID)
	if !result.Success {
		s.fail(jobID, fmt.Errorf("%s", result.Error))
		return
	}

	s.update(jobID, types.JobStatusRendering, 95, "Finalizing video")
	s.complete(jobID, result.VideoURL, gen)
}

// StartRetentionSweeper drops terminal jobs and stale generated files after
// the retention window. Best effort; the table is ephemeral by design.
func (s *jobService) StartRetentionSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(retentionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.jobs.DeleteTerminalOlderThan(jobRetentionAge); removed > 0 {
					s.log.Info("Retention sweep removed jobs", "count", removed)
				}
				s.files.CleanupOldFiles(jobRetentionAge)
			}
		}
	}()
}
