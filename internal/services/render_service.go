package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yungbote/manimstudio-backend/internal/config"
	"github.com/yungbote/manimstudio-backend/internal/logger"
	"github.com/yungbote/manimstudio-backend/internal/types"
)

// minVideoSizeBytes rejects partial or corrupt writes during artifact
// discovery; a real render is always comfortably larger.
const minVideoSizeBytes = 1024

// ProcessRunner executes one external process to completion. It exists so
// artifact discovery and failure classification can be tested without
// spawning real subprocesses.
type ProcessRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (stdout string, stderr string, exitCode int, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if ctx.Err() != nil {
		return outBuf.String(), errBuf.String(), -1, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitCode(), nil
		}
		return outBuf.String(), errBuf.String(), -1, err
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

// RenderService drives the Manim subprocess: builds the invocation, enforces
// the wall-clock timeout, locates and relocates the produced artifact and
// classifies failures. Every failure is terminal for the attempt; retry
// policy belongs to the caller.
type RenderService interface {
	Render(ctx context.Context, scriptPath string, sceneName string, quality string, jobID string) types.RenderResult
}

type renderService struct {
	log    *logger.Logger
	cfg    config.Config
	files  FileService
	runner ProcessRunner
}

func NewRenderService(cfg config.Config, baseLog *logger.Logger, files FileService) RenderService {
	return &renderService{
		log:    baseLog.With("service", "RenderService"),
		cfg:    cfg,
		files:  files,
		runner: execRunner{},
	}
}

// NewRenderServiceWithRunner injects a custom process runner; used by tests.
func NewRenderServiceWithRunner(cfg config.Config, baseLog *logger.Logger, files FileService, runner ProcessRunner) RenderService {
	return &renderService{
		log:    baseLog.With("service", "RenderService"),
		cfg:    cfg,
		files:  files,
		runner: runner,
	}
}

// qualityFlag maps the coarse tier onto Manim's CLI flag: anything low stays
// on the fast preview profile, everything else renders high.
func qualityFlag(quality string) string {
	if strings.Contains(strings.ToLower(quality), "low") {
		return "-pql"
	}
	return "-pqh"
}

// qualityFolder is the media subdirectory Manim writes for the tier.
func qualityFolder(quality string) string {
	if strings.Contains(strings.ToLower(quality), "low") {
		return "480p15"
	}
	return "1080p60"
}

func (r *renderService) Render(ctx context.Context, scriptPath string, sceneName string, quality string, jobID string) types.RenderResult {
	if quality == "" {
		quality = r.cfg.ManimQuality
	}
	outputFilename := r.files.GenerateUniqueFilename(sceneName, r.cfg.ManimFormat, jobID)
	workDir := filepath.Dir(scriptPath)
	mediaDir := filepath.Join(workDir, "media")

	args := []string{
		"-m", "manim",
		qualityFlag(quality),
		filepath.Base(scriptPath),
		sceneName,
		"-o", outputFilename,
		"--media_dir", mediaDir,
	}

	renderCtx, cancel := context.WithTimeout(ctx, r.cfg.VideoTimeout)
	defer cancel()

	r.log.Info("Starting render", "script", scriptPath, "scene", sceneName, "quality", quality, "job_id", jobID)
	stdout, stderr, exitCode, err := r.runner.Run(renderCtx, workDir, r.cfg.ManimPythonPath, args...)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return types.RenderResult{
				Success: false,
				Error:   fmt.Sprintf("Rendering timed out after %.0f seconds", r.cfg.VideoTimeout.Seconds()),
				Stdout:  stdout,
				Stderr:  stderr,
			}
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return types.RenderResult{
				Success: false,
				Error:   fmt.Sprintf("Python interpreter not found at %q. Check MANIM_PYTHON_PATH.", r.cfg.ManimPythonPath),
			}
		}
		return types.RenderResult{
			Success: false,
			Error:   fmt.Sprintf("Unexpected error during rendering: %v", err),
			Stdout:  stdout,
			Stderr:  stderr,
		}
	}

	if exitCode != 0 {
		return types.RenderResult{
			Success: false,
			Error:   classifyRenderFailure(exitCode, stdout, stderr),
			Stdout:  stdout,
			Stderr:  stderr,
		}
	}

	chosen := r.locateArtifact(mediaDir, scriptPath, quality, outputFilename)
	if chosen == "" {
		return types.RenderResult{
			Success: false,
			Error:   "Video file not found after rendering",
			Stdout:  stdout,
			Stderr:  stderr,
		}
	}

	if err := r.relocate(chosen, outputFilename); err != nil {
		return types.RenderResult{
			Success: false,
			Error:   fmt.Sprintf("Failed to move rendered video: %v", err),
			Stdout:  stdout,
			Stderr:  stderr,
		}
	}

	r.log.Info("Render succeeded", "output", outputFilename)
	return types.RenderResult{
		Success:   true,
		VideoPath: outputFilename,
		VideoURL:  r.files.VideoURL(outputFilename),
		Stdout:    stdout,
		Stderr:    stderr,
	}
}

// locateArtifact first probes the exact path Manim writes by convention,
// then falls back to scanning the whole media tree for the largest plausible
// video. The complete render is the largest artifact when partial attempts
// coexist.
func (r *renderService) locateArtifact(mediaDir, scriptPath, quality, outputFilename string) string {
	scriptStem := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	expected := filepath.Join(mediaDir, "videos", scriptStem, qualityFolder(quality), outputFilename)
	if plausibleVideo(expected) {
		return expected
	}

	var best string
	var bestSize int64
	suffix := "." + r.cfg.ManimFormat
	_ = filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || info.Size() <= minVideoSizeBytes {
			return nil
		}
		if info.Size() > bestSize {
			best = path
			bestSize = info.Size()
		}
		return nil
	})
	if best != "" {
		r.log.Debug("Expected artifact missing, selected largest video in media tree", "path", best, "size", bestSize)
	}
	return best
}

func plausibleVideo(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > minVideoSizeBytes
}

// relocate moves the chosen artifact into the canonical output root under its
// collision-free name, copying when rename crosses filesystems.
func (r *renderService) relocate(src, outputFilename string) error {
	if err := os.MkdirAll(r.cfg.OutputVideosPath, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(r.cfg.OutputVideosPath, outputFilename)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func classifyRenderFailure(exitCode int, stdout, stderr string) string {
	combined := stdout + "\n" + stderr
	if strings.Contains(combined, "No module named manim") || strings.Contains(combined, "No module named 'manim'") {
		return "Manim not found. Please ensure Manim is installed and in PATH."
	}
	if strings.Contains(combined, "No such file or directory") && strings.Contains(combined, "python") {
		return "Python interpreter not found. Check MANIM_PYTHON_PATH."
	}
	return fmt.Sprintf("Manim rendering failed with code %d", exitCode)
}
