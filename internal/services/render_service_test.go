package services

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/manimstudio-backend/internal/config"
)

// fakeRunner simulates one Manim invocation: it writes the configured
// artifacts into the media tree and returns canned process output.
type fakeRunner struct {
	// artifacts maps a media-relative path template to the payload size in
	// bytes. The token {output} is replaced with the -o filename.
	artifacts map[string]int

	stdout   string
	stderr   string
	exitCode int
	err      error
	delay    time.Duration

	gotArgs []string
	gotDir  string
}

func (f *fakeRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, string, int, error) {
	f.gotArgs = args
	f.gotDir = dir
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", "", -1, ctx.Err()
		}
	}
	if f.err != nil {
		return f.stdout, f.stderr, -1, f.err
	}
	if f.exitCode != 0 {
		return f.stdout, f.stderr, f.exitCode, nil
	}

	// args layout: -m manim <flag> <script> <scene> -o <file> --media_dir <dir>
	outputFilename := args[6]
	mediaDir := args[8]
	for rel, size := range f.artifacts {
		rel = strings.ReplaceAll(rel, "{output}", outputFilename)
		path := filepath.Join(mediaDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", "", -1, err
		}
		if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
			return "", "", -1, err
		}
	}
	return f.stdout, f.stderr, 0, nil
}

func newTestRenderService(t *testing.T, runner ProcessRunner) (RenderService, config.Config, string) {
	t.Helper()
	workDir := t.TempDir()
	cfg := config.Config{
		ManimQuality:     "low_quality",
		ManimFormat:      "mp4",
		ManimPythonPath:  "/usr/bin/python3",
		VideoTimeout:     30 * time.Second,
		OutputVideosPath: filepath.Join(t.TempDir(), "output"),
		MediaPath:        t.TempDir(),
	}
	files := NewFileService(cfg, newTestLogger(t))
	return NewRenderServiceWithRunner(cfg, newTestLogger(t), files, runner), cfg, workDir
}

func writeScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "wave_scene_abc123.py")
	if err := os.WriteFile(path, []byte("from manim import *\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRenderSuccess(t *testing.T) {
	runner := &fakeRunner{
		artifacts: map[string]int{
			"videos/wave_scene_abc123/480p15/{output}": 4096,
		},
		stdout: "File ready",
	}
	svc, cfg, workDir := newTestRenderService(t, runner)
	script := writeScript(t, workDir)

	got := svc.Render(context.Background(), script, "WaveScene", "low", "job42")
	if !got.Success {
		t.Fatalf("Render() failed: %s", got.Error)
	}
	if !strings.HasPrefix(got.VideoPath, "WaveScene_job42_") || !strings.HasSuffix(got.VideoPath, ".mp4") {
		t.Fatalf("unexpected artifact name %q", got.VideoPath)
	}
	if got.VideoURL != "/output/"+got.VideoPath {
		t.Fatalf("VideoURL=%q, want /output/%s", got.VideoURL, got.VideoPath)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputVideosPath, got.VideoPath)); err != nil {
		t.Fatalf("artifact not relocated to output root: %v", err)
	}

	if runner.gotDir != workDir {
		t.Fatalf("subprocess dir=%q, want script dir %q", runner.gotDir, workDir)
	}
	if runner.gotArgs[2] != "-pql" {
		t.Fatalf("quality flag=%q, want -pql for low tier", runner.gotArgs[2])
	}
	if runner.gotArgs[3] != "wave_scene_abc123.py" {
		t.Fatalf("script arg=%q, want bare filename", runner.gotArgs[3])
	}
	if runner.gotArgs[4] != "WaveScene" {
		t.Fatalf("scene arg=%q", runner.gotArgs[4])
	}
}

func TestRenderHighQualityFlag(t *testing.T) {
	runner := &fakeRunner{
		artifacts: map[string]int{
			"videos/wave_scene_abc123/1080p60/{output}": 4096,
		},
	}
	svc, _, workDir := newTestRenderService(t, runner)
	script := writeScript(t, workDir)

	got := svc.Render(context.Background(), script, "WaveScene", "high", "job42")
	if !got.Success {
		t.Fatalf("Render() failed: %s", got.Error)
	}
	if runner.gotArgs[2] != "-pqh" {
		t.Fatalf("quality flag=%q, want -pqh", runner.gotArgs[2])
	}
}

func TestRenderNoArtifactProduced(t *testing.T) {
	runner := &fakeRunner{stdout: "clean exit, nothing written"}
	svc, _, workDir := newTestRenderService(t, runner)
	script := writeScript(t, workDir)

	got := svc.Render(context.Background(), script, "WaveScene", "low", "job42")
	if got.Success {
		t.Fatal("Render() succeeded with no artifact on disk")
	}
	if got.Error != "Video file not found after rendering" {
		t.Fatalf("error=%q, want the artifact-missing message", got.Error)
	}
}

func TestRenderDiscoversLargestArtifact(t *testing.T) {
	// The expected path holds a partial write; a complete render sits in an
	// unconventional location. Discovery must pick the larger file.
	runner := &fakeRunner{
		artifacts: map[string]int{
			"videos/wave_scene_abc123/480p15/{output}": 200,
			"videos/wave_scene_abc123/partial/tmp.mp4": 50000,
		},
	}
	svc, cfg, workDir := newTestRenderService(t, runner)
	script := writeScript(t, workDir)

	got := svc.Render(context.Background(), script, "WaveScene", "low", "job42")
	if !got.Success {
		t.Fatalf("Render() failed: %s", got.Error)
	}
	relocated := filepath.Join(cfg.OutputVideosPath, got.VideoPath)
	info, err := os.Stat(relocated)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 50000 {
		t.Fatalf("relocated artifact is %d bytes, want the 50000-byte render", info.Size())
	}
}

func TestRenderTinyArtifactsRejected(t *testing.T) {
	runner := &fakeRunner{
		artifacts: map[string]int{
			"videos/wave_scene_abc123/480p15/{output}": 200,
			"videos/wave_scene_abc123/partial/tmp.mp4": 300,
		},
	}
	svc, _, workDir := newTestRenderService(t, runner)
	script := writeScript(t, workDir)

	got := svc.Render(context.Background(), script, "WaveScene", "low", "job42")
	if got.Success {
		t.Fatal("Render() accepted an implausibly small artifact")
	}
	if got.Error != "Video file not found after rendering" {
		t.Fatalf("error=%q, want the artifact-missing message", got.Error)
	}
}

func TestRenderTimeout(t *testing.T) {
	workDir := t.TempDir()
	cfg := config.Config{
		ManimFormat:      "mp4",
		ManimPythonPath:  "/usr/bin/python3",
		VideoTimeout:     50 * time.Millisecond,
		OutputVideosPath: filepath.Join(t.TempDir(), "output"),
	}
	files := NewFileService(cfg, newTestLogger(t))
	svc := NewRenderServiceWithRunner(cfg, newTestLogger(t), files, &fakeRunner{delay: time.Second})
	script := writeScript(t, workDir)

	got := svc.Render(context.Background(), script, "WaveScene", "low", "job42")
	if got.Success {
		t.Fatal("Render() succeeded past the deadline")
	}
	if !strings.Contains(got.Error, "timed out") {
		t.Fatalf("error=%q, want a timeout message", got.Error)
	}
}

func TestRenderInterpreterMissing(t *testing.T) {
	runner := &fakeRunner{err: exec.ErrNotFound}
	svc, _, workDir := newTestRenderService(t, runner)
	script := writeScript(t, workDir)

	got := svc.Render(context.Background(), script, "WaveScene", "low", "job42")
	if got.Success {
		t.Fatal("Render() succeeded with a missing interpreter")
	}
	if !strings.Contains(got.Error, "MANIM_PYTHON_PATH") {
		t.Fatalf("error=%q, want an interpreter hint", got.Error)
	}
}

func TestRenderFailureClassification(t *testing.T) {
	cases := []struct {
		name     string
		exitCode int
		stderr   string
		wantPart string
	}{
		{
			name:     "manim_not_installed",
			exitCode: 1,
			stderr:   "ModuleNotFoundError: No module named 'manim'",
			wantPart: "Manim not found",
		},
		{
			name:     "generic_failure",
			exitCode: 7,
			stderr:   "Traceback (most recent call last): boom",
			wantPart: "Manim rendering failed with code 7",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{exitCode: tc.exitCode, stderr: tc.stderr}
			svc, _, workDir := newTestRenderService(t, runner)
			script := writeScript(t, workDir)

			got := svc.Render(context.Background(), script, "WaveScene", "low", "job42")
			if got.Success {
				t.Fatal("Render() succeeded on a failing process")
			}
			if !strings.Contains(got.Error, tc.wantPart) {
				t.Fatalf("error=%q, want it to contain %q", got.Error, tc.wantPart)
			}
			if got.Stderr != tc.stderr {
				t.Fatalf("stderr not propagated: %q", got.Stderr)
			}
		})
	}
}
