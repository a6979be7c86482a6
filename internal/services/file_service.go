package services

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/manimstudio-backend/internal/config"
	"github.com/yungbote/manimstudio-backend/internal/logger"
)

// qualityDirs is the fixed probe order inside a scene's media directory,
// lowest tier first.
var qualityDirs = []string{"480p15", "720p30", "1080p60"}

// SampleVideo is one pre-rendered artifact found under the media root.
type SampleVideo struct {
	Name string
	Path string
	URL  string
}

// FileService owns the on-disk layout: persisted generated scripts, the
// media root of pre-rendered samples and the output root of fresh renders.
// Scene names are model-generated free text, so existing-artifact lookup is
// deliberately fuzzy about case and separators.
type FileService interface {
	SaveGeneratedScript(code string, className string) (string, error)
	CheckExistingVideo(sceneName string) string
	VideoURL(videoPath string) string
	GenerateUniqueFilename(baseName, extension, jobID string) string
	ListSampleVideos() []SampleVideo
	CleanupOldFiles(maxAge time.Duration)
}

type fileService struct {
	log *logger.Logger
	cfg config.Config
}

func NewFileService(cfg config.Config, baseLog *logger.Logger) FileService {
	return &fileService{
		log: baseLog.With("service", "FileService"),
		cfg: cfg,
	}
}

func (f *fileService) SaveGeneratedScript(code string, className string) (string, error) {
	if err := os.MkdirAll(f.cfg.GeneratedScriptsPath, 0o755); err != nil {
		return "", fmt.Errorf("create scripts dir: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.py", className, uuid.New().String()[:8])
	path := filepath.Join(f.cfg.GeneratedScriptsPath, filename)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	f.log.Debug("Saved generated script", "path", path)
	return path, nil
}

var camelBoundary1 = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
var camelBoundary2 = regexp.MustCompile(`([a-z0-9])([A-Z])`)

func camelToSnake(name string) string {
	s := camelBoundary1.ReplaceAllString(name, `${1}_${2}`)
	s = camelBoundary2.ReplaceAllString(s, `${1}_${2}`)
	return strings.ToLower(s)
}

// CheckExistingVideo returns the media-relative path of a pre-rendered video
// for the scene, or "" when none exists. Matching tries, in order: exact
// snake_case, exact case-folded, then substring containment either way.
// A missing media root is "no artifact", never an error.
func (f *fileService) CheckExistingVideo(sceneName string) string {
	videosRoot := filepath.Join(f.cfg.MediaPath, "videos")
	entries, err := os.ReadDir(videosRoot)
	if err != nil {
		return ""
	}

	sceneSnake := camelToSnake(sceneName)
	sceneLower := strings.ToLower(sceneName)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, dirName := range names {
		dirLower := strings.ToLower(dirName)
		if dirLower != sceneSnake &&
			dirLower != sceneLower &&
			!strings.Contains(dirLower, sceneLower) &&
			!strings.Contains(sceneLower, dirLower) {
			continue
		}
		for _, quality := range qualityDirs {
			qualityPath := filepath.Join(videosRoot, dirName, quality)
			files, err := os.ReadDir(qualityPath)
			if err != nil {
				continue
			}
			videoNames := make([]string, 0, len(files))
			for _, file := range files {
				if !file.IsDir() && strings.HasSuffix(file.Name(), ".mp4") {
					videoNames = append(videoNames, file.Name())
				}
			}
			sort.Strings(videoNames)
			if len(videoNames) > 0 {
				return filepath.ToSlash(filepath.Join("videos", dirName, quality, videoNames[0]))
			}
		}
	}
	return ""
}

// VideoURL maps a storage reference to the externally mounted prefix. Fresh
// renders live flat under the output root; everything else is a media-root
// sample served from /static.
func (f *fileService) VideoURL(videoPath string) string {
	if strings.HasSuffix(videoPath, ".mp4") && !strings.HasPrefix(videoPath, "videos/") {
		return "/output/" + videoPath
	}
	return "/static/" + videoPath
}

func (f *fileService) GenerateUniqueFilename(baseName, extension, jobID string) string {
	uniqueID := uuid.New().String()[:8]
	if jobID != "" {
		return fmt.Sprintf("%s_%s_%s.%s", baseName, jobID, uniqueID, extension)
	}
	return fmt.Sprintf("%s_%s.%s", baseName, uniqueID, extension)
}

func (f *fileService) ListSampleVideos() []SampleVideo {
	videosRoot := filepath.Join(f.cfg.MediaPath, "videos")
	entries, err := os.ReadDir(videosRoot)
	if err != nil {
		return nil
	}

	var samples []SampleVideo
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, dirName := range names {
		for _, quality := range qualityDirs {
			qualityPath := filepath.Join(videosRoot, dirName, quality)
			files, err := os.ReadDir(qualityPath)
			if err != nil {
				continue
			}
			found := false
			for _, file := range files {
				if file.IsDir() || !strings.HasSuffix(file.Name(), ".mp4") {
					continue
				}
				videoPath := filepath.ToSlash(filepath.Join("videos", dirName, quality, file.Name()))
				samples = append(samples, SampleVideo{
					Name: dirName,
					Path: videoPath,
					URL:  f.VideoURL(videoPath),
				})
				found = true
				break
			}
			if found {
				break
			}
		}
	}
	return samples
}

// CleanupOldFiles drops generated scripts and output videos older than
// maxAge. Samples under the media root are never touched.
func (f *fileService) CleanupOldFiles(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	f.removeOlderThan(f.cfg.GeneratedScriptsPath, ".py", cutoff)
	f.removeOlderThan(f.cfg.OutputVideosPath, "."+f.cfg.ManimFormat, cutoff)
}

func (f *fileService) removeOlderThan(dir, suffix string, cutoff time.Time) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				f.log.Warn("Failed to remove old file", "path", path, "error", err)
			} else {
				f.log.Debug("Removed old file", "path", path)
			}
		}
	}
}
