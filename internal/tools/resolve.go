package tools

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Set holds the resolved executables for one run. Optional tools that were
// not found are left empty.
type Set struct {
	FFmpeg    string
	YTDLP     string
	Megatools string
	GalleryDL string
}

// Paths are the user-configured locations; empty means search.
type Paths struct {
	FFmpeg    string
	YTDLP     string
	Megatools string
	GalleryDL string
}

// ErrNotFound is wrapped by every resolution failure.
var ErrNotFound = errors.New("executable not found")

// Resolve finds each tool once. ffmpeg and yt-dlp are required; megatools
// and gallery-dl are optional and only reported through the returned
// warnings.
func Resolve(paths Paths) (Set, []string, error) {
	var set Set
	var errs []error
	var warnings []string

	var err error
	if set.FFmpeg, err = Find("ffmpeg", paths.FFmpeg); err != nil {
		errs = append(errs, err)
	}
	if set.YTDLP, err = Find("yt-dlp", paths.YTDLP); err != nil {
		errs = append(errs, err)
	}
	if set.Megatools, err = Find("megatools", paths.Megatools); err != nil {
		warnings = append(warnings, fmt.Sprintf("megatools unavailable, MEGA links will fail: %v", err))
	}
	if set.GalleryDL, err = Find("gallery-dl", paths.GalleryDL); err != nil {
		warnings = append(warnings, fmt.Sprintf("gallery-dl unavailable, TikTok photo posts will fail: %v", err))
	}
	return set, warnings, errors.Join(errs...)
}

// Find resolves name: the configured path first, then PATH, then a bin/
// directory next to the running executable, then ./bin.
func Find(name, configured string) (string, error) {
	if configured != "" {
		if path, err := exec.LookPath(configured); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%s at %q: %w", name, configured, ErrNotFound)
	}
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	for _, dir := range binDirs() {
		candidate := filepath.Join(dir, exeName(name))
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

func binDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Join(filepath.Dir(exe), "bin"))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(wd, "bin"))
	}
	return dirs
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
