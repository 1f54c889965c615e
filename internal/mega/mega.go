package mega

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lvcoi/ytdl-batch/internal/media"
	"github.com/lvcoi/ytdl-batch/internal/tools"
	"github.com/lvcoi/ytdl-batch/internal/ui"
)

// DefaultTimeout caps a single megatools transfer.
const DefaultTimeout = 5 * time.Minute

// ErrUnavailable is returned when megatools was not found.
var ErrUnavailable = errors.New("MEGA links need megatools, which was not found")

// Client downloads MEGA.nz links with `megatools dl`.
type Client struct {
	Path       string
	Runner     tools.Runner
	Normalizer *media.Normalizer
	Timeout    time.Duration
	Printer    *ui.Printer
}

// Result lists what a transfer produced after placement.
type Result struct {
	// Primary is the main file: the MP4 for video, otherwise the MP3.
	Primary string
	Video   string
	Audio   string
	Files   []media.Placed
}

func (c *Client) Download(ctx context.Context, link string) (Result, error) {
	if c == nil || c.Path == "" {
		return Result{}, ErrUnavailable
	}
	dir := c.Normalizer.VideoDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating video dir: %w", err)
	}

	watch, err := watchDir(dir)
	if err != nil {
		c.Printer.Logf(ui.LogDebug, "not watching %s: %v", dir, err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	out, runErr := c.Runner.Run(runCtx, c.Path, "dl", "--path", dir, "--print-names", link)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	var created []string
	if watch != nil {
		created = watch.Stop()
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if timedOut {
			return Result{}, fmt.Errorf("megatools gave up after %s: %w", timeout, runErr)
		}
		return Result{}, runErr
	}

	files := resolveOutputs(dir, string(out.Stdout), created)
	if len(files) == 0 {
		return Result{}, fmt.Errorf("megatools finished without a file we could find: %w", tools.ErrOutputMissing)
	}

	var result Result
	var errs []error
	for _, file := range files {
		placed, err := c.Normalizer.Place(ctx, file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(file), err))
			continue
		}
		result.Files = append(result.Files, placed)
		if result.Primary == "" {
			result.Video = placed.Video
			result.Audio = placed.Audio
			result.Primary = placed.Video
			if result.Primary == "" {
				result.Primary = placed.Audio
			}
		}
	}
	if result.Primary == "" {
		return result, errors.Join(errs...)
	}
	for _, err := range errs {
		c.Printer.Logf(ui.LogWarn, "warning: %v", err)
	}
	return result, nil
}

// resolveOutputs finds what megatools wrote: the names it printed, then the
// files the watcher saw appear, then the newest video in dir.
func resolveOutputs(dir, stdout string, created []string) []string {
	if files := printedNames(dir, stdout); len(files) > 0 {
		return files
	}
	if len(created) > 0 {
		return created
	}
	if newest := newestVideo(dir); newest != "" {
		return []string{newest}
	}
	return nil
}

func printedNames(dir, stdout string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		for _, candidate := range []string{name, filepath.Join(dir, name), filepath.Join(dir, filepath.Base(name))} {
			info, err := os.Stat(candidate)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			candidate = filepath.Clean(candidate)
			if !seen[candidate] {
				seen[candidate] = true
				files = append(files, candidate)
			}
			break
		}
	}
	return files
}

// newestVideo is a best-effort guess: the most recently modified file with
// a video extension.
func newestVideo(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || media.ClassifyPath(entry.Name()) != media.KindVideo {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	return newest
}
