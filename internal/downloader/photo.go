package downloader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lvcoi/ytdl-batch/internal/links"
	"github.com/lvcoi/ytdl-batch/internal/media"
	"github.com/lvcoi/ytdl-batch/internal/tools"
)

// PhotoPostFetcher turns a photo carousel into an MP3 of its soundtrack.
type PhotoPostFetcher interface {
	FetchAudio(ctx context.Context, link links.Link) (string, error)
}

var photoMediaExtensions = map[string]bool{
	".mp4": true, ".m4a": true, ".mp3": true, ".wav": true, ".aac": true,
}

// GalleryDL fetches photo posts with gallery-dl and extracts the first
// media file it finds.
type GalleryDL struct {
	Path       string
	Runner     tools.Runner
	Normalizer *media.Normalizer
}

func (g *GalleryDL) FetchAudio(ctx context.Context, link links.Link) (string, error) {
	if err := os.MkdirAll(g.Normalizer.VideoDir, 0o755); err != nil {
		return "", fmt.Errorf("creating video dir: %w", err)
	}
	tmp, err := os.MkdirTemp(g.Normalizer.VideoDir, ".gallery-")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	if _, err := g.Runner.Run(ctx, g.Path, "--dest", tmp, "--write-metadata", link.Canonical); err != nil {
		return "", fmt.Errorf("gallery-dl: %w", err)
	}

	src, err := firstMediaFile(tmp)
	if err != nil {
		return "", err
	}
	if src == "" {
		return "", fmt.Errorf("photo post has no audio track: %w", ErrOutputMissing)
	}

	id := links.VideoID(link.Canonical)
	if id == "" {
		id = uuid.NewString()
	}
	dst := filepath.Join(g.Normalizer.AudioDir, "photo_post_"+id+".mp3")
	return g.Normalizer.ExtractTo(ctx, src, dst)
}

func firstMediaFile(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if photoMediaExtensions[strings.ToLower(filepath.Ext(path))] {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scanning gallery-dl output: %w", err)
	}
	return found, nil
}
