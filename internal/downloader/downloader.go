package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvcoi/ytdl-batch/internal/links"
	"github.com/lvcoi/ytdl-batch/internal/media"
	"github.com/lvcoi/ytdl-batch/internal/ui"
)

// Result describes one finished link.
type Result struct {
	Video    string
	Audio    string
	Ext      string
	Title    string
	Uploader string
	Strategy string
	// Skipped means the MP4 already existed and nothing was fetched.
	Skipped   bool
	PhotoPost bool
}

// Downloader walks the strategy list for a single link until one works.
type Downloader struct {
	Strategies []Strategy
	Engines    map[string]Engine
	Normalizer *media.Normalizer
	// Photo is nil when gallery-dl is unavailable.
	Photo   PhotoPostFetcher
	Printer *ui.Printer
	// Status, when set, receives short progress notes.
	Status func(text string)
}

// postProcessError marks a failure after the engine succeeded. It is not
// retried with another strategy.
type postProcessError struct {
	err error
}

func (e *postProcessError) Error() string { return e.err.Error() }
func (e *postProcessError) Unwrap() error { return e.err }

func (d *Downloader) Download(ctx context.Context, link links.Link) (Result, error) {
	var failures []*StrategyFailure
	applicable := d.applicable(link.Platform)

	for i, s := range applicable {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		engine := d.Engines[s.engineName()]
		if engine == nil {
			d.Printer.Logf(ui.LogDebug, "skipping strategy %s: engine %q not configured", s.Name, s.engineName())
			continue
		}
		d.status(fmt.Sprintf("strategy %d/%d: %s", i+1, len(applicable), s.Name))

		result, err := d.attempt(ctx, engine, link, s)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		var post *postProcessError
		if errors.As(err, &post) {
			return result, wrapCategory(categoryForPostProcess(post.err), post.err)
		}

		kind := kindOf(err)
		if kind == KindUnsupported && strings.Contains(link.Raw, "/photo/") {
			kind = KindPhotoPost
		}
		switch kind {
		case KindPhotoPost:
			return d.photoPost(ctx, link, err)
		case KindUnsupported:
			return Result{}, wrapCategory(CategoryUnsupported, &UnsupportedURLError{Link: link.Raw, Reason: err.Error(), Err: err})
		}

		failures = append(failures, &StrategyFailure{Strategy: s.Name, Kind: kind, Err: err})
		d.Printer.Logf(ui.LogWarn, "strategy %s failed: %s", s.Name, firstLine(err.Error()))
	}

	exhausted := &AllStrategiesExhaustedError{Link: link.Raw, Failures: failures}
	return Result{}, wrapCategory(exhaustedCategory(failures), exhausted)
}

func (d *Downloader) applicable(platform links.Platform) []Strategy {
	out := make([]Strategy, 0, len(d.Strategies))
	for _, s := range d.Strategies {
		if s.Applies(platform) {
			out = append(out, s)
		}
	}
	return out
}

func (d *Downloader) attempt(ctx context.Context, engine Engine, link links.Link, s Strategy) (Result, error) {
	info, err := engine.Probe(ctx, link.Canonical, s)
	if err != nil {
		return Result{}, err
	}
	title := sanitize(info.Title)
	dst := filepath.Join(d.Normalizer.VideoDir, title+".mp4")
	result := Result{Video: dst, Ext: ".mp4", Title: info.Title, Uploader: info.Uploader, Strategy: s.Name}

	if fileExists(dst) {
		result.Skipped = true
		audio, err := d.ensureAudio(ctx, dst, info, link)
		result.Audio = audio
		if err != nil {
			return result, &postProcessError{err: err}
		}
		return result, nil
	}

	d.status(fmt.Sprintf("%s: downloading %s", s.Name, info.Title))
	path, err := engine.Fetch(ctx, link.Canonical, s, d.Normalizer.VideoDir)
	if err != nil {
		return Result{}, err
	}
	result.Ext = strings.ToLower(filepath.Ext(path))

	if result.Ext != ".mp4" {
		d.status(fmt.Sprintf("re-encoding %s", filepath.Base(path)))
	}
	video, err := d.Normalizer.EnsureMP4(ctx, path, dst)
	if err != nil {
		return result, &postProcessError{err: err}
	}
	result.Video = video

	d.status("extracting audio")
	audio, err := d.ensureAudio(ctx, video, info, link)
	result.Audio = audio
	if err != nil {
		return result, &postProcessError{err: err}
	}
	return result, nil
}

// ensureAudio extracts and tags the MP3 for video. An MP3 that already
// existed is left untouched.
func (d *Downloader) ensureAudio(ctx context.Context, video string, info Info, link links.Link) (string, error) {
	target := d.Normalizer.AudioPathFor(video)
	existed := fileExists(target)
	audio, err := d.Normalizer.EnsureMP3(ctx, video)
	if err != nil || existed {
		return audio, err
	}
	tags := media.Tags{Title: info.Title, Artist: info.Uploader, Comment: link.Raw}
	if err := media.Tag(audio, tags); err != nil {
		d.Printer.Logf(ui.LogWarn, "warning: tagging %s failed: %v", filepath.Base(audio), err)
	}
	return audio, nil
}

func (d *Downloader) photoPost(ctx context.Context, link links.Link, cause error) (Result, error) {
	if d.Photo == nil {
		return Result{}, wrapCategory(CategoryUnsupported, &UnsupportedURLError{
			Link:   link.Raw,
			Reason: "photo post: " + ErrPhotoPostUnavailable.Error(),
			Err:    errors.Join(ErrPhotoPostUnavailable, cause),
		})
	}
	d.status("photo post: extracting audio")
	d.Printer.Log(ui.LogInfo, "photo post detected, extracting its audio with gallery-dl")
	audio, err := d.Photo.FetchAudio(ctx, link)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, wrapCategory(CategoryUnsupported, &UnsupportedURLError{
			Link:   link.Raw,
			Reason: "photo post audio extraction failed: " + firstLine(err.Error()),
			Err:    err,
		})
	}
	return Result{Audio: audio, Ext: filepath.Ext(audio), Title: media.BaseName(audio), Strategy: "gallery-dl", PhotoPost: true}, nil
}

func (d *Downloader) status(text string) {
	if d.Status != nil {
		d.Status(text)
	}
	d.Printer.Log(ui.LogDebug, text)
}

func kindOf(err error) ErrorKind {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Kind
	}
	return KindOther
}

func exhaustedCategory(failures []*StrategyFailure) Category {
	if len(failures) == 0 {
		return CategoryExhausted
	}
	for _, f := range failures {
		if f.Kind != KindAuth {
			return CategoryExhausted
		}
	}
	return CategoryAuth
}

func categoryForPostProcess(err error) Category {
	var tool *ExternalToolFailure
	switch {
	case errors.Is(err, ErrOutputMissing):
		return CategoryFilesystem
	case errors.As(err, &tool):
		return CategoryTool
	default:
		return CategoryFilesystem
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
