package downloader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lvcoi/ytdl-batch/internal/links"
	"github.com/lvcoi/ytdl-batch/internal/media"
	"github.com/lvcoi/ytdl-batch/internal/mega"
)

// Extractor handles the links it matches.
type Extractor interface {
	Name() string
	Match(link links.Link) bool
	Process(ctx context.Context, link links.Link) (Result, error)
}

// MEGADownloader is satisfied by *mega.Client.
type MEGADownloader interface {
	Download(ctx context.Context, link string) (mega.Result, error)
}

type megaExtractor struct {
	client MEGADownloader
}

func (e megaExtractor) Name() string {
	return "mega"
}

func (e megaExtractor) Match(link links.Link) bool {
	return link.Platform == links.PlatformMEGA
}

func (e megaExtractor) Process(ctx context.Context, link links.Link) (Result, error) {
	if e.client == nil {
		return Result{}, wrapCategory(CategoryTool, mega.ErrUnavailable)
	}
	res, err := e.client.Download(ctx, link.Raw)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, wrapCategory(CategoryOf(err), fmt.Errorf("MEGA download failed: %w", err))
	}
	return Result{
		Video:    res.Video,
		Audio:    res.Audio,
		Ext:      filepath.Ext(res.Primary),
		Title:    media.BaseName(res.Primary),
		Strategy: "megatools",
	}, nil
}

type videoExtractor struct {
	downloader *Downloader
}

func (e videoExtractor) Name() string {
	return "video"
}

func (e videoExtractor) Match(link links.Link) bool {
	return link.Platform != links.PlatformMEGA
}

func (e videoExtractor) Process(ctx context.Context, link links.Link) (Result, error) {
	return e.downloader.Download(ctx, link)
}

// Router sends each link to the first extractor that matches it.
type Router struct {
	extractors []Extractor
}

// NewRouter dispatches MEGA links to client and everything else to d.
// client may be nil when megatools is unavailable.
func NewRouter(d *Downloader, client MEGADownloader) *Router {
	return &Router{extractors: []Extractor{
		megaExtractor{client: client},
		videoExtractor{downloader: d},
	}}
}

func (r *Router) Process(ctx context.Context, link links.Link) (Result, error) {
	for _, extractor := range r.extractors {
		if extractor.Match(link) {
			return extractor.Process(ctx, link)
		}
	}
	return Result{}, wrapCategory(CategoryUnsupported, &UnsupportedURLError{Link: link.Raw, Reason: "no extractor matches"})
}
