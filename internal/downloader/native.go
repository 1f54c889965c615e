package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kkdai/youtube/v2"
)

// YouTubeClient is the part of *youtube.Client the native engine needs.
type YouTubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

var _ YouTubeClient = (*youtube.Client)(nil)

// NativeEngine talks to YouTube directly with kkdai/youtube. It only
// handles progressive MP4 formats, which keeps it free of ffmpeg.
type NativeEngine struct {
	Client YouTubeClient
}

func NewNativeEngine(timeout time.Duration) *NativeEngine {
	youtube.DefaultClient = youtube.AndroidClient
	httpClient := &http.Client{
		Transport: newRetryTransport(http.DefaultTransport, defaultRetryPolicy),
		Timeout:   timeout,
	}
	return &NativeEngine{Client: &youtube.Client{HTTPClient: httpClient}}
}

func (e *NativeEngine) Probe(ctx context.Context, link string, _ Strategy) (Info, error) {
	video, err := e.Client.GetVideoContext(ctx, link)
	if err != nil {
		return Info{}, e.failure(ctx, link, "fetching metadata", err)
	}
	return Info{ID: video.ID, Title: video.Title, Uploader: video.Author, Ext: "mp4", URL: link}, nil
}

func (e *NativeEngine) Fetch(ctx context.Context, link string, _ Strategy, dir string) (string, error) {
	video, err := e.Client.GetVideoContext(ctx, link)
	if err != nil {
		return "", e.failure(ctx, link, "fetching metadata", err)
	}
	formats := video.Formats.WithAudioChannels().Type("video/mp4")
	if len(formats) == 0 {
		return "", &EngineError{Kind: KindOther, Message: "no progressive MP4 format with audio"}
	}
	formats.Sort()
	format := &formats[0]

	stream, _, err := e.Client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", e.failure(ctx, link, "opening stream", err)
	}
	defer stream.Close()

	out := filepath.Join(dir, sanitize(video.Title)+".mp4")
	tmp := out + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, stream); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", e.failure(ctx, link, "downloading stream", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, out); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return out, nil
}

func (e *NativeEngine) failure(ctx context.Context, link, action string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	engineErr := newEngineError(link, fmt.Sprintf("%s: %v", action, err), err)
	if errors.Is(err, youtube.ErrLoginRequired) {
		engineErr.Kind = KindAuth
	}
	return engineErr
}
