package media

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/lvcoi/ytdl-batch/internal/tools"
)

// Encoder converts media files. Implementations must only write dst.
type Encoder interface {
	Transcode(ctx context.Context, src, dst string) error
	ExtractAudio(ctx context.Context, src, dst string) error
}

// VideoCodec is an H.264 encoder and the hwaccel that feeds it.
type VideoCodec struct {
	Name    string
	HWAccel string
}

var softwareCodec = VideoCodec{Name: "libx264"}

// FFmpeg runs ffmpeg through a tools.Runner. The hardware encoder is probed
// on first use and cached for the rest of the process.
type FFmpeg struct {
	Path    string
	Runner  tools.Runner
	Timeout time.Duration

	once  sync.Once
	codec VideoCodec
}

func NewFFmpeg(path string, runner tools.Runner, timeout time.Duration) *FFmpeg {
	return &FFmpeg{Path: path, Runner: runner, Timeout: timeout}
}

// Codec returns the probed video encoder.
func (f *FFmpeg) Codec(ctx context.Context) VideoCodec {
	f.once.Do(func() {
		out, err := f.Runner.Run(ctx, f.Path, "-hide_banner", "-encoders")
		if err != nil {
			f.codec = softwareCodec
			return
		}
		f.codec = pickCodec(string(out.Stdout)+string(out.Stderr), runtime.GOOS)
	})
	return f.codec
}

func (f *FFmpeg) Transcode(ctx context.Context, src, dst string) error {
	codec := f.Codec(ctx)
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()
	if _, err := f.Runner.Run(ctx, f.Path, transcodeArgs(src, dst, codec)...); err != nil {
		return fmt.Errorf("transcoding %s with %s: %w", src, codec.Name, err)
	}
	return nil
}

func (f *FFmpeg) ExtractAudio(ctx context.Context, src, dst string) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()
	if _, err := f.Runner.Run(ctx, f.Path, extractAudioArgs(src, dst)...); err != nil {
		return fmt.Errorf("extracting audio from %s: %w", src, err)
	}
	return nil
}

func (f *FFmpeg) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout > 0 {
		return context.WithTimeout(ctx, f.Timeout)
	}
	return context.WithCancel(ctx)
}

// pickCodec prefers NVENC, then AMF, then QSV, then software x264.
func pickCodec(encoders, goos string) VideoCodec {
	switch {
	case strings.Contains(encoders, "h264_nvenc"):
		return VideoCodec{Name: "h264_nvenc", HWAccel: "cuda"}
	case strings.Contains(encoders, "h264_amf"):
		if goos == "windows" {
			return VideoCodec{Name: "h264_amf", HWAccel: "dxva2"}
		}
		return VideoCodec{Name: "h264_amf", HWAccel: "auto"}
	case strings.Contains(encoders, "h264_qsv"):
		return VideoCodec{Name: "h264_qsv", HWAccel: "qsv"}
	default:
		return softwareCodec
	}
}

func transcodeArgs(src, dst string, codec VideoCodec) []string {
	input := ffmpeg.KwArgs{}
	if codec.HWAccel != "" {
		input["hwaccel"] = codec.HWAccel
	}
	return ffmpeg.Input(src, input).
		Output(dst, ffmpeg.KwArgs{
			"c:v":     codec.Name,
			"preset":  "medium",
			"b:v":     "2000k",
			"maxrate": "4000k",
			"bufsize": "8000k",
			"g":       "60",
			"c:a":     "aac",
			"b:a":     "128k",
		}).
		OverWriteOutput().
		GetArgs()
}

func extractAudioArgs(src, dst string) []string {
	return ffmpeg.Input(src).
		Output(dst, ffmpeg.KwArgs{"q:a": "0", "map": "a"}).
		OverWriteOutput().
		GetArgs()
}
