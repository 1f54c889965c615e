package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lvcoi/ytdl-batch/internal/tools"
	"github.com/lvcoi/ytdl-batch/internal/ui"
)

// Normalizer keeps the video and audio directories in their canonical
// shape: one <base>.mp4 per video and one <base>.mp3 next to it in the
// audio directory.
type Normalizer struct {
	VideoDir string
	AudioDir string
	Encoder  Encoder
	Printer  *ui.Printer
}

// Placed is where Place left a file.
type Placed struct {
	Video string
	Audio string
	Kind  Kind
}

// AudioPathFor is the MP3 that pairs with video.
func (n *Normalizer) AudioPathFor(video string) string {
	return filepath.Join(n.AudioDir, BaseName(video)+".mp3")
}

// EnsureMP4 leaves src at dst as an MP4. An .mp4 source is renamed; any
// other container is transcoded and the source removed once dst exists.
func (n *Normalizer) EnsureMP4(ctx context.Context, src, dst string) (string, error) {
	if strings.EqualFold(filepath.Ext(src), ".mp4") {
		if src == dst {
			return dst, nil
		}
		if err := moveFile(src, dst); err != nil {
			return "", fmt.Errorf("moving %s into place: %w", src, err)
		}
		return dst, nil
	}

	n.Printer.Logf(ui.LogInfo, "re-encoding %s to MP4", filepath.Base(src))
	if err := encodeInto(dst, func(tmp string) error { return n.Encoder.Transcode(ctx, src, tmp) }); err != nil {
		return "", fmt.Errorf("transcoding %s: %w", src, err)
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		n.Printer.Logf(ui.LogWarn, "warning: could not remove %s: %v", src, err)
	}
	return dst, nil
}

// EnsureMP3 extracts the audio of video unless its MP3 already exists.
func (n *Normalizer) EnsureMP3(ctx context.Context, video string) (string, error) {
	return n.ExtractTo(ctx, video, n.AudioPathFor(video))
}

// ExtractTo extracts the audio of src into dst. An existing dst is returned
// without touching the encoder.
func (n *Normalizer) ExtractTo(ctx context.Context, src, dst string) (string, error) {
	if fileExists(dst) {
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating audio dir: %w", err)
	}
	if err := encodeInto(dst, func(tmp string) error { return n.Encoder.ExtractAudio(ctx, src, tmp) }); err != nil {
		return "", fmt.Errorf("extracting audio from %s: %w", src, err)
	}
	return dst, nil
}

// encodeInto runs encode against a partial name next to dst and renames it
// into place only once encode succeeded. dst never holds a half-written file.
func encodeInto(dst string, encode func(tmp string) error) error {
	tmp := partialPath(dst)
	if err := encode(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if !fileExists(tmp) {
		return tools.ErrOutputMissing
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// partialPath keeps the extension of dst so ffmpeg still picks the
// container from it.
func partialPath(dst string) string {
	ext := filepath.Ext(dst)
	return strings.TrimSuffix(dst, ext) + ".part" + ext
}

func isPartial(name string) bool {
	return strings.HasSuffix(BaseName(name), ".part")
}

// Place routes a file produced outside the strategy downloader into the
// layout. Video ends up as MP4 plus MP3, audio as MP3 in the audio
// directory. Content that cannot be identified stays where it is.
func (n *Normalizer) Place(ctx context.Context, path string) (Placed, error) {
	kind := ClassifyPath(path)
	if kind == KindUnknown {
		sniffed, err := Sniff(path)
		if err != nil {
			return Placed{}, err
		}
		kind = sniffed.Kind
		if kind == KindUnknown {
			if sniffed.LooksEncrypted {
				n.Printer.Logf(ui.LogWarn, "warning: %s looks encrypted (%s); kept as is", filepath.Base(path), sniffed.MIME)
			} else {
				n.Printer.Logf(ui.LogWarn, "warning: unrecognised file %s (%s); kept as is", filepath.Base(path), sniffed.MIME)
			}
			return Placed{Video: path, Kind: KindUnknown}, nil
		}
	}

	switch kind {
	case KindVideo:
		video, err := n.EnsureMP4(ctx, path, filepath.Join(n.VideoDir, BaseName(path)+".mp4"))
		if err != nil {
			return Placed{}, err
		}
		audio, err := n.EnsureMP3(ctx, video)
		if err != nil {
			return Placed{Video: video, Kind: kind}, err
		}
		return Placed{Video: video, Audio: audio, Kind: kind}, nil
	default:
		audio, err := n.placeAudio(ctx, path)
		if err != nil {
			return Placed{}, err
		}
		return Placed{Audio: audio, Kind: KindAudio}, nil
	}
}

func (n *Normalizer) placeAudio(ctx context.Context, src string) (string, error) {
	dst := filepath.Join(n.AudioDir, BaseName(src)+".mp3")
	switch {
	case fileExists(dst):
	case strings.EqualFold(filepath.Ext(src), ".mp3"):
		if err := moveFile(src, dst); err != nil {
			return "", fmt.Errorf("moving %s to audio dir: %w", src, err)
		}
		return dst, nil
	default:
		if _, err := n.ExtractTo(ctx, src, dst); err != nil {
			return "", err
		}
	}
	if src != dst {
		if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			return dst, fmt.Errorf("removing %s: %w", src, err)
		}
	}
	return dst, nil
}

// Cleanup moves every audio-extension file out of the video directory:
// an .mp3 is moved, anything else converted, and a file whose MP3 already
// exists is simply deleted.
//
// Partial encoder outputs left by a killed run are removed first.
func (n *Normalizer) Cleanup(ctx context.Context) error {
	return errors.Join(n.removePartials(), n.sweep(ctx, KindAudio, func(path string) error {
		dst := filepath.Join(n.AudioDir, BaseName(path)+".mp3")
		existed := fileExists(dst)
		if _, err := n.placeAudio(ctx, path); err != nil {
			return err
		}
		if existed {
			n.Printer.Logf(ui.LogInfo, "removed %s (MP3 already present)", filepath.Base(path))
		} else {
			n.Printer.Logf(ui.LogInfo, "moved %s to %s", filepath.Base(path), dst)
		}
		return nil
	}))
}

func (n *Normalizer) removePartials() error {
	var errs []error
	for _, dir := range []string{n.VideoDir, n.AudioDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, fmt.Errorf("reading %s: %w", dir, err))
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !isPartial(entry.Name()) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			n.Printer.Logf(ui.LogInfo, "removed unfinished %s", entry.Name())
		}
	}
	return errors.Join(errs...)
}

// Backfill extracts an MP3 for every video that lacks one.
func (n *Normalizer) Backfill(ctx context.Context) error {
	return n.sweep(ctx, KindVideo, func(path string) error {
		if fileExists(n.AudioPathFor(path)) {
			return nil
		}
		audio, err := n.EnsureMP3(ctx, path)
		if err != nil {
			return err
		}
		n.Printer.Logf(ui.LogInfo, "backfilled %s", filepath.Base(audio))
		return nil
	})
}

func (n *Normalizer) sweep(ctx context.Context, kind Kind, fn func(path string) error) error {
	entries, err := os.ReadDir(n.VideoDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading video dir: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || isPartial(entry.Name()) || ClassifyPath(entry.Name()) != kind {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		path := filepath.Join(n.VideoDir, entry.Name())
		if err := fn(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	in.Close()
	return os.Remove(src)
}
