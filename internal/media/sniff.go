package media

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffResult describes a file whose extension told us nothing.
type SniffResult struct {
	Kind Kind
	MIME string
	// LooksEncrypted is a guess from header byte variety, only set when
	// content detection found nothing. It is not verified.
	LooksEncrypted bool
}

const headerProbeSize = 16

// Sniff inspects the content of path.
func Sniff(path string) (SniffResult, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return SniffResult{}, fmt.Errorf("sniffing %s: %w", path, err)
	}
	result := SniffResult{MIME: mt.String()}
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "video/"):
			result.Kind = KindVideo
		case strings.HasPrefix(m.String(), "audio/"):
			result.Kind = KindAudio
		}
		if result.Kind != KindUnknown {
			return result, nil
		}
	}
	if mt.Is("application/octet-stream") {
		encrypted, err := highByteVariety(path)
		if err != nil {
			return result, err
		}
		result.LooksEncrypted = encrypted
	}
	return result, nil
}

func highByteVariety(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("sniffing %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, headerProbeSize)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, fmt.Errorf("sniffing %s: %w", path, err)
	}
	seen := make(map[byte]struct{}, n)
	for _, b := range header[:n] {
		seen[b] = struct{}{}
	}
	return len(seen) > 8, nil
}
