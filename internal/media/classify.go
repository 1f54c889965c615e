package media

import (
	"path/filepath"
	"strings"
)

// Kind is the coarse type of a media file, judged by extension.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mkv": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".aac": true,
	".ogg": true, ".m4a": true, ".wma": true, ".opus": true,
}

// Classify maps an extension (with or without the dot, any case) to a Kind.
func Classify(ext string) Kind {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	switch {
	case videoExtensions[ext]:
		return KindVideo
	case audioExtensions[ext]:
		return KindAudio
	default:
		return KindUnknown
	}
}

// ClassifyPath is Classify on the extension of path.
func ClassifyPath(path string) Kind {
	return Classify(filepath.Ext(path))
}

// BaseName strips the directory and extension from path.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
