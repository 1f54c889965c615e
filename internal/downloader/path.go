package downloader

import (
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// sanitize makes a title safe as a file name on every platform.
func sanitize(name string) string {
	clean := strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(name, "_"))
	clean = strings.TrimRight(clean, ". ")
	if clean == "" {
		return "unknown"
	}
	return clean
}
