package db

import (
	"strings"
)

// Media types stored in the catalog.
const (
	MediaMusic = "music"
	MediaShort = "short"
	MediaVideo = "video"
)

// ClassifyMediaType picks a catalog media type from what a finished link
// looked like.
//
// Logic matrix:
//   - Music: the link is on music.youtube.com, the uploader is a
//     " - Topic" channel, or only audio was produced
//   - Short: TikTok links and YouTube /shorts/ links
//   - Video: fallback for everything else
func ClassifyMediaType(rawLink, platform, uploader string, hasVideo bool) string {
	if strings.Contains(rawLink, "music.youtube.com") {
		return MediaMusic
	}
	if strings.HasSuffix(strings.TrimSpace(uploader), " - Topic") {
		return MediaMusic
	}
	if !hasVideo {
		return MediaMusic
	}
	if strings.EqualFold(platform, "tiktok") || strings.Contains(rawLink, "/shorts/") {
		return MediaShort
	}
	return MediaVideo
}
