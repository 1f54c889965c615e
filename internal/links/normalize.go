package links

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Platform identifies which service a link points at.
type Platform string

const (
	PlatformYouTube Platform = "youtube"
	PlatformTikTok  Platform = "tiktok"
	PlatformMEGA    Platform = "mega"
	PlatformUnknown Platform = "unknown"
)

// Link is one input line after normalization.
type Link struct {
	Raw       string
	Platform  Platform
	Canonical string
}

func (l Link) String() string {
	return l.Canonical
}

// InvalidLinkError reports a link whose shape can never be downloaded,
// such as a TikTok discovery page.
type InvalidLinkError struct {
	Link   string
	Reason string
}

func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("invalid link %q: %s", e.Link, e.Reason)
}

var tiktokNonVideoMarkers = []string{"/discover/", "/browse/", "/explore/", "/trending/"}

var (
	tiktokVideoIDRegex = regexp.MustCompile(`/video/(\d+)`)
	tiktokPhotoIDRegex = regexp.MustCompile(`/photo/(\d+)`)
	repeatedQueryRegex = regexp.MustCompile(`\?\?+`)
	strayQueryRegex    = regexp.MustCompile(`(\?v=[^&?]+)\?`)
	youtuBeRegex       = regexp.MustCompile(`youtu\.be/([^?&]+)`)
	shortsRegex        = regexp.MustCompile(`youtube\.com/(?:shorts|live)/([A-Za-z0-9_-]+)`)

	// Tried in order; the first match decides the video ID.
	youtubeIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`/watch\?v=([A-Za-z0-9_-]+)`),
	}
)

// DetectPlatform classifies a raw link by host, falling back to substring
// checks when the text does not parse as a URL.
func DetectPlatform(raw string) Platform {
	if parsed, err := url.Parse(strings.TrimSpace(raw)); err == nil && parsed.Host != "" {
		host := normalizeHostname(parsed)
		switch {
		case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
			return PlatformTikTok
		case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
			return PlatformYouTube
		case host == "mega.nz" || host == "mega.co.nz":
			return PlatformMEGA
		}
		return PlatformUnknown
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "tiktok.com"):
		return PlatformTikTok
	case strings.Contains(lower, "youtube.com") || strings.Contains(lower, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(lower, "mega.nz"):
		return PlatformMEGA
	}
	return PlatformUnknown
}

// Normalize rewrites a raw link into its canonical form. Links that match no
// platform rule come back unchanged.
func Normalize(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	link := Link{Raw: raw, Platform: DetectPlatform(raw), Canonical: raw}

	switch link.Platform {
	case PlatformTikTok:
		canonical, err := normalizeTikTok(raw)
		if err != nil {
			return link, err
		}
		link.Canonical = canonical
	case PlatformYouTube:
		link.Canonical = normalizeYouTube(raw)
	}
	return link, nil
}

func normalizeTikTok(raw string) (string, error) {
	for _, marker := range tiktokNonVideoMarkers {
		if strings.Contains(raw, marker) {
			return "", &InvalidLinkError{
				Link:   raw,
				Reason: "browse/discovery page, not a video (use a link like https://www.tiktok.com/@username/video/1234567890123456789)",
			}
		}
	}
	if m := tiktokVideoIDRegex.FindStringSubmatch(raw); m != nil {
		return "https://www.tiktok.com/@user/video/" + m[1], nil
	}
	// vm./vt. short links and /t/ links are resolved by the extraction engine.
	return raw, nil
}

func normalizeYouTube(raw string) string {
	switch {
	case strings.Contains(raw, "youtube.com/watch"):
		fixed := repeatedQueryRegex.ReplaceAllString(raw, "?")
		fixed = strayQueryRegex.ReplaceAllString(fixed, "${1}&")
		for _, pattern := range youtubeIDPatterns {
			if m := pattern.FindStringSubmatch(fixed); m != nil {
				return watchURLForID(m[1])
			}
		}
	case strings.Contains(raw, "youtu.be/"):
		if m := youtuBeRegex.FindStringSubmatch(raw); m != nil {
			return watchURLForID(m[1])
		}
	default:
		if m := shortsRegex.FindStringSubmatch(raw); m != nil {
			return watchURLForID(m[1])
		}
	}
	return raw
}

// normalizeHostname returns the lowercase hostname without "www." and port.
func normalizeHostname(parsed *url.URL) string {
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func watchURLForID(id string) string {
	return "https://youtube.com/watch?v=" + id
}

// IsPhotoPost reports whether a link points at a TikTok photo post.
func IsPhotoPost(raw string) bool {
	return strings.Contains(raw, "/photo/")
}

// VideoID returns the trailing numeric TikTok ID or the YouTube ID of a
// canonical link, or "" when there is none.
func VideoID(canonical string) string {
	if m := tiktokVideoIDRegex.FindStringSubmatch(canonical); m != nil {
		return m[1]
	}
	if m := tiktokPhotoIDRegex.FindStringSubmatch(canonical); m != nil {
		return m[1]
	}
	if m := youtubeIDPatterns[1].FindStringSubmatch(canonical); m != nil {
		return m[1]
	}
	return ""
}
