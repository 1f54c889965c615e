package downloader

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lvcoi/ytdl-batch/internal/links"
)

// Cookie sources understood by yt-dlp's --cookies-from-browser.
const (
	CookiesNone    = ""
	CookiesChrome  = "chrome"
	CookiesFirefox = "firefox"
	CookiesEdge    = "edge"
)

// Engine names.
const (
	EngineYTDLP  = "ytdlp"
	EngineNative = "native"
)

const (
	chromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	firefoxUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0"
	edgeUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// Strategy is one way of asking an engine for a link.
type Strategy struct {
	Name          string
	Format        string
	Cookies       string
	CookieFile    string
	UserAgent     string
	Headers       map[string]string
	ExtractorArgs string
	ForceGeneric  bool
	MergeFormat   string
	Retries       int
	Engine        string
	// Platforms restricts the strategy; empty means every platform.
	Platforms []links.Platform
}

// Applies reports whether the strategy should be tried for platform.
func (s Strategy) Applies(platform links.Platform) bool {
	return len(s.Platforms) == 0 || slices.Contains(s.Platforms, platform)
}

func (s Strategy) engineName() string {
	if s.Engine == "" {
		return EngineYTDLP
	}
	return s.Engine
}

// DefaultStrategies is the fallback order. cookieFile, when set, adds a
// strategy in front that uses it.
func DefaultStrategies(cookieFile string) []Strategy {
	strategies := []Strategy{
		{
			Name:          "auto",
			UserAgent:     chromeUA,
			ExtractorArgs: "tiktok:webpage_download=true",
			MergeFormat:   "mp4",
		},
		{
			Name:          "chrome-cookies",
			Format:        "best[ext=mp4]/best",
			Cookies:       CookiesChrome,
			UserAgent:     chromeUA,
			ExtractorArgs: "tiktok:webpage_download=true;api_hostname=api.tiktokv.com",
			MergeFormat:   "mp4",
		},
		{
			Name:        "mp4-merge",
			Format:      "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			MergeFormat: "mp4",
			Retries:     3,
		},
		{
			Name:        "firefox-cookies",
			Cookies:     CookiesFirefox,
			UserAgent:   firefoxUA,
			MergeFormat: "mp4",
		},
		{
			Name:        "edge-cookies",
			Cookies:     CookiesEdge,
			UserAgent:   edgeUA,
			MergeFormat: "mp4",
		},
		{
			Name:      "native-youtube",
			Engine:    EngineNative,
			Platforms: []links.Platform{links.PlatformYouTube},
		},
		{
			Name:         "generic",
			UserAgent:    googlebotUA,
			ForceGeneric: true,
			MergeFormat:  "mp4",
		},
	}
	if cookieFile != "" {
		strategies = append([]Strategy{{
			Name:        "cookie-file",
			CookieFile:  cookieFile,
			UserAgent:   chromeUA,
			MergeFormat: "mp4",
		}}, strategies...)
	}
	return strategies
}

// SelectStrategies keeps the named strategies in their original order.
func SelectStrategies(all []Strategy, names []string) ([]Strategy, error) {
	if len(names) == 0 {
		return all, nil
	}
	known := make(map[string]bool, len(all))
	for _, s := range all {
		known[s.Name] = true
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !known[name] {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
		wanted[name] = true
	}
	var out []Strategy
	for _, s := range all {
		if wanted[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}
