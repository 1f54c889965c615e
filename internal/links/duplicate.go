package links

import "strings"

// Duplicate is an input line dropped because an earlier line had the same
// comparison key. Index is the position in the slice passed to Dedupe, so
// for ReadFile output it is the zero-based line number. Raw is the trimmed
// link.
type Duplicate struct {
	Index int
	Raw   string
}

// Dedupe drops blank lines and later duplicates, keeping first-seen order.
func Dedupe(raw []string) ([]string, []Duplicate) {
	seen := make(map[string]struct{}, len(raw))
	unique := make([]string, 0, len(raw))
	var duplicates []Duplicate

	for i, line := range raw {
		link := strings.TrimSpace(line)
		if link == "" {
			continue
		}
		key := duplicateKey(link)
		if _, ok := seen[key]; ok {
			duplicates = append(duplicates, Duplicate{Index: i, Raw: link})
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, link)
	}
	return unique, duplicates
}

// duplicateKey is the form two links are compared by. YouTube and TikTok
// links compare canonically; anything else drops a trailing query unless it
// carries a fragment (MEGA keys live in the fragment).
func duplicateKey(link string) string {
	switch DetectPlatform(link) {
	case PlatformYouTube, PlatformTikTok:
		normalized, err := Normalize(link)
		if err != nil {
			return link
		}
		return normalized.Canonical
	}
	if strings.Contains(link, "#") {
		return link
	}
	if i := strings.Index(link, "?"); i >= 0 {
		return link[:i]
	}
	return link
}
