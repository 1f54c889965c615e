package links

import (
	"errors"
	"testing"
)

func TestNormalizeYouTube(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain watch", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "tracking params", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123&t=42s", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "double question mark", input: "https://www.youtube.com/watch??v=dQw4w9WgXcQ", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "stray question mark after id", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQ?si=abcdef", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "many question marks and stray", input: "https://youtube.com/watch???v=dQw4w9WgXcQ?feature=share", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "eleven char id wins over longer run", input: "https://www.youtube.com/watch?v=dQw4w9WgXcQextra", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "short id falls to second pattern", input: "https://www.youtube.com/watch?v=abc123", want: "https://youtube.com/watch?v=abc123"},
		{name: "v not first param", input: "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "youtu.be", input: "https://youtu.be/dQw4w9WgXcQ?si=xyz", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "youtu.be ampersand", input: "https://youtu.be/dQw4w9WgXcQ&t=1", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "shorts", input: "https://www.youtube.com/shorts/dQw4w9WgXcQ", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "music", input: "https://music.youtube.com/watch?v=dQw4w9WgXcQ&si=1", want: "https://youtube.com/watch?v=dQw4w9WgXcQ"},
		{name: "channel page unchanged", input: "https://www.youtube.com/@someone", want: "https://www.youtube.com/@someone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.input, err)
			}
			if got.Platform != PlatformYouTube {
				t.Fatalf("Normalize(%q) platform = %q, want youtube", tt.input, got.Platform)
			}
			if got.Canonical != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got.Canonical, tt.want)
			}
			if got.Raw != tt.input {
				t.Fatalf("Normalize(%q) changed Raw to %q", tt.input, got.Raw)
			}
		})
	}
}

func TestNormalizeTikTok(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "https://www.tiktok.com/@someone/video/7234567890123456789?is_from_webapp=1", want: "https://www.tiktok.com/@user/video/7234567890123456789"},
		{input: "https://m.tiktok.com/v/video/123", want: "https://www.tiktok.com/@user/video/123"},
		{input: "https://vm.tiktok.com/ZMabc123/", want: "https://vm.tiktok.com/ZMabc123/"},
		{input: "https://vt.tiktok.com/ZSabc123/", want: "https://vt.tiktok.com/ZSabc123/"},
		{input: "https://www.tiktok.com/t/ZTabc123/", want: "https://www.tiktok.com/t/ZTabc123/"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.input)
		if err != nil {
			t.Fatalf("Normalize(%q) unexpected error: %v", tt.input, err)
		}
		if got.Canonical != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got.Canonical, tt.want)
		}
	}
}

func TestNormalizeTikTokRejectsNonVideoPages(t *testing.T) {
	inputs := []string{
		"https://www.tiktok.com/discover/funny-cats",
		"https://www.tiktok.com/browse/video/123",
		"https://www.tiktok.com/explore/",
		"https://www.tiktok.com/trending/?lang=en",
	}
	for _, input := range inputs {
		got, err := Normalize(input)
		if err == nil {
			t.Fatalf("Normalize(%q) = %q, expected InvalidLinkError", input, got.Canonical)
		}
		var invalid *InvalidLinkError
		if !errors.As(err, &invalid) {
			t.Fatalf("Normalize(%q) error %T, want *InvalidLinkError", input, err)
		}
		if got.Canonical != input {
			t.Fatalf("Normalize(%q) returned rewritten link %q on error", input, got.Canonical)
		}
	}
}

func TestNormalizeOtherLinksUnchanged(t *testing.T) {
	inputs := []string{
		"https://mega.nz/file/AbCdEf#key-material",
		"https://example.com/video.mp4?token=1",
		"not a url at all",
	}
	for _, input := range inputs {
		got, err := Normalize(input)
		if err != nil {
			t.Fatalf("Normalize(%q) unexpected error: %v", input, err)
		}
		if got.Canonical != input {
			t.Fatalf("Normalize(%q) = %q, want unchanged", input, got.Canonical)
		}
	}
}

func TestDetectPlatform(t *testing.T) {
	tests := map[string]Platform{
		"https://www.youtube.com/watch?v=x": PlatformYouTube,
		"https://youtu.be/x":                PlatformYouTube,
		"https://vm.tiktok.com/abc":         PlatformTikTok,
		"https://mega.nz/file/abc#def":      PlatformMEGA,
		"https://MEGA.NZ/folder/abc#def":    PlatformMEGA,
		"https://vimeo.com/1":               PlatformUnknown,
		"youtube.com/watch?v=x":             PlatformYouTube,
	}
	for input, want := range tests {
		if got := DetectPlatform(input); got != want {
			t.Errorf("DetectPlatform(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestVideoID(t *testing.T) {
	tests := map[string]string{
		"https://www.tiktok.com/@user/video/123":    "123",
		"https://www.tiktok.com/@someone/photo/456": "456",
		"https://youtube.com/watch?v=dQw4w9WgXcQ":   "dQw4w9WgXcQ",
		"https://mega.nz/file/abc#def":              "",
	}
	for input, want := range tests {
		if got := VideoID(input); got != want {
			t.Errorf("VideoID(%q) = %q, want %q", input, got, want)
		}
	}
}
