package links

import (
	"reflect"
	"strings"
	"testing"
)

func TestDedupe(t *testing.T) {
	input := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"",
		"https://mega.nz/file/AbC#key1",
		"https://youtu.be/dQw4w9WgXcQ?si=share",
		"https://example.com/clip.mp4?session=1",
		"   ",
		"https://example.com/clip.mp4?session=2",
		"https://mega.nz/file/AbC#key2",
		"https://www.tiktok.com/@a/video/99?lang=en",
		"  https://www.tiktok.com/@b/video/99\t",
	}

	unique, dups := Dedupe(input)

	wantUnique := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://mega.nz/file/AbC#key1",
		"https://example.com/clip.mp4?session=1",
		"https://mega.nz/file/AbC#key2",
		"https://www.tiktok.com/@a/video/99?lang=en",
	}
	if !reflect.DeepEqual(unique, wantUnique) {
		t.Fatalf("unique = %#v\nwant %#v", unique, wantUnique)
	}

	wantDups := []Duplicate{
		{Index: 3, Raw: "https://youtu.be/dQw4w9WgXcQ?si=share"},
		{Index: 6, Raw: "https://example.com/clip.mp4?session=2"},
		{Index: 9, Raw: "https://www.tiktok.com/@b/video/99"},
	}
	if !reflect.DeepEqual(dups, wantDups) {
		t.Fatalf("duplicates = %#v\nwant %#v", dups, wantDups)
	}
}

func TestDedupeKeepsEveryDistinctLink(t *testing.T) {
	input := []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"}
	unique, dups := Dedupe(input)
	if len(dups) != 0 {
		t.Fatalf("unexpected duplicates: %v", dups)
	}
	if !reflect.DeepEqual(unique, input) {
		t.Fatalf("unique = %v, want %v", unique, input)
	}
}

func TestDedupeInvalidTikTokComparedVerbatim(t *testing.T) {
	input := []string{
		"https://www.tiktok.com/discover/cats",
		"https://www.tiktok.com/discover/cats",
		"https://www.tiktok.com/discover/dogs",
	}
	unique, dups := Dedupe(input)
	if len(unique) != 2 {
		t.Fatalf("unique = %v, want 2 entries", unique)
	}
	if len(dups) != 1 || dups[0].Index != 1 {
		t.Fatalf("duplicates = %v, want index 1", dups)
	}
}

func TestRead(t *testing.T) {
	body := "\ufeffhttps://a.example/1\n\n# comment\nhttps://a.example/2\r\n"
	lines, err := Read(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	want := []string{"https://a.example/1", "", "", "https://a.example/2"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %#v, want %#v", lines, want)
	}
	unique, _ := Dedupe(lines)
	if len(unique) != 2 || unique[1] != "https://a.example/2" {
		t.Fatalf("Dedupe after Read = %#v", unique)
	}
}
