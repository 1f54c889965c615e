package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/lvcoi/ytdl-batch/internal/links"
	"github.com/lvcoi/ytdl-batch/internal/media"
)

type fakeEngine struct {
	title   string
	ext     string
	probeFn func(s Strategy) error
	fetchFn func(s Strategy) error
	probes  []string
	fetches []string
}

func (f *fakeEngine) Probe(_ context.Context, _ string, s Strategy) (Info, error) {
	f.probes = append(f.probes, s.Name)
	if f.probeFn != nil {
		if err := f.probeFn(s); err != nil {
			return Info{}, err
		}
	}
	return Info{Title: f.title, Uploader: "uploader"}, nil
}

func (f *fakeEngine) Fetch(_ context.Context, _ string, s Strategy, dir string) (string, error) {
	f.fetches = append(f.fetches, s.Name)
	if f.fetchFn != nil {
		if err := f.fetchFn(s); err != nil {
			return "", err
		}
	}
	ext := f.ext
	if ext == "" {
		ext = ".webm"
	}
	path := filepath.Join(dir, "raw"+ext)
	return path, os.WriteFile(path, []byte("video"), 0o644)
}

type fakeEncoder struct {
	calls int
	fail  error
	// partial makes a failing Transcode leave half an output behind.
	partial bool
}

func (f *fakeEncoder) Transcode(_ context.Context, _, dst string) error {
	f.calls++
	if f.fail != nil {
		if f.partial {
			if err := os.WriteFile(dst, []byte("half"), 0o644); err != nil {
				return err
			}
		}
		return f.fail
	}
	return os.WriteFile(dst, []byte("mp4"), 0o644)
}

func (f *fakeEncoder) ExtractAudio(_ context.Context, _, dst string) error {
	f.calls++
	if f.fail != nil {
		return f.fail
	}
	return os.WriteFile(dst, []byte("mp3"), 0o644)
}

type fakePhoto struct {
	calls int
	err   error
	dir   string
}

func (f *fakePhoto) FetchAudio(_ context.Context, _ links.Link) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, "photo_post_1.mp3")
	return path, os.WriteFile(path, []byte("mp3"), 0o644)
}

func strategies(names ...string) []Strategy {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		out = append(out, Strategy{Name: name})
	}
	return out
}

func newTestDownloader(t *testing.T, engine Engine, names ...string) (*Downloader, *fakeEncoder) {
	t.Helper()
	root := t.TempDir()
	enc := &fakeEncoder{}
	n := &media.Normalizer{VideoDir: filepath.Join(root, "Videos"), AudioDir: filepath.Join(root, "Audio"), Encoder: enc}
	for _, dir := range []string{n.VideoDir, n.AudioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	return &Downloader{
		Strategies: strategies(names...),
		Engines:    map[string]Engine{EngineYTDLP: engine},
		Normalizer: n,
	}, enc
}

func youtubeLink() links.Link {
	return links.Link{Raw: "https://youtu.be/dQw4w9WgXcQ", Canonical: "https://youtube.com/watch?v=dQw4w9WgXcQ", Platform: links.PlatformYouTube}
}

func TestDownloadFallsBackAfterAuthFailure(t *testing.T) {
	engine := &fakeEngine{title: "My: Video", probeFn: func(s Strategy) error {
		if s.Name == "first" {
			return &EngineError{Kind: KindAuth, Message: "ERROR: Sign in to confirm you're not a bot"}
		}
		return nil
	}}
	d, _ := newTestDownloader(t, engine, "first", "second", "third")

	res, err := d.Download(context.Background(), youtubeLink())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.Strategy != "second" {
		t.Fatalf("Strategy = %q, want second", res.Strategy)
	}
	if !reflect.DeepEqual(engine.probes, []string{"first", "second"}) {
		t.Fatalf("probes = %v, third strategy must not run", engine.probes)
	}
	wantVideo := filepath.Join(d.Normalizer.VideoDir, "My_ Video.mp4")
	if res.Video != wantVideo {
		t.Fatalf("Video = %q, want %q", res.Video, wantVideo)
	}
	if res.Audio != filepath.Join(d.Normalizer.AudioDir, "My_ Video.mp3") {
		t.Fatalf("Audio = %q", res.Audio)
	}
	if _, err := os.Stat(filepath.Join(d.Normalizer.VideoDir, "raw.webm")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("re-encoded source not removed")
	}
}

func TestDownloadMP4IsRenamedNotTranscoded(t *testing.T) {
	engine := &fakeEngine{title: "Clip", ext: ".mp4"}
	d, enc := newTestDownloader(t, engine, "only")

	res, err := d.Download(context.Background(), youtubeLink())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.Ext != ".mp4" {
		t.Fatalf("Ext = %q", res.Ext)
	}
	if enc.calls != 1 {
		t.Fatalf("encoder calls = %d, want audio extraction only", enc.calls)
	}
}

func TestDownloadUnsupportedStopsImmediately(t *testing.T) {
	engine := &fakeEngine{probeFn: func(Strategy) error {
		return &EngineError{Kind: KindUnsupported, Message: "ERROR: Unsupported URL: https://example.com/x"}
	}}
	d, _ := newTestDownloader(t, engine, "first", "second")

	_, err := d.Download(context.Background(), links.Link{Raw: "https://example.com/x", Canonical: "https://example.com/x"})
	var unsupported *UnsupportedURLError
	if !errors.As(err, &unsupported) {
		t.Fatalf("err = %T %v, want *UnsupportedURLError", err, err)
	}
	if CategoryOf(err) != CategoryUnsupported {
		t.Fatalf("category = %q", CategoryOf(err))
	}
	if len(engine.probes) != 1 {
		t.Fatalf("probes = %v, later strategies must not run", engine.probes)
	}
}

func TestDownloadPhotoPost(t *testing.T) {
	photoErr := &EngineError{Kind: KindUnsupported, Message: "ERROR: Unsupported URL: https://www.tiktok.com/@u/photo/123"}
	link := links.Link{Raw: "https://www.tiktok.com/@u/photo/123", Canonical: "https://www.tiktok.com/@u/photo/123", Platform: links.PlatformTikTok}

	t.Run("success", func(t *testing.T) {
		engine := &fakeEngine{probeFn: func(Strategy) error { return photoErr }}
		d, _ := newTestDownloader(t, engine, "first", "second")
		photo := &fakePhoto{dir: d.Normalizer.AudioDir}
		d.Photo = photo

		res, err := d.Download(context.Background(), link)
		if err != nil {
			t.Fatalf("Download: %v", err)
		}
		if !res.PhotoPost || photo.calls != 1 || len(engine.probes) != 1 {
			t.Fatalf("res = %+v, photo calls = %d, probes = %v", res, photo.calls, engine.probes)
		}
	})

	t.Run("failure aborts", func(t *testing.T) {
		engine := &fakeEngine{probeFn: func(Strategy) error { return photoErr }}
		d, _ := newTestDownloader(t, engine, "first", "second")
		d.Photo = &fakePhoto{err: errors.New("gallery-dl exited with status 1")}

		_, err := d.Download(context.Background(), link)
		var unsupported *UnsupportedURLError
		if !errors.As(err, &unsupported) {
			t.Fatalf("err = %v, want *UnsupportedURLError", err)
		}
		if len(engine.probes) != 1 {
			t.Fatalf("probes = %v", engine.probes)
		}
	})

	t.Run("gallery-dl missing", func(t *testing.T) {
		engine := &fakeEngine{probeFn: func(Strategy) error {
			return &EngineError{Kind: KindPhotoPost, Message: "unsupported url (photo)"}
		}}
		d, _ := newTestDownloader(t, engine, "first")

		_, err := d.Download(context.Background(), link)
		if !errors.Is(err, ErrPhotoPostUnavailable) {
			t.Fatalf("err = %v, want ErrPhotoPostUnavailable", err)
		}
	})
}

func TestDownloadAllStrategiesExhausted(t *testing.T) {
	tests := []struct {
		name     string
		kind     ErrorKind
		category Category
	}{
		{name: "mixed", kind: KindOther, category: CategoryExhausted},
		{name: "all auth", kind: KindAuth, category: CategoryAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{probeFn: func(s Strategy) error {
				return &EngineError{Kind: tt.kind, Message: "ERROR: " + s.Name + " failed"}
			}}
			d, _ := newTestDownloader(t, engine, "a", "b", "c")

			_, err := d.Download(context.Background(), youtubeLink())
			var exhausted *AllStrategiesExhaustedError
			if !errors.As(err, &exhausted) {
				t.Fatalf("err = %v, want *AllStrategiesExhaustedError", err)
			}
			if len(exhausted.Failures) != 3 || exhausted.Failures[2].Strategy != "c" {
				t.Fatalf("failures = %v", exhausted.Failures)
			}
			if CategoryOf(err) != tt.category {
				t.Fatalf("category = %q, want %q", CategoryOf(err), tt.category)
			}
		})
	}
}

func TestDownloadSkipsExistingPair(t *testing.T) {
	engine := &fakeEngine{title: "Done"}
	d, enc := newTestDownloader(t, engine, "only")
	video := filepath.Join(d.Normalizer.VideoDir, "Done.mp4")
	audio := filepath.Join(d.Normalizer.AudioDir, "Done.mp3")
	for _, p := range []string{video, audio} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	before, _ := os.Stat(audio)

	res, err := d.Download(context.Background(), youtubeLink())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !res.Skipped || res.Video != video || res.Audio != audio {
		t.Fatalf("res = %+v", res)
	}
	if len(engine.fetches) != 0 || enc.calls != 0 {
		t.Fatalf("fetches = %v, encoder calls = %d, want none", engine.fetches, enc.calls)
	}
	after, _ := os.Stat(audio)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("existing MP3 was rewritten")
	}
}

func TestDownloadSkippedVideoStillGetsMP3(t *testing.T) {
	engine := &fakeEngine{title: "Half"}
	d, enc := newTestDownloader(t, engine, "only")
	if err := os.WriteFile(filepath.Join(d.Normalizer.VideoDir, "Half.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := d.Download(context.Background(), youtubeLink())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !res.Skipped || enc.calls != 1 {
		t.Fatalf("res = %+v, encoder calls = %d", res, enc.calls)
	}
}

func TestDownloadPostProcessFailureIsNotRetried(t *testing.T) {
	engine := &fakeEngine{title: "Broken"}
	d, enc := newTestDownloader(t, engine, "a", "b")
	enc.fail = &ExternalToolFailure{Tool: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found"}

	_, err := d.Download(context.Background(), youtubeLink())
	if CategoryOf(err) != CategoryTool {
		t.Fatalf("err = %v (category %q), want tool failure", err, CategoryOf(err))
	}
	if len(engine.probes) != 1 {
		t.Fatalf("probes = %v, want no second strategy", engine.probes)
	}
}

func TestDownloadRetriesAfterInterruptedTranscode(t *testing.T) {
	engine := &fakeEngine{title: "Clip"}
	d, enc := newTestDownloader(t, engine, "s1")
	enc.fail = &ExternalToolFailure{Tool: "ffmpeg", ExitCode: 1, Stderr: "Conversion failed!"}
	enc.partial = true

	if _, err := d.Download(context.Background(), youtubeLink()); err == nil {
		t.Fatalf("first Download succeeded, want the encoder failure")
	}
	dst := filepath.Join(d.Normalizer.VideoDir, "Clip.mp4")
	if _, err := os.Stat(dst); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("half-written %s kept after failure", dst)
	}

	enc.fail = nil
	res, err := d.Download(context.Background(), youtubeLink())
	if err != nil {
		t.Fatalf("second Download: %v", err)
	}
	if res.Skipped || !reflect.DeepEqual(engine.fetches, []string{"s1", "s1"}) {
		t.Fatalf("res = %+v, fetches = %v, want a fresh download", res, engine.fetches)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "mp4" {
		t.Fatalf("video = %q, %v", data, err)
	}
}

func TestDownloadPlatformFilter(t *testing.T) {
	engine := &fakeEngine{probeFn: func(Strategy) error { return &EngineError{Kind: KindOther, Message: "nope"} }}
	d, _ := newTestDownloader(t, engine)
	d.Strategies = []Strategy{
		{Name: "yt-only", Platforms: []links.Platform{links.PlatformYouTube}},
		{Name: "any"},
	}
	link := links.Link{Raw: "https://www.tiktok.com/@user/video/1", Canonical: "https://www.tiktok.com/@user/video/1", Platform: links.PlatformTikTok}
	_, _ = d.Download(context.Background(), link)
	if !reflect.DeepEqual(engine.probes, []string{"any"}) {
		t.Fatalf("probes = %v, want only the unrestricted strategy", engine.probes)
	}
}

func TestDownloadCancelled(t *testing.T) {
	engine := &fakeEngine{}
	d, _ := newTestDownloader(t, engine, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Download(ctx, youtubeLink())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(engine.probes) != 0 {
		t.Fatalf("engine called after cancellation")
	}
}

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		link    string
		message string
		want    ErrorKind
	}{
		{"https://youtube.com/watch?v=x", "ERROR: [youtube] x: Sign in to confirm you're not a bot", KindAuth},
		{"https://youtube.com/watch?v=x", "ERROR: requires authentication", KindAuth},
		{"https://youtube.com/watch?v=x", "use --cookies-from-browser", KindAuth},
		{"https://www.tiktok.com/@u/photo/1", "ERROR: Unsupported URL: https://www.tiktok.com/@u/photo/1", KindPhotoPost},
		{"https://vm.tiktok.com/abc", "ERROR: Unsupported URL: https://www.tiktok.com/@u/photo/1", KindPhotoPost},
		{"https://example.com/page", "ERROR: Unsupported URL: https://example.com/page", KindUnsupported},
		{"https://youtube.com/watch?v=x", "ERROR: HTTP Error 403: Forbidden", KindOther},
	}
	for _, tt := range tests {
		if got := classifyMessage(tt.link, tt.message); got != tt.want {
			t.Errorf("classifyMessage(%q, %q) = %s, want %s", tt.link, tt.message, got, tt.want)
		}
	}
}

func TestDefaultStrategies(t *testing.T) {
	names := func(list []Strategy) []string {
		var out []string
		for _, s := range list {
			out = append(out, s.Name)
		}
		return out
	}
	want := []string{"auto", "chrome-cookies", "mp4-merge", "firefox-cookies", "edge-cookies", "native-youtube", "generic"}
	if got := names(DefaultStrategies("")); !reflect.DeepEqual(got, want) {
		t.Fatalf("DefaultStrategies = %v", got)
	}
	withFile := DefaultStrategies("/tmp/cookies.txt")
	if withFile[0].Name != "cookie-file" || withFile[0].CookieFile != "/tmp/cookies.txt" {
		t.Fatalf("cookie-file strategy not first: %+v", withFile[0])
	}
	last := withFile[len(withFile)-1]
	if !last.ForceGeneric || last.UserAgent != googlebotUA {
		t.Fatalf("generic strategy = %+v", last)
	}

	picked, err := SelectStrategies(DefaultStrategies(""), []string{"generic", "auto"})
	if err != nil {
		t.Fatalf("SelectStrategies: %v", err)
	}
	if got := names(picked); !reflect.DeepEqual(got, []string{"auto", "generic"}) {
		t.Fatalf("SelectStrategies kept %v, want default order", got)
	}
	if _, err := SelectStrategies(DefaultStrategies(""), []string{"nope"}); err == nil {
		t.Fatal("expected unknown strategy error")
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		`a/b\c:d*e?f"g<h>i|j`: "a_b_c_d_e_f_g_h_i_j",
		"  spaced  ":          "spaced",
		"":                    "unknown",
		"dots...":             "dots",
	}
	for in, want := range tests {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestYTDLPOutputParsing(t *testing.T) {
	stderr := "WARNING: [youtube] falling back\nERROR: [youtube] x: Sign in to confirm you're not a bot\nsome trailer\n"
	if got := errorLine(stderr); got != "ERROR: [youtube] x: Sign in to confirm you're not a bot" {
		t.Fatalf("errorLine = %q", got)
	}
	if got := errorLine("only a warning\n\n"); got != "only a warning" {
		t.Fatalf("errorLine fallback = %q", got)
	}
	if got := lastLine("[download] 100%\n/media/Videos/clip.webm\n\n"); got != "/media/Videos/clip.webm" {
		t.Fatalf("lastLine = %q", got)
	}
	if got := firstJSONLine("WARNING: x\n{\"id\":\"abc\"}\n"); got != `{"id":"abc"}` {
		t.Fatalf("firstJSONLine = %q", got)
	}
}
