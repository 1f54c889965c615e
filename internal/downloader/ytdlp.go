package downloader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/lvcoi/ytdl-batch/internal/ui"
)

// YTDLPEngine drives the yt-dlp executable through go-ytdlp.
type YTDLPEngine struct {
	Executable string
	Printer    *ui.Printer
}

func NewYTDLPEngine(executable string, printer *ui.Printer) *YTDLPEngine {
	return &YTDLPEngine{Executable: executable, Printer: printer}
}

type ytdlpInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Uploader   string `json:"uploader"`
	Channel    string `json:"channel"`
	Ext        string `json:"ext"`
	WebpageURL string `json:"webpage_url"`
}

func (e *YTDLPEngine) Probe(ctx context.Context, link string, s Strategy) (Info, error) {
	cmd := e.command(s).DumpJSON().NoPlaylist()
	res, err := cmd.Run(ctx, link)
	if err != nil {
		return Info{}, e.failure(ctx, link, res, err)
	}

	var raw ytdlpInfo
	if err := json.Unmarshal([]byte(firstJSONLine(res.Stdout)), &raw); err != nil {
		return Info{}, &EngineError{Kind: KindOther, Message: fmt.Sprintf("parsing yt-dlp metadata: %v", err), Err: err}
	}
	info := Info{ID: raw.ID, Title: raw.Title, Uploader: raw.Uploader, Ext: raw.Ext, URL: raw.WebpageURL}
	if info.Uploader == "" {
		info.Uploader = raw.Channel
	}
	return info, nil
}

func (e *YTDLPEngine) Fetch(ctx context.Context, link string, s Strategy, dir string) (string, error) {
	cmd := e.command(s).
		NoPlaylist().
		Output(filepath.Join(dir, "%(title)s.%(ext)s")).
		Print("after_move:filepath").
		NoSimulate()
	res, err := cmd.Run(ctx, link)
	if err != nil {
		return "", e.failure(ctx, link, res, err)
	}
	path := lastLine(res.Stdout)
	if path == "" {
		return "", &EngineError{Kind: KindOther, Message: "yt-dlp did not report an output file", Err: ErrOutputMissing}
	}
	return path, nil
}

// command applies a strategy to a fresh go-ytdlp builder.
func (e *YTDLPEngine) command(s Strategy) *ytdlp.Command {
	cmd := ytdlp.New().NoProgress()
	if e.Executable != "" {
		cmd.SetExecutable(e.Executable)
	}
	if s.Format != "" {
		cmd.Format(s.Format)
	}
	if s.MergeFormat != "" {
		cmd.MergeOutputFormat(s.MergeFormat)
	}
	switch {
	case s.CookieFile != "":
		cmd.Cookies(s.CookieFile)
	case s.Cookies != CookiesNone:
		cmd.CookiesFromBrowser(s.Cookies)
	}
	if s.UserAgent != "" {
		cmd.AddHeaders("User-Agent:" + s.UserAgent)
	}
	keys := make([]string, 0, len(s.Headers))
	for k := range s.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.AddHeaders(k + ":" + s.Headers[k])
	}
	if s.ExtractorArgs != "" {
		cmd.ExtractorArgs(s.ExtractorArgs)
	}
	if s.ForceGeneric {
		cmd.UseExtractors("generic")
	}
	if s.Retries > 0 {
		cmd.ExtractorRetries(strconv.Itoa(s.Retries))
	}
	e.Printer.Logf(ui.LogDebug, "yt-dlp strategy %s", s.Name)
	return cmd
}

func (e *YTDLPEngine) failure(ctx context.Context, link string, res *ytdlp.Result, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	message := ""
	if res != nil {
		message = errorLine(res.Stderr)
	}
	if message == "" {
		message = err.Error()
	}
	return newEngineError(link, message, &ExternalToolFailure{Tool: "yt-dlp", ExitCode: exitCode(res), Stderr: stderrOf(res), Err: err})
}

// errorLine picks the last "ERROR:" line yt-dlp wrote, falling back to the
// last non-empty line.
func errorLine(stderr string) string {
	var last, lastError string
	scanner := bufio.NewScanner(strings.NewReader(stderr))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if strings.HasPrefix(line, "ERROR:") {
			lastError = line
		}
	}
	if lastError != "" {
		return lastError
	}
	return last
}

func firstJSONLine(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") {
			return line
		}
	}
	return strings.TrimSpace(stdout)
}

func lastLine(stdout string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func exitCode(res *ytdlp.Result) int {
	if res == nil {
		return 0
	}
	return res.ExitCode
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	return res.Stderr
}
