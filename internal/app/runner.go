package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lvcoi/ytdl-batch/internal/db"
	"github.com/lvcoi/ytdl-batch/internal/downloader"
	"github.com/lvcoi/ytdl-batch/internal/links"
	"github.com/lvcoi/ytdl-batch/internal/media"
	"github.com/lvcoi/ytdl-batch/internal/ui"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailures    = 1
	ExitSetup       = 2
	ExitInterrupted = 130
)

// DefaultSweepGrace bounds the final sweeps after an interrupt.
const DefaultSweepGrace = 30 * time.Second

const errorLogSeparator = "-----------------------------------------"

// Processor handles one normalized link. *downloader.Router satisfies it.
type Processor interface {
	Process(ctx context.Context, link links.Link) (downloader.Result, error)
}

// Catalog is the part of *db.DB the driver needs.
type Catalog interface {
	Lookup(canonical string) (db.MediaRecord, bool, error)
	Record(record db.MediaRecord) (int64, error)
}

// Progress receives per-link progress. *ui.ProgressManager satisfies it.
type Progress interface {
	Begin(index, total int, label string)
	Finish(ok bool)
}

// Deps is everything a batch run needs.
type Deps struct {
	LinksFile  string
	ErrorLog   string
	Pause      time.Duration
	SweepGrace time.Duration

	Processor  Processor
	Normalizer *media.Normalizer
	// Catalog and Progress are optional.
	Catalog  Catalog
	Progress Progress
	Printer  *ui.Printer
}

// Failure is one link that could not be processed.
type Failure struct {
	Link     string
	Reason   string
	Category downloader.Category
}

// Report summarizes a batch run.
type Report struct {
	RunID       string
	Total       int
	Succeeded   int
	Skipped     int
	Bytes       int64
	Duplicates  []links.Duplicate
	Failures    []Failure
	Interrupted bool
	// ErrorLog is the path written, empty when every link succeeded.
	ErrorLog string
	// SweepErr joins the per-file errors of the final sweeps.
	SweepErr error
	// SweepOnly marks a Backfill report, where sweep errors are failures.
	SweepOnly bool
}

// ExitCode maps the report onto the process exit status.
func (r Report) ExitCode() int {
	switch {
	case r.Interrupted:
		return ExitInterrupted
	case len(r.Failures) > 0, r.SweepOnly && r.SweepErr != nil:
		return ExitFailures
	default:
		return ExitOK
	}
}

// Run processes every unique link of the links file in order. The returned
// error is only set for setup problems; per-link failures land in the
// report and the error log.
func Run(ctx context.Context, deps Deps) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	printer := deps.Printer
	n := deps.Normalizer

	for _, dir := range []string{n.VideoDir, n.AudioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return report, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := n.Cleanup(ctx); err != nil {
		printer.Logf(ui.LogWarn, "warning: cleanup: %v", err)
	}

	lines, err := links.ReadFile(deps.LinksFile)
	if err != nil {
		return report, err
	}
	unique, duplicates := links.Dedupe(lines)
	report.Duplicates = duplicates
	report.Total = len(unique)
	for _, dup := range duplicates {
		printer.Logf(ui.LogInfo, "duplicate link on line %d skipped: %s", dup.Index+1, dup.Raw)
	}
	if len(unique) == 0 {
		printer.Logf(ui.LogWarn, "no links found in %s", deps.LinksFile)
	}

	for i, raw := range unique {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		if !processLink(ctx, deps, &report, i+1, raw) {
			report.Interrupted = true
			break
		}
		if i < len(unique)-1 && !pause(ctx, deps.Pause) {
			report.Interrupted = true
			break
		}
	}

	sweepCtx := ctx
	if ctx.Err() != nil {
		grace := deps.SweepGrace
		if grace <= 0 {
			grace = DefaultSweepGrace
		}
		var cancel context.CancelFunc
		sweepCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), grace)
		defer cancel()
		printer.Log(ui.LogWarn, "interrupted, tidying up the output folders")
	}
	report.SweepErr = errors.Join(n.Cleanup(sweepCtx), n.Backfill(sweepCtx))
	if report.SweepErr != nil {
		printer.Logf(ui.LogWarn, "warning: final sweep: %v", report.SweepErr)
	}

	if len(report.Failures) > 0 {
		if err := writeErrorLog(deps.ErrorLog, report.Failures); err != nil {
			printer.Logf(ui.LogError, "error: writing %s: %v", deps.ErrorLog, err)
		} else {
			report.ErrorLog = deps.ErrorLog
			printer.Logf(ui.LogWarn, "%d link(s) failed, see %s", len(report.Failures), deps.ErrorLog)
		}
	} else if !report.Interrupted {
		printer.Log(ui.LogInfo, "All downloads are complete!")
	}

	printer.Summary(report.Total, report.Succeeded, len(report.Failures), report.Skipped, report.Bytes)
	return report, nil
}

// Backfill runs only the sweeps: stray audio leaves the video directory and
// every video without an MP3 gets one. No links file is read.
func Backfill(ctx context.Context, deps Deps) (Report, error) {
	report := Report{RunID: uuid.NewString(), SweepOnly: true}
	n := deps.Normalizer
	for _, dir := range []string{n.VideoDir, n.AudioDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return report, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	report.SweepErr = errors.Join(n.Cleanup(ctx), n.Backfill(ctx))
	report.Interrupted = ctx.Err() != nil
	if report.SweepErr != nil {
		deps.Printer.Logf(ui.LogWarn, "warning: sweep: %v", report.SweepErr)
	} else if !report.Interrupted {
		deps.Printer.Log(ui.LogInfo, "Every video has its MP3.")
	}
	return report, nil
}

// processLink reports false when the run was interrupted during the link.
func processLink(ctx context.Context, deps Deps, report *Report, index int, raw string) bool {
	printer := deps.Printer
	prefix := printer.Prefix(index, report.Total, raw)
	deps.progressBegin(index, report.Total, raw)

	link, err := links.Normalize(raw)
	if err != nil {
		report.fail(raw, err)
		printer.ItemResult(prefix, "", err)
		deps.progressFinish(false)
		return true
	}

	if rec, ok := deps.cached(link); ok {
		report.Succeeded++
		report.Skipped++
		printer.ItemSkipped(prefix, "already downloaded: "+rec.Title)
		deps.progressFinish(true)
		return true
	}

	res, err := deps.Processor.Process(ctx, link)
	if err != nil {
		if ctx.Err() != nil {
			deps.progressFinish(false)
			return false
		}
		report.fail(raw, err)
		printer.ItemResult(prefix, "", err)
		deps.progressFinish(false)
		return true
	}

	report.Succeeded++
	size := fileSize(res.Video) + fileSize(res.Audio)
	if res.Skipped {
		report.Skipped++
		printer.ItemSkipped(prefix, "already exists: "+res.Title)
	} else {
		report.Bytes += size
		printer.ItemResult(prefix, resultDetail(res), nil)
	}
	deps.record(link, res, size, report.RunID)
	deps.progressFinish(true)
	return true
}

// cached reports a catalog entry whose files are all still on disk.
func (d Deps) cached(link links.Link) (db.MediaRecord, bool) {
	if d.Catalog == nil {
		return db.MediaRecord{}, false
	}
	rec, ok, err := d.Catalog.Lookup(link.Canonical)
	if err != nil {
		d.Printer.Logf(ui.LogWarn, "warning: catalog lookup: %v", err)
		return db.MediaRecord{}, false
	}
	if !ok || rec.AudioPath == "" || !exists(rec.AudioPath) {
		return db.MediaRecord{}, false
	}
	if rec.VideoPath != "" && !exists(rec.VideoPath) {
		return db.MediaRecord{}, false
	}
	return rec, true
}

func (d Deps) record(link links.Link, res downloader.Result, size int64, runID string) {
	if d.Catalog == nil {
		return
	}
	rec := db.MediaRecord{
		CanonicalLink: link.Canonical,
		RawLink:       link.Raw,
		Platform:      string(link.Platform),
		Title:         res.Title,
		Uploader:      res.Uploader,
		MediaType:     db.ClassifyMediaType(link.Raw, string(link.Platform), res.Uploader, res.Video != ""),
		VideoPath:     res.Video,
		AudioPath:     res.Audio,
		Strategy:      res.Strategy,
		FileSize:      size,
		RunID:         runID,
	}
	if _, err := d.Catalog.Record(rec); err != nil {
		d.Printer.Logf(ui.LogWarn, "warning: catalog: %v", err)
	}
}

func (d Deps) progressBegin(index, total int, label string) {
	if d.Progress != nil {
		d.Progress.Begin(index, total, label)
	}
}

func (d Deps) progressFinish(ok bool) {
	if d.Progress != nil {
		d.Progress.Finish(ok)
	}
}

func (r *Report) fail(raw string, err error) {
	r.Failures = append(r.Failures, Failure{
		Link:     raw,
		Reason:   CleanReason(err),
		Category: downloader.CategoryOf(err),
	})
}

var ansiEscape = regexp.MustCompile(`\x1b?\[[0-9;]*m`)

// CleanReason is the first line of err with terminal color codes removed.
func CleanReason(err error) string {
	if err == nil {
		return ""
	}
	line := err.Error()
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(ansiEscape.ReplaceAllString(line, ""))
}

func writeErrorLog(path string, failures []Failure) error {
	entries := make([]string, 0, len(failures))
	for _, f := range failures {
		entries = append(entries, fmt.Sprintf("Link: %s\nReason: %s\n\n%s\n", f.Link, f.Reason, errorLogSeparator))
	}
	content := "Links that could not be processed:\n\n" + strings.Join(entries, "\n")
	return os.WriteFile(path, []byte(content), 0o644)
}

func resultDetail(res downloader.Result) string {
	switch {
	case res.PhotoPost:
		return "photo post audio saved"
	case res.Strategy != "":
		return fmt.Sprintf("%s (%s)", res.Title, res.Strategy)
	default:
		return res.Title
	}
}

// pause waits d, or reports false if ctx ends first.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
