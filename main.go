package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/lvcoi/ytdl-batch/internal/app"
	"github.com/lvcoi/ytdl-batch/internal/config"
	"github.com/lvcoi/ytdl-batch/internal/db"
	"github.com/lvcoi/ytdl-batch/internal/downloader"
	"github.com/lvcoi/ytdl-batch/internal/media"
	"github.com/lvcoi/ytdl-batch/internal/mega"
	"github.com/lvcoi/ytdl-batch/internal/tools"
	"github.com/lvcoi/ytdl-batch/internal/ui"
)

// nativeTimeout bounds one HTTP exchange of the native YouTube engine,
// including the stream body.
const nativeTimeout = 10 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:], os.LookupEnv, os.Stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return app.ExitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return app.ExitSetup
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid configuration: %v\n", err)
		return app.ExitSetup
	}
	level, _ := ui.ParseLogLevel(cfg.LogLevel)
	printer := ui.NewPrinter(ui.Options{Out: os.Stderr, Quiet: cfg.Quiet, Level: level})

	if cfg.List {
		return listCatalog(cfg)
	}
	if cfg.BackfillOnly {
		return backfillOnly(cfg, printer)
	}

	set, warnings, err := tools.Resolve(tools.Paths{
		FFmpeg:    cfg.FFmpegPath,
		YTDLP:     cfg.YTDLPPath,
		Megatools: cfg.MegatoolsPath,
		GalleryDL: cfg.GalleryDLPath,
	})
	if err != nil {
		printer.Logf(ui.LogError, "error: %v", err)
		return app.ExitSetup
	}
	for _, w := range warnings {
		printer.Log(ui.LogWarn, "warning: "+w)
	}

	strategies, err := downloader.SelectStrategies(downloader.DefaultStrategies(cfg.CookieFile), cfg.Strategies)
	if err != nil {
		printer.Logf(ui.LogError, "error: %v", err)
		return app.ExitSetup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := tools.ExecRunner{Printer: printer}
	normalizer := &media.Normalizer{
		VideoDir: cfg.VideoDir,
		AudioDir: cfg.AudioDir,
		Encoder:  media.NewFFmpeg(set.FFmpeg, runner, cfg.EncoderTimeout),
		Printer:  printer,
	}

	d := &downloader.Downloader{
		Strategies: strategies,
		Engines: map[string]downloader.Engine{
			downloader.EngineYTDLP:  downloader.NewYTDLPEngine(set.YTDLP, printer),
			downloader.EngineNative: downloader.NewNativeEngine(nativeTimeout),
		},
		Normalizer: normalizer,
		Printer:    printer,
	}
	if set.GalleryDL != "" {
		d.Photo = &downloader.GalleryDL{Path: set.GalleryDL, Runner: runner, Normalizer: normalizer}
	}
	var megaClient downloader.MEGADownloader
	if set.Megatools != "" {
		megaClient = &mega.Client{
			Path:       set.Megatools,
			Runner:     runner,
			Normalizer: normalizer,
			Timeout:    cfg.MegaTimeout,
			Printer:    printer,
		}
	}

	deps := app.Deps{
		LinksFile:  cfg.LinksFile,
		ErrorLog:   cfg.ErrorLog,
		Pause:      cfg.Pause,
		Processor:  downloader.NewRouter(d, megaClient),
		Normalizer: normalizer,
		Printer:    printer,
	}

	if !cfg.NoCatalog {
		catalog, err := openCatalog(cfg.CatalogPath)
		if err != nil {
			printer.Logf(ui.LogWarn, "warning: running without catalog: %v", err)
		} else {
			defer catalog.Close()
			deps.Catalog = catalog
		}
	}

	if !cfg.Plain && !cfg.Quiet && ui.IsTerminal(os.Stderr) {
		progress := ui.NewProgressManager(os.Stderr)
		// The view outlives an interrupt so the final sweeps and summary still render.
		progress.Start(context.Background())
		printer.Attach(progress)
		d.Status = progress.Status
		deps.Progress = progress
		defer func() {
			progress.Stop()
			printer.Detach()
		}()
	}

	report, err := app.Run(ctx, deps)
	if err != nil {
		printer.Logf(ui.LogError, "error: %v", err)
		return app.ExitSetup
	}
	return report.ExitCode()
}

// backfillOnly needs ffmpeg alone: nothing is downloaded.
func backfillOnly(cfg config.Config, printer *ui.Printer) int {
	ffmpegPath, err := tools.Find("ffmpeg", cfg.FFmpegPath)
	if err != nil {
		printer.Logf(ui.LogError, "error: %v", err)
		return app.ExitSetup
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := tools.ExecRunner{Printer: printer}
	report, err := app.Backfill(ctx, app.Deps{
		Normalizer: &media.Normalizer{
			VideoDir: cfg.VideoDir,
			AudioDir: cfg.AudioDir,
			Encoder:  media.NewFFmpeg(ffmpegPath, runner, cfg.EncoderTimeout),
			Printer:  printer,
		},
		Printer: printer,
	})
	if err != nil {
		printer.Logf(ui.LogError, "error: %v", err)
		return app.ExitSetup
	}
	return report.ExitCode()
}

func openCatalog(path string) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return db.Open(path)
}

func listCatalog(cfg config.Config) int {
	catalog, err := db.Open(cfg.CatalogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return app.ExitSetup
	}
	defer catalog.Close()

	records, err := catalog.List(0, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return app.ExitSetup
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "catalog is empty")
		return app.ExitOK
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDED\tTYPE\tSIZE\tSTRATEGY\tTITLE\tLINK")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(r.CreatedAt), r.MediaType, humanize.Bytes(uint64(max(r.FileSize, 0))),
			r.Strategy, r.Title, r.CanonicalLink)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return app.ExitSetup
	}
	return app.ExitOK
}
