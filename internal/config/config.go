package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. YTDL_BATCH_PAUSE=2s.
const EnvPrefix = "YTDL_BATCH_"

// DefaultFile is read when present and no --config was given.
const DefaultFile = "ytdl-batch.yaml"

// Config holds every knob of a batch run. Zero-valued directories are
// filled in from BaseDir by Resolve.
type Config struct {
	LinksFile   string `yaml:"links_file"`
	BaseDir     string `yaml:"base_dir"`
	VideoDir    string `yaml:"video_dir"`
	AudioDir    string `yaml:"audio_dir"`
	ErrorLog    string `yaml:"error_log"`
	CatalogPath string `yaml:"catalog"`
	NoCatalog   bool   `yaml:"no_catalog"`

	FFmpegPath    string `yaml:"ffmpeg"`
	YTDLPPath     string `yaml:"yt_dlp"`
	MegatoolsPath string `yaml:"megatools"`
	GalleryDLPath string `yaml:"gallery_dl"`

	MegaTimeout    time.Duration `yaml:"mega_timeout"`
	EncoderTimeout time.Duration `yaml:"encoder_timeout"`
	Pause          time.Duration `yaml:"pause"`

	CookieFile string   `yaml:"cookie_file"`
	Strategies []string `yaml:"strategies"`

	Quiet    bool   `yaml:"quiet"`
	Plain    bool   `yaml:"plain"`
	LogLevel string `yaml:"log_level"`

	// List prints the catalog instead of running a batch. Flag only.
	List bool `yaml:"-"`
	// BackfillOnly tidies the output directories without reading links.
	// Flag only.
	BackfillOnly bool `yaml:"-"`
}

func Default() Config {
	return Config{
		LinksFile:   "links.txt",
		BaseDir:     ".",
		ErrorLog:    "error_log.txt",
		MegaTimeout: 5 * time.Minute,
		Pause:       time.Second,
		LogLevel:    "info",
	}
}

// Resolve fills empty directory and catalog paths from BaseDir.
func (c *Config) Resolve() {
	if c.BaseDir == "" {
		c.BaseDir = "."
	}
	if c.VideoDir == "" {
		c.VideoDir = filepath.Join(c.BaseDir, "Videos")
	}
	if c.AudioDir == "" {
		c.AudioDir = filepath.Join(c.BaseDir, "Audio")
	}
	if c.CatalogPath == "" {
		c.CatalogPath = filepath.Join(c.BaseDir, "catalog.db")
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.LinksFile) == "" {
		errs = append(errs, errors.New("links file must not be empty"))
	}
	if strings.TrimSpace(c.VideoDir) == "" {
		errs = append(errs, errors.New("video dir must not be empty"))
	}
	if strings.TrimSpace(c.AudioDir) == "" {
		errs = append(errs, errors.New("audio dir must not be empty"))
	}
	if c.VideoDir != "" && filepath.Clean(c.VideoDir) == filepath.Clean(c.AudioDir) {
		errs = append(errs, errors.New("video dir and audio dir must differ"))
	}
	if strings.TrimSpace(c.ErrorLog) == "" {
		errs = append(errs, errors.New("error log path must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"mega timeout":    c.MegaTimeout,
		"encoder timeout": c.EncoderTimeout,
		"pause":           c.Pause,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative (got %s)", name, d))
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level: %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load builds a Config from defaults, the YAML file, the .env file, the
// environment and finally args, each layer overriding the previous one.
// A pflag.ErrHelp error means usage was printed.
func Load(args []string, lookup LookupFunc, usageOut io.Writer) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	configPath, envFile := preScan(args)

	cfg := Default()
	explicit := configPath != ""
	if !explicit {
		configPath = DefaultFile
	}
	if err := loadYAML(&cfg, configPath, explicit); err != nil {
		return cfg, err
	}

	dotenv, err := readDotenv(envFile)
	if err != nil {
		return cfg, err
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&cfg, env); err != nil {
		return cfg, err
	}

	fs := newFlagSet(&cfg, usageOut)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		cfg.LinksFile = fs.Arg(0)
	}
	cfg.Resolve()
	return cfg, nil
}

func preScan(args []string) (configPath, envFile string) {
	pre := pflag.NewFlagSet("pre", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	pre.StringVar(&configPath, "config", "", "")
	pre.StringVar(&envFile, "env-file", ".env", "")
	_ = pre.Parse(args)
	return configPath, envFile
}

func loadYAML(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parsing env file %s: %w", path, err)
	}
	return values, nil
}

func applyEnv(cfg *Config, env LookupFunc) error {
	strs := map[string]*string{
		"LINKS_FILE":  &cfg.LinksFile,
		"BASE_DIR":    &cfg.BaseDir,
		"VIDEO_DIR":   &cfg.VideoDir,
		"AUDIO_DIR":   &cfg.AudioDir,
		"ERROR_LOG":   &cfg.ErrorLog,
		"CATALOG":     &cfg.CatalogPath,
		"FFMPEG":      &cfg.FFmpegPath,
		"YTDLP":       &cfg.YTDLPPath,
		"MEGATOOLS":   &cfg.MegatoolsPath,
		"GALLERY_DL":  &cfg.GalleryDLPath,
		"COOKIE_FILE": &cfg.CookieFile,
		"LOG_LEVEL":   &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := env(EnvPrefix + key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"NO_CATALOG": &cfg.NoCatalog,
		"QUIET":      &cfg.Quiet,
		"PLAIN":      &cfg.Plain,
	}
	for key, dst := range bools {
		v, ok := env(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}

	durations := map[string]*time.Duration{
		"MEGA_TIMEOUT":    &cfg.MegaTimeout,
		"ENCODER_TIMEOUT": &cfg.EncoderTimeout,
		"PAUSE":           &cfg.Pause,
	}
	for key, dst := range durations {
		v, ok := env(EnvPrefix + key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := env(EnvPrefix + "STRATEGIES"); ok {
		cfg.Strategies = splitList(v)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newFlagSet(cfg *Config, usageOut io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("ytdl-batch", pflag.ContinueOnError)
	if usageOut != nil {
		fs.SetOutput(usageOut)
	}
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ytdl-batch [options] [links-file]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	var configPath, envFile string
	fs.StringVar(&configPath, "config", "", "YAML config file (default "+DefaultFile+" when present)")
	fs.StringVar(&envFile, "env-file", ".env", "dotenv file with "+EnvPrefix+"* overrides")

	fs.StringVarP(&cfg.LinksFile, "links", "i", cfg.LinksFile, "file with one link per line")
	fs.StringVarP(&cfg.BaseDir, "base-dir", "o", cfg.BaseDir, "base directory for Videos/, Audio/ and the catalog")
	fs.StringVar(&cfg.VideoDir, "video-dir", cfg.VideoDir, "video directory (default <base-dir>/Videos)")
	fs.StringVar(&cfg.AudioDir, "audio-dir", cfg.AudioDir, "audio directory (default <base-dir>/Audio)")
	fs.StringVar(&cfg.ErrorLog, "error-log", cfg.ErrorLog, "where failed links are reported")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "SQLite catalog path (default <base-dir>/catalog.db)")
	fs.BoolVar(&cfg.NoCatalog, "no-catalog", cfg.NoCatalog, "do not read or write the catalog")
	fs.BoolVar(&cfg.List, "list", false, "print the catalog and exit")
	fs.BoolVar(&cfg.BackfillOnly, "backfill-only", false, "only move stray audio out of the video dir and extract missing MP3s")

	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "path to ffmpeg")
	fs.StringVar(&cfg.YTDLPPath, "yt-dlp", cfg.YTDLPPath, "path to yt-dlp")
	fs.StringVar(&cfg.MegatoolsPath, "megatools", cfg.MegatoolsPath, "path to megatools")
	fs.StringVar(&cfg.GalleryDLPath, "gallery-dl", cfg.GalleryDLPath, "path to gallery-dl")

	fs.DurationVar(&cfg.MegaTimeout, "mega-timeout", cfg.MegaTimeout, "ceiling for one MEGA transfer")
	fs.DurationVar(&cfg.EncoderTimeout, "encoder-timeout", cfg.EncoderTimeout, "ceiling for one ffmpeg call (0 = none)")
	fs.DurationVar(&cfg.Pause, "pause", cfg.Pause, "pause between links")

	fs.StringVar(&cfg.CookieFile, "cookies", cfg.CookieFile, "Netscape cookie file tried before the other strategies")
	fs.StringSliceVar(&cfg.Strategies, "strategies", cfg.Strategies, "comma-separated subset of strategies to try, in default order")

	fs.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "only print warnings, errors and failures")
	fs.BoolVar(&cfg.Plain, "plain", cfg.Plain, "disable the interactive progress view")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	return fs
}
