package downloader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lvcoi/ytdl-batch/internal/links"
	"github.com/lvcoi/ytdl-batch/internal/tools"
)

// Category groups failures for the summary and the exit code.
type Category string

const (
	CategoryInvalidURL  Category = "invalid_url"
	CategoryUnsupported Category = "unsupported"
	CategoryAuth        Category = "auth"
	CategoryNetwork     Category = "network"
	CategoryFilesystem  Category = "filesystem"
	CategoryTool        Category = "tool"
	CategoryExhausted   Category = "exhausted"
	CategoryOther       Category = "other"
)

type CategorizedError struct {
	Category Category
	Err      error
}

func (e *CategorizedError) Error() string {
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	return e.Err
}

func wrapCategory(category Category, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{Category: category, Err: err}
}

// CategoryOf returns the category attached to err, inferring one from the
// error types of this module when none was attached.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var categorized *CategorizedError
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	var (
		invalid     *links.InvalidLinkError
		unsupported *UnsupportedURLError
		exhausted   *AllStrategiesExhaustedError
		tool        *ExternalToolFailure
	)
	switch {
	case errors.As(err, &invalid):
		return CategoryInvalidURL
	case errors.As(err, &unsupported):
		return CategoryUnsupported
	case errors.As(err, &exhausted):
		return CategoryExhausted
	case errors.Is(err, ErrOutputMissing):
		return CategoryFilesystem
	case errors.As(err, &tool):
		return CategoryTool
	default:
		return CategoryOther
	}
}

// ExternalToolFailure is a nonzero exit of yt-dlp, ffmpeg, megatools or
// gallery-dl.
type ExternalToolFailure = tools.ExternalToolFailure

// ErrOutputMissing is wrapped when a tool succeeded without producing the
// expected file.
var ErrOutputMissing = tools.ErrOutputMissing

// ErrPhotoPostUnavailable is returned for a photo post when gallery-dl was
// not found.
var ErrPhotoPostUnavailable = errors.New("photo posts need gallery-dl, which was not found")

// StrategyFailure is one failed strategy attempt.
type StrategyFailure struct {
	Strategy string
	Kind     ErrorKind
	Err      error
}

func (e *StrategyFailure) Error() string {
	return fmt.Sprintf("strategy %s: %v", e.Strategy, e.Err)
}

func (e *StrategyFailure) Unwrap() error {
	return e.Err
}

// AllStrategiesExhaustedError means every applicable strategy failed.
type AllStrategiesExhaustedError struct {
	Link     string
	Failures []*StrategyFailure
}

func (e *AllStrategiesExhaustedError) Error() string {
	if len(e.Failures) == 0 {
		return "no download strategy applies to this link"
	}
	last := e.Failures[len(e.Failures)-1]
	return fmt.Sprintf("all %d download strategies failed (last: %v)", len(e.Failures), last)
}

func (e *AllStrategiesExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// UnsupportedURLError stops the strategy loop: no strategy can help.
type UnsupportedURLError struct {
	Link   string
	Reason string
	Err    error
}

func (e *UnsupportedURLError) Error() string {
	var b strings.Builder
	b.WriteString("unsupported URL")
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *UnsupportedURLError) Unwrap() error {
	return e.Err
}
