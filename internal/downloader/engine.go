package downloader

import (
	"context"
	"strings"
)

// ErrorKind is how the strategy loop reacts to an engine failure.
type ErrorKind int

const (
	// KindOther advances to the next strategy.
	KindOther ErrorKind = iota
	// KindAuth is a bot check or login wall; advance.
	KindAuth
	// KindPhotoPost is an unsupported TikTok photo carousel.
	KindPhotoPost
	// KindUnsupported aborts the link.
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindPhotoPost:
		return "photo_post"
	case KindUnsupported:
		return "unsupported"
	default:
		return "other"
	}
}

// EngineError is the structured failure every Engine returns.
type EngineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Info is the metadata a probe returns.
type Info struct {
	ID       string
	Title    string
	Uploader string
	Ext      string
	URL      string
}

// Engine extracts a single link with a given strategy.
type Engine interface {
	// Probe reads metadata without downloading.
	Probe(ctx context.Context, link string, s Strategy) (Info, error)
	// Fetch downloads into dir and returns the exact file written.
	Fetch(ctx context.Context, link string, s Strategy, dir string) (string, error)
}

var authMarkers = []string{"bot", "sign in", "cookies", "authentication"}

// classifyMessage turns an extractor's free-text failure into a kind.
func classifyMessage(link, message string) ErrorKind {
	lower := strings.ToLower(message)
	unsupported := strings.Contains(lower, "unsupported url")
	if unsupported && (strings.Contains(lower, "photo") || strings.Contains(link, "/photo/")) {
		return KindPhotoPost
	}
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return KindAuth
		}
	}
	if unsupported {
		return KindUnsupported
	}
	return KindOther
}

func newEngineError(link, message string, err error) *EngineError {
	message = strings.TrimSpace(message)
	return &EngineError{Kind: classifyMessage(link, message), Message: message, Err: err}
}
